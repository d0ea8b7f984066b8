package web

import (
	"context"
	"errors"
	"time"

	"catalog-service/internal/shared/contextkeys"
	apperrors "catalog-service/internal/shared/errors"
	"catalog-service/internal/shared/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// RequestID assigns every request an id and copies it into the user context.
func RequestID() fiber.Handler {
	return requestid.New(requestid.Config{
		Header:     RequestIDHeader,
		Generator:  uuid.NewString,
		ContextKey: string(contextkeys.RequestIDKey),
	})
}

// propagateRequestID runs after requestid and before handlers.
func propagateRequestID(c *fiber.Ctx) error {
	if id, ok := c.Locals(string(contextkeys.RequestIDKey)).(string); ok && id != "" {
		c.SetUserContext(utils.WithRequestID(c.UserContext(), id))
	}
	return c.Next()
}

// RequestContext chains request id propagation and the per-request deadline.
func RequestContext(timeout time.Duration) []fiber.Handler {
	return []fiber.Handler{RequestID(), propagateRequestID, Timeout(timeout)}
}

// Timeout bounds every backend call made with the request's user context.
func Timeout(d time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if d <= 0 {
			return c.Next()
		}
		ctx, cancel := context.WithTimeout(c.UserContext(), d)
		defer cancel()
		c.SetUserContext(ctx)
		return c.Next()
	}
}

// AccessLog writes one zap line per request.
func AccessLog(log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			status = statusOf(err)
		}
		reqID, _ := c.Locals(string(contextkeys.RequestIDKey)).(string)
		log.Info("request",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("request_id", reqID),
			zap.String("user_id", utils.GetUserIDOrDefault(c.UserContext(), "")),
			zap.String("ip", c.IP()),
		)
		return err
	}
}

// SecurityHeaders adds the standard hardening headers.
func SecurityHeaders() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		return c.Next()
	}
}

// RateLimiter limits credential endpoints per client address.
func RateLimiter(max int, window time.Duration) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:               max,
		Expiration:        window,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.Get("X-Forwarded-For", c.IP())
		},
		LimitReached: func(c *fiber.Ctx) error {
			return Fail(c, fiber.StatusTooManyRequests, "too many requests")
		},
	})
}

func statusOf(err error) int {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return apperrors.StatusCode(err)
}
