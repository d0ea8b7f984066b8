package http

import (
	"context"
	"strings"
	"time"

	"catalog-service/internal/auth/domain/model"
	"catalog-service/internal/auth/domain/repository"
	"catalog-service/internal/auth/usecase"
	"catalog-service/internal/shared/logger"
	"catalog-service/internal/shared/utils"
	"catalog-service/internal/shared/web"

	"github.com/gofiber/fiber/v2"
)

// Locals keys set by the middleware.
const (
	localsSession = "session"
	localsUserID  = "user_id"
	localsToken   = "session_token"
)

// Gate decides whether a token unlocks a protected route.
type Gate interface {
	Check(ctx context.Context, token string) (usecase.Decision, error)
}

// SessionToucher extends live sessions when sliding expiration is on.
type SessionToucher interface {
	Touch(ctx context.Context, token string, ttl time.Duration) error
	Sliding() bool
}

// AuthMiddleware guards routes with the session gate.
type AuthMiddleware struct {
	gate       Gate
	codec      repository.CookieCodec
	sessions   SessionToucher
	cookieName string
	logger     logger.Logger
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(gate Gate, codec repository.CookieCodec, sessions SessionToucher, cookieName string, log logger.Logger) *AuthMiddleware {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &AuthMiddleware{
		gate:       gate,
		codec:      codec,
		sessions:   sessions,
		cookieName: cookieName,
		logger:     log.WithComponent("auth_middleware"),
	}
}

// Protect returns middleware that requires a live session. Denied requests get
// 401 and never reach the next handler.
func (m *AuthMiddleware) Protect() fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, forged := m.extractToken(c)
		decision := usecase.Decision{Reason: usecase.ReasonNotFound}
		if !forged {
			var err error
			if decision, err = m.gate.Check(c.UserContext(), token); err != nil {
				return err
			}
		}
		if !decision.Allowed {
			m.logger.WithContext(c.UserContext()).WithFields(map[string]interface{}{
				"path":   c.Path(),
				"reason": string(decision.Reason),
			}).Debug("access denied")
			return web.Fail(c, fiber.StatusUnauthorized, "not authenticated")
		}

		m.authorize(c, decision.Session)
		return c.Next()
	}
}

// OptionalAuth resolves the session when one is presented but never denies.
func (m *AuthMiddleware) OptionalAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, forged := m.extractToken(c)
		if token == "" || forged {
			return c.Next()
		}
		decision, err := m.gate.Check(c.UserContext(), token)
		if err != nil {
			m.logger.WithContext(c.UserContext()).Warnf("optional session lookup failed: %v", err)
			return c.Next()
		}
		if decision.Allowed {
			m.authorize(c, decision.Session)
		}
		return c.Next()
	}
}

func (m *AuthMiddleware) authorize(c *fiber.Ctx, session *model.Session) {
	c.Locals(localsSession, session)
	c.Locals(localsUserID, session.UserID)
	c.Locals(localsToken, session.Token)

	ctx := utils.WithUserID(c.UserContext(), session.UserID)
	ctx = utils.WithSessionToken(ctx, session.Token)
	c.SetUserContext(ctx)

	if m.sessions != nil && m.sessions.Sliding() {
		if err := m.sessions.Touch(ctx, session.Token, 0); err != nil {
			m.logger.WithContext(ctx).Warnf("failed to extend session: %v", err)
		}
	}
}

// extractToken opens the envelope from the Authorization header or the
// cookie. forged is true when an envelope was sent but failed verification.
func (m *AuthMiddleware) extractToken(c *fiber.Ctx) (token string, forged bool) {
	envelope := ""
	if authHeader := c.Get(fiber.HeaderAuthorization); strings.HasPrefix(authHeader, "Bearer ") {
		envelope = strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}
	if envelope == "" {
		envelope = c.Cookies(m.cookieName)
	}
	if envelope == "" {
		return "", false
	}

	token, err := m.codec.Open(envelope)
	if err != nil {
		m.logger.WithContext(c.UserContext()).Debugf("rejected session envelope: %v", err)
		return "", true
	}
	return token, false
}

// GetSession returns the session resolved for this request.
func GetSession(c *fiber.Ctx) (*model.Session, bool) {
	session, ok := c.Locals(localsSession).(*model.Session)
	return session, ok && session != nil
}

// GetUserID helper function to get user ID from context
func GetUserID(c *fiber.Ctx) (string, bool) {
	userID, ok := c.Locals(localsUserID).(string)
	return userID, ok && userID != ""
}

// GetSessionToken returns the opaque token of the resolved session.
func GetSessionToken(c *fiber.Ctx) (string, bool) {
	token, ok := c.Locals(localsToken).(string)
	return token, ok && token != ""
}

// IsAuthenticated helper function to check if user is authenticated
func IsAuthenticated(c *fiber.Ctx) bool {
	_, ok := GetSession(c)
	return ok
}
