package http

import (
	"context"
	"time"

	"catalog-service/internal/auth/config"
	"catalog-service/internal/auth/domain/repository"
	"catalog-service/internal/auth/usecase"
	apperrors "catalog-service/internal/shared/errors"
	"catalog-service/internal/shared/logger"
	"catalog-service/internal/shared/web"

	"github.com/gofiber/fiber/v2"
)

const visitsKey = "visits"

// VisitCounter bumps a counter stored in the session payload.
type VisitCounter interface {
	Increment(ctx context.Context, token, key string, delta int64) (int64, error)
}

// CookieSettings shapes the session cookie.
type CookieSettings struct {
	Name     string
	Path     string
	Domain   string
	Secure   bool
	HTTPOnly bool
	SameSite string
	// MaxAge is a client hint; the stored expiry decides validity.
	MaxAge time.Duration
}

// CookieSettingsFromConfig derives cookie settings from the auth config.
func CookieSettingsFromConfig(cfg *config.Config) CookieSettings {
	return CookieSettings{
		Name:     cfg.CookieName,
		Path:     cfg.CookiePath,
		Domain:   cfg.CookieDomain,
		Secure:   cfg.CookieSecure,
		HTTPOnly: cfg.CookieHTTPOnly,
		SameSite: cfg.CookieSameSite,
		MaxAge:   cfg.SessionTTL,
	}
}

// AuthHTTPHandler handles HTTP requests for authentication
type AuthHTTPHandler struct {
	usecase usecase.AuthUsecaseInterface
	codec   repository.CookieCodec
	visits  VisitCounter
	cookie  CookieSettings
	logger  logger.Logger
}

// NewAuthHTTPHandler creates a new authentication HTTP handler
func NewAuthHTTPHandler(uc usecase.AuthUsecaseInterface, codec repository.CookieCodec, visits VisitCounter, cookie CookieSettings, log logger.Logger) *AuthHTTPHandler {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &AuthHTTPHandler{
		usecase: uc,
		codec:   codec,
		visits:  visits,
		cookie:  cookie,
		logger:  log.WithComponent("auth_http"),
	}
}

// RegisterRoutes mounts the auth routes. limiter guards the credential POSTs
// and may be nil.
func (h *AuthHTTPHandler) RegisterRoutes(router fiber.Router, mw *AuthMiddleware, limiter fiber.Handler) {
	credentials := []fiber.Handler{}
	if limiter != nil {
		credentials = append(credentials, limiter)
	}

	router.Get("/register", h.RegisterForm)
	router.Post("/register", append(credentials, h.Register)...)
	router.Get("/login", h.LoginForm)
	router.Post("/login", append(credentials, h.Login)...)
	router.Get("/logout", mw.OptionalAuth(), h.Logout)
	router.Get("/", mw.OptionalAuth(), h.Home)

	router.Get("/secret", mw.Protect(), h.Secret)
	router.Post("/account/delete", mw.Protect(), h.DeleteAccount)
}

type formField struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
}

type formDescriptor struct {
	Form   string      `json:"form"`
	Method string      `json:"method"`
	Action string      `json:"action"`
	Fields []formField `json:"fields"`
}

var credentialFields = []formField{
	{Name: "username", Type: "text", Required: true},
	{Name: "password", Type: "password", Required: true},
}

// RegisterForm describes the registration form.
func (h *AuthHTTPHandler) RegisterForm(c *fiber.Ctx) error {
	return c.JSON(formDescriptor{Form: "register", Method: fiber.MethodPost, Action: "/register", Fields: credentialFields})
}

// LoginForm describes the login form.
func (h *AuthHTTPHandler) LoginForm(c *fiber.Ctx) error {
	return c.JSON(formDescriptor{Form: "login", Method: fiber.MethodPost, Action: "/login", Fields: credentialFields})
}

// Register handles user registration
func (h *AuthHTTPHandler) Register(c *fiber.Ctx) error {
	var req usecase.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return web.Fail(c, fiber.StatusBadRequest, "invalid request body")
	}

	user, err := h.usecase.Register(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"user": user})
}

// Login verifies credentials and sets the session cookie.
func (h *AuthHTTPHandler) Login(c *fiber.Ctx) error {
	var req usecase.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return web.Fail(c, fiber.StatusBadRequest, "invalid request body")
	}

	user, session, err := h.usecase.Login(c.UserContext(), req)
	if err != nil {
		if apperrors.IsAuthentication(err) {
			return web.Fail(c, fiber.StatusUnauthorized, "invalid username or password")
		}
		return err
	}

	envelope, err := h.codec.Seal(session.Token)
	if err != nil {
		return apperrors.NewInternalError("failed to seal session").WithCause(err)
	}
	h.setCookie(c, envelope)

	return c.JSON(fiber.Map{"user": user, "expires_at": session.ExpiresAt})
}

// Logout destroys the current session, if any, and clears the cookie.
func (h *AuthHTTPHandler) Logout(c *fiber.Ctx) error {
	if token, ok := GetSessionToken(c); ok {
		if err := h.usecase.Logout(c.UserContext(), token); err != nil {
			return err
		}
	}
	h.clearCookie(c)
	return c.JSON(fiber.Map{"message": "logged out"})
}

// Home reports who is signed in.
func (h *AuthHTTPHandler) Home(c *fiber.Ctx) error {
	userID, ok := GetUserID(c)
	if !ok {
		return c.JSON(fiber.Map{"authenticated": false})
	}
	user, err := h.usecase.CurrentUser(c.UserContext(), userID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return c.JSON(fiber.Map{"authenticated": false})
		}
		return err
	}
	return c.JSON(fiber.Map{"authenticated": true, "user": user})
}

// Secret is the protected page. Every visit bumps the session's counter.
func (h *AuthHTTPHandler) Secret(c *fiber.Ctx) error {
	token, _ := GetSessionToken(c)
	userID, _ := GetUserID(c)

	visits, err := h.visits.Increment(c.UserContext(), token, visitsKey, 1)
	if err != nil {
		if usecase.IsSessionMissing(err) {
			return web.Fail(c, fiber.StatusUnauthorized, "not authenticated")
		}
		return err
	}
	return c.JSON(fiber.Map{
		"message": "welcome to the secret page",
		"user_id": userID,
		"visits":  visits,
	})
}

// DeleteAccount removes the signed-in user together with all their sessions.
func (h *AuthHTTPHandler) DeleteAccount(c *fiber.Ctx) error {
	userID, _ := GetUserID(c)
	if err := h.usecase.DeleteAccount(c.UserContext(), userID); err != nil {
		return err
	}
	h.clearCookie(c)
	return c.JSON(fiber.Map{"message": "account deleted"})
}

func (h *AuthHTTPHandler) setCookie(c *fiber.Ctx, value string) {
	maxAge := int(h.cookie.MaxAge / time.Second)
	c.Cookie(&fiber.Cookie{
		Name:     h.cookie.Name,
		Value:    value,
		Path:     h.cookie.Path,
		Domain:   h.cookie.Domain,
		MaxAge:   maxAge,
		Expires:  time.Now().Add(h.cookie.MaxAge),
		Secure:   h.cookie.Secure,
		HTTPOnly: h.cookie.HTTPOnly,
		SameSite: h.cookie.SameSite,
	})
}

func (h *AuthHTTPHandler) clearCookie(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     h.cookie.Name,
		Value:    "",
		Path:     h.cookie.Path,
		Domain:   h.cookie.Domain,
		MaxAge:   -1,
		Expires:  time.Now().Add(-time.Hour),
		Secure:   h.cookie.Secure,
		HTTPOnly: h.cookie.HTTPOnly,
		SameSite: h.cookie.SameSite,
	})
}
