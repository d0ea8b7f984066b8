package auth

import (
	"context"
	"errors"
	"fmt"

	authhttp "catalog-service/internal/auth/adapter/http"
	"catalog-service/internal/auth/adapter/persistence/mongodb"
	authredis "catalog-service/internal/auth/adapter/persistence/redis"
	"catalog-service/internal/auth/adapter/security"
	"catalog-service/internal/auth/config"
	"catalog-service/internal/auth/domain/repository"
	"catalog-service/internal/auth/usecase"
	"catalog-service/internal/shared/docstore"
	"catalog-service/internal/shared/eventbus"
	"catalog-service/internal/shared/logger"
	"catalog-service/internal/shared/web"

	"github.com/gofiber/fiber/v2"
	goredis "github.com/redis/go-redis/v9"
)

const cookieIssuer = "catalog-service"

// Dependencies are the shared resources the auth module is built on.
type Dependencies struct {
	Users    docstore.CollectionInterface
	Sessions docstore.CollectionInterface
	// Redis is required when the session backend is redis.
	Redis  goredis.UniversalClient
	Events eventbus.Publisher
	Logger logger.Logger
}

// AuthModule represents the complete authentication module
type AuthModule struct {
	config     *config.Config
	sessions   *usecase.SessionManager
	usecase    usecase.AuthUsecaseInterface
	handler    *authhttp.AuthHTTPHandler
	middleware *authhttp.AuthMiddleware
}

// NewAuthModule creates a new authentication module instance
func NewAuthModule(ctx context.Context, cfg *config.Config, deps Dependencies) (*AuthModule, error) {
	log := deps.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}

	users, err := mongodb.NewMongoUserRepository(ctx, deps.Users, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create user repository: %w", err)
	}

	sessionRepo, err := newSessionRepository(ctx, cfg, deps, log)
	if err != nil {
		return nil, err
	}

	signer, err := security.NewCookieSigner(cfg.SessionSecret, cookieIssuer)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie signer: %w", err)
	}

	sessionOpts := []usecase.SessionOption{}
	if deps.Events != nil {
		sessionOpts = append(sessionOpts, usecase.WithEventPublisher(deps.Events))
	}
	sessions := usecase.NewSessionManager(sessionRepo, security.NewRandomTokenGenerator(),
		cfg.SessionTTL, cfg.SessionSliding, log, sessionOpts...)
	hasher := security.NewBcryptHasher(cfg.BcryptCost, log)
	authUsecase := usecase.NewAuthUsecase(users, sessions, hasher, deps.Events, log)

	middleware := authhttp.NewAuthMiddleware(usecase.NewAuthGate(sessions), signer, sessions, cfg.CookieName, log)
	handler := authhttp.NewAuthHTTPHandler(authUsecase, signer, sessions, authhttp.CookieSettingsFromConfig(cfg), log)

	log.WithFields(map[string]interface{}{
		"session_backend": cfg.SessionBackend,
		"session_ttl":     cfg.SessionTTL.String(),
		"sliding":         cfg.SessionSliding,
	}).Info("auth module initialized")

	return &AuthModule{
		config:     cfg,
		sessions:   sessions,
		usecase:    authUsecase,
		handler:    handler,
		middleware: middleware,
	}, nil
}

func newSessionRepository(ctx context.Context, cfg *config.Config, deps Dependencies, log logger.Logger) (repository.SessionRepository, error) {
	switch cfg.SessionBackend {
	case config.SessionBackendRedis:
		if deps.Redis == nil {
			return nil, errors.New("redis session backend selected but no redis client configured")
		}
		return authredis.NewRedisSessionRepository(deps.Redis, log), nil
	default:
		repo, err := mongodb.NewMongoSessionRepository(ctx, deps.Sessions, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create session repository: %w", err)
		}
		return repo, nil
	}
}

// RegisterRoutes registers authentication routes with the provided router
func (am *AuthModule) RegisterRoutes(router fiber.Router) {
	limiter := web.RateLimiter(am.config.LoginRateLimit, am.config.LoginRateWindow)
	am.handler.RegisterRoutes(router, am.middleware, limiter)
}

// GetUsecase returns the auth usecase for external access
func (am *AuthModule) GetUsecase() usecase.AuthUsecaseInterface {
	return am.usecase
}

// GetMiddleware returns the auth middleware
func (am *AuthModule) GetMiddleware() *authhttp.AuthMiddleware {
	return am.middleware
}

// Sessions exposes the session manager to other modules.
func (am *AuthModule) Sessions() *usecase.SessionManager {
	return am.sessions
}
