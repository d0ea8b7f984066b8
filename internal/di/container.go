package di

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"catalog-service/internal/auth"
	authredis "catalog-service/internal/auth/adapter/persistence/redis"
	authconfig "catalog-service/internal/auth/config"
	"catalog-service/internal/catalog"
	catalogconfig "catalog-service/internal/catalog/config"
	"catalog-service/internal/shared/database"
	"catalog-service/internal/shared/docstore"
	"catalog-service/internal/shared/eventbus"
	"catalog-service/internal/shared/logger"

	"github.com/gofiber/fiber/v2"
	goredis "github.com/redis/go-redis/v9"
)

const healthTimeout = 5 * time.Second

// CollectionProvider hands out named collections. *database.Mongo is the
// production implementation.
type CollectionProvider interface {
	Collection(name string) docstore.CollectionInterface
}

// HealthCheckFunc reports whether one backing service is reachable.
type HealthCheckFunc func(ctx context.Context) error

// Container owns the shared resources and the modules built on them.
type Container struct {
	mu sync.RWMutex

	// Module instances
	AuthModule    *auth.AuthModule
	CatalogModule *catalog.CatalogModule

	// Backends
	Store CollectionProvider
	Redis goredis.UniversalClient

	Events *eventbus.EventBus
	Logger logger.Logger

	checks  map[string]HealthCheckFunc
	closers []func(ctx context.Context) error
}

// NewContainer creates an empty container with an event bus that writes the
// audit log.
func NewContainer(log logger.Logger) *Container {
	if log == nil {
		log = logger.NewNopLogger()
	}
	bus := eventbus.NewEventBus(log)
	eventbus.RegisterAuditLog(bus, log)

	return &Container{
		Events: bus,
		Logger: log,
		checks: make(map[string]HealthCheckFunc),
	}
}

// ConnectMongo dials MongoDB and makes it the collection provider.
func (c *Container) ConnectMongo(ctx context.Context, cfg *database.MongoConfig) error {
	mongo, err := database.Connect(ctx, cfg, c.Logger)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.Store = mongo
	c.checks["mongodb"] = mongo.Ping
	c.closers = append(c.closers, mongo.Close)
	return nil
}

// ConnectRedis dials the Redis session backend.
func (c *Container) ConnectRedis(ctx context.Context, cfg *authconfig.RedisConfig) error {
	client, err := authredis.Connect(ctx, cfg)
	if err != nil {
		return err
	}
	c.Logger.WithComponent("database").Infof("Connected to Redis at %s", cfg.Addr())

	c.mu.Lock()
	defer c.mu.Unlock()
	c.Redis = client
	c.checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	c.closers = append(c.closers, func(context.Context) error { return client.Close() })
	return nil
}

// AddHealthCheck registers an extra dependency check for /health.
func (c *Container) AddHealthCheck(name string, check HealthCheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// OnClose registers a release step run by Close, after those of backends
// connected later.
func (c *Container) OnClose(fn func(ctx context.Context) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closers = append(c.closers, fn)
}

// InitializeAuth builds the auth module on the configured backends.
func (c *Container) InitializeAuth(ctx context.Context, cfg *authconfig.Config) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Store == nil {
		return fmt.Errorf("a collection provider must be connected before the auth module")
	}

	module, err := auth.NewAuthModule(ctx, cfg, auth.Dependencies{
		Users:    c.Store.Collection(cfg.UsersCollection),
		Sessions: c.Store.Collection(cfg.SessionsCollection),
		Redis:    c.Redis,
		Events:   c.Events,
		Logger:   c.Logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create auth module: %w", err)
	}

	c.AuthModule = module
	return nil
}

// InitializeCatalog builds the catalog module. Views are counted in the
// caller's session, so auth must be initialized first.
func (c *Container) InitializeCatalog(ctx context.Context, cfg *catalogconfig.Config) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.AuthModule == nil {
		return fmt.Errorf("auth module must be initialized before catalog module")
	}

	module, err := catalog.NewCatalogModule(ctx, cfg, catalog.Dependencies{
		Items:  c.Store.Collection(cfg.ItemsCollection),
		Visits: c.AuthModule.Sessions(),
		Events: c.Events,
		Logger: c.Logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create catalog module: %w", err)
	}

	c.CatalogModule = module
	return nil
}

// RegisterRoutes mounts /health and every initialized module.
func (c *Container) RegisterRoutes(router fiber.Router) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	router.Get("/health", c.healthHandler)
	if c.AuthModule != nil {
		c.AuthModule.RegisterRoutes(router)
	}
	if c.CatalogModule != nil && c.AuthModule != nil {
		c.CatalogModule.RegisterRoutes(router, c.AuthModule.GetMiddleware())
	}
}

// GetAuthModule returns the auth module instance
func (c *Container) GetAuthModule() *auth.AuthModule {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.AuthModule
}

// GetCatalogModule returns the catalog module instance
func (c *Container) GetCatalogModule() *catalog.CatalogModule {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.CatalogModule
}

// HealthCheck runs every registered check and returns a per-dependency status.
// The error is the first failure in name order.
func (c *Container) HealthCheck(ctx context.Context) (map[string]string, error) {
	c.mu.RLock()
	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	checks := make(map[string]HealthCheckFunc, len(c.checks))
	for name, fn := range c.checks {
		checks[name] = fn
	}
	c.mu.RUnlock()
	sort.Strings(names)

	status := make(map[string]string, len(names))
	var firstErr error
	for _, name := range names {
		if err := checks[name](ctx); err != nil {
			status[name] = "down"
			if firstErr == nil {
				firstErr = fmt.Errorf("%s health check failed: %w", name, err)
			}
			continue
		}
		status[name] = "up"
	}
	return status, firstErr
}

func (c *Container) healthHandler(ctx *fiber.Ctx) error {
	checkCtx, cancel := context.WithTimeout(ctx.UserContext(), healthTimeout)
	defer cancel()

	status, err := c.HealthCheck(checkCtx)
	if err != nil {
		c.Logger.WithContext(ctx.UserContext()).Errorf("Health check failed: %v", err)
		return ctx.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status":       "UNHEALTHY",
			"dependencies": status,
		})
	}
	return ctx.JSON(fiber.Map{
		"status":       "HEALTHY",
		"dependencies": status,
		"timestamp":    time.Now().UTC(),
	})
}

// Close releases backends in reverse order of connection.
func (c *Container) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	c.AuthModule = nil
	c.CatalogModule = nil

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("cleanup errors: %w", err)
	}
	c.Logger.Info("Container resources closed")
	return nil
}
