package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	authconfig "catalog-service/internal/auth/config"
	catalogconfig "catalog-service/internal/catalog/config"
	"catalog-service/internal/di"
	"catalog-service/internal/shared/database"
	"catalog-service/internal/shared/logger"
	"catalog-service/internal/shared/web"

	"github.com/caarlos0/env/v6"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
)

// ServerConfig holds server configuration
type ServerConfig struct {
	Host            string        `env:"SERVER_HOST" envDefault:"localhost"`
	Port            string        `env:"SERVER_PORT" envDefault:"3000"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
	LogFormat       string        `env:"LOG_FORMAT" envDefault:"text"`
	CORSOrigins     string        `env:"CORS_ORIGINS" envDefault:"*"`
}

// Config gathers every section read from the environment at startup.
type Config struct {
	Server  ServerConfig
	Mongo   database.MongoConfig
	Auth    *authconfig.Config
	Catalog *catalogconfig.Config
}

func loadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(&cfg.Server); err != nil {
		return nil, fmt.Errorf("failed to load server configuration: %w", err)
	}
	if err := env.Parse(&cfg.Mongo); err != nil {
		return nil, fmt.Errorf("failed to load database configuration: %w", err)
	}
	var err error
	if cfg.Auth, err = authconfig.LoadConfig(); err != nil {
		return nil, err
	}
	if cfg.Catalog, err = catalogconfig.LoadConfig(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func main() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		log.Fatal(err)
	}

	appLogger := logger.NewLogger()
	appLogger.Info("Application configuration loaded successfully")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = run(ctx, cfg, di.NewContainer(appLogger), appLogger)
	stop()
	if err != nil {
		appLogger.Fatalf("%v", err)
	}
}

// run connects the backends, serves until ctx ends and always closes the
// container before returning.
func run(ctx context.Context, cfg *Config, container *di.Container, appLogger logger.Logger) error {
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			appLogger.Errorf("Failed to close container: %v", err)
		}
	}()

	if err := connect(ctx, cfg, container); err != nil {
		return err
	}

	accessLog := logger.NewAccessLogger(cfg.Server.LogFormat)
	container.OnClose(func(context.Context) error {
		// stdout cannot always be synced; nothing is lost if it fails.
		_ = accessLog.Sync()
		return nil
	})

	app := newApp(cfg.Server, container, appLogger, web.AccessLog(accessLog))
	return serve(ctx, app, fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port), cfg.Server.ShutdownTimeout, appLogger)
}

func connect(ctx context.Context, cfg *Config, container *di.Container) error {
	ctx, cancel := context.WithTimeout(ctx, cfg.Mongo.ConnectionTimeout)
	defer cancel()

	if err := container.ConnectMongo(ctx, &cfg.Mongo); err != nil {
		return fmt.Errorf("mongodb unavailable: %w", err)
	}
	if cfg.Auth.SessionBackend == authconfig.SessionBackendRedis {
		if err := container.ConnectRedis(ctx, &cfg.Auth.Redis); err != nil {
			return fmt.Errorf("redis unavailable: %w", err)
		}
	}
	if err := container.InitializeAuth(ctx, cfg.Auth); err != nil {
		return fmt.Errorf("failed to initialize auth module: %w", err)
	}
	if err := container.InitializeCatalog(ctx, cfg.Catalog); err != nil {
		return fmt.Errorf("failed to initialize catalog module: %w", err)
	}
	return nil
}

func newApp(cfg ServerConfig, container *di.Container, appLogger logger.Logger, accessLog fiber.Handler) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "Catalog Service",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
		ErrorHandler: web.NewErrorHandler(appLogger),
	})

	app.Use(recover.New())
	for _, h := range web.RequestContext(cfg.RequestTimeout) {
		app.Use(h)
	}
	app.Use(accessLog)
	app.Use(web.SecurityHeaders())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Request-ID",
		AllowCredentials: cfg.CORSOrigins != "*",
	}))

	container.RegisterRoutes(app)
	return app
}

// serve listens on addr until the listener fails or ctx ends, then drains
// in-flight requests within shutdownTimeout.
func serve(ctx context.Context, app *fiber.App, addr string, shutdownTimeout time.Duration, appLogger logger.Logger) error {
	appLogger.Infof("Starting HTTP server on %s", addr)

	serverShutdown := make(chan error, 1)
	go func() {
		serverShutdown <- app.Listen(addr)
	}()

	select {
	case err := <-serverShutdown:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		appLogger.Info("Received shutdown signal")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		appLogger.Info("HTTP server stopped")
		return nil
	}
}
