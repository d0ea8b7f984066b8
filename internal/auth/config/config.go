package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"golang.org/x/crypto/bcrypt"
)

// Session storage backends.
const (
	SessionBackendMongo = "mongo"
	SessionBackendRedis = "redis"
)

const minSecretLength = 16

// Config holds all configuration for the auth module.
type Config struct {
	// Collections
	UsersCollection    string `env:"USERS_COLLECTION" envDefault:"users"`
	SessionsCollection string `env:"SESSIONS_COLLECTION" envDefault:"sessions"`

	// Sessions
	SessionTTL     time.Duration `env:"SESSION_TTL" envDefault:"24h"`
	SessionSliding bool          `env:"SESSION_SLIDING" envDefault:"false"`
	SessionSecret  string        `env:"SESSION_SECRET,required"`
	SessionBackend string        `env:"SESSION_BACKEND" envDefault:"mongo"`

	// Credentials
	BcryptCost      int           `env:"BCRYPT_COST" envDefault:"10"`
	LoginRateLimit  int           `env:"LOGIN_RATE_LIMIT" envDefault:"10"`
	LoginRateWindow time.Duration `env:"LOGIN_RATE_WINDOW" envDefault:"1m"`

	// Cookie Configuration
	CookieName     string `env:"COOKIE_NAME" envDefault:"sid"`
	CookiePath     string `env:"COOKIE_PATH" envDefault:"/"`
	CookieDomain   string `env:"COOKIE_DOMAIN" envDefault:""`
	CookieSecure   bool   `env:"COOKIE_SECURE" envDefault:"false"`
	CookieHTTPOnly bool   `env:"COOKIE_HTTP_ONLY" envDefault:"true"`
	CookieSameSite string `env:"COOKIE_SAME_SITE" envDefault:"Lax"`

	Redis RedisConfig
}

// RedisConfig configures the Redis session backend.
type RedisConfig struct {
	Host         string `env:"REDIS_HOST" envDefault:"localhost"`
	Port         string `env:"REDIS_PORT" envDefault:"6379"`
	Password     string `env:"REDIS_PASSWORD" envDefault:""`
	Database     int    `env:"REDIS_DB" envDefault:"0"`
	PoolSize     int    `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int    `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	MaxRetries   int    `env:"REDIS_MAX_RETRIES" envDefault:"3"`
	EnableTLS    bool   `env:"REDIS_TLS" envDefault:"false"`
}

// Addr returns host:port.
func (r RedisConfig) Addr() string {
	return net.JoinHostPort(r.Host, r.Port)
}

// LoadConfig loads configuration from environment variables and validates it.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to load auth configuration: %w", err)
	}
	if err := env.Parse(&cfg.Redis); err != nil {
		return nil, fmt.Errorf("failed to load redis configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks invariants and normalises values in place.
func (c *Config) Validate() error {
	if len(c.SessionSecret) < minSecretLength {
		return fmt.Errorf("session_secret must be at least %d bytes", minSecretLength)
	}
	if c.SessionTTL <= 0 {
		return errors.New("session_ttl must be positive")
	}

	c.SessionBackend = strings.ToLower(strings.TrimSpace(c.SessionBackend))
	if c.SessionBackend == "" {
		c.SessionBackend = SessionBackendMongo
	}
	if c.SessionBackend != SessionBackendMongo && c.SessionBackend != SessionBackendRedis {
		return fmt.Errorf("session_backend must be %q or %q", SessionBackendMongo, SessionBackendRedis)
	}

	if c.BcryptCost < bcrypt.MinCost {
		c.BcryptCost = bcrypt.MinCost
	}
	if c.BcryptCost > bcrypt.MaxCost {
		c.BcryptCost = bcrypt.MaxCost
	}

	switch strings.ToLower(c.CookieSameSite) {
	case "lax", "":
		c.CookieSameSite = "Lax"
	case "strict":
		c.CookieSameSite = "Strict"
	case "none":
		c.CookieSameSite = "None"
	default:
		return errors.New("cookie_same_site must be one of 'Lax', 'Strict', or 'None'")
	}
	if c.CookieName == "" {
		c.CookieName = "sid"
	}
	return nil
}
