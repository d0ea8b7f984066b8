package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"catalog-service/internal/auth/config"

	goredis "github.com/redis/go-redis/v9"
)

// NewClient creates a pooled Redis client from cfg.
func NewClient(cfg *config.RedisConfig) *goredis.Client {
	opts := &goredis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.Database,
		MaxRetries:   cfg.MaxRetries,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,

		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,

		ConnMaxIdleTime: 30 * time.Minute,
		ConnMaxLifetime: time.Hour,
	}
	if cfg.EnableTLS {
		opts.TLSConfig = &tls.Config{ServerName: cfg.Host}
	}
	return goredis.NewClient(opts)
}

// Connect creates a client and verifies it answers PING.
func Connect(ctx context.Context, cfg *config.RedisConfig) (*goredis.Client, error) {
	client := NewClient(cfg)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping Redis at %s: %w", cfg.Addr(), err)
	}
	return client, nil
}
