package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/caarlos0/env/v6"
)

// Config holds the catalog module settings.
type Config struct {
	ItemsCollection string `env:"ITEMS_COLLECTION" envDefault:"items"`
	// ItemsPolicy is a CEL expression over method, path, authenticated and user_id.
	ItemsPolicy string `env:"ITEMS_POLICY" envDefault:"authenticated"`
	ListLimit   int64  `env:"ITEMS_LIST_LIMIT" envDefault:"100"`
}

// LoadConfig loads configuration from environment variables and validates it.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to load catalog configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks invariants and normalises values in place.
func (c *Config) Validate() error {
	c.ItemsCollection = strings.TrimSpace(c.ItemsCollection)
	if c.ItemsCollection == "" {
		return errors.New("items_collection must not be empty")
	}
	c.ItemsPolicy = strings.TrimSpace(c.ItemsPolicy)
	if c.ItemsPolicy == "" {
		return errors.New("items_policy must not be empty")
	}
	if c.ListLimit <= 0 {
		c.ListLimit = 100
	}
	return nil
}
