package database

import (
	"context"
	"fmt"
	"time"

	"catalog-service/internal/shared/docstore"
	"catalog-service/internal/shared/logger"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoConfig holds connection settings for the shared MongoDB client
type MongoConfig struct {
	URI               string        `env:"MONGODB_URI,required"`
	DatabaseName      string        `env:"DATABASE_NAME" envDefault:"catalog_service"`
	ConnectionTimeout time.Duration `env:"CONNECTION_TIMEOUT" envDefault:"30s"`

	// Connection pooling
	MaxPoolSize uint64 `env:"MAX_POOL_SIZE" envDefault:"100"`
	MinPoolSize uint64 `env:"MIN_POOL_SIZE" envDefault:"2"`
}

// Mongo owns the pooled client and hands out collections of one database.
type Mongo struct {
	client *mongo.Client
	db     *mongo.Database
	logger logger.Logger
}

// Connect dials MongoDB and verifies the connection with a ping.
func Connect(ctx context.Context, cfg *MongoConfig, log logger.Logger) (*Mongo, error) {
	if cfg == nil || cfg.URI == "" {
		return nil, fmt.Errorf("mongodb uri is required")
	}
	if log == nil {
		log = logger.NewNopLogger()
	}

	timeout := cfg.ConnectionTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetMaxPoolSize(cfg.MaxPoolSize).
		SetMinPoolSize(cfg.MinPoolSize).
		SetServerSelectionTimeout(timeout)

	client, err := mongo.Connect(connectCtx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	log.WithComponent("database").Infof("Connected to MongoDB database %s", cfg.DatabaseName)
	return &Mongo{
		client: client,
		db:     client.Database(cfg.DatabaseName),
		logger: log.WithComponent("database"),
	}, nil
}

// Database returns the configured database.
func (m *Mongo) Database() *mongo.Database { return m.db }

// Collection returns the named collection behind the docstore abstraction.
func (m *Mongo) Collection(name string) docstore.CollectionInterface {
	return docstore.NewMongoCollectionAdapter(m.db.Collection(name))
}

// Ping checks that the primary is reachable.
func (m *Mongo) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client.
func (m *Mongo) Close(ctx context.Context) error {
	if err := m.client.Disconnect(ctx); err != nil {
		m.logger.Errorf("Failed to disconnect MongoDB: %v", err)
		return err
	}
	m.logger.Info("MongoDB connection closed")
	return nil
}
