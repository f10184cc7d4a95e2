// Package config assembles a mediaref.Service and its collaborators from
// declarative server configuration.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/contentkit/mediaref/pkg/mediaref"
	"github.com/contentkit/mediaref/pkg/mediaref/counter"
	"github.com/contentkit/mediaref/pkg/mediaref/repo/memory"
	repopg "github.com/contentkit/mediaref/pkg/mediaref/repo/postgres"
	fsstorage "github.com/contentkit/mediaref/pkg/mediaref/storage/fs"
	memorystorage "github.com/contentkit/mediaref/pkg/mediaref/storage/memory"
	s3storage "github.com/contentkit/mediaref/pkg/mediaref/storage/s3"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of
// library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:                  "8080",
		Environment:           "development",
		DatabaseType:          "memory",
		DefaultStorageBackend: "memory",
		StorageBackends: []StorageBackendConfig{
			{Name: "memory", Type: "memory", Config: map[string]interface{}{}},
		},
		ViewFlushInterval: 30 * time.Second,
	}
}

// ServerConfig represents server configuration for the mediaref service
type ServerConfig struct {
	Port        string
	Environment string // development, production, testing

	// Database configuration
	DatabaseURL   string
	DatabaseType  string // "memory", "postgres"
	RunMigrations bool

	// Storage configuration
	DefaultStorageBackend string
	StorageBackends       []StorageBackendConfig

	// View counter configuration. When RedisURL is empty, views are
	// incremented directly on the repository.
	RedisURL          string
	ViewFlushInterval time.Duration

	// When true, reference usage updates are applied in the same
	// transaction as the entity write (postgres only).
	TransactionalRefs bool
}

// StorageBackendConfig represents configuration for a storage backend
type StorageBackendConfig struct {
	Name   string
	Type   string // "memory", "fs", "s3"
	Config map[string]interface{}
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}
	if c.DatabaseType != "memory" && c.DatabaseType != "postgres" {
		return errors.New("database_type must be 'memory' or 'postgres'")
	}
	if c.DatabaseType == "postgres" && c.DatabaseURL == "" {
		return errors.New("database_url is required when using postgres")
	}
	if c.TransactionalRefs && c.DatabaseType != "postgres" {
		return errors.New("transactional_refs requires postgres")
	}

	found := false
	for _, backend := range c.StorageBackends {
		if backend.Name == c.DefaultStorageBackend {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("default storage backend '%s' not found in configured backends", c.DefaultStorageBackend)
	}
	return nil
}

// Built holds the assembled service and the collaborators the server wires
// into its own lifecycle.
type Built struct {
	Service    mediaref.Service
	Repository mediaref.Repository
	// ViewCounter is non-nil when Redis is configured; the server owns
	// its flush loop.
	ViewCounter *counter.RedisCounter
}

// BuildService creates a Service instance from the server configuration
func (c *ServerConfig) BuildService(ctx context.Context, logger *slog.Logger) (*Built, error) {
	repo, err := c.buildRepository(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to build repository: %w", err)
	}

	options := []mediaref.Option{
		mediaref.WithRepository(repo),
		mediaref.WithLogger(logger),
		mediaref.WithEventSink(mediaref.NewNoopEventSink()),
	}

	for _, backendConfig := range c.StorageBackends {
		store, err := c.buildStorageBackend(ctx, backendConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to build storage backend %s: %w", backendConfig.Name, err)
		}
		options = append(options, mediaref.WithBlobStore(backendConfig.Name, store))
	}

	built := &Built{Repository: repo}

	if c.RedisURL != "" {
		viewCounter, err := c.buildViewCounter(ctx, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to build view counter: %w", err)
		}
		built.ViewCounter = viewCounter
		options = append(options, mediaref.WithViewCounter(viewCounter))
	}

	if c.TransactionalRefs {
		options = append(options, mediaref.WithTransactionalRefs())
	}

	svc, err := mediaref.New(options...)
	if err != nil {
		return nil, err
	}
	built.Service = svc
	return built, nil
}

// buildRepository creates a Repository based on the configuration
func (c *ServerConfig) buildRepository(ctx context.Context) (mediaref.Repository, error) {
	switch c.DatabaseType {
	case "memory":
		return memory.New(), nil
	case "postgres":
		if c.RunMigrations {
			if err := repopg.Migrate(c.DatabaseURL); err != nil {
				return nil, fmt.Errorf("failed to run migrations: %w", err)
			}
		}
		pool, err := pgxpool.New(ctx, c.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create pgx pool: %w", err)
		}
		return repopg.NewWithPool(pool), nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}
}

// buildStorageBackend creates a BlobStore based on the backend configuration
func (c *ServerConfig) buildStorageBackend(ctx context.Context, config StorageBackendConfig) (mediaref.BlobStore, error) {
	switch config.Type {
	case "memory":
		return memorystorage.New(), nil

	case "fs":
		return fsstorage.New(fsstorage.Config{
			BaseDir:   getString(config.Config, "base_dir", "./data/media"),
			URLPrefix: getString(config.Config, "url_prefix", ""),
		})

	case "s3":
		return s3storage.New(ctx, s3storage.Config{
			Region:          getString(config.Config, "region", "us-east-1"),
			Bucket:          getString(config.Config, "bucket", ""),
			AccessKeyID:     getString(config.Config, "access_key_id", ""),
			SecretAccessKey: getString(config.Config, "secret_access_key", ""),
			Endpoint:        getString(config.Config, "endpoint", ""),
			UsePathStyle:    getBool(config.Config, "use_path_style", false),
			PresignExpires:  time.Duration(getInt(config.Config, "presign_expires_seconds", 900)) * time.Second,
			CreateBucket:    getBool(config.Config, "create_bucket_if_not_exist", false),
			SSEAlgorithm:    getString(config.Config, "sse_algorithm", ""),
			SSEKMSKeyID:     getString(config.Config, "sse_kms_key_id", ""),
		})

	default:
		return nil, fmt.Errorf("unsupported storage backend type: %s", config.Type)
	}
}

func (c *ServerConfig) buildViewCounter(ctx context.Context, logger *slog.Logger) (*counter.RedisCounter, error) {
	opts, err := redis.ParseURL(c.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return counter.NewRedis(client, logger), nil
}

func getString(config map[string]interface{}, key string, defaultValue string) string {
	if value, exists := config[key]; exists {
		if str, ok := value.(string); ok {
			return str
		}
	}
	return defaultValue
}

func getBool(config map[string]interface{}, key string, defaultValue bool) bool {
	if value, exists := config[key]; exists {
		if b, ok := value.(bool); ok {
			return b
		}
	}
	return defaultValue
}

func getInt(config map[string]interface{}, key string, defaultValue int) int {
	if value, exists := config[key]; exists {
		switch v := value.(type) {
		case int:
			return v
		case float64:
			return int(v)
		}
	}
	return defaultValue
}
