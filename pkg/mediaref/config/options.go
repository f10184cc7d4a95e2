package config

import (
	"errors"
	"strings"
	"time"
)

// WithPort sets the HTTP listen port.
func WithPort(port string) Option {
	return func(c *ServerConfig) error {
		if port == "" {
			return errors.New("port cannot be empty")
		}
		c.Port = port
		return nil
	}
}

// WithEnvironment sets the runtime environment name.
func WithEnvironment(env string) Option {
	return func(c *ServerConfig) error {
		c.Environment = env
		return nil
	}
}

// WithDatabase configures the repository from a connection string.
// "memory" or an empty string selects the in-memory repository; a
// postgres:// or postgresql:// URL selects postgres.
func WithDatabase(databaseURL string) Option {
	return func(c *ServerConfig) error {
		if databaseURL == "" || databaseURL == "memory" {
			c.DatabaseType = "memory"
			c.DatabaseURL = ""
			return nil
		}
		if strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://") {
			c.DatabaseType = "postgres"
			c.DatabaseURL = databaseURL
			return nil
		}
		return errors.New("unsupported database URL (use 'memory' or 'postgresql://...')")
	}
}

// WithMigrations enables running embedded migrations at startup.
func WithMigrations() Option {
	return func(c *ServerConfig) error {
		c.RunMigrations = true
		return nil
	}
}

// WithStorageBackend registers a named storage backend, replacing any
// existing backend with the same name.
func WithStorageBackend(name, backendType string, backendConfig map[string]interface{}) Option {
	return func(c *ServerConfig) error {
		if name == "" {
			return errors.New("storage backend name cannot be empty")
		}
		if backendConfig == nil {
			backendConfig = map[string]interface{}{}
		}
		backend := StorageBackendConfig{Name: name, Type: backendType, Config: backendConfig}
		for i, existing := range c.StorageBackends {
			if existing.Name == name {
				c.StorageBackends[i] = backend
				return nil
			}
		}
		c.StorageBackends = append(c.StorageBackends, backend)
		return nil
	}
}

// WithDefaultStorageBackend selects the backend used for new assets when
// the request names none.
func WithDefaultStorageBackend(name string) Option {
	return func(c *ServerConfig) error {
		if name == "" {
			return errors.New("default storage backend cannot be empty")
		}
		c.DefaultStorageBackend = name
		return nil
	}
}

// WithRedisViewCounter routes view counting through Redis, flushing
// accumulated deltas into the repository on the given interval.
func WithRedisViewCounter(redisURL string, flushInterval time.Duration) Option {
	return func(c *ServerConfig) error {
		c.RedisURL = redisURL
		if flushInterval > 0 {
			c.ViewFlushInterval = flushInterval
		}
		return nil
	}
}

// WithTransactionalRefs applies reference usage updates atomically with
// the entity write. Requires postgres.
func WithTransactionalRefs() Option {
	return func(c *ServerConfig) error {
		c.TransactionalRefs = true
		return nil
	}
}
