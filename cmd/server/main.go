package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/jwtauth"
	"github.com/ilyakaznacheev/cleanenv"

	"github.com/contentkit/mediaref/pkg/mediaref/api"
	"github.com/contentkit/mediaref/pkg/mediaref/config"
)

// Config is the environment configuration for the mediaref server
type Config struct {
	Port        string `env:"PORT" env-default:"8080"`
	Environment string `env:"ENVIRONMENT" env-default:"development"`

	// DatabaseURL selects the repository: "memory" or a postgresql:// URL
	DatabaseURL   string `env:"DATABASE_URL" env-default:"memory"`
	RunMigrations bool   `env:"RUN_MIGRATIONS" env-default:"false"`

	// StorageURL selects the default storage backend: "memory",
	// "file:///path", or "s3://bucket"
	StorageURL  string `env:"STORAGE_URL" env-default:"memory"`
	FSURLPrefix string `env:"FS_URL_PREFIX" env-default:""`

	S3Region          string `env:"AWS_S3_REGION" env-default:"us-east-1"`
	S3Endpoint        string `env:"AWS_S3_ENDPOINT" env-default:""`
	S3AccessKeyID     string `env:"AWS_ACCESS_KEY_ID" env-default:""`
	S3SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" env-default:""`
	S3UsePathStyle    bool   `env:"AWS_S3_USE_PATH_STYLE" env-default:"false"`
	S3CreateBucket    bool   `env:"AWS_S3_CREATE_BUCKET" env-default:"false"`

	// RedisURL enables the Redis view counter when set
	RedisURL          string        `env:"REDIS_URL" env-default:""`
	ViewFlushInterval time.Duration `env:"VIEW_FLUSH_INTERVAL" env-default:"30s"`

	TransactionalRefs bool `env:"TRANSACTIONAL_REFS" env-default:"false"`

	// JWTSecret protects the API when set; requests must carry a bearer
	// token signed with it
	JWTSecret string `env:"JWT_SECRET" env-default:""`
}

func main() {
	var envCfg Config
	if err := cleanenv.ReadEnv(&envCfg); err != nil {
		slog.Error("Failed to read environment", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	if envCfg.Environment == "development" {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	slog.SetDefault(logger)

	serverConfig, err := buildServerConfig(envCfg)
	if err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	built, err := serverConfig.BuildService(ctx, logger)
	if err != nil {
		logger.Error("Failed to build service", "error", err)
		os.Exit(1)
	}

	// Drain view counts into the repository until shutdown.
	flushDone := make(chan struct{})
	if built.ViewCounter != nil {
		go func() {
			defer close(flushDone)
			built.ViewCounter.Run(ctx, serverConfig.ViewFlushInterval, built.Repository.IncrementViews)
		}()
	} else {
		close(flushDone)
	}

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%s", serverConfig.Port),
		Handler: routes(built, envCfg),
	}

	go func() {
		logger.Info("mediaref server starting",
			"port", serverConfig.Port,
			"env", serverConfig.Environment,
			"database", serverConfig.DatabaseType,
			"storage", serverConfig.DefaultStorageBackend,
			"view_counter", built.ViewCounter != nil)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}
	<-flushDone
	logger.Info("Server exiting")
}

func buildServerConfig(envCfg Config) (*config.ServerConfig, error) {
	opts := []config.Option{
		config.WithPort(envCfg.Port),
		config.WithEnvironment(envCfg.Environment),
		config.WithDatabase(envCfg.DatabaseURL),
	}
	if envCfg.RunMigrations {
		opts = append(opts, config.WithMigrations())
	}
	if envCfg.RedisURL != "" {
		opts = append(opts, config.WithRedisViewCounter(envCfg.RedisURL, envCfg.ViewFlushInterval))
	}
	if envCfg.TransactionalRefs {
		opts = append(opts, config.WithTransactionalRefs())
	}

	switch {
	case envCfg.StorageURL == "" || envCfg.StorageURL == "memory" || envCfg.StorageURL == "memory://":
		// default backend already configured

	case len(envCfg.StorageURL) > 7 && envCfg.StorageURL[:7] == "file://":
		opts = append(opts,
			config.WithStorageBackend("fs", "fs", map[string]interface{}{
				"base_dir":   envCfg.StorageURL[7:],
				"url_prefix": envCfg.FSURLPrefix,
			}),
			config.WithDefaultStorageBackend("fs"),
		)

	case len(envCfg.StorageURL) > 5 && envCfg.StorageURL[:5] == "s3://":
		opts = append(opts,
			config.WithStorageBackend("s3", "s3", map[string]interface{}{
				"bucket":                     envCfg.StorageURL[5:],
				"region":                     envCfg.S3Region,
				"endpoint":                   envCfg.S3Endpoint,
				"access_key_id":              envCfg.S3AccessKeyID,
				"secret_access_key":          envCfg.S3SecretAccessKey,
				"use_path_style":             envCfg.S3UsePathStyle,
				"create_bucket_if_not_exist": envCfg.S3CreateBucket,
			}),
			config.WithDefaultStorageBackend("s3"),
		)

	default:
		return nil, fmt.Errorf("unsupported STORAGE_URL: %s", envCfg.StorageURL)
	}

	return config.Load(opts...)
}

func routes(built *config.Built, envCfg Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	contentHandler := api.NewContentHandler(built.Service)
	mediaHandler := api.NewMediaHandler(built.Service)

	r.Route("/api/v1", func(r chi.Router) {
		if envCfg.JWTSecret != "" {
			tokenAuth := jwtauth.New("HS256", []byte(envCfg.JWTSecret), nil)
			r.Use(jwtauth.Verifier(tokenAuth))
			r.Use(jwtauth.Authenticator)
		}
		r.Mount("/content", contentHandler.Routes())
		r.Mount("/media", mediaHandler.Routes())
	})

	return r
}
