// Command server runs the markdown annotation API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"markdown-annotator/auth"
	"markdown-annotator/internal/config"
	"markdown-annotator/internal/db"
	"markdown-annotator/internal/metrics"
	"markdown-annotator/internal/worker"
	"markdown-annotator/redis"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

const (
	Version = "0.1.0"
	appName = "markdown-annotator"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Markdown documents with versioned, anchored annotations",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load configuration
			config.LoadConfig()
			if logLevel == "" {
				logLevel = config.AppConfig.LogLevel
			}
			setupLogging(logLevel)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	cmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := db.ConnectDb(); err != nil {
				return err
			}
			defer db.CloseDb()
			return db.Migrate(db.AppDb)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "seed",
		Short: "Insert development sample data",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := db.ConnectDb(); err != nil {
				return err
			}
			defer db.CloseDb()
			if err := db.Migrate(db.AppDb); err != nil {
				return err
			}
			svc := newServices(db.AppDb, redis.NewCache(nil, 0), nil, metrics.NewNop(), config.AppConfig)
			return db.SeedData(cmd.Context(), svc.users, svc.documents)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s\n", appName, Version)
		},
	})

	return cmd
}

func setupLogging(logLevel string) {
	level := slog.LevelInfo
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if config.AppConfig.Environment == "production" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(handler))
}

func serve(ctx context.Context) error {
	cfg := config.AppConfig
	auth.Configure(cfg.JWTSecret, cfg.AccessTokenTTL)

	// Connect to database
	if err := db.ConnectDb(); err != nil {
		return err
	}
	defer db.CloseDb()

	// Migrate database schema
	if err := db.Migrate(db.AppDb); err != nil {
		return err
	}

	// Initialize Redis; nil disables caching
	redisClient := redis.InitRedis(ctx, cfg.RedisAddress)
	if redisClient != nil {
		defer redisClient.Close()
	}
	cache := redis.NewCache(redisClient, cfg.CacheTTL)

	pool := worker.NewWorkerPool(cfg.WorkerPoolSize, cfg.WorkerPoolSize*64, 5*time.Second)
	defer pool.Shutdown()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	svc := newServices(db.AppDb, cache, pool, m, cfg)

	// Seed database with initial data (for development)
	if cfg.Environment == "development" {
		if err := db.SeedData(ctx, svc.users, svc.documents); err != nil {
			slog.Warn("seeding failed", "error", err)
		}
	}

	router := newRouter(svc, m, registry, cfg)

	// Server configuration
	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:           router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "port", cfg.ServerPort, "env", cfg.Environment)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-quit:
	}
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server shutdown complete")
	return nil
}
