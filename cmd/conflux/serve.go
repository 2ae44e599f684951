package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jpalmerr/conflux"
	"github.com/jpalmerr/conflux/config"
	"github.com/jpalmerr/conflux/internal/metrics"
	"github.com/jpalmerr/conflux/internal/relay"
	"github.com/jpalmerr/conflux/internal/server"
)

// newLogger builds the process logger from the log section of the config.
func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(cfg.Format) == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// serveCmd starts the conflux API server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	Long: `Start the conflux API server.

The server will:
  - Load configuration from the specified YAML file
  - Open the configured storage and schedule every enabled health check
  - Register the health checks declared in the config
  - Serve the REST API, the SSE stream and Prometheus metrics

The server runs until interrupted (Ctrl+C) or receives SIGTERM.

Example:
  conflux serve -c config.yaml
  conflux serve -c /etc/conflux/config.yaml --env-file /etc/conflux/.env`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	serveCmd.Flags().String("env-file", "", "load environment variables from this file before reading the config")
	_ = serveCmd.MarkFlagRequired("config")
}

func runServe(cmd *cobra.Command, args []string) error {
	if envFile, _ := cmd.Flags().GetString("env-file"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("failed to load env file: %w", err)
		}
	}

	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := newLogger(cfg.Log)
	logger.Info("config loaded",
		"port", cfg.Port,
		"storage", cfg.Storage.Driver,
		"health_checks", len(cfg.HealthChecks),
		"redis", cfg.Redis.Enabled(),
	)

	// set up context with signal handling - cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := openStorage(ctx, cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer backend.close()

	// the gauge is only read on scrape, after engine is assigned
	var engine *conflux.Engine
	collector := metrics.New(func() int {
		if engine == nil {
			return 0
		}
		return engine.ActiveCount()
	})

	opts := []conflux.Option{
		conflux.WithLogger(logger),
		conflux.WithNotificationStore(backend.notifications),
		conflux.WithSpecStore(backend.specs),
		conflux.WithProbeTimeout(cfg.ProbeTimeout.Duration()),
		conflux.WithProbeCallback(collector.ObserveProbe),
		conflux.WithNotificationCallback(collector.ObserveNotification),
	}

	var publisher *relay.RedisPublisher
	if cfg.Redis.Enabled() {
		publisher, err = relay.Connect(ctx, &redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, cfg.Redis.Channel, logger)
		if err != nil {
			return err
		}
		defer publisher.Close()
		opts = append(opts, conflux.WithNotificationCallback(publisher.Notify))
	}

	engine, err = conflux.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}
	if err := engine.Start(ctx); err != nil {
		return fmt.Errorf("failed to start engine: %w", err)
	}

	for _, hc := range config.BuildHealthChecks(cfg) {
		registered, err := engine.Register(ctx, hc)
		if err != nil {
			_ = engine.Shutdown(context.Background())
			return fmt.Errorf("failed to register health check %q: %w", hc.Name, err)
		}
		logger.Debug("seed health check ready", "check_id", registered.ID, "name", registered.Name)
	}

	srv := server.NewServer(engine, server.Config{
		Port:           cfg.Port,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		Metrics:        collector,
	}, logger)
	if err := srv.Start(ctx); err != nil {
		_ = engine.Shutdown(context.Background())
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.Wait(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout.Duration())
		defer cancel()
		if err := engine.Shutdown(shutdownCtx); err != nil {
			logger.Warn("engine shutdown incomplete",
				"timeout", cfg.ShutdownTimeout.Duration().String(),
				"error", err,
			)
		}
		return nil
	})

	if publisher != nil {
		g.Go(func() error {
			return publisher.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}
