package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/conflux"
)

func main() {
	// start mock server (see mock_server.go)
	go StartMockHealthServer(":9999")
	time.Sleep(100 * time.Millisecond)

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	engine, err := conflux.New(
		conflux.WithLogger(logger),
		conflux.WithProbeTimeout(3*time.Second),
		conflux.WithNotificationCallback(func(n conflux.Notification) {
			fmt.Printf("[%s] %s: %s (x%d)\n", n.Status, n.Title, n.Message, n.Count)
		}),
	)
	if err != nil {
		logger.Error("failed to create engine", "error", err)
		os.Exit(1)
	}

	// set up context with signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := engine.Start(ctx); err != nil {
		logger.Error("failed to start engine", "error", err)
		os.Exit(1)
	}

	for _, svc := range []string{"users", "orders"} {
		_, err := engine.Register(ctx, conflux.HealthCheck{
			Name:            svc,
			URL:             "http://localhost:9999/health?svc=" + svc,
			IntervalSeconds: 5,
		})
		if err != nil {
			logger.Error("failed to register health check", "svc", svc, "error", err)
			os.Exit(1)
		}
	}

	// nothing listens here, so every probe is FAILED with "connection refused"
	if _, err := engine.Register(ctx, conflux.HealthCheck{
		Name:            "Legacy",
		URL:             "http://localhost:9998/health",
		IntervalSeconds: 10,
	}); err != nil {
		logger.Error("failed to register health check", "error", err)
		os.Exit(1)
	}

	// events from outside land in the same ledger and dedupe the same way
	for i := 0; i < 3; i++ {
		_, _ = engine.RecordExternalEvent(ctx, conflux.Event{
			Source:     "GitHub",
			Title:      "Push to main",
			Message:    "acme/api: 1 new commit",
			Repository: "acme/api",
			Sender:     "octocat",
		})
	}

	fmt.Println()
	fmt.Println("  Conflux demo: 3 health checks, press Ctrl+C to stop")
	fmt.Println()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = engine.Shutdown(shutdownCtx)

	ns, _ := engine.ListNotifications(context.Background())
	fmt.Printf("\n%d notifications recorded\n", len(ns))
}
