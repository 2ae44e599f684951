package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jpalmerr/conflux/config"
	"github.com/jpalmerr/conflux/internal/store"
)

// backend is the pair of stores the engine runs on plus a way to release them.
type backend struct {
	notifications store.NotificationStore
	specs         store.SpecStore
	close         func()
}

// openStorage connects the configured storage driver. The SQL drivers
// serve both notifications and health check definitions from one database.
func openStorage(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (*backend, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		s, err := store.OpenSQLite(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		logger.Info("storage ready", "driver", cfg.Driver, "path", cfg.DSN)
		return &backend{
			notifications: s,
			specs:         s,
			close: func() {
				if err := s.Close(); err != nil {
					logger.Error("failed to close sqlite", "error", err)
				}
			},
		}, nil

	case config.DriverPostgres:
		s, err := store.ConnectPostgres(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		logger.Info("storage ready", "driver", cfg.Driver)
		return &backend{notifications: s, specs: s, close: s.Close}, nil

	case config.DriverMemory, "":
		logger.Warn("using in-memory storage, notifications and health checks are lost on restart")
		return &backend{
			notifications: store.NewMemoryStore(),
			specs:         store.NewMemorySpecStore(),
			close:         func() {},
		}, nil

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
