package main

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/jpalmerr/conflux/config"
	"github.com/jpalmerr/conflux/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOpenStorage_Memory(t *testing.T) {
	b, err := openStorage(context.Background(), config.StorageConfig{Driver: config.DriverMemory}, discardLogger())
	if err != nil {
		t.Fatalf("openStorage() error = %v", err)
	}
	defer b.close()

	if _, ok := b.notifications.(*store.MemoryStore); !ok {
		t.Errorf("notifications = %T, want *store.MemoryStore", b.notifications)
	}
	if _, ok := b.specs.(*store.MemorySpecStore); !ok {
		t.Errorf("specs = %T, want *store.MemorySpecStore", b.specs)
	}
}

func TestOpenStorage_SQLiteSharesDatabase(t *testing.T) {
	cfg := config.StorageConfig{
		Driver: config.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "conflux.db"),
	}

	b, err := openStorage(context.Background(), cfg, discardLogger())
	if err != nil {
		t.Fatalf("openStorage() error = %v", err)
	}
	defer b.close()

	s, ok := b.notifications.(*store.SQLiteStore)
	if !ok {
		t.Fatalf("notifications = %T, want *store.SQLiteStore", b.notifications)
	}
	if b.specs != store.SpecStore(s) {
		t.Error("specs and notifications should be the same SQLite store")
	}
}

func TestOpenStorage_UnknownDriver(t *testing.T) {
	if _, err := openStorage(context.Background(), config.StorageConfig{Driver: "mongo"}, discardLogger()); err == nil {
		t.Error("openStorage() error = nil, want error")
	}
}
