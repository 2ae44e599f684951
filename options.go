package conflux

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/jpalmerr/conflux/internal/store"
)

// engineConfig holds mutable state during Engine construction.
type engineConfig struct {
	notifications         store.NotificationStore
	specs                 store.SpecStore
	probeTimeout          time.Duration
	httpClient            *http.Client
	logger                *slog.Logger
	probeCallbacks        []func(ProbeResult)
	notificationCallbacks []func(Notification)

	// intervalUnit scales IntervalSeconds; only tests shorten it.
	intervalUnit time.Duration
}

// Option is a function that configures an [Engine] during construction.
//
// Option implements the functional options pattern. Options return an error
// if validation fails.
type Option func(*engineConfig) error

// WithNotificationStore sets the ledger that probe failures and external
// events are recorded in. Defaults to an in-memory store.
func WithNotificationStore(s store.NotificationStore) Option {
	return func(cfg *engineConfig) error {
		if s == nil {
			return errors.New("notification store cannot be nil")
		}
		cfg.notifications = s
		return nil
	}
}

// WithSpecStore sets the durable store for health check definitions.
//
// [Engine.Start] loads every enabled definition from it, and
// [Engine.Register] / [Engine.Unregister] write through it. Defaults to an
// in-memory store, in which case registrations do not survive a restart.
func WithSpecStore(s store.SpecStore) Option {
	return func(cfg *engineConfig) error {
		if s == nil {
			return errors.New("spec store cannot be nil")
		}
		cfg.specs = s
		return nil
	}
}

// WithProbeTimeout sets the per-probe timeout. Defaults to 10 seconds.
//
// Returns an error if the duration is zero or negative.
func WithProbeTimeout(d time.Duration) Option {
	return func(cfg *engineConfig) error {
		if d <= 0 {
			return errors.New("probe timeout must be positive")
		}
		cfg.probeTimeout = d
		return nil
	}
}

// WithHTTPClient sets the client used for probes. The client's Timeout
// should be zero; probes apply their own timeout per request.
func WithHTTPClient(c *http.Client) Option {
	return func(cfg *engineConfig) error {
		if c == nil {
			return errors.New("http client cannot be nil")
		}
		cfg.httpClient = c
		return nil
	}
}

// WithLogger sets a custom [slog.Logger] for the Engine.
//
// If not specified, [slog.Default] is used.
//
// Example:
//
//	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
//	engine, err := conflux.New(conflux.WithLogger(logger))
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *engineConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithProbeCallback registers a function to be called after every probe,
// including OK ones.
//
// Callbacks run on the tick's goroutine, so ticks of different checks may
// call them concurrently. They must be safe for concurrent use and should
// not block. Panics are recovered and logged.
//
// Nil callbacks are silently ignored.
func WithProbeCallback(cb func(ProbeResult)) Option {
	return func(cfg *engineConfig) error {
		if cb == nil {
			return nil
		}
		cfg.probeCallbacks = append(cfg.probeCallbacks, cb)
		return nil
	}
}

// WithNotificationCallback registers a function to be called with the
// updated record after every successful Record, whether it came from a
// probe or from [Engine.RecordExternalEvent].
//
// The same concurrency rules as [WithProbeCallback] apply.
//
// Example:
//
//	engine, err := conflux.New(
//	    conflux.WithNotificationCallback(func(n conflux.Notification) {
//	        if n.Count == 1 {
//	            log.Printf("new problem: %s", n.Title)
//	        }
//	    }),
//	)
func WithNotificationCallback(cb func(Notification)) Option {
	return func(cfg *engineConfig) error {
		if cb == nil {
			return nil
		}
		cfg.notificationCallbacks = append(cfg.notificationCallbacks, cb)
		return nil
	}
}
