package conflux

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jpalmerr/conflux/internal/poller"
	"github.com/jpalmerr/conflux/internal/store"
)

const defaultProbeTimeout = 10 * time.Second

// activeCheck is a registered health check; seq keeps ListSpecs in
// registration order.
type activeCheck struct {
	spec HealthCheck
	seq  uint64
}

// Engine schedules health checks and owns the notification ledger.
//
// Every registered check runs on its own fixed-rate timer. A tick probes the
// check's URL; OK outcomes are dropped, anything else becomes an event that
// is deduplicated into the ledger.
//
// The typical lifecycle is:
//
//	engine, err := conflux.New(conflux.WithSpecStore(specs))
//	if err != nil {
//	    return err
//	}
//	if err := engine.Start(ctx); err != nil {
//	    return err
//	}
//	defer engine.Shutdown(context.Background())
//
// Register and Unregister for the same ID run one at a time. Calls for
// different IDs only share the engine's mutex for map updates, never for
// store I/O, and ticks never take it at all.
type Engine struct {
	logger                *slog.Logger
	notifications         store.NotificationStore
	specs                 store.SpecStore
	client                *poller.Client
	registry              *poller.Registry
	probeTimeout          time.Duration
	intervalUnit          time.Duration
	probeCallbacks        []func(ProbeResult)
	notificationCallbacks []func(Notification)

	mu      sync.Mutex
	active  map[string]activeCheck
	claims  map[string]chan struct{}
	nextSeq uint64
	started bool
	closed  bool
}

// New creates an [Engine] with the given options.
//
// Defaults: in-memory notification and spec stores, a 10 second probe
// timeout, a pooled HTTP client and [slog.Default]. The engine does nothing
// until [Engine.Start] is called, but notification operations are usable
// straight away.
func New(opts ...Option) (*Engine, error) {
	cfg := &engineConfig{
		probeTimeout: defaultProbeTimeout,
		intervalUnit: time.Second,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.notifications == nil {
		cfg.notifications = store.NewMemoryStore()
	}
	if cfg.specs == nil {
		cfg.specs = store.NewMemorySpecStore()
	}

	return &Engine{
		logger:                logger,
		notifications:         cfg.notifications,
		specs:                 cfg.specs,
		client:                poller.NewClient(cfg.httpClient),
		registry:              poller.NewRegistry(logger),
		probeTimeout:          cfg.probeTimeout,
		intervalUnit:          cfg.intervalUnit,
		probeCallbacks:        cfg.probeCallbacks,
		notificationCallbacks: cfg.notificationCallbacks,
		active:                make(map[string]activeCheck),
		claims:                make(map[string]chan struct{}),
	}, nil
}

// Start loads every enabled health check from the spec store and schedules
// it. A failure to load aborts startup. Definitions that no longer validate
// are logged and skipped. Calling Start more than once is a no-op.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrEngineClosed
	}
	if e.started {
		return nil
	}

	checks, err := e.specs.LoadEnabled(ctx)
	if err != nil {
		return fmt.Errorf("failed to load health checks: %w", err)
	}

	for _, hc := range checks {
		if hc.ID == "" {
			e.logger.Warn("skipping stored health check without id", "url", hc.URL)
			continue
		}
		if _, ok := e.active[hc.ID]; ok {
			continue
		}
		normalized, err := normalizeHealthCheck(hc)
		if err != nil {
			e.logger.Warn("skipping invalid stored health check", "check_id", hc.ID, "error", err)
			continue
		}
		if err := e.activateLocked(normalized); err != nil {
			return fmt.Errorf("failed to schedule health check %s: %w", hc.ID, err)
		}
	}

	e.started = true
	e.logger.Info("engine started", "active_checks", len(e.active))
	return nil
}

// Register validates hc, persists it and starts its timer.
//
// An empty ID is replaced with a new UUID. If a check with the same ID is
// already active, Register returns the existing definition unchanged and
// schedules nothing. Returns an error wrapping [ErrInvalidHealthCheck] for
// an interval below one second or above [MaxIntervalSeconds], a missing or
// non-http(s) URL, or an unsupported method.
func (e *Engine) Register(ctx context.Context, hc HealthCheck) (HealthCheck, error) {
	hc, err := normalizeHealthCheck(hc)
	if err != nil {
		return HealthCheck{}, err
	}
	if hc.ID == "" {
		hc.ID = uuid.NewString()
	}

	if err := e.claim(ctx, hc.ID); err != nil {
		return HealthCheck{}, err
	}
	defer e.release(hc.ID)

	e.mu.Lock()
	closed := e.closed
	existing, active := e.active[hc.ID]
	e.mu.Unlock()

	if closed {
		return HealthCheck{}, ErrEngineClosed
	}
	if active {
		return existing.spec, nil
	}

	if err := e.specs.Persist(ctx, hc); err != nil {
		return HealthCheck{}, fmt.Errorf("failed to persist health check %s: %w", hc.ID, err)
	}

	e.mu.Lock()
	if existing, active := e.active[hc.ID]; active {
		// Start loaded the row we just wrote
		e.mu.Unlock()
		return existing.spec, nil
	}
	err = ErrEngineClosed
	if !e.closed {
		err = e.activateLocked(hc)
	}
	e.mu.Unlock()

	if err != nil {
		if rmErr := e.specs.Remove(context.WithoutCancel(ctx), hc.ID); rmErr != nil && !errors.Is(rmErr, store.ErrNotFound) {
			e.logger.Error("failed to roll back health check", "check_id", hc.ID, "error", rmErr)
		}
		if errors.Is(err, ErrEngineClosed) {
			return HealthCheck{}, err
		}
		return HealthCheck{}, fmt.Errorf("failed to schedule health check %s: %w", hc.ID, err)
	}

	e.logger.Info("health check registered",
		"check_id", hc.ID,
		"name", hc.Name,
		"url", hc.URL,
		"interval_seconds", hc.IntervalSeconds,
	)
	return hc, nil
}

// activateLocked schedules hc and records it as active. e.mu must be held.
func (e *Engine) activateLocked(hc HealthCheck) error {
	interval := time.Duration(hc.IntervalSeconds) * e.intervalUnit
	err := e.registry.Schedule(hc.ID, interval, func(ctx context.Context) {
		e.check(ctx, hc)
	})
	if err != nil {
		return err
	}

	e.nextSeq++
	e.active[hc.ID] = activeCheck{spec: hc, seq: e.nextSeq}
	return nil
}

// Unregister removes the health check's definition and stops its timer.
// When Unregister returns no further probe of that check will start.
// Returns [ErrNotFound] if id is not registered. If the store cannot remove
// the definition the check keeps running and the error is returned.
func (e *Engine) Unregister(ctx context.Context, id string) error {
	if err := e.claim(ctx, id); err != nil {
		return err
	}
	defer e.release(id)

	e.mu.Lock()
	_, ok := e.active[id]
	e.mu.Unlock()
	if !ok {
		return ErrNotFound
	}

	if err := e.specs.Remove(ctx, id); err != nil && !errors.Is(err, store.ErrNotFound) {
		e.logger.Error("failed to remove health check from store", "check_id", id, "error", err)
		return fmt.Errorf("failed to remove health check %s: %w", id, err)
	}

	// Shutdown may have cancelled every task already
	if err := e.registry.Cancel(id); err != nil && !errors.Is(err, poller.ErrNotScheduled) {
		return fmt.Errorf("failed to cancel health check %s: %w", id, err)
	}

	e.mu.Lock()
	delete(e.active, id)
	e.mu.Unlock()

	e.logger.Info("health check unregistered", "check_id", id)
	return nil
}

// claim waits until no other Register or Unregister holds id, then takes
// it. Every successful claim must be followed by release.
func (e *Engine) claim(ctx context.Context, id string) error {
	for {
		e.mu.Lock()
		busy, held := e.claims[id]
		if !held {
			e.claims[id] = make(chan struct{})
			e.mu.Unlock()
			return nil
		}
		e.mu.Unlock()

		select {
		case <-busy:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (e *Engine) release(id string) {
	e.mu.Lock()
	done := e.claims[id]
	delete(e.claims, id)
	e.mu.Unlock()
	close(done)
}

// ListSpecs returns the active health checks in registration order.
func (e *Engine) ListSpecs() []HealthCheck {
	e.mu.Lock()
	checks := make([]activeCheck, 0, len(e.active))
	for _, a := range e.active {
		checks = append(checks, a)
	}
	e.mu.Unlock()

	sort.Slice(checks, func(i, j int) bool { return checks[i].seq < checks[j].seq })

	out := make([]HealthCheck, len(checks))
	for i, a := range checks {
		out[i] = a.spec
	}
	return out
}

// IsActive reports whether a health check with the given ID is registered.
func (e *Engine) IsActive(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.active[id]
	return ok
}

// ActiveCount returns the number of registered health checks.
func (e *Engine) ActiveCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.active)
}

// RunCheck probes the registered health check immediately, outside its
// schedule, and records the outcome the same way a tick does.
func (e *Engine) RunCheck(ctx context.Context, id string) (ProbeResult, error) {
	e.mu.Lock()
	a, ok := e.active[id]
	closed := e.closed
	e.mu.Unlock()

	if closed {
		return ProbeResult{}, ErrEngineClosed
	}
	if !ok {
		return ProbeResult{}, ErrNotFound
	}
	return e.check(ctx, a.spec), nil
}

// Shutdown stops every timer and waits for in-flight probes until ctx is
// done, then releases idle connections. Registrations stay in the spec
// store. Shutdown is idempotent.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.active = make(map[string]activeCheck)
	e.mu.Unlock()

	err := e.registry.CancelAll(ctx)
	e.client.Close()

	if err != nil {
		e.logger.Warn("engine shutdown timed out waiting for probes", "error", err)
		return fmt.Errorf("shutdown: %w", err)
	}
	e.logger.Info("engine stopped")
	return nil
}

// check probes hc once and records non-OK outcomes.
func (e *Engine) check(ctx context.Context, hc HealthCheck) ProbeResult {
	res := toProbeResult(hc, e.client.Probe(ctx, hc.Method, hc.URL, e.probeTimeout))

	for _, cb := range e.probeCallbacks {
		invokeCallbackSafe(cb, res, e.logger)
	}

	logAttrs := []any{
		"check_id", hc.ID,
		"name", hc.Name,
		"url", hc.URL,
		"outcome", res.Outcome,
		"status_code", res.StatusCode,
		"latency_ms", res.Latency.Milliseconds(),
	}

	if res.Outcome == OutcomeOK {
		e.logger.Debug("probe completed", logAttrs...)
		return res
	}

	// a probe cut short by engine shutdown says nothing about the target
	if res.Outcome == OutcomeFailed && ctx.Err() != nil {
		e.logger.Debug("probe aborted by shutdown", logAttrs...)
		return res
	}

	if res.Error != nil {
		logAttrs = append(logAttrs, "error", res.Error.Error())
	}
	e.logger.Warn("probe completed with problem", logAttrs...)

	// record even if ctx is cancelled mid-write; the probe itself finished
	if _, err := e.record(context.WithoutCancel(ctx), probeEvent(hc, res)); err != nil {
		e.logger.Error("failed to record probe notification", "check_id", hc.ID, "error", err)
	}
	return res
}

// record writes ev to the ledger and fires notification callbacks.
func (e *Engine) record(ctx context.Context, ev Event) (Notification, error) {
	n, err := e.notifications.Record(ctx, ev)
	if err != nil {
		return Notification{}, err
	}
	for _, cb := range e.notificationCallbacks {
		invokeCallbackSafe(cb, n, e.logger)
	}
	return n, nil
}

// invokeCallbackSafe calls a callback with panic recovery.
// Panics are logged with a correlation ID but do not propagate.
func invokeCallbackSafe[T any](cb func(T), v T, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("callback panicked",
				"correlation_id", uuid.NewString(),
				"panic", fmt.Sprintf("%v", r),
			)
		}
	}()
	cb(v)
}
