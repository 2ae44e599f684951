package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrAlreadyScheduled is returned by [Registry.Schedule] when a live
	// task already exists for the ID.
	ErrAlreadyScheduled = errors.New("already scheduled")

	// ErrNotScheduled is returned by [Registry.Cancel] for an unknown ID.
	ErrNotScheduled = errors.New("not scheduled")

	// ErrRegistryClosed is returned by [Registry.Schedule] after
	// [Registry.CancelAll].
	ErrRegistryClosed = errors.New("registry closed")
)

// TickFunc is invoked on every tick of a scheduled task. ctx is cancelled
// when the registry shuts down, not when the individual task is cancelled.
type TickFunc func(ctx context.Context)

// task is one live periodic timer. The ticker is owned by the task
// goroutine; done closes once that goroutine has exited.
type task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Registry owns one periodic timer per ID.
//
// Each task runs its own goroutine with a fixed-rate [time.Ticker]; the first
// tick fires one full interval after scheduling. Every tick is dispatched on
// a fresh goroutine so a slow tick never delays the next one or any other
// task, and ticks of the same task may overlap.
//
// The map lock is held only to check, install or remove a task, never
// across a tick.
type Registry struct {
	logger *slog.Logger

	mu     sync.Mutex
	tasks  map[string]*task
	closed bool

	// root is the parent of every tick. Cancelling a single task does not
	// cancel its in-flight ticks; CancelAll does.
	root       context.Context
	rootCancel context.CancelFunc
	inflight   sync.WaitGroup
}

// NewRegistry creates an empty [Registry].
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	root, cancel := context.WithCancel(context.Background())
	return &Registry{
		logger:     logger,
		tasks:      make(map[string]*task),
		root:       root,
		rootCancel: cancel,
	}
}

// Schedule starts a periodic task for id that calls fn every interval.
func (r *Registry) Schedule(id string, interval time.Duration, fn TickFunc) error {
	if interval <= 0 {
		return fmt.Errorf("schedule %s: interval must be positive, got %s", id, interval)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRegistryClosed
	}
	if _, ok := r.tasks[id]; ok {
		return ErrAlreadyScheduled
	}

	ctx, cancel := context.WithCancel(r.root)
	t := &task{cancel: cancel, done: make(chan struct{})}
	r.tasks[id] = t

	go r.run(ctx, t, id, interval, fn)
	return nil
}

func (r *Registry) run(ctx context.Context, t *task, id string, interval time.Duration, fn TickFunc) {
	defer close(t.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// a tick racing with cancellation must not dispatch
			if ctx.Err() != nil {
				return
			}
			r.inflight.Add(1)
			go r.dispatch(id, fn)
		}
	}
}

// dispatch runs one tick with panic recovery. A panicking tick is logged
// with a correlation ID and the task keeps its schedule.
func (r *Registry) dispatch(id string, fn TickFunc) {
	defer r.inflight.Done()
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("tick panic",
				"task_id", id,
				"correlation_id", uuid.NewString(),
				"panic", fmt.Sprintf("%v", rec),
				"stack", string(debug.Stack()),
			)
		}
	}()
	fn(r.root)
}

// Cancel stops the task for id. When Cancel returns, no further tick for
// that task will be dispatched; ticks already running are left to finish.
func (r *Registry) Cancel(id string) error {
	r.mu.Lock()
	t, ok := r.tasks[id]
	if !ok {
		r.mu.Unlock()
		return ErrNotScheduled
	}
	delete(r.tasks, id)
	t.cancel()
	r.mu.Unlock()

	<-t.done
	return nil
}

// CancelAll closes the registry, stops every task and cancels the context
// passed to in-flight ticks. It then waits for those ticks until ctx is
// done. Calling it again is a no-op apart from waiting.
func (r *Registry) CancelAll(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	tasks := r.tasks
	r.tasks = make(map[string]*task)
	for _, t := range tasks {
		t.cancel()
	}
	r.mu.Unlock()

	for _, t := range tasks {
		<-t.done
	}
	r.rootCancel()

	drained := make(chan struct{})
	go func() {
		r.inflight.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsScheduled reports whether a live task exists for id.
func (r *Registry) IsScheduled(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tasks[id]
	return ok
}

// Len returns the number of live tasks.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}
