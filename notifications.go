package conflux

import (
	"context"
	"fmt"
	"strings"
)

// RecordExternalEvent folds an already-normalized event (for example a
// translated webhook payload) into the ledger. It shares the ledger with
// health check probes but bypasses the scheduler.
//
// A zero Timestamp means now. Returns an error wrapping [ErrInvalidEvent]
// if Source or Title is blank.
func (e *Engine) RecordExternalEvent(ctx context.Context, ev Event) (Notification, error) {
	if strings.TrimSpace(ev.Source) == "" {
		return Notification{}, fmt.Errorf("%w: source is required", ErrInvalidEvent)
	}
	if strings.TrimSpace(ev.Title) == "" {
		return Notification{}, fmt.Errorf("%w: title is required", ErrInvalidEvent)
	}

	n, err := e.record(ctx, ev)
	if err != nil {
		return Notification{}, fmt.Errorf("failed to record event: %w", err)
	}

	e.logger.Debug("external event recorded",
		"notification_id", n.ID,
		"source", n.Source,
		"count", n.Count,
	)
	return n, nil
}

// ListNotifications returns every live record, most recent first.
func (e *Engine) ListNotifications(ctx context.Context) ([]Notification, error) {
	return e.notifications.List(ctx)
}

// MarkRead acknowledges a record. A later occurrence of the same event
// resets it to UNREAD. Returns [ErrNotFound] for an unknown ID.
func (e *Engine) MarkRead(ctx context.Context, id string) error {
	return e.notifications.MarkRead(ctx, id)
}

// DeleteNotification removes a record. A later occurrence of the same event
// starts a new record with count 1. Returns [ErrNotFound] for an unknown ID.
func (e *Engine) DeleteNotification(ctx context.Context, id string) error {
	return e.notifications.Delete(ctx, id)
}

// ClearAll removes every record.
func (e *Engine) ClearAll(ctx context.Context) error {
	return e.notifications.Clear(ctx)
}

// Subscribe returns a channel of ledger changes. Slow readers miss changes
// rather than block writers. Call [Engine.Unsubscribe] when done.
func (e *Engine) Subscribe() <-chan Change {
	return e.notifications.Subscribe()
}

// Unsubscribe ends a subscription and closes its channel.
func (e *Engine) Unsubscribe(ch <-chan Change) {
	e.notifications.Unsubscribe(ch)
}
