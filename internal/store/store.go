package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a notification or health check ID does not
// refer to a live record.
var ErrNotFound = errors.New("not found")

// ReadState is the acknowledgement state of a [Notification].
type ReadState string

const (
	// StatusUnread is the state of every new or recurring notification.
	StatusUnread ReadState = "UNREAD"

	// StatusRead is set by an explicit acknowledgement.
	StatusRead ReadState = "READ"
)

// Notification is one deduplicated ledger entry.
//
// A Notification stands for every event sharing the same (Source, Title,
// Message) triple. Repeats increment Count, refresh Timestamp and force
// Status back to [StatusUnread].
type Notification struct {
	// ID is assigned on first insertion and never changes.
	ID string `json:"id"`

	// Source tags the producer, e.g. "HealthCheck" or "GitHub".
	Source string `json:"source"`

	// Title is the short headline; part of the dedup key.
	Title string `json:"title"`

	// Message is the body text; part of the dedup key.
	Message string `json:"message"`

	// Repository is optional context (a repository name or a probed URL).
	Repository string `json:"repository,omitempty"`

	// Sender identifies who or what produced the event.
	Sender string `json:"sender,omitempty"`

	// Timestamp is the time of the most recent occurrence.
	Timestamp time.Time `json:"timestamp"`

	// Status is UNREAD or READ.
	Status ReadState `json:"status"`

	// Count is the number of occurrences folded into this record.
	Count int `json:"count"`
}

// Event is the input to [NotificationStore.Record].
type Event struct {
	Source     string
	Title      string
	Message    string
	Repository string
	Sender     string

	// Timestamp is when the event happened. Zero means "now".
	Timestamp time.Time
}

// ChangeType describes what happened to a notification.
type ChangeType string

const (
	ChangeRecorded ChangeType = "recorded"
	ChangeRead     ChangeType = "read"
	ChangeDeleted  ChangeType = "deleted"
	ChangeCleared  ChangeType = "cleared"
)

// Change is published to subscribers after every successful mutation.
// Notification is the zero value for [ChangeCleared].
type Change struct {
	Type         ChangeType   `json:"type"`
	Notification Notification `json:"notification"`
}

// NotificationStore is the deduplicating notification ledger.
//
// Implementations must be safe for concurrent use. Record must be an atomic
// upsert per (source, title, message) triple: concurrent calls for the same
// triple never create two records and never lose an increment.
type NotificationStore interface {
	// Record inserts a new record for the event's triple or folds the event
	// into the existing one.
	Record(ctx context.Context, ev Event) (Notification, error)

	// List returns all records, most recent Timestamp first. Ties keep
	// insertion order.
	List(ctx context.Context) ([]Notification, error)

	// MarkRead sets the record's status to READ.
	MarkRead(ctx context.Context, id string) error

	// Delete removes a record.
	Delete(ctx context.Context, id string) error

	// Clear removes every record.
	Clear(ctx context.Context) error

	// Subscribe returns a buffered channel of changes. Slow consumers miss
	// changes rather than block writers. Call Unsubscribe when done.
	Subscribe() <-chan Change

	// Unsubscribe removes a subscription and closes its channel.
	Unsubscribe(ch <-chan Change)
}

// HealthCheck is the persisted definition of a periodic probe.
type HealthCheck struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	URL             string `json:"url"`
	Method          string `json:"method"`
	IntervalSeconds int    `json:"intervalSeconds"`
	Enabled         bool   `json:"enabled"`
}

// SpecStore is the durable home of health check definitions. The engine
// reads it once at startup and writes through it on every registration
// change.
type SpecStore interface {
	// LoadEnabled returns every enabled health check in insertion order.
	LoadEnabled(ctx context.Context) ([]HealthCheck, error)

	// LoadAll returns every stored health check in insertion order.
	LoadAll(ctx context.Context) ([]HealthCheck, error)

	// Persist inserts or replaces the health check with the same ID.
	Persist(ctx context.Context, hc HealthCheck) error

	// Remove deletes the health check. Returns [ErrNotFound] if absent.
	Remove(ctx context.Context, id string) error
}
