package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS health_checks (
	seq              INTEGER PRIMARY KEY AUTOINCREMENT,
	id               TEXT NOT NULL UNIQUE,
	name             TEXT NOT NULL,
	url              TEXT NOT NULL,
	method           TEXT NOT NULL DEFAULT 'GET',
	interval_seconds INTEGER NOT NULL DEFAULT 60,
	enabled          BOOLEAN NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS notifications (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	id         TEXT NOT NULL UNIQUE,
	dedup_key  TEXT NOT NULL UNIQUE,
	source     TEXT NOT NULL,
	title      TEXT NOT NULL,
	message    TEXT NOT NULL,
	repository TEXT NOT NULL DEFAULT '',
	sender     TEXT NOT NULL DEFAULT '',
	timestamp  INTEGER NOT NULL,
	status     TEXT NOT NULL DEFAULT 'UNREAD',
	count      INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_notifications_timestamp ON notifications(timestamp DESC, seq);
`

// SQLiteStore persists health checks and notifications in a SQLite file.
//
// Timestamps are stored as unix nanoseconds. The pool is limited to one
// connection so writes are serialized by database/sql rather than failing
// with SQLITE_BUSY.
type SQLiteStore struct {
	*broadcaster
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and applies the schema.
// Use ":memory:" for a throwaway database.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate sqlite schema: %w", err)
	}
	return &SQLiteStore{broadcaster: newBroadcaster(), db: db}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// LoadEnabled returns enabled health checks in insertion order.
func (s *SQLiteStore) LoadEnabled(ctx context.Context) ([]HealthCheck, error) {
	return s.queryChecks(ctx, `SELECT id, name, url, method, interval_seconds, enabled
		FROM health_checks WHERE enabled = 1 ORDER BY seq`)
}

// LoadAll returns all health checks in insertion order.
func (s *SQLiteStore) LoadAll(ctx context.Context) ([]HealthCheck, error) {
	return s.queryChecks(ctx, `SELECT id, name, url, method, interval_seconds, enabled
		FROM health_checks ORDER BY seq`)
}

func (s *SQLiteStore) queryChecks(ctx context.Context, query string) ([]HealthCheck, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list health checks: %w", err)
	}
	defer rows.Close()

	var checks []HealthCheck
	for rows.Next() {
		var hc HealthCheck
		if err := rows.Scan(&hc.ID, &hc.Name, &hc.URL, &hc.Method, &hc.IntervalSeconds, &hc.Enabled); err != nil {
			return nil, fmt.Errorf("list health checks: failed to scan row: %w", err)
		}
		checks = append(checks, hc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list health checks: row iteration error: %w", err)
	}
	return checks, nil
}

// Persist upserts hc by ID.
func (s *SQLiteStore) Persist(ctx context.Context, hc HealthCheck) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO health_checks (id, name, url, method, interval_seconds, enabled)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			url = excluded.url,
			method = excluded.method,
			interval_seconds = excluded.interval_seconds,
			enabled = excluded.enabled`,
		hc.ID, hc.Name, hc.URL, hc.Method, hc.IntervalSeconds, hc.Enabled,
	)
	if err != nil {
		return fmt.Errorf("persist health check %s: %w", hc.ID, err)
	}
	return nil
}

// Remove deletes the health check with the given ID.
func (s *SQLiteStore) Remove(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM health_checks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("remove health check %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// Record upserts the event's triple in a single statement.
func (s *SQLiteStore) Record(ctx context.Context, ev Event) (Notification, error) {
	ts := eventTime(ev, time.Now)

	row := s.db.QueryRowContext(ctx,
		`INSERT INTO notifications (id, dedup_key, source, title, message, repository, sender, timestamp, status, count)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 'UNREAD', 1)
		 ON CONFLICT (dedup_key) DO UPDATE SET
			count = notifications.count + 1,
			timestamp = excluded.timestamp,
			status = 'UNREAD'
		 RETURNING `+notificationColumns,
		uuid.NewString(), dedupKey(ev), ev.Source, ev.Title, ev.Message, ev.Repository, ev.Sender, ts.UnixNano(),
	)

	n, err := scanSQLiteNotification(row)
	if err != nil {
		return Notification{}, fmt.Errorf("record notification: %w", err)
	}

	s.publish(Change{Type: ChangeRecorded, Notification: n})
	return n, nil
}

// List returns all notifications, most recent first.
func (s *SQLiteStore) List(ctx context.Context) ([]Notification, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+notificationColumns+` FROM notifications ORDER BY timestamp DESC, seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	ns := []Notification{}
	for rows.Next() {
		n, err := scanSQLiteNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("list notifications: failed to scan row: %w", err)
		}
		ns = append(ns, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list notifications: row iteration error: %w", err)
	}
	return ns, nil
}

// MarkRead sets the notification's status to READ.
func (s *SQLiteStore) MarkRead(ctx context.Context, id string) error {
	row := s.db.QueryRowContext(ctx,
		`UPDATE notifications SET status = 'READ' WHERE id = ? RETURNING `+notificationColumns, id)

	n, err := scanSQLiteNotification(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("mark notification %s read: %w", id, err)
	}

	s.publish(Change{Type: ChangeRead, Notification: n})
	return nil
}

// Delete removes the notification with the given ID.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	row := s.db.QueryRowContext(ctx,
		`DELETE FROM notifications WHERE id = ? RETURNING `+notificationColumns, id)

	n, err := scanSQLiteNotification(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("delete notification %s: %w", id, err)
	}

	s.publish(Change{Type: ChangeDeleted, Notification: n})
	return nil
}

// Clear removes every notification.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM notifications`); err != nil {
		return fmt.Errorf("clear notifications: %w", err)
	}
	s.publish(Change{Type: ChangeCleared})
	return nil
}

func scanSQLiteNotification(row rowScanner) (Notification, error) {
	var (
		n      Notification
		status string
		nanos  int64
	)
	err := row.Scan(&n.ID, &n.Source, &n.Title, &n.Message, &n.Repository, &n.Sender, &nanos, &status, &n.Count)
	if err != nil {
		return Notification{}, err
	}
	n.Timestamp = time.Unix(0, nanos)
	n.Status = ReadState(status)
	return n, nil
}
