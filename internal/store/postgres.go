package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS health_checks (
	seq              BIGSERIAL,
	id               TEXT PRIMARY KEY,
	name             TEXT NOT NULL,
	url              TEXT NOT NULL,
	method           TEXT NOT NULL DEFAULT 'GET',
	interval_seconds INTEGER NOT NULL DEFAULT 60,
	enabled          BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS notifications (
	seq        BIGSERIAL,
	id         TEXT PRIMARY KEY,
	dedup_key  TEXT NOT NULL UNIQUE,
	source     TEXT NOT NULL,
	title      TEXT NOT NULL,
	message    TEXT NOT NULL,
	repository TEXT NOT NULL DEFAULT '',
	sender     TEXT NOT NULL DEFAULT '',
	timestamp  TIMESTAMPTZ NOT NULL,
	status     TEXT NOT NULL DEFAULT 'UNREAD',
	count      INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_notifications_timestamp ON notifications(timestamp DESC, seq);
`

const notificationColumns = `id, source, title, message, repository, sender, timestamp, status, count`

// PostgresStore persists health checks and notifications in PostgreSQL.
//
// It implements both [SpecStore] and [NotificationStore]. Deduplication
// relies on a unique dedup_key column and a single
// INSERT ... ON CONFLICT DO UPDATE statement, so concurrent writers on
// different processes are coalesced by the database.
type PostgresStore struct {
	*broadcaster
	pool *pgxpool.Pool
}

// ConnectPostgres opens a pool, verifies connectivity and creates the
// schema if needed.
func ConnectPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	s := NewPostgresStore(pool)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStore wraps an existing pool. Call [PostgresStore.Migrate]
// before use if the schema may be missing.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{broadcaster: newBroadcaster(), pool: pool}
}

// Migrate creates the tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to migrate postgres schema: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// --- SpecStore ---

// LoadEnabled returns enabled health checks in insertion order.
func (s *PostgresStore) LoadEnabled(ctx context.Context) ([]HealthCheck, error) {
	return s.queryChecks(ctx, `SELECT id, name, url, method, interval_seconds, enabled
		FROM health_checks WHERE enabled ORDER BY seq`)
}

// LoadAll returns all health checks in insertion order.
func (s *PostgresStore) LoadAll(ctx context.Context) ([]HealthCheck, error) {
	return s.queryChecks(ctx, `SELECT id, name, url, method, interval_seconds, enabled
		FROM health_checks ORDER BY seq`)
}

func (s *PostgresStore) queryChecks(ctx context.Context, query string) ([]HealthCheck, error) {
	rows, err := s.pool.Query(ctx, query)
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
func (s *PostgresStore) Persist(ctx context.Context, hc HealthCheck) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO health_checks (id, name, url, method, interval_seconds, enabled)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			url = EXCLUDED.url,
			method = EXCLUDED.method,
			interval_seconds = EXCLUDED.interval_seconds,
			enabled = EXCLUDED.enabled`,
		hc.ID, hc.Name, hc.URL, hc.Method, hc.IntervalSeconds, hc.Enabled,
	)
	if err != nil {
		return fmt.Errorf("persist health check %s: %w", hc.ID, err)
	}
	return nil
}

// Remove deletes the health check with the given ID.
func (s *PostgresStore) Remove(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM health_checks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("remove health check %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- NotificationStore ---

// Record upserts the event's triple in a single statement.
func (s *PostgresStore) Record(ctx context.Context, ev Event) (Notification, error) {
	ts := eventTime(ev, time.Now).UTC()

	row := s.pool.QueryRow(ctx,
		`INSERT INTO notifications (id, dedup_key, source, title, message, repository, sender, timestamp, status, count)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'UNREAD', 1)
		 ON CONFLICT (dedup_key) DO UPDATE SET
			count = notifications.count + 1,
			timestamp = EXCLUDED.timestamp,
			status = 'UNREAD'
		 RETURNING `+notificationColumns,
		uuid.NewString(), dedupKey(ev), ev.Source, ev.Title, ev.Message, ev.Repository, ev.Sender, ts,
	)

	n, err := scanNotification(row)
	if err != nil {
		return Notification{}, fmt.Errorf("record notification: %w", err)
	}

	s.publish(Change{Type: ChangeRecorded, Notification: n})
	return n, nil
}

// List returns all notifications, most recent first.
func (s *PostgresStore) List(ctx context.Context) ([]Notification, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+notificationColumns+` FROM notifications ORDER BY timestamp DESC, seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	ns := []Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
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
func (s *PostgresStore) MarkRead(ctx context.Context, id string) error {
	row := s.pool.QueryRow(ctx,
		`UPDATE notifications SET status = 'READ' WHERE id = $1 RETURNING `+notificationColumns, id)

	n, err := scanNotification(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("mark notification %s read: %w", id, err)
	}

	s.publish(Change{Type: ChangeRead, Notification: n})
	return nil
}

// Delete removes the notification with the given ID.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	row := s.pool.QueryRow(ctx,
		`DELETE FROM notifications WHERE id = $1 RETURNING `+notificationColumns, id)

	n, err := scanNotification(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("delete notification %s: %w", id, err)
	}

	s.publish(Change{Type: ChangeDeleted, Notification: n})
	return nil
}

// Clear removes every notification.
func (s *PostgresStore) Clear(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM notifications`); err != nil {
		return fmt.Errorf("clear notifications: %w", err)
	}
	s.publish(Change{Type: ChangeCleared})
	return nil
}

// rowScanner is satisfied by pgx.Row, pgx.Rows and *sql.Row/*sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanNotification(row rowScanner) (Notification, error) {
	var (
		n      Notification
		status string
	)
	err := row.Scan(&n.ID, &n.Source, &n.Title, &n.Message, &n.Repository, &n.Sender, &n.Timestamp, &status, &n.Count)
	if err != nil {
		return Notification{}, err
	}
	n.Status = ReadState(status)
	return n, nil
}
