package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// entry is one live record. Its mutex guards n and dead, so increments on
// different triples never contend beyond the brief map lookup.
type entry struct {
	key triple
	seq uint64

	mu   sync.Mutex
	n    Notification
	dead bool
}

// MemoryStore is an in-memory implementation of [NotificationStore].
//
// Records are indexed both by triple and by ID. The index maps are guarded
// by a read-write mutex held only for lookups and inserts; the
// read-modify-write of an existing record happens under that record's own
// mutex. A record removed by Delete or Clear is marked dead so a concurrent
// Record that already held a pointer to it retries against the index.
type MemoryStore struct {
	*broadcaster

	mu      sync.RWMutex
	byKey   map[triple]*entry
	byID    map[string]*entry
	nextSeq uint64

	now func() time.Time
}

// NewMemoryStore creates an empty [MemoryStore]. No cleanup is required.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		broadcaster: newBroadcaster(),
		byKey:       make(map[triple]*entry),
		byID:        make(map[string]*entry),
		now:         time.Now,
	}
}

// Record folds ev into the record for its triple, creating it on first
// occurrence.
func (m *MemoryStore) Record(_ context.Context, ev Event) (Notification, error) {
	key := tripleOf(ev)
	ts := eventTime(ev, m.now)

	for {
		m.mu.RLock()
		e := m.byKey[key]
		m.mu.RUnlock()

		if e == nil {
			var created bool
			e, created = m.insert(key, ev, ts)
			if created {
				// insert hands the new entry back locked so no increment
				// can be published ahead of its first occurrence
				n := e.n
				m.publish(Change{Type: ChangeRecorded, Notification: n})
				e.mu.Unlock()
				return n, nil
			}
			// another writer created it first; fold into theirs
		}

		e.mu.Lock()
		if e.dead {
			e.mu.Unlock()
			continue
		}
		e.n.Count++
		e.n.Timestamp = ts
		e.n.Status = StatusUnread
		n := e.n
		m.publish(Change{Type: ChangeRecorded, Notification: n})
		e.mu.Unlock()

		return n, nil
	}
}

// insert creates the record for key unless one appeared since the caller's
// lookup. The boolean reports whether a new record was created, in which
// case the entry is returned with its mutex held.
func (m *MemoryStore) insert(key triple, ev Event, ts time.Time) (*entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.byKey[key]; ok {
		return e, false
	}

	m.nextSeq++
	e := &entry{
		key: key,
		seq: m.nextSeq,
		n: Notification{
			ID:         uuid.NewString(),
			Source:     ev.Source,
			Title:      ev.Title,
			Message:    ev.Message,
			Repository: ev.Repository,
			Sender:     ev.Sender,
			Timestamp:  ts,
			Status:     StatusUnread,
			Count:      1,
		},
	}
	e.mu.Lock()
	m.byKey[key] = e
	m.byID[e.n.ID] = e
	return e, true
}

// List returns a snapshot of all records, most recent first.
func (m *MemoryStore) List(_ context.Context) ([]Notification, error) {
	m.mu.RLock()
	entries := make([]*entry, 0, len(m.byID))
	for _, e := range m.byID {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	ns := make([]Notification, 0, len(entries))
	seq := make([]uint64, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if !e.dead {
			ns = append(ns, e.n)
			seq = append(seq, e.seq)
		}
		e.mu.Unlock()
	}

	sortNotifications(ns, seq)
	return ns, nil
}

// MarkRead acknowledges the record with the given ID.
func (m *MemoryStore) MarkRead(_ context.Context, id string) error {
	m.mu.RLock()
	e := m.byID[id]
	m.mu.RUnlock()
	if e == nil {
		return ErrNotFound
	}

	e.mu.Lock()
	if e.dead {
		e.mu.Unlock()
		return ErrNotFound
	}
	e.n.Status = StatusRead
	m.publish(Change{Type: ChangeRead, Notification: e.n})
	e.mu.Unlock()

	return nil
}

// Delete removes the record with the given ID.
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	e := m.byID[id]
	if e == nil {
		m.mu.Unlock()
		return ErrNotFound
	}
	delete(m.byID, id)
	delete(m.byKey, e.key)

	e.mu.Lock()
	e.dead = true
	m.publish(Change{Type: ChangeDeleted, Notification: e.n})
	e.mu.Unlock()
	m.mu.Unlock()

	return nil
}

// Clear removes every record.
func (m *MemoryStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.byID {
		e.mu.Lock()
		e.dead = true
		e.mu.Unlock()
	}
	m.byID = make(map[string]*entry)
	m.byKey = make(map[triple]*entry)

	// published under the index lock so a record created after the clear
	// cannot reach subscribers before it
	m.publish(Change{Type: ChangeCleared})
	return nil
}
