package store

import (
	"context"
	"sync"
)

// MemorySpecStore is an in-memory [SpecStore]. It is the default when no
// durable backend is configured, so registrations do not survive a restart.
type MemorySpecStore struct {
	mu     sync.RWMutex
	checks map[string]HealthCheck
	order  []string
}

// NewMemorySpecStore creates an empty [MemorySpecStore].
func NewMemorySpecStore() *MemorySpecStore {
	return &MemorySpecStore{checks: make(map[string]HealthCheck)}
}

// LoadEnabled returns the enabled health checks in insertion order.
func (s *MemorySpecStore) LoadEnabled(_ context.Context) ([]HealthCheck, error) {
	return s.filter(func(hc HealthCheck) bool { return hc.Enabled }), nil
}

// LoadAll returns all health checks in insertion order.
func (s *MemorySpecStore) LoadAll(_ context.Context) ([]HealthCheck, error) {
	return s.filter(func(HealthCheck) bool { return true }), nil
}

// Persist inserts hc or replaces the stored check with the same ID,
// keeping its original position.
func (s *MemorySpecStore) Persist(_ context.Context, hc HealthCheck) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.checks[hc.ID]; !ok {
		s.order = append(s.order, hc.ID)
	}
	s.checks[hc.ID] = hc
	return nil
}

// Remove deletes the health check with the given ID.
func (s *MemorySpecStore) Remove(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.checks[id]; !ok {
		return ErrNotFound
	}
	delete(s.checks, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemorySpecStore) filter(keep func(HealthCheck) bool) []HealthCheck {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]HealthCheck, 0, len(s.order))
	for _, id := range s.order {
		if hc := s.checks[id]; keep(hc) {
			out = append(out, hc)
		}
	}
	return out
}
