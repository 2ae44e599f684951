package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// testNotificationStore runs the NotificationStore contract shared by the
// durable backends. The memory store has its own finer-grained tests.
func testNotificationStore(t *testing.T, s NotificationStore) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	ch := s.Subscribe()
	defer s.Unsubscribe(ch)

	ev := Event{
		Source:     "HealthCheck",
		Title:      "Billing API - WARNING",
		Message:    "Unexpected status code: 503",
		Repository: "https://billing.example.com/health",
		Sender:     "System",
		Timestamp:  base,
	}

	first, err := s.Record(ctx, ev)
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if first.Count != 1 || first.Status != StatusUnread {
		t.Errorf("Record() = count %v status %v, want 1 UNREAD", first.Count, first.Status)
	}
	if !first.Timestamp.Equal(base) {
		t.Errorf("Timestamp = %v, want %v", first.Timestamp, base)
	}

	select {
	case c := <-ch:
		if c.Type != ChangeRecorded || c.Notification.ID != first.ID {
			t.Errorf("change = %+v, want recorded %s", c, first.ID)
		}
	case <-time.After(time.Second):
		t.Error("no change published for Record()")
	}

	if err := s.MarkRead(ctx, first.ID); err != nil {
		t.Fatalf("MarkRead() error = %v", err)
	}

	ev.Timestamp = base.Add(time.Minute)
	second, err := s.Record(ctx, ev)
	if err != nil {
		t.Fatalf("Record() repeat error = %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("repeat ID = %v, want %v", second.ID, first.ID)
	}
	if second.Count != 2 || second.Status != StatusUnread {
		t.Errorf("repeat = count %v status %v, want 2 UNREAD", second.Count, second.Status)
	}

	other, _ := s.Record(ctx, Event{Source: "GitHub", Title: "Push", Message: "m", Timestamp: base.Add(time.Hour)})

	all, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 2 || all[0].ID != other.ID || all[1].ID != first.ID {
		t.Errorf("List() = %+v, want [%s %s]", all, other.ID, first.ID)
	}

	if err := s.MarkRead(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("MarkRead(missing) error = %v, want %v", err, ErrNotFound)
	}
	if err := s.Delete(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete(missing) error = %v, want %v", err, ErrNotFound)
	}
	if err := s.Delete(ctx, other.ID); err != nil {
		t.Errorf("Delete() error = %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Record(ctx, Event{Source: "s", Title: "burst", Message: "m"}); err != nil {
				t.Errorf("concurrent Record() error = %v", err)
			}
		}()
	}
	wg.Wait()

	all, _ = s.List(ctx)
	var burst *Notification
	for i := range all {
		if all[i].Title == "burst" {
			burst = &all[i]
		}
	}
	if burst == nil || burst.Count != 20 {
		t.Errorf("burst record = %+v, want Count 20", burst)
	}

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	all, _ = s.List(ctx)
	if len(all) != 0 {
		t.Errorf("List() after Clear = %v items, want 0", len(all))
	}
}

func TestMemoryStore_Contract(t *testing.T) {
	testNotificationStore(t, NewMemoryStore())
}
