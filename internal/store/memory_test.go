package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestNewMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	if store == nil {
		t.Fatal("NewMemoryStore() = nil")
	}

	all, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 0 {
		t.Errorf("List() = %v items, want 0", len(all))
	}
}

func TestMemoryStore_RecordNew(t *testing.T) {
	store := NewMemoryStore()
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	n, err := store.Record(context.Background(), Event{
		Source:     "HealthCheck",
		Title:      "Billing API - WARNING",
		Message:    "Unexpected status code: 503",
		Repository: "https://billing.example.com/health",
		Sender:     "System",
		Timestamp:  ts,
	})
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	if n.ID == "" {
		t.Error("Record() ID is empty")
	}
	if n.Count != 1 {
		t.Errorf("Count = %v, want 1", n.Count)
	}
	if n.Status != StatusUnread {
		t.Errorf("Status = %v, want %v", n.Status, StatusUnread)
	}
	if !n.Timestamp.Equal(ts) {
		t.Errorf("Timestamp = %v, want %v", n.Timestamp, ts)
	}
	if n.Repository != "https://billing.example.com/health" {
		t.Errorf("Repository = %v, want %v", n.Repository, "https://billing.example.com/health")
	}
}

func TestMemoryStore_RecordDefaultsTimestamp(t *testing.T) {
	store := NewMemoryStore()
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return fixed }

	n, _ := store.Record(context.Background(), Event{Source: "s", Title: "t", Message: "m"})
	if !n.Timestamp.Equal(fixed) {
		t.Errorf("Timestamp = %v, want %v", n.Timestamp, fixed)
	}
}

func TestMemoryStore_RecordDuplicateIncrements(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	ev := Event{Source: "GitHub", Title: "Push", Message: "3 commits"}

	first, _ := store.Record(ctx, ev)
	var last Notification
	for i := 0; i < 4; i++ {
		last, _ = store.Record(ctx, ev)
	}

	if last.ID != first.ID {
		t.Errorf("duplicate ID = %v, want %v", last.ID, first.ID)
	}
	if last.Count != 5 {
		t.Errorf("Count = %v, want 5", last.Count)
	}

	all, _ := store.List(ctx)
	if len(all) != 1 {
		t.Fatalf("List() = %v items, want 1", len(all))
	}
	if all[0].Count != 5 {
		t.Errorf("List()[0].Count = %v, want 5", all[0].Count)
	}
}

func TestMemoryStore_RecordIsExactMatch(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	store.Record(ctx, Event{Source: "GitHub", Title: "Push", Message: "m"})
	store.Record(ctx, Event{Source: "github", Title: "Push", Message: "m"})
	store.Record(ctx, Event{Source: "GitHub", Title: "Push ", Message: "m"})

	all, _ := store.List(ctx)
	if len(all) != 3 {
		t.Errorf("List() = %v items, want 3", len(all))
	}
}

func TestMemoryStore_RecordResetsReadState(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	ev := Event{Source: "HealthCheck", Title: "API - WARNING", Message: "Unexpected status code: 503"}

	n, _ := store.Record(ctx, ev)
	if err := store.MarkRead(ctx, n.ID); err != nil {
		t.Fatalf("MarkRead() error = %v", err)
	}

	all, _ := store.List(ctx)
	if all[0].Status != StatusRead {
		t.Fatalf("Status after MarkRead = %v, want %v", all[0].Status, StatusRead)
	}

	again, _ := store.Record(ctx, ev)
	if again.Status != StatusUnread {
		t.Errorf("Status after repeat = %v, want %v", again.Status, StatusUnread)
	}
	if again.Count != 2 {
		t.Errorf("Count after repeat = %v, want 2", again.Count)
	}
}

func TestMemoryStore_ListOrdering(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	store.Record(ctx, Event{Source: "s", Title: "old", Message: "m", Timestamp: base})
	store.Record(ctx, Event{Source: "s", Title: "new", Message: "m", Timestamp: base.Add(time.Hour)})
	store.Record(ctx, Event{Source: "s", Title: "tie-a", Message: "m", Timestamp: base.Add(time.Minute)})
	store.Record(ctx, Event{Source: "s", Title: "tie-b", Message: "m", Timestamp: base.Add(time.Minute)})

	all, _ := store.List(ctx)
	want := []string{"new", "tie-a", "tie-b", "old"}
	if len(all) != len(want) {
		t.Fatalf("List() = %v items, want %v", len(all), len(want))
	}
	for i, title := range want {
		if all[i].Title != title {
			t.Errorf("List()[%d].Title = %v, want %v", i, all[i].Title, title)
		}
	}
}

func TestMemoryStore_RepeatWithOlderTimestampRepositions(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	store.Record(ctx, Event{Source: "s", Title: "a", Message: "m", Timestamp: base.Add(2 * time.Hour)})
	store.Record(ctx, Event{Source: "s", Title: "b", Message: "m", Timestamp: base.Add(time.Hour)})

	// repeat of "a" carrying an older timestamp moves it below "b"
	n, _ := store.Record(ctx, Event{Source: "s", Title: "a", Message: "m", Timestamp: base})
	if !n.Timestamp.Equal(base) {
		t.Errorf("Timestamp = %v, want %v", n.Timestamp, base)
	}

	all, _ := store.List(ctx)
	if all[0].Title != "b" || all[1].Title != "a" {
		t.Errorf("List() order = [%v %v], want [b a]", all[0].Title, all[1].Title)
	}
}

func TestMemoryStore_ConcurrentRecordSameTriple(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	ev := Event{Source: "HealthCheck", Title: "API - FAILED", Message: "Service unreachable: connection refused"}

	const writers = 100
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Record(ctx, ev); err != nil {
				t.Errorf("Record() error = %v", err)
			}
		}()
	}
	wg.Wait()

	all, _ := store.List(ctx)
	if len(all) != 1 {
		t.Fatalf("List() = %v items, want 1", len(all))
	}
	if all[0].Count != writers {
		t.Errorf("Count = %v, want %v", all[0].Count, writers)
	}
}

func TestMemoryStore_ConcurrentRecordDistinctTriples(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				store.Record(ctx, Event{Source: "s", Title: string(rune('a' + i)), Message: "m"})
			}
		}(i)
	}
	wg.Wait()

	all, _ := store.List(ctx)
	if len(all) != 10 {
		t.Fatalf("List() = %v items, want 10", len(all))
	}
	for _, n := range all {
		if n.Count != 50 {
			t.Errorf("%s Count = %v, want 50", n.Title, n.Count)
		}
	}
}

func TestMemoryStore_MarkReadNotFound(t *testing.T) {
	store := NewMemoryStore()

	err := store.MarkRead(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("MarkRead() error = %v, want %v", err, ErrNotFound)
	}
}

func TestMemoryStore_Delete(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	ev := Event{Source: "s", Title: "t", Message: "m"}

	n, _ := store.Record(ctx, ev)
	store.Record(ctx, ev)

	if err := store.Delete(ctx, n.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := store.Delete(ctx, n.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete() error = %v, want %v", err, ErrNotFound)
	}
	if err := store.MarkRead(ctx, n.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("MarkRead() after Delete error = %v, want %v", err, ErrNotFound)
	}

	// the same triple starts over with a fresh record
	again, _ := store.Record(ctx, ev)
	if again.ID == n.ID {
		t.Error("Record() after Delete reused the deleted ID")
	}
	if again.Count != 1 {
		t.Errorf("Count after Delete = %v, want 1", again.Count)
	}
}

func TestMemoryStore_Clear(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	store.Record(ctx, Event{Source: "s", Title: "a", Message: "m"})
	store.Record(ctx, Event{Source: "s", Title: "b", Message: "m"})

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}

	all, _ := store.List(ctx)
	if len(all) != 0 {
		t.Errorf("List() after Clear = %v items, want 0", len(all))
	}

	// clearing an empty store is fine
	if err := store.Clear(ctx); err != nil {
		t.Errorf("Clear() on empty store error = %v", err)
	}
}

func TestMemoryStore_Subscribe(t *testing.T) {
	store := NewMemoryStore()

	ch := store.Subscribe()
	if ch == nil {
		t.Fatal("Subscribe() = nil")
	}

	go func() {
		store.Record(context.Background(), Event{Source: "s", Title: "Test", Message: "m"})
	}()

	select {
	case c := <-ch:
		if c.Type != ChangeRecorded {
			t.Errorf("received Type = %v, want %v", c.Type, ChangeRecorded)
		}
		if c.Notification.Title != "Test" {
			t.Errorf("received Title = %v, want %v", c.Notification.Title, "Test")
		}
	case <-time.After(1 * time.Second):
		t.Error("Subscribe() channel did not receive change")
	}
}

func TestMemoryStore_SubscribeSeesEveryMutation(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	ch := store.Subscribe()

	n, _ := store.Record(ctx, Event{Source: "s", Title: "t", Message: "m"})
	store.MarkRead(ctx, n.ID)
	store.Delete(ctx, n.ID)
	store.Clear(ctx)

	want := []ChangeType{ChangeRecorded, ChangeRead, ChangeDeleted, ChangeCleared}
	for i, typ := range want {
		select {
		case c := <-ch:
			if c.Type != typ {
				t.Errorf("change[%d].Type = %v, want %v", i, c.Type, typ)
			}
		case <-time.After(1 * time.Second):
			t.Fatalf("change[%d] not received", i)
		}
	}
}

func TestMemoryStore_Unsubscribe(t *testing.T) {
	store := NewMemoryStore()

	ch := store.Subscribe()
	store.Unsubscribe(ch)

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("Unsubscribe() channel should be closed")
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("Unsubscribe() channel should be closed immediately")
	}

	// second call is a no-op
	store.Unsubscribe(ch)
}

func TestMemoryStore_SlowSubscriberDoesNotBlock(t *testing.T) {
	store := NewMemoryStore()

	// create a subscriber but don't read from it
	_ = store.Subscribe()

	done := make(chan bool)
	go func() {
		for i := 0; i < 200; i++ {
			store.Record(context.Background(), Event{Source: "s", Title: "t", Message: "m"})
		}
		done <- true
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Error("Record() blocked on slow subscriber")
	}
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	numGoroutines := 10
	numOps := 100

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < numOps; j++ {
				n, _ := store.Record(ctx, Event{Source: "s", Title: "t", Message: "m"})
				if j%10 == 0 {
					store.Delete(ctx, n.ID)
				}
			}
		}()
	}

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < numOps; j++ {
				_, _ = store.List(ctx)
			}
		}()
	}

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ch := store.Subscribe()
			time.Sleep(10 * time.Millisecond)
			store.Unsubscribe(ch)
		}()
	}

	wg.Wait()

	all, _ := store.List(ctx)
	if len(all) > 1 {
		t.Errorf("List() = %v items, want at most 1", len(all))
	}
}

func TestMemoryStore_ConcurrentRecordChangesInCountOrder(t *testing.T) {
	const writers = 50 // below the subscriber buffer, so nothing is dropped

	for round := 0; round < 20; round++ {
		store := NewMemoryStore()
		ch := store.Subscribe()

		var wg sync.WaitGroup
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = store.Record(context.Background(), Event{Source: "s", Title: "t", Message: "m"})
			}()
		}
		wg.Wait()
		store.Unsubscribe(ch)

		want := 1
		for c := range ch {
			if c.Notification.Count != want {
				t.Fatalf("round %d: change count = %d, want %d", round, c.Notification.Count, want)
			}
			want++
		}
		if want != writers+1 {
			t.Fatalf("round %d: received %d changes, want %d", round, want-1, writers)
		}
	}
}

func TestMemoryStore_RecordAfterClearPublishedAfterCleared(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	ev := Event{Source: "s", Title: "t", Message: "m"}

	if _, err := store.Record(ctx, ev); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	ch := store.Subscribe()
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if _, err := store.Record(ctx, ev); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	store.Unsubscribe(ch)

	var got []ChangeType
	var last Change
	for c := range ch {
		got = append(got, c.Type)
		last = c
	}
	if len(got) != 2 || got[0] != ChangeCleared || got[1] != ChangeRecorded {
		t.Fatalf("changes = %v, want [cleared recorded]", got)
	}
	if last.Notification.Count != 1 {
		t.Errorf("Count after clear = %d, want 1", last.Notification.Count)
	}
}
