package relay

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jpalmerr/conflux"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewRedisPublisher_DefaultChannel(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()

	p := NewRedisPublisher(client, "", testLogger())
	if p.channel != DefaultChannel {
		t.Errorf("channel = %v, want %v", p.channel, DefaultChannel)
	}
}

func TestRedisPublisher_NotifyNeverBlocks(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()

	p := NewRedisPublisher(client, "test", testLogger())

	done := make(chan struct{})
	go func() {
		// nothing drains the queue
		for i := 0; i < queueSize*2; i++ {
			p.Notify(conflux.Notification{ID: "n"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify() blocked with a full queue")
	}
	if len(p.queue) != queueSize {
		t.Errorf("queue length = %v, want %v", len(p.queue), queueSize)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := Connect(ctx, &redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1}, "test", testLogger())
	if err == nil {
		t.Error("Connect() error = nil, want connection failure")
	}
}

// Integration test against a real server:
//
//	CONFLUX_TEST_REDIS_ADDR=localhost:6379 go test ./internal/relay
func TestRedisPublisher_Integration(t *testing.T) {
	addr := os.Getenv("CONFLUX_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("CONFLUX_TEST_REDIS_ADDR not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	p, err := Connect(ctx, &redis.Options{Addr: addr}, "conflux:test", testLogger())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer p.Close()

	sub := p.client.Subscribe(ctx, "conflux:test")
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	runCtx, stop := context.WithCancel(ctx)
	go p.Run(runCtx)
	defer stop()

	p.Notify(conflux.Notification{ID: "abc", Source: "GitHub", Title: "Push", Count: 2})

	select {
	case msg := <-sub.Channel():
		var m Message
		if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if m.Notification.ID != "abc" || m.Notification.Count != 2 {
			t.Errorf("message = %+v, want id abc count 2", m)
		}
	case <-ctx.Done():
		t.Fatal("no message received")
	}
}
