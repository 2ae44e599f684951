// Package relay republishes recorded notifications to Redis pub/sub so
// other processes can react to them without polling the API.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jpalmerr/conflux"
)

const (
	// DefaultChannel is used when no channel is configured.
	DefaultChannel = "conflux:notifications"

	queueSize      = 256
	publishTimeout = 5 * time.Second
)

// Message is the JSON payload published for every recorded notification.
type Message struct {
	Type         string               `json:"type"`
	Notification conflux.Notification `json:"notification"`
}

// RedisPublisher publishes notifications on a Redis channel.
//
// [RedisPublisher.Notify] only enqueues, so it is safe to use as a conflux
// notification callback on the probe path; a background worker started by
// [RedisPublisher.Run] does the network I/O. When the queue is full new
// notifications are dropped and logged.
type RedisPublisher struct {
	client  *redis.Client
	channel string
	logger  *slog.Logger
	queue   chan conflux.Notification
}

// Connect creates a client for opts and verifies it with PING.
func Connect(ctx context.Context, opts *redis.Options, channel string, logger *slog.Logger) (*RedisPublisher, error) {
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}

	logger.Info("connected to redis", "addr", opts.Addr, "channel", channel)
	return NewRedisPublisher(client, channel, logger), nil
}

// NewRedisPublisher wraps an existing client. An empty channel means
// [DefaultChannel].
func NewRedisPublisher(client *redis.Client, channel string, logger *slog.Logger) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisPublisher{
		client:  client,
		channel: channel,
		logger:  logger,
		queue:   make(chan conflux.Notification, queueSize),
	}
}

// Notify enqueues n for publishing. It never blocks.
func (p *RedisPublisher) Notify(n conflux.Notification) {
	select {
	case p.queue <- n:
	default:
		p.logger.Warn("redis relay queue full, dropping notification", "notification_id", n.ID)
	}
}

// Run publishes queued notifications until ctx is cancelled, then flushes
// whatever is already queued and returns.
func (p *RedisPublisher) Run(ctx context.Context) error {
	for {
		select {
		case n := <-p.queue:
			p.publish(ctx, n)
		case <-ctx.Done():
			p.flush()
			return nil
		}
	}
}

func (p *RedisPublisher) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	for {
		select {
		case n := <-p.queue:
			p.publish(ctx, n)
		default:
			return
		}
	}
}

func (p *RedisPublisher) publish(ctx context.Context, n conflux.Notification) {
	if err := p.Publish(ctx, n); err != nil {
		p.logger.Error("failed to publish notification", "notification_id", n.ID, "error", err)
	}
}

// Publish sends n immediately.
func (p *RedisPublisher) Publish(ctx context.Context, n conflux.Notification) error {
	data, err := json.Marshal(Message{Type: "recorded", Notification: n})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("redis publish to %s: %w", p.channel, err)
	}
	return nil
}

// Close releases the Redis client. Call it after Run has returned.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
