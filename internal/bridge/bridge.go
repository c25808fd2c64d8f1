package bridge

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/modalhub/modalhub/internal/ws"
)

// Bridge fans broadcast messages out across hub instances through a Redis
// pub/sub channel. Publish sends a broadcast to the channel; Run delivers
// every channel message to this instance's connected clients. An instance
// that both publishes and subscribes delivers its own broadcasts through
// the subscription, so callers should use Publish instead of calling the
// hub's Broadcast directly when the bridge is enabled.
type Bridge struct {
	rdb     *redis.Client
	channel string
	hub     *ws.Server
}

// New connects to Redis at addr and verifies the connection.
func New(ctx context.Context, addr, channel string, hub *ws.Server) (*Bridge, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("bridge: connect redis %s: %w", addr, err)
	}
	return &Bridge{rdb: rdb, channel: channel, hub: hub}, nil
}

// Publish sends msg to the broadcast channel for every instance to deliver.
func (b *Bridge) Publish(ctx context.Context, msg string) error {
	if err := b.rdb.Publish(ctx, b.channel, msg).Err(); err != nil {
		return fmt.Errorf("bridge: publish: %w", err)
	}
	return nil
}

// Run subscribes to the broadcast channel and re-broadcasts every payload
// to the local hub. It blocks until ctx is cancelled or the subscription
// fails.
func (b *Bridge) Run(ctx context.Context) {
	pubsub := b.rdb.Subscribe(ctx, b.channel)
	defer pubsub.Close()

	slog.Info("bridge: subscribed", "channel", b.channel)

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() == nil {
				slog.Error("bridge: receive failed", "err", err)
			}
			return
		}
		b.hub.Broadcast(ws.Text(msg.Payload))
	}
}

// Close releases the Redis connection.
func (b *Bridge) Close() error {
	return b.rdb.Close()
}
