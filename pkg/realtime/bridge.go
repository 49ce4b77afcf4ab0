package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisBridge publishes change events on a redis channel and relays the channel into a hub,
// so every API replica notifies its own websocket clients.
type RedisBridge struct {
	client  *redis.Client
	channel string
	hub     *Hub
	logger  *zap.Logger
}

// NewRedisBridge builds a bridge. hub may be nil for publish-only processes.
func NewRedisBridge(client *redis.Client, channel string, hub *Hub, logger *zap.Logger) *RedisBridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	if channel == "" {
		channel = "ams_global_sync"
	}
	return &RedisBridge{client: client, channel: channel, hub: hub, logger: logger}
}

// Publish implements Publisher.
func (b *RedisBridge) Publish(ctx context.Context, event ChangeEvent) error {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode change event: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish change event: %w", err)
	}
	return nil
}

// Run relays channel messages into the hub until ctx is cancelled.
func (b *RedisBridge) Run(ctx context.Context) {
	if b.hub == nil {
		return
	}
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close() //nolint:errcheck

	b.logger.Info("realtime bridge subscribed", zap.String("channel", b.channel))
	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			var event ChangeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				b.logger.Warn("discarding malformed change event", zap.Error(err))
				continue
			}
			b.hub.Notify(event)
		}
	}
}
