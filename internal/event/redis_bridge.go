package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/go-redis/redis/v8"
)

// RedisBridge relays JSON events published on a redis channel into a local
// Publisher. World servers that cannot hold a gateway connection publish
// here instead.
type RedisBridge struct {
	client  *redis.Client
	channel string
	target  Publisher
	logger  *slog.Logger
	ready   chan struct{}
}

// NewRedisBridge creates a bridge from channel to target.
func NewRedisBridge(client *redis.Client, channel string, target Publisher, logger *slog.Logger) *RedisBridge {
	return &RedisBridge{
		client:  client,
		channel: channel,
		target:  target,
		logger:  logger,
		ready:   make(chan struct{}),
	}
}

// Ready is closed once the subscription is confirmed by the server.
func (b *RedisBridge) Ready() <-chan struct{} {
	return b.ready
}

// Run subscribes and relays messages until ctx is cancelled. Malformed
// messages are logged and skipped.
func (b *RedisBridge) Run(ctx context.Context) error {
	pubsub := b.client.Subscribe(ctx, b.channel)
	defer func() {
		if err := pubsub.Close(); err != nil {
			b.logger.Error("Failed to close pubsub", "error", err)
		}
	}()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", b.channel, err)
	}
	close(b.ready)
	b.logger.Info("Event bridge subscribed", "channel", b.channel)

	msgChan := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgChan:
			if !ok {
				return nil
			}
			b.relay(ctx, msg.Payload)
		}
	}
}

func (b *RedisBridge) relay(ctx context.Context, payload string) {
	var ev Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		b.logger.Warn("Dropping malformed bridged event", "channel", b.channel, "error", err)
		return
	}
	if err := b.target.Publish(ctx, ev); err != nil {
		b.logger.Warn("Failed to relay bridged event",
			"kind", ev.Kind,
			"player", ev.PlayerID,
			"error", err,
		)
		return
	}
	b.logger.Debug("Bridged event", "kind", ev.Kind, "player", ev.PlayerID)
}

// PublishRedis encodes ev and publishes it on channel.
func PublishRedis(ctx context.Context, client *redis.Client, channel string, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}
