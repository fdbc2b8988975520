package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"skillconnect/internal/domain"
	"skillconnect/internal/models"
)

// RedisBridge publishes realtime messages on a Redis channel so every
// instance delivers them to its own clients.
type RedisBridge struct {
	client  *redis.Client
	channel string
	local   domain.EventPublisher
	logger  *zerolog.Logger
}

func NewRedisBridge(client *redis.Client, channel string, local domain.EventPublisher, logger *zerolog.Logger) *RedisBridge {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &RedisBridge{client: client, channel: channel, local: local, logger: logger}
}

// Publish sends msg to all instances, this one included.
func (b *RedisBridge) Publish(ctx context.Context, msg *models.RealtimeMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal realtime message: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("publish realtime message: %w", err)
	}
	return nil
}

// Run relays messages from Redis to the local publisher until ctx is done.
func (b *RedisBridge) Run(ctx context.Context) error {
	pubsub := b.client.Subscribe(ctx, b.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}
	b.logger.Info().Str("channel", b.channel).Msg("Realtime bridge subscribed")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var msg models.RealtimeMessage
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				b.logger.Warn().Err(err).Msg("Invalid realtime payload")
				continue
			}
			if err := b.local.Publish(ctx, &msg); err != nil {
				b.logger.Error().Err(err).Str("event", msg.Event).Msg("Local delivery failed")
			}
		}
	}
}
