package bus

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"campus-notify-go/internal/protocol"
)

const eventsChannel = "notify:events"

// RedisBus carries notification events over a single Redis pub/sub
// channel. Every node subscribes and filters by recipient when routing
// to its local sessions.
type RedisBus struct {
	client *redis.Client
	log    zerolog.Logger
}

func NewRedisBus(opts *redis.Options, log zerolog.Logger) *RedisBus {
	return &RedisBus{
		client: redis.NewClient(opts),
		log:    log.With().Str("component", "bus").Logger(),
	}
}

func (b *RedisBus) Publish(ctx context.Context, recipientID int, event protocol.Event) error {
	data, err := protocol.EncodeEnvelope(recipientID, event)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, eventsChannel, data).Err()
}

// Run subscribes to the events channel and routes every decoded envelope
// to deliver. Malformed messages are dropped and logged; they never reach
// a session.
func (b *RedisBus) Run(ctx context.Context, deliver DeliverFunc) error {
	pubsub := b.client.Subscribe(ctx, eventsChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			env, err := protocol.DecodeEnvelope([]byte(msg.Payload))
			if err != nil {
				b.log.Warn().Err(err).Msg("dropping malformed bus message")
				continue
			}
			deliver(env.RecipientID, env.Event)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close releases the Redis client.
func (b *RedisBus) Close() error {
	return b.client.Close()
}
