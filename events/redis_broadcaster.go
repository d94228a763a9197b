package events

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const DefaultChannel = "inventory:events"

// RedisBroadcaster shares events between service instances over Redis Pub/Sub.
type RedisBroadcaster struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

func NewRedisBroadcaster(client *redis.Client, channel string, logger *zap.Logger) *RedisBroadcaster {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisBroadcaster{client: client, channel: channel, logger: logger}
}

func (r *RedisBroadcaster) Name() string { return "redis" }

func (r *RedisBroadcaster) Send(ctx context.Context, evt Event) error {
	data, err := Marshal(evt)
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("redis publish to %s failed: %w", r.channel, err)
	}
	return nil
}

// Listen receives events published by other instances and passes them to
// handle. Events from origin (this instance) are skipped. Blocks until ctx is
// cancelled or the subscription fails.
func (r *RedisBroadcaster) Listen(ctx context.Context, origin string, handle func(Event)) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to %s failed: %w", r.channel, err)
	}
	r.logger.Info("Listening for inventory events", zap.String("channel", r.channel))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			evt, err := Decode([]byte(msg.Payload))
			if err != nil {
				r.logger.Warn("Ignoring malformed inventory event", zap.Error(err))
				continue
			}
			if evt.Origin == origin {
				continue
			}
			handle(evt)
		}
	}
}
