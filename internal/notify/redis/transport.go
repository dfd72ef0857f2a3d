// Package redis is a notification transport over Redis PUBLISH/SUBSCRIBE.
// Every subscribed instance receives every event.
package redis

import (
	"context"
	"sync"

	"github.com/go-redis/redis/v8"

	"url-rewrite/internal/common/errors"
	"url-rewrite/internal/common/logging"
)

// Transport publishes to and subscribes on one channel of a shared client.
// The client is owned by the caller and is not closed by Close.
type Transport struct {
	client  *redis.Client
	channel string
	logger  logging.Logger

	mu   sync.Mutex
	subs []*redis.PubSub
}

func NewTransport(client *redis.Client, channel string, logger logging.Logger) (*Transport, error) {
	if client == nil {
		return nil, errors.ConfigError("redis client is required for the redis bus")
	}
	if channel == "" {
		return nil, errors.ConfigError("redis bus channel is required")
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Transport{
		client:  client,
		channel: channel,
		logger: logger.WithFields(
			logging.Field{"transport", "redis"},
			logging.Field{"channel", channel},
		),
	}, nil
}

func (t *Transport) Name() string { return "redis" }

func (t *Transport) Publish(ctx context.Context, body []byte) error {
	if err := t.client.Publish(ctx, t.channel, body).Err(); err != nil {
		return errors.ConnectionError("failed to publish to Redis channel", err)
	}
	return nil
}

// Subscribe confirms the subscription before returning, then delivers
// messages on a goroutine until ctx ends
func (t *Transport) Subscribe(ctx context.Context, fn func(ctx context.Context, body []byte) error) error {
	ps := t.client.Subscribe(ctx, t.channel)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return errors.ConnectionError("failed to subscribe to Redis channel", err)
	}

	t.mu.Lock()
	t.subs = append(t.subs, ps)
	t.mu.Unlock()

	messages := ps.Channel()
	go func() {
		defer ps.Close()
		for {
			select {
			case <-ctx.Done():
				t.logger.Info("Redis subscription cancelled", logging.Field{"reason", ctx.Err().Error()})
				return
			case msg, ok := <-messages:
				if !ok {
					t.logger.Info("Redis subscription closed")
					return
				}
				if err := fn(ctx, []byte(msg.Payload)); err != nil {
					t.logger.Warn("Event handler failed", logging.Err(err))
				}
			}
		}
	}()

	t.logger.Info("Subscribed to Redis channel")
	return nil
}

func (t *Transport) Health(ctx context.Context) error {
	if err := t.client.Ping(ctx).Err(); err != nil {
		return errors.ConnectionError("redis bus unreachable", err)
	}
	return nil
}

// Close ends every subscription opened through the transport
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, ps := range t.subs {
		ps.Close()
	}
	t.subs = nil
	return nil
}
