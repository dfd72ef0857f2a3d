// Package gcp is a notification transport over Google Cloud Pub/Sub. Every
// instance receives through a subscription of its own.
package gcp

import (
	"context"
	"sync"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"

	"url-rewrite/internal/common/errors"
	"url-rewrite/internal/common/logging"
)

type Transport struct {
	config *Config
	client *pubsub.Client
	topic  *pubsub.Topic
	logger logging.Logger

	mu  sync.Mutex
	sub *pubsub.Subscription
}

func NewTransport(ctx context.Context, config *Config, logger logging.Logger) (*Transport, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigError("invalid gcp bus config: " + err.Error())
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	var opts []option.ClientOption
	if config.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(config.CredentialsFile))
	}

	client, err := pubsub.NewClient(ctx, config.ProjectID, opts...)
	if err != nil {
		return nil, errors.ConnectionError("failed to create Pub/Sub client", err)
	}

	topic := client.Topic(config.TopicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		client.Close()
		return nil, errors.ConnectionError("failed to check topic existence", err)
	}
	if !exists {
		client.Close()
		return nil, errors.ConfigError("Pub/Sub topic " + config.TopicID + " does not exist")
	}

	return &Transport{
		config: config,
		client: client,
		topic:  topic,
		logger: logger.WithFields(
			logging.Field{"transport", "gcp"},
			logging.Field{"topic", config.GetConnectionString()},
		),
	}, nil
}

func (t *Transport) Name() string { return "gcp" }

func (t *Transport) Publish(ctx context.Context, body []byte) error {
	result := t.topic.Publish(ctx, &pubsub.Message{Data: body})
	id, err := result.Get(ctx)
	if err != nil {
		return errors.ConnectionError("failed to publish to Pub/Sub", err)
	}
	t.logger.Debug("Published to Pub/Sub", logging.Field{"message_id", id})
	return nil
}

func (t *Transport) subscription(ctx context.Context) (*pubsub.Subscription, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sub != nil {
		return t.sub, nil
	}

	sub := t.client.Subscription(t.config.SubscriptionID)
	exists, err := sub.Exists(ctx)
	if err != nil {
		return nil, errors.ConnectionError("failed to check subscription existence", err)
	}
	if !exists {
		if !t.config.CreateSubscription {
			return nil, errors.ConfigError("subscription " + t.config.SubscriptionID + " does not exist and auto-create is disabled")
		}
		sub, err = t.client.CreateSubscription(ctx, t.config.SubscriptionID, pubsub.SubscriptionConfig{
			Topic:       t.topic,
			AckDeadline: t.config.AckDeadline,
		})
		if err != nil {
			return nil, errors.ConnectionError("failed to create subscription", err)
		}
		t.logger.Info("Created Pub/Sub subscription", logging.Field{"subscription_id", t.config.SubscriptionID})
	}

	sub.ReceiveSettings.NumGoroutines = 1
	t.sub = sub
	return sub, nil
}

func (t *Transport) Subscribe(ctx context.Context, fn func(ctx context.Context, body []byte) error) error {
	sub, err := t.subscription(ctx)
	if err != nil {
		return err
	}

	go func() {
		err := sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
			if err := fn(ctx, msg.Data); err != nil {
				t.logger.Warn("Event handler failed",
					logging.Field{"message_id", msg.ID},
					logging.Err(err),
				)
			}
			msg.Ack()
		})
		if err != nil && ctx.Err() == nil {
			t.logger.Error("Pub/Sub receive stopped", err)
			return
		}
		t.logger.Info("Pub/Sub subscription cancelled")
	}()

	t.logger.Info("Subscribed to Pub/Sub", logging.Field{"subscription_id", t.config.SubscriptionID})
	return nil
}

func (t *Transport) Health(ctx context.Context) error {
	exists, err := t.topic.Exists(ctx)
	if err != nil {
		return errors.ConnectionError("Pub/Sub unreachable", err)
	}
	if !exists {
		return errors.ConnectionError("Pub/Sub topic "+t.config.TopicID+" is gone", nil)
	}
	return nil
}

func (t *Transport) Close() error {
	t.topic.Stop()
	return t.client.Close()
}
