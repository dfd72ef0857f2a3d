// Package rabbitmq is a notification transport over a RabbitMQ fanout
// exchange. Each subscription binds its own exclusive, auto-deleted queue so
// every instance receives every event.
package rabbitmq

import (
	"context"
	"sync"
	"time"

	"github.com/streadway/amqp"

	"url-rewrite/internal/common/errors"
	"url-rewrite/internal/common/logging"
)

// Transport holds one AMQP connection. Publishing shares a channel; each
// subscription opens its own.
type Transport struct {
	config *Config
	logger logging.Logger

	mu      sync.Mutex
	conn    *amqp.Connection
	publish *amqp.Channel
}

func NewTransport(config *Config, logger logging.Logger) (*Transport, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigError("invalid rabbitmq bus config: " + err.Error())
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	conn, err := amqp.Dial(config.URL)
	if err != nil {
		return nil, errors.ConnectionError("failed to connect to RabbitMQ", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, errors.ConnectionError("failed to open RabbitMQ channel", err)
	}
	if err := ch.ExchangeDeclare(config.Exchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, errors.InternalError("failed to declare exchange "+config.Exchange, err)
	}

	return &Transport{
		config:  config,
		conn:    conn,
		publish: ch,
		logger: logger.WithFields(
			logging.Field{"transport", "rabbitmq"},
			logging.Field{"connection", config.GetConnectionString()},
			logging.Field{"exchange", config.Exchange},
		),
	}, nil
}

func (t *Transport) Name() string { return "rabbitmq" }

func (t *Transport) Publish(ctx context.Context, body []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.publish == nil {
		return errors.ConnectionError("RabbitMQ transport is closed", nil)
	}

	err := t.publish.Publish(t.config.Exchange, "", false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Transient,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		return errors.ConnectionError("failed to publish to RabbitMQ", err)
	}
	return nil
}

func (t *Transport) Subscribe(ctx context.Context, fn func(ctx context.Context, body []byte) error) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return errors.ConnectionError("RabbitMQ transport is closed", nil)
	}

	ch, err := conn.Channel()
	if err != nil {
		return errors.ConnectionError("failed to open RabbitMQ channel", err)
	}

	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		ch.Close()
		return errors.InternalError("failed to declare subscription queue", err)
	}
	if err := ch.QueueBind(q.Name, "", t.config.Exchange, false, nil); err != nil {
		ch.Close()
		return errors.InternalError("failed to bind subscription queue", err)
	}

	msgs, err := ch.Consume(q.Name, "", false, true, false, false, nil)
	if err != nil {
		ch.Close()
		return errors.InternalError("failed to start consuming from "+q.Name, err)
	}

	go func() {
		defer ch.Close()
		for {
			select {
			case <-ctx.Done():
				t.logger.Info("RabbitMQ subscription cancelled",
					logging.Field{"queue", q.Name},
					logging.Field{"reason", ctx.Err().Error()},
				)
				return
			case msg, ok := <-msgs:
				if !ok {
					t.logger.Info("RabbitMQ message channel closed", logging.Field{"queue", q.Name})
					return
				}
				if err := fn(ctx, msg.Body); err != nil {
					// acked regardless; handler errors are only logged
					t.logger.Warn("Event handler failed", logging.Err(err))
				}
				msg.Ack(false)
			}
		}
	}()

	t.logger.Info("Subscribed to RabbitMQ exchange", logging.Field{"queue", q.Name})
	return nil
}

func (t *Transport) Health(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil || t.conn.IsClosed() {
		return errors.ConnectionError("RabbitMQ connection is closed", nil)
	}
	return nil
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.publish != nil {
		t.publish.Close()
		t.publish = nil
	}
	if t.conn != nil {
		err := t.conn.Close()
		t.conn = nil
		return err
	}
	return nil
}
