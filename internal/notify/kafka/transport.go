// Package kafka is a notification transport over a Kafka topic. Each
// subscription joins a consumer group of its own so that every instance reads
// every event, starting from the latest offset.
package kafka

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"github.com/google/uuid"

	"url-rewrite/internal/common/errors"
	"url-rewrite/internal/common/logging"
)

const pollInterval = 200 * time.Millisecond

type Transport struct {
	config   *Config
	producer *kafka.Producer
	logger   logging.Logger

	mu        sync.Mutex
	consumers []*kafka.Consumer
}

func NewTransport(config *Config, logger logging.Logger) (*Transport, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigError("invalid kafka bus config: " + err.Error())
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	producer, err := kafka.NewProducer(config.configMap(config.ClientID))
	if err != nil {
		return nil, errors.ConnectionError("failed to create Kafka producer", err)
	}

	return &Transport{
		config:   config,
		producer: producer,
		logger: logger.WithFields(
			logging.Field{"transport", "kafka"},
			logging.Field{"brokers", config.GetConnectionString()},
			logging.Field{"topic", config.Topic},
		),
	}, nil
}

func (c *Config) configMap(clientID string) *kafka.ConfigMap {
	m := kafka.ConfigMap{
		"bootstrap.servers": strings.Join(c.Brokers, ","),
		"client.id":         clientID,
	}
	if c.SecurityProtocol != "PLAINTEXT" {
		m["security.protocol"] = c.SecurityProtocol
	}
	if strings.HasPrefix(c.SecurityProtocol, "SASL_") {
		m["sasl.mechanism"] = c.SASLMechanism
		m["sasl.username"] = c.SASLUsername
		m["sasl.password"] = c.SASLPassword
	}
	return &m
}

func (t *Transport) Name() string { return "kafka" }

func (t *Transport) Publish(ctx context.Context, body []byte) error {
	topic := t.config.Topic
	delivery := make(chan kafka.Event, 1)

	err := t.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Value:          body,
		Timestamp:      time.Now(),
	}, delivery)
	if err != nil {
		return errors.ConnectionError("failed to produce Kafka message", err)
	}

	select {
	case e := <-delivery:
		if m, ok := e.(*kafka.Message); ok && m.TopicPartition.Error != nil {
			return errors.ConnectionError("Kafka delivery failed", m.TopicPartition.Error)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Transport) Subscribe(ctx context.Context, fn func(ctx context.Context, body []byte) error) error {
	cm := t.config.configMap(t.config.ClientID + "-consumer")
	_ = cm.SetKey("group.id", t.config.GroupID+"-"+uuid.NewString())
	_ = cm.SetKey("auto.offset.reset", "latest")
	_ = cm.SetKey("enable.auto.commit", true)
	_ = cm.SetKey("session.timeout.ms", 6000)

	consumer, err := kafka.NewConsumer(cm)
	if err != nil {
		return errors.ConnectionError("failed to create Kafka consumer", err)
	}
	if err := consumer.SubscribeTopics([]string{t.config.Topic}, nil); err != nil {
		consumer.Close()
		return errors.ConnectionError("failed to subscribe to Kafka topic", err)
	}

	t.mu.Lock()
	t.consumers = append(t.consumers, consumer)
	t.mu.Unlock()

	go func() {
		defer t.removeConsumer(consumer)
		for {
			if ctx.Err() != nil {
				t.logger.Info("Kafka subscription cancelled")
				return
			}

			msg, err := consumer.ReadMessage(pollInterval)
			if err != nil {
				if kerr, ok := err.(kafka.Error); ok && kerr.Code() == kafka.ErrTimedOut {
					continue
				}
				t.logger.Warn("Kafka consumer error", logging.Err(err))
				continue
			}
			if err := fn(ctx, msg.Value); err != nil {
				t.logger.Warn("Event handler failed",
					logging.Field{"partition", msg.TopicPartition.Partition},
					logging.Field{"offset", msg.TopicPartition.Offset.String()},
					logging.Err(err),
				)
			}
		}
	}()

	t.logger.Info("Subscribed to Kafka topic")
	return nil
}

func (t *Transport) removeConsumer(c *kafka.Consumer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, existing := range t.consumers {
		if existing == c {
			t.consumers = append(t.consumers[:i], t.consumers[i+1:]...)
			c.Close()
			return
		}
	}
}

func (t *Transport) Health(context.Context) error {
	metadata, err := t.producer.GetMetadata(&t.config.Topic, false, int(t.config.Timeout.Milliseconds()))
	if err != nil {
		return errors.ConnectionError("failed to get Kafka metadata", err)
	}
	if len(metadata.Brokers) == 0 {
		return errors.ConnectionError("no Kafka brokers available", nil)
	}
	return nil
}

func (t *Transport) Close() error {
	t.mu.Lock()
	consumers := t.consumers
	t.consumers = nil
	t.mu.Unlock()

	for _, c := range consumers {
		c.Close()
	}
	if t.producer != nil {
		t.producer.Flush(int(t.config.Timeout.Milliseconds()))
		t.producer.Close()
	}
	return nil
}
