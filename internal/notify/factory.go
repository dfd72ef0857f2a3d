package notify

import (
	"context"
	"fmt"

	goredis "github.com/go-redis/redis/v8"

	"url-rewrite/internal/common/errors"
	"url-rewrite/internal/common/logging"
	"url-rewrite/internal/notify/aws"
	"url-rewrite/internal/notify/gcp"
	"url-rewrite/internal/notify/kafka"
	"url-rewrite/internal/notify/rabbitmq"
	"url-rewrite/internal/notify/redis"
)

// Config selects a bus. Channel names the redis channel, the RabbitMQ exchange
// and the Kafka topic; the cloud transports carry their own names.
type Config struct {
	Type    string
	Channel string

	Redis    *goredis.Client
	RabbitMQ *rabbitmq.Config
	Kafka    *kafka.Config
	AWS      *aws.Config
	GCP      *gcp.Config
}

// New builds the bus named by cfg.Type. An empty type is the local bus.
func New(ctx context.Context, cfg Config, logger logging.Logger) (Bus, error) {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	var (
		transport Transport
		err       error
	)

	switch cfg.Type {
	case "", "local":
		return NewLocalBus(logger), nil
	case "redis":
		transport, err = redis.NewTransport(cfg.Redis, cfg.Channel, logger)
	case "rabbitmq":
		if cfg.RabbitMQ == nil {
			return nil, errors.ConfigError("rabbitmq bus requires a rabbitmq config")
		}
		if cfg.RabbitMQ.Exchange == "" {
			cfg.RabbitMQ.Exchange = cfg.Channel
		}
		transport, err = rabbitmq.NewTransport(cfg.RabbitMQ, logger)
	case "kafka":
		if cfg.Kafka == nil {
			return nil, errors.ConfigError("kafka bus requires a kafka config")
		}
		if cfg.Kafka.Topic == "" {
			cfg.Kafka.Topic = cfg.Channel
		}
		transport, err = kafka.NewTransport(cfg.Kafka, logger)
	case "aws":
		if cfg.AWS == nil {
			return nil, errors.ConfigError("aws bus requires an aws config")
		}
		transport, err = aws.NewTransport(ctx, cfg.AWS, logger)
	case "gcp":
		if cfg.GCP == nil {
			return nil, errors.ConfigError("gcp bus requires a gcp config")
		}
		transport, err = gcp.NewTransport(ctx, cfg.GCP, logger)
	default:
		return nil, errors.ConfigError(fmt.Sprintf("unknown bus type: %s", cfg.Type))
	}
	if err != nil {
		return nil, err
	}

	logger.Info("Notification bus ready",
		logging.Field{"bus", transport.Name()},
		logging.Field{"channel", cfg.Channel},
	)
	return NewRemote(transport, logger), nil
}
