package app

import (
	"time"

	"url-rewrite/internal/common/errors"
	"url-rewrite/internal/common/logging"
	"url-rewrite/internal/common/utils"
	"url-rewrite/internal/invalidation"
	"url-rewrite/internal/notify"
	"url-rewrite/internal/notify/aws"
	"url-rewrite/internal/notify/gcp"
	"url-rewrite/internal/notify/kafka"
	"url-rewrite/internal/notify/rabbitmq"
	"url-rewrite/internal/reload"
	"url-rewrite/internal/rewrite"
	"url-rewrite/internal/rulecache"
)

func (app *App) initializeEngine() {
	app.Registry = rulecache.NewRegistry()
	app.Reloader = reload.New(app.Store, app.Registry, app.Logger)
	app.Contexts = reload.NewDirectory(app.Store, reload.DefaultDirectoryRefresh, app.Logger, app.Config.DefaultContext)
	app.Engine = rewrite.NewEngine(app.Registry, app.Reloader, app.Items, rewrite.Options{
		IgnoreURLPrefixes: app.Config.IgnoreURLPrefixes,
		Contexts:          app.Contexts,
		Logger:            app.Logger,
	})
	app.Invalidation = invalidation.New(app.Store, app.Registry, app.Reloader, invalidation.Options{
		DefaultContext: app.Config.DefaultContext,
		Items:          app.Items,
		Contexts:       app.Contexts,
		Logger:         app.Logger,
	})
}

// busConfig maps the flat settings onto the transport configs
func (app *App) busConfig() notify.Config {
	c := app.Config
	bc := notify.Config{Type: c.NotifyBus, Channel: c.NotifyChannel}

	switch c.NotifyBus {
	case "redis":
		if app.RedisClient != nil {
			bc.Redis = app.RedisClient.Redis()
		}
	case "rabbitmq":
		bc.RabbitMQ = &rabbitmq.Config{URL: c.RabbitMQURL, Exchange: c.NotifyChannel}
	case "kafka":
		bc.Kafka = &kafka.Config{Brokers: c.KafkaBrokers, Topic: c.NotifyChannel, GroupID: c.KafkaGroupID}
	case "aws":
		bc.AWS = &aws.Config{
			Region:          c.AWSRegion,
			AccessKeyID:     c.AWSAccessKeyID,
			SecretAccessKey: c.AWSSecretAccessKey,
			TopicArn:        c.SNSTopicARN,
			QueueURL:        c.SQSQueueURL,
		}
	case "gcp":
		bc.GCP = &gcp.Config{
			ProjectID:       c.GCPProjectID,
			TopicID:         c.GCPTopicID,
			SubscriptionID:  c.GCPSubscriptionID,
			CredentialsFile: c.GCPCredentialsFile,
		}
	}
	return bc
}

// initializeBus connects the notification bus, retrying while the broker is
// unreachable, and subscribes the invalidation handler to it
func (app *App) initializeBus() error {
	retry := utils.DefaultRetryConfig()
	retry.RetryableErrors = func(err error) bool {
		return errors.IsType(err, errors.ErrTypeConnection)
	}
	retry.OnRetry = func(attempt int, delay time.Duration, err error) {
		app.Logger.Warn("Notification bus unavailable, retrying",
			logging.Field{"bus", app.Config.NotifyBus},
			logging.Field{"attempt", attempt},
			logging.Field{"delay", delay.String()},
			logging.Err(err),
		)
	}

	var bus notify.Bus
	err := utils.RetryWithBackoff(app.ctx, retry, func() error {
		var err error
		bus, err = notify.New(app.ctx, app.busConfig(), app.Logger)
		return err
	})
	if err != nil {
		return err
	}
	app.Bus = bus

	if err := app.Invalidation.Subscribe(app.ctx, bus); err != nil {
		return errors.NotificationError("failed to subscribe to rule changes", err)
	}
	return nil
}

func (app *App) initializeScheduler() error {
	if app.Config.ReloadSchedule == "" {
		return nil
	}
	s, err := reload.NewScheduler(app.Reloader, app.Config.ReloadSchedule, app.Config.ShutdownDuration(), app.Logger)
	if err != nil {
		return err
	}
	if err := s.Start(); err != nil {
		return err
	}
	app.Scheduler = s
	app.Logger.Info("Scheduled reload enabled",
		logging.Field{"schedule", app.Config.ReloadSchedule},
		logging.Field{"next", s.Next()},
	)
	return nil
}
