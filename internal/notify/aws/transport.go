// Package aws is a notification transport that publishes to an SNS topic and
// consumes from an SQS queue subscribed to it.
package aws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"url-rewrite/internal/common/errors"
	"url-rewrite/internal/common/logging"
)

const retryBackoff = 5 * time.Second

type Transport struct {
	config *Config
	sns    *sns.Client
	sqs    *sqs.Client
	logger logging.Logger
}

func NewTransport(ctx context.Context, config *Config, logger logging.Logger) (*Transport, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigError("invalid aws bus config: " + err.Error())
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(config.Region)}
	if config.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			config.AccessKeyID,
			config.SecretAccessKey,
			config.SessionToken,
		)))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.ConnectionError("failed to load AWS config", err)
	}

	return &Transport{
		config: config,
		sns:    sns.NewFromConfig(awsCfg),
		sqs:    sqs.NewFromConfig(awsCfg),
		logger: logger.WithFields(
			logging.Field{"transport", "aws"},
			logging.Field{"topic_arn", config.TopicArn},
			logging.Field{"queue_url", config.QueueURL},
		),
	}, nil
}

func (t *Transport) Name() string { return "aws" }

func (t *Transport) Publish(ctx context.Context, body []byte) error {
	result, err := t.sns.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(t.config.TopicArn),
		Message:  aws.String(string(body)),
	})
	if err != nil {
		return errors.ConnectionError("failed to publish to SNS", err)
	}
	t.logger.Debug("Published to SNS", logging.Field{"message_id", aws.ToString(result.MessageId)})
	return nil
}

func (t *Transport) Subscribe(ctx context.Context, fn func(ctx context.Context, body []byte) error) error {
	go func() {
		for {
			if ctx.Err() != nil {
				t.logger.Info("SQS subscription cancelled")
				return
			}

			result, err := t.sqs.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
				QueueUrl:            aws.String(t.config.QueueURL),
				MaxNumberOfMessages: t.config.MaxMessages,
				WaitTimeSeconds:     t.config.WaitTimeSeconds,
				VisibilityTimeout:   t.config.VisibilityTimeout,
			})
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				t.logger.Error("SQS receive failed", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(retryBackoff):
				}
				continue
			}

			for _, msg := range result.Messages {
				t.handle(ctx, msg, fn)
			}
		}
	}()

	t.logger.Info("Polling SQS queue")
	return nil
}

func (t *Transport) handle(ctx context.Context, msg sqstypes.Message, fn func(ctx context.Context, body []byte) error) {
	if err := fn(ctx, unwrapEnvelope([]byte(aws.ToString(msg.Body)))); err != nil {
		t.logger.Warn("Event handler failed",
			logging.Field{"message_id", aws.ToString(msg.MessageId)},
			logging.Err(err),
		)
	}

	_, err := t.sqs.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(t.config.QueueURL),
		ReceiptHandle: msg.ReceiptHandle,
	})
	if err != nil {
		t.logger.Error("Failed to delete SQS message", err,
			logging.Field{"message_id", aws.ToString(msg.MessageId)},
		)
	}
}

type snsEnvelope struct {
	Type    string `json:"Type"`
	Message string `json:"Message"`
}

// unwrapEnvelope returns the published payload of an SNS notification, or
// body unchanged when the subscription uses raw message delivery
func unwrapEnvelope(body []byte) []byte {
	var env snsEnvelope
	if err := json.Unmarshal(body, &env); err != nil || env.Type != "Notification" {
		return body
	}
	return []byte(env.Message)
}

func (t *Transport) Health(ctx context.Context) error {
	if _, err := t.sns.GetTopicAttributes(ctx, &sns.GetTopicAttributesInput{
		TopicArn: aws.String(t.config.TopicArn),
	}); err != nil {
		return errors.ConnectionError("SNS topic unreachable", err)
	}
	if _, err := t.sqs.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl:       aws.String(t.config.QueueURL),
		AttributeNames: []sqstypes.QueueAttributeName{sqstypes.QueueAttributeNameApproximateNumberOfMessages},
	}); err != nil {
		return errors.ConnectionError("SQS queue unreachable", err)
	}
	return nil
}

func (t *Transport) Close() error { return nil }
