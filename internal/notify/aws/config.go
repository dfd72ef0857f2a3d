package aws

import (
	"fmt"
	"strings"
)

// Config selects an SNS topic to publish to and an SQS queue subscribed to
// that topic. Each instance needs its own queue.
type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	TopicArn        string
	QueueURL        string

	MaxMessages       int32
	WaitTimeSeconds   int32
	VisibilityTimeout int32
}

func (c *Config) Validate() error {
	if c.Region == "" {
		return fmt.Errorf("AWS region is required")
	}
	if !strings.HasPrefix(c.TopicArn, "arn:") {
		return fmt.Errorf("SNS topic ARN is required")
	}
	if !strings.HasPrefix(c.QueueURL, "https://") && !strings.HasPrefix(c.QueueURL, "http://") {
		return fmt.Errorf("SQS queue URL is required")
	}
	if (c.AccessKeyID == "") != (c.SecretAccessKey == "") {
		return fmt.Errorf("AWS access key ID and secret access key must be set together")
	}

	if c.MaxMessages <= 0 || c.MaxMessages > 10 {
		c.MaxMessages = 10
	}
	if c.WaitTimeSeconds <= 0 || c.WaitTimeSeconds > 20 {
		c.WaitTimeSeconds = 5
	}
	if c.VisibilityTimeout <= 0 {
		c.VisibilityTimeout = 30
	}
	return nil
}

func (c *Config) GetConnectionString() string {
	return fmt.Sprintf("sns:%s", c.TopicArn)
}
