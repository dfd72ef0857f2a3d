package gcp

import (
	"fmt"
	"time"
)

// Config names a Pub/Sub topic and this instance's subscription to it.
// A missing subscription is created when CreateSubscription is set.
type Config struct {
	ProjectID          string
	TopicID            string
	SubscriptionID     string
	CredentialsFile    string
	CreateSubscription bool
	AckDeadline        time.Duration
}

func (c *Config) Validate() error {
	if c.ProjectID == "" {
		return fmt.Errorf("GCP project ID is required")
	}
	if c.TopicID == "" {
		return fmt.Errorf("Pub/Sub topic ID is required")
	}
	if c.SubscriptionID == "" {
		return fmt.Errorf("Pub/Sub subscription ID is required")
	}
	if c.AckDeadline == 0 {
		c.AckDeadline = 20 * time.Second
	}
	if c.AckDeadline < 10*time.Second || c.AckDeadline > 600*time.Second {
		return fmt.Errorf("ack deadline must be between 10s and 600s")
	}
	return nil
}

func (c *Config) GetConnectionString() string {
	return fmt.Sprintf("projects/%s/topics/%s", c.ProjectID, c.TopicID)
}
