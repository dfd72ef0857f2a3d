package kafka

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Brokers          []string
	Topic            string
	ClientID         string
	GroupID          string
	SecurityProtocol string
	SASLMechanism    string
	SASLUsername     string
	SASLPassword     string
	Timeout          time.Duration
}

// Validate checks the config and fills in defaults
func (c *Config) Validate() error {
	if len(c.Brokers) == 0 {
		return fmt.Errorf("Kafka brokers are required")
	}
	for _, broker := range c.Brokers {
		if broker == "" {
			return fmt.Errorf("empty Kafka broker address")
		}
	}
	if c.Topic == "" {
		return fmt.Errorf("Kafka topic is required")
	}

	if c.ClientID == "" {
		c.ClientID = "url-rewrite"
	}
	if c.GroupID == "" {
		c.GroupID = "url-rewrite"
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.SecurityProtocol == "" {
		c.SecurityProtocol = "PLAINTEXT"
	}

	switch c.SecurityProtocol {
	case "PLAINTEXT", "SSL", "SASL_PLAINTEXT", "SASL_SSL":
	default:
		return fmt.Errorf("invalid security protocol: %s", c.SecurityProtocol)
	}

	if strings.HasPrefix(c.SecurityProtocol, "SASL_") {
		if c.SASLMechanism == "" {
			return fmt.Errorf("SASL mechanism is required for %s", c.SecurityProtocol)
		}
		if c.SASLUsername == "" || c.SASLPassword == "" {
			return fmt.Errorf("SASL username and password are required for %s", c.SecurityProtocol)
		}
	}
	return nil
}

func (c *Config) GetConnectionString() string {
	return strings.Join(c.Brokers, ",")
}
