package rabbitmq

import (
	"fmt"
	"net/url"

	"url-rewrite/internal/common/validation"
)

type Config struct {
	URL      string `json:"url" validate:"required,url"`
	Exchange string `json:"exchange" validate:"required"`
}

func (c *Config) Validate() error {
	return validation.ValidateStruct(c)
}

// GetConnectionString returns the broker address without credentials
func (c *Config) GetConnectionString() string {
	if parsedURL, err := url.Parse(c.URL); err == nil {
		parsedURL.User = nil
		return fmt.Sprintf("rabbitmq://%s", parsedURL.Host)
	}
	return "rabbitmq://***"
}
