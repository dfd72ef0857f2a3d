package kafka

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{"valid", Config{Brokers: []string{"localhost:9092"}, Topic: "rewrite-rules"}, ""},
		{"no brokers", Config{Topic: "rewrite-rules"}, "brokers are required"},
		{"empty broker", Config{Brokers: []string{""}, Topic: "t"}, "empty Kafka broker"},
		{"no topic", Config{Brokers: []string{"localhost:9092"}}, "topic is required"},
		{"bad protocol", Config{Brokers: []string{"b:9092"}, Topic: "t", SecurityProtocol: "TLS"}, "invalid security protocol"},
		{"sasl without credentials", Config{Brokers: []string{"b:9092"}, Topic: "t", SecurityProtocol: "SASL_SSL", SASLMechanism: "PLAIN"}, "username and password"},
		{"sasl", Config{Brokers: []string{"b:9092"}, Topic: "t", SecurityProtocol: "SASL_SSL", SASLMechanism: "PLAIN", SASLUsername: "u", SASLPassword: "p"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestConfig_Defaults(t *testing.T) {
	c := Config{Brokers: []string{"a:9092", "b:9092"}, Topic: "rewrite-rules"}
	require.NoError(t, c.Validate())

	assert.Equal(t, "url-rewrite", c.ClientID)
	assert.Equal(t, "url-rewrite", c.GroupID)
	assert.Equal(t, "PLAINTEXT", c.SecurityProtocol)
	assert.Equal(t, 10*time.Second, c.Timeout)
	assert.Equal(t, "a:9092,b:9092", c.GetConnectionString())
}

func TestConfig_ConfigMap(t *testing.T) {
	c := Config{Brokers: []string{"b:9092"}, Topic: "t", SecurityProtocol: "SASL_SSL", SASLMechanism: "PLAIN", SASLUsername: "u", SASLPassword: "p"}
	require.NoError(t, c.Validate())

	m := c.configMap("client")
	v, err := m.Get("bootstrap.servers", nil)
	require.NoError(t, err)
	assert.Equal(t, "b:9092", v)

	v, err = m.Get("sasl.username", nil)
	require.NoError(t, err)
	assert.Equal(t, "u", v)
}
