package gcp

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
		wantErr bool
	}{
		{"valid", Config{ProjectID: "p", TopicID: "rewrite-rules", SubscriptionID: "node-1"}, false},
		{"missing project", Config{TopicID: "t", SubscriptionID: "s"}, true},
		{"missing topic", Config{ProjectID: "p", SubscriptionID: "s"}, true},
		{"missing subscription", Config{ProjectID: "p", TopicID: "t"}, true},
		{"deadline too short", Config{ProjectID: "p", TopicID: "t", SubscriptionID: "s", AckDeadline: time.Second}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_Defaults(t *testing.T) {
	c := Config{ProjectID: "acme", TopicID: "rewrite-rules", SubscriptionID: "node-1"}
	require.NoError(t, c.Validate())
	assert.Equal(t, 20*time.Second, c.AckDeadline)
	assert.Equal(t, "projects/acme/topics/rewrite-rules", c.GetConnectionString())
}
