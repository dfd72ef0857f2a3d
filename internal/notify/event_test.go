package notify

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"url-rewrite/internal/common/errors"
	"url-rewrite/internal/rules"
)

func TestEvent_EncodeStripsDefinition(t *testing.T) {
	ev := Event{
		ID:      "r1",
		Kind:    KindInboundRule,
		Op:      OpSaved,
		Context: "master",
		Definition: &rules.RuleDefinition{
			ID:      "r1",
			Pattern: "/old",
			Enabled: true,
		},
	}

	body, err := ev.Encode()
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &raw))
	assert.NotContains(t, raw, "definition")
	assert.Equal(t, "r1", raw["id"])
	assert.Equal(t, "master", raw["context"])
	assert.NotEmpty(t, raw["timestamp"])

	// the caller's event keeps its definition
	assert.NotNil(t, ev.Definition)
}

func TestDecode(t *testing.T) {
	t.Run("marks remote", func(t *testing.T) {
		ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
		body, err := Event{ID: "f1", Kind: KindFolder, Op: OpDeleted, Timestamp: ts}.Encode()
		require.NoError(t, err)

		ev, err := Decode(body)
		require.NoError(t, err)
		assert.True(t, ev.Remote)
		assert.Equal(t, KindFolder, ev.Kind)
		assert.True(t, ts.Equal(ev.Timestamp))
	})

	t.Run("drops smuggled definition", func(t *testing.T) {
		body := []byte(`{"id":"r1","kind":"inbound_rule","op":"saved","definition":{"id":"r1","pattern":"/x"}}`)
		ev, err := Decode(body)
		require.NoError(t, err)
		assert.Nil(t, ev.Definition)
	})

	t.Run("invalid json", func(t *testing.T) {
		_, err := Decode([]byte("{"))
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrTypeNotification))
	})

	t.Run("unknown op", func(t *testing.T) {
		_, err := Decode([]byte(`{"id":"r1","kind":"inbound_rule","op":"renamed"}`))
		assert.Error(t, err)
	})

	t.Run("missing id", func(t *testing.T) {
		_, err := Decode([]byte(`{"kind":"item","op":"saved"}`))
		assert.Error(t, err)
	})
}

func TestEvent_IsRule(t *testing.T) {
	assert.True(t, Event{Kind: KindInboundRule}.IsRule())
	assert.True(t, Event{Kind: KindOutboundRule}.IsRule())
	assert.False(t, Event{Kind: KindFolder}.IsRule())
	assert.False(t, Event{Kind: KindItem}.IsRule())
}
