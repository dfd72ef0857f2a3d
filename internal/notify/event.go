// Package notify carries rule lifecycle events between the admin API, the rule
// stores and every running instance's invalidation handler.
//
// A Bus is either the in-process LocalBus or a Remote bus over one of the
// transports in the subpackages (redis, rabbitmq, kafka, aws, gcp). Events that
// arrive through a transport are marked Remote and never carry a definition:
// receivers re-read the record from the store before acting on it.
package notify

import (
	"encoding/json"
	"time"

	"url-rewrite/internal/common/errors"
	"url-rewrite/internal/common/validation"
	"url-rewrite/internal/rules"
)

// Kind is the type of record an event is about
type Kind string

const (
	KindInboundRule   Kind = "inbound_rule"
	KindOutboundRule  Kind = "outbound_rule"
	KindRuleComponent Kind = "rule_component"
	KindFolder        Kind = "folder"
	KindItem          Kind = "item"
)

// Op is what happened to the record
type Op string

const (
	OpSaved   Op = "saved"
	OpDeleted Op = "deleted"
)

// Event reports that a record changed. Definition is only set on local events;
// Remote is set by the receiving bus.
type Event struct {
	ID         string                `json:"id" validate:"required"`
	Kind       Kind                  `json:"kind" validate:"required"`
	Op         Op                    `json:"op" validate:"required,oneof=saved deleted"`
	Context    string                `json:"context,omitempty"`
	ParentID   string                `json:"parent_id,omitempty"`
	Timestamp  time.Time             `json:"timestamp"`
	Definition *rules.RuleDefinition `json:"definition,omitempty"`
	Remote     bool                  `json:"-"`
}

// IsRule reports whether the event is about a rule record
func (e Event) IsRule() bool {
	return e.Kind == KindInboundRule || e.Kind == KindOutboundRule
}

// Encode returns the wire form of the event, without its definition
func (e Event) Encode() ([]byte, error) {
	e.Definition = nil
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	body, err := json.Marshal(e)
	if err != nil {
		return nil, errors.NotificationError("failed to encode event", err)
	}
	return body, nil
}

// Decode parses an event received from a transport and marks it remote
func Decode(body []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(body, &e); err != nil {
		return nil, errors.NotificationError("failed to decode event", err)
	}
	e.Definition = nil
	if err := validation.ValidateStruct(e); err != nil {
		return nil, errors.NotificationError("invalid event", err)
	}
	e.Remote = true
	return &e, nil
}
