package storage

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"url-rewrite/internal/rules"
)

// RecordKind distinguishes full rules from simple redirects
type RecordKind string

const (
	KindRule           RecordKind = "rule"
	KindSimpleRedirect RecordKind = "simple_redirect"
)

// Folder groups rules and may restrict all of them to one site
type Folder struct {
	ID              string `json:"id" yaml:"id"`
	Context         string `json:"context" yaml:"context"`
	Name            string `json:"name" yaml:"name"`
	SiteRestriction string `json:"site_restriction,omitempty" yaml:"site_restriction,omitempty"`
	Position        int    `json:"position" yaml:"position"`
}

// Item is a content item that rules may redirect to by reference
type Item struct {
	ID     string `json:"id" yaml:"id"`
	URL    string `json:"url" yaml:"url"`
	Anchor string `json:"anchor,omitempty" yaml:"anchor,omitempty"`
}

// RuleRecord is a stored rule. Exactly one of Rule and Simple is set.
type RuleRecord struct {
	Context  string                `json:"context"`
	FolderID string                `json:"folder_id,omitempty"`
	Position int                   `json:"position"`
	Rule     *rules.RuleDefinition `json:"rule,omitempty"`
	Simple   *rules.SimpleRedirect `json:"simple_redirect,omitempty"`
}

// ID returns the id of whichever record is set
func (r RuleRecord) ID() string {
	if r.Rule != nil {
		return r.Rule.ID
	}
	if r.Simple != nil {
		return r.Simple.ID
	}
	return ""
}

// Kind reports which record is set
func (r RuleRecord) Kind() RecordKind {
	if r.Simple != nil {
		return KindSimpleRedirect
	}
	return KindRule
}

// Direction returns the rule direction; simple redirects are always inbound
func (r RuleRecord) Direction() rules.Direction {
	if r.Rule != nil && r.Rule.Direction != "" {
		return r.Rule.Direction
	}
	return rules.Inbound
}

// Normalize checks the record and assigns a new id when none is set
func (r *RuleRecord) Normalize() error {
	if (r.Rule == nil) == (r.Simple == nil) {
		return fmt.Errorf("exactly one of rule and simple_redirect is required")
	}
	if r.Context == "" {
		return fmt.Errorf("context is required")
	}
	if r.ID() == "" {
		id := uuid.NewString()
		if r.Rule != nil {
			r.Rule.ID = id
		} else {
			r.Simple.ID = id
		}
	}
	return nil
}

// Definition expands the record into a rule definition. A folder site
// restriction applies when the rule has none of its own.
func (r RuleRecord) Definition(folder *Folder) rules.RuleDefinition {
	var def rules.RuleDefinition
	if r.Simple != nil {
		def = rules.FromSimpleRedirect(*r.Simple)
	} else {
		def = *r.Rule
		if def.Direction == "" {
			def.Direction = rules.Inbound
		}
	}
	if def.SiteRestriction == "" && folder != nil {
		def.SiteRestriction = folder.SiteRestriction
	}
	return def
}

// Body returns the JSON stored for the record
func (r RuleRecord) Body() ([]byte, error) {
	if r.Simple != nil {
		return json.Marshal(r.Simple)
	}
	return json.Marshal(r.Rule)
}

// DecodeRecord rebuilds a record from its stored kind and JSON body
func DecodeRecord(kind RecordKind, body []byte) (RuleRecord, error) {
	var rec RuleRecord
	switch kind {
	case KindSimpleRedirect:
		var s rules.SimpleRedirect
		if err := json.Unmarshal(body, &s); err != nil {
			return rec, fmt.Errorf("%w: simple redirect: %w", ErrMalformedRecord, err)
		}
		rec.Simple = &s
	case KindRule, "":
		var d rules.RuleDefinition
		if err := json.Unmarshal(body, &d); err != nil {
			return rec, fmt.Errorf("%w: rule: %w", ErrMalformedRecord, err)
		}
		rec.Rule = &d
	default:
		return rec, fmt.Errorf("%w: unknown record kind %q", ErrMalformedRecord, kind)
	}
	return rec, nil
}

// NewFolderID returns an id for a folder saved without one
func NewFolderID() string {
	return uuid.NewString()
}
