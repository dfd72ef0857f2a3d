// Package rules holds the rule model of the rewrite engine: the raw
// RuleDefinition records supplied by a rule store, their validated and
// pre-compiled form (CompiledRule), condition evaluation, and the immutable
// ordered RuleSet that the rule cache publishes to request handlers.
//
// A RuleDefinition describes a pattern, an optional group of conditions and an
// action. Compile turns it into a CompiledRule with the regular expression or
// wildcard already built and the action template already parsed:
//
//	compiled, err := rules.Compile(rules.RuleDefinition{
//		ID:        "0f6b8a52-31f5-4a8a-8d3e-6c1f9e2b7a10",
//		Name:      "old blog",
//		Enabled:   true,
//		Pattern:   `^/blog/(.+)$`,
//		MatchKind: rules.RegularExpression,
//		Action: rules.Action{
//			Type:           rules.ActionRewrite,
//			TargetTemplate: "/articles/{1}",
//		},
//	})
//
// A definition that fails to compile yields a definition error; callers that
// build whole rule sets drop that rule and keep the rest.
package rules

// MatchKind selects how a rule's pattern is interpreted
type MatchKind string

const (
	// ExactPath compares the subject with the pattern for equality
	ExactPath MatchKind = "exact_path"
	// WildcardPattern treats the pattern as an anchored glob with * and ?
	WildcardPattern MatchKind = "wildcard"
	// RegularExpression treats the pattern as an RE2 expression with capture groups
	RegularExpression MatchKind = "regular_expression"
)

// Grouping combines the results of a rule's conditions
type Grouping string

const (
	// MatchAll requires every condition to hold (AND)
	MatchAll Grouping = "match_all"
	// MatchAny requires at least one condition to hold (OR)
	MatchAny Grouping = "match_any"
)

// Comparator selects how a condition compares its input with its value
type Comparator string

const (
	// CompareEquals is a plain string comparison
	CompareEquals Comparator = "equals"
	// ComparePattern matches the input against a regular expression
	ComparePattern Comparator = "pattern"
)

// Direction tells whether a rule applies to inbound requests or outbound responses
type Direction string

const (
	// Inbound rules match the request path and redirect or rewrite it
	Inbound Direction = "inbound"
	// Outbound rules match a response header value and rewrite it
	Outbound Direction = "outbound"
)

// ActionType selects the effect of a matching rule
type ActionType string

const (
	// ActionRedirect sends the client a redirect response
	ActionRedirect ActionType = "redirect"
	// ActionRewrite changes the URL (or header value) internally
	ActionRewrite ActionType = "rewrite"
)

// Cacheability is the cache-control hint attached to a redirect
type Cacheability string

const (
	CacheNoCache Cacheability = "no-cache"
	CachePrivate Cacheability = "private"
	CachePublic  Cacheability = "public"
	CacheNoStore Cacheability = "no-store"
)

// ItemPlaceholder is the reserved template placeholder that is replaced by the
// URL resolved for the action's target item
const ItemPlaceholder = "item"

// Condition is a single comparison against one request-derived input
type Condition struct {
	Input      string     `json:"input" yaml:"input" validate:"required"`
	Comparator Comparator `json:"comparator,omitempty" yaml:"comparator,omitempty" validate:"omitempty,oneof=equals pattern"`
	Value      string     `json:"value" yaml:"value"`
	IgnoreCase bool       `json:"ignore_case,omitempty" yaml:"ignore_case,omitempty"`
	Negate     bool       `json:"negate,omitempty" yaml:"negate,omitempty"`
}

// Action describes what happens when a rule matches. StatusCode, AppendQueryString
// and Cacheability only apply to redirects.
type Action struct {
	Type              ActionType   `json:"type" yaml:"type" validate:"required,oneof=redirect rewrite"`
	StatusCode        int          `json:"status_code,omitempty" yaml:"status_code,omitempty"`
	TargetTemplate    string       `json:"target,omitempty" yaml:"target,omitempty"`
	TargetItemID      string       `json:"target_item_id,omitempty" yaml:"target_item_id,omitempty"`
	TargetAnchor      string       `json:"target_anchor,omitempty" yaml:"target_anchor,omitempty"`
	AppendQueryString bool         `json:"append_query_string,omitempty" yaml:"append_query_string,omitempty"`
	Cacheability      Cacheability `json:"cacheability,omitempty" yaml:"cacheability,omitempty" validate:"omitempty,oneof=no-cache private public no-store"`
	StopProcessing    bool         `json:"stop_processing,omitempty" yaml:"stop_processing,omitempty"`
}

// RuleDefinition is a rule record as supplied by a rule store, before validation
type RuleDefinition struct {
	ID                string      `json:"id" yaml:"id" validate:"required"`
	Name              string      `json:"name" yaml:"name"`
	Enabled           bool        `json:"enabled" yaml:"enabled"`
	Direction         Direction   `json:"direction,omitempty" yaml:"direction,omitempty" validate:"omitempty,oneof=inbound outbound"`
	Pattern           string      `json:"pattern" yaml:"pattern" validate:"required"`
	MatchKind         MatchKind   `json:"match_kind,omitempty" yaml:"match_kind,omitempty" validate:"omitempty,oneof=exact_path wildcard regular_expression"`
	MatchQueryString  bool        `json:"match_query_string,omitempty" yaml:"match_query_string,omitempty"`
	MatchHeader       string      `json:"match_header,omitempty" yaml:"match_header,omitempty"`
	IgnoreCase        bool        `json:"ignore_case,omitempty" yaml:"ignore_case,omitempty"`
	Conditions        []Condition `json:"conditions,omitempty" yaml:"conditions,omitempty" validate:"dive"`
	ConditionGrouping Grouping    `json:"condition_grouping,omitempty" yaml:"condition_grouping,omitempty" validate:"omitempty,oneof=match_all match_any"`
	SiteRestriction   string      `json:"site_restriction,omitempty" yaml:"site_restriction,omitempty"`
	Action            Action      `json:"action" yaml:"action"`
}

// normalized returns a copy of d with defaults applied and slices detached
// from the caller's memory
func (d RuleDefinition) normalized() RuleDefinition {
	if d.Direction == "" {
		d.Direction = Inbound
	}
	if d.MatchKind == "" {
		d.MatchKind = RegularExpression
	}
	if d.ConditionGrouping == "" {
		d.ConditionGrouping = MatchAll
	}
	if d.Action.Type == ActionRedirect && d.Action.Cacheability == "" {
		d.Action.Cacheability = CacheNoCache
	}
	if d.Action.TargetTemplate == "" && d.Action.TargetItemID != "" {
		d.Action.TargetTemplate = "{" + ItemPlaceholder + "}"
	}

	if d.Conditions != nil {
		conditions := make([]Condition, len(d.Conditions))
		copy(conditions, d.Conditions)
		for i := range conditions {
			if conditions[i].Comparator == "" {
				conditions[i].Comparator = ComparePattern
			}
		}
		d.Conditions = conditions
	}
	return d
}
