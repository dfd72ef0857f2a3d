package rules

import (
	"fmt"

	"url-rewrite/internal/common/errors"
	"url-rewrite/internal/common/validation"
)

// CompiledRule is a validated, immutable rule ready for matching. All fields
// are unexported; use the accessors.
type CompiledRule struct {
	def        RuleDefinition
	matcher    matcher
	conditions []CompiledCondition
	target     *Template
}

// Compile validates d and prepares its pattern, conditions and target template.
// Failures are definition errors wrapping one of the package sentinels.
func Compile(d RuleDefinition) (*CompiledRule, error) {
	def := d.normalized()

	if err := validation.ValidateStruct(def); err != nil {
		return nil, definitionError(def, fmt.Errorf("%w: %v", ErrInvalidDefinition, err))
	}

	if def.Direction == Outbound {
		if def.Action.Type != ActionRewrite {
			return nil, definitionError(def, fmt.Errorf("%w: outbound rules can only rewrite", ErrInvalidOutboundRule))
		}
		if def.MatchHeader == "" {
			return nil, definitionError(def, fmt.Errorf("%w: match_header is required", ErrInvalidOutboundRule))
		}
	}

	if def.Action.Type == ActionRedirect {
		if err := validation.ValidateVar(def.Action.StatusCode, "redirect_status"); err != nil {
			return nil, definitionError(def, fmt.Errorf("%w: %d", ErrInvalidStatusCode, def.Action.StatusCode))
		}
	}

	if def.Action.TargetTemplate == "" {
		return nil, definitionError(def, ErrMissingTarget)
	}

	m, err := newMatcher(def.MatchKind, def.Pattern, def.IgnoreCase)
	if err != nil {
		return nil, definitionError(def, err)
	}

	conditions := make([]CompiledCondition, 0, len(def.Conditions))
	for _, c := range def.Conditions {
		cc, err := CompileCondition(c)
		if err != nil {
			return nil, definitionError(def, fmt.Errorf("condition on %s: %w", c.Input, err))
		}
		conditions = append(conditions, cc)
	}

	target, err := ParseTemplate(def.Action.TargetTemplate, m.groupCount(), def.Action.TargetItemID != "")
	if err != nil {
		return nil, definitionError(def, err)
	}

	return &CompiledRule{
		def:        def,
		matcher:    m,
		conditions: conditions,
		target:     target,
	}, nil
}

// MustCompile is Compile for definitions known to be valid
func MustCompile(d RuleDefinition) *CompiledRule {
	r, err := Compile(d)
	if err != nil {
		panic(err)
	}
	return r
}

func definitionError(d RuleDefinition, cause error) error {
	return errors.DefinitionError("rule failed to compile", cause).
		WithContext("rule_id", d.ID).
		WithContext("rule_name", d.Name)
}

// ID returns the rule's stable identifier
func (r *CompiledRule) ID() string { return r.def.ID }

// Name returns the rule's display name
func (r *CompiledRule) Name() string { return r.def.Name }

// Enabled reports whether the rule takes part in matching
func (r *CompiledRule) Enabled() bool { return r.def.Enabled }

// Direction returns whether the rule is inbound or outbound
func (r *CompiledRule) Direction() Direction { return r.def.Direction }

// SiteRestriction returns the site the rule is limited to, or "" for any site
func (r *CompiledRule) SiteRestriction() string { return r.def.SiteRestriction }

// MatchQueryString reports whether the pattern sees "path?query" instead of the path
func (r *CompiledRule) MatchQueryString() bool { return r.def.MatchQueryString }

// MatchHeader returns the response header an outbound rule rewrites
func (r *CompiledRule) MatchHeader() string { return r.def.MatchHeader }

// Grouping returns how the rule's conditions are combined
func (r *CompiledRule) Grouping() Grouping { return r.def.ConditionGrouping }

// Conditions returns the compiled conditions. The slice must not be modified.
func (r *CompiledRule) Conditions() []CompiledCondition { return r.conditions }

// Action returns a copy of the rule's action
func (r *CompiledRule) Action() Action { return r.def.Action }

// Target returns the parsed target template
func (r *CompiledRule) Target() *Template { return r.target }

// Definition returns a copy of the normalized definition the rule was built from
func (r *CompiledRule) Definition() RuleDefinition {
	d := r.def
	if d.Conditions != nil {
		d.Conditions = append([]Condition(nil), d.Conditions...)
	}
	return d
}

// MatchPattern tests subject against the rule's pattern and returns the match
// groups, the whole match first
func (r *CompiledRule) MatchPattern(subject string) (bool, []string) {
	return r.matcher.match(subject)
}

// MatchConditions evaluates the rule's conditions against facts under its
// grouping. With no conditions MatchAll holds and MatchAny does not.
func (r *CompiledRule) MatchConditions(facts Facts) bool {
	return EvaluateAll(r.conditions, r.def.ConditionGrouping, facts)
}
