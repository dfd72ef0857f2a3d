package rewrite

import (
	"context"
	"strings"

	"url-rewrite/internal/common/errors"
	"url-rewrite/internal/rules"
)

// ItemResolver turns an item reference into its public URL and default anchor
type ItemResolver interface {
	Resolve(ctx context.Context, itemID string) (url string, anchor string, err error)
}

// OutcomeKind says how the caller applies an Outcome
type OutcomeKind string

const (
	OutcomeRedirect OutcomeKind = "redirect"
	OutcomeRewrite  OutcomeKind = "rewrite"
)

// Outcome is a resolved action with every placeholder substituted.
// StatusCode, AppendQueryString and Cacheability are only set for redirects.
type Outcome struct {
	Kind              OutcomeKind        `json:"kind"`
	URL               string             `json:"url"`
	StatusCode        int                `json:"status_code,omitempty"`
	AppendQueryString bool               `json:"append_query_string,omitempty"`
	Cacheability      rules.Cacheability `json:"cacheability,omitempty"`
	StopProcessing    bool               `json:"stop_processing,omitempty"`
}

// ResolveAction expands the rule's target with groups and, when the target
// refers to an item, the URL resolver returns for it. A failed item lookup is
// a resolution error.
func ResolveAction(ctx context.Context, rule *rules.CompiledRule, groups []string, resolver ItemResolver) (Outcome, error) {
	action := rule.Action()

	var itemURL, anchor string
	if rule.Target().UsesItem() {
		if resolver == nil {
			return Outcome{}, resolutionError(rule, action.TargetItemID, nil)
		}
		u, itemAnchor, err := resolver.Resolve(ctx, action.TargetItemID)
		if err != nil {
			return Outcome{}, resolutionError(rule, action.TargetItemID, err)
		}
		if u == "" {
			return Outcome{}, resolutionError(rule, action.TargetItemID, ErrEmptyItemURL)
		}
		itemURL = u
		anchor = itemAnchor
	}
	if action.TargetAnchor != "" {
		anchor = action.TargetAnchor
	}

	target := rule.Target().Expand(groups, itemURL)
	if anchor != "" && !strings.Contains(target, "#") {
		target += "#" + strings.TrimPrefix(anchor, "#")
	}

	out := Outcome{
		URL:            target,
		StopProcessing: action.StopProcessing,
	}
	switch action.Type {
	case rules.ActionRedirect:
		out.Kind = OutcomeRedirect
		out.StatusCode = action.StatusCode
		out.AppendQueryString = action.AppendQueryString
		out.Cacheability = action.Cacheability
	default:
		out.Kind = OutcomeRewrite
	}
	return out, nil
}

// RedirectLocation returns the Location header value for the outcome, carrying
// rawQuery over when the action asks for it. The query goes before any fragment.
func (o Outcome) RedirectLocation(rawQuery string) string {
	if !o.AppendQueryString || rawQuery == "" {
		return o.URL
	}

	base, fragment := o.URL, ""
	if i := strings.Index(base, "#"); i >= 0 {
		base, fragment = base[:i], base[i:]
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
		if strings.HasSuffix(base, "?") || strings.HasSuffix(base, "&") {
			sep = ""
		}
	}
	return base + sep + rawQuery + fragment
}

func resolutionError(rule *rules.CompiledRule, itemID string, cause error) error {
	if cause == nil {
		cause = ErrNoResolver
	}
	return errors.ResolutionError("could not resolve rule target", cause).
		WithContext("rule_id", rule.ID()).
		WithContext("item_id", itemID)
}
