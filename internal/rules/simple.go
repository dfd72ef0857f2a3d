package rules

import (
	"regexp"
	"strings"
)

// SimpleRedirect is the short form of a redirect: a path and where it goes.
// Exactly one of TargetURL and TargetItemID is expected.
type SimpleRedirect struct {
	ID              string `json:"id" yaml:"id"`
	Name            string `json:"name" yaml:"name"`
	Enabled         bool   `json:"enabled" yaml:"enabled"`
	Path            string `json:"path" yaml:"path"`
	TargetURL       string `json:"target_url,omitempty" yaml:"target_url,omitempty"`
	TargetItemID    string `json:"target_item_id,omitempty" yaml:"target_item_id,omitempty"`
	TargetAnchor    string `json:"target_anchor,omitempty" yaml:"target_anchor,omitempty"`
	SiteRestriction string `json:"site_restriction,omitempty" yaml:"site_restriction,omitempty"`
}

// FromSimpleRedirect expands s into a full definition: a case-insensitive
// expression matching the path with or without a trailing slash, redirecting
// permanently and carrying the query string over.
func FromSimpleRedirect(s SimpleRedirect) RuleDefinition {
	path := strings.TrimSuffix(s.Path, "/")

	return RuleDefinition{
		ID:                s.ID,
		Name:              s.Name,
		Enabled:           s.Enabled,
		Direction:         Inbound,
		Pattern:           "^" + regexp.QuoteMeta(path) + "/?$",
		MatchKind:         RegularExpression,
		IgnoreCase:        true,
		ConditionGrouping: MatchAll,
		SiteRestriction:   s.SiteRestriction,
		Action: Action{
			Type:              ActionRedirect,
			StatusCode:        301,
			TargetTemplate:    s.TargetURL,
			TargetItemID:      s.TargetItemID,
			TargetAnchor:      s.TargetAnchor,
			AppendQueryString: true,
			Cacheability:      CacheNoCache,
			StopProcessing:    false,
		},
	}
}
