package rewrite

import (
	"net/url"
	"strings"

	"url-rewrite/internal/rules"
)

// Request is one inbound request as seen by the engine
type Request struct {
	URI      *url.URL
	Facts    rules.Facts
	SiteName string
}

// Match is the rule that fired and the groups its pattern captured, the whole
// match first
type Match struct {
	Rule   *rules.CompiledRule
	Groups []string
}

// MatchRequest returns the first rule of set, in order, whose site restriction
// admits siteName and whose pattern and conditions both hold for uri
func MatchRequest(uri *url.URL, facts rules.Facts, set *rules.RuleSet, siteName string) (Match, bool) {
	if uri == nil {
		return Match{}, false
	}

	var found Match
	set.Each(func(rule *rules.CompiledRule) bool {
		if !siteApplies(rule.SiteRestriction(), siteName) {
			return true
		}
		ok, groups := rule.MatchPattern(requestSubject(rule, uri))
		if !ok || !rule.MatchConditions(facts) {
			return true
		}
		found = Match{Rule: rule, Groups: groups}
		return false
	})
	return found, found.Rule != nil
}

// MatchHeader returns the first rule of set that targets the header name and
// matches its value
func MatchHeader(name, value string, facts rules.Facts, set *rules.RuleSet, siteName string) (Match, bool) {
	var found Match
	set.Each(func(rule *rules.CompiledRule) bool {
		groups, ok := matchHeaderRule(rule, name, value, facts, siteName)
		if !ok {
			return true
		}
		found = Match{Rule: rule, Groups: groups}
		return false
	})
	return found, found.Rule != nil
}

func matchHeaderRule(rule *rules.CompiledRule, name, value string, facts rules.Facts, siteName string) ([]string, bool) {
	if !strings.EqualFold(rule.MatchHeader(), name) || !siteApplies(rule.SiteRestriction(), siteName) {
		return nil, false
	}
	ok, groups := rule.MatchPattern(value)
	if !ok || !rule.MatchConditions(facts) {
		return nil, false
	}
	return groups, true
}

// requestSubject is the string a rule's pattern is tested against: the path,
// plus the query when the rule asks for it
func requestSubject(rule *rules.CompiledRule, uri *url.URL) string {
	path := uri.Path
	if path == "" {
		path = "/"
	}
	if rule.MatchQueryString() && uri.RawQuery != "" {
		return path + "?" + uri.RawQuery
	}
	return path
}

func siteApplies(restriction, siteName string) bool {
	return restriction == "" || strings.EqualFold(restriction, siteName)
}
