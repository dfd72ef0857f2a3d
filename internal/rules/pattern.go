package rules

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/gobwas/glob"
)

// matcher tests a subject against a compiled rule pattern. Groups holds the
// whole match at index 0 followed by any capture groups.
type matcher interface {
	match(subject string) (ok bool, groups []string)
	groupCount() int
}

type exactMatcher struct {
	pattern    string
	ignoreCase bool
}

func (m exactMatcher) match(subject string) (bool, []string) {
	if m.ignoreCase {
		if strings.EqualFold(subject, m.pattern) {
			return true, []string{subject}
		}
		return false, nil
	}
	if subject == m.pattern {
		return true, []string{subject}
	}
	return false, nil
}

func (exactMatcher) groupCount() int { return 0 }

type wildcardMatcher struct {
	g          glob.Glob
	ignoreCase bool
}

func (m wildcardMatcher) match(subject string) (bool, []string) {
	candidate := subject
	if m.ignoreCase {
		candidate = strings.ToLower(subject)
	}
	if m.g.Match(candidate) {
		return true, []string{subject}
	}
	return false, nil
}

func (wildcardMatcher) groupCount() int { return 0 }

type regexMatcher struct {
	re *regexp.Regexp
}

func (m regexMatcher) match(subject string) (bool, []string) {
	groups := m.re.FindStringSubmatch(subject)
	if groups == nil {
		return false, nil
	}
	return true, groups
}

func (m regexMatcher) groupCount() int { return m.re.NumSubexp() }

func newMatcher(kind MatchKind, pattern string, ignoreCase bool) (matcher, error) {
	switch kind {
	case ExactPath:
		return exactMatcher{pattern: pattern, ignoreCase: ignoreCase}, nil
	case WildcardPattern:
		source := pattern
		if ignoreCase {
			source = strings.ToLower(source)
		}
		// No separators: * spans path segments the way IIS wildcards do
		g, err := glob.Compile(source)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPattern, err)
		}
		return wildcardMatcher{g: g, ignoreCase: ignoreCase}, nil
	case RegularExpression:
		re, err := compileRegex(pattern, ignoreCase)
		if err != nil {
			return nil, err
		}
		return regexMatcher{re: re}, nil
	default:
		return nil, fmt.Errorf("%w: unknown match kind %q", ErrInvalidPattern, kind)
	}
}

func compileRegex(pattern string, ignoreCase bool) (*regexp.Regexp, error) {
	if ignoreCase {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPattern, err)
	}
	return re, nil
}
