package rules

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\{([0-9]+|[A-Za-z_][A-Za-z0-9_]*)\}`)

type segmentKind int

const (
	segmentLiteral segmentKind = iota
	segmentGroup
	segmentItem
)

type segment struct {
	kind  segmentKind
	text  string
	group int
}

// Template is a parsed action target. Literal text is kept as is; {n} is
// replaced by capture group n ({0} being the whole match) and {item} by the
// resolved URL of the action's target item.
type Template struct {
	source   string
	segments []segment
	usesItem bool
	maxGroup int
}

// ParseTemplate splits source into literal and placeholder segments. groupCount
// is the number of capture groups the rule's pattern provides; hasItem tells
// whether the action names a target item.
func ParseTemplate(source string, groupCount int, hasItem bool) (*Template, error) {
	t := &Template{source: source, maxGroup: -1}

	last := 0
	for _, loc := range placeholderPattern.FindAllStringSubmatchIndex(source, -1) {
		if loc[0] > last {
			t.segments = append(t.segments, segment{kind: segmentLiteral, text: source[last:loc[0]]})
		}
		name := source[loc[2]:loc[3]]

		switch {
		case name == ItemPlaceholder:
			if !hasItem {
				return nil, fmt.Errorf("%w: {%s} without a target item", ErrUndefinedPlaceholder, name)
			}
			t.segments = append(t.segments, segment{kind: segmentItem})
			t.usesItem = true
		default:
			n, err := strconv.Atoi(name)
			if err != nil {
				return nil, fmt.Errorf("%w: {%s}", ErrUndefinedPlaceholder, name)
			}
			if n > groupCount {
				return nil, fmt.Errorf("%w: {%d} but the pattern has %d capture groups", ErrUndefinedPlaceholder, n, groupCount)
			}
			t.segments = append(t.segments, segment{kind: segmentGroup, group: n})
			if n > t.maxGroup {
				t.maxGroup = n
			}
		}
		last = loc[1]
	}
	if last < len(source) {
		t.segments = append(t.segments, segment{kind: segmentLiteral, text: source[last:]})
	}

	return t, nil
}

// Source returns the template text as written
func (t *Template) Source() string { return t.source }

// UsesItem reports whether the template contains the {item} placeholder
func (t *Template) UsesItem() bool { return t.usesItem }

// Expand substitutes groups and itemURL into the template. Groups missing from
// the slice expand to the empty string.
func (t *Template) Expand(groups []string, itemURL string) string {
	var b strings.Builder
	b.Grow(len(t.source))
	for _, s := range t.segments {
		switch s.kind {
		case segmentLiteral:
			b.WriteString(s.text)
		case segmentGroup:
			if s.group < len(groups) {
				b.WriteString(groups[s.group])
			}
		case segmentItem:
			b.WriteString(itemURL)
		}
	}
	return b.String()
}
