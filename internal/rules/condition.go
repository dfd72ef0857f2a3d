package rules

import (
	"regexp"
	"strings"
)

// CompiledCondition is a condition with its regular expression prepared
type CompiledCondition struct {
	input      string
	comparator Comparator
	value      string
	ignoreCase bool
	negate     bool
	re         *regexp.Regexp
}

// CompileCondition prepares c for evaluation
func CompileCondition(c Condition) (CompiledCondition, error) {
	cc := CompiledCondition{
		input:      c.Input,
		comparator: c.Comparator,
		value:      c.Value,
		ignoreCase: c.IgnoreCase,
		negate:     c.Negate,
	}
	if cc.comparator == "" {
		cc.comparator = ComparePattern
	}

	if cc.comparator == ComparePattern {
		re, err := compileRegex(c.Value, c.IgnoreCase)
		if err != nil {
			return CompiledCondition{}, err
		}
		cc.re = re
	}
	return cc, nil
}

// Evaluate compares the input read from facts with the condition value. A
// missing input is compared as the empty string.
func (c CompiledCondition) Evaluate(facts Facts) bool {
	actual := facts.Get(c.input)

	var result bool
	switch c.comparator {
	case CompareEquals:
		if c.ignoreCase {
			result = strings.EqualFold(actual, c.value)
		} else {
			result = actual == c.value
		}
	default:
		result = c.re.MatchString(actual)
	}

	if c.negate {
		return !result
	}
	return result
}

// Input returns the name of the fact the condition reads
func (c CompiledCondition) Input() string { return c.input }

// EvaluateAll combines conditions under grouping, short-circuiting. An empty
// list satisfies MatchAll and fails MatchAny.
func EvaluateAll(conditions []CompiledCondition, grouping Grouping, facts Facts) bool {
	if grouping == MatchAny {
		for _, c := range conditions {
			if c.Evaluate(facts) {
				return true
			}
		}
		return false
	}

	for _, c := range conditions {
		if !c.Evaluate(facts) {
			return false
		}
	}
	return true
}
