package rules

import "reflect"

// RuleSet is an immutable ordered list of enabled compiled rules with unique
// IDs. Every modifying operation returns a new set and leaves the receiver
// untouched, so a published set can be read without locking.
type RuleSet struct {
	rules []*CompiledRule
	index map[string]int
}

// EmptyRuleSet is a set with no rules
var EmptyRuleSet = &RuleSet{index: map[string]int{}}

// NewRuleSet builds a set from rules in order. Disabled rules are skipped; when
// an ID repeats, the later rule replaces the earlier one at the earlier position.
func NewRuleSet(rules ...*CompiledRule) *RuleSet {
	s := &RuleSet{
		rules: make([]*CompiledRule, 0, len(rules)),
		index: make(map[string]int, len(rules)),
	}
	for _, r := range rules {
		if r == nil || !r.Enabled() {
			continue
		}
		if i, ok := s.index[r.ID()]; ok {
			s.rules[i] = r
			continue
		}
		s.index[r.ID()] = len(s.rules)
		s.rules = append(s.rules, r)
	}
	return s
}

// Len returns the number of rules
func (s *RuleSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.rules)
}

// Rules returns the rules in order. The returned slice is a copy.
func (s *RuleSet) Rules() []*CompiledRule {
	if s == nil {
		return nil
	}
	out := make([]*CompiledRule, len(s.rules))
	copy(out, s.rules)
	return out
}

// Each calls fn for every rule in order until fn returns false
func (s *RuleSet) Each(fn func(*CompiledRule) bool) {
	if s == nil {
		return
	}
	for _, r := range s.rules {
		if !fn(r) {
			return
		}
	}
}

// Get returns the rule with the given ID
func (s *RuleSet) Get(id string) (*CompiledRule, bool) {
	if s == nil {
		return nil, false
	}
	i, ok := s.index[id]
	if !ok {
		return nil, false
	}
	return s.rules[i], true
}

// IDs returns the rule IDs in order
func (s *RuleSet) IDs() []string {
	if s == nil {
		return nil
	}
	ids := make([]string, len(s.rules))
	for i, r := range s.rules {
		ids[i] = r.ID()
	}
	return ids
}

// WithUpsert returns a set where rule replaces the rule with the same ID in
// place, or is appended if the ID is new. A disabled rule is removed instead.
func (s *RuleSet) WithUpsert(rule *CompiledRule) *RuleSet {
	if !rule.Enabled() {
		return s.Without(rule.ID())
	}

	i, exists := s.lookup(rule.ID())
	n := s.Len()
	out := &RuleSet{index: make(map[string]int, n+1)}
	if exists {
		out.rules = make([]*CompiledRule, n)
		copy(out.rules, s.rules)
		out.rules[i] = rule
	} else {
		out.rules = make([]*CompiledRule, n, n+1)
		if n > 0 {
			copy(out.rules, s.rules)
		}
		out.rules = append(out.rules, rule)
	}
	for j, r := range out.rules {
		out.index[r.ID()] = j
	}
	return out
}

// Without returns a set with the rule id removed. Removing an absent id
// returns an equal set.
func (s *RuleSet) Without(id string) *RuleSet {
	i, ok := s.lookup(id)
	if !ok {
		if s == nil {
			return EmptyRuleSet
		}
		return s
	}

	out := &RuleSet{
		rules: make([]*CompiledRule, 0, len(s.rules)-1),
		index: make(map[string]int, len(s.rules)-1),
	}
	out.rules = append(out.rules, s.rules[:i]...)
	out.rules = append(out.rules, s.rules[i+1:]...)
	for j, r := range out.rules {
		out.index[r.ID()] = j
	}
	return out
}

// Equal reports whether both sets hold the same definitions in the same order
func (s *RuleSet) Equal(other *RuleSet) bool {
	if s.Len() != other.Len() {
		return false
	}
	for i := 0; i < s.Len(); i++ {
		if !reflect.DeepEqual(s.rules[i].def, other.rules[i].def) {
			return false
		}
	}
	return true
}

func (s *RuleSet) lookup(id string) (int, bool) {
	if s == nil {
		return 0, false
	}
	i, ok := s.index[id]
	return i, ok
}
