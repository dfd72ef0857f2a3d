package rules

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func testRule(id string) *CompiledRule {
	return MustCompile(redirectDef(id, "^/"+id+"$", "/to/"+id))
}

func disabledRule(id string) *CompiledRule {
	def := redirectDef(id, "^/"+id+"$", "/to/"+id)
	def.Enabled = false
	return MustCompile(def)
}

func TestNewRuleSet(t *testing.T) {
	a2 := MustCompile(redirectDef("a", "^/a2$", "/to/a2"))
	s := NewRuleSet(testRule("a"), disabledRule("b"), testRule("c"), a2, nil)

	assert.Equal(t, []string{"a", "c"}, s.IDs())
	r, ok := s.Get("a")
	assert.True(t, ok)
	assert.Same(t, a2, r)
	_, ok = s.Get("b")
	assert.False(t, ok)
}

func TestRuleSet_WithUpsert(t *testing.T) {
	base := NewRuleSet(testRule("a"), testRule("b"), testRule("c"))

	t.Run("replaces in place", func(t *testing.T) {
		b2 := MustCompile(redirectDef("b", "^/b2$", "/to/b2"))
		next := base.WithUpsert(b2)

		assert.Equal(t, []string{"a", "b", "c"}, next.IDs())
		got, _ := next.Get("b")
		assert.Same(t, b2, got)

		old, _ := base.Get("b")
		assert.NotSame(t, b2, old)
	})

	t.Run("appends new id", func(t *testing.T) {
		next := base.WithUpsert(testRule("d"))
		assert.Equal(t, []string{"a", "b", "c", "d"}, next.IDs())
		assert.Equal(t, 3, base.Len())
	})

	t.Run("disabled removes", func(t *testing.T) {
		next := base.WithUpsert(disabledRule("b"))
		assert.Equal(t, []string{"a", "c"}, next.IDs())
	})

	t.Run("disabled absent is a no-op", func(t *testing.T) {
		next := base.WithUpsert(disabledRule("z"))
		assert.True(t, next.Equal(base))
	})

	t.Run("nil set", func(t *testing.T) {
		var s *RuleSet
		next := s.WithUpsert(testRule("a"))
		assert.Equal(t, []string{"a"}, next.IDs())
	})
}

func TestRuleSet_Without(t *testing.T) {
	base := NewRuleSet(testRule("a"), testRule("b"), testRule("c"))

	next := base.Without("b")
	assert.Equal(t, []string{"a", "c"}, next.IDs())
	r, ok := next.Get("c")
	assert.True(t, ok)
	assert.Equal(t, "c", r.ID())
	assert.Equal(t, []string{"a", "b", "c"}, base.IDs())

	assert.True(t, base.Without("missing").Equal(base))

	var empty *RuleSet
	assert.Equal(t, 0, empty.Without("a").Len())
}

func TestRuleSet_RulesIsCopy(t *testing.T) {
	s := NewRuleSet(testRule("a"), testRule("b"))
	rules := s.Rules()
	rules[0] = testRule("z")
	assert.Equal(t, []string{"a", "b"}, s.IDs())
}

func TestRuleSet_Each(t *testing.T) {
	s := NewRuleSet(testRule("a"), testRule("b"), testRule("c"))

	var seen []string
	s.Each(func(r *CompiledRule) bool {
		seen = append(seen, r.ID())
		return r.ID() != "b"
	})
	assert.Equal(t, []string{"a", "b"}, seen)
}

func TestRuleSet_Equal(t *testing.T) {
	a := NewRuleSet(testRule("a"), testRule("b"))
	b := NewRuleSet(testRule("a"), testRule("b"))
	c := NewRuleSet(testRule("b"), testRule("a"))

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(EmptyRuleSet))
	assert.True(t, EmptyRuleSet.Equal(NewRuleSet()))
}

func BenchmarkRuleSet_WithUpsert(b *testing.B) {
	rules := make([]*CompiledRule, 500)
	for i := range rules {
		rules[i] = testRule(fmt.Sprintf("r%d", i))
	}
	s := NewRuleSet(rules...)
	r := testRule("r250")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.WithUpsert(r)
	}
}
