package rulecache

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"url-rewrite/internal/rules"
)

func rule(id string, enabled bool) *rules.CompiledRule {
	return rules.MustCompile(rules.RuleDefinition{
		ID:      id,
		Enabled: enabled,
		Pattern: "^/" + id + "$",
		Action: rules.Action{
			Type:           rules.ActionRewrite,
			TargetTemplate: "/to/" + id,
		},
	})
}

func outboundRule(id string) *rules.CompiledRule {
	return rules.MustCompile(rules.RuleDefinition{
		ID:          id,
		Enabled:     true,
		Direction:   rules.Outbound,
		Pattern:     "^http://internal(.*)$",
		MatchHeader: "Location",
		Action: rules.Action{
			Type:           rules.ActionRewrite,
			TargetTemplate: "https://public{1}",
		},
	})
}

func TestCache_GetNeverLoaded(t *testing.T) {
	c := New("web")
	assert.Equal(t, "web", c.Context())
	assert.Nil(t, c.Get(rules.Inbound))
	assert.False(t, c.Loaded(rules.Inbound))

	c.ReplaceAll(rules.Inbound, nil)
	set := c.Get(rules.Inbound)
	require.NotNil(t, set)
	assert.Equal(t, 0, set.Len())
	assert.True(t, c.Loaded(rules.Inbound))
	assert.False(t, c.Loaded(rules.Outbound))
}

func TestCache_ReplaceAll(t *testing.T) {
	c := New("web")
	c.ReplaceAll(rules.Inbound, rules.NewRuleSet(rule("a", true), rule("b", true)))
	c.ReplaceAll(rules.Outbound, rules.NewRuleSet(outboundRule("o")))

	assert.Equal(t, []string{"a", "b"}, c.Get(rules.Inbound).IDs())
	assert.Equal(t, []string{"o"}, c.Get(rules.Outbound).IDs())
}

func TestCache_Upsert(t *testing.T) {
	c := New("web")

	// ignored until the direction is loaded
	assert.False(t, c.Upsert(rule("a", true)))
	assert.Nil(t, c.Get(rules.Inbound))

	c.ReplaceAll(rules.Inbound, rules.NewRuleSet(rule("a", true), rule("b", true)))
	before := c.Get(rules.Inbound)

	assert.True(t, c.Upsert(rule("c", true)))
	assert.Equal(t, []string{"a", "b", "c"}, c.Get(rules.Inbound).IDs())

	replacement := rule("a", true)
	assert.True(t, c.Upsert(replacement))
	assert.Equal(t, []string{"a", "b", "c"}, c.Get(rules.Inbound).IDs())
	got, _ := c.Get(rules.Inbound).Get("a")
	assert.Same(t, replacement, got)

	assert.True(t, c.Upsert(rule("b", false)))
	assert.Equal(t, []string{"a", "c"}, c.Get(rules.Inbound).IDs())

	// the earlier published set is untouched
	assert.Equal(t, []string{"a", "b"}, before.IDs())
}

func TestCache_UpsertRoutesByDirection(t *testing.T) {
	c := New("web")
	c.ReplaceAll(rules.Inbound, rules.EmptyRuleSet)
	c.ReplaceAll(rules.Outbound, rules.EmptyRuleSet)

	assert.True(t, c.Upsert(outboundRule("o")))
	assert.Equal(t, 0, c.Get(rules.Inbound).Len())
	assert.Equal(t, []string{"o"}, c.Get(rules.Outbound).IDs())
}

func TestCache_Remove(t *testing.T) {
	c := New("web")
	assert.False(t, c.Remove("a"))

	c.ReplaceAll(rules.Inbound, rules.NewRuleSet(rule("a", true), rule("b", true)))
	c.ReplaceAll(rules.Outbound, rules.NewRuleSet(outboundRule("o")))
	unchanged := c.Get(rules.Inbound)

	assert.False(t, c.Remove("R1"))
	assert.Same(t, unchanged, c.Get(rules.Inbound))

	assert.True(t, c.Remove("a"))
	assert.Equal(t, []string{"b"}, c.Get(rules.Inbound).IDs())

	assert.True(t, c.Remove("o"))
	assert.Equal(t, 0, c.Get(rules.Outbound).Len())
	assert.True(t, c.Loaded(rules.Outbound))
}

func TestCache_UpsertThenRemove(t *testing.T) {
	c := New("web")
	c.ReplaceAll(rules.Inbound, rules.NewRuleSet(rule("a", true)))

	c.Upsert(rule("x", true))
	c.Upsert(rule("x", true))
	c.Remove("x")

	_, ok := c.Get(rules.Inbound).Get("x")
	assert.False(t, ok)
	assert.Equal(t, []string{"a"}, c.Get(rules.Inbound).IDs())
}

func TestCache_ClearAndStats(t *testing.T) {
	c := New("web")
	c.ReplaceAll(rules.Inbound, rules.NewRuleSet(rule("a", true), rule("b", true)))

	stats := c.Stats()
	assert.Equal(t, Stats{Context: "web", InboundRules: 2, InboundReady: true}, stats)

	c.Clear()
	assert.Nil(t, c.Get(rules.Inbound))
	assert.False(t, c.Stats().InboundReady)
}

// Readers racing a writer must always see one of the published sets whole
func TestCache_ConcurrentReadersSeeWholeSets(t *testing.T) {
	c := New("web")

	const size = 50
	build := func(gen int) *rules.RuleSet {
		rs := make([]*rules.CompiledRule, size)
		for i := range rs {
			rs[i] = rule(fmt.Sprintf("g%d-r%d", gen, i), true)
		}
		return rules.NewRuleSet(rs...)
	}
	sets := []*rules.RuleSet{build(0), build(1), build(2)}
	c.ReplaceAll(rules.Inbound, sets[0])

	var wg sync.WaitGroup
	stop := make(chan struct{})
	errs := make(chan string, 16)

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				set := c.Get(rules.Inbound)
				ids := set.IDs()
				if len(ids) != size {
					errs <- fmt.Sprintf("saw %d rules", len(ids))
					return
				}
				prefix := ids[0][:3]
				for _, id := range ids {
					if id[:3] != prefix {
						errs <- "saw rules from two generations"
						return
					}
				}
			}
		}()
	}

	for i := 0; i < 300; i++ {
		c.ReplaceAll(rules.Inbound, sets[i%len(sets)])
	}
	close(stop)
	wg.Wait()
	close(errs)

	for e := range errs {
		t.Error(e)
	}
}
