// Package rulecache keeps the compiled rule sets of each rewrite context in
// memory. Readers load the published set with a single atomic read and never
// block; writers serialize on a mutex, build a new set and publish it with an
// atomic swap, so a reader sees either the whole old set or the whole new one.
package rulecache

import (
	"sync"
	"sync/atomic"

	"url-rewrite/internal/rules"
)

// Cache holds the inbound and outbound rule sets of one context
type Cache struct {
	context  string
	inbound  atomic.Pointer[rules.RuleSet]
	outbound atomic.Pointer[rules.RuleSet]
	mu       sync.Mutex
}

// New returns an empty, never-loaded cache for contextName
func New(contextName string) *Cache {
	return &Cache{context: contextName}
}

// Context returns the name of the context this cache serves
func (c *Cache) Context() string {
	return c.context
}

func (c *Cache) slot(direction rules.Direction) *atomic.Pointer[rules.RuleSet] {
	if direction == rules.Outbound {
		return &c.outbound
	}
	return &c.inbound
}

// Get returns the published set for direction, or nil if the direction has
// never been loaded. An empty set means loaded with no rules.
func (c *Cache) Get(direction rules.Direction) *rules.RuleSet {
	return c.slot(direction).Load()
}

// Loaded reports whether direction has been populated
func (c *Cache) Loaded(direction rules.Direction) bool {
	return c.Get(direction) != nil
}

// ReplaceAll publishes set as the complete rule set for direction
func (c *Cache) ReplaceAll(direction rules.Direction, set *rules.RuleSet) {
	if set == nil {
		set = rules.EmptyRuleSet
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.slot(direction).Store(set)
}

// Upsert publishes a set where rule replaces the rule with the same ID in
// place or is appended. A disabled rule is removed. It reports false and
// changes nothing when the direction has never been loaded, leaving the next
// full load to pick the rule up.
func (c *Cache) Upsert(rule *rules.CompiledRule) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	slot := c.slot(rule.Direction())
	current := slot.Load()
	if current == nil {
		return false
	}
	slot.Store(current.WithUpsert(rule))
	return true
}

// Remove publishes a set without rule id, looking in both directions. It
// reports whether a rule was removed.
func (c *Cache) Remove(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := false
	for _, slot := range []*atomic.Pointer[rules.RuleSet]{&c.inbound, &c.outbound} {
		current := slot.Load()
		if current == nil {
			continue
		}
		if _, ok := current.Get(id); ok {
			slot.Store(current.Without(id))
			removed = true
		}
	}
	return removed
}

// Clear forgets both directions so the next read is a miss
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inbound.Store(nil)
	c.outbound.Store(nil)
}

// Stats summarizes the cache for the admin API
type Stats struct {
	Context       string `json:"context"`
	InboundRules  int    `json:"inbound_rules"`
	OutboundRules int    `json:"outbound_rules"`
	InboundReady  bool   `json:"inbound_loaded"`
	OutboundReady bool   `json:"outbound_loaded"`
}

// Stats returns rule counts and load state for both directions
func (c *Cache) Stats() Stats {
	in, out := c.inbound.Load(), c.outbound.Load()
	return Stats{
		Context:       c.context,
		InboundRules:  in.Len(),
		OutboundRules: out.Len(),
		InboundReady:  in != nil,
		OutboundReady: out != nil,
	}
}
