package storage

import (
	"context"

	"url-rewrite/internal/circuitbreaker"
	"url-rewrite/internal/rules"
)

// Guarded routes the reads of a Backend through a circuit breaker. ErrNotFound
// is an answer, not a failure, and never opens the circuit.
type Guarded struct {
	Backend
	breaker *circuitbreaker.Breaker
}

// NewGuarded wraps backend with breaker. Pass a breaker created with
// ErrNotFound among its expected errors.
func NewGuarded(backend Backend, breaker *circuitbreaker.Breaker) *Guarded {
	return &Guarded{Backend: backend, breaker: breaker}
}

// Breaker returns the breaker guarding the backend
func (g *Guarded) Breaker() *circuitbreaker.Breaker {
	return g.breaker
}

func (g *Guarded) LoadAll(ctx context.Context, contextName string, direction rules.Direction) ([]rules.RuleDefinition, error) {
	var defs []rules.RuleDefinition
	err := g.breaker.Execute(func() error {
		var err error
		defs, err = g.Backend.LoadAll(ctx, contextName, direction)
		return err
	})
	return defs, err
}

func (g *Guarded) LoadOne(ctx context.Context, contextName, id string) (*rules.RuleDefinition, error) {
	var def *rules.RuleDefinition
	err := g.breaker.Execute(func() error {
		var err error
		def, err = g.Backend.LoadOne(ctx, contextName, id)
		return err
	})
	return def, err
}

func (g *Guarded) Resolve(ctx context.Context, itemID string) (string, string, error) {
	var url, anchor string
	err := g.breaker.Execute(func() error {
		var err error
		url, anchor, err = g.Backend.Resolve(ctx, itemID)
		return err
	})
	return url, anchor, err
}
