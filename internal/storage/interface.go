// Package storage defines the rule-record store the rewrite engine reads from:
// the Source of rule definitions, the ItemResolver for item-backed targets,
// and the writable Store behind the admin API. Adapters live in the sqlite,
// postgres and file subpackages.
package storage

import (
	"context"
	"errors"

	"url-rewrite/internal/rules"
)

// ErrNotFound is returned when a rule, folder or item does not exist
var ErrNotFound = errors.New("record not found")

// ErrMalformedRecord marks a stored record whose body cannot be decoded.
// Loaders skip such records and keep the rest of the context.
var ErrMalformedRecord = errors.New("malformed rule record")

// ErrReadOnly is returned by stores that cannot be written through the API
var ErrReadOnly = errors.New("store is read-only")

// Source supplies rule definitions for a context
type Source interface {
	// LoadAll returns every rule of the context for direction, in priority
	// order, with folder site restrictions applied. Disabled rules are included.
	LoadAll(ctx context.Context, contextName string, direction rules.Direction) ([]rules.RuleDefinition, error)

	// LoadOne returns a single rule by id, or ErrNotFound
	LoadOne(ctx context.Context, contextName, id string) (*rules.RuleDefinition, error)
}

// ItemResolver turns an item reference into its public URL
type ItemResolver interface {
	Resolve(ctx context.Context, itemID string) (url string, anchor string, err error)
}

// Backend is a readable rule store
type Backend interface {
	Source
	ItemResolver

	// Contexts lists the contexts that have at least one folder or rule
	Contexts(ctx context.Context) ([]string, error)
	Health(ctx context.Context) error
	Close() error
}

// Writer persists rule records
type Writer interface {
	SaveRule(ctx context.Context, record RuleRecord) error
	DeleteRule(ctx context.Context, contextName, id string) error
	SaveFolder(ctx context.Context, folder Folder) error
	// DeleteFolder removes the folder and every rule in it
	DeleteFolder(ctx context.Context, contextName, id string) error
	SaveItem(ctx context.Context, item Item) error
	DeleteItem(ctx context.Context, id string) error
}

// Store is a readable and writable rule store
type Store interface {
	Backend
	Writer
}
