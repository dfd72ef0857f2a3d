package rewrite

import "errors"

var (
	// ErrNoResolver is returned when a rule targets an item and the engine has no resolver
	ErrNoResolver = errors.New("no item resolver configured")

	// ErrEmptyItemURL is returned when the resolver knows the item but it has no URL
	ErrEmptyItemURL = errors.New("item has no url")
)
