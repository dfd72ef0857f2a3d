package rules

import "errors"

var (
	// ErrInvalidDefinition is returned when a definition fails structural validation
	ErrInvalidDefinition = errors.New("invalid rule definition")

	// ErrInvalidPattern is returned when a rule or condition pattern cannot be compiled
	ErrInvalidPattern = errors.New("invalid pattern")

	// ErrUndefinedPlaceholder is returned when a target template references a
	// placeholder the rule cannot supply
	ErrUndefinedPlaceholder = errors.New("undefined placeholder")

	// ErrInvalidStatusCode is returned when a redirect uses an unsupported status code
	ErrInvalidStatusCode = errors.New("invalid redirect status code")

	// ErrMissingTarget is returned when an action has neither a template nor a target item
	ErrMissingTarget = errors.New("action target is required")

	// ErrInvalidOutboundRule is returned when an outbound rule is not a header rewrite
	ErrInvalidOutboundRule = errors.New("invalid outbound rule")
)
