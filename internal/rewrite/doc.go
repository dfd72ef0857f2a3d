// Package rewrite evaluates compiled rule sets against requests.
//
// MatchRequest walks a rule set in order and returns the first rule whose
// pattern and conditions both hold. ResolveAction turns that rule into a
// concrete redirect or rewrite Outcome. Engine ties both to the per-context
// rule caches, reloading a context on its first use and failing open on any
// error so that a broken rule never produces a broken response.
//
// Outbound rules run through the same pipeline against response header values
// instead of the request path.
package rewrite
