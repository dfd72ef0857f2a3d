package rewrite

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"url-rewrite/internal/common/errors"
	"url-rewrite/internal/common/logging"
	"url-rewrite/internal/rulecache"
	"url-rewrite/internal/rules"
)

// Loader rebuilds the cached rule set of a context from its rule store
type Loader interface {
	Reload(ctx context.Context, contextName string, direction rules.Direction) (*rules.RuleSet, error)
}

// ContextDirectory reports whether a context exists in the rule store
type ContextDirectory interface {
	Known(ctx context.Context, contextName string) bool
}

// Options tune an Engine
type Options struct {
	// IgnoreURLPrefixes lists path prefixes the engine never rewrites, compared
	// case-insensitively against path and query
	IgnoreURLPrefixes []string
	// Contexts gates which uncached contexts may be loaded. Requests for an
	// unknown context pass through untouched. Nil loads any context.
	Contexts ContextDirectory
	Logger   logging.Logger
}

// MatchResult is the outcome of evaluating one request. Err is set when
// evaluation failed and the engine fell through as if nothing matched.
type MatchResult struct {
	Matched bool
	Rule    *rules.CompiledRule
	Groups  []string
	Outcome Outcome
	Err     error
}

// HeaderRewrite is a new value for one response header
type HeaderRewrite struct {
	Header   string
	Original string
	Value    string
	Rule     *rules.CompiledRule
}

// OutboundResult lists the header rewrites for one response
type OutboundResult struct {
	Rewrites []HeaderRewrite
	Err      error
}

// Apply writes the rewritten values into h
func (r OutboundResult) Apply(h http.Header) {
	for _, rw := range r.Rewrites {
		h.Set(rw.Header, rw.Value)
	}
}

// Engine is the entry point the HTTP layer calls per request. It is safe for
// concurrent use.
type Engine struct {
	registry *rulecache.Registry
	loader   Loader
	resolver ItemResolver
	contexts ContextDirectory
	ignore   []string
	logger   logging.Logger
}

// NewEngine creates an engine reading rule sets from registry. loader is used
// on a cache miss and resolver for item-backed targets; either may be nil.
func NewEngine(registry *rulecache.Registry, loader Loader, resolver ItemResolver, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	ignore := make([]string, 0, len(opts.IgnoreURLPrefixes))
	for _, p := range opts.IgnoreURLPrefixes {
		if p = strings.TrimSpace(p); p != "" {
			ignore = append(ignore, strings.ToLower(p))
		}
	}

	return &Engine{
		registry: registry,
		loader:   loader,
		resolver: resolver,
		contexts: opts.Contexts,
		ignore:   ignore,
		logger:   logger.WithFields(logging.Component("rewrite_engine")),
	}
}

// Registry returns the rule caches the engine reads from
func (e *Engine) Registry() *rulecache.Registry {
	return e.registry
}

// Ignored reports whether uri falls under one of the ignored prefixes
func (e *Engine) Ignored(uri *url.URL) bool {
	if len(e.ignore) == 0 || uri == nil {
		return false
	}
	subject := uri.Path
	if uri.RawQuery != "" {
		subject += "?" + uri.RawQuery
	}
	subject = strings.ToLower(subject)
	for _, prefix := range e.ignore {
		if strings.HasPrefix(subject, prefix) {
			return true
		}
	}
	return false
}

// Rewrite evaluates the inbound rules of contextName against req. It never
// fails: errors are logged, reported in MatchResult.Err and treated as no match.
func (e *Engine) Rewrite(ctx context.Context, contextName string, req *Request) (result MatchResult) {
	defer func() {
		if r := recover(); r != nil {
			err := errors.InternalError(fmt.Sprintf("rule evaluation panicked: %v", r), nil)
			e.logger.Error("Recovered from panic during rewrite", err, logging.RuleContext(contextName))
			result = MatchResult{Err: err}
		}
	}()

	if req == nil || req.URI == nil || e.Ignored(req.URI) {
		return MatchResult{}
	}
	if err := ctx.Err(); err != nil {
		return MatchResult{Err: err}
	}

	set, err := e.ruleSet(ctx, contextName, rules.Inbound)
	if err != nil {
		e.logger.Warn("Rules unavailable, passing request through",
			logging.RuleContext(contextName),
			logging.Err(err),
		)
		return MatchResult{Err: err}
	}

	m, ok := MatchRequest(req.URI, req.Facts, set, req.SiteName)
	if !ok {
		return MatchResult{}
	}

	outcome, err := ResolveAction(ctx, m.Rule, m.Groups, e.resolver)
	if err != nil {
		e.logger.Warn("Rule matched but its action could not be resolved",
			logging.RuleContext(contextName),
			logging.RuleID(m.Rule.ID()),
			logging.Field{"path", req.URI.Path},
			logging.Err(err),
		)
		return MatchResult{Err: err}
	}

	e.logger.Debug("Rule matched",
		logging.RuleContext(contextName),
		logging.RuleID(m.Rule.ID()),
		logging.Field{"rule_name", m.Rule.Name()},
		logging.Field{"path", req.URI.Path},
		logging.Field{"target", outcome.URL},
	)

	return MatchResult{
		Matched: true,
		Rule:    m.Rule,
		Groups:  m.Groups,
		Outcome: outcome,
	}
}

// RewriteOutbound evaluates the outbound rules of contextName against the
// response headers. Each header is rewritten by at most one rule, the first
// that matches it. Conditions see requestFacts plus a RESPONSE_* fact per
// response header. headers is not modified; see OutboundResult.Apply.
func (e *Engine) RewriteOutbound(ctx context.Context, contextName string, headers http.Header, requestFacts rules.Facts, siteName string) (result OutboundResult) {
	defer func() {
		if r := recover(); r != nil {
			err := errors.InternalError(fmt.Sprintf("outbound rule evaluation panicked: %v", r), nil)
			e.logger.Error("Recovered from panic during outbound rewrite", err, logging.RuleContext(contextName))
			result = OutboundResult{Err: err}
		}
	}()

	if err := ctx.Err(); err != nil {
		return OutboundResult{Err: err}
	}

	set, err := e.ruleSet(ctx, contextName, rules.Outbound)
	if err != nil {
		e.logger.Warn("Outbound rules unavailable, leaving response untouched",
			logging.RuleContext(contextName),
			logging.Err(err),
		)
		return OutboundResult{Err: err}
	}
	if set.Len() == 0 {
		return OutboundResult{}
	}

	facts := make(rules.Facts, len(requestFacts)+len(headers))
	for k, v := range requestFacts {
		facts[k] = v
	}
	for name := range headers {
		facts[rules.ResponseHeaderFact(name)] = headers.Get(name)
	}

	done := make(map[string]bool)
	set.Each(func(rule *rules.CompiledRule) bool {
		name := http.CanonicalHeaderKey(rule.MatchHeader())
		if done[name] {
			return true
		}
		values, present := headers[name]
		if !present || len(values) == 0 {
			return true
		}

		groups, ok := matchHeaderRule(rule, name, values[0], facts, siteName)
		if !ok {
			return true
		}
		outcome, err := ResolveAction(ctx, rule, groups, e.resolver)
		if err != nil {
			e.logger.Warn("Outbound rule matched but its action could not be resolved",
				logging.RuleContext(contextName),
				logging.RuleID(rule.ID()),
				logging.Field{"header", name},
				logging.Err(err),
			)
			return true
		}

		done[name] = true
		result.Rewrites = append(result.Rewrites, HeaderRewrite{
			Header:   name,
			Original: values[0],
			Value:    outcome.URL,
			Rule:     rule,
		})
		return true
	})
	return result
}

// ruleSet returns the cached set for the direction, reloading it once when the
// context was never loaded. A context the directory does not know gets an
// empty set and no cache.
func (e *Engine) ruleSet(ctx context.Context, contextName string, direction rules.Direction) (*rules.RuleSet, error) {
	cache, ok := e.registry.Lookup(contextName)
	if !ok {
		if e.contexts != nil && !e.contexts.Known(ctx, contextName) {
			e.logger.Debug("Unknown context, passing through", logging.RuleContext(contextName))
			return rules.EmptyRuleSet, nil
		}
		cache = e.registry.For(contextName)
	}
	if set := cache.Get(direction); set != nil {
		return set, nil
	}
	if e.loader == nil {
		return nil, errors.CacheMissError(contextName).WithContext("direction", string(direction))
	}

	set, err := e.loader.Reload(ctx, contextName, direction)
	if err != nil {
		return nil, err
	}
	if set != nil {
		return set, nil
	}
	if set = cache.Get(direction); set != nil {
		return set, nil
	}
	return nil, errors.CacheMissError(contextName).WithContext("direction", string(direction))
}
