package rewrite

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"url-rewrite/internal/common/errors"
	"url-rewrite/internal/common/logging"
	"url-rewrite/internal/rulecache"
	"url-rewrite/internal/rules"
)

// stubLoader publishes fixed sets into the registry the way the reloader does
type stubLoader struct {
	registry *rulecache.Registry
	sets     map[rules.Direction]*rules.RuleSet
	err      error
	publish  bool
	calls    atomic.Int32
}

func (l *stubLoader) Reload(_ context.Context, contextName string, direction rules.Direction) (*rules.RuleSet, error) {
	l.calls.Add(1)
	if l.err != nil {
		return nil, l.err
	}
	set := l.sets[direction]
	if set == nil {
		set = rules.EmptyRuleSet
	}
	l.registry.For(contextName).ReplaceAll(direction, set)
	if l.publish {
		return nil, nil
	}
	return set, nil
}

func newTestEngine(loader Loader, resolver ItemResolver, registry *rulecache.Registry, ignore ...string) *Engine {
	return NewEngine(registry, loader, resolver, Options{
		IgnoreURLPrefixes: ignore,
		Logger:            logging.NewNopLogger(),
	})
}

func TestEngine_Rewrite_Scenarios(t *testing.T) {
	registry := rulecache.NewRegistry()
	registry.For("master").ReplaceAll(rules.Inbound, rules.NewRuleSet(
		redirectRule("old", `^/old-page/?$`, "/new-page"),
		rewriteRule("blog", `^/blog/(.+)$`, "/articles/{1}"),
	))
	engine := newTestEngine(nil, nil, registry)

	tests := []struct {
		name    string
		path    string
		matched bool
		kind    OutcomeKind
		url     string
		status  int
	}{
		{name: "redirect", path: "/old-page", matched: true, kind: OutcomeRedirect, url: "/new-page", status: 301},
		{name: "anchored", path: "/old-page/extra"},
		{name: "rewrite with group", path: "/blog/hello-world", matched: true, kind: OutcomeRewrite, url: "/articles/hello-world"},
		{name: "no rule", path: "/elsewhere"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := engine.Rewrite(context.Background(), "master", &Request{URI: mustURL(t, tt.path)})
			require.NoError(t, res.Err)
			assert.Equal(t, tt.matched, res.Matched)
			if !tt.matched {
				return
			}
			assert.Equal(t, tt.kind, res.Outcome.Kind)
			assert.Equal(t, tt.url, res.Outcome.URL)
			assert.Equal(t, tt.status, res.Outcome.StatusCode)
		})
	}
}

func TestEngine_Rewrite_ReloadsOnCacheMiss(t *testing.T) {
	for _, publishOnly := range []bool{false, true} {
		t.Run(fmt.Sprintf("publish_only=%v", publishOnly), func(t *testing.T) {
			registry := rulecache.NewRegistry()
			loader := &stubLoader{
				registry: registry,
				publish:  publishOnly,
				sets: map[rules.Direction]*rules.RuleSet{
					rules.Inbound: rules.NewRuleSet(redirectRule("old", `^/old$`, "/new")),
				},
			}
			engine := newTestEngine(loader, nil, registry)

			res := engine.Rewrite(context.Background(), "web", &Request{URI: mustURL(t, "/old")})
			require.NoError(t, res.Err)
			assert.True(t, res.Matched)

			res = engine.Rewrite(context.Background(), "web", &Request{URI: mustURL(t, "/old")})
			assert.True(t, res.Matched)
			assert.Equal(t, int32(1), loader.calls.Load(), "second request is served from the cache")
		})
	}
}

func TestEngine_Rewrite_EmptySetIsNotAMiss(t *testing.T) {
	registry := rulecache.NewRegistry()
	loader := &stubLoader{registry: registry}
	engine := newTestEngine(loader, nil, registry)

	for i := 0; i < 3; i++ {
		res := engine.Rewrite(context.Background(), "web", &Request{URI: mustURL(t, "/x")})
		assert.False(t, res.Matched)
		assert.NoError(t, res.Err)
	}
	assert.Equal(t, int32(1), loader.calls.Load())
}

type knownContexts map[string]bool

func (k knownContexts) Known(_ context.Context, name string) bool { return k[name] }

func TestEngine_Rewrite_UnknownContextIsNotLoaded(t *testing.T) {
	registry := rulecache.NewRegistry()
	loader := &stubLoader{
		registry: registry,
		sets: map[rules.Direction]*rules.RuleSet{
			rules.Inbound: rules.NewRuleSet(redirectRule("old", `^/old$`, "/new")),
		},
	}
	engine := NewEngine(registry, loader, nil, Options{
		Contexts: knownContexts{"web": true},
		Logger:   logging.NewNopLogger(),
	})

	for i := 0; i < 10; i++ {
		res := engine.Rewrite(context.Background(), fmt.Sprintf("junk-%d", i), &Request{URI: mustURL(t, "/old")})
		assert.False(t, res.Matched)
		assert.NoError(t, res.Err)
		out := engine.RewriteOutbound(context.Background(), fmt.Sprintf("junk-%d", i), http.Header{}, nil, "")
		assert.NoError(t, out.Err)
	}
	assert.Empty(t, registry.Contexts())
	assert.Zero(t, loader.calls.Load())

	res := engine.Rewrite(context.Background(), "web", &Request{URI: mustURL(t, "/old")})
	assert.True(t, res.Matched)
	assert.Equal(t, []string{"web"}, registry.Contexts())
}

func TestEngine_Rewrite_FailsOpen(t *testing.T) {
	t.Run("reload error", func(t *testing.T) {
		registry := rulecache.NewRegistry()
		loader := &stubLoader{registry: registry, err: errors.ConnectionError("database down", nil)}
		engine := newTestEngine(loader, nil, registry)

		res := engine.Rewrite(context.Background(), "web", &Request{URI: mustURL(t, "/old")})
		assert.False(t, res.Matched)
		assert.True(t, errors.IsType(res.Err, errors.ErrTypeConnection))
	})

	t.Run("no loader", func(t *testing.T) {
		engine := newTestEngine(nil, nil, rulecache.NewRegistry())

		res := engine.Rewrite(context.Background(), "web", &Request{URI: mustURL(t, "/old")})
		assert.False(t, res.Matched)
		assert.True(t, errors.IsType(res.Err, errors.ErrTypeCacheMiss))
	})

	t.Run("unresolvable item", func(t *testing.T) {
		resolver := new(mockResolver)
		resolver.On("Resolve", mock.Anything, "gone").Return("", "", fmt.Errorf("no such item"))

		registry := rulecache.NewRegistry()
		registry.For("web").ReplaceAll(rules.Inbound, rules.NewRuleSet(itemRule("promo", "gone", "")))
		engine := newTestEngine(nil, resolver, registry)

		res := engine.Rewrite(context.Background(), "web", &Request{URI: mustURL(t, "/promo")})
		assert.False(t, res.Matched)
		assert.True(t, errors.IsType(res.Err, errors.ErrTypeResolution))
	})

	t.Run("cancelled context", func(t *testing.T) {
		registry := rulecache.NewRegistry()
		registry.For("web").ReplaceAll(rules.Inbound, rules.NewRuleSet(redirectRule("old", `^/old$`, "/new")))
		engine := newTestEngine(nil, nil, registry)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		res := engine.Rewrite(ctx, "web", &Request{URI: mustURL(t, "/old")})
		assert.False(t, res.Matched)
		assert.ErrorIs(t, res.Err, context.Canceled)
	})

	t.Run("nil request", func(t *testing.T) {
		engine := newTestEngine(nil, nil, rulecache.NewRegistry())
		res := engine.Rewrite(context.Background(), "web", nil)
		assert.False(t, res.Matched)
		assert.NoError(t, res.Err)
	})
}

func TestEngine_Rewrite_IgnoredPrefixes(t *testing.T) {
	registry := rulecache.NewRegistry()
	registry.For("web").ReplaceAll(rules.Inbound, rules.NewRuleSet(rewriteRule("all", `^/(.*)$`, "/site/{1}")))
	engine := newTestEngine(nil, nil, registry, "/api/", " /Static ", "")

	tests := []struct {
		path    string
		ignored bool
	}{
		{"/api/users", true},
		{"/API/users", true},
		{"/static/app.js", true},
		{"/apix", false},
		{"/home", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			uri := mustURL(t, tt.path)
			assert.Equal(t, tt.ignored, engine.Ignored(uri))
			res := engine.Rewrite(context.Background(), "web", &Request{URI: uri})
			assert.Equal(t, !tt.ignored, res.Matched)
		})
	}
}

func TestEngine_RewriteOutbound(t *testing.T) {
	location := rules.MustCompile(rules.RuleDefinition{
		ID:          "loc",
		Enabled:     true,
		Direction:   rules.Outbound,
		MatchHeader: "Location",
		Pattern:     `^http://backend:8080/(.*)$`,
		Action:      rules.Action{Type: rules.ActionRewrite, TargetTemplate: "https://www.example.com/{1}"},
	})
	shadowed := rules.MustCompile(rules.RuleDefinition{
		ID:          "loc-2",
		Enabled:     true,
		Direction:   rules.Outbound,
		MatchHeader: "Location",
		Pattern:     `.*`,
		Action:      rules.Action{Type: rules.ActionRewrite, TargetTemplate: "/never"},
	})
	htmlOnly := rules.MustCompile(rules.RuleDefinition{
		ID:          "server",
		Enabled:     true,
		Direction:   rules.Outbound,
		MatchHeader: "Server",
		Pattern:     `.+`,
		Conditions:  []rules.Condition{{Input: "RESPONSE_CONTENT_TYPE", Value: "^text/html"}},
		Action:      rules.Action{Type: rules.ActionRewrite, TargetTemplate: "web"},
	})

	registry := rulecache.NewRegistry()
	registry.For("web").ReplaceAll(rules.Outbound, rules.NewRuleSet(location, shadowed, htmlOnly))
	engine := newTestEngine(nil, nil, registry)

	t.Run("rewrites matching headers once", func(t *testing.T) {
		headers := http.Header{}
		headers.Set("Location", "http://backend:8080/cart")
		headers.Set("Server", "nginx/1.25")
		headers.Set("Content-Type", "text/html; charset=utf-8")

		res := engine.RewriteOutbound(context.Background(), "web", headers, nil, "")
		require.NoError(t, res.Err)
		require.Len(t, res.Rewrites, 2)
		assert.Equal(t, "loc", res.Rewrites[0].Rule.ID())
		assert.Equal(t, "http://backend:8080/cart", res.Rewrites[0].Original)

		res.Apply(headers)
		assert.Equal(t, "https://www.example.com/cart", headers.Get("Location"))
		assert.Equal(t, "web", headers.Get("Server"))
	})

	t.Run("conditions read response facts", func(t *testing.T) {
		headers := http.Header{}
		headers.Set("Server", "nginx/1.25")
		headers.Set("Content-Type", "application/json")

		res := engine.RewriteOutbound(context.Background(), "web", headers, nil, "")
		assert.Empty(t, res.Rewrites)
	})

	t.Run("falls through to later rule when first does not match", func(t *testing.T) {
		headers := http.Header{}
		headers.Set("Location", "/relative")

		res := engine.RewriteOutbound(context.Background(), "web", headers, nil, "")
		require.Len(t, res.Rewrites, 1)
		assert.Equal(t, "loc-2", res.Rewrites[0].Rule.ID())
		assert.Equal(t, "/never", res.Rewrites[0].Value)
	})

	t.Run("unknown context without loader fails open", func(t *testing.T) {
		res := engine.RewriteOutbound(context.Background(), "other", http.Header{}, nil, "")
		assert.Empty(t, res.Rewrites)
		assert.Error(t, res.Err)
	})
}
