package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"url-rewrite/internal/common/logging"
	"url-rewrite/internal/invalidation"
	"url-rewrite/internal/notify"
	"url-rewrite/internal/reload"
	"url-rewrite/internal/rewrite"
	"url-rewrite/internal/rulecache"
	"url-rewrite/internal/rules"
	"url-rewrite/internal/storage"
	"url-rewrite/internal/storage/sqlite"
)

// upstream records what reached the backend after the rewriter ran
type upstream struct {
	mu       sync.Mutex
	calls    int
	uri      string
	path     string
	query    string
	original string
}

func (u *upstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	u.mu.Lock()
	u.calls++
	u.uri = r.URL.RequestURI()
	u.path = r.URL.Path
	u.query = r.URL.RawQuery
	u.original = r.Header.Get(OriginalURLHeader)
	u.mu.Unlock()

	w.Header().Set("X-Powered-By", "PHP/8.2")
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("upstream"))
}

func (u *upstream) count() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.calls
}

type harness struct {
	store    *sqlite.Adapter
	registry *rulecache.Registry
	reloader *reload.Reloader
	contexts *reload.Directory
	engine   *rewrite.Engine
	bus      *notify.LocalBus
	admin    *Admin
	upstream *upstream
	router   http.Handler
}

type harnessOptions struct {
	readOnly bool
	auth     func(http.Handler) http.Handler
	ignore   []string
}

func newHarness(t *testing.T, opts harnessOptions) *harness {
	t.Helper()
	logger := logging.NewNopLogger()

	store, err := sqlite.NewAdapter(&sqlite.Config{DatabasePath: filepath.Join(t.TempDir(), "rules.db")}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	registry := rulecache.NewRegistry()
	reloader := reload.New(store, registry, logger)
	contexts := reload.NewDirectory(store, time.Minute, logger, "web")
	engine := rewrite.NewEngine(registry, reloader, store, rewrite.Options{
		IgnoreURLPrefixes: opts.ignore,
		Contexts:          contexts,
		Logger:            logger,
	})

	bus := notify.NewLocalBus(logger)
	handler := invalidation.New(store, registry, reloader, invalidation.Options{DefaultContext: "web", Contexts: contexts, Logger: logger})
	require.NoError(t, handler.Subscribe(t.Context(), bus))

	deps := AdminDeps{
		Engine:   engine,
		Reloader: reloader,
		Store:    store,
		Bus:      bus,
		Local:    handler.Handle,
		Logger:   logger,
	}
	if !opts.readOnly {
		deps.Writer = store
	}
	admin := NewAdmin(deps)

	up := &upstream{}
	router := NewRouter(RouterConfig{
		Rewriter: NewRewriter(engine, RewriteConfig{
			DefaultContext: "web",
			ContextHeader:  "X-Rewrite-Context",
			SiteHeader:     "X-Site-Name",
		}, logger),
		Admin:    admin,
		Auth:     opts.auth,
		Upstream: up,
		Logger:   logger,
	})

	return &harness{
		store:    store,
		registry: registry,
		reloader: reloader,
		contexts: contexts,
		engine:   engine,
		bus:      bus,
		admin:    admin,
		upstream: up,
		router:   router,
	}
}

// seed writes records straight to the store and drops the cached contexts
func (h *harness) seed(t *testing.T, records ...storage.RuleRecord) {
	t.Helper()
	for _, rec := range records {
		require.NoError(t, h.store.SaveRule(t.Context(), rec))
		h.contexts.Add(rec.Context)
		h.registry.Invalidate(rec.Context)
	}
}

func (h *harness) do(t *testing.T, method, target string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func inbound(contextName, id, pattern string, action rules.Action) storage.RuleRecord {
	return storage.RuleRecord{
		Context: contextName,
		Rule: &rules.RuleDefinition{
			ID:      id,
			Name:    id,
			Enabled: true,
			Pattern: pattern,
			Action:  action,
		},
	}
}

func redirectTo(target string, status int) rules.Action {
	return rules.Action{Type: rules.ActionRedirect, StatusCode: status, TargetTemplate: target}
}

func rewriteTo(target string) rules.Action {
	return rules.Action{Type: rules.ActionRewrite, TargetTemplate: target}
}
