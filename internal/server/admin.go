package server

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"url-rewrite/internal/circuitbreaker"
	"url-rewrite/internal/common/errors"
	"url-rewrite/internal/common/logging"
	"url-rewrite/internal/common/pagination"
	"url-rewrite/internal/common/validation"
	"url-rewrite/internal/notify"
	"url-rewrite/internal/rewrite"
	"url-rewrite/internal/rulecache"
	"url-rewrite/internal/rules"
	"url-rewrite/internal/storage"
)

// Reloader rebuilds cached rule sets from the store
type Reloader interface {
	Reload(ctx context.Context, contextName string, direction rules.Direction) (*rules.RuleSet, error)
	ReloadContext(ctx context.Context, contextName string) error
	ReloadAll(ctx context.Context) error
}

// AdminDeps are the collaborators of the admin API. Writer may be nil for a
// read-only store; Breaker is only reported on.
type AdminDeps struct {
	Engine   *rewrite.Engine
	Reloader Reloader
	Store    storage.Backend
	Writer   storage.Writer
	Bus      notify.Bus
	// Local applies an event in this process when publishing fails
	Local   notify.Handler
	Breaker *circuitbreaker.Breaker
	Logger  logging.Logger
}

// Admin serves the rule administration API
type Admin struct {
	AdminDeps
	logger logging.Logger
}

func NewAdmin(deps AdminDeps) *Admin {
	logger := deps.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Admin{
		AdminDeps: deps,
		logger:    logger.WithFields(logging.Component("admin")),
	}
}

func (a *Admin) registry() *rulecache.Registry { return a.Engine.Registry() }

func contextParam(r *http.Request) (string, error) {
	name := mux.Vars(r)["context"]
	if err := validation.ValidateVar(name, "required,context_name"); err != nil {
		return "", errors.ValidationError("invalid context name").WithContext("context", name)
	}
	return name, nil
}

func directionParam(r *http.Request) (rules.Direction, error) {
	switch d := rules.Direction(strings.ToLower(r.URL.Query().Get("direction"))); d {
	case "", rules.Inbound:
		return rules.Inbound, nil
	case rules.Outbound:
		return rules.Outbound, nil
	default:
		return "", errors.ValidationError("direction must be inbound or outbound")
	}
}

// ListContexts returns rule counts for every cached context
func (a *Admin) ListContexts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.registry().Stats())
}

type ruleView struct {
	Position   int                  `json:"position"`
	Definition rules.RuleDefinition `json:"definition"`
}

// ListRules returns the cached rules of a context in evaluation order,
// loading them first if needed
func (a *Admin) ListRules(w http.ResponseWriter, r *http.Request) {
	contextName, err := contextParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	direction, err := directionParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	set := a.registry().For(contextName).Get(direction)
	if set == nil {
		if set, err = a.Reloader.Reload(r.Context(), contextName, direction); err != nil {
			writeError(w, errors.ConnectionError("failed to load rules", err))
			return
		}
	}

	out := make([]ruleView, 0, set.Len())
	for i, rule := range set.Rules() {
		out = append(out, ruleView{Position: i, Definition: rule.Definition()})
	}
	writeJSON(w, http.StatusOK, pagination.Slice(out, pagination.ParseParams(r)))
}

// TestRequest describes a request to dry-run against the rules
type TestRequest struct {
	URL     string            `json:"url" validate:"required"`
	Method  string            `json:"method,omitempty"`
	Site    string            `json:"site,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	// Facts override or add condition inputs
	Facts map[string]string `json:"facts,omitempty"`
}

type TestResponse struct {
	Matched  bool             `json:"matched"`
	RuleID   string           `json:"rule_id,omitempty"`
	RuleName string           `json:"rule_name,omitempty"`
	Groups   []string         `json:"groups,omitempty"`
	Outcome  *rewrite.Outcome `json:"outcome,omitempty"`
	Location string           `json:"location,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// TestURL evaluates the inbound rules against a described request without
// applying the outcome
func (a *Admin) TestURL(w http.ResponseWriter, r *http.Request) {
	contextName, err := contextParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req TestRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := validation.ValidateStruct(req); err != nil {
		writeError(w, errors.ValidationError(err.Error()))
		return
	}

	u, err := url.Parse(req.URL)
	if err != nil {
		writeError(w, errors.ValidationError("invalid url: "+err.Error()))
		return
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	sample, err := http.NewRequestWithContext(r.Context(), method, u.String(), nil)
	if err != nil {
		writeError(w, errors.ValidationError("invalid request: "+err.Error()))
		return
	}
	if u.Host != "" {
		sample.Host = u.Host
	}
	for k, v := range req.Headers {
		sample.Header.Set(k, v)
	}
	facts := RequestFacts(sample)
	for k, v := range req.Facts {
		facts[k] = v
	}

	result := a.Engine.Rewrite(r.Context(), contextName, &rewrite.Request{URI: sample.URL, Facts: facts, SiteName: req.Site})
	resp := TestResponse{Matched: result.Matched}
	if result.Err != nil {
		resp.Error = result.Err.Error()
	}
	if result.Matched {
		resp.RuleID = result.Rule.ID()
		resp.RuleName = result.Rule.Name()
		resp.Groups = result.Groups
		resp.Outcome = &result.Outcome
		if result.Outcome.Kind == rewrite.OutcomeRedirect {
			resp.Location = result.Outcome.RedirectLocation(sample.URL.RawQuery)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// ConditionTest evaluates conditions against facts
type ConditionTest struct {
	Conditions []rules.Condition `json:"conditions" validate:"dive"`
	Grouping   rules.Grouping    `json:"grouping,omitempty" validate:"omitempty,oneof=match_all match_any"`
	Facts      map[string]string `json:"facts"`
}

type conditionResult struct {
	Input  string `json:"input"`
	Result bool   `json:"result"`
}

// TestConditions reports each condition's result and the grouped result
func (a *Admin) TestConditions(w http.ResponseWriter, r *http.Request) {
	var req ConditionTest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := validation.ValidateStruct(req); err != nil {
		writeError(w, errors.ValidationError(err.Error()))
		return
	}
	if req.Grouping == "" {
		req.Grouping = rules.MatchAll
	}

	facts := rules.Facts(req.Facts)
	compiled := make([]rules.CompiledCondition, 0, len(req.Conditions))
	results := make([]conditionResult, 0, len(req.Conditions))
	for i, c := range req.Conditions {
		cc, err := rules.CompileCondition(c)
		if err != nil {
			writeError(w, errors.DefinitionError("condition does not compile", err).WithContext("index", i))
			return
		}
		compiled = append(compiled, cc)
		results = append(results, conditionResult{Input: cc.Input(), Result: cc.Evaluate(facts)})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"matched":    rules.EvaluateAll(compiled, req.Grouping, facts),
		"conditions": results,
	})
}

// ReloadContext rebuilds both rule sets of a context from the store
func (a *Admin) ReloadContext(w http.ResponseWriter, r *http.Request) {
	contextName, err := contextParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := a.Reloader.ReloadContext(r.Context(), contextName); err != nil {
		writeError(w, errors.ConnectionError("reload failed", err).WithContext("context", contextName))
		return
	}
	writeJSON(w, http.StatusOK, a.registry().For(contextName).Stats())
}

// ReloadAll rebuilds every cached context
func (a *Admin) ReloadAll(w http.ResponseWriter, r *http.Request) {
	if err := a.Reloader.ReloadAll(r.Context()); err != nil {
		writeError(w, errors.ConnectionError("reload failed", err))
		return
	}
	writeJSON(w, http.StatusOK, a.registry().Stats())
}

// InvalidateContext drops a context's rules so the next request reloads them
func (a *Admin) InvalidateContext(w http.ResponseWriter, r *http.Request) {
	contextName, err := contextParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	a.registry().Invalidate(contextName)
	a.logger.Info("Context invalidated", logging.RuleContext(contextName))
	w.WriteHeader(http.StatusNoContent)
}

func (a *Admin) writer() (storage.Writer, error) {
	if a.Writer == nil {
		return nil, storage.ErrReadOnly
	}
	return a.Writer, nil
}

// SaveRule stores a rule or simple redirect and announces it
func (a *Admin) SaveRule(w http.ResponseWriter, r *http.Request) {
	contextName, err := contextParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writer, err := a.writer()
	if err != nil {
		writeError(w, err)
		return
	}

	var record storage.RuleRecord
	if err := decodeJSON(w, r, &record); err != nil {
		writeError(w, err)
		return
	}
	record.Context = contextName
	if id := mux.Vars(r)["id"]; id != "" {
		switch {
		case record.Rule != nil:
			record.Rule.ID = id
		case record.Simple != nil:
			record.Simple.ID = id
		}
	}
	if err := record.Normalize(); err != nil {
		writeError(w, errors.ValidationError(err.Error()))
		return
	}

	def := record.Definition(nil)
	if record.Rule != nil {
		if err := validation.ValidateStruct(record.Rule); err != nil {
			writeError(w, errors.ValidationError(err.Error()))
			return
		}
	}
	if _, err := rules.Compile(def); err != nil {
		writeError(w, err)
		return
	}

	if err := writer.SaveRule(r.Context(), record); err != nil {
		writeError(w, err)
		return
	}

	// re-read so the event carries folder restrictions as stored
	if stored, err := a.Store.LoadOne(r.Context(), contextName, record.ID()); err == nil {
		def = *stored
	}

	kind := notify.KindInboundRule
	if def.Direction == rules.Outbound {
		kind = notify.KindOutboundRule
	}
	a.announce(r.Context(), &notify.Event{
		ID:         def.ID,
		Kind:       kind,
		Op:         notify.OpSaved,
		Context:    contextName,
		ParentID:   record.FolderID,
		Definition: &def,
	})
	writeJSON(w, http.StatusOK, record)
}

// DeleteRule removes a rule and announces it
func (a *Admin) DeleteRule(w http.ResponseWriter, r *http.Request) {
	contextName, err := contextParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writer, err := a.writer()
	if err != nil {
		writeError(w, err)
		return
	}
	id := mux.Vars(r)["id"]

	kind := notify.KindInboundRule
	if def, err := a.Store.LoadOne(r.Context(), contextName, id); err == nil && def.Direction == rules.Outbound {
		kind = notify.KindOutboundRule
	}

	if err := writer.DeleteRule(r.Context(), contextName, id); err != nil {
		writeError(w, err)
		return
	}
	a.announce(r.Context(), &notify.Event{ID: id, Kind: kind, Op: notify.OpDeleted, Context: contextName})
	w.WriteHeader(http.StatusNoContent)
}

// SaveFolder stores a folder and announces it
func (a *Admin) SaveFolder(w http.ResponseWriter, r *http.Request) {
	contextName, err := contextParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writer, err := a.writer()
	if err != nil {
		writeError(w, err)
		return
	}

	var folder storage.Folder
	if err := decodeJSON(w, r, &folder); err != nil {
		writeError(w, err)
		return
	}
	folder.Context = contextName
	if id := mux.Vars(r)["id"]; id != "" {
		folder.ID = id
	}
	if folder.ID == "" {
		folder.ID = storage.NewFolderID()
	}

	if err := writer.SaveFolder(r.Context(), folder); err != nil {
		writeError(w, err)
		return
	}
	a.announce(r.Context(), &notify.Event{ID: folder.ID, Kind: notify.KindFolder, Op: notify.OpSaved, Context: contextName})
	writeJSON(w, http.StatusOK, folder)
}

// DeleteFolder removes a folder with its rules and announces it
func (a *Admin) DeleteFolder(w http.ResponseWriter, r *http.Request) {
	contextName, err := contextParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writer, err := a.writer()
	if err != nil {
		writeError(w, err)
		return
	}
	id := mux.Vars(r)["id"]

	if err := writer.DeleteFolder(r.Context(), contextName, id); err != nil {
		writeError(w, err)
		return
	}
	a.announce(r.Context(), &notify.Event{ID: id, Kind: notify.KindFolder, Op: notify.OpDeleted, Context: contextName})
	w.WriteHeader(http.StatusNoContent)
}

// SaveItem stores an item URL and announces it
func (a *Admin) SaveItem(w http.ResponseWriter, r *http.Request) {
	writer, err := a.writer()
	if err != nil {
		writeError(w, err)
		return
	}

	var item storage.Item
	if err := decodeJSON(w, r, &item); err != nil {
		writeError(w, err)
		return
	}
	item.ID = mux.Vars(r)["id"]
	if item.URL == "" {
		writeError(w, errors.ValidationError("item url is required"))
		return
	}

	if err := writer.SaveItem(r.Context(), item); err != nil {
		writeError(w, err)
		return
	}
	a.announce(r.Context(), &notify.Event{ID: item.ID, Kind: notify.KindItem, Op: notify.OpSaved})
	writeJSON(w, http.StatusOK, item)
}

// DeleteItem removes an item and announces it
func (a *Admin) DeleteItem(w http.ResponseWriter, r *http.Request) {
	writer, err := a.writer()
	if err != nil {
		writeError(w, err)
		return
	}
	id := mux.Vars(r)["id"]

	if err := writer.DeleteItem(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	a.announce(r.Context(), &notify.Event{ID: id, Kind: notify.KindItem, Op: notify.OpDeleted})
	w.WriteHeader(http.StatusNoContent)
}

// announce publishes event on the bus. Every instance, this one included,
// applies it on receipt; when publishing fails it is applied here directly.
func (a *Admin) announce(ctx context.Context, event *notify.Event) {
	event.Timestamp = time.Now().UTC()

	if a.Bus != nil {
		err := a.Bus.Publish(ctx, event)
		if err == nil {
			return
		}
		a.logger.Error("Failed to publish rule change, applying locally", err,
			logging.Field{"event_id", event.ID},
			logging.Field{"kind", string(event.Kind)},
		)
	}
	if a.Local != nil {
		a.Local(ctx, *event)
	}
}

type healthResponse struct {
	Status   string                `json:"status"`
	Store    string                `json:"store"`
	Bus      string                `json:"bus,omitempty"`
	Breaker  *circuitbreaker.Stats `json:"breaker,omitempty"`
	Contexts []rulecache.Stats     `json:"contexts"`
	Errors   map[string]string     `json:"errors,omitempty"`
}

// Health reports store, bus and breaker state with the cached contexts
func (a *Admin) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := healthResponse{Status: "healthy", Store: "ok", Contexts: a.registry().Stats()}
	fail := func(component string, err error) {
		if resp.Errors == nil {
			resp.Errors = make(map[string]string)
		}
		resp.Errors[component] = err.Error()
		resp.Status = "unhealthy"
	}

	if a.Store != nil {
		if err := a.Store.Health(ctx); err != nil {
			resp.Store = "unavailable"
			fail("store", err)
		}
	}
	if a.Bus != nil {
		resp.Bus = a.Bus.Name()
		if err := a.Bus.Health(ctx); err != nil {
			fail("bus", err)
		}
	}
	if a.Breaker != nil {
		stats := a.Breaker.Stats()
		resp.Breaker = &stats
		if a.Breaker.State() == circuitbreaker.StateOpen && resp.Status == "healthy" {
			resp.Status = "degraded"
		}
	}

	status := http.StatusOK
	if resp.Status == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
