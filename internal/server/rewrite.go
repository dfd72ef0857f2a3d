package server

import (
	"net/http"
	"net/url"

	"url-rewrite/internal/common/logging"
	"url-rewrite/internal/common/validation"
	"url-rewrite/internal/rewrite"
	"url-rewrite/internal/rules"
)

// OriginalURLHeader carries the pre-rewrite request URI to the next handler
const OriginalURLHeader = "X-Original-URL"

// RewriteConfig controls how a request is mapped to a rule context and site
type RewriteConfig struct {
	DefaultContext string
	// ContextHeader and SiteHeader name request headers that override the
	// defaults; empty disables the override
	ContextHeader string
	SiteHeader    string
	DefaultSite   string
}

// Rewriter applies the rule engine to requests passing through it
type Rewriter struct {
	engine *rewrite.Engine
	cfg    RewriteConfig
	logger logging.Logger
}

func NewRewriter(engine *rewrite.Engine, cfg RewriteConfig, logger logging.Logger) *Rewriter {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Rewriter{
		engine: engine,
		cfg:    cfg,
		logger: logger.WithFields(logging.Component("rewriter")),
	}
}

func (rw *Rewriter) contextAndSite(r *http.Request) (string, string) {
	contextName, site := rw.cfg.DefaultContext, rw.cfg.DefaultSite
	if rw.cfg.ContextHeader != "" {
		if v := r.Header.Get(rw.cfg.ContextHeader); v != "" {
			if validation.ValidateVar(v, "context_name") == nil {
				contextName = v
			} else {
				rw.logger.Debug("Ignoring invalid context header", logging.Field{"value", v})
			}
		}
	}
	if rw.cfg.SiteHeader != "" {
		if v := r.Header.Get(rw.cfg.SiteHeader); v != "" {
			site = v
		}
	}
	return contextName, site
}

// Middleware redirects or rewrites matching requests and applies outbound
// header rules to every response. Requests under an ignored prefix pass
// through untouched.
func (rw *Rewriter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rw.engine.Ignored(r.URL) {
			next.ServeHTTP(w, r)
			return
		}

		contextName, site := rw.contextAndSite(r)
		facts := RequestFacts(r)
		out := &outboundWriter{
			ResponseWriter: w,
			apply: func(h http.Header) {
				rw.engine.RewriteOutbound(r.Context(), contextName, h, facts, site).Apply(h)
			},
		}

		result := rw.engine.Rewrite(r.Context(), contextName, &rewrite.Request{
			URI:      r.URL,
			Facts:    facts,
			SiteName: site,
		})
		if !result.Matched {
			out.serve(next, r)
			return
		}

		switch result.Outcome.Kind {
		case rewrite.OutcomeRedirect:
			redirect(out, r, result.Outcome)
		case rewrite.OutcomeRewrite:
			if err := rewriteRequest(r, result.Outcome.URL); err != nil {
				rw.logger.Warn("Rewrite target is not a valid URL, passing request through",
					logging.RuleID(result.Rule.ID()),
					logging.Field{"target", result.Outcome.URL},
					logging.Err(err),
				)
			}
			out.serve(next, r)
		default:
			out.serve(next, r)
		}
	})
}

func redirect(w http.ResponseWriter, r *http.Request, outcome rewrite.Outcome) {
	status := outcome.StatusCode
	if status == 0 {
		status = http.StatusMovedPermanently
	}
	w.Header().Set("Location", outcome.RedirectLocation(r.URL.RawQuery))
	if cc := cacheControl(outcome.Cacheability); cc != "" {
		w.Header().Set("Cache-Control", cc)
	}
	w.WriteHeader(status)
}

func cacheControl(c rules.Cacheability) string {
	switch c {
	case rules.CacheNoCache:
		return "no-cache"
	case rules.CacheNoStore:
		return "no-store"
	case rules.CachePrivate:
		return "private"
	case rules.CachePublic:
		return "public"
	}
	return ""
}

// rewriteRequest points r at target. The query of target replaces the
// original one when present.
func rewriteRequest(r *http.Request, target string) error {
	u, err := url.Parse(target)
	if err != nil {
		return err
	}

	r.Header.Set(OriginalURLHeader, r.URL.RequestURI())
	r.URL.Path = u.Path
	r.URL.RawPath = u.RawPath
	if u.RawQuery != "" || u.ForceQuery {
		r.URL.RawQuery = u.RawQuery
	}
	r.RequestURI = r.URL.RequestURI()
	return nil
}

// outboundWriter runs the outbound rules on the response headers right before
// they are sent
type outboundWriter struct {
	http.ResponseWriter
	apply       func(http.Header)
	wroteHeader bool
}

// serve runs next and applies the outbound rules to a response that next left
// unwritten, since net/http then sends an implicit 200
func (w *outboundWriter) serve(next http.Handler, r *http.Request) {
	next.ServeHTTP(w, r)
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
}

func (w *outboundWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.wroteHeader = true
		w.apply(w.Header())
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *outboundWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

func (w *outboundWriter) Flush() {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *outboundWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
