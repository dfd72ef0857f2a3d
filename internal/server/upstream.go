package server

import (
	"net/http"
	"net/http/httputil"
	"net/url"

	"url-rewrite/internal/common/errors"
	"url-rewrite/internal/common/logging"
)

// NewUpstream returns a reverse proxy to rawURL. Rewritten requests reach it
// with their new path; the original is in X-Original-URL.
func NewUpstream(rawURL string, logger logging.Logger) (http.Handler, error) {
	target, err := url.Parse(rawURL)
	if err != nil || target.Scheme == "" || target.Host == "" {
		return nil, errors.ConfigError("upstream must be an absolute URL: " + rawURL)
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	logger = logger.WithFields(logging.Component("upstream"), logging.Field{"upstream", target.Host})

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Error("Upstream request failed", err, logging.Field{"path", r.URL.Path})
		w.WriteHeader(http.StatusBadGateway)
	}
	return proxy, nil
}
