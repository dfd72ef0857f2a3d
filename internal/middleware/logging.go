// Package middleware holds HTTP middleware shared by the proxy and admin
// routes.
package middleware

import (
	"net/http"
	"time"

	"url-rewrite/internal/common/logging"
)

// statusRecorder captures the status code written by the next handler
type statusRecorder struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *statusRecorder) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

func (rw *statusRecorder) Unwrap() http.ResponseWriter { return rw.ResponseWriter }

// Logging logs every request with its status and duration. Requests that were
// rewritten log their original URL; redirects log their Location.
func Logging(logger logging.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	logger = logger.WithFields(logging.Component("http"))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			// captured before the rewrite middleware can change it
			path := r.URL.Path
			wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			fields := []logging.Field{
				{"method", r.Method},
				{"path", path},
				{"status", wrapped.statusCode},
				{"duration_ms", time.Since(start).Milliseconds()},
				{"remote_addr", r.RemoteAddr},
			}
			if r.URL.RawQuery != "" {
				fields = append(fields, logging.Field{"query", r.URL.RawQuery})
			}
			if r.URL.Path != path {
				fields = append(fields, logging.Field{"rewritten_to", r.URL.Path})
			}
			if loc := wrapped.Header().Get("Location"); loc != "" {
				fields = append(fields, logging.Field{"location", loc})
			}
			if userID := r.Header.Get("X-User-ID"); userID != "" {
				fields = append(fields, logging.Field{"user_id", userID})
			}

			switch {
			case wrapped.statusCode >= 500:
				logger.Error("HTTP request completed", nil, fields...)
			case wrapped.statusCode >= 400:
				logger.Warn("HTTP request completed", fields...)
			default:
				logger.Info("HTTP request completed", fields...)
			}
		})
	}
}
