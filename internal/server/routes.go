package server

import (
	"net/http"

	"github.com/gorilla/mux"

	"url-rewrite/internal/common/logging"
	"url-rewrite/internal/middleware"
)

// RouterConfig wires the HTTP surface together. RateLimit and Auth guard
// /api when set; Upstream serves every request the rules let through.
type RouterConfig struct {
	Rewriter  *Rewriter
	Admin     *Admin
	RateLimit func(http.Handler) http.Handler
	Auth      func(http.Handler) http.Handler
	Upstream  http.Handler
	Logger    logging.Logger
}

// NewRouter builds the service router: the health check, the admin API under
// /api, and the rewrite middleware in front of the upstream for everything else.
func NewRouter(cfg RouterConfig) *mux.Router {
	router := mux.NewRouter()
	router.Use(middleware.Logging(cfg.Logger))

	router.HandleFunc("/health", cfg.Admin.Health).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	if cfg.RateLimit != nil {
		api.Use(cfg.RateLimit)
	}
	if cfg.Auth != nil {
		api.Use(cfg.Auth)
	}

	api.HandleFunc("/contexts", cfg.Admin.ListContexts).Methods(http.MethodGet)
	api.HandleFunc("/reload", cfg.Admin.ReloadAll).Methods(http.MethodPost)
	api.HandleFunc("/conditions/test", cfg.Admin.TestConditions).Methods(http.MethodPost)

	api.HandleFunc("/contexts/{context}/rules", cfg.Admin.ListRules).Methods(http.MethodGet)
	api.HandleFunc("/contexts/{context}/rules", cfg.Admin.SaveRule).Methods(http.MethodPost)
	api.HandleFunc("/contexts/{context}/rules/{id}", cfg.Admin.SaveRule).Methods(http.MethodPut)
	api.HandleFunc("/contexts/{context}/rules/{id}", cfg.Admin.DeleteRule).Methods(http.MethodDelete)
	api.HandleFunc("/contexts/{context}/folders", cfg.Admin.SaveFolder).Methods(http.MethodPost)
	api.HandleFunc("/contexts/{context}/folders/{id}", cfg.Admin.SaveFolder).Methods(http.MethodPut)
	api.HandleFunc("/contexts/{context}/folders/{id}", cfg.Admin.DeleteFolder).Methods(http.MethodDelete)
	api.HandleFunc("/contexts/{context}/test", cfg.Admin.TestURL).Methods(http.MethodPost)
	api.HandleFunc("/contexts/{context}/reload", cfg.Admin.ReloadContext).Methods(http.MethodPost)
	api.HandleFunc("/contexts/{context}/invalidate", cfg.Admin.InvalidateContext).Methods(http.MethodPost)

	api.HandleFunc("/items/{id}", cfg.Admin.SaveItem).Methods(http.MethodPut)
	api.HandleFunc("/items/{id}", cfg.Admin.DeleteItem).Methods(http.MethodDelete)

	upstream := cfg.Upstream
	if upstream == nil {
		upstream = http.NotFoundHandler()
	}
	router.PathPrefix("/").Handler(cfg.Rewriter.Middleware(upstream))
	return router
}
