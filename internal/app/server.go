package app

import (
	"net/http"

	"url-rewrite/internal/ratelimit"
	"url-rewrite/internal/server"
)

// Handler builds the HTTP surface: admin API, health check and the rewriter
// in front of the upstream
func (app *App) Handler() (http.Handler, error) {
	var upstream http.Handler
	if app.Config.UpstreamURL != "" {
		proxy, err := server.NewUpstream(app.Config.UpstreamURL, app.Logger)
		if err != nil {
			return nil, err
		}
		upstream = proxy
	}

	admin := server.NewAdmin(server.AdminDeps{
		Engine:   app.Engine,
		Reloader: app.Reloader,
		Store:    app.Store,
		Writer:   app.Writer,
		Bus:      app.Bus,
		Local:    app.Invalidation.Handle,
		Breaker:  app.Breaker,
		Logger:   app.Logger,
	})

	rewriter := server.NewRewriter(app.Engine, server.RewriteConfig{
		DefaultContext: app.Config.DefaultContext,
		ContextHeader:  app.Config.ContextHeader,
		SiteHeader:     app.Config.SiteHeader,
		DefaultSite:    app.Config.DefaultSite,
	}, app.Logger)

	rc := server.RouterConfig{
		Rewriter: rewriter,
		Admin:    admin,
		Upstream: upstream,
		Logger:   app.Logger,
	}
	if app.RateLimiter != nil {
		rc.RateLimit = ratelimit.Middleware(app.RateLimiter, ratelimit.ClientKey, app.Logger)
	}
	if app.Auth != nil {
		rc.Auth = app.Auth.RequireAuth
	}
	return server.NewRouter(rc), nil
}

// RunServer creates the HTTP server with all handlers configured
func (app *App) RunServer() (*server.Server, error) {
	handler, err := app.Handler()
	if err != nil {
		return nil, err
	}
	return server.New(handler, app.Config.Port, app.Config.TLSCertFile, app.Config.TLSKeyFile, app.Logger), nil
}
