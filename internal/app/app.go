package app

import (
	"context"
	"time"

	"url-rewrite/internal/auth"
	"url-rewrite/internal/circuitbreaker"
	"url-rewrite/internal/common/logging"
	"url-rewrite/internal/config"
	"url-rewrite/internal/invalidation"
	"url-rewrite/internal/notify"
	"url-rewrite/internal/ratelimit"
	"url-rewrite/internal/redis"
	"url-rewrite/internal/reload"
	"url-rewrite/internal/resolver"
	"url-rewrite/internal/rewrite"
	"url-rewrite/internal/rulecache"
	"url-rewrite/internal/storage"
	"url-rewrite/internal/storage/file"
)

// App holds all the application dependencies
type App struct {
	Config *config.Config

	// Backend is the raw rule store; Store is the same store behind the
	// circuit breaker. Writer is nil for read-only stores.
	Backend storage.Backend
	Store   *storage.Guarded
	Writer  storage.Writer
	Breaker *circuitbreaker.Breaker

	RedisClient  *redis.Client
	Items        *resolver.Cached
	Registry     *rulecache.Registry
	Reloader     *reload.Reloader
	Contexts     *reload.Directory
	Engine       *rewrite.Engine
	Bus          notify.Bus
	Invalidation *invalidation.Handler
	Watcher      *file.Watcher
	Scheduler    *reload.Scheduler
	Auth         *auth.Auth
	RateLimiter  ratelimit.Limiter

	Logger logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new application instance with all dependencies. Background
// work (bus subscription, file watching, scheduled reloads) starts here and
// stops in Shutdown.
func New(cfg *config.Config) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())
	app := &App{
		Config: cfg,
		Logger: logging.GetGlobalLogger().WithFields(logging.Component("app")),
		ctx:    ctx,
		cancel: cancel,
	}

	// Initialize components in order of dependency
	if err := app.initializeStorage(); err != nil {
		app.Cleanup()
		return nil, err
	}

	if err := app.initializeRedis(); err != nil {
		app.Cleanup()
		return nil, err
	}

	if err := app.initializeItems(); err != nil {
		app.Cleanup()
		return nil, err
	}

	app.initializeEngine()

	if err := app.initializeBus(); err != nil {
		app.Cleanup()
		return nil, err
	}

	if err := app.initializeWatcher(); err != nil {
		// the rules still load; changes need a reload through the API
		app.Logger.Warn("File watching disabled", logging.Err(err))
	}

	if err := app.initializeScheduler(); err != nil {
		app.Cleanup()
		return nil, err
	}

	if err := app.initializeAuth(); err != nil {
		app.Cleanup()
		return nil, err
	}

	if err := app.initializeRateLimit(); err != nil {
		app.Cleanup()
		return nil, err
	}

	app.warmUp()
	return app, nil
}

// warmUp loads the default context so the first request does not pay for it.
// A failure is not fatal: requests pass through until a load succeeds.
func (app *App) warmUp() {
	ctx, cancel := context.WithTimeout(app.ctx, 30*time.Second)
	defer cancel()
	if err := app.Reloader.ReloadContext(ctx, app.Config.DefaultContext); err != nil {
		app.Logger.Warn("Initial rule load failed",
			logging.RuleContext(app.Config.DefaultContext),
			logging.Err(err),
		)
	}
}

// Shutdown stops background work. The HTTP server is stopped by the caller.
func (app *App) Shutdown(ctx context.Context) error {
	app.cancel()

	if app.Scheduler != nil {
		app.Scheduler.Stop(ctx)
	}
	if app.Watcher != nil {
		if err := app.Watcher.Stop(); err != nil {
			app.Logger.Warn("Error stopping file watcher", logging.Err(err))
		}
	}
	return nil
}

// Cleanup releases all resources
func (app *App) Cleanup() {
	app.cancel()

	if app.Bus != nil {
		if err := app.Bus.Close(); err != nil {
			app.Logger.Warn("Error closing notification bus", logging.Err(err))
		}
	}
	if app.Backend != nil {
		app.Backend.Close()
	}
	if app.RedisClient != nil {
		app.RedisClient.Close()
	}
}
