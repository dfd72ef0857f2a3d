package app

import (
	"context"
	"time"

	"url-rewrite/internal/circuitbreaker"
	"url-rewrite/internal/common/cache"
	"url-rewrite/internal/common/errors"
	"url-rewrite/internal/common/logging"
	"url-rewrite/internal/resolver"
	"url-rewrite/internal/storage"
	"url-rewrite/internal/storage/file"
	"url-rewrite/internal/storage/postgres"
	"url-rewrite/internal/storage/sqlite"
)

func (app *App) initializeStorage() error {
	switch app.Config.RulesSource {
	case "postgres":
		pgConfig, err := postgres.NewConfigFromURL(app.Config.PostgresDSN())
		if err != nil {
			return errors.ConfigError(err.Error())
		}
		app.Logger.Info("Rule store: PostgreSQL",
			logging.Field{"host", pgConfig.Host},
			logging.Field{"port", pgConfig.Port},
			logging.Field{"database", pgConfig.Database},
		)

		ctx, cancel := context.WithTimeout(app.ctx, 30*time.Second)
		defer cancel()
		adapter, err := postgres.NewAdapter(ctx, pgConfig, app.Logger)
		if err != nil {
			return errors.ConnectionError("failed to initialize rule store", err)
		}
		app.Backend = adapter
		app.Writer = adapter

	case "file":
		app.Logger.Info("Rule store: files", logging.Field{"dir", app.Config.RulesDir})
		store, err := file.NewStore(app.Config.RulesDir, app.Logger)
		if err != nil {
			return errors.ConfigError("failed to read rule files: " + err.Error())
		}
		app.Backend = store

	default:
		app.Logger.Info("Rule store: SQLite", logging.Field{"path", app.Config.DatabasePath})
		adapter, err := sqlite.NewAdapter(&sqlite.Config{DatabasePath: app.Config.DatabasePath}, app.Logger)
		if err != nil {
			return errors.ConnectionError("failed to initialize rule store", err)
		}
		app.Backend = adapter
		app.Writer = adapter
	}

	app.Breaker = circuitbreaker.New("rule-store", circuitbreaker.DefaultConfig(), app.Logger, storage.ErrNotFound)
	app.Store = storage.NewGuarded(app.Backend, app.Breaker)
	return nil
}

// initializeItems puts the configured cache in front of item lookups
func (app *App) initializeItems() error {
	cfg := cache.DefaultConfig()
	cfg.Type = cache.Type(app.Config.ItemCache)
	cfg.TTL = app.Config.ItemCacheDuration()
	if app.RedisClient != nil {
		cfg.RedisClient = app.RedisClient.Redis()
	}

	c, err := cache.New(cfg)
	if err != nil {
		return errors.ConfigError("failed to create item cache: " + err.Error())
	}
	app.Items = resolver.NewCached(app.Store, c, cfg.TTL, app.Logger)
	app.Logger.Info("Item cache ready",
		logging.Field{"type", string(cfg.Type)},
		logging.Field{"ttl", cfg.TTL.String()},
	)
	return nil
}

// initializeWatcher reloads a context whenever its rule file changes. Only
// the file store is watched.
func (app *App) initializeWatcher() error {
	store, ok := app.Backend.(*file.Store)
	if !ok || !app.Config.RulesWatch {
		return nil
	}

	w, err := file.NewWatcher(store, func(contextName string) {
		if _, cached := app.Registry.Lookup(contextName); !cached {
			return
		}
		if err := app.Reloader.ReloadContext(app.ctx, contextName); err != nil {
			app.Logger.Error("Failed to reload changed rule file", err, logging.RuleContext(contextName))
		}
	}, 0)
	if err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		return err
	}
	app.Watcher = w
	return nil
}
