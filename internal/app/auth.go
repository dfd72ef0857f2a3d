package app

import (
	"github.com/go-redis/redis/v8"

	"url-rewrite/internal/auth"
	"url-rewrite/internal/common/logging"
	"url-rewrite/internal/ratelimit"
)

func (app *App) initializeAuth() error {
	if app.Config.AdminJWTSecret == "" {
		app.Logger.Warn("ADMIN_JWT_SECRET not set, the admin API is unauthenticated")
		return nil
	}

	authInstance, err := auth.New(app.Config.AdminJWTSecret, app.Logger)
	if err != nil {
		return err
	}
	app.Auth = authInstance
	app.Logger.Info("Admin API authentication enabled")
	return nil
}

func (app *App) initializeRateLimit() error {
	rps := app.Config.AdminRateLimitNumber()
	if rps <= 0 {
		return nil
	}

	var rdb *redis.Client
	if app.RedisClient != nil {
		rdb = app.RedisClient.Redis()
	}
	limiter, err := ratelimit.New(ratelimit.Config{
		RequestsPerSecond: rps,
		Burst:             app.Config.AdminRateBurstNumber(),
		Backend:           app.Config.AdminRateBackend,
	}, rdb)
	if err != nil {
		return err
	}
	app.RateLimiter = limiter
	app.Logger.Info("Admin API rate limiting enabled",
		logging.Field{"requests_per_second", rps},
		logging.Field{"backend", app.Config.AdminRateBackend},
	)
	return nil
}
