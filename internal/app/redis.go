package app

import (
	"url-rewrite/internal/common/errors"
	"url-rewrite/internal/common/logging"
	"url-rewrite/internal/redis"
)

func (app *App) initializeRedis() error {
	if !app.Config.NeedsRedis() {
		app.Logger.Info("Redis: Not configured (local item cache and bus)")
		return nil
	}

	redisClient, err := redis.NewClient(&redis.Config{
		Address:  app.Config.RedisAddress,
		Password: app.Config.RedisPassword,
		DB:       app.Config.RedisDBNumber(),
		PoolSize: app.Config.RedisPoolSizeNumber(),
	})
	if err != nil {
		return errors.ConnectionError("redis is required by the selected bus or item cache", err)
	}

	app.RedisClient = redisClient
	app.Logger.Info("Redis: Connected",
		logging.Field{"address", app.Config.RedisAddress},
		logging.Field{"bus", app.Config.NotifyBus},
		logging.Field{"item_cache", app.Config.ItemCache},
	)
	return nil
}
