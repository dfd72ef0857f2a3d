// Package redis opens the shared Redis connection used by the item cache, the
// Redis notification bus and the admin rate limiter.
package redis

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"

	"url-rewrite/internal/common/errors"
)

const (
	defaultAddress  = "localhost:6379"
	defaultPoolSize = 10
	pingTimeout     = 5 * time.Second
)

// Client owns one go-redis connection pool. Consumers borrow the pool through
// Redis() and never close it themselves.
type Client struct {
	rdb    *redis.Client
	config *Config
}

type Config struct {
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// NewClient connects and pings the server, failing if it is unreachable
func NewClient(config *Config) (*Client, error) {
	if config == nil {
		return nil, errors.ConfigError("redis config is required")
	}
	if config.Address == "" {
		config.Address = defaultAddress
	}
	if config.PoolSize <= 0 {
		config.PoolSize = defaultPoolSize
	}

	c := &Client{
		rdb: redis.NewClient(&redis.Options{
			Addr:     config.Address,
			Password: config.Password,
			DB:       config.DB,
			PoolSize: config.PoolSize,
		}),
		config: config,
	}
	if err := c.Health(); err != nil {
		c.rdb.Close()
		return nil, errors.ConnectionError("failed to connect to Redis at "+config.Address, err)
	}
	return c, nil
}

// Redis returns the underlying go-redis client
func (c *Client) Redis() *redis.Client { return c.rdb }

func (c *Client) Close() error { return c.rdb.Close() }

// Health pings the server
func (c *Client) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	return c.rdb.Ping(ctx).Err()
}
