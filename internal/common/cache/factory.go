package cache

import (
	"time"

	"github.com/go-redis/redis/v8"

	"url-rewrite/internal/common/errors"
	"url-rewrite/internal/common/validation"
)

// Type selects where resolved item URLs are kept
type Type string

const (
	TypeLocal   Type = "local"
	TypeRedis   Type = "redis"
	TypeTwoTier Type = "two_tier"
)

// Config describes the item URL cache. LocalTTL only applies to the
// in-memory tier of a two-tier cache.
type Config struct {
	Type            Type          `json:"type" validate:"required,oneof=local redis two_tier"`
	TTL             time.Duration `json:"ttl"`
	LocalTTL        time.Duration `json:"local_ttl,omitempty"`
	CleanupInterval time.Duration `json:"cleanup_interval,omitempty"`
	KeyPrefix       string        `json:"key_prefix,omitempty"`
	RedisClient     *redis.Client `json:"-" validate:"-"`
}

// DefaultConfig is a local cache keeping entries for ten minutes
func DefaultConfig() Config {
	return Config{
		Type:            TypeLocal,
		TTL:             10 * time.Minute,
		LocalTTL:        time.Minute,
		CleanupInterval: 10 * time.Minute,
		KeyPrefix:       "rewrite:item:",
	}
}

// New builds the cache for config.Type. Redis-backed types need RedisClient.
func New(config Config) (Cache, error) {
	if err := validation.ValidateStruct(config); err != nil {
		return nil, err
	}
	if config.Type != TypeLocal && config.RedisClient == nil {
		return nil, errors.ConfigError("redis client required for " + string(config.Type) + " cache")
	}

	switch config.Type {
	case TypeRedis:
		return NewRedisCache(config.RedisClient, config.KeyPrefix, config.TTL), nil
	case TypeTwoTier:
		return NewTwoTierCache(config.TTL, config.LocalTTL, config.CleanupInterval, config.RedisClient, config.KeyPrefix), nil
	default:
		return NewLocalCache(config.TTL, config.CleanupInterval), nil
	}
}
