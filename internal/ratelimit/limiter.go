// Package ratelimit throttles admin API clients. The local backend keeps a
// token bucket per client in memory; the redis backend counts requests per
// one-second window so every replica shares the budget.
package ratelimit

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"url-rewrite/internal/common/errors"
)

const (
	BackendLocal = "local"
	BackendRedis = "redis"
)

// Config describes the per-client budget
type Config struct {
	RequestsPerSecond int
	Burst             int
	Backend           string
	KeyPrefix         string
	// IdleTTL is how long an unused local bucket is kept
	IdleTTL time.Duration
}

// Limiter decides whether the client identified by key may proceed
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// New builds the limiter for cfg.Backend. rdb is only used by the redis backend.
func New(cfg Config, rdb *redis.Client) (Limiter, error) {
	if cfg.RequestsPerSecond <= 0 {
		return nil, errors.ConfigError("rate limit must be positive")
	}
	if cfg.Burst <= 0 {
		cfg.Burst = cfg.RequestsPerSecond
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "url-rewrite:ratelimit:"
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 10 * time.Minute
	}

	switch cfg.Backend {
	case "", BackendLocal:
		return NewLocal(cfg), nil
	case BackendRedis:
		if rdb == nil {
			return nil, errors.ConfigError("redis rate limiter requires a redis client")
		}
		return NewRedis(cfg, rdb), nil
	default:
		return nil, errors.ConfigError("unsupported rate limit backend: " + cfg.Backend)
	}
}

// Local keeps one token bucket per key. Buckets idle for IdleTTL are dropped.
type Local struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	buckets *gocache.Cache
}

func NewLocal(cfg Config) *Local {
	return &Local{
		limit:   rate.Limit(cfg.RequestsPerSecond),
		burst:   cfg.Burst,
		buckets: gocache.New(cfg.IdleTTL, cfg.IdleTTL),
	}
}

func (l *Local) Allow(_ context.Context, key string) (bool, error) {
	return l.bucket(key).Allow(), nil
}

func (l *Local) bucket(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if v, ok := l.buckets.Get(key); ok {
		// refresh the idle expiry
		l.buckets.SetDefault(key, v)
		return v.(*rate.Limiter)
	}
	lim := rate.NewLimiter(l.limit, l.burst)
	l.buckets.SetDefault(key, lim)
	return lim
}

// Redis allows Burst requests per key in each one-second window
type Redis struct {
	rdb    *redis.Client
	max    int64
	prefix string
	now    func() time.Time
}

func NewRedis(cfg Config, rdb *redis.Client) *Redis {
	return &Redis{
		rdb:    rdb,
		max:    int64(cfg.Burst),
		prefix: cfg.KeyPrefix,
		now:    time.Now,
	}
}

func (r *Redis) Allow(ctx context.Context, key string) (bool, error) {
	windowKey := r.prefix + key + ":" + strconv.FormatInt(r.now().Unix(), 10)

	var incr *redis.IntCmd
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, windowKey)
		pipe.Expire(ctx, windowKey, 2*time.Second)
		return nil
	})
	if err != nil {
		return false, errors.ConnectionError("rate limit check failed", err)
	}
	return incr.Val() <= r.max, nil
}
