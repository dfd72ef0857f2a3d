// Package cache stores short-lived string values, such as resolved item URLs,
// behind one interface with three backends:
//
//   - LocalCache keeps values in process memory using github.com/patrickmn/go-cache
//   - RedisCache shares values between instances using github.com/go-redis/redis/v8
//   - TwoTierCache reads through a local L1 in front of Redis
//
// The factory picks a backend from configuration:
//
//	c, err := cache.New(cache.Config{
//		Type:        cache.TypeTwoTier,
//		TTL:         10 * time.Minute,
//		KeyPrefix:   "rewrite:item:",
//		RedisClient: client,
//	})
//	c.Set(ctx, "item-42", `{"url":"/products/42"}`, 0)
//	v, ok := c.Get(ctx, "item-42")
//
// A zero TTL on Set means the backend default.
package cache
