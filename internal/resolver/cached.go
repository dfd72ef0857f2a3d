// Package resolver caches item URL lookups in front of a storage.ItemResolver
package resolver

import (
	"context"
	"encoding/json"
	"time"

	"golang.org/x/sync/singleflight"

	"url-rewrite/internal/common/cache"
	"url-rewrite/internal/common/logging"
	"url-rewrite/internal/storage"
)

type location struct {
	URL    string `json:"url"`
	Anchor string `json:"anchor,omitempty"`
}

// lookupTimeout bounds one shared store lookup
const lookupTimeout = 10 * time.Second

// Cached is an ItemResolver that remembers successful lookups for ttl.
// Unknown items are not cached. Concurrent misses for one item share a single
// store lookup.
type Cached struct {
	next   storage.ItemResolver
	cache  cache.Cache
	ttl    time.Duration
	logger logging.Logger
	group  singleflight.Group
}

var _ storage.ItemResolver = (*Cached)(nil)

func NewCached(next storage.ItemResolver, c cache.Cache, ttl time.Duration, logger logging.Logger) *Cached {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Cached{
		next:   next,
		cache:  c,
		ttl:    ttl,
		logger: logger.WithFields(logging.Component("item_resolver")),
	}
}

func (c *Cached) Resolve(ctx context.Context, itemID string) (string, string, error) {
	if raw, ok := c.cache.Get(ctx, itemID); ok {
		var loc location
		if err := json.Unmarshal([]byte(raw), &loc); err == nil {
			return loc.URL, loc.Anchor, nil
		}
		c.logger.Warn("Discarding unreadable cached item", logging.Field{"item_id", itemID})
	}

	ch := c.group.DoChan(itemID, func() (interface{}, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lookupTimeout)
		defer cancel()
		return c.lookup(lookupCtx, itemID)
	})

	select {
	case <-ctx.Done():
		return "", "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", "", res.Err
		}
		loc := res.Val.(location)
		return loc.URL, loc.Anchor, nil
	}
}

func (c *Cached) lookup(ctx context.Context, itemID string) (location, error) {
	url, anchor, err := c.next.Resolve(ctx, itemID)
	if err != nil {
		return location{}, err
	}

	loc := location{URL: url, Anchor: anchor}
	data, _ := json.Marshal(loc)
	if err := c.cache.Set(ctx, itemID, string(data), c.ttl); err != nil {
		c.logger.Warn("Failed to cache item location",
			logging.Field{"item_id", itemID},
			logging.Err(err),
		)
	}
	return loc, nil
}

// Invalidate forgets the cached location of itemID
func (c *Cached) Invalidate(ctx context.Context, itemID string) error {
	return c.cache.Delete(ctx, itemID)
}
