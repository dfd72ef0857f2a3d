package reload

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"url-rewrite/internal/common/logging"
	"url-rewrite/internal/common/validation"
)

const (
	// DefaultDirectoryRefresh is the minimum gap between two context listings
	DefaultDirectoryRefresh = 5 * time.Second
	directoryListTimeout    = 10 * time.Second
)

// ContextLister lists the contexts a rule store holds
type ContextLister interface {
	Contexts(ctx context.Context) ([]string, error)
}

// Directory tracks which context names exist in the rule store, so only
// those get a cache. Unknown names trigger at most one store listing per
// refresh interval however many distinct names arrive.
type Directory struct {
	lister   ContextLister
	interval time.Duration
	pinned   []string
	logger   logging.Logger

	mu          sync.RWMutex
	known       map[string]struct{}
	refreshedAt time.Time
	group       singleflight.Group
	now         func() time.Time
}

// NewDirectory creates a directory backed by lister. pinned names are always
// known. A non-positive interval uses DefaultDirectoryRefresh.
func NewDirectory(lister ContextLister, interval time.Duration, logger logging.Logger, pinned ...string) *Directory {
	if interval <= 0 {
		interval = DefaultDirectoryRefresh
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	d := &Directory{
		lister:   lister,
		interval: interval,
		pinned:   pinned,
		logger:   logger.WithFields(logging.Component("context_directory")),
		now:      time.Now,
	}
	d.known = d.withPinned(nil)
	return d
}

func (d *Directory) withPinned(names []string) map[string]struct{} {
	known := make(map[string]struct{}, len(names)+len(d.pinned))
	for _, n := range d.pinned {
		known[n] = struct{}{}
	}
	for _, n := range names {
		known[n] = struct{}{}
	}
	return known
}

// Known reports whether contextName is a valid name the store holds. A miss
// relists the store when the last listing is older than the refresh interval.
func (d *Directory) Known(ctx context.Context, contextName string) bool {
	if validation.ValidateVar(contextName, "required,context_name") != nil {
		return false
	}
	if d.has(contextName) {
		return true
	}

	d.mu.RLock()
	fresh := !d.refreshedAt.IsZero() && d.now().Sub(d.refreshedAt) < d.interval
	d.mu.RUnlock()
	if fresh {
		return false
	}

	if err := d.Refresh(ctx); err != nil {
		d.logger.Warn("Failed to list rule contexts", logging.Err(err))
	}
	return d.has(contextName)
}

func (d *Directory) has(contextName string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.known[contextName]
	return ok
}

// Add marks contextName as known until the next listing
func (d *Directory) Add(contextName string) {
	if validation.ValidateVar(contextName, "required,context_name") != nil {
		return
	}
	d.mu.Lock()
	d.known[contextName] = struct{}{}
	d.mu.Unlock()
}

// Refresh replaces the known names with a fresh store listing. Concurrent
// callers share one listing, which outlives a cancelled caller.
func (d *Directory) Refresh(ctx context.Context) error {
	_, err, _ := d.group.Do("contexts", func() (interface{}, error) {
		listCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), directoryListTimeout)
		defer cancel()

		names, err := d.lister.Contexts(listCtx)

		d.mu.Lock()
		defer d.mu.Unlock()
		// a failed listing also starts a new interval
		d.refreshedAt = d.now()
		if err != nil {
			return nil, err
		}
		d.known = d.withPinned(names)
		return nil, nil
	})
	return err
}
