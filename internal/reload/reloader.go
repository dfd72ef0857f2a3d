// Package reload rebuilds cached rule sets from the rule store. The Reloader
// serves cache misses, folder-level invalidations and admin requests; the
// Scheduler triggers a full reload of every known context on a cron schedule.
package reload

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"url-rewrite/internal/common/logging"
	"url-rewrite/internal/rulecache"
	"url-rewrite/internal/rules"
	"url-rewrite/internal/storage"
)

const (
	// maxParallelContexts bounds how many contexts ReloadAll loads at once
	maxParallelContexts = 4
	// loadTimeout bounds one shared store load
	loadTimeout = 30 * time.Second
)

// Reloader loads, compiles and publishes the rule set of a context. Concurrent
// reloads of the same context and direction share one store round trip.
type Reloader struct {
	source   storage.Source
	registry *rulecache.Registry
	logger   logging.Logger
	group    singleflight.Group
}

func New(source storage.Source, registry *rulecache.Registry, logger logging.Logger) *Reloader {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Reloader{
		source:   source,
		registry: registry,
		logger:   logger.WithFields(logging.Component("reloader")),
	}
}

// Reload replaces the cached rule set of contextName for direction with a
// fresh one built from the store. Rules that fail to compile are logged and
// left out; only a store failure makes the whole reload fail, in which case
// the cache is left as it was. The load is shared by every concurrent caller
// and is not cut short when one of them gives up; a caller whose ctx ends
// returns early with ctx.Err().
func (r *Reloader) Reload(ctx context.Context, contextName string, direction rules.Direction) (*rules.RuleSet, error) {
	key := contextName + "\x00" + string(direction)
	ch := r.group.DoChan(key, func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()
		return r.load(loadCtx, contextName, direction)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*rules.RuleSet), nil
	}
}

// ReloadContext reloads both directions of contextName
func (r *Reloader) ReloadContext(ctx context.Context, contextName string) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, direction := range []rules.Direction{rules.Inbound, rules.Outbound} {
		direction := direction
		g.Go(func() error {
			_, err := r.Reload(ctx, contextName, direction)
			return err
		})
	}
	return g.Wait()
}

// ReloadAll reloads every context the registry knows about. A failing context
// does not stop the others; the first error is returned.
func (r *Reloader) ReloadAll(ctx context.Context) error {
	var g errgroup.Group
	g.SetLimit(maxParallelContexts)

	for _, name := range r.registry.Contexts() {
		name := name
		g.Go(func() error {
			if err := r.ReloadContext(ctx, name); err != nil {
				r.logger.Error("Failed to reload context", err, logging.RuleContext(name))
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

// Compile builds the rules of defs that belong to direction, dropping and
// logging the ones that fail. Disabled definitions are skipped.
func (r *Reloader) Compile(contextName string, direction rules.Direction, defs []rules.RuleDefinition) (*rules.RuleSet, int) {
	compiled := make([]*rules.CompiledRule, 0, len(defs))
	dropped := 0
	for _, def := range defs {
		if !def.Enabled {
			continue
		}
		rule, err := rules.Compile(def)
		if err != nil {
			dropped++
			r.logger.Warn("Dropping rule that failed to compile",
				logging.RuleContext(contextName),
				logging.RuleID(def.ID),
				logging.Field{"rule_name", def.Name},
				logging.Err(err),
			)
			continue
		}
		if rule.Direction() != direction {
			continue
		}
		compiled = append(compiled, rule)
	}
	return rules.NewRuleSet(compiled...), dropped
}

func (r *Reloader) load(ctx context.Context, contextName string, direction rules.Direction) (*rules.RuleSet, error) {
	defs, err := r.source.LoadAll(ctx, contextName, direction)
	if err != nil {
		return nil, fmt.Errorf("load %s rules of context %s: %w", direction, contextName, err)
	}

	set, dropped := r.Compile(contextName, direction, defs)
	r.registry.For(contextName).ReplaceAll(direction, set)

	r.logger.Info("Rules reloaded",
		logging.RuleContext(contextName),
		logging.Field{"direction", string(direction)},
		logging.Field{"rules", set.Len()},
		logging.Field{"dropped", dropped},
	)
	return set, nil
}
