// Package invalidation keeps the rule cache in step with the rule store by
// reacting to lifecycle events from the notification bus.
package invalidation

import (
	"context"
	"errors"

	apperrors "url-rewrite/internal/common/errors"
	"url-rewrite/internal/common/logging"
	"url-rewrite/internal/notify"
	"url-rewrite/internal/rulecache"
	"url-rewrite/internal/rules"
	"url-rewrite/internal/storage"
)

// ContextReloader rebuilds every rule set of a context from the store
type ContextReloader interface {
	ReloadContext(ctx context.Context, contextName string) error
}

// ItemInvalidator forgets a cached item lookup
type ItemInvalidator interface {
	Invalidate(ctx context.Context, itemID string) error
}

// ContextRecorder learns context names that appear in saved records
type ContextRecorder interface {
	Add(contextName string)
}

type Options struct {
	// DefaultContext is used for events that do not name a context
	DefaultContext string
	Items          ItemInvalidator
	Contexts       ContextRecorder
	Logger         logging.Logger
}

// Handler applies lifecycle events to the rule cache. Events that arrive from
// another process are treated like local ones, except that the rule is always
// re-read from the store.
type Handler struct {
	source         storage.Source
	registry       *rulecache.Registry
	reloader       ContextReloader
	items          ItemInvalidator
	contexts       ContextRecorder
	defaultContext string
	logger         logging.Logger
}

func New(source storage.Source, registry *rulecache.Registry, reloader ContextReloader, opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Handler{
		source:         source,
		registry:       registry,
		reloader:       reloader,
		items:          opts.Items,
		contexts:       opts.Contexts,
		defaultContext: opts.DefaultContext,
		logger:         logger.WithFields(logging.Component("invalidation")),
	}
}

// Subscribe registers the handler on bus until ctx ends
func (h *Handler) Subscribe(ctx context.Context, bus notify.Bus) error {
	if err := bus.Subscribe(ctx, h.Handle); err != nil {
		return err
	}
	h.logger.Info("Listening for rule changes", logging.Field{"bus", bus.Name()})
	return nil
}

// Handle applies one event. Failures are logged and never returned, so a bad
// event cannot stop the subscription; the affected context stays as it was
// until the next full reload.
func (h *Handler) Handle(ctx context.Context, event notify.Event) error {
	contextName := event.Context
	if contextName == "" {
		contextName = h.defaultContext
	}

	logger := h.logger.WithFields(
		logging.Field{"event_id", event.ID},
		logging.Field{"kind", string(event.Kind)},
		logging.Field{"op", string(event.Op)},
		logging.RuleContext(contextName),
		logging.Field{"remote", event.Remote},
	)

	var err error
	switch event.Kind {
	case notify.KindInboundRule, notify.KindOutboundRule:
		if event.Op == notify.OpDeleted {
			h.remove(contextName, event.ID, logger)
			return nil
		}
		if h.contexts != nil {
			h.contexts.Add(contextName)
		}
		var def *rules.RuleDefinition
		if !event.Remote {
			def = event.Definition
		}
		err = h.refresh(ctx, contextName, event.ID, def, logger)
	case notify.KindRuleComponent:
		// a condition or action record changed; the owning rule is rebuilt
		if event.ParentID == "" {
			logger.Warn("Rule component event without parent rule")
			return nil
		}
		err = h.refresh(ctx, contextName, event.ParentID, nil, logger)
	case notify.KindFolder:
		if h.contexts != nil && event.Op != notify.OpDeleted {
			h.contexts.Add(contextName)
		}
		err = h.reloadFolder(ctx, contextName, logger)
	case notify.KindItem:
		err = h.invalidateItem(ctx, event.ID)
	default:
		logger.Debug("Ignoring unrelated event")
		return nil
	}

	if err != nil {
		logger.Error("Failed to apply rule change", err)
	}
	return nil
}

// refresh recompiles one rule and publishes it. def is used as is when given;
// otherwise the rule is read from the store.
func (h *Handler) refresh(ctx context.Context, contextName, id string, def *rules.RuleDefinition, logger logging.Logger) error {
	cache, ok := h.registry.Lookup(contextName)
	if !ok {
		logger.Debug("Context not cached, skipping")
		return nil
	}

	if def == nil {
		var err error
		def, err = h.source.LoadOne(ctx, contextName, id)
		if errors.Is(err, storage.ErrNotFound) {
			h.remove(contextName, id, logger)
			return nil
		}
		if err != nil {
			return apperrors.NotificationError("failed to fetch rule", err).WithContext("rule_id", id)
		}
	}

	compiled, err := rules.Compile(*def)
	if err != nil {
		logger.Warn("Rule no longer compiles, dropping it", logging.Err(err))
		h.remove(contextName, id, logger)
		return nil
	}

	// a rule that changed direction leaves its old set
	if other := cache.Get(opposite(compiled.Direction())); other != nil {
		if _, ok := other.Get(id); ok {
			cache.Remove(id)
		}
	}

	if !cache.Upsert(compiled) {
		logger.Debug("Rule set not loaded yet, leaving rule for the next full load")
		return nil
	}
	logger.Info("Rule refreshed",
		logging.RuleID(compiled.ID()),
		logging.Field{"enabled", compiled.Enabled()},
	)
	return nil
}

func (h *Handler) remove(contextName, id string, logger logging.Logger) {
	cache, ok := h.registry.Lookup(contextName)
	if !ok {
		return
	}
	if cache.Remove(id) {
		logger.Info("Rule removed", logging.RuleID(id))
	}
}

func (h *Handler) reloadFolder(ctx context.Context, contextName string, logger logging.Logger) error {
	if _, ok := h.registry.Lookup(contextName); !ok {
		logger.Debug("Context not cached, skipping")
		return nil
	}
	if h.reloader == nil {
		h.registry.Invalidate(contextName)
		return nil
	}
	if err := h.reloader.ReloadContext(ctx, contextName); err != nil {
		return apperrors.NotificationError("failed to reload context after folder change", err)
	}
	return nil
}

func (h *Handler) invalidateItem(ctx context.Context, id string) error {
	if h.items == nil {
		return nil
	}
	if err := h.items.Invalidate(ctx, id); err != nil {
		return apperrors.NotificationError("failed to invalidate item", err).WithContext("item_id", id)
	}
	return nil
}

func opposite(d rules.Direction) rules.Direction {
	if d == rules.Outbound {
		return rules.Inbound
	}
	return rules.Outbound
}
