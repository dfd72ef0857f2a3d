package notify

import (
	"context"
	"sync"

	"url-rewrite/internal/common/errors"
	"url-rewrite/internal/common/logging"
)

// Handler processes one event. Returned errors are logged by the bus.
type Handler func(ctx context.Context, event Event) error

// Bus delivers lifecycle events to subscribers
type Bus interface {
	Name() string
	Publish(ctx context.Context, event *Event) error
	// Subscribe registers handler until ctx ends
	Subscribe(ctx context.Context, handler Handler) error
	Health(ctx context.Context) error
	Close() error
}

// Transport moves encoded events between processes
type Transport interface {
	Name() string
	Publish(ctx context.Context, body []byte) error
	Subscribe(ctx context.Context, fn func(ctx context.Context, body []byte) error) error
	Health(ctx context.Context) error
	Close() error
}

// LocalBus delivers events to subscribers in the same process, definition
// included. Delivery is synchronous.
type LocalBus struct {
	mu       sync.RWMutex
	handlers map[int]Handler
	next     int
	closed   bool
	logger   logging.Logger
}

var _ Bus = (*LocalBus)(nil)

func NewLocalBus(logger logging.Logger) *LocalBus {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &LocalBus{
		handlers: make(map[int]Handler),
		logger:   logger.WithFields(logging.Field{"bus", "local"}),
	}
}

func (b *LocalBus) Name() string { return "local" }

func (b *LocalBus) Publish(ctx context.Context, event *Event) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return errors.ConnectionError("local bus is closed", nil)
	}
	handlers := make([]Handler, 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		ev := *event
		ev.Remote = false
		if err := h(ctx, ev); err != nil {
			b.logger.Error("Error handling event", err,
				logging.Field{"event_id", ev.ID},
				logging.Field{"kind", string(ev.Kind)},
			)
		}
	}
	return nil
}

func (b *LocalBus) Subscribe(ctx context.Context, handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errors.ConnectionError("local bus is closed", nil)
	}
	id := b.next
	b.next++
	b.handlers[id] = handler

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.handlers, id)
		b.mu.Unlock()
	}()
	return nil
}

func (b *LocalBus) Health(context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return errors.ConnectionError("local bus is closed", nil)
	}
	return nil
}

func (b *LocalBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.handlers = make(map[int]Handler)
	return nil
}

// Remote is a Bus over a Transport
type Remote struct {
	transport Transport
	logger    logging.Logger
}

var _ Bus = (*Remote)(nil)

func NewRemote(transport Transport, logger logging.Logger) *Remote {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Remote{
		transport: transport,
		logger:    logger.WithFields(logging.Field{"bus", transport.Name()}),
	}
}

func (r *Remote) Name() string { return r.transport.Name() }

func (r *Remote) Publish(ctx context.Context, event *Event) error {
	body, err := event.Encode()
	if err != nil {
		return err
	}
	if err := r.transport.Publish(ctx, body); err != nil {
		return errors.NotificationError("failed to publish event", err).
			WithContext("bus", r.transport.Name()).
			WithContext("event_id", event.ID)
	}
	r.logger.Debug("Event published",
		logging.Field{"event_id", event.ID},
		logging.Field{"kind", string(event.Kind)},
		logging.Field{"op", string(event.Op)},
	)
	return nil
}

// Subscribe decodes every message of the transport and passes it to handler.
// Undecodable messages are logged and acknowledged so they are not redelivered.
func (r *Remote) Subscribe(ctx context.Context, handler Handler) error {
	return r.transport.Subscribe(ctx, func(ctx context.Context, body []byte) error {
		event, err := Decode(body)
		if err != nil {
			r.logger.Warn("Dropping undecodable event", logging.Err(err), logging.Field{"size", len(body)})
			return nil
		}
		if err := handler(ctx, *event); err != nil {
			r.logger.Error("Error handling event", err,
				logging.Field{"event_id", event.ID},
				logging.Field{"kind", string(event.Kind)},
			)
			return err
		}
		return nil
	})
}

func (r *Remote) Health(ctx context.Context) error { return r.transport.Health(ctx) }

func (r *Remote) Close() error { return r.transport.Close() }
