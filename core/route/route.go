// Package route dispatches decoded envelopes to exactly one domain handler
// per event type. It carries no business logic of its own.
package route

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/slicework/choreo-go/core/envelope"
)

// HandlerFunc handles one decoded event. evt is the pointer produced by the
// payload registry for the event type the handler was registered under.
type HandlerFunc func(ctx context.Context, evt any, correlationID string) error

type Router struct {
	log      *slog.Logger
	registry *envelope.Registry

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

func NewRouter(log *slog.Logger, registry *envelope.Registry) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{
		log:      log.With(slog.String("component", "router")),
		registry: registry,
		handlers: map[string]HandlerFunc{},
	}
}

func (r *Router) Handle(eventType string, h HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[eventType] = h
}

// Handle registers a typed handler for eventType. The registry must decode
// that type into *T; a mismatch is reported as a handler error at dispatch.
func Handle[T any](r *Router, eventType string, h func(ctx context.Context, evt *T, correlationID string) error) {
	r.Handle(eventType, func(ctx context.Context, evt any, correlationID string) error {
		typed, ok := evt.(*T)
		if !ok {
			return fmt.Errorf("handler for %s: unexpected payload type %T", eventType, evt)
		}
		return h(ctx, typed, correlationID)
	})
}

// Route decodes env's payload and invokes the registered handler. An event
// type with no handler is not an error: the topic exchange fans out routing
// keys a service may not act on, so the message is logged and dropped.
func (r *Router) Route(ctx context.Context, env envelope.Envelope, correlationID string) error {
	r.mu.RLock()
	h, ok := r.handlers[env.EventType]
	r.mu.RUnlock()
	if !ok {
		r.log.WarnContext(ctx, "no handler for event type, dropping",
			slog.String("event_type", env.EventType),
			slog.String("message_id", env.MessageID),
		)
		return nil
	}

	evt, err := r.registry.Decode(env)
	if err != nil {
		return err
	}
	return h(ctx, evt, correlationID)
}
