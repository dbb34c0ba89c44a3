package envelope

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Registry maps event type names to payload constructors so consumers can
// decode the type-erased payload of a received envelope. The set of
// registered types is the closed set of events a service understands.
type Registry struct {
	mu   sync.RWMutex
	news map[string]func() any
}

func NewRegistry() *Registry {
	return &Registry{news: map[string]func() any{}}
}

func (r *Registry) Register(eventType string, ctor func() any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.news[eventType] = ctor
}

// Known reports whether eventType is inside the registered set.
func (r *Registry) Known(eventType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.news[eventType]
	return ok
}

// Decode constructs the concrete payload for env. The returned value is a
// pointer to a freshly allocated payload struct.
func (r *Registry) Decode(env Envelope) (any, error) {
	r.mu.RLock()
	ctor, ok := r.news[env.EventType]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, env.EventType)
	}
	payload := ctor()
	if env.Payload != nil {
		if err := json.Unmarshal(env.Payload, payload); err != nil {
			return nil, fmt.Errorf("%w: payload for %s: %v", ErrMalformed, env.EventType, err)
		}
	}
	return payload, nil
}

// RegisterPayload registers a constructor producing a fresh *T per decode.
func RegisterPayload[T any](r *Registry, eventType string) {
	r.Register(eventType, func() any { return new(T) })
}
