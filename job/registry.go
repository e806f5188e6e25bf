package job

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// HandlerFunc is a type-erased job handler that accepts raw JSON payload.
// The typed Definition[T] is converted to a HandlerFunc at registration
// time by closing over JSON unmarshal + the typed handler.
type HandlerFunc func(ctx context.Context, payload []byte) error

// FailureFunc is the type-erased form of Definition.OnFailure.
type FailureFunc func(ctx context.Context, payload []byte, cause error) error

type entry struct {
	handle    HandlerFunc
	onFailure FailureFunc
	opts      Options
}

// Registry maps job types to type-erased handler functions.
// It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[Type]entry
}

// NewRegistry creates an empty job registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[Type]entry),
	}
}

// RegisterDefinition registers a typed job definition. Payload decoding
// errors are permanent: a malformed payload does not improve on retry.
func RegisterDefinition[T any](r *Registry, def *Definition[T]) {
	decode := func(payload []byte) (T, error) {
		var t T
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &t); err != nil {
				return t, Permanent(fmt.Errorf("unmarshal payload for job type %q: %w", def.Type, err))
			}
		}
		return t, nil
	}

	e := entry{
		handle: func(ctx context.Context, payload []byte) error {
			t, err := decode(payload)
			if err != nil {
				return err
			}
			return def.Handler(ctx, t)
		},
		opts: def.Opts,
	}
	if def.OnFailure != nil {
		e.onFailure = func(ctx context.Context, payload []byte, cause error) error {
			t, err := decode(payload)
			if err != nil {
				return err
			}
			return def.OnFailure(ctx, t, cause)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[def.Type] = e
}

// Get returns the handler for the given job type.
func (r *Registry) Get(t Type) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[t]
	return e.handle, ok
}

// FailureHook returns the failure hook for t, if the definition set one.
func (r *Registry) FailureHook(t Type) (FailureFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[t]
	if !ok || e.onFailure == nil {
		return nil, false
	}
	return e.onFailure, true
}

// Options returns the definition options registered for t, or
// DefaultOptions when t has no definition.
func (r *Registry) Options(t Type) Options {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.entries[t]; ok {
		return e.opts
	}
	return DefaultOptions()
}

// Types returns all registered job types.
func (r *Registry) Types() []Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]Type, 0, len(r.entries))
	for t := range r.entries {
		types = append(types, t)
	}
	return types
}
