// Package registry provides a concurrency-safe map of per-call resources,
// keyed by Twilio call SID. The voice agent keeps one registry per resource
// type (live sessions, speech connections) instead of scattering ad-hoc maps
// across handlers.
package registry

import (
	"sync"

	"github.com/medidesk/voice-agent/internal/observability"
)

// Registry tracks one value of type T per call SID.
type Registry[T any] struct {
	name string
	mu   sync.RWMutex
	m    map[string]T
}

// New creates an empty registry. The name appears in log lines when an
// insert displaces an existing entry.
func New[T any](name string) *Registry[T] {
	return &Registry[T]{
		name: name,
		m:    make(map[string]T),
	}
}

// Put stores value under callSID. Overwriting an existing entry is legal but
// suspicious (it usually means a previous call with the same SID was never
// torn down), so it is logged at warn level.
func (r *Registry[T]) Put(callSID string, value T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.m[callSID]; exists {
		log := observability.GetLogger()
		log.Warn().
			Str("registry", r.name).
			Str("call_sid", callSID).
			Msg("Overwriting existing registry entry")
	}
	r.m[callSID] = value
}

// Get returns the entry for callSID, if present.
func (r *Registry[T]) Get(callSID string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	value, ok := r.m[callSID]
	return value, ok
}

// Remove deletes the entry for callSID and reports whether one existed.
// Removing an absent key is a no-op, which lets teardown paths run
// unconditionally.
func (r *Registry[T]) Remove(callSID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, existed := r.m[callSID]
	delete(r.m, callSID)
	return existed
}

// Len returns the number of live entries.
func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.m)
}

// Keys returns a snapshot of the registered call SIDs.
func (r *Registry[T]) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.m))
	for k := range r.m {
		keys = append(keys, k)
	}
	return keys
}

// Snapshot returns a copy of the current entries.
func (r *Registry[T]) Snapshot() map[string]T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]T, len(r.m))
	for k, v := range r.m {
		out[k] = v
	}
	return out
}
