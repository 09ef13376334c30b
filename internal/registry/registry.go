// Package registry keeps the live connections of a server keyed by
// connection id.
//
// The owning worker is the only writer for its own entry: it calls Add when
// it starts and Remove when it ends. Every other user (broadcast, stop)
// works on a Snapshot and never mutates the registry.
package registry

import (
	"sort"

	"github.com/puzpuzpuz/xsync/v3"
)

// Entry pairs an id with its registered value.
type Entry[V any] struct {
	ID    uint64
	Value V
}

// Registry is a concurrent id → value map.
type Registry[V any] struct {
	m *xsync.MapOf[uint64, V]
}

// New returns an empty registry.
func New[V any]() *Registry[V] {
	return &Registry[V]{m: xsync.NewMapOf[uint64, V]()}
}

// Add registers v under id, replacing any previous value.
func (r *Registry[V]) Add(id uint64, v V) {
	r.m.Store(id, v)
}

// Remove unregisters id. It reports whether an entry was present.
func (r *Registry[V]) Remove(id uint64) bool {
	_, ok := r.m.LoadAndDelete(id)
	return ok
}

// Get returns the value registered under id.
func (r *Registry[V]) Get(id uint64) (V, bool) {
	return r.m.Load(id)
}

// Len returns the number of registered entries.
func (r *Registry[V]) Len() int {
	return r.m.Size()
}

// Snapshot copies the current entries ordered by id.
func (r *Registry[V]) Snapshot() []Entry[V] {
	out := make([]Entry[V], 0, r.m.Size())
	r.m.Range(func(id uint64, v V) bool {
		out = append(out, Entry[V]{ID: id, Value: v})
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
