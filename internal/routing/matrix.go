// Package routing owns the RouteMatrix — the authoritative, observable set
// of routes — and the derived, read-optimized RouteIndex the dispatch
// worker consumes. The registry shape (a map-by-id plus insertion order
// under one RWMutex in Matrix, a by-source map published atomically in
// Index, change notification fired after the mutation commits) is
// generalized from the teacher's hook-gate registry.
package routing

import (
	"sort"
	"strings"
	"sync"

	"github.com/midiflow/router/internal/types"
)

// ChangedFunc is invoked after every Upsert and ReplaceAll, and after a
// Remove that removed a route. Handlers must not re-enter the matrix
// (spec.md §9).
type ChangedFunc func()

// Matrix is the authoritative, concurrency-safe set of route definitions.
type Matrix struct {
	mu       sync.RWMutex
	byID     map[types.RouteId]*types.RouteDefinition
	order    []types.RouteId // insertion order, for RouteIndex grouping
	handlers []ChangedFunc
}

// NewMatrix returns an empty RouteMatrix.
func NewMatrix() *Matrix {
	return &Matrix{byID: make(map[types.RouteId]*types.RouteDefinition)}
}

// orderedSnapshot returns routes in insertion order (not the (source,
// target) display order List uses) for RouteIndex construction. Caller
// must hold at least a read lock.
func (m *Matrix) orderedSnapshot() []types.RouteDefinition {
	out := make([]types.RouteDefinition, 0, len(m.order))
	for _, id := range m.order {
		if r, ok := m.byID[id]; ok {
			out = append(out, *r)
		}
	}
	return out
}

// OnChanged registers a handler invoked once per mutating call: every
// Upsert and ReplaceAll fires it (even when the contents end up the same),
// and Remove fires it only when a route was removed. A ReplaceAll call
// fires exactly once, never once per replaced route.
func (m *Matrix) OnChanged(fn ChangedFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, fn)
}

// List returns a stable-ordered snapshot of all routes, sorted by
// (source, target) per spec.md §4.3.
func (m *Matrix) List() []types.RouteDefinition {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]types.RouteDefinition, 0, len(m.byID))
	for _, r := range m.byID {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Source != out[j].Source {
			return out[i].Source.Normalize() < out[j].Source.Normalize()
		}
		return out[i].Target.Normalize() < out[j].Target.Normalize()
	})
	return out
}

// Upsert inserts or replaces a route by id. It fails with
// types.ErrInvalidRoute when source/target are blank or equal
// (case-insensitively). The filter is not checked here: a RouteFilter is
// validated by types.NewRouteFilter and has no "invalid" representation
// once constructed, and a zero-value RouteFilter allows everything.
func (m *Matrix) Upsert(route types.RouteDefinition) error {
	if route.Source == "" || route.Target == "" || strings.EqualFold(string(route.Source), string(route.Target)) {
		return types.ErrInvalidRoute
	}

	m.mu.Lock()
	cp := route
	if _, existed := m.byID[route.ID]; !existed {
		m.order = append(m.order, route.ID)
	}
	m.byID[route.ID] = &cp
	handlers := append([]ChangedFunc(nil), m.handlers...)
	m.mu.Unlock()

	notify(handlers)
	return nil
}

// Remove deletes a route by id, returning true iff it was present.
// RoutesChanged fires only on an actual removal.
func (m *Matrix) Remove(id types.RouteId) bool {
	m.mu.Lock()
	_, existed := m.byID[id]
	if existed {
		delete(m.byID, id)
		for i, oid := range m.order {
			if oid == id {
				m.order = append(m.order[:i], m.order[i+1:]...)
				break
			}
		}
	}
	handlers := append([]ChangedFunc(nil), m.handlers...)
	m.mu.Unlock()

	if existed {
		notify(handlers)
	}
	return existed
}

// ReplaceAll atomically swaps the entire route set, firing exactly one
// RoutesChanged notification.
func (m *Matrix) ReplaceAll(routes []types.RouteDefinition) {
	next := make(map[types.RouteId]*types.RouteDefinition, len(routes))
	order := make([]types.RouteId, 0, len(routes))
	for _, r := range routes {
		cp := r
		next[r.ID] = &cp
		order = append(order, r.ID)
	}

	m.mu.Lock()
	m.byID = next
	m.order = order
	handlers := append([]ChangedFunc(nil), m.handlers...)
	m.mu.Unlock()

	notify(handlers)
}

// Snapshot returns all routes in insertion order, the ordering RouteIndex
// groups by source to preserve (spec.md §4.7's "in insertion order").
func (m *Matrix) Snapshot() []types.RouteDefinition {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.orderedSnapshot()
}

func notify(handlers []ChangedFunc) {
	for _, h := range handlers {
		h()
	}
}
