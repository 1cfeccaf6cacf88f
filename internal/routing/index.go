package routing

import (
	"sync/atomic"

	"github.com/midiflow/router/internal/types"
)

// Index is the derived, read-only mapping of source endpoint id to the
// ordered sequence of routes originating there. It is rebuilt from a
// Matrix snapshot and published via a single atomic pointer swap, so
// readers always observe either an entire prior or entire new version
// (spec.md §4.3, §9).
type Index struct {
	ptr atomic.Pointer[indexData]
}

type indexData struct {
	bySource map[string][]types.RouteDefinition
}

// NewIndex returns an empty, immediately-usable Index.
func NewIndex() *Index {
	idx := &Index{}
	idx.ptr.Store(&indexData{bySource: map[string][]types.RouteDefinition{}})
	return idx
}

// Rebuild constructs a new index version from routes (expected to be a
// Matrix.Snapshot()) and publishes it atomically. Routes within a source
// group retain the order they appear in routes.
func (idx *Index) Rebuild(routes []types.RouteDefinition) {
	bySource := make(map[string][]types.RouteDefinition)
	for _, r := range routes {
		key := r.Source.Normalize()
		bySource[key] = append(bySource[key], r)
	}
	idx.ptr.Store(&indexData{bySource: bySource})
}

// Get returns the ordered routes for a source endpoint id, or nil if none
// are registered. The returned slice is never mutated by the index after
// publication and is safe to range over without copying.
func (idx *Index) Get(source types.EndpointId) []types.RouteDefinition {
	data := idx.ptr.Load()
	if data == nil {
		return nil
	}
	return data.bySource[source.Normalize()]
}
