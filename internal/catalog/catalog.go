// Package catalog implements EndpointCatalog: the observable inventory of
// known MIDI endpoints (hardware, discovered by a platform watcher, and
// loopback, operator-managed and persisted). The in-memory store shape —
// an RWMutex-guarded map plus an atomic closed flag — generalizes the
// teacher's memoryWispStore; the discover-then-merge control flow in
// Refresh generalizes the teacher's discovery package. Close stops every
// mutator from touching the map once the engine is tearing down, the
// same role memoryWispStore's closed flag plays for its own store.
package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/midiflow/router/internal/types"
)

// ChangedFunc is invoked after EndpointsChanged fires. Handlers must not
// re-enter the catalog.
type ChangedFunc func()

// HardwareSource enumerates the hardware endpoints currently visible to
// the backend. It is the abstraction point over a real MIDI backend (the
// PortProvider's sibling for discovery rather than I/O).
type HardwareSource interface {
	Enumerate(ctx context.Context) ([]types.EndpointDescriptor, error)
}

// Persister durably stores the user-managed loopback endpoint set. The
// config package implements this with atomic write-tmp-rename.
type Persister interface {
	LoadLoopbacks() ([]types.EndpointDescriptor, error)
	SaveLoopbacks([]types.EndpointDescriptor) error
}

// Catalog is the concurrency-safe endpoint inventory.
type Catalog struct {
	mu       sync.RWMutex
	byID     map[string]*types.EndpointDescriptor // keyed by EndpointId.Normalize()
	handlers []ChangedFunc
	closed   atomic.Bool

	hw   HardwareSource
	pers Persister

	now func() time.Time
}

// New returns an empty Catalog backed by hw for hardware discovery and
// pers for loopback persistence.
func New(hw HardwareSource, pers Persister) *Catalog {
	return &Catalog{
		byID: make(map[string]*types.EndpointDescriptor),
		hw:   hw,
		pers: pers,
		now:  time.Now,
	}
}

// Close marks the catalog closed: every subsequent mutator becomes a
// no-op that leaves the map untouched. Refresh and CreateLoopback return
// types.ErrCatalogClosed, RenameLoopback and DeleteLoopback return false,
// and ApplyHardwareUpdate returns without effect. List and Get keep
// working so a shutting-down engine can still report its last known
// state. Safe to call more than once.
func (c *Catalog) Close() error {
	c.closed.Store(true)
	return nil
}

// OnChanged registers an EndpointsChanged handler.
func (c *Catalog) OnChanged(fn ChangedFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, fn)
}

// List returns a snapshot ordered by kind then name (case-insensitive).
func (c *Catalog) List() []types.EndpointDescriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]types.EndpointDescriptor, 0, len(c.byID))
	for _, e := range c.byID {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out
}

// Get returns one endpoint descriptor by id, or false if not present.
func (c *Catalog) Get(id types.EndpointId) (types.EndpointDescriptor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.byID[id.Normalize()]
	if !ok {
		return types.EndpointDescriptor{}, false
	}
	return *e, true
}

// Refresh re-enumerates hardware endpoints and reloads persisted loopback
// endpoints, then merges both into the catalog. It emits EndpointsChanged
// exactly once on success, even when the merge produced no observable
// difference (spec.md §9's preserved legacy behavior).
func (c *Catalog) Refresh(ctx context.Context) error {
	if c.closed.Load() {
		return types.ErrCatalogClosed
	}

	var hwEndpoints []types.EndpointDescriptor
	if c.hw != nil {
		var err error
		hwEndpoints, err = c.hw.Enumerate(ctx)
		if err != nil {
			return fmt.Errorf("catalog: enumerate hardware: %w", err)
		}
	}

	var loopEndpoints []types.EndpointDescriptor
	if c.pers != nil {
		var err error
		loopEndpoints, err = c.pers.LoadLoopbacks()
		if err != nil {
			return fmt.Errorf("catalog: load loopbacks: %w", err)
		}
	}

	next := make(map[string]*types.EndpointDescriptor, len(hwEndpoints)+len(loopEndpoints))
	for _, e := range hwEndpoints {
		e.Kind = types.Hardware
		e.IsUserManaged = false
		e.IsOnline = true
		cp := e
		next[e.ID.Normalize()] = &cp
	}
	for _, e := range loopEndpoints {
		e.Kind = types.Loopback
		e.IsUserManaged = true
		e.IsOnline = true
		cp := e
		next[e.ID.Normalize()] = &cp
	}

	c.mu.Lock()
	c.byID = next
	handlers := append([]ChangedFunc(nil), c.handlers...)
	c.mu.Unlock()

	notify(handlers)
	return nil
}

// CreateLoopback creates a new user-managed loopback endpoint, normalizing
// name (trimmed; falls back to "Loopback HHmmss" on blank) and persisting
// the updated loopback set before the in-memory mutation is committed. On
// persistence failure no in-memory change is made and ErrPersistenceFailed
// is returned.
func (c *Catalog) CreateLoopback(name string) (types.EndpointDescriptor, error) {
	if c.closed.Load() {
		return types.EndpointDescriptor{}, types.ErrCatalogClosed
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = fmt.Sprintf("Loopback %s", c.now().Format("150405"))
	}

	id := types.EndpointId("loop:" + strings.ReplaceAll(uuid.NewString(), "-", ""))
	desc := types.EndpointDescriptor{
		ID:             id,
		Name:           name,
		Kind:           types.Loopback,
		SupportsInput:  true,
		SupportsOutput: true,
		IsOnline:       true,
		IsUserManaged:  true,
	}

	if err := c.persistLoopbackMutation(func(loopbacks []types.EndpointDescriptor) []types.EndpointDescriptor {
		return append(loopbacks, desc)
	}); err != nil {
		return types.EndpointDescriptor{}, err
	}

	c.mu.Lock()
	c.byID[id.Normalize()] = &desc
	handlers := append([]ChangedFunc(nil), c.handlers...)
	c.mu.Unlock()

	notify(handlers)
	return desc, nil
}

// RenameLoopback renames a user-managed loopback endpoint, returning false
// if id does not exist or is not user-managed.
func (c *Catalog) RenameLoopback(id types.EndpointId, newName string) bool {
	if c.closed.Load() {
		return false
	}

	newName = strings.TrimSpace(newName)
	if newName == "" {
		return false
	}

	c.mu.RLock()
	existing, ok := c.byID[id.Normalize()]
	isUserManaged := ok && existing.IsUserManaged
	c.mu.RUnlock()
	if !isUserManaged {
		return false
	}

	err := c.persistLoopbackMutation(func(loopbacks []types.EndpointDescriptor) []types.EndpointDescriptor {
		for i := range loopbacks {
			if loopbacks[i].ID.Normalize() == id.Normalize() {
				loopbacks[i].Name = newName
			}
		}
		return loopbacks
	})
	if err != nil {
		return false
	}

	c.mu.Lock()
	if e, ok := c.byID[id.Normalize()]; ok {
		e.Name = newName
	}
	handlers := append([]ChangedFunc(nil), c.handlers...)
	c.mu.Unlock()

	notify(handlers)
	return true
}

// DeleteLoopback removes a user-managed loopback endpoint, returning false
// if id does not exist or is not user-managed.
func (c *Catalog) DeleteLoopback(id types.EndpointId) bool {
	if c.closed.Load() {
		return false
	}

	c.mu.RLock()
	existing, ok := c.byID[id.Normalize()]
	isUserManaged := ok && existing.IsUserManaged
	c.mu.RUnlock()
	if !isUserManaged {
		return false
	}

	err := c.persistLoopbackMutation(func(loopbacks []types.EndpointDescriptor) []types.EndpointDescriptor {
		out := loopbacks[:0]
		for _, e := range loopbacks {
			if e.ID.Normalize() != id.Normalize() {
				out = append(out, e)
			}
		}
		return out
	})
	if err != nil {
		return false
	}

	c.mu.Lock()
	delete(c.byID, id.Normalize())
	handlers := append([]ChangedFunc(nil), c.handlers...)
	c.mu.Unlock()

	notify(handlers)
	return true
}

// ApplyHardwareUpdate merges a hot-plug signal from the platform watcher
// into the hardware section of the catalog, per the merge rules in
// spec.md §4.4: adding a direction OR-s it in; removing a direction clears
// only that direction; an endpoint left with neither direction is dropped.
func (c *Catalog) ApplyHardwareUpdate(id types.EndpointId, name string, addInput, addOutput, removeInput, removeOutput bool) {
	if c.closed.Load() {
		return
	}

	c.mu.Lock()
	key := id.Normalize()
	e, ok := c.byID[key]
	if !ok {
		e = &types.EndpointDescriptor{ID: id, Name: name, Kind: types.Hardware, IsOnline: true}
		c.byID[key] = e
	}
	if name != "" {
		e.Name = name
	}
	if addInput {
		e.SupportsInput = true
	}
	if addOutput {
		e.SupportsOutput = true
	}
	if removeInput {
		e.SupportsInput = false
	}
	if removeOutput {
		e.SupportsOutput = false
	}
	if !e.SupportsInput && !e.SupportsOutput {
		delete(c.byID, key)
	}
	handlers := append([]ChangedFunc(nil), c.handlers...)
	c.mu.Unlock()

	notify(handlers)
}

func (c *Catalog) persistLoopbackMutation(mutate func([]types.EndpointDescriptor) []types.EndpointDescriptor) error {
	if c.pers == nil {
		return nil
	}
	current, err := c.pers.LoadLoopbacks()
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrPersistenceFailed, err)
	}
	next := mutate(current)
	if err := c.pers.SaveLoopbacks(next); err != nil {
		return fmt.Errorf("%w: %v", types.ErrPersistenceFailed, err)
	}
	return nil
}

func notify(handlers []ChangedFunc) {
	for _, h := range handlers {
		h()
	}
}
