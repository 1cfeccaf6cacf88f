// Package eventlog implements MessageLog: a bounded, observable ring
// buffer of structured traffic log entries (spec.md §4.9). The bound is
// enforced under a single mutex across concurrent Add/Configure calls; the
// eviction-on-capacity idea generalizes the teacher's JSONL log rotation
// (internal/jsonl) from file-backed rotation to an in-memory ring, and the
// Register/notify shape generalizes internal/eventbus without its NATS
// publish step (no in-scope component needs distributed log delivery).
package eventlog

import (
	"sync"

	"github.com/midiflow/router/internal/types"
)

const (
	// DefaultCapacity is the MessageLog's default ring size.
	DefaultCapacity = 5000
	// MinCapacity is the lowest capacity Configure will accept.
	MinCapacity = 1
	// MaxCapacity is the highest capacity Configure will accept.
	MaxCapacity = 200000
)

// EntryAddedFunc is invoked after an entry is appended.
type EntryAddedFunc func(entry types.LogEntry)

// ClearedFunc is invoked after the log is cleared.
type ClearedFunc func()

// Log is a capacity-bounded, thread-safe ring buffer of LogEntry values.
type Log struct {
	mu       sync.Mutex
	entries  []types.LogEntry // logical order: oldest first
	capacity int

	onAdded   []EntryAddedFunc
	onCleared []ClearedFunc
}

// New returns a Log with the given initial capacity, clamped to
// [MinCapacity, MaxCapacity].
func New(capacity int) *Log {
	return &Log{capacity: clamp(capacity)}
}

func clamp(c int) int {
	if c < MinCapacity {
		return MinCapacity
	}
	if c > MaxCapacity {
		return MaxCapacity
	}
	return c
}

// OnEntryAdded registers an EntryAdded handler.
func (l *Log) OnEntryAdded(fn EntryAddedFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onAdded = append(l.onAdded, fn)
}

// OnCleared registers a Cleared handler.
func (l *Log) OnCleared(fn ClearedFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onCleared = append(l.onCleared, fn)
}

// Capacity returns the current capacity bound.
func (l *Log) Capacity() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.capacity
}

// Configure clamps newCapacity into [MinCapacity, MaxCapacity] and, when it
// shrinks the log, evicts the oldest entries to restore the invariant
// size <= capacity.
func (l *Log) Configure(newCapacity int) {
	c := clamp(newCapacity)
	l.mu.Lock()
	l.capacity = c
	if len(l.entries) > c {
		l.entries = append([]types.LogEntry(nil), l.entries[len(l.entries)-c:]...)
	}
	l.mu.Unlock()
}

// Add appends entry, evicting the oldest entry if the log is at capacity.
func (l *Log) Add(entry types.LogEntry) {
	l.mu.Lock()
	l.entries = append(l.entries, entry)
	if len(l.entries) > l.capacity {
		excess := len(l.entries) - l.capacity
		l.entries = append([]types.LogEntry(nil), l.entries[excess:]...)
	}
	handlers := append([]EntryAddedFunc(nil), l.onAdded...)
	l.mu.Unlock()

	for _, h := range handlers {
		h(entry)
	}
}

// Clear empties the log.
func (l *Log) Clear() {
	l.mu.Lock()
	l.entries = nil
	handlers := append([]ClearedFunc(nil), l.onCleared...)
	l.mu.Unlock()

	for _, h := range handlers {
		h()
	}
}

// List returns a snapshot copy of all entries in insertion order.
func (l *Log) List() []types.LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]types.LogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}
