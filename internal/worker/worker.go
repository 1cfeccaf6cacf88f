// Package worker implements RoutingWorker: the single-reader dispatch loop
// that drains inbound packets, evaluates the route index, and forwards
// matching packets to their targets (spec.md §4.7). The
// read-a-channel-until-signalled shape generalizes the teacher's
// coop.Watcher goroutine (internal/coop/watcher.go), there reading
// WebSocket events instead of MIDI packets.
package worker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/midiflow/router/internal/routing"
	"github.com/midiflow/router/internal/types"
)

// Sender delivers a packet to an output endpoint. Implemented by
// internal/session.Session.Send.
type Sender interface {
	Send(ctx context.Context, target types.EndpointId, p types.MidiPacket) error
}

// Logger appends structured traffic log entries. Implemented by
// internal/eventlog.Log.
type Logger interface {
	Add(entry types.LogEntry)
}

// Telemetry records per-endpoint traffic. Implemented by
// internal/telemetry.Analyzer.
type Telemetry interface {
	Register(endpointID types.EndpointId, byteCount int, channel int)
}

// NameSource resolves an endpoint's display name. Implemented by
// internal/catalog.Catalog.
type NameSource interface {
	Get(id types.EndpointId) (types.EndpointDescriptor, bool)
}

// ForwardedFunc is invoked after a successful forward, implementing the
// RouteForwarded event (spec.md §6.3).
type ForwardedFunc func(routeID types.RouteId, source, target types.EndpointId, ts time.Time)

// Worker is the RoutingWorker.
type Worker struct {
	index   *routing.Index
	sender  Sender
	logger  Logger
	telem   Telemetry
	names   NameSource
	onForwarded ForwardedFunc

	queue *queue

	mu          sync.RWMutex
	nameCache   map[string]string
	running     bool
	readerDone  chan struct{}
}

// New constructs a Worker. index must already be wired to the owning
// RouteMatrix's RoutesChanged notifications by the caller (cmd/midiroute's
// newApp registers a Matrix.OnChanged handler that calls Index.Rebuild
// with Matrix.Snapshot).
func New(index *routing.Index, sender Sender, logger Logger, telem Telemetry, names NameSource, onForwarded ForwardedFunc) *Worker {
	return &Worker{
		index:     index,
		sender:    sender,
		logger:    logger,
		telem:     telem,
		names:     names,
		onForwarded: onForwarded,
		queue:     newQueue(),
		nameCache: make(map[string]string),
	}
}

// InvalidateNames clears the cached endpoint display names, to be called
// on EndpointsChanged.
func (w *Worker) InvalidateNames() {
	w.mu.Lock()
	w.nameCache = make(map[string]string)
	w.mu.Unlock()
}

func (w *Worker) nameOf(id types.EndpointId) string {
	key := id.Normalize()

	w.mu.RLock()
	name, ok := w.nameCache[key]
	w.mu.RUnlock()
	if ok {
		return name
	}

	name = string(id)
	if w.names != nil {
		if desc, found := w.names.Get(id); found {
			name = desc.Name
		}
	}

	w.mu.Lock()
	w.nameCache[key] = name
	w.mu.Unlock()
	return name
}

// Enqueue adds an inbound packet to the dispatch queue. Safe to call from
// any goroutine, including provider callback threads; never blocks.
func (w *Worker) Enqueue(p types.MidiPacket) {
	w.queue.push(p)
}

// Start spawns the reader goroutine. Safe to call once per Worker.
func (w *Worker) Start() {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.readerDone = make(chan struct{})
	done := w.readerDone
	w.mu.Unlock()

	go func() {
		defer close(done)
		w.readLoop()
	}()
}

func (w *Worker) readLoop() {
	for {
		p, ok := w.queue.pop()
		if !ok {
			return
		}
		w.dispatch(p)
	}
}

func (w *Worker) dispatch(p types.MidiPacket) {
	if w.telem != nil {
		w.telem.Register(p.SourceEndpointID, len(p.Data), p.Channel)
	}
	if w.logger != nil {
		w.logger.Add(types.LogEntry{
			Timestamp:    p.Timestamp,
			EndpointName: w.nameOf(p.SourceEndpointID),
			Channel:      p.Channel,
			MessageType:  p.MessageType,
			Detail:       "IN " + formatDetail(p),
		})
	}

	routes := w.index.Get(p.SourceEndpointID)
	for _, r := range routes {
		if !r.Enabled {
			continue
		}
		if !r.Filter.Allows(p.Channel, p.MessageType) {
			continue
		}

		err := w.sender.Send(context.Background(), r.Target, p)
		if err != nil {
			if w.logger != nil {
				w.logger.Add(types.LogEntry{
					Timestamp:    time.Now().UTC(),
					EndpointName: w.nameOf(r.Target),
					Channel:      p.Channel,
					MessageType:  p.MessageType,
					Detail:       "ERROR " + err.Error(),
				})
			}
			log.Printf("worker: dispatch %s -> %s failed: %v", r.Source, r.Target, err)
			continue
		}

		if w.telem != nil {
			w.telem.Register(r.Target, len(p.Data), p.Channel)
		}
		if w.logger != nil {
			w.logger.Add(types.LogEntry{
				Timestamp:    time.Now().UTC(),
				EndpointName: w.nameOf(r.Target),
				Channel:      p.Channel,
				MessageType:  p.MessageType,
				Detail:       fmt.Sprintf("Routed from %s %s", w.nameOf(r.Source), formatDetail(p)),
			})
		}
		if w.onForwarded != nil {
			w.onForwarded(r.ID, r.Source, r.Target, time.Now().UTC())
		}
	}
}

// Stop signals queue completion and waits up to timeout for the reader to
// drain and exit. On timeout the reader is abandoned: Stop returns but the
// goroutine keeps running until the queue empties on its own.
func (w *Worker) Stop(ctx context.Context, timeout time.Duration) {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	done := w.readerDone
	w.mu.Unlock()

	w.queue.closeQueue()

	select {
	case <-done:
	case <-time.After(timeout):
		log.Printf("worker: stop timed out after %s, abandoning reader", timeout)
	case <-ctx.Done():
	}
}
