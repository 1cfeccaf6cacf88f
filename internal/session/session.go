// Package session implements MidiSession: the state machine that owns
// open OS-level ports and keeps them reconciled against the endpoint
// catalog (spec.md §4.6). The debounced-reconcile-with-pending-collapse
// shape is grounded on the teacher's monitor loop
// (internal/coop/watcher.go's debounce timer plus a "dirty" flag that
// folds bursts into one follow-up pass), generalized here onto
// golang.org/x/sync/singleflight for the single-permit mutual exclusion
// the spec requires (§4.6, §5): singleflight's Do already gives
// "one execution in flight, concurrent callers share its result", which
// is exactly the coalescing rule reconciliation needs.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/midiflow/router/internal/catalog"
	"github.com/midiflow/router/internal/port"
	"github.com/midiflow/router/internal/taxonomy"
	"github.com/midiflow/router/internal/types"
	"golang.org/x/sync/singleflight"
)

// CatalogSource is the subset of internal/catalog.Catalog the session
// depends on.
type CatalogSource interface {
	List() []types.EndpointDescriptor
	OnChanged(fn catalog.ChangedFunc)
	Refresh(ctx context.Context) error
}

// InboundFunc is invoked for every inbound packet, whether delivered by a
// provider or synthesized by a loopback send.
type InboundFunc func(p types.MidiPacket)

// StateChangedFunc is invoked on each distinct state transition.
type StateChangedFunc func(state types.SessionState, detail string)

// DefaultDebounce is the delay used to coalesce bursts of hot-plug events
// before the first reconciliation pass (spec.md §4.6).
const DefaultDebounce = 120 * time.Millisecond

// DefaultSysExMaxBytes bounds MidiPacket.Data for inbound SysEx messages
// absent an operator override (spec.md §3).
const DefaultSysExMaxBytes = 4096

type openHandle struct {
	handle port.Handle
}

// Session is the MidiSession.
type Session struct {
	native port.Provider
	legacy port.Provider
	cat    CatalogSource
	debounce time.Duration
	sysExMaxBytes int

	mu          sync.Mutex
	state       types.SessionState
	inputs      map[string]openHandle
	outputs     map[string]openHandle
	debounceTimer *time.Timer
	pending     bool
	reconcileGroup singleflight.Group

	listenersMu   sync.Mutex
	onInbound     []InboundFunc
	onStateChange []StateChangedFunc

	now func() time.Time
}

// New constructs a Session. native handles non-legacy endpoint ids;
// legacy may be nil if no legacy fallback is configured.
func New(native, legacy port.Provider, cat CatalogSource) *Session {
	s := &Session{
		native:  native,
		legacy:  legacy,
		cat:     cat,
		debounce: DefaultDebounce,
		sysExMaxBytes: DefaultSysExMaxBytes,
		state:   types.Stopped,
		inputs:  make(map[string]openHandle),
		outputs: make(map[string]openHandle),
		now:     time.Now,
	}
	if native != nil {
		native.SetInboundHandler(s.handleInbound)
	}
	if legacy != nil {
		legacy.SetInboundHandler(s.handleInbound)
	}
	return s
}

// SetDebounce overrides the default reconciliation debounce. Call before
// Start; it is not safe to change once hot-plug events may be in flight.
func (s *Session) SetDebounce(d time.Duration) {
	if d <= 0 {
		return
	}
	s.mu.Lock()
	s.debounce = d
	s.mu.Unlock()
}

// SetSysExMaxBytes overrides how many bytes of an inbound SysEx message's
// Data are kept; the remainder is truncated before the packet is ever
// dispatched. Non-SysEx messages are unaffected, since §4.1's fixed
// message lengths already bound them.
func (s *Session) SetSysExMaxBytes(n int) {
	if n <= 0 {
		return
	}
	s.mu.Lock()
	s.sysExMaxBytes = n
	s.mu.Unlock()
}

// OnInbound registers a callback invoked for every inbound packet.
func (s *Session) OnInbound(fn InboundFunc) {
	s.listenersMu.Lock()
	s.onInbound = append(s.onInbound, fn)
	s.listenersMu.Unlock()
}

// OnStateChanged registers a callback invoked on every distinct state
// transition.
func (s *Session) OnStateChanged(fn StateChangedFunc) {
	s.listenersMu.Lock()
	s.onStateChange = append(s.onStateChange, fn)
	s.listenersMu.Unlock()
}

func (s *Session) handleInbound(endpointID types.EndpointId, data []byte, arrival time.Time) {
	p := s.decodePacket(endpointID, data, arrival)
	s.dispatchInbound(p)
}

func (s *Session) dispatchInbound(p types.MidiPacket) {
	s.listenersMu.Lock()
	handlers := append([]InboundFunc(nil), s.onInbound...)
	s.listenersMu.Unlock()
	for _, h := range handlers {
		h(p)
	}
}

func (s *Session) setState(state types.SessionState, detail string) {
	s.mu.Lock()
	if s.state == state {
		s.mu.Unlock()
		return
	}
	s.state = state
	s.mu.Unlock()

	s.listenersMu.Lock()
	handlers := append([]StateChangedFunc(nil), s.onStateChange...)
	s.listenersMu.Unlock()
	for _, h := range handlers {
		h(state, detail)
	}
}

// State returns the current lifecycle state.
func (s *Session) State() types.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start moves Stopped -> Starting -> Running, performing one
// reconciliation pass and subscribing to EndpointsChanged for subsequent
// debounced passes.
func (s *Session) Start(ctx context.Context) error {
	s.setState(types.Starting, "")

	if s.cat != nil {
		if err := s.cat.Refresh(ctx); err != nil {
			s.setState(types.Faulted, err.Error())
			return fmt.Errorf("session: initial catalog refresh: %w", err)
		}
		s.cat.OnChanged(s.scheduleReconcile)
	}

	if err := s.reconcile(ctx); err != nil {
		s.setState(types.Faulted, err.Error())
		return fmt.Errorf("session: initial reconciliation: %w", err)
	}

	s.setState(types.Running, "")
	return nil
}

// scheduleReconcile debounces EndpointsChanged bursts into a single
// reconciliation pass, started s.debounce (DefaultDebounce unless
// SetDebounce changed it) after the first event in a burst. Once the
// session is Stopped, a fired timer runs no pass.
func (s *Session) scheduleReconcile() {
	s.mu.Lock()
	if s.debounceTimer != nil {
		s.pending = true
		s.mu.Unlock()
		return
	}
	s.debounceTimer = time.AfterFunc(s.debounce, func() {
		s.mu.Lock()
		s.debounceTimer = nil
		stopped := s.state == types.Stopped
		s.mu.Unlock()
		if stopped {
			return
		}
		_ = s.reconcile(context.Background())
	})
	s.mu.Unlock()
}

// reconcile runs a single reconciliation pass, enforced to run at most
// once concurrently via singleflight. If a call arrives while one is in
// flight, it sets the pending flag rather than running a second pass
// immediately; the in-flight pass loops once more on completion if
// pending was set, collapsing any burst to exactly one follow-up.
func (s *Session) reconcile(ctx context.Context) error {
	for {
		_, err, _ := s.reconcileGroup.Do("reconcile", func() (interface{}, error) {
			return nil, s.reconcileOnce(ctx)
		})
		if err != nil {
			return err
		}

		s.mu.Lock()
		again := s.pending
		s.pending = false
		s.mu.Unlock()
		if !again {
			return nil
		}
	}
}

func (s *Session) reconcileOnce(ctx context.Context) error {
	if s.cat == nil {
		return nil
	}

	desiredInputs := make(map[string]types.EndpointDescriptor)
	desiredOutputs := make(map[string]types.EndpointDescriptor)
	for _, e := range s.cat.List() {
		if !e.IsOnline {
			continue
		}
		key := e.ID.Normalize()
		if e.SupportsInput {
			desiredInputs[key] = e
		}
		if e.SupportsOutput {
			desiredOutputs[key] = e
		}
	}

	s.mu.Lock()
	currentInputs := make(map[string]openHandle, len(s.inputs))
	for k, v := range s.inputs {
		currentInputs[k] = v
	}
	currentOutputs := make(map[string]openHandle, len(s.outputs))
	for k, v := range s.outputs {
		currentOutputs[k] = v
	}
	s.mu.Unlock()

	for key, oh := range currentInputs {
		if _, wanted := desiredInputs[key]; !wanted {
			s.closeInput(key, oh)
		}
	}
	for key, oh := range currentOutputs {
		if _, wanted := desiredOutputs[key]; !wanted {
			s.closeOutput(key, oh)
		}
	}

	for key, desc := range desiredInputs {
		if _, open := currentInputs[key]; open {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		s.openInput(ctx, key, desc.ID)
	}
	for key, desc := range desiredOutputs {
		if _, open := currentOutputs[key]; open {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		s.openOutput(ctx, key, desc.ID)
	}

	return nil
}

func (s *Session) providerFor(id types.EndpointId) port.Provider {
	if s.legacy != nil && port.IsLegacy(id) {
		return s.legacy
	}
	return s.native
}

func (s *Session) openInput(ctx context.Context, key string, id types.EndpointId) {
	p := s.providerFor(id)
	if p == nil {
		return
	}
	h, err := p.OpenInput(ctx, id)
	if err != nil {
		// PortUnavailable is non-fatal; retried on the next pass.
		return
	}
	s.mu.Lock()
	s.inputs[key] = openHandle{handle: h}
	s.mu.Unlock()
}

func (s *Session) openOutput(ctx context.Context, key string, id types.EndpointId) {
	p := s.providerFor(id)
	if p == nil {
		return
	}
	h, err := p.OpenOutput(ctx, id)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.outputs[key] = openHandle{handle: h}
	s.mu.Unlock()
}

func (s *Session) closeInput(key string, oh openHandle) {
	p := s.providerFor(oh.handle.EndpointID())
	if p != nil {
		_ = p.Close(oh.handle)
	}
	s.mu.Lock()
	delete(s.inputs, key)
	s.mu.Unlock()
}

func (s *Session) closeOutput(key string, oh openHandle) {
	p := s.providerFor(oh.handle.EndpointID())
	if p != nil {
		_ = p.Close(oh.handle)
	}
	s.mu.Lock()
	delete(s.outputs, key)
	s.mu.Unlock()
}

// Send writes a packet to target. If target has no open output handle
// (the endpoint vanished), the call is a silent success. Loopback
// endpoints are synthesized as an inbound packet bypassing the OS
// entirely, with a fresh UTC timestamp, per spec.md §4.6.
func (s *Session) Send(ctx context.Context, target types.EndpointId, p types.MidiPacket) error {
	key := target.Normalize()

	if strings.HasPrefix(key, "loop:") {
		echoed := p
		echoed.SourceEndpointID = target
		echoed.Timestamp = s.now().UTC()
		s.dispatchInbound(echoed)
		return nil
	}

	s.mu.Lock()
	oh, open := s.outputs[key]
	s.mu.Unlock()
	if !open {
		return nil
	}

	provider := s.providerFor(target)
	if provider == nil {
		return nil
	}
	if err := provider.Send(oh.handle, p.Data); err != nil {
		return fmt.Errorf("session: send to %s: %w", target, err)
	}
	return nil
}

// Stop cancels any pending debounce timer, waits for an in-flight
// reconciliation to finish, closes every open port, and transitions to
// Stopped. The catalog handler registered by Start stays registered, but
// once Stopped a catalog change no longer runs a reconciliation pass.
// Idempotent.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.debounceTimer != nil {
		s.debounceTimer.Stop()
		s.debounceTimer = nil
	}
	s.pending = false
	s.mu.Unlock()

	s.reconcileGroup.Do("reconcile", func() (interface{}, error) { return nil, nil })

	s.mu.Lock()
	inputs := s.inputs
	outputs := s.outputs
	s.inputs = make(map[string]openHandle)
	s.outputs = make(map[string]openHandle)
	s.mu.Unlock()

	for key, oh := range inputs {
		s.closeInput(key, oh)
	}
	for key, oh := range outputs {
		s.closeOutput(key, oh)
	}

	s.setState(types.Stopped, "")
	return nil
}

func (s *Session) decodePacket(id types.EndpointId, data []byte, arrival time.Time) types.MidiPacket {
	d := taxonomy.Decode(data)
	if d.MessageType == types.SysEx {
		s.mu.Lock()
		max := s.sysExMaxBytes
		s.mu.Unlock()
		if max > 0 && len(data) > max {
			data = data[:max]
		}
	}
	return types.MidiPacket{
		SourceEndpointID: id,
		Data:             data,
		Channel:          d.Channel,
		MessageType:      d.MessageType,
		Timestamp:        arrival,
	}
}
