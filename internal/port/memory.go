package port

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/midiflow/router/internal/types"
)

// Availability reports whether id can currently be opened. Real backends
// ask the OS; this hook lets callers (tests, or a future native-backend
// adapter) drive availability explicitly.
type Availability func(id types.EndpointId) bool

// handle is the concrete Handle used by both simulated providers.
type handle struct {
	id types.EndpointId
}

func (h *handle) EndpointID() types.EndpointId { return h.id }

// simulated is a Provider implementation that models a backend whose
// ports are process-local. It exists so the routing engine's concurrency
// and reconciliation logic is exercisable without a real OS MIDI backend,
// per spec.md §1's backend abstraction. Opening a port that Availability
// reports closed is retried with exponential backoff (for at most 500ms)
// and then fails with types.ErrPortUnavailable — grounded on the
// teacher's coop.Watcher reconnect loop.
type simulated struct {
	mu        sync.Mutex
	open      map[string]*handle
	available Availability
	inbound   InboundFunc
	backoff   func() backoff.BackOff
}

func newSimulated(available Availability) *simulated {
	if available == nil {
		available = func(types.EndpointId) bool { return true }
	}
	return &simulated{
		open:      make(map[string]*handle),
		available: available,
		backoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 20 * time.Millisecond
			b.MaxInterval = 200 * time.Millisecond
			b.MaxElapsedTime = 500 * time.Millisecond
			return b
		},
	}
}

func (s *simulated) open1(ctx context.Context, id types.EndpointId) (Handle, error) {
	key := id.Normalize()

	s.mu.Lock()
	if h, ok := s.open[key]; ok {
		s.mu.Unlock()
		return h, nil
	}
	s.mu.Unlock()

	operation := func() error {
		if !s.available(id) {
			return types.ErrPortUnavailable
		}
		return nil
	}

	err := backoff.Retry(operation, backoff.WithContext(s.backoff(), ctx))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", types.ErrPortUnavailable, id)
	}

	h := &handle{id: id}
	s.mu.Lock()
	s.open[key] = h
	s.mu.Unlock()
	return h, nil
}

func (s *simulated) OpenInput(ctx context.Context, id types.EndpointId) (Handle, error) {
	return s.open1(ctx, id)
}

func (s *simulated) OpenOutput(ctx context.Context, id types.EndpointId) (Handle, error) {
	return s.open1(ctx, id)
}

func (s *simulated) Send(h Handle, data []byte) error {
	key := h.EndpointID().Normalize()
	s.mu.Lock()
	_, open := s.open[key]
	s.mu.Unlock()
	if !open {
		return types.ErrPortClosed
	}
	return nil
}

func (s *simulated) Close(h Handle) error {
	s.mu.Lock()
	delete(s.open, h.EndpointID().Normalize())
	s.mu.Unlock()
	return nil
}

func (s *simulated) SetInboundHandler(fn InboundFunc) {
	s.mu.Lock()
	s.inbound = fn
	s.mu.Unlock()
}

// Inject delivers a simulated inbound packet as if it arrived from the
// backend. Tests use it to feed synthetic traffic through a provider.
func (s *simulated) Inject(id types.EndpointId, data []byte, arrival time.Time) {
	s.mu.Lock()
	fn := s.inbound
	s.mu.Unlock()
	if fn != nil {
		fn(id, data, arrival)
	}
}

// NativeProvider is the Provider for the modern, backend-native endpoint
// id namespace (opaque backend-supplied ids and "loop:" ids).
type NativeProvider struct{ *simulated }

// NewNativeProvider returns a NativeProvider whose ports are reachable
// according to available.
func NewNativeProvider(available Availability) *NativeProvider {
	return &NativeProvider{simulated: newSimulated(available)}
}

// LegacyProvider is the Provider for the "winmm-in:"/"winmm-out:" id
// namespace (spec.md §6.1).
type LegacyProvider struct{ *simulated }

// NewLegacyProvider returns a LegacyProvider whose ports are reachable
// according to available.
func NewLegacyProvider(available Availability) *LegacyProvider {
	return &LegacyProvider{simulated: newSimulated(available)}
}
