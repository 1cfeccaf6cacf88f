// Package port defines the PortProvider abstraction (spec.md §4.5) that
// hides the OS-level MIDI backend from the rest of the engine, plus two
// concrete provider implementations distinguished by endpoint id prefix
// per spec.md §6.1 (a modern native backend and a legacy fallback). The
// interface-behind-multiple-backends shape generalizes the teacher's
// coop.Backend abstraction (tmux vs. pod session backends behind one
// interface).
package port

import (
	"context"
	"strings"
	"time"

	"github.com/midiflow/router/internal/types"
)

// Handle is an opaque, provider-owned reference to an open OS port.
type Handle interface {
	// EndpointID returns the endpoint this handle was opened for.
	EndpointID() types.EndpointId
}

// InboundFunc is invoked by a provider, on a backend-chosen thread, for
// every complete inbound MIDI message. Implementations MUST NOT block.
type InboundFunc func(endpointID types.EndpointId, data []byte, arrival time.Time)

// Provider opens and closes OS-level MIDI ports and moves bytes across
// them. A Provider implementation owns exactly one endpoint-id namespace
// (native or legacy); MidiSession picks the right Provider by id prefix.
type Provider interface {
	// OpenInput opens an input port, returning types.ErrPortUnavailable
	// if the endpoint cannot be opened right now.
	OpenInput(ctx context.Context, id types.EndpointId) (Handle, error)
	// OpenOutput opens an output port, returning types.ErrPortUnavailable
	// if the endpoint cannot be opened right now.
	OpenOutput(ctx context.Context, id types.EndpointId) (Handle, error)
	// Send writes bytes to an open output handle, returning
	// types.ErrPortClosed if the handle is no longer open. MidiSession
	// surfaces this to the caller rather than retrying.
	Send(h Handle, data []byte) error
	// Close releases a handle. Idempotent.
	Close(h Handle) error
	// SetInboundHandler installs the callback invoked for inbound
	// packets arriving on any port this provider has open.
	SetInboundHandler(fn InboundFunc)
}

// Prefix identifies which Provider's endpoint-id namespace an id belongs
// to, per spec.md §6.1.
type Prefix string

const (
	// PrefixLegacyIn matches "winmm-in:<n>" ids.
	PrefixLegacyIn Prefix = "winmm-in:"
	// PrefixLegacyOut matches "winmm-out:<n>" ids.
	PrefixLegacyOut Prefix = "winmm-out:"
)

// IsLegacy reports whether id belongs to the legacy provider's namespace.
func IsLegacy(id types.EndpointId) bool {
	s := id.Normalize()
	return strings.HasPrefix(s, string(PrefixLegacyIn)) || strings.HasPrefix(s, string(PrefixLegacyOut))
}
