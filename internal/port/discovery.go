package port

import (
	"context"

	"github.com/midiflow/router/internal/types"
)

// StaticHardwareSource implements internal/catalog.HardwareSource over a
// fixed, operator-supplied endpoint list. It stands in for a real OS
// backend's device enumeration call (CoreMIDI, WinMM, ALSA) until one is
// wired in; swapping it out means implementing Enumerate against that
// backend's API, nothing else changes.
type StaticHardwareSource struct {
	endpoints []types.EndpointDescriptor
}

// NewStaticHardwareSource returns a HardwareSource that always reports
// endpoints.
func NewStaticHardwareSource(endpoints []types.EndpointDescriptor) *StaticHardwareSource {
	return &StaticHardwareSource{endpoints: endpoints}
}

// Enumerate returns the configured endpoint list, ignoring ctx.
func (s *StaticHardwareSource) Enumerate(ctx context.Context) ([]types.EndpointDescriptor, error) {
	return append([]types.EndpointDescriptor(nil), s.endpoints...), nil
}
