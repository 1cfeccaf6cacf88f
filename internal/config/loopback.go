package config

import "github.com/midiflow/router/internal/types"

// loopbackEntry is the on-disk representation of one loopback endpoint.
// The legacy schema is simply { id, name } with no direction fields; a
// nil SupportsInput/SupportsOutput is treated as "both directions",
// matching the legacy full-duplex assumption (spec.md §6.2).
type loopbackEntry struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	SupportsInput  *bool  `json:"supportsInput,omitempty"`
	SupportsOutput *bool  `json:"supportsOutput,omitempty"`
}

func (e loopbackEntry) toDescriptor() types.EndpointDescriptor {
	in, out := true, true
	if e.SupportsInput != nil {
		in = *e.SupportsInput
	}
	if e.SupportsOutput != nil {
		out = *e.SupportsOutput
	}
	return types.EndpointDescriptor{
		ID:             types.EndpointId(e.ID),
		Name:           e.Name,
		Kind:           types.Loopback,
		SupportsInput:  in,
		SupportsOutput: out,
		IsOnline:       true,
		IsUserManaged:  true,
	}
}

func loopbackEntryFromDescriptor(d types.EndpointDescriptor) loopbackEntry {
	in, out := d.SupportsInput, d.SupportsOutput
	return loopbackEntry{
		ID:             string(d.ID),
		Name:           d.Name,
		SupportsInput:  &in,
		SupportsOutput: &out,
	}
}
