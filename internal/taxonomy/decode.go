// Package taxonomy classifies raw MIDI byte streams into the small
// MessageType enumeration and extracts the channel, per spec.md §4.1. It is
// a pure decoder: no state, no allocation beyond the returned value.
package taxonomy

import "github.com/midiflow/router/internal/types"

// Decoded is the result of classifying a MIDI message's status byte.
type Decoded struct {
	MessageType types.MessageType
	Channel     int // 0 for non-channel messages
	ExpectedLen int // contractual message length; 0 means variable (SysEx)
}

// Decode classifies data by its first (status) byte per the table in
// spec.md §4.1. Running status is never assumed — callers must supply a
// complete message. An empty slice decodes to Unknown/channel 0/length 0.
func Decode(data []byte) Decoded {
	if len(data) == 0 {
		return Decoded{MessageType: types.Unknown, Channel: 0, ExpectedLen: 0}
	}

	status := data[0]
	hiNibble := status & 0xF0
	loNibble := int(status & 0x0F)

	switch hiNibble {
	case 0x80:
		return Decoded{MessageType: types.NoteOff, Channel: loNibble + 1, ExpectedLen: 3}
	case 0x90:
		return Decoded{MessageType: types.NoteOn, Channel: loNibble + 1, ExpectedLen: 3}
	case 0xA0:
		return Decoded{MessageType: types.Unknown, Channel: loNibble + 1, ExpectedLen: 3}
	case 0xB0:
		return Decoded{MessageType: types.ControlChange, Channel: loNibble + 1, ExpectedLen: 3}
	case 0xC0:
		return Decoded{MessageType: types.ProgramChange, Channel: loNibble + 1, ExpectedLen: 2}
	case 0xD0:
		return Decoded{MessageType: types.Unknown, Channel: loNibble + 1, ExpectedLen: 2}
	case 0xE0:
		return Decoded{MessageType: types.PitchBend, Channel: loNibble + 1, ExpectedLen: 3}
	}

	switch status {
	case 0xF0, 0xF7:
		return Decoded{MessageType: types.SysEx, Channel: 0, ExpectedLen: 0}
	case 0xF8, 0xFA, 0xFB, 0xFC:
		return Decoded{MessageType: types.Clock, Channel: 0, ExpectedLen: 1}
	default:
		return Decoded{MessageType: types.Unknown, Channel: 0, ExpectedLen: 1}
	}
}
