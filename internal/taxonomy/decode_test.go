package taxonomy

import (
	"testing"

	"github.com/midiflow/router/internal/types"
	"github.com/stretchr/testify/assert"
)

func TestDecode_Table(t *testing.T) {
	cases := []struct {
		name     string
		data     []byte
		wantType types.MessageType
		wantCh   int
		wantLen  int
	}{
		{"note-off ch1", []byte{0x80, 60, 0}, types.NoteOff, 1, 3},
		{"note-on ch16", []byte{0x9F, 60, 127}, types.NoteOn, 16, 3},
		{"aftertouch is unknown", []byte{0xA3, 1, 2}, types.Unknown, 4, 3},
		{"control change", []byte{0xB0, 7, 100}, types.ControlChange, 1, 3},
		{"program change", []byte{0xC2, 5}, types.ProgramChange, 3, 2},
		{"channel pressure is unknown", []byte{0xD0, 64}, types.Unknown, 1, 2},
		{"pitch bend", []byte{0xE0, 0, 64}, types.PitchBend, 1, 3},
		{"sysex start", []byte{0xF0, 0x7E, 0xF7}, types.SysEx, 0, 0},
		{"sysex end", []byte{0xF7}, types.SysEx, 0, 0},
		{"clock", []byte{0xF8}, types.Clock, 0, 1},
		{"start is clock", []byte{0xFA}, types.Clock, 0, 1},
		{"other status", []byte{0xF1}, types.Unknown, 0, 1},
		{"empty", []byte{}, types.Unknown, 0, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Decode(tc.data)
			assert.Equal(t, tc.wantType, got.MessageType)
			assert.Equal(t, tc.wantCh, got.Channel)
			assert.Equal(t, tc.wantLen, got.ExpectedLen)
		})
	}
}
