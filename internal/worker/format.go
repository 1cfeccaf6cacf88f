package worker

import (
	"fmt"

	"github.com/midiflow/router/internal/types"
)

var noteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

func noteName(note byte) string {
	octave := int(note)/12 - 1
	return fmt.Sprintf("%s%d", noteNames[int(note)%12], octave)
}

// formatDetail renders the contractually stable log detail string for a
// packet, per spec.md §4.7.
func formatDetail(p types.MidiPacket) string {
	if len(p.Data) == 0 {
		return "Empty"
	}

	switch p.MessageType {
	case types.NoteOn:
		if len(p.Data) < 3 {
			return fmt.Sprintf("NoteOn [%x]", p.Data)
		}
		return fmt.Sprintf("NoteOn %s Vel:%d", noteName(p.Data[1]), p.Data[2])
	case types.NoteOff:
		if len(p.Data) < 3 {
			return fmt.Sprintf("NoteOff [%x]", p.Data)
		}
		return fmt.Sprintf("NoteOff %s Vel:%d", noteName(p.Data[1]), p.Data[2])
	case types.ControlChange:
		if len(p.Data) < 3 {
			return fmt.Sprintf("CC [%x]", p.Data)
		}
		return fmt.Sprintf("CC#%d Val:%d", p.Data[1], p.Data[2])
	case types.ProgramChange:
		if len(p.Data) < 2 {
			return fmt.Sprintf("Program [%x]", p.Data)
		}
		return fmt.Sprintf("Program %d", p.Data[1])
	case types.PitchBend:
		if len(p.Data) < 3 {
			return fmt.Sprintf("Pitch [%x]", p.Data)
		}
		value := int(p.Data[1]) | (int(p.Data[2]) << 7)
		return fmt.Sprintf("Pitch %d", value-8192)
	case types.SysEx:
		return fmt.Sprintf("SysEx %d bytes", len(p.Data))
	case types.Clock:
		return fmt.Sprintf("Clock %#x", p.Data[0])
	default:
		return fmt.Sprintf("%s [%x]", p.MessageType, p.Data)
	}
}
