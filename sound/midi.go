package sound

import (
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"

	"go-polyrhythm/debug"
	"go-polyrhythm/sequencer"
)

// noteOffset maps a layer's semitone index to a MIDI key (32.7Hz is C1 = 24,
// and layers start one octave up)
const noteOffset = 36

// Sender resolves the function used to send a message; it may return nil
// when no port is available
type Sender func() func(gomidi.Message) error

// MIDI plays clicks as note on/off pairs on an output port
type MIDI struct {
	sender    Sender
	channel   uint8 // 0-15
	afterFunc func(d time.Duration, f func())
}

// NewMIDI creates a MIDI trigger on channel (1-16)
func NewMIDI(sender Sender, channel uint8) *MIDI {
	if channel < 1 || channel > 16 {
		channel = 10
	}
	return &MIDI{
		sender:  sender,
		channel: channel - 1,
		afterFunc: func(d time.Duration, f func()) {
			time.AfterFunc(d, f)
		},
	}
}

// Play sends a NoteOn per audible layer and schedules its NoteOff
func (m *MIDI) Play(layers []sequencer.Layer, measure time.Duration) {
	send := m.sender()
	if send == nil {
		debug.LogEvery(32, "midi", "no output port, click dropped")
		return
	}
	for _, l := range layers {
		gain := l.Gain()
		if gain == 0 {
			continue
		}
		key := Key(l)
		vel := velocity(gain)
		if err := send(gomidi.NoteOn(m.channel, key, vel)); err != nil {
			debug.Log("midi", "note on key=%d: %v", key, err)
			continue
		}
		ch := m.channel
		m.afterFunc(l.ClickLength(measure), func() {
			if err := send(gomidi.NoteOff(ch, key)); err != nil {
				debug.Log("midi", "note off key=%d: %v", key, err)
			}
		})
	}
}

// Key returns the MIDI key for a layer
func Key(l sequencer.Layer) uint8 {
	k := l.Note + noteOffset
	if k < 0 {
		k = 0
	}
	if k > 127 {
		k = 127
	}
	return uint8(k)
}

func velocity(gain float64) uint8 {
	v := int(gain * 127)
	if v < 1 {
		v = 1
	}
	if v > 127 {
		v = 127
	}
	return uint8(v)
}
