package midi

import (
	"fmt"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"

	"go-polyrhythm/debug"
)

// NoteEvent is a note-on received from an input port
type NoteEvent struct {
	Note     uint8
	Velocity uint8
	Channel  uint8
}

// TapInput turns note-ons from a MIDI input (a pad, a pedal, a keyboard)
// into tap events
type TapInput struct {
	name     string
	stopFunc func()
	taps     chan NoteEvent
}

// OpenTapInput listens on the named input port, or the first one if name is empty
func OpenTapInput(name string) (*TapInput, error) {
	in, err := findInPort(name)
	if err != nil {
		return nil, err
	}
	return newTapInput(in.String(), func(recv func(gomidi.Message, int32)) (func(), error) {
		return gomidi.ListenTo(in, recv)
	})
}

func newTapInput(name string, listen func(func(gomidi.Message, int32)) (func(), error)) (*TapInput, error) {
	t := &TapInput{
		name: name,
		taps: make(chan NoteEvent, 32),
	}
	stop, err := listen(func(msg gomidi.Message, timestampms int32) {
		t.handle(msg)
	})
	if err != nil {
		return nil, fmt.Errorf("open input %q: %w", name, err)
	}
	t.stopFunc = stop
	debug.Log("midi", "tap input on %s", name)
	return t, nil
}

func (t *TapInput) handle(msg gomidi.Message) {
	var channel, note, velocity uint8
	if !msg.GetNoteOn(&channel, &note, &velocity) || velocity == 0 {
		return
	}
	select {
	case t.taps <- NoteEvent{Note: note, Velocity: velocity, Channel: channel}:
	default:
		// Drop if the UI is behind
	}
}

// Name returns the port being listened on
func (t *TapInput) Name() string {
	return t.name
}

// Taps delivers a NoteEvent for every note-on
func (t *TapInput) Taps() <-chan NoteEvent {
	return t.taps
}

// Close stops listening
func (t *TapInput) Close() error {
	if t.stopFunc != nil {
		t.stopFunc()
		t.stopFunc = nil
	}
	return nil
}

func findInPort(name string) (drivers.In, error) {
	if name != "" {
		in, err := gomidi.FindInPort(name)
		if err != nil {
			return nil, fmt.Errorf("find input %q: %w", name, err)
		}
		return in, nil
	}
	ins := gomidi.GetInPorts()
	if len(ins) == 0 {
		return nil, fmt.Errorf("no MIDI input ports")
	}
	return ins[0], nil
}
