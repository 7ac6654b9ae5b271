package sound

import (
	"time"

	"go-polyrhythm/debug"
	"go-polyrhythm/sequencer"
)

// Multi plays every click through several triggers
type Multi []sequencer.Trigger

func (m Multi) Play(layers []sequencer.Layer, measure time.Duration) {
	for _, t := range m {
		playSafely(t, layers, measure)
	}
}

// Nop discards every click
type Nop struct{}

func (Nop) Play([]sequencer.Layer, time.Duration) {}

// playSafely keeps one failing output from silencing the others
func playSafely(t sequencer.Trigger, layers []sequencer.Layer, measure time.Duration) {
	defer func() {
		if err := recover(); err != nil {
			debug.Log("sound", "output failed: %v", err)
		}
	}()
	t.Play(layers, measure)
}

// Outputs collects the triggers a program plays through
type Outputs struct {
	triggers Multi
	speaker  *Speaker
}

// AddSpeaker opens the audio device and plays clicks through it
func (o *Outputs) AddSpeaker() error {
	if o.speaker != nil {
		return nil
	}
	s, err := NewSpeaker()
	if err != nil {
		return err
	}
	o.speaker = s
	o.triggers = append(o.triggers, s)
	return nil
}

// AddMIDI plays clicks on whatever port sender resolves to
func (o *Outputs) AddMIDI(sender Sender, channel uint8) {
	o.triggers = append(o.triggers, NewMIDI(sender, channel))
}

// Trigger returns what the scheduler should play through
func (o *Outputs) Trigger() sequencer.Trigger {
	switch len(o.triggers) {
	case 0:
		return Nop{}
	case 1:
		return o.triggers[0]
	default:
		return o.triggers
	}
}

// Close releases the audio device, if one was opened
func (o *Outputs) Close() {
	if o.speaker != nil {
		o.speaker.Close()
		o.speaker = nil
	}
}
