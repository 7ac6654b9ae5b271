package sound

import (
	"fmt"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/speaker"

	"go-polyrhythm/debug"
	"go-polyrhythm/sequencer"
)

const (
	SampleRate = beep.SampleRate(44100)
	// speaker buffer; small enough to keep clicks tight
	bufferLength = 10 * time.Millisecond
)

// Speaker plays clicks through the system audio device via beep
type Speaker struct {
	sr    beep.SampleRate
	mixer *beep.Mixer

	mu     sync.Mutex
	closed bool
}

// NewSpeaker initialises the audio device and starts a mixer on it
func NewSpeaker() (*Speaker, error) {
	if err := speaker.Init(SampleRate, SampleRate.N(bufferLength)); err != nil {
		return nil, fmt.Errorf("init speaker: %w", err)
	}
	s := &Speaker{sr: SampleRate, mixer: &beep.Mixer{}}
	speaker.Play(s.mixer)
	debug.Log("sound", "speaker ready sr=%d buffer=%v", SampleRate, bufferLength)
	return s, nil
}

// Play adds a voice per audible layer to the mixer. It never blocks on the
// device; voices end themselves.
func (s *Speaker) Play(layers []sequencer.Layer, measure time.Duration) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}

	voices := make([]beep.Streamer, 0, len(layers))
	for _, l := range layers {
		if l.Gain() == 0 {
			continue
		}
		voices = append(voices, NewVoice(l, measure, s.sr))
	}
	if len(voices) == 0 {
		return
	}

	speaker.Lock()
	s.mixer.Add(voices...)
	speaker.Unlock()
}

// Close silences and releases the audio device
func (s *Speaker) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	speaker.Clear()
	speaker.Close()
}
