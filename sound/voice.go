package sound

import (
	"math"
	"time"

	"github.com/gopxl/beep"

	"go-polyrhythm/sequencer"
)

// MasterVolume scales every click before mixing
const MasterVolume = 0.3

// Voice is a single click: an oscillator held for the layer's click length,
// then faded over its release. It stops itself once both have elapsed.
type Voice struct {
	wave    sequencer.Wave
	freq    float64
	gain    float64
	sr      float64
	hold    int
	release int

	i     int
	phase float64
}

// NewVoice builds the click for layer l at the given measure length
func NewVoice(l sequencer.Layer, measure time.Duration, sr beep.SampleRate) *Voice {
	return &Voice{
		wave:    l.Wave,
		freq:    l.Frequency(),
		gain:    l.Gain() * MasterVolume,
		sr:      float64(sr),
		hold:    sr.N(l.ClickLength(measure)),
		release: sr.N(time.Duration(l.Release.Seconds() * float64(time.Second))),
	}
}

// Len is the voice's total length in samples
func (v *Voice) Len() int {
	return v.hold + v.release
}

// Stream implements beep.Streamer
func (v *Voice) Stream(samples [][2]float64) (n int, ok bool) {
	total := v.Len()
	if v.i >= total {
		return 0, false
	}
	for n = range samples {
		if v.i >= total {
			return n, true
		}
		s := oscillate(v.wave, v.phase) * v.gain * v.envelope()
		samples[n][0] = s
		samples[n][1] = s

		v.phase += v.freq / v.sr
		if v.phase >= 1 {
			v.phase -= math.Floor(v.phase)
		}
		v.i++
	}
	return len(samples), true
}

// Err implements beep.Streamer
func (v *Voice) Err() error {
	return nil
}

func (v *Voice) envelope() float64 {
	if v.i < v.hold || v.release == 0 {
		return 1
	}
	return 1 - float64(v.i-v.hold)/float64(v.release)
}

// oscillate evaluates one period of the waveform at phase in [0,1)
func oscillate(w sequencer.Wave, phase float64) float64 {
	switch w {
	case sequencer.WaveTriangle:
		return 1 - 4*math.Abs(phase-0.5)
	case sequencer.WaveSawtooth:
		return 2*phase - 1
	case sequencer.WaveSquare:
		if phase < 0.5 {
			return 1
		}
		return -1
	default:
		return math.Sin(2 * math.Pi * phase)
	}
}
