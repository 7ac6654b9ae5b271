package sequencer

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Beat and tempo ranges exposed by the UI
const (
	MinBeats = 1
	MaxBeats = 16

	MinTempo = 33
	MaxTempo = 333

	MaxNote = 72 // six octaves above C2

	NumLayers = 5
)

var (
	// ErrInvalidLayer is returned when a layer set cannot produce a schedule
	ErrInvalidLayer = errors.New("invalid layer configuration")
	// ErrInvalidTempo is returned for non-finite or non-positive tempos
	ErrInvalidTempo = errors.New("invalid tempo")
)

// Wave is the oscillator shape used for a layer's click
type Wave int

const (
	WaveSine Wave = iota
	WaveTriangle
	WaveSawtooth
	WaveSquare
	numWaves
)

func (w Wave) String() string {
	switch w {
	case WaveSine:
		return "sine"
	case WaveTriangle:
		return "triangle"
	case WaveSawtooth:
		return "sawtooth"
	case WaveSquare:
		return "square"
	default:
		return "unknown"
	}
}

// MarshalText writes the waveform by name
func (w Wave) MarshalText() ([]byte, error) {
	if w < 0 || w >= numWaves {
		return nil, fmt.Errorf("unknown wave %d", int(w))
	}
	return []byte(w.String()), nil
}

// UnmarshalText reads a waveform name
func (w *Wave) UnmarshalText(b []byte) error {
	for c := WaveSine; c < numWaves; c++ {
		if c.String() == string(b) {
			*w = c
			return nil
		}
	}
	return fmt.Errorf("unknown wave %q", b)
}

// Next cycles through the waveforms in either direction
func (w Wave) Next(sign int) Wave {
	n := (int(w) + sign) % int(numWaves)
	if n < 0 {
		n += int(numWaves)
	}
	return Wave(n)
}

// Release is the fade applied when a click stops
type Release int

const (
	ReleaseOff Release = iota
	ReleaseShort
	ReleaseLong
	numReleases
)

func (r Release) String() string {
	switch r {
	case ReleaseOff:
		return "off"
	case ReleaseShort:
		return "short"
	case ReleaseLong:
		return "long"
	default:
		return "unknown"
	}
}

// Seconds returns the fade length
func (r Release) Seconds() float64 {
	switch r {
	case ReleaseShort:
		return 0.3
	case ReleaseLong:
		return 0.7
	default:
		return 0
	}
}

// MarshalText writes the release by name
func (r Release) MarshalText() ([]byte, error) {
	if r < 0 || r >= numReleases {
		return nil, fmt.Errorf("unknown release %d", int(r))
	}
	return []byte(r.String()), nil
}

// UnmarshalText reads a release name
func (r *Release) UnmarshalText(b []byte) error {
	for c := ReleaseOff; c < numReleases; c++ {
		if c.String() == string(b) {
			*r = c
			return nil
		}
	}
	return fmt.Errorf("unknown release %q", b)
}

// Next cycles off -> short -> long -> off
func (r Release) Next() Release {
	return (r + 1) % numReleases
}

// Layer is one independently subdivided voice within the measure.
// Beats == 1 means the layer is off and only sounds on the downbeat.
type Layer struct {
	Beats    int     `json:"beats" yaml:"beats"`
	Note     int     `json:"note" yaml:"note"`
	Wave     Wave    `json:"wave" yaml:"wave"`
	Volume   float64 `json:"volume" yaml:"volume"`
	Muted    bool    `json:"muted" yaml:"muted"`
	Duration float64 `json:"duration" yaml:"duration"`
	Release  Release `json:"release" yaml:"release"`
}

// Active reports whether the layer subdivides the measure
func (l Layer) Active() bool {
	return l.Beats > 1
}

// Frequency converts the semitone index to Hz, starting one octave above C1
func (l Layer) Frequency() float64 {
	return 32.7 * math.Pow(2, float64(l.Note+12)/12)
}

// Gain returns the effective amplitude, with harsher waves attenuated
func (l Layer) Gain() float64 {
	if l.Muted {
		return 0
	}
	if l.Wave >= WaveSawtooth {
		return l.Volume * 0.6
	}
	return l.Volume
}

// minClickLength is used when a layer's duration factor yields a shorter click
const minClickLength = 50 * time.Millisecond

// ClickLength returns how long a single click of this layer sounds
func (l Layer) ClickLength(measure time.Duration) time.Duration {
	beats := l.Beats
	if beats < 1 {
		beats = 1
	}
	d := time.Duration(math.Round(float64(measure) / float64(beats) * l.Duration))
	if d < minClickLength {
		return minClickLength
	}
	return d
}

// DefaultLayers returns the layer set a fresh install starts with
func DefaultLayers() []Layer {
	notes := []int{12, 19, 24, 28, 31}
	beats := []int{4, 5, 1, 1, 1}
	layers := make([]Layer, NumLayers)
	for i := range layers {
		layers[i] = Layer{
			Beats:    beats[i],
			Note:     notes[i],
			Wave:     WaveSine,
			Volume:   0.4,
			Duration: 0,
			Release:  ReleaseShort,
		}
	}
	return layers
}

// CloneLayers copies a layer slice so callers can't share backing arrays
func CloneLayers(layers []Layer) []Layer {
	return append([]Layer(nil), layers...)
}

// BeatCounts extracts the beat count of every layer
func BeatCounts(layers []Layer) []int {
	beats := make([]int, len(layers))
	for i, l := range layers {
		beats[i] = l.Beats
	}
	return beats
}

// ValidateLayers checks the preconditions BuildSchedule relies on
func ValidateLayers(layers []Layer) error {
	if len(layers) == 0 {
		return fmt.Errorf("%w: no layers", ErrInvalidLayer)
	}
	for i, l := range layers {
		if l.Beats < MinBeats {
			return fmt.Errorf("%w: layer %d has %d beats", ErrInvalidLayer, i, l.Beats)
		}
	}
	return nil
}

// MeasureDuration is four reference beats at the given tempo (240000 / bpm ms)
func MeasureDuration(tempo float64) (time.Duration, error) {
	if math.IsNaN(tempo) || math.IsInf(tempo, 0) || tempo <= 0 {
		return 0, fmt.Errorf("%w: %v", ErrInvalidTempo, tempo)
	}
	return time.Duration(math.Round(240000 / tempo * float64(time.Millisecond))), nil
}

// ClampTempo keeps a tempo inside the range the UI allows
func ClampTempo(bpm int) int {
	if bpm < MinTempo {
		return MinTempo
	}
	if bpm > MaxTempo {
		return MaxTempo
	}
	return bpm
}

// ClampLayer pulls beats, note and volume into the ranges the UI offers
func ClampLayer(l Layer) Layer {
	l.Beats = ClampBeats(l.Beats)
	if l.Note < 0 {
		l.Note = 0
	}
	if l.Note > MaxNote {
		l.Note = MaxNote
	}
	if !(l.Volume >= 0) {
		l.Volume = 0
	}
	if l.Volume > 1 {
		l.Volume = 1
	}
	return l
}

// ClampBeats keeps a beat count inside [MinBeats, MaxBeats]
func ClampBeats(beats int) int {
	if beats < MinBeats {
		return MinBeats
	}
	if beats > MaxBeats {
		return MaxBeats
	}
	return beats
}
