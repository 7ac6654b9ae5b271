package preset

import (
	"encoding/json"
	"errors"
	"fmt"

	"go-polyrhythm/sequencer"
)

// ErrBadCode is returned for share codes that don't decode to a configuration
var ErrBadCode = errors.New("invalid share code")

// Code is everything a share code carries
type Code struct {
	Easy     bool
	Tempo    int
	Layers   []sequencer.Layer
	Theme    int
	View     sequencer.View
	OffsetMs int
}

// Encode packs c as a compact JSON array:
//
//	[easy, tempo, [[beats, note, wave, duration, release, volume, muted], ...], [theme, fullscreen, animations, view, offset]]
func Encode(c Code) (string, error) {
	layers := make([][]float64, len(c.Layers))
	for i, l := range c.Layers {
		layers[i] = []float64{
			float64(l.Beats),
			float64(l.Note),
			float64(l.Wave),
			boolNum(l.Duration > 0),
			float64(l.Release),
			l.Volume,
			boolNum(l.Muted),
		}
	}
	settings := []int{c.Theme, 0, 0, int(c.View), c.OffsetMs}

	data, err := json.Marshal([]any{boolNum(c.Easy), c.Tempo, layers, settings})
	if err != nil {
		return "", fmt.Errorf("encode share code: %w", err)
	}
	return string(data), nil
}

// Decode unpacks a share code. An empty array yields the defaults.
func Decode(s string) (Code, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return Code{}, fmt.Errorf("%w: %v", ErrBadCode, err)
	}
	if len(raw) == 0 {
		return Code{Easy: true, Tempo: 80, Layers: sequencer.DefaultLayers()}, nil
	}
	if len(raw) < 3 {
		return Code{}, fmt.Errorf("%w: expected at least 3 fields, got %d", ErrBadCode, len(raw))
	}

	var (
		easy     float64
		tempo    float64
		layers   [][]float64
		settings []float64
	)
	if err := json.Unmarshal(raw[0], &easy); err != nil {
		return Code{}, fmt.Errorf("%w: easy: %v", ErrBadCode, err)
	}
	if err := json.Unmarshal(raw[1], &tempo); err != nil {
		return Code{}, fmt.Errorf("%w: tempo: %v", ErrBadCode, err)
	}
	if err := json.Unmarshal(raw[2], &layers); err != nil {
		return Code{}, fmt.Errorf("%w: layers: %v", ErrBadCode, err)
	}
	if len(raw) > 3 {
		if err := json.Unmarshal(raw[3], &settings); err != nil {
			return Code{}, fmt.Errorf("%w: settings: %v", ErrBadCode, err)
		}
	}

	c := Code{
		Easy:  easy != 0,
		Tempo: sequencer.ClampTempo(int(tempo)),
	}
	if len(layers) > sequencer.NumLayers {
		return Code{}, fmt.Errorf("%w: %d layers, at most %d", ErrBadCode, len(layers), sequencer.NumLayers)
	}
	for i, m := range layers {
		if len(m) < 7 {
			return Code{}, fmt.Errorf("%w: layer %d has %d fields", ErrBadCode, i, len(m))
		}
		l := sequencer.Layer{
			Beats:   int(m[0]),
			Note:    int(m[1]),
			Wave:    sequencer.Wave(int(m[2])).Next(0),
			Release: sequencer.Release(int(m[4]) % 3),
			Volume:  m[5],
			Muted:   m[6] != 0,
		}
		if m[3] != 0 {
			l.Duration = sequencer.LongDuration
		}
		if l.Release < 0 {
			l.Release = sequencer.ReleaseOff
		}
		c.Layers = append(c.Layers, l)
	}
	if err := sequencer.ValidateLayers(c.Layers); err != nil {
		return Code{}, fmt.Errorf("%w: %v", ErrBadCode, err)
	}
	for i := range c.Layers {
		c.Layers[i] = sequencer.ClampLayer(c.Layers[i])
	}

	if len(settings) > 0 {
		c.Theme = int(settings[0])
	}
	if len(settings) > 3 {
		if v := sequencer.View(int(settings[3])); v.Valid() {
			c.View = v
		}
	}
	if len(settings) > 4 {
		c.OffsetMs = int(settings[4])
	}
	return c, nil
}

func boolNum(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
