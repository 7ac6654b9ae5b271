package preset

import (
	"errors"
	"testing"

	"go-polyrhythm/sequencer"
)

func TestCodeRoundTrip(t *testing.T) {
	layers := sequencer.DefaultLayers()
	layers[0].Wave = sequencer.WaveTriangle
	layers[0].Duration = sequencer.LongDuration
	layers[1].Muted = true
	layers[2].Beats = 7
	layers[3].Release = sequencer.ReleaseOff

	in := Code{Easy: true, Tempo: 135, Layers: layers, Theme: 2, View: sequencer.ViewSegment, OffsetMs: 150}
	s, err := Encode(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := Decode(s)
	if err != nil {
		t.Fatalf("decode %s: %v", s, err)
	}

	if out.Tempo != 135 || !out.Easy || out.Theme != 2 || out.View != sequencer.ViewSegment || out.OffsetMs != 150 {
		t.Fatalf("settings lost: %+v", out)
	}
	if len(out.Layers) != len(layers) {
		t.Fatalf("expected %d layers, got %d", len(layers), len(out.Layers))
	}
	for i := range layers {
		if out.Layers[i] != layers[i] {
			t.Fatalf("layer %d: expected %+v, got %+v", i, layers[i], out.Layers[i])
		}
	}
}

func TestDecodeLiteralCode(t *testing.T) {
	c, err := Decode(`[0,120,[[4,12,3,1,2,0.5,0],[5,19,0,0,1,0.4,1]],[1,0,0,2,50]]`)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if c.Easy || c.Tempo != 120 || c.View != sequencer.ViewBlock || c.OffsetMs != 50 {
		t.Fatalf("unexpected settings %+v", c)
	}
	l := c.Layers[0]
	if l.Beats != 4 || l.Wave != sequencer.WaveSquare || l.Release != sequencer.ReleaseLong || l.Duration != sequencer.LongDuration {
		t.Fatalf("unexpected first layer %+v", l)
	}
	if !c.Layers[1].Muted {
		t.Fatalf("second layer should be muted")
	}
}

func TestDecodeEmptyYieldsDefaults(t *testing.T) {
	c, err := Decode("[]")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if c.Tempo != 80 || len(c.Layers) != sequencer.NumLayers {
		t.Fatalf("expected defaults, got %+v", c)
	}
}

func TestDecodeRejectsBadCodes(t *testing.T) {
	for _, s := range []string{
		"",
		"not json",
		`[1, 120]`,
		`[1, 120, [[4, 12]]]`,
		`[1, 120, [[0, 12, 0, 0, 0, 0.4, 0]]]`,
		`[1, "fast", [[4, 12, 0, 0, 0, 0.4, 0]]]`,
	} {
		if _, err := Decode(s); !errors.Is(err, ErrBadCode) {
			t.Fatalf("%q: expected ErrBadCode, got %v", s, err)
		}
	}
}

func TestDecodeClampsTempo(t *testing.T) {
	c, err := Decode(`[1, 9000, [[3, 0, 0, 0, 0, 0.4, 0]]]`)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if c.Tempo != sequencer.MaxTempo {
		t.Fatalf("expected clamp to %d, got %d", sequencer.MaxTempo, c.Tempo)
	}
}

func TestDecodeClampsLayers(t *testing.T) {
	c, err := Decode(`[0, 120, [[1000000, 500, 0, 0, 0, 7, 0], [5, -3, 0, 0, 0, -1, 0]]]`)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if l := c.Layers[0]; l.Beats != sequencer.MaxBeats || l.Note != sequencer.MaxNote || l.Volume != 1 {
		t.Fatalf("expected the first layer clamped, got %+v", l)
	}
	if l := c.Layers[1]; l.Beats != 5 || l.Note != 0 || l.Volume != 0 {
		t.Fatalf("expected the second layer clamped, got %+v", l)
	}

	six := `[0, 120, [[2,0,0,0,0,1,0],[2,0,0,0,0,1,0],[2,0,0,0,0,1,0],[2,0,0,0,0,1,0],[2,0,0,0,0,1,0],[2,0,0,0,0,1,0]]]`
	if _, err := Decode(six); !errors.Is(err, ErrBadCode) {
		t.Fatalf("expected ErrBadCode for six layers, got %v", err)
	}
}
