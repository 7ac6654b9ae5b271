package sequencer

import (
	"math"
	"time"
)

// Tap tempo window
const (
	tapTimeout = 2 * time.Second
	maxTaps    = 6
)

// TapTempo turns a series of taps into a tempo
type TapTempo struct {
	taps []time.Time
}

// Tap records a tap and returns the averaged tempo once two taps are in
func (t *TapTempo) Tap(now time.Time) (int, bool) {
	if n := len(t.taps); n > 0 && now.Sub(t.taps[n-1]) > tapTimeout {
		t.taps = t.taps[:0]
	}
	t.taps = append(t.taps, now)
	if len(t.taps) > maxTaps {
		t.taps = t.taps[len(t.taps)-maxTaps:]
	}
	if len(t.taps) < 2 {
		return 0, false
	}

	span := t.taps[len(t.taps)-1].Sub(t.taps[0])
	interval := span / time.Duration(len(t.taps)-1)
	if interval <= 0 {
		return 0, false
	}
	bpm := int(math.Round(float64(time.Minute) / float64(interval)))
	return ClampTempo(bpm), true
}

// Reset forgets every tap
func (t *TapTempo) Reset() {
	t.taps = t.taps[:0]
}
