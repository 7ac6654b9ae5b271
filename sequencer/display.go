package sequencer

import (
	"sync"
	"time"

	"go-polyrhythm/debug"
)

// Tick is what the display sees after every scheduler step
type Tick struct {
	Token    RunToken
	Position int   // schedule index that fires next
	Counters []int // per-layer beat, 1-indexed
	Fired    []int // layers that clicked on this tick
	Downbeat bool
	Running  bool
	At       time.Time
}

// Display fans ticks out to subscribers, optionally late by a fixed output
// latency so visuals line up with what the audio device actually emits.
type Display struct {
	clock Clock

	mu     sync.RWMutex
	offset time.Duration
	subs   []func(Tick)
	last   Tick
	floor  RunToken // ticks from runs at or below this token are stale
}

// MaxOffset is the largest output latency the UI offers
const (
	MaxOffset  = 550 * time.Millisecond
	OffsetStep = 50 * time.Millisecond
)

// NewDisplay creates a display publishing through clock
func NewDisplay(clock Clock) *Display {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Display{clock: clock}
}

// SetOffset sets the output latency, clamped to [0, MaxOffset]
func (d *Display) SetOffset(offset time.Duration) {
	if offset < 0 {
		offset = 0
	}
	if offset > MaxOffset {
		offset = MaxOffset
	}
	d.mu.Lock()
	d.offset = offset
	d.mu.Unlock()
}

// Offset returns the configured output latency
func (d *Display) Offset() time.Duration {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.offset
}

// Subscribe registers fn to receive every published tick
func (d *Display) Subscribe(fn func(Tick)) {
	if fn == nil {
		return
	}
	d.mu.Lock()
	d.subs = append(d.subs, fn)
	d.mu.Unlock()
}

// Last returns the most recently delivered tick
func (d *Display) Last() Tick {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t := d.last
	t.Counters = append([]int(nil), t.Counters...)
	t.Fired = append([]int(nil), t.Fired...)
	return t
}

// Publish delivers t now, or after the output latency when one is set.
// A tick marking a stopped run also retires every late tick of that run.
func (d *Display) Publish(t Tick) {
	d.mu.Lock()
	offset := d.offset
	if !t.Running && t.Token > d.floor {
		d.floor = t.Token
	}
	d.mu.Unlock()

	if offset == 0 || !t.Running {
		d.deliver(t)
		return
	}
	d.clock.AfterFunc(offset, func() { d.deliver(t) })
}

func (d *Display) deliver(t Tick) {
	d.mu.Lock()
	if t.Running && t.Token <= d.floor {
		d.mu.Unlock()
		debug.Log("display", "dropped late tick from run %d", t.Token)
		return
	}
	d.last = t
	subs := make([]func(Tick), len(d.subs))
	copy(subs, d.subs)
	d.mu.Unlock()

	for _, fn := range subs {
		fn(t)
	}
}
