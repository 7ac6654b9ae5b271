package sequencer

import (
	"fmt"
	"sync"
	"time"

	"go-polyrhythm/debug"
)

// LongDuration is the click length factor when a layer's long click is on:
// the click rings for the whole of its beat
const LongDuration = 1.0

// Manager owns the layer model and tempo, and drives the scheduler from them
type Manager struct {
	state *State
	mu    sync.RWMutex

	sched *Scheduler
	clock Clock
	tap   TapTempo

	// Notify TUI of updates
	UpdateChan chan struct{}
	// Ticks as delivered by the display (already latency-shifted)
	TickChan chan Tick
}

// NewManager creates a manager playing through trigger
func NewManager(state *State, trigger Trigger) *Manager {
	return NewManagerWithClock(state, trigger, SystemClock{})
}

// NewManagerWithClock creates a manager on a custom clock (tests)
func NewManagerWithClock(state *State, trigger Trigger, clock Clock) *Manager {
	if state == nil {
		state = NewState()
	}
	if len(state.Layers) == 0 {
		state.Layers = DefaultLayers()
	}
	state.Tempo = ClampTempo(state.Tempo)

	display := NewDisplay(clock)
	display.SetOffset(state.Offset())

	m := &Manager{
		state:      state,
		clock:      clock,
		sched:      NewScheduler(clock, display, trigger),
		UpdateChan: make(chan struct{}, 1),
		TickChan:   make(chan Tick, 16),
	}
	m.sched.OnTick(m.forwardTick)
	_ = m.sched.Update(state.Layers, float64(state.Tempo))
	return m
}

// Scheduler exposes the underlying scheduler
func (m *Manager) Scheduler() *Scheduler {
	return m.sched
}

func (m *Manager) forwardTick(t Tick) {
	select {
	case m.TickChan <- t:
	default:
		// Drop if the UI is behind; the next tick carries full state
	}
	m.notifyUpdate()
}

// Play starts playback
func (m *Manager) Play() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Playing {
		return nil
	}
	if _, err := m.sched.Start(m.state.Layers, float64(m.state.Tempo)); err != nil {
		return fmt.Errorf("start playback: %w", err)
	}
	m.state.Playing = true
	m.notifyUpdate()
	return nil
}

// Stop stops playback
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.state.Playing {
		return
	}
	m.state.Playing = false
	m.sched.Stop()
	m.notifyUpdate()
}

// TogglePlay flips between playing and stopped
func (m *Manager) TogglePlay() error {
	m.mu.RLock()
	playing := m.state.Playing
	m.mu.RUnlock()
	if playing {
		m.Stop()
		return nil
	}
	return m.Play()
}

// Restart stops and starts again with a fresh run, keeping the measure position
func (m *Manager) Restart() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.state.Playing {
		return nil
	}
	m.sched.Stop()
	if _, err := m.sched.Start(m.state.Layers, float64(m.state.Tempo)); err != nil {
		m.state.Playing = false
		return fmt.Errorf("restart playback: %w", err)
	}
	return nil
}

// SetTempo sets the BPM
func (m *Manager) SetTempo(bpm int) {
	m.edit(func(s *State) { s.Tempo = ClampTempo(bpm) })
}

// AdjustTempo nudges the BPM
func (m *Manager) AdjustTempo(delta int) {
	m.edit(func(s *State) { s.Tempo = ClampTempo(s.Tempo + delta) })
}

// Tap feeds the tap-tempo detector and applies the result
func (m *Manager) Tap() {
	m.mu.Lock()
	bpm, ok := m.tap.Tap(m.clock.Now())
	m.mu.Unlock()
	if ok {
		debug.Log("tap", "tempo=%d", bpm)
		m.SetTempo(bpm)
	}
}

// Select moves the layer cursor
func (m *Manager) Select(delta int) {
	m.mu.Lock()
	n := len(m.state.Layers)
	m.state.Selected = ((m.state.Selected+delta)%n + n) % n
	m.mu.Unlock()
	m.notifyUpdate()
}

// SetBeats sets the beat count of layer i
func (m *Manager) SetBeats(i, beats int) {
	m.editLayer(i, func(l *Layer) { l.Beats = ClampBeats(beats) })
}

// AdjustBeats nudges the selected layer's beat count
func (m *Manager) AdjustBeats(delta int) {
	m.editSelected(func(l *Layer) { l.Beats = ClampBeats(l.Beats + delta) })
}

// AdjustNote moves the selected layer's pitch in semitones
func (m *Manager) AdjustNote(delta int) {
	m.editSelected(func(l *Layer) {
		l.Note += delta
		if l.Note < 0 {
			l.Note = 0
		}
		if l.Note > MaxNote {
			l.Note = MaxNote
		}
	})
}

// CycleWave changes the selected layer's waveform
func (m *Manager) CycleWave(sign int) {
	m.editSelected(func(l *Layer) { l.Wave = l.Wave.Next(sign) })
}

// ToggleMute mutes or unmutes the selected layer
func (m *Manager) ToggleMute() {
	m.editSelected(func(l *Layer) { l.Muted = !l.Muted })
}

// AdjustVolume changes the selected layer's volume in [0,1]
func (m *Manager) AdjustVolume(delta float64) {
	m.editSelected(func(l *Layer) {
		l.Volume += delta
		if l.Volume < 0 {
			l.Volume = 0
		}
		if l.Volume > 1 {
			l.Volume = 1
		}
	})
}

// CycleRelease steps the selected layer's release
func (m *Manager) CycleRelease() {
	m.editSelected(func(l *Layer) { l.Release = l.Release.Next() })
}

// ToggleDuration switches the selected layer between short and long clicks
func (m *Manager) ToggleDuration() {
	m.editSelected(func(l *Layer) {
		if l.Duration > 0 {
			l.Duration = 0
		} else {
			l.Duration = LongDuration
		}
	})
}

// CycleOffset steps the output latency by 50ms
func (m *Manager) CycleOffset() {
	m.mu.Lock()
	m.state.OffsetMs = NextOffset(m.state.OffsetMs)
	offset := m.state.Offset()
	m.mu.Unlock()
	m.sched.Display().SetOffset(offset)
	m.notifyUpdate()
}

// SetOffset sets the output latency in milliseconds
func (m *Manager) SetOffset(ms int) {
	m.mu.Lock()
	m.state.OffsetMs = ms
	offset := m.state.Offset()
	m.mu.Unlock()
	m.sched.Display().SetOffset(offset)
	m.notifyUpdate()
}

// CycleView changes the display mode
func (m *Manager) CycleView() {
	m.mu.Lock()
	m.state.View = m.state.View.Next()
	m.mu.Unlock()
	m.notifyUpdate()
}

// CycleTheme moves to the next of n themes
func (m *Manager) CycleTheme(n int) {
	if n <= 0 {
		return
	}
	m.mu.Lock()
	m.state.Theme = (m.state.Theme + 1) % n
	m.mu.Unlock()
	m.notifyUpdate()
}

// Load replaces tempo and layers, e.g. from a preset or an import code
func (m *Manager) Load(tempo int, layers []Layer) error {
	if err := ValidateLayers(layers); err != nil {
		return err
	}
	m.edit(func(s *State) {
		s.Tempo = ClampTempo(tempo)
		s.Layers = CloneLayers(layers)
		if s.Selected >= len(s.Layers) {
			s.Selected = 0
		}
	})
	return nil
}

// Snapshot returns a copy of the state safe to read without locks
func (m *Manager) Snapshot() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := *m.state
	s.Layers = CloneLayers(m.state.Layers)
	return s
}

// Layers returns a copy of the current layers
func (m *Manager) Layers() []Layer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return CloneLayers(m.state.Layers)
}

// Schedule builds the schedule for the current layers, for static rendering
func (m *Manager) Schedule() ([]ScheduleEvent, time.Duration, error) {
	s := m.Snapshot()
	measure, err := MeasureDuration(float64(s.Tempo))
	if err != nil {
		return nil, 0, err
	}
	schedule, err := BuildSchedule(s.Layers, measure)
	return schedule, measure, err
}

// LastTick returns the last tick the display delivered
func (m *Manager) LastTick() Tick {
	return m.sched.Display().Last()
}

func (m *Manager) editSelected(fn func(l *Layer)) {
	m.mu.RLock()
	i := m.state.Selected
	m.mu.RUnlock()
	m.editLayer(i, fn)
}

func (m *Manager) editLayer(i int, fn func(l *Layer)) {
	m.edit(func(s *State) {
		if i >= 0 && i < len(s.Layers) {
			fn(&s.Layers[i])
		}
	})
}

// edit applies fn to the state and hands the result to the scheduler
func (m *Manager) edit(fn func(s *State)) {
	m.mu.Lock()
	fn(m.state)
	layers := CloneLayers(m.state.Layers)
	tempo := m.state.Tempo
	m.mu.Unlock()

	if err := m.sched.Update(layers, float64(tempo)); err != nil {
		debug.Log("sched", "update rejected: %v", err)
	}
	m.notifyUpdate()
}

// notifyUpdate wakes the TUI without blocking
func (m *Manager) notifyUpdate() {
	select {
	case m.UpdateChan <- struct{}{}:
	default:
	}
}
