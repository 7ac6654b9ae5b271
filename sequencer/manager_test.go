package sequencer

import (
	"errors"
	"testing"
	"time"
)

func newTestManager() (*Manager, *fakeClock, *recordTrigger) {
	clock := newFakeClock()
	trigger := &recordTrigger{}
	state := NewState()
	state.Layers = layersOf(4, 5)
	return NewManagerWithClock(state, trigger, clock), clock, trigger
}

func TestManagerPlayStop(t *testing.T) {
	m, _, _ := newTestManager()

	if err := m.TogglePlay(); err != nil {
		t.Fatalf("play: %v", err)
	}
	if !m.Snapshot().Playing || !m.Scheduler().Running() {
		t.Fatalf("expected playing")
	}
	if err := m.TogglePlay(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if m.Snapshot().Playing || m.Scheduler().Running() {
		t.Fatalf("expected stopped")
	}
}

func TestManagerTicksReachChannel(t *testing.T) {
	m, clock, trigger := newTestManager()
	if err := m.Play(); err != nil {
		t.Fatalf("play: %v", err)
	}
	defer m.Stop()

	clock.Advance(clock.waitTimer(t))
	select {
	case tick := <-m.TickChan:
		if !tick.Running || tick.Position != 1 {
			t.Fatalf("unexpected tick %+v", tick)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no tick forwarded")
	}
	if trigger.count() != 1 {
		t.Fatalf("expected one click, got %d", trigger.count())
	}
}

func TestManagerEditsSelectedLayer(t *testing.T) {
	m, _, _ := newTestManager()

	m.Select(1)
	m.AdjustBeats(2)
	m.CycleWave(1)
	m.ToggleMute()
	m.ToggleDuration()
	m.CycleRelease()
	m.AdjustVolume(0.9)

	l := m.Layers()[1]
	if l.Beats != 7 {
		t.Fatalf("expected 7 beats, got %d", l.Beats)
	}
	if l.Wave != WaveTriangle || !l.Muted || l.Duration != LongDuration {
		t.Fatalf("unexpected layer %+v", l)
	}
	if l.Release != ReleaseOff && l.Release != ReleaseShort && l.Release != ReleaseLong {
		t.Fatalf("release out of range: %v", l.Release)
	}
	if l.Volume != 1 {
		t.Fatalf("volume should clamp to 1, got %v", l.Volume)
	}
	if m.Layers()[0].Beats != 4 {
		t.Fatalf("unselected layer changed")
	}

	m.Select(-2)
	if m.Snapshot().Selected != 1 {
		t.Fatalf("selection should wrap, got %d", m.Snapshot().Selected)
	}
}

func TestManagerClampsTempoAndBeats(t *testing.T) {
	m, _, _ := newTestManager()
	m.SetTempo(1000)
	if m.Snapshot().Tempo != MaxTempo {
		t.Fatalf("expected tempo clamp to %d", MaxTempo)
	}
	m.AdjustTempo(-1000)
	if m.Snapshot().Tempo != MinTempo {
		t.Fatalf("expected tempo clamp to %d", MinTempo)
	}
	m.SetBeats(0, 99)
	if m.Layers()[0].Beats != MaxBeats {
		t.Fatalf("expected beats clamp to %d", MaxBeats)
	}
	m.AdjustNote(-100)
	if m.Layers()[0].Note != 0 {
		t.Fatalf("note should not go negative")
	}
}

func TestManagerOffsetFollowsDisplay(t *testing.T) {
	m, _, _ := newTestManager()
	m.CycleOffset()
	m.CycleOffset()
	if m.Snapshot().OffsetMs != 100 {
		t.Fatalf("expected 100ms, got %d", m.Snapshot().OffsetMs)
	}
	if m.Scheduler().Display().Offset() != 100*time.Millisecond {
		t.Fatalf("display offset not updated")
	}
}

func TestManagerLoadRejectsInvalidLayers(t *testing.T) {
	m, _, _ := newTestManager()
	if err := m.Load(100, layersOf(3, 0)); !errors.Is(err, ErrInvalidLayer) {
		t.Fatalf("expected ErrInvalidLayer, got %v", err)
	}
	if err := m.Load(100, layersOf(3, 2)); err != nil {
		t.Fatalf("load: %v", err)
	}
	s := m.Snapshot()
	if s.Tempo != 100 || len(s.Layers) != 2 || s.Layers[0].Beats != 3 {
		t.Fatalf("load not applied: %+v", s)
	}
}

func TestManagerTapSetsTempo(t *testing.T) {
	m, clock, _ := newTestManager()
	m.Tap()
	clock.Advance(400 * time.Millisecond)
	m.Tap()
	if m.Snapshot().Tempo != 150 {
		t.Fatalf("expected 150 BPM, got %d", m.Snapshot().Tempo)
	}
}

func TestManagerSchedule(t *testing.T) {
	m, _, _ := newTestManager()
	m.SetTempo(120)
	schedule, measure, err := m.Schedule()
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if measure != 2*time.Second || len(schedule) != 8 {
		t.Fatalf("unexpected schedule: %d events over %v", len(schedule), measure)
	}
}
