package sequencer

import (
	"math/rand"
	"sync"
	"testing"
	"time"
)

// recordTrigger remembers every batch of layers it was asked to play
type recordTrigger struct {
	mu    sync.Mutex
	plays [][]Layer
}

func (r *recordTrigger) Play(layers []Layer, measure time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plays = append(r.plays, CloneLayers(layers))
}

func (r *recordTrigger) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.plays)
}

func (r *recordTrigger) last() []Layer {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.plays) == 0 {
		return nil
	}
	return r.plays[len(r.plays)-1]
}

type panicTrigger struct{}

// slowTrigger spends clock time on every click, up to cost when rng is set
type slowTrigger struct {
	clock *fakeClock
	cost  time.Duration
	rng   *rand.Rand
}

func (s *slowTrigger) Play([]Layer, time.Duration) {
	d := s.cost
	if s.rng != nil {
		d = time.Duration(s.rng.Int63n(int64(s.cost) + 1))
	}
	s.clock.Advance(d)
}

// gateTrigger blocks its first click until release is closed
type gateTrigger struct {
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g *gateTrigger) Play([]Layer, time.Duration) {
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.entered)
		<-g.release
	}
}

func (panicTrigger) Play([]Layer, time.Duration) { panic("device gone") }

// newTestScheduler returns a scheduler on a fake clock plus a channel of every
// tick it publishes
func newTestScheduler(trigger Trigger) (*Scheduler, *fakeClock, chan Tick) {
	clock := newFakeClock()
	s := NewScheduler(clock, nil, trigger)
	ticks := make(chan Tick, 64)
	s.OnTick(func(t Tick) { ticks <- t })
	return s, clock, ticks
}

// step fires the armed timer and returns the tick it produced
func step(t *testing.T, clock *fakeClock, ticks <-chan Tick) Tick {
	t.Helper()
	clock.Advance(clock.waitTimer(t))
	select {
	case tick := <-ticks:
		return tick
	case <-time.After(2 * time.Second):
		t.Fatalf("no tick after timer fired")
		return Tick{}
	}
}

func TestSchedulerPlaysFullMeasure(t *testing.T) {
	trigger := &recordTrigger{}
	s, clock, ticks := newTestScheduler(trigger)

	token, err := s.Start(layersOf(4, 5), 120)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	wantFired := []int{1, 0, 1, 0, 1, 0, 1, 1}
	wantCounters := [][]int{{1, 2}, {2, 2}, {2, 3}, {3, 3}, {3, 4}, {4, 4}, {4, 5}, {1, 1}}
	for i := range wantFired {
		tick := step(t, clock, ticks)
		if tick.Token != token || !tick.Running {
			t.Fatalf("tick %d: unexpected token %d running=%v", i, tick.Token, tick.Running)
		}
		if len(tick.Fired) != 1 || tick.Fired[0] != wantFired[i] {
			t.Fatalf("tick %d: expected layer %d to fire, got %v", i, wantFired[i], tick.Fired)
		}
		if !equalInts(tick.Counters, wantCounters[i]) {
			t.Fatalf("tick %d: expected counters %v, got %v", i, wantCounters[i], tick.Counters)
		}
		if want := (i + 1) % len(wantFired); tick.Position != want {
			t.Fatalf("tick %d: expected position %d, got %d", i, want, tick.Position)
		}
	}

	if trigger.count() != len(wantFired) {
		t.Fatalf("expected %d plays, got %d", len(wantFired), trigger.count())
	}
	// The downbeat sounds every active layer once
	if got := trigger.last(); len(got) != 2 {
		t.Fatalf("expected downbeat to play both layers, got %d", len(got))
	}
}

func TestSchedulerDownbeatPlaysEachLayerOnce(t *testing.T) {
	trigger := &recordTrigger{}
	s, clock, ticks := newTestScheduler(trigger)

	// Layer 0 owns the closing click and is also active
	if _, err := s.Start(layersOf(3, 1), 120); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	for i := 0; i < 3; i++ {
		step(t, clock, ticks)
	}
	got := trigger.last()
	if len(got) != 1 || got[0].Beats != 3 {
		t.Fatalf("expected only the active layer on the downbeat, got %+v", got)
	}
}

func TestSchedulerAllOffClicksOncePerMeasure(t *testing.T) {
	trigger := &recordTrigger{}
	s, clock, ticks := newTestScheduler(trigger)
	if _, err := s.Start(layersOf(1, 1), 120); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	if d := clock.waitTimer(t); d != 2*time.Second {
		t.Fatalf("expected a full measure wait, got %v", d)
	}
	tick := step(t, clock, ticks)
	if !tick.Downbeat || tick.Position != 0 {
		t.Fatalf("expected a downbeat back at position 0, got %+v", tick)
	}
	if got := trigger.last(); len(got) != 1 {
		t.Fatalf("expected one click, got %d", len(got))
	}
}

func TestSchedulerTickCompensatesLateness(t *testing.T) {
	clock := newFakeClock()
	s := NewScheduler(clock, nil, nil)
	layers := layersOf(4, 5)
	measure := 2 * time.Second
	schedule, err := BuildSchedule(layers, measure)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	r := &run{token: 1, layers: layers, measure: measure, schedule: schedule, counters: ResetCounters(2)}
	r.due = clock.Now().Add(schedule[0].Delay)

	// Fired 5ms late: the 100ms gap to the next event shrinks to 95ms
	clock.Advance(405 * time.Millisecond)
	if next := s.tick(r); next != 95*time.Millisecond {
		t.Fatalf("expected 95ms, got %v", next)
	}
	// Lateness beyond the next interval clamps to zero
	clock.Advance(900 * time.Millisecond)
	if next := s.tick(r); next != 0 {
		t.Fatalf("expected 0, got %v", next)
	}
}

func TestSchedulerTickCompensatesItsOwnWork(t *testing.T) {
	clock := newFakeClock()
	s := NewScheduler(clock, nil, &slowTrigger{clock: clock, cost: 5 * time.Millisecond})
	layers := layersOf(4, 5)
	schedule, err := BuildSchedule(layers, 2*time.Second)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	r := &run{token: 1, layers: layers, measure: 2 * time.Second, schedule: schedule, counters: ResetCounters(2)}
	r.due = clock.Now().Add(schedule[0].Delay)

	// On time, but playing the click took 5ms
	clock.Advance(400 * time.Millisecond)
	if next := s.tick(r); next != 95*time.Millisecond {
		t.Fatalf("expected 95ms, got %v", next)
	}
}

func TestSchedulerDriftStaysBounded(t *testing.T) {
	clock := newFakeClock()
	rng := rand.New(rand.NewSource(1))
	const jitter = 5 * time.Millisecond
	trigger := &slowTrigger{clock: clock, cost: jitter, rng: rng}
	s := NewScheduler(clock, nil, trigger)

	layers := layersOf(7, 5, 3)
	measure := 1500 * time.Millisecond
	schedule, err := BuildSchedule(layers, measure)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	start := clock.Now()
	r := &run{token: 1, layers: layers, measure: measure, schedule: schedule, counters: ResetCounters(3)}
	r.due = start.Add(schedule[0].Delay)

	wait := schedule[0].Delay
	var ideal time.Duration
	for i := 0; i < 20*len(schedule); i++ {
		ideal += schedule[r.position].Delay
		clock.Advance(wait + time.Duration(rng.Int63n(int64(jitter)+1)))

		if d := clock.Now().Sub(start) - ideal; d < 0 || d > jitter {
			t.Fatalf("tick %d: drifted %v from the ideal grid", i, d)
		}
		wait = s.tick(r)
	}
}

func TestSchedulerSlowTriggerDoesNotDrift(t *testing.T) {
	clock := newFakeClock()
	const cost = 5 * time.Millisecond
	s := NewScheduler(clock, nil, &slowTrigger{clock: clock, cost: cost})
	ticks := make(chan Tick, 64)
	s.OnTick(func(t Tick) { ticks <- t })

	start := clock.Now()
	if _, err := s.Start(layersOf(4, 5), 120); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	// Five measures of 2s, each click costing 5ms of clock time
	for i := 0; i < 40; i++ {
		step(t, clock, ticks)
	}
	if drift := clock.Now().Sub(start) - 10*time.Second; drift < 0 || drift > cost {
		t.Fatalf("expected drift within one click's cost, got %v", drift)
	}
}

func TestSchedulerReanchorsAfterLongStall(t *testing.T) {
	clock := newFakeClock()
	s := NewScheduler(clock, nil, nil)
	layers := layersOf(4)
	schedule, err := BuildSchedule(layers, 2*time.Second)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	r := &run{token: 1, layers: layers, measure: 2 * time.Second, schedule: schedule, counters: ResetCounters(1)}
	r.due = clock.Now().Add(schedule[0].Delay)

	// Asleep for a minute: fire once, then continue on a fresh grid
	clock.Advance(time.Minute)
	if next := s.tick(r); next != 0 {
		t.Fatalf("expected an immediate catch-up tick, got %v", next)
	}
	if next := s.tick(r); next != schedule[2].Delay {
		t.Fatalf("expected the grid restarted from now, got %v", next)
	}
}

func TestSchedulerSupersededRunLeavesEditsAlone(t *testing.T) {
	trigger := &gateTrigger{entered: make(chan struct{}), release: make(chan struct{})}
	s, clock, ticks := newTestScheduler(trigger)

	if _, err := s.Start(layersOf(4, 5), 120); err != nil {
		t.Fatalf("start: %v", err)
	}
	// Hold the first run inside its first click
	clock.Advance(clock.waitTimer(t))
	<-trigger.entered

	s.Stop()
	<-ticks
	second, err := s.Start(layersOf(4, 5), 120)
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	defer s.Stop()
	if err := s.Update(layersOf(4, 8), 120); err != nil {
		t.Fatalf("update: %v", err)
	}
	close(trigger.release)

	most := 0
	for i := 0; i < 20; i++ {
		tick := step(t, clock, ticks)
		if tick.Token != second {
			t.Fatalf("tick from run %d, want %d", tick.Token, second)
		}
		if tick.Counters[1] > most {
			most = tick.Counters[1]
		}
	}
	if most != 8 {
		t.Fatalf("expected the 8-beat edit to reach the new run, layer 2 peaked at %d", most)
	}
}

func TestSchedulerStopPublishesResetTick(t *testing.T) {
	s, clock, ticks := newTestScheduler(&recordTrigger{})
	token, err := s.Start(layersOf(4, 5), 120)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	step(t, clock, ticks)
	step(t, clock, ticks)

	s.Stop()
	if s.Running() || s.Token() != NoRun {
		t.Fatalf("scheduler still running after Stop")
	}
	select {
	case tick := <-ticks:
		if tick.Running || tick.Token != token {
			t.Fatalf("expected stop tick for run %d, got %+v", token, tick)
		}
		if !equalInts(tick.Counters, []int{1, 1}) {
			t.Fatalf("expected counters reset, got %v", tick.Counters)
		}
	case <-time.After(time.Second):
		t.Fatalf("no stop tick")
	}

	// Stopping twice is harmless
	s.Stop()
}

func TestSchedulerRestartMintsNewToken(t *testing.T) {
	s, clock, ticks := newTestScheduler(&recordTrigger{})
	first, err := s.Start(layersOf(3), 100)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	s.Stop()
	<-ticks

	second, err := s.Start(layersOf(3), 100)
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	defer s.Stop()
	if second == first || second == NoRun {
		t.Fatalf("expected a fresh token, got %d after %d", second, first)
	}
	if tick := step(t, clock, ticks); tick.Token != second {
		t.Fatalf("tick carries token %d, want %d", tick.Token, second)
	}
}

func TestSchedulerReshapeResyncsAtNextTick(t *testing.T) {
	s, clock, ticks := newTestScheduler(&recordTrigger{})
	if _, err := s.Start(layersOf(4, 5), 120); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()
	for i := 0; i < 3; i++ {
		step(t, clock, ticks)
	}

	if err := s.Update(layersOf(4, 8), 120); err != nil {
		t.Fatalf("update: %v", err)
	}
	// Event 3 still fires from the old schedule, leaving counters at [3,3];
	// then the new layer set takes over at the matching point
	tick := step(t, clock, ticks)
	if !equalInts(tick.Counters, []int{3, 5}) {
		t.Fatalf("expected counters [3 5], got %v", tick.Counters)
	}
	if tick.Position != 4 {
		t.Fatalf("expected position 4, got %d", tick.Position)
	}

	// The next wait comes from the new schedule
	schedule, _ := BuildSchedule(layersOf(4, 8), 2*time.Second)
	if d := clock.waitTimer(t); d != schedule[4].Delay {
		t.Fatalf("expected next wait %v, got %v", schedule[4].Delay, d)
	}
}

func TestSchedulerTempoChangeKeepsPosition(t *testing.T) {
	s, clock, ticks := newTestScheduler(&recordTrigger{})
	if _, err := s.Start(layersOf(4, 5), 120); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()
	step(t, clock, ticks)

	if err := s.Update(layersOf(4, 5), 60); err != nil {
		t.Fatalf("update: %v", err)
	}
	tick := step(t, clock, ticks)
	if tick.Position != 2 {
		t.Fatalf("expected position 2, got %d", tick.Position)
	}
	// 4s measure: event 2 is 0.25 -> 0.4, i.e. 600ms
	if d := clock.waitTimer(t); d != 600*time.Millisecond {
		t.Fatalf("expected 600ms to the next event, got %v", d)
	}
}

func TestSchedulerRejectsInvalidUpdate(t *testing.T) {
	s := NewScheduler(newFakeClock(), nil, nil)
	if err := s.Update(layersOf(0), 120); err == nil {
		t.Fatalf("expected error for zero beats")
	}
	if err := s.Update(layersOf(4), -1); err == nil {
		t.Fatalf("expected error for negative tempo")
	}
	if _, err := s.Start(nil, 120); err == nil {
		t.Fatalf("expected error starting with no layers")
	}
	if s.Running() {
		t.Fatalf("failed start left scheduler running")
	}
}

func TestSchedulerSurvivesPanickingTrigger(t *testing.T) {
	s, clock, ticks := newTestScheduler(panicTrigger{})
	if _, err := s.Start(layersOf(2), 120); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()
	step(t, clock, ticks)
	step(t, clock, ticks)
}

func TestSchedulerStopSilencesRun(t *testing.T) {
	trigger := &recordTrigger{}
	s := NewScheduler(SystemClock{}, nil, trigger)

	// 333 BPM with 16 beats: a click every ~45ms
	if _, err := s.Start(layersOf(16, 15), 333); err != nil {
		t.Fatalf("start: %v", err)
	}
	time.Sleep(200 * time.Millisecond)
	s.Stop()

	time.Sleep(50 * time.Millisecond)
	settled := trigger.count()
	if settled == 0 {
		t.Fatalf("nothing played before Stop")
	}
	time.Sleep(300 * time.Millisecond)
	if got := trigger.count(); got != settled {
		t.Fatalf("stale run kept playing: %d plays after settling at %d", got, settled)
	}
}

func TestSchedulerRapidToggleLeavesOneRun(t *testing.T) {
	s := NewScheduler(SystemClock{}, nil, &recordTrigger{})
	var mu sync.Mutex
	seen := map[RunToken]int{}
	s.OnTick(func(tick Tick) {
		if tick.Running {
			mu.Lock()
			seen[tick.Token]++
			mu.Unlock()
		}
	})

	var last RunToken
	for i := 0; i < 20; i++ {
		token, err := s.Start(layersOf(16), 333)
		if err != nil {
			t.Fatalf("start: %v", err)
		}
		last = token
		if i < 19 {
			s.Stop()
		}
	}
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	before := map[RunToken]int{}
	for k, v := range seen {
		before[k] = v
	}
	mu.Unlock()

	time.Sleep(300 * time.Millisecond)
	s.Stop()

	mu.Lock()
	defer mu.Unlock()
	for token, n := range seen {
		if token != last && n != before[token] {
			t.Fatalf("run %d ticked after being stopped", token)
		}
	}
	if seen[last] == 0 {
		t.Fatalf("final run %d never ticked", last)
	}
}
