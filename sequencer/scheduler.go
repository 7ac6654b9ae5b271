package sequencer

import (
	"sync"
	"sync/atomic"
	"time"

	"go-polyrhythm/debug"
)

// RunToken identifies one playback run. NoRun means stopped.
type RunToken uint64

const NoRun RunToken = 0

// Trigger makes the layers of a tick audible. Implementations must not block;
// errors stay inside the trigger.
type Trigger interface {
	Play(layers []Layer, measure time.Duration)
}

// Scheduler walks the merged schedule in real time. Every wait is measured
// from the moment the event was due to fire, right before the timer is
// armed, so timer lateness and the time spent inside a tick never add up.
//
// Each run owns its state on its own goroutine. The only word shared with the
// rest of the program is the live token: a run whose token is no longer live
// exits at its next wake-up without touching anything.
type Scheduler struct {
	clock   Clock
	display *Display
	trigger Trigger

	gen     atomic.Uint64
	live    atomic.Uint64
	pending atomic.Pointer[reshape]

	mu        sync.Mutex
	stop      chan struct{}
	resume    []int // counters the next Start continues from
	lastBeats []int
}

// run is the Running state. Only the run's goroutine touches it.
type run struct {
	token    RunToken
	layers   []Layer
	measure  time.Duration
	schedule []ScheduleEvent
	position int       // index of the event the armed timer will fire
	counters []int     // 1-indexed beat of every layer
	due      time.Time // when the event at position is meant to fire
}

// reshape is an edit queued for the run it was made under
type reshape struct {
	token   RunToken
	layers  []Layer
	measure time.Duration
}

// NewScheduler creates a stopped scheduler
func NewScheduler(clock Clock, display *Display, trigger Trigger) *Scheduler {
	if clock == nil {
		clock = SystemClock{}
	}
	if display == nil {
		display = NewDisplay(clock)
	}
	return &Scheduler{
		clock:   clock,
		display: display,
		trigger: trigger,
	}
}

// Display returns the display the scheduler publishes to
func (s *Scheduler) Display() *Display {
	return s.display
}

// OnTick subscribes fn to every published tick
func (s *Scheduler) OnTick(fn func(Tick)) {
	s.display.Subscribe(fn)
}

// Token returns the live run token (NoRun when stopped)
func (s *Scheduler) Token() RunToken {
	return RunToken(s.live.Load())
}

// Running reports whether a run is live
func (s *Scheduler) Running() bool {
	return s.Token() != NoRun
}

// Start mints a new run and begins ticking. The first event is chosen by
// ResumePosition so a restart continues where the ear expects it.
// Callers must not Start again without a Stop in between.
func (s *Scheduler) Start(layers []Layer, tempo float64) (RunToken, error) {
	measure, err := MeasureDuration(tempo)
	if err != nil {
		return NoRun, err
	}
	layers = CloneLayers(layers)
	schedule, err := BuildSchedule(layers, measure)
	if err != nil {
		return NoRun, err
	}

	s.mu.Lock()
	counters := s.resumeCounters(layers)
	position := ResumePosition(counters, schedule)
	token := RunToken(s.gen.Add(1))
	stop := make(chan struct{})
	s.stop = stop
	s.lastBeats = BeatCounts(layers)
	s.pending.Store(nil)
	s.live.Store(uint64(token))
	s.mu.Unlock()

	r := &run{
		token:    token,
		layers:   layers,
		measure:  measure,
		schedule: schedule,
		position: position,
		counters: counters,
		due:      s.clock.Now().Add(schedule[position].Delay),
	}

	debug.Log("sched", "start run=%d events=%d measure=%v resume=%d", token, len(schedule), measure, position)
	go s.loop(r, stop)
	return token, nil
}

// Stop retires the live run. A timer that is already armed may still fire
// once; it finds the token changed and does nothing.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	prev := RunToken(s.live.Swap(uint64(NoRun)))
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
	s.resume = ResetCounters(len(s.lastBeats))
	s.pending.Store(nil)
	counters := append([]int(nil), s.resume...)
	s.mu.Unlock()

	if prev == NoRun {
		return
	}
	debug.Log("sched", "stop run=%d", prev)
	s.display.Publish(Tick{
		Token:    prev,
		Counters: counters,
		At:       s.clock.Now(),
	})
}

// Update hands a new layer set or tempo to the scheduler. A live run picks
// it up on its next tick without disturbing the timer already armed; while
// stopped, the resume counters are rescaled for the next Start.
func (s *Scheduler) Update(layers []Layer, tempo float64) error {
	measure, err := MeasureDuration(tempo)
	if err != nil {
		return err
	}
	if err := ValidateLayers(layers); err != nil {
		return err
	}
	layers = CloneLayers(layers)

	s.mu.Lock()
	defer s.mu.Unlock()
	if token := RunToken(s.live.Load()); token != NoRun {
		s.pending.Store(&reshape{token: token, layers: layers, measure: measure})
		return nil
	}
	newBeats := BeatCounts(layers)
	if len(s.lastBeats) > 0 && !equalInts(s.lastBeats, newBeats) {
		prev := s.resume
		if len(prev) != len(s.lastBeats) {
			prev = ResetCounters(len(s.lastBeats))
		}
		s.resume = AverageCounters(prev, s.lastBeats, newBeats)
		debug.Log("resync", "stopped edit beats=%v resume=%v", newBeats, s.resume)
	}
	s.lastBeats = newBeats
	return nil
}

// resumeCounters returns the counters a new run starts with, clamped to the
// layers' beat counts. Must be called with s.mu held.
func (s *Scheduler) resumeCounters(layers []Layer) []int {
	if len(s.resume) != len(layers) {
		return ResetCounters(len(layers))
	}
	counters := append([]int(nil), s.resume...)
	for i, l := range layers {
		if counters[i] < 1 {
			counters[i] = 1
		}
		if counters[i] > l.Beats {
			counters[i] = l.Beats
		}
	}
	return counters
}

func (s *Scheduler) loop(r *run, stop <-chan struct{}) {
	wait := s.untilDue(r)
	for {
		timer := s.clock.NewTimer(wait)

		select {
		case <-stop:
			timer.Stop()
			return
		case <-timer.C():
		}

		// Stale continuation: a Stop (and maybe a new Start) happened
		if RunToken(s.live.Load()) != r.token {
			return
		}

		wait = s.tick(r)

		select {
		case <-stop:
			return
		default:
		}
	}
}

// tick fires the event at r.position and returns how long to wait for the
// next one
func (s *Scheduler) tick(r *run) time.Duration {
	fired := r.due
	event := r.schedule[r.position]
	for _, i := range event.Layers {
		if r.counters[i] < r.layers[i].Beats {
			r.counters[i]++
		}
	}

	play := pickLayers(r.layers, event.Layers)
	downbeat := r.position == len(r.schedule)-1
	if downbeat {
		play = withActive(r.layers, event.Layers)
		r.counters = ResetCounters(len(r.layers))
		r.position = 0
	} else {
		r.position++
	}
	s.play(play, r.measure)

	if rs := s.takePending(r.token); rs != nil {
		s.reshape(r, rs)
	}

	s.display.Publish(Tick{
		Token:    r.token,
		Position: r.position,
		Counters: append([]int(nil), r.counters...),
		Fired:    append([]int(nil), event.Layers...),
		Downbeat: downbeat,
		Running:  true,
		At:       s.clock.Now(),
	})

	r.due = fired.Add(r.schedule[r.position].Delay)
	next := s.untilDue(r)
	debug.LogEvery(64, "sched", "run=%d pos=%d next=%v", r.token, r.position, next)
	return next
}

// untilDue is the wait until r's next event, clamped to zero. A run that
// fell more than a measure behind (a suspended machine) restarts its grid
// from now instead of firing the backlog.
func (s *Scheduler) untilDue(r *run) time.Duration {
	now := s.clock.Now()
	wait := r.due.Sub(now)
	if wait < -r.measure {
		debug.Log("sched", "run=%d fell %v behind, re-anchoring", r.token, -wait)
		r.due = now
		wait = 0
	}
	if wait < 0 {
		wait = 0
	}
	return wait
}

// takePending claims the queued edit if it was made under token
func (s *Scheduler) takePending(token RunToken) *reshape {
	rs := s.pending.Load()
	if rs == nil || rs.token != token {
		return nil
	}
	if !s.pending.CompareAndSwap(rs, nil) {
		// A newer edit replaced it; that one is picked up next tick
		return nil
	}
	return rs
}

// reshape swaps a new layer set into the live run. A tempo-only or sound-only
// change keeps the position; a change in beat counts resyncs.
func (s *Scheduler) reshape(r *run, rs *reshape) {
	schedule, err := BuildSchedule(rs.layers, rs.measure)
	if err != nil {
		debug.Log("resync", "run=%d rejected layers: %v", r.token, err)
		return
	}

	if sameShape(r.layers, rs.layers) {
		r.layers = rs.layers
		r.measure = rs.measure
		r.schedule = schedule
		return
	}

	oldBeats := BeatCounts(r.layers)
	newBeats := BeatCounts(rs.layers)
	if r.position == 0 {
		r.counters = ResetCounters(len(rs.layers))
	} else {
		r.counters = AverageCounters(r.counters, oldBeats, newBeats)
	}
	r.layers = rs.layers
	r.measure = rs.measure
	r.schedule = schedule
	if r.position != 0 {
		r.position = ResumePosition(r.counters, schedule)
	}

	s.mu.Lock()
	if RunToken(s.live.Load()) == r.token {
		s.lastBeats = newBeats
	}
	s.mu.Unlock()

	debug.Log("resync", "run=%d beats=%v counters=%v resume=%d", r.token, newBeats, r.counters, r.position)
}

// play hands layers to the trigger. A failing trigger must never take the
// tick loop down with it.
func (s *Scheduler) play(layers []Layer, measure time.Duration) {
	if s.trigger == nil || len(layers) == 0 {
		return
	}
	defer func() {
		if err := recover(); err != nil {
			debug.Log("sound", "trigger panicked: %v", err)
		}
	}()
	s.trigger.Play(layers, measure)
}

func pickLayers(layers []Layer, idx []int) []Layer {
	out := make([]Layer, 0, len(idx))
	for _, i := range idx {
		if i >= 0 && i < len(layers) {
			out = append(out, layers[i])
		}
	}
	return out
}

// withActive returns the downbeat: every active layer plus the layers of the
// closing event, each once
func withActive(layers []Layer, idx []int) []Layer {
	var out []Layer
	for i, l := range layers {
		if l.Active() || containsInt(idx, i) {
			out = append(out, l)
		}
	}
	return out
}

func containsInt(xs []int, x int) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
