package sequencer

import "time"

// View selects how the TUI draws the measure
type View int

const (
	ViewLayers  View = iota // one row of clicks per layer
	ViewSegment             // proportional timeline of the merged schedule
	ViewBlock               // single block flashing on every click
	numViews
)

func (v View) String() string {
	switch v {
	case ViewLayers:
		return "layers"
	case ViewSegment:
		return "segment"
	case ViewBlock:
		return "block"
	default:
		return "unknown"
	}
}

// Valid reports whether v names a known view
func (v View) Valid() bool {
	return v >= 0 && v < numViews
}

// Next cycles through the views
func (v View) Next() View {
	return (v + 1) % numViews
}

// State holds everything the surrounding application edits
type State struct {
	Tempo    int     `json:"tempo"`
	Layers   []Layer `json:"layers"`
	Playing  bool    `json:"-"`
	OffsetMs int     `json:"offsetMs"`
	View     View    `json:"view"`
	Theme    int     `json:"theme"`
	Easy     bool    `json:"easy"`
	Selected int     `json:"-"`
}

// NewState creates a new state with defaults
func NewState() *State {
	return &State{
		Tempo:  80,
		Layers: DefaultLayers(),
		Easy:   true,
	}
}

// Offset returns the output latency as a duration
func (s *State) Offset() time.Duration {
	return time.Duration(s.OffsetMs) * time.Millisecond
}

// Measure returns the current measure duration
func (s *State) Measure() time.Duration {
	d, err := MeasureDuration(float64(s.Tempo))
	if err != nil {
		return 0
	}
	return d
}

// NextOffset steps the output latency by 50ms, wrapping to 0 after the max
func NextOffset(ms int) int {
	ms += int(OffsetStep / time.Millisecond)
	if ms > int(MaxOffset/time.Millisecond) {
		return 0
	}
	return ms
}
