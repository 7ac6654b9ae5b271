package sequencer

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// mergeTolerance is the largest gap between two subdivision points that is
// still treated as the same instant.
const mergeTolerance = time.Microsecond

// ScheduleEvent is one point in the measure where one or more layers click.
// Delay is measured from the previous event (or the measure start for the first).
type ScheduleEvent struct {
	Delay  time.Duration
	Layers []int
}

// DelayMs returns the delay in fractional milliseconds
func (e ScheduleEvent) DelayMs() float64 {
	return float64(e.Delay) / float64(time.Millisecond)
}

// Has reports whether the layer contributes to this event
func (e ScheduleEvent) Has(layer int) bool {
	for _, l := range e.Layers {
		if l == layer {
			return true
		}
	}
	return false
}

type division struct {
	ratio float64
	layer int
}

// BuildSchedule merges every layer's subdivisions into one ordered timeline.
// The last event closes the measure; the delays always sum to measure.
func BuildSchedule(layers []Layer, measure time.Duration) ([]ScheduleEvent, error) {
	if err := ValidateLayers(layers); err != nil {
		return nil, err
	}
	if measure <= 0 {
		return nil, fmt.Errorf("%w: measure of %v", ErrInvalidTempo, measure)
	}

	var divisions []division
	for i, l := range layers {
		for beat := 1; beat < l.Beats; beat++ {
			divisions = append(divisions, division{ratio: float64(beat) / float64(l.Beats), layer: i})
		}
	}
	sort.SliceStable(divisions, func(a, b int) bool {
		return divisions[a].ratio < divisions[b].ratio
	})

	var (
		events     []ScheduleEvent
		lastOffset time.Duration
		lastLayer  = len(layers) - 1
	)
	for _, d := range divisions {
		offset := time.Duration(math.Round(float64(measure) * d.ratio))
		interval := offset - lastOffset
		lastLayer = d.layer

		if len(events) > 0 && interval < mergeTolerance {
			prev := &events[len(events)-1]
			if !prev.Has(d.layer) {
				prev.Layers = append(prev.Layers, d.layer)
			}
			continue
		}
		events = append(events, ScheduleEvent{Delay: interval, Layers: []int{d.layer}})
		lastOffset = offset
	}

	// Closing click: the downbeat of the next measure
	events = append(events, ScheduleEvent{Delay: measure - lastOffset, Layers: []int{lastLayer}})
	return events, nil
}

// Ratios returns each event's share of the measure, for proportional rendering
func Ratios(schedule []ScheduleEvent, measure time.Duration) []float64 {
	ratios := make([]float64, len(schedule))
	if measure <= 0 {
		return ratios
	}
	for i, e := range schedule {
		ratios[i] = float64(e.Delay) / float64(measure)
	}
	return ratios
}

// Offsets returns the cumulative position of every event from the measure start
func Offsets(schedule []ScheduleEvent) []time.Duration {
	offsets := make([]time.Duration, len(schedule))
	var acc time.Duration
	for i, e := range schedule {
		acc += e.Delay
		offsets[i] = acc
	}
	return offsets
}

// TotalDuration sums every delay in the schedule
func TotalDuration(schedule []ScheduleEvent) time.Duration {
	var total time.Duration
	for _, e := range schedule {
		total += e.Delay
	}
	return total
}
