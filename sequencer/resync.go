package sequencer

import "math"

// ResumePosition picks the schedule index to continue from after the layer set
// changed shape. The previous counters are 1-indexed, so their sum minus the
// layer count is the number of sub-beats already heard in this measure; the
// new schedule is walked until it has produced as many layer hits.
//
// This is an approximation: layers with different beat counts share no common
// phase in general, so the result keeps the apparent progress through the
// measure continuous rather than matching phase exactly.
func ResumePosition(counters []int, schedule []ScheduleEvent) int {
	if len(schedule) == 0 {
		return 0
	}
	elapsed := -len(counters)
	for _, c := range counters {
		elapsed += c
	}

	heard, pos := 0, 0
	for _, e := range schedule {
		if heard >= elapsed {
			break
		}
		heard += len(e.Layers)
		pos++
	}
	if pos >= len(schedule) {
		pos = len(schedule) - 1
	}
	return pos
}

// AverageCounters rescales beat counters after beat counts changed so every
// layer keeps roughly the same fraction of the measure. Counters never drop
// below 1 or exceed the layer's new beat count.
func AverageCounters(counters, oldBeats, newBeats []int) []int {
	out := make([]int, len(newBeats))
	sumCounters, sumBeats := 0, 0
	for _, c := range counters {
		sumCounters += c
	}
	for _, b := range oldBeats {
		sumBeats += b
	}

	percent := 0.0
	if sumBeats > 0 {
		percent = float64(sumCounters) / float64(sumBeats)
	}

	for i, beats := range newBeats {
		c := int(math.Round(float64(beats) * percent))
		if c < 1 {
			c = 1
		}
		if beats >= 1 && c > beats {
			c = beats
		}
		out[i] = c
	}
	return out
}

// ResetCounters returns n counters at the start of a measure
func ResetCounters(n int) []int {
	counters := make([]int, n)
	for i := range counters {
		counters[i] = 1
	}
	return counters
}

// sameShape reports whether two layer sets subdivide the measure identically
func sameShape(a, b []Layer) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Beats != b[i].Beats {
			return false
		}
	}
	return true
}
