package widgets

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"go-polyrhythm/sequencer"
	"go-polyrhythm/theme"
)

var noteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// NoteName spells a layer's semitone index; note 0 is C2
func NoteName(note int) string {
	if note < 0 {
		note = 0
	}
	return fmt.Sprintf("%s%d", noteNames[note%12], 2+note/12)
}

// ClickRow draws one layer's beats in color, lighting every beat up to and
// including lit (1-indexed, 0 for none). A single-beat layer is drawn as off.
func ClickRow(th *theme.Theme, color lipgloss.Color, beats, lit int) string {
	dim := lipgloss.NewStyle().Foreground(th.Muted())
	if beats <= 1 {
		return dim.Render(string(th.Symbols.Off))
	}

	on := lipgloss.NewStyle().Foreground(color).Bold(true)
	off := lipgloss.NewStyle().Foreground(color)
	var out strings.Builder
	for b := 1; b <= beats; b++ {
		if b > 1 {
			out.WriteString(" ")
		}
		if b <= lit {
			out.WriteString(on.Render(string(th.Symbols.Click)))
		} else {
			out.WriteString(off.Render(string(th.Symbols.Beat)))
		}
	}
	return out.String()
}

// SegmentWidths splits width cells between the events in proportion to their
// ratios, giving every event at least one cell
func SegmentWidths(ratios []float64, width int) []int {
	widths := make([]int, len(ratios))
	if len(ratios) == 0 {
		return widths
	}
	if width < len(ratios) {
		width = len(ratios)
	}

	used := 0
	acc := 0.0
	for i, r := range ratios {
		acc += r
		end := int(math.Round(acc * float64(width)))
		if i == len(ratios)-1 {
			end = width
		}
		w := end - used
		if w < 1 {
			w = 1
		}
		widths[i] = w
		used += w
	}
	return widths
}

// SegmentBar draws the merged schedule as a proportional timeline with the
// segment at lit (or none when lit < 0) highlighted
func SegmentBar(th *theme.Theme, ratios []float64, lit, width int) string {
	on := lipgloss.NewStyle().Foreground(th.Active())
	off := lipgloss.NewStyle().Foreground(th.Muted())

	var out strings.Builder
	for i, w := range SegmentWidths(ratios, width) {
		if i == lit {
			out.WriteString(on.Render(strings.Repeat(string(th.Symbols.Solid), w)))
		} else {
			out.WriteString(off.Render(strings.Repeat(string(th.Symbols.Empty), w)))
		}
	}
	return out.String()
}

// LitSegment returns the schedule index that most recently fired, or -1
func LitSegment(t sequencer.Tick, events int) int {
	if !t.Running || events == 0 {
		return -1
	}
	return ((t.Position-1)%events + events) % events
}

// Block draws a solid rectangle that flips between two shades
func Block(th *theme.Theme, on bool, width, height int) string {
	style := lipgloss.NewStyle().Foreground(th.Muted())
	r := th.Symbols.Empty
	if on {
		style = lipgloss.NewStyle().Foreground(th.Active())
		r = th.Symbols.Solid
	}
	line := style.Render(strings.Repeat(string(r), width))
	lines := make([]string, height)
	for i := range lines {
		lines[i] = line
	}
	return strings.Join(lines, "\n")
}

// Meter draws v in [0,1] as a bar of width cells
func Meter(v float64, width int) string {
	n := int(math.Round(v * float64(width)))
	if n < 0 {
		n = 0
	}
	if n > width {
		n = width
	}
	return strings.Repeat("▮", n) + strings.Repeat("▯", width-n)
}
