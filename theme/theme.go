package theme

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"

	"go-polyrhythm/debug"
)

type Theme struct {
	Palette *Palette
	Symbols Symbols
}

type Symbols struct {
	// Click rows
	Click    rune // ● beat already played this measure
	Beat     rune // ○ beat in the measure
	Off      rune // · layer with a single beat
	Selected rune // ▶ cursor on the selected layer

	// Segment and block views
	Solid rune // █
	Empty rune // ░
}

func New(palette *Palette) *Theme {
	return &Theme{
		Palette: palette,
		Symbols: Symbols{
			Click:    '●',
			Beat:     '○',
			Off:      '·',
			Selected: '▶',

			Solid: '█',
			Empty: '░',
		},
	}
}

// All returns a theme per built-in palette followed by one per .gpl file in
// ~/.config/go-polyrhythm/themes
func All() []*Theme {
	palettes := Builtin()
	if dir, err := Dir(); err == nil {
		extra, errs := LoadDir(dir)
		for _, err := range errs {
			debug.Log("theme", "skipped: %v", err)
		}
		palettes = append(palettes, extra...)
	}

	themes := make([]*Theme, len(palettes))
	for i, p := range palettes {
		themes[i] = New(p)
	}
	return themes
}

// Dir is where user palettes are read from
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "go-polyrhythm", "themes"), nil
}

// Pick returns themes[i], wrapping out-of-range indexes
func Pick(themes []*Theme, i int) *Theme {
	if len(themes) == 0 {
		return New(Builtin()[0])
	}
	n := len(themes)
	return themes[((i%n)+n)%n]
}

// Name returns the palette name
func (t *Theme) Name() string {
	return t.Palette.Name
}

// Color roles mapped to palette positions (0-1)
const (
	RoleBG      = 0.0
	RoleMuted   = 0.3
	RoleFG      = 0.5
	RoleAccent  = 0.6
	RoleActive  = 0.8
	RoleSuccess = 1.0
)

// Style helpers

func (t *Theme) BG() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleBG))
}

func (t *Theme) FG() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleFG))
}

func (t *Theme) Accent() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleAccent))
}

func (t *Theme) Muted() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleMuted))
}

func (t *Theme) Active() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleActive))
}

func (t *Theme) Success() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleSuccess))
}

// Layer gives each layer its own color along the palette
func (t *Theme) Layer(i, n int) lipgloss.Color {
	if n <= 1 {
		return t.Accent()
	}
	return rgbToLipgloss(t.Palette.Lookup(RoleAccent + (RoleSuccess-RoleAccent)*float64(i)/float64(n-1)))
}

func rgbToLipgloss(c RGB) lipgloss.Color {
	return lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", c[0], c[1], c[2]))
}
