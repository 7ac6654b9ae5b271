package theme

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

type RGB [3]uint8

// Palette is a gradient of colors; roles pick positions along it
type Palette struct {
	Name   string
	Colors []RGB
}

// Builtin returns the palettes that ship with the app, in cycling order
func Builtin() []*Palette {
	return []*Palette{
		{Name: "plasma", Colors: []RGB{
			{13, 8, 135}, {84, 2, 163}, {139, 10, 165}, {185, 50, 137},
			{219, 92, 104}, {244, 136, 73}, {254, 188, 43}, {240, 249, 33},
		}},
		{Name: "night", Colors: []RGB{
			{16, 18, 28}, {32, 38, 58}, {70, 82, 110}, {120, 140, 170},
			{150, 200, 230}, {120, 220, 200}, {250, 220, 120}, {255, 255, 240},
		}},
		{Name: "paper", Colors: []RGB{
			{245, 240, 228}, {225, 218, 200}, {160, 150, 130}, {70, 64, 56},
			{190, 60, 50}, {200, 110, 40}, {60, 120, 90}, {30, 30, 30},
		}},
		{Name: "mono", Colors: []RGB{
			{0, 0, 0}, {40, 40, 40}, {90, 90, 90}, {170, 170, 170},
			{220, 220, 220}, {235, 235, 235}, {245, 245, 245}, {255, 255, 255},
		}},
	}
}

// LoadGPL reads a GIMP palette file
func LoadGPL(path string) (*Palette, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	p, err := ParseGPL(f)
	if err != nil {
		return nil, fmt.Errorf("palette %s: %w", path, err)
	}
	if p.Name == "" {
		p.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return p, nil
}

// ParseGPL parses GIMP palette text
func ParseGPL(r io.Reader) (*Palette, error) {
	p := &Palette{}
	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if strings.HasPrefix(line, "Name:") {
			p.Name = strings.TrimSpace(strings.TrimPrefix(line, "Name:"))
			continue
		}

		// Skip headers and comments
		if line == "" || line[0] == '#' || strings.HasPrefix(line, "GIMP") || strings.HasPrefix(line, "Columns") {
			continue
		}

		// First 3 fields are R G B, the rest is a color name
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		var c RGB
		ok := true
		for i := 0; i < 3; i++ {
			v, err := strconv.Atoi(fields[i])
			if err != nil || v < 0 || v > 255 {
				ok = false
				break
			}
			c[i] = uint8(v)
		}
		if ok {
			p.Colors = append(p.Colors, c)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(p.Colors) < 2 {
		return nil, fmt.Errorf("need at least 2 colors, found %d", len(p.Colors))
	}
	return p, nil
}

// LoadDir loads every .gpl file in dir, sorted by filename. Broken files are
// skipped and reported in the returned error slice.
func LoadDir(dir string) ([]*Palette, []error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, []error{err}
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".gpl") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var (
		palettes []*Palette
		errs     []error
	)
	for _, name := range names {
		p, err := LoadGPL(filepath.Join(dir, name))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		palettes = append(palettes, p)
	}
	return palettes, errs
}

// Lookup returns interpolated color for normalized value 0-1
func (p *Palette) Lookup(norm float64) RGB {
	if norm <= 0 {
		return p.Colors[0]
	}
	if norm >= 1 {
		return p.Colors[len(p.Colors)-1]
	}

	pos := norm * float64(len(p.Colors)-1)
	i := int(pos)
	frac := pos - float64(i)

	c0 := p.Colors[i]
	c1 := p.Colors[i+1]

	return RGB{
		lerp(c0[0], c1[0], frac),
		lerp(c0[1], c1[1], frac),
		lerp(c0[2], c1[2], frac),
	}
}

func lerp(a, b uint8, t float64) uint8 {
	return uint8(float64(a)*(1-t) + float64(b)*t)
}
