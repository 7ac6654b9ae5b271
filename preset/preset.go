package preset

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"go-polyrhythm/debug"
	"go-polyrhythm/sequencer"
)

// ErrNoPresets is returned when loading the newest save of an empty folder
var ErrNoPresets = errors.New("no presets saved")

// Preset is a named layer configuration
type Preset struct {
	Name   string            `yaml:"name,omitempty"`
	Tempo  int               `yaml:"tempo"`
	Layers []sequencer.Layer `yaml:"layers"`
}

// SaveInfo represents a saved preset file (for listing)
type SaveInfo struct {
	Filename  string
	Name      string // parsed from filename (empty if unnamed)
	Timestamp time.Time
}

const timestampLayout = "2006-01-02_15-04-05"

// Store keeps presets as timestamped YAML files in one directory
type Store struct {
	Dir string
	now func() time.Time
}

// NewStore creates a store rooted at dir
func NewStore(dir string) *Store {
	return &Store{Dir: dir, now: time.Now}
}

// DefaultStore uses ~/.config/go-polyrhythm/presets
func DefaultStore() (*Store, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return NewStore(filepath.Join(home, ".config", "go-polyrhythm", "presets")), nil
}

// List returns timestamped saves, newest first
func (s *Store) List() ([]SaveInfo, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []SaveInfo{}, nil
		}
		return nil, err
	}

	var saves []SaveInfo
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") {
			continue
		}

		// Parse filename: 2024-01-15_14-30-00.yaml or 2024-01-15_14-30-00_name.yaml
		baseName := strings.TrimSuffix(name, ".yaml")
		if len(baseName) < len(timestampLayout) {
			continue
		}
		ts, err := time.Parse(timestampLayout, baseName[:len(timestampLayout)])
		if err != nil {
			continue
		}

		saveName := ""
		if len(baseName) > len(timestampLayout)+1 && baseName[len(timestampLayout)] == '_' {
			saveName = baseName[len(timestampLayout)+1:]
		}

		saves = append(saves, SaveInfo{
			Filename:  name,
			Name:      saveName,
			Timestamp: ts,
		})
	}

	sort.Slice(saves, func(i, j int) bool {
		return saves[i].Timestamp.After(saves[j].Timestamp)
	})
	return saves, nil
}

// Save writes p with a timestamped filename and returns that filename
func (s *Store) Save(p Preset) (string, error) {
	if err := sequencer.ValidateLayers(p.Layers); err != nil {
		return "", fmt.Errorf("save preset: %w", err)
	}
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return "", err
	}

	data, err := yaml.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode preset: %w", err)
	}

	filename := s.now().Format(timestampLayout)
	if p.Name != "" {
		filename += "_" + sanitizeFilename(p.Name)
	}
	filename += ".yaml"

	if err := os.WriteFile(filepath.Join(s.Dir, filename), data, 0644); err != nil {
		return "", err
	}
	debug.Log("preset", "saved %s (%d layers)", filename, len(p.Layers))
	return filename, nil
}

// Load reads a specific save (or the most recent if filename is empty)
func (s *Store) Load(filename string) (Preset, error) {
	if filename == "" {
		saves, err := s.List()
		if err != nil {
			return Preset{}, err
		}
		if len(saves) == 0 {
			return Preset{}, ErrNoPresets
		}
		filename = saves[0].Filename
	}

	data, err := os.ReadFile(filepath.Join(s.Dir, filename))
	if err != nil {
		return Preset{}, err
	}

	var p Preset
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Preset{}, fmt.Errorf("decode preset %s: %w", filename, err)
	}
	if err := sequencer.ValidateLayers(p.Layers); err != nil {
		return Preset{}, fmt.Errorf("preset %s: %w", filename, err)
	}
	p.Tempo = sequencer.ClampTempo(p.Tempo)
	return p, nil
}

// Delete removes a save file
func (s *Store) Delete(filename string) error {
	return os.Remove(filepath.Join(s.Dir, filename))
}

// Rename changes the name part of a save, keeping its timestamp
func (s *Store) Rename(oldFilename, newName string) (string, error) {
	baseName := strings.TrimSuffix(oldFilename, ".yaml")
	if len(baseName) < len(timestampLayout) {
		return "", fmt.Errorf("invalid preset filename %q", oldFilename)
	}
	ts := baseName[:len(timestampLayout)]

	newFilename := ts + ".yaml"
	if newName != "" {
		newFilename = ts + "_" + sanitizeFilename(newName) + ".yaml"
	}

	if err := os.Rename(filepath.Join(s.Dir, oldFilename), filepath.Join(s.Dir, newFilename)); err != nil {
		return "", err
	}
	return newFilename, nil
}

// sanitizeFilename removes/replaces characters that are problematic in filenames
func sanitizeFilename(name string) string {
	r := strings.NewReplacer(
		" ", "-", "/", "-", "\\", "-", ":", "-",
		"*", "", "?", "", "\"", "", "<", "", ">", "", "|", "",
	)
	return r.Replace(name)
}
