package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go-polyrhythm/debug"
	"go-polyrhythm/sequencer"
)

// Output selects where clicks are sent
type Output string

const (
	OutputBeep Output = "beep"
	OutputMIDI Output = "midi"
	OutputBoth Output = "both"
	OutputNone Output = "none"
)

// Valid reports whether o is a known output
func (o Output) Valid() bool {
	switch o {
	case OutputBeep, OutputMIDI, OutputBoth, OutputNone:
		return true
	}
	return false
}

// UsesBeep reports whether clicks go to the speaker
func (o Output) UsesBeep() bool { return o == OutputBeep || o == OutputBoth }

// UsesMIDI reports whether clicks go to a MIDI port
func (o Output) UsesMIDI() bool { return o == OutputMIDI || o == OutputBoth }

// MIDIConfig defines the MIDI click output
type MIDIConfig struct {
	PortName string `json:"portName,omitempty"`
	Channel  int    `json:"channel,omitempty"` // 1-16, drums on 10 by default
	TapPort  string `json:"tapPort,omitempty"` // input whose note-ons tap the tempo
	Tap      bool   `json:"tap,omitempty"`
}

// Config is the main configuration structure
type Config struct {
	Tempo    int               `json:"tempo"`
	Layers   []sequencer.Layer `json:"layers,omitempty"`
	OffsetMs int               `json:"offsetMs"`
	View     sequencer.View    `json:"view"`
	Theme    int               `json:"theme"`
	Easy     bool              `json:"easy"`
	Output   Output            `json:"output"`
	MIDI     MIDIConfig        `json:"midi,omitempty"`
	Debug    bool              `json:"debug,omitempty"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Tempo:  80,
		Layers: sequencer.DefaultLayers(),
		Easy:   true,
		Output: OutputBeep,
		MIDI: MIDIConfig{
			Channel: 10,
		},
	}
}

// ConfigDir returns the config directory path
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "go-polyrhythm"), nil
}

// ConfigPath returns the full path to config.json
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads the config from disk, or returns defaults if not found
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return DefaultConfig(), nil
	}
	return LoadFile(path)
}

// LoadFile reads a config from path. Missing fields keep their defaults and
// out-of-range values are clamped.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	cfg.Layers = nil // a shorter list in the file must not inherit default layers
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Validate()
	return cfg, nil
}

// Save writes the config to disk
func (c *Config) Save() error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return c.SaveFile(path)
}

// SaveFile writes the config to path, creating its directory
func (c *Config) SaveFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return err
	}
	debug.Log("config", "saved %s", path)
	return nil
}

// Validate clamps every field into the range the app supports
func (c *Config) Validate() {
	c.Tempo = sequencer.ClampTempo(c.Tempo)

	if err := sequencer.ValidateLayers(c.Layers); err != nil {
		debug.Log("config", "%v, using defaults", err)
		c.Layers = sequencer.DefaultLayers()
	}
	for i := range c.Layers {
		c.Layers[i] = sequencer.ClampLayer(c.Layers[i])
	}

	step := int(sequencer.OffsetStep.Milliseconds())
	maxMs := int(sequencer.MaxOffset.Milliseconds())
	if c.OffsetMs < 0 {
		c.OffsetMs = 0
	}
	if c.OffsetMs > maxMs {
		c.OffsetMs = maxMs
	}
	c.OffsetMs = c.OffsetMs / step * step

	if !c.View.Valid() {
		c.View = sequencer.ViewLayers
	}
	if c.Theme < 0 {
		c.Theme = 0
	}
	if !c.Output.Valid() {
		debug.Log("config", "unknown output %q, using %q", c.Output, OutputBeep)
		c.Output = OutputBeep
	}
	if c.MIDI.Channel < 1 || c.MIDI.Channel > 16 {
		c.MIDI.Channel = 10
	}
}

// State builds the sequencer state the app starts from
func (c *Config) State() *sequencer.State {
	s := sequencer.NewState()
	s.Tempo = c.Tempo
	s.Layers = sequencer.CloneLayers(c.Layers)
	s.OffsetMs = c.OffsetMs
	s.View = c.View
	s.Theme = c.Theme
	s.Easy = c.Easy
	return s
}

// Remember copies the editable parts of a state back into the config
func (c *Config) Remember(s sequencer.State) {
	c.Tempo = s.Tempo
	c.Layers = sequencer.CloneLayers(s.Layers)
	c.OffsetMs = s.OffsetMs
	c.View = s.View
	c.Theme = s.Theme
	c.Easy = s.Easy
}
