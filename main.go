package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	gomidi "gitlab.com/gomidi/midi/v2"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"go-polyrhythm/config"
	"go-polyrhythm/debug"
	"go-polyrhythm/midi"
	"go-polyrhythm/preset"
	"go-polyrhythm/sequencer"
	"go-polyrhythm/sound"
	"go-polyrhythm/theme"
	"go-polyrhythm/tui"
)

func main() {
	var (
		out      = flag.String("out", "", "output: beep, midi, both or none (default from config)")
		port     = flag.String("port", "", "MIDI output port (default from config, else first port)")
		channel  = flag.Int("channel", 0, "MIDI channel 1-16 (default from config)")
		tempo    = flag.Int("tempo", 0, "start tempo in BPM")
		tapPort  = flag.String("tap", "", "MIDI input whose notes tap the tempo (\"-\" for the first port)")
		code     = flag.String("code", "", "import a share code")
		debugLog = flag.Bool("debug", false, "write ~/.config/go-polyrhythm/debug.log")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	if *out != "" {
		cfg.Output = config.Output(*out)
	}
	if *port != "" {
		cfg.MIDI.PortName = *port
	}
	if *channel != 0 {
		cfg.MIDI.Channel = *channel
	}
	if *tempo != 0 {
		cfg.Tempo = *tempo
	}
	if *debugLog {
		cfg.Debug = true
	}
	if *tapPort != "" {
		cfg.MIDI.Tap = true
		cfg.MIDI.TapPort = *tapPort
		if *tapPort == "-" {
			cfg.MIDI.TapPort = ""
		}
	}
	if *code != "" {
		c, err := preset.Decode(*code)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		cfg.Tempo, cfg.Layers, cfg.Easy = c.Tempo, c.Layers, c.Easy
		cfg.Theme, cfg.View, cfg.OffsetMs = c.Theme, c.View, c.OffsetMs
	}
	cfg.Validate()

	if cfg.Debug {
		if err := debug.Enable(); err != nil {
			fmt.Printf("Warning: debug log unavailable: %v\n", err)
		}
		defer debug.Disable()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Outputs
	var outputs sound.Outputs
	defer outputs.Close()
	if cfg.Output.UsesBeep() {
		if err := outputs.AddSpeaker(); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
	}
	var ports *midi.OutputManager
	if cfg.Output.UsesMIDI() {
		// Start port manager in background (handles hot-plug)
		ports = midi.NewOutputManager()
		portName := cfg.MIDI.PortName
		ports.Want(portName)
		go ports.Run(ctx)
		outputs.AddMIDI(func() func(gomidi.Message) error {
			return ports.Sender(portName)
		}, uint8(cfg.MIDI.Channel))
	}

	manager := sequencer.NewManager(cfg.State(), outputs.Trigger())

	presets, err := preset.DefaultStore()
	if err != nil {
		debug.Log("preset", "presets disabled: %v", err)
		presets = nil
	}

	m := tui.NewModel(manager, ports, presets, theme.All())
	if cfg.MIDI.Tap {
		taps, err := midi.OpenTapInput(cfg.MIDI.TapPort)
		if err != nil {
			fmt.Printf("Warning: tap input unavailable: %v\n", err)
		} else {
			defer taps.Close()
			m.Taps = taps.Taps()
		}
	}
	p := tea.NewProgram(m, tea.WithAltScreen())

	if _, err := p.Run(); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	manager.Stop()

	cfg.Remember(manager.Snapshot())
	if err := cfg.Save(); err != nil {
		fmt.Printf("Warning: could not save settings: %v\n", err)
	}
}
