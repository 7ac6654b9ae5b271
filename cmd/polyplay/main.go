package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"go-polyrhythm/config"
	"go-polyrhythm/debug"
	"go-polyrhythm/midi"
	"go-polyrhythm/preset"
	"go-polyrhythm/sequencer"
	"go-polyrhythm/sound"
)

func main() {
	var (
		layersFlag = flag.String("layers", "4,5", "comma separated beat counts, one per layer")
		tempo      = flag.Int("tempo", 120, "tempo in BPM (33-333)")
		measures   = flag.Int("measures", 4, "measures to play, 0 plays until interrupted")
		offset     = flag.Int("offset", 0, "output latency in ms applied to printed ticks (0-550)")
		out        = flag.String("out", "beep", "output: beep, midi, both or none")
		port       = flag.String("port", "", "MIDI output port (default: first port)")
		channel    = flag.Int("channel", 10, "MIDI channel (1-16)")
		code       = flag.String("code", "", "share code to play instead of -layers/-tempo")
		verbose    = flag.Bool("debug", false, "log to stderr")
	)
	flag.Parse()

	if *verbose {
		debug.SetOutput(os.Stderr)
	}

	layers, bpm, err := resolveLayers(*layersFlag, *tempo, *code)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	output := config.Output(*out)
	if !output.Valid() {
		fmt.Printf("Error: unknown output %q\n", *out)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	var outputs sound.Outputs
	defer outputs.Close()
	if output.UsesBeep() {
		if err := outputs.AddSpeaker(); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
	}
	if output.UsesMIDI() {
		ports := midi.NewOutputManager()
		ports.Scan()
		if err := ports.Open(*port); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		go ports.Run(ctx)
		outputs.AddMIDI(func() func(gomidi.Message) error {
			return ports.Sender(*port)
		}, uint8(*channel))
	}

	sched := sequencer.NewScheduler(nil, nil, outputs.Trigger())
	sched.Display().SetOffset(time.Duration(*offset) * time.Millisecond)

	done := make(chan struct{})
	var played atomic.Int64
	sched.OnTick(func(t sequencer.Tick) {
		if !t.Running {
			return
		}
		mark := " "
		if t.Downbeat {
			mark = "|"
		}
		fmt.Printf("%s %s fired %v counters %v\n", t.At.Format("15:04:05.000"), mark, t.Fired, t.Counters)
		if t.Downbeat && played.Add(1) == int64(*measures) {
			close(done)
		}
	})

	if _, err := sched.Start(layers, float64(bpm)); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("playing %v at %d BPM\n", sequencer.BeatCounts(layers), bpm)

	select {
	case <-done:
	case <-ctx.Done():
	}
	sched.Stop()

	// Let release tails ring out
	time.Sleep(300 * time.Millisecond)
}

// resolveLayers builds the layer set from a share code or from the flags
func resolveLayers(beats string, tempo int, code string) ([]sequencer.Layer, int, error) {
	if code != "" {
		c, err := preset.Decode(code)
		if err != nil {
			return nil, 0, err
		}
		return c.Layers, c.Tempo, nil
	}

	defaults := sequencer.DefaultLayers()
	var layers []sequencer.Layer
	for i, field := range strings.Split(beats, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(field))
		if err != nil {
			return nil, 0, fmt.Errorf("layer %d: %w", i+1, err)
		}
		l := defaults[i%len(defaults)]
		l.Beats = sequencer.ClampBeats(n)
		layers = append(layers, l)
	}
	return layers, sequencer.ClampTempo(tempo), nil
}
