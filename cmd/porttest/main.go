package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"go-polyrhythm/midi"
	"go-polyrhythm/sequencer"
	"go-polyrhythm/sound"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}

	ports := midi.NewOutputManager()

	switch os.Args[1] {
	case "list":
		listPorts(ports)
	case "click":
		port := ""
		if len(os.Args) > 2 {
			port = os.Args[2]
		}
		channel := 10
		if len(os.Args) > 3 {
			n, err := strconv.Atoi(os.Args[3])
			if err != nil {
				fmt.Printf("Error: bad channel %q\n", os.Args[3])
				os.Exit(1)
			}
			channel = n
		}
		testClicks(ports, port, channel)
	case "poll":
		pollPorts(ports)
	default:
		usage()
	}
}

func usage() {
	fmt.Println("MIDI output test")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  list                   - List MIDI output ports")
	fmt.Println("  click [port] [channel] - Play one 4:5 measure on a port (first port, channel 10)")
	fmt.Println("  poll                   - Watch for ports appearing and disappearing")
}

func listPorts(ports *midi.OutputManager) {
	fmt.Println("=== MIDI Output Ports ===")
	fmt.Println("(waiting up to 3 seconds...)")

	ports.Scan()
	names := ports.Ports()
	if len(names) == 0 {
		fmt.Println("  none")
		return
	}
	for i, name := range names {
		fmt.Printf("  %d: %s\n", i, name)
	}
}

func testClicks(ports *midi.OutputManager, port string, channel int) {
	ports.Scan()
	if err := ports.Open(port); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Sending one 4:5 measure to %q on channel %d...\n", port, channel)

	trigger := sound.NewMIDI(func() func(gomidi.Message) error {
		return ports.Sender(port)
	}, uint8(channel))

	layers := []sequencer.Layer{
		{Beats: 4, Note: 12, Volume: 0.8},
		{Beats: 5, Note: 19, Volume: 0.8},
	}
	sched := sequencer.NewScheduler(nil, nil, trigger)
	sched.OnTick(func(t sequencer.Tick) {
		if t.Running {
			fmt.Printf("  [%s] layers %v counters %v\n", t.At.Format("15:04:05.000"), t.Fired, t.Counters)
		}
	})

	measure, _ := sequencer.MeasureDuration(120)
	if _, err := sched.Start(layers, 120); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	time.Sleep(measure + 100*time.Millisecond)
	sched.Stop()

	// Let the last NoteOffs go out
	time.Sleep(200 * time.Millisecond)
	fmt.Println("Done!")
}

func pollPorts(ports *midi.OutputManager) {
	fmt.Println("Polling for output port changes every second...")
	fmt.Println("Connect/disconnect devices to test. Ctrl+C to exit.")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	go ports.Run(ctx)

	for event := range ports.Events() {
		fmt.Printf("[%s] %s: %s\n", time.Now().Format("15:04:05"), event.Type, event.Name)
	}
}
