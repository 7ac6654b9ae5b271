package midi

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"

	"go-polyrhythm/debug"
)

// PortEvent is emitted when output ports appear or disappear
type PortEvent struct {
	Type PortEventType
	Name string
}

type PortEventType int

const (
	PortConnected PortEventType = iota
	PortDisconnected
)

// OutputManager tracks MIDI output ports with hot-plug detection. Ports are
// opened by Open and by Scan; Sender only hands out ports that are already open.
type OutputManager struct {
	ports   func() []string
	open    func(name string) (func(gomidi.Message) error, error)
	timeout time.Duration

	openMu sync.Mutex // serialises driver opens

	mu      sync.RWMutex
	known   map[string]bool
	wanted  map[string]bool // "" stands for the first port
	senders map[string]func(gomidi.Message) error
	events  chan PortEvent

	pollRate time.Duration
}

// NewOutputManager creates a manager backed by the system MIDI driver
func NewOutputManager() *OutputManager {
	return newOutputManager(listOutPorts, openOutPort)
}

func newOutputManager(ports func() []string, open func(string) (func(gomidi.Message) error, error)) *OutputManager {
	return &OutputManager{
		ports:    ports,
		open:     open,
		timeout:  3 * time.Second,
		known:    make(map[string]bool),
		wanted:   make(map[string]bool),
		senders:  make(map[string]func(gomidi.Message) error),
		events:   make(chan PortEvent, 16),
		pollRate: time.Second,
	}
}

// Events returns a channel of port connect/disconnect events
func (om *OutputManager) Events() <-chan PortEvent {
	return om.events
}

// Ports returns the currently known output port names, sorted
func (om *OutputManager) Ports() []string {
	om.mu.RLock()
	defer om.mu.RUnlock()
	return om.knownLocked()
}

func (om *OutputManager) knownLocked() []string {
	names := make([]string, 0, len(om.known))
	for name := range om.known {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run starts the polling loop (blocking - run in goroutine)
func (om *OutputManager) Run(ctx context.Context) {
	ticker := time.NewTicker(om.pollRate)
	defer ticker.Stop()

	// Initial scan
	om.Scan()

	for {
		select {
		case <-ctx.Done():
			om.closeAll()
			close(om.events)
			return
		case <-ticker.C:
			om.Scan()
		}
	}
}

// Scan compares the driver's port list with what we've seen and emits events
func (om *OutputManager) Scan() {
	// Port listing can hang on some drivers; give up on this scan if it does
	ch := make(chan []string, 1)
	go func() { ch <- om.ports() }()

	var names []string
	select {
	case names = <-ch:
	case <-time.After(om.timeout):
		debug.Log("midi", "port scan timed out")
		return
	}

	seen := make(map[string]bool, len(names))
	for _, name := range names {
		seen[name] = true
	}

	var events []PortEvent
	om.mu.Lock()
	for name := range seen {
		if !om.known[name] {
			om.known[name] = true
			events = append(events, PortEvent{Type: PortConnected, Name: name})
		}
	}
	for name := range om.known {
		if !seen[name] {
			delete(om.known, name)
			delete(om.senders, name)
			events = append(events, PortEvent{Type: PortDisconnected, Name: name})
		}
	}
	om.mu.Unlock()

	for _, ev := range events {
		debug.Log("midi", "port %s: %s", ev.Type, ev.Name)
		select {
		case om.events <- ev:
		default:
		}
	}

	// Reopen wanted ports that are present; failures wait for the next scan
	for _, want := range om.wantedPorts() {
		name := om.resolve(want)
		if name == "" || !seen[name] {
			continue
		}
		if err := om.connect(name); err != nil {
			debug.Log("midi", "open %q: %v", name, err)
		}
	}
}

func (t PortEventType) String() string {
	if t == PortConnected {
		return "connected"
	}
	return "disconnected"
}

// Want marks a port to be opened by the next Scan, without blocking.
// An empty name means the first port.
func (om *OutputManager) Want(portName string) {
	om.mu.Lock()
	om.wanted[portName] = true
	om.mu.Unlock()
}

// Open marks a port as wanted and opens it now. It talks to the driver, so
// call it during setup, never from playback.
func (om *OutputManager) Open(portName string) error {
	om.Want(portName)
	name := om.resolve(portName)
	if name == "" {
		return fmt.Errorf("no MIDI output ports")
	}
	return om.connect(name)
}

// Sender returns the open sender for the port, or nil. An empty name picks
// the first known port. It never touches the driver, so it is safe to call
// on every tick.
func (om *OutputManager) Sender(portName string) func(gomidi.Message) error {
	om.mu.RLock()
	defer om.mu.RUnlock()
	if portName == "" {
		names := om.knownLocked()
		if len(names) == 0 {
			return nil
		}
		portName = names[0]
	}
	return om.senders[portName]
}

func (om *OutputManager) resolve(portName string) string {
	if portName != "" {
		return portName
	}
	if names := om.Ports(); len(names) > 0 {
		return names[0]
	}
	return ""
}

func (om *OutputManager) wantedPorts() []string {
	om.mu.RLock()
	defer om.mu.RUnlock()
	names := make([]string, 0, len(om.wanted))
	for name := range om.wanted {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// connect opens name unless it is already open
func (om *OutputManager) connect(name string) error {
	om.openMu.Lock()
	defer om.openMu.Unlock()

	om.mu.RLock()
	_, ok := om.senders[name]
	om.mu.RUnlock()
	if ok {
		return nil
	}

	sender, err := om.open(name)
	if err != nil {
		return err
	}
	om.mu.Lock()
	om.senders[name] = sender
	om.known[name] = true
	om.mu.Unlock()
	debug.Log("midi", "opened %s", name)
	return nil
}

func (om *OutputManager) closeAll() {
	om.mu.Lock()
	defer om.mu.Unlock()
	om.senders = make(map[string]func(gomidi.Message) error)
	gomidi.CloseDriver()
}

func listOutPorts() []string {
	outs := gomidi.GetOutPorts()
	names := make([]string, len(outs))
	for i, out := range outs {
		names[i] = out.String()
	}
	return names
}

func openOutPort(name string) (func(gomidi.Message) error, error) {
	port, err := gomidi.FindOutPort(name)
	if err != nil {
		return nil, fmt.Errorf("find port %q: %w", name, err)
	}
	send, err := gomidi.SendTo(port)
	if err != nil {
		return nil, fmt.Errorf("failed to open port: %w", err)
	}
	return send, nil
}
