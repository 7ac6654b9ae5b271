package tui

import (
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"go-polyrhythm/debug"
	"go-polyrhythm/midi"
	"go-polyrhythm/preset"
	"go-polyrhythm/sequencer"
	"go-polyrhythm/theme"
	"go-polyrhythm/widgets"
)

const (
	segmentWidth = 48
	blockWidth   = 24
	blockHeight  = 5
)

type Model struct {
	Manager *sequencer.Manager
	Ports   *midi.OutputManager   // nil when MIDI output is off
	Presets *preset.Store         // nil disables save/load
	Taps    <-chan midi.NoteEvent // nil without a tap input
	Themes  []*theme.Theme

	tick     sequencer.Tick
	status   string
	showHelp bool
	quitting bool
}

type UpdateMsg struct{}

type TickMsg sequencer.Tick

type PortEventMsg midi.PortEvent

type TapMsg midi.NoteEvent

func NewModel(manager *sequencer.Manager, ports *midi.OutputManager, presets *preset.Store, themes []*theme.Theme) Model {
	if len(themes) == 0 {
		themes = []*theme.Theme{theme.New(theme.Builtin()[0])}
	}
	return Model{
		Manager: manager,
		Ports:   ports,
		Presets: presets,
		Themes:  themes,
		tick:    manager.LastTick(),
	}
}

func ListenForUpdates(manager *sequencer.Manager) tea.Cmd {
	return func() tea.Msg {
		<-manager.UpdateChan
		return UpdateMsg{}
	}
}

func ListenForTicks(manager *sequencer.Manager) tea.Cmd {
	return func() tea.Msg {
		return TickMsg(<-manager.TickChan)
	}
}

func ListenForPorts(ports *midi.OutputManager) tea.Cmd {
	if ports == nil {
		return nil
	}
	return func() tea.Msg {
		event, ok := <-ports.Events()
		if !ok {
			return nil
		}
		return PortEventMsg(event)
	}
}

func ListenForTaps(taps <-chan midi.NoteEvent) tea.Cmd {
	if taps == nil {
		return nil
	}
	return func() tea.Msg {
		event, ok := <-taps
		if !ok {
			return nil
		}
		return TapMsg(event)
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		ListenForUpdates(m.Manager),
		ListenForTicks(m.Manager),
		ListenForPorts(m.Ports),
		ListenForTaps(m.Taps),
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg.String())

	case UpdateMsg:
		return m, ListenForUpdates(m.Manager)

	case TickMsg:
		m.tick = sequencer.Tick(msg)
		return m, ListenForTicks(m.Manager)

	case PortEventMsg:
		event := midi.PortEvent(msg)
		m.status = fmt.Sprintf("midi %s: %s", event.Type, event.Name)
		return m, ListenForPorts(m.Ports)

	case TapMsg:
		m.Manager.Tap()
		m.status = fmt.Sprintf("tap %dbpm", m.Manager.Snapshot().Tempo)
		return m, ListenForTaps(m.Taps)
	}

	return m, nil
}

func (m Model) handleKey(key string) (tea.Model, tea.Cmd) {
	mgr := m.Manager
	switch key {
	case "q", "ctrl+c":
		m.quitting = true
		mgr.Stop()
		return m, tea.Quit

	case " ", "p":
		if err := mgr.TogglePlay(); err != nil {
			m.status = err.Error()
		}

	case "+", "=":
		mgr.AdjustTempo(1)
	case "-", "_":
		mgr.AdjustTempo(-1)
	case "]":
		mgr.AdjustTempo(10)
	case "[":
		mgr.AdjustTempo(-10)
	case "t":
		mgr.Tap()

	case "up", "k":
		mgr.Select(-1)
	case "down", "j":
		mgr.Select(1)
	case "1", "2", "3", "4", "5", "6", "7", "8", "9":
		idx := int(key[0] - '1')
		if n := len(mgr.Layers()); idx < n {
			cur := mgr.Snapshot().Selected
			mgr.Select(idx - cur)
		}

	case "right", "l":
		mgr.AdjustBeats(1)
	case "left", "h":
		mgr.AdjustBeats(-1)
	case ".":
		mgr.AdjustNote(1)
	case ",":
		mgr.AdjustNote(-1)
	case ">":
		mgr.AdjustNote(12)
	case "<":
		mgr.AdjustNote(-12)
	case "w":
		mgr.CycleWave(1)
	case "W":
		mgr.CycleWave(-1)
	case "m":
		mgr.ToggleMute()
	case "v":
		mgr.AdjustVolume(0.1)
	case "V":
		mgr.AdjustVolume(-0.1)
	case "r":
		mgr.CycleRelease()
	case "d":
		mgr.ToggleDuration()

	case "o":
		mgr.CycleOffset()
		m.status = fmt.Sprintf("output latency %dms", mgr.Snapshot().OffsetMs)
	case "tab":
		mgr.CycleView()
	case "c":
		mgr.CycleTheme(len(m.Themes))
		m.status = "theme " + m.currentTheme().Name()

	case "s":
		m.status = m.savePreset()
	case "L":
		m.status = m.loadPreset()
	case "e":
		m.status = m.exportCode()

	case "?":
		m.showHelp = !m.showHelp
	}
	return m, nil
}

func (m Model) savePreset() string {
	if m.Presets == nil {
		return "presets disabled"
	}
	s := m.Manager.Snapshot()
	name, err := m.Presets.Save(preset.Preset{Tempo: s.Tempo, Layers: s.Layers})
	if err != nil {
		debug.Log("tui", "save preset: %v", err)
		return "save failed: " + err.Error()
	}
	return "saved " + name
}

func (m Model) loadPreset() string {
	if m.Presets == nil {
		return "presets disabled"
	}
	p, err := m.Presets.Load("")
	if errors.Is(err, preset.ErrNoPresets) {
		return "no presets saved"
	}
	if err == nil {
		err = m.Manager.Load(p.Tempo, p.Layers)
	}
	if err != nil {
		debug.Log("tui", "load preset: %v", err)
		return "load failed: " + err.Error()
	}
	if p.Name != "" {
		return "loaded " + p.Name
	}
	return "loaded latest preset"
}

func (m Model) exportCode() string {
	s := m.Manager.Snapshot()
	code, err := preset.Encode(preset.Code{
		Easy:     s.Easy,
		Tempo:    s.Tempo,
		Layers:   s.Layers,
		Theme:    s.Theme,
		View:     s.View,
		OffsetMs: s.OffsetMs,
	})
	if err != nil {
		return err.Error()
	}
	debug.Log("tui", "export %s", code)
	return "code " + code
}

func (m Model) currentTheme() *theme.Theme {
	return theme.Pick(m.Themes, m.Manager.Snapshot().Theme)
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	s := m.Manager.Snapshot()
	th := theme.Pick(m.Themes, s.Theme)

	headerStyle := lipgloss.NewStyle().Foreground(th.Accent())
	dimStyle := lipgloss.NewStyle().Foreground(th.Muted())
	fgStyle := lipgloss.NewStyle().Foreground(th.FG())

	playState := "STOP"
	if s.Playing {
		playState = "PLAY"
	}
	header := headerStyle.Render(fmt.Sprintf("go-polyrhythm  %s  %3dbpm  latency:%dms  view:%s  theme:%s",
		playState, s.Tempo, s.OffsetMs, s.View, th.Name()))

	var body string
	switch s.View {
	case sequencer.ViewSegment:
		body = m.segmentView(th)
	case sequencer.ViewBlock:
		on := m.tick.Running && m.tick.Position%2 == 0
		body = widgets.Block(th, on, blockWidth, blockHeight)
	default:
		body = m.layersView(th, s)
	}

	var help string
	if m.showHelp {
		help = dimStyle.Render(widgets.RenderKeyHelp(helpSections))
	} else {
		help = dimStyle.Render(widgets.RenderKeyLine(shortHelp))
	}

	var out strings.Builder
	out.WriteString("\n")
	out.WriteString(header)
	out.WriteString("\n\n")
	out.WriteString(body)
	out.WriteString("\n\n")
	out.WriteString(m.settingsView(th, s))
	out.WriteString("\n\n")
	out.WriteString(help)
	if m.status != "" {
		out.WriteString("\n")
		out.WriteString(fgStyle.Render(m.status))
	}
	return out.String()
}

// layersView shows one click row per layer
func (m Model) layersView(th *theme.Theme, s sequencer.State) string {
	dim := lipgloss.NewStyle().Foreground(th.Muted())
	lines := make([]string, len(s.Layers))
	for i, l := range s.Layers {
		cursor := " "
		if i == s.Selected {
			cursor = string(th.Symbols.Selected)
		}
		lit := 0
		if m.tick.Running && i < len(m.tick.Counters) {
			lit = m.tick.Counters[i]
		}
		beats := fmt.Sprintf("%2d", l.Beats)
		if !l.Active() {
			beats = "off"
		}
		lines[i] = fmt.Sprintf("%s %d %3s  %s", cursor, i+1, beats,
			widgets.ClickRow(th, th.Layer(i, len(s.Layers)), l.Beats, lit))
		if l.Muted {
			lines[i] += dim.Render("  muted")
		}
	}
	return strings.Join(lines, "\n")
}

// segmentView shows the merged schedule as one proportional bar
func (m Model) segmentView(th *theme.Theme) string {
	schedule, measure, err := m.Manager.Schedule()
	if err != nil {
		return err.Error()
	}
	ratios := sequencer.Ratios(schedule, measure)
	return widgets.SegmentBar(th, ratios, widgets.LitSegment(m.tick, len(schedule)), segmentWidth)
}

// settingsView shows the sound parameters of the selected layer
func (m Model) settingsView(th *theme.Theme, s sequencer.State) string {
	if s.Selected < 0 || s.Selected >= len(s.Layers) {
		return ""
	}
	l := s.Layers[s.Selected]
	length := "short"
	if l.Duration > 0 {
		length = "long"
	}
	style := lipgloss.NewStyle().Foreground(th.Layer(s.Selected, len(s.Layers)))
	return style.Render(fmt.Sprintf("layer %d  %-4s %-8s vol %s  release %-5s  click %s",
		s.Selected+1, widgets.NoteName(l.Note), l.Wave, widgets.Meter(l.Volume, 10), l.Release, length))
}

var shortHelp = []widgets.KeyBinding{
	{Key: "space", Desc: "play"},
	{Key: "+/-", Desc: "tempo"},
	{Key: "t", Desc: "tap"},
	{Key: "j/k", Desc: "layer"},
	{Key: "h/l", Desc: "beats"},
	{Key: "tab", Desc: "view"},
	{Key: "?", Desc: "help"},
	{Key: "q", Desc: "quit"},
}

var helpSections = []widgets.KeySection{
	{Title: "Transport", Keys: []widgets.KeyBinding{
		{Key: "space / p", Desc: "play / stop"},
		{Key: "+ -", Desc: "tempo ±1"},
		{Key: "] [", Desc: "tempo ±10"},
		{Key: "t", Desc: "tap tempo"},
	}},
	{Title: "Layers", Keys: []widgets.KeyBinding{
		{Key: "j k / 1-5", Desc: "select layer"},
		{Key: "h l", Desc: "beats ±1"},
		{Key: ", . < >", Desc: "note ±1 / ±12"},
		{Key: "w W", Desc: "waveform"},
		{Key: "v V", Desc: "volume ±10%"},
		{Key: "m", Desc: "mute"},
		{Key: "r", Desc: "release"},
		{Key: "d", Desc: "click length"},
	}},
	{Title: "Display", Keys: []widgets.KeyBinding{
		{Key: "tab", Desc: "layers / segment / block"},
		{Key: "o", Desc: "output latency +50ms"},
		{Key: "c", Desc: "theme"},
	}},
	{Title: "Presets", Keys: []widgets.KeyBinding{
		{Key: "s", Desc: "save preset"},
		{Key: "L", Desc: "load latest preset"},
		{Key: "e", Desc: "show share code"},
	}},
}
