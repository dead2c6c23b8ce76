package virtual

import (
	"fmt"
	"log/slog"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/audiolibrelab/soundboard/internal/panel"
)

// Keyboard layout
const (
	buttonKeys    = "12345678"
	dialPressKeys = "qwer"
	dialUpKeys    = "asdf"
	dialDownKeys  = "zxcv"
	keysPerRow    = 4
)

var (
	keyStyle = lipgloss.NewStyle().
			Width(8).
			Height(3).
			Margin(0, 1, 1, 0).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(lipgloss.Color("#FFFFFF"))

	lcdStyle = lipgloss.NewStyle().
			Height(1).
			Padding(0, 1).
			Foreground(lipgloss.Color("#FFFFFF"))

	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#808080"))
)

// frameMsg carries a flushed set of colours to the program
type frameMsg struct {
	keys []string
	lcd  string
}

// model renders the emulated panel and turns keystrokes into panel events
type model struct {
	keys   int
	dials  int
	name   string
	events chan<- panel.Event

	held   []bool
	colors []string
	lcd    string
}

func newModel(info panel.DeviceInfo, events chan<- panel.Event) model {
	return model{
		keys:   info.Keys,
		dials:  info.Dials,
		name:   info.Name,
		events: events,
		held:   make([]bool, info.Keys),
		colors: make([]string, info.Keys),
	}
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case frameMsg:
		copy(m.colors, msg.keys)
		m.lcd = msg.lcd
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	k := msg.String()
	if k == "ctrl+c" {
		return m, tea.Quit
	}
	if len(k) != 1 {
		return m, nil
	}

	if i := strings.Index(buttonKeys, k); i >= 0 && i < m.keys {
		// Terminals report no key release, so buttons latch
		held := make([]bool, len(m.held))
		copy(held, m.held)
		held[i] = !held[i]
		m.held = held
		if held[i] {
			m.emit(panel.Event{Kind: panel.ButtonDown, Index: i})
		} else {
			m.emit(panel.Event{Kind: panel.ButtonUp, Index: i})
		}
		return m, nil
	}

	if i := strings.Index(dialPressKeys, k); i >= 0 && i < m.dials {
		m.emit(panel.Event{Kind: panel.EncoderDown, Index: i})
		m.emit(panel.Event{Kind: panel.EncoderUp, Index: i})
	} else if i := strings.Index(dialUpKeys, k); i >= 0 && i < m.dials {
		m.emit(panel.Event{Kind: panel.EncoderTwist, Index: i, Ticks: 1})
	} else if i := strings.Index(dialDownKeys, k); i >= 0 && i < m.dials {
		m.emit(panel.Event{Kind: panel.EncoderTwist, Index: i, Ticks: -1})
	}
	return m, nil
}

func (m model) emit(ev panel.Event) {
	select {
	case m.events <- ev:
	default:
		slog.Warn("Dropping panel event, reader is behind", "event", ev.String())
	}
}

func (m model) View() string {
	var rows []string
	for start := 0; start < m.keys; start += keysPerRow {
		var cells []string
		for i := start; i < min(start+keysPerRow, m.keys); i++ {
			cells = append(cells, m.renderKey(i))
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	}

	width := keysPerRow*9 - 1
	strip := lcdStyle.Width(width)
	if m.lcd != "" {
		strip = strip.Background(lipgloss.Color(m.lcd))
	}
	rows = append(rows, strip.Render(m.dialLegend()))

	help := fmt.Sprintf("%s  1-%d: keys (toggle)  %s: press  %s/%s: twist  ctrl+c: disconnect",
		m.name, min(m.keys, len(buttonKeys)), dialPressKeys[:m.dials], dialUpKeys[:m.dials], dialDownKeys[:m.dials])
	rows = append(rows, helpStyle.Render(help))

	return lipgloss.JoinVertical(lipgloss.Left, rows...) + "\n"
}

func (m model) renderKey(i int) string {
	style := keyStyle
	if m.colors[i] != "" {
		style = style.Background(lipgloss.Color(m.colors[i]))
	}
	label := fmt.Sprintf("%d", i+1)
	if m.held[i] {
		label = "[" + label + "]"
		style = style.Bold(true)
	}
	return style.Render(label)
}

func (m model) dialLegend() string {
	parts := make([]string, m.dials)
	for i := range parts {
		parts[i] = fmt.Sprintf("%c%c%c", dialUpKeys[i], dialPressKeys[i], dialDownKeys[i])
	}
	return strings.Join(parts, "  ")
}
