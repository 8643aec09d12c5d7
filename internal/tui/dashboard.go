// Package tui renders a live terminal dashboard over a memory watcher, the
// terminal-native capability standing in for the excluded GUI's watch
// panel.
package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/orpheus-re/orpheus/internal/watch"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#56B6D6"))
	addrStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFC800"))
	changeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5050"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#B4B4B4"))
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#505050"))
)

type tickMsg time.Time

type model struct {
	w        *watch.Watcher
	interval time.Duration
	changes  []watch.Change
	quitting bool
}

// New builds a dashboard model over w, polling every interval.
func New(w *watch.Watcher, interval time.Duration) tea.Model {
	return model{w: w, interval: interval}
}

// Run starts the dashboard's event loop until the user quits.
func Run(w *watch.Watcher, interval time.Duration) error {
	_, err := tea.NewProgram(New(w, interval)).Run()
	return err
}

func (m model) Init() tea.Cmd {
	return tick(m.interval)
}

func tick(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "c":
			m.w.ClearHistory()
			m.changes = nil
		}
	case tickMsg:
		m.w.Scan()
		m.changes = m.w.RecentChanges(20)
		return m, tick(m.interval)
	}
	return m, nil
}

func (m model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render("orpheus — memory watch") + "\n")
	b.WriteString(dimStyle.Render(fmt.Sprintf("watches: %d   total changes: %d   press q to quit, c to clear",
		len(m.w.Watches()), m.w.TotalChangeCount())) + "\n")
	b.WriteString(borderStyle.Render(strings.Repeat("─", 60)) + "\n")

	for _, r := range m.w.Watches() {
		state := dimStyle.Render("enabled")
		if !r.Enabled {
			state = dimStyle.Render("disabled")
		}
		b.WriteString(fmt.Sprintf("  %s  %-16s  %d bytes  %s\n",
			addrStyle.Render(fmt.Sprintf("0x%016x", r.Address)), r.Name, r.Size, state))
	}

	b.WriteString(borderStyle.Render(strings.Repeat("─", 60)) + "\n")
	b.WriteString(headerStyle.Render("recent changes") + "\n")
	if len(m.changes) == 0 {
		b.WriteString(dimStyle.Render("  (none yet)") + "\n")
	}
	for i := len(m.changes) - 1; i >= 0; i-- {
		c := m.changes[i]
		b.WriteString(fmt.Sprintf("  %s  %s -> %s  (#%d) %s\n",
			addrStyle.Render(fmt.Sprintf("0x%016x", c.Address)),
			changeStyle.Render(fmt.Sprintf("% x", c.OldValue)),
			changeStyle.Render(fmt.Sprintf("% x", c.NewValue)),
			c.ChangeCount,
			dimStyle.Render(c.Timestamp.Format("15:04:05.000"))))
	}

	return b.String()
}
