package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/forgekit/forge/internal/runstate"
)

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			m.refresh()
			return m, nil
		case "x":
			// Stop the run this monitor is watching; the panels pick up
			// the state change on the next tick.
			note, err := runstate.StopRunner(m.runtimeDir)
			if err != nil {
				m.actionNote = "stop failed: " + err.Error()
			} else {
				m.actionNote = note
			}
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case TickMsg:
		m.refresh()
		return m, tickCmd()
	}

	return m, nil
}
