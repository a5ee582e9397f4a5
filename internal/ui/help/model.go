// Package help is the '?' overlay: key bindings, palette commands and
// the current session.
package help

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/classroom/internal/keys"
	"github.com/nhle/classroom/internal/theme"
	"github.com/nhle/classroom/internal/ui/command"
)

// Model is the help overlay view.
type Model struct {
	keys    *keys.KeyMap
	help    help.Model
	session string
	width   int
	height  int
}

// New creates a new help view model.
func New(keys *keys.KeyMap, width, height int) Model {
	h := help.New()
	h.Width = width
	return Model{
		keys:   keys,
		help:   h,
		width:  width,
		height: height,
	}
}

// SetSession sets the line describing who is signed in and against
// which backend.
func (m *Model) SetSession(s string) {
	m.session = s
}

// Init returns the initial command.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages for the help view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	return m, nil
}

// View renders the help overlay.
func (m Model) View() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	m.help.Width = m.width - 4
	m.help.ShowAll = true

	var cmds strings.Builder
	for _, c := range command.Commands {
		fmt.Fprintf(&cmds, "%s %s\n",
			lipgloss.NewStyle().Foreground(theme.ColorBlue).Width(16).Render(":"+c.Name),
			theme.HelpStyle.Render(c.Help),
		)
	}

	sections := []string{
		titleStyle.Render("Keyboard Shortcuts"),
		m.help.View(m.keys),
		"",
		titleStyle.Render("Commands"),
		strings.TrimRight(cmds.String(), "\n"),
	}
	if m.session != "" {
		sections = append(sections, "", theme.DimmedStyle.Render(m.session))
	}

	return theme.DetailPanelStyle.
		Width(m.width - 4).
		Height(m.height - 4).
		Render(lipgloss.JoinVertical(lipgloss.Left, sections...))
}

// SetSize updates the help view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.help.Width = width - 4
}
