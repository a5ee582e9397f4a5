// Package command is the ':' palette. It completes from a fixed set of
// command names and emits the parsed command to the app.
package command

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/classroom/internal/theme"
)

// Spec describes one palette command for completion and help.
type Spec struct {
	Name string
	Help string
}

// Commands lists everything the palette understands.
var Commands = []Spec{
	{"notifications", "open the notifications page"},
	{"unread", "notifications page, unread only"},
	{"messages", "open the messages page"},
	{"message", "message <peer id>: open a conversation"},
	{"catalog", "open the course catalogue"},
	{"open", "open <link>: follow a deep link such as /tests/42"},
	{"refresh", "poll now"},
	{"read-all", "mark every notification read"},
	{"setup", "configure the backend"},
	{"login", "sign in"},
	{"logout", "sign out and forget the session"},
	{"quit", "leave the application"},
}

// CommandMsg is emitted when the user executes a command.
type CommandMsg struct {
	Name string
	Arg  string
}

// Parse splits a palette line into a command name and its argument.
// Names are case-insensitive; a unique prefix selects its command.
func Parse(line string) CommandMsg {
	line = strings.TrimSpace(line)
	name, arg, _ := strings.Cut(line, " ")
	name = strings.ToLower(name)

	var match string
	for _, c := range Commands {
		if c.Name == name {
			match = name
			break
		}
		if strings.HasPrefix(c.Name, name) {
			if match != "" {
				// Ambiguous prefix; keep what was typed.
				match = name
				break
			}
			match = c.Name
		}
	}
	if match == "" {
		match = name
	}
	return CommandMsg{Name: match, Arg: strings.TrimSpace(arg)}
}

// Model is the command palette view.
type Model struct {
	input  textinput.Model
	width  int
	height int
}

// New creates a new command palette model.
func New(width, height int) Model {
	ti := textinput.New()
	ti.Placeholder = "type a command..."
	ti.Prompt = ": "
	ti.ShowSuggestions = true
	ti.Width = width - 6

	names := make([]string, len(Commands))
	for i, c := range Commands {
		names[i] = c.Name
	}
	ti.SetSuggestions(names)
	ti.Focus()

	return Model{
		input:  ti,
		width:  width,
		height: height,
	}
}

// Init returns the initial command.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles messages for the command palette.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if km, ok := msg.(tea.KeyMsg); ok && km.Type == tea.KeyEnter {
		line := strings.TrimSpace(m.input.Value())
		m.input.Reset()
		if line == "" {
			return m, nil
		}
		parsed := Parse(line)
		return m, func() tea.Msg { return parsed }
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the command palette with the commands matching the
// current input.
func (m Model) View() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	typed := strings.ToLower(strings.TrimSpace(m.input.Value()))
	typed, _, _ = strings.Cut(typed, " ")

	var hints []string
	for _, c := range Commands {
		if typed != "" && !strings.HasPrefix(c.Name, typed) {
			continue
		}
		hints = append(hints, lipgloss.NewStyle().Foreground(theme.ColorBlue).Width(16).Render(c.Name)+
			theme.HelpStyle.Render(c.Help))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("Command Palette"),
		m.input.View(),
		"",
		strings.Join(hints, "\n"),
	)

	return theme.DetailPanelStyle.
		Width(m.width - 4).
		Render(content)
}

// SetSize updates the command palette dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.input.Width = width - 6
}

// Focus gives keyboard focus to the text input.
func (m *Model) Focus() tea.Cmd {
	return m.input.Focus()
}
