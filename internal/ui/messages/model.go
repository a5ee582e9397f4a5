// Package messages is the conversation list, chat pane and composer.
package messages

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/classroom/internal/keys"
	"github.com/nhle/classroom/internal/model"
	"github.com/nhle/classroom/internal/theme"
)

// SendMsg asks the app to send Body to PeerID.
type SendMsg struct {
	PeerID string
	Body   string
}

// OpenConversationMsg is emitted when a conversation is opened, so its
// unread messages can be marked read.
type OpenConversationMsg struct {
	PeerID string
}

// Pane identifies the focused part of the page.
type Pane int

const (
	PanePeers Pane = iota
	PaneChat
	PaneCompose
)

// peer is one row of the conversation list.
type peer struct {
	id      string
	name    string
	unread  int
	preview string
}

// Model is the messages page.
type Model struct {
	keys     *keys.KeyMap
	selfID   string
	names    map[string]string
	students []model.Profile
	convs    []model.Conversation
	peers    []peer
	cursor   int
	picked   bool // the user chose the highlighted peer
	pane     Pane
	input    textinput.Model
	width    int
	height   int
}

// New creates the page for selfID.
func New(k *keys.KeyMap, selfID string, width, height int) Model {
	ti := textinput.New()
	ti.Placeholder = "write a message..."
	ti.Prompt = "> "
	ti.CharLimit = 5000

	m := Model{
		keys:   k,
		selfID: selfID,
		names:  make(map[string]string),
		input:  ti,
	}
	m.SetSize(width, height)
	return m
}

// SetStudents records the people a new conversation can be started with.
func (m *Model) SetStudents(students []model.Profile) {
	m.students = students
	for _, s := range students {
		m.names[s.ID] = s.DisplayName()
	}
	m.rebuild()
}

// SetConversations replaces the conversations from a sync snapshot.
func (m *Model) SetConversations(convs []model.Conversation) {
	m.convs = convs
	m.rebuild()
}

// rebuild orders peers with a conversation by activity, followed by
// students without one. A peer the user picked stays highlighted;
// otherwise the most recent conversation is.
func (m *Model) rebuild() {
	selected := m.SelectedPeer()

	seen := make(map[string]bool)
	peers := make([]peer, 0, len(m.convs)+len(m.students))
	for _, c := range m.convs {
		p := peer{id: c.PeerID, name: m.name(c.PeerID), unread: c.Unread}
		if len(c.Messages) > 0 {
			p.preview = c.Messages[len(c.Messages)-1].Body
		}
		peers = append(peers, p)
		seen[c.PeerID] = true
	}
	for _, s := range m.students {
		if seen[s.ID] || s.ID == m.selfID {
			continue
		}
		peers = append(peers, peer{id: s.ID, name: s.DisplayName()})
	}
	m.peers = peers

	m.cursor = 0
	if !m.picked {
		return
	}
	for i, p := range peers {
		if p.id == selected {
			m.cursor = i
		}
	}
}

func (m Model) name(id string) string {
	if n, ok := m.names[id]; ok && n != "" {
		return n
	}
	return id
}

// SelectedPeer returns the id of the highlighted peer.
func (m Model) SelectedPeer() string {
	if m.cursor < 0 || m.cursor >= len(m.peers) {
		return ""
	}
	return m.peers[m.cursor].id
}

// Pane returns the focused pane.
func (m Model) Pane() Pane {
	return m.pane
}

// Composing reports whether the composer has keyboard focus, in which
// case global single-key shortcuts must not fire.
func (m Model) Composing() bool {
	return m.pane == PaneCompose
}

// Open selects the conversation with peerID.
func (m *Model) Open(peerID string) tea.Cmd {
	for i, p := range m.peers {
		if p.id == peerID {
			m.cursor = i
			m.picked = true
			m.pane = PaneChat
			return openCmd(peerID)
		}
	}
	return nil
}

func openCmd(peerID string) tea.Cmd {
	return func() tea.Msg { return OpenConversationMsg{PeerID: peerID} }
}

// Init returns the initial command.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages for the page.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	km, ok := msg.(tea.KeyMsg)
	if !ok {
		if m.pane == PaneCompose {
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			return m, cmd
		}
		return m, nil
	}

	if m.pane == PaneCompose {
		return m.updateCompose(km)
	}

	switch {
	case key.Matches(km, m.keys.Cycle):
		m.pane = (m.pane + 1) % 3
		if m.pane == PaneCompose {
			return m, m.input.Focus()
		}
	case key.Matches(km, m.keys.Down):
		if m.pane == PanePeers && m.cursor < len(m.peers)-1 {
			m.cursor++
			m.picked = true
		}
	case key.Matches(km, m.keys.Up):
		if m.pane == PanePeers && m.cursor > 0 {
			m.cursor--
			m.picked = true
		}
	case key.Matches(km, m.keys.Select):
		peerID := m.SelectedPeer()
		if peerID == "" {
			return m, nil
		}
		m.picked = true
		m.pane = PaneChat
		return m, openCmd(peerID)
	case key.Matches(km, m.keys.Compose):
		if m.SelectedPeer() == "" {
			return m, nil
		}
		m.picked = true
		m.pane = PaneCompose
		return m, m.input.Focus()
	case key.Matches(km, m.keys.Back):
		m.pane = PanePeers
	}
	return m, nil
}

func (m Model) updateCompose(km tea.KeyMsg) (Model, tea.Cmd) {
	switch km.Type {
	case tea.KeyEsc:
		m.input.Blur()
		m.pane = PaneChat
		return m, nil
	case tea.KeyTab:
		m.input.Blur()
		m.pane = PanePeers
		return m, nil
	case tea.KeyEnter:
		body := strings.TrimSpace(m.input.Value())
		peerID := m.SelectedPeer()
		if body == "" || peerID == "" {
			return m, nil
		}
		m.input.Reset()
		return m, func() tea.Msg { return SendMsg{PeerID: peerID, Body: body} }
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(km)
	return m, cmd
}

// View renders the page.
func (m Model) View() string {
	listWidth := m.width / 3
	if listWidth < 20 {
		listWidth = 20
	}
	chatWidth := m.width - listWidth - 4
	if chatWidth < 20 {
		chatWidth = 20
	}

	left := m.renderPeers(listWidth)
	right := m.renderChat(chatWidth)

	return lipgloss.JoinHorizontal(lipgloss.Top, left, "  ", right)
}

func (m Model) paneStyle(p Pane, width int) lipgloss.Style {
	border := theme.ColorBorder
	if m.pane == p || (p == PaneChat && m.pane == PaneCompose) {
		border = theme.ColorBlue
	}
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(border).
		Width(width).
		Height(m.height - 2)
}

func (m Model) renderPeers(width int) string {
	var b strings.Builder
	b.WriteString(theme.UnreadStyle.Render("Conversations"))
	b.WriteString("\n")

	if len(m.peers) == 0 {
		b.WriteString("\n")
		b.WriteString(theme.DimmedStyle.Render("No conversations yet."))
		return m.paneStyle(PanePeers, width).Render(b.String())
	}

	for i, p := range m.peers {
		line := p.name
		if p.unread > 0 {
			line += " " + theme.BadgeStyle.Render(fmt.Sprint(p.unread))
		}
		if p.preview != "" {
			line += "\n" + theme.DimmedStyle.Width(width-4).MaxHeight(1).Render(p.preview)
		}
		b.WriteString("\n")
		if i == m.cursor {
			b.WriteString(theme.SelectedItemStyle.Render(line))
		} else {
			b.WriteString(theme.ListItemStyle.Render(line))
		}
	}
	return m.paneStyle(PanePeers, width).Render(b.String())
}

func (m Model) renderChat(width int) string {
	peerID := m.SelectedPeer()
	if peerID == "" {
		return m.paneStyle(PaneChat, width).Render(
			theme.DimmedStyle.Render("Select a conversation."),
		)
	}

	var msgs []model.Message
	for _, c := range m.convs {
		if c.PeerID == peerID {
			msgs = c.Messages
		}
	}

	var lines []string
	lines = append(lines, theme.UnreadStyle.Render(m.name(peerID)), "")
	if len(msgs) == 0 {
		lines = append(lines, theme.DimmedStyle.Render("No messages yet. Press c to write one."))
	}
	for _, msg := range msgs {
		who := m.name(msg.SenderID)
		style := lipgloss.NewStyle().Foreground(theme.ColorGreen)
		if msg.SenderID == m.selfID {
			who = "you"
			style = lipgloss.NewStyle().Foreground(theme.ColorBlue)
		}
		stamp := theme.HelpStyle.Render(msg.CreatedAt.Local().Format("Jan 2 15:04"))
		body := lipgloss.NewStyle().Width(width - 4).Render(msg.Body)
		lines = append(lines, style.Bold(true).Render(who)+" "+stamp, body)
	}

	// Keep the newest lines when the transcript overflows.
	room := m.height - 6
	if room > 0 && len(lines) > room {
		lines = append(lines[:2], lines[len(lines)-room+2:]...)
	}

	chat := strings.Join(lines, "\n")
	composer := m.input.View()
	content := lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.NewStyle().Height(m.height-5).Render(chat),
		composer,
	)
	return m.paneStyle(PaneChat, width).Render(content)
}

// SetSize updates the page dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.input.Width = width*2/3 - 10
}
