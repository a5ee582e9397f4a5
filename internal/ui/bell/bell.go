// Package bell renders the header bell, its unread badge and the
// notification dropdown.
package bell

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/classroom/internal/keys"
	"github.com/nhle/classroom/internal/model"
	"github.com/nhle/classroom/internal/theme"
)

// dropdownWidth is the outer width of the dropdown panel.
const dropdownWidth = 48

// OpenNotificationMsg is emitted when the user picks a notification.
type OpenNotificationMsg struct {
	Notification model.Notification
}

// MarkAllReadMsg is emitted when the user asks to mark everything read.
type MarkAllReadMsg struct{}

// ViewAllMsg is emitted when the user asks for the full notifications
// page.
type ViewAllMsg struct{}

// BadgeLabel returns the badge text for count unread notifications:
// empty when there are none, "9+" above nine.
func BadgeLabel(count int) string {
	switch {
	case count <= 0:
		return ""
	case count > 9:
		return "9+"
	default:
		return strconv.Itoa(count)
	}
}

// Icon returns the glyph for a notification category. Unknown
// categories get the bell.
func Icon(t model.NotificationType) string {
	switch t {
	case model.NotificationAssignment:
		return "📝"
	case model.NotificationTest:
		return "📋"
	case model.NotificationLiveClass:
		return "🎥"
	case model.NotificationAnnouncement:
		return "📢"
	case model.NotificationMessage:
		return "💬"
	case model.NotificationGrade:
		return "⭐"
	default:
		return "🔔"
	}
}

// RelativeTime formats t relative to now: "Just now" under a minute,
// then minutes, hours and days up to a week, then the date.
func RelativeTime(t, now time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "Just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d/time.Minute))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d/time.Hour))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d/(24*time.Hour)))
	default:
		return t.Local().Format("Jan 2, 2006")
	}
}

// Model is the bell and its dropdown.
type Model struct {
	keys   *keys.KeyMap
	items  []model.Notification
	unread int
	open   bool
	cursor int
	height int
	now    func() time.Time
}

// New creates a closed bell with no notifications.
func New(k *keys.KeyMap) Model {
	return Model{keys: k, now: time.Now, height: 20}
}

// SetNotifications replaces the entries shown in the dropdown.
func (m *Model) SetNotifications(items []model.Notification, unread int) {
	m.items = items
	m.unread = unread
	if m.cursor >= len(items) {
		m.cursor = max(len(items)-1, 0)
	}
}

// SetClock overrides the time source used for relative times.
func (m *Model) SetClock(now func() time.Time) {
	m.now = now
}

// SetSize limits the dropdown to height rows.
func (m *Model) SetSize(_, height int) {
	m.height = height
}

// Unread returns the count shown on the badge.
func (m Model) Unread() int {
	return m.unread
}

// IsOpen reports whether the dropdown is shown.
func (m Model) IsOpen() bool {
	return m.open
}

// Toggle opens or closes the dropdown.
func (m *Model) Toggle() {
	m.open = !m.open
	m.cursor = 0
}

// Close hides the dropdown.
func (m *Model) Close() {
	m.open = false
}

// Selected returns the highlighted notification.
func (m Model) Selected() (model.Notification, bool) {
	if m.cursor < 0 || m.cursor >= len(m.items) {
		return model.Notification{}, false
	}
	return m.items[m.cursor], true
}

// Update handles keys while the dropdown is open.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if !m.open {
		return m, nil
	}
	km, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch {
	case key.Matches(km, m.keys.Down):
		if m.cursor < len(m.items)-1 {
			m.cursor++
		}
	case key.Matches(km, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(km, m.keys.Select):
		n, ok := m.Selected()
		if !ok {
			return m, nil
		}
		m.open = false
		return m, func() tea.Msg { return OpenNotificationMsg{Notification: n} }
	case key.Matches(km, m.keys.MarkAllRead):
		if m.unread == 0 {
			return m, nil
		}
		return m, func() tea.Msg { return MarkAllReadMsg{} }
	case km.String() == "v":
		m.open = false
		return m, func() tea.Msg { return ViewAllMsg{} }
	case key.Matches(km, m.keys.Back), key.Matches(km, m.keys.Bell):
		m.open = false
	}
	return m, nil
}

// BadgeView renders the bell with its badge for the header.
func (m Model) BadgeView() string {
	bell := theme.HeaderStyle.Render("🔔")
	label := BadgeLabel(m.unread)
	if label == "" {
		return bell
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, bell, theme.BadgeStyle.Render(label))
}

// View renders the dropdown, or nothing while it is closed.
func (m Model) View() string {
	if !m.open {
		return ""
	}
	inner := dropdownWidth - 4

	var b strings.Builder
	title := theme.UnreadStyle.Render("Notifications")
	if m.unread > 0 {
		title += theme.DimmedStyle.Render("  A mark all read")
	}
	b.WriteString(title)
	b.WriteString("\n")

	if len(m.items) == 0 {
		b.WriteString("\n")
		b.WriteString(theme.DimmedStyle.Width(inner).Render(
			"No notifications yet.\nYou'll be notified about new assignments, tests, and announcements.",
		))
		return theme.DropdownStyle.Width(dropdownWidth - 2).Render(b.String())
	}

	// Three lines per entry plus header and footer.
	visible := max((m.height-4)/3, 1)
	start := 0
	if m.cursor >= visible {
		start = m.cursor - visible + 1
	}
	end := min(start+visible, len(m.items))

	now := m.now()
	for i := start; i < end; i++ {
		b.WriteString("\n")
		b.WriteString(m.renderEntry(m.items[i], i == m.cursor, now, inner))
	}

	b.WriteString("\n\n")
	b.WriteString(theme.HelpStyle.Render("enter open | v view all | esc close"))

	return theme.DropdownStyle.Width(dropdownWidth - 2).Render(b.String())
}

func (m Model) renderEntry(n model.Notification, selected bool, now time.Time, width int) string {
	titleStyle := theme.DimmedStyle
	marker := "  "
	if !n.Read {
		titleStyle = theme.UnreadStyle
		marker = lipgloss.NewStyle().Foreground(theme.ColorBlue).Render("● ")
	}

	head := fmt.Sprintf("%s %s", Icon(n.Type), titleStyle.Render(n.Title))
	body := theme.DimmedStyle.Width(width - 3).MaxHeight(1).Render(n.Message)
	when := theme.HelpStyle.Render(RelativeTime(n.CreatedAt, now))

	entry := lipgloss.JoinVertical(lipgloss.Left, marker+head, "   "+body, "   "+when)
	if selected {
		return theme.SelectedItemStyle.Render(entry)
	}
	return theme.ListItemStyle.Render(entry)
}
