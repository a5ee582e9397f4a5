// Package notifications is the full-page notification list with an
// all/unread/read filter.
package notifications

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/classroom/internal/keys"
	"github.com/nhle/classroom/internal/model"
	"github.com/nhle/classroom/internal/theme"
	"github.com/nhle/classroom/internal/ui/bell"
)

// Filter selects which entries the page shows.
type Filter int

const (
	FilterAll Filter = iota
	FilterUnread
	FilterRead
)

var filterNames = []string{"All", "Unread", "Read"}

func (f Filter) String() string {
	return filterNames[f]
}

// Apply returns the entries of ns that pass f, preserving order.
func (f Filter) Apply(ns []model.Notification) []model.Notification {
	if f == FilterAll {
		return ns
	}
	var out []model.Notification
	for _, n := range ns {
		if (f == FilterUnread) == !n.Read {
			out = append(out, n)
		}
	}
	return out
}

// item wraps a notification for the bubbles list.
type item struct {
	n model.Notification
}

func (i item) FilterValue() string { return i.n.Title }

// delegate renders two lines per notification.
type delegate struct {
	now func() time.Time
}

func (d delegate) Height() int { return 2 }
func (d delegate) Spacing() int { return 1 }
func (d delegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }

func (d delegate) Render(w io.Writer, m list.Model, index int, li list.Item) {
	it, ok := li.(item)
	if !ok {
		return
	}
	n := it.n

	titleStyle := theme.DimmedStyle
	marker := "  "
	if !n.Read {
		titleStyle = theme.UnreadStyle
		marker = lipgloss.NewStyle().Foreground(theme.ColorBlue).Render("● ")
	}

	category := theme.CategoryStyle(string(n.Type)).Render(string(n.Type))
	first := fmt.Sprintf("%s%s %s  %s", marker, bell.Icon(n.Type), titleStyle.Render(n.Title), category)

	width := m.Width() - 6
	if width < 10 {
		width = 10
	}
	second := "   " + theme.DimmedStyle.Width(width).MaxHeight(1).Render(n.Message) +
		"  " + theme.HelpStyle.Render(bell.RelativeTime(n.CreatedAt, d.now()))

	entry := first + "\n" + second
	if index == m.Index() {
		_, _ = io.WriteString(w, theme.SelectedItemStyle.Render(entry))
		return
	}
	_, _ = io.WriteString(w, theme.ListItemStyle.Render(entry))
}

// Model is the notifications page.
type Model struct {
	list   list.Model
	keys   *keys.KeyMap
	all    []model.Notification
	unread int
	filter Filter
	width  int
	height int
}

// New creates the page.
func New(k *keys.KeyMap, width, height int) Model {
	l := list.New([]list.Item{}, delegate{now: time.Now}, width, height-2)
	l.SetShowTitle(false)
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)

	return Model{
		list:   l,
		keys:   k,
		width:  width,
		height: height,
	}
}

// SetNotifications replaces the entries from a sync snapshot.
func (m *Model) SetNotifications(ns []model.Notification, unread int) tea.Cmd {
	m.all = ns
	m.unread = unread
	return m.refreshItems()
}

// SetFilter switches the filter.
func (m *Model) SetFilter(f Filter) tea.Cmd {
	m.filter = f
	return m.refreshItems()
}

// Filter returns the active filter.
func (m Model) Filter() Filter {
	return m.filter
}

// Visible returns the entries passing the active filter.
func (m Model) Visible() []model.Notification {
	return m.filter.Apply(m.all)
}

// Focus moves the cursor to the notification with id, if visible.
func (m *Model) Focus(id string) {
	for i, n := range m.Visible() {
		if n.ID == id {
			m.list.Select(i)
			return
		}
	}
}

func (m *Model) refreshItems() tea.Cmd {
	visible := m.Visible()
	items := make([]list.Item, len(visible))
	for i, n := range visible {
		items[i] = item{n: n}
	}
	return m.list.SetItems(items)
}

// Init returns the initial command.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages for the page.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if km, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(km, m.keys.Cycle):
			cmd := m.SetFilter((m.filter + 1) % Filter(len(filterNames)))
			return m, cmd

		case key.Matches(km, m.keys.Select):
			it, ok := m.list.SelectedItem().(item)
			if !ok {
				return m, nil
			}
			return m, func() tea.Msg { return bell.OpenNotificationMsg{Notification: it.n} }

		case key.Matches(km, m.keys.MarkAllRead):
			if m.unread == 0 {
				return m, nil
			}
			return m, func() tea.Msg { return bell.MarkAllReadMsg{} }
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// Header returns the summary line, e.g. "2 unread of 3".
func (m Model) Header() string {
	return fmt.Sprintf("%d unread of %d", m.unread, len(m.all))
}

// View renders the page.
func (m Model) View() string {
	tabs := make([]string, len(filterNames))
	for i, name := range filterNames {
		if Filter(i) == m.filter {
			tabs[i] = theme.ActiveTabStyle.Render(name)
		} else {
			tabs[i] = theme.TabStyle.Render(name)
		}
	}
	top := lipgloss.JoinHorizontal(lipgloss.Top,
		theme.UnreadStyle.Render("Notifications"),
		"  ",
		theme.DimmedStyle.Render(m.Header()),
		"   ",
		strings.Join(tabs, ""),
	)

	if len(m.list.Items()) == 0 {
		return lipgloss.JoinVertical(lipgloss.Left, top, "", m.renderEmptyState())
	}
	return lipgloss.JoinVertical(lipgloss.Left, top, "", m.list.View())
}

func (m Model) renderEmptyState() string {
	style := lipgloss.NewStyle().
		Width(m.width).
		Height(m.height-2).
		Align(lipgloss.Center, lipgloss.Center).
		Foreground(theme.ColorGray)

	switch m.filter {
	case FilterUnread:
		return style.Render("You are all caught up.")
	case FilterRead:
		return style.Render("No read notifications.")
	default:
		return style.Render(
			"No notifications yet.\n\n" +
				"You'll be notified about new assignments, tests, and announcements.",
		)
	}
}

// SetSize updates the list dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height-2)
}
