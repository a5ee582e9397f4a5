// Package catalog shows the read-only course catalogue: courses, live
// classes, tests and assignments. It is the landing place for deep
// links from notifications.
package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/classroom/internal/gateway"
	"github.com/nhle/classroom/internal/keys"
	"github.com/nhle/classroom/internal/model"
	"github.com/nhle/classroom/internal/theme"
)

const loadTimeout = 30 * time.Second

// Section is one tab of the catalogue.
type Section int

const (
	SectionCourses Section = iota
	SectionLiveClasses
	SectionTests
	SectionAssignments
	sectionCount
)

var sectionNames = [sectionCount]string{"Courses", "Live classes", "Tests", "Assignments"}

func (s Section) String() string {
	return sectionNames[s]
}

// SectionFor maps a deep-link kind to the tab that lists it.
func SectionFor(kind model.RouteKind) (Section, bool) {
	switch kind {
	case model.RouteCourse:
		return SectionCourses, true
	case model.RouteLiveClass:
		return SectionLiveClasses, true
	case model.RouteTest:
		return SectionTests, true
	case model.RouteAssignment:
		return SectionAssignments, true
	}
	return 0, false
}

// Row is the rendered form of one catalogue entry.
type Row struct {
	ID     string
	Title  string
	Meta   string
	Status string
	Detail string
}

// LoadedMsg carries the result of loading one section.
type LoadedMsg struct {
	Section Section
	Rows    []Row
	Err     error
}

// Model is the catalogue page.
type Model struct {
	gw      gateway.CourseGateway
	keys    *keys.KeyMap
	section Section
	rows    [sectionCount][]Row
	loaded  [sectionCount]bool
	cursor  [sectionCount]int
	errs    [sectionCount]error

	// pending is an entry id to select once its section arrives.
	pending  string
	expanded bool
	spinner  spinner.Model

	width, height int
}

// New creates the page backed by gw.
func New(gw gateway.CourseGateway, k *keys.KeyMap, width, height int) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		gw:      gw,
		keys:    k,
		spinner: sp,
		width:   width,
		height:  height,
	}
}

// Init loads every section.
func (m Model) Init() tea.Cmd {
	return nil
}

// Load fetches all four sections concurrently.
func (m Model) Load() tea.Cmd {
	gw := m.gw
	return tea.Batch(
		m.spinner.Tick,
		load(SectionCourses, func(ctx context.Context) ([]Row, error) {
			cs, err := gw.ListCourses(ctx)
			return courseRows(cs), err
		}),
		load(SectionLiveClasses, func(ctx context.Context) ([]Row, error) {
			lcs, err := gw.ListLiveClasses(ctx)
			return liveClassRows(lcs), err
		}),
		load(SectionTests, func(ctx context.Context) ([]Row, error) {
			ts, err := gw.ListTests(ctx)
			return testRows(ts), err
		}),
		load(SectionAssignments, func(ctx context.Context) ([]Row, error) {
			as, err := gw.ListAssignments(ctx, "")
			return assignmentRows(as), err
		}),
	)
}

func load(s Section, fetch func(ctx context.Context) ([]Row, error)) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
		defer cancel()
		rows, err := fetch(ctx)
		return LoadedMsg{Section: s, Rows: rows, Err: err}
	}
}

// Focus switches to the tab for r and selects its entry, now or once
// the section has loaded. It reports whether r targets this page.
func (m *Model) Focus(r model.Route) bool {
	s, ok := SectionFor(r.Kind)
	if !ok {
		return false
	}
	m.section = s
	m.expanded = false
	m.pending = r.ID
	m.applyPending()
	return true
}

func (m *Model) applyPending() {
	if m.pending == "" || !m.loaded[m.section] {
		return
	}
	for i, row := range m.rows[m.section] {
		if row.ID == m.pending {
			m.cursor[m.section] = i
			m.expanded = true
			break
		}
	}
	m.pending = ""
}

// loading reports whether a section has neither arrived nor failed.
func (m Model) loading() bool {
	for s := range sectionCount {
		if !m.loaded[s] && m.errs[s] == nil {
			return true
		}
	}
	return false
}

// Section returns the active tab.
func (m Model) Section() Section {
	return m.section
}

// Rows returns the loaded rows of s.
func (m Model) Rows(s Section) []Row {
	return m.rows[s]
}

// Selected returns the highlighted row of the active tab.
func (m Model) Selected() (Row, bool) {
	rows := m.rows[m.section]
	c := m.cursor[m.section]
	if c < 0 || c >= len(rows) {
		return Row{}, false
	}
	return rows[c], true
}

// Update handles messages for the page.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case LoadedMsg:
		m.errs[msg.Section] = msg.Err
		if msg.Err == nil {
			m.rows[msg.Section] = msg.Rows
			m.loaded[msg.Section] = true
			if m.cursor[msg.Section] >= len(msg.Rows) {
				m.cursor[msg.Section] = max(len(msg.Rows)-1, 0)
			}
		}
		if msg.Section == m.section {
			m.applyPending()
		}
		return m, nil

	case spinner.TickMsg:
		if m.loading() {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKeys(msg)
	}
	return m, nil
}

func (m Model) handleKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	rows := m.rows[m.section]
	switch {
	case key.Matches(msg, m.keys.Cycle):
		m.section = (m.section + 1) % sectionCount
		m.expanded = false
	case key.Matches(msg, m.keys.Down):
		if m.cursor[m.section] < len(rows)-1 {
			m.cursor[m.section]++
		}
	case key.Matches(msg, m.keys.Up):
		if m.cursor[m.section] > 0 {
			m.cursor[m.section]--
		}
	case key.Matches(msg, m.keys.Select):
		if len(rows) > 0 {
			m.expanded = !m.expanded
		}
	case key.Matches(msg, m.keys.Back):
		m.expanded = false
	}
	return m, nil
}

// View renders the page.
func (m Model) View() string {
	tabs := make([]string, sectionCount)
	for i, name := range sectionNames {
		label := fmt.Sprintf("%s (%d)", name, len(m.rows[i]))
		if Section(i) == m.section {
			tabs[i] = theme.ActiveTabStyle.Render(label)
		} else {
			tabs[i] = theme.TabStyle.Render(label)
		}
	}
	top := lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
	if m.loading() {
		top += "  " + m.spinner.View()
	}

	var body string
	switch {
	case m.errs[m.section] != nil && len(m.rows[m.section]) == 0:
		body = lipgloss.NewStyle().Foreground(theme.ColorRed).
			Render("Could not load " + strings.ToLower(m.section.String()) + ".")
	case len(m.rows[m.section]) == 0:
		body = theme.DimmedStyle.Italic(true).
			Render("Nothing here yet.")
	default:
		body = m.renderRows()
	}

	return lipgloss.JoinVertical(lipgloss.Left, top, "", body)
}

func (m Model) renderRows() string {
	rows := m.rows[m.section]
	cursor := m.cursor[m.section]

	// Two lines per row, plus room for an expanded detail block.
	room := max((m.height-8)/2, 1)
	start := 0
	if cursor >= room {
		start = cursor - room + 1
	}
	end := min(start+room, len(rows))

	var b strings.Builder
	for i := start; i < end; i++ {
		row := rows[i]
		head := theme.UnreadStyle.Render(row.Title)
		if row.Status != "" {
			head += " " + theme.LiveClassStatusStyle(row.Status).Render(row.Status)
		}
		entry := head + "\n" + theme.DimmedStyle.Render(row.Meta)
		if i == cursor {
			b.WriteString(theme.SelectedItemStyle.Render(entry))
		} else {
			b.WriteString(theme.ListItemStyle.Render(entry))
		}
		b.WriteString("\n")

		if i == cursor && m.expanded && row.Detail != "" {
			b.WriteString(theme.DetailPanelStyle.Width(m.width - 6).Render(row.Detail))
			b.WriteString("\n")
		}
	}
	return b.String()
}

// SetSize updates the page dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func formatDue(t time.Time) string {
	if t.IsZero() {
		return "no due date"
	}
	return "due " + t.Local().Format("Mon Jan 2 15:04")
}

func courseRows(cs []model.Course) []Row {
	rows := make([]Row, 0, len(cs))
	for _, c := range cs {
		meta := strings.Join(nonEmpty(c.Category, c.Level), " · ")
		status := ""
		if !c.Published {
			status = "draft"
		}
		rows = append(rows, Row{
			ID: c.ID, Title: c.Title, Meta: meta, Status: status, Detail: c.Description,
		})
	}
	return rows
}

func liveClassRows(lcs []model.LiveClass) []Row {
	rows := make([]Row, 0, len(lcs))
	for _, lc := range lcs {
		meta := lc.ScheduledAt.Local().Format("Mon Jan 2 15:04")
		if lc.DurationMinutes > 0 {
			meta += fmt.Sprintf(" · %d min", lc.DurationMinutes)
		}
		detail := lc.Description
		if lc.MeetingURL != "" {
			detail = strings.TrimSpace(detail + "\n\nJoin: " + lc.MeetingURL)
		}
		rows = append(rows, Row{
			ID: lc.ID, Title: lc.Title, Meta: meta, Status: lc.Status, Detail: detail,
		})
	}
	return rows
}

func testRows(ts []model.Test) []Row {
	rows := make([]Row, 0, len(ts))
	for _, t := range ts {
		meta := formatDue(t.DueDate)
		if t.DurationMinutes > 0 {
			meta += fmt.Sprintf(" · %d min", t.DurationMinutes)
		}
		if t.TotalMarks > 0 {
			meta += fmt.Sprintf(" · %d marks", t.TotalMarks)
		}
		rows = append(rows, Row{ID: t.ID, Title: t.Title, Meta: meta, Detail: t.Description})
	}
	return rows
}

func assignmentRows(as []model.Assignment) []Row {
	rows := make([]Row, 0, len(as))
	for _, a := range as {
		meta := formatDue(a.DueDate)
		if a.MaxScore > 0 {
			meta += fmt.Sprintf(" · max %d", a.MaxScore)
		}
		rows = append(rows, Row{ID: a.ID, Title: a.Title, Meta: meta, Detail: a.Description})
	}
	return rows
}

func nonEmpty(ss ...string) []string {
	var out []string
	for _, s := range ss {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
