package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/classroom/internal/theme"
)

// Layout manages the multi-panel terminal layout dimensions.
type Layout struct {
	Width           int
	Height          int
	HeaderHeight    int
	StatusBarHeight int
}

// NewLayout creates a Layout with the given terminal dimensions.
// HeaderHeight and StatusBarHeight default to 1.
func NewLayout(width, height int) Layout {
	return Layout{
		Width:           width,
		Height:          height,
		HeaderHeight:    1,
		StatusBarHeight: 1,
	}
}

// ContentWidth returns the full available width.
func (l Layout) ContentWidth() int {
	return l.Width
}

// ContentHeight returns the height available for the main content area,
// accounting for the header and status bar.
func (l Layout) ContentHeight() int {
	h := l.Height - l.HeaderHeight - l.StatusBarHeight
	if h < 0 {
		return 0
	}
	return h
}

// RenderHeader renders the top header bar: title and page tabs on the
// left, the already styled bell segment on the right.
func (l Layout) RenderHeader(title, tabs, bell string) string {
	left := theme.HeaderStyle.Render(title)
	if tabs != "" {
		left = lipgloss.JoinHorizontal(lipgloss.Top, left, " ", tabs)
	}

	gap := l.Width - lipgloss.Width(left) - lipgloss.Width(bell)
	if gap < 0 {
		gap = 0
	}

	filler := lipgloss.NewStyle().Width(gap).Render("")

	return lipgloss.JoinHorizontal(lipgloss.Top, left, filler, bell)
}

// RenderStatusBar renders the bottom status bar. A non-empty errMsg
// replaces the keyboard hints.
func (l Layout) RenderStatusBar(hints, errMsg string) string {
	style := theme.StatusBarStyle
	text := hints
	if errMsg != "" {
		style = theme.ErrorBarStyle
		text = errMsg
	}

	return style.Width(l.Width).MaxWidth(l.Width).Render(text)
}

// RenderWithFrame composes a full terminal view by vertically joining
// the header, content area, and status bar.
func (l Layout) RenderWithFrame(
	header string,
	content string,
	statusBar string,
) string {
	body := lipgloss.NewStyle().
		Height(l.ContentHeight()).
		MaxHeight(l.ContentHeight()).
		Render(content)

	return lipgloss.JoinVertical(
		lipgloss.Left,
		header,
		body,
		statusBar,
	)
}

// WithPanel hangs panel from the top right of content, the way a
// dropdown opens under the header. Content is clipped to the space left.
func (l Layout) WithPanel(content, panel string) string {
	w := l.Width - lipgloss.Width(panel)
	if w < 0 {
		w = 0
	}
	left := lipgloss.NewStyle().Width(w).MaxWidth(w).Render(content)
	return lipgloss.JoinHorizontal(lipgloss.Top, left, panel)
}
