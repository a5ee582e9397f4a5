package command

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func TestParse(t *testing.T) {
	tests := []struct {
		line string
		want CommandMsg
	}{
		{"refresh", CommandMsg{Name: "refresh"}},
		{"  Quit ", CommandMsg{Name: "quit"}},
		{"ref", CommandMsg{Name: "refresh"}},
		{"open /tests/42", CommandMsg{Name: "open", Arg: "/tests/42"}},
		{"message   bob ", CommandMsg{Name: "message", Arg: "bob"}},
		{"me", CommandMsg{Name: "me"}},
		{"bogus", CommandMsg{Name: "bogus"}},
		{"l", CommandMsg{Name: "l"}},
		{"logo", CommandMsg{Name: "logout"}},
	}
	for _, tt := range tests {
		if got := Parse(tt.line); got != tt.want {
			t.Errorf("Parse(%q) = %+v, want %+v", tt.line, got, tt.want)
		}
	}
}

func TestEnterEmitsParsedCommand(t *testing.T) {
	m := New(80, 24)
	for _, r := range "read-all" {
		m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("enter produced no command")
	}
	if got := cmd(); got != (CommandMsg{Name: "read-all"}) {
		t.Errorf("emitted %#v", got)
	}
	if m.input.Value() != "" {
		t.Errorf("input not reset: %q", m.input.Value())
	}
}

func TestEnterOnEmptyInputIsNoop(t *testing.T) {
	m := New(80, 24)
	if _, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter}); cmd != nil {
		t.Errorf("empty enter emitted %#v", cmd())
	}
}
