// Package login signs the user in with a password or an emailed
// one-time code.
package login

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/classroom/internal/gateway"
	"github.com/nhle/classroom/internal/model"
	"github.com/nhle/classroom/internal/theme"
)

const authTimeout = 30 * time.Second

// Sign-in methods.
const (
	MethodPassword = "password"
	MethodOTP      = "otp"
)

// Step is the current screen of the login flow.
type Step int

const (
	StepCredentials Step = iota
	StepCode
	StepWaiting
)

// LoggedInMsg is emitted once a session has been obtained.
type LoggedInMsg struct {
	Session *model.Session
}

// CancelledMsg is emitted when the user leaves the form.
type CancelledMsg struct{}

type signedInMsg struct {
	session *model.Session
	err     error
}

type codeSentMsg struct {
	err error
}

// fields holds the values huh binds to.
type fields struct {
	email    string
	method   string
	password string
	code     string
}

// Model is the login flow.
type Model struct {
	auth gateway.Authenticator
	step Step

	credForm *huh.Form
	codeForm *huh.Form

	// in outlives the value copies of Model that huh forms are bound to.
	in *fields

	spinner spinner.Model
	waitFor string
	errMsg  string

	width, height int
}

// New creates the login flow, pre-filling email when known.
func New(auth gateway.Authenticator, email string, width, height int) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := Model{
		auth:    auth,
		in:      &fields{email: email, method: MethodPassword},
		spinner: sp,
		width:   width,
		height:  height,
	}
	m.credForm = m.buildCredentialsForm()
	return m
}

// Init starts the credentials form.
func (m Model) Init() tea.Cmd {
	return m.credForm.Init()
}

// Step returns the current screen.
func (m Model) Step() Step {
	return m.step
}

// Err returns the last failure shown to the user.
func (m Model) Err() string {
	return m.errMsg
}

func (m *Model) buildCredentialsForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Email").
				Placeholder("you@example.com").
				Value(&m.in.email).
				Validate(validateEmail),
			huh.NewSelect[string]().
				Title("Sign in with").
				Options(
					huh.NewOption("Password", MethodPassword),
					huh.NewOption("One-time code sent by email", MethodOTP),
				).
				Value(&m.in.method),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Password").
				EchoMode(huh.EchoModePassword).
				Value(&m.in.password).
				Validate(validateRequired("Password")),
		).WithHideFunc(func() bool { return m.in.method != MethodPassword }),
	).WithWidth(m.formWidth())
}

func (m *Model) buildCodeForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Code").
				Description(fmt.Sprintf("Enter the code sent to %s", m.in.email)).
				Value(&m.in.code).
				Validate(validateRequired("Code")),
		),
	).WithWidth(m.formWidth())
}

// Update handles messages for the login flow.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case signedInMsg:
		if msg.err != nil {
			return m.fail(msg.err)
		}
		s := msg.session
		return m, func() tea.Msg { return LoggedInMsg{Session: s} }

	case codeSentMsg:
		if msg.err != nil {
			return m.fail(msg.err)
		}
		m.step = StepCode
		m.in.code = ""
		m.errMsg = ""
		m.codeForm = m.buildCodeForm()
		return m, m.codeForm.Init()

	case spinner.TickMsg:
		if m.step == StepWaiting {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil
	}

	switch m.step {
	case StepCredentials:
		return m.updateCredentials(msg)
	case StepCode:
		return m.updateCode(msg)
	}
	return m, nil
}

func (m Model) updateCredentials(msg tea.Msg) (Model, tea.Cmd) {
	mdl, cmd := m.credForm.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.credForm = f
	}

	if m.credForm.State == huh.StateCompleted {
		return m.submitCredentials()
	}
	if m.credForm.State == huh.StateAborted {
		return m, func() tea.Msg { return CancelledMsg{} }
	}
	return m, cmd
}

func (m Model) updateCode(msg tea.Msg) (Model, tea.Cmd) {
	mdl, cmd := m.codeForm.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.codeForm = f
	}

	if m.codeForm.State == huh.StateCompleted {
		return m.submitCode()
	}
	if m.codeForm.State == huh.StateAborted {
		return m, func() tea.Msg { return CancelledMsg{} }
	}
	return m, cmd
}

func (m Model) submitCredentials() (Model, tea.Cmd) {
	auth := m.auth
	email := strings.TrimSpace(m.in.email)
	m.step = StepWaiting

	if m.in.method == MethodOTP {
		m.waitFor = "Sending code..."
		return m, tea.Batch(m.spinner.Tick, func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), authTimeout)
			defer cancel()
			return codeSentMsg{err: auth.SendOTP(ctx, email)}
		})
	}

	password := m.in.password
	m.in.password = ""
	m.waitFor = "Signing in..."
	return m, tea.Batch(m.spinner.Tick, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), authTimeout)
		defer cancel()
		s, err := auth.SignIn(ctx, email, password)
		return signedInMsg{session: s, err: err}
	})
}

func (m Model) submitCode() (Model, tea.Cmd) {
	auth := m.auth
	email := strings.TrimSpace(m.in.email)
	code := strings.TrimSpace(m.in.code)
	m.step = StepWaiting
	m.waitFor = "Verifying code..."
	return m, tea.Batch(m.spinner.Tick, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), authTimeout)
		defer cancel()
		s, err := auth.VerifyOTP(ctx, email, code)
		return signedInMsg{session: s, err: err}
	})
}

// fail returns to the credentials form with err shown above it.
func (m Model) fail(err error) (Model, tea.Cmd) {
	m.errMsg = err.Error()
	if gateway.IsAuthError(err) {
		m.errMsg = "Sign in failed: " + err.Error()
	}
	m.step = StepCredentials
	m.in.password = ""
	m.credForm = m.buildCredentialsForm()
	return m, m.credForm.Init()
}

// View renders the current step.
func (m Model) View() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	var body string
	switch m.step {
	case StepCredentials:
		body = m.credForm.View()
	case StepCode:
		body = m.codeForm.View()
	case StepWaiting:
		body = m.spinner.View() + " " + m.waitFor
	}

	parts := []string{titleStyle.Render("Sign in")}
	if m.errMsg != "" {
		parts = append(parts, lipgloss.NewStyle().Foreground(theme.ColorRed).Render(m.errMsg), "")
	}
	parts = append(parts, body)

	return lipgloss.NewStyle().
		Padding(1, 2).
		Width(m.width).
		Height(m.height).
		Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

// SetSize updates the view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func (m Model) formWidth() int {
	return min(max(m.width-4, 40), 80)
}

func validateRequired(fieldName string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
		return nil
	}
}

func validateEmail(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("email is required")
	}
	if _, err := mail.ParseAddress(s); err != nil {
		return fmt.Errorf("invalid email address")
	}
	return nil
}
