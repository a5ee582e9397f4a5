// Package setup is the backend configuration form. It writes the YAML
// config, keeps the anon key in the keyring and tests the connection
// before saving.
package setup

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/classroom/internal/credential"
	"github.com/nhle/classroom/internal/model"
	"github.com/nhle/classroom/internal/theme"
)

const probeTimeout = 15 * time.Second

// Mode represents the current state of the setup view.
type Mode int

const (
	ModeForm       Mode = iota // Editing the form
	ModeValidating             // Testing connection
	ModeResult                 // Showing a failed test
)

// Probe checks that a backend configuration is reachable.
type Probe func(ctx context.Context, cfg model.BackendConfig) error

// SavedMsg signals the configuration was tested and written.
type SavedMsg struct {
	Config *model.AppConfig
}

// DoneMsg signals the setup view should close without saving.
type DoneMsg struct{}

// resultMsg carries the outcome of the probe-and-save command.
type resultMsg struct {
	cfg *model.AppConfig
	err error
}

// fields holds the values huh binds to.
type fields struct {
	driver  string
	url     string
	anonKey string
	dsn     string
	userID  string
	pollSec string
}

// Model is the Bubble Tea model for the setup view.
type Model struct {
	mode  Mode
	form  *huh.Form
	in    *fields
	base  model.AppConfig
	path  string
	creds credential.Store
	probe Probe

	spinner spinner.Model
	err     error

	width, height int
}

// New creates the setup view pre-filled from cfg. The result is saved
// to path; probe may be nil to skip the connection test.
func New(cfg *model.AppConfig, path string, creds credential.Store, probe Probe, width, height int) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := Model{
		mode:  ModeForm,
		base:  *cfg,
		path:  path,
		creds: creds,
		probe: probe,
		in: &fields{
			driver:  cfg.Backend.Driver,
			url:     cfg.Backend.URL,
			dsn:     cfg.Backend.DSN,
			userID:  cfg.Backend.UserID,
			pollSec: strconv.Itoa(cfg.Sync.NotificationPollSec),
		},
		spinner: sp,
		width:   width,
		height:  height,
	}
	if m.in.driver == "" {
		m.in.driver = model.DriverREST
	}
	m.form = m.buildForm()
	return m
}

// Init starts the form.
func (m Model) Init() tea.Cmd {
	return m.form.Init()
}

// Mode returns the current state.
func (m Model) Mode() Mode {
	return m.mode
}

func (m *Model) buildForm() *huh.Form {
	in := m.in
	return huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Backend").
				Description("Where notifications and messages live").
				Options(
					huh.NewOption("Hosted backend (REST)", model.DriverREST),
					huh.NewOption("SQLite database", model.DriverSQLite),
					huh.NewOption("PostgreSQL database", model.DriverPostgres),
				).
				Value(&in.driver),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Project URL").
				Placeholder("https://xyzcompany.supabase.co").
				Value(&in.url).
				Validate(validateURL),
			huh.NewInput().
				Title("Anon Key").
				Description("Stored in the system keyring, never in the config file").
				EchoMode(huh.EchoModePassword).
				Value(&in.anonKey),
		).WithHideFunc(func() bool { return in.driver != model.DriverREST }),
		huh.NewGroup(
			huh.NewInput().
				Title("DSN").
				Description("File path for SQLite, connection string for PostgreSQL").
				Value(&in.dsn).
				Validate(validateRequired("DSN")),
			huh.NewInput().
				Title("User ID").
				Description("Whose notifications to show").
				Value(&in.userID),
		).WithHideFunc(func() bool { return in.driver == model.DriverREST }),
		huh.NewGroup(
			huh.NewInput().
				Title("Notification poll interval (seconds)").
				Value(&in.pollSec).
				Validate(validatePositive),
		),
	).WithWidth(m.formWidth())
}

// Config returns the configuration described by the form.
func (m Model) Config() *model.AppConfig {
	cfg := m.base
	cfg.Backend.Driver = m.in.driver
	if m.in.driver == model.DriverREST {
		cfg.Backend.URL = strings.TrimSpace(m.in.url)
		cfg.Backend.DSN = ""
		if k := strings.TrimSpace(m.in.anonKey); k != "" {
			cfg.Backend.AnonKey = k
		}
	} else {
		cfg.Backend.DSN = strings.TrimSpace(m.in.dsn)
		cfg.Backend.UserID = strings.TrimSpace(m.in.userID)
	}
	if n, err := strconv.Atoi(strings.TrimSpace(m.in.pollSec)); err == nil {
		cfg.Sync.NotificationPollSec = n
	}
	return &cfg
}

// Update handles messages and dispatches based on current mode.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case resultMsg:
		if msg.err != nil {
			m.err = msg.err
			m.mode = ModeResult
			return m, nil
		}
		cfg := msg.cfg
		return m, func() tea.Msg { return SavedMsg{Config: cfg} }

	case spinner.TickMsg:
		if m.mode == ModeValidating {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil

	case tea.KeyMsg:
		switch m.mode {
		case ModeValidating:
			return m, nil
		case ModeResult:
			return m.handleResultKeys(msg)
		}
	}

	if m.mode != ModeForm {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State == huh.StateCompleted {
		return m.submit()
	}
	if m.form.State == huh.StateAborted {
		return m, func() tea.Msg { return DoneMsg{} }
	}
	return m, cmd
}

func (m Model) handleResultKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "r":
		return m.submit()
	case "enter", "e":
		m.mode = ModeForm
		m.err = nil
		m.form = m.buildForm()
		return m, m.form.Init()
	case "esc":
		return m, func() tea.Msg { return DoneMsg{} }
	}
	return m, nil
}

func (m Model) submit() (Model, tea.Cmd) {
	cfg := m.Config()
	if err := model.ValidateConfig(cfg); err != nil {
		m.err = fmt.Errorf("invalid configuration: %w", err)
		m.mode = ModeResult
		return m, nil
	}

	m.mode = ModeValidating
	return m, tea.Batch(m.spinner.Tick, m.probeAndSave(cfg))
}

// probeAndSave tests the connection, then stores the anon key and
// writes the config file.
func (m Model) probeAndSave(cfg *model.AppConfig) tea.Cmd {
	probe, creds, path := m.probe, m.creds, m.path
	return func() tea.Msg {
		if probe != nil {
			ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
			err := probe(ctx, cfg.Backend)
			cancel()
			if err != nil {
				return resultMsg{err: fmt.Errorf("connection failed: %w", err)}
			}
		}

		if cfg.Backend.Driver == model.DriverREST && cfg.Backend.AnonKey != "" && creds != nil {
			if err := creds.Set(credential.KeyAnonKey, cfg.Backend.AnonKey); err != nil {
				return resultMsg{err: fmt.Errorf("saving anon key: %w", err)}
			}
		}

		if err := model.SaveConfig(path, cfg); err != nil {
			return resultMsg{err: err}
		}
		return resultMsg{cfg: cfg}
	}
}

// View renders the setup UI based on the current mode.
func (m Model) View() string {
	style := lipgloss.NewStyle().
		Padding(1, 2).
		Width(m.width).
		Height(m.height)

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)
	title := titleStyle.Render("Backend Setup")

	switch m.mode {
	case ModeValidating:
		return style.Render(title + "\n" + m.spinner.View() + " Testing connection...")

	case ModeResult:
		errStyle := lipgloss.NewStyle().
			Bold(true).
			Foreground(theme.ColorRed)
		content := errStyle.Render("Setup failed") + "\n\n" +
			m.err.Error() + "\n\n" +
			lipgloss.NewStyle().Foreground(theme.ColorGray).
				Render("r retry | e edit | esc cancel")
		return style.Render(title + "\n" + content)
	}

	return style.Render(title + "\n" + m.form.View())
}

// SetSize updates the view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func (m Model) formWidth() int {
	w := m.width - 4
	if w < 40 {
		w = 40
	}
	if w > 100 {
		w = 100
	}
	return w
}

// --- Validators ---

func validateRequired(fieldName string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
		return nil
	}
}

func validateURL(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("URL is required")
	}
	parsed, err := url.Parse(s)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("URL must include scheme and host (e.g., https://example.com)")
	}
	return nil
}

func validatePositive(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		return fmt.Errorf("must be a whole number of seconds, at least 1")
	}
	return nil
}
