package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/classroom/internal/credential"
	"github.com/nhle/classroom/internal/gateway"
	"github.com/nhle/classroom/internal/keys"
	"github.com/nhle/classroom/internal/logging"
	"github.com/nhle/classroom/internal/model"
	appsync "github.com/nhle/classroom/internal/sync"
	"github.com/nhle/classroom/internal/theme"
	"github.com/nhle/classroom/internal/ui"
	"github.com/nhle/classroom/internal/ui/bell"
	"github.com/nhle/classroom/internal/ui/catalog"
	"github.com/nhle/classroom/internal/ui/command"
	helpview "github.com/nhle/classroom/internal/ui/help"
	"github.com/nhle/classroom/internal/ui/login"
	"github.com/nhle/classroom/internal/ui/messages"
	"github.com/nhle/classroom/internal/ui/notifications"
	"github.com/nhle/classroom/internal/ui/setup"
)

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewNotifications ViewState = iota
	ViewMessages
	ViewCatalog
	ViewHelp
	ViewCommand
	ViewSetup
	ViewLogin
)

// pages are the views reachable from the header tabs.
var pages = []struct {
	view  ViewState
	title string
}{
	{ViewNotifications, "Notifications"},
	{ViewMessages, "Messages"},
	{ViewCatalog, "Catalog"},
}

// Sessions persists the signed-in session between runs.
type Sessions interface {
	Remember(s *model.Session) error
	Forget(ctx context.Context, s *model.Session) error
}

// Conn is the data surface the app runs against.
type Conn struct {
	Gateway  gateway.Gateway
	Auth     gateway.Authenticator
	Sessions Sessions
	Close    func() error
}

// Options configures the root model.
type Options struct {
	Conn Conn

	// Session is the restored session, nil to start at the login form.
	Session *model.Session

	Config     *model.AppConfig
	ConfigPath string
	Creds      credential.Store

	// Reopen rebuilds the connection after the setup form saves a new
	// backend. Nil keeps the current connection.
	Reopen func(ctx context.Context, cfg *model.AppConfig) (Conn, error)

	// Probe tests a backend from the setup form. Nil skips the test.
	Probe setup.Probe
}

// Model is the root Bubble Tea model that manages view routing, layout
// and the two sync clients of the signed-in user.
type Model struct {
	currentView  ViewState
	previousView ViewState
	layout       ui.Layout
	keys         *keys.KeyMap

	opts    Options
	conn    Conn
	cfg     *model.AppConfig
	session *model.Session

	notifSync *appsync.NotificationSync
	msgSync   *appsync.MessageSync

	// generation increments whenever the sync clients are replaced, so
	// updates from a previous session are recognised and dropped.
	generation int
	refreshing bool

	bell              bell.Model
	notificationsView notifications.Model
	messagesView      messages.Model
	catalogView       catalog.Model
	helpView          helpview.Model
	commandView       command.Model
	setupView         setup.Model
	loginView         login.Model

	ready  bool
	errMsg string
}

// New creates the root model. With a session the sync clients are
// created here and started by Init.
func New(opts Options) Model {
	k := keys.DefaultKeyMap()
	cfg := opts.Config
	if cfg == nil {
		cfg = &model.AppConfig{}
	}

	m := Model{
		currentView:       ViewNotifications,
		previousView:      ViewNotifications,
		layout:            ui.NewLayout(80, 24),
		keys:              k,
		opts:              opts,
		conn:              opts.Conn,
		cfg:               cfg,
		bell:              bell.New(k),
		notificationsView: notifications.New(k, 80, 22),
		messagesView:      messages.New(k, "", 80, 22),
		catalogView:       catalog.New(opts.Conn.Gateway, k, 80, 22),
		helpView:          helpview.New(k, 80, 22),
		commandView:       command.New(80, 22),
		setupView:         setup.New(cfg, opts.ConfigPath, opts.Creds, opts.Probe, 80, 22),
	}

	if opts.Session == nil {
		m.currentView = ViewLogin
		m.loginView = login.New(opts.Conn.Auth, "", 80, 22)
	} else {
		m.useSession(opts.Session)
	}
	return m
}

// Init starts the sync clients, or the login form when nobody is
// signed in.
func (m Model) Init() tea.Cmd {
	if m.session == nil {
		return m.loginView.Init()
	}
	return tea.Batch(m.startSyncs(), m.catalogView.Load(), m.loadStudents())
}

// useSession replaces the sync clients with new ones for s.
func (m *Model) useSession(s *model.Session) {
	m.stopSyncs()
	m.generation++
	m.session = s

	m.notifSync = appsync.NewNotificationSync(m.conn.Gateway, s.User.ID, appsync.NotificationOptions{
		Interval: pollInterval(m.cfg.Sync.NotificationPollSec),
		Limit:    m.cfg.Sync.NotificationLimit,
	})
	m.msgSync = appsync.NewMessageSync(m.conn.Gateway, s.User.ID, pollInterval(m.cfg.Sync.MessagePollSec))

	w, h := m.layout.ContentWidth(), m.layout.ContentHeight()
	m.bell = bell.New(m.keys)
	m.bell.SetSize(w, h)
	m.notificationsView = notifications.New(m.keys, w, h)
	m.messagesView = messages.New(m.keys, s.User.ID, w, h)
	m.catalogView = catalog.New(m.conn.Gateway, m.keys, w, h)
	m.helpView.SetSession(m.sessionLine())

	logging.Info().
		Str("user_id", s.User.ID).
		Str("mode", string(m.conn.Gateway.Mode())).
		Msg("session started")
}

// startSyncs starts polling and waits for the first updates.
func (m Model) startSyncs() tea.Cmd {
	m.notifSync.Start()
	m.msgSync.Start()
	return tea.Batch(m.waitNotifications(), m.waitMessages())
}

// stopSyncs cancels in-flight polls and waits for both loops to exit.
func (m *Model) stopSyncs() {
	if m.notifSync != nil {
		m.notifSync.Stop()
	}
	if m.msgSync != nil {
		m.msgSync.Stop()
	}
}

func (m Model) sessionLine() string {
	if m.session == nil {
		return ""
	}
	who := m.session.User.Email
	if who == "" {
		who = m.session.User.ID
	}
	return fmt.Sprintf("Signed in as %s (%s backend)", who, m.conn.Gateway.Mode())
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		w, h := m.layout.ContentWidth(), m.layout.ContentHeight()
		m.bell.SetSize(w, h)
		m.notificationsView.SetSize(w, h)
		m.messagesView.SetSize(w, h)
		m.catalogView.SetSize(w, h)
		m.helpView.SetSize(w, h)
		m.commandView.SetSize(w, h)
		m.setupView.SetSize(w, h)
		m.loginView.SetSize(w, h)
		// Forward to active view so huh forms can calculate their layout.
		return m.updateActiveView(msg)

	case notificationsUpdateMsg:
		if msg.generation != m.generation {
			return m, nil
		}
		return m.handleNotifications(msg.NotificationsMsg)

	case messagesUpdateMsg:
		if msg.generation != m.generation {
			return m, nil
		}
		snap := msg.Snapshot
		m.messagesView.SetConversations(snap.Conversations)
		if msg.Err != nil {
			if gateway.IsAuthError(msg.Err) {
				cmd := tea.Batch(m.waitMessages(), m.refreshSession())
				return m, cmd
			}
			m.errMsg = "Could not refresh messages: " + msg.Err.Error()
		}
		return m, m.waitMessages()

	case studentsLoadedMsg:
		if msg.err != nil {
			logging.Warn().Err(msg.err).Msg("loading students")
			return m, nil
		}
		m.messagesView.SetStudents(msg.students)
		return m, nil

	case catalog.LoadedMsg:
		var cmd tea.Cmd
		m.catalogView, cmd = m.catalogView.Update(msg)
		if msg.Err != nil {
			m.errMsg = fmt.Sprintf("Could not load %s: %v", strings.ToLower(msg.Section.String()), msg.Err)
		}
		return m, cmd

	case spinner.TickMsg:
		// Each spinner ignores ticks carrying another spinner's id.
		var c1, c2, c3 tea.Cmd
		m.catalogView, c1 = m.catalogView.Update(msg)
		m.loginView, c2 = m.loginView.Update(msg)
		m.setupView, c3 = m.setupView.Update(msg)
		return m, tea.Batch(c1, c2, c3)

	case bell.OpenNotificationMsg:
		cmd := m.openNotification(msg.Notification)
		return m, cmd

	case bell.MarkAllReadMsg:
		return m, m.markAllRead()

	case bell.ViewAllMsg:
		m.switchTo(ViewNotifications)
		return m, nil

	case writeDoneMsg:
		if msg.err != nil {
			m.errMsg = fmt.Sprintf("%s failed: %v", msg.op, msg.err)
			if gateway.IsAuthError(msg.err) {
				cmd := m.refreshSession()
				return m, cmd
			}
		}
		return m, nil

	case messages.SendMsg:
		return m, m.sendMessage(msg.PeerID, msg.Body)

	case messages.OpenConversationMsg:
		if m.msgSync == nil {
			return m, nil
		}
		if conv, ok := m.msgSync.Snapshot().Conversation(msg.PeerID); ok && conv.Unread > 0 {
			return m, m.markConversationRead(msg.PeerID)
		}
		return m, nil

	case command.CommandMsg:
		m.currentView = m.previousView
		cmd := m.executeCommand(msg)
		return m, cmd

	case login.LoggedInMsg:
		return m.signedIn(msg.Session)

	case login.CancelledMsg:
		// Without a session, leaving the login form opens the backend setup.
		if m.session == nil {
			cmd := m.openSetup()
			return m, cmd
		}
		m.currentView = m.previousView
		return m, nil

	case setup.SavedMsg:
		m.cfg = msg.Config
		m.errMsg = ""
		logging.Info().Str("driver", msg.Config.Backend.Driver).Msg("backend configuration saved")
		if m.opts.Reopen == nil {
			m.currentView = m.previousView
			return m, nil
		}
		return m, m.reopen(msg.Config)

	case setup.DoneMsg:
		if m.session == nil {
			cmd := m.openLogin()
			return m, cmd
		}
		m.currentView = m.previousView
		return m, nil

	case reopenedMsg:
		if msg.err != nil {
			m.errMsg = "Could not open backend: " + msg.err.Error()
			m.currentView = ViewSetup
			return m, nil
		}
		return m.connected(msg.conn)

	case sessionRefreshedMsg:
		m.refreshing = false
		if msg.err != nil {
			logging.Warn().Err(msg.err).Msg("session could not be refreshed")
			return m.signedOut("Session expired, please sign in again.")
		}
		if m.session != nil && msg.session.User.ID == m.session.User.ID {
			m.session = msg.session
			m.remember(msg.session)
			return m, nil
		}
		return m.signedIn(msg.session)

	case loggedOutMsg:
		if msg.err != nil {
			logging.Warn().Err(msg.err).Msg("sign out")
		}
		return m.signedOut("")

	case tea.KeyMsg:
		if mdl, cmd, handled := m.handleKey(msg); handled {
			return mdl, cmd
		}
	}

	// Delegate to active sub-view
	return m.updateActiveView(msg)
}

// handleKey processes global keys. It reports false when the key should
// go to the active view instead.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd, bool) {
	if msg.String() == "ctrl+c" {
		return m, m.quit(), true
	}

	// Forms and text inputs own the keyboard.
	switch m.currentView {
	case ViewLogin, ViewSetup:
		return m, nil, false
	case ViewCommand:
		if key.Matches(msg, m.keys.Back) {
			m.currentView = m.previousView
			return m, nil, true
		}
		return m, nil, false
	case ViewMessages:
		if m.messagesView.Composing() {
			return m, nil, false
		}
	}

	if m.bell.IsOpen() {
		var cmd tea.Cmd
		m.bell, cmd = m.bell.Update(msg)
		return m, cmd, true
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, m.quit(), true

	case key.Matches(msg, m.keys.Help):
		if m.currentView == ViewHelp {
			m.currentView = m.previousView
			return m, nil, true
		}
		m.previousView = m.currentView
		m.currentView = ViewHelp
		return m, nil, true

	case key.Matches(msg, m.keys.Back):
		if m.currentView == ViewHelp {
			m.currentView = m.previousView
			return m, nil, true
		}
		if m.errMsg != "" {
			m.errMsg = ""
			return m, nil, true
		}

	case key.Matches(msg, m.keys.Command):
		m.previousView = m.currentView
		m.currentView = ViewCommand
		return m, m.commandView.Focus(), true

	case key.Matches(msg, m.keys.Bell):
		m.bell.Toggle()
		return m, nil, true

	case key.Matches(msg, m.keys.Notifications):
		m.switchTo(ViewNotifications)
		return m, nil, true

	case key.Matches(msg, m.keys.Messages):
		m.switchTo(ViewMessages)
		return m, nil, true

	case key.Matches(msg, m.keys.Catalog):
		m.switchTo(ViewCatalog)
		return m, nil, true

	case key.Matches(msg, m.keys.Refresh):
		return m, m.refresh(), true

	case key.Matches(msg, m.keys.MarkAllRead):
		return m, m.markAllRead(), true

	case key.Matches(msg, m.keys.Setup):
		cmd := m.openSetup()
		return m, cmd, true
	}

	return m, nil, false
}

// updateActiveView dispatches the message to the currently active view.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.currentView {
	case ViewNotifications:
		m.notificationsView, cmd = m.notificationsView.Update(msg)
	case ViewMessages:
		m.messagesView, cmd = m.messagesView.Update(msg)
	case ViewCatalog:
		m.catalogView, cmd = m.catalogView.Update(msg)
	case ViewHelp:
		m.helpView, cmd = m.helpView.Update(msg)
	case ViewCommand:
		m.commandView, cmd = m.commandView.Update(msg)
	case ViewSetup:
		m.setupView, cmd = m.setupView.Update(msg)
	case ViewLogin:
		m.loginView, cmd = m.loginView.Update(msg)
	}

	return m, cmd
}

func (m Model) handleNotifications(msg appsync.NotificationsMsg) (tea.Model, tea.Cmd) {
	snap := msg.Snapshot
	m.bell.SetNotifications(snap.Notifications, snap.Unread)
	listCmd := m.notificationsView.SetNotifications(snap.Notifications, snap.Unread)

	if msg.Err != nil {
		if msg.AuthExpired() {
			cmd := tea.Batch(listCmd, m.waitNotifications(), m.refreshSession())
			return m, cmd
		}
		// Stale data stays on screen.
		m.errMsg = "Could not refresh notifications: " + msg.Err.Error()
	} else if strings.HasPrefix(m.errMsg, "Could not refresh notifications") {
		m.errMsg = ""
	}
	return m, tea.Batch(listCmd, m.waitNotifications())
}

// switchTo shows one of the header pages.
func (m *Model) switchTo(v ViewState) {
	m.bell.Close()
	m.currentView = v
	m.previousView = v
}

// openNotification marks n read when it is unread, then follows its
// link.
func (m *Model) openNotification(n model.Notification) tea.Cmd {
	var cmds []tea.Cmd
	if !n.Read {
		cmds = append(cmds, m.markRead(n.ID))
	}
	cmds = append(cmds, m.navigate(n.Link, n.ID))
	return tea.Batch(cmds...)
}

// navigate routes a deep link to its page. Links without a page of
// their own land on the notifications list, focused on notificationID.
func (m *Model) navigate(link, notificationID string) tea.Cmd {
	r := model.ParseLink(link)
	switch r.Kind {
	case model.RouteMessages:
		m.switchTo(ViewMessages)
		if r.ID != "" {
			return m.messagesView.Open(r.ID)
		}
		return nil

	case model.RouteAssignment, model.RouteTest, model.RouteLiveClass, model.RouteCourse:
		m.catalogView.Focus(r)
		m.switchTo(ViewCatalog)
		return nil

	default:
		m.switchTo(ViewNotifications)
		if notificationID != "" {
			m.notificationsView.Focus(notificationID)
		}
		return nil
	}
}

func (m *Model) openSetup() tea.Cmd {
	m.bell.Close()
	if m.currentView != ViewSetup && m.currentView != ViewHelp && m.currentView != ViewCommand {
		m.previousView = m.currentView
	}
	m.currentView = ViewSetup
	m.setupView = setup.New(m.cfg, m.opts.ConfigPath, m.opts.Creds, m.opts.Probe,
		m.layout.ContentWidth(), m.layout.ContentHeight())
	return m.setupView.Init()
}

func (m *Model) openLogin() tea.Cmd {
	email := ""
	if m.session != nil {
		email = m.session.User.Email
	}
	m.bell.Close()
	m.currentView = ViewLogin
	m.loginView = login.New(m.conn.Auth, email, m.layout.ContentWidth(), m.layout.ContentHeight())
	return m.loginView.Init()
}

// signedIn starts a session for s and shows the notifications.
func (m Model) signedIn(s *model.Session) (tea.Model, tea.Cmd) {
	m.remember(s)
	m.errMsg = ""
	m.useSession(s)
	m.currentView = ViewNotifications
	m.previousView = ViewNotifications
	return m, tea.Batch(m.startSyncs(), m.catalogView.Load(), m.loadStudents())
}

// signedOut stops syncing and returns to the login form.
func (m Model) signedOut(reason string) (tea.Model, tea.Cmd) {
	m.stopSyncs()
	m.generation++
	m.notifSync = nil
	m.msgSync = nil
	m.session = nil
	m.bell = bell.New(m.keys)
	m.errMsg = reason
	cmd := m.openLogin()
	m.previousView = ViewLogin
	return m, cmd
}

// connected swaps in a new backend connection.
func (m Model) connected(c Conn) (tea.Model, tea.Cmd) {
	m.stopSyncs()
	m.generation++
	m.notifSync = nil
	m.msgSync = nil
	if m.conn.Close != nil {
		if err := m.conn.Close(); err != nil {
			logging.Warn().Err(err).Msg("closing previous backend")
		}
	}
	m.conn = c
	m.session = nil
	m.bell = bell.New(m.keys)
	m.bell.SetSize(m.layout.ContentWidth(), m.layout.ContentHeight())

	// Only the hosted backend has real accounts; the others hand out a
	// session for the configured identity.
	if c.Gateway.Mode() == gateway.ModeRemote {
		cmd := m.openLogin()
		return m, cmd
	}
	m.refreshing = true
	return m, m.restoreSession("")
}

func (m Model) remember(s *model.Session) {
	if m.conn.Sessions == nil {
		return
	}
	if err := m.conn.Sessions.Remember(s); err != nil {
		logging.Warn().Err(err).Msg("storing session")
	}
}

// Close stops syncing and releases the backend connection. Call it on
// the final model once the program has exited.
func (m Model) Close() error {
	m.stopSyncs()
	if m.conn.Close == nil {
		return nil
	}
	return m.conn.Close()
}

// quit stops both sync clients before leaving.
func (m Model) quit() tea.Cmd {
	m.stopSyncs()
	return tea.Quit
}

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	header := m.layout.RenderHeader(m.title(), m.tabs(), m.bell.BadgeView())
	content := m.renderContent()
	if m.bell.IsOpen() {
		content = m.layout.WithPanel(content, m.bell.View())
	}
	statusBar := m.layout.RenderStatusBar(m.keyHints(), m.errMsg)

	return m.layout.RenderWithFrame(header, content, statusBar)
}

func (m Model) title() string {
	if m.conn.Gateway != nil && m.conn.Gateway.Mode() == gateway.ModeDemo {
		return "Classroom (demo)"
	}
	return "Classroom"
}

func (m Model) tabs() string {
	if m.session == nil {
		return ""
	}
	var unreadMessages int
	if m.msgSync != nil {
		unreadMessages = m.msgSync.Snapshot().Unread
	}

	out := make([]string, 0, len(pages))
	for i, p := range pages {
		label := fmt.Sprintf("%d %s", i+1, p.title)
		if p.view == ViewMessages && unreadMessages > 0 {
			label += fmt.Sprintf(" (%d)", unreadMessages)
		}
		if p.view == m.currentView {
			out = append(out, theme.ActiveTabStyle.Render(label))
		} else {
			out = append(out, theme.TabStyle.Render(label))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, out...)
}

// renderContent returns the rendered string for the current active view.
func (m Model) renderContent() string {
	switch m.currentView {
	case ViewNotifications:
		return m.notificationsView.View()
	case ViewMessages:
		return m.messagesView.View()
	case ViewCatalog:
		return m.catalogView.View()
	case ViewHelp:
		return m.helpView.View()
	case ViewCommand:
		return m.commandView.View()
	case ViewSetup:
		return m.setupView.View()
	case ViewLogin:
		return m.loginView.View()
	default:
		return ""
	}
}

// keyHints returns keyboard shortcut hints for the status bar.
func (m Model) keyHints() string {
	if m.bell.IsOpen() {
		return "j/k move | enter open | A mark all read | v view all | esc close"
	}

	switch m.currentView {
	case ViewHelp:
		return "? close help | esc back"
	case ViewCommand:
		return "enter execute | tab complete | esc back"
	case ViewSetup:
		return "enter next | shift+tab back | esc cancel"
	case ViewLogin:
		return "enter next | esc backend setup | ctrl+c quit"
	case ViewMessages:
		if m.messagesView.Composing() {
			return "enter send | tab conversations | esc stop writing"
		}
		return "j/k move | enter open | c write | tab pane | b bell | q quit"
	case ViewCatalog:
		return "tab section | j/k move | enter details | r reload | b bell | q quit"
	default:
		return "tab filter | enter open | A mark all read | b bell | : command | ? help | q quit"
	}
}
