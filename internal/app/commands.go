package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/classroom/internal/gateway"
	"github.com/nhle/classroom/internal/logging"
	"github.com/nhle/classroom/internal/model"
	appsync "github.com/nhle/classroom/internal/sync"
	"github.com/nhle/classroom/internal/ui/command"
	"github.com/nhle/classroom/internal/ui/notifications"
)

const (
	writeTimeout = 15 * time.Second
	authTimeout  = 30 * time.Second
)

// notificationsUpdateMsg tags a notification update with the session
// generation that produced it.
type notificationsUpdateMsg struct {
	generation int
	appsync.NotificationsMsg
}

// messagesUpdateMsg tags a message update with the session generation
// that produced it.
type messagesUpdateMsg struct {
	generation int
	appsync.MessagesMsg
}

type studentsLoadedMsg struct {
	students []model.Profile
	err      error
}

// writeDoneMsg reports the outcome of a write. Successful writes have
// already been published by the sync client.
type writeDoneMsg struct {
	op  string
	err error
}

type reopenedMsg struct {
	conn Conn
	err  error
}

type sessionRefreshedMsg struct {
	session *model.Session
	err     error
}

type loggedOutMsg struct {
	err error
}

// pollInterval converts a configured number of seconds. Zero leaves the
// choice to the sync client.
func pollInterval(sec int) time.Duration {
	if sec <= 0 {
		return 0
	}
	return time.Duration(sec) * time.Second
}

// waitNotifications waits for the next notification update. The command
// yields nil once the client has stopped.
func (m Model) waitNotifications() tea.Cmd {
	if m.notifSync == nil {
		return nil
	}
	wait, gen := m.notifSync.WaitForUpdate(), m.generation
	return func() tea.Msg {
		msg, ok := wait().(appsync.NotificationsMsg)
		if !ok {
			return nil
		}
		return notificationsUpdateMsg{generation: gen, NotificationsMsg: msg}
	}
}

// waitMessages waits for the next message update.
func (m Model) waitMessages() tea.Cmd {
	if m.msgSync == nil {
		return nil
	}
	wait, gen := m.msgSync.WaitForUpdate(), m.generation
	return func() tea.Msg {
		msg, ok := wait().(appsync.MessagesMsg)
		if !ok {
			return nil
		}
		return messagesUpdateMsg{generation: gen, MessagesMsg: msg}
	}
}

// loadStudents fetches the profiles offered as message recipients.
func (m Model) loadStudents() tea.Cmd {
	gw := m.conn.Gateway
	if gw == nil {
		return nil
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		students, err := gw.ListStudents(ctx)
		return studentsLoadedMsg{students: students, err: err}
	}
}

// write runs fn in the background and reports its outcome.
func write(op string, fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		ctx = logging.ContextWithNewCorrelationID(ctx)
		err := fn(ctx)
		if err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("op", op).Msg("write failed")
		}
		return writeDoneMsg{op: op, err: err}
	}
}

func (m Model) markRead(id string) tea.Cmd {
	s := m.notifSync
	if s == nil {
		return nil
	}
	return write("Mark read", func(ctx context.Context) error {
		return s.MarkRead(ctx, id)
	})
}

func (m Model) markAllRead() tea.Cmd {
	s := m.notifSync
	if s == nil || s.Unread() == 0 {
		return nil
	}
	return write("Mark all read", func(ctx context.Context) error {
		return s.MarkAllRead(ctx)
	})
}

func (m Model) sendMessage(peerID, body string) tea.Cmd {
	s := m.msgSync
	if s == nil {
		return nil
	}
	return write("Send", func(ctx context.Context) error {
		_, err := s.Send(ctx, []string{peerID}, "", body)
		return err
	})
}

func (m Model) markConversationRead(peerID string) tea.Cmd {
	s := m.msgSync
	if s == nil {
		return nil
	}
	return write("Mark conversation read", func(ctx context.Context) error {
		return s.MarkConversationRead(ctx, peerID)
	})
}

// refresh polls both clients now and reloads the catalogue.
func (m Model) refresh() tea.Cmd {
	if m.session == nil {
		return nil
	}
	m.notifSync.Refresh()
	m.msgSync.Refresh()
	return m.catalogView.Load()
}

// refreshSession exchanges the refresh token for a new session. At most
// one exchange runs at a time.
func (m *Model) refreshSession() tea.Cmd {
	if m.refreshing || m.session == nil {
		return nil
	}
	m.refreshing = true
	return m.restoreSession(m.session.RefreshToken)
}

func (m Model) restoreSession(token string) tea.Cmd {
	auth := m.conn.Auth
	remote := m.conn.Gateway != nil && m.conn.Gateway.Mode() == gateway.ModeRemote
	return func() tea.Msg {
		if remote && token == "" {
			return sessionRefreshedMsg{err: &gateway.AuthError{Message: "no refresh token"}}
		}
		ctx, cancel := context.WithTimeout(context.Background(), authTimeout)
		defer cancel()
		s, err := auth.Refresh(ctx, token)
		if err == nil && s == nil {
			err = errors.New("backend returned no session")
		}
		return sessionRefreshedMsg{session: s, err: err}
	}
}

// reopen connects to the backend described by cfg.
func (m Model) reopen(cfg *model.AppConfig) tea.Cmd {
	open := m.opts.Reopen
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), authTimeout)
		defer cancel()
		c, err := open(ctx, cfg)
		return reopenedMsg{conn: c, err: err}
	}
}

func (m Model) logout() tea.Cmd {
	sessions, auth, s := m.conn.Sessions, m.conn.Auth, m.session
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), authTimeout)
		defer cancel()
		if sessions != nil {
			return loggedOutMsg{err: sessions.Forget(ctx, s)}
		}
		return loggedOutMsg{err: auth.SignOut(ctx, s)}
	}
}

// executeCommand runs a command palette entry.
func (m *Model) executeCommand(cmd command.CommandMsg) tea.Cmd {
	m.errMsg = ""
	needsSession := cmd.Name != "setup" && cmd.Name != "login" && cmd.Name != "quit"
	if needsSession && m.session == nil {
		m.errMsg = "Sign in first"
		return nil
	}

	switch cmd.Name {
	case "notifications":
		m.switchTo(ViewNotifications)
		return m.notificationsView.SetFilter(notifications.FilterAll)

	case "unread":
		m.switchTo(ViewNotifications)
		return m.notificationsView.SetFilter(notifications.FilterUnread)

	case "messages":
		m.switchTo(ViewMessages)
		return nil

	case "message":
		if cmd.Arg == "" {
			m.errMsg = "Usage: message <user id>"
			return nil
		}
		open := m.messagesView.Open(cmd.Arg)
		if open == nil {
			m.errMsg = fmt.Sprintf("No student with id %s", cmd.Arg)
			return nil
		}
		m.switchTo(ViewMessages)
		return open

	case "catalog":
		m.switchTo(ViewCatalog)
		return nil

	case "open":
		if model.ParseLink(cmd.Arg).Kind == model.RouteNone {
			m.errMsg = fmt.Sprintf("Not a link: %q", cmd.Arg)
			return nil
		}
		return m.navigate(cmd.Arg, "")

	case "refresh":
		return m.refresh()

	case "read-all":
		return m.markAllRead()

	case "setup":
		return m.openSetup()

	case "login":
		return m.openLogin()

	case "logout":
		return m.logout()

	case "quit":
		return m.quit()

	default:
		m.errMsg = fmt.Sprintf("Unknown command: %s", cmd.Name)
		return nil
	}
}
