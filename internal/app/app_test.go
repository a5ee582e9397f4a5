package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/classroom/internal/gateway"
	"github.com/nhle/classroom/internal/gateway/gatewaytest"
	"github.com/nhle/classroom/internal/model"
	appsync "github.com/nhle/classroom/internal/sync"
	"github.com/nhle/classroom/internal/ui/bell"
	"github.com/nhle/classroom/internal/ui/catalog"
	"github.com/nhle/classroom/internal/ui/command"
	"github.com/nhle/classroom/internal/ui/login"
	"github.com/nhle/classroom/internal/ui/messages"
	"github.com/nhle/classroom/internal/ui/notifications"
)

var student = model.User{ID: "u1", Email: "ada@example.com", Role: model.RoleStudent}

// expiringAuth refuses every refresh.
type expiringAuth struct {
	gateway.StaticAuth
}

func (expiringAuth) Refresh(context.Context, string) (*model.Session, error) {
	return nil, &gateway.AuthError{Message: "refresh token revoked"}
}

func seededFake() *gatewaytest.Fake {
	f := gatewaytest.NewFake()
	now := time.Now()
	f.AddNotification(model.Notification{
		ID: "n1", UserID: "u1", Type: model.NotificationType("test"), Title: "Algebra quiz",
		Link: "/tests/t1", CreatedAt: now.Add(-time.Minute),
	})
	f.AddNotification(model.Notification{
		ID: "n2", UserID: "u1", Type: model.NotificationType("announcement"), Title: "Welcome",
		CreatedAt: now.Add(-time.Hour),
	})
	f.Tests = []model.Test{{ID: "t1", Title: "Algebra quiz"}}
	f.Profiles = []model.Profile{{ID: "u2", Email: "bob@example.com", Role: model.RoleStudent}}
	return f
}

func newSignedIn(t *testing.T, gw gateway.Gateway, auth gateway.Authenticator) Model {
	t.Helper()
	m := New(Options{
		Conn:    Conn{Gateway: gw, Auth: auth},
		Session: &model.Session{AccessToken: "tok", User: student},
	})
	t.Cleanup(m.stopSyncs)
	mdl, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return mdl.(Model)
}

// collect runs cmd and every command of nested batches concurrently,
// returning the messages produced before the commands go quiet. Blocking
// waits on the sync feeds simply produce nothing.
func collect(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	out := make(chan tea.Msg, 32)
	var run func(c tea.Cmd)
	run = func(c tea.Cmd) {
		go func() {
			msg := c()
			if batch, ok := msg.(tea.BatchMsg); ok {
				for _, sub := range batch {
					if sub != nil {
						run(sub)
					}
				}
				return
			}
			if msg != nil {
				out <- msg
			}
		}()
	}
	run(cmd)

	var msgs []tea.Msg
	for {
		select {
		case msg := <-out:
			msgs = append(msgs, msg)
		case <-time.After(150 * time.Millisecond):
			return msgs
		}
	}
}

// feed applies every message of type T produced by cmd.
func feed[T any](t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	for _, msg := range collect(cmd) {
		if _, ok := msg.(T); ok {
			mdl, _ := m.Update(msg)
			m = mdl.(Model)
		}
	}
	return m
}

// pollNotifications polls once and applies the published update.
func pollNotifications(t *testing.T, m Model) Model {
	t.Helper()
	_ = m.notifSync.Poll(context.Background())
	return feed[notificationsUpdateMsg](t, m, m.waitNotifications())
}

func TestOpeningUnreadNotificationMarksItAndNavigates(t *testing.T) {
	m := newSignedIn(t, seededFake(), gateway.StaticAuth{User: student})
	m = pollNotifications(t, m)
	if m.bell.Unread() != 2 {
		t.Fatalf("badge = %d, want 2", m.bell.Unread())
	}

	n := m.notifSync.Snapshot().Notifications[0]
	mdl, cmd := m.Update(bell.OpenNotificationMsg{Notification: n})
	m = mdl.(Model)

	if m.currentView != ViewCatalog {
		t.Errorf("view = %d, want catalog", m.currentView)
	}
	if m.catalogView.Section() != catalog.SectionTests {
		t.Errorf("catalog section = %s, want tests", m.catalogView.Section())
	}

	m = feed[writeDoneMsg](t, m, cmd)
	if m.errMsg != "" {
		t.Fatalf("mark read failed: %s", m.errMsg)
	}
	m = feed[notificationsUpdateMsg](t, m, m.waitNotifications())
	if m.bell.Unread() != 1 {
		t.Errorf("badge = %d after opening, want 1", m.bell.Unread())
	}
}

func TestMarkAllReadClearsBadge(t *testing.T) {
	m := newSignedIn(t, seededFake(), gateway.StaticAuth{User: student})
	m = pollNotifications(t, m)

	mdl, cmd := m.Update(bell.MarkAllReadMsg{})
	m = feed[writeDoneMsg](t, mdl.(Model), cmd)
	m = feed[notificationsUpdateMsg](t, m, m.waitNotifications())

	if m.bell.Unread() != 0 {
		t.Errorf("badge = %d, want 0", m.bell.Unread())
	}
	if m.notifSync.Unread() != 0 {
		t.Errorf("client unread = %d, want 0", m.notifSync.Unread())
	}
}

func TestQuitStopsSyncClients(t *testing.T) {
	m := newSignedIn(t, seededFake(), gateway.StaticAuth{User: student})
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})

	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("ctrl+c did not quit")
	}
	if err := m.notifSync.Poll(context.Background()); !errors.Is(err, appsync.ErrStopped) {
		t.Errorf("notification poll after quit = %v, want ErrStopped", err)
	}
	if err := m.msgSync.Poll(context.Background()); !errors.Is(err, appsync.ErrStopped) {
		t.Errorf("message poll after quit = %v, want ErrStopped", err)
	}
}

func TestDemoModeShowsNoBadge(t *testing.T) {
	m := newSignedIn(t, gateway.Unconfigured{}, gateway.Unconfigured{})
	m = pollNotifications(t, m)

	if m.bell.Unread() != 0 {
		t.Errorf("badge = %d in demo mode", m.bell.Unread())
	}
	if !strings.Contains(m.View(), "Classroom (demo)") {
		t.Error("demo mode not shown in the header")
	}
}

func TestStaleGenerationIsDropped(t *testing.T) {
	m := newSignedIn(t, seededFake(), gateway.StaticAuth{User: student})
	stale := notificationsUpdateMsg{
		generation: m.generation - 1,
		NotificationsMsg: appsync.NotificationsMsg{Snapshot: appsync.NotificationSnapshot{
			Notifications: []model.Notification{{ID: "old", UserID: "u0"}},
			Unread:        1,
		}},
	}
	mdl, cmd := m.Update(stale)
	m = mdl.(Model)
	if cmd != nil || m.bell.Unread() != 0 {
		t.Errorf("stale update applied: badge %d", m.bell.Unread())
	}
}

func TestNoSessionStartsAtLogin(t *testing.T) {
	m := New(Options{Conn: Conn{Gateway: seededFake(), Auth: gateway.StaticAuth{User: student}}})
	if m.currentView != ViewLogin {
		t.Fatalf("view = %d, want login", m.currentView)
	}

	mdl, _ := m.Update(login.LoggedInMsg{Session: &model.Session{User: student}})
	m = mdl.(Model)
	t.Cleanup(m.stopSyncs)

	if m.currentView != ViewNotifications {
		t.Errorf("view = %d after sign in, want notifications", m.currentView)
	}
	if m.notifSync == nil || m.notifSync.UserID() != "u1" {
		t.Error("sync clients not started for the signed-in user")
	}
}

func TestExpiredSessionReturnsToLogin(t *testing.T) {
	f := seededFake()
	m := newSignedIn(t, f, expiringAuth{})
	f.SetErr(&gateway.AuthError{Message: "JWT expired"})

	_ = m.notifSync.Poll(context.Background())
	for _, msg := range collect(m.waitNotifications()) {
		mdl, cmd := m.Update(msg)
		m = feed[sessionRefreshedMsg](t, mdl.(Model), cmd)
	}

	if m.currentView != ViewLogin {
		t.Errorf("view = %d, want login", m.currentView)
	}
	if m.session != nil || m.notifSync != nil {
		t.Error("session kept after refresh failed")
	}
	if !strings.Contains(m.errMsg, "Session expired") {
		t.Errorf("status = %q", m.errMsg)
	}
}

func TestCommands(t *testing.T) {
	m := newSignedIn(t, seededFake(), gateway.StaticAuth{User: student})
	m = feed[studentsLoadedMsg](t, m, m.loadStudents())

	run := func(name, arg string) {
		t.Helper()
		m.previousView = m.currentView
		m.currentView = ViewCommand
		mdl, _ := m.Update(command.CommandMsg{Name: name, Arg: arg})
		m = mdl.(Model)
	}

	run("unread", "")
	if m.currentView != ViewNotifications || m.notificationsView.Filter() != notifications.FilterUnread {
		t.Errorf("unread: view %d filter %s", m.currentView, m.notificationsView.Filter())
	}

	run("open", "/tests/t1")
	if m.currentView != ViewCatalog || m.catalogView.Section() != catalog.SectionTests {
		t.Errorf("open: view %d section %s", m.currentView, m.catalogView.Section())
	}

	run("message", "u2")
	if m.currentView != ViewMessages || m.messagesView.SelectedPeer() != "u2" {
		t.Errorf("message: view %d peer %q", m.currentView, m.messagesView.SelectedPeer())
	}

	run("message", "nobody")
	if !strings.Contains(m.errMsg, "No student") {
		t.Errorf("unknown peer status = %q", m.errMsg)
	}

	run("open", "https://example.com")
	if !strings.Contains(m.errMsg, "Not a link") {
		t.Errorf("bad link status = %q", m.errMsg)
	}

	run("frobnicate", "")
	if !strings.Contains(m.errMsg, "Unknown command") {
		t.Errorf("unknown command status = %q", m.errMsg)
	}
}

func TestSendMessageReachesConversation(t *testing.T) {
	f := seededFake()
	m := newSignedIn(t, f, gateway.StaticAuth{User: student})

	mdl, cmd := m.Update(messages.SendMsg{PeerID: "u2", Body: "hello"})
	m = feed[writeDoneMsg](t, mdl.(Model), cmd)
	if m.errMsg != "" {
		t.Fatalf("send failed: %s", m.errMsg)
	}
	if f.Calls("SendMessage") != 1 {
		t.Errorf("SendMessage calls = %d", f.Calls("SendMessage"))
	}
	if _, ok := m.msgSync.Snapshot().Conversation("u2"); !ok {
		t.Error("sent message missing from conversations")
	}
}
