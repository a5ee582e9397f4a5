package sync_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nhle/classroom/internal/gateway"
	"github.com/nhle/classroom/internal/gateway/gatewaytest"
	"github.com/nhle/classroom/internal/model"
	clsync "github.com/nhle/classroom/internal/sync"
)

var base = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

// seed adds three notifications for u1, two of them unread, and one for
// another user.
func seed(f *gatewaytest.Fake) {
	f.AddNotification(model.Notification{ID: "a", UserID: "u1", Type: model.NotificationAssignment, Title: "A", CreatedAt: base})
	f.AddNotification(model.Notification{ID: "b", UserID: "u1", Type: model.NotificationTest, Title: "B", CreatedAt: base.Add(time.Minute)})
	f.AddNotification(model.Notification{ID: "c", UserID: "u1", Type: model.NotificationGrade, Title: "C", Read: true, CreatedAt: base.Add(2 * time.Minute)})
	f.AddNotification(model.Notification{ID: "x", UserID: "u2", Title: "other", CreatedAt: base})
}

func newSync(f gateway.NotificationGateway) *clsync.NotificationSync {
	return clsync.NewNotificationSync(f, "u1", clsync.NotificationOptions{Interval: time.Hour})
}

func ids(ns []model.Notification) []string {
	out := make([]string, len(ns))
	for i, n := range ns {
		out[i] = n.ID
	}
	return out
}

func readOf(t *testing.T, snap clsync.NotificationSnapshot, id string) bool {
	t.Helper()
	for _, n := range snap.Notifications {
		if n.ID == id {
			return n.Read
		}
	}
	t.Fatalf("notification %s not in snapshot %v", id, ids(snap.Notifications))
	return false
}

func TestPollAppliesServerListAndCount(t *testing.T) {
	f := gatewaytest.NewFake()
	seed(f)
	s := newSync(f)

	if err := s.Poll(context.Background()); err != nil {
		t.Fatalf("Poll: %v", err)
	}

	snap := s.Snapshot()
	if got := ids(snap.Notifications); len(got) != 3 || got[0] != "c" || got[2] != "a" {
		t.Fatalf("order = %v, want [c b a]", got)
	}
	if snap.Unread != 2 {
		t.Errorf("Unread = %d, want 2", snap.Unread)
	}
	if snap.State != clsync.Idle {
		t.Errorf("State = %v, want idle", snap.State)
	}
	if snap.LastSync.IsZero() {
		t.Error("LastSync not set")
	}
}

// uncapped ignores the requested limit, like a backend that returns more
// rows than asked for.
type uncapped struct{ *gatewaytest.Fake }

func (u uncapped) ListNotifications(ctx context.Context, userID string, _ int) ([]model.Notification, error) {
	return u.Fake.ListNotifications(ctx, userID, 0)
}

func TestPollCapsToLimit(t *testing.T) {
	f := gatewaytest.NewFake()
	for i := 0; i < 5; i++ {
		f.AddNotification(model.Notification{UserID: "u1", CreatedAt: base.Add(time.Duration(i) * time.Minute)})
	}
	s := clsync.NewNotificationSync(uncapped{f}, "u1", clsync.NotificationOptions{Limit: 3})

	if err := s.Poll(context.Background()); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	snap := s.Snapshot()
	if len(snap.Notifications) != 3 || snap.Unread != 3 {
		t.Fatalf("got %d entries, %d unread; want 3 and 3", len(snap.Notifications), snap.Unread)
	}
}

func TestMarkReadAndMarkAllScenario(t *testing.T) {
	ctx := context.Background()
	f := gatewaytest.NewFake()
	seed(f)
	s := newSync(f)

	if err := s.Poll(ctx); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if s.Unread() != 2 {
		t.Fatalf("Unread = %d, want 2", s.Unread())
	}

	if err := s.MarkRead(ctx, "b"); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if s.Unread() != 1 {
		t.Fatalf("after MarkRead Unread = %d, want 1", s.Unread())
	}
	if err := s.Poll(ctx); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if !readOf(t, s.Snapshot(), "b") {
		t.Error("b not read after the next poll")
	}

	if err := s.MarkAllRead(ctx); err != nil {
		t.Fatalf("MarkAllRead: %v", err)
	}
	if s.Unread() != 0 {
		t.Fatalf("after MarkAllRead Unread = %d, want 0", s.Unread())
	}
	if err := s.Poll(ctx); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	snap := s.Snapshot()
	if snap.Unread != 0 {
		t.Errorf("server still reports %d unread", snap.Unread)
	}
	for _, n := range snap.Notifications {
		if !n.Read {
			t.Errorf("%s unread after mark all", n.ID)
		}
	}
	if n, _ := f.UnreadNotificationCount(ctx, "u2"); n != 1 {
		t.Errorf("other user's unread = %d, want 1", n)
	}
}

func TestMarkReadTwiceEqualsOnce(t *testing.T) {
	ctx := context.Background()
	f := gatewaytest.NewFake()
	seed(f)
	s := newSync(f)
	if err := s.Poll(ctx); err != nil {
		t.Fatalf("Poll: %v", err)
	}

	if err := s.MarkRead(ctx, "a"); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	once := s.Snapshot()
	if err := s.MarkRead(ctx, "a"); err != nil {
		t.Fatalf("second MarkRead: %v", err)
	}
	twice := s.Snapshot()

	if once.Unread != twice.Unread || once.Unread != 1 {
		t.Errorf("unread once=%d twice=%d, want 1 both", once.Unread, twice.Unread)
	}
	if !readOf(t, twice, "a") {
		t.Error("a not read")
	}
}

func TestFailedPollLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	f := gatewaytest.NewFake()
	seed(f)
	s := newSync(f)
	if err := s.Poll(ctx); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	before := s.Snapshot()

	boom := errors.New("connection reset")
	f.SetErr(boom)
	err := s.Poll(ctx)
	if !errors.Is(err, boom) {
		t.Fatalf("Poll err = %v, want %v", err, boom)
	}

	after := s.Snapshot()
	if after.Unread != before.Unread || len(after.Notifications) != len(before.Notifications) {
		t.Errorf("state changed on failure: before %d/%d after %d/%d",
			before.Unread, len(before.Notifications), after.Unread, len(after.Notifications))
	}
	if !errors.Is(after.Err, boom) {
		t.Errorf("Err = %v, want %v", after.Err, boom)
	}
	if after.State != clsync.Idle {
		t.Errorf("State = %v, want idle", after.State)
	}

	f.SetErr(nil)
	if err := s.Poll(ctx); err != nil {
		t.Fatalf("recovery Poll: %v", err)
	}
	if s.Snapshot().Err != nil {
		t.Error("Err not cleared by a successful poll")
	}
}

func TestMarkReadFailureKeepsEntryUnread(t *testing.T) {
	ctx := context.Background()
	f := gatewaytest.NewFake()
	seed(f)
	s := newSync(f)
	if err := s.Poll(ctx); err != nil {
		t.Fatalf("Poll: %v", err)
	}

	f.SetErr(&gateway.AuthError{Message: "JWT expired"})
	err := s.MarkRead(ctx, "a")
	if !gateway.IsAuthError(err) {
		t.Fatalf("MarkRead err = %v, want auth error", err)
	}
	if readOf(t, s.Snapshot(), "a") {
		t.Error("a marked read without confirmation")
	}
}

// blockFirstList holds back the first list result until release is
// closed. started is closed once that result has been read.
func blockFirstList(f *gatewaytest.Fake) (started, release chan struct{}) {
	started = make(chan struct{})
	release = make(chan struct{})
	first := true
	f.AfterList = func(context.Context) error {
		if !first {
			return nil
		}
		first = false
		close(started)
		<-release
		return nil
	}
	return started, release
}

func TestStalePollDoesNotResurrectConfirmedRead(t *testing.T) {
	ctx := context.Background()
	f := gatewaytest.NewFake()
	seed(f)
	s := newSync(f)
	if err := s.Poll(ctx); err != nil {
		t.Fatalf("Poll: %v", err)
	}

	started, release := blockFirstList(f)
	done := make(chan error, 1)
	go func() { done <- s.Poll(ctx) }()
	<-started

	// The held poll read "a" as unread before this write.
	if err := s.MarkRead(ctx, "a"); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Poll: %v", err)
	}

	snap := s.Snapshot()
	if !readOf(t, snap, "a") {
		t.Error("stale poll resurrected a")
	}
	if snap.Unread != 1 {
		t.Errorf("Unread = %d, want 1", snap.Unread)
	}
}

func TestOutOfOrderPollIsDropped(t *testing.T) {
	ctx := context.Background()
	f := gatewaytest.NewFake()
	f.AddNotification(model.Notification{ID: "a", UserID: "u1", CreatedAt: base})
	s := newSync(f)

	started, release := blockFirstList(f)
	done := make(chan error, 1)
	go func() { done <- s.Poll(ctx) }()
	<-started

	f.AddNotification(model.Notification{ID: "b", UserID: "u1", CreatedAt: base.Add(time.Minute)})
	if err := s.Poll(ctx); err != nil {
		t.Fatalf("second Poll: %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first Poll: %v", err)
	}

	if got := ids(s.Snapshot().Notifications); len(got) != 2 {
		t.Errorf("entries = %v, want the newer poll's [b a]", got)
	}
}

func TestResultAfterStopIsDropped(t *testing.T) {
	ctx := context.Background()
	f := gatewaytest.NewFake()
	seed(f)
	s := newSync(f)

	started, release := blockFirstList(f)
	done := make(chan error, 1)
	go func() { done <- s.Poll(ctx) }()
	<-started

	s.Stop()
	close(release)

	if err := <-done; !errors.Is(err, clsync.ErrStopped) {
		t.Fatalf("Poll err = %v, want ErrStopped", err)
	}
	if snap := s.Snapshot(); len(snap.Notifications) != 0 || snap.Unread != 0 {
		t.Errorf("late result applied: %+v", snap)
	}
	if err := s.Poll(ctx); !errors.Is(err, clsync.ErrStopped) {
		t.Errorf("Poll after Stop = %v, want ErrStopped", err)
	}
}

func TestStartPublishesAndRefreshTriggersPoll(t *testing.T) {
	f := gatewaytest.NewFake()
	seed(f)
	s := newSync(f)
	defer s.Stop()

	cmd := s.Start()
	if cmd == nil {
		t.Fatal("Start returned nil")
	}
	if s.Start() != nil {
		t.Error("second Start should return nil")
	}

	msg, ok := cmd().(clsync.NotificationsMsg)
	if !ok {
		t.Fatalf("first update has type %T", msg)
	}
	if msg.Snapshot.Unread != 2 || msg.Err != nil {
		t.Fatalf("first update = %+v", msg)
	}

	f.AddNotification(model.Notification{ID: "d", UserID: "u1", CreatedAt: base.Add(time.Hour)})
	s.Refresh()

	deadline := time.After(5 * time.Second)
	for {
		got := make(chan any, 1)
		go func() { got <- s.WaitForUpdate()() }()
		select {
		case m := <-got:
			u, _ := m.(clsync.NotificationsMsg)
			if u.Snapshot.Unread == 3 {
				return
			}
		case <-deadline:
			t.Fatal("no update after Refresh")
		}
	}
}

func TestStopClosesUpdates(t *testing.T) {
	f := gatewaytest.NewFake()
	s := newSync(f)
	wait := s.WaitForUpdate()
	s.Stop()
	if msg := wait(); msg != nil {
		t.Errorf("update after Stop = %#v, want nil", msg)
	}
}

func TestPollFailurePublishesAuthError(t *testing.T) {
	f := gatewaytest.NewFake()
	f.SetErr(&gateway.AuthError{Message: "invalid JWT"})
	s := newSync(f)

	_ = s.Poll(context.Background())
	msg, ok := s.WaitForUpdate()().(clsync.NotificationsMsg)
	if !ok {
		t.Fatal("no update published for a failed poll")
	}
	if !msg.AuthExpired() {
		t.Errorf("AuthExpired = false for %v", msg.Err)
	}
}

func TestDemoGatewayNeverShowsUnread(t *testing.T) {
	ctx := context.Background()
	s := clsync.NewNotificationSync(gateway.Unconfigured{}, model.DemoUserID, clsync.NotificationOptions{})

	if err := s.Poll(ctx); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if err := s.MarkAllRead(ctx); err != nil {
		t.Fatalf("MarkAllRead: %v", err)
	}
	if err := s.MarkRead(ctx, "anything"); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	snap := s.Snapshot()
	if len(snap.Notifications) != 0 || snap.Unread != 0 {
		t.Errorf("demo snapshot = %+v", snap)
	}
}
