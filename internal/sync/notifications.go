package sync

import (
	"context"
	"fmt"
	gosync "sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/nhle/classroom/internal/gateway"
	"github.com/nhle/classroom/internal/logging"
	"github.com/nhle/classroom/internal/metrics"
	"github.com/nhle/classroom/internal/model"
)

const notificationClient = "notifications"

// DefaultNotificationInterval is the poll interval when none is given.
const DefaultNotificationInterval = 30 * time.Second

// NotificationOptions tunes a NotificationSync.
type NotificationOptions struct {
	Interval time.Duration
	Limit    int
	Now      func() time.Time
}

// NotificationSnapshot is a copy of the client's state.
type NotificationSnapshot struct {
	Notifications []model.Notification
	Unread        int
	State         State
	LastSync      time.Time

	// Err is the failure of the most recent poll, nil once a poll
	// succeeds again.
	Err error
}

// NotificationsMsg is sent to the Bubble Tea runtime whenever the local
// view changes or a poll fails.
type NotificationsMsg struct {
	Snapshot NotificationSnapshot
	Err      error
}

// AuthExpired reports whether the update carries an authentication
// failure.
func (m NotificationsMsg) AuthExpired() bool {
	return gateway.IsAuthError(m.Err)
}

// NotificationSync keeps a capped, newest-first list of one user's
// notifications and their unread count.
type NotificationSync struct {
	gw     gateway.NotificationGateway
	userID string
	limit  int
	now    func() time.Time
	log    zerolog.Logger
	run    *runner

	mu       gosync.Mutex
	items    []model.Notification
	unread   int
	state    State
	inflight int
	lastSync time.Time
	lastErr  error
	clock    uint64
	applied  uint64
	ledger   readLedger
	updates  *feed[NotificationsMsg]
	stopped  bool
}

// NewNotificationSync creates a client for userID. Nothing is fetched
// until Start or Poll is called.
func NewNotificationSync(gw gateway.NotificationGateway, userID string, opts NotificationOptions) *NotificationSync {
	if opts.Interval <= 0 {
		opts.Interval = DefaultNotificationInterval
	}
	if opts.Limit <= 0 {
		opts.Limit = model.DefaultNotificationLimit
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &NotificationSync{
		gw:      gw,
		userID:  userID,
		limit:   opts.Limit,
		now:     opts.Now,
		log:     logging.WithComponent("notification-sync"),
		run:     newRunner(opts.Interval),
		ledger:  newReadLedger(),
		updates: newFeed[NotificationsMsg](),
	}
}

// Start begins polling and returns a command waiting for the first
// update. Calling Start again returns nil.
func (s *NotificationSync) Start() tea.Cmd {
	if !s.run.start(func(ctx context.Context) { _ = s.Poll(ctx) }) {
		return nil
	}
	return s.WaitForUpdate()
}

// Stop cancels in-flight polls and waits for the loop to exit. Results
// that arrive afterwards are dropped.
func (s *NotificationSync) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	s.run.stop()

	s.mu.Lock()
	s.updates.close()
	s.mu.Unlock()
}

// Refresh requests an immediate poll.
func (s *NotificationSync) Refresh() {
	s.run.trigger()
}

// WaitForUpdate returns a command delivering the next NotificationsMsg.
// Call it again after handling each message.
func (s *NotificationSync) WaitForUpdate() tea.Cmd {
	return s.updates.wait()
}

// Snapshot returns a copy of the current state.
func (s *NotificationSync) Snapshot() NotificationSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Unread returns the current unread count.
func (s *NotificationSync) Unread() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread
}

// UserID returns the user whose notifications are synced.
func (s *NotificationSync) UserID() string {
	return s.userID
}

// Poll fetches once and applies the result. The list and count are left
// untouched when the fetch fails or when a newer poll was applied first.
func (s *NotificationSync) Poll(ctx context.Context) error {
	ctx = logging.ContextWithNewCorrelationID(ctx)

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	s.clock++
	stamp := s.clock
	s.inflight++
	s.state = Fetching
	s.mu.Unlock()

	items, err := s.gw.ListNotifications(ctx, s.userID, s.limit)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.inflight--
	if s.inflight == 0 {
		s.state = Idle
	}

	if s.stopped {
		metrics.RecordPoll(notificationClient, "dropped")
		return ErrStopped
	}

	if err != nil {
		s.lastErr = err
		metrics.RecordPoll(notificationClient, "failed")
		logging.Ctx(ctx).Warn().Err(err).
			Str("component", "notification-sync").
			Str("user_id", s.userID).
			Msg("notification poll failed")
		s.publishLocked(err)
		return fmt.Errorf("polling notifications: %w", err)
	}

	if stamp < s.applied {
		metrics.RecordPoll(notificationClient, "dropped")
		s.log.Debug().Uint64("poll", stamp).Uint64("applied", s.applied).Msg("dropping stale poll")
		return nil
	}

	if len(items) > s.limit {
		items = items[:s.limit]
	}
	merged := make([]model.Notification, len(items))
	for i, n := range items {
		n.Read = s.ledger.resolve(n.ID, n.Read, stamp)
		merged[i] = n
	}
	s.ledger.prune(stamp)

	s.items = merged
	s.applied = stamp
	s.lastErr = nil
	s.lastSync = s.now()
	s.recountLocked()

	metrics.RecordPoll(notificationClient, "applied")
	s.log.Debug().Int("count", len(merged)).Int("unread", s.unread).Msg("notifications applied")
	s.publishLocked(nil)
	return nil
}

// MarkRead marks one notification read and patches the local entry from
// the confirmed row. Marking an already read entry is a no-op locally.
func (s *NotificationSync) MarkRead(ctx context.Context, id string) error {
	row, err := s.gw.MarkNotificationRead(ctx, id)
	if err != nil {
		s.log.Warn().Err(err).Str("notification_id", id).Msg("mark read failed")
		return fmt.Errorf("marking notification %s read: %w", id, err)
	}
	if row == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}

	s.clock++
	s.ledger.confirm(row.ID, row.Read, s.clock)
	s.patchLocked(map[string]bool{row.ID: row.Read})
	return nil
}

// MarkAllRead marks every notification of the user read and marks every
// local entry read once the write is confirmed.
func (s *NotificationSync) MarkAllRead(ctx context.Context) error {
	rows, err := s.gw.MarkAllNotificationsRead(ctx, s.userID)
	if err != nil {
		s.log.Warn().Err(err).Msg("mark all read failed")
		return fmt.Errorf("marking all notifications read: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}

	s.clock++
	flags := make(map[string]bool, len(s.items)+len(rows))
	for _, n := range s.items {
		flags[n.ID] = true
	}
	for _, n := range rows {
		flags[n.ID] = n.Read
	}
	for id, read := range flags {
		s.ledger.confirm(id, read, s.clock)
	}
	s.patchLocked(flags)
	return nil
}

func (s *NotificationSync) patchLocked(flags map[string]bool) {
	changed := false
	for i := range s.items {
		read, ok := flags[s.items[i].ID]
		if ok && s.items[i].Read != read {
			s.items[i].Read = read
			changed = true
		}
	}
	if !changed {
		return
	}
	s.recountLocked()
	s.publishLocked(nil)
}

func (s *NotificationSync) recountLocked() {
	s.unread = model.CountUnread(s.items)
	metrics.UnreadNotifications.Set(float64(s.unread))
}

func (s *NotificationSync) publishLocked(err error) {
	s.updates.send(NotificationsMsg{Snapshot: s.snapshotLocked(), Err: err})
}

func (s *NotificationSync) snapshotLocked() NotificationSnapshot {
	items := make([]model.Notification, len(s.items))
	copy(items, s.items)
	return NotificationSnapshot{
		Notifications: items,
		Unread:        s.unread,
		State:         s.state,
		LastSync:      s.lastSync,
		Err:           s.lastErr,
	}
}
