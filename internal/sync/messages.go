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

const messageClient = "messages"

// DefaultMessageInterval is the conversation poll interval when none is
// given.
const DefaultMessageInterval = 5 * time.Second

// MessageSnapshot is a copy of the message client's state.
type MessageSnapshot struct {
	Messages      []model.Message
	Conversations []model.Conversation
	Unread        int
	State         State
	LastSync      time.Time
	Err           error
}

// Conversation returns the conversation with peerID, if any.
func (s MessageSnapshot) Conversation(peerID string) (model.Conversation, bool) {
	for _, c := range s.Conversations {
		if c.PeerID == peerID {
			return c, true
		}
	}
	return model.Conversation{}, false
}

// MessagesMsg is sent to the Bubble Tea runtime whenever the message
// view changes or a poll fails.
type MessagesMsg struct {
	Snapshot MessageSnapshot
	Err      error
}

// MessageSync mirrors every message the user sent or received.
type MessageSync struct {
	gw     gateway.MessageGateway
	userID string
	now    func() time.Time
	log    zerolog.Logger
	run    *runner

	mu       gosync.Mutex
	items    []model.Message
	state    State
	inflight int
	lastSync time.Time
	lastErr  error
	clock    uint64
	applied  uint64
	ledger   readLedger
	sent     map[string]sentMessage
	updates  *feed[MessagesMsg]
	stopped  bool
}

// sentMessage is a locally confirmed row that a poll may not have seen.
type sentMessage struct {
	msg   model.Message
	stamp uint64
}

// NewMessageSync creates a message client for userID.
func NewMessageSync(gw gateway.MessageGateway, userID string, interval time.Duration) *MessageSync {
	if interval <= 0 {
		interval = DefaultMessageInterval
	}
	return &MessageSync{
		gw:      gw,
		userID:  userID,
		now:     time.Now,
		log:     logging.WithComponent("message-sync"),
		run:     newRunner(interval),
		ledger:  newReadLedger(),
		sent:    make(map[string]sentMessage),
		updates: newFeed[MessagesMsg](),
	}
}

// Start begins polling and returns a command waiting for the first
// update.
func (s *MessageSync) Start() tea.Cmd {
	if !s.run.start(func(ctx context.Context) { _ = s.Poll(ctx) }) {
		return nil
	}
	return s.WaitForUpdate()
}

// Stop cancels in-flight polls and waits for the loop to exit.
func (s *MessageSync) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	s.run.stop()

	s.mu.Lock()
	s.updates.close()
	s.mu.Unlock()
}

// Refresh requests an immediate poll.
func (s *MessageSync) Refresh() {
	s.run.trigger()
}

// WaitForUpdate returns a command delivering the next MessagesMsg.
func (s *MessageSync) WaitForUpdate() tea.Cmd {
	return s.updates.wait()
}

// Snapshot returns a copy of the current state.
func (s *MessageSync) Snapshot() MessageSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Poll fetches once and applies the result.
func (s *MessageSync) Poll(ctx context.Context) error {
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

	items, err := s.gw.ListMessages(ctx, s.userID)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.inflight--
	if s.inflight == 0 {
		s.state = Idle
	}

	if s.stopped {
		metrics.RecordPoll(messageClient, "dropped")
		return ErrStopped
	}

	if err != nil {
		s.lastErr = err
		metrics.RecordPoll(messageClient, "failed")
		logging.Ctx(ctx).Warn().Err(err).
			Str("component", "message-sync").
			Str("user_id", s.userID).
			Msg("message poll failed")
		s.updates.send(MessagesMsg{Snapshot: s.snapshotLocked(), Err: err})
		return fmt.Errorf("polling messages: %w", err)
	}

	if stamp < s.applied {
		metrics.RecordPoll(messageClient, "dropped")
		return nil
	}

	seen := make(map[string]bool, len(items))
	merged := make([]model.Message, 0, len(items)+len(s.sent))
	for _, m := range items {
		m.Read = s.ledger.resolve(m.ID, m.Read, stamp)
		seen[m.ID] = true
		merged = append(merged, m)
	}
	for id, sm := range s.sent {
		switch {
		case seen[id] || sm.stamp <= stamp:
			delete(s.sent, id)
		default:
			merged = append([]model.Message{sm.msg}, merged...)
		}
	}
	s.ledger.prune(stamp)

	s.items = merged
	s.applied = stamp
	s.lastErr = nil
	s.lastSync = s.now()

	metrics.RecordPoll(messageClient, "applied")
	s.publishLocked()
	return nil
}

// Send delivers body to every recipient and appends the confirmed rows.
func (s *MessageSync) Send(ctx context.Context, recipientIDs []string, subject, body string) ([]model.Message, error) {
	rows, err := s.gw.SendMessage(ctx, model.OutgoingMessage{
		SenderID:     s.userID,
		RecipientIDs: recipientIDs,
		Subject:      subject,
		Body:         body,
	})
	if err != nil {
		return nil, fmt.Errorf("sending message: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || len(rows) == 0 {
		return rows, nil
	}

	s.clock++
	for _, m := range rows {
		s.sent[m.ID] = sentMessage{msg: m, stamp: s.clock}
		s.items = append([]model.Message{m}, s.items...)
	}
	s.publishLocked()
	return rows, nil
}

// MarkConversationRead marks every unread message from peerID to the
// user read, locally once the write is confirmed.
func (s *MessageSync) MarkConversationRead(ctx context.Context, peerID string) error {
	if _, err := s.gw.MarkConversationRead(ctx, s.userID, peerID); err != nil {
		return fmt.Errorf("marking conversation with %s read: %w", peerID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}

	s.clock++
	changed := false
	for i := range s.items {
		m := &s.items[i]
		if m.SenderID == peerID && m.RecipientID == s.userID && !m.Read {
			m.Read = true
			s.ledger.confirm(m.ID, true, s.clock)
			changed = true
		}
	}
	if changed {
		s.publishLocked()
	}
	return nil
}

func (s *MessageSync) publishLocked() {
	s.updates.send(MessagesMsg{Snapshot: s.snapshotLocked()})
}

func (s *MessageSync) snapshotLocked() MessageSnapshot {
	items := make([]model.Message, len(s.items))
	copy(items, s.items)

	convs := model.GroupConversations(items, s.userID)
	unread := 0
	for _, c := range convs {
		unread += c.Unread
	}
	return MessageSnapshot{
		Messages:      items,
		Conversations: convs,
		Unread:        unread,
		State:         s.state,
		LastSync:      s.lastSync,
		Err:           s.lastErr,
	}
}
