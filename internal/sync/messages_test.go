package sync_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nhle/classroom/internal/gateway/gatewaytest"
	"github.com/nhle/classroom/internal/model"
	clsync "github.com/nhle/classroom/internal/sync"
)

func seedMessages(f *gatewaytest.Fake) {
	f.Messages = []model.Message{
		{ID: "m1", SenderID: "t1", RecipientID: "u1", Body: "hello", CreatedAt: base},
		{ID: "m2", SenderID: "u1", RecipientID: "t1", Body: "hi", Read: true, CreatedAt: base.Add(time.Minute)},
		{ID: "m3", SenderID: "t1", RecipientID: "u1", Body: "due friday", CreatedAt: base.Add(2 * time.Minute)},
		{ID: "m4", SenderID: "s2", RecipientID: "u1", Body: "study group?", CreatedAt: base.Add(3 * time.Minute)},
		{ID: "m5", SenderID: "s2", RecipientID: "t1", Body: "not mine", CreatedAt: base.Add(4 * time.Minute)},
	}
}

func TestMessagePollGroupsConversations(t *testing.T) {
	f := gatewaytest.NewFake()
	seedMessages(f)
	s := clsync.NewMessageSync(f, "u1", time.Hour)

	if err := s.Poll(context.Background()); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	snap := s.Snapshot()

	if len(snap.Messages) != 4 {
		t.Fatalf("messages = %d, want 4 (only rows involving u1)", len(snap.Messages))
	}
	if len(snap.Conversations) != 2 {
		t.Fatalf("conversations = %d, want 2", len(snap.Conversations))
	}
	if snap.Conversations[0].PeerID != "s2" {
		t.Errorf("most recent conversation = %s, want s2", snap.Conversations[0].PeerID)
	}

	withTeacher, ok := snap.Conversation("t1")
	if !ok {
		t.Fatal("no conversation with t1")
	}
	if len(withTeacher.Messages) != 3 || withTeacher.Messages[0].ID != "m1" {
		t.Errorf("t1 conversation = %+v, want m1..m3 oldest first", withTeacher.Messages)
	}
	if withTeacher.Unread != 2 || snap.Unread != 3 {
		t.Errorf("unread t1=%d total=%d, want 2 and 3", withTeacher.Unread, snap.Unread)
	}
}

func TestSendAppendsConfirmedRows(t *testing.T) {
	ctx := context.Background()
	f := gatewaytest.NewFake()
	seedMessages(f)
	s := clsync.NewMessageSync(f, "u1", time.Hour)
	if err := s.Poll(ctx); err != nil {
		t.Fatalf("Poll: %v", err)
	}

	started, release := blockFirstList(f)
	done := make(chan error, 1)
	go func() { done <- s.Poll(ctx) }()
	<-started

	rows, err := s.Send(ctx, []string{"t1", "s2"}, "", "see you")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("Send returned %d rows, want one per recipient", len(rows))
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Poll: %v", err)
	}

	// The held poll predates the send; its result must not drop the rows.
	snap := s.Snapshot()
	if len(snap.Messages) != 6 {
		t.Fatalf("messages = %d, want 6", len(snap.Messages))
	}
	c, _ := snap.Conversation("s2")
	if last := c.Messages[len(c.Messages)-1]; last.Body != "see you" {
		t.Errorf("last s2 message = %q", last.Body)
	}

	if err := s.Poll(ctx); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if n := len(s.Snapshot().Messages); n != 6 {
		t.Errorf("after a fresh poll messages = %d, want 6", n)
	}
}

func TestSendRejectsEmptyBody(t *testing.T) {
	f := gatewaytest.NewFake()
	s := clsync.NewMessageSync(f, "u1", time.Hour)

	if _, err := s.Send(context.Background(), []string{"t1"}, "", "   "); err == nil {
		t.Fatal("Send with a blank body succeeded")
	}
	if f.Calls("SendMessage") != 0 {
		t.Error("blank message reached the backend")
	}
}

func TestMarkConversationRead(t *testing.T) {
	ctx := context.Background()
	f := gatewaytest.NewFake()
	seedMessages(f)
	s := clsync.NewMessageSync(f, "u1", time.Hour)
	if err := s.Poll(ctx); err != nil {
		t.Fatalf("Poll: %v", err)
	}

	if err := s.MarkConversationRead(ctx, "t1"); err != nil {
		t.Fatalf("MarkConversationRead: %v", err)
	}
	snap := s.Snapshot()
	c, _ := snap.Conversation("t1")
	if c.Unread != 0 {
		t.Errorf("t1 unread = %d, want 0", c.Unread)
	}
	if snap.Unread != 1 {
		t.Errorf("total unread = %d, want 1 (s2 untouched)", snap.Unread)
	}

	if err := s.Poll(ctx); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if c, _ := s.Snapshot().Conversation("t1"); c.Unread != 0 {
		t.Errorf("server still has %d unread from t1", c.Unread)
	}
}

func TestSentRowsKeptAcrossOverlappingPoll(t *testing.T) {
	ctx := context.Background()
	f := gatewaytest.NewFake()
	f.Messages = []model.Message{
		{ID: "seed-1", SenderID: "t1", RecipientID: "u1", Body: "hello", CreatedAt: base},
		{ID: "seed-2", SenderID: "s2", RecipientID: "u1", Body: "hey", CreatedAt: base.Add(time.Minute)},
	}
	s := clsync.NewMessageSync(f, "u1", time.Hour)

	started, release := blockFirstList(f)
	done := make(chan error, 1)
	go func() { done <- s.Poll(ctx) }()
	<-started

	rows, err := s.Send(ctx, []string{"t1", "s2"}, "", "see you")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	for _, r := range rows {
		if r.ID == "seed-1" || r.ID == "seed-2" {
			t.Fatalf("sent row reused fixture id %s", r.ID)
		}
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Poll: %v", err)
	}

	snap := s.Snapshot()
	if len(snap.Messages) != 4 {
		t.Errorf("messages = %d, want 4", len(snap.Messages))
	}
	for _, peerID := range []string{"t1", "s2"} {
		c, _ := snap.Conversation(peerID)
		if len(c.Messages) != 2 {
			t.Errorf("%s conversation has %d messages, want 2", peerID, len(c.Messages))
		}
	}
}

func TestFailedMessagePollLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	f := gatewaytest.NewFake()
	seedMessages(f)
	s := clsync.NewMessageSync(f, "u1", time.Hour)
	if err := s.Poll(ctx); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	before := s.Snapshot()

	boom := errors.New("connection reset")
	f.SetErr(boom)
	if err := s.Poll(ctx); !errors.Is(err, boom) {
		t.Fatalf("Poll err = %v, want %v", err, boom)
	}

	after := s.Snapshot()
	if len(after.Messages) != len(before.Messages) || after.Unread != before.Unread {
		t.Errorf("state changed on failure: before %d/%d after %d/%d",
			len(before.Messages), before.Unread, len(after.Messages), after.Unread)
	}
	if len(after.Conversations) != len(before.Conversations) {
		t.Fatalf("conversations = %d, want %d", len(after.Conversations), len(before.Conversations))
	}
	for i, c := range after.Conversations {
		if c.PeerID != before.Conversations[i].PeerID || c.Unread != before.Conversations[i].Unread {
			t.Errorf("conversation %d = %s/%d, want %s/%d", i,
				c.PeerID, c.Unread, before.Conversations[i].PeerID, before.Conversations[i].Unread)
		}
	}
	if !errors.Is(after.Err, boom) {
		t.Errorf("Err = %v, want %v", after.Err, boom)
	}
	if after.State != clsync.Idle {
		t.Errorf("State = %v, want idle", after.State)
	}
}
