package model

import (
	"testing"
	"time"
)

func TestGroupConversations(t *testing.T) {
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	msgs := []Message{
		{ID: "4", SenderID: "bob", RecipientID: "me", Read: false, CreatedAt: base.Add(4 * time.Minute)},
		{ID: "3", SenderID: "me", RecipientID: "ann", CreatedAt: base.Add(3 * time.Minute)},
		{ID: "2", SenderID: "ann", RecipientID: "me", Read: true, CreatedAt: base.Add(2 * time.Minute)},
		{ID: "1", SenderID: "bob", RecipientID: "me", Read: false, CreatedAt: base.Add(1 * time.Minute)},
		{ID: "x", SenderID: "ann", RecipientID: "bob", CreatedAt: base},
	}

	convs := GroupConversations(msgs, "me")
	if len(convs) != 2 {
		t.Fatalf("got %d conversations, want 2", len(convs))
	}

	if convs[0].PeerID != "bob" {
		t.Errorf("first conversation = %q, want most recent peer bob", convs[0].PeerID)
	}
	if convs[0].Unread != 2 {
		t.Errorf("bob unread = %d, want 2", convs[0].Unread)
	}
	if convs[0].Messages[0].ID != "1" {
		t.Errorf("messages not oldest first: %q", convs[0].Messages[0].ID)
	}
	if convs[1].PeerID != "ann" || len(convs[1].Messages) != 2 || convs[1].Unread != 0 {
		t.Errorf("unexpected ann conversation: %+v", convs[1])
	}
}

func TestBetweenFiltersBothDirections(t *testing.T) {
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	msgs := []Message{
		{ID: "b", SenderID: "t", RecipientID: "s", CreatedAt: base.Add(time.Minute)},
		{ID: "a", SenderID: "s", RecipientID: "t", CreatedAt: base},
		{ID: "c", SenderID: "t", RecipientID: "other", CreatedAt: base},
	}

	got := Between(msgs, "t", "s")
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "b" {
		t.Fatalf("Between = %+v", got)
	}
}

func TestCountUnread(t *testing.T) {
	ns := []Notification{{Read: true}, {Read: false}, {Read: false}}
	if got := CountUnread(ns); got != 2 {
		t.Fatalf("CountUnread = %d, want 2", got)
	}
	if got := CountUnread(nil); got != 0 {
		t.Fatalf("CountUnread(nil) = %d", got)
	}
}
