package model

import (
	"sort"
	"time"
)

// Message is a directed edge between two users. There is no thread
// entity; conversations are rebuilt from (sender, recipient) pairs.
type Message struct {
	ID          string    `json:"id" db:"id"`
	SenderID    string    `json:"sender_id" db:"sender_id"`
	RecipientID string    `json:"recipient_id" db:"recipient_id"`
	Subject     string    `json:"subject" db:"subject"`
	Body        string    `json:"message" db:"message"`
	Read        bool      `json:"read" db:"read"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Peer returns the other party of the message as seen by selfID.
func (m Message) Peer(selfID string) string {
	if m.SenderID == selfID {
		return m.RecipientID
	}
	return m.SenderID
}

// OutgoingMessage is a message to one or more recipients. The backend
// stores one row per recipient.
type OutgoingMessage struct {
	SenderID     string   `validate:"required"`
	RecipientIDs []string `validate:"required,min=1,dive,required"`
	Subject      string   `validate:"max=200"`
	Body         string   `validate:"required,max=5000"`
}

// Conversation is the client-side view of all messages exchanged with
// a single peer.
type Conversation struct {
	PeerID   string
	Messages []Message
	Unread   int
}

// LastActivity returns the creation time of the newest message, or the
// zero time for an empty conversation.
func (c Conversation) LastActivity() time.Time {
	if len(c.Messages) == 0 {
		return time.Time{}
	}
	return c.Messages[len(c.Messages)-1].CreatedAt
}

// Between returns the messages exchanged between a and b, in either
// direction, oldest first.
func Between(msgs []Message, a, b string) []Message {
	var out []Message
	for _, m := range msgs {
		if (m.SenderID == a && m.RecipientID == b) ||
			(m.SenderID == b && m.RecipientID == a) {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// GroupConversations groups msgs by peer from selfID's point of view.
// Messages inside a conversation are oldest first; conversations are
// ordered by most recent activity.
func GroupConversations(msgs []Message, selfID string) []Conversation {
	byPeer := make(map[string]*Conversation)
	var order []string
	for _, m := range msgs {
		if m.SenderID != selfID && m.RecipientID != selfID {
			continue
		}
		peer := m.Peer(selfID)
		c, ok := byPeer[peer]
		if !ok {
			c = &Conversation{PeerID: peer}
			byPeer[peer] = c
			order = append(order, peer)
		}
		c.Messages = append(c.Messages, m)
		if m.RecipientID == selfID && !m.Read {
			c.Unread++
		}
	}

	out := make([]Conversation, 0, len(order))
	for _, peer := range order {
		c := byPeer[peer]
		sort.SliceStable(c.Messages, func(i, j int) bool {
			return c.Messages[i].CreatedAt.Before(c.Messages[j].CreatedAt)
		})
		out = append(out, *c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastActivity().After(out[j].LastActivity())
	})
	return out
}
