package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/nhle/classroom/internal/gateway"
	"github.com/nhle/classroom/internal/model"
)

const messageColumns = "id, sender_id, recipient_id, subject, message, read, created_at"

type messageRow struct {
	ID          string         `db:"id"`
	SenderID    string         `db:"sender_id"`
	RecipientID string         `db:"recipient_id"`
	Subject     sql.NullString `db:"subject"`
	Message     string         `db:"message"`
	Read        bool           `db:"read"`
	CreatedAt   timestamp      `db:"created_at"`
}

func (r messageRow) model() model.Message {
	return model.Message{
		ID:          r.ID,
		SenderID:    r.SenderID,
		RecipientID: r.RecipientID,
		Subject:     r.Subject.String,
		Body:        r.Message,
		Read:        r.Read,
		CreatedAt:   r.CreatedAt.Time,
	}
}

// SendMessage inserts one row per recipient in a single transaction.
func (s *SQLStore) SendMessage(ctx context.Context, msg model.OutgoingMessage) ([]model.Message, error) {
	if err := gateway.ValidateMessage(msg); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, s.q(`
		INSERT INTO messages (id, sender_id, recipient_id, subject, message, read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING `+messageColumns))
	if err != nil {
		return nil, fmt.Errorf("preparing insert statement: %w", err)
	}
	defer stmt.Close()

	now := s.timestamp()
	out := make([]model.Message, 0, len(msg.RecipientIDs))
	for _, to := range msg.RecipientIDs {
		var row messageRow
		err := stmt.QueryRowxContext(ctx,
			uuid.New().String(), msg.SenderID, to, nullString(msg.Subject), msg.Body, false, now,
		).StructScan(&row)
		if err != nil {
			return nil, fmt.Errorf("inserting message to %s: %w", to, err)
		}
		out = append(out, row.model())
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing messages: %w", err)
	}
	return out, nil
}

// ListMessages returns messages the user sent or received, newest first.
func (s *SQLStore) ListMessages(ctx context.Context, userID string) ([]model.Message, error) {
	var rows []messageRow
	err := s.db.SelectContext(ctx, &rows,
		s.q("SELECT "+messageColumns+" FROM messages WHERE sender_id = ? OR recipient_id = ? ORDER BY created_at DESC, id DESC"),
		userID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	out := make([]model.Message, len(rows))
	for i, r := range rows {
		out[i] = r.model()
	}
	return out, nil
}

// MarkConversationRead marks unread messages from senderID to recipientID.
func (s *SQLStore) MarkConversationRead(ctx context.Context, recipientID, senderID string) (int, error) {
	res, err := s.db.ExecContext(ctx,
		s.q("UPDATE messages SET read = ? WHERE recipient_id = ? AND sender_id = ? AND read = ?"),
		true, recipientID, senderID, false,
	)
	if err != nil {
		return 0, fmt.Errorf("marking conversation read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reading affected rows: %w", err)
	}
	return int(n), nil
}
