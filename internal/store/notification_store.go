package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/classroom/internal/model"
)

const notificationColumns = "id, user_id, type, title, message, link, read, created_at"

type notificationRow struct {
	ID        string         `db:"id"`
	UserID    string         `db:"user_id"`
	Type      string         `db:"type"`
	Title     string         `db:"title"`
	Message   sql.NullString `db:"message"`
	Link      sql.NullString `db:"link"`
	Read      bool           `db:"read"`
	CreatedAt timestamp      `db:"created_at"`
}

func (r notificationRow) model() model.Notification {
	return model.Notification{
		ID:        r.ID,
		UserID:    r.UserID,
		Type:      model.NotificationType(r.Type),
		Title:     r.Title,
		Message:   r.Message.String,
		Link:      r.Link.String,
		Read:      r.Read,
		CreatedAt: r.CreatedAt.Time,
	}
}

func notificationsFromRows(rows []notificationRow) []model.Notification {
	if len(rows) == 0 {
		return nil
	}
	out := make([]model.Notification, len(rows))
	for i, r := range rows {
		out[i] = r.model()
	}
	return out
}

// ListNotifications returns the user's notifications newest first.
func (s *SQLStore) ListNotifications(ctx context.Context, userID string, limit int) ([]model.Notification, error) {
	query := "SELECT " + notificationColumns + " FROM notifications WHERE user_id = ? ORDER BY created_at DESC, id DESC"
	args := []any{userID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	var rows []notificationRow
	if err := s.db.SelectContext(ctx, &rows, s.q(query), args...); err != nil {
		return nil, fmt.Errorf("querying notifications: %w", err)
	}
	return notificationsFromRows(rows), nil
}

// MarkNotificationRead marks a single notification as read and returns it.
func (s *SQLStore) MarkNotificationRead(ctx context.Context, id string) (*model.Notification, error) {
	var row notificationRow
	err := s.db.GetContext(ctx, &row,
		s.q("UPDATE notifications SET read = ? WHERE id = ? RETURNING "+notificationColumns),
		true, id,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("marking notification %s as read: %w", id, err)
	}
	n := row.model()
	return &n, nil
}

// MarkAllNotificationsRead marks every unread notification of the user.
func (s *SQLStore) MarkAllNotificationsRead(ctx context.Context, userID string) ([]model.Notification, error) {
	var rows []notificationRow
	err := s.db.SelectContext(ctx, &rows,
		s.q("UPDATE notifications SET read = ? WHERE user_id = ? AND read = ? RETURNING "+notificationColumns),
		true, userID, false,
	)
	if err != nil {
		return nil, fmt.Errorf("marking notifications of %s as read: %w", userID, err)
	}
	return notificationsFromRows(rows), nil
}

// UnreadNotificationCount counts the user's unread notifications.
func (s *SQLStore) UnreadNotificationCount(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n,
		s.q("SELECT COUNT(*) FROM notifications WHERE user_id = ? AND read = ?"),
		userID, false,
	)
	if err != nil {
		return 0, fmt.Errorf("counting unread notifications: %w", err)
	}
	return n, nil
}

// CreateNotifications inserts unread notifications in one transaction.
// A zero CreatedAt is stamped with the current time.
func (s *SQLStore) CreateNotifications(ctx context.Context, ns []model.Notification) ([]model.Notification, error) {
	if len(ns) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, s.q(`
		INSERT INTO notifications (id, user_id, type, title, message, link, read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING `+notificationColumns))
	if err != nil {
		return nil, fmt.Errorf("preparing insert statement: %w", err)
	}
	defer stmt.Close()

	out := make([]model.Notification, 0, len(ns))
	for _, n := range ns {
		createdAt := n.CreatedAt.UTC()
		if n.CreatedAt.IsZero() {
			createdAt = s.timestamp()
		}

		var row notificationRow
		err := stmt.QueryRowxContext(ctx,
			uuid.New().String(), n.UserID, string(n.Type), n.Title, n.Message,
			nullString(n.Link), false, createdAt,
		).StructScan(&row)
		if err != nil {
			return nil, fmt.Errorf("inserting notification for %s: %w", n.UserID, err)
		}
		out = append(out, row.model())
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing notifications: %w", err)
	}
	return out, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t.UTC(), Valid: !t.IsZero()}
}
