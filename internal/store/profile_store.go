package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/nhle/classroom/internal/gateway"
	"github.com/nhle/classroom/internal/model"
)

const profileColumns = "id, email, full_name, role, avatar_url, created_at"

type profileRow struct {
	ID        string         `db:"id"`
	Email     sql.NullString `db:"email"`
	FullName  sql.NullString `db:"full_name"`
	Role      sql.NullString `db:"role"`
	AvatarURL sql.NullString `db:"avatar_url"`
	CreatedAt timestamp      `db:"created_at"`
}

func (r profileRow) model() model.Profile {
	return model.Profile{
		ID: r.ID, Email: r.Email.String, FullName: r.FullName.String, Role: r.Role.String,
		AvatarURL: r.AvatarURL.String, CreatedAt: r.CreatedAt.Time,
	}
}

// ListStudents returns profiles with the student role, newest first.
func (s *SQLStore) ListStudents(ctx context.Context) ([]model.Profile, error) {
	var rows []profileRow
	err := s.db.SelectContext(ctx, &rows,
		s.q("SELECT "+profileColumns+" FROM profiles WHERE role = ? ORDER BY created_at DESC"),
		model.RoleStudent,
	)
	if err != nil {
		return nil, fmt.Errorf("querying students: %w", err)
	}
	return mapRows(rows, profileRow.model), nil
}

// UpsertProfile inserts or replaces a profile.
func (s *SQLStore) UpsertProfile(ctx context.Context, p model.Profile) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.timestamp()
	}
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO profiles (id, email, full_name, role, avatar_url, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			email = excluded.email,
			full_name = excluded.full_name,
			role = excluded.role`),
		p.ID, p.Email, p.FullName, p.Role, p.AvatarURL, p.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upserting profile %s: %w", p.ID, err)
	}
	return nil
}

// PutAvatar stores the image in the avatars table, points the profile at
// it and returns a cache-busted local URL.
func (s *SQLStore) PutAvatar(ctx context.Context, userID string, a gateway.Avatar) (string, error) {
	path := a.ObjectPath(userID)
	now := s.timestamp()
	url := "avatars/" + path + "?t=" + strconv.FormatInt(now.UnixMilli(), 10)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, s.q(`
		INSERT INTO avatars (path, user_id, content_type, data, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (path) DO UPDATE SET
			content_type = excluded.content_type,
			data = excluded.data,
			updated_at = excluded.updated_at`),
		path, userID, a.ContentType, a.Data, now,
	)
	if err != nil {
		return "", fmt.Errorf("storing avatar: %w", err)
	}

	if _, err := tx.ExecContext(ctx, s.q("UPDATE profiles SET avatar_url = ? WHERE id = ?"), url, userID); err != nil {
		return "", fmt.Errorf("updating profile avatar: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing avatar: %w", err)
	}
	return url, nil
}
