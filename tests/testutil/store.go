package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/nhle/classroom/internal/model"
	"github.com/nhle/classroom/internal/store"
)

// NewTestStore creates an in-memory SQLStore with all migrations applied.
// It automatically closes the store when the test completes.
func NewTestStore(t *testing.T) *store.SQLStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})

	return s
}

// SeedNotifications inserts n notifications for userID, one minute apart
// and newest last, with the first unread entries unread.
func SeedNotifications(t *testing.T, s *store.SQLStore, userID string, n, unread int) []model.Notification {
	t.Helper()

	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	batch := make([]model.Notification, 0, n)
	for i := 0; i < n; i++ {
		batch = append(batch, model.Notification{
			UserID:    userID,
			Type:      model.NotificationAssignment,
			Title:     "New Assignment",
			Message:   "New assignment",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}

	created, err := s.CreateNotifications(context.Background(), batch)
	if err != nil {
		t.Fatalf("seeding notifications: %v", err)
	}
	for i := unread; i < len(created); i++ {
		if _, err := s.MarkNotificationRead(context.Background(), created[i].ID); err != nil {
			t.Fatalf("marking seeded notification read: %v", err)
		}
		created[i].Read = true
	}
	return created
}
