// Package gateway defines the contract between the client and the hosted
// e-learning backend. Every operation returns (value, error); callers
// check the error before trusting the value. Three implementations exist:
// the hosted REST backend (package rest), direct SQL (package store) and
// Unconfigured, which answers every call with an empty success.
package gateway

import (
	"context"

	"github.com/nhle/classroom/internal/model"
)

// Mode reports which implementation backs a Gateway.
type Mode string

const (
	ModeRemote Mode = "remote"
	ModeDirect Mode = "direct"
	ModeDemo   Mode = "demo"
)

// NotificationGateway reads and acknowledges notifications.
type NotificationGateway interface {
	// ListNotifications returns the user's notifications newest first,
	// at most limit entries.
	ListNotifications(ctx context.Context, userID string, limit int) ([]model.Notification, error)

	// MarkNotificationRead sets read=true on one row and returns the
	// confirmed row. A nil row with a nil error means nothing matched.
	MarkNotificationRead(ctx context.Context, id string) (*model.Notification, error)

	// MarkAllNotificationsRead flips every unread row of the user and
	// returns the updated rows.
	MarkAllNotificationsRead(ctx context.Context, userID string) ([]model.Notification, error)

	// UnreadNotificationCount is an exact server-side count.
	UnreadNotificationCount(ctx context.Context, userID string) (int, error)

	// CreateNotifications bulk inserts rows with read=false.
	CreateNotifications(ctx context.Context, ns []model.Notification) ([]model.Notification, error)
}

// MessageGateway sends and lists direct messages.
type MessageGateway interface {
	// SendMessage stores one row per recipient and returns them.
	SendMessage(ctx context.Context, msg model.OutgoingMessage) ([]model.Message, error)

	// ListMessages returns rows where the user is sender or recipient,
	// newest first.
	ListMessages(ctx context.Context, userID string) ([]model.Message, error)

	// MarkConversationRead flips every unread message from senderID to
	// recipientID and returns how many rows changed.
	MarkConversationRead(ctx context.Context, recipientID, senderID string) (int, error)
}

// CourseGateway covers the course catalogue and teacher publishing.
type CourseGateway interface {
	ListCourses(ctx context.Context) ([]model.Course, error)
	ListEnrollments(ctx context.Context, userID string) ([]model.Enrollment, error)
	ListActiveStudentIDs(ctx context.Context, courseID string) ([]string, error)
	// ListLiveClasses returns public classes, earliest first.
	ListLiveClasses(ctx context.Context) ([]model.LiveClass, error)
	// ListTests returns tests by due date, earliest first.
	ListTests(ctx context.Context) ([]model.Test, error)
	ListAssignments(ctx context.Context, courseID string) ([]model.Assignment, error)

	CreateAssignment(ctx context.Context, a model.Assignment) (*model.Assignment, error)
	CreateTest(ctx context.Context, t model.Test) (*model.Test, error)
	ScheduleLiveClass(ctx context.Context, lc model.LiveClass) (*model.LiveClass, error)
	CreateAnnouncement(ctx context.Context, a model.Announcement) (*model.Announcement, error)
}

// ProfileGateway covers user profiles and avatars.
type ProfileGateway interface {
	ListStudents(ctx context.Context) ([]model.Profile, error)

	// PutAvatar stores an already validated avatar and returns its
	// public URL.
	PutAvatar(ctx context.Context, userID string, a Avatar) (string, error)
}

// Authenticator signs users in and out.
type Authenticator interface {
	SignIn(ctx context.Context, email, password string) (*model.Session, error)
	// SendOTP mails a one-time code. It never creates an account.
	SendOTP(ctx context.Context, email string) error
	VerifyOTP(ctx context.Context, email, token string) (*model.Session, error)
	Refresh(ctx context.Context, refreshToken string) (*model.Session, error)
	SignOut(ctx context.Context, s *model.Session) error
}

// Gateway is the full data surface used by the client.
type Gateway interface {
	NotificationGateway
	MessageGateway
	CourseGateway
	ProfileGateway

	Mode() Mode
}
