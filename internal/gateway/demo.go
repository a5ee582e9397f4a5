package gateway

import (
	"context"

	"github.com/nhle/classroom/internal/model"
)

// DemoSession is the session handed out when no backend is configured.
func DemoSession() *model.Session {
	return &model.Session{
		User: model.User{
			ID:       model.DemoUserID,
			Email:    "demo@classroom.local",
			FullName: "Demo Student",
			Role:     model.RoleStudent,
		},
	}
}

// Unconfigured is the Gateway used when no backend credentials are set.
// Every data operation succeeds with an empty result and never performs
// I/O; auth hands out DemoSession.
type Unconfigured struct{}

var (
	_ Gateway       = Unconfigured{}
	_ Authenticator = Unconfigured{}
)

func (Unconfigured) Mode() Mode { return ModeDemo }

func (Unconfigured) ListNotifications(context.Context, string, int) ([]model.Notification, error) {
	return nil, nil
}

func (Unconfigured) MarkNotificationRead(context.Context, string) (*model.Notification, error) {
	return nil, nil
}

func (Unconfigured) MarkAllNotificationsRead(context.Context, string) ([]model.Notification, error) {
	return nil, nil
}

func (Unconfigured) UnreadNotificationCount(context.Context, string) (int, error) {
	return 0, nil
}

func (Unconfigured) CreateNotifications(context.Context, []model.Notification) ([]model.Notification, error) {
	return nil, nil
}

func (Unconfigured) SendMessage(context.Context, model.OutgoingMessage) ([]model.Message, error) {
	return nil, nil
}

func (Unconfigured) ListMessages(context.Context, string) ([]model.Message, error) {
	return nil, nil
}

func (Unconfigured) MarkConversationRead(context.Context, string, string) (int, error) {
	return 0, nil
}

func (Unconfigured) ListCourses(context.Context) ([]model.Course, error) { return nil, nil }

func (Unconfigured) ListEnrollments(context.Context, string) ([]model.Enrollment, error) {
	return nil, nil
}

func (Unconfigured) ListActiveStudentIDs(context.Context, string) ([]string, error) {
	return nil, nil
}

func (Unconfigured) ListLiveClasses(context.Context) ([]model.LiveClass, error) { return nil, nil }

func (Unconfigured) ListTests(context.Context) ([]model.Test, error) { return nil, nil }

func (Unconfigured) ListAssignments(context.Context, string) ([]model.Assignment, error) {
	return nil, nil
}

func (Unconfigured) CreateAssignment(context.Context, model.Assignment) (*model.Assignment, error) {
	return nil, nil
}

func (Unconfigured) CreateTest(context.Context, model.Test) (*model.Test, error) { return nil, nil }

func (Unconfigured) ScheduleLiveClass(context.Context, model.LiveClass) (*model.LiveClass, error) {
	return nil, nil
}

func (Unconfigured) CreateAnnouncement(context.Context, model.Announcement) (*model.Announcement, error) {
	return nil, nil
}

func (Unconfigured) ListStudents(context.Context) ([]model.Profile, error) { return nil, nil }

func (Unconfigured) PutAvatar(context.Context, string, Avatar) (string, error) { return "", nil }

func (Unconfigured) SignIn(context.Context, string, string) (*model.Session, error) {
	return DemoSession(), nil
}

func (Unconfigured) SendOTP(context.Context, string) error { return nil }

func (Unconfigured) VerifyOTP(context.Context, string, string) (*model.Session, error) {
	return DemoSession(), nil
}

func (Unconfigured) Refresh(context.Context, string) (*model.Session, error) {
	return DemoSession(), nil
}

func (Unconfigured) SignOut(context.Context, *model.Session) error { return nil }

// StaticAuth authenticates every caller as one fixed user. It backs the
// direct SQL drivers, which have no auth service.
type StaticAuth struct {
	User model.User
}

var _ Authenticator = StaticAuth{}

func (a StaticAuth) session() *model.Session {
	return &model.Session{User: a.User}
}

func (a StaticAuth) SignIn(context.Context, string, string) (*model.Session, error) {
	return a.session(), nil
}

func (a StaticAuth) SendOTP(context.Context, string) error { return nil }

func (a StaticAuth) VerifyOTP(context.Context, string, string) (*model.Session, error) {
	return a.session(), nil
}

func (a StaticAuth) Refresh(context.Context, string) (*model.Session, error) {
	return a.session(), nil
}

func (a StaticAuth) SignOut(context.Context, *model.Session) error { return nil }
