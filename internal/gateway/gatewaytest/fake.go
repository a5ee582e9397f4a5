// Package gatewaytest provides an in-memory gateway.Gateway for tests.
package gatewaytest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nhle/classroom/internal/gateway"
	"github.com/nhle/classroom/internal/model"
)

// Fake is an in-memory Gateway. Fields may be seeded directly before the
// fake is shared; afterwards use the methods.
type Fake struct {
	mu sync.Mutex

	Notifications []model.Notification
	Messages      []model.Message
	Courses       []model.Course
	Enrollments   []model.Enrollment
	LiveClasses   []model.LiveClass
	Tests         []model.Test
	Assignments   []model.Assignment
	Announcements []model.Announcement
	Profiles      []model.Profile
	Avatars       map[string]gateway.Avatar

	// Err, when set, fails every call.
	Err error

	// FailNotificationWrites fails CreateNotifications only.
	FailNotificationWrites error

	// BeforeList, when set, runs at the start of ListNotifications and
	// ListMessages. Returning an error fails the call.
	BeforeList func(ctx context.Context) error

	// AfterList, when set, runs after ListNotifications or ListMessages
	// has read its rows and before it returns them, so the result can be
	// held back while other calls change server state.
	AfterList func(ctx context.Context) error

	calls  map[string]int
	nextID int
}

var _ gateway.Gateway = (*Fake)(nil)

// NewFake returns an empty Fake.
func NewFake() *Fake {
	return &Fake{Avatars: make(map[string]gateway.Avatar), calls: make(map[string]int)}
}

// Calls returns how often op was invoked.
func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// SetErr replaces the error returned by every call.
func (f *Fake) SetErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Err = err
}

// AddNotification inserts n as if created server side.
func (f *Fake) AddNotification(n model.Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n.ID == "" {
		n.ID = f.id("n")
	}
	f.Notifications = append(f.Notifications, n)
}

// SetRead flips one notification server side without counting as a call.
func (f *Fake) SetRead(id string, read bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.Notifications {
		if f.Notifications[i].ID == id {
			f.Notifications[i].Read = read
		}
	}
}

// enter records the call and returns the injected error. f.mu must be held.
func (f *Fake) enter(op string) error {
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[op]++
	return f.Err
}

// id returns a fresh identifier. Generated ids carry a "fake-" prefix so
// they never collide with fixture ids. f.mu must be held.
func (f *Fake) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("fake-%s%d", prefix, f.nextID)
}

func (f *Fake) Mode() gateway.Mode { return gateway.ModeDirect }

func (f *Fake) beforeList(ctx context.Context) error {
	f.mu.Lock()
	hook := f.BeforeList
	f.mu.Unlock()
	if hook == nil {
		return nil
	}
	return hook(ctx)
}

func (f *Fake) afterList(ctx context.Context) error {
	f.mu.Lock()
	hook := f.AfterList
	f.mu.Unlock()
	if hook == nil {
		return nil
	}
	return hook(ctx)
}

func (f *Fake) ListNotifications(ctx context.Context, userID string, limit int) ([]model.Notification, error) {
	if err := f.beforeList(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	if err := f.enter("ListNotifications"); err != nil {
		f.mu.Unlock()
		return nil, err
	}
	var out []model.Notification
	for _, n := range f.Notifications {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	f.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	if err := f.afterList(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func (f *Fake) MarkNotificationRead(_ context.Context, id string) (*model.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("MarkNotificationRead"); err != nil {
		return nil, err
	}
	for i := range f.Notifications {
		if f.Notifications[i].ID == id {
			f.Notifications[i].Read = true
			n := f.Notifications[i]
			return &n, nil
		}
	}
	return nil, nil
}

func (f *Fake) MarkAllNotificationsRead(_ context.Context, userID string) ([]model.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("MarkAllNotificationsRead"); err != nil {
		return nil, err
	}
	var out []model.Notification
	for i := range f.Notifications {
		n := &f.Notifications[i]
		if n.UserID == userID && !n.Read {
			n.Read = true
			out = append(out, *n)
		}
	}
	return out, nil
}

func (f *Fake) UnreadNotificationCount(_ context.Context, userID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("UnreadNotificationCount"); err != nil {
		return 0, err
	}
	count := 0
	for _, n := range f.Notifications {
		if n.UserID == userID && !n.Read {
			count++
		}
	}
	return count, nil
}

func (f *Fake) CreateNotifications(_ context.Context, ns []model.Notification) ([]model.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("CreateNotifications"); err != nil {
		return nil, err
	}
	if f.FailNotificationWrites != nil {
		return nil, f.FailNotificationWrites
	}
	out := make([]model.Notification, 0, len(ns))
	for _, n := range ns {
		n.ID = f.id("n")
		n.Read = false
		if n.CreatedAt.IsZero() {
			n.CreatedAt = time.Now()
		}
		f.Notifications = append(f.Notifications, n)
		out = append(out, n)
	}
	return out, nil
}

func (f *Fake) SendMessage(_ context.Context, msg model.OutgoingMessage) ([]model.Message, error) {
	if err := gateway.ValidateMessage(msg); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("SendMessage"); err != nil {
		return nil, err
	}
	now := time.Now()
	out := make([]model.Message, 0, len(msg.RecipientIDs))
	for _, to := range msg.RecipientIDs {
		m := model.Message{
			ID:          f.id("m"),
			SenderID:    msg.SenderID,
			RecipientID: to,
			Subject:     msg.Subject,
			Body:        msg.Body,
			CreatedAt:   now,
		}
		f.Messages = append(f.Messages, m)
		out = append(out, m)
	}
	return out, nil
}

func (f *Fake) ListMessages(ctx context.Context, userID string) ([]model.Message, error) {
	if err := f.beforeList(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	if err := f.enter("ListMessages"); err != nil {
		f.mu.Unlock()
		return nil, err
	}
	var out []model.Message
	for _, m := range f.Messages {
		if m.SenderID == userID || m.RecipientID == userID {
			out = append(out, m)
		}
	}
	f.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if err := f.afterList(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func (f *Fake) MarkConversationRead(_ context.Context, recipientID, senderID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("MarkConversationRead"); err != nil {
		return 0, err
	}
	n := 0
	for i := range f.Messages {
		m := &f.Messages[i]
		if m.RecipientID == recipientID && m.SenderID == senderID && !m.Read {
			m.Read = true
			n++
		}
	}
	return n, nil
}

func (f *Fake) ListCourses(context.Context) ([]model.Course, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ListCourses"); err != nil {
		return nil, err
	}
	return append([]model.Course(nil), f.Courses...), nil
}

func (f *Fake) ListEnrollments(_ context.Context, userID string) ([]model.Enrollment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ListEnrollments"); err != nil {
		return nil, err
	}
	var out []model.Enrollment
	for _, e := range f.Enrollments {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *Fake) ListActiveStudentIDs(_ context.Context, courseID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ListActiveStudentIDs"); err != nil {
		return nil, err
	}
	var out []string
	for _, e := range f.Enrollments {
		if e.CourseID == courseID && e.Status == model.EnrollmentActive {
			out = append(out, e.UserID)
		}
	}
	return out, nil
}

func (f *Fake) ListLiveClasses(context.Context) ([]model.LiveClass, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ListLiveClasses"); err != nil {
		return nil, err
	}
	var out []model.LiveClass
	for _, lc := range f.LiveClasses {
		if lc.IsPublic {
			out = append(out, lc)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out, nil
}

func (f *Fake) ListTests(context.Context) ([]model.Test, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ListTests"); err != nil {
		return nil, err
	}
	out := append([]model.Test(nil), f.Tests...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].DueDate.Before(out[j].DueDate) })
	return out, nil
}

func (f *Fake) ListAssignments(_ context.Context, courseID string) ([]model.Assignment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ListAssignments"); err != nil {
		return nil, err
	}
	var out []model.Assignment
	for _, a := range f.Assignments {
		if courseID == "" || a.CourseID == courseID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *Fake) CreateAssignment(_ context.Context, a model.Assignment) (*model.Assignment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("CreateAssignment"); err != nil {
		return nil, err
	}
	a.ID = f.id("a")
	f.Assignments = append(f.Assignments, a)
	return &a, nil
}

func (f *Fake) CreateTest(_ context.Context, t model.Test) (*model.Test, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("CreateTest"); err != nil {
		return nil, err
	}
	t.ID = f.id("t")
	f.Tests = append(f.Tests, t)
	return &t, nil
}

func (f *Fake) ScheduleLiveClass(_ context.Context, lc model.LiveClass) (*model.LiveClass, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ScheduleLiveClass"); err != nil {
		return nil, err
	}
	lc.ID = f.id("lc")
	f.LiveClasses = append(f.LiveClasses, lc)
	return &lc, nil
}

func (f *Fake) CreateAnnouncement(_ context.Context, a model.Announcement) (*model.Announcement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("CreateAnnouncement"); err != nil {
		return nil, err
	}
	a.ID = f.id("an")
	a.CreatedAt = time.Now()
	f.Announcements = append(f.Announcements, a)
	return &a, nil
}

func (f *Fake) ListStudents(context.Context) ([]model.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ListStudents"); err != nil {
		return nil, err
	}
	var out []model.Profile
	for _, p := range f.Profiles {
		if p.Role == model.RoleStudent {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *Fake) PutAvatar(_ context.Context, userID string, a gateway.Avatar) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("PutAvatar"); err != nil {
		return "", err
	}
	if f.Avatars == nil {
		f.Avatars = make(map[string]gateway.Avatar)
	}
	path := a.ObjectPath(userID)
	f.Avatars[path] = a
	return "memory://avatars/" + path, nil
}
