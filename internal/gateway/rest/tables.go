package rest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/nhle/classroom/internal/gateway"
	"github.com/nhle/classroom/internal/model"
)

const returnRepresentation = "return=representation"

// ListNotifications returns the user's notifications newest first.
func (c *Client) ListNotifications(ctx context.Context, userID string, limit int) ([]model.Notification, error) {
	q := newQuery("*").eq("user_id", userID).order("created_at", false).limit(limit)

	var out []model.Notification
	_, err := c.do(ctx, request{
		op: "list_notifications", method: http.MethodGet, path: table("notifications"), query: q.values(),
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}
	return out, nil
}

type readPatch struct {
	Read bool `json:"read"`
}

// MarkNotificationRead sets read=true on one notification.
func (c *Client) MarkNotificationRead(ctx context.Context, id string) (*model.Notification, error) {
	var out []model.Notification
	_, err := c.do(ctx, request{
		op: "mark_notification_read", method: http.MethodPatch, path: table("notifications"),
		query:  newQuery("").eq("id", id).values(),
		header: preferHeader(returnRepresentation),
		body:   readPatch{Read: true},
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("marking notification %s read: %w", id, err)
	}
	if len(out) == 0 {
		return nil, nil
	}
	return &out[0], nil
}

// MarkAllNotificationsRead flips every unread notification of userID.
func (c *Client) MarkAllNotificationsRead(ctx context.Context, userID string) ([]model.Notification, error) {
	var out []model.Notification
	_, err := c.do(ctx, request{
		op: "mark_all_notifications_read", method: http.MethodPatch, path: table("notifications"),
		query:  newQuery("").eq("user_id", userID).is("read", false).values(),
		header: preferHeader(returnRepresentation),
		body:   readPatch{Read: true},
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("marking all notifications read: %w", err)
	}
	return out, nil
}

// UnreadNotificationCount asks the backend for an exact count without
// transferring rows.
func (c *Client) UnreadNotificationCount(ctx context.Context, userID string) (int, error) {
	resp, err := c.do(ctx, request{
		op: "unread_notification_count", method: http.MethodHead, path: table("notifications"),
		query:  newQuery("*").eq("user_id", userID).is("read", false).values(),
		header: preferHeader("count=exact"),
	}, nil)
	if err != nil {
		return 0, fmt.Errorf("counting unread notifications: %w", err)
	}
	n, ok := parseContentRange(resp.header.Get("Content-Range"))
	if !ok {
		return 0, fmt.Errorf("counting unread notifications: bad Content-Range %q", resp.header.Get("Content-Range"))
	}
	return n, nil
}

type newNotification struct {
	UserID  string                 `json:"user_id"`
	Type    model.NotificationType `json:"type"`
	Title   string                 `json:"title"`
	Message string                 `json:"message"`
	Link    string                 `json:"link,omitempty"`
	Read    bool                   `json:"read"`
}

// CreateNotifications bulk inserts unread notifications.
func (c *Client) CreateNotifications(ctx context.Context, ns []model.Notification) ([]model.Notification, error) {
	if len(ns) == 0 {
		return nil, nil
	}
	rows := make([]newNotification, 0, len(ns))
	for _, n := range ns {
		rows = append(rows, newNotification{
			UserID: n.UserID, Type: n.Type, Title: n.Title, Message: n.Message, Link: n.Link,
		})
	}

	var out []model.Notification
	_, err := c.do(ctx, request{
		op: "create_notifications", method: http.MethodPost, path: table("notifications"),
		header: preferHeader(returnRepresentation), body: rows,
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("creating %d notifications: %w", len(rows), err)
	}
	return out, nil
}

type newMessage struct {
	SenderID    string `json:"sender_id"`
	RecipientID string `json:"recipient_id"`
	Subject     string `json:"subject,omitempty"`
	Message     string `json:"message"`
	Read        bool   `json:"read"`
}

// SendMessage stores one message row per recipient.
func (c *Client) SendMessage(ctx context.Context, msg model.OutgoingMessage) ([]model.Message, error) {
	if err := gateway.ValidateMessage(msg); err != nil {
		return nil, err
	}
	rows := make([]newMessage, 0, len(msg.RecipientIDs))
	for _, to := range msg.RecipientIDs {
		rows = append(rows, newMessage{
			SenderID: msg.SenderID, RecipientID: to, Subject: msg.Subject, Message: msg.Body,
		})
	}

	var out []model.Message
	_, err := c.do(ctx, request{
		op: "send_message", method: http.MethodPost, path: table("messages"),
		header: preferHeader(returnRepresentation), body: rows,
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("sending message: %w", err)
	}
	return out, nil
}

// ListMessages returns every message the user sent or received.
func (c *Client) ListMessages(ctx context.Context, userID string) ([]model.Message, error) {
	q := newQuery("*").
		or("sender_id.eq."+userID, "recipient_id.eq."+userID).
		order("created_at", false)

	var out []model.Message
	_, err := c.do(ctx, request{
		op: "list_messages", method: http.MethodGet, path: table("messages"), query: q.values(),
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	return out, nil
}

// MarkConversationRead flips unread messages from senderID to recipientID.
func (c *Client) MarkConversationRead(ctx context.Context, recipientID, senderID string) (int, error) {
	var out []model.Message
	_, err := c.do(ctx, request{
		op: "mark_conversation_read", method: http.MethodPatch, path: table("messages"),
		query:  newQuery("id").eq("recipient_id", recipientID).eq("sender_id", senderID).is("read", false).values(),
		header: preferHeader(returnRepresentation),
		body:   readPatch{Read: true},
	}, &out)
	if err != nil {
		return 0, fmt.Errorf("marking conversation read: %w", err)
	}
	return len(out), nil
}

func (c *Client) ListCourses(ctx context.Context) ([]model.Course, error) {
	var out []model.Course
	_, err := c.do(ctx, request{
		op: "list_courses", method: http.MethodGet, path: table("courses"),
		query: newQuery("*").order("created_at", false).values(),
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("listing courses: %w", err)
	}
	return out, nil
}

// ListEnrollments embeds the course of each enrollment.
func (c *Client) ListEnrollments(ctx context.Context, userID string) ([]model.Enrollment, error) {
	var out []model.Enrollment
	_, err := c.do(ctx, request{
		op: "list_enrollments", method: http.MethodGet, path: table("enrollments"),
		query: newQuery("*,courses(*)").eq("user_id", userID).values(),
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("listing enrollments: %w", err)
	}
	return out, nil
}

func (c *Client) ListActiveStudentIDs(ctx context.Context, courseID string) ([]string, error) {
	var rows []struct {
		UserID string `json:"user_id"`
	}
	_, err := c.do(ctx, request{
		op: "list_active_students", method: http.MethodGet, path: table("enrollments"),
		query: newQuery("user_id").eq("course_id", courseID).eq("status", model.EnrollmentActive).values(),
	}, &rows)
	if err != nil {
		return nil, fmt.Errorf("listing enrollments of course %s: %w", courseID, err)
	}
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.UserID)
	}
	return ids, nil
}

func (c *Client) ListLiveClasses(ctx context.Context) ([]model.LiveClass, error) {
	var out []model.LiveClass
	_, err := c.do(ctx, request{
		op: "list_live_classes", method: http.MethodGet, path: table("live_classes"),
		query: newQuery("*").is("is_public", true).order("scheduled_at", true).values(),
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("listing live classes: %w", err)
	}
	return out, nil
}

func (c *Client) ListTests(ctx context.Context) ([]model.Test, error) {
	var out []model.Test
	_, err := c.do(ctx, request{
		op: "list_tests", method: http.MethodGet, path: table("tests"),
		query: newQuery("*").order("due_date", true).values(),
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("listing tests: %w", err)
	}
	return out, nil
}

// ListAssignments lists assignments of courseID, or all when empty.
func (c *Client) ListAssignments(ctx context.Context, courseID string) ([]model.Assignment, error) {
	q := newQuery("*").order("due_date", true)
	if courseID != "" {
		q.eq("course_id", courseID)
	}
	var out []model.Assignment
	_, err := c.do(ctx, request{
		op: "list_assignments", method: http.MethodGet, path: table("assignments"), query: q.values(),
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("listing assignments: %w", err)
	}
	return out, nil
}

// insertOne posts a single row and decodes the returned representation.
func insertOne[T any](ctx context.Context, c *Client, op, name string, row any) (*T, error) {
	var out []T
	_, err := c.do(ctx, request{
		op: op, method: http.MethodPost, path: table(name),
		header: preferHeader(returnRepresentation), body: []any{row},
	}, &out)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("insert into %s returned no rows", name)
	}
	return &out[0], nil
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func (c *Client) CreateAssignment(ctx context.Context, a model.Assignment) (*model.Assignment, error) {
	row := struct {
		CourseID    string     `json:"course_id"`
		TeacherID   string     `json:"teacher_id"`
		Title       string     `json:"title"`
		Description string     `json:"description"`
		DueDate     *time.Time `json:"due_date,omitempty"`
		MaxScore    int        `json:"max_score"`
	}{a.CourseID, a.TeacherID, a.Title, a.Description, timePtr(a.DueDate), a.MaxScore}

	out, err := insertOne[model.Assignment](ctx, c, "create_assignment", "assignments", row)
	if err != nil {
		return nil, fmt.Errorf("creating assignment: %w", err)
	}
	return out, nil
}

func (c *Client) CreateTest(ctx context.Context, t model.Test) (*model.Test, error) {
	row := struct {
		CourseID        string     `json:"course_id"`
		TeacherID       string     `json:"teacher_id"`
		Title           string     `json:"title"`
		Description     string     `json:"description"`
		DueDate         *time.Time `json:"due_date,omitempty"`
		DurationMinutes int        `json:"duration_minutes"`
		TotalMarks      int        `json:"total_marks"`
	}{t.CourseID, t.TeacherID, t.Title, t.Description, timePtr(t.DueDate), t.DurationMinutes, t.TotalMarks}

	out, err := insertOne[model.Test](ctx, c, "create_test", "tests", row)
	if err != nil {
		return nil, fmt.Errorf("creating test: %w", err)
	}
	return out, nil
}

func (c *Client) ScheduleLiveClass(ctx context.Context, lc model.LiveClass) (*model.LiveClass, error) {
	row := struct {
		TeacherID       string     `json:"teacher_id"`
		CourseID        string     `json:"course_id"`
		Title           string     `json:"title"`
		Description     string     `json:"description"`
		ScheduledAt     *time.Time `json:"scheduled_at,omitempty"`
		DurationMinutes int        `json:"duration_minutes"`
		Status          string     `json:"status"`
		IsPublic        bool       `json:"is_public"`
		MeetingURL      string     `json:"meeting_url,omitempty"`
	}{lc.TeacherID, lc.CourseID, lc.Title, lc.Description, timePtr(lc.ScheduledAt), lc.DurationMinutes, lc.Status, lc.IsPublic, lc.MeetingURL}

	out, err := insertOne[model.LiveClass](ctx, c, "schedule_live_class", "live_classes", row)
	if err != nil {
		return nil, fmt.Errorf("scheduling live class: %w", err)
	}
	return out, nil
}

func (c *Client) CreateAnnouncement(ctx context.Context, a model.Announcement) (*model.Announcement, error) {
	row := struct {
		CourseID  string `json:"course_id"`
		TeacherID string `json:"teacher_id"`
		Title     string `json:"title"`
		Content   string `json:"content"`
	}{a.CourseID, a.TeacherID, a.Title, a.Content}

	out, err := insertOne[model.Announcement](ctx, c, "create_announcement", "announcements", row)
	if err != nil {
		return nil, fmt.Errorf("creating announcement: %w", err)
	}
	return out, nil
}

func (c *Client) ListStudents(ctx context.Context) ([]model.Profile, error) {
	var out []model.Profile
	_, err := c.do(ctx, request{
		op: "list_students", method: http.MethodGet, path: table("profiles"),
		query: newQuery("*").eq("role", model.RoleStudent).order("created_at", false).values(),
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("listing students: %w", err)
	}
	return out, nil
}
