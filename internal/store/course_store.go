package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nhle/classroom/internal/model"
)

const (
	courseColumns       = "id, teacher_id, title, description, category, level, published, created_at"
	enrollmentColumns   = "id, user_id, course_id, status, progress, enrolled_at"
	liveClassColumns    = "id, teacher_id, course_id, title, description, scheduled_at, duration_minutes, status, is_public, meeting_url"
	testColumns         = "id, course_id, teacher_id, title, description, due_date, duration_minutes, total_marks"
	assignmentColumns   = "id, course_id, teacher_id, title, description, due_date, max_score"
	announcementColumns = "id, course_id, teacher_id, title, content, created_at"
)

type courseRow struct {
	ID          string         `db:"id"`
	TeacherID   string         `db:"teacher_id"`
	Title       string         `db:"title"`
	Description sql.NullString `db:"description"`
	Category    sql.NullString `db:"category"`
	Level       sql.NullString `db:"level"`
	Published   bool           `db:"published"`
	CreatedAt   timestamp      `db:"created_at"`
}

func (r courseRow) model() model.Course {
	return model.Course{
		ID: r.ID, TeacherID: r.TeacherID, Title: r.Title,
		Description: r.Description.String, Category: r.Category.String, Level: r.Level.String,
		Published: r.Published, CreatedAt: r.CreatedAt.Time,
	}
}

type enrollmentRow struct {
	ID         string    `db:"id"`
	UserID     string    `db:"user_id"`
	CourseID   string    `db:"course_id"`
	Status     string    `db:"status"`
	Progress   int       `db:"progress"`
	EnrolledAt timestamp `db:"enrolled_at"`
}

type liveClassRow struct {
	ID              string         `db:"id"`
	TeacherID       string         `db:"teacher_id"`
	CourseID        string         `db:"course_id"`
	Title           string         `db:"title"`
	Description     sql.NullString `db:"description"`
	ScheduledAt     timestamp      `db:"scheduled_at"`
	DurationMinutes int            `db:"duration_minutes"`
	Status          string         `db:"status"`
	IsPublic        bool           `db:"is_public"`
	MeetingURL      sql.NullString `db:"meeting_url"`
}

func (r liveClassRow) model() model.LiveClass {
	return model.LiveClass{
		ID: r.ID, TeacherID: r.TeacherID, CourseID: r.CourseID, Title: r.Title,
		Description: r.Description.String, ScheduledAt: r.ScheduledAt.Time,
		DurationMinutes: r.DurationMinutes, Status: r.Status, IsPublic: r.IsPublic,
		MeetingURL: r.MeetingURL.String,
	}
}

type testRow struct {
	ID              string         `db:"id"`
	CourseID        string         `db:"course_id"`
	TeacherID       string         `db:"teacher_id"`
	Title           string         `db:"title"`
	Description     sql.NullString `db:"description"`
	DueDate         timestamp      `db:"due_date"`
	DurationMinutes int            `db:"duration_minutes"`
	TotalMarks      int            `db:"total_marks"`
}

func (r testRow) model() model.Test {
	return model.Test{
		ID: r.ID, CourseID: r.CourseID, TeacherID: r.TeacherID, Title: r.Title,
		Description: r.Description.String, DueDate: r.DueDate.Time,
		DurationMinutes: r.DurationMinutes, TotalMarks: r.TotalMarks,
	}
}

type assignmentRow struct {
	ID          string         `db:"id"`
	CourseID    string         `db:"course_id"`
	TeacherID   string         `db:"teacher_id"`
	Title       string         `db:"title"`
	Description sql.NullString `db:"description"`
	DueDate     timestamp      `db:"due_date"`
	MaxScore    int            `db:"max_score"`
}

func (r assignmentRow) model() model.Assignment {
	return model.Assignment{
		ID: r.ID, CourseID: r.CourseID, TeacherID: r.TeacherID, Title: r.Title,
		Description: r.Description.String, DueDate: r.DueDate.Time, MaxScore: r.MaxScore,
	}
}

type announcementRow struct {
	ID        string         `db:"id"`
	CourseID  string         `db:"course_id"`
	TeacherID string         `db:"teacher_id"`
	Title     string         `db:"title"`
	Content   sql.NullString `db:"content"`
	CreatedAt timestamp      `db:"created_at"`
}

// ListCourses returns every course, newest first.
func (s *SQLStore) ListCourses(ctx context.Context) ([]model.Course, error) {
	var rows []courseRow
	if err := s.db.SelectContext(ctx, &rows, "SELECT "+courseColumns+" FROM courses ORDER BY created_at DESC"); err != nil {
		return nil, fmt.Errorf("querying courses: %w", err)
	}
	return mapRows(rows, courseRow.model), nil
}

// ListEnrollments returns the user's enrollments with their courses.
func (s *SQLStore) ListEnrollments(ctx context.Context, userID string) ([]model.Enrollment, error) {
	var rows []enrollmentRow
	err := s.db.SelectContext(ctx, &rows,
		s.q("SELECT "+enrollmentColumns+" FROM enrollments WHERE user_id = ? ORDER BY enrolled_at DESC"),
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying enrollments: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.CourseID)
	}
	query, args, err := sqlx.In("SELECT "+courseColumns+" FROM courses WHERE id IN (?)", ids)
	if err != nil {
		return nil, fmt.Errorf("building course query: %w", err)
	}
	var courses []courseRow
	if err := s.db.SelectContext(ctx, &courses, s.q(query), args...); err != nil {
		return nil, fmt.Errorf("querying enrolled courses: %w", err)
	}
	byID := make(map[string]model.Course, len(courses))
	for _, c := range courses {
		byID[c.ID] = c.model()
	}

	out := make([]model.Enrollment, 0, len(rows))
	for _, r := range rows {
		e := model.Enrollment{
			ID: r.ID, UserID: r.UserID, CourseID: r.CourseID, Status: r.Status,
			Progress: r.Progress, EnrolledAt: r.EnrolledAt.Time,
		}
		if c, ok := byID[r.CourseID]; ok {
			e.Course = &c
		}
		out = append(out, e)
	}
	return out, nil
}

// ListActiveStudentIDs returns the users actively enrolled in a course.
func (s *SQLStore) ListActiveStudentIDs(ctx context.Context, courseID string) ([]string, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids,
		s.q("SELECT user_id FROM enrollments WHERE course_id = ? AND status = ? ORDER BY enrolled_at"),
		courseID, model.EnrollmentActive,
	)
	if err != nil {
		return nil, fmt.Errorf("querying enrollments of course %s: %w", courseID, err)
	}
	return ids, nil
}

// ListLiveClasses returns public live classes, earliest first.
func (s *SQLStore) ListLiveClasses(ctx context.Context) ([]model.LiveClass, error) {
	var rows []liveClassRow
	err := s.db.SelectContext(ctx, &rows,
		s.q("SELECT "+liveClassColumns+" FROM live_classes WHERE is_public = ? ORDER BY scheduled_at ASC"),
		true,
	)
	if err != nil {
		return nil, fmt.Errorf("querying live classes: %w", err)
	}
	return mapRows(rows, liveClassRow.model), nil
}

// ListTests returns tests by due date, earliest first.
func (s *SQLStore) ListTests(ctx context.Context) ([]model.Test, error) {
	var rows []testRow
	if err := s.db.SelectContext(ctx, &rows, "SELECT "+testColumns+" FROM tests ORDER BY due_date ASC"); err != nil {
		return nil, fmt.Errorf("querying tests: %w", err)
	}
	return mapRows(rows, testRow.model), nil
}

// ListAssignments returns assignments of courseID, or all when empty.
func (s *SQLStore) ListAssignments(ctx context.Context, courseID string) ([]model.Assignment, error) {
	query := "SELECT " + assignmentColumns + " FROM assignments"
	var args []any
	if courseID != "" {
		query += " WHERE course_id = ?"
		args = append(args, courseID)
	}
	query += " ORDER BY due_date ASC"

	var rows []assignmentRow
	if err := s.db.SelectContext(ctx, &rows, s.q(query), args...); err != nil {
		return nil, fmt.Errorf("querying assignments: %w", err)
	}
	return mapRows(rows, assignmentRow.model), nil
}

func (s *SQLStore) CreateAssignment(ctx context.Context, a model.Assignment) (*model.Assignment, error) {
	var row assignmentRow
	err := s.db.GetContext(ctx, &row, s.q(`
		INSERT INTO assignments (id, course_id, teacher_id, title, description, due_date, max_score)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING `+assignmentColumns),
		uuid.New().String(), a.CourseID, a.TeacherID, a.Title, a.Description, nullTime(a.DueDate), a.MaxScore,
	)
	if err != nil {
		return nil, fmt.Errorf("creating assignment: %w", err)
	}
	out := row.model()
	return &out, nil
}

func (s *SQLStore) CreateTest(ctx context.Context, t model.Test) (*model.Test, error) {
	var row testRow
	err := s.db.GetContext(ctx, &row, s.q(`
		INSERT INTO tests (id, course_id, teacher_id, title, description, due_date, duration_minutes, total_marks)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING `+testColumns),
		uuid.New().String(), t.CourseID, t.TeacherID, t.Title, t.Description, nullTime(t.DueDate),
		t.DurationMinutes, t.TotalMarks,
	)
	if err != nil {
		return nil, fmt.Errorf("creating test: %w", err)
	}
	out := row.model()
	return &out, nil
}

func (s *SQLStore) ScheduleLiveClass(ctx context.Context, lc model.LiveClass) (*model.LiveClass, error) {
	if lc.Status == "" {
		lc.Status = model.LiveClassScheduled
	}
	var row liveClassRow
	err := s.db.GetContext(ctx, &row, s.q(`
		INSERT INTO live_classes (id, teacher_id, course_id, title, description, scheduled_at, duration_minutes, status, is_public, meeting_url)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING `+liveClassColumns),
		uuid.New().String(), lc.TeacherID, lc.CourseID, lc.Title, lc.Description, nullTime(lc.ScheduledAt),
		lc.DurationMinutes, lc.Status, lc.IsPublic, nullString(lc.MeetingURL),
	)
	if err != nil {
		return nil, fmt.Errorf("scheduling live class: %w", err)
	}
	out := row.model()
	return &out, nil
}

func (s *SQLStore) CreateAnnouncement(ctx context.Context, a model.Announcement) (*model.Announcement, error) {
	var row announcementRow
	err := s.db.GetContext(ctx, &row, s.q(`
		INSERT INTO announcements (id, course_id, teacher_id, title, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING `+announcementColumns),
		uuid.New().String(), a.CourseID, a.TeacherID, a.Title, a.Content, s.timestamp(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating announcement: %w", err)
	}
	return &model.Announcement{
		ID: row.ID, CourseID: row.CourseID, TeacherID: row.TeacherID, Title: row.Title,
		Content: row.Content.String, CreatedAt: row.CreatedAt.Time,
	}, nil
}

// CreateCourse inserts a course. It is not part of the gateway contract;
// local databases use it for seeding.
func (s *SQLStore) CreateCourse(ctx context.Context, c model.Course) (*model.Course, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.timestamp()
	}
	var row courseRow
	err := s.db.GetContext(ctx, &row, s.q(`
		INSERT INTO courses (id, teacher_id, title, description, category, level, published, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING `+courseColumns),
		c.ID, c.TeacherID, c.Title, c.Description, c.Category, c.Level, c.Published, c.CreatedAt.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating course: %w", err)
	}
	out := row.model()
	return &out, nil
}

// Enroll adds or updates the enrollment of userID in courseID.
func (s *SQLStore) Enroll(ctx context.Context, userID, courseID, status string) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO enrollments (id, user_id, course_id, status, progress, enrolled_at)
		VALUES (?, ?, ?, ?, 0, ?)
		ON CONFLICT (user_id, course_id) DO UPDATE SET status = excluded.status`),
		uuid.New().String(), userID, courseID, status, s.timestamp(),
	)
	if err != nil {
		return fmt.Errorf("enrolling %s in %s: %w", userID, courseID, err)
	}
	return nil
}

func mapRows[R any, M any](rows []R, fn func(R) M) []M {
	if len(rows) == 0 {
		return nil
	}
	out := make([]M, len(rows))
	for i, r := range rows {
		out[i] = fn(r)
	}
	return out
}
