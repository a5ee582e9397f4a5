package model

import "time"

// Enrollment statuses.
const (
	EnrollmentActive    = "active"
	EnrollmentSuspended = "suspended"
)

// Live class statuses.
const (
	LiveClassScheduled = "scheduled"
	LiveClassLive      = "live"
	LiveClassCompleted = "completed"
	LiveClassCancelled = "cancelled"
)

// Course is a published or draft course owned by a teacher.
type Course struct {
	ID          string    `json:"id" db:"id"`
	TeacherID   string    `json:"teacher_id" db:"teacher_id"`
	Title       string    `json:"title" db:"title"`
	Description string    `json:"description" db:"description"`
	Category    string    `json:"category" db:"category"`
	Level       string    `json:"level" db:"level"`
	Published   bool      `json:"published" db:"published"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Enrollment links a student to a course.
type Enrollment struct {
	ID         string    `json:"id" db:"id"`
	UserID     string    `json:"user_id" db:"user_id"`
	CourseID   string    `json:"course_id" db:"course_id"`
	Status     string    `json:"status" db:"status"`
	Progress   int       `json:"progress" db:"progress"`
	EnrolledAt time.Time `json:"enrolled_at" db:"enrolled_at"`

	// Course is embedded by the backend when the query asks for it.
	Course *Course `json:"courses,omitempty" db:"-"`
}

// LiveClass is a scheduled session hosted in an external video widget.
type LiveClass struct {
	ID              string    `json:"id" db:"id"`
	TeacherID       string    `json:"teacher_id" db:"teacher_id"`
	CourseID        string    `json:"course_id" db:"course_id"`
	Title           string    `json:"title" db:"title"`
	Description     string    `json:"description" db:"description"`
	ScheduledAt     time.Time `json:"scheduled_at" db:"scheduled_at"`
	DurationMinutes int       `json:"duration_minutes" db:"duration_minutes"`
	Status          string    `json:"status" db:"status"`
	IsPublic        bool      `json:"is_public" db:"is_public"`
	MeetingURL      string    `json:"meeting_url" db:"meeting_url"`
}

// Test is a timed exam attached to a course.
type Test struct {
	ID              string    `json:"id" db:"id"`
	CourseID        string    `json:"course_id" db:"course_id"`
	TeacherID       string    `json:"teacher_id" db:"teacher_id"`
	Title           string    `json:"title" db:"title"`
	Description     string    `json:"description" db:"description"`
	DueDate         time.Time `json:"due_date" db:"due_date"`
	DurationMinutes int       `json:"duration_minutes" db:"duration_minutes"`
	TotalMarks      int       `json:"total_marks" db:"total_marks"`
}

// Assignment is a piece of coursework with a due date.
type Assignment struct {
	ID          string    `json:"id" db:"id"`
	CourseID    string    `json:"course_id" db:"course_id"`
	TeacherID   string    `json:"teacher_id" db:"teacher_id"`
	Title       string    `json:"title" db:"title"`
	Description string    `json:"description" db:"description"`
	DueDate     time.Time `json:"due_date" db:"due_date"`
	MaxScore    int       `json:"max_score" db:"max_score"`
}

// Announcement is a course-wide broadcast from a teacher.
type Announcement struct {
	ID        string    `json:"id" db:"id"`
	CourseID  string    `json:"course_id" db:"course_id"`
	TeacherID string    `json:"teacher_id" db:"teacher_id"`
	Title     string    `json:"title" db:"title"`
	Content   string    `json:"content" db:"content"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
