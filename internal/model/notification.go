package model

import "time"

// NotificationType is the category tag of a notification.
type NotificationType string

const (
	NotificationAssignment   NotificationType = "assignment"
	NotificationTest         NotificationType = "test"
	NotificationLiveClass    NotificationType = "live_class"
	NotificationAnnouncement NotificationType = "announcement"
	NotificationMessage      NotificationType = "message"
	NotificationGrade        NotificationType = "grade"
)

// DefaultNotificationLimit is how many notifications a client keeps.
const DefaultNotificationLimit = 50

// Notification is an alert addressed to exactly one user. Rows are
// created server side in response to teacher actions; the client only
// ever flips Read from false to true.
type Notification struct {
	// ID is the unique identifier for this notification.
	ID string `json:"id" db:"id"`

	// UserID is the owning user.
	UserID string `json:"user_id" db:"user_id"`

	// Type is the category tag (assignment, test, live_class, ...).
	// Unknown values are preserved as-is.
	Type NotificationType `json:"type" db:"type"`

	// Title is the short headline.
	Title string `json:"title" db:"title"`

	// Message is the notification body.
	Message string `json:"message" db:"message"`

	// Link is an optional in-app deep link such as /tests/{id}.
	Link string `json:"link" db:"link"`

	// Read indicates whether the user has seen this notification.
	Read bool `json:"read" db:"read"`

	// CreatedAt is when this notification was generated.
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// CountUnread returns the number of entries with Read == false.
func CountUnread(ns []Notification) int {
	n := 0
	for _, x := range ns {
		if !x.Read {
			n++
		}
	}
	return n
}
