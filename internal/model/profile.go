package model

import "time"

// Roles.
const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
)

// DemoUserID is the identity used when no backend is configured.
const DemoUserID = "demo"

// Profile is the public part of a user account.
type Profile struct {
	ID        string    `json:"id" db:"id"`
	Email     string    `json:"email" db:"email"`
	FullName  string    `json:"full_name" db:"full_name"`
	Role      string    `json:"role" db:"role"`
	AvatarURL string    `json:"avatar_url" db:"avatar_url"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// DisplayName returns the full name, falling back to the local part of
// the email address.
func (p Profile) DisplayName() string {
	if p.FullName != "" {
		return p.FullName
	}
	for i, r := range p.Email {
		if r == '@' {
			return p.Email[:i]
		}
	}
	if p.Email != "" {
		return p.Email
	}
	return "Student"
}

// User is the authenticated identity attached to a Session.
type User struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
}

// Session holds the tokens of a signed-in user.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         User      `json:"user"`
}

// Expired reports whether the access token is past its expiry, with a
// small safety margin.
func (s *Session) Expired(now time.Time) bool {
	if s == nil || s.ExpiresAt.IsZero() {
		return false
	}
	return now.Add(30 * time.Second).After(s.ExpiresAt)
}

// IsTeacher reports whether the signed-in user has the teacher role.
func (s *Session) IsTeacher() bool {
	return s != nil && s.User.Role == RoleTeacher
}
