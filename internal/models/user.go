// Package models defines the data structures that map to database tables
// and provides the core types used throughout the application.
package models

import (
	"net/url"
	"time"

	"github.com/google/uuid"
)

// Role represents a user's permission level in the system.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// User represents a registered reader or author.
type User struct {
	ID                uuid.UUID  `json:"id"`
	Name              string     `json:"name"`
	Email             string     `json:"email"`
	PasswordHash      string     `json:"-"` // Never serialize the hash
	Role              Role       `json:"role"`
	Avatar            string     `json:"avatar"`
	Bio               string     `json:"bio"`
	Active            bool       `json:"active"`
	EmailVerified     bool       `json:"emailVerified"`
	PasswordChangedAt *time.Time `json:"-"`
	TOTPSecret        *string    `json:"-"` // Nullable; set during 2FA setup
	TOTPEnabled       bool       `json:"totpEnabled"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`

	// Virtual fields populated by handlers.
	BlogCount *int `json:"blogCount,omitempty"`
}

// IsAdmin returns true if the user has the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// ChangedPasswordAfter reports whether the password was changed after a
// token issued at t, which makes that token stale.
func (u *User) ChangedPasswordAfter(t time.Time) bool {
	if u.PasswordChangedAt == nil {
		return false
	}
	return u.PasswordChangedAt.Truncate(time.Second).After(t)
}

// Summary returns the public author card for the user.
func (u *User) Summary() *Author {
	return &Author{ID: u.ID, Name: u.Name, Avatar: u.Avatar, Bio: u.Bio}
}

// Author is the public subset of a user embedded in content responses.
type Author struct {
	ID     uuid.UUID `json:"id"`
	Name   string    `json:"name"`
	Avatar string    `json:"avatar"`
	Bio    string    `json:"bio,omitempty"`
}

// DefaultAvatar returns the generated avatar URL for a display name.
func DefaultAvatar(name string) string {
	return "https://ui-avatars.com/api/?name=" + url.QueryEscape(name) + "&background=random&size=200"
}
