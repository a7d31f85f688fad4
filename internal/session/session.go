// Package session holds the authenticated state shared by every outgoing
// backend request: the bearer token and the current user's profile.
package session

import (
	"context"
	"errors"
)

// Keys of the two persisted values. They are always written and removed
// together.
const (
	TokenKey = "token"
	UserKey  = "user"
)

var (
	ErrNoSession = errors.New("no active session")
)

// User is the profile of the logged in user
type User struct {
	ID        int64    `json:"id"`
	Email     string   `json:"email"`
	FirstName string   `json:"firstName"`
	LastName  string   `json:"lastName"`
	Roles     []string `json:"roles"`
}

// HasRole reports whether the user carries role
func (u User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Session is a bearer token plus the user it belongs to
type Session struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// Valid reports whether both halves of the session are present
func (s Session) Valid() bool {
	return s.Token != "" && s.User.ID != 0
}

// Store persists one session. Load returns ErrNoSession when either value is
// absent or unreadable, and in that case the other value is removed as well.
type Store interface {
	Load(ctx context.Context) (*Session, error)
	Save(ctx context.Context, s Session) error
	Clear(ctx context.Context) error
}

// Factory returns the store for one session id. The gateway keeps one
// session per browser.
type Factory func(sessionID string) Store
