package auth

import (
	"strings"

	"github.com/google/uuid"
)

// Identity is a caller verified by a token. Meeting creators and attendance rows
// are keyed by Identity.Key.
type Identity struct {
	UserID uuid.UUID
	Email  string
	Role   string
}

// Key returns the identity string stored as creator or attendee: the email when
// present, else the user id.
func (i *Identity) Key() string {
	if i == nil {
		return ""
	}
	if e := strings.TrimSpace(i.Email); e != "" {
		return strings.ToLower(e)
	}
	if i.UserID != uuid.Nil {
		return i.UserID.String()
	}
	return ""
}

// Matches reports whether s names this identity by email or user id.
func (i *Identity) Matches(s string) bool {
	if i == nil || s == "" {
		return false
	}
	if strings.EqualFold(s, i.Email) {
		return true
	}
	return i.UserID != uuid.Nil && s == i.UserID.String()
}
