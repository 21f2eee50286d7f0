// Package model defines the data structures shared by the client stores,
// the REST repositories and the fake backend.
package model

import (
	"strings"
	"time"
)

// Session is the client-held identity of the signed-in user. It mirrors,
// best effort, the backend's cookie session and is never verified locally.
type Session struct {
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	PhotoURL    string `json:"photoURL"`
	// ExpiresAt is the expiry read from the backend session cookie, when one
	// was issued. Advisory only.
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// Expired reports whether the advisory expiry has passed.
func (s Session) Expired(now time.Time) bool {
	return s.ExpiresAt != nil && now.After(*s.ExpiresAt)
}

// DisplayNameFromEmail derives a display name from the local part of an email.
func DisplayNameFromEmail(email string) string {
	local, _, _ := strings.Cut(email, "@")
	return local
}
