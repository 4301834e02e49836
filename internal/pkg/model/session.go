package model

import "time"

// Session is the authenticated identity of this client.
type Session struct {
	UserID      string    `json:"id"`
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName,omitempty"`
	Role        Role      `json:"role"`
	Credential  string    `json:"-"`
	ExpiresAt   time.Time `json:"expiresAt,omitzero"`
}

// Expired reports whether the credential expiry has passed. A session
// without an expiry never expires locally.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// Name returns the display name, falling back to the username.
func (s Session) Name() string {
	if s.DisplayName != "" {
		return s.DisplayName
	}
	return s.Username
}
