package models

import "time"

// Token is one entry of the active-session-token set. Tokens live in the
// store independently of any connection, so a still-valid token survives a
// server restart.
type Token struct {
	Token     string    `json:"token"`
	Username  string    `json:"username"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the token is past its expiry at the given instant.
func (t Token) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}
