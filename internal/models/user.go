package models

import "time"

// Permission levels carried by user accounts.
const (
	PermUser  = "user"
	PermAdmin = "admin"
)

// User is an account record in the credential store.
type User struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"-"` // don’t expose hash
	Email        string     `json:"email,omitempty"`
	Permissions  []string   `json:"permissions"`
	IsActive     bool       `json:"is_active"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
}

// HasPermission reports whether the user carries the given permission.
func (u *User) HasPermission(perm string) bool {
	if u == nil {
		return false
	}
	for _, p := range u.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}
