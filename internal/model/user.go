package model

import (
	"database/sql"
	"time"
)

// Roles assignable to a user. The role decides which permission set
// the token service embeds into issued access tokens.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// Account statuses. Only active accounts may log in or refresh tokens.
const (
	StatusActive    = "active"
	StatusInactive  = "inactive"
	StatusSuspended = "suspended"
)

// User represents an application user record as stored in the `users`
// table. PasswordHash is a bcrypt digest and must never leave the
// service layer; handlers work with the Public projection instead.
type User struct {
	ID           uint64       // users.id
	Email        string       // users.email (unique, lowercased)
	Username     string       // users.username
	PasswordHash string       // users.password_hash
	Role         string       // users.role (admin|user)
	Status       string       // users.status (active|inactive|suspended)
	LastLoginAt  sql.NullTime // users.last_login_at
	CreatedAt    time.Time    // users.created_at
	UpdatedAt    time.Time    // users.updated_at
}

// PublicUser is the outward-facing projection of a user. The password
// hash is deliberately absent.
type PublicUser struct {
	ID          uint64     `json:"id"`
	Email       string     `json:"email"`
	Username    string     `json:"username"`
	Role        string     `json:"role"`
	Status      string     `json:"status"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Public converts a stored user into its response projection.
func (u User) Public() PublicUser {
	p := PublicUser{
		ID:        u.ID,
		Email:     u.Email,
		Username:  u.Username,
		Role:      u.Role,
		Status:    u.Status,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
	if u.LastLoginAt.Valid {
		t := u.LastLoginAt.Time
		p.LastLoginAt = &t
	}
	return p
}

// ValidRole reports whether r is one of the enumerated roles.
func ValidRole(r string) bool {
	return r == RoleAdmin || r == RoleUser
}

// ValidStatus reports whether s is one of the enumerated statuses.
func ValidStatus(s string) bool {
	return s == StatusActive || s == StatusInactive || s == StatusSuspended
}
