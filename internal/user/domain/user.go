package domain

import (
	"errors"
	"strings"
	"time"
)

// Role is a user's authorization role.
type Role string

const (
	RoleClient  Role = "CLIENT"
	RoleManager Role = "MANAGER"
	RoleAdmin   Role = "ADMIN"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleClient, RoleManager, RoleAdmin:
		return true
	}
	return false
}

// User is the core user entity. Active is false after a soft delete.
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	Name         string
	Role         Role
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NormalizeEmail lowercases and trims an email address for lookup and storage.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Validate validates the user for persistence. Returns an error describing the first validation failure.
func (u *User) Validate() error {
	if u.Email == "" {
		return errors.New("email is required")
	}
	if u.PasswordHash == "" {
		return errors.New("password hash is required")
	}
	if u.Role == "" {
		u.Role = RoleClient
	}
	if !u.Role.Valid() {
		return errors.New("role must be CLIENT, MANAGER or ADMIN")
	}
	return nil
}
