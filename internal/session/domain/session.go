package domain

import (
	"time"

	devicedomain "authcore/internal/device/domain"
	userdomain "authcore/internal/user/domain"
)

// Session is the persisted record backing one outstanding refresh token. Its ID is the
// session_id claim of that token and changes on every rotation.
type Session struct {
	ID         string
	UserID     int64
	TokenHash  string // SHA-256 hex of the raw refresh token; the token itself is never stored
	UserAgent  *string
	IPAddress  *string
	CreatedAt  time.Time
	LastUsedAt *time.Time
	ExpiresAt  time.Time
}

// SessionWithUser is a session joined with its owner. User is nil when the owner row no longer exists.
type SessionWithUser struct {
	Session
	User *userdomain.User
}

// Device returns the fingerprint stored on the session.
func (s *Session) Device() devicedomain.Fingerprint {
	return devicedomain.Fingerprint{UserAgent: s.UserAgent, IPAddress: s.IPAddress}
}

// Expired reports whether the session is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return s.ExpiresAt.Before(now)
}

// LastActivity is LastUsedAt, or CreatedAt for a session never refreshed.
func (s *Session) LastActivity() time.Time {
	if s.LastUsedAt != nil {
		return *s.LastUsedAt
	}
	return s.CreatedAt
}
