package repository

import (
	"context"
	"errors"
	"time"

	devicedomain "authcore/internal/device/domain"
	"authcore/internal/session/domain"
)

// ErrSessionNotFound is returned by Rotate when the old session no longer exists or no longer
// carries the expected token hash, i.e. another request already rotated or revoked it.
var ErrSessionNotFound = errors.New("session not found")

// Repository defines persistence for sessions. Lookups return (nil, nil) when nothing matches.
type Repository interface {
	Create(ctx context.Context, s *domain.Session) error
	GetByIDWithUser(ctx context.Context, id string) (*domain.SessionWithUser, error)
	// UpdateUsage records a use of the session from device at usedAt.
	UpdateUsage(ctx context.Context, id string, usedAt time.Time, device devicedomain.Fingerprint) error
	// Rotate replaces the session oldID under a new identity. The replacement only happens if
	// oldID still exists with token hash expectedHash; otherwise ErrSessionNotFound. next.UserID
	// and next.CreatedAt are filled from the old row.
	Rotate(ctx context.Context, oldID, expectedHash string, next *domain.Session) error
	// DeleteByID reports whether a row was deleted.
	DeleteByID(ctx context.Context, id string) (bool, error)
	DeleteByUserID(ctx context.Context, userID int64) (int64, error)
	DeleteByIDs(ctx context.Context, ids []string) (int64, error)
	// ListActiveByUser returns the user's sessions with expires_at > now, least recently used
	// first (never-used sessions first, ties broken by creation time).
	ListActiveByUser(ctx context.Context, userID int64, now time.Time) ([]*domain.Session, error)
	// DeleteByUserAndDevice deletes the user's sessions whose stored device equals device, nil-safe.
	DeleteByUserAndDevice(ctx context.Context, userID int64, device devicedomain.Fingerprint) (int64, error)
	// DeleteExpiredBatch deletes at most limit sessions with expires_at < now.
	DeleteExpiredBatch(ctx context.Context, now time.Time, limit int) (int64, error)
	// DeleteUnused deletes unexpired sessions whose last activity is before cutoff.
	DeleteUnused(ctx context.Context, now, cutoff time.Time) (int64, error)
	// ListOrphanedIDs returns at most limit ids of sessions whose owner no longer exists.
	ListOrphanedIDs(ctx context.Context, limit int) ([]string, error)
}
