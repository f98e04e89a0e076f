package repository

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	devicedomain "authcore/internal/device/domain"
	"authcore/internal/session/domain"
	userdomain "authcore/internal/user/domain"
)

// UserLookup resolves session owners for MemoryRepository.
type UserLookup interface {
	GetByID(ctx context.Context, id int64) (*userdomain.User, error)
}

// MemoryRepository is an in-process Repository. Rotate is a compare-and-swap under the mutex.
// The user lookup is always done after releasing the mutex.
type MemoryRepository struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
	users    UserLookup
}

// NewMemoryRepository returns an empty store; users resolves owners for GetByIDWithUser and ListOrphanedIDs.
func NewMemoryRepository(users UserLookup) *MemoryRepository {
	return &MemoryRepository{sessions: make(map[string]*domain.Session), users: users}
}

func copySession(s *domain.Session) *domain.Session {
	c := *s
	if s.LastUsedAt != nil {
		t := *s.LastUsedAt
		c.LastUsedAt = &t
	}
	return &c
}

func (r *MemoryRepository) Create(_ context.Context, s *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = copySession(s)
	return nil
}

func (r *MemoryRepository) GetByIDWithUser(ctx context.Context, id string) (*domain.SessionWithUser, error) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		s = copySession(s)
	}
	r.mu.Unlock()
	if !ok {
		return nil, nil
	}
	u, err := r.users.GetByID(ctx, s.UserID)
	if err != nil {
		return nil, err
	}
	return &domain.SessionWithUser{Session: *s, User: u}, nil
}

func (r *MemoryRepository) UpdateUsage(_ context.Context, id string, usedAt time.Time, device devicedomain.Fingerprint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil
	}
	t := usedAt
	s.LastUsedAt = &t
	s.UserAgent, s.IPAddress = device.UserAgent, device.IPAddress
	return nil
}

func (r *MemoryRepository) Rotate(_ context.Context, oldID, expectedHash string, next *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	old, ok := r.sessions[oldID]
	if !ok || old.TokenHash != expectedHash {
		return ErrSessionNotFound
	}
	delete(r.sessions, oldID)
	next.UserID, next.CreatedAt = old.UserID, old.CreatedAt
	r.sessions[next.ID] = copySession(next)
	return nil
}

func (r *MemoryRepository) DeleteByID(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[id]
	delete(r.sessions, id)
	return ok, nil
}

func (r *MemoryRepository) DeleteByUserID(_ context.Context, userID int64) (int64, error) {
	return r.deleteWhere(func(s *domain.Session) bool { return s.UserID == userID }, -1), nil
}

func (r *MemoryRepository) DeleteByIDs(_ context.Context, ids []string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, id := range ids {
		if _, ok := r.sessions[id]; ok {
			delete(r.sessions, id)
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) ListActiveByUser(_ context.Context, userID int64, now time.Time) ([]*domain.Session, error) {
	r.mu.Lock()
	var out []*domain.Session
	for _, s := range r.sessions {
		if s.UserID == userID && s.ExpiresAt.After(now) {
			out = append(out, copySession(s))
		}
	}
	r.mu.Unlock()

	slices.SortFunc(out, func(a, b *domain.Session) int {
		switch {
		case a.LastUsedAt == nil && b.LastUsedAt != nil:
			return -1
		case a.LastUsedAt != nil && b.LastUsedAt == nil:
			return 1
		case a.LastUsedAt != nil && b.LastUsedAt != nil:
			if c := a.LastUsedAt.Compare(*b.LastUsedAt); c != 0 {
				return c
			}
		}
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (r *MemoryRepository) DeleteByUserAndDevice(_ context.Context, userID int64, device devicedomain.Fingerprint) (int64, error) {
	return r.deleteWhere(func(s *domain.Session) bool {
		return s.UserID == userID && device.Matches(s.UserAgent, s.IPAddress)
	}, -1), nil
}

func (r *MemoryRepository) DeleteExpiredBatch(_ context.Context, now time.Time, limit int) (int64, error) {
	return r.deleteWhere(func(s *domain.Session) bool { return s.ExpiresAt.Before(now) }, limit), nil
}

func (r *MemoryRepository) DeleteUnused(_ context.Context, now, cutoff time.Time) (int64, error) {
	return r.deleteWhere(func(s *domain.Session) bool {
		return s.ExpiresAt.After(now) && s.LastActivity().Before(cutoff)
	}, -1), nil
}

func (r *MemoryRepository) ListOrphanedIDs(ctx context.Context, limit int) ([]string, error) {
	r.mu.Lock()
	owners := make(map[string]int64, len(r.sessions))
	for id, s := range r.sessions {
		owners[id] = s.UserID
	}
	r.mu.Unlock()

	ids := slices.Sorted(maps.Keys(owners))
	var out []string
	for _, id := range ids {
		if limit >= 0 && len(out) >= limit {
			break
		}
		u, err := r.users.GetByID(ctx, owners[id])
		if err != nil {
			return nil, err
		}
		if u == nil {
			out = append(out, id)
		}
	}
	return out, nil
}

// Len returns the number of stored sessions.
func (r *MemoryRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Get returns a copy of the session, or nil.
func (r *MemoryRepository) Get(id string) *domain.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil
	}
	return copySession(s)
}

// deleteWhere removes up to limit matching sessions (limit < 0 means all).
func (r *MemoryRepository) deleteWhere(match func(*domain.Session) bool, limit int) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, s := range r.sessions {
		if limit >= 0 && n >= int64(limit) {
			break
		}
		if match(s) {
			delete(r.sessions, id)
			n++
		}
	}
	return n
}
