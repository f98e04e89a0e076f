package repository

import (
	"context"
	"sync"
	"time"

	"authcore/internal/user/domain"
)

// SessionPurger deletes every session of a user. MemoryRepository calls it from Deactivate
// so that the deactivate-and-revoke pair stays a single locked step.
type SessionPurger interface {
	DeleteByUserID(ctx context.Context, userID int64) (int64, error)
}

// MemoryRepository is an in-process Repository for tests and local tooling.
type MemoryRepository struct {
	mu       sync.Mutex
	nextID   int64
	byID     map[int64]*domain.User
	sessions SessionPurger
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: make(map[int64]*domain.User)}
}

// SetSessionPurger wires the session store used by Deactivate.
func (r *MemoryRepository) SetSessionPurger(p SessionPurger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = p
}

func (r *MemoryRepository) GetByID(_ context.Context, id int64) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	c := *u
	return &c, nil
}

func (r *MemoryRepository) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.byID {
		if u.Email == email {
			c := *u
			return &c, nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) Create(_ context.Context, u *domain.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.byID {
		if existing.Email == u.Email {
			return ErrEmailTaken
		}
	}
	r.nextID++
	now := time.Now().UTC()
	u.ID, u.CreatedAt, u.UpdatedAt = r.nextID, now, now
	c := *u
	r.byID[u.ID] = &c
	return nil
}

func (r *MemoryRepository) Deactivate(ctx context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return false, nil
	}
	if r.sessions != nil {
		if _, err := r.sessions.DeleteByUserID(ctx, id); err != nil {
			return false, err
		}
	}
	u.Active = false
	u.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (r *MemoryRepository) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, id)
	return nil
}
