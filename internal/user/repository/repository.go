package repository

import (
	"context"
	"errors"

	"authcore/internal/user/domain"
)

// ErrEmailTaken is returned by Create when another user already has the email.
var ErrEmailTaken = errors.New("email already registered")

// Repository defines persistence for users. Lookups return (nil, nil) when the user does not exist.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	// Create inserts u and sets u.ID, u.CreatedAt and u.UpdatedAt.
	Create(ctx context.Context, u *domain.User) error
	// Deactivate marks the user inactive and deletes all of its sessions in one transaction.
	// Returns false when no such user exists.
	Deactivate(ctx context.Context, id int64) (bool, error)
	// Delete removes the user row; sessions go with it through the foreign key cascade.
	Delete(ctx context.Context, id int64) error
}
