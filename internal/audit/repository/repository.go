package repository

import (
	"context"

	"authcore/internal/audit/domain"
)

// Repository defines persistence for audit logs.
type Repository interface {
	Create(ctx context.Context, a *domain.AuditLog) error
	// ListByUser returns the newest entries for userID first.
	ListByUser(ctx context.Context, userID int64, limit int) ([]*domain.AuditLog, error)
}
