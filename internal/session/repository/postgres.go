package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	devicedomain "authcore/internal/device/domain"
	"authcore/internal/session/domain"
	userdomain "authcore/internal/user/domain"
)

const sessionColumns = `id, user_id, token_hash, user_agent, ip_address, created_at, last_used_at, expires_at`

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a session repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts s.
func (r *PostgresRepository) Create(ctx context.Context, s *domain.Session) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (`+sessionColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		s.ID, s.UserID, s.TokenHash, ptrToNullString(s.UserAgent), ptrToNullString(s.IPAddress),
		s.CreatedAt, ptrToNullTime(s.LastUsedAt), s.ExpiresAt,
	)
	return err
}

// GetByIDWithUser returns the session for id joined with its owner, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByIDWithUser(ctx context.Context, id string) (*domain.SessionWithUser, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT s.id, s.user_id, s.token_hash, s.user_agent, s.ip_address, s.created_at, s.last_used_at, s.expires_at,
		        u.id, u.email, u.role, u.active
		   FROM sessions s
		   LEFT JOIN users u ON u.id = s.user_id
		  WHERE s.id = $1`, id)

	var (
		out      domain.SessionWithUser
		ua, ip   sql.NullString
		lastUsed sql.NullTime
		uid      sql.NullInt64
		email    sql.NullString
		role     sql.NullString
		active   sql.NullBool
	)
	err := row.Scan(&out.ID, &out.UserID, &out.TokenHash, &ua, &ip, &out.CreatedAt, &lastUsed, &out.ExpiresAt,
		&uid, &email, &role, &active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	out.UserAgent = nullStringToPtr(ua)
	out.IPAddress = nullStringToPtr(ip)
	out.LastUsedAt = nullTimeToPtr(lastUsed)
	if uid.Valid {
		out.User = &userdomain.User{
			ID:     uid.Int64,
			Email:  email.String,
			Role:   userdomain.Role(role.String),
			Active: active.Bool,
		}
	}
	return &out, nil
}

// UpdateUsage sets last_used_at and the device fields.
func (r *PostgresRepository) UpdateUsage(ctx context.Context, id string, usedAt time.Time, device devicedomain.Fingerprint) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET last_used_at = $2, user_agent = $3, ip_address = $4 WHERE id = $1`,
		id, usedAt, ptrToNullString(device.UserAgent), ptrToNullString(device.IPAddress))
	return err
}

// Rotate moves the row to next.ID in a single conditional UPDATE. Concurrent rotations of the
// same session serialize on the row lock; the loser matches zero rows.
func (r *PostgresRepository) Rotate(ctx context.Context, oldID, expectedHash string, next *domain.Session) error {
	err := r.db.QueryRowContext(ctx,
		`UPDATE sessions
		    SET id = $1, token_hash = $2, user_agent = $3, ip_address = $4, last_used_at = $5, expires_at = $6
		  WHERE id = $7 AND token_hash = $8
		RETURNING user_id, created_at`,
		next.ID, next.TokenHash, ptrToNullString(next.UserAgent), ptrToNullString(next.IPAddress),
		ptrToNullTime(next.LastUsedAt), next.ExpiresAt, oldID, expectedHash,
	).Scan(&next.UserID, &next.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrSessionNotFound
	}
	return err
}

func (r *PostgresRepository) DeleteByID(ctx context.Context, id string) (bool, error) {
	n, err := r.exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	return n > 0, err
}

func (r *PostgresRepository) DeleteByUserID(ctx context.Context, userID int64) (int64, error) {
	return r.exec(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
}

func (r *PostgresRepository) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	return r.exec(ctx, `DELETE FROM sessions WHERE id = ANY($1)`, ids)
}

func (r *PostgresRepository) ListActiveByUser(ctx context.Context, userID int64, now time.Time) ([]*domain.Session, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sessionColumns+`
		   FROM sessions
		  WHERE user_id = $1 AND expires_at > $2
		  ORDER BY last_used_at ASC NULLS FIRST, created_at ASC`, userID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) DeleteByUserAndDevice(ctx context.Context, userID int64, device devicedomain.Fingerprint) (int64, error) {
	return r.exec(ctx,
		`DELETE FROM sessions
		  WHERE user_id = $1
		    AND user_agent IS NOT DISTINCT FROM $2
		    AND ip_address IS NOT DISTINCT FROM $3`,
		userID, ptrToNullString(device.UserAgent), ptrToNullString(device.IPAddress))
}

func (r *PostgresRepository) DeleteExpiredBatch(ctx context.Context, now time.Time, limit int) (int64, error) {
	return r.exec(ctx,
		`DELETE FROM sessions
		  WHERE id IN (SELECT id FROM sessions WHERE expires_at < $1 LIMIT $2)`, now, limit)
}

func (r *PostgresRepository) DeleteUnused(ctx context.Context, now, cutoff time.Time) (int64, error) {
	return r.exec(ctx,
		`DELETE FROM sessions
		  WHERE expires_at > $1
		    AND (last_used_at < $2 OR (last_used_at IS NULL AND created_at < $2))`, now, cutoff)
}

func (r *PostgresRepository) ListOrphanedIDs(ctx context.Context, limit int) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT s.id
		   FROM sessions s
		   LEFT JOIN users u ON u.id = s.user_id
		  WHERE u.id IS NULL
		  LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func scanSession(rows *sql.Rows) (*domain.Session, error) {
	var (
		s        domain.Session
		ua, ip   sql.NullString
		lastUsed sql.NullTime
	)
	if err := rows.Scan(&s.ID, &s.UserID, &s.TokenHash, &ua, &ip, &s.CreatedAt, &lastUsed, &s.ExpiresAt); err != nil {
		return nil, err
	}
	s.UserAgent = nullStringToPtr(ua)
	s.IPAddress = nullStringToPtr(ip)
	s.LastUsedAt = nullTimeToPtr(lastUsed)
	return &s, nil
}

func ptrToNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullStringToPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func ptrToNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullTimeToPtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}
