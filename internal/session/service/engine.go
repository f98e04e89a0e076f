// Package service implements the session lifecycle: sign-in, refresh-token rotation with reuse
// detection, revocation and the cleanup sweeps that keep the sessions table bounded.
package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"authcore/internal/audit"
	auditdomain "authcore/internal/audit/domain"
	devicedomain "authcore/internal/device/domain"
	"authcore/internal/security"
	"authcore/internal/session/domain"
	sessionrepo "authcore/internal/session/repository"
	"authcore/internal/telemetry"
	telemetrydomain "authcore/internal/telemetry/domain"
	"authcore/internal/user/cache"
	userdomain "authcore/internal/user/domain"
)

const eventSource = "session-engine"

// Defaults applied when the corresponding Config field is zero.
const (
	DefaultMaxSessionsPerUser = 5
	DefaultCleanupBatchSize   = 1000
)

var tracer = otel.Tracer("authcore/session")

// TokenPair is returned by sign-in and refresh. ExpiresIn is the access token lifetime in seconds.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
}

// UserStore is the subset of the user repository the engine needs.
type UserStore interface {
	GetByEmail(ctx context.Context, email string) (*userdomain.User, error)
	GetByID(ctx context.Context, id int64) (*userdomain.User, error)
	Deactivate(ctx context.Context, id int64) (bool, error)
}

// StatusCache caches user active/role for access-token checks. Implemented by cache.StatusCache.
type StatusCache interface {
	Get(ctx context.Context, userID int64) (cache.Status, bool, error)
	Set(ctx context.Context, userID int64, st cache.Status) error
	Invalidate(ctx context.Context, userID int64) error
}

// Config holds the engine limits. Zero values take the defaults.
type Config struct {
	MaxSessionsPerUser int
	CleanupBatchSize   int
}

// Options are the optional collaborators. Every field may be left nil.
type Options struct {
	Audit  audit.AuditLogger
	Events telemetry.EventEmitter
	Cache  StatusCache
	Meter  metric.Meter
	Logger *zap.Logger
	// Now overrides the clock; it should match the clock of the token codec.
	Now func() time.Time
}

// Engine owns every mutation of the sessions table.
type Engine struct {
	users    UserStore
	sessions sessionrepo.Repository
	hasher   *security.Hasher
	tokens   *security.TokenCodec
	cfg      Config

	audit   audit.AuditLogger
	events  telemetry.EventEmitter
	cache   StatusCache
	metrics *metrics
	log     *zap.Logger
	now     func() time.Time
}

// NewEngine returns an Engine. users, sessions, hasher and tokens are required.
func NewEngine(users UserStore, sessions sessionrepo.Repository, hasher *security.Hasher, tokens *security.TokenCodec, cfg Config, opts Options) *Engine {
	if cfg.MaxSessionsPerUser <= 0 {
		cfg.MaxSessionsPerUser = DefaultMaxSessionsPerUser
	}
	if cfg.CleanupBatchSize <= 0 {
		cfg.CleanupBatchSize = DefaultCleanupBatchSize
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		users:    users,
		sessions: sessions,
		hasher:   hasher,
		tokens:   tokens,
		cfg:      cfg,
		audit:    opts.Audit,
		events:   opts.Events,
		cache:    opts.Cache,
		metrics:  newMetrics(opts.Meter),
		log:      log.Named("session"),
		now:      now,
	}
}

// SignIn verifies email/password and opens a new session for device.
// Inactive users get the same ErrUserNotFound as unknown emails.
func (e *Engine) SignIn(ctx context.Context, email, password string, device devicedomain.Fingerprint) (*TokenPair, error) {
	ctx, span := tracer.Start(ctx, "Engine.SignIn")
	defer span.End()

	u, err := e.users.GetByEmail(ctx, userdomain.NormalizeEmail(email))
	if err != nil {
		span.SetStatus(codes.Error, "user lookup failed")
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	if u == nil || !u.Active {
		return nil, ErrUserNotFound
	}
	ok, err := e.hasher.Verify(u.PasswordHash, []byte(password))
	if err != nil {
		span.SetStatus(codes.Error, "password verification failed")
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		e.auditEvent(ctx, u.ID, auditdomain.ActionSignInFailure, "user", "reason=invalid_credentials")
		return nil, ErrInvalidCredentials
	}
	return e.IssueNewSession(ctx, u, device)
}

// IssueNewSession creates a session for u, first removing the user's sessions from the same
// device and evicting the least recently used ones beyond the per-user cap.
func (e *Engine) IssueNewSession(ctx context.Context, u *userdomain.User, device devicedomain.Fingerprint) (*TokenPair, error) {
	if u == nil {
		return nil, ErrUserNotFound
	}
	now := e.now()

	if n, err := e.sessions.DeleteByUserAndDevice(ctx, u.ID, device); err != nil {
		e.log.Warn("device dedup failed", zap.Int64("user_id", u.ID), zap.Error(err))
	} else if n > 0 {
		e.log.Debug("replaced sessions for device", zap.Int64("user_id", u.ID), zap.Int64("count", n), zap.Stringer("device", device))
		e.metrics.revokedBy(ctx, n, "device_dedup")
	}

	if err := e.enforceCap(ctx, u.ID, now); err != nil {
		return nil, err
	}

	sessionID, err := security.NewSessionID()
	if err != nil {
		return nil, fmt.Errorf("generate session id: %w", err)
	}
	pair, err := e.signPair(u, sessionID)
	if err != nil {
		return nil, err
	}
	s := &domain.Session{
		ID:        sessionID,
		UserID:    u.ID,
		TokenHash: security.HashRefreshToken(pair.RefreshToken),
		UserAgent: device.UserAgent,
		IPAddress: device.IPAddress,
		CreatedAt: now,
		ExpiresAt: now.Add(e.tokens.RefreshTTL()),
	}
	if err := e.sessions.Create(ctx, s); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	e.metrics.issued.Add(ctx, 1)
	e.emit(ctx, telemetrydomain.EventSessionIssued, u.ID, sessionID, nil)
	return pair, nil
}

// enforceCap deletes the oldest active sessions so that one more fits under the cap.
func (e *Engine) enforceCap(ctx context.Context, userID int64, now time.Time) error {
	active, err := e.sessions.ListActiveByUser(ctx, userID, now)
	if err != nil {
		return fmt.Errorf("list active sessions: %w", err)
	}
	if len(active) < e.cfg.MaxSessionsPerUser {
		return nil
	}
	excess := len(active) - e.cfg.MaxSessionsPerUser + 1
	ids := make([]string, 0, excess)
	for _, s := range active[:excess] {
		ids = append(ids, s.ID)
	}
	n, err := e.sessions.DeleteByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("evict sessions over cap: %w", err)
	}
	e.log.Info("evicted sessions over cap", zap.Int64("user_id", userID), zap.Int64("count", n))
	e.metrics.revokedBy(ctx, n, "cap")
	return nil
}

// Refresh exchanges a refresh token for a new pair and rotates the session behind it.
// A token whose hash does not match its session revokes every session of the user.
func (e *Engine) Refresh(ctx context.Context, rawRefreshToken string, device devicedomain.Fingerprint) (*TokenPair, error) {
	ctx, span := tracer.Start(ctx, "Engine.Refresh")
	defer span.End()

	claims, err := e.tokens.VerifyRefresh(rawRefreshToken)
	if err != nil {
		if errors.Is(err, security.ErrTokenExpired) && claims != nil {
			e.dropExpired(ctx, claims.SessionID)
			return nil, ErrTokenExpired
		}
		return nil, ErrRefreshTokenInvalid
	}

	sw, err := e.sessions.GetByIDWithUser(ctx, claims.SessionID)
	if err != nil {
		span.SetStatus(codes.Error, "session lookup failed")
		return nil, fmt.Errorf("load session: %w", err)
	}
	if sw == nil {
		return nil, ErrRefreshTokenNotFound
	}

	now := e.now()
	if sw.Expired(now) {
		e.dropExpired(ctx, sw.ID)
		return nil, ErrTokenExpired
	}

	if !security.RefreshTokenHashEqual(rawRefreshToken, sw.TokenHash) {
		if err := e.revokeOnReuse(ctx, &sw.Session); err != nil {
			span.SetStatus(codes.Error, "revoke on reuse failed")
			return nil, err
		}
		return nil, ErrRefreshTokenReuse
	}

	if sw.User == nil || !sw.User.Active {
		return nil, ErrUserNoLongerExists
	}

	if err := e.sessions.UpdateUsage(ctx, sw.ID, now, device); err != nil {
		return nil, fmt.Errorf("record session usage: %w", err)
	}

	newID, err := security.NewSessionID()
	if err != nil {
		return nil, fmt.Errorf("generate session id: %w", err)
	}
	pair, err := e.signPair(sw.User, newID)
	if err != nil {
		return nil, err
	}
	next := &domain.Session{
		ID:         newID,
		TokenHash:  security.HashRefreshToken(pair.RefreshToken),
		UserAgent:  device.UserAgent,
		IPAddress:  device.IPAddress,
		LastUsedAt: &now,
		ExpiresAt:  now.Add(e.tokens.RefreshTTL()),
	}
	if err := e.sessions.Rotate(ctx, sw.ID, sw.TokenHash, next); err != nil {
		if errors.Is(err, sessionrepo.ErrSessionNotFound) {
			// Lost a race with a concurrent refresh or revoke of the same session.
			return nil, ErrRefreshTokenNotFound
		}
		return nil, fmt.Errorf("rotate session: %w", err)
	}

	e.metrics.rotated.Add(ctx, 1)
	e.emit(ctx, telemetrydomain.EventSessionRotated, sw.UserID, newID, map[string]string{
		"previous_session_ref": telemetrydomain.SessionRef(sw.ID),
	})
	return pair, nil
}

// revokeOnReuse is the theft response: every session of the owner goes.
func (e *Engine) revokeOnReuse(ctx context.Context, s *domain.Session) error {
	e.metrics.reuse.Add(ctx, 1)
	n, err := e.sessions.DeleteByUserID(ctx, s.UserID)
	if err != nil {
		e.log.Error("revoke all sessions after refresh token reuse failed",
			zap.Int64("user_id", s.UserID), zap.String("session_ref", telemetrydomain.SessionRef(s.ID)), zap.Error(err))
		return fmt.Errorf("revoke sessions after token reuse: %w", err)
	}
	e.log.Warn("refresh token reuse detected; all sessions revoked",
		zap.Bool("security", true),
		zap.Int64("user_id", s.UserID),
		zap.String("session_ref", telemetrydomain.SessionRef(s.ID)),
		zap.Int64("revoked", n))
	e.metrics.revokedBy(ctx, n, "reuse")
	e.auditEvent(ctx, s.UserID, auditdomain.ActionRefreshTokenReuse, "session",
		"session_ref="+telemetrydomain.SessionRef(s.ID)+";revoked="+strconv.FormatInt(n, 10))
	e.emit(ctx, telemetrydomain.EventReuseDetected, s.UserID, s.ID, map[string]string{
		"revoked": strconv.FormatInt(n, 10),
	})
	return nil
}

// dropExpired deletes a session found past expiry. Failures are logged; the caller already has its answer.
func (e *Engine) dropExpired(ctx context.Context, sessionID string) {
	if sessionID == "" {
		return
	}
	deleted, err := e.sessions.DeleteByID(ctx, sessionID)
	if err != nil {
		e.log.Warn("delete expired session failed", zap.String("session_ref", telemetrydomain.SessionRef(sessionID)), zap.Error(err))
		return
	}
	if deleted {
		e.emit(ctx, telemetrydomain.EventSessionExpired, 0, sessionID, nil)
	}
}

// Revoke deletes the session named by a refresh token. A session that is already gone is not an error.
func (e *Engine) Revoke(ctx context.Context, rawRefreshToken string) error {
	ctx, span := tracer.Start(ctx, "Engine.Revoke")
	defer span.End()

	claims, err := e.tokens.VerifyRefresh(rawRefreshToken)
	if err != nil {
		if errors.Is(err, security.ErrTokenExpired) && claims != nil {
			e.dropExpired(ctx, claims.SessionID)
			return nil
		}
		return ErrRefreshTokenInvalid
	}
	deleted, err := e.sessions.DeleteByID(ctx, claims.SessionID)
	if err != nil {
		span.SetStatus(codes.Error, "delete failed")
		return fmt.Errorf("revoke session: %w", err)
	}
	if deleted {
		e.metrics.revokedBy(ctx, 1, "revoke")
		e.emit(ctx, telemetrydomain.EventSessionRevoked, claims.UserID, claims.SessionID, nil)
	}
	return nil
}

// RevokeAll deletes every session of userID and returns how many were deleted.
func (e *Engine) RevokeAll(ctx context.Context, userID int64) (int64, error) {
	ctx, span := tracer.Start(ctx, "Engine.RevokeAll")
	defer span.End()

	n, err := e.sessions.DeleteByUserID(ctx, userID)
	if err != nil {
		span.SetStatus(codes.Error, "delete failed")
		return 0, fmt.Errorf("revoke all sessions: %w", err)
	}
	e.metrics.revokedBy(ctx, n, "revoke_all")
	e.auditEvent(ctx, userID, auditdomain.ActionRevokeAll, "session", "revoked="+strconv.FormatInt(n, 10))
	e.emit(ctx, telemetrydomain.EventSessionRevokedAll, userID, "", map[string]string{
		"revoked": strconv.FormatInt(n, 10),
	})
	return n, nil
}

// DeactivateUser soft-deletes userID: the user is marked inactive and its sessions are removed
// in one transaction, then the cached status is dropped.
func (e *Engine) DeactivateUser(ctx context.Context, userID int64) error {
	found, err := e.users.Deactivate(ctx, userID)
	if err != nil {
		return fmt.Errorf("deactivate user: %w", err)
	}
	if !found {
		return ErrUserNotFound
	}
	if e.cache != nil {
		if err := e.cache.Invalidate(ctx, userID); err != nil {
			e.log.Warn("invalidate user status failed", zap.Int64("user_id", userID), zap.Error(err))
		}
	}
	e.auditEvent(ctx, userID, auditdomain.ActionUserDeactivated, "user", "")
	e.emit(ctx, telemetrydomain.EventUserDeactivated, userID, "", nil)
	return nil
}

// VerifyAccess checks an access token. With a status cache configured, the owner must also still
// be active; cache misses are filled from the user store.
func (e *Engine) VerifyAccess(ctx context.Context, token string) (*security.AccessClaims, error) {
	claims, err := e.tokens.VerifyAccess(token)
	if err != nil {
		if errors.Is(err, security.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrAccessTokenInvalid
	}
	if e.cache == nil {
		return claims, nil
	}
	st, err := e.userStatus(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	if !st.Active {
		return nil, ErrUserNoLongerExists
	}
	if st.Role != "" {
		claims.Role = st.Role
	}
	return claims, nil
}

func (e *Engine) userStatus(ctx context.Context, userID int64) (cache.Status, error) {
	st, found, err := e.cache.Get(ctx, userID)
	if err != nil {
		e.log.Warn("user status cache read failed", zap.Int64("user_id", userID), zap.Error(err))
	} else if found {
		return st, nil
	}
	u, err := e.users.GetByID(ctx, userID)
	if err != nil {
		return cache.Status{}, fmt.Errorf("load user status: %w", err)
	}
	if u != nil {
		st = cache.Status{Active: u.Active, Role: string(u.Role)}
	} else {
		st = cache.Status{}
	}
	if err := e.cache.Set(ctx, userID, st); err != nil {
		e.log.Warn("user status cache write failed", zap.Int64("user_id", userID), zap.Error(err))
	}
	return st, nil
}

func (e *Engine) signPair(u *userdomain.User, sessionID string) (*TokenPair, error) {
	access, _, err := e.tokens.SignAccess(security.AccessClaims{UserID: u.ID, Email: u.Email, Role: string(u.Role)})
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	refresh, _, err := e.tokens.SignRefresh(security.RefreshClaims{UserID: u.ID, SessionID: sessionID})
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(e.tokens.AccessTTL() / time.Second),
	}, nil
}

func (e *Engine) auditEvent(ctx context.Context, userID int64, action, resource, metadata string) {
	if e.audit == nil {
		return
	}
	e.audit.LogEvent(ctx, userID, action, resource, metadata)
}

func (e *Engine) emit(ctx context.Context, eventType string, userID int64, sessionID string, meta map[string]string) {
	if e.events == nil {
		return
	}
	ev := telemetrydomain.NewEvent(eventType, eventSource)
	ev.UserID = userID
	if sessionID != "" {
		ev.SessionRef = telemetrydomain.SessionRef(sessionID)
	}
	ev.Metadata = meta
	telemetry.EmitAsync(ctx, e.log, e.events, ev)
}
