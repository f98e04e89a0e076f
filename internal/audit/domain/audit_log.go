package domain

import "time"

// Actions recorded by the session service.
const (
	ActionRefreshTokenReuse = "refresh_token_reuse"
	ActionRevokeAll         = "revoke_all"
	ActionUserDeactivated   = "user_deactivated"
	ActionSignInFailure     = "sign_in_failure"
	ActionAccessDenied      = "access_denied"
)

// AuditLog represents an audit event. UserID is 0 when the actor is unknown.
type AuditLog struct {
	ID        string
	UserID    int64
	Action    string
	Resource  string
	IP        string
	Metadata  string
	CreatedAt time.Time
}
