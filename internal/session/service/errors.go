package service

import "errors"

// Kind classifies engine failures; the transport maps each kind to a status.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindUnauthorized
	KindForbidden
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindUnauthorized:
		return "Unauthorized"
	case KindForbidden:
		return "Forbidden"
	default:
		return "Internal"
	}
}

// Error is a business-rule failure. Reason is a stable machine-readable code.
type Error struct {
	Kind    Kind
	Reason  string
	Message string
}

func (e *Error) Error() string { return e.Message }

// Sentinel errors; compare with errors.Is.
var (
	ErrUserNotFound         = &Error{KindNotFound, "UserNotFound", "user not found"}
	ErrInvalidCredentials   = &Error{KindUnauthorized, "InvalidCredentials", "invalid credentials"}
	ErrRefreshTokenInvalid  = &Error{KindUnauthorized, "RefreshTokenInvalid", "invalid refresh token"}
	ErrRefreshTokenReuse    = &Error{KindUnauthorized, "RefreshTokenInvalid", "all sessions revoked"}
	ErrRefreshTokenNotFound = &Error{KindUnauthorized, "RefreshTokenNotFound", "refresh token not found"}
	ErrTokenExpired         = &Error{KindUnauthorized, "TokenExpired", "token expired"}
	ErrAccessTokenInvalid   = &Error{KindUnauthorized, "AccessTokenInvalid", "invalid access token"}
	ErrUserNoLongerExists   = &Error{KindForbidden, "UserNoLongerExists", "user no longer exists"}
)

// KindOf returns the Kind of err, or KindInternal for errors that are not *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// ReasonOf returns the Reason of err, or "" for errors that are not *Error.
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}
