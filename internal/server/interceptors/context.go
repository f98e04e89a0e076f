package interceptors

import "context"

type contextKey struct{ name string }

var (
	userIDKey = contextKey{"user_id"}
	emailKey  = contextKey{"email"}
	roleKey   = contextKey{"role"}
)

// WithIdentity returns a context carrying the authenticated caller.
// Handlers read these via GetUserID, GetEmail, GetRole.
func WithIdentity(ctx context.Context, userID int64, email, role string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	ctx = context.WithValue(ctx, emailKey, email)
	ctx = context.WithValue(ctx, roleKey, role)
	return ctx
}

// GetUserID returns the caller's user id and true if set; otherwise 0, false.
func GetUserID(ctx context.Context) (int64, bool) {
	v, ok := ctx.Value(userIDKey).(int64)
	return v, ok
}

// GetEmail returns the caller's email and true if set; otherwise "", false.
func GetEmail(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(emailKey).(string)
	return v, ok
}

// GetRole returns the caller's role and true if set; otherwise "", false.
func GetRole(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(roleKey).(string)
	return v, ok
}
