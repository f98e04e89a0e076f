package interceptors

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"authcore/internal/security"
	"authcore/internal/session/service"
)

const bearerPrefix = "bearer "

// AccessVerifier validates access tokens. Implemented by service.Engine.
type AccessVerifier interface {
	VerifyAccess(ctx context.Context, token string) (*security.AccessClaims, error)
}

// AuthUnary returns a unary server interceptor that validates the Bearer (access) token
// from gRPC metadata and sets user_id, email, role in context for protected RPCs.
// publicMethods is the set of full method names that do not require a Bearer token
// (e.g. SessionService SignIn, Refresh, Revoke; grpc.health.v1.Health Check).
func AuthUnary(verifier AccessVerifier, publicMethods map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if publicMethods[info.FullMethod] {
			return handler(ctx, req)
		}
		token := extractBearer(ctx)
		if token == "" {
			return nil, status.Error(codes.Unauthenticated, "missing or invalid authorization")
		}

		claims, err := verifier.VerifyAccess(ctx, token)
		if err != nil {
			switch service.KindOf(err) {
			case service.KindForbidden:
				return nil, status.Error(codes.PermissionDenied, err.Error())
			case service.KindInternal:
				return nil, status.Error(codes.Internal, "authorization check failed")
			default:
				return nil, status.Error(codes.Unauthenticated, "missing or invalid authorization")
			}
		}

		ctx = WithIdentity(ctx, claims.UserID, claims.Email, claims.Role)
		return handler(ctx, req)
	}
}

// extractBearer returns the Bearer token from ctx metadata, or "" if missing or malformed.
func extractBearer(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	vals := md.Get("authorization")
	if len(vals) == 0 {
		return ""
	}
	v := strings.TrimSpace(vals[0])
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
