package interceptors

import (
	"context"
	"net"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"authcore/internal/audit"
	"authcore/internal/audit/domain"
)

// AuditUnary returns a unary server interceptor that writes an access_denied audit entry when an
// RPC in auditedMethods fails with Unauthenticated or PermissionDenied. Successful calls are
// audited by the engine itself. If logger is nil, the interceptor no-ops.
func AuditUnary(logger audit.AuditLogger, auditedMethods map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		resp, err := handler(ctx, req)
		if logger == nil || !auditedMethods[info.FullMethod] {
			return resp, err
		}
		code := status.Code(err)
		if code != codes.Unauthenticated && code != codes.PermissionDenied {
			return resp, err
		}
		userID, _ := GetUserID(ctx)
		logger.LogEvent(ctx, userID, domain.ActionAccessDenied, info.FullMethod, "code="+code.String())
		return resp, err
	}
}

// ClientIP returns the client IP from gRPC metadata (x-forwarded-for, x-real-ip) or peer, or "unknown".
func ClientIP(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if vals := md.Get("x-forwarded-for"); len(vals) > 0 {
			if s := strings.TrimSpace(vals[0]); s != "" {
				if i := strings.Index(s, ","); i > 0 {
					s = strings.TrimSpace(s[:i])
				}
				return s
			}
		}
		if vals := md.Get("x-real-ip"); len(vals) > 0 {
			if s := strings.TrimSpace(vals[0]); s != "" {
				return s
			}
		}
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		if host, _, err := net.SplitHostPort(p.Addr.String()); err == nil {
			return host
		}
		return p.Addr.String()
	}
	return "unknown"
}

// UserAgent returns x-user-agent, falling back to the user-agent header set by the gRPC client.
func UserAgent(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	for _, key := range []string{"x-user-agent", "user-agent"} {
		if vals := md.Get(key); len(vals) > 0 {
			if s := strings.TrimSpace(vals[0]); s != "" {
				return s
			}
		}
	}
	return ""
}
