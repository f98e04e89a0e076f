package handler

import (
	"context"

	"go.uber.org/zap"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"authcore/internal/session/service"
)

const errorDomain = "authcore"

// toStatus maps engine errors to gRPC status. Business errors carry their reason as an ErrorInfo
// detail; anything else is logged and hidden behind Internal.
func (s *Server) toStatus(ctx context.Context, err error) error {
	var code codes.Code
	switch service.KindOf(err) {
	case service.KindNotFound:
		code = codes.NotFound
	case service.KindUnauthorized:
		code = codes.Unauthenticated
	case service.KindForbidden:
		code = codes.PermissionDenied
	default:
		if ctx.Err() != nil {
			return status.FromContextError(ctx.Err()).Err()
		}
		s.log.Error("request failed", zap.Error(err))
		return status.Error(codes.Internal, "internal error")
	}
	st := status.New(code, err.Error())
	if withInfo, derr := st.WithDetails(&errdetails.ErrorInfo{
		Reason: service.ReasonOf(err),
		Domain: errorDomain,
	}); derr == nil {
		st = withInfo
	}
	return st.Err()
}

// ReasonFromError returns the ErrorInfo reason attached by the server, or "".
func ReasonFromError(err error) string {
	st, ok := status.FromError(err)
	if !ok {
		return ""
	}
	for _, d := range st.Details() {
		if info, ok := d.(*errdetails.ErrorInfo); ok && info.Domain == errorDomain {
			return info.Reason
		}
	}
	return ""
}
