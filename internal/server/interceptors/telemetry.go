package interceptors

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"authcore/internal/telemetry"
	"authcore/internal/telemetry/domain"
)

// TelemetryUnary returns a unary server interceptor that emits an rpc.request event after each RPC.
// Best-effort: emits are async and failures are only logged. If emitter is nil, the interceptor no-ops.
// skipMethods is the set of full method names to not emit (e.g. health checks).
func TelemetryUnary(emitter telemetry.EventEmitter, logger *zap.Logger, skipMethods map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if emitter == nil || skipMethods[info.FullMethod] {
			return resp, err
		}
		event := domain.NewEvent(domain.EventRPCRequest, "grpc_interceptor")
		event.Metadata = map[string]string{
			"full_method": info.FullMethod,
			"status_code": status.Code(err).String(),
			"duration_ms": strconv.FormatInt(time.Since(start).Milliseconds(), 10),
			"client_ip":   ClientIP(ctx),
		}
		if userID, ok := GetUserID(ctx); ok {
			event.UserID = userID
		}
		telemetry.EmitAsync(ctx, logger, emitter, event)
		return resp, err
	}
}
