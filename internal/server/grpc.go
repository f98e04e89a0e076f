package server

import (
	"maps"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	sessionv1 "authcore/api/session/v1"
	"authcore/internal/audit"
	policyengine "authcore/internal/policy/engine"
	"authcore/internal/server/interceptors"
	sessionhandler "authcore/internal/session/handler"
	"authcore/internal/telemetry"
)

// SessionEngine is the session lifecycle plus access-token verification. Implemented by service.Engine.
type SessionEngine interface {
	sessionhandler.Engine
	interceptors.AccessVerifier
}

// Deps holds the dependencies for gRPC handlers and interceptors.
type Deps struct {
	// Engine backs SessionService and the auth interceptor. If nil, session RPCs return Unimplemented.
	Engine SessionEngine
	// Users resolves RevokeAll/DeactivateUser targets.
	Users sessionhandler.UserLookup
	// Authz decides RevokeAll/DeactivateUser. If nil, those RPCs return Unimplemented.
	Authz policyengine.Authorizer
	// Audit records denied calls to protected RPCs. If nil, no RPCs are audited by the interceptor.
	Audit audit.AuditLogger
	// Events receives one rpc.request event per call. If nil, no request events are emitted.
	Events telemetry.EventEmitter
	// Health serves grpc.health.v1. If nil, a server reporting SERVING is created.
	Health *health.Server
	Logger *zap.Logger
}

// healthMethods are callable without a Bearer token and are not reported as request events.
var healthMethods = map[string]bool{
	healthpb.Health_Check_FullMethodName: true,
	healthpb.Health_Watch_FullMethodName: true,
	healthpb.Health_List_FullMethodName:  true,
}

// PublicMethods returns every full method name that does not require a Bearer token.
func PublicMethods() map[string]bool {
	m := sessionhandler.PublicMethods()
	maps.Copy(m, healthMethods)
	return m
}

// NewGRPCServer builds a gRPC server with tracing and the telemetry, audit and auth interceptors
// (outermost first), and registers all services.
func NewGRPCServer(deps Deps, opts ...grpc.ServerOption) *grpc.Server {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	chain := []grpc.UnaryServerInterceptor{
		interceptors.TelemetryUnary(deps.Events, log, healthMethods),
		// audit wraps auth so rejected tokens are recorded as access_denied
		interceptors.AuditUnary(deps.Audit, sessionhandler.ProtectedMethods()),
	}
	if deps.Engine != nil {
		chain = append(chain, interceptors.AuthUnary(deps.Engine, PublicMethods()))
	}

	opts = append([]grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(chain...),
	}, opts...)
	s := grpc.NewServer(opts...)
	RegisterServices(s, deps)
	return s
}

// RegisterServices registers all gRPC services with the given server.
//
// Service → handler mapping:
//   - authcore.session.v1.SessionService → internal/session/handler
//   - grpc.health.v1.Health              → google.golang.org/grpc/health (fed by internal/health)
func RegisterServices(s grpc.ServiceRegistrar, deps Deps) {
	sessionv1.RegisterSessionServiceServer(s, sessionhandler.NewServer(deps.Engine, deps.Users, deps.Authz, deps.Logger))

	hs := deps.Health
	if hs == nil {
		hs = health.NewServer()
	}
	healthpb.RegisterHealthServer(s, hs)
}
