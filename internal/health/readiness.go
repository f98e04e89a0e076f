// Package health reports readiness to the standard grpc.health.v1 service.
package health

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// DefaultCheckInterval is how often Watch re-checks dependencies.
const DefaultCheckInterval = 10 * time.Second

// Pinger checks database connectivity. *sql.DB implements it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PolicyChecker checks that the policy engine evaluates. *engine.OPAAuthorizer implements it.
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// Readiness checks the database and policy engine and publishes the result for the listed
// services (plus the overall "" service). Nil dependencies are skipped.
type Readiness struct {
	pinger   Pinger
	policy   PolicyChecker
	server   *health.Server
	services []string
	log      *zap.Logger
	timeout  time.Duration
}

// NewReadiness returns a Readiness writing to server.
func NewReadiness(server *health.Server, pinger Pinger, policy PolicyChecker, log *zap.Logger, services ...string) *Readiness {
	if log == nil {
		log = zap.NewNop()
	}
	return &Readiness{
		pinger:   pinger,
		policy:   policy,
		server:   server,
		services: append([]string{""}, services...),
		log:      log.Named("health"),
		timeout:  2 * time.Second,
	}
}

// Check runs once and returns SERVING or NOT_SERVING. Check failures are logged, not returned.
func (r *Readiness) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if r.pinger != nil {
		if err := r.pinger.PingContext(ctx); err != nil {
			r.log.Warn("database ping failed", zap.Error(err))
			return healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	if r.policy != nil {
		if err := r.policy.HealthCheck(ctx); err != nil {
			r.log.Warn("policy check failed", zap.Error(err))
			return healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	return healthpb.HealthCheckResponse_SERVING
}

// Update checks once and publishes the status.
func (r *Readiness) Update(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	st := r.Check(ctx)
	for _, svc := range r.services {
		r.server.SetServingStatus(svc, st)
	}
	return st
}

// Watch calls Update every interval until ctx is done, then marks everything NOT_SERVING.
func (r *Readiness) Watch(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultCheckInterval
	}
	r.Update(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.server.Shutdown()
			return
		case <-ticker.C:
			r.Update(ctx)
		}
	}
}
