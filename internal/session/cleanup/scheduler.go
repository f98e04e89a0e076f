// Package cleanup runs the session sweeps on a schedule: a frequent expiry sweep and a deeper
// hygiene pass that also removes idle and orphaned sessions.
package cleanup

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultInterval     = 24 * time.Hour
	DefaultDeepInterval = 7 * 24 * time.Hour
	DefaultMaxIdle      = 30 * 24 * time.Hour
)

// Cleaner is implemented by service.Engine.
type Cleaner interface {
	CleanupExpired(ctx context.Context) (int64, error)
	CleanupUnused(ctx context.Context, maxIdle time.Duration) (int64, error)
	CleanupOrphaned(ctx context.Context) (int64, error)
}

// Config sets the two trigger intervals and the idle threshold. Zero values take the defaults.
type Config struct {
	Interval     time.Duration
	DeepInterval time.Duration
	MaxIdle      time.Duration
	// RunOnStart runs the frequent sweep once as soon as Run starts.
	RunOnStart bool
}

// Scheduler triggers the sweeps. Step failures and panics are logged, never returned.
type Scheduler struct {
	cleaner Cleaner
	cfg     Config
	log     *zap.Logger
}

// New returns a Scheduler for cleaner.
func New(cleaner Cleaner, cfg Config, log *zap.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.DeepInterval <= 0 {
		cfg.DeepInterval = DefaultDeepInterval
	}
	if cfg.MaxIdle <= 0 {
		cfg.MaxIdle = DefaultMaxIdle
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{cleaner: cleaner, cfg: cfg, log: log.Named("cleanup")}
}

// Run blocks until ctx is cancelled, firing RunDaily every Interval and RunWeekly every DeepInterval.
func (s *Scheduler) Run(ctx context.Context) {
	s.log.Info("scheduler started",
		zap.Duration("interval", s.cfg.Interval),
		zap.Duration("deep_interval", s.cfg.DeepInterval))
	if s.cfg.RunOnStart {
		s.RunDaily(ctx)
	}

	frequent := time.NewTicker(s.cfg.Interval)
	defer frequent.Stop()
	deep := time.NewTicker(s.cfg.DeepInterval)
	defer deep.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return
		case <-frequent.C:
			s.RunDaily(ctx)
		case <-deep.C:
			s.RunWeekly(ctx)
		}
	}
}

// RunDaily is the frequent sweep: expired sessions only.
func (s *Scheduler) RunDaily(ctx context.Context) {
	s.step(ctx, "expired", s.cleaner.CleanupExpired)
}

// RunWeekly is the deep sweep: expired, then idle, then orphaned. Each step runs regardless of
// the previous one failing.
func (s *Scheduler) RunWeekly(ctx context.Context) {
	s.step(ctx, "expired", s.cleaner.CleanupExpired)
	s.step(ctx, "unused", func(ctx context.Context) (int64, error) {
		return s.cleaner.CleanupUnused(ctx, s.cfg.MaxIdle)
	})
	s.step(ctx, "orphaned", s.cleaner.CleanupOrphaned)
}

func (s *Scheduler) step(ctx context.Context, name string, fn func(context.Context) (int64, error)) {
	start := time.Now()
	n, err := s.safeCall(ctx, fn)
	if err != nil {
		s.log.Error("sweep failed", zap.String("sweep", name), zap.Error(err))
		return
	}
	s.log.Info("sweep finished", zap.String("sweep", name), zap.Int64("deleted", n), zap.Duration("took", time.Since(start)))
}

func (s *Scheduler) safeCall(ctx context.Context, fn func(context.Context) (int64, error)) (n int64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}
