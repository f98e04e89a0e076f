package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	telemetrydomain "authcore/internal/telemetry/domain"
)

// CleanupExpired deletes every session past expiry, CleanupBatchSize rows at a time, until a
// batch comes back short.
func (e *Engine) CleanupExpired(ctx context.Context) (int64, error) {
	batch := e.cfg.CleanupBatchSize
	var total int64
	for {
		n, err := e.sessions.DeleteExpiredBatch(ctx, e.now(), batch)
		if err != nil {
			return total, fmt.Errorf("delete expired sessions: %w", err)
		}
		total += n
		if n < int64(batch) {
			break
		}
		if err := ctx.Err(); err != nil {
			return total, err
		}
	}
	e.sweepDone(ctx, "expired", total)
	return total, nil
}

// CleanupUnused deletes unexpired sessions with no activity within maxIdle.
func (e *Engine) CleanupUnused(ctx context.Context, maxIdle time.Duration) (int64, error) {
	now := e.now()
	n, err := e.sessions.DeleteUnused(ctx, now, now.Add(-maxIdle))
	if err != nil {
		return 0, fmt.Errorf("delete unused sessions: %w", err)
	}
	e.sweepDone(ctx, "unused", n)
	return n, nil
}

// CleanupOrphaned deletes sessions whose owner row is gone. The foreign key cascade should make
// this a no-op; store failures are logged and the partial count returned.
func (e *Engine) CleanupOrphaned(ctx context.Context) (int64, error) {
	batch := e.cfg.CleanupBatchSize
	var total int64
	for {
		ids, err := e.sessions.ListOrphanedIDs(ctx, batch)
		if err != nil {
			e.log.Warn("list orphaned sessions failed", zap.Error(err))
			break
		}
		if len(ids) == 0 {
			break
		}
		n, err := e.sessions.DeleteByIDs(ctx, ids)
		if err != nil {
			e.log.Warn("delete orphaned sessions failed", zap.Int("ids", len(ids)), zap.Error(err))
			break
		}
		total += n
		if n == 0 || len(ids) < batch {
			break
		}
	}
	e.sweepDone(ctx, "orphaned", total)
	return total, nil
}

func (e *Engine) sweepDone(ctx context.Context, sweep string, n int64) {
	e.metrics.cleanedBy(ctx, n, sweep)
	if n == 0 {
		e.log.Debug("cleanup: nothing to delete", zap.String("sweep", sweep))
		return
	}
	e.log.Info("cleanup: sessions deleted", zap.String("sweep", sweep), zap.Int64("count", n))
	e.emit(ctx, telemetrydomain.EventCleanup, 0, "", map[string]string{
		"sweep":   sweep,
		"deleted": strconv.FormatInt(n, 10),
	})
}
