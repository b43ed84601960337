package engine

import (
	"context"
	"time"
)

// Schedule re-runs Reconcile every interval until ctx is cancelled. A
// failed tick is logged and retried on the next one; the fixed cadence is
// the retry policy, no backoff.
func (e *Engine) Schedule(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Info(map[string]any{"interval": interval.String()}, "reconciliation scheduler started")
	for {
		select {
		case <-ctx.Done():
			e.logger.Info(nil, "reconciliation scheduler stopped")
			return nil
		case <-ticker.C:
			if _, err := e.Reconcile(); err != nil {
				e.logger.Warn(map[string]any{"error": err.Error()}, "reconcile tick failed")
			}
		}
	}
}
