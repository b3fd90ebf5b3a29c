package scheduler

import (
	"context"

	"go.uber.org/zap"

	"graduation-engine/internal/ledger"
)

// Roller starts a new trading day on the ledger.
type Roller interface {
	Rollover() ledger.Snapshot
}

// RolloverJob returns a job that starts a new trading day on the ledger.
func RolloverJob(l Roller, logger *zap.Logger) func(context.Context) {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context) {
		if ctx.Err() != nil {
			return
		}
		snap := l.Rollover()
		logger.Info("daily rollover",
			zap.Int64("epoch", snap.Epoch),
			zap.String("committed_usd", snap.Committed.StringFixed(2)),
			zap.Int("open", snap.OpenCount),
		)
	}
}

// ScheduleRollover registers the rollover job under spec.
func ScheduleRollover(r *Runner, spec string, l Roller) error {
	_, err := r.Add(spec, RolloverJob(l, r.logger))
	return err
}
