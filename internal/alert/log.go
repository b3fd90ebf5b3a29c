package alert

import (
	"context"

	"go.uber.org/zap"
)

// LogEmitter writes events as structured log lines.
type LogEmitter struct {
	logger *zap.Logger
}

// NewLogEmitter creates a log sink.
func NewLogEmitter(logger *zap.Logger) *LogEmitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogEmitter{logger: logger.Named("events")}
}

// Send logs the event. It never fails.
func (l *LogEmitter) Send(_ context.Context, e Event) error {
	fields := []zap.Field{
		zap.String("kind", string(e.Kind)),
		zap.String("mint", e.Mint),
		zap.String("candidate_id", e.CandidateID),
		zap.Int("epoch", e.Epoch),
		zap.Int64("at", e.At),
	}
	if e.Mode != "" {
		fields = append(fields, zap.String("mode", e.Mode.String()))
	}
	if e.Gate != "" {
		fields = append(fields, zap.String("gate", e.Gate))
	}
	if e.Reason != "" {
		fields = append(fields, zap.String("reason", e.Reason))
	}
	if e.Score > 0 {
		fields = append(fields, zap.Float64("score", e.Score))
	}
	if !e.AmountUSD.IsZero() {
		fields = append(fields, zap.String("amount_usd", e.AmountUSD.StringFixed(2)))
	}
	if e.Price > 0 {
		fields = append(fields, zap.Float64("price", e.Price))
	}
	if e.Kind == KindPositionClosed {
		fields = append(fields, zap.String("pnl_usd", e.PnLUSD.StringFixed(2)))
	}
	if e.Detail != "" {
		fields = append(fields, zap.String("detail", e.Detail))
	}

	if e.Kind == KindExecutionFailed {
		l.logger.Warn("event", fields...)
	} else {
		l.logger.Info("event", fields...)
	}
	return nil
}

var _ Sink = (*LogEmitter)(nil)
