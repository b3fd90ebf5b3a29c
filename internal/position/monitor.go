package position

import (
	"context"
	"time"

	"go.uber.org/zap"

	"graduation-engine/internal/alert"
	"graduation-engine/internal/domain"
	"graduation-engine/internal/ingestion"
	"graduation-engine/internal/observability"
)

// monitor watches one position until it is closed or the engine shuts down.
func (e *Engine) monitor(t *tracked) {
	defer e.wg.Done()

	p := t.snapshot()
	var ticks <-chan ingestion.PriceTick
	if e.prices != nil {
		ch, cancel := e.prices.Watch(p.Mint)
		defer cancel()
		ticks = ch
	}

	poll := p.Rules.PollInterval
	if poll <= 0 {
		poll = domain.DefaultTradingConfig().Exit.PollInterval
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	// Evaluate once at start: a recovered CLOSING position exits immediately.
	e.poll(t)

	for !t.closing() {
		select {
		case <-e.ctx.Done():
			return
		case tick := <-ticks:
			t.observe(tick.PriceUSD, e.now().UnixMilli())
		case <-ticker.C:
			e.poll(t)
		case <-t.wakeCh:
		}
	}

	e.runExit(t)
}

func (e *Engine) poll(t *tracked) {
	price := 0.0
	if e.prices != nil {
		if tick, ok := e.prices.Last(t.snapshot().Mint); ok {
			price = tick.PriceUSD
		}
	}
	t.observe(price, e.now().UnixMilli())
}

// runExit sends the exit order, retrying with capped exponential backoff
// while the position stays CLOSING and its capital stays reserved.
func (e *Engine) runExit(t *tracked) {
	p := t.snapshot()
	e.persist(&p)
	e.logger.Info("exit triggered",
		zap.String("mint", p.Mint),
		zap.String("reason", p.ExitReason),
		zap.Float64("last_price", p.LastPrice),
		zap.Float64("peak_price", p.PeakPrice),
	)

	delay := e.retryBase
	for {
		fill, err := e.exiter.Exit(e.ctx, &p)
		if err == nil {
			e.settle(t, fill)
			return
		}

		t.mu.Lock()
		t.pos.ExitAttempts++
		attempts := t.pos.ExitAttempts
		t.mu.Unlock()
		observability.RecordExitRetry()
		e.logger.Warn("exit failed, retrying",
			zap.String("mint", p.Mint),
			zap.Int("attempt", attempts),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		if attempts == 1 {
			e.alerts.Emit(e.ctx, alert.Event{
				Kind:        alert.KindExecutionFailed,
				At:          e.now().UnixMilli(),
				Mint:        p.Mint,
				CandidateID: p.CandidateID,
				Epoch:       p.Epoch,
				Mode:        p.Mode,
				Reason:      domain.ReasonOf(err),
				Detail:      "exit: " + err.Error(),
			})
		}

		select {
		case <-e.ctx.Done():
			p = t.snapshot()
			e.persist(&p)
			return
		case <-time.After(delay):
		}
		delay *= 2
		if delay > e.retryMax {
			delay = e.retryMax
		}
		p = t.snapshot()
	}
}

// settle closes the position, releases its reservation with the realized
// P&L and records the trade.
func (e *Engine) settle(t *tracked, fill *domain.Fill) {
	t.mu.Lock()
	t.pos.Status = domain.PositionClosed
	t.pos.ExitPrice = fill.Price
	t.pos.ExitProceedsUSD = fill.AmountUSD
	t.pos.RealizedPnL = fill.AmountUSD.Sub(t.pos.EntryCostUSD)
	t.pos.ClosedAt = fill.FilledAt
	p := t.pos
	t.mu.Unlock()

	if !e.ledger.Release(t.handle, p.RealizedPnL) {
		e.logger.Error("reservation already released", zap.String("position_id", p.PositionID))
	}
	e.persist(&p)
	if e.history != nil {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		if err := e.history.InsertBulk(ctx, []*domain.Position{&p}); err != nil {
			e.logger.Error("record closed trade", zap.String("position_id", p.PositionID), zap.Error(err))
		}
		cancel()
	}

	open := e.remove(p.Mint)
	observability.SetOpenPositions(open)
	observability.RecordExit(p.ExitReason)
	e.logger.Info("position closed",
		zap.String("mint", p.Mint),
		zap.String("reason", p.ExitReason),
		zap.Float64("exit_price", p.ExitPrice),
		zap.String("pnl", p.RealizedPnL.StringFixed(2)),
	)
	e.alerts.Emit(context.Background(), alert.Event{
		Kind:        alert.KindPositionClosed,
		At:          p.ClosedAt,
		Mint:        p.Mint,
		CandidateID: p.CandidateID,
		Epoch:       p.Epoch,
		Mode:        p.Mode,
		Reason:      p.ExitReason,
		Price:       p.ExitPrice,
		PnLUSD:      p.RealizedPnL,
	})
}
