// Package engine wires the trading flow: a raw event becomes a candidate,
// passes the gates, is scored, sized, reserved, executed and finally handed
// to the position engine.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"graduation-engine/internal/alert"
	"graduation-engine/internal/discovery"
	"graduation-engine/internal/domain"
	"graduation-engine/internal/gate"
	"graduation-engine/internal/ingestion"
	"graduation-engine/internal/ledger"
	"graduation-engine/internal/observability"
	"graduation-engine/internal/position"
	"graduation-engine/internal/scoring"
	"graduation-engine/internal/sizing"
	"graduation-engine/internal/storage"
)

// ErrNoConfig is returned by New when no configuration source is set.
var ErrNoConfig = errors.New("engine: config source is required")

const persistTimeout = 5 * time.Second

// Outcome is the terminal state of one processed event.
type Outcome string

const (
	OutcomeInvalid         Outcome = "invalid"
	OutcomeDuplicate       Outcome = "duplicate"
	OutcomeGateRejected    Outcome = "gate_rejected"
	OutcomeScoreRejected   Outcome = "score_rejected"
	OutcomeBudgetRejected  Outcome = "budget_rejected"
	OutcomeExecutionFailed Outcome = "execution_failed"
	OutcomeOpened          Outcome = "opened"
)

// ConfigSource supplies the active trading configuration.
type ConfigSource interface {
	Load() domain.TradingConfig
}

// Executor buys a sized order.
type Executor interface {
	Execute(ctx context.Context, c *domain.Candidate, order *domain.SizedOrder, mode domain.Mode) (*domain.Fill, error)
}

// Options configures an Engine. Stores and Alerts are optional.
type Options struct {
	Normalizer *discovery.Normalizer
	Gates      *gate.Pipeline
	Scorer     *scoring.Engine
	Sizer      *sizing.Sizer
	Ledger     *ledger.Ledger
	Executor   Executor
	Positions  *position.Engine
	Config     ConfigSource
	Mode       domain.Mode // default PAPER

	GateResults  storage.GateResultStore
	Scores       storage.ScoreStore
	ScoreHistory storage.ScoreHistoryStore
	Alerts       alert.Emitter

	Logger *zap.Logger
	Now    func() time.Time
}

// Result describes what happened to one event.
type Result struct {
	Outcome   Outcome
	Candidate *domain.Candidate
	Gates     domain.GateOutcome
	Score     *domain.Score
	Order     *domain.SizedOrder
	Position  *domain.Position
}

// Engine runs events through the admission, sizing and execution flow.
type Engine struct {
	normalizer *discovery.Normalizer
	gates      *gate.Pipeline
	scorer     *scoring.Engine
	sizer      *sizing.Sizer
	ledger     *ledger.Ledger
	executor   Executor
	positions  *position.Engine
	config     ConfigSource

	gateResults  storage.GateResultStore
	scores       storage.ScoreStore
	scoreHistory storage.ScoreHistoryStore
	alerts       alert.Emitter

	logger *zap.Logger
	now    func() time.Time

	mode  atomic.Value // domain.Mode
	stats stats
}

// New creates an engine.
func New(opts Options) (*Engine, error) {
	if opts.Config == nil {
		return nil, ErrNoConfig
	}
	if opts.Normalizer == nil || opts.Ledger == nil || opts.Executor == nil || opts.Positions == nil {
		return nil, fmt.Errorf("engine: normalizer, ledger, executor and positions are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	alerts := opts.Alerts
	if alerts == nil {
		alerts = alert.Nop{}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	gates := opts.Gates
	if gates == nil {
		gates = gate.NewPipeline(gate.WithClock(now))
	}
	scorer := opts.Scorer
	if scorer == nil {
		scorer = scoring.NewEngine()
	}
	sizer := opts.Sizer
	if sizer == nil {
		sizer = sizing.NewSizer()
	}
	mode := opts.Mode
	if mode == "" {
		mode = domain.ModePaper
	}
	if !mode.IsValid() {
		return nil, fmt.Errorf("%w: mode %q", domain.ErrConfiguration, mode)
	}

	e := &Engine{
		normalizer:   opts.Normalizer,
		gates:        gates,
		scorer:       scorer,
		sizer:        sizer,
		ledger:       opts.Ledger,
		executor:     opts.Executor,
		positions:    opts.Positions,
		config:       opts.Config,
		gateResults:  opts.GateResults,
		scores:       opts.Scores,
		scoreHistory: opts.ScoreHistory,
		alerts:       alerts,
		logger:       logger.Named("engine"),
		now:          now,
	}
	e.mode.Store(mode)
	return e, nil
}

// Mode returns the mode applied to new entries.
func (e *Engine) Mode() domain.Mode {
	return e.mode.Load().(domain.Mode)
}

// SetMode switches the mode for new entries. Open positions keep their own mode.
func (e *Engine) SetMode(m domain.Mode) error {
	if !m.IsValid() {
		return fmt.Errorf("%w: mode %q", domain.ErrConfiguration, m)
	}
	prev := e.mode.Swap(m).(domain.Mode)
	if prev != m {
		e.logger.Warn("mode changed", zap.String("from", prev.String()), zap.String("to", m.String()))
	}
	return nil
}

// Run processes events from src on a bounded pool of workers until src
// closes or ctx is cancelled.
func (e *Engine) Run(ctx context.Context, src <-chan *ingestion.RawEvent, workers int) error {
	if workers <= 0 {
		workers = 1
	}
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case raw, ok := <-src:
					if !ok {
						return
					}
					if _, err := e.Process(ctx, raw); err != nil {
						e.logRejection(raw, err)
					}
				}
			}
		}()
	}
	wg.Wait()
	return ctx.Err()
}

// Process runs one raw event through the full flow. The returned error is a
// *domain.RejectionError for admission, budget and execution outcomes.
// Duplicates return a nil error with OutcomeDuplicate.
func (e *Engine) Process(ctx context.Context, raw *ingestion.RawEvent) (*Result, error) {
	e.stats.received.Add(1)
	if raw != nil {
		observability.RecordRawEvent(raw.Source)
	}

	// One configuration snapshot for the whole candidate.
	cfg := e.config.Load()

	c, err := e.normalizer.Normalize(ctx, raw, cfg.CandidateCooldown)
	if err != nil {
		observability.RecordEventError("normalize")
		return e.finish(&Result{Outcome: OutcomeInvalid}), err
	}
	if c == nil {
		return e.finish(&Result{Outcome: OutcomeDuplicate}), nil
	}
	res := &Result{Candidate: c}

	res.Gates = e.gates.Evaluate(c, cfg)
	if err := e.saveGateResults(c, res.Gates); err != nil {
		// Nothing moves toward execution without its gate record.
		observability.RecordEventError("persist_gates")
		res.Outcome = OutcomeInvalid
		return e.finish(res), err
	}
	if !res.Gates.Passed {
		failed := res.Gates.FailedGate()
		observability.RecordGateFailure(failed.Gate)
		e.alerts.Emit(ctx, alert.Event{
			Kind:        alert.KindGateRejected,
			At:          failed.EvaluatedAt,
			Mint:        c.Mint,
			CandidateID: c.CandidateID,
			Epoch:       c.Epoch,
			Gate:        failed.Gate,
			Reason:      failed.Reason,
			Detail:      fmt.Sprintf("observed %.4g threshold %.4g", failed.Observed, failed.Threshold),
		})
		res.Outcome = OutcomeGateRejected
		return e.finish(res), domain.Reject(domain.ErrAdmissionRejected, failed.Reason, failed.Gate)
	}

	score, err := e.scorer.Score(c, cfg)
	if err != nil {
		observability.RecordEventError("score")
		res.Outcome = OutcomeInvalid
		return e.finish(res), fmt.Errorf("score %s: %w", c.CandidateID, err)
	}
	score.ComputedAt = e.now().UnixMilli()
	res.Score = score
	if err := e.saveScore(score); err != nil {
		observability.RecordEventError("persist_score")
		res.Outcome = OutcomeInvalid
		return e.finish(res), err
	}
	observability.RecordScore(score.Value)
	e.alerts.Emit(ctx, alert.Event{
		Kind:        alert.KindScoreComputed,
		At:          score.ComputedAt,
		Mint:        c.Mint,
		CandidateID: c.CandidateID,
		Epoch:       c.Epoch,
		Score:       score.Value,
	})
	if !scoring.PassesCutoff(score, cfg) {
		res.Outcome = OutcomeScoreRejected
		return e.finish(res), domain.Reject(domain.ErrAdmissionRejected, domain.ReasonScoreBelowCutoff,
			fmt.Sprintf("score %.2f < cutoff %.2f", score.Value, cfg.Scoring.Cutoff))
	}

	// Uniqueness per mint is settled before any capital moves.
	claim, err := e.positions.Claim(c.Mint)
	if err != nil {
		res.Outcome = OutcomeBudgetRejected
		if errors.Is(err, position.ErrPositionExists) {
			err = domain.Reject(domain.ErrBudgetRejected, domain.ReasonPositionExists, c.Mint)
		}
		return e.finish(res), err
	}
	defer claim.Release()

	order, err := e.sizer.Size(score, e.ledger.Snapshot(), cfg)
	if err != nil {
		e.budgetRejected(ctx, c, score, err)
		res.Outcome = OutcomeBudgetRejected
		return e.finish(res), err
	}
	order.Epoch = c.Epoch
	res.Order = order

	h, err := e.ledger.TryReserve(order.AmountUSD)
	if err != nil {
		observability.RecordReservation(domain.ReasonOf(err))
		e.budgetRejected(ctx, c, score, err)
		res.Outcome = OutcomeBudgetRejected
		return e.finish(res), err
	}
	observability.RecordReservation("reserved")

	mode := e.Mode()
	fill, err := e.executor.Execute(ctx, c, order, mode)
	if err != nil {
		e.ledger.Release(h, decimal.Zero)
		e.alerts.Emit(ctx, alert.Event{
			Kind:        alert.KindExecutionFailed,
			At:          e.now().UnixMilli(),
			Mint:        c.Mint,
			CandidateID: c.CandidateID,
			Epoch:       c.Epoch,
			Mode:        mode,
			Reason:      reasonOr(err, domain.ReasonRouteError),
			AmountUSD:   order.AmountUSD,
			Detail:      err.Error(),
		})
		res.Outcome = OutcomeExecutionFailed
		return e.finish(res), err
	}

	pos, err := e.positions.Open(ctx, claim, c, fill, h, cfg.Exit)
	if err != nil {
		// Tokens were bought but nothing monitors them. The reservation stays
		// held until an operator releases it.
		e.logger.Error("filled entry could not be tracked, reservation kept for manual review",
			zap.String("mint", c.Mint),
			zap.String("client_order_id", fill.ClientOrderID),
			zap.String("reservation_id", h.ID),
			zap.String("amount_usd", h.Amount.StringFixed(2)),
			zap.Error(err),
		)
		e.alerts.Emit(ctx, alert.Event{
			Kind:        alert.KindExecutionFailed,
			At:          e.now().UnixMilli(),
			Mint:        c.Mint,
			CandidateID: c.CandidateID,
			Epoch:       c.Epoch,
			Mode:        mode,
			Reason:      "UNTRACKED_FILL",
			AmountUSD:   fill.AmountUSD,
			Detail:      fmt.Sprintf("reservation %s held: %v", h.ID, err),
		})
		res.Outcome = OutcomeExecutionFailed
		return e.finish(res), domain.Reject(domain.ErrExecutionFailed, "UNTRACKED_FILL", err.Error())
	}
	res.Position = pos

	e.alerts.Emit(ctx, alert.Event{
		Kind:        alert.KindPositionOpened,
		At:          pos.OpenedAt,
		Mint:        c.Mint,
		CandidateID: c.CandidateID,
		Epoch:       c.Epoch,
		Mode:        pos.Mode,
		Score:       score.Value,
		AmountUSD:   pos.EntryCostUSD,
		Price:       pos.EntryPrice,
	})
	res.Outcome = OutcomeOpened
	return e.finish(res), nil
}

func (e *Engine) budgetRejected(ctx context.Context, c *domain.Candidate, s *domain.Score, err error) {
	e.alerts.Emit(ctx, alert.Event{
		Kind:        alert.KindSizeRejected,
		At:          e.now().UnixMilli(),
		Mint:        c.Mint,
		CandidateID: c.CandidateID,
		Epoch:       c.Epoch,
		Score:       s.Value,
		Reason:      reasonOr(err, "UNKNOWN"),
	})
}

func (e *Engine) saveGateResults(c *domain.Candidate, outcome domain.GateOutcome) error {
	if e.gateResults == nil || len(outcome.Results) == 0 {
		return nil
	}
	rows := make([]*domain.GateResult, len(outcome.Results))
	for i := range outcome.Results {
		r := outcome.Results[i]
		rows[i] = &r
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := e.gateResults.InsertBulk(ctx, rows); err != nil {
		e.logger.Error("persist gate results", zap.String("candidate_id", c.CandidateID), zap.Error(err))
		return fmt.Errorf("persist gate results %s: %w", c.CandidateID, err)
	}
	return nil
}

// saveScore records the score. Only the score row is required; the history
// append is best effort.
func (e *Engine) saveScore(s *domain.Score) error {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if e.scores != nil {
		if err := e.scores.Insert(ctx, s); err != nil {
			e.logger.Error("persist score", zap.String("candidate_id", s.CandidateID), zap.Error(err))
			return fmt.Errorf("persist score %s: %w", s.CandidateID, err)
		}
	}
	if e.scoreHistory != nil {
		if err := e.scoreHistory.InsertBulk(ctx, []*domain.Score{s}); err != nil {
			e.logger.Warn("append score history", zap.String("candidate_id", s.CandidateID), zap.Error(err))
		}
	}
	return nil
}

func (e *Engine) logRejection(raw *ingestion.RawEvent, err error) {
	mint := ""
	if raw != nil {
		mint = raw.Mint
	}
	var rej *domain.RejectionError
	switch {
	case errors.As(err, &rej) && errors.Is(err, domain.ErrExecutionFailed):
		e.logger.Warn("execution failed", zap.String("mint", mint), zap.String("reason", rej.Reason), zap.Error(err))
	case errors.As(err, &rej):
		e.logger.Debug("candidate rejected", zap.String("mint", mint), zap.String("reason", rej.Reason))
	default:
		e.logger.Warn("process event", zap.String("mint", mint), zap.Error(err))
	}
}

func reasonOr(err error, fallback string) string {
	if r := domain.ReasonOf(err); r != "" {
		return r
	}
	return fallback
}
