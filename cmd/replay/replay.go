package main

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"graduation-engine/internal/alert"
	"graduation-engine/internal/config"
	"graduation-engine/internal/discovery"
	"graduation-engine/internal/domain"
	"graduation-engine/internal/engine"
	"graduation-engine/internal/execution"
	"graduation-engine/internal/gate"
	"graduation-engine/internal/ingestion"
	"graduation-engine/internal/ledger"
	"graduation-engine/internal/position"
	"graduation-engine/internal/scoring"
	"graduation-engine/internal/sizing"
	"graduation-engine/internal/storage/memory"
)

const (
	dayMs         = int64(24 * time.Hour / time.Millisecond)
	settleTimeout = 2 * time.Second

	// Virtual time only moves between replay steps, so monitors can poll fast.
	monitorPoll = 5 * time.Millisecond
)

// clock is the virtual time of the replay, advanced by the recorded timestamps.
type clock struct {
	ms atomic.Int64
}

func (c *clock) Now() time.Time {
	return time.UnixMilli(c.ms.Load())
}

func (c *clock) set(ms int64) {
	if ms > c.ms.Load() {
		c.ms.Store(ms)
	}
}

// alertCounter counts alerts by kind and forwards them to the log.
type alertCounter struct {
	mu     sync.Mutex
	counts map[alert.Kind]int
	log    *alert.LogEmitter
}

func (a *alertCounter) Emit(ctx context.Context, e alert.Event) {
	a.mu.Lock()
	a.counts[e.Kind]++
	a.mu.Unlock()
	_ = a.log.Send(ctx, e)
}

func (a *alertCounter) snapshot() map[alert.Kind]int {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[alert.Kind]int, len(a.counts))
	for k, v := range a.counts {
		out[k] = v
	}
	return out
}

// OpenPosition is a position still held when the recording ended.
type OpenPosition struct {
	Mint          string  `json:"mint"`
	EntryPrice    float64 `json:"entry_price"`
	LastPrice     float64 `json:"last_price"`
	EntryCostUSD  string  `json:"entry_cost_usd"`
	UnrealizedUSD string  `json:"unrealized_usd"`
}

// Summary is the outcome of one replay run.
type Summary struct {
	Events         int                `json:"events"`
	Ticks          int                `json:"ticks"`
	Days           int                `json:"days"`
	Stats          engine.Stats       `json:"stats"`
	Closed         int                `json:"closed"`
	Wins           int                `json:"wins"`
	Losses         int                `json:"losses"`
	RealizedPnLUSD string             `json:"realized_pnl_usd"`
	ExitReasons    map[string]int     `json:"exit_reasons"`
	Alerts         map[alert.Kind]int `json:"alerts"`
	Open           []OpenPosition     `json:"open"`
}

// replayer drives the full engine in PAPER mode over a recording.
type replayer struct {
	clock     *clock
	prices    *ingestion.PriceBook
	ledger    *ledger.Ledger
	positions *position.Engine
	store     *memory.PositionStore
	engine    *engine.Engine
	alerts    *alertCounter
	logger    *zap.Logger
}

func newReplayer(cfg domain.TradingConfig, logger *zap.Logger) (*replayer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.Exit.PollInterval = monitorPoll
	r := &replayer{
		clock:  &clock{},
		prices: ingestion.NewPriceBook(),
		store:  memory.NewPositionStore(),
		alerts: &alertCounter{counts: make(map[alert.Kind]int), log: alert.NewLogEmitter(logger)},
		logger: logger.Named("replay"),
	}
	cfgStore := config.NewStore(cfg)

	r.ledger = ledger.New(ledger.Options{
		Limits: ledger.LimitsFromConfig(cfg.Sizing),
		Store:  memory.NewLedgerStateStore(),
		Logger: logger,
		Now:    r.clock.Now,
	})
	exec := execution.NewManager(execution.Options{
		Paper: execution.NewPaperRouter(execution.PaperRouterOptions{
			Prices:      r.prices,
			SlippageBps: func() int { return cfgStore.Load().Execution.PaperSlippageBps },
		}),
		Settings: func() domain.ExecutionConfig { return cfgStore.Load().Execution },
		Logger:   logger,
		Now:      r.clock.Now,
	})
	r.positions = position.NewEngine(position.Options{
		Exiter:    exec,
		Ledger:    r.ledger,
		Prices:    r.prices,
		Store:     r.store,
		History:   memory.NewTradeHistoryStore(),
		Alerts:    r.alerts,
		Logger:    logger,
		Now:       r.clock.Now,
		RetryBase: 5 * time.Millisecond,
		RetryMax:  50 * time.Millisecond,
	})

	eng, err := engine.New(engine.Options{
		Normalizer: discovery.NewNormalizer(discovery.NormalizerOptions{
			Store:  memory.NewCandidateStore(),
			Now:    r.clock.Now,
			Logger: logger,
		}),
		Gates:        gate.NewPipeline(gate.WithClock(r.clock.Now)),
		Scorer:       scoring.NewEngine(),
		Sizer:        sizing.NewSizer(),
		Ledger:       r.ledger,
		Executor:     exec,
		Positions:    r.positions,
		Config:       cfgStore,
		Mode:         domain.ModePaper,
		GateResults:  memory.NewGateResultStore(),
		Scores:       memory.NewScoreStore(),
		ScoreHistory: memory.NewScoreStore(),
		Alerts:       r.alerts,
		Logger:       logger,
		Now:          r.clock.Now,
	})
	if err != nil {
		return nil, err
	}
	r.engine = eng
	return r, nil
}

// run replays events and ticks in timestamp order. At equal timestamps the
// tick is applied first so an entry sees the price of its own instant.
// A UTC day boundary rolls the ledger over.
func (r *replayer) run(ctx context.Context, events []*ingestion.RawEvent, ticks []ingestion.PriceTick) (*Summary, error) {
	ingestion.SortRawEvents(events)
	ingestion.SortPriceTicks(ticks)

	sum := &Summary{Events: len(events), Ticks: len(ticks)}
	day := int64(math.MinInt64)
	advance := func(ts int64) {
		r.clock.set(ts)
		d := ts / dayMs
		if day == math.MinInt64 {
			day = d
			sum.Days = 1
			return
		}
		if d > day {
			day = d
			sum.Days++
			snap := r.ledger.Rollover()
			r.logger.Info("day rollover", zap.Int64("epoch", snap.Epoch))
		}
	}

	i, j := 0, 0
	for i < len(events) || j < len(ticks) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if j < len(ticks) && (i == len(events) || ticks[j].ObservedAt <= events[i].ObservedAt) {
			tick := ticks[j]
			j++
			advance(tick.ObservedAt)
			r.prices.Update(tick)
			r.await(tick)
			continue
		}
		ev := events[i]
		i++
		advance(ev.ObservedAt)
		if _, err := r.engine.Process(ctx, ev); err != nil {
			r.logger.Debug("event not traded",
				zap.String("mint", ev.Mint),
				zap.String("reason", domain.ReasonOf(err)),
				zap.Error(err),
			)
		}
	}

	open := r.positions.Positions()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), settleTimeout)
	defer cancel()
	if err := r.positions.Shutdown(shutdownCtx); err != nil {
		return nil, fmt.Errorf("stop position monitors: %w", err)
	}
	return r.summarize(ctx, sum, open)
}

// await blocks until the position monitor for tick.Mint has folded the tick
// in, or until its exit has settled.
func (r *replayer) await(tick ingestion.PriceTick) {
	deadline := time.Now().Add(settleTimeout)
	for time.Now().Before(deadline) {
		p, ok := r.positions.Get(tick.Mint)
		if !ok || (p.Status == domain.PositionOpen && p.LastPrice == tick.PriceUSD) {
			return
		}
		time.Sleep(time.Millisecond)
	}
	r.logger.Warn("position did not settle on tick",
		zap.String("mint", tick.Mint),
		zap.Float64("price", tick.PriceUSD),
	)
}

func (r *replayer) summarize(ctx context.Context, sum *Summary, open []domain.Position) (*Summary, error) {
	closed, err := r.store.GetClosedByTimeRange(ctx, math.MinInt64, math.MaxInt64)
	if err != nil {
		return nil, fmt.Errorf("load closed positions: %w", err)
	}

	realized := decimal.Zero
	sum.ExitReasons = make(map[string]int)
	for _, p := range closed {
		sum.Closed++
		realized = realized.Add(p.RealizedPnL)
		sum.ExitReasons[p.ExitReason]++
		if p.RealizedPnL.IsPositive() {
			sum.Wins++
		} else {
			sum.Losses++
		}
	}
	sum.RealizedPnLUSD = realized.StringFixed(2)

	sort.Slice(open, func(a, b int) bool { return open[a].Mint < open[b].Mint })
	for _, p := range open {
		value := decimal.NewFromFloat(p.TokenUnits * p.LastPrice).RoundDown(2)
		sum.Open = append(sum.Open, OpenPosition{
			Mint:          p.Mint,
			EntryPrice:    p.EntryPrice,
			LastPrice:     p.LastPrice,
			EntryCostUSD:  p.EntryCostUSD.StringFixed(2),
			UnrealizedUSD: value.Sub(p.EntryCostUSD).StringFixed(2),
		})
	}

	sum.Stats = r.engine.Stats()
	sum.Alerts = r.alerts.snapshot()
	return sum, nil
}
