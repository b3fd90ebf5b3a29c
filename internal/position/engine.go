// Package position owns open positions: it monitors prices, evaluates exit
// rules, runs the single exit order and settles P&L into the ledger.
package position

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"graduation-engine/internal/alert"
	"graduation-engine/internal/domain"
	"graduation-engine/internal/idhash"
	"graduation-engine/internal/ingestion"
	"graduation-engine/internal/ledger"
	"graduation-engine/internal/observability"
	"graduation-engine/internal/storage"
	"graduation-engine/internal/strategy"
)

// Engine errors
var (
	ErrPositionExists   = errors.New("position already exists for mint")
	ErrPositionNotFound = errors.New("position not found")
	ErrNotOpen          = errors.New("position is not open")
	ErrShutdown         = errors.New("position engine is shut down")
)

const (
	defaultRetryBase = 500 * time.Millisecond
	defaultRetryMax  = 30 * time.Second
	persistTimeout   = 5 * time.Second
)

// Exiter sells a position's tokens.
type Exiter interface {
	Exit(ctx context.Context, p *domain.Position) (*domain.Fill, error)
}

// Ledger is the part of the exposure ledger positions settle into.
type Ledger interface {
	Release(h *ledger.Handle, realizedPnL decimal.Decimal) bool
	Adopt(amount decimal.Decimal) *ledger.Handle
}

// PriceFeed supplies pushed and polled prices.
type PriceFeed interface {
	Last(mint string) (ingestion.PriceTick, bool)
	Watch(mint string) (<-chan ingestion.PriceTick, func())
}

// Options configures an Engine.
type Options struct {
	Exiter  Exiter
	Ledger  Ledger
	Prices  PriceFeed                 // optional; without it only the last entry price is seen
	Store   storage.PositionStore     // optional
	History storage.TradeHistoryStore // optional
	Alerts  alert.Emitter             // optional
	Logger  *zap.Logger
	Now     func() time.Time

	// Exit retry backoff
	RetryBase time.Duration
	RetryMax  time.Duration
}

// Engine manages the lifecycle of positions. At most one position (or
// pending claim) exists per mint.
type Engine struct {
	exiter  Exiter
	ledger  Ledger
	prices  PriceFeed
	store   storage.PositionStore
	history storage.TradeHistoryStore
	alerts  alert.Emitter
	logger  *zap.Logger
	now     func() time.Time

	retryBase time.Duration
	retryMax  time.Duration

	mu        sync.Mutex
	claims    map[string]struct{}
	positions map[string]*tracked
	shutdown  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEngine creates a position engine.
func NewEngine(opts Options) *Engine {
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
	if opts.RetryBase <= 0 {
		opts.RetryBase = defaultRetryBase
	}
	if opts.RetryMax < opts.RetryBase {
		opts.RetryMax = defaultRetryMax
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		exiter:    opts.Exiter,
		ledger:    opts.Ledger,
		prices:    opts.Prices,
		store:     opts.Store,
		history:   opts.History,
		alerts:    alerts,
		logger:    logger.Named("position"),
		now:       now,
		retryBase: opts.RetryBase,
		retryMax:  opts.RetryMax,
		claims:    make(map[string]struct{}),
		positions: make(map[string]*tracked),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Claim reserves the mint for a position about to be opened. It fails with
// ErrPositionExists while another claim or an unclosed position holds it.
func (e *Engine) Claim(mint string) (*Claim, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.shutdown {
		return nil, ErrShutdown
	}
	if _, ok := e.claims[mint]; ok {
		return nil, ErrPositionExists
	}
	if _, ok := e.positions[mint]; ok {
		return nil, ErrPositionExists
	}
	e.claims[mint] = struct{}{}
	return &Claim{engine: e, mint: mint}, nil
}

// Open turns a claim into an OPEN position and starts its monitor.
// Exit rules are snapshotted from rules.
func (e *Engine) Open(ctx context.Context, claim *Claim, c *domain.Candidate, fill *domain.Fill, h *ledger.Handle, rules domain.ExitRules) (*domain.Position, error) {
	if claim == nil || c == nil || fill == nil || h == nil {
		return nil, fmt.Errorf("open position: missing claim, candidate, fill or handle")
	}
	if claim.mint != c.Mint {
		return nil, fmt.Errorf("open position: claim for %s used for %s", claim.mint, c.Mint)
	}
	set, err := strategy.FromRules(rules)
	if err != nil {
		return nil, fmt.Errorf("open position: %w", err)
	}

	e.mu.Lock()
	released := claim.released
	e.mu.Unlock()
	if released {
		return nil, fmt.Errorf("open position %s: claim already released", c.Mint)
	}

	p := domain.Position{
		PositionID:    idhash.ComputePositionID(c.Mint, c.Epoch, fill.Mode.String()),
		CandidateID:   c.CandidateID,
		Mint:          c.Mint,
		Epoch:         c.Epoch,
		Mode:          fill.Mode,
		Status:        domain.PositionOpen,
		EntryPrice:    fill.Price,
		EntryCostUSD:  fill.AmountUSD,
		TokenUnits:    fill.TokenUnits,
		ReservedUSD:   h.Amount,
		ReservationID: h.ID,
		OpenedAt:      fill.FilledAt,
		Rules:         rules,
		PeakPrice:     fill.Price,
		LastPrice:     fill.Price,
	}

	if e.store != nil {
		if err := e.store.Insert(ctx, &p); err != nil {
			// The tokens are held either way; keep managing the position.
			e.logger.Error("persist opened position",
				zap.String("position_id", p.PositionID),
				zap.Error(err),
			)
		}
	}

	t := newTracked(p, h, set)

	e.mu.Lock()
	delete(e.claims, c.Mint)
	claim.consume()
	e.positions[c.Mint] = t
	e.wg.Add(1)
	open := len(e.positions)
	e.mu.Unlock()

	observability.SetOpenPositions(open)
	e.logger.Info("position opened",
		zap.String("mint", p.Mint),
		zap.Int("epoch", p.Epoch),
		zap.String("mode", p.Mode.String()),
		zap.Float64("entry_price", p.EntryPrice),
		zap.String("entry_cost", p.EntryCostUSD.StringFixed(2)),
	)

	go e.monitor(t)
	return &p, nil
}

// Close requests a manual exit. The exit runs on the position's monitor.
func (e *Engine) Close(mint string) error {
	e.mu.Lock()
	t, ok := e.positions[mint]
	e.mu.Unlock()
	if !ok {
		return ErrPositionNotFound
	}
	if !t.beginClose(domain.ExitReasonManual) {
		return ErrNotOpen
	}
	t.wake()
	return nil
}

// Get returns a copy of the unclosed position for a mint.
func (e *Engine) Get(mint string) (domain.Position, bool) {
	e.mu.Lock()
	t, ok := e.positions[mint]
	e.mu.Unlock()
	if !ok {
		return domain.Position{}, false
	}
	return t.snapshot(), true
}

// Positions returns copies of all unclosed positions ordered by open time.
func (e *Engine) Positions() []domain.Position {
	e.mu.Lock()
	list := make([]*tracked, 0, len(e.positions))
	for _, t := range e.positions {
		list = append(list, t)
	}
	e.mu.Unlock()

	out := make([]domain.Position, 0, len(list))
	for _, t := range list {
		out = append(out, t.snapshot())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OpenedAt != out[j].OpenedAt {
			return out[i].OpenedAt < out[j].OpenedAt
		}
		return out[i].Mint < out[j].Mint
	})
	return out
}

// OpenCount returns the number of unclosed positions.
func (e *Engine) OpenCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.positions)
}

// Recover resumes OPEN and CLOSING positions from the store after a restart.
// Their capital is adopted into the ledger. Returns how many were resumed.
func (e *Engine) Recover(ctx context.Context) (int, error) {
	if e.store == nil {
		return 0, nil
	}
	active, err := e.store.GetActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("load active positions: %w", err)
	}

	n := 0
	for _, p := range active {
		set, err := strategy.FromRules(p.Rules)
		if err != nil {
			e.logger.Error("recovered position has invalid exit rules, using defaults",
				zap.String("position_id", p.PositionID), zap.Error(err))
			p.Rules = domain.DefaultTradingConfig().Exit
			set = strategy.DefaultSet()
		}

		e.mu.Lock()
		if _, exists := e.positions[p.Mint]; exists || e.shutdown {
			e.mu.Unlock()
			continue
		}
		h := e.ledger.Adopt(p.ReservedUSD)
		p.ReservationID = h.ID
		t := newTracked(*p, h, set)
		e.positions[p.Mint] = t
		e.wg.Add(1)
		e.mu.Unlock()

		e.logger.Info("position recovered",
			zap.String("mint", p.Mint),
			zap.String("status", string(p.Status)),
		)
		go e.monitor(t)
		n++
	}
	observability.SetOpenPositions(e.OpenCount())
	return n, nil
}

// Shutdown stops all monitors and waits for them. Unclosed positions stay
// in the store for Recover.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.shutdown = true
	e.mu.Unlock()
	e.cancel()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// persist writes a position outside any lock.
func (e *Engine) persist(p *domain.Position) {
	if e.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := e.store.Update(ctx, p); err != nil {
		e.logger.Error("persist position",
			zap.String("position_id", p.PositionID),
			zap.String("status", string(p.Status)),
			zap.Error(err),
		)
	}
}

func (e *Engine) remove(mint string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.positions, mint)
	return len(e.positions)
}

// Claim holds a mint between admission and Open.
type Claim struct {
	engine *Engine
	mint   string
	once     sync.Once
	used     bool
	released bool
}

// Mint returns the claimed mint.
func (c *Claim) Mint() string {
	return c.mint
}

// Release drops the claim if it was not turned into a position. Safe to call repeatedly.
func (c *Claim) Release() {
	c.once.Do(func() {
		c.engine.mu.Lock()
		defer c.engine.mu.Unlock()
		if !c.used {
			c.released = true
			delete(c.engine.claims, c.mint)
		}
	})
}

// consume marks the claim as turned into a position. Caller holds engine.mu.
func (c *Claim) consume() {
	c.used = true
}
