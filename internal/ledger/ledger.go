// Package ledger tracks process-wide committed capital, open positions,
// realized daily P&L and the daily-loss circuit breaker.
package ledger

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"graduation-engine/internal/domain"
	"graduation-engine/internal/observability"
	"graduation-engine/internal/storage"
)

const persistTimeout = 5 * time.Second

// Limits are the budget caps enforced by TryReserve.
type Limits struct {
	GlobalCapUSD    decimal.Decimal
	MaxConcurrent   int
	DailyLossCapUSD decimal.Decimal
}

// LimitsFromConfig converts fractional sizing caps into USD limits.
func LimitsFromConfig(cfg domain.SizingConfig) Limits {
	capital := decimal.NewFromFloat(cfg.TotalCapitalUSD)
	return Limits{
		GlobalCapUSD:    capital.Mul(decimal.NewFromFloat(cfg.GlobalExposureCapPct)).RoundDown(2),
		MaxConcurrent:   cfg.MaxConcurrentPositions,
		DailyLossCapUSD: capital.Mul(decimal.NewFromFloat(cfg.DailyLossCapPct)).RoundDown(2),
	}
}

// Handle is a reservation of capital. It is released exactly once.
type Handle struct {
	ID         string
	Amount     decimal.Decimal
	Epoch      int64 // ledger epoch the reservation was made in
	ReservedAt int64 // Unix timestamp in milliseconds
}

// Snapshot is a consistent copy of the ledger state.
type Snapshot struct {
	Committed   decimal.Decimal
	OpenCount   int
	RealizedPnL decimal.Decimal
	Epoch       int64
	Breaker     bool
	Limits      Limits
}

// Headroom returns the capital still available under the global cap.
func (s Snapshot) Headroom() decimal.Decimal {
	h := s.Limits.GlobalCapUSD.Sub(s.Committed)
	if h.IsNegative() {
		return decimal.Zero
	}
	return h
}

// Options configures a Ledger.
type Options struct {
	Limits Limits
	Store  storage.LedgerStateStore // optional
	Logger *zap.Logger
	Now    func() time.Time
}

// Ledger is the exposure ledger. Every mutation happens under one mutex;
// persistence runs after the mutex is released.
type Ledger struct {
	mu        sync.Mutex
	limits    Limits
	committed decimal.Decimal
	realized  decimal.Decimal
	epoch     int64
	breaker   bool
	active    map[string]*Handle
	version   uint64

	store     storage.LedgerStateStore
	persistMu sync.Mutex
	persisted uint64

	logger *zap.Logger
	now    func() time.Time
}

// New creates a ledger at epoch 1.
func New(opts Options) *Ledger {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Ledger{
		limits:    opts.Limits,
		committed: decimal.Zero,
		realized:  decimal.Zero,
		epoch:     1,
		active:    make(map[string]*Handle),
		store:     opts.Store,
		logger:    logger.Named("ledger"),
		now:       now,
	}
}

// Restore loads the saved day state. A missing state is not an error.
// State saved on an earlier UTC day is restored and then rolled over, so a
// restart after midnight starts the new day with a clear breaker.
func (l *Ledger) Restore(ctx context.Context) error {
	if l.store == nil {
		return nil
	}
	st, err := l.store.Load(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load ledger state: %w", err)
	}

	l.mu.Lock()
	l.epoch = st.Epoch
	l.realized = st.RealizedPnL
	l.breaker = st.Breaker
	l.version++
	l.mu.Unlock()

	stale := !sameUTCDay(time.UnixMilli(st.UpdatedAt), l.now())
	l.logger.Info("ledger state restored",
		zap.Int64("epoch", st.Epoch),
		zap.String("realized_pnl", st.RealizedPnL.StringFixed(2)),
		zap.Bool("breaker", st.Breaker),
		zap.Bool("stale_day", stale),
	)
	if stale {
		l.Rollover()
	}
	return nil
}

func sameUTCDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// TryReserve atomically reserves amount or rejects with a budget reason.
// Checks run in order: amount, circuit breaker, concurrency, global cap.
func (l *Ledger) TryReserve(amount decimal.Decimal) (*Handle, error) {
	if !amount.IsPositive() {
		return nil, domain.Reject(domain.ErrBudgetRejected, domain.ReasonInvalidAmount,
			fmt.Sprintf("amount %s", amount.String()))
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.breaker {
		return nil, domain.Reject(domain.ErrBudgetRejected, domain.ReasonDailyLossBreaker,
			fmt.Sprintf("realized %s", l.realized.StringFixed(2)))
	}
	if len(l.active) >= l.limits.MaxConcurrent {
		return nil, domain.Reject(domain.ErrBudgetRejected, domain.ReasonMaxConcurrent,
			fmt.Sprintf("open %d of %d", len(l.active), l.limits.MaxConcurrent))
	}
	if l.committed.Add(amount).GreaterThan(l.limits.GlobalCapUSD) {
		return nil, domain.Reject(domain.ErrBudgetRejected, domain.ReasonGlobalExposureCap,
			fmt.Sprintf("committed %s + %s > cap %s",
				l.committed.StringFixed(2), amount.StringFixed(2), l.limits.GlobalCapUSD.StringFixed(2)))
	}

	h := &Handle{
		ID:         uuid.NewString(),
		Amount:     amount,
		Epoch:      l.epoch,
		ReservedAt: l.now().UnixMilli(),
	}
	l.active[h.ID] = h
	l.committed = l.committed.Add(amount)
	l.publishLocked()
	return h, nil
}

// Adopt records a reservation that already exists outside the ledger, such
// as a position recovered after a restart. Caps are not checked: the
// capital is already spent.
func (l *Ledger) Adopt(amount decimal.Decimal) *Handle {
	l.mu.Lock()
	defer l.mu.Unlock()

	h := &Handle{
		ID:         uuid.NewString(),
		Amount:     amount,
		Epoch:      l.epoch,
		ReservedAt: l.now().UnixMilli(),
	}
	l.active[h.ID] = h
	l.committed = l.committed.Add(amount)
	l.publishLocked()
	return h
}

// Release returns a reservation's capital and books its realized P&L into
// the current day. It returns false when the handle is unknown or was
// already released.
func (l *Ledger) Release(h *Handle, realizedPnL decimal.Decimal) bool {
	if h == nil {
		return false
	}

	l.mu.Lock()
	held, ok := l.active[h.ID]
	if !ok {
		l.mu.Unlock()
		return false
	}
	delete(l.active, h.ID)
	l.committed = l.committed.Sub(held.Amount)
	l.realized = l.realized.Add(realizedPnL)
	tripped := false
	if !l.breaker && l.realized.LessThanOrEqual(l.limits.DailyLossCapUSD.Neg()) {
		l.breaker = true
		tripped = true
	}
	l.version++
	l.publishLocked()
	state, version := l.stateLocked()
	l.mu.Unlock()

	if tripped {
		l.logger.Warn("daily loss circuit breaker tripped",
			zap.String("realized_pnl", state.RealizedPnL.StringFixed(2)),
			zap.String("cap", l.limits.DailyLossCapUSD.StringFixed(2)),
		)
	}
	if !realizedPnL.IsZero() || tripped {
		l.persist(state, version)
	}
	return true
}

// ReleaseByID releases a held reservation by its ID. It is the manual path
// for reservations no position owns, such as an untracked fill.
func (l *Ledger) ReleaseByID(id string, realizedPnL decimal.Decimal) bool {
	l.mu.Lock()
	h, ok := l.active[id]
	l.mu.Unlock()
	if !ok {
		return false
	}
	return l.Release(h, realizedPnL)
}

// Reservations returns copies of the held reservations, oldest first.
func (l *Ledger) Reservations() []Handle {
	l.mu.Lock()
	out := make([]Handle, 0, len(l.active))
	for _, h := range l.active {
		out = append(out, *h)
	}
	l.mu.Unlock()
	slices.SortFunc(out, func(a, b Handle) int {
		return cmp.Or(cmp.Compare(a.ReservedAt, b.ReservedAt), cmp.Compare(a.ID, b.ID))
	})
	return out
}

// Snapshot returns a consistent copy of the current state.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked()
}

// Rollover starts a new trading day: the epoch increments, realized P&L
// resets and the breaker clears. Committed capital and open count carry over.
func (l *Ledger) Rollover() Snapshot {
	l.mu.Lock()
	l.epoch++
	l.realized = decimal.Zero
	l.breaker = false
	l.version++
	l.publishLocked()
	snap := l.snapshotLocked()
	state, version := l.stateLocked()
	l.mu.Unlock()

	l.logger.Info("ledger rollover",
		zap.Int64("epoch", snap.Epoch),
		zap.String("committed", snap.Committed.StringFixed(2)),
		zap.Int("open", snap.OpenCount),
	)
	l.persist(state, version)
	return snap
}

// SetLimits replaces the limits. Existing reservations are kept even if
// they now exceed the caps; new reservations see the new limits.
func (l *Ledger) SetLimits(limits Limits) {
	l.mu.Lock()
	l.limits = limits
	trip := !l.breaker && l.realized.LessThanOrEqual(limits.DailyLossCapUSD.Neg())
	if trip {
		l.breaker = true
		l.version++
	}
	state, version := l.stateLocked()
	l.mu.Unlock()

	if trip {
		l.persist(state, version)
	}
}

func (l *Ledger) snapshotLocked() Snapshot {
	return Snapshot{
		Committed:   l.committed,
		OpenCount:   len(l.active),
		RealizedPnL: l.realized,
		Epoch:       l.epoch,
		Breaker:     l.breaker,
		Limits:      l.limits,
	}
}

// publishLocked mirrors the ledger into the exposure gauges.
func (l *Ledger) publishLocked() {
	committed, _ := l.committed.Float64()
	realized, _ := l.realized.Float64()
	observability.UpdateLedger(committed, realized, l.breaker)
}

func (l *Ledger) stateLocked() (storage.LedgerState, uint64) {
	return storage.LedgerState{
		Epoch:       l.epoch,
		RealizedPnL: l.realized,
		Breaker:     l.breaker,
		UpdatedAt:   l.now().UnixMilli(),
	}, l.version
}

// persist saves state unless a newer version has already been written.
func (l *Ledger) persist(state storage.LedgerState, version uint64) {
	if l.store == nil {
		return
	}

	l.persistMu.Lock()
	defer l.persistMu.Unlock()
	if version <= l.persisted {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := l.store.Save(ctx, &state); err != nil {
		l.logger.Error("persist ledger state", zap.Error(err))
		return
	}
	l.persisted = version
}
