package memory

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graduation-engine/internal/domain"
	"graduation-engine/internal/storage"
)

func TestGateResultStore_AppendOnly(t *testing.T) {
	store := NewGateResultStore()
	ctx := context.Background()

	results := []*domain.GateResult{
		{CandidateID: "c1", Gate: domain.GateMinLiquidity, Passed: true, Reason: domain.ReasonPass},
		{CandidateID: "c1", Gate: domain.GateMaxSniperPct, Passed: false, Reason: domain.ReasonSniperTooHigh},
	}
	require.NoError(t, store.InsertBulk(ctx, results))

	got, err := store.GetByCandidateID(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, domain.GateMinLiquidity, got[0].Gate)
	assert.Equal(t, domain.GateMaxSniperPct, got[1].Gate)

	// Same gate again is rejected, and the batch is all-or-nothing
	err = store.InsertBulk(ctx, []*domain.GateResult{
		{CandidateID: "c1", Gate: domain.GateMaxTop10Pct},
		{CandidateID: "c1", Gate: domain.GateMinLiquidity},
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	got, _ = store.GetByCandidateID(ctx, "c1")
	assert.Len(t, got, 2)
}

func TestGateResultStore_IntraBatchDuplicate(t *testing.T) {
	store := NewGateResultStore()

	err := store.InsertBulk(context.Background(), []*domain.GateResult{
		{CandidateID: "c1", Gate: domain.GateMinLiquidity},
		{CandidateID: "c1", Gate: domain.GateMinLiquidity},
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestScoreStore_OnePerCandidate(t *testing.T) {
	store := NewScoreStore()
	ctx := context.Background()

	s := &domain.Score{CandidateID: "c1", Mint: "m", Value: 78, ComputedAt: 1000}
	require.NoError(t, store.Insert(ctx, s))

	err := store.Insert(ctx, &domain.Score{CandidateID: "c1", Value: 10})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	got, err := store.GetByID(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 78.0, got.Value)

	_, err = store.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestScoreStore_InsertBulkAndRange(t *testing.T) {
	store := NewScoreStore()
	ctx := context.Background()

	require.NoError(t, store.InsertBulk(ctx, []*domain.Score{
		{CandidateID: "b", ComputedAt: 2000},
		{CandidateID: "a", ComputedAt: 1000},
		{CandidateID: "c", ComputedAt: 3000},
	}))

	got, err := store.GetByTimeRange(ctx, 1000, 2000)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].CandidateID)

	err = store.InsertBulk(ctx, []*domain.Score{{CandidateID: "d"}, {CandidateID: "a"}})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
	_, err = store.GetByID(ctx, "d")
	assert.ErrorIs(t, err, storage.ErrNotFound, "failed batch inserts nothing")
}

func TestPositionStore_Lifecycle(t *testing.T) {
	store := NewPositionStore()
	ctx := context.Background()

	p := &domain.Position{
		PositionID:   "p1",
		Mint:         "m",
		Status:       domain.PositionOpen,
		EntryCostUSD: decimal.NewFromInt(500),
		OpenedAt:     1000,
	}
	require.NoError(t, store.Insert(ctx, p))
	assert.ErrorIs(t, store.Insert(ctx, p), storage.ErrDuplicateKey)

	active, err := store.GetActive(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	p.Status = domain.PositionClosed
	p.ClosedAt = 5000
	p.RealizedPnL = decimal.NewFromInt(-100)
	require.NoError(t, store.Update(ctx, p))

	active, _ = store.GetActive(ctx)
	assert.Empty(t, active)

	closed, err := store.GetClosedByTimeRange(ctx, 0, 10000)
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.True(t, closed[0].RealizedPnL.Equal(decimal.NewFromInt(-100)))

	byMint, _ := store.GetByMint(ctx, "m")
	assert.Len(t, byMint, 1)

	assert.ErrorIs(t, store.Update(ctx, &domain.Position{PositionID: "nope"}), storage.ErrNotFound)
}

func TestTradeHistoryStore_RejectsOpenPositions(t *testing.T) {
	store := NewTradeHistoryStore()
	ctx := context.Background()

	err := store.InsertBulk(ctx, []*domain.Position{{PositionID: "p1", Status: domain.PositionOpen}})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	require.NoError(t, store.InsertBulk(ctx, []*domain.Position{
		{PositionID: "p2", Status: domain.PositionClosed, ClosedAt: 200},
		{PositionID: "p1", Status: domain.PositionClosed, ClosedAt: 100},
	}))

	got, err := store.GetByTimeRange(ctx, 0, 1000)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "p1", got[0].PositionID)
}

func TestLedgerStateStore(t *testing.T) {
	store := NewLedgerStateStore()
	ctx := context.Background()

	_, err := store.Load(ctx)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, store.Save(ctx, &storage.LedgerState{Epoch: 3, RealizedPnL: decimal.NewFromInt(-2000), Breaker: true}))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.Epoch)
	assert.True(t, got.Breaker)
	assert.True(t, got.RealizedPnL.Equal(decimal.NewFromInt(-2000)))
}
