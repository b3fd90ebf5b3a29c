package postgres_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"graduation-engine/internal/domain"
	"graduation-engine/internal/storage"
	"graduation-engine/internal/storage/migrations"
	"graduation-engine/internal/storage/postgres"
)

// setupTestDB starts PostgreSQL in a container and applies the embedded migrations.
func setupTestDB(t *testing.T) *postgres.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("testdb"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := postgres.NewPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	applied, err := migrations.RunPostgresMigrations(ctx, pool)
	require.NoError(t, err)
	require.NotEmpty(t, applied)

	again, err := migrations.RunPostgresMigrations(ctx, pool)
	require.NoError(t, err)
	require.Empty(t, again, "migrations are applied once")
	return pool
}

func ptr[T any](v T) *T { return &v }

func candidate(mint string, epoch int, at int64) *domain.Candidate {
	return &domain.Candidate{
		CandidateID:  fmt.Sprintf("%s-%d", mint, epoch),
		Mint:         mint,
		Epoch:        epoch,
		Pool:         ptr("Pool" + mint),
		Source:       domain.SourcePush,
		DiscoveredAt: at,
		CreatedAt:    at,
		Features: domain.FeatureSnapshot{
			Version:      domain.FeatureSnapshotVersion,
			LiquidityUSD: 50000,
			Top10Pct:     40,
			LPLock:       domain.LPLock{Burned: true},
			Missing:      []string{"momentum"},
		},
	}
}

func TestPostgresStores(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()

	t.Run("candidates", func(t *testing.T) {
		s := postgres.NewCandidateStore(pool)
		require.NoError(t, s.Insert(ctx, candidate("MintA", 1, 1000)))
		require.NoError(t, s.Insert(ctx, candidate("MintA", 2, 5000)))
		assert.ErrorIs(t, s.Insert(ctx, candidate("MintA", 1, 1000)), storage.ErrDuplicateKey)

		got, err := s.GetByID(ctx, "MintA-1")
		require.NoError(t, err)
		assert.Equal(t, 50000.0, got.Features.LiquidityUSD)
		assert.True(t, got.Features.LPLock.Burned)
		assert.Equal(t, []string{"momentum"}, got.Features.Missing)
		require.NotNil(t, got.Pool)
		assert.Equal(t, "PoolMintA", *got.Pool)

		epochs, err := s.GetByMint(ctx, "MintA")
		require.NoError(t, err)
		require.Len(t, epochs, 2)
		assert.Equal(t, 2, epochs[1].Epoch)

		inRange, err := s.GetByTimeRange(ctx, 0, 2000)
		require.NoError(t, err)
		assert.Len(t, inRange, 1)

		_, err = s.GetByID(ctx, "missing")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("gate results", func(t *testing.T) {
		s := postgres.NewGateResultStore(pool)
		results := []*domain.GateResult{
			{CandidateID: "MintA-1", Gate: domain.GateMinLiquidity, Passed: true, Margin: 30000, Observed: 50000, Threshold: 20000, Reason: domain.ReasonPass, EvaluatedAt: 1000},
			{CandidateID: "MintA-1", Gate: domain.GateMaxSniperPct, Passed: true, Margin: 25, Observed: 10, Threshold: 35, Reason: domain.ReasonPass, EvaluatedAt: 1000},
			{CandidateID: "MintA-1", Gate: domain.GateMaxTop10Pct, Passed: false, Margin: -15, Observed: 75, Threshold: 60, Reason: domain.ReasonTop10TooHigh, EvaluatedAt: 1000},
		}
		require.NoError(t, s.InsertBulk(ctx, results))
		assert.ErrorIs(t, s.InsertBulk(ctx, results[:1]), storage.ErrDuplicateKey)

		got, err := s.GetByCandidateID(ctx, "MintA-1")
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, domain.GateMaxTop10Pct, got[2].Gate)
		assert.Equal(t, -15.0, got[2].Margin)
	})

	t.Run("scores", func(t *testing.T) {
		s := postgres.NewScoreStore(pool)
		sc := &domain.Score{
			CandidateID: "MintA-2", Mint: "MintA", Value: 78,
			Components:    domain.ScoreComponents{LiquidityDepth: 100, DistributionHealth: 70, LockDurability: 75, Momentum: 55},
			ConfigName:    "default",
			ConfigVersion: 1,
			ComputedAt:    5000,
		}
		require.NoError(t, s.Insert(ctx, sc))
		assert.ErrorIs(t, s.Insert(ctx, sc), storage.ErrDuplicateKey)

		got, err := s.GetByID(ctx, "MintA-2")
		require.NoError(t, err)
		assert.Equal(t, *sc, *got)

		list, err := s.GetByTimeRange(ctx, 4000, 6000)
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})

	t.Run("positions", func(t *testing.T) {
		s := postgres.NewPositionStore(pool)
		p := &domain.Position{
			PositionID: "pos-1", CandidateID: "MintA-2", Mint: "MintA", Epoch: 2,
			Mode: domain.ModePaper, Status: domain.PositionOpen,
			EntryPrice: 0.001, EntryCostUSD: decimal.RequireFromString("500.00"),
			TokenUnits: 500000, ReservedUSD: decimal.RequireFromString("500.00"),
			ReservationID: "r-1", OpenedAt: 6000,
			Rules:     domain.DefaultTradingConfig().Exit,
			PeakPrice: 0.001, LastPrice: 0.001,
		}
		require.NoError(t, s.Insert(ctx, p))
		assert.ErrorIs(t, s.Insert(ctx, p), storage.ErrDuplicateKey)

		active, err := s.GetActive(ctx)
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, p.Rules, active[0].Rules)
		assert.True(t, active[0].EntryCostUSD.Equal(p.EntryCostUSD))

		p.Status = domain.PositionClosed
		p.ExitReason = domain.ExitReasonStopLoss
		p.ExitPrice = 0.0007
		p.ExitProceedsUSD = decimal.RequireFromString("350.00")
		p.RealizedPnL = decimal.RequireFromString("-150.00")
		p.ClosedAt = 9000
		require.NoError(t, s.Update(ctx, p))

		active, err = s.GetActive(ctx)
		require.NoError(t, err)
		assert.Empty(t, active)

		closed, err := s.GetClosedByTimeRange(ctx, 8000, 10000)
		require.NoError(t, err)
		require.Len(t, closed, 1)
		assert.Equal(t, "-150.00", closed[0].RealizedPnL.StringFixed(2))

		byMint, err := s.GetByMint(ctx, "MintA")
		require.NoError(t, err)
		assert.Len(t, byMint, 1)

		assert.ErrorIs(t, s.Update(ctx, &domain.Position{PositionID: "nope"}), storage.ErrNotFound)
	})

	t.Run("ledger state", func(t *testing.T) {
		s := postgres.NewLedgerStateStore(pool)
		_, err := s.Load(ctx)
		assert.ErrorIs(t, err, storage.ErrNotFound)

		require.NoError(t, s.Save(ctx, &storage.LedgerState{Epoch: 3, RealizedPnL: decimal.RequireFromString("-2000.00"), Breaker: true, UpdatedAt: 1}))
		require.NoError(t, s.Save(ctx, &storage.LedgerState{Epoch: 4, RealizedPnL: decimal.Zero, UpdatedAt: 2}))

		st, err := s.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(4), st.Epoch)
		assert.False(t, st.Breaker)
		assert.True(t, st.RealizedPnL.IsZero())
	})
}
