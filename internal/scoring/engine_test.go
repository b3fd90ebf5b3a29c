package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graduation-engine/internal/domain"
)

func exampleCandidate() *domain.Candidate {
	return &domain.Candidate{
		CandidateID: "cand-1",
		Mint:        "mint-1",
		Epoch:       1,
		Features: domain.FeatureSnapshot{
			Version:      domain.FeatureSnapshotVersion,
			LiquidityUSD: 50000,
			Top10Pct:     40,
			SniperPct:    10,
			LPLock: domain.LPLock{
				LockedPct:        100,
				DurationDays:     45,
				LockerReputation: 80,
				Verified:         true,
			},
			Momentum: domain.Momentum{Buys5m: 60, Sells5m: 40, VolumeUSD5m: 12500},
		},
	}
}

func TestEngine_Score_Example(t *testing.T) {
	cfg := domain.DefaultTradingConfig()

	s, err := NewEngine().Score(exampleCandidate(), cfg)
	require.NoError(t, err)

	assert.InDelta(t, 100.0, s.Components.LiquidityDepth, 1e-9)
	assert.InDelta(t, 70.0, s.Components.DistributionHealth, 1e-9)
	assert.InDelta(t, 75.0, s.Components.LockDurability, 1e-9)
	assert.InDelta(t, 55.0, s.Components.Momentum, 1e-9)
	assert.InDelta(t, 78.0, s.Value, 1e-9)

	assert.Equal(t, "cand-1", s.CandidateID)
	assert.Equal(t, "mint-1", s.Mint)
	assert.Equal(t, cfg.Name, s.ConfigName)
	assert.Equal(t, cfg.Version, s.ConfigVersion)
	assert.True(t, PassesCutoff(s, cfg))
}

func TestEngine_Score_Deterministic(t *testing.T) {
	cfg := domain.DefaultTradingConfig()
	e := NewEngine()

	first, err := e.Score(exampleCandidate(), cfg)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := e.Score(exampleCandidate(), cfg)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestEngine_Score_ComponentsClipped(t *testing.T) {
	c := exampleCandidate()
	c.Features.Top10Pct = 100
	c.Features.SniperPct = 100
	c.Features.LPLock.DurationDays = 600
	c.Features.LiquidityUSD = 10_000_000

	s, err := NewEngine().Score(c, domain.DefaultTradingConfig())
	require.NoError(t, err)

	assert.Equal(t, 0.0, s.Components.DistributionHealth)
	assert.Equal(t, 100.0, s.Components.LockDurability)
	assert.Equal(t, 100.0, s.Components.LiquidityDepth)
	assert.GreaterOrEqual(t, s.Value, 0.0)
	assert.LessOrEqual(t, s.Value, 100.0)
}

func TestEngine_Score_NilCandidate(t *testing.T) {
	_, err := NewEngine().Score(nil, domain.DefaultTradingConfig())
	assert.ErrorIs(t, err, ErrNilCandidate)
}

func TestLiquidityDepth(t *testing.T) {
	tests := []struct {
		name string
		liq  float64
		want float64
	}{
		{"below floor", 1000, 0},
		{"at floor", 5000, 0},
		{"geometric midpoint", 15811.388300841898, 50},
		{"at target", 50000, 100},
		{"above target", 80000, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, LiquidityDepth(tt.liq, 5000, 50000), 1e-6)
		})
	}
}

func TestLockDurability(t *testing.T) {
	assert.Equal(t, 100.0, LockDurability(domain.LPLock{Burned: true}, 60))
	assert.Equal(t, 0.0, LockDurability(domain.LPLock{DurationDays: 90}, 60), "unverified lock")
	assert.InDelta(t, 50.0, LockDurability(domain.LPLock{DurationDays: 30, Verified: true}, 60), 1e-9)
}

func TestMomentumScore(t *testing.T) {
	assert.Equal(t, 0.0, MomentumScore(domain.Momentum{VolumeUSD5m: 50000}, 25000), "no trades")
	assert.InDelta(t, 100.0, MomentumScore(domain.Momentum{Buys5m: 10, VolumeUSD5m: 50000}, 25000), 1e-9)
	assert.InDelta(t, 25.0, MomentumScore(domain.Momentum{Buys5m: 5, Sells5m: 5}, 25000), 1e-9)
}

func TestMonotonicInFeatures(t *testing.T) {
	cfg := domain.DefaultTradingConfig()
	e := NewEngine()

	low := exampleCandidate()
	high := exampleCandidate()
	high.Features.Top10Pct = 20

	sLow, err := e.Score(low, cfg)
	require.NoError(t, err)
	sHigh, err := e.Score(high, cfg)
	require.NoError(t, err)
	assert.Greater(t, sHigh.Value, sLow.Value)
}
