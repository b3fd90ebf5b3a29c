package sizing

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graduation-engine/internal/domain"
	"graduation-engine/internal/ledger"
)

func snapshotWith(cfg domain.TradingConfig, committed string) ledger.Snapshot {
	return ledger.Snapshot{
		Committed:   decimal.RequireFromString(committed),
		RealizedPnL: decimal.Zero,
		Epoch:       1,
		Limits:      ledger.LimitsFromConfig(cfg.Sizing),
	}
}

func score(v float64) *domain.Score {
	return &domain.Score{CandidateID: "cand-1", Mint: "mint-1", Value: v}
}

func TestSize_PerTradeCapExample(t *testing.T) {
	cfg := domain.DefaultTradingConfig()

	order, err := NewSizer().Size(score(78), snapshotWith(cfg, "0"), cfg)
	require.NoError(t, err)

	assert.InDelta(t, 0.325, order.FullKelly, 1e-9)
	assert.True(t, order.AmountUSD.Equal(decimal.NewFromInt(500)), "got %s", order.AmountUSD)
	assert.Equal(t, domain.ClampPerTrade, order.ClampedBy)
	assert.Equal(t, 0.55, order.WinProb)
	assert.Equal(t, 2.0, order.Payoff)
	assert.Equal(t, "cand-1", order.CandidateID)
	assert.Equal(t, "mint-1", order.Mint)
}

func TestSize_KellyBinding(t *testing.T) {
	cfg := domain.DefaultTradingConfig()
	cfg.Sizing.PerTradeCapPct = 0.10

	order, err := NewSizer().Size(score(78), snapshotWith(cfg, "0"), cfg)
	require.NoError(t, err)
	assert.True(t, order.AmountUSD.Equal(decimal.NewFromInt(6500)), "got %s", order.AmountUSD)
	assert.Equal(t, domain.ClampKelly, order.ClampedBy)
}

func TestSize_HeadroomClamp(t *testing.T) {
	cfg := domain.DefaultTradingConfig()

	order, err := NewSizer().Size(score(78), snapshotWith(cfg, "49800"), cfg)
	require.NoError(t, err)
	assert.True(t, order.AmountUSD.Equal(decimal.NewFromInt(200)))
	assert.Equal(t, domain.ClampHeadroom, order.ClampedBy)
}

func TestSize_Rejections(t *testing.T) {
	cfg := domain.DefaultTradingConfig()

	noEdge := cfg
	noEdge.Sizing.Bands = []domain.KellyBand{{MinScore: 0, WinProb: 0.3, Payoff: 1.0}}

	highFloor := cfg
	highFloor.Sizing.Bands = []domain.KellyBand{{MinScore: 80, WinProb: 0.6, Payoff: 2.0}}

	tests := []struct {
		name      string
		cfg       domain.TradingConfig
		committed string
		reason    string
	}{
		{"negative kelly", noEdge, "0", domain.ReasonNoEdge},
		{"score below every band", highFloor, "0", domain.ReasonNoEdge},
		{"cap exhausted", cfg, "50000", domain.ReasonNoHeadroom},
		{"over cap", cfg, "51000", domain.ReasonNoHeadroom},
		{"headroom under min order", cfg, "49990", domain.ReasonBelowMinOrder},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSizer().Size(score(78), snapshotWith(tt.cfg, tt.committed), tt.cfg)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrBudgetRejected))
			assert.Equal(t, tt.reason, domain.ReasonOf(err))
		})
	}
}

func TestSize_RoundsDownToCents(t *testing.T) {
	cfg := domain.DefaultTradingConfig()

	order, err := NewSizer().Size(score(78), snapshotWith(cfg, "49700.005"), cfg)
	require.NoError(t, err)
	assert.Equal(t, "299.99", order.AmountUSD.StringFixed(2))
}

func TestSize_HigherBandNeverSmaller(t *testing.T) {
	cfg := domain.DefaultTradingConfig()
	cfg.Sizing.PerTradeCapPct = 1
	cfg.Sizing.GlobalExposureCapPct = 1

	prev := decimal.Zero
	for _, v := range []float64{10, 65, 75, 85, 95} {
		order, err := NewSizer().Size(score(v), snapshotWith(cfg, "0"), cfg)
		require.NoError(t, err)
		assert.True(t, order.AmountUSD.GreaterThanOrEqual(prev), "score %v", v)
		prev = order.AmountUSD
	}
}

func TestSize_DoesNotTouchLedger(t *testing.T) {
	cfg := domain.DefaultTradingConfig()
	l := ledger.New(ledger.Options{Limits: ledger.LimitsFromConfig(cfg.Sizing)})

	_, err := NewSizer().Size(score(78), l.Snapshot(), cfg)
	require.NoError(t, err)
	assert.True(t, l.Snapshot().Committed.IsZero())
	assert.Equal(t, 0, l.Snapshot().OpenCount)
}
