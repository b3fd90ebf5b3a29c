package main

import (
	"bytes"
	"context"
	"crypto/sha256"
	"testing"
	"time"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graduation-engine/internal/alert"
	"graduation-engine/internal/domain"
	"graduation-engine/internal/ingestion"
)

const t0 = int64(1_700_000_000_000)

func testAddr(seed string) string {
	h := sha256.Sum256([]byte(seed))
	return base58.Encode(h[:])
}

func f64(v float64) *float64 { return &v }
func intp(v int) *int { return &v }

func event(mint string, at int64, top10 float64) *ingestion.RawEvent {
	return &ingestion.RawEvent{
		Mint:              mint,
		ObservedAt:        at,
		LiquidityUSD:      f64(50000),
		PriceUSD:          f64(0.001),
		HolderCount:       intp(800),
		Top10Pct:          f64(top10),
		SniperPct:         f64(10),
		LPLock:            &ingestion.RawLPLock{Burned: true},
		CreatorReputation: f64(50),
		Momentum: &ingestion.RawMomentum{
			Buys5m:      60,
			Sells5m:     40,
			VolumeUSD5m: 12500,
		},
		Source: string(domain.SourceReplay),
	}
}

func TestReplay_Summary(t *testing.T) {
	loser, winner, held, rejected := testAddr("loser"), testAddr("winner"), testAddr("held"), testAddr("rejected")

	events := []*ingestion.RawEvent{
		event(winner, t0+1000, 40),
		event(loser, t0, 40),
		event(rejected, t0+2000, 75),
		event(held, t0+3000, 40),
	}
	ticks := []ingestion.PriceTick{
		{Mint: loser, PriceUSD: 0.001, ObservedAt: t0},
		{Mint: winner, PriceUSD: 0.001, ObservedAt: t0 + 1000},
		{Mint: loser, PriceUSD: 0.0007, ObservedAt: t0 + 60_000},
		{Mint: winner, PriceUSD: 0.0025, ObservedAt: t0 + 120_000},
	}

	r, err := newReplayer(domain.DefaultTradingConfig(), nil)
	require.NoError(t, err)
	sum, err := r.run(context.Background(), events, ticks)
	require.NoError(t, err)

	assert.Equal(t, 4, sum.Events)
	assert.Equal(t, 4, sum.Ticks)
	assert.Equal(t, 1, sum.Days)
	assert.Equal(t, int64(4), sum.Stats.Received)
	assert.Equal(t, int64(3), sum.Stats.Opened)
	assert.Equal(t, int64(1), sum.Stats.GateRejected)

	assert.Equal(t, 2, sum.Closed)
	assert.Equal(t, 1, sum.Wins)
	assert.Equal(t, 1, sum.Losses)
	assert.Equal(t, map[string]int{
		domain.ExitReasonStopLoss:   1,
		domain.ExitReasonTakeProfit: 1,
	}, sum.ExitReasons)

	require.Len(t, sum.Open, 1)
	assert.Equal(t, held, sum.Open[0].Mint)
	assert.Equal(t, "500.00", sum.Open[0].EntryCostUSD)

	assert.Equal(t, 3, sum.Alerts[alert.KindPositionOpened])
	assert.Equal(t, 2, sum.Alerts[alert.KindPositionClosed])
	assert.Equal(t, 1, sum.Alerts[alert.KindGateRejected])
}

func TestReplay_Deterministic(t *testing.T) {
	mint := testAddr("det")
	build := func() ([]*ingestion.RawEvent, []ingestion.PriceTick) {
		return []*ingestion.RawEvent{event(mint, t0, 40)},
			[]ingestion.PriceTick{
				{Mint: mint, PriceUSD: 0.001, ObservedAt: t0},
				{Mint: mint, PriceUSD: 0.0016, ObservedAt: t0 + 10_000},
				{Mint: mint, PriceUSD: 0.0012, ObservedAt: t0 + 20_000},
			}
	}

	var pnl []string
	for i := 0; i < 2; i++ {
		r, err := newReplayer(domain.DefaultTradingConfig(), nil)
		require.NoError(t, err)
		events, ticks := build()
		sum, err := r.run(context.Background(), events, ticks)
		require.NoError(t, err)
		require.Equal(t, 1, sum.Closed)
		assert.Equal(t, map[string]int{domain.ExitReasonTrailingStop: 1}, sum.ExitReasons)
		pnl = append(pnl, sum.RealizedPnLUSD)
	}
	assert.Equal(t, pnl[0], pnl[1])
}

func TestReplay_DayRolloverAndMaxHold(t *testing.T) {
	mint := testAddr("hold")
	dayMsTest := int64(24 * time.Hour / time.Millisecond)
	events := []*ingestion.RawEvent{event(mint, t0, 40)}
	ticks := []ingestion.PriceTick{
		{Mint: mint, PriceUSD: 0.001, ObservedAt: t0},
		{Mint: mint, PriceUSD: 0.00105, ObservedAt: t0 + dayMsTest},
	}

	r, err := newReplayer(domain.DefaultTradingConfig(), nil)
	require.NoError(t, err)
	sum, err := r.run(context.Background(), events, ticks)
	require.NoError(t, err)

	assert.Equal(t, 2, sum.Days)
	assert.Equal(t, map[string]int{domain.ExitReasonMaxHold: 1}, sum.ExitReasons)
	assert.Equal(t, int64(2), r.ledger.Snapshot().Epoch)
}

func TestReplay_InvalidConfig(t *testing.T) {
	cfg := domain.DefaultTradingConfig()
	cfg.Scoring.Weights.Momentum = 0.5
	_, err := newReplayer(cfg, nil)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	printSummary(&buf, "default", 3, &Summary{
		Events:         2,
		RealizedPnLUSD: "-12.50",
		ExitReasons:    map[string]int{domain.ExitReasonStopLoss: 1},
		Open:           []OpenPosition{{Mint: "MintA", EntryCostUSD: "500.00", UnrealizedUSD: "25.00"}},
	})
	out := buf.String()
	assert.Contains(t, out, "Replay (default v3)")
	assert.Contains(t, out, "Realized P&L: $-12.50")
	assert.Contains(t, out, "STOP_LOSS")
	assert.Contains(t, out, "MintA")
}

func TestClock_Monotonic(t *testing.T) {
	var c clock
	c.set(2000)
	c.set(1000)
	assert.Equal(t, int64(2000), c.Now().UnixMilli())
}
