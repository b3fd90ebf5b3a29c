package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graduation-engine/internal/ledger"
)

func TestRolloverJob_AdvancesEpoch(t *testing.T) {
	l := ledger.New(ledger.Options{Limits: ledger.Limits{
		GlobalCapUSD:    decimal.NewFromInt(50000),
		MaxConcurrent:   5,
		DailyLossCapUSD: decimal.NewFromInt(2000),
	}})
	h, err := l.TryReserve(decimal.NewFromInt(500))
	require.NoError(t, err)
	l.Release(h, decimal.NewFromInt(-2500))
	require.True(t, l.Snapshot().Breaker)

	RolloverJob(l, nil)(context.Background())

	snap := l.Snapshot()
	assert.Equal(t, int64(2), snap.Epoch)
	assert.False(t, snap.Breaker)
	assert.True(t, snap.RealizedPnL.IsZero())
}

func TestRolloverJob_SkipsCancelledContext(t *testing.T) {
	l := ledger.New(ledger.Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	RolloverJob(l, nil)(ctx)
	assert.Equal(t, int64(1), l.Snapshot().Epoch)
}

func TestRunner_RunsJobs(t *testing.T) {
	r := New(context.Background(), nil)
	var calls atomic.Int32
	_, err := r.Add("* * * * * *", func(context.Context) { calls.Add(1) })
	require.NoError(t, err)

	r.Start()
	assert.Eventually(t, func() bool { return calls.Load() > 0 }, 3*time.Second, 50*time.Millisecond)
	r.Stop()
}

func TestScheduleRollover_InvalidSpec(t *testing.T) {
	r := New(context.Background(), nil)
	assert.Error(t, ScheduleRollover(r, "not a spec", ledger.New(ledger.Options{})))
}

func TestRunner_SchedulesInUTC(t *testing.T) {
	r := New(context.Background(), nil)
	assert.Equal(t, time.UTC, r.cron.Location())

	_, err := r.Add("0 0 0 * * *", func(context.Context) {})
	require.NoError(t, err)
	next := r.cron.Entries()[0].Schedule.Next(time.Date(2026, 10, 16, 22, 30, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC), next)
}
