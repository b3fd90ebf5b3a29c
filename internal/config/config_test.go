package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graduation-engine/internal/domain"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, domain.ModePaper, cfg.Mode())
	assert.Equal(t, ":8080", cfg.Server.HTTPAddr)
	assert.Equal(t, 4, cfg.Engine.Workers)

	def := domain.DefaultTradingConfig()
	assert.Equal(t, def.Gates, cfg.Trading.Gates)
	assert.Equal(t, def.Scoring, cfg.Trading.Scoring)
	assert.Equal(t, def.Sizing.Bands, cfg.Trading.Sizing.Bands)
	assert.Equal(t, def.Execution, cfg.Trading.Execution)
	assert.Equal(t, def.Exit, cfg.Trading.Exit)
	assert.Equal(t, 30*time.Minute, cfg.Trading.CandidateCooldown)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := writeConfig(t, `
app:
  mode: LIVE
trading:
  name: aggressive
  version: 3
  gates:
    max_top10_pct: 55
  sizing:
    bands:
      - {min_score: 0, win_prob: 0.5, payoff: 2}
      - {min_score: 75, win_prob: 0.6, payoff: 2}
  exit:
    max_hold: 90m
`)
	t.Setenv("GE_TRADING_GATES_MIN_LIQUIDITY_USD", "35000")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, domain.ModeLive, cfg.Mode())
	assert.Equal(t, "aggressive", cfg.Trading.Name)
	assert.Equal(t, 3, cfg.Trading.Version)
	assert.Equal(t, 55.0, cfg.Trading.Gates.MaxTop10Pct)
	assert.Equal(t, 35000.0, cfg.Trading.Gates.MinLiquidityUSD)
	assert.Len(t, cfg.Trading.Sizing.Bands, 2)
	assert.Equal(t, 90*time.Minute, cfg.Trading.Exit.MaxHold)
}

func TestLoad_InvalidWeights(t *testing.T) {
	path := writeConfig(t, `
trading:
  scoring:
    weights:
      liquidity_depth: 0.5
      distribution_health: 0.5
      lock_durability: 0.5
      momentum: 0.5
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConfiguration))
}

func TestLoad_InvalidMode(t *testing.T) {
	t.Setenv("GE_APP_MODE", "YOLO")
	_, err := Load("")
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestStore_Swap(t *testing.T) {
	s := NewStore(domain.DefaultTradingConfig())
	before := s.Load()

	next := domain.DefaultTradingConfig()
	next.Version = 2
	next.Gates.MaxTop10Pct = 50
	require.NoError(t, s.Swap(next))

	assert.Equal(t, 60.0, before.Gates.MaxTop10Pct, "earlier snapshot unchanged")
	assert.Equal(t, 50.0, s.Load().Gates.MaxTop10Pct)

	stale := next
	stale.Version = 2
	assert.ErrorIs(t, s.Swap(stale), domain.ErrConfiguration)

	bad := next
	bad.Version = 3
	bad.Scoring.Weights.Momentum = 0.9
	assert.ErrorIs(t, s.Swap(bad), domain.ErrConfiguration)
	assert.Equal(t, 2, s.Load().Version)
}
