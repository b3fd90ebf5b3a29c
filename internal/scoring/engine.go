// Package scoring computes the Graduation Score for candidates that passed admission.
package scoring

import (
	"errors"
	"math"

	"graduation-engine/internal/domain"
)

// ErrNilCandidate is returned when Score is called without a candidate.
var ErrNilCandidate = errors.New("scoring: nil candidate")

// Engine computes scores. It holds no state; the zero value is ready to use.
type Engine struct{}

// NewEngine creates a scoring engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Score computes the weighted composite for a candidate under cfg.
// Components are clipped to [0, 100] before weighting. ComputedAt is left
// for the caller to stamp so the result depends only on its inputs.
func (e *Engine) Score(c *domain.Candidate, cfg domain.TradingConfig) (*domain.Score, error) {
	if c == nil {
		return nil, ErrNilCandidate
	}

	sc := cfg.Scoring
	f := c.Features

	comp := domain.ScoreComponents{
		LiquidityDepth:     clip(LiquidityDepth(f.LiquidityUSD, sc.LiquidityFloorUSD, sc.LiquidityTargetUSD)),
		DistributionHealth: clip(DistributionHealth(f.Top10Pct, f.SniperPct, sc.Top10Penalty, sc.SniperPenalty)),
		LockDurability:     clip(LockDurability(f.LPLock, sc.TargetLockDays)),
		Momentum:           clip(MomentumScore(f.Momentum, sc.MomentumVolumeTargetUSD)),
	}

	w := sc.Weights
	value := w.LiquidityDepth*comp.LiquidityDepth +
		w.DistributionHealth*comp.DistributionHealth +
		w.LockDurability*comp.LockDurability +
		w.Momentum*comp.Momentum

	return &domain.Score{
		CandidateID:   c.CandidateID,
		Mint:          c.Mint,
		Value:         clip(value),
		Components:    comp,
		ConfigName:    cfg.Name,
		ConfigVersion: cfg.Version,
	}, nil
}

// LiquidityDepth maps liquidity onto a log scale: 0 at or below floor, 100 at or above target.
func LiquidityDepth(liquidityUSD, floorUSD, targetUSD float64) float64 {
	if liquidityUSD <= floorUSD || floorUSD <= 0 || targetUSD <= floorUSD {
		return 0
	}
	if liquidityUSD >= targetUSD {
		return 100
	}
	return 100 * math.Log10(liquidityUSD/floorUSD) / math.Log10(targetUSD/floorUSD)
}

// DistributionHealth penalizes holder and sniper concentration.
func DistributionHealth(top10Pct, sniperPct, top10Penalty, sniperPenalty float64) float64 {
	return 100 - top10Pct*top10Penalty - sniperPct*sniperPenalty
}

// LockDurability scores the LP lock. Burned LP scores 100, an unverified lock 0.
func LockDurability(lock domain.LPLock, targetDays float64) float64 {
	if lock.Burned {
		return 100
	}
	if !lock.Verified || targetDays <= 0 {
		return 0
	}
	return 100 * lock.DurationDays / targetDays
}

// MomentumScore blends the 5-minute buy ratio with volume against a target.
// A candidate with no trades scores 0.
func MomentumScore(m domain.Momentum, volumeTargetUSD float64) float64 {
	trades := m.Buys5m + m.Sells5m
	if trades <= 0 {
		return 0
	}
	buyRatio := float64(m.Buys5m) / float64(trades)

	volume := 0.0
	if volumeTargetUSD > 0 && m.VolumeUSD5m > 0 {
		volume = math.Min(1, m.VolumeUSD5m/volumeTargetUSD)
	}
	return 50*buyRatio + 50*volume
}

// PassesCutoff reports whether a score clears the configured cutoff.
func PassesCutoff(s *domain.Score, cfg domain.TradingConfig) bool {
	return s != nil && s.Value >= cfg.Scoring.Cutoff
}

func clip(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(100, v))
}
