// Package sizing turns a Graduation Score and a ledger snapshot into a
// fractional-Kelly order size bounded by the per-trade and global caps.
package sizing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"graduation-engine/internal/domain"
	"graduation-engine/internal/ledger"
)

// Sizer computes order sizes. It is advisory and never mutates the ledger.
type Sizer struct{}

// NewSizer creates a sizer.
func NewSizer() *Sizer {
	return &Sizer{}
}

// Size returns the order for a score, or a budget rejection.
//
//	kelly = p - (1-p)/b            (from the score's band)
//	stake = kelly * fraction * capital
//	size  = min(stake, perTradeCap*capital, globalCap - committed)
//
// Sizes are rounded down to cents.
func (s *Sizer) Size(score *domain.Score, snap ledger.Snapshot, cfg domain.TradingConfig) (*domain.SizedOrder, error) {
	if score == nil {
		return nil, fmt.Errorf("size: nil score")
	}
	sz := cfg.Sizing

	band, ok := sz.BandFor(score.Value)
	if !ok {
		return nil, domain.Reject(domain.ErrBudgetRejected, domain.ReasonNoEdge,
			fmt.Sprintf("no band for score %.2f", score.Value))
	}
	kelly := band.FullKelly()
	if kelly <= 0 {
		return nil, domain.Reject(domain.ErrBudgetRejected, domain.ReasonNoEdge,
			fmt.Sprintf("kelly %.4f at score %.2f", kelly, score.Value))
	}

	capital := decimal.NewFromFloat(sz.TotalCapitalUSD)
	stake := capital.Mul(decimal.NewFromFloat(kelly)).Mul(decimal.NewFromFloat(sz.KellyFraction))
	perTradeCap := capital.Mul(decimal.NewFromFloat(sz.PerTradeCapPct))
	headroom := snap.Headroom()

	size, clampedBy := stake, domain.ClampKelly
	if perTradeCap.LessThan(size) {
		size, clampedBy = perTradeCap, domain.ClampPerTrade
	}
	if headroom.LessThan(size) {
		size, clampedBy = headroom, domain.ClampHeadroom
	}
	size = size.RoundDown(2)

	if !size.IsPositive() {
		return nil, domain.Reject(domain.ErrBudgetRejected, domain.ReasonNoHeadroom,
			fmt.Sprintf("committed %s of %s", snap.Committed.StringFixed(2), snap.Limits.GlobalCapUSD.StringFixed(2)))
	}
	minOrder := decimal.NewFromFloat(sz.MinOrderUSD)
	if size.LessThan(minOrder) {
		return nil, domain.Reject(domain.ErrBudgetRejected, domain.ReasonBelowMinOrder,
			fmt.Sprintf("size %s < min %s", size.StringFixed(2), minOrder.StringFixed(2)))
	}

	return &domain.SizedOrder{
		CandidateID:   score.CandidateID,
		Mint:          score.Mint,
		AmountUSD:     size,
		Score:         score.Value,
		WinProb:       band.WinProb,
		Payoff:        band.Payoff,
		FullKelly:     kelly,
		KellyFraction: sz.KellyFraction,
		ClampedBy:     clampedBy,
	}, nil
}
