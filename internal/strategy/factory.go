package strategy

import (
	"errors"

	"graduation-engine/internal/domain"
)

// Factory errors
var (
	ErrInvalidStopLoss     = errors.New("stop loss must be within (0,1)")
	ErrInvalidTakeProfit   = errors.New("take profit must be positive")
	ErrInvalidTrailingStop = errors.New("trailing stop must be within [0,1)")
	ErrInvalidMaxHold      = errors.New("max hold must be positive")
)

// FromRules builds the exit rule set for a position.
// Evaluation order: stop loss, trailing stop, take profit, max hold.
// A zero trailing stop disables it.
func FromRules(r domain.ExitRules) (Set, error) {
	if r.StopLossPct <= 0 || r.StopLossPct >= 1 {
		return nil, ErrInvalidStopLoss
	}
	if r.TakeProfitPct <= 0 {
		return nil, ErrInvalidTakeProfit
	}
	if r.TrailingStopPct < 0 || r.TrailingStopPct >= 1 {
		return nil, ErrInvalidTrailingStop
	}
	if r.MaxHold <= 0 {
		return nil, ErrInvalidMaxHold
	}

	set := Set{StopLoss{Pct: r.StopLossPct}}
	if r.TrailingStopPct > 0 {
		set = append(set, TrailingStop{TrailPct: r.TrailingStopPct})
	}
	set = append(set,
		TakeProfit{Pct: r.TakeProfitPct},
		MaxHold{DurationMs: r.MaxHold.Milliseconds()},
	)
	return set, nil
}

// DefaultSet is the rule set of the default configuration.
func DefaultSet() Set {
	set, _ := FromRules(domain.DefaultTradingConfig().Exit)
	return set
}
