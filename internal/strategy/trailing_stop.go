package strategy

import (
	"fmt"

	"graduation-engine/internal/domain"
)

// StopLoss exits when price falls a fixed fraction below entry.
type StopLoss struct {
	Pct float64 // e.g. 0.25 = 25% below entry
}

// Check fires at or below entry * (1 - Pct).
func (r StopLoss) Check(s State) (string, bool) {
	return domain.ExitReasonStopLoss, s.Price <= s.EntryPrice*(1-r.Pct)
}

// ID returns the rule identifier.
func (r StopLoss) ID() string {
	return fmt.Sprintf("STOP_LOSS_%.0f", r.Pct*100)
}

// TrailingStop exits when price drops a fraction from its peak.
// It only arms once the peak is above entry; below that the stop loss governs.
type TrailingStop struct {
	TrailPct float64 // e.g. 0.20 = 20% below peak
}

// Check fires at or below peak * (1 - TrailPct).
func (r TrailingStop) Check(s State) (string, bool) {
	if s.PeakPrice <= s.EntryPrice {
		return domain.ExitReasonTrailingStop, false
	}
	return domain.ExitReasonTrailingStop, s.Price <= s.PeakPrice*(1-r.TrailPct)
}

// ID returns the rule identifier.
func (r TrailingStop) ID() string {
	return fmt.Sprintf("TRAILING_STOP_%.0f", r.TrailPct*100)
}

// TakeProfit exits when price rises a fraction above entry.
type TakeProfit struct {
	Pct float64 // e.g. 1.00 = entry doubled
}

// Check fires at or above entry * (1 + Pct).
func (r TakeProfit) Check(s State) (string, bool) {
	return domain.ExitReasonTakeProfit, s.Price >= s.EntryPrice*(1+r.Pct)
}

// ID returns the rule identifier.
func (r TakeProfit) ID() string {
	return fmt.Sprintf("TAKE_PROFIT_%.0f", r.Pct*100)
}

var (
	_ Rule = StopLoss{}
	_ Rule = TrailingStop{}
	_ Rule = TakeProfit{}
)
