// Package strategy evaluates per-position exit rules against observed prices.
package strategy

import "graduation-engine/internal/domain"

// State is what an exit rule sees on each price observation.
type State struct {
	EntryPrice float64
	PeakPrice  float64 // highest price seen since entry, including Price
	Price      float64
	OpenedAt   int64 // Unix timestamp in milliseconds
	Now        int64
}

// Rule is a single exit trigger.
type Rule interface {
	// Check returns the exit reason if the rule fires for s.
	Check(s State) (reason string, fired bool)

	// ID returns the rule identifier including parameters.
	ID() string
}

// Set is an ordered list of rules. The first rule that fires wins.
type Set []Rule

// Check evaluates the rules in order.
func (rs Set) Check(s State) (string, bool) {
	for _, r := range rs {
		if reason, ok := r.Check(s); ok {
			return reason, true
		}
	}
	return "", false
}

// Observe folds a new price into s, raising the peak when needed.
func Observe(s State, price float64, now int64) State {
	s.Price = price
	s.Now = now
	if price > s.PeakPrice {
		s.PeakPrice = price
	}
	return s
}

// StateFor builds the rule state of a position at its last observed price.
func StateFor(p *domain.Position, now int64) State {
	peak := p.PeakPrice
	if peak < p.EntryPrice {
		peak = p.EntryPrice
	}
	return State{
		EntryPrice: p.EntryPrice,
		PeakPrice:  peak,
		Price:      p.LastPrice,
		OpenedAt:   p.OpenedAt,
		Now:        now,
	}
}
