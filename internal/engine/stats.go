package engine

import (
	"sync/atomic"

	"graduation-engine/internal/observability"
)

// Stats counts processed events by outcome.
type Stats struct {
	Received        int64 `json:"received"`
	Invalid         int64 `json:"invalid"`
	Duplicates      int64 `json:"duplicates"`
	GateRejected    int64 `json:"gate_rejected"`
	ScoreRejected   int64 `json:"score_rejected"`
	BudgetRejected  int64 `json:"budget_rejected"`
	ExecutionFailed int64 `json:"execution_failed"`
	Opened          int64 `json:"opened"`
}

type stats struct {
	received        atomic.Int64
	invalid         atomic.Int64
	duplicates      atomic.Int64
	gateRejected    atomic.Int64
	scoreRejected   atomic.Int64
	budgetRejected  atomic.Int64
	executionFailed atomic.Int64
	opened          atomic.Int64
}

// Stats returns the outcome counters since start.
func (e *Engine) Stats() Stats {
	s := &e.stats
	return Stats{
		Received:        s.received.Load(),
		Invalid:         s.invalid.Load(),
		Duplicates:      s.duplicates.Load(),
		GateRejected:    s.gateRejected.Load(),
		ScoreRejected:   s.scoreRejected.Load(),
		BudgetRejected:  s.budgetRejected.Load(),
		ExecutionFailed: s.executionFailed.Load(),
		Opened:          s.opened.Load(),
	}
}

func (e *Engine) finish(res *Result) *Result {
	s := &e.stats
	switch res.Outcome {
	case OutcomeInvalid:
		s.invalid.Add(1)
	case OutcomeDuplicate:
		s.duplicates.Add(1)
	case OutcomeGateRejected:
		s.gateRejected.Add(1)
	case OutcomeScoreRejected:
		s.scoreRejected.Add(1)
	case OutcomeBudgetRejected:
		s.budgetRejected.Add(1)
	case OutcomeExecutionFailed:
		s.executionFailed.Add(1)
	case OutcomeOpened:
		s.opened.Add(1)
	}
	observability.RecordCandidate(string(res.Outcome))
	return res
}
