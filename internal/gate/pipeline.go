package gate

import (
	"time"

	"graduation-engine/internal/domain"
)

// Check is the outcome of one gate before it is stamped with candidate and time.
type Check struct {
	Passed    bool
	Observed  float64
	Threshold float64
	Margin    float64 // signed; >= 0 on the passing side
	Reason    string
}

// Gate is a named, pure admission check over the feature snapshot.
type Gate struct {
	Name  string
	Check func(f domain.FeatureSnapshot, t domain.GateThresholds) Check
}

// Pipeline runs gates in a fixed order and stops at the first failure.
type Pipeline struct {
	gates []Gate
	now   func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithClock sets the clock used for EvaluatedAt.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		p.now = now
	}
}

// NewPipeline creates the standard admission pipeline.
func NewPipeline(opts ...Option) *Pipeline {
	p := &Pipeline{
		gates: DefaultGates(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Gates returns the gate names in evaluation order.
func (p *Pipeline) Gates() []string {
	names := make([]string, len(p.gates))
	for i, g := range p.gates {
		names[i] = g.Name
	}
	return names
}

// Evaluate runs the gates against the candidate snapshot.
// Results contain only the gates that ran; a failure ends the run.
func (p *Pipeline) Evaluate(c *domain.Candidate, cfg domain.TradingConfig) domain.GateOutcome {
	evaluatedAt := p.now().UnixMilli()
	results := make([]domain.GateResult, 0, len(p.gates))

	for _, g := range p.gates {
		chk := g.Check(c.Features, cfg.Gates)
		results = append(results, domain.GateResult{
			CandidateID: c.CandidateID,
			Gate:        g.Name,
			Passed:      chk.Passed,
			Margin:      chk.Margin,
			Observed:    chk.Observed,
			Threshold:   chk.Threshold,
			Reason:      chk.Reason,
			EvaluatedAt: evaluatedAt,
		})
		if !chk.Passed {
			return domain.GateOutcome{Passed: false, Results: results}
		}
	}

	return domain.GateOutcome{Passed: true, Results: results}
}
