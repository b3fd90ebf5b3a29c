package position

import (
	"sync"

	"graduation-engine/internal/domain"
	"graduation-engine/internal/ledger"
	"graduation-engine/internal/strategy"
)

// tracked is one live position and its exit machinery.
type tracked struct {
	mu     sync.Mutex
	pos    domain.Position
	handle *ledger.Handle
	rules  strategy.Set
	wakeCh chan struct{}
}

func newTracked(p domain.Position, h *ledger.Handle, rules strategy.Set) *tracked {
	if p.PeakPrice < p.EntryPrice {
		p.PeakPrice = p.EntryPrice
	}
	return &tracked{
		pos:    p,
		handle: h,
		rules:  rules,
		wakeCh: make(chan struct{}, 1),
	}
}

func (t *tracked) snapshot() domain.Position {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pos
}

// beginClose is the OPEN -> CLOSING compare-and-set. Only the first caller wins.
func (t *tracked) beginClose(reason string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pos.Status != domain.PositionOpen {
		return false
	}
	t.pos.Status = domain.PositionClosing
	t.pos.ExitReason = reason
	return true
}

func (t *tracked) closing() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pos.Status == domain.PositionClosing
}

// observe folds a price into the position and evaluates the exit rules.
// It returns true when this observation moved the position to CLOSING.
func (t *tracked) observe(price float64, now int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := strategy.StateFor(&t.pos, now)
	if price > 0 {
		s = strategy.Observe(s, price, now)
		t.pos.LastPrice = s.Price
		t.pos.PeakPrice = s.PeakPrice
	}
	if t.pos.Status != domain.PositionOpen {
		return false
	}

	reason, fired := t.rules.Check(s)
	if !fired {
		return false
	}
	t.pos.Status = domain.PositionClosing
	t.pos.ExitReason = reason
	return true
}

// wake nudges the monitor without blocking.
func (t *tracked) wake() {
	select {
	case t.wakeCh <- struct{}{}:
	default:
	}
}
