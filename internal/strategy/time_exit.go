package strategy

import (
	"fmt"

	"graduation-engine/internal/domain"
)

// MaxHold exits once a position has been held for the configured duration.
type MaxHold struct {
	DurationMs int64
}

// Check fires when Now - OpenedAt >= DurationMs.
func (r MaxHold) Check(s State) (string, bool) {
	return domain.ExitReasonMaxHold, s.Now-s.OpenedAt >= r.DurationMs
}

// ID returns the rule identifier.
func (r MaxHold) ID() string {
	return fmt.Sprintf("MAX_HOLD_%dms", r.DurationMs)
}

var _ Rule = MaxHold{}
