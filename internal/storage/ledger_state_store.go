package storage

import (
	"context"

	"github.com/shopspring/decimal"
)

// LedgerState is the persisted day-level state of the exposure ledger.
// Committed exposure is not stored: it is rebuilt from active positions.
type LedgerState struct {
	Epoch       int64
	RealizedPnL decimal.Decimal
	Breaker     bool
	UpdatedAt   int64 // Unix timestamp in milliseconds
}

// LedgerStateStore persists the ledger day state so a restart keeps the
// realized loss and circuit breaker of the current day.
type LedgerStateStore interface {
	// Load returns the saved state. Returns ErrNotFound if nothing has been saved yet.
	Load(ctx context.Context) (*LedgerState, error)

	// Save replaces the saved state.
	Save(ctx context.Context, state *LedgerState) error
}
