package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Mode selects how orders are filled.
type Mode string

const (
	ModePaper Mode = "PAPER" // simulated fills at the last observed price
	ModeLive  Mode = "LIVE"  // real swaps through the routing collaborator
)

// String returns the string representation.
func (m Mode) String() string {
	return string(m)
}

// IsValid checks if the mode is known.
func (m Mode) IsValid() bool {
	return m == ModePaper || m == ModeLive
}

// ParseMode parses a mode name.
func ParseMode(s string) (Mode, error) {
	m := Mode(s)
	if !m.IsValid() {
		return "", fmt.Errorf("unknown mode %q", s)
	}
	return m, nil
}

// PositionStatus is the lifecycle state of a position.
type PositionStatus string

const (
	PositionOpen    PositionStatus = "OPEN"
	PositionClosing PositionStatus = "CLOSING"
	PositionClosed  PositionStatus = "CLOSED"
)

// Exit reason codes
const (
	ExitReasonStopLoss     = "STOP_LOSS"
	ExitReasonTakeProfit   = "TAKE_PROFIT"
	ExitReasonTrailingStop = "TRAILING_STOP"
	ExitReasonMaxHold      = "MAX_HOLD"
	ExitReasonManual       = "MANUAL"
)

// Position is a live or settled holding of one token.
// Owned by the position engine; other components only see copies.
type Position struct {
	PositionID  string
	CandidateID string
	Mint        string
	Epoch       int
	Mode        Mode
	Status      PositionStatus

	// Entry
	EntryPrice    float64         // fill price in USD
	EntryCostUSD  decimal.Decimal // USD spent including fees
	TokenUnits    float64         // tokens held
	ReservedUSD   decimal.Decimal // exposure reserved in the ledger
	ReservationID string
	OpenedAt      int64     // Unix timestamp in milliseconds
	Rules         ExitRules // snapshotted at open

	// Tracking
	PeakPrice    float64
	LastPrice    float64
	ExitAttempts int

	// Exit
	ExitReason      string
	ExitPrice       float64
	ExitProceedsUSD decimal.Decimal
	RealizedPnL     decimal.Decimal
	ClosedAt        int64 // 0 while not closed
}

// IsActive reports whether the position still holds tokens.
func (p *Position) IsActive() bool {
	return p.Status == PositionOpen || p.Status == PositionClosing
}

// HoldDurationMs returns how long the position was held at now (ms).
func (p *Position) HoldDurationMs(now int64) int64 {
	end := now
	if p.ClosedAt > 0 {
		end = p.ClosedAt
	}
	return end - p.OpenedAt
}
