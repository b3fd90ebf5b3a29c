// Package alert delivers structured trading events to notification sinks.
package alert

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"graduation-engine/internal/domain"
)

// Kind identifies an event type.
type Kind string

const (
	KindGateRejected    Kind = "GateRejected"
	KindScoreComputed   Kind = "ScoreComputed"
	KindSizeRejected    Kind = "SizeRejected"
	KindPositionOpened  Kind = "PositionOpened"
	KindPositionClosed  Kind = "PositionClosed"
	KindExecutionFailed Kind = "ExecutionFailed"
)

// Event is one notification. Only the fields relevant to Kind are set.
type Event struct {
	Kind        Kind
	At          int64 // Unix timestamp in milliseconds
	Mint        string
	CandidateID string
	Epoch       int
	Mode        domain.Mode

	Gate      string
	Reason    string
	Score     float64
	AmountUSD decimal.Decimal
	Price     float64
	PnLUSD    decimal.Decimal
	Detail    string
}

// Text renders the event as a short human-readable message.
func (e Event) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.Kind, e.Mint)
	if e.Epoch > 0 {
		fmt.Fprintf(&b, " #%d", e.Epoch)
	}
	if e.Mode != "" {
		fmt.Fprintf(&b, " %s", e.Mode)
	}

	switch e.Kind {
	case KindGateRejected:
		fmt.Fprintf(&b, "\ngate %s: %s", e.Gate, e.Reason)
	case KindScoreComputed:
		fmt.Fprintf(&b, "\nscore %.1f", e.Score)
	case KindSizeRejected:
		fmt.Fprintf(&b, "\nscore %.1f rejected: %s", e.Score, e.Reason)
	case KindPositionOpened:
		fmt.Fprintf(&b, "\nentry $%s @ %.8g (score %.1f)", e.AmountUSD.StringFixed(2), e.Price, e.Score)
	case KindPositionClosed:
		fmt.Fprintf(&b, "\n%s @ %.8g pnl $%s", e.Reason, e.Price, e.PnLUSD.StringFixed(2))
	case KindExecutionFailed:
		fmt.Fprintf(&b, "\n%s needs review", e.Reason)
	}
	if e.Detail != "" {
		fmt.Fprintf(&b, "\n%s", e.Detail)
	}
	return b.String()
}
