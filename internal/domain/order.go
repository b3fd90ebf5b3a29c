package domain

import "github.com/shopspring/decimal"

// Side is the order direction.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// What bounded a sized order.
const (
	ClampKelly    = "KELLY"
	ClampPerTrade = "PER_TRADE_CAP"
	ClampHeadroom = "HEADROOM"
)

// SizedOrder is the sizing decision for an admitted candidate.
// Advisory until the ledger reservation succeeds.
type SizedOrder struct {
	CandidateID string
	Mint        string
	Epoch       int
	AmountUSD   decimal.Decimal // rounded down to cents
	Score       float64

	WinProb       float64
	Payoff        float64
	FullKelly     float64
	KellyFraction float64
	ClampedBy     string
}

// Fill is a completed order.
type Fill struct {
	ClientOrderID string
	Mint          string
	Side          Side
	Mode          Mode
	Price         float64         // average fill price in USD
	TokenUnits    float64         // tokens bought or sold
	AmountUSD     decimal.Decimal // USD spent (buy) or received (sell), net of fees
	FeeUSD        decimal.Decimal
	Signature     string // on-chain signature, empty in PAPER mode
	FilledAt      int64  // Unix timestamp in milliseconds
}
