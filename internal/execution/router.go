// Package execution routes entry and exit orders in PAPER or LIVE mode,
// at most once per (mint, candidate epoch).
package execution

import (
	"context"

	"github.com/shopspring/decimal"

	"graduation-engine/internal/domain"
)

// RouteStatus is the outcome reported by a router.
type RouteStatus string

const (
	RouteFilled  RouteStatus = "FILLED"
	RoutePartial RouteStatus = "PARTIAL"
)

// RouteRequest is one swap sent to a router.
// Buys are sized by AmountUSD, sells by TokenUnits.
type RouteRequest struct {
	ClientOrderID         string
	Mint                  string
	Side                  domain.Side
	Mode                  domain.Mode
	AmountUSD             decimal.Decimal
	TokenUnits            float64
	MaxSlippageBps        int
	PriorityFeePercentile int
	ReferencePrice        float64 // last price known to the caller, 0 if none
}

// RouteResult is a router's report of a swap.
type RouteResult struct {
	Status     RouteStatus
	Price      float64         // average fill price in USD
	TokenUnits float64         // tokens bought or sold
	AmountUSD  decimal.Decimal // USD spent or received
	FeeUSD     decimal.Decimal
	Signature  string
}

// Router executes swaps.
type Router interface {
	Route(ctx context.Context, req RouteRequest) (*RouteResult, error)
}
