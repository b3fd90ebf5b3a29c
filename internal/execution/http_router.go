package execution

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"graduation-engine/internal/solana"
)

// SubmitSwapMethod is the routing collaborator's JSON-RPC method.
const SubmitSwapMethod = "submitSwap"

type swapParams struct {
	ClientOrderID         string  `json:"clientOrderId"`
	Mint                  string  `json:"mint"`
	Side                  string  `json:"side"`
	AmountUSD             string  `json:"amountUsd,omitempty"`
	TokenUnits            float64 `json:"tokenUnits,omitempty"`
	MaxSlippageBps        int     `json:"maxSlippageBps"`
	PriorityFeePercentile int     `json:"priorityFeePercentile,omitempty"`
}

type swapResult struct {
	Status     string          `json:"status"`
	Price      float64         `json:"price"`
	TokenUnits float64         `json:"tokenUnits"`
	AmountUSD  decimal.Decimal `json:"amountUsd"`
	FeeUSD     decimal.Decimal `json:"feeUsd"`
	Signature  string          `json:"signature"`
}

// HTTPRouter submits LIVE swaps to the routing collaborator over JSON-RPC.
// The caller must not retry on its own: a resent swap may fill twice.
type HTTPRouter struct {
	rpc solana.Caller
}

// NewHTTPRouter creates a LIVE router. Build rpc with solana.WithMaxRetries(0).
func NewHTTPRouter(rpc solana.Caller) *HTTPRouter {
	return &HTTPRouter{rpc: rpc}
}

// Route submits the swap and waits for the collaborator's report.
func (r *HTTPRouter) Route(ctx context.Context, req RouteRequest) (*RouteResult, error) {
	params := swapParams{
		ClientOrderID:         req.ClientOrderID,
		Mint:                  req.Mint,
		Side:                  string(req.Side),
		TokenUnits:            req.TokenUnits,
		MaxSlippageBps:        req.MaxSlippageBps,
		PriorityFeePercentile: req.PriorityFeePercentile,
	}
	if req.AmountUSD.IsPositive() {
		params.AmountUSD = req.AmountUSD.StringFixed(2)
	}

	var res swapResult
	if err := r.rpc.Call(ctx, SubmitSwapMethod, []interface{}{params}, &res); err != nil {
		return nil, fmt.Errorf("submit swap %s: %w", req.ClientOrderID, err)
	}

	status := RouteStatus(res.Status)
	if status != RouteFilled && status != RoutePartial {
		return nil, fmt.Errorf("submit swap %s: unexpected status %q", req.ClientOrderID, res.Status)
	}
	return &RouteResult{
		Status:     status,
		Price:      res.Price,
		TokenUnits: res.TokenUnits,
		AmountUSD:  res.AmountUSD,
		FeeUSD:     res.FeeUSD,
		Signature:  res.Signature,
	}, nil
}

var _ Router = (*HTTPRouter)(nil)
