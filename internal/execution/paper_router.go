package execution

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"graduation-engine/internal/domain"
	"graduation-engine/internal/ingestion"
)

// ErrNoPrice is returned when a paper fill has no price to fill at.
var ErrNoPrice = errors.New("no observed price")

const bpsDenominator = 10000.0

// PriceLookup returns the last observed price for a mint.
type PriceLookup interface {
	Last(mint string) (ingestion.PriceTick, bool)
}

// PaperRouter simulates fills at the last observed price moved against
// the order by a fixed slippage.
type PaperRouter struct {
	prices      PriceLookup
	slippageBps func() int
	feeUSD      decimal.Decimal
}

// PaperRouterOptions configures a PaperRouter.
type PaperRouterOptions struct {
	Prices      PriceLookup // optional; falls back to RouteRequest.ReferencePrice
	SlippageBps func() int  // read per order so config swaps apply
	FeeUSD      decimal.Decimal
}

// NewPaperRouter creates a paper router.
func NewPaperRouter(opts PaperRouterOptions) *PaperRouter {
	slippage := opts.SlippageBps
	if slippage == nil {
		slippage = func() int { return 0 }
	}
	return &PaperRouter{
		prices:      opts.Prices,
		slippageBps: slippage,
		feeUSD:      opts.FeeUSD,
	}
}

// Route fills the order in full at the slipped price.
func (r *PaperRouter) Route(ctx context.Context, req RouteRequest) (*RouteResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	price := req.ReferencePrice
	if r.prices != nil {
		if tick, ok := r.prices.Last(req.Mint); ok {
			price = tick.PriceUSD
		}
	}
	if price <= 0 {
		return nil, fmt.Errorf("paper fill %s: %w", req.Mint, ErrNoPrice)
	}

	slip := float64(r.slippageBps()) / bpsDenominator
	res := &RouteResult{Status: RouteFilled, FeeUSD: r.feeUSD}

	switch req.Side {
	case domain.SideBuy:
		if !req.AmountUSD.IsPositive() {
			return nil, fmt.Errorf("paper buy: non-positive amount %s", req.AmountUSD)
		}
		res.Price = price * (1 + slip)
		spend := req.AmountUSD.Sub(r.feeUSD)
		if !spend.IsPositive() {
			return nil, fmt.Errorf("paper buy: fee %s exceeds amount %s", r.feeUSD, req.AmountUSD)
		}
		res.AmountUSD = req.AmountUSD
		res.TokenUnits = spend.InexactFloat64() / res.Price
	case domain.SideSell:
		if req.TokenUnits <= 0 {
			return nil, fmt.Errorf("paper sell: non-positive units %v", req.TokenUnits)
		}
		res.Price = price * (1 - slip)
		res.TokenUnits = req.TokenUnits
		proceeds := decimal.NewFromFloat(req.TokenUnits * res.Price).Sub(r.feeUSD)
		if proceeds.IsNegative() {
			proceeds = decimal.Zero
		}
		res.AmountUSD = proceeds.RoundDown(2)
	default:
		return nil, fmt.Errorf("paper route: unknown side %q", req.Side)
	}
	return res, nil
}

var _ Router = (*PaperRouter)(nil)
