package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"graduation-engine/internal/domain"
	"graduation-engine/internal/idhash"
	"graduation-engine/internal/observability"
)

// fillTolerance is how far a reported buy may fall short of the requested
// USD amount (rounding) before it counts as partial.
var fillTolerance = decimal.NewFromFloat(0.01)

// Options configures a Manager.
type Options struct {
	Paper    Router
	Live     Router
	Store    IdempotencyStore
	Settings func() domain.ExecutionConfig // read per order
	Logger   *zap.Logger
	Now      func() time.Time
}

// Manager executes entries exactly once per (mint, epoch) and exits on demand.
type Manager struct {
	routers  map[domain.Mode]Router
	store    IdempotencyStore
	settings func() domain.ExecutionConfig
	logger   *zap.Logger
	now      func() time.Time
}

// NewManager creates a manager. A nil Store uses an in-memory store.
func NewManager(opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	store := opts.Store
	if store == nil {
		store = NewMemoryIdempotencyStore()
	}
	settings := opts.Settings
	if settings == nil {
		def := domain.DefaultTradingConfig().Execution
		settings = func() domain.ExecutionConfig { return def }
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	routers := make(map[domain.Mode]Router, 2)
	if opts.Paper != nil {
		routers[domain.ModePaper] = opts.Paper
	}
	if opts.Live != nil {
		routers[domain.ModeLive] = opts.Live
	}
	return &Manager{
		routers:  routers,
		store:    store,
		settings: settings,
		logger:   logger.Named("execution"),
		now:      now,
	}
}

// Execute buys the sized order for a candidate. The idempotency key for
// (mint, epoch) is claimed before routing, so a second call for the same
// epoch fails with DUPLICATE_EXECUTION even if the first one failed.
// Entries are never retried.
func (m *Manager) Execute(ctx context.Context, c *domain.Candidate, order *domain.SizedOrder, mode domain.Mode) (*domain.Fill, error) {
	if c == nil || order == nil {
		return nil, fmt.Errorf("execute: nil candidate or order")
	}
	cfg := m.settings()

	key := idhash.ComputeIdempotencyKey(c.Mint, c.Epoch)
	claimed, err := m.store.Claim(ctx, key, cfg.IdempotencyTTL)
	if err != nil {
		return nil, domain.Reject(domain.ErrExecutionFailed, domain.ReasonRouteError,
			fmt.Sprintf("claim idempotency key: %v", err))
	}
	if !claimed {
		return nil, domain.Reject(domain.ErrExecutionFailed, domain.ReasonDuplicateExecution,
			fmt.Sprintf("%s epoch %d", c.Mint, c.Epoch))
	}

	req := RouteRequest{
		ClientOrderID:         key,
		Mint:                  c.Mint,
		Side:                  domain.SideBuy,
		Mode:                  mode,
		AmountUSD:             order.AmountUSD,
		MaxSlippageBps:        cfg.MaxSlippageBps,
		PriorityFeePercentile: cfg.PriorityFeePercentile,
		ReferencePrice:        c.Features.PriceUSD,
	}
	res, err := m.route(ctx, req, cfg.Timeout)
	if err != nil {
		return nil, err
	}
	if res.Status != RouteFilled || res.TokenUnits <= 0 ||
		res.AmountUSD.Add(fillTolerance).LessThan(order.AmountUSD) {
		m.logger.Error("partial entry fill needs manual review",
			zap.String("mint", c.Mint),
			zap.String("client_order_id", key),
			zap.String("requested_usd", order.AmountUSD.StringFixed(2)),
			zap.String("filled_usd", res.AmountUSD.StringFixed(2)),
			zap.Float64("token_units", res.TokenUnits),
		)
		return nil, domain.Reject(domain.ErrExecutionFailed, domain.ReasonPartialFill,
			fmt.Sprintf("filled %s of %s", res.AmountUSD.StringFixed(2), order.AmountUSD.StringFixed(2)))
	}

	return m.fill(req, res), nil
}

// Exit sells all tokens of a position. Exits carry a fresh client order id
// and may be retried by the caller.
func (m *Manager) Exit(ctx context.Context, p *domain.Position) (*domain.Fill, error) {
	if p == nil {
		return nil, fmt.Errorf("exit: nil position")
	}
	cfg := m.settings()

	req := RouteRequest{
		ClientOrderID:         uuid.NewString(),
		Mint:                  p.Mint,
		Side:                  domain.SideSell,
		Mode:                  p.Mode,
		TokenUnits:            p.TokenUnits,
		MaxSlippageBps:        cfg.MaxSlippageBps,
		PriorityFeePercentile: cfg.PriorityFeePercentile,
		ReferencePrice:        p.LastPrice,
	}
	res, err := m.route(ctx, req, cfg.Timeout)
	if err != nil {
		return nil, err
	}
	if res.Status != RouteFilled || res.TokenUnits < p.TokenUnits {
		return nil, domain.Reject(domain.ErrExecutionFailed, domain.ReasonPartialFill,
			fmt.Sprintf("sold %v of %v", res.TokenUnits, p.TokenUnits))
	}
	return m.fill(req, res), nil
}

func (m *Manager) route(ctx context.Context, req RouteRequest, timeout time.Duration) (*RouteResult, error) {
	router, ok := m.routers[req.Mode]
	if !ok {
		return nil, domain.Reject(domain.ErrExecutionFailed, domain.ReasonRouteError,
			fmt.Sprintf("no router for mode %s", req.Mode))
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	res, err := router.Route(ctx, req)
	elapsed := time.Since(start).Seconds()

	switch {
	case err == nil:
		observability.RecordExecution(req.Mode.String(), string(req.Side), string(res.Status), elapsed)
		return res, nil
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		observability.RecordExecution(req.Mode.String(), string(req.Side), domain.ReasonTimeout, elapsed)
		m.logger.Warn("order timed out",
			zap.String("mint", req.Mint),
			zap.String("side", string(req.Side)),
			zap.String("client_order_id", req.ClientOrderID),
			zap.Duration("timeout", timeout),
		)
		return nil, domain.Reject(domain.ErrExecutionFailed, domain.ReasonTimeout, err.Error())
	default:
		observability.RecordExecution(req.Mode.String(), string(req.Side), domain.ReasonRouteError, elapsed)
		m.logger.Warn("order failed",
			zap.String("mint", req.Mint),
			zap.String("side", string(req.Side)),
			zap.String("client_order_id", req.ClientOrderID),
			zap.Error(err),
		)
		return nil, domain.Reject(domain.ErrExecutionFailed, domain.ReasonRouteError, err.Error())
	}
}

func (m *Manager) fill(req RouteRequest, res *RouteResult) *domain.Fill {
	return &domain.Fill{
		ClientOrderID: req.ClientOrderID,
		Mint:          req.Mint,
		Side:          req.Side,
		Mode:          req.Mode,
		Price:         res.Price,
		TokenUnits:    res.TokenUnits,
		AmountUSD:     res.AmountUSD,
		FeeUSD:        res.FeeUSD,
		Signature:     res.Signature,
		FilledAt:      m.now().UnixMilli(),
	}
}
