// Package control exposes the operator HTTP surface: status, positions,
// manual close, operating mode, configuration reload, held reservations
// and metrics.
package control

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"graduation-engine/internal/domain"
	"graduation-engine/internal/engine"
	"graduation-engine/internal/ledger"
	"graduation-engine/internal/observability"
	"graduation-engine/internal/position"
)

// ModeController reads and switches the entry mode.
type ModeController interface {
	Mode() domain.Mode
	SetMode(domain.Mode) error
	Stats() engine.Stats
}

// PositionManager lists positions and accepts manual closes.
type PositionManager interface {
	Positions() []domain.Position
	Close(mint string) error
}

// LedgerView exposes the exposure ledger state and its operator actions.
type LedgerView interface {
	Snapshot() ledger.Snapshot
	SetLimits(ledger.Limits)
	Reservations() []ledger.Handle
	ReleaseByID(id string, realizedPnL decimal.Decimal) bool
}

// ConfigStore holds the active trading configuration.
type ConfigStore interface {
	Load() domain.TradingConfig
	Swap(domain.TradingConfig) error
}

// Handler serves the control API.
type Handler struct {
	Engine    ModeController
	Positions PositionManager
	Ledger    LedgerView
	Config    ConfigStore
	Logger    *zap.Logger
}

// Register mounts the routes on r.
func (h *Handler) Register(r *gin.Engine) {
	r.GET("/healthz", h.health)
	r.GET("/metrics", gin.WrapH(observability.Handler()))

	group := r.Group("/api")
	group.GET("/status", h.status)
	group.GET("/positions", h.listPositions)
	group.POST("/positions/:mint/close", h.closePosition)
	group.GET("/mode", h.getMode)
	group.PUT("/mode", h.putMode)
	group.GET("/config", h.getConfig)
	group.PUT("/config", h.putConfig)
	group.GET("/reservations", h.listReservations)
	group.DELETE("/reservations/:id", h.releaseReservation)
}

// NewRouter builds a gin engine with the control routes.
func NewRouter(h *Handler, env string) *gin.Engine {
	if strings.EqualFold(env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	h.Register(r)
	return r
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type ledgerView struct {
	Epoch           int64  `json:"epoch"`
	CommittedUSD    string `json:"committed_usd"`
	HeadroomUSD     string `json:"headroom_usd"`
	OpenCount       int    `json:"open_count"`
	RealizedPnLUSD  string `json:"realized_pnl_usd"`
	Breaker         bool   `json:"circuit_breaker"`
	GlobalCapUSD    string `json:"global_cap_usd"`
	MaxConcurrent   int    `json:"max_concurrent"`
	DailyLossCapUSD string `json:"daily_loss_cap_usd"`
}

type statusView struct {
	Mode   domain.Mode  `json:"mode"`
	Ledger ledgerView   `json:"ledger"`
	Stats  engine.Stats `json:"stats"`
}

func (h *Handler) status(c *gin.Context) {
	if h.Engine == nil || h.Ledger == nil {
		fail(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	snap := h.Ledger.Snapshot()
	ok(c, statusView{
		Mode: h.Engine.Mode(),
		Ledger: ledgerView{
			Epoch:           snap.Epoch,
			CommittedUSD:    snap.Committed.StringFixed(2),
			HeadroomUSD:     snap.Headroom().StringFixed(2),
			OpenCount:       snap.OpenCount,
			RealizedPnLUSD:  snap.RealizedPnL.StringFixed(2),
			Breaker:         snap.Breaker,
			GlobalCapUSD:    snap.Limits.GlobalCapUSD.StringFixed(2),
			MaxConcurrent:   snap.Limits.MaxConcurrent,
			DailyLossCapUSD: snap.Limits.DailyLossCapUSD.StringFixed(2),
		},
		Stats: h.Engine.Stats(),
	}, nil)
}

type positionView struct {
	PositionID   string  `json:"position_id"`
	Mint         string  `json:"mint"`
	Epoch        int     `json:"epoch"`
	Mode         string  `json:"mode"`
	Status       string  `json:"status"`
	EntryPrice   float64 `json:"entry_price"`
	EntryCostUSD string  `json:"entry_cost_usd"`
	TokenUnits   float64 `json:"token_units"`
	PeakPrice    float64 `json:"peak_price"`
	LastPrice    float64 `json:"last_price"`
	OpenedAt     int64   `json:"opened_at"`
	ExitReason   string  `json:"exit_reason,omitempty"`
	ExitAttempts int     `json:"exit_attempts"`
}

func (h *Handler) listPositions(c *gin.Context) {
	if h.Positions == nil {
		fail(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	positions := h.Positions.Positions()
	out := make([]positionView, 0, len(positions))
	for _, p := range positions {
		out = append(out, positionView{
			PositionID:   p.PositionID,
			Mint:         p.Mint,
			Epoch:        p.Epoch,
			Mode:         p.Mode.String(),
			Status:       string(p.Status),
			EntryPrice:   p.EntryPrice,
			EntryCostUSD: p.EntryCostUSD.StringFixed(2),
			TokenUnits:   p.TokenUnits,
			PeakPrice:    p.PeakPrice,
			LastPrice:    p.LastPrice,
			OpenedAt:     p.OpenedAt,
			ExitReason:   p.ExitReason,
			ExitAttempts: p.ExitAttempts,
		})
	}
	ok(c, out, map[string]any{"count": len(out)})
}

func (h *Handler) closePosition(c *gin.Context) {
	if h.Positions == nil {
		fail(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	mint := strings.TrimSpace(c.Param("mint"))
	err := h.Positions.Close(mint)
	switch {
	case err == nil:
		h.logger().Info("manual close requested", zap.String("mint", mint))
		c.JSON(http.StatusAccepted, apiResponse{Code: 0, Message: "closing", Data: gin.H{"mint": mint}})
	case errors.Is(err, position.ErrPositionNotFound):
		fail(c, http.StatusNotFound, "position not found", gin.H{"mint": mint})
	case errors.Is(err, position.ErrNotOpen):
		fail(c, http.StatusConflict, "position is already closing", gin.H{"mint": mint})
	default:
		h.logger().Warn("manual close failed", zap.String("mint", mint), zap.Error(err))
		fail(c, http.StatusInternalServerError, err.Error(), nil)
	}
}

type modeRequest struct {
	Mode string `json:"mode" binding:"required"`
}

func (h *Handler) getMode(c *gin.Context) {
	if h.Engine == nil {
		fail(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	ok(c, gin.H{"mode": h.Engine.Mode()}, nil)
}

func (h *Handler) putMode(c *gin.Context) {
	if h.Engine == nil {
		fail(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	var req modeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	mode, err := domain.ParseMode(strings.ToUpper(strings.TrimSpace(req.Mode)))
	if err != nil {
		fail(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if err := h.Engine.SetMode(mode); err != nil {
		fail(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	h.logger().Warn("mode set via control api", zap.String("mode", mode.String()))
	ok(c, gin.H{"mode": mode}, nil)
}

func (h *Handler) getConfig(c *gin.Context) {
	if h.Config == nil {
		fail(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	cfg := h.Config.Load()
	ok(c, cfg, map[string]any{"name": cfg.Name, "version": cfg.Version})
}

// putConfig installs a new configuration for later candidates and moves the
// ledger onto the matching USD limits.
func (h *Handler) putConfig(c *gin.Context) {
	if h.Config == nil || h.Ledger == nil {
		fail(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	var cfg domain.TradingConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := h.Config.Swap(cfg); err != nil {
		status := http.StatusBadRequest
		if domain.ReasonOf(err) == "STALE_VERSION" {
			status = http.StatusConflict
		}
		fail(c, status, err.Error(), nil)
		return
	}
	limits := ledger.LimitsFromConfig(cfg.Sizing)
	h.Ledger.SetLimits(limits)
	h.logger().Warn("config reloaded via control api",
		zap.String("name", cfg.Name),
		zap.Int("version", cfg.Version),
		zap.String("global_cap_usd", limits.GlobalCapUSD.StringFixed(2)),
	)
	ok(c, gin.H{"name": cfg.Name, "version": cfg.Version}, nil)
}

type reservationView struct {
	ID         string `json:"id"`
	AmountUSD  string `json:"amount_usd"`
	Epoch      int64  `json:"epoch"`
	ReservedAt int64  `json:"reserved_at"`
	Mint       string `json:"mint,omitempty"` // empty when no position owns it
}

func (h *Handler) listReservations(c *gin.Context) {
	if h.Ledger == nil || h.Positions == nil {
		fail(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	owners := h.reservationOwners()
	held := h.Ledger.Reservations()
	out := make([]reservationView, 0, len(held))
	for _, r := range held {
		out = append(out, reservationView{
			ID:         r.ID,
			AmountUSD:  r.Amount.StringFixed(2),
			Epoch:      r.Epoch,
			ReservedAt: r.ReservedAt,
			Mint:       owners[r.ID],
		})
	}
	ok(c, out, map[string]any{"count": len(out)})
}

// releaseReservation frees a reservation no position owns. Position-owned
// reservations are released by the position engine when the exit settles.
func (h *Handler) releaseReservation(c *gin.Context) {
	if h.Ledger == nil || h.Positions == nil {
		fail(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	id := strings.TrimSpace(c.Param("id"))
	if mint, owned := h.reservationOwners()[id]; owned {
		fail(c, http.StatusConflict, "reservation belongs to an active position", gin.H{"mint": mint})
		return
	}
	if !h.Ledger.ReleaseByID(id, decimal.Zero) {
		fail(c, http.StatusNotFound, "reservation not found", gin.H{"id": id})
		return
	}
	h.logger().Warn("reservation released via control api", zap.String("reservation_id", id))
	ok(c, gin.H{"id": id}, nil)
}

func (h *Handler) reservationOwners() map[string]string {
	owners := make(map[string]string)
	for _, p := range h.Positions.Positions() {
		if p.ReservationID != "" {
			owners[p.ReservationID] = p.Mint
		}
	}
	return owners
}

func (h *Handler) logger() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}
