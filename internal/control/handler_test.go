package control

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graduation-engine/internal/config"
	"graduation-engine/internal/domain"
	"graduation-engine/internal/engine"
	"graduation-engine/internal/ledger"
	"graduation-engine/internal/position"
)

type fakeEngine struct {
	mode domain.Mode
}

func (f *fakeEngine) Mode() domain.Mode { return f.mode }

func (f *fakeEngine) SetMode(m domain.Mode) error {
	f.mode = m
	return nil
}

func (f *fakeEngine) Stats() engine.Stats { return engine.Stats{Received: 7, Opened: 2} }

type fakePositions struct {
	list   []domain.Position
	closed []string
}

func (f *fakePositions) Positions() []domain.Position { return f.list }

func (f *fakePositions) Close(mint string) error {
	for _, p := range f.list {
		if p.Mint != mint {
			continue
		}
		if p.Status != domain.PositionOpen {
			return position.ErrNotOpen
		}
		f.closed = append(f.closed, mint)
		return nil
	}
	return position.ErrPositionNotFound
}

type body struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Meta    map[string]any  `json:"meta"`
}

func newTestRouter(t *testing.T) (*gin.Engine, *fakeEngine, *fakePositions, *ledger.Ledger) {
	t.Helper()
	cfg := domain.DefaultTradingConfig()
	l := ledger.New(ledger.Options{Limits: ledger.LimitsFromConfig(cfg.Sizing)})
	eng := &fakeEngine{mode: domain.ModePaper}
	pos := &fakePositions{list: []domain.Position{
		{PositionID: "p1", Mint: "MintA", Epoch: 1, Mode: domain.ModePaper, Status: domain.PositionOpen,
			EntryPrice: 0.001, EntryCostUSD: decimal.NewFromInt(500), TokenUnits: 500000},
		{PositionID: "p2", Mint: "MintB", Epoch: 2, Mode: domain.ModePaper, Status: domain.PositionClosing,
			EntryCostUSD: decimal.NewFromInt(250), ExitReason: domain.ExitReasonStopLoss},
	}}
	h := &Handler{Engine: eng, Positions: pos, Ledger: l, Config: config.NewStore(cfg)}
	return NewRouter(h, "test"), eng, pos, l
}

func do(t *testing.T, r http.Handler, method, path, payload string) (*httptest.ResponseRecorder, body) {
	t.Helper()
	var req *http.Request
	if payload != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var b body
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &b))
	}
	return w, b
}

func TestStatus(t *testing.T) {
	r, _, _, l := newTestRouter(t)
	_, err := l.TryReserve(decimal.NewFromInt(500))
	require.NoError(t, err)

	w, b := do(t, r, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, w.Code)

	var status statusView
	require.NoError(t, json.Unmarshal(b.Data, &status))
	assert.Equal(t, domain.ModePaper, status.Mode)
	assert.Equal(t, "500.00", status.Ledger.CommittedUSD)
	assert.Equal(t, "49500.00", status.Ledger.HeadroomUSD)
	assert.Equal(t, 1, status.Ledger.OpenCount)
	assert.Equal(t, int64(7), status.Stats.Received)
}

func TestListPositions(t *testing.T) {
	r, _, _, _ := newTestRouter(t)

	w, b := do(t, r, http.MethodGet, "/api/positions", "")
	require.Equal(t, http.StatusOK, w.Code)

	var list []positionView
	require.NoError(t, json.Unmarshal(b.Data, &list))
	require.Len(t, list, 2)
	assert.Equal(t, "MintA", list[0].Mint)
	assert.Equal(t, "500.00", list[0].EntryCostUSD)
	assert.Equal(t, float64(2), b.Meta["count"])
}

func TestClosePosition(t *testing.T) {
	r, _, pos, _ := newTestRouter(t)

	w, _ := do(t, r, http.MethodPost, "/api/positions/MintA/close", "")
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, []string{"MintA"}, pos.closed)

	w, _ = do(t, r, http.MethodPost, "/api/positions/MintB/close", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w, _ = do(t, r, http.MethodPost, "/api/positions/Nope/close", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMode(t *testing.T) {
	r, eng, _, _ := newTestRouter(t)

	w, b := do(t, r, http.MethodGet, "/api/mode", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"mode":"PAPER"}`, string(b.Data))

	w, _ = do(t, r, http.MethodPut, "/api/mode", `{"mode":"live"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.ModeLive, eng.mode)

	w, _ = do(t, r, http.MethodPut, "/api/mode", `{"mode":"SIM"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, domain.ModeLive, eng.mode)

	w, _ = do(t, r, http.MethodPut, "/api/mode", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConfig(t *testing.T) {
	r, _, _, _ := newTestRouter(t)

	w, b := do(t, r, http.MethodGet, "/api/config", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "default", b.Meta["name"])

	var cfg domain.TradingConfig
	require.NoError(t, json.Unmarshal(b.Data, &cfg))
	assert.Equal(t, 60.0, cfg.Gates.MaxTop10Pct)
}

func TestMetricsAndHealth(t *testing.T) {
	r, _, _, _ := newTestRouter(t)

	w, _ := do(t, r, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = do(t, r, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUnavailable(t *testing.T) {
	r := NewRouter(&Handler{}, "test")
	w, b := do(t, r, http.MethodGet, "/api/status", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, http.StatusInternalServerError, b.Code)
}

func TestPutConfig_SwapsConfigAndLedgerLimits(t *testing.T) {
	r, _, _, l := newTestRouter(t)

	next := domain.DefaultTradingConfig()
	next.Version++
	next.Sizing.GlobalExposureCapPct = 0.2
	next.Sizing.MaxConcurrentPositions = 2
	payload, err := json.Marshal(next)
	require.NoError(t, err)

	w, b := do(t, r, http.MethodPut, "/api/config", string(payload))
	require.Equal(t, http.StatusOK, w.Code, b.Message)

	w, b = do(t, r, http.MethodGet, "/api/config", "")
	require.Equal(t, http.StatusOK, w.Code)
	var active domain.TradingConfig
	require.NoError(t, json.Unmarshal(b.Data, &active))
	assert.Equal(t, next.Version, active.Version)
	assert.Equal(t, 0.2, active.Sizing.GlobalExposureCapPct)

	limits := l.Snapshot().Limits
	assert.Equal(t, "20000.00", limits.GlobalCapUSD.StringFixed(2))
	assert.Equal(t, 2, limits.MaxConcurrent)
}

func TestPutConfig_Rejected(t *testing.T) {
	r, _, _, l := newTestRouter(t)
	before := l.Snapshot().Limits

	stale := domain.DefaultTradingConfig()
	stale.Sizing.GlobalExposureCapPct = 0.2
	payload, err := json.Marshal(stale)
	require.NoError(t, err)
	w, _ := do(t, r, http.MethodPut, "/api/config", string(payload))
	assert.Equal(t, http.StatusConflict, w.Code)

	invalid := domain.DefaultTradingConfig()
	invalid.Version++
	invalid.Sizing.KellyFraction = 2
	payload, err = json.Marshal(invalid)
	require.NoError(t, err)
	w, b := do(t, r, http.MethodPut, "/api/config", string(payload))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, b.Message, "kelly_fraction")

	w, _ = do(t, r, http.MethodPut, "/api/config", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Equal(t, before, l.Snapshot().Limits)
}

func TestReservations(t *testing.T) {
	r, _, pos, l := newTestRouter(t)
	owned, err := l.TryReserve(decimal.NewFromInt(500))
	require.NoError(t, err)
	pos.list[0].ReservationID = owned.ID
	orphan, err := l.TryReserve(decimal.NewFromInt(250))
	require.NoError(t, err)

	w, b := do(t, r, http.MethodGet, "/api/reservations", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list []reservationView
	require.NoError(t, json.Unmarshal(b.Data, &list))
	require.Len(t, list, 2)
	byID := map[string]reservationView{list[0].ID: list[0], list[1].ID: list[1]}
	assert.Equal(t, "MintA", byID[owned.ID].Mint)
	assert.Empty(t, byID[orphan.ID].Mint)
	assert.Equal(t, "250.00", byID[orphan.ID].AmountUSD)

	w, _ = do(t, r, http.MethodDelete, "/api/reservations/"+owned.ID, "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w, _ = do(t, r, http.MethodDelete, "/api/reservations/"+orphan.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "500.00", l.Snapshot().Committed.StringFixed(2))

	w, _ = do(t, r, http.MethodDelete, "/api/reservations/"+orphan.ID, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
