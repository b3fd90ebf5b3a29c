package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"graduation-engine/internal/domain"
	"graduation-engine/internal/storage"
)

// TradeHistoryStore implements storage.TradeHistoryStore using ClickHouse.
type TradeHistoryStore struct {
	conn *Conn
}

// NewTradeHistoryStore creates a new TradeHistoryStore.
func NewTradeHistoryStore(conn *Conn) *TradeHistoryStore {
	return &TradeHistoryStore{conn: conn}
}

var _ storage.TradeHistoryStore = (*TradeHistoryStore)(nil)

// InsertBulk appends closed-trade records. Only CLOSED positions are accepted.
func (s *TradeHistoryStore) InsertBulk(ctx context.Context, positions []*domain.Position) (err error) {
	if len(positions) == 0 {
		return nil
	}
	for _, p := range positions {
		if p == nil || p.Status != domain.PositionClosed {
			return storage.ErrInvalidInput
		}
	}
	defer observe("trade_history_insert", time.Now(), &err)

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO trade_history (
			position_id, candidate_id, mint, epoch, mode,
			entry_price, entry_cost_usd, token_units, opened_at,
			exit_reason, exit_price, exit_proceeds_usd, realized_pnl_usd,
			peak_price, exit_attempts, closed_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, p := range positions {
		if err := batch.Append(
			p.PositionID, p.CandidateID, p.Mint, uint32(p.Epoch), string(p.Mode),
			p.EntryPrice, p.EntryCostUSD, p.TokenUnits, p.OpenedAt,
			p.ExitReason, p.ExitPrice, p.ExitProceedsUSD, p.RealizedPnL,
			p.PeakPrice, uint32(p.ExitAttempts), p.ClosedAt,
		); err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByTimeRange retrieves trades closed within [start, end] (inclusive).
func (s *TradeHistoryStore) GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.Position, error) {
	query := `
		SELECT
			position_id, candidate_id, mint, epoch, mode,
			entry_price, entry_cost_usd, token_units, opened_at,
			exit_reason, exit_price, exit_proceeds_usd, realized_pnl_usd,
			peak_price, exit_attempts, closed_at
		FROM trade_history FINAL
		WHERE closed_at >= ? AND closed_at <= ?
		ORDER BY closed_at ASC, position_id ASC
	`
	rows, err := s.conn.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("query trade history: %w", err)
	}
	defer rows.Close()

	var out []*domain.Position
	for rows.Next() {
		var p domain.Position
		var epoch, attempts uint32
		var mode string
		var cost, proceeds, pnl decimal.Decimal
		if err := rows.Scan(
			&p.PositionID, &p.CandidateID, &p.Mint, &epoch, &mode,
			&p.EntryPrice, &cost, &p.TokenUnits, &p.OpenedAt,
			&p.ExitReason, &p.ExitPrice, &proceeds, &pnl,
			&p.PeakPrice, &attempts, &p.ClosedAt,
		); err != nil {
			return nil, fmt.Errorf("scan trade history row: %w", err)
		}
		p.Epoch = int(epoch)
		p.ExitAttempts = int(attempts)
		p.Mode = domain.Mode(mode)
		p.Status = domain.PositionClosed
		p.EntryCostUSD = cost
		p.ExitProceedsUSD = proceeds
		p.RealizedPnL = pnl
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade history rows: %w", err)
	}
	return out, nil
}
