package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"graduation-engine/internal/domain"
	"graduation-engine/internal/storage"
)

// PositionStore implements storage.PositionStore using PostgreSQL.
// USD amounts are NUMERIC columns exchanged as text.
type PositionStore struct {
	pool *Pool
}

// NewPositionStore creates a new PositionStore.
func NewPositionStore(pool *Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

var _ storage.PositionStore = (*PositionStore)(nil)

const positionSelect = `
	SELECT position_id, candidate_id, mint, epoch, mode, status,
		entry_price, entry_cost_usd::text, token_units, reserved_usd::text, reservation_id,
		opened_at, rules, peak_price, last_price, exit_attempts,
		exit_reason, exit_price, exit_proceeds_usd::text, realized_pnl_usd::text, closed_at
	FROM positions
`

// Insert adds a new position. Returns ErrDuplicateKey if position_id exists.
func (s *PositionStore) Insert(ctx context.Context, p *domain.Position) (err error) {
	defer observe("position_insert", time.Now(), &err)

	rules, err := json.Marshal(p.Rules)
	if err != nil {
		return fmt.Errorf("encode exit rules: %w", err)
	}

	query := `
		INSERT INTO positions (
			position_id, candidate_id, mint, epoch, mode, status,
			entry_price, entry_cost_usd, token_units, reserved_usd, reservation_id,
			opened_at, rules, peak_price, last_price, exit_attempts,
			exit_reason, exit_price, exit_proceeds_usd, realized_pnl_usd, closed_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8::numeric, $9, $10::numeric, $11,
			$12, $13, $14, $15, $16,
			$17, $18, $19::numeric, $20::numeric, $21
		)
	`
	_, err = s.pool.Exec(ctx, query,
		p.PositionID, p.CandidateID, p.Mint, p.Epoch, string(p.Mode), string(p.Status),
		p.EntryPrice, p.EntryCostUSD.String(), p.TokenUnits, p.ReservedUSD.String(), p.ReservationID,
		p.OpenedAt, rules, p.PeakPrice, p.LastPrice, p.ExitAttempts,
		p.ExitReason, p.ExitPrice, p.ExitProceedsUSD.String(), p.RealizedPnL.String(), p.ClosedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert position: %w", err)
	}
	return nil
}

// Update replaces the mutable columns of a stored position. Returns ErrNotFound if not exists.
func (s *PositionStore) Update(ctx context.Context, p *domain.Position) (err error) {
	defer observe("position_update", time.Now(), &err)

	query := `
		UPDATE positions SET
			status = $2,
			token_units = $3,
			reservation_id = $4,
			peak_price = $5,
			last_price = $6,
			exit_attempts = $7,
			exit_reason = $8,
			exit_price = $9,
			exit_proceeds_usd = $10::numeric,
			realized_pnl_usd = $11::numeric,
			closed_at = $12
		WHERE position_id = $1
	`
	tag, err := s.pool.Exec(ctx, query,
		p.PositionID, string(p.Status), p.TokenUnits, p.ReservationID,
		p.PeakPrice, p.LastPrice, p.ExitAttempts,
		p.ExitReason, p.ExitPrice, p.ExitProceedsUSD.String(), p.RealizedPnL.String(), p.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("update position: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// GetByID retrieves a position. Returns ErrNotFound if not exists.
func (s *PositionStore) GetByID(ctx context.Context, positionID string) (*domain.Position, error) {
	p, err := scanPosition(s.pool.QueryRow(ctx, positionSelect+` WHERE position_id = $1`, positionID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get position: %w", err)
	}
	return p, nil
}

// GetByMint retrieves all positions for a mint, ordered by opened_at ASC.
func (s *PositionStore) GetByMint(ctx context.Context, mint string) ([]*domain.Position, error) {
	return s.query(ctx, positionSelect+` WHERE mint = $1 ORDER BY opened_at ASC, position_id ASC`, mint)
}

// GetActive retrieves OPEN and CLOSING positions, ordered by opened_at ASC.
func (s *PositionStore) GetActive(ctx context.Context) ([]*domain.Position, error) {
	return s.query(ctx, positionSelect+` WHERE status IN ($1, $2) ORDER BY opened_at ASC, position_id ASC`,
		string(domain.PositionOpen), string(domain.PositionClosing))
}

// GetClosedByTimeRange retrieves positions closed within [start, end] (inclusive).
func (s *PositionStore) GetClosedByTimeRange(ctx context.Context, start, end int64) ([]*domain.Position, error) {
	return s.query(ctx, positionSelect+`
		WHERE status = $1 AND closed_at >= $2 AND closed_at <= $3
		ORDER BY closed_at ASC, position_id ASC`,
		string(domain.PositionClosed), start, end)
}

func (s *PositionStore) query(ctx context.Context, sql string, args ...any) ([]*domain.Position, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query positions: %w", err)
	}
	defer rows.Close()

	var out []*domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan position row: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate position rows: %w", err)
	}
	return out, nil
}

func scanPosition(row pgx.Row) (*domain.Position, error) {
	var p domain.Position
	var mode, status string
	var entryCost, reserved, proceeds, pnl string
	var rules []byte

	if err := row.Scan(
		&p.PositionID, &p.CandidateID, &p.Mint, &p.Epoch, &mode, &status,
		&p.EntryPrice, &entryCost, &p.TokenUnits, &reserved, &p.ReservationID,
		&p.OpenedAt, &rules, &p.PeakPrice, &p.LastPrice, &p.ExitAttempts,
		&p.ExitReason, &p.ExitPrice, &proceeds, &pnl, &p.ClosedAt,
	); err != nil {
		return nil, err
	}

	p.Mode = domain.Mode(mode)
	p.Status = domain.PositionStatus(status)

	var err error
	if p.EntryCostUSD, err = parseDecimal(entryCost); err != nil {
		return nil, fmt.Errorf("entry_cost_usd: %w", err)
	}
	if p.ReservedUSD, err = parseDecimal(reserved); err != nil {
		return nil, fmt.Errorf("reserved_usd: %w", err)
	}
	if p.ExitProceedsUSD, err = parseDecimal(proceeds); err != nil {
		return nil, fmt.Errorf("exit_proceeds_usd: %w", err)
	}
	if p.RealizedPnL, err = parseDecimal(pnl); err != nil {
		return nil, fmt.Errorf("realized_pnl_usd: %w", err)
	}
	if err := json.Unmarshal(rules, &p.Rules); err != nil {
		return nil, fmt.Errorf("rules: %w", err)
	}
	return &p, nil
}
