package postgres

import (
	"context"
	"fmt"
	"time"

	"graduation-engine/internal/storage"
)

// LedgerStateStore keeps the single ledger day-state row.
type LedgerStateStore struct {
	pool *Pool
}

// NewLedgerStateStore creates a new LedgerStateStore.
func NewLedgerStateStore(pool *Pool) *LedgerStateStore {
	return &LedgerStateStore{pool: pool}
}

var _ storage.LedgerStateStore = (*LedgerStateStore)(nil)

// Load returns the saved state. Returns ErrNotFound if nothing has been saved yet.
func (s *LedgerStateStore) Load(ctx context.Context) (*storage.LedgerState, error) {
	query := `
		SELECT epoch, realized_pnl_usd::text, breaker, updated_at
		FROM ledger_state
		WHERE id = 1
	`
	var st storage.LedgerState
	var pnl string
	if err := s.pool.QueryRow(ctx, query).Scan(&st.Epoch, &pnl, &st.Breaker, &st.UpdatedAt); err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("load ledger state: %w", err)
	}
	var err error
	if st.RealizedPnL, err = parseDecimal(pnl); err != nil {
		return nil, fmt.Errorf("realized_pnl_usd: %w", err)
	}
	return &st, nil
}

// Save replaces the saved state.
func (s *LedgerStateStore) Save(ctx context.Context, st *storage.LedgerState) (err error) {
	defer observe("ledger_state_save", time.Now(), &err)

	query := `
		INSERT INTO ledger_state (id, epoch, realized_pnl_usd, breaker, updated_at)
		VALUES (1, $1, $2::numeric, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			epoch = EXCLUDED.epoch,
			realized_pnl_usd = EXCLUDED.realized_pnl_usd,
			breaker = EXCLUDED.breaker,
			updated_at = EXCLUDED.updated_at
	`
	if _, err = s.pool.Exec(ctx, query, st.Epoch, st.RealizedPnL.String(), st.Breaker, st.UpdatedAt); err != nil {
		return fmt.Errorf("save ledger state: %w", err)
	}
	return nil
}
