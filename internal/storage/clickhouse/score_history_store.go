package clickhouse

import (
	"context"
	"fmt"
	"time"

	"graduation-engine/internal/domain"
	"graduation-engine/internal/storage"
)

// ScoreHistoryStore implements storage.ScoreHistoryStore using ClickHouse.
// The table is a ReplacingMergeTree keyed by candidate_id, so a replayed
// record collapses into the first one.
type ScoreHistoryStore struct {
	conn *Conn
}

// NewScoreHistoryStore creates a new ScoreHistoryStore.
func NewScoreHistoryStore(conn *Conn) *ScoreHistoryStore {
	return &ScoreHistoryStore{conn: conn}
}

var _ storage.ScoreHistoryStore = (*ScoreHistoryStore)(nil)

// InsertBulk appends score records in one batch.
func (s *ScoreHistoryStore) InsertBulk(ctx context.Context, scores []*domain.Score) (err error) {
	if len(scores) == 0 {
		return nil
	}
	for _, sc := range scores {
		if sc == nil || sc.CandidateID == "" {
			return storage.ErrInvalidInput
		}
	}
	defer observe("score_history_insert", time.Now(), &err)

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO score_history (
			candidate_id, mint, value,
			liquidity_depth, distribution_health, lock_durability, momentum,
			config_name, config_version, computed_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, sc := range scores {
		if err := batch.Append(
			sc.CandidateID, sc.Mint, sc.Value,
			sc.Components.LiquidityDepth, sc.Components.DistributionHealth,
			sc.Components.LockDurability, sc.Components.Momentum,
			sc.ConfigName, uint32(sc.ConfigVersion), sc.ComputedAt,
		); err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByTimeRange retrieves records computed within [start, end] (inclusive).
func (s *ScoreHistoryStore) GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.Score, error) {
	query := `
		SELECT
			candidate_id, mint, value,
			liquidity_depth, distribution_health, lock_durability, momentum,
			config_name, config_version, computed_at
		FROM score_history FINAL
		WHERE computed_at >= ? AND computed_at <= ?
		ORDER BY computed_at ASC, candidate_id ASC
	`
	rows, err := s.conn.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("query score history: %w", err)
	}
	defer rows.Close()

	var out []*domain.Score
	for rows.Next() {
		var sc domain.Score
		var version uint32
		if err := rows.Scan(
			&sc.CandidateID, &sc.Mint, &sc.Value,
			&sc.Components.LiquidityDepth, &sc.Components.DistributionHealth,
			&sc.Components.LockDurability, &sc.Components.Momentum,
			&sc.ConfigName, &version, &sc.ComputedAt,
		); err != nil {
			return nil, fmt.Errorf("scan score history row: %w", err)
		}
		sc.ConfigVersion = int(version)
		out = append(out, &sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate score history rows: %w", err)
	}
	return out, nil
}
