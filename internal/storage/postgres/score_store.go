package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"graduation-engine/internal/domain"
	"graduation-engine/internal/storage"
)

// ScoreStore implements storage.ScoreStore using PostgreSQL.
type ScoreStore struct {
	pool *Pool
}

// NewScoreStore creates a new ScoreStore.
func NewScoreStore(pool *Pool) *ScoreStore {
	return &ScoreStore{pool: pool}
}

var _ storage.ScoreStore = (*ScoreStore)(nil)

const scoreColumns = `candidate_id, mint, value,
	liquidity_depth, distribution_health, lock_durability, momentum,
	config_name, config_version, computed_at`

// Insert adds a score. Returns ErrDuplicateKey if the candidate already has one.
func (s *ScoreStore) Insert(ctx context.Context, sc *domain.Score) (err error) {
	defer observe("score_insert", time.Now(), &err)

	query := `
		INSERT INTO scores (` + scoreColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = s.pool.Exec(ctx, query,
		sc.CandidateID, sc.Mint, sc.Value,
		sc.Components.LiquidityDepth, sc.Components.DistributionHealth,
		sc.Components.LockDurability, sc.Components.Momentum,
		sc.ConfigName, sc.ConfigVersion, sc.ComputedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert score: %w", err)
	}
	return nil
}

// GetByID retrieves the score for a candidate. Returns ErrNotFound if not exists.
func (s *ScoreStore) GetByID(ctx context.Context, candidateID string) (*domain.Score, error) {
	query := `SELECT ` + scoreColumns + ` FROM scores WHERE candidate_id = $1`

	sc, err := scanScore(s.pool.QueryRow(ctx, query, candidateID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get score: %w", err)
	}
	return sc, nil
}

// GetByTimeRange retrieves scores computed within [start, end] (inclusive).
func (s *ScoreStore) GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.Score, error) {
	query := `
		SELECT ` + scoreColumns + `
		FROM scores
		WHERE computed_at >= $1 AND computed_at <= $2
		ORDER BY computed_at ASC, candidate_id ASC
	`
	rows, err := s.pool.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("get scores by time range: %w", err)
	}
	defer rows.Close()

	var out []*domain.Score
	for rows.Next() {
		sc, err := scanScore(rows)
		if err != nil {
			return nil, fmt.Errorf("scan score row: %w", err)
		}
		out = append(out, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate score rows: %w", err)
	}
	return out, nil
}

func scanScore(row pgx.Row) (*domain.Score, error) {
	var sc domain.Score
	err := row.Scan(
		&sc.CandidateID, &sc.Mint, &sc.Value,
		&sc.Components.LiquidityDepth, &sc.Components.DistributionHealth,
		&sc.Components.LockDurability, &sc.Components.Momentum,
		&sc.ConfigName, &sc.ConfigVersion, &sc.ComputedAt,
	)
	if err != nil {
		return nil, err
	}
	return &sc, nil
}
