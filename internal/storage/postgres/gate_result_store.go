package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"graduation-engine/internal/domain"
	"graduation-engine/internal/storage"
)

// GateResultStore implements storage.GateResultStore using PostgreSQL.
type GateResultStore struct {
	pool *Pool
}

// NewGateResultStore creates a new GateResultStore.
func NewGateResultStore(pool *Pool) *GateResultStore {
	return &GateResultStore{pool: pool}
}

var _ storage.GateResultStore = (*GateResultStore)(nil)

// InsertBulk appends results in one transaction. A duplicate (candidate_id, gate)
// fails the whole batch with ErrDuplicateKey.
func (s *GateResultStore) InsertBulk(ctx context.Context, results []*domain.GateResult) (err error) {
	if len(results) == 0 {
		return nil
	}
	defer observe("gate_results_insert", time.Now(), &err)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO gate_results (
			candidate_id, gate, seq, passed, margin, observed, threshold, reason, evaluated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	batch := &pgx.Batch{}
	for i, r := range results {
		if r == nil || r.CandidateID == "" {
			return storage.ErrInvalidInput
		}
		batch.Queue(query,
			r.CandidateID, r.Gate, i, r.Passed, r.Margin, r.Observed, r.Threshold, r.Reason, r.EvaluatedAt,
		)
	}

	br := tx.SendBatch(ctx, batch)
	for range results {
		if _, err := br.Exec(); err != nil {
			br.Close()
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert gate result: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// GetByCandidateID retrieves results for a candidate in evaluation order.
func (s *GateResultStore) GetByCandidateID(ctx context.Context, candidateID string) ([]*domain.GateResult, error) {
	query := `
		SELECT candidate_id, gate, passed, margin, observed, threshold, reason, evaluated_at
		FROM gate_results
		WHERE candidate_id = $1
		ORDER BY seq ASC
	`
	rows, err := s.pool.Query(ctx, query, candidateID)
	if err != nil {
		return nil, fmt.Errorf("get gate results: %w", err)
	}
	defer rows.Close()

	var out []*domain.GateResult
	for rows.Next() {
		var r domain.GateResult
		if err := rows.Scan(
			&r.CandidateID, &r.Gate, &r.Passed, &r.Margin, &r.Observed, &r.Threshold, &r.Reason, &r.EvaluatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan gate result row: %w", err)
		}
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate gate result rows: %w", err)
	}
	return out, nil
}
