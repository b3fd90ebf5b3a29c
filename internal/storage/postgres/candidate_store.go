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

// CandidateStore persists candidates. The feature snapshot is stored as JSONB
// so new snapshot versions need no schema change.
type CandidateStore struct {
	pool *Pool
}

func NewCandidateStore(pool *Pool) *CandidateStore {
	return &CandidateStore{pool: pool}
}

var _ storage.CandidateStore = (*CandidateStore)(nil)

const selectCandidates = `
	SELECT candidate_id, mint, epoch, pool, source, discovered_at, features, created_at
	FROM candidates`

// candidateRow mirrors the candidates table for pgx struct scanning.
type candidateRow struct {
	CandidateID  string  `db:"candidate_id"`
	Mint         string  `db:"mint"`
	Epoch        int     `db:"epoch"`
	Pool         *string `db:"pool"`
	Source       string  `db:"source"`
	DiscoveredAt int64   `db:"discovered_at"`
	Features     []byte  `db:"features"`
	CreatedAt    int64   `db:"created_at"`
}

func (r *candidateRow) candidate() (*domain.Candidate, error) {
	c := &domain.Candidate{
		CandidateID:  r.CandidateID,
		Mint:         r.Mint,
		Epoch:        r.Epoch,
		Pool:         r.Pool,
		Source:       domain.Source(r.Source),
		DiscoveredAt: r.DiscoveredAt,
		CreatedAt:    r.CreatedAt,
	}
	if err := json.Unmarshal(r.Features, &c.Features); err != nil {
		return nil, fmt.Errorf("decode features of %s: %w", r.CandidateID, err)
	}
	return c, nil
}

// Insert returns ErrDuplicateKey when candidate_id or (mint, epoch) is taken.
func (s *CandidateStore) Insert(ctx context.Context, c *domain.Candidate) (err error) {
	if c == nil || c.CandidateID == "" || c.Mint == "" || c.Epoch < 1 {
		return storage.ErrInvalidInput
	}
	defer observe("candidate_insert", time.Now(), &err)

	features, err := json.Marshal(c.Features)
	if err != nil {
		return fmt.Errorf("encode features: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO candidates (candidate_id, mint, epoch, pool, source, discovered_at, features, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.CandidateID, c.Mint, c.Epoch, c.Pool, c.Source.String(), c.DiscoveredAt, features, c.CreatedAt,
	)
	switch {
	case isDuplicateKeyError(err):
		return storage.ErrDuplicateKey
	case err != nil:
		return fmt.Errorf("insert candidate %s: %w", c.CandidateID, err)
	}
	return nil
}

func (s *CandidateStore) GetByID(ctx context.Context, candidateID string) (c *domain.Candidate, err error) {
	defer observe("candidate_get", time.Now(), &err)

	rows, err := s.pool.Query(ctx, selectCandidates+` WHERE candidate_id = $1`, candidateID)
	if err != nil {
		return nil, fmt.Errorf("get candidate %s: %w", candidateID, err)
	}
	row, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByName[candidateRow])
	if isNotFoundError(err) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get candidate %s: %w", candidateID, err)
	}
	return row.candidate()
}

// GetByMint returns every epoch of mint, oldest first.
func (s *CandidateStore) GetByMint(ctx context.Context, mint string) (out []*domain.Candidate, err error) {
	defer observe("candidate_by_mint", time.Now(), &err)

	rows, err := s.pool.Query(ctx, selectCandidates+` WHERE mint = $1 ORDER BY epoch`, mint)
	if err != nil {
		return nil, fmt.Errorf("get candidates of %s: %w", mint, err)
	}
	return collectCandidates(rows)
}

// GetByTimeRange returns candidates discovered in [start, end].
func (s *CandidateStore) GetByTimeRange(ctx context.Context, start, end int64) (out []*domain.Candidate, err error) {
	defer observe("candidate_by_range", time.Now(), &err)

	rows, err := s.pool.Query(ctx,
		selectCandidates+` WHERE discovered_at BETWEEN $1 AND $2 ORDER BY discovered_at, candidate_id`,
		start, end)
	if err != nil {
		return nil, fmt.Errorf("get candidates in [%d, %d]: %w", start, end, err)
	}
	return collectCandidates(rows)
}

func collectCandidates(rows pgx.Rows) ([]*domain.Candidate, error) {
	raw, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[candidateRow])
	if err != nil {
		return nil, fmt.Errorf("scan candidates: %w", err)
	}
	out := make([]*domain.Candidate, 0, len(raw))
	for _, r := range raw {
		c, err := r.candidate()
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}
