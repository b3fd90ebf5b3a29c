package storage

import (
	"context"

	"graduation-engine/internal/domain"
)

// CandidateStore provides access to candidates storage.
type CandidateStore interface {
	// Insert adds a new candidate. Returns ErrDuplicateKey if candidate_id exists.
	Insert(ctx context.Context, c *domain.Candidate) error

	// GetByID retrieves a candidate by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, candidateID string) (*domain.Candidate, error)

	// GetByMint retrieves all epochs for a mint, ordered by epoch ASC.
	GetByMint(ctx context.Context, mint string) ([]*domain.Candidate, error)

	// GetByTimeRange retrieves candidates discovered within [start, end] (inclusive).
	GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.Candidate, error)
}

// GateResultStore provides access to the append-only gate_results log.
type GateResultStore interface {
	// InsertBulk appends results atomically. Fails entire batch on duplicate (candidate_id, gate).
	InsertBulk(ctx context.Context, results []*domain.GateResult) error

	// GetByCandidateID retrieves results for a candidate in evaluation order.
	GetByCandidateID(ctx context.Context, candidateID string) ([]*domain.GateResult, error)
}

// ScoreStore provides access to scores storage. One score per candidate.
type ScoreStore interface {
	// Insert adds a score. Returns ErrDuplicateKey if the candidate already has one.
	Insert(ctx context.Context, s *domain.Score) error

	// GetByID retrieves the score for a candidate. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, candidateID string) (*domain.Score, error)

	// GetByTimeRange retrieves scores computed within [start, end] (inclusive).
	GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.Score, error)
}

// PositionStore provides access to positions storage.
type PositionStore interface {
	// Insert adds a new position. Returns ErrDuplicateKey if position_id exists.
	Insert(ctx context.Context, p *domain.Position) error

	// Update replaces a stored position. Returns ErrNotFound if not exists.
	Update(ctx context.Context, p *domain.Position) error

	// GetByID retrieves a position. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, positionID string) (*domain.Position, error)

	// GetByMint retrieves all positions for a mint, ordered by opened_at ASC.
	GetByMint(ctx context.Context, mint string) ([]*domain.Position, error)

	// GetActive retrieves OPEN and CLOSING positions, ordered by opened_at ASC.
	GetActive(ctx context.Context) ([]*domain.Position, error)

	// GetClosedByTimeRange retrieves positions closed within [start, end] (inclusive).
	GetClosedByTimeRange(ctx context.Context, start, end int64) ([]*domain.Position, error)
}

// ScoreHistoryStore is the analytical copy of computed scores.
type ScoreHistoryStore interface {
	// InsertBulk appends score records.
	InsertBulk(ctx context.Context, scores []*domain.Score) error

	// GetByTimeRange retrieves records computed within [start, end] (inclusive).
	GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.Score, error)
}

// TradeHistoryStore is the analytical copy of closed positions.
type TradeHistoryStore interface {
	// InsertBulk appends closed-trade records. Only CLOSED positions are accepted.
	InsertBulk(ctx context.Context, positions []*domain.Position) error

	// GetByTimeRange retrieves trades closed within [start, end] (inclusive).
	GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.Position, error)
}
