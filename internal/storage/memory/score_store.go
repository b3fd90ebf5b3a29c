package memory

import (
	"context"
	"sort"
	"sync"

	"graduation-engine/internal/domain"
	"graduation-engine/internal/storage"
)

// ScoreStore is an in-memory implementation of storage.ScoreStore
// and storage.ScoreHistoryStore.
type ScoreStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Score // keyed by candidate_id
}

// NewScoreStore creates a new in-memory score store.
func NewScoreStore() *ScoreStore {
	return &ScoreStore{
		data: make(map[string]*domain.Score),
	}
}

// Insert adds a score. Returns ErrDuplicateKey if the candidate already has one.
func (s *ScoreStore) Insert(_ context.Context, sc *domain.Score) error {
	if sc == nil || sc.CandidateID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[sc.CandidateID]; exists {
		return storage.ErrDuplicateKey
	}

	cp := *sc
	s.data[sc.CandidateID] = &cp
	return nil
}

// InsertBulk adds multiple scores atomically. Fails entire batch on any duplicate.
func (s *ScoreStore) InsertBulk(_ context.Context, scores []*domain.Score) error {
	if len(scores) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(scores))
	for _, sc := range scores {
		if sc == nil || sc.CandidateID == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := s.data[sc.CandidateID]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[sc.CandidateID]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[sc.CandidateID] = struct{}{}
	}

	for _, sc := range scores {
		cp := *sc
		s.data[sc.CandidateID] = &cp
	}
	return nil
}

// GetByID retrieves the score for a candidate. Returns ErrNotFound if not exists.
func (s *ScoreStore) GetByID(_ context.Context, candidateID string) (*domain.Score, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sc, exists := s.data[candidateID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	cp := *sc
	return &cp, nil
}

// GetByTimeRange retrieves scores computed within [start, end] (inclusive).
func (s *ScoreStore) GetByTimeRange(_ context.Context, start, end int64) ([]*domain.Score, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Score
	for _, sc := range s.data {
		if sc.ComputedAt >= start && sc.ComputedAt <= end {
			cp := *sc
			result = append(result, &cp)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].ComputedAt != result[j].ComputedAt {
			return result[i].ComputedAt < result[j].ComputedAt
		}
		return result[i].CandidateID < result[j].CandidateID
	})
	return result, nil
}

// Verify interface compliance at compile time.
var (
	_ storage.ScoreStore        = (*ScoreStore)(nil)
	_ storage.ScoreHistoryStore = (*ScoreStore)(nil)
)
