package memory

import (
	"context"
	"sync"

	"graduation-engine/internal/domain"
	"graduation-engine/internal/storage"
)

// GateResultStore is an in-memory implementation of storage.GateResultStore.
type GateResultStore struct {
	mu   sync.RWMutex
	data map[string][]*domain.GateResult // keyed by candidate_id, in insertion order
}

// NewGateResultStore creates a new in-memory gate result store.
func NewGateResultStore() *GateResultStore {
	return &GateResultStore{
		data: make(map[string][]*domain.GateResult),
	}
}

// InsertBulk appends results atomically. Fails entire batch on duplicate (candidate_id, gate).
func (s *GateResultStore) InsertBulk(_ context.Context, results []*domain.GateResult) error {
	if len(results) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// First pass: check for duplicates (existing + intra-batch)
	batchKeys := make(map[[2]string]struct{}, len(results))
	for _, r := range results {
		if r == nil || r.CandidateID == "" || r.Gate == "" {
			return storage.ErrInvalidInput
		}
		key := [2]string{r.CandidateID, r.Gate}
		if _, dup := batchKeys[key]; dup {
			return storage.ErrDuplicateKey
		}
		for _, existing := range s.data[r.CandidateID] {
			if existing.Gate == r.Gate {
				return storage.ErrDuplicateKey
			}
		}
		batchKeys[key] = struct{}{}
	}

	// Second pass: insert all
	for _, r := range results {
		cp := *r
		s.data[r.CandidateID] = append(s.data[r.CandidateID], &cp)
	}
	return nil
}

// GetByCandidateID retrieves results for a candidate in evaluation order.
func (s *GateResultStore) GetByCandidateID(_ context.Context, candidateID string) ([]*domain.GateResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.data[candidateID]
	result := make([]*domain.GateResult, 0, len(stored))
	for _, r := range stored {
		cp := *r
		result = append(result, &cp)
	}
	return result, nil
}

// Verify interface compliance at compile time.
var _ storage.GateResultStore = (*GateResultStore)(nil)
