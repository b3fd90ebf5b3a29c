package memory

import (
	"context"
	"sort"
	"sync"

	"graduation-engine/internal/domain"
	"graduation-engine/internal/storage"
)

// CandidateStore keeps candidates in memory with the same keys as the
// Postgres table: candidate_id is primary and (mint, epoch) is unique.
type CandidateStore struct {
	mu     sync.RWMutex
	byID   map[string]*domain.Candidate
	byMint map[string][]*domain.Candidate // epoch ascending
}

func NewCandidateStore() *CandidateStore {
	return &CandidateStore{
		byID:   make(map[string]*domain.Candidate),
		byMint: make(map[string][]*domain.Candidate),
	}
}

func (s *CandidateStore) Insert(_ context.Context, c *domain.Candidate) error {
	if c == nil || c.CandidateID == "" || c.Mint == "" || c.Epoch < 1 {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[c.CandidateID]; ok {
		return storage.ErrDuplicateKey
	}
	epochs := s.byMint[c.Mint]
	i := sort.Search(len(epochs), func(i int) bool { return epochs[i].Epoch >= c.Epoch })
	if i < len(epochs) && epochs[i].Epoch == c.Epoch {
		return storage.ErrDuplicateKey
	}

	stored := cloneCandidate(c)
	s.byID[c.CandidateID] = stored
	epochs = append(epochs, nil)
	copy(epochs[i+1:], epochs[i:])
	epochs[i] = stored
	s.byMint[c.Mint] = epochs
	return nil
}

func (s *CandidateStore) GetByID(_ context.Context, candidateID string) (*domain.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.byID[candidateID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneCandidate(c), nil
}

// GetByMint returns every epoch of mint, oldest first.
func (s *CandidateStore) GetByMint(_ context.Context, mint string) ([]*domain.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	epochs := s.byMint[mint]
	out := make([]*domain.Candidate, 0, len(epochs))
	for _, c := range epochs {
		out = append(out, cloneCandidate(c))
	}
	return out, nil
}

// GetByTimeRange returns candidates discovered in [start, end] ordered by
// discovery time, then candidate_id.
func (s *CandidateStore) GetByTimeRange(_ context.Context, start, end int64) ([]*domain.Candidate, error) {
	s.mu.RLock()
	var out []*domain.Candidate
	for _, c := range s.byID {
		if c.DiscoveredAt >= start && c.DiscoveredAt <= end {
			out = append(out, cloneCandidate(c))
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].DiscoveredAt != out[j].DiscoveredAt {
			return out[i].DiscoveredAt < out[j].DiscoveredAt
		}
		return out[i].CandidateID < out[j].CandidateID
	})
	return out, nil
}

// cloneCandidate deep-copies the pointer and slice fields callers could mutate.
func cloneCandidate(c *domain.Candidate) *domain.Candidate {
	cp := *c
	if c.Pool != nil {
		pool := *c.Pool
		cp.Pool = &pool
	}
	cp.Features.Missing = append([]string(nil), c.Features.Missing...)
	return &cp
}

var _ storage.CandidateStore = (*CandidateStore)(nil)
