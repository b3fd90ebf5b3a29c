package memory

import (
	"context"
	"sort"
	"sync"

	"graduation-engine/internal/domain"
	"graduation-engine/internal/storage"
)

// PositionStore is an in-memory implementation of storage.PositionStore.
type PositionStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Position // keyed by position_id
}

// NewPositionStore creates a new in-memory position store.
func NewPositionStore() *PositionStore {
	return &PositionStore{
		data: make(map[string]*domain.Position),
	}
}

// Insert adds a new position. Returns ErrDuplicateKey if position_id exists.
func (s *PositionStore) Insert(_ context.Context, p *domain.Position) error {
	if p == nil || p.PositionID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[p.PositionID]; exists {
		return storage.ErrDuplicateKey
	}

	cp := *p
	s.data[p.PositionID] = &cp
	return nil
}

// Update replaces a stored position. Returns ErrNotFound if not exists.
func (s *PositionStore) Update(_ context.Context, p *domain.Position) error {
	if p == nil || p.PositionID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[p.PositionID]; !exists {
		return storage.ErrNotFound
	}

	cp := *p
	s.data[p.PositionID] = &cp
	return nil
}

// GetByID retrieves a position. Returns ErrNotFound if not exists.
func (s *PositionStore) GetByID(_ context.Context, positionID string) (*domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.data[positionID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// GetByMint retrieves all positions for a mint, ordered by opened_at ASC.
func (s *PositionStore) GetByMint(_ context.Context, mint string) ([]*domain.Position, error) {
	return s.filter(func(p *domain.Position) bool { return p.Mint == mint }, byOpenedAt), nil
}

// GetActive retrieves OPEN and CLOSING positions, ordered by opened_at ASC.
func (s *PositionStore) GetActive(_ context.Context) ([]*domain.Position, error) {
	return s.filter(func(p *domain.Position) bool { return p.IsActive() }, byOpenedAt), nil
}

// GetClosedByTimeRange retrieves positions closed within [start, end] (inclusive).
func (s *PositionStore) GetClosedByTimeRange(_ context.Context, start, end int64) ([]*domain.Position, error) {
	return s.filter(func(p *domain.Position) bool {
		return p.Status == domain.PositionClosed && p.ClosedAt >= start && p.ClosedAt <= end
	}, byClosedAt), nil
}

func (s *PositionStore) filter(keep func(*domain.Position) bool, less func(a, b *domain.Position) bool) []*domain.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Position
	for _, p := range s.data {
		if keep(p) {
			cp := *p
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return less(result[i], result[j]) })
	return result
}

func byOpenedAt(a, b *domain.Position) bool {
	if a.OpenedAt != b.OpenedAt {
		return a.OpenedAt < b.OpenedAt
	}
	return a.PositionID < b.PositionID
}

func byClosedAt(a, b *domain.Position) bool {
	if a.ClosedAt != b.ClosedAt {
		return a.ClosedAt < b.ClosedAt
	}
	return a.PositionID < b.PositionID
}

// TradeHistoryStore is an in-memory implementation of storage.TradeHistoryStore.
type TradeHistoryStore struct {
	mu     sync.RWMutex
	trades []*domain.Position
}

// NewTradeHistoryStore creates a new in-memory trade history store.
func NewTradeHistoryStore() *TradeHistoryStore {
	return &TradeHistoryStore{}
}

// InsertBulk appends closed-trade records. Only CLOSED positions are accepted.
func (s *TradeHistoryStore) InsertBulk(_ context.Context, positions []*domain.Position) error {
	for _, p := range positions {
		if p == nil || p.Status != domain.PositionClosed {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range positions {
		cp := *p
		s.trades = append(s.trades, &cp)
	}
	return nil
}

// GetByTimeRange retrieves trades closed within [start, end] (inclusive).
func (s *TradeHistoryStore) GetByTimeRange(_ context.Context, start, end int64) ([]*domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Position
	for _, p := range s.trades {
		if p.ClosedAt >= start && p.ClosedAt <= end {
			cp := *p
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return byClosedAt(result[i], result[j]) })
	return result, nil
}

// Verify interface compliance at compile time.
var (
	_ storage.PositionStore     = (*PositionStore)(nil)
	_ storage.TradeHistoryStore = (*TradeHistoryStore)(nil)
)
