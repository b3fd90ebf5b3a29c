package memory

import (
	"context"
	"sync"

	"graduation-engine/internal/storage"
)

// LedgerStateStore is an in-memory implementation of storage.LedgerStateStore.
type LedgerStateStore struct {
	mu    sync.RWMutex
	state *storage.LedgerState
}

// NewLedgerStateStore creates a new in-memory ledger state store.
func NewLedgerStateStore() *LedgerStateStore {
	return &LedgerStateStore{}
}

// Load returns the saved state. Returns ErrNotFound if nothing has been saved yet.
func (s *LedgerStateStore) Load(_ context.Context) (*storage.LedgerState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state == nil {
		return nil, storage.ErrNotFound
	}
	cp := *s.state
	return &cp, nil
}

// Save replaces the saved state.
func (s *LedgerStateStore) Save(_ context.Context, state *storage.LedgerState) error {
	if state == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *state
	s.state = &cp
	return nil
}

// Verify interface compliance at compile time.
var _ storage.LedgerStateStore = (*LedgerStateStore)(nil)
