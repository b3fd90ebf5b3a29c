package config

import (
	"sync/atomic"

	"graduation-engine/internal/domain"
)

// Store holds the active trading configuration. Readers take a snapshot per
// candidate, so a swap only affects candidates processed after it.
type Store struct {
	current atomic.Pointer[domain.TradingConfig]
}

// NewStore creates a store holding cfg. cfg must already be valid.
func NewStore(cfg domain.TradingConfig) *Store {
	s := &Store{}
	s.current.Store(&cfg)
	return s
}

// Load returns the active configuration.
func (s *Store) Load() domain.TradingConfig {
	return *s.current.Load()
}

// Swap validates and installs cfg. The version must move forward.
func (s *Store) Swap(cfg domain.TradingConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	for {
		old := s.current.Load()
		if cfg.Name == old.Name && cfg.Version <= old.Version {
			return domain.Reject(domain.ErrConfiguration, "STALE_VERSION",
				"version must increase for the same config name")
		}
		next := cfg
		if s.current.CompareAndSwap(old, &next) {
			return nil
		}
	}
}
