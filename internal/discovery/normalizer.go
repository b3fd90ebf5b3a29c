package discovery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"graduation-engine/internal/domain"
	"graduation-engine/internal/idhash"
	"graduation-engine/internal/ingestion"
	"graduation-engine/internal/solana"
	"graduation-engine/internal/storage"
)

// ErrInvalidEvent is returned for raw events that cannot become candidates.
var ErrInvalidEvent = errors.New("invalid event")

// Names recorded in FeatureSnapshot.Missing.
const (
	FeatureLiquidity         = "liquidity_usd"
	FeaturePrice             = "price_usd"
	FeatureHolderCount       = "holder_count"
	FeatureTop10             = "top10_pct"
	FeatureSniper            = "sniper_pct"
	FeatureLPLock            = "lp_lock"
	FeatureLockDuration      = "lp_lock.duration_days"
	FeatureLockerReputation  = "lp_lock.locker_reputation"
	FeatureCreatorReputation = "creator_reputation"
	FeatureMomentum          = "momentum"
)

// mintState tracks the current epoch of a mint.
type mintState struct {
	epoch    int
	lastSeen int64 // ms; refreshed by every sighting, including dropped duplicates
}

// mintLock serializes events of one mint; refs counts holders and waiters.
type mintLock struct {
	mu   sync.Mutex
	refs int
}

// Normalizer turns raw feed events into canonical candidates and assigns epochs.
// A mint seen again within the cool-down is a duplicate; after it, a new epoch opens.
// Events of the same mint are serialized; store I/O for different mints runs
// concurrently. mu guards only the maps.
type Normalizer struct {
	mu     sync.Mutex
	mints  map[string]*mintState
	locks  map[string]*mintLock
	store  storage.CandidateStore
	now    func() time.Time
	logger *zap.Logger
}

// NormalizerOptions contains configuration for creating a Normalizer.
type NormalizerOptions struct {
	Store  storage.CandidateStore // optional; enables persistence and epoch rehydration
	Now    func() time.Time       // Default: time.Now
	Logger *zap.Logger
}

// NewNormalizer creates a new candidate normalizer.
func NewNormalizer(opts NormalizerOptions) *Normalizer {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{
		mints:  make(map[string]*mintState),
		locks:  make(map[string]*mintLock),
		store:  opts.Store,
		now:    now,
		logger: logger.Named("normalizer"),
	}
}

// Normalize converts a raw event into a Candidate.
// Returns (nil, nil) when the event is a duplicate within the cool-down.
// Returns ErrInvalidEvent for malformed addresses or timestamps.
func (n *Normalizer) Normalize(ctx context.Context, raw *ingestion.RawEvent, cooldown time.Duration) (*domain.Candidate, error) {
	if raw == nil {
		return nil, fmt.Errorf("%w: nil event", ErrInvalidEvent)
	}
	if err := solana.ValidateAddress(raw.Mint); err != nil {
		return nil, fmt.Errorf("%w: mint %q: %v", ErrInvalidEvent, raw.Mint, err)
	}
	if raw.Pool != "" {
		if err := solana.ValidateAddress(raw.Pool); err != nil {
			return nil, fmt.Errorf("%w: pool %q: %v", ErrInvalidEvent, raw.Pool, err)
		}
	}

	nowMs := n.now().UnixMilli()
	observedAt := raw.ObservedAt
	if observedAt <= 0 {
		observedAt = nowMs
	}

	unlock := n.lockMint(raw.Mint)
	defer unlock()

	state, err := n.stateFor(ctx, raw.Mint)
	if err != nil {
		return nil, err
	}

	if state != nil && observedAt-state.lastSeen < cooldown.Milliseconds() {
		if observedAt > state.lastSeen {
			n.setState(raw.Mint, mintState{epoch: state.epoch, lastSeen: observedAt})
		}
		n.logger.Debug("duplicate within cool-down",
			zap.String("mint", raw.Mint),
			zap.Int("epoch", state.epoch))
		return nil, nil
	}

	epoch := 1
	if state != nil {
		epoch = state.epoch + 1
	}

	source, _ := domain.ParseSource(raw.Source)

	var pool *string
	if raw.Pool != "" {
		p := raw.Pool
		pool = &p
	}

	candidate := &domain.Candidate{
		CandidateID:  idhash.ComputeCandidateID(raw.Mint, epoch),
		Mint:         raw.Mint,
		Epoch:        epoch,
		Pool:         pool,
		Source:       source,
		DiscoveredAt: observedAt,
		Features:     NormalizeFeatures(raw),
		CreatedAt:    nowMs,
	}

	if n.store != nil {
		if err := n.store.Insert(ctx, candidate); err != nil {
			if errors.Is(err, storage.ErrDuplicateKey) {
				// Another process opened this epoch first
				n.setState(raw.Mint, mintState{epoch: epoch, lastSeen: observedAt})
				return nil, nil
			}
			return nil, fmt.Errorf("insert candidate: %w", err)
		}
	}

	n.setState(raw.Mint, mintState{epoch: epoch, lastSeen: observedAt})
	return candidate, nil
}

// lockMint takes the per-mint lock and returns its release.
func (n *Normalizer) lockMint(mint string) func() {
	n.mu.Lock()
	l, ok := n.locks[mint]
	if !ok {
		l = &mintLock{}
		n.locks[mint] = l
	}
	l.refs++
	n.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		n.mu.Lock()
		if l.refs--; l.refs == 0 {
			delete(n.locks, mint)
		}
		n.mu.Unlock()
	}
}

func (n *Normalizer) setState(mint string, st mintState) {
	n.mu.Lock()
	n.mints[mint] = &st
	n.mu.Unlock()
}

// stateFor returns a copy of the tracked state for a mint, rehydrating it
// from the store on first sight. Returns nil for a never-seen mint.
// The caller holds the mint's lock.
func (n *Normalizer) stateFor(ctx context.Context, mint string) (*mintState, error) {
	n.mu.Lock()
	st, ok := n.mints[mint]
	n.mu.Unlock()
	if ok {
		cp := *st
		return &cp, nil
	}
	if n.store == nil {
		return nil, nil
	}

	existing, err := n.store.GetByMint(ctx, mint)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("load mint history: %w", err)
	}
	if len(existing) == 0 {
		return nil, nil
	}

	last := existing[len(existing)-1]
	loaded := mintState{epoch: last.Epoch, lastSeen: last.DiscoveredAt}
	n.setState(mint, loaded)
	return &loaded, nil
}

// Epoch returns the current epoch of a mint, 0 if never seen in this process.
func (n *Normalizer) Epoch(mint string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	if st, ok := n.mints[mint]; ok {
		return st.epoch
	}
	return 0
}

// Reset clears the in-memory epoch cache.
// Useful for replay scenarios where epochs are re-derived from storage state.
func (n *Normalizer) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.mints = make(map[string]*mintState)
}
