package domain

// FeatureSnapshotVersion is the layout version of FeatureSnapshot.
// Bump it when a field is added or its meaning changes.
const FeatureSnapshotVersion = 2

// Candidate represents a token proposed for trading evaluation.
// Immutable once created. A new epoch supersedes it when the same mint
// reappears after the cool-down.
type Candidate struct {
	CandidateID  string          // deterministic hash of (mint, epoch)
	Mint         string          // token address
	Epoch        int             // 1-based reappearance counter per mint
	Pool         *string         // liquidity pool address (nullable)
	Source       Source          // feed the event arrived from
	DiscoveredAt int64           // Unix timestamp in milliseconds
	Features     FeatureSnapshot // raw feature snapshot at discovery
	CreatedAt    int64           // record creation timestamp (ms)
}

// FeatureSnapshot holds the features every gate and score reads.
// Missing inputs are normalized to gate-failing values, never to passing ones.
type FeatureSnapshot struct {
	Version int

	LiquidityUSD float64 // pool liquidity in USD
	PriceUSD     float64 // last observed token price in USD

	// Holder distribution
	HolderCount int
	Top10Pct    float64 // % of supply held by the top 10 holders (0-100)
	SniperPct   float64 // % of supply held by sniper/bundler wallets (0-100)

	LPLock LPLock

	CreatorReputation float64 // 0-100

	Momentum Momentum

	// Missing lists the optional inputs that were absent and defaulted.
	Missing []string
}

// LPLock describes how the pool's LP tokens are locked.
type LPLock struct {
	LockedPct        float64 // % of LP supply locked (0-100)
	DurationDays     float64 // remaining lock duration in days
	Burned           bool    // LP tokens burned (permanent lock)
	LockerProgram    string  // locker program address
	LockAccount      string  // lock record account address
	LockerReputation float64 // 0-100
	Verified         bool    // lock account matches the locker's derived address
}

// Momentum summarizes early trading activity.
type Momentum struct {
	Buys5m         int
	Sells5m        int
	VolumeUSD5m    float64
	PriceChangePct float64
}

// HasPermanentLock reports whether the LP can never be withdrawn.
func (l LPLock) HasPermanentLock() bool {
	return l.Burned
}

// EffectiveDays returns the lock duration a gate may rely on.
// Unverified locks count as zero days; burned LP counts as unbounded.
func (l LPLock) EffectiveDays() float64 {
	if l.Burned {
		return maxLockDays
	}
	if !l.Verified {
		return 0
	}
	return l.DurationDays
}

// maxLockDays stands in for an unbounded lock.
const maxLockDays = 36500
