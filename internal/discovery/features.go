package discovery

import (
	"math"

	"graduation-engine/internal/domain"
	"graduation-engine/internal/ingestion"
	"graduation-engine/internal/solana"
)

// NormalizeFeatures builds a FeatureSnapshot from a raw event.
// Absent inputs take gate-failing values and are listed in Missing:
// zero liquidity, 100% concentration, no lock, zero reputation.
func NormalizeFeatures(raw *ingestion.RawEvent) domain.FeatureSnapshot {
	f := domain.FeatureSnapshot{Version: domain.FeatureSnapshotVersion}
	missing := func(name string) { f.Missing = append(f.Missing, name) }

	if raw.LiquidityUSD != nil {
		f.LiquidityUSD = nonNegative(*raw.LiquidityUSD)
	} else {
		missing(FeatureLiquidity)
	}

	if raw.PriceUSD != nil {
		f.PriceUSD = nonNegative(*raw.PriceUSD)
	} else {
		missing(FeaturePrice)
	}

	if raw.HolderCount != nil && *raw.HolderCount > 0 {
		f.HolderCount = *raw.HolderCount
	} else if raw.HolderCount == nil {
		missing(FeatureHolderCount)
	}

	if raw.Top10Pct != nil {
		f.Top10Pct = clampPct(*raw.Top10Pct, 100)
	} else {
		f.Top10Pct = 100
		missing(FeatureTop10)
	}

	if raw.SniperPct != nil {
		f.SniperPct = clampPct(*raw.SniperPct, 100)
	} else {
		f.SniperPct = 100
		missing(FeatureSniper)
	}

	if raw.LPLock != nil {
		f.LPLock = normalizeLock(raw.LPLock, raw.Pool, missing)
	} else {
		missing(FeatureLPLock)
	}

	if raw.CreatorReputation != nil {
		f.CreatorReputation = clampPct(*raw.CreatorReputation, 0)
	} else {
		missing(FeatureCreatorReputation)
	}

	if raw.Momentum != nil {
		f.Momentum = domain.Momentum{
			Buys5m:         max(raw.Momentum.Buys5m, 0),
			Sells5m:        max(raw.Momentum.Sells5m, 0),
			VolumeUSD5m:    nonNegative(raw.Momentum.VolumeUSD5m),
			PriceChangePct: finite(raw.Momentum.PriceChangePct),
		}
	} else {
		missing(FeatureMomentum)
	}

	return f
}

func normalizeLock(raw *ingestion.RawLPLock, pool string, missing func(string)) domain.LPLock {
	lock := domain.LPLock{
		Burned:        raw.Burned,
		LockerProgram: raw.LockerProgram,
		LockAccount:   raw.LockAccount,
	}
	if raw.LockedPct != nil {
		lock.LockedPct = clampPct(*raw.LockedPct, 0)
	}
	if raw.DurationDays != nil {
		lock.DurationDays = nonNegative(*raw.DurationDays)
	} else if !raw.Burned {
		missing(FeatureLockDuration)
	}
	if raw.LockerReputation != nil {
		lock.LockerReputation = clampPct(*raw.LockerReputation, 0)
	} else if !raw.Burned {
		missing(FeatureLockerReputation)
	}
	lock.Verified = solana.VerifyLockAccount(raw.LockerProgram, pool, raw.LockAccount)
	return lock
}

// clampPct clips v to [0,100]. NaN maps to onNaN, which callers set to the gate-failing value.
func clampPct(v, onNaN float64) float64 {
	if math.IsNaN(v) {
		return onNaN
	}
	return math.Max(0, math.Min(100, v))
}

func nonNegative(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
