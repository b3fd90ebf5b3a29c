package gate

import "graduation-engine/internal/domain"

// DefaultGates returns the admission gates in their fixed order.
func DefaultGates() []Gate {
	return []Gate{
		{Name: domain.GateMinLiquidity, Check: minLiquidity},
		{Name: domain.GateMaxSniperPct, Check: maxSniperPct},
		{Name: domain.GateMaxTop10Pct, Check: maxTop10Pct},
		{Name: domain.GateMinLPLockDays, Check: minLPLockDays},
		{Name: domain.GateMinLockerReputation, Check: minLockerReputation},
		{Name: domain.GateMinCreatorReputation, Check: minCreatorReputation},
	}
}

// atLeast passes when observed >= threshold.
func atLeast(observed, threshold float64, failReason string) Check {
	return verdict(observed, threshold, observed-threshold, failReason)
}

// atMost passes when observed <= threshold.
func atMost(observed, threshold float64, failReason string) Check {
	return verdict(observed, threshold, threshold-observed, failReason)
}

func verdict(observed, threshold, margin float64, failReason string) Check {
	c := Check{
		Passed:    margin >= 0,
		Observed:  observed,
		Threshold: threshold,
		Margin:    margin,
		Reason:    domain.ReasonPass,
	}
	if !c.Passed {
		c.Reason = failReason
	}
	return c
}

func minLiquidity(f domain.FeatureSnapshot, t domain.GateThresholds) Check {
	return atLeast(f.LiquidityUSD, t.MinLiquidityUSD, domain.ReasonLiquidityTooLow)
}

func maxSniperPct(f domain.FeatureSnapshot, t domain.GateThresholds) Check {
	return atMost(f.SniperPct, t.MaxSniperPct, domain.ReasonSniperTooHigh)
}

func maxTop10Pct(f domain.FeatureSnapshot, t domain.GateThresholds) Check {
	return atMost(f.Top10Pct, t.MaxTop10Pct, domain.ReasonTop10TooHigh)
}

// minLPLockDays treats burned LP as an unbounded lock and an unverified lock as none.
func minLPLockDays(f domain.FeatureSnapshot, t domain.GateThresholds) Check {
	return atLeast(f.LPLock.EffectiveDays(), t.MinLPLockDays, domain.ReasonLockTooShort)
}

// minLockerReputation passes burned LP outright: no locker holds it.
func minLockerReputation(f domain.FeatureSnapshot, t domain.GateThresholds) Check {
	if f.LPLock.HasPermanentLock() {
		return atLeast(100, t.MinLockerReputation, domain.ReasonLockerUntrusted)
	}
	return atLeast(f.LPLock.LockerReputation, t.MinLockerReputation, domain.ReasonLockerUntrusted)
}

func minCreatorReputation(f domain.FeatureSnapshot, t domain.GateThresholds) Check {
	return atLeast(f.CreatorReputation, t.MinCreatorReputation, domain.ReasonCreatorUntrusted)
}
