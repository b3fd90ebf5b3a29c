package domain

// Gate names in evaluation order.
const (
	GateMinLiquidity         = "min_liquidity"
	GateMaxSniperPct         = "max_sniper_pct"
	GateMaxTop10Pct          = "max_top10_pct"
	GateMinLPLockDays        = "min_lp_lock_days"
	GateMinLockerReputation  = "min_locker_reputation"
	GateMinCreatorReputation = "min_creator_reputation"
)

// Gate reason codes.
const (
	ReasonPass             = "PASS"
	ReasonLiquidityTooLow  = "LIQUIDITY_TOO_LOW"
	ReasonSniperTooHigh    = "SNIPER_CONCENTRATION_TOO_HIGH"
	ReasonTop10TooHigh     = "TOP10_CONCENTRATION_TOO_HIGH"
	ReasonLockTooShort     = "LP_LOCK_TOO_SHORT"
	ReasonLockerUntrusted  = "LOCKER_REPUTATION_TOO_LOW"
	ReasonCreatorUntrusted = "CREATOR_REPUTATION_TOO_LOW"
)

// GateResult records one gate evaluation for a candidate.
// Append-only; retained for audit.
type GateResult struct {
	CandidateID string
	Gate        string
	Passed      bool
	Margin      float64 // signed distance from threshold, >= 0 on the passing side
	Observed    float64
	Threshold   float64
	Reason      string
	EvaluatedAt int64 // Unix timestamp in milliseconds
}

// GateOutcome is the result of running the gate pipeline.
// Results only contains gates that actually ran.
type GateOutcome struct {
	Passed  bool
	Results []GateResult
}

// FailedGate returns the failing result, or nil if all gates passed.
func (o GateOutcome) FailedGate() *GateResult {
	for i := range o.Results {
		if !o.Results[i].Passed {
			return &o.Results[i]
		}
	}
	return nil
}
