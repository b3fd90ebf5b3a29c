package ingestion

// RawEvent is a "new token liquidity" event as delivered by a feed.
// Optional inputs are pointers so an absent value is distinguishable from zero.
type RawEvent struct {
	Mint       string `json:"mint"`
	Pool       string `json:"pool,omitempty"`
	ObservedAt int64  `json:"observed_at"` // Unix timestamp in milliseconds

	LiquidityUSD *float64 `json:"liquidity_usd,omitempty"`
	PriceUSD     *float64 `json:"price_usd,omitempty"`

	HolderCount *int     `json:"holder_count,omitempty"`
	Top10Pct    *float64 `json:"top10_pct,omitempty"`
	SniperPct   *float64 `json:"sniper_pct,omitempty"`

	LPLock *RawLPLock `json:"lp_lock,omitempty"`

	CreatorReputation *float64 `json:"creator_reputation,omitempty"`

	Momentum *RawMomentum `json:"momentum,omitempty"`

	// Source is set by the feed that produced the event, not by the payload.
	Source string `json:"-"`
}

// RawLPLock is the LP lock block of a raw event.
type RawLPLock struct {
	LockedPct        *float64 `json:"locked_pct,omitempty"`
	DurationDays     *float64 `json:"duration_days,omitempty"`
	Burned           bool     `json:"burned,omitempty"`
	LockerProgram    string   `json:"locker_program,omitempty"`
	LockAccount      string   `json:"lock_account,omitempty"`
	LockerReputation *float64 `json:"locker_reputation,omitempty"`
}

// RawMomentum is the early trading activity block of a raw event.
type RawMomentum struct {
	Buys5m         int     `json:"buys_5m"`
	Sells5m        int     `json:"sells_5m"`
	VolumeUSD5m    float64 `json:"volume_usd_5m"`
	PriceChangePct float64 `json:"price_change_pct"`
}

// PriceTick is one observed token price.
type PriceTick struct {
	Mint       string  `json:"mint"`
	PriceUSD   float64 `json:"price_usd"`
	ObservedAt int64   `json:"observed_at"` // Unix timestamp in milliseconds
}
