package domain

// Score is the Graduation Score computed once per candidate.
type Score struct {
	CandidateID   string
	Mint          string
	Value         float64 // weighted composite in [0, 100]
	Components    ScoreComponents
	ConfigName    string
	ConfigVersion int
	ComputedAt    int64 // Unix timestamp in milliseconds
}

// ScoreComponents holds each sub-score, already clipped to [0, 100].
type ScoreComponents struct {
	LiquidityDepth     float64
	DistributionHealth float64
	LockDurability     float64
	Momentum           float64
}

// ScoreWeights are the composite weights; they must sum to 1.0.
type ScoreWeights struct {
	LiquidityDepth     float64 `mapstructure:"liquidity_depth"`
	DistributionHealth float64 `mapstructure:"distribution_health"`
	LockDurability     float64 `mapstructure:"lock_durability"`
	Momentum           float64 `mapstructure:"momentum"`
}

// Sum returns the total of all weights.
func (w ScoreWeights) Sum() float64 {
	return w.LiquidityDepth + w.DistributionHealth + w.LockDurability + w.Momentum
}
