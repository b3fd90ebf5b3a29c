package domain

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

// weightTolerance bounds floating-point drift in the weight sum.
const weightTolerance = 1e-9

// TradingConfig is the named, versioned set of thresholds used for a run.
// Read-only once loaded; a replacement applies only to candidates processed
// after the swap.
type TradingConfig struct {
	Name    string `mapstructure:"name"`
	Version int    `mapstructure:"version"`

	Gates     GateThresholds  `mapstructure:"gates"`
	Scoring   ScoringConfig   `mapstructure:"scoring"`
	Sizing    SizingConfig    `mapstructure:"sizing"`
	Execution ExecutionConfig `mapstructure:"execution"`
	Exit      ExitRules       `mapstructure:"exit"`

	// CandidateCooldown is how long a mint must stay quiet before a new epoch opens.
	CandidateCooldown time.Duration `mapstructure:"candidate_cooldown"`
}

// GateThresholds are the admission gate limits. Percentages are 0-100.
type GateThresholds struct {
	MinLiquidityUSD      float64 `mapstructure:"min_liquidity_usd"`
	MaxSniperPct         float64 `mapstructure:"max_sniper_pct"`
	MaxTop10Pct          float64 `mapstructure:"max_top10_pct"`
	MinLPLockDays        float64 `mapstructure:"min_lp_lock_days"`
	MinLockerReputation  float64 `mapstructure:"min_locker_reputation"`
	MinCreatorReputation float64 `mapstructure:"min_creator_reputation"`
}

// ScoringConfig parameterizes the Graduation Score.
type ScoringConfig struct {
	Cutoff  float64      `mapstructure:"cutoff"`
	Weights ScoreWeights `mapstructure:"weights"`

	LiquidityFloorUSD       float64 `mapstructure:"liquidity_floor_usd"`  // sub-score 0
	LiquidityTargetUSD      float64 `mapstructure:"liquidity_target_usd"` // sub-score 100
	Top10Penalty            float64 `mapstructure:"top10_penalty"`        // points per top-10 %
	SniperPenalty           float64 `mapstructure:"sniper_penalty"`       // points per sniper %
	TargetLockDays          float64 `mapstructure:"target_lock_days"`
	MomentumVolumeTargetUSD float64 `mapstructure:"momentum_volume_target_usd"`
}

// SizingConfig holds capital and risk caps. Pct fields are fractions (0.005 = 0.5%).
type SizingConfig struct {
	TotalCapitalUSD        float64     `mapstructure:"total_capital_usd"`
	KellyFraction          float64     `mapstructure:"kelly_fraction"`
	PerTradeCapPct         float64     `mapstructure:"per_trade_cap_pct"`
	GlobalExposureCapPct   float64     `mapstructure:"global_exposure_cap_pct"`
	MaxConcurrentPositions int         `mapstructure:"max_concurrent_positions"`
	DailyLossCapPct        float64     `mapstructure:"daily_loss_cap_pct"`
	MinOrderUSD            float64     `mapstructure:"min_order_usd"`
	Bands                  []KellyBand `mapstructure:"bands"`
}

// KellyBand maps scores >= MinScore to an assumed win probability and payoff ratio.
type KellyBand struct {
	MinScore float64 `mapstructure:"min_score"`
	WinProb  float64 `mapstructure:"win_prob"`
	Payoff   float64 `mapstructure:"payoff"` // average win / average loss
}

// FullKelly returns the theoretical optimal-growth stake fraction p - (1-p)/b.
func (b KellyBand) FullKelly() float64 {
	return b.WinProb - (1-b.WinProb)/b.Payoff
}

// ExecutionConfig controls order routing.
type ExecutionConfig struct {
	MaxSlippageBps        int           `mapstructure:"max_slippage_bps"`
	PaperSlippageBps      int           `mapstructure:"paper_slippage_bps"`
	PriorityFeePercentile int           `mapstructure:"priority_fee_percentile"` // 0 disables
	Timeout               time.Duration `mapstructure:"timeout"`
	IdempotencyTTL        time.Duration `mapstructure:"idempotency_ttl"`
}

// ExitRules are the per-position exit triggers. Pct fields are fractions.
type ExitRules struct {
	StopLossPct     float64       `mapstructure:"stop_loss_pct"`
	TakeProfitPct   float64       `mapstructure:"take_profit_pct"`
	TrailingStopPct float64       `mapstructure:"trailing_stop_pct"`
	MaxHold         time.Duration `mapstructure:"max_hold"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
}

// BandFor returns the Kelly band for a score: the band with the highest
// MinScore not above the score. Bands must be sorted (Validate enforces it).
func (c SizingConfig) BandFor(score float64) (KellyBand, bool) {
	idx := sort.Search(len(c.Bands), func(i int) bool {
		return c.Bands[i].MinScore > score
	})
	if idx == 0 {
		return KellyBand{}, false
	}
	return c.Bands[idx-1], true
}

// DefaultKellyBands is the score-band policy used when none is configured.
// Full Kelly rises monotonically with the band.
func DefaultKellyBands() []KellyBand {
	return []KellyBand{
		{MinScore: 0, WinProb: 0.45, Payoff: 1.5},
		{MinScore: 60, WinProb: 0.50, Payoff: 1.8},
		{MinScore: 70, WinProb: 0.55, Payoff: 2.0},
		{MinScore: 80, WinProb: 0.58, Payoff: 2.2},
		{MinScore: 90, WinProb: 0.62, Payoff: 2.5},
	}
}

// DefaultTradingConfig returns the baseline configuration.
func DefaultTradingConfig() TradingConfig {
	return TradingConfig{
		Name:    "default",
		Version: 1,
		Gates: GateThresholds{
			MinLiquidityUSD:      20000,
			MaxSniperPct:         35,
			MaxTop10Pct:          60,
			MinLPLockDays:        30,
			MinLockerReputation:  50,
			MinCreatorReputation: 0,
		},
		Scoring: ScoringConfig{
			Cutoff: 70,
			Weights: ScoreWeights{
				LiquidityDepth:     0.30,
				DistributionHealth: 0.30,
				LockDurability:     0.25,
				Momentum:           0.15,
			},
			LiquidityFloorUSD:       5000,
			LiquidityTargetUSD:      50000,
			Top10Penalty:            0.5,
			SniperPenalty:           1.0,
			TargetLockDays:          60,
			MomentumVolumeTargetUSD: 25000,
		},
		Sizing: SizingConfig{
			TotalCapitalUSD:        100000,
			KellyFraction:          0.20,
			PerTradeCapPct:         0.005,
			GlobalExposureCapPct:   0.50,
			MaxConcurrentPositions: 5,
			DailyLossCapPct:        0.02,
			MinOrderUSD:            25,
			Bands:                  DefaultKellyBands(),
		},
		Execution: ExecutionConfig{
			MaxSlippageBps:        300,
			PaperSlippageBps:      100,
			PriorityFeePercentile: 75,
			Timeout:               20 * time.Second,
			IdempotencyTTL:        24 * time.Hour,
		},
		Exit: ExitRules{
			StopLossPct:     0.25,
			TakeProfitPct:   1.00,
			TrailingStopPct: 0.20,
			MaxHold:         4 * time.Hour,
			PollInterval:    2 * time.Second,
		},
		CandidateCooldown: 30 * time.Minute,
	}
}

// Validate checks every threshold and returns all problems joined,
// wrapped in ErrConfiguration.
func (c TradingConfig) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Name == "" {
		add("name is required")
	}
	if c.Version <= 0 {
		add("version must be positive, got %d", c.Version)
	}
	// NaN passes every range comparison below, so non-finite values are
	// rejected up front.
	for _, name := range c.nonFinite() {
		add("%s must be a finite number", name)
	}

	g := c.Gates
	if g.MinLiquidityUSD < 0 {
		add("gates.min_liquidity_usd must be >= 0")
	}
	if !inPercentRange(g.MaxSniperPct) {
		add("gates.max_sniper_pct must be within [0,100], got %v", g.MaxSniperPct)
	}
	if !inPercentRange(g.MaxTop10Pct) {
		add("gates.max_top10_pct must be within [0,100], got %v", g.MaxTop10Pct)
	}
	if g.MinLPLockDays < 0 {
		add("gates.min_lp_lock_days must be >= 0")
	}
	if !inPercentRange(g.MinLockerReputation) {
		add("gates.min_locker_reputation must be within [0,100]")
	}
	if !inPercentRange(g.MinCreatorReputation) {
		add("gates.min_creator_reputation must be within [0,100]")
	}

	s := c.Scoring
	if !inPercentRange(s.Cutoff) {
		add("scoring.cutoff must be within [0,100], got %v", s.Cutoff)
	}
	w := s.Weights
	if w.LiquidityDepth < 0 || w.DistributionHealth < 0 || w.LockDurability < 0 || w.Momentum < 0 {
		add("scoring.weights must be non-negative")
	}
	if math.Abs(w.Sum()-1.0) > weightTolerance {
		add("scoring.weights must sum to 1.0, got %v", w.Sum())
	}
	if s.LiquidityFloorUSD <= 0 || s.LiquidityTargetUSD <= s.LiquidityFloorUSD {
		add("scoring liquidity scale requires 0 < floor < target")
	}
	if s.Top10Penalty < 0 || s.SniperPenalty < 0 {
		add("scoring penalties must be >= 0")
	}
	if s.TargetLockDays <= 0 {
		add("scoring.target_lock_days must be positive")
	}
	if s.MomentumVolumeTargetUSD <= 0 {
		add("scoring.momentum_volume_target_usd must be positive")
	}

	z := c.Sizing
	if z.TotalCapitalUSD <= 0 {
		add("sizing.total_capital_usd must be positive")
	}
	if z.KellyFraction <= 0 || z.KellyFraction > 1 {
		add("sizing.kelly_fraction must be within (0,1], got %v", z.KellyFraction)
	}
	if z.PerTradeCapPct <= 0 || z.PerTradeCapPct > 1 {
		add("sizing.per_trade_cap_pct must be within (0,1]")
	}
	if z.GlobalExposureCapPct <= 0 || z.GlobalExposureCapPct > 1 {
		add("sizing.global_exposure_cap_pct must be within (0,1]")
	}
	if z.MaxConcurrentPositions <= 0 {
		add("sizing.max_concurrent_positions must be positive")
	}
	if z.DailyLossCapPct <= 0 || z.DailyLossCapPct > 1 {
		add("sizing.daily_loss_cap_pct must be within (0,1]")
	}
	if z.MinOrderUSD < 0 {
		add("sizing.min_order_usd must be >= 0")
	}
	errs = append(errs, validateBands(z.Bands)...)

	e := c.Execution
	if e.MaxSlippageBps <= 0 || e.MaxSlippageBps > 10000 {
		add("execution.max_slippage_bps must be within (0,10000]")
	}
	if e.PaperSlippageBps < 0 || e.PaperSlippageBps > e.MaxSlippageBps {
		add("execution.paper_slippage_bps must be within [0,max_slippage_bps]")
	}
	if e.PriorityFeePercentile < 0 || e.PriorityFeePercentile > 100 {
		add("execution.priority_fee_percentile must be within [0,100]")
	}
	if e.Timeout <= 0 {
		add("execution.timeout must be positive")
	}
	if e.IdempotencyTTL <= 0 {
		add("execution.idempotency_ttl must be positive")
	}

	x := c.Exit
	if x.StopLossPct <= 0 || x.StopLossPct >= 1 {
		add("exit.stop_loss_pct must be within (0,1)")
	}
	if x.TakeProfitPct <= 0 {
		add("exit.take_profit_pct must be positive")
	}
	if x.TrailingStopPct < 0 || x.TrailingStopPct >= 1 {
		add("exit.trailing_stop_pct must be within [0,1)")
	}
	if x.MaxHold <= 0 {
		add("exit.max_hold must be positive")
	}
	if x.PollInterval <= 0 {
		add("exit.poll_interval must be positive")
	}

	if c.CandidateCooldown < 0 {
		add("candidate_cooldown must be >= 0")
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrConfiguration, errors.Join(errs...))
}

// validateBands requires sorted bands with monotonic full-Kelly stakes.
func validateBands(bands []KellyBand) []error {
	if len(bands) == 0 {
		return []error{errors.New("sizing.bands must not be empty")}
	}
	var errs []error
	for i, b := range bands {
		if b.WinProb <= 0 || b.WinProb >= 1 {
			errs = append(errs, fmt.Errorf("sizing.bands[%d].win_prob must be within (0,1)", i))
		}
		if b.Payoff <= 0 {
			errs = append(errs, fmt.Errorf("sizing.bands[%d].payoff must be positive", i))
		}
		if i == 0 {
			continue
		}
		prev := bands[i-1]
		if b.MinScore <= prev.MinScore {
			errs = append(errs, fmt.Errorf("sizing.bands[%d].min_score must be greater than previous band", i))
		}
		if b.Payoff > 0 && prev.Payoff > 0 && b.FullKelly() < prev.FullKelly() {
			errs = append(errs, fmt.Errorf("sizing.bands[%d] full kelly decreases (not monotonic)", i))
		}
	}
	return errs
}

// nonFinite names every float threshold that is NaN or infinite.
func (c TradingConfig) nonFinite() []string {
	fields := []struct {
		name string
		v    float64
	}{
		{"gates.min_liquidity_usd", c.Gates.MinLiquidityUSD},
		{"gates.max_sniper_pct", c.Gates.MaxSniperPct},
		{"gates.max_top10_pct", c.Gates.MaxTop10Pct},
		{"gates.min_lp_lock_days", c.Gates.MinLPLockDays},
		{"gates.min_locker_reputation", c.Gates.MinLockerReputation},
		{"gates.min_creator_reputation", c.Gates.MinCreatorReputation},
		{"scoring.cutoff", c.Scoring.Cutoff},
		{"scoring.weights.liquidity_depth", c.Scoring.Weights.LiquidityDepth},
		{"scoring.weights.distribution_health", c.Scoring.Weights.DistributionHealth},
		{"scoring.weights.lock_durability", c.Scoring.Weights.LockDurability},
		{"scoring.weights.momentum", c.Scoring.Weights.Momentum},
		{"scoring.liquidity_floor_usd", c.Scoring.LiquidityFloorUSD},
		{"scoring.liquidity_target_usd", c.Scoring.LiquidityTargetUSD},
		{"scoring.top10_penalty", c.Scoring.Top10Penalty},
		{"scoring.sniper_penalty", c.Scoring.SniperPenalty},
		{"scoring.target_lock_days", c.Scoring.TargetLockDays},
		{"scoring.momentum_volume_target_usd", c.Scoring.MomentumVolumeTargetUSD},
		{"sizing.total_capital_usd", c.Sizing.TotalCapitalUSD},
		{"sizing.kelly_fraction", c.Sizing.KellyFraction},
		{"sizing.per_trade_cap_pct", c.Sizing.PerTradeCapPct},
		{"sizing.global_exposure_cap_pct", c.Sizing.GlobalExposureCapPct},
		{"sizing.daily_loss_cap_pct", c.Sizing.DailyLossCapPct},
		{"sizing.min_order_usd", c.Sizing.MinOrderUSD},
		{"exit.stop_loss_pct", c.Exit.StopLossPct},
		{"exit.take_profit_pct", c.Exit.TakeProfitPct},
		{"exit.trailing_stop_pct", c.Exit.TrailingStopPct},
	}
	var bad []string
	for _, f := range fields {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			bad = append(bad, f.name)
		}
	}
	for i, b := range c.Sizing.Bands {
		for name, v := range map[string]float64{"min_score": b.MinScore, "win_prob": b.WinProb, "payoff": b.Payoff} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				bad = append(bad, fmt.Sprintf("sizing.bands[%d].%s", i, name))
			}
		}
	}
	return bad
}

func inPercentRange(v float64) bool {
	return v >= 0 && v <= 100
}
