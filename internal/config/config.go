// Package config loads service configuration from YAML, .env and GE_ environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"graduation-engine/internal/domain"
)

// EnvPrefix prefixes every environment override, e.g. GE_SERVER_HTTP_ADDR.
const EnvPrefix = "GE"

// Config is the full service configuration.
type Config struct {
	App        AppConfig            `mapstructure:"app"`
	Server     ServerConfig         `mapstructure:"server"`
	Log        LogConfig            `mapstructure:"log"`
	Postgres   PostgresConfig       `mapstructure:"postgres"`
	ClickHouse ClickHouseConfig     `mapstructure:"clickhouse"`
	Redis      RedisConfig          `mapstructure:"redis"`
	Feeds      FeedsConfig          `mapstructure:"feeds"`
	Router     RouterConfig         `mapstructure:"router"`
	Telegram   TelegramConfig       `mapstructure:"telegram"`
	Engine     EngineConfig         `mapstructure:"engine"`
	Cron       CronConfig           `mapstructure:"cron"`
	Trading    domain.TradingConfig `mapstructure:"trading"`
}

type AppConfig struct {
	Env  string `mapstructure:"env"`
	Mode string `mapstructure:"mode"` // PAPER or LIVE
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

// PostgresConfig holds the operational store. An empty DSN uses in-memory stores.
type PostgresConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// ClickHouseConfig holds the analytics store. An empty DSN disables it.
type ClickHouseConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig holds the shared idempotency store. An empty Addr keeps claims in memory.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type FeedsConfig struct {
	WSURL        string        `mapstructure:"ws_url"`
	RPCURL       string        `mapstructure:"rpc_url"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	PollLimit    int           `mapstructure:"poll_limit"`
}

// RouterConfig points at the LIVE swap routing collaborator.
type RouterConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type TelegramConfig struct {
	Token  string   `mapstructure:"token"`
	ChatID int64    `mapstructure:"chat_id"`
	Kinds  []string `mapstructure:"kinds"`
}

type EngineConfig struct {
	Workers        int `mapstructure:"workers"`
	AlertQueueSize int `mapstructure:"alert_queue_size"`
}

type CronConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Rollover string `mapstructure:"rollover"` // with seconds field
}

// Load reads path (optional) and GE_ overrides. A .env file in the working
// directory is loaded first when present. The trading section is validated;
// a failure wraps domain.ErrConfiguration.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the service settings and the trading configuration.
func (c Config) Validate() error {
	if _, err := domain.ParseMode(c.App.Mode); err != nil {
		return fmt.Errorf("%w: app.mode: %w", domain.ErrConfiguration, err)
	}
	if c.Engine.Workers <= 0 {
		return fmt.Errorf("%w: engine.workers must be positive", domain.ErrConfiguration)
	}
	return c.Trading.Validate()
}

// Mode returns the configured operating mode.
func (c Config) Mode() domain.Mode {
	return domain.Mode(c.App.Mode)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "dev")
	v.SetDefault("app.mode", domain.ModePaper.String())
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "json")
	v.SetDefault("log.development", false)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", true)
	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 1)
	v.SetDefault("postgres.max_conn_lifetime", "30m")
	v.SetDefault("clickhouse.dsn", "")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "graduation-engine:exec:")
	v.SetDefault("feeds.ws_url", "")
	v.SetDefault("feeds.rpc_url", "")
	v.SetDefault("feeds.poll_interval", "5s")
	v.SetDefault("feeds.poll_limit", 100)
	v.SetDefault("router.url", "")
	v.SetDefault("router.timeout", "30s")
	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.chat_id", 0)
	v.SetDefault("telegram.kinds", []string{"PositionOpened", "PositionClosed", "ExecutionFailed"})
	v.SetDefault("engine.workers", 4)
	v.SetDefault("engine.alert_queue_size", 256)
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.rollover", "0 0 0 * * *")

	d := domain.DefaultTradingConfig()
	v.SetDefault("trading.name", d.Name)
	v.SetDefault("trading.version", d.Version)
	v.SetDefault("trading.candidate_cooldown", d.CandidateCooldown.String())

	v.SetDefault("trading.gates.min_liquidity_usd", d.Gates.MinLiquidityUSD)
	v.SetDefault("trading.gates.max_sniper_pct", d.Gates.MaxSniperPct)
	v.SetDefault("trading.gates.max_top10_pct", d.Gates.MaxTop10Pct)
	v.SetDefault("trading.gates.min_lp_lock_days", d.Gates.MinLPLockDays)
	v.SetDefault("trading.gates.min_locker_reputation", d.Gates.MinLockerReputation)
	v.SetDefault("trading.gates.min_creator_reputation", d.Gates.MinCreatorReputation)

	v.SetDefault("trading.scoring.cutoff", d.Scoring.Cutoff)
	v.SetDefault("trading.scoring.weights.liquidity_depth", d.Scoring.Weights.LiquidityDepth)
	v.SetDefault("trading.scoring.weights.distribution_health", d.Scoring.Weights.DistributionHealth)
	v.SetDefault("trading.scoring.weights.lock_durability", d.Scoring.Weights.LockDurability)
	v.SetDefault("trading.scoring.weights.momentum", d.Scoring.Weights.Momentum)
	v.SetDefault("trading.scoring.liquidity_floor_usd", d.Scoring.LiquidityFloorUSD)
	v.SetDefault("trading.scoring.liquidity_target_usd", d.Scoring.LiquidityTargetUSD)
	v.SetDefault("trading.scoring.top10_penalty", d.Scoring.Top10Penalty)
	v.SetDefault("trading.scoring.sniper_penalty", d.Scoring.SniperPenalty)
	v.SetDefault("trading.scoring.target_lock_days", d.Scoring.TargetLockDays)
	v.SetDefault("trading.scoring.momentum_volume_target_usd", d.Scoring.MomentumVolumeTargetUSD)

	v.SetDefault("trading.sizing.total_capital_usd", d.Sizing.TotalCapitalUSD)
	v.SetDefault("trading.sizing.kelly_fraction", d.Sizing.KellyFraction)
	v.SetDefault("trading.sizing.per_trade_cap_pct", d.Sizing.PerTradeCapPct)
	v.SetDefault("trading.sizing.global_exposure_cap_pct", d.Sizing.GlobalExposureCapPct)
	v.SetDefault("trading.sizing.max_concurrent_positions", d.Sizing.MaxConcurrentPositions)
	v.SetDefault("trading.sizing.daily_loss_cap_pct", d.Sizing.DailyLossCapPct)
	v.SetDefault("trading.sizing.min_order_usd", d.Sizing.MinOrderUSD)
	bands := make([]map[string]any, 0, len(d.Sizing.Bands))
	for _, b := range d.Sizing.Bands {
		bands = append(bands, map[string]any{"min_score": b.MinScore, "win_prob": b.WinProb, "payoff": b.Payoff})
	}
	v.SetDefault("trading.sizing.bands", bands)

	v.SetDefault("trading.execution.max_slippage_bps", d.Execution.MaxSlippageBps)
	v.SetDefault("trading.execution.paper_slippage_bps", d.Execution.PaperSlippageBps)
	v.SetDefault("trading.execution.priority_fee_percentile", d.Execution.PriorityFeePercentile)
	v.SetDefault("trading.execution.timeout", d.Execution.Timeout.String())
	v.SetDefault("trading.execution.idempotency_ttl", d.Execution.IdempotencyTTL.String())

	v.SetDefault("trading.exit.stop_loss_pct", d.Exit.StopLossPct)
	v.SetDefault("trading.exit.take_profit_pct", d.Exit.TakeProfitPct)
	v.SetDefault("trading.exit.trailing_stop_pct", d.Exit.TrailingStopPct)
	v.SetDefault("trading.exit.max_hold", d.Exit.MaxHold.String())
	v.SetDefault("trading.exit.poll_interval", d.Exit.PollInterval.String())
}
