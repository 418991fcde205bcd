// Package config loads the structured startup configuration every
// subsystem reads, per spec.md §6's enumerated options. Follows the
// same viper-backed, mapstructure-tagged YAML-with-env-override pattern
// as the pack's config.Config (0xtitan6-polymarket-mm
// internal/config/config.go), generalized from one bot's settings to
// this module's WAL/book/aggregator/risk/bus subsystems.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration, mapping directly onto spec.md
// §6's "Configuration (enumerated options that affect core semantics)".
type Config struct {
	WAL       WALConfig       `mapstructure:"wal"`
	Book      BookConfig      `mapstructure:"book"`
	Aggregator AggregatorConfig `mapstructure:"aggregator"`
	Risk      RiskConfig      `mapstructure:"risk"`
	Bus       BusConfig       `mapstructure:"bus"`
	Lifecycle LifecycleConfig `mapstructure:"lifecycle"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// WALConfig is spec.md §6's "{segment_size_bytes: capacity before roll;
// fsync_interval_ms: durability cadence; replay_on_open: bool}".
type WALConfig struct {
	Dir              string        `mapstructure:"dir"`
	SegmentSizeBytes int64         `mapstructure:"segment_size_bytes"`
	FsyncInterval    time.Duration `mapstructure:"fsync_interval_ms"`
	ReplayOnOpen     bool          `mapstructure:"replay_on_open"`
}

// BookConfig is spec.md §6's "{checksum_depth: levels hashed;
// max_levels_per_side: hard cap}".
type BookConfig struct {
	ChecksumDepth    int `mapstructure:"checksum_depth"`
	MaxLevelsPerSide int `mapstructure:"max_levels_per_side"`
}

// AggregatorConfig is spec.md §6's "{timeframes: list of seconds;
// drop_out_of_order: bool}". OutOfOrderToleranceMs supplements the
// boolean drop flag with the actual tolerance window
// internal/aggregate.Config needs. The tolerance is always applied and
// DropOutOfOrder is not consulted: the aggregator always drops
// past-tolerance trades, matching spec.md §4.4's own invariant, so this
// field only tunes how generous that tolerance is.
type AggregatorConfig struct {
	TimeframesSeconds     []int64 `mapstructure:"timeframes"`
	DropOutOfOrder        bool    `mapstructure:"drop_out_of_order"`
	OutOfOrderToleranceMs int64   `mapstructure:"out_of_order_tolerance_ms"`
}

// RiskConfig is spec.md §6's full risk limits enumeration.
type RiskConfig struct {
	MaxPositionSize           float64 `mapstructure:"max_position_size"`
	MaxPositionValue          float64 `mapstructure:"max_position_value"`
	MaxTotalExposure          float64 `mapstructure:"max_total_exposure"`
	MaxOrderSize              float64 `mapstructure:"max_order_size"`
	MaxOrderValue             float64 `mapstructure:"max_order_value"`
	MaxOrdersPerMinute        int     `mapstructure:"max_orders_per_minute"`
	MaxDailyLoss              float64 `mapstructure:"max_daily_loss"`
	MaxDrawdownBp             int     `mapstructure:"max_drawdown_bp"`
	CircuitBreakerThresholdBp int     `mapstructure:"circuit_breaker_threshold_bp"`
	CircuitBreakerCooldownSec int     `mapstructure:"circuit_breaker_cooldown_secs"`
}

// BusConfig is spec.md §6's "{capacity_per_topic: ring size;
// slow_consumer_policy: DropSlow}". slow_consumer_policy has exactly
// one supported value today (internal/bus.Topic only implements
// DropSlow); the field exists so a config file that names it
// explicitly validates instead of silently being ignored.
type BusConfig struct {
	CapacityPerTopic    int    `mapstructure:"capacity_per_topic"`
	SlowConsumerPolicy  string `mapstructure:"slow_consumer_policy"`
}

// LifecycleConfig tunes internal/lifecycle.Manager; not separately
// named in spec.md §6 but needed to make §4.8's idempotency window
// operator-configurable rather than hardcoded.
type LifecycleConfig struct {
	IdempotencyWindow time.Duration `mapstructure:"idempotency_window"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads config from a YAML file at path, with FENRIR_* environment
// variables overriding any key (e.g. FENRIR_WAL_DIR overrides
// wal.dir).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("FENRIR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("wal.segment_size_bytes", 64*1024*1024)
	v.SetDefault("wal.fsync_interval_ms", 5*time.Millisecond)
	v.SetDefault("wal.replay_on_open", true)
	v.SetDefault("book.checksum_depth", 10)
	v.SetDefault("book.max_levels_per_side", 0)
	v.SetDefault("aggregator.timeframes", []int64{60, 300, 900, 3600})
	v.SetDefault("aggregator.drop_out_of_order", true)
	v.SetDefault("bus.capacity_per_topic", 256)
	v.SetDefault("bus.slow_consumer_policy", "DropSlow")
	v.SetDefault("lifecycle.idempotency_window", 24*time.Hour)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks cross-field invariants and required fields, per the
// same validate-after-unmarshal pattern the pack's config packages use.
func (c *Config) Validate() error {
	if c.WAL.Dir == "" {
		return fmt.Errorf("wal.dir is required")
	}
	if c.WAL.SegmentSizeBytes <= 0 {
		return fmt.Errorf("wal.segment_size_bytes must be > 0")
	}
	if len(c.Aggregator.TimeframesSeconds) == 0 {
		return fmt.Errorf("aggregator.timeframes must name at least one timeframe")
	}
	for _, tf := range c.Aggregator.TimeframesSeconds {
		if tf <= 0 {
			return fmt.Errorf("aggregator.timeframes entries must be > 0 seconds")
		}
	}
	if c.Risk.MaxOrdersPerMinute <= 0 {
		return fmt.Errorf("risk.max_orders_per_minute must be > 0")
	}
	if c.Bus.SlowConsumerPolicy != "" && c.Bus.SlowConsumerPolicy != "DropSlow" {
		return fmt.Errorf("bus.slow_consumer_policy: only DropSlow is supported")
	}
	return nil
}
