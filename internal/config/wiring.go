package config

import (
	"fenrir/internal/aggregate"
	"fenrir/internal/book"
	"fenrir/internal/fxpt"
	"fenrir/internal/risk"
	"fenrir/internal/wal"
)

// WAL converts WALConfig into the internal/wal startup shape.
func (c WALConfig) WAL() wal.Config {
	return wal.Config{
		Dir:              c.Dir,
		SegmentSizeBytes: c.SegmentSizeBytes,
		FsyncIntervalMs:  int(c.FsyncInterval.Milliseconds()),
		ReplayOnOpen:     c.ReplayOnOpen,
	}
}

// Book converts BookConfig into internal/book's per-symbol Config.
func (c BookConfig) Book() book.Config {
	return book.Config{
		ChecksumDepth:    c.ChecksumDepth,
		MaxLevelsPerSide: c.MaxLevelsPerSide,
	}
}

// Aggregator converts AggregatorConfig into internal/aggregate's Config.
// When DropOutOfOrder is false the tolerance is left at its configured
// value anyway; internal/aggregate always drops past-tolerance trades
// (spec.md §4.4), so the meaningful knob is the tolerance window itself.
func (c AggregatorConfig) Aggregator() aggregate.Config {
	return aggregate.Config{
		Timeframes:          c.TimeframesSeconds,
		OutOfOrderTolerance: fxpt.Ts(c.OutOfOrderToleranceMs) * 1_000_000,
	}
}

// Limits converts RiskConfig into internal/risk.Limits. Fields expressed
// in the config as plain floats are scaled into fxpt at this boundary,
// per spec.md §6's note that config is where human-readable units enter
// the system. MaxPositionValue, CircuitBreakerThresholdBp and
// CircuitBreakerCooldownSec have no corresponding Limits field today:
// internal/risk.Gate trips its circuit breaker on a fixed 15-minute
// cooldown rather than a configured one (internal/risk/gate.go
// tripCircuitBreaker), so those three config fields are read and
// validated but not yet wired into gate behavior.
func (c RiskConfig) Limits() risk.Limits {
	return risk.Limits{
		MaxOrderQty:       fxpt.QtyFromFloat(c.MaxOrderSize),
		MaxOrderNotional:  fxpt.PxFromFloat(c.MaxOrderValue),
		MaxSymbolExposure: fxpt.QtyFromFloat(c.MaxPositionSize),
		MaxTotalExposure:  fxpt.QtyFromFloat(c.MaxTotalExposure),
		OrdersPerMinute:   c.MaxOrdersPerMinute,
		MaxDailyLoss:      fxpt.PxFromFloat(c.MaxDailyLoss),
		DrawdownThreshold: fxpt.PxFromFloat(float64(c.MaxDrawdownBp) / 10_000.0),
	}
}
