package config

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"fenrir/internal/fxpt"
)

func TestValidateRejectsMissingWALDir(t *testing.T) {
	cfg := &Config{
		Aggregator: AggregatorConfig{TimeframesSeconds: []int64{60}},
		Risk:       RiskConfig{MaxOrdersPerMinute: 1},
	}
	err := cfg.Validate()
	assert.ErrorContains(t, err, "wal.dir")
}

func TestValidateRejectsEmptyTimeframes(t *testing.T) {
	cfg := &Config{
		WAL:        WALConfig{Dir: "/tmp/wal", SegmentSizeBytes: 1024},
		Risk:       RiskConfig{MaxOrdersPerMinute: 1},
	}
	err := cfg.Validate()
	assert.ErrorContains(t, err, "timeframes")
}

func TestValidateRejectsUnsupportedSlowConsumerPolicy(t *testing.T) {
	cfg := &Config{
		WAL:        WALConfig{Dir: "/tmp/wal", SegmentSizeBytes: 1024},
		Aggregator: AggregatorConfig{TimeframesSeconds: []int64{60}},
		Risk:       RiskConfig{MaxOrdersPerMinute: 1},
		Bus:        BusConfig{SlowConsumerPolicy: "DropOldest"},
	}
	err := cfg.Validate()
	assert.ErrorContains(t, err, "DropSlow")
}

func TestRiskConfigLimitsScalesFloatsIntoFixedPoint(t *testing.T) {
	rc := RiskConfig{
		MaxOrderSize:       10,
		MaxOrderValue:      1000,
		MaxPositionSize:    500,
		MaxTotalExposure:   2000,
		MaxOrdersPerMinute: 60,
		MaxDailyLoss:       250,
		MaxDrawdownBp:      1500,
	}
	limits := rc.Limits()

	assert.Equal(t, fxpt.QtyFromFloat(10), limits.MaxOrderQty)
	assert.Equal(t, fxpt.PxFromFloat(1000), limits.MaxOrderNotional)
	assert.Equal(t, fxpt.QtyFromFloat(500), limits.MaxSymbolExposure)
	assert.Equal(t, fxpt.QtyFromFloat(2000), limits.MaxTotalExposure)
	assert.Equal(t, 60, limits.OrdersPerMinute)
	assert.Equal(t, fxpt.PxFromFloat(250), limits.MaxDailyLoss)
	assert.Equal(t, fxpt.PxFromFloat(0.15), limits.DrawdownThreshold)
}

func TestAggregatorConfigConvertsMillisecondsToNanoseconds(t *testing.T) {
	ac := AggregatorConfig{TimeframesSeconds: []int64{60, 300}, OutOfOrderToleranceMs: 500}
	cfg := ac.Aggregator()

	assert.Equal(t, []int64{60, 300}, cfg.Timeframes)
	assert.Equal(t, fxpt.Ts(500_000_000), cfg.OutOfOrderTolerance)
}
