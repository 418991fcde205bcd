// Package aggregate implements the OHLCV candle aggregator (spec.md
// §4.4, C5): independent per-(symbol, timeframe) candle series fed by
// trade events, with every event durably WAL-logged before its candle
// mutation becomes visible so replay is deterministic (spec.md §8
// property 7). Generalizes the teacher's lack of any aggregation layer
// by following the WAL/tomb conventions established in internal/wal,
// and borrows event-type tagging from
// original_source/services/data-aggregator/src/storage/events.rs.
package aggregate

import (
	"fenrir/internal/fxpt"
	"fenrir/internal/model"
)

// DefaultTimeframes is the fixed menu of spec.md §4.4 ("M1, M5, M15,
// H1"), expressed in seconds.
var DefaultTimeframes = []int64{60, 300, 900, 3600}

type seriesKey struct {
	symbol    fxpt.Symbol
	timeframe int64
}

// series tracks the one "current" open candle for a (symbol, timeframe)
// pair, per spec.md §4.4.
type series struct {
	current *model.Candle
}
