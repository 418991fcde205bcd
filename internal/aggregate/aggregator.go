package aggregate

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"fenrir/internal/bus"
	"fenrir/internal/fxpt"
	"fenrir/internal/model"
	"fenrir/internal/wal"
)

// Config holds the aggregator's startup tunables, per spec.md §6.
type Config struct {
	Timeframes []int64 // seconds; defaults to DefaultTimeframes
	// OutOfOrderTolerance bounds how far behind current.open_time an
	// event may arrive before it is counted and dropped rather than
	// applied, per spec.md §4.4 "Failure".
	OutOfOrderTolerance fxpt.Ts
}

func (c Config) withDefaults() Config {
	if len(c.Timeframes) == 0 {
		c.Timeframes = DefaultTimeframes
	}
	return c
}

// Aggregator maintains one open candle per (symbol, timeframe), durably
// logging every input trade to the WAL before any candle mutation
// becomes visible, per spec.md §4.4.
type Aggregator struct {
	cfg Config
	log *wal.Log

	closed *bus.Topic[model.Candle]

	mu     sync.Mutex
	series map[seriesKey]*series

	droppedCount uint64
}

// New constructs an Aggregator writing through log and publishing closed
// candles on closed (which may be nil).
func New(cfg Config, walLog *wal.Log, closed *bus.Topic[model.Candle]) *Aggregator {
	cfg = cfg.withDefaults()
	return &Aggregator{
		cfg:    cfg,
		log:    walLog,
		closed: closed,
		series: make(map[seriesKey]*series),
	}
}

// Ingest durably appends t to the WAL, then folds it into every
// configured timeframe's current candle, per spec.md §4.4: "Every input
// event... is appended to the WAL before any candle mutation is
// visible."
func (a *Aggregator) Ingest(ctx context.Context, t model.Trade) error {
	if _, err := a.log.AppendSync(ctx, wal.RecordTrade, encodeTrade(t)); err != nil {
		return err
	}
	a.apply(t)
	return nil
}

// apply folds t into every timeframe's series without touching the WAL;
// used both by Ingest (live path) and Replay (recovery path) so the two
// are guaranteed to produce identical candle state from the same input,
// per spec.md §8 property 7.
func (a *Aggregator) apply(t model.Trade) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, tf := range a.cfg.Timeframes {
		key := seriesKey{symbol: t.Symbol, timeframe: tf}
		s, ok := a.series[key]
		if !ok {
			s = &series{}
			a.series[key] = s
		}

		if s.current == nil {
			c := model.NewCandle(t.Symbol, tf, model.BucketOpenTime(t.Timestamp, tf), t)
			s.current = &c
			continue
		}

		if a.isStale(s.current, t) {
			a.droppedCount++
			log.Warn().
				Uint32("symbol", uint32(t.Symbol)).
				Int64("timeframe", tf).
				Msg("aggregator: dropped out-of-order trade")
			continue
		}

		windowEnd := fxpt.Ts(uint64(s.current.OpenTime) + uint64(tf)*1_000_000_000)
		if t.Timestamp >= windowEnd {
			s.current.Closed = true
			a.publish(*s.current)
			c := model.NewCandle(t.Symbol, tf, model.BucketOpenTime(t.Timestamp, tf), t)
			s.current = &c
			continue
		}

		s.current.Update(t)
	}
}

// isStale reports whether t arrived earlier than the current candle's
// open time by more than the configured tolerance, per spec.md §4.4.
func (a *Aggregator) isStale(current *model.Candle, t model.Trade) bool {
	if t.Timestamp >= current.OpenTime {
		return false
	}
	behind := uint64(current.OpenTime) - uint64(t.Timestamp)
	return behind > uint64(a.cfg.OutOfOrderTolerance)
}

func (a *Aggregator) publish(c model.Candle) {
	if a.closed != nil {
		a.closed.Publish(c)
	}
}

// DroppedCount reports how many events were counted and dropped for
// being too far out of order, per spec.md §4.4's failure mode.
func (a *Aggregator) DroppedCount() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.droppedCount
}

// Current returns a copy of the in-progress candle for (symbol,
// timeframe), if one exists.
func (a *Aggregator) Current(symbol fxpt.Symbol, timeframe int64) (model.Candle, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.series[seriesKey{symbol: symbol, timeframe: timeframe}]
	if !ok || s.current == nil {
		return model.Candle{}, false
	}
	return *s.current, true
}

// Replay drains the WAL from the beginning and re-applies every trade
// record through the same apply path Ingest uses, without re-appending
// to the WAL, per spec.md §4.4/§8 property 7 ("deterministic"; replay
// must reproduce the same final candle state as the live run).
func (a *Aggregator) Replay() error {
	return a.log.Replay(0, nil, func(rec wal.Record) error {
		if rec.Type != wal.RecordTrade {
			return nil
		}
		t, err := decodeTrade(rec.Payload)
		if err != nil {
			a.mu.Lock()
			a.droppedCount++
			a.mu.Unlock()
			log.Warn().Err(err).Msg("aggregator: dropped malformed trade record during replay")
			return nil
		}
		a.apply(t)
		return nil
	})
}
