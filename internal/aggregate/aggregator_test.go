package aggregate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fenrir/internal/bus"
	"fenrir/internal/fxpt"
	"fenrir/internal/model"
	"fenrir/internal/wal"
)

func openTestLog(t *testing.T) *wal.Log {
	t.Helper()
	l, err := wal.Open(context.Background(), wal.Config{Dir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func px(v int64) fxpt.Px   { return fxpt.Px(v * fxpt.Scale) }
func qty(v int64) fxpt.Qty { return fxpt.Qty(v * fxpt.Scale) }

func trade(symbol fxpt.Symbol, price fxpt.Px, q fxpt.Qty, side fxpt.Side, id string, ts fxpt.Ts) model.Trade {
	return model.Trade{
		Symbol:        symbol,
		Price:         price,
		Quantity:      q,
		AggressorSide: side,
		TradeID:       id,
		Timestamp:     ts,
	}
}

// TestCandleUpdateMaintainsOHLCInvariant is spec.md §8 property 6: at
// every point in a candle's life, low <= min(open, close) and
// max(open, close) <= high, and volume is the sum of buy/sell volume.
func TestCandleUpdateMaintainsOHLCInvariant(t *testing.T) {
	l := openTestLog(t)
	a := New(Config{Timeframes: []int64{60}}, l, nil)
	ctx := context.Background()

	trades := []model.Trade{
		trade(1, px(100), qty(1), fxpt.Buy, "t1", 0),
		trade(1, px(105), qty(2), fxpt.Sell, "t2", 10_000_000_000),
		trade(1, px(95), qty(1), fxpt.Buy, "t3", 20_000_000_000),
		trade(1, px(102), qty(3), fxpt.Sell, "t4", 30_000_000_000),
	}
	for _, tr := range trades {
		require.NoError(t, a.Ingest(ctx, tr))
		c, ok := a.Current(1, 60)
		require.True(t, ok)
		assert.True(t, c.Valid(), "candle OHLC invariant violated: %+v", c)
	}

	c, ok := a.Current(1, 60)
	require.True(t, ok)
	assert.Equal(t, px(100), c.Open)
	assert.Equal(t, px(105), c.High)
	assert.Equal(t, px(95), c.Low)
	assert.Equal(t, px(102), c.Close)
	assert.Equal(t, qty(7), c.Volume)
}

// TestCandleRollsOnWindowBoundary exercises spec.md §4.4's close/roll
// rule: an event at or past current.open_time + timeframe closes the
// current candle and opens a fresh one, independently per timeframe.
func TestCandleRollsOnWindowBoundary(t *testing.T) {
	l := openTestLog(t)
	closed := bus.NewTopic[model.Candle](8)
	sub := closed.Subscribe()
	defer sub.Unsubscribe()

	a := New(Config{Timeframes: []int64{60}}, l, closed)
	ctx := context.Background()

	require.NoError(t, a.Ingest(ctx, trade(1, px(100), qty(1), fxpt.Buy, "t1", 0)))
	require.NoError(t, a.Ingest(ctx, trade(1, px(101), qty(1), fxpt.Buy, "t2", 30_000_000_000)))
	require.NoError(t, a.Ingest(ctx, trade(1, px(110), qty(1), fxpt.Buy, "t3", 61_000_000_000)))

	env := <-sub.Events()
	require.Nil(t, env.Lag)
	assert.True(t, env.Value.Closed)
	assert.Equal(t, px(100), env.Value.Open)
	assert.Equal(t, px(101), env.Value.Close)

	c, ok := a.Current(1, 60)
	require.True(t, ok)
	assert.False(t, c.Closed)
	assert.Equal(t, px(110), c.Open)
}

// TestTimeframesAreIndependent checks that a roll on the M1 series does
// not perturb the H1 series fed the same trades.
func TestTimeframesAreIndependent(t *testing.T) {
	l := openTestLog(t)
	a := New(Config{Timeframes: []int64{60, 3600}}, l, nil)
	ctx := context.Background()

	require.NoError(t, a.Ingest(ctx, trade(1, px(100), qty(1), fxpt.Buy, "t1", 0)))
	require.NoError(t, a.Ingest(ctx, trade(1, px(110), qty(1), fxpt.Buy, "t2", 61_000_000_000)))

	m1, ok := a.Current(1, 60)
	require.True(t, ok)
	assert.Equal(t, px(110), m1.Open)

	h1, ok := a.Current(1, 3600)
	require.True(t, ok)
	assert.Equal(t, px(100), h1.Open)
	assert.Equal(t, px(110), h1.Close)
	assert.Equal(t, qty(2), h1.Volume)
}

// TestOutOfOrderTradeIsDroppedNotApplied covers spec.md §4.4's failure
// mode: an event arriving further behind the current candle's open time
// than the configured tolerance is counted and dropped.
func TestOutOfOrderTradeIsDroppedNotApplied(t *testing.T) {
	l := openTestLog(t)
	a := New(Config{Timeframes: []int64{60}, OutOfOrderTolerance: 0}, l, nil)
	ctx := context.Background()

	require.NoError(t, a.Ingest(ctx, trade(1, px(100), qty(1), fxpt.Buy, "t1", 70_000_000_000)))
	require.NoError(t, a.Ingest(ctx, trade(1, px(200), qty(5), fxpt.Buy, "t2", 1_000_000_000)))

	c, ok := a.Current(1, 60)
	require.True(t, ok)
	assert.Equal(t, px(100), c.Close, "out-of-order trade must not mutate the candle")
	assert.Equal(t, qty(1), c.Volume)
	assert.Equal(t, uint64(1), a.DroppedCount())
}

// TestReplayIsDeterministic is scenario S4: replaying the WAL from
// scratch must reproduce byte-for-byte the same closed candles as the
// live run.
func TestReplayIsDeterministic(t *testing.T) {
	l := openTestLog(t)
	ctx := context.Background()

	live := New(Config{Timeframes: []int64{60}}, l, nil)
	trades := []model.Trade{
		trade(1, px(100), qty(1), fxpt.Buy, "t1", 0),
		trade(1, px(105), qty(2), fxpt.Sell, "t2", 10_000_000_000),
		trade(1, px(102), qty(1), fxpt.Buy, "t3", 61_000_000_000),
		trade(1, px(98), qty(3), fxpt.Sell, "t4", 121_000_000_000),
	}
	for _, tr := range trades {
		require.NoError(t, live.Ingest(ctx, tr))
	}
	liveCurrent, ok := live.Current(1, 60)
	require.True(t, ok)

	replayed := New(Config{Timeframes: []int64{60}}, l, nil)
	require.NoError(t, replayed.Replay())

	replayedCurrent, ok := replayed.Current(1, 60)
	require.True(t, ok)
	assert.Equal(t, liveCurrent, replayedCurrent)
	assert.Equal(t, uint64(0), replayed.DroppedCount())
}
