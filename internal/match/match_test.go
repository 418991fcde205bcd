package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fenrir/internal/book"
	"fenrir/internal/fxpt"
	"fenrir/internal/model"
)

func px(v int64) fxpt.Px   { return fxpt.Px(v * fxpt.Scale) }
func qty(v int64) fxpt.Qty { return fxpt.Qty(v * fxpt.Scale) }

func restingOrder(id string, side fxpt.Side, price fxpt.Px, q fxpt.Qty) *model.Order {
	return &model.Order{ID: id, Side: side, Type: fxpt.LimitOrder, TIF: fxpt.GTC, LimitPrice: price, Quantity: q, TotalQuantity: q, Status: model.StatusPending}
}

func incomingOrder(id string, side fxpt.Side, typ fxpt.OrderType, tif fxpt.TimeInForce, price fxpt.Px, q fxpt.Qty) *model.Order {
	return &model.Order{ID: id, Side: side, Type: typ, TIF: tif, LimitPrice: price, Quantity: q, TotalQuantity: q, Status: model.StatusNew}
}

// TestSimpleCrossProducesTwoFills is scenario S1.
func TestSimpleCrossProducesTwoFills(t *testing.T) {
	b := book.New(1, book.Config{})
	b.InsertResting(restingOrder("maker1", fxpt.Sell, px(100), qty(10)))

	m := New()
	taker := incomingOrder("taker1", fxpt.Buy, fxpt.LimitOrder, fxpt.GTC, px(101), qty(4))
	res := m.Process(b, taker, 1)

	require.Len(t, res.Matches, 1)
	assert.Equal(t, qty(4), res.Matches[0].Quantity)
	assert.Equal(t, px(100), res.Matches[0].Price, "match executes at the resting (maker) price")

	require.Len(t, res.Fills, 2)
	byLiquidity := map[model.LiquidityFlag]model.Fill{}
	for _, f := range res.Fills {
		byLiquidity[f.Liquidity] = f
	}
	assert.Equal(t, "maker1", byLiquidity[model.Maker].OrderID)
	assert.Equal(t, "taker1", byLiquidity[model.Taker].OrderID)

	assert.Equal(t, model.StatusFilled, taker.Status)
	assert.False(t, res.Resting)
}

// TestSweepRestsResidualForGTC is scenario S2: a marketable order larger
// than available contra liquidity rests its unfilled remainder.
func TestSweepRestsResidualForGTC(t *testing.T) {
	b := book.New(1, book.Config{})
	b.InsertResting(restingOrder("maker1", fxpt.Sell, px(100), qty(3)))

	m := New()
	taker := incomingOrder("taker1", fxpt.Buy, fxpt.LimitOrder, fxpt.GTC, px(100), qty(10))
	res := m.Process(b, taker, 1)

	assert.Equal(t, qty(3), taker.Executed)
	assert.Equal(t, qty(7), taker.Quantity)
	assert.Equal(t, model.StatusPartiallyFilled, taker.Status)
	assert.True(t, res.Resting)

	bid, _ := b.BBO()
	require.NotNil(t, bid)
	assert.Equal(t, px(100), *bid)
}

// TestIOCDiscardsResidual covers the IOC supplement to spec.md §4.3 step 4.
func TestIOCDiscardsResidual(t *testing.T) {
	b := book.New(1, book.Config{})
	b.InsertResting(restingOrder("maker1", fxpt.Sell, px(100), qty(3)))

	m := New()
	taker := incomingOrder("taker1", fxpt.Buy, fxpt.LimitOrder, fxpt.IOC, px(100), qty(10))
	res := m.Process(b, taker, 1)

	assert.Equal(t, qty(3), taker.Executed)
	assert.Equal(t, model.StatusCancelled, taker.Status)
	assert.False(t, res.Resting)

	bid, _ := b.BBO()
	assert.Nil(t, bid, "IOC residual must never rest")
}

// TestMarketOrderNeverRests covers spec.md §4.3 step 4's market-order
// discard rule.
func TestMarketOrderNeverRests(t *testing.T) {
	b := book.New(1, book.Config{})
	b.InsertResting(restingOrder("maker1", fxpt.Sell, px(100), qty(3)))

	m := New()
	taker := incomingOrder("taker1", fxpt.Buy, fxpt.MarketOrder, fxpt.IOC, 0, qty(10))
	res := m.Process(b, taker, 1)

	assert.Equal(t, qty(3), taker.Executed)
	assert.Equal(t, model.StatusCancelled, taker.Status)
	assert.False(t, res.Resting)
}

// TestFOKRejectsWhenLiquidityInsufficient is scenario S3.
func TestFOKRejectsWhenLiquidityInsufficient(t *testing.T) {
	b := book.New(1, book.Config{})
	b.InsertResting(restingOrder("maker1", fxpt.Sell, px(100), qty(3)))

	m := New()
	taker := incomingOrder("taker1", fxpt.Buy, fxpt.LimitOrder, fxpt.FOK, px(100), qty(10))
	res := m.Process(b, taker, 1)

	assert.True(t, res.Rejected)
	assert.Empty(t, res.Matches)
	assert.Equal(t, qty(10), taker.Quantity, "a rejected FOK order is untouched")

	bids, asks := b.Depth(10)
	assert.Empty(t, bids)
	require.Len(t, asks, 1)
	assert.Equal(t, qty(3), asks[0].TotalQuantity, "book is unaffected by a killed FOK order")
}

// TestFOKFillsInFullWhenLiquiditySufficient.
func TestFOKFillsInFullWhenLiquiditySufficient(t *testing.T) {
	b := book.New(1, book.Config{})
	b.InsertResting(restingOrder("maker1", fxpt.Sell, px(100), qty(5)))
	b.InsertResting(restingOrder("maker2", fxpt.Sell, px(101), qty(5)))

	m := New()
	taker := incomingOrder("taker1", fxpt.Buy, fxpt.LimitOrder, fxpt.FOK, px(101), qty(8))
	res := m.Process(b, taker, 1)

	assert.False(t, res.Rejected)
	assert.Equal(t, qty(8), taker.Executed)
	assert.Equal(t, model.StatusFilled, taker.Status)
	require.Len(t, res.Matches, 2)
}

// TestNonMarketableLimitRests covers a limit order that does not cross.
func TestNonMarketableLimitRests(t *testing.T) {
	b := book.New(1, book.Config{})
	b.InsertResting(restingOrder("maker1", fxpt.Sell, px(100), qty(5)))

	m := New()
	buyer := incomingOrder("buyer1", fxpt.Buy, fxpt.LimitOrder, fxpt.GTC, px(99), qty(5))
	res := m.Process(b, buyer, 1)

	assert.Empty(t, res.Matches)
	assert.True(t, res.Resting)
	assert.Equal(t, model.StatusPending, buyer.Status)

	bid, ask := b.BBO()
	require.NotNil(t, bid)
	require.NotNil(t, ask)
	assert.Equal(t, px(99), *bid)
	assert.Equal(t, px(100), *ask)
}

// TestPriceTimePriorityAcrossMatches ensures the earlier resting order at
// the same price fills first (spec.md §4.3 "Tie-breaking: strictly
// price, then insertion sequence").
func TestPriceTimePriorityAcrossMatches(t *testing.T) {
	b := book.New(1, book.Config{})
	b.InsertResting(restingOrder("first", fxpt.Sell, px(100), qty(5)))
	b.InsertResting(restingOrder("second", fxpt.Sell, px(100), qty(5)))

	m := New()
	taker := incomingOrder("taker1", fxpt.Buy, fxpt.MarketOrder, fxpt.IOC, 0, qty(5))
	res := m.Process(b, taker, 1)

	require.Len(t, res.Matches, 1)
	assert.Equal(t, "first", res.Matches[0].PassiveOrderID)
}
