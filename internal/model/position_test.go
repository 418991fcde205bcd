package model

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"fenrir/internal/fxpt"
)

func posQty(v int64) fxpt.Qty { return fxpt.Qty(v * fxpt.Scale) }
func posPx(v int64) fxpt.Px   { return fxpt.Px(v * fxpt.Scale) }

func TestApplyFillSameSideAveragesEntryPrice(t *testing.T) {
	p := Position{Symbol: 1}

	p.ApplyFill(fxpt.Buy, posPx(100), posQty(10))
	assert.Equal(t, posQty(10), p.NetQuantity)
	assert.Equal(t, posPx(100), p.AvgEntryPrice)

	p.ApplyFill(fxpt.Buy, posPx(110), posQty(10))
	assert.Equal(t, posQty(20), p.NetQuantity)
	assert.Equal(t, posPx(105), p.AvgEntryPrice, "quantity-weighted average of 100 and 110 over equal size")
	assert.Equal(t, fxpt.Px(0), p.RealizedPnL, "a same-side add realizes nothing")
}

// TestApplyFillOppositeSidePartialCloseRealizesPnL is spec.md §3's
// opposite-side fill rule: realized P&L accumulates over the closed
// quantity and the average entry price is unchanged while the position
// keeps its sign.
func TestApplyFillOppositeSidePartialCloseRealizesPnL(t *testing.T) {
	p := Position{Symbol: 1}
	p.ApplyFill(fxpt.Buy, posPx(100), posQty(10))

	p.ApplyFill(fxpt.Sell, posPx(110), posQty(4))

	assert.Equal(t, posQty(6), p.NetQuantity, "still long, reduced by the closed quantity")
	assert.Equal(t, posPx(100), p.AvgEntryPrice, "avg entry price is unchanged by a partial close")
	assert.Equal(t, posPx(40), p.RealizedPnL, "(110-100) * 4 realized on the closed quantity")
}

// TestApplyFillOppositeSideFullCloseFlattensPosition covers the
// boundary where the closing fill exactly matches net quantity: the
// position goes flat and the average entry price resets to zero.
func TestApplyFillOppositeSideFullCloseFlattensPosition(t *testing.T) {
	p := Position{Symbol: 1}
	p.ApplyFill(fxpt.Buy, posPx(100), posQty(10))

	p.ApplyFill(fxpt.Sell, posPx(120), posQty(10))

	assert.Equal(t, fxpt.Qty(0), p.NetQuantity)
	assert.Equal(t, fxpt.Px(0), p.AvgEntryPrice)
	assert.Equal(t, posPx(200), p.RealizedPnL, "(120-100) * 10 realized in full")
}

// TestApplyFillFlipThroughZeroResetsAvgEntryPrice is spec.md §3's flip
// rule: a closing fill larger than the resting position realizes P&L on
// the closed portion only, then opens a new position on the other side
// at the fill price.
func TestApplyFillFlipThroughZeroResetsAvgEntryPrice(t *testing.T) {
	p := Position{Symbol: 1}
	p.ApplyFill(fxpt.Buy, posPx(100), posQty(10))

	p.ApplyFill(fxpt.Sell, posPx(110), posQty(15))

	assert.Equal(t, posQty(-5), p.NetQuantity, "flipped short by the residual 5 units")
	assert.Equal(t, posPx(110), p.AvgEntryPrice, "new short position is entered at the fill price")
	assert.Equal(t, posPx(100), p.RealizedPnL, "(110-100) * 10 realized on the closed long, not the residual")
}

// TestApplyFillFlipThroughZeroFromShort mirrors the above starting from
// a short position, per spec.md §3's sign convention.
func TestApplyFillFlipThroughZeroFromShort(t *testing.T) {
	p := Position{Symbol: 1}
	p.ApplyFill(fxpt.Sell, posPx(100), posQty(10))

	p.ApplyFill(fxpt.Buy, posPx(90), posQty(15))

	assert.Equal(t, posQty(5), p.NetQuantity, "flipped long by the residual 5 units")
	assert.Equal(t, posPx(90), p.AvgEntryPrice, "new long position is entered at the fill price")
	assert.Equal(t, posPx(100), p.RealizedPnL, "(100-90) * 10 realized on the closed short")
}
