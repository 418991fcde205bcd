package model

import "fenrir/internal/fxpt"

// Position tracks net exposure for one symbol under one account, per
// spec.md §3. Net convention: long positive, short negative.
type Position struct {
	Symbol         fxpt.Symbol
	NetQuantity    fxpt.Qty
	AvgEntryPrice  fxpt.Px
	RealizedPnL    fxpt.Px
	UnrealizedPnL  fxpt.Px
	MarkPrice      fxpt.Px
}

// ApplyFill updates the position for a fill on the given side/price/qty,
// implementing the averaging and realized-P&L rules of spec.md §3:
//
//   - Same-side add: avg entry price is quantity-weighted.
//   - Opposite-side fill: realized P&L accumulates
//     (fill_price - avg_entry_price) * closed_quantity * sign, and the
//     average entry price is unchanged until the position flips through
//     zero, at which point it resets to the residual fill price.
func (p *Position) ApplyFill(side fxpt.Side, price fxpt.Px, qty fxpt.Qty) {
	signedQty := fxpt.Qty(qty)
	if side == fxpt.Sell {
		signedQty = -signedQty
	}

	switch {
	case p.NetQuantity == 0:
		p.NetQuantity = signedQty
		p.AvgEntryPrice = price
	case sameSign(p.NetQuantity, signedQty):
		// Same-side add: quantity-weighted average entry price.
		totalQty := abs(p.NetQuantity) + abs(signedQty)
		weighted := int64(p.AvgEntryPrice)*int64(abs(p.NetQuantity)) + int64(price)*int64(abs(signedQty))
		p.AvgEntryPrice = fxpt.Px(weighted / int64(totalQty))
		p.NetQuantity += signedQty
	default:
		// Opposite-side fill: close against the existing position.
		closedQty := fxpt.MinQty(abs(p.NetQuantity), abs(signedQty))
		sign := int64(1)
		if p.NetQuantity < 0 {
			sign = -1
		}
		pnlPerUnit := int64(price) - int64(p.AvgEntryPrice)
		p.RealizedPnL += fxpt.Px(pnlPerUnit * int64(closedQty) * sign / fxpt.Scale)

		remaining := signedQty + p.NetQuantity
		p.NetQuantity = remaining
		if sameSignOrZero(p.NetQuantity, signedQty) && p.NetQuantity != 0 && abs(signedQty) > closedQty {
			// The fill's quantity exceeded what was needed to flatten the
			// book position: the position has flipped through zero, so
			// the average entry price resets to the residual fill price.
			p.AvgEntryPrice = price
		} else if p.NetQuantity == 0 {
			p.AvgEntryPrice = 0
		}
	}
}

// MarkToMarket recomputes unrealized P&L against the latest mark price.
func (p *Position) MarkToMarket(mark fxpt.Px) {
	p.MarkPrice = mark
	if p.NetQuantity == 0 {
		p.UnrealizedPnL = 0
		return
	}
	sign := int64(1)
	if p.NetQuantity < 0 {
		sign = -1
	}
	p.UnrealizedPnL = fxpt.Px((int64(mark) - int64(p.AvgEntryPrice)) * int64(abs(p.NetQuantity)) * sign / fxpt.Scale)
}

func sameSign(a, b fxpt.Qty) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

func sameSignOrZero(a, b fxpt.Qty) bool {
	return a == 0 || sameSign(a, b)
}

func abs(q fxpt.Qty) fxpt.Qty {
	if q < 0 {
		return -q
	}
	return q
}
