// Package model holds the data types shared across the core engines:
// orders, price levels, trades, candles and positions, per spec.md §3.
// It mirrors the shape of the teacher's internal/common package but
// generalizes prices and quantities to fixed-point scalars and adds the
// fields the full lifecycle, risk, and aggregation engines need.
package model

import (
	"fmt"

	"fenrir/internal/fxpt"
)

// OrderStatus is the order lifecycle state, per spec.md §3: status
// transitions are monotone along New -> Pending -> PartiallyFilled ->
// {Filled, Cancelled, Rejected, Expired}.
type OrderStatus uint8

const (
	StatusNew OrderStatus = iota
	StatusPending
	StatusPartiallyFilled
	StatusFilled
	StatusCancelled
	StatusRejected
	StatusExpired
)

func (s OrderStatus) String() string {
	switch s {
	case StatusNew:
		return "New"
	case StatusPending:
		return "Pending"
	case StatusPartiallyFilled:
		return "PartiallyFilled"
	case StatusFilled:
		return "Filled"
	case StatusCancelled:
		return "Cancelled"
	case StatusRejected:
		return "Rejected"
	case StatusExpired:
		return "Expired"
	default:
		return "Unknown"
	}
}

// IsTerminal reports whether no further transitions are possible.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case StatusFilled, StatusCancelled, StatusRejected, StatusExpired:
		return true
	default:
		return false
	}
}

// Order is the canonical order record. The book and matching engine only
// ever mutate the Quantity (remaining), Executed, InsertionSeq and Status
// fields; everything else is set by the lifecycle manager at creation or
// on amendment. Invariant (spec.md §3): Executed + Quantity == TotalQuantity.
type Order struct {
	ID            string
	ClientOrderID string
	Symbol        fxpt.Symbol
	Side          fxpt.Side
	Type          fxpt.OrderType
	TIF           fxpt.TimeInForce
	LimitPrice    fxpt.Px
	Quantity      fxpt.Qty // remaining
	Executed      fxpt.Qty
	TotalQuantity fxpt.Qty
	Status        OrderStatus
	Owner         string
	Timestamp     fxpt.Ts // arrival at the gateway
	ExchTimestamp fxpt.Ts // arrival into the book
	InsertionSeq  uint64  // assigned by the book on rest, for FIFO priority
	Version       int     // incremented on each amendment
}

func (o *Order) String() string {
	return fmt.Sprintf(
		"Order{id=%s symbol=%d side=%s type=%s px=%s qty=%s/%s status=%s owner=%s}",
		o.ID, o.Symbol, o.Side, o.Type, o.LimitPrice, o.Quantity, o.TotalQuantity, o.Status, o.Owner,
	)
}

// Remaining reports the order's unfilled quantity.
func (o *Order) Remaining() fxpt.Qty { return o.Quantity }

// Fill reduces the order's remaining quantity and advances Executed and
// Status accordingly. It never drives Quantity below zero.
func (o *Order) Fill(qty fxpt.Qty) {
	if qty > o.Quantity {
		qty = o.Quantity
	}
	o.Quantity -= qty
	o.Executed += qty
	if o.Quantity == 0 {
		o.Status = StatusFilled
	} else {
		o.Status = StatusPartiallyFilled
	}
}

// Marketable reports whether the order would cross the given best contra
// price: always true for market orders, true for a limit order whose
// price crosses, per spec.md §4.2/§4.3.
func (o *Order) Marketable(bestContra fxpt.Px, contraExists bool) bool {
	if o.Type == fxpt.MarketOrder {
		return true
	}
	if !contraExists {
		return false
	}
	if o.Side == fxpt.Buy {
		return o.LimitPrice >= bestContra
	}
	return o.LimitPrice <= bestContra
}

// LiquidityFlag marks a fill as the resting (maker) or incoming (taker)
// side of a match, per spec.md §4.3.
type LiquidityFlag uint8

const (
	Maker LiquidityFlag = iota
	Taker
)

func (f LiquidityFlag) String() string {
	if f == Maker {
		return "maker"
	}
	return "taker"
}

// Fill is emitted once per side of a Match: the matching engine produces
// two (maker, taker), per spec.md §4.3 ¶ "Each match emits two fills".
type Fill struct {
	OrderID   string
	MatchID   string
	Symbol    fxpt.Symbol
	Side      fxpt.Side
	Price     fxpt.Px
	Quantity  fxpt.Qty
	Liquidity LiquidityFlag
	Timestamp fxpt.Ts
}
