// Package egress models the order-egress and market-data-egress wire
// contracts of spec.md §6 as plain Go interfaces, the way the teacher's
// net.Server only ever talks to its Engine interface
// (internal/net/server.go) rather than a concrete order book. A real
// venue adapter or gRPC transport is an external collaborator (spec.md
// §1) and out of scope for this core module; this package is the seam
// lifecycle.Manager and the market-data fan-out would be wired against.
package egress

import (
	"context"

	"fenrir/internal/fxpt"
)

// Liquidity tags which side of the trade a fill represents, per
// spec.md §6's Fill{..., liquidity}.
type Liquidity uint8

const (
	LiquidityMaker Liquidity = iota
	LiquidityTaker
)

func (l Liquidity) String() string {
	if l == LiquidityMaker {
		return "maker"
	}
	return "taker"
}

// Fill is a venue's report of an execution against a previously placed
// order, per spec.md §6: "Adapter reports fills via a
// Fill{order_id, exchange_fill_id, qty, price, ts, liquidity} stream."
type Fill struct {
	OrderID        string
	ExchangeFillID string
	Quantity       fxpt.Qty
	Price          fxpt.Px
	Timestamp      fxpt.Ts
	Liquidity      Liquidity
}

// Ack is the venue's synchronous response to PlaceOrder: either an
// accepted exchange order ID or a rejection reason.
type Ack struct {
	Accepted        bool
	ExchangeOrderID string
	RejectReason    string
}

// VenueAdapter is the contract an external venue connector implements
// for order routing, per spec.md §6 "place_order(...) -> order_ack |
// rejection; cancel_order(exchange_order_id); amend_order(...)". Fills
// streams fill reports back asynchronously; Run should block until ctx
// is cancelled.
type VenueAdapter interface {
	PlaceOrder(ctx context.Context, symbol fxpt.Symbol, side fxpt.Side, typ fxpt.OrderType, qty fxpt.Qty, price *fxpt.Px, tif fxpt.TimeInForce) (Ack, error)
	CancelOrder(ctx context.Context, exchangeOrderID string) error
	AmendOrder(ctx context.Context, exchangeOrderID string, newPrice *fxpt.Px, newQty *fxpt.Qty) error
	Fills(ctx context.Context, out chan<- Fill) error
}

// MarketDataPayloadKind tags the union carried by a MarketDataEvent,
// per spec.md §6's gRPC market-data egress payload: Trade|Candle|OrderBook|Quote.
type MarketDataPayloadKind uint8

const (
	PayloadTrade MarketDataPayloadKind = iota
	PayloadCandle
	PayloadOrderBook
	PayloadQuote
)

// MarketDataEvent is one entry of the gRPC subscription stream of
// spec.md §6: "{symbol, exchange, timestamp_ns, payload: Trade|Candle|OrderBook|Quote}".
// Payload carries the serialized form of whichever kind is named; this
// package does not define the wire encoding, only the contract shape a
// transport layer would populate.
type MarketDataEvent struct {
	Symbol      fxpt.Symbol
	Exchange    string
	TimestampNs int64
	Kind        MarketDataPayloadKind
	Payload     any
}

// MarketDataService models spec.md §6's market-data gRPC surface:
// subscribe is server-streaming, the rest unary.
type MarketDataService interface {
	Subscribe(ctx context.Context, symbols []fxpt.Symbol, exchange string, dataTypes []MarketDataPayloadKind, out chan<- MarketDataEvent) error
	Unsubscribe(ctx context.Context, symbols []fxpt.Symbol) error
	GetSnapshot(ctx context.Context, symbol fxpt.Symbol) (MarketDataEvent, error)
	GetHistoricalData(ctx context.Context, symbol fxpt.Symbol, from, to fxpt.Ts) ([]MarketDataEvent, error)
}
