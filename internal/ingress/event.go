// Package ingress defines the market-data ingress boundary of spec.md
// §6: the normalized MarketEvent sum type external exchange adapters
// produce, the Adapter contract they implement, and a Dispatcher that
// routes events into the order-book engine (C3) and aggregator (C5) and
// fans them back out on the event bus (C7). Generalizes the teacher's
// net.Engine interface (internal/net/server.go), which played the same
// "core talks to an interface, never a concrete transport" role for
// order placement.
package ingress

import (
	"fenrir/internal/book"
	"fenrir/internal/fxpt"
	"fenrir/internal/model"
)

// Kind tags which variant a MarketEvent carries.
type Kind uint8

const (
	KindTrade Kind = iota
	KindBookSnapshot
	KindBookDelta
)

func (k Kind) String() string {
	switch k {
	case KindTrade:
		return "trade"
	case KindBookSnapshot:
		return "book_snapshot"
	case KindBookDelta:
		return "book_delta"
	default:
		return "unknown"
	}
}

// MarketEvent is the normalized wire-independent shape an adapter
// emits, per spec.md §6: "External adapters normalize venue wire
// formats into MarketEvents (trade, book update, book snapshot)". Only
// one of the payload fields is populated, selected by Kind; this is a
// struct-of-optionals sum type rather than an interface so Dispatcher
// can switch on Kind without a type assertion per event.
type MarketEvent struct {
	Kind     Kind
	Symbol   fxpt.Symbol
	Trade    model.Trade
	Snapshot book.Snapshot
	Delta    book.Delta
}

// NewTradeEvent wraps a normalized trade print.
func NewTradeEvent(t model.Trade) MarketEvent {
	return MarketEvent{Kind: KindTrade, Symbol: t.Symbol, Trade: t}
}

// NewBookSnapshotEvent wraps a full book replacement.
func NewBookSnapshotEvent(s book.Snapshot) MarketEvent {
	return MarketEvent{Kind: KindBookSnapshot, Symbol: s.Symbol, Snapshot: s}
}

// NewBookDeltaEvent wraps an incremental book update.
func NewBookDeltaEvent(d book.Delta) MarketEvent {
	return MarketEvent{Kind: KindBookDelta, Symbol: d.Symbol, Delta: d}
}
