package model

import "fenrir/internal/fxpt"

// Match is a single crossing event, per spec.md §3: created by the
// matching engine, immutable once emitted, persisted to the WAL before
// fan-out.
type Match struct {
	ID                string
	Symbol            fxpt.Symbol
	AggressiveOrderID string
	PassiveOrderID    string
	Price             fxpt.Px
	Quantity          fxpt.Qty
	Timestamp         fxpt.Ts
}

// AggressorSide is the side of the order that triggered the match
// (spec.md §6, MarketEvent Trade.aggressor_side).
type AggressorSide = fxpt.Side

// Trade is the market-data representation of a match, as broadcast on
// the event bus / WAL and consumed by the aggregator.
type Trade struct {
	Symbol         fxpt.Symbol
	Price          fxpt.Px
	Quantity       fxpt.Qty
	AggressorSide  AggressorSide
	TradeID        string
	Timestamp      fxpt.Ts
}

// FromMatch converts an engine Match into a market-data Trade. The
// aggressor side is the side of the order that was the taker.
func FromMatch(m Match, aggressorSide fxpt.Side) Trade {
	return Trade{
		Symbol:        m.Symbol,
		Price:         m.Price,
		Quantity:      m.Quantity,
		AggressorSide: aggressorSide,
		TradeID:       m.ID,
		Timestamp:     m.Timestamp,
	}
}
