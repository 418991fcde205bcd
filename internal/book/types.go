// Package book implements the per-symbol price-level order book engine
// (spec.md §4.2, C3): price-time priority via a btree of price levels,
// BBO/depth accessors, a rolling checksum, and snapshot/delta application
// for resync. It generalizes the teacher's internal/engine/orderbook.go
// (a single hardcoded-symbol, float64-priced btree.BTreeG[*PriceLevel])
// to fixed-point prices and a registry of books keyed by symbol.
package book

import (
	"errors"
	"fmt"

	"fenrir/internal/fxpt"
	"fenrir/internal/model"
)

// Sentinel errors, per spec.md §4.2/§7.
var (
	ErrSequenceGap  = errors.New("sequence gap")
	ErrOrderExists  = errors.New("order already exists")
	ErrOrderUnknown = errors.New("order not found")
	ErrCrossedBook  = errors.New("book is crossed")
)

// SequenceGapError carries the expected/observed sequence for a delta
// rejected out of order, per spec.md §4.2.
type SequenceGapError struct {
	Expected uint64
	Got      uint64
}

func (e *SequenceGapError) Error() string {
	return fmt.Sprintf("sequence gap: expected %d, got %d", e.Expected, e.Got)
}

func (e *SequenceGapError) Unwrap() error { return ErrSequenceGap }

// State is the book's coarse occupancy state, per spec.md §4.2's state
// machine {Empty, OneSided(Bid|Ask), TwoSided}.
type State uint8

const (
	StateEmpty State = iota
	StateOneSidedBid
	StateOneSidedAsk
	StateTwoSided
)

func (s State) String() string {
	switch s {
	case StateOneSidedBid:
		return "OneSidedBid"
	case StateOneSidedAsk:
		return "OneSidedAsk"
	case StateTwoSided:
		return "TwoSided"
	default:
		return "Empty"
	}
}

// PriceLevel is a FIFO queue of resting orders at a single price, per
// spec.md §3: TotalQuantity == sum(order.Remaining), OrderCount ==
// len(Orders).
type PriceLevel struct {
	Price         fxpt.Px
	TotalQuantity fxpt.Qty
	Orders        []*model.Order
}

func newPriceLevel(price fxpt.Px) *PriceLevel {
	return &PriceLevel{Price: price}
}

func (l *PriceLevel) orderCount() int { return len(l.Orders) }

// LevelView is a read-only snapshot of one price level, for depth/BBO
// queries and wire-format snapshots.
type LevelView struct {
	Price         fxpt.Px
	TotalQuantity fxpt.Qty
	OrderCount    int
}

func (l *PriceLevel) view() LevelView {
	return LevelView{Price: l.Price, TotalQuantity: l.TotalQuantity, OrderCount: l.orderCount()}
}

// Snapshot is a full replacement of book state, per spec.md §4.2
// apply_snapshot and §6 BookSnapshot.
type Snapshot struct {
	Symbol   fxpt.Symbol
	Bids     []LevelView
	Asks     []LevelView
	Sequence uint64
}

// LevelUpdate is one entry of a delta's additive price-level change.
type LevelUpdate struct {
	Price    fxpt.Px
	Quantity fxpt.Qty // new total quantity at this level; 0 deletes it if not already listed in Deletions
}

// Delta is an additive update, per spec.md §4.2 apply_delta and §6
// BookDelta. PrevSequence must equal the book's current sequence or the
// delta is rejected with SequenceGapError.
type Delta struct {
	Symbol        fxpt.Symbol
	BidUpdates    []LevelUpdate
	AskUpdates    []LevelUpdate
	BidDeletions  []fxpt.Px
	AskDeletions  []fxpt.Px
	PrevSequence  uint64
	Sequence      uint64
}
