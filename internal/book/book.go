package book

import (
	"sync"

	"github.com/tidwall/btree"

	"fenrir/internal/fxpt"
	"fenrir/internal/model"
)

// Config holds the per-book tunables of spec.md §6.
type Config struct {
	ChecksumDepth    int
	MaxLevelsPerSide int
}

func (c Config) withDefaults() Config {
	if c.ChecksumDepth <= 0 {
		c.ChecksumDepth = 10
	}
	return c
}

type levels = btree.BTreeG[*PriceLevel]

type orderLocation struct {
	side  fxpt.Side
	price fxpt.Px
}

// Book is the price-level order book for a single symbol. Per spec.md
// §5, exactly one goroutine (the matching worker for this symbol) ever
// calls the mutating methods at a time; readers (depth/BBO/snapshot
// queries) take the read lock concurrently.
type Book struct {
	Symbol fxpt.Symbol
	cfg    Config

	mu   sync.RWMutex
	bids *levels // sorted descending by price
	asks *levels // sorted ascending by price

	index map[string]orderLocation

	insertionSeq uint64
	sequence     uint64
	checksum     uint64
}

// New creates an empty book for symbol.
func New(symbol fxpt.Symbol, cfg Config) *Book {
	cfg = cfg.withDefaults()
	bids := btree.NewBTreeG(func(a, b *PriceLevel) bool { return a.Price > b.Price })
	asks := btree.NewBTreeG(func(a, b *PriceLevel) bool { return a.Price < b.Price })
	b := &Book{
		Symbol: symbol,
		cfg:    cfg,
		bids:   bids,
		asks:   asks,
		index:  make(map[string]orderLocation),
	}
	b.recomputeChecksumLocked()
	return b
}

func (b *Book) levelsFor(side fxpt.Side) *levels {
	if side == fxpt.Buy {
		return b.bids
	}
	return b.asks
}

// BestBid returns the best (highest) resting bid price, if any.
func (b *Book) BestBid() (fxpt.Px, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	lvl, ok := b.bids.Min()
	if !ok {
		return 0, false
	}
	return lvl.Price, true
}

// BestAsk returns the best (lowest) resting ask price, if any.
func (b *Book) BestAsk() (fxpt.Px, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	lvl, ok := b.asks.Min()
	if !ok {
		return 0, false
	}
	return lvl.Price, true
}

// BBO returns the best bid and offer in one call, per spec.md §4.2.
func (b *Book) BBO() (bid *fxpt.Px, ask *fxpt.Px) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if lvl, ok := b.bids.Min(); ok {
		p := lvl.Price
		bid = &p
	}
	if lvl, ok := b.asks.Min(); ok {
		p := lvl.Price
		ask = &p
	}
	return bid, ask
}

// Depth returns up to n levels from the top of each side, per spec.md
// §4.2.
func (b *Book) Depth(n int) (bids []LevelView, asks []LevelView) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	bids = topLevels(b.bids, n)
	asks = topLevels(b.asks, n)
	return bids, asks
}

func topLevels(t *levels, n int) []LevelView {
	items := t.Items()
	if n > len(items) {
		n = len(items)
	}
	out := make([]LevelView, n)
	for i := 0; i < n; i++ {
		out[i] = items[i].view()
	}
	return out
}

// Checksum returns the last computed rolling checksum, per spec.md
// §4.2.
func (b *Book) Checksum() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.checksum
}

// Sequence returns the book's monotone mutation counter.
func (b *Book) Sequence() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.sequence
}

// State reports the book's coarse occupancy state, per spec.md §4.2.
func (b *Book) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, hasBid := b.bids.Min()
	_, hasAsk := b.asks.Min()
	switch {
	case hasBid && hasAsk:
		return StateTwoSided
	case hasBid:
		return StateOneSidedBid
	case hasAsk:
		return StateOneSidedAsk
	default:
		return StateEmpty
	}
}

// Crossed reports whether the best bid is >= best ask, which must never
// be observable outside of a single add_order call (spec.md §4.2).
func (b *Book) Crossed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	bb, hasBid := b.bids.Min()
	ba, hasAsk := b.asks.Min()
	return hasBid && hasAsk && bb.Price >= ba.Price
}

// InsertResting adds order to its side/price level, assigning it the
// book's next insertion sequence for FIFO priority, and recomputes the
// checksum. Callers (the matching engine) must ensure the order does
// not currently cross the book, per spec.md §4.2 ("crossed state is
// transient ... and never observable externally").
func (b *Book) InsertResting(order *model.Order) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.insertionSeq++
	order.InsertionSeq = b.insertionSeq

	t := b.levelsFor(order.Side)
	key := newPriceLevel(order.LimitPrice)
	lvl, ok := t.GetMut(key)
	if !ok {
		lvl = key
		t.Set(lvl)
	}
	lvl.Orders = append(lvl.Orders, order)
	lvl.TotalQuantity = lvl.TotalQuantity.Add(order.Quantity)

	b.index[order.ID] = orderLocation{side: order.Side, price: order.LimitPrice}
	b.bumpAndChecksum()
}

// RemoveOrder cancels a resting order by id in O(level depth), freeing
// the level if it becomes empty, per spec.md §4.2.
func (b *Book) RemoveOrder(orderID string) (*model.Order, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.removeOrderLocked(orderID)
}

func (b *Book) removeOrderLocked(orderID string) (*model.Order, bool) {
	loc, ok := b.index[orderID]
	if !ok {
		return nil, false
	}
	t := b.levelsFor(loc.side)
	key := newPriceLevel(loc.price)
	lvl, ok := t.GetMut(key)
	if !ok {
		delete(b.index, orderID)
		return nil, false
	}

	var removed *model.Order
	for i, o := range lvl.Orders {
		if o.ID == orderID {
			removed = o
			lvl.Orders = append(lvl.Orders[:i], lvl.Orders[i+1:]...)
			break
		}
	}
	if removed == nil {
		delete(b.index, orderID)
		return nil, false
	}
	lvl.TotalQuantity = lvl.TotalQuantity.Sub(removed.Quantity)
	if len(lvl.Orders) == 0 {
		t.Delete(key)
	}
	delete(b.index, orderID)
	b.bumpAndChecksum()
	return removed, true
}

// PeekBest returns the best resting level on side, without removing
// anything, for the matching engine to inspect before sweeping.
func (b *Book) PeekBest(side fxpt.Side) (LevelView, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	lvl, ok := b.levelsFor(side).Min()
	if !ok {
		return LevelView{}, false
	}
	return lvl.view(), true
}

// AvailableLiquidity sums resting quantity on side up to an optional
// price limit (nil = unbounded), used for a fill-or-kill pre-check.
func (b *Book) AvailableLiquidity(side fxpt.Side, priceLimit *fxpt.Px) fxpt.Qty {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var total fxpt.Qty
	for _, lvl := range b.levelsFor(side).Items() {
		if priceLimit != nil && !withinLimit(side, lvl.Price, *priceLimit) {
			break
		}
		total = total.Add(lvl.TotalQuantity)
	}
	return total
}

func withinLimit(restingSide fxpt.Side, restingPrice, limit fxpt.Px) bool {
	// restingSide is the side being swept (the contra side of the
	// incoming order); an incoming buy sweeps asks while they're <= its
	// limit, an incoming sell sweeps bids while they're >= its limit.
	if restingSide == fxpt.Sell {
		return restingPrice <= limit
	}
	return restingPrice >= limit
}

// CrossesOwnOrder reports whether an incoming order on side, with an
// optional limit price (nil for a market order, which matches any
// resting price), would cross a resting order on the opposite side
// owned by account. Self-cross prevention is the risk gate's
// responsibility, not the matcher's (spec.md §4.3); this is the book
// query the gate needs in order to make that call.
func (b *Book) CrossesOwnOrder(side fxpt.Side, priceLimit *fxpt.Px, account string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	contraSide := side.Opposite()
	for _, lvl := range b.levelsFor(contraSide).Items() {
		if priceLimit != nil && !withinLimit(contraSide, lvl.Price, *priceLimit) {
			break
		}
		for _, o := range lvl.Orders {
			if o.Owner == account {
				return true
			}
		}
	}
	return false
}

// SweepFunc is invoked by Sweep once per fill against a resting order.
// It must not retain resting beyond the call; Sweep owns its lifetime.
type SweepFunc func(resting *model.Order, fillQty fxpt.Qty)

// Sweep walks the contra side (the side holding resting orders opposite
// the incoming order) in price-time order, matching up to qty, stopping
// at priceLimit if non-nil (nil means unbounded, i.e. a market order).
// It mutates resting orders' remaining quantity in place, removes
// exhausted orders and emptied levels, and recomputes the checksum once
// at the end. It returns the quantity actually matched.
func (b *Book) Sweep(side fxpt.Side, qty fxpt.Qty, priceLimit *fxpt.Px, onFill SweepFunc) fxpt.Qty {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.levelsFor(side)
	var matched fxpt.Qty
	remaining := qty

	for remaining > 0 {
		lvl, ok := t.MinMut()
		if !ok {
			break
		}
		if priceLimit != nil && !withinLimit(side, lvl.Price, *priceLimit) {
			break
		}

		consumed := 0
		for _, resting := range lvl.Orders {
			if remaining == 0 {
				break
			}
			fillQty := fxpt.MinQty(remaining, resting.Quantity)
			resting.Fill(fillQty)
			lvl.TotalQuantity = lvl.TotalQuantity.Sub(fillQty)
			remaining -= fillQty
			matched += fillQty

			onFill(resting, fillQty)

			if resting.Quantity == 0 {
				delete(b.index, resting.ID)
				consumed++
			} else {
				break // partial fill always leaves the FIFO head resting
			}
		}
		if consumed > 0 {
			lvl.Orders = lvl.Orders[consumed:]
		}
		if len(lvl.Orders) == 0 {
			t.Delete(lvl)
		}
	}

	if matched > 0 {
		b.bumpAndChecksum()
	}
	return matched
}

// ApplySnapshot replaces the book's entire state, per spec.md §4.2; used
// on (re)subscribe after a sequence gap or checksum mismatch.
func (b *Book) ApplySnapshot(snap Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.bids = btree.NewBTreeG(func(a, b *PriceLevel) bool { return a.Price > b.Price })
	b.asks = btree.NewBTreeG(func(a, b *PriceLevel) bool { return a.Price < b.Price })
	b.index = make(map[string]orderLocation)

	load := func(t *levels, side fxpt.Side, views []LevelView) {
		for _, v := range views {
			lvl := newPriceLevel(v.Price)
			lvl.TotalQuantity = v.TotalQuantity
			// Synthesize a single anonymous resting order per level so
			// TotalQuantity/OrderCount invariants hold without exposing
			// per-order detail the snapshot wire format doesn't carry.
			lvl.Orders = make([]*model.Order, v.OrderCount)
			for i := range lvl.Orders {
				lvl.Orders[i] = &model.Order{Symbol: b.Symbol, Side: side, LimitPrice: v.Price}
			}
			t.Set(lvl)
		}
	}
	load(b.bids, fxpt.Buy, snap.Bids)
	load(b.asks, fxpt.Sell, snap.Asks)

	b.sequence = snap.Sequence
	b.recomputeChecksumLocked()
}

// ApplyDelta applies an additive update, per spec.md §4.2. It rejects
// the delta with a SequenceGapError if PrevSequence doesn't match the
// book's current sequence, requiring the caller to resync via snapshot.
func (b *Book) ApplyDelta(d Delta) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if d.PrevSequence != b.sequence {
		return &SequenceGapError{Expected: b.sequence, Got: d.PrevSequence}
	}

	applySide := func(t *levels, side fxpt.Side, updates []LevelUpdate, deletions []fxpt.Px) {
		for _, u := range updates {
			key := newPriceLevel(u.Price)
			if u.Quantity == 0 {
				t.Delete(key)
				continue
			}
			lvl, ok := t.GetMut(key)
			if !ok {
				lvl = key
				t.Set(lvl)
			}
			lvl.TotalQuantity = u.Quantity
			lvl.Orders = []*model.Order{{Symbol: b.Symbol, Side: side, LimitPrice: u.Price, Quantity: u.Quantity}}
		}
		for _, px := range deletions {
			t.Delete(newPriceLevel(px))
		}
	}
	applySide(b.bids, fxpt.Buy, d.BidUpdates, d.BidDeletions)
	applySide(b.asks, fxpt.Sell, d.AskUpdates, d.AskDeletions)

	b.sequence = d.Sequence
	b.recomputeChecksumLocked()
	return nil
}

func (b *Book) bumpAndChecksum() {
	b.sequence++
	b.recomputeChecksumLocked()
}

func (b *Book) recomputeChecksumLocked() {
	b.checksum = computeChecksum(b.bids, b.asks, b.cfg.ChecksumDepth)
}
