// Package match implements the matching engine (spec.md §4.3, C4):
// stateless crossing logic over an internal/book.Book. It generalizes
// the teacher's OrderBook.Match/handleLimit/handleMarket
// (internal/engine/orderbook.go) into a Matcher that takes a resolved
// *book.Book for whatever symbol the incoming order targets and
// produces Match/Fill records rather than mutating any engine-owned
// state of its own.
package match

import (
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"fenrir/internal/book"
	"fenrir/internal/fxpt"
	"fenrir/internal/model"
)

// ErrRejectFOK describes a fill-or-kill order that cannot be filled in
// full against currently resting liquidity (IOC/FOK semantics supplement
// pulled from original_source's matching reference). Process does not
// return it: it reports that case as Result.Rejected and leaves the book
// untouched.
var ErrRejectFOK = errors.New("fill-or-kill: insufficient liquidity")

// Result is what Process returns for one incoming order.
type Result struct {
	Matches  []model.Match
	Fills    []model.Fill
	Resting  bool // true if the order (or its residual) now rests on the book
	Rejected bool // true for a killed FOK order; Matches/Fills are empty
}

// Matcher is stateless: every method takes the book it operates over.
// Per spec.md §4.3 "Stateless over books (the books are its state)".
type Matcher struct{}

// New returns a ready-to-use Matcher.
func New() *Matcher { return &Matcher{} }

// Process runs the full crossing algorithm of spec.md §4.3 for an
// incoming order against b, the book for order.Symbol. now is the
// exchange timestamp to stamp onto matches/fills.
func (m *Matcher) Process(b *book.Book, order *model.Order, now fxpt.Ts) Result {
	contraSide := order.Side.Opposite()

	if order.TIF == fxpt.FOK {
		var limit *fxpt.Px
		if order.Type == fxpt.LimitOrder {
			limit = &order.LimitPrice
		}
		if b.AvailableLiquidity(contraSide, limit) < order.Quantity {
			log.Debug().Str("order_id", order.ID).Msg("fill-or-kill rejected: insufficient liquidity")
			return Result{Rejected: true}
		}
	}

	var bestContra fxpt.Px
	var contraExists bool
	if v, ok := b.PeekBest(contraSide); ok {
		bestContra = v.Price
		contraExists = true
	}

	if !order.Marketable(bestContra, contraExists) {
		return m.rest(b, order)
	}

	var limit *fxpt.Px
	if order.Type == fxpt.LimitOrder {
		limit = &order.LimitPrice
	}

	var matches []model.Match
	var fills []model.Fill

	matchedQty := b.Sweep(contraSide, order.Quantity, limit, func(resting *model.Order, fillQty fxpt.Qty) {
		matchID := uuid.NewString()
		price := resting.LimitPrice

		matches = append(matches, model.Match{
			ID:                matchID,
			Symbol:            order.Symbol,
			AggressiveOrderID: order.ID,
			PassiveOrderID:    resting.ID,
			Price:             price,
			Quantity:          fillQty,
			Timestamp:         now,
		})
		fills = append(fills,
			model.Fill{OrderID: resting.ID, MatchID: matchID, Symbol: order.Symbol, Side: resting.Side, Price: price, Quantity: fillQty, Liquidity: model.Maker, Timestamp: now},
			model.Fill{OrderID: order.ID, MatchID: matchID, Symbol: order.Symbol, Side: order.Side, Price: price, Quantity: fillQty, Liquidity: model.Taker, Timestamp: now},
		)
	})
	order.Fill(matchedQty)

	result := Result{Matches: matches, Fills: fills}

	if order.Quantity == 0 {
		return result
	}

	// Residual handling, per spec.md §4.3 step 4 and §4.8's TIF
	// supplement: IOC and market orders discard any unfilled residual;
	// GTC and Day rest it.
	switch {
	case order.Type == fxpt.MarketOrder:
		order.Status = model.StatusCancelled
	case order.TIF == fxpt.IOC:
		order.Status = model.StatusCancelled
	default:
		rested := m.rest(b, order)
		result.Resting = rested.Resting
	}
	return result
}

// rest inserts order onto its own side of b if it is a limit order with
// residual quantity; market orders with no crossing liquidity are
// discarded rather than rested, per spec.md §4.3 step 4.
func (m *Matcher) rest(b *book.Book, order *model.Order) Result {
	if order.Type == fxpt.MarketOrder {
		order.Status = model.StatusCancelled
		return Result{}
	}
	if order.Status != model.StatusPartiallyFilled {
		order.Status = model.StatusPending
	}
	b.InsertResting(order)
	return Result{Resting: true}
}
