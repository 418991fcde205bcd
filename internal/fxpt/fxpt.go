// Package fxpt implements the fixed-point scalar types used on every hot
// path in the core: prices, quantities, timestamps and symbol tokens.
// Floats are not used here; see the package doc on Px for the rationale.
package fxpt

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

// Scale is the number of implied decimal places carried by Px and Qty.
// A Px or Qty of 1 represents 0.0001 of the underlying unit.
const Scale int64 = 10_000

// Px is a price scaled by Scale. Arithmetic on Px is plain int64 math:
// deterministic, associative, and comparable without an epsilon.
type Px int64

// Qty is a signed quantity scaled by Scale. Negative Qty represents a
// short/sell-side quantity where callers need signed netting (positions);
// order and book quantities are always non-negative.
type Qty int64

// Ts is nanoseconds since the Unix epoch. All timestamps in the core are
// normalized to nanoseconds on ingest; see DESIGN.md for the adapters'
// normalization requirement.
type Ts uint64

// Symbol is a numeric token assigned by the instrument store. It is never
// parsed or compared as a string on the hot path.
type Symbol uint32

// PxFromFloat converts a float64 (an external-boundary value, e.g. JSON)
// into a Px. Never call this from the matching, risk, or aggregation hot
// paths.
func PxFromFloat(f float64) Px {
	return Px(decimal.NewFromFloat(f).Mul(decimal.NewFromInt(Scale)).IntPart())
}

// QtyFromFloat is the Qty analogue of PxFromFloat.
func QtyFromFloat(f float64) Qty {
	return Qty(decimal.NewFromFloat(f).Mul(decimal.NewFromInt(Scale)).IntPart())
}

// Decimal renders p as a decimal.Decimal for display, JSON, or reporting.
// This is the only sanctioned way to turn a Px back into a non-integer
// representation.
func (p Px) Decimal() decimal.Decimal {
	return decimal.New(int64(p), 0).Div(decimal.New(Scale, 0))
}

// Decimal renders q as a decimal.Decimal. See Px.Decimal.
func (q Qty) Decimal() decimal.Decimal {
	return decimal.New(int64(q), 0).Div(decimal.New(Scale, 0))
}

func (p Px) String() string { return p.Decimal().String() }
func (q Qty) String() string { return q.Decimal().String() }

// Add, Sub are plain saturation-free int64 arithmetic; overflow is not a
// concern at realistic trading-system magnitudes and is intentionally not
// guarded here, matching the teacher's style of trusting internal callers.
func (p Px) Add(o Px) Px { return p + o }
func (p Px) Sub(o Px) Px { return p - o }

func (q Qty) Add(o Qty) Qty { return q + o }
func (q Qty) Sub(o Qty) Qty { return q - o }

// MinQty returns the smaller of two quantities.
func MinQty(a, b Qty) Qty {
	if a < b {
		return a
	}
	return b
}

// Side identifies the direction of an order: Buy (bid) or Sell (ask).
type Side uint8

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Buy {
		return "buy"
	}
	return "sell"
}

// Opposite returns the contra side.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// OrderType distinguishes resting limit orders from immediately-executed
// market orders.
type OrderType uint8

const (
	LimitOrder OrderType = iota
	MarketOrder
)

func (t OrderType) String() string {
	if t == MarketOrder {
		return "market"
	}
	return "limit"
}

// TimeInForce governs how long an order may rest before it is cancelled
// or how it must be filled. Supplements spec.md's bare mention of "TIF
// expiry" with the concrete enum used by the rest of the corpus.
type TimeInForce uint8

const (
	// GTC orders rest until filled or explicitly cancelled.
	GTC TimeInForce = iota
	// IOC orders fill what they can immediately; any remainder is
	// cancelled rather than rested. This is the default for market
	// orders per spec.md §4.2.
	IOC
	// FOK orders must fill in their entirety immediately or are
	// rejected with no partial execution.
	FOK
	// Day orders rest until filled, cancelled, or expired by a call to
	// lifecycle.Manager.ExpireOrder; nothing expires them automatically
	// at the end of a trading session.
	Day
)

func (t TimeInForce) String() string {
	switch t {
	case IOC:
		return "IOC"
	case FOK:
		return "FOK"
	case Day:
		return "DAY"
	default:
		return "GTC"
	}
}

// ParseSymbol is a convenience for CLI/test callers building a Symbol
// from a decimal string token.
func ParseSymbol(s string) (Symbol, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("parse symbol %q: %w", s, err)
	}
	return Symbol(v), nil
}
