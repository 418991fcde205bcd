// Package instrument implements the WAL-backed instrument store of
// spec.md §4.7 (C8): an indexed registry of tradeable instruments
// supporting the lookups exchange adapters and the matching engine need
// — token lookup, symbol lookup, active-futures-by-underlying, and
// strike-indexed option chains. Grounded on
// original_source/services/market-connector/src/instruments/store.rs,
// translated from its FxHashMap-of-FxHashMap indices into Go maps and
// from its in-process WAL crate onto this repo's internal/wal (C2).
package instrument

import "fenrir/internal/fxpt"

// Kind distinguishes the instrument types the store indexes specially.
type Kind uint8

const (
	KindEquity Kind = iota
	KindIndex
	KindFuture
	KindOption
)

func (k Kind) String() string {
	switch k {
	case KindIndex:
		return "index"
	case KindFuture:
		return "future"
	case KindOption:
		return "option"
	default:
		return "equity"
	}
}

// OptionType distinguishes calls from puts.
type OptionType uint8

const (
	Call OptionType = iota
	Put
)

func (o OptionType) String() string {
	if o == Put {
		return "put"
	}
	return "call"
}

// Instrument is one tradeable contract, keyed by Token (== fxpt.Symbol,
// the numeric token the rest of the core uses on the hot path).
type Instrument struct {
	Token          fxpt.Symbol
	TradingSymbol  string
	Underlying     string
	Kind           Kind
	Expiry         fxpt.Ts // zero if not applicable
	HasExpiry      bool
	Strike         fxpt.Px // strike price, fixed-point; zero if not an option
	OptionType     OptionType
	HasOptionType  bool
	LotSize        fxpt.Qty
	TickSize       fxpt.Px
	Active         bool
}

// IsActive reports whether the instrument is presently tradeable: an
// instrument with Active unset is never active; otherwise one without an
// expiry is always active, and one with an expiry is active only until it.
func (i Instrument) IsActive(now fxpt.Ts) bool {
	if !i.Active {
		return false
	}
	if !i.HasExpiry {
		return true
	}
	return i.Expiry > now
}

// Filter narrows a Query over the store's full instrument set. A zero
// value matches everything.
type Filter struct {
	Kind       Kind
	HasKind    bool
	Underlying string
	ActiveOnly bool
	Now        fxpt.Ts
}

func (f Filter) matches(i Instrument) bool {
	if f.HasKind && i.Kind != f.Kind {
		return false
	}
	if f.Underlying != "" && i.Underlying != f.Underlying {
		return false
	}
	if f.ActiveOnly && !i.IsActive(f.Now) {
		return false
	}
	return true
}

// Stats summarizes index sizes, per SPEC_FULL.md §5.7's Debug-style
// supplement (echoes the teacher's LogBook inspect message).
type Stats struct {
	TotalInstruments     int
	IndexCount           int
	ActiveFuturesCount   int
	SymbolCount          int
	UnderlyingCount      int
	OptionChainCount     int
	LastUpdate           fxpt.Ts
	HasLastUpdate        bool
}
