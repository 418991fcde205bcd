package instrument

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"fenrir/internal/fxpt"
	"fenrir/internal/wal"
)

// strikeEntry holds the call/put tokens registered at one strike.
type strikeEntry struct {
	call    fxpt.Symbol
	hasCall bool
	put     fxpt.Symbol
	hasPut  bool
}

// indices is the full set of in-memory lookup structures rebuilt
// atomically on refresh, per spec.md §4.7's "build-new-then-swap"
// rule.
type indices struct {
	byToken       map[fxpt.Symbol]Instrument
	byTradingSym  map[string][]fxpt.Symbol
	byUnderlying  map[string][]fxpt.Symbol
	activeFutures map[string][]fxpt.Symbol // sorted by expiry ascending
	optionChain   map[chainKey][]fxpt.Symbol
	optionsByStrike map[strikeKey]strikeEntry
	lastUpdate    fxpt.Ts
	hasLastUpdate bool
}

type chainKey struct {
	underlying string
	expiry     fxpt.Ts
}

type strikeKey struct {
	underlying string
	strike     fxpt.Px
}

func newIndices() *indices {
	return &indices{
		byToken:         make(map[fxpt.Symbol]Instrument),
		byTradingSym:    make(map[string][]fxpt.Symbol),
		byUnderlying:    make(map[string][]fxpt.Symbol),
		activeFutures:   make(map[string][]fxpt.Symbol),
		optionChain:     make(map[chainKey][]fxpt.Symbol),
		optionsByStrike: make(map[strikeKey]strikeEntry),
	}
}

func (ix *indices) add(now fxpt.Ts, i Instrument) {
	ix.byToken[i.Token] = i
	ix.byTradingSym[i.TradingSymbol] = append(ix.byTradingSym[i.TradingSymbol], i.Token)
	ix.byUnderlying[i.Underlying] = append(ix.byUnderlying[i.Underlying], i.Token)

	switch i.Kind {
	case KindFuture:
		if i.HasExpiry && i.IsActive(now) {
			list := append(ix.activeFutures[i.Underlying], i.Token)
			sort.Slice(list, func(a, b int) bool {
				return ix.byToken[list[a]].Expiry < ix.byToken[list[b]].Expiry
			})
			ix.activeFutures[i.Underlying] = list
		}
	case KindOption:
		if i.HasExpiry && i.HasOptionType {
			key := chainKey{underlying: i.Underlying, expiry: i.Expiry}
			ix.optionChain[key] = append(ix.optionChain[key], i.Token)

			sk := strikeKey{underlying: i.Underlying, strike: i.Strike}
			entry := ix.optionsByStrike[sk]
			if i.OptionType == Call {
				entry.call, entry.hasCall = i.Token, true
			} else {
				entry.put, entry.hasPut = i.Token, true
			}
			ix.optionsByStrike[sk] = entry
		}
	}
}

// Store is the WAL-backed instrument registry of spec.md §4.7. All
// mutation goes through the WAL first; in-memory indices are rebuilt
// build-new-then-swap on Refresh and incrementally extended on Add, per
// original_source/services/market-connector/src/instruments/store.rs.
type Store struct {
	log *wal.Log

	mu    sync.RWMutex
	ix    *indices
	total int
}

// Open constructs a Store writing through walLog. Callers that need to
// recover prior state should follow with LoadFromWAL.
func Open(walLog *wal.Log) *Store {
	return &Store{log: walLog, ix: newIndices()}
}

// LoadFromWAL rebuilds the in-memory indices from the durable log,
// per spec.md §4.7's recovery requirement.
func (s *Store) LoadFromWAL() error {
	fresh := newIndices()
	count := 0
	err := s.log.Replay(0, nil, func(rec wal.Record) error {
		if rec.Type != wal.RecordInstrument {
			return nil
		}
		i, err := decode(rec.Payload)
		if err != nil {
			log.Warn().Err(err).Msg("instrument store: dropped malformed record during replay")
			return nil
		}
		fresh.add(rec.Ts, i)
		fresh.lastUpdate, fresh.hasLastUpdate = rec.Ts, true
		count++
		return nil
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.ix = fresh
	s.total = count
	s.mu.Unlock()
	return nil
}

// Add durably appends i to the WAL, then extends the live indices.
func (s *Store) Add(ctx context.Context, now fxpt.Ts, i Instrument) error {
	if _, err := s.log.AppendSync(ctx, wal.RecordInstrument, encode(i)); err != nil {
		return err
	}

	s.mu.Lock()
	s.ix.add(now, i)
	s.ix.lastUpdate, s.ix.hasLastUpdate = now, true
	s.total++
	s.mu.Unlock()
	return nil
}

// Refresh bulk-loads a daily instrument set: every record is durably
// appended to the WAL (which is append-only and preserves history, per
// spec.md §4.7), then the in-memory indices are rebuilt from scratch and
// swapped in atomically so readers never observe a partial rebuild.
func (s *Store) Refresh(ctx context.Context, now fxpt.Ts, instruments []Instrument) (int, error) {
	for _, i := range instruments {
		if _, err := s.log.AppendSync(ctx, wal.RecordInstrument, encode(i)); err != nil {
			return 0, err
		}
	}

	fresh := newIndices()
	for _, i := range instruments {
		fresh.add(now, i)
	}
	fresh.lastUpdate, fresh.hasLastUpdate = now, true

	s.mu.Lock()
	s.ix = fresh
	s.total = len(instruments)
	s.mu.Unlock()

	log.Info().Int("count", len(instruments)).Msg("instrument store: refreshed")
	return len(instruments), nil
}

// ByToken is the hot-path O(1) lookup.
func (s *Store) ByToken(token fxpt.Symbol) (Instrument, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.ix.byToken[token]
	return i, ok
}

// ByTradingSymbol returns every instrument registered under symbol.
func (s *Store) ByTradingSymbol(symbol string) []Instrument {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resolve(s.ix.byTradingSym[symbol])
}

// ByUnderlying returns every instrument (futures, options, the spot
// itself) registered under the given underlying.
func (s *Store) ByUnderlying(underlying string) []Instrument {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resolve(s.ix.byUnderlying[underlying])
}

// ActiveFutures returns the active futures contracts for underlying,
// sorted by ascending expiry.
func (s *Store) ActiveFutures(underlying string, now fxpt.Ts) []Instrument {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tokens := s.ix.activeFutures[underlying]
	out := make([]Instrument, 0, len(tokens))
	for _, t := range tokens {
		if i, ok := s.ix.byToken[t]; ok && i.IsActive(now) {
			out = append(out, i)
		}
	}
	return out
}

// CurrentMonthFuture returns the nearest-expiry unexpired futures
// contract for underlying, per spec.md §4.7.
func (s *Store) CurrentMonthFuture(underlying string, now fxpt.Ts) (Instrument, bool) {
	futures := s.ActiveFutures(underlying, now)
	if len(futures) == 0 {
		return Instrument{}, false
	}
	return futures[0], true
}

// OptionChain returns every option registered for (underlying, expiry).
func (s *Store) OptionChain(underlying string, expiry fxpt.Ts) []Instrument {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resolve(s.ix.optionChain[chainKey{underlying: underlying, expiry: expiry}])
}

// OptionByStrike returns the call and put tokens at (underlying, strike).
// Integer comparison over the fixed-point strike avoids float keys, per
// spec.md §4.7.
func (s *Store) OptionByStrike(underlying string, strike fxpt.Px) (call, put Instrument, hasCall, hasPut bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.ix.optionsByStrike[strikeKey{underlying: underlying, strike: strike}]
	if !ok {
		return Instrument{}, Instrument{}, false, false
	}
	if entry.hasCall {
		call, hasCall = s.ix.byToken[entry.call], true
	}
	if entry.hasPut {
		put, hasPut = s.ix.byToken[entry.put], true
	}
	return call, put, hasCall, hasPut
}

// ATMStrikes returns the underlying's option strikes within strikeRange
// ticks of atmStrike, ascending — the subset used to build a market-data
// subscription list around the money.
func (s *Store) ATMStrikes(underlying string, atmStrike fxpt.Px, strikeInterval fxpt.Px, strikeRange int) []fxpt.Px {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lo := atmStrike - fxpt.Px(strikeRange)*strikeInterval
	hi := atmStrike + fxpt.Px(strikeRange)*strikeInterval

	var strikes []fxpt.Px
	for key := range s.ix.optionsByStrike {
		if key.underlying != underlying {
			continue
		}
		if key.strike >= lo && key.strike <= hi {
			strikes = append(strikes, key.strike)
		}
	}
	sort.Slice(strikes, func(a, b int) bool { return strikes[a] < strikes[b] })
	return strikes
}

// Query returns every instrument matching filter.
func (s *Store) Query(filter Filter) []Instrument {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Instrument
	for _, i := range s.ix.byToken {
		if filter.matches(i) {
			out = append(out, i)
		}
	}
	return out
}

// Stats reports index sizes, per SPEC_FULL.md §5.7.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	futuresCount := 0
	for _, v := range s.ix.activeFutures {
		futuresCount += len(v)
	}
	indexCount := 0
	for _, i := range s.ix.byToken {
		if i.Kind == KindIndex {
			indexCount++
		}
	}
	return Stats{
		TotalInstruments:   s.total,
		IndexCount:         indexCount,
		ActiveFuturesCount: futuresCount,
		SymbolCount:        len(s.ix.byTradingSym),
		UnderlyingCount:    len(s.ix.byUnderlying),
		OptionChainCount:   len(s.ix.optionChain),
		LastUpdate:         s.ix.lastUpdate,
		HasLastUpdate:      s.ix.hasLastUpdate,
	}
}

func (s *Store) resolve(tokens []fxpt.Symbol) []Instrument {
	out := make([]Instrument, 0, len(tokens))
	for _, t := range tokens {
		if i, ok := s.ix.byToken[t]; ok {
			out = append(out, i)
		}
	}
	return out
}
