package instrument

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fenrir/internal/fxpt"
	"fenrir/internal/wal"
)

func openTestLog(t *testing.T) *wal.Log {
	t.Helper()
	l, err := wal.Open(context.Background(), wal.Config{Dir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func future(token fxpt.Symbol, underlying string, expiry fxpt.Ts) Instrument {
	return Instrument{
		Token:         token,
		TradingSymbol: underlying + "FUT",
		Underlying:    underlying,
		Kind:          KindFuture,
		Expiry:        expiry,
		HasExpiry:     true,
		Active:        true,
	}
}

func option(token fxpt.Symbol, underlying string, expiry fxpt.Ts, strike fxpt.Px, typ OptionType) Instrument {
	return Instrument{
		Token:         token,
		TradingSymbol: underlying + "OPT",
		Underlying:    underlying,
		Kind:          KindOption,
		Expiry:        expiry,
		HasExpiry:     true,
		Strike:        strike,
		OptionType:    typ,
		HasOptionType: true,
		Active:        true,
	}
}

func TestByTokenRoundTripsAfterAdd(t *testing.T) {
	s := Open(openTestLog(t))
	i := Instrument{Token: 1, TradingSymbol: "NIFTY", Underlying: "NIFTY", Kind: KindIndex, Active: true}
	require.NoError(t, s.Add(context.Background(), 0, i))

	got, ok := s.ByToken(1)
	require.True(t, ok)
	assert.Equal(t, i, got)
}

func TestActiveFuturesSortedByExpiryAscending(t *testing.T) {
	s := Open(openTestLog(t))
	ctx := context.Background()
	require.NoError(t, s.Add(ctx, 0, future(2, "NIFTY", 300)))
	require.NoError(t, s.Add(ctx, 0, future(1, "NIFTY", 100)))
	require.NoError(t, s.Add(ctx, 0, future(3, "NIFTY", 200)))

	futures := s.ActiveFutures("NIFTY", 0)
	require.Len(t, futures, 3)
	assert.Equal(t, fxpt.Symbol(1), futures[0].Token)
	assert.Equal(t, fxpt.Symbol(3), futures[1].Token)
	assert.Equal(t, fxpt.Symbol(2), futures[2].Token)
}

func TestCurrentMonthFutureIsNearestUnexpired(t *testing.T) {
	s := Open(openTestLog(t))
	ctx := context.Background()
	require.NoError(t, s.Add(ctx, 0, future(1, "NIFTY", 100)))
	require.NoError(t, s.Add(ctx, 0, future(2, "NIFTY", 200)))

	cm, ok := s.CurrentMonthFuture("NIFTY", 150)
	require.True(t, ok)
	assert.Equal(t, fxpt.Symbol(2), cm.Token, "expired (expiry<=now) contracts must be excluded")
}

func TestOptionByStrikeSeparatesCallAndPut(t *testing.T) {
	s := Open(openTestLog(t))
	ctx := context.Background()
	strike := fxpt.Px(20000 * fxpt.Scale)
	require.NoError(t, s.Add(ctx, 0, option(10, "NIFTY", 1000, strike, Call)))
	require.NoError(t, s.Add(ctx, 0, option(11, "NIFTY", 1000, strike, Put)))

	call, put, hasCall, hasPut := s.OptionByStrike("NIFTY", strike)
	require.True(t, hasCall)
	require.True(t, hasPut)
	assert.Equal(t, fxpt.Symbol(10), call.Token)
	assert.Equal(t, fxpt.Symbol(11), put.Token)
}

func TestOptionChainGroupsByUnderlyingAndExpiry(t *testing.T) {
	s := Open(openTestLog(t))
	ctx := context.Background()
	require.NoError(t, s.Add(ctx, 0, option(10, "NIFTY", 1000, fxpt.Px(1), Call)))
	require.NoError(t, s.Add(ctx, 0, option(11, "NIFTY", 1000, fxpt.Px(2), Put)))
	require.NoError(t, s.Add(ctx, 0, option(12, "NIFTY", 2000, fxpt.Px(1), Call)))

	chain := s.OptionChain("NIFTY", 1000)
	assert.Len(t, chain, 2)
}

// TestRefreshSwapsIndicesAtomically is the build-new-then-swap
// requirement of spec.md §4.7: a Refresh must leave readers seeing
// either the old or the new instrument set, never a partial rebuild,
// and the WAL must retain every record across refreshes.
func TestRefreshSwapsIndicesAtomically(t *testing.T) {
	s := Open(openTestLog(t))
	ctx := context.Background()
	require.NoError(t, s.Add(ctx, 0, future(1, "NIFTY", 100)))

	n, err := s.Refresh(ctx, 1, []Instrument{
		future(2, "NIFTY", 200),
		future(3, "BANKNIFTY", 300),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, stillThere := s.ByToken(1)
	assert.False(t, stillThere, "refresh replaces the live index wholesale")

	_, ok := s.ByToken(2)
	assert.True(t, ok)

	stats := s.Stats()
	assert.Equal(t, 2, stats.TotalInstruments)
}

func TestLoadFromWALRebuildsIndicesAfterRefresh(t *testing.T) {
	l := openTestLog(t)
	ctx := context.Background()

	s := Open(l)
	require.NoError(t, s.Add(ctx, 0, future(1, "NIFTY", 100)))
	_, err := s.Refresh(ctx, 1, []Instrument{future(2, "NIFTY", 200)})
	require.NoError(t, err)

	recovered := Open(l)
	require.NoError(t, recovered.LoadFromWAL())

	// The WAL is append-only and preserves history (spec.md §4.7), so
	// replay sees both the original Add and the refreshed instrument.
	_, ok1 := recovered.ByToken(1)
	_, ok2 := recovered.ByToken(2)
	assert.True(t, ok1)
	assert.True(t, ok2)
}

func TestQueryFiltersByKindAndActivity(t *testing.T) {
	s := Open(openTestLog(t))
	ctx := context.Background()
	require.NoError(t, s.Add(ctx, 0, future(1, "NIFTY", 100)))
	require.NoError(t, s.Add(ctx, 0, Instrument{Token: 2, TradingSymbol: "NIFTY", Underlying: "NIFTY", Kind: KindIndex, Active: true}))

	futuresOnly := s.Query(Filter{Kind: KindFuture, HasKind: true})
	require.Len(t, futuresOnly, 1)
	assert.Equal(t, fxpt.Symbol(1), futuresOnly[0].Token)

	activeAt50 := s.Query(Filter{ActiveOnly: true, Now: 50})
	assert.Len(t, activeAt50, 2)

	activeAt150 := s.Query(Filter{Kind: KindFuture, HasKind: true, ActiveOnly: true, Now: 150})
	assert.Len(t, activeAt150, 0, "expired future must not match ActiveOnly")
}
