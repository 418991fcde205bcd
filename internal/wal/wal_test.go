package wal

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestLog(t *testing.T) *Log {
	t.Helper()
	dir := t.TempDir()
	l, err := Open(context.Background(), Config{Dir: dir, SegmentSizeBytes: 4096})
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestAppendAndReplayRoundTrip(t *testing.T) {
	l := openTestLog(t)
	ctx := context.Background()

	const n = 50
	for i := 0; i < n; i++ {
		_, err := l.AppendSync(ctx, RecordTrade, []byte(fmt.Sprintf("payload-%d", i)))
		require.NoError(t, err)
	}

	var got []string
	err := l.Replay(0, nil, func(r Record) error {
		got = append(got, string(r.Payload))
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, n)
	for i := 0; i < n; i++ {
		assert.Equal(t, fmt.Sprintf("payload-%d", i), got[i])
	}
}

func TestSequenceIsStrictlyMonotone(t *testing.T) {
	l := openTestLog(t)
	ctx := context.Background()

	var last uint64
	for i := 0; i < 20; i++ {
		seq, err := l.AppendSync(ctx, RecordTrade, []byte("x"))
		require.NoError(t, err)
		if i > 0 {
			assert.Greater(t, seq, last)
		}
		last = seq
	}
}

func TestSegmentRollsWhenCapExceeded(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(context.Background(), Config{Dir: dir, SegmentSizeBytes: 256})
	require.NoError(t, err)
	defer l.Close()

	ctx := context.Background()
	for i := 0; i < 100; i++ {
		_, err := l.AppendSync(ctx, RecordTrade, []byte("0123456789"))
		require.NoError(t, err)
	}

	l.mu.Lock()
	numSegments := len(l.segments)
	l.mu.Unlock()
	assert.Greater(t, numSegments, 1, "expected the log to roll into multiple segments")
}

func TestReplayRespectsStopTimestamp(t *testing.T) {
	l := openTestLog(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := l.AppendSync(ctx, RecordTrade, []byte(fmt.Sprintf("%d", i)))
		require.NoError(t, err)
	}

	var all []Record
	err := l.Replay(0, nil, func(r Record) error {
		all = append(all, r)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, all, 10)

	stop := all[5].Ts
	var got []Record
	err = l.Replay(0, &stop, func(r Record) error {
		got = append(got, r)
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, got, 5)
}

func TestRecoveryReopensAfterClose(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	l1, err := Open(ctx, Config{Dir: dir})
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err := l1.AppendSync(ctx, RecordTrade, []byte("a"))
		require.NoError(t, err)
	}
	require.NoError(t, l1.Close())

	l2, err := Open(ctx, Config{Dir: dir})
	require.NoError(t, err)
	defer l2.Close()

	seq, err := l2.AppendSync(ctx, RecordTrade, []byte("b"))
	require.NoError(t, err)
	assert.Equal(t, uint64(6), seq, "sequence numbering must resume after recovery")

	var count int
	err = l2.Replay(0, nil, func(Record) error {
		count++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 6, count)
}

func TestRecordTypeTagSurvivesRoundTrip(t *testing.T) {
	l := openTestLog(t)
	ctx := context.Background()

	types := []RecordType{RecordTrade, RecordBookSnapshot, RecordBookDelta, RecordAudit}
	for _, ty := range types {
		_, err := l.AppendSync(ctx, ty, []byte("p"))
		require.NoError(t, err)
	}

	var got []RecordType
	err := l.Replay(0, nil, func(r Record) error {
		got = append(got, r.Type)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, types, got)
}
