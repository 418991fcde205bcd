// Package wal implements the append-only, segmented write-ahead log that
// every trade, book event, and audit record in the core is durably
// written to before it becomes visible in memory (spec.md §4.1).
//
// Framing per record: [len:u32 | seq:u64 | ts:u64 | type:u8 | payload | crc32:u32].
// len counts only the payload bytes. Segments are capped by size and
// roll atomically; replay streams records from a start timestamp via the
// sidecar index, falling back to a full scan if the index is missing or
// stale.
package wal

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sort"

	"fenrir/internal/coreerr"
	"fenrir/internal/fxpt"
)

// RecordType tags the payload kind stored in a WAL entry. Supplements
// spec.md's bare `type_tag` byte with the concrete event kinds the
// aggregator and instrument store need to distinguish on replay
// (grounded on original_source/services/data-aggregator/src/storage/events.rs).
type RecordType uint8

const (
	RecordTrade RecordType = iota
	RecordBookSnapshot
	RecordBookDelta
	RecordInstrument
	RecordAudit
	RecordRecoveryEvent
)

func (t RecordType) String() string {
	switch t {
	case RecordTrade:
		return "trade"
	case RecordBookSnapshot:
		return "book_snapshot"
	case RecordBookDelta:
		return "book_delta"
	case RecordInstrument:
		return "instrument"
	case RecordAudit:
		return "audit"
	case RecordRecoveryEvent:
		return "recovery_event"
	default:
		return "unknown"
	}
}

// Record is a single WAL entry. Sequence is strictly monotone per log.
type Record struct {
	Sequence uint64
	Ts       fxpt.Ts
	Type     RecordType
	Payload  []byte
}

const (
	lenFieldSize   = 4
	seqFieldSize   = 8
	tsFieldSize    = 8
	typeFieldSize  = 1
	crcFieldSize   = 4
	frameOverhead  = lenFieldSize + seqFieldSize + tsFieldSize + typeFieldSize + crcFieldSize
	defaultSegSize = 100 * 1024 * 1024
)

// Config holds the startup options for a Log, per spec.md §6.
type Config struct {
	Dir             string
	SegmentSizeBytes int64
	FsyncIntervalMs int
	ReplayOnOpen    bool
}

func (c Config) withDefaults() Config {
	if c.SegmentSizeBytes <= 0 {
		c.SegmentSizeBytes = defaultSegSize
	}
	return c
}

// encodeFrame serializes a record to its on-disk frame.
func encodeFrame(seq uint64, ts fxpt.Ts, typ RecordType, payload []byte) []byte {
	buf := make([]byte, frameOverhead+len(payload))
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(payload)))
	binary.BigEndian.PutUint64(buf[4:12], seq)
	binary.BigEndian.PutUint64(buf[12:20], uint64(ts))
	buf[20] = byte(typ)
	copy(buf[21:21+len(payload)], payload)
	crc := crc32.ChecksumIEEE(buf[4 : 21+len(payload)])
	binary.BigEndian.PutUint32(buf[21+len(payload):], crc)
	return buf
}

// decodeFrame reads a single frame from r, returning coreerr.ErrWalCorrupt
// if the CRC does not validate. At end of input, or for a truncated
// frame, it returns the reader's own error (e.g. io.EOF).
func decodeFrame(r io.Reader) (Record, int, error) {
	lenBuf := make([]byte, lenFieldSize)
	if _, err := readFull(r, lenBuf); err != nil {
		return Record{}, 0, err
	}
	payloadLen := binary.BigEndian.Uint32(lenBuf)

	rest := make([]byte, seqFieldSize+tsFieldSize+typeFieldSize+int(payloadLen)+crcFieldSize)
	if _, err := readFull(r, rest); err != nil {
		return Record{}, 0, err
	}

	seq := binary.BigEndian.Uint64(rest[0:8])
	ts := binary.BigEndian.Uint64(rest[8:16])
	typ := RecordType(rest[16])
	payload := rest[17 : 17+payloadLen]
	wantCrc := binary.BigEndian.Uint32(rest[17+payloadLen:])

	check := make([]byte, 0, len(rest)-crcFieldSize+lenFieldSize)
	check = append(check, lenBuf...)
	check = append(check, rest[:len(rest)-crcFieldSize]...)
	gotCrc := crc32.ChecksumIEEE(check[4:])
	if gotCrc != wantCrc {
		return Record{}, 0, fmt.Errorf("%w: sequence %d", coreerr.ErrWalCorrupt, seq)
	}

	return Record{
		Sequence: seq,
		Ts:       fxpt.Ts(ts),
		Type:     typ,
		Payload:  payload,
	}, lenFieldSize + len(rest), nil
}

func readFull(r io.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// segmentFileName returns the canonical file name for a segment starting
// at startSeq, per spec.md §6.
func segmentFileName(startSeq uint64) string {
	return fmt.Sprintf("wal-%020d.log", startSeq)
}

func segmentPath(dir string, startSeq uint64) string {
	return filepath.Join(dir, segmentFileName(startSeq))
}

// listSegments returns the start sequences of segment files found in dir,
// sorted ascending.
func listSegments(dir string) ([]uint64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var starts []uint64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		var start uint64
		if _, err := fmt.Sscanf(e.Name(), "wal-%020d.log", &start); err == nil {
			starts = append(starts, start)
		}
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i] < starts[j] })
	return starts, nil
}

