package wal

import (
	"bufio"
	"encoding/binary"
	"os"
	"sort"
)

// indexEntry maps a sequence/timestamp pair to its physical location, per
// spec.md §6's sidecar index. 32 bytes, fixed width, append-only.
type indexEntry struct {
	Sequence     uint64
	Ts           uint64
	SegmentStart uint64
	Offset       uint64
}

const indexEntrySize = 32

// segmentIndex is the in-memory, sorted-by-sequence mirror of the sidecar
// index file. Absent or corrupt index files are acceptable per spec.md
// §6; callers fall back to a full scan in that case.
type segmentIndex struct {
	path    string
	file    *os.File
	entries []indexEntry
}

func openIndex(path string) (*segmentIndex, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	idx := &segmentIndex{path: path, file: f}
	if err := idx.load(); err != nil {
		// Corrupt or truncated index: recovery will scan instead.
		idx.entries = nil
	}
	return idx, nil
}

func (idx *segmentIndex) load() error {
	f, err := os.Open(idx.path)
	if err != nil {
		return err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	buf := make([]byte, indexEntrySize)
	for {
		n, err := readFull(r, buf)
		if n == indexEntrySize {
			idx.entries = append(idx.entries, indexEntry{
				Sequence:     binary.BigEndian.Uint64(buf[0:8]),
				Ts:           binary.BigEndian.Uint64(buf[8:16]),
				SegmentStart: binary.BigEndian.Uint64(buf[16:24]),
				Offset:       binary.BigEndian.Uint64(buf[24:32]),
			})
		}
		if err != nil {
			break
		}
	}
	return nil
}

func (idx *segmentIndex) append(e indexEntry) error {
	buf := make([]byte, indexEntrySize)
	binary.BigEndian.PutUint64(buf[0:8], e.Sequence)
	binary.BigEndian.PutUint64(buf[8:16], e.Ts)
	binary.BigEndian.PutUint64(buf[16:24], e.SegmentStart)
	binary.BigEndian.PutUint64(buf[24:32], e.Offset)
	if _, err := idx.file.Write(buf); err != nil {
		return err
	}
	idx.entries = append(idx.entries, e)
	return nil
}

// seek returns the (segment start, offset) to begin a scan from in order
// to find the first record at or after ts, via binary search over the
// in-memory index. ok is false when the index has no entries, in which
// case the caller must scan from the first segment.
func (idx *segmentIndex) seek(ts uint64) (segStart, offset uint64, ok bool) {
	if len(idx.entries) == 0 {
		return 0, 0, false
	}
	i := sort.Search(len(idx.entries), func(i int) bool {
		return idx.entries[i].Ts >= ts
	})
	if i == len(idx.entries) {
		i = len(idx.entries) - 1
	}
	// Walk back to the start of a monotone run so we never skip past a
	// record we should have included, since segment boundaries don't
	// align with timestamp boundaries.
	for i > 0 && idx.entries[i-1].Ts >= ts {
		i--
	}
	e := idx.entries[i]
	return e.SegmentStart, e.Offset, true
}

func (idx *segmentIndex) close() error {
	return idx.file.Close()
}
