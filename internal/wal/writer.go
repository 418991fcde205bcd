package wal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"fenrir/internal/coreerr"
	"fenrir/internal/fxpt"
)

// submission is a single record queued for durable append. ack, if
// non-nil, receives exactly one value (nil on success) once the record
// has been flushed to disk or its write has failed; it is never closed.
// Callers await this only when durability is required, per spec.md §5.
type submission struct {
	typ     RecordType
	payload []byte
	ack     chan error
}

// Log is the append-only, segmented write-ahead log. A single writer
// goroutine, supervised by a tomb, drains a bounded submission channel;
// all other operations (Replay, segment listing) are safe to call
// concurrently with writes.
type Log struct {
	dir string
	cfg Config

	mu       sync.Mutex
	active   *segment
	segments []uint64
	idx      *segmentIndex

	nextSeq atomic.Uint64
	submit  chan submission
	t       *tomb.Tomb

	refused atomic.Bool
}

// Open opens (creating if necessary) a WAL directory, recovers from any
// existing segments (validating CRCs and discarding a trailing partial
// frame per spec.md §4.1), and starts the writer goroutine.
func Open(ctx context.Context, cfg Config) (*Log, error) {
	cfg = cfg.withDefaults()
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, coreerr.Wrap(coreerr.KindWalIoFailure, "create wal dir", err, nil)
	}

	l := &Log{
		dir:    cfg.Dir,
		cfg:    cfg,
		submit: make(chan submission, 4096),
	}

	starts, err := listSegments(cfg.Dir)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.KindWalIoFailure, "list segments", err, nil)
	}
	l.segments = starts

	idx, err := openIndex(filepath.Join(cfg.Dir, "index"))
	if err != nil {
		return nil, coreerr.Wrap(coreerr.KindWalIoFailure, "open index", err, nil)
	}
	l.idx = idx

	lastSeq, err := l.recover()
	if err != nil {
		return nil, err
	}
	l.nextSeq.Store(lastSeq + 1)

	t, tctx := tomb.WithContext(ctx)
	l.t = t
	t.Go(func() error {
		l.run(tctx)
		return nil
	})

	return l, nil
}

// recover scans existing segments in order, validating CRCs, truncating
// at the first corrupt or partial frame, and opens (or creates) the
// active segment for append. It returns the last valid sequence seen.
func (l *Log) recover() (uint64, error) {
	var lastSeq uint64

	if len(l.segments) == 0 {
		seg, err := openSegmentForAppend(l.dir, 1)
		if err != nil {
			return 0, coreerr.Wrap(coreerr.KindWalIoFailure, "open initial segment", err, nil)
		}
		l.active = seg
		l.segments = []uint64{1}
		return 0, nil
	}

	for i, start := range l.segments {
		isLast := i == len(l.segments)-1
		validSize, seq, err := l.validateSegment(start)
		if err != nil {
			return 0, err
		}
		lastSeq = seq

		if isLast {
			path := segmentPath(l.dir, start)
			if err := truncateTo(path, validSize); err != nil {
				return 0, coreerr.Wrap(coreerr.KindWalIoFailure, "truncate trailing partial frame", err, nil)
			}
			seg, err := openSegmentForAppend(l.dir, start)
			if err != nil {
				return 0, coreerr.Wrap(coreerr.KindWalIoFailure, "reopen active segment", err, nil)
			}
			l.active = seg
			if validSize != fileSize(path) {
				log.Warn().
					Str("segment", segmentFileName(start)).
					Msg("wal recovery: truncated trailing partial or corrupt frame")
			}
		}
	}
	return lastSeq, nil
}

// validateSegment streams a segment, validating CRCs, and returns the
// byte offset up to which records are valid plus the last valid
// sequence number. It never returns a partial record to callers.
func (l *Log) validateSegment(start uint64) (validSize int64, lastSeq uint64, err error) {
	f, err := openSegmentForRead(segmentPath(l.dir, start))
	if err != nil {
		return 0, 0, coreerr.Wrap(coreerr.KindWalIoFailure, "open segment for validation", err, nil)
	}
	defer f.Close()

	r := &countingReader{r: f}
	for {
		before := r.count
		rec, _, ferr := decodeFrame(r)
		if ferr != nil {
			// Truncated trailing frame or CRC mismatch: stop here,
			// everything up to `before` is valid.
			return before, lastSeq, nil
		}
		lastSeq = rec.Sequence
		validSize = r.count
	}
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return -1
	}
	return info.Size()
}

func truncateTo(path string, size int64) error {
	return os.Truncate(path, size)
}

// Append enqueues a record for durable write without waiting for fsync.
// The caller observes the assigned sequence immediately; durability is
// only guaranteed after a subsequent flush (periodic, or via AppendSync).
func (l *Log) Append(ctx context.Context, typ RecordType, payload []byte) (uint64, error) {
	return l.enqueue(ctx, typ, payload, false)
}

// AppendSync enqueues a record and blocks until it has been fsynced to
// disk, per spec.md §5 ("producers enqueue and await an acknowledgment
// only when durability is required").
func (l *Log) AppendSync(ctx context.Context, typ RecordType, payload []byte) (uint64, error) {
	return l.enqueue(ctx, typ, payload, true)
}

func (l *Log) enqueue(ctx context.Context, typ RecordType, payload []byte, sync bool) (uint64, error) {
	if l.refused.Load() {
		return 0, coreerr.New(coreerr.KindWalIoFailure, "wal refusing writes after fatal error", nil)
	}
	seq := l.nextSeq.Add(1) - 1
	var ack chan error
	if sync {
		ack = make(chan error, 1)
	}
	sub := submission{typ: typ, payload: payload, ack: ack}

	select {
	case l.submit <- sub:
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-l.t.Dying():
		return 0, coreerr.New(coreerr.KindWalIoFailure, "wal shutting down", nil)
	}

	if sync {
		select {
		case err := <-ack:
			if err != nil {
				return seq, err
			}
		case <-ctx.Done():
			return seq, ctx.Err()
		}
	}
	return seq, nil
}

// run is the single-writer loop: it drains the submission queue,
// encodes and appends each record, rolls segments when the cap is
// reached, and flushes on a periodic tick plus whenever an ack is
// requested.
func (l *Log) run(ctx context.Context) {
	ticker := time.NewTicker(l.flushInterval())
	defer ticker.Stop()

	seq := l.nextSeq.Load()
	for {
		select {
		case <-l.t.Dying():
			l.flushBestEffort()
			return
		case <-ticker.C:
			if err := l.flush(); err != nil {
				l.onFatalIOError(err)
			}
		case sub := <-l.submit:
			ts := fxpt.Ts(time.Now().UnixNano())
			frame := encodeFrame(seq, ts, sub.typ, sub.payload)

			l.mu.Lock()
			if l.active.size+int64(len(frame)) > l.cfg.SegmentSizeBytes {
				if err := l.roll(seq); err != nil {
					l.mu.Unlock()
					l.onFatalIOError(err)
					if sub.ack != nil {
						sub.ack <- err
					}
					seq++
					continue
				}
			}
			err := l.active.append(frame)
			if err == nil {
				err = l.idx.append(indexEntry{
					Sequence:     seq,
					Ts:           uint64(ts),
					SegmentStart: l.active.startSeq,
					Offset:       l.active.size - int64(len(frame)),
				})
			}
			l.mu.Unlock()

			if err != nil {
				l.onFatalIOError(err)
			}
			if sub.ack != nil {
				if err == nil {
					err = l.flush()
				}
				sub.ack <- err
			}
			seq++
		}
	}
}

// roll closes the active segment and opens a new one starting at
// startSeq. A flush, close or open failure is returned at once, with no
// retry; run then treats it as fatal and the log refuses further writes.
func (l *Log) roll(startSeq uint64) error {
	if err := l.active.flush(); err != nil {
		return fmt.Errorf("flush before roll: %w", err)
	}
	if err := l.active.close(); err != nil {
		return fmt.Errorf("close before roll: %w", err)
	}
	seg, err := openSegmentForAppend(l.dir, startSeq)
	if err != nil {
		return fmt.Errorf("open next segment: %w", err)
	}
	l.active = seg
	l.segments = append(l.segments, startSeq)
	return nil
}

func (l *Log) flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active.flush()
}

func (l *Log) flushBestEffort() {
	if err := l.flush(); err != nil {
		log.Error().Err(err).Msg("wal: best-effort flush on shutdown failed")
	}
}

// onFatalIOError implements spec.md §7: WAL I/O failure is fatal. Flush
// best-effort, emit an emergency-level log, and refuse new writes.
func (l *Log) onFatalIOError(err error) {
	l.refused.Store(true)
	l.flushBestEffort()
	log.Error().Err(err).Msg("EMERGENCY: wal io failure, refusing new writes")
}

func (l *Log) flushInterval() time.Duration {
	if l.cfg.FsyncIntervalMs <= 0 {
		return 50 * time.Millisecond
	}
	return time.Duration(l.cfg.FsyncIntervalMs) * time.Millisecond
}

// Close stops the writer goroutine and releases the active segment and
// index file handles.
func (l *Log) Close() error {
	l.t.Kill(nil)
	_ = l.t.Wait()

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.active.close(); err != nil {
		return err
	}
	return l.idx.close()
}
