package wal

import (
	"bufio"
	"os"
)

// segment wraps a single on-disk log file: its writer, current size, and
// starting sequence. Segments are immutable once rolled (spec.md §6).
type segment struct {
	startSeq uint64
	path     string
	file     *os.File
	writer   *bufio.Writer
	size     int64
}

func openSegmentForAppend(dir string, startSeq uint64) (*segment, error) {
	path := segmentPath(dir, startSeq)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &segment{
		startSeq: startSeq,
		path:     path,
		file:     f,
		writer:   bufio.NewWriter(f),
		size:     info.Size(),
	}, nil
}

func (s *segment) append(frame []byte) error {
	n, err := s.writer.Write(frame)
	s.size += int64(n)
	return err
}

func (s *segment) flush() error {
	if err := s.writer.Flush(); err != nil {
		return err
	}
	return s.file.Sync()
}

func (s *segment) close() error {
	if err := s.writer.Flush(); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}

func openSegmentForRead(path string) (*os.File, error) {
	return os.Open(path)
}

// countingReader wraps an io.Reader (deliberately unbuffered beyond the
// exact bytes each read requests) so validation and replay can track the
// precise byte offset of each frame boundary.
type countingReader struct {
	r     *os.File
	count int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.count += int64(n)
	return n, err
}

