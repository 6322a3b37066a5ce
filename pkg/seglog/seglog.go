package seglog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"code.cloudfoundry.org/bytefmt"
	"go.uber.org/zap"

	"github.com/scottcagno/seglog/pkg/mmap"
)

const (
	logSuffix = ".log"
	nameWidth = 20
)

var (
	ErrSegmentFull = errors.New("error: segment is full")
	ErrOutOfBounds = errors.New("error: out of bounds")
	ErrClosed      = errors.New("error: segment closed")
)

// MakeFileName returns a 20-byte textual representation of a base offset
// for lexical ordering, followed by the .log extension and the provided
// suffix. This is used for the file names of log segments.
func MakeFileName(baseOffset uint64, suffix string) string {
	return fmt.Sprintf("%020d%s%s", baseOffset, logSuffix, suffix)
}

// OffsetFromFileName parses the base offset back out of a segment file name.
func OffsetFromFileName(name string) (uint64, error) {
	if len(name) < nameWidth+len(logSuffix) || !strings.HasPrefix(name[nameWidth:], logSuffix) {
		return 0, fmt.Errorf("error: bad segment file name %q", name)
	}
	return strconv.ParseUint(name[:nameWidth], 10, 64)
}

// Segment is one fixed-capacity, append-only portion of a larger logical
// log, backed by a file preallocated to its full size and mapped into
// memory for its entire lifetime. The write cursor only moves forward,
// and only through Write; when a write no longer fits it is up to the
// caller to roll over to a fresh segment.
//
// A Segment has a single writer; concurrent Write calls must be
// serialized by the caller. Reads over a stable range are safe to run
// concurrently with each other.
type Segment struct {
	path       string        // full path to this segment file
	baseOffset uint64        // starting offset of this segment in the logical log
	maxSize    int64         // fixed byte capacity reserved on disk
	offset     int64         // next writable byte position
	fd         *os.File      // underlying pre-sized file
	m          *mmap.Mapping // writable mapping of the file's full extent
	conf       *Config
	open       bool
}

// Open creates or opens the segment for the provided base offset inside
// dir, creating the directory path first if any of it is missing. The
// backing file is forced to exactly conf.MaxSize bytes (a no-op when it
// is already that size) and mapped in full; the cursor starts at zero.
// On any failure everything acquired up to that point is released again,
// and a file this call itself created is removed.
func Open(dir string, baseOffset uint64, conf *Config) (*Segment, error) {
	conf = checkConfig(conf)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("error: making segment dir %q: %w", dir, err)
	}
	path := filepath.Join(dir, MakeFileName(baseOffset, conf.Suffix))
	created := false
	if _, err := os.Stat(path); err != nil && os.IsNotExist(err) {
		created = true
	}
	fd, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0666)
	if err != nil {
		return nil, fmt.Errorf("error: opening segment file %q: %w", path, err)
	}
	onFailure := func() {
		_ = fd.Close()
		if created {
			_ = os.Remove(path)
		}
	}
	if err = fd.Truncate(conf.MaxSize); err != nil {
		onFailure()
		return nil, fmt.Errorf("error: sizing segment file %q to %d bytes: %w", path, conf.MaxSize, err)
	}
	m, err := mmap.Map(fd.Fd(), int(conf.MaxSize))
	if err != nil {
		onFailure()
		return nil, err
	}
	s := &Segment{
		path:       path,
		baseOffset: baseOffset,
		maxSize:    conf.MaxSize,
		offset:     0,
		fd:         fd,
		m:          m,
		conf:       conf,
		open:       true,
	}
	conf.Logger.Debug("opened segment",
		zap.String("path", path),
		zap.Uint64("baseOffset", baseOffset),
		zap.String("maxSize", bytefmt.ByteSize(uint64(conf.MaxSize))),
		zap.Bool("created", created),
	)
	return s, nil
}

// BaseOffset returns the starting offset of this segment in the logical log.
func (s *Segment) BaseOffset() uint64 {
	return s.baseOffset
}

// MaxSize returns the fixed byte capacity of this segment.
func (s *Segment) MaxSize() int64 {
	return s.maxSize
}

// Offset returns the current write cursor, which is the total number of
// bytes written to this segment since it was created.
func (s *Segment) Offset() int64 {
	return s.offset
}

// Remaining returns the number of bytes still writable before the
// segment is full.
func (s *Segment) Remaining() int64 {
	return s.maxSize - s.offset
}

// Fit reports whether size additional bytes can be written without
// exceeding the segment capacity. It has no side effects.
func (s *Segment) Fit(size int64) bool {
	return s.Remaining() >= size
}

// Write copies p into the mapped region at the current cursor and
// advances the cursor by len(p), returning the number of bytes written.
// When p does not fit in the remaining capacity, Write returns
// ErrSegmentFull and leaves the segment untouched; there is no partial
// write. ErrSegmentFull is the signal to roll over, not a defect.
func (s *Segment) Write(p []byte) (int, error) {
	if !s.open {
		return 0, ErrClosed
	}
	if !s.Fit(int64(len(p))) {
		return 0, ErrSegmentFull
	}
	n, err := s.m.WriteAt(p, s.offset)
	if err != nil {
		return 0, err
	}
	s.offset += int64(n)
	if s.conf.SyncOnWrite {
		if err = s.m.Sync(true); err != nil {
			return n, err
		}
	}
	return n, nil
}

// ReadAt returns a view over [off, off+size) of the mapped region. The
// range is checked against the mapped extent only, never against the
// write cursor: bytes past the cursor read as zero until something is
// written over them, and callers that must see only written bytes have
// to gate on Offset themselves. The view aliases the mapping and stays
// valid until Close.
func (s *Segment) ReadAt(off, size int64) ([]byte, error) {
	if !s.open {
		return nil, ErrClosed
	}
	p, err := s.m.Slice(off, size)
	if err != nil {
		if errors.Is(err, mmap.ErrOutOfBounds) {
			return nil, ErrOutOfBounds
		}
		return nil, err
	}
	return p, nil
}

// Flush schedules a write-back of dirty mapped pages to the segment
// file and returns promptly; the data is not necessarily durable when
// Flush returns. Callers that must wait for durability use Sync.
func (s *Segment) Flush() error {
	if !s.open {
		return ErrClosed
	}
	if err := s.m.Sync(false); err != nil {
		return err
	}
	s.conf.Logger.Debug("flushed segment", zap.String("path", s.path), zap.Int64("offset", s.offset))
	return nil
}

// Sync writes dirty mapped pages back to the segment file and blocks
// until they have reached it, then syncs the file itself.
func (s *Segment) Sync() error {
	if !s.open {
		return ErrClosed
	}
	if err := s.m.Sync(true); err != nil {
		return err
	}
	if err := s.fd.Sync(); err != nil {
		return fmt.Errorf("error: syncing segment file %q: %w", s.path, err)
	}
	return nil
}

// Close performs a final blocking sync, releases the mapping and closes
// the underlying file. Close is idempotent; Write, ReadAt, Flush and
// Sync all return ErrClosed afterwards.
func (s *Segment) Close() error {
	if !s.open {
		return nil
	}
	s.open = false
	serr := s.m.Sync(true)
	merr := s.m.Close()
	ferr := s.fd.Close()
	if serr != nil {
		return serr
	}
	if merr != nil {
		return merr
	}
	if ferr != nil {
		return fmt.Errorf("error: closing segment file %q: %w", s.path, ferr)
	}
	s.conf.Logger.Debug("closed segment", zap.String("path", s.path), zap.Int64("offset", s.offset))
	return nil
}

// Remove closes the segment and deletes its backing file.
func (s *Segment) Remove() error {
	if err := s.Close(); err != nil {
		return err
	}
	if err := os.Remove(s.path); err != nil {
		return fmt.Errorf("error: removing segment file %q: %w", s.path, err)
	}
	return nil
}

// Name returns the full path of the backing file.
func (s *Segment) Name() string {
	return s.path
}

// String is the stringer method for a Segment.
func (s *Segment) String() string {
	var ss string
	ss += fmt.Sprintf("path: %q\n", filepath.Base(s.path))
	ss += fmt.Sprintf("base offset: %d\n", s.baseOffset)
	ss += fmt.Sprintf("offset: %d\n", s.offset)
	ss += fmt.Sprintf("used: %s of %s\n",
		bytefmt.ByteSize(uint64(s.offset)), bytefmt.ByteSize(uint64(s.maxSize)))
	return ss
}
