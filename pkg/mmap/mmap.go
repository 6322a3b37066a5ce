package mmap

import (
	"fmt"
	"math"

	"golang.org/x/sys/unix"
)

// Mapping contains a shared, writable memory mapping of a file's full
// extent. A Mapping is exclusively owned by whoever opened it and must
// be released with Close; no operation is safe after the owning file
// has been truncated or removed out from underneath it.
type Mapping struct {
	// memory specifies the byte slice which wraps the mapped memory.
	// It is nil once the mapping has been closed.
	memory []byte
}

// Map establishes a shared read-write mapping of size bytes of the file
// referenced by fd, starting at offset zero. Updates to the mapping are
// carried through to the underlying file, subject to page flush timing;
// use Sync to control when.
func Map(fd uintptr, size int) (*Mapping, error) {
	if size < 1 {
		return nil, ErrBadLength
	}
	memory, err := unix.Mmap(int(fd), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap: mapping %d bytes: %w", size, err)
	}
	return &Mapping{memory: memory}, nil
}

// Len returns the mapped memory length in bytes.
func (m *Mapping) Len() int {
	return len(m.memory)
}

// access checks given offset and length to match the available bounds
// and returns ErrOutOfBounds error at the access violation.
func (m *Mapping) access(offset int64, length int) error {
	if offset < 0 || offset > math.MaxInt64-int64(length) || offset+int64(length) > int64(len(m.memory)) {
		return ErrOutOfBounds
	}
	return nil
}

// ReadAt reads len(buf) bytes at the given offset from start of the mapped
// memory. If the given offset is out of the available bounds or there are
// not enough bytes to read the ErrOutOfBounds error will be returned.
// Otherwise len(buf) will be returned with no errors. ReadAt implements
// the io.ReaderAt interface.
func (m *Mapping) ReadAt(buf []byte, offset int64) (int, error) {
	if m.memory == nil {
		return 0, ErrClosed
	}
	if err := m.access(offset, len(buf)); err != nil {
		return 0, err
	}
	return copy(buf, m.memory[offset:]), nil
}

// WriteAt writes len(buf) bytes at the given offset from start of the mapped
// memory. If the given offset is out of the available bounds or there is not
// enough space to write all given bytes the ErrOutOfBounds error will be
// returned. Otherwise len(buf) will be returned with no errors. WriteAt
// implements the io.WriterAt interface.
func (m *Mapping) WriteAt(buf []byte, offset int64) (int, error) {
	if m.memory == nil {
		return 0, ErrClosed
	}
	if err := m.access(offset, len(buf)); err != nil {
		return 0, err
	}
	return copy(m.memory[offset:], buf), nil
}

// Slice returns a view over [offset, offset+length) of the mapped memory.
// The view aliases the mapping directly: it stays valid until Close, and
// writes through it are carried to the underlying file. If the range is
// out of the available bounds the ErrOutOfBounds error will be returned.
func (m *Mapping) Slice(offset, length int64) ([]byte, error) {
	if m.memory == nil {
		return nil, ErrClosed
	}
	if length < 0 {
		return nil, ErrOutOfBounds
	}
	if err := m.access(offset, int(length)); err != nil {
		return nil, err
	}
	return m.memory[offset : offset+length], nil
}

// Sync flushes modified pages of the mapped memory back to the underlying
// file. A blocking sync returns only after the write-back has completed;
// otherwise the write-back is merely scheduled and Sync returns promptly.
func (m *Mapping) Sync(blocking bool) error {
	if m.memory == nil {
		return ErrClosed
	}
	flags := unix.MS_ASYNC
	if blocking {
		flags = unix.MS_SYNC
	}
	if err := unix.Msync(m.memory, flags); err != nil {
		return fmt.Errorf("mmap: msync: %w", err)
	}
	return nil
}

// Close releases the mapping. Close is idempotent; any other operation
// called after Close returns ErrClosed.
func (m *Mapping) Close() error {
	if m.memory == nil {
		return nil
	}
	memory := m.memory
	m.memory = nil
	if err := unix.Munmap(memory); err != nil {
		return fmt.Errorf("mmap: munmap: %w", err)
	}
	return nil
}
