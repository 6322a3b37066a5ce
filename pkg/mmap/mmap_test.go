package mmap

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const testSize = 1 << 12 // one page

func openSized(t *testing.T, size int64) *os.File {
	t.Helper()
	fd, err := os.OpenFile(filepath.Join(t.TempDir(), "mapped.db"), os.O_RDWR|os.O_CREATE, 0666)
	require.NoError(t, err)
	require.NoError(t, fd.Truncate(size))
	t.Cleanup(func() {
		_ = fd.Close()
	})
	return fd
}

func TestMapBadLength(t *testing.T) {
	fd := openSized(t, testSize)
	_, err := Map(fd.Fd(), 0)
	require.ErrorIs(t, err, ErrBadLength)
	_, err = Map(fd.Fd(), -1)
	require.ErrorIs(t, err, ErrBadLength)
}

func TestMapReadWriteAt(t *testing.T) {
	fd := openSized(t, testSize)
	m, err := Map(fd.Fd(), testSize)
	require.NoError(t, err)
	defer m.Close()

	require.Equal(t, testSize, m.Len())

	n, err := m.WriteAt([]byte("hello, mapped world"), 64)
	require.NoError(t, err)
	require.Equal(t, 19, n)

	buf := make([]byte, 19)
	n, err = m.ReadAt(buf, 64)
	require.NoError(t, err)
	require.Equal(t, 19, n)
	require.Equal(t, []byte("hello, mapped world"), buf)
}

func TestMapOutOfBounds(t *testing.T) {
	fd := openSized(t, testSize)
	m, err := Map(fd.Fd(), testSize)
	require.NoError(t, err)
	defer m.Close()

	buf := make([]byte, 8)
	_, err = m.ReadAt(buf, testSize-4)
	require.ErrorIs(t, err, ErrOutOfBounds)
	_, err = m.WriteAt(buf, testSize-4)
	require.ErrorIs(t, err, ErrOutOfBounds)
	_, err = m.ReadAt(buf, -1)
	require.ErrorIs(t, err, ErrOutOfBounds)
	_, err = m.Slice(testSize, 1)
	require.ErrorIs(t, err, ErrOutOfBounds)
	_, err = m.Slice(0, -1)
	require.ErrorIs(t, err, ErrOutOfBounds)
}

func TestMapSliceAliasesMemory(t *testing.T) {
	fd := openSized(t, testSize)
	m, err := Map(fd.Fd(), testSize)
	require.NoError(t, err)
	defer m.Close()

	_, err = m.WriteAt([]byte("aliased"), 0)
	require.NoError(t, err)

	view, err := m.Slice(0, 7)
	require.NoError(t, err)
	require.Equal(t, []byte("aliased"), view)

	// a write through the view is visible to ReadAt
	copy(view, "ALIASED")
	buf := make([]byte, 7)
	_, err = m.ReadAt(buf, 0)
	require.NoError(t, err)
	require.Equal(t, []byte("ALIASED"), buf)
}

func TestMapSyncReachesFile(t *testing.T) {
	fd := openSized(t, testSize)
	m, err := Map(fd.Fd(), testSize)
	require.NoError(t, err)
	defer m.Close()

	_, err = m.WriteAt([]byte("durable"), 128)
	require.NoError(t, err)
	require.NoError(t, m.Sync(true))

	got := make([]byte, 7)
	_, err = fd.ReadAt(got, 128)
	require.NoError(t, err)
	require.Equal(t, []byte("durable"), got)

	// async variant only schedules the write-back
	require.NoError(t, m.Sync(false))
}

func TestMapClose(t *testing.T) {
	fd := openSized(t, testSize)
	m, err := Map(fd.Fd(), testSize)
	require.NoError(t, err)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close()) // idempotent

	buf := make([]byte, 1)
	_, err = m.ReadAt(buf, 0)
	require.ErrorIs(t, err, ErrClosed)
	_, err = m.WriteAt(buf, 0)
	require.ErrorIs(t, err, ErrClosed)
	_, err = m.Slice(0, 1)
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, m.Sync(false), ErrClosed)
}
