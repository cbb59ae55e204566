package vfs

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemFSCreateWriteRead(t *testing.T) {
	m := NewMemFS()
	require.NoError(t, m.MkdirAll("/db", 0o755))

	f, err := m.Create("/db/a")
	require.NoError(t, err)
	_, err = f.Write([]byte("hello "))
	require.NoError(t, err)
	_, err = f.Write([]byte("world"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	r, err := m.Open("/db/a")
	require.NoError(t, err)
	defer r.Close()

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, "hello world", string(data))

	buf := make([]byte, 5)
	n, err := r.ReadAt(buf, 6)
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, "world", string(buf))

	n, err = r.ReadAt(buf, 8)
	require.ErrorIs(t, err, io.EOF)
	require.Equal(t, 3, n)

	_, err = r.Write([]byte("x"))
	require.ErrorIs(t, err, fs.ErrPermission)
}

func TestMemFSOpenMissing(t *testing.T) {
	m := NewMemFS()
	_, err := m.Open("/nope")
	require.ErrorIs(t, err, fs.ErrNotExist)
	_, err = m.Stat("/nope")
	require.ErrorIs(t, err, fs.ErrNotExist)
	require.False(t, Exists(m, "/nope"))
}

func TestMemFSAppendAndSeek(t *testing.T) {
	m := NewMemFS()
	m.WriteFile("/f", []byte("abc"))

	f, err := m.OpenFile("/f", os.O_RDWR|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.Write([]byte("def"))
	require.NoError(t, err)

	pos, err := f.Seek(0, io.SeekEnd)
	require.NoError(t, err)
	require.Equal(t, int64(6), pos)

	_, err = f.Seek(1, io.SeekStart)
	require.NoError(t, err)
	buf := make([]byte, 2)
	_, err = io.ReadFull(f, buf)
	require.NoError(t, err)
	require.Equal(t, "bc", string(buf))

	require.NoError(t, f.Truncate(4))
	info, err := f.Stat()
	require.NoError(t, err)
	require.Equal(t, int64(4), info.Size())
}

func TestMemFSCrashDropsUnsyncedBytes(t *testing.T) {
	m := NewMemFS()
	f, err := m.Create("/wal")
	require.NoError(t, err)

	_, err = f.Write([]byte("durable"))
	require.NoError(t, err)
	require.NoError(t, f.Sync())
	_, err = f.Write([]byte("-volatile"))
	require.NoError(t, err)

	m.Crash()

	data, err := m.ReadFile("/wal")
	require.NoError(t, err)
	require.Equal(t, "durable", string(data))
}

func TestMemFSFailWritesAfter(t *testing.T) {
	m := NewMemFS()
	f, err := m.Create("/f")
	require.NoError(t, err)

	m.FailWritesAfter(4)
	n, err := f.Write([]byte("abcdef"))
	require.ErrorIs(t, err, ErrInjected)
	require.Equal(t, 4, n)

	_, err = f.Write([]byte("g"))
	require.ErrorIs(t, err, ErrInjected)

	m.FailWritesAfter(-1)
	_, err = f.Write([]byte("g"))
	require.NoError(t, err)

	data, err := m.ReadFile("/f")
	require.NoError(t, err)
	require.Equal(t, "abcdg", string(data))
}

func TestMemFSFailSyncs(t *testing.T) {
	m := NewMemFS()
	f, err := m.Create("/f")
	require.NoError(t, err)

	m.FailSyncs(ErrInjected)
	require.ErrorIs(t, f.Sync(), ErrInjected)
	m.FailSyncs(nil)
	require.NoError(t, f.Sync())
}

func TestMemFSFailTruncates(t *testing.T) {
	m := NewMemFS()
	f, err := m.Create("/f")
	require.NoError(t, err)
	_, err = f.Write([]byte("hello"))
	require.NoError(t, err)

	m.FailTruncates(ErrInjected)
	require.ErrorIs(t, f.Truncate(2), ErrInjected)
	m.FailTruncates(nil)
	require.NoError(t, f.Truncate(2))

	data, err := m.ReadFile("/f")
	require.NoError(t, err)
	require.Equal(t, "he", string(data))
}

func TestMemFSRenameRemoveList(t *testing.T) {
	m := NewMemFS()
	m.WriteFile("/db/b.sst.tmp", []byte("x"))
	m.WriteFile("/db/a.sst", []byte("y"))
	m.WriteFile("/db/sub/c.sst", []byte("z"))

	require.NoError(t, m.Rename("/db/b.sst.tmp", "/db/b.sst"))
	names, err := m.List("/db")
	require.NoError(t, err)
	require.Equal(t, []string{"a.sst", "b.sst"}, names)

	require.NoError(t, m.Remove("/db/a.sst"))
	require.ErrorIs(t, m.Remove("/db/a.sst"), fs.ErrNotExist)

	names, err = m.List("/db")
	require.NoError(t, err)
	require.Equal(t, []string{"b.sst"}, names)
}

func TestOSFSList(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Default.MkdirAll(filepath.Join(dir, "sub"), 0o755))

	for _, name := range []string{"b", "a"} {
		f, err := Default.Create(filepath.Join(dir, name))
		require.NoError(t, err)
		require.NoError(t, f.Close())
	}
	require.NoError(t, Default.Rename(filepath.Join(dir, "b"), filepath.Join(dir, "c")))

	names, err := Default.List(dir)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "c"}, names)
}
