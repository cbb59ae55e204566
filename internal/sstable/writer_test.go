package sstable

import (
	"fmt"
	"testing"

	"strata/internal/block"
	"strata/internal/common"
	"strata/internal/filter"
	"strata/internal/memtable"
	"strata/internal/vfs"

	"github.com/stretchr/testify/require"
)

func putEntry(key string, ts uint64, value string) *common.Entry {
	return &common.Entry{Key: ikey(key, ts), Type: common.EntryTypePut, Value: []byte(value)}
}

func delEntry(key string, ts uint64) *common.Entry {
	return &common.Entry{Key: ikey(key, ts), Type: common.EntryTypeDelete}
}

func writeTable(t *testing.T, fs vfs.FS, path string, entries []*common.Entry, opts WriterOptions) *WriteResult {
	t.Helper()
	result, err := WriteTable(fs, path, common.NewSliceIterator(entries), opts)
	require.NoError(t, err)
	return result
}

func TestWriteSSTable(t *testing.T) {
	fs := vfs.NewMemFS()
	entries := []*common.Entry{
		putEntry("apple", 1, "red"),
		putEntry("banana", 2, "yellow"),
		putEntry("cherry", 3, "red"),
	}

	result := writeTable(t, fs, "/t.sst", entries, WriterOptions{})
	require.Equal(t, "/t.sst", result.Path)
	require.Equal(t, uint64(3), result.EntryCount)
	require.Equal(t, 1, result.BlockCount)
	require.Equal(t, "apple", string(result.SmallestKey.UserKey))
	require.Equal(t, "cherry", string(result.LargestKey.UserKey))
	require.Equal(t, uint64(3), result.MaxTimestamp)

	data, err := fs.ReadFile("/t.sst")
	require.NoError(t, err)
	require.Equal(t, result.FileSize, uint64(len(data)))
	require.False(t, vfs.Exists(fs, "/t.sst.tmp"))

	// Read and verify footer (last FOOTER_SIZE bytes)
	footer, err := DecodeFooter(data[len(data)-FOOTER_SIZE:])
	require.NoError(t, err)
	require.Greater(t, footer.IndexOffset, uint64(0))
	require.Equal(t, uint64(len(data)-FOOTER_SIZE), footer.IndexOffset+footer.IndexSize)

	// Read and verify index
	index, err := DecodeIndex(data[footer.IndexOffset:footer.IndexOffset+footer.IndexSize], footer.IndexOffset)
	require.NoError(t, err)
	require.Len(t, index.Entries, 1)
	require.Equal(t, uint64(0), index.Entries[0].BlockOffset)
	require.Zero(t, index.Entries[0].FirstKey.Compare(ikey("apple", 1)))
}

func TestWriterCutsBlocksAtTargetSize(t *testing.T) {
	fs := vfs.NewMemFS()

	var entries []*common.Entry
	for i := 0; i < 10000; i++ {
		entries = append(entries, putEntry(fmt.Sprintf("key-%06d", i), 1, fmt.Sprintf("value-%06d", i)))
	}
	result := writeTable(t, fs, "/t.sst", entries, WriterOptions{BlockSize: block.BLOCK_SIZE})
	require.Greater(t, result.BlockCount, 1)

	r, err := Open(fs, "/t.sst", 1, nil)
	require.NoError(t, err)
	defer r.Close()

	for i, e := range r.Index().Entries {
		require.LessOrEqual(t, e.BlockSize, uint32(block.BLOCK_SIZE), "block %d", i)
	}
	require.Len(t, r.Index().Entries, result.BlockCount)

	// The 5,000th key.
	value, found, err := r.Get([]byte("key-004999"))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "value-004999", string(value))

	n, err := r.Len()
	require.NoError(t, err)
	require.Equal(t, 10000, n)
}

func TestWriterRejectsOutOfOrderKeys(t *testing.T) {
	tests := []struct {
		name   string
		first  *common.Entry
		second *common.Entry
	}{
		{name: "descending user key", first: putEntry("b", 1, "v"), second: putEntry("a", 1, "v")},
		{name: "duplicate internal key", first: putEntry("a", 1, "v"), second: delEntry("a", 1)},
		{name: "ascending timestamp", first: putEntry("a", 1, "v"), second: putEntry("a", 2, "v")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := vfs.NewMemFS()
			w, err := NewWriter(fs, "/t.sst", WriterOptions{})
			require.NoError(t, err)

			require.NoError(t, w.AddEntry(tt.first))
			err = w.AddEntry(tt.second)
			require.ErrorIs(t, err, common.ErrOutOfOrder)

			// The writer is poisoned and its output discarded.
			require.ErrorIs(t, w.AddEntry(putEntry("z", 1, "v")), common.ErrOutOfOrder)
			_, err = w.Finish()
			require.ErrorIs(t, err, common.ErrOutOfOrder)
			require.False(t, vfs.Exists(fs, "/t.sst.tmp"))
			require.False(t, vfs.Exists(fs, "/t.sst"))
		})
	}
}

func TestWriterRejectsInvalidType(t *testing.T) {
	fs := vfs.NewMemFS()
	w, err := NewWriter(fs, "/t.sst", WriterOptions{})
	require.NoError(t, err)
	defer w.Abort()

	require.Error(t, w.Add(ikey("a", 1), nil, common.EntryType(9)))
	// Validation errors leave the writer usable.
	require.NoError(t, w.Add(ikey("a", 1), []byte("v"), common.EntryTypePut))
}

func TestAbortLeavesNoTable(t *testing.T) {
	fs := vfs.NewMemFS()
	w, err := NewWriter(fs, "/t.sst", WriterOptions{})
	require.NoError(t, err)
	require.True(t, vfs.Exists(fs, "/t.sst.tmp"))

	require.NoError(t, w.AddEntry(putEntry("a", 1, "v")))
	w.Abort()
	w.Abort()

	require.False(t, vfs.Exists(fs, "/t.sst.tmp"))
	require.False(t, vfs.Exists(fs, "/t.sst"))
	_, err = w.Finish()
	require.Error(t, err)

	_, err = Open(fs, "/t.sst", 1, nil)
	require.Error(t, err)
}

func TestWriterIOFailureAborts(t *testing.T) {
	fs := vfs.NewMemFS()
	var entries []*common.Entry
	for i := 0; i < 2000; i++ {
		entries = append(entries, putEntry(fmt.Sprintf("key-%06d", i), 1, "value"))
	}

	fs.FailWritesAfter(10000)
	_, err := WriteTable(fs, "/t.sst", common.NewSliceIterator(entries), WriterOptions{})
	require.ErrorIs(t, err, vfs.ErrInjected)
	require.False(t, vfs.Exists(fs, "/t.sst.tmp"))
	require.False(t, vfs.Exists(fs, "/t.sst"))
}

func TestWriterSyncFailureAborts(t *testing.T) {
	fs := vfs.NewMemFS()
	fs.FailSyncs(vfs.ErrInjected)

	_, err := WriteTable(fs, "/t.sst", common.NewSliceIterator([]*common.Entry{putEntry("a", 1, "v")}), WriterOptions{})
	require.ErrorIs(t, err, vfs.ErrInjected)
	require.False(t, vfs.Exists(fs, "/t.sst.tmp"))
	require.False(t, vfs.Exists(fs, "/t.sst"))
}

func TestFinishTwice(t *testing.T) {
	fs := vfs.NewMemFS()
	w, err := NewWriter(fs, "/t.sst", WriterOptions{})
	require.NoError(t, err)
	require.NoError(t, w.AddEntry(putEntry("a", 1, "v")))
	_, err = w.Finish()
	require.NoError(t, err)

	_, err = w.Finish()
	require.ErrorIs(t, err, common.ErrClosed)
	require.ErrorIs(t, w.AddEntry(putEntry("b", 1, "v")), common.ErrClosed)

	// Abort after a successful Finish keeps the table.
	w.Abort()
	require.True(t, vfs.Exists(fs, "/t.sst"))
}

func TestWriteTableFromMemtable(t *testing.T) {
	mt := memtable.NewMemtable()
	require.NoError(t, mt.Put([]byte("user:2"), []byte("bob"), 1))
	require.NoError(t, mt.Put([]byte("user:1"), []byte("alice"), 2))
	require.NoError(t, mt.Put([]byte("user:1"), []byte("alice2"), 3))
	require.NoError(t, mt.Delete([]byte("user:2"), 4))

	fs := vfs.NewMemFS()
	result, err := WriteTable(fs, "/000001.sst", mt.Iterator(), WriterOptions{})
	require.NoError(t, err)
	require.Equal(t, uint64(4), result.EntryCount)
	require.Equal(t, uint64(4), result.MaxTimestamp)

	r, err := Open(fs, "/000001.sst", 1, nil)
	require.NoError(t, err)
	defer r.Close()

	value, found, err := r.Get([]byte("user:1"))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "alice2", string(value))

	_, found, err = r.Get([]byte("user:2"))
	require.NoError(t, err)
	require.False(t, found)

	common.RequireMatchesIterator(t, r.Iterator(), []*common.Entry{
		putEntry("user:1", 3, "alice2"),
		putEntry("user:1", 2, "alice"),
		delEntry("user:2", 4),
		putEntry("user:2", 1, "bob"),
	})
}

func TestWriterWithoutFilter(t *testing.T) {
	fs := vfs.NewMemFS()
	writeTable(t, fs, "/t.sst", []*common.Entry{putEntry("a", 1, "v")}, WriterOptions{FilterFalsePositiveRate: -1})

	r, err := Open(fs, "/t.sst", 1, nil)
	require.NoError(t, err)
	defer r.Close()
	require.Equal(t, filter.AlwaysMatch, r.Filter())

	value, found, err := r.Get([]byte("a"))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "v", string(value))
}
