package manifest

import (
	"io/fs"
	"testing"

	"strata/internal/block_cache"
	"strata/internal/common"
	"strata/internal/sstable"
	"strata/internal/vfs"

	"github.com/stretchr/testify/require"
)

func newTestManifest(t *testing.T) (*Manifest, *vfs.MemFS) {
	t.Helper()
	memfs := vfs.NewMemFS()
	return NewManifest(memfs, common.NewPathManager("/db"), nil), memfs
}

func table(n common.FileNo) FileMetadata {
	return FileMetadata{FileNo: n}
}

func fileNos(tables []FileMetadata) []common.FileNo {
	var out []common.FileNo
	for _, fm := range tables {
		out = append(out, fm.FileNo)
	}
	return out
}

func TestNewManifest(t *testing.T) {
	m, _ := newTestManifest(t)
	v := m.Current()
	require.NotNil(t, v)
	require.Empty(t, v.Tables)
	require.Equal(t, common.FileNo(0), v.CurrentWAL)
	require.Equal(t, common.FileNo(1), v.NextFileNo)
}

func TestAllocateFileNo(t *testing.T) {
	m, _ := newTestManifest(t)
	require.Equal(t, common.FileNo(1), m.AllocateFileNo())
	require.Equal(t, common.FileNo(2), m.AllocateFileNo())
	require.Equal(t, common.FileNo(3), m.Current().NextFileNo)
}

func TestApplyAddsNewestFirst(t *testing.T) {
	m, _ := newTestManifest(t)

	m.Apply(&Edit{AddTables: []FileMetadata{table(1)}, NewWAL: 2, LastSequence: 10, LastTimestamp: 100})
	m.Apply(&Edit{AddTables: []FileMetadata{table(3)}, NewWAL: 4, LastSequence: 20, LastTimestamp: 200})

	v := m.Current()
	require.Equal(t, []common.FileNo{3, 1}, fileNos(v.Tables))
	require.Equal(t, common.FileNo(4), v.CurrentWAL)
	require.Equal(t, common.FileNo(5), v.NextFileNo)
	require.Equal(t, uint64(20), v.LastSequence)
	require.Equal(t, uint64(200), v.LastTimestamp)

	// High-water marks never move backwards.
	m.Apply(&Edit{LastSequence: 5, LastTimestamp: 50})
	v = m.Current()
	require.Equal(t, uint64(20), v.LastSequence)
	require.Equal(t, uint64(200), v.LastTimestamp)
	require.Equal(t, common.FileNo(4), v.CurrentWAL)
}

func TestApplyReplacesTables(t *testing.T) {
	m, _ := newTestManifest(t)
	m.Apply(&Edit{AddTables: []FileMetadata{table(3), table(2), table(1)}})

	// Merge tables 1 and 2 into table 10.
	m.Apply(&Edit{
		AddTables:    []FileMetadata{table(10)},
		DeleteTables: map[common.FileNo]struct{}{1: {}, 2: {}},
	})

	v := m.Current()
	require.Equal(t, []common.FileNo{10, 3}, fileNos(v.Tables))
	require.Equal(t, common.FileNo(11), v.NextFileNo)
}

func TestVersionIsolation(t *testing.T) {
	m, _ := newTestManifest(t)
	m.Apply(&Edit{AddTables: []FileMetadata{table(2), table(1)}})

	// Get snapshot
	v1 := m.Current()

	m.Apply(&Edit{AddTables: []FileMetadata{table(3)}, DeleteTables: map[common.FileNo]struct{}{1: {}}})
	m.AllocateFileNo()

	v2 := m.Current()
	require.Equal(t, []common.FileNo{3, 2}, fileNos(v2.Tables))

	// Old snapshot should be unchanged
	require.Equal(t, []common.FileNo{2, 1}, fileNos(v1.Tables))
	require.Equal(t, common.FileNo(3), v1.NextFileNo)
}

func TestNextFileNoPreservation(t *testing.T) {
	m, _ := newTestManifest(t)
	m.Apply(&Edit{AddTables: []FileMetadata{table(200), table(100)}})
	require.Equal(t, common.FileNo(201), m.Current().NextFileNo)

	// Delete tables but counter should remain
	m.Apply(&Edit{DeleteTables: map[common.FileNo]struct{}{100: {}, 200: {}}})
	v := m.Current()
	require.Empty(t, v.Tables)
	require.Equal(t, common.FileNo(201), v.NextFileNo)
}

func TestLiveFiles(t *testing.T) {
	m, _ := newTestManifest(t)
	m.Apply(&Edit{AddTables: []FileMetadata{table(2), table(1)}, NewWAL: 3})

	live := m.Current().LiveFiles()
	require.Len(t, live, 3)
	for _, n := range []common.FileNo{1, 2, 3} {
		require.Contains(t, live, n)
	}
}

func TestFlushAndLoad(t *testing.T) {
	m, memfs := newTestManifest(t)
	m.Apply(&Edit{
		AddTables: []FileMetadata{{
			FileNo:       1,
			Size:         4096,
			EntryCount:   10,
			SmallestKey:  []byte("a"),
			LargestKey:   []byte("z"),
			MaxTimestamp: 42,
		}},
		NewWAL:        2,
		LastSequence:  10,
		LastTimestamp: 42,
	})
	require.NoError(t, m.Flush())
	require.False(t, vfs.Exists(memfs, "/db/MANIFEST.tmp"))

	loaded, err := Load(memfs, common.NewPathManager("/db"), nil)
	require.NoError(t, err)
	require.Equal(t, m.Current(), loaded.Current())
}

func TestFlushFailureKeepsPreviousManifest(t *testing.T) {
	m, memfs := newTestManifest(t)
	m.Apply(&Edit{NewWAL: 1})
	require.NoError(t, m.Flush())

	m.Apply(&Edit{AddTables: []FileMetadata{table(2)}, NewWAL: 3})
	memfs.FailSyncs(vfs.ErrInjected)
	require.ErrorIs(t, m.Flush(), vfs.ErrInjected)
	memfs.FailSyncs(nil)
	memfs.Crash()

	loaded, err := Load(memfs, common.NewPathManager("/db"), nil)
	require.NoError(t, err)
	require.Equal(t, common.FileNo(1), loaded.Current().CurrentWAL)
	require.Empty(t, loaded.Current().Tables)
	require.False(t, vfs.Exists(memfs, "/db/MANIFEST.tmp"))
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(vfs.NewMemFS(), common.NewPathManager("/db"), nil)
	require.ErrorIs(t, err, fs.ErrNotExist)
	require.False(t, common.IsCorruption(err))
}

func TestLoadRejectsDamagedManifest(t *testing.T) {
	tests := []struct {
		name     string
		contents string
	}{
		{name: "not json", contents: "MANIFEST"},
		{name: "truncated", contents: `{"CurrentWAL": 1, "NextFil`},
		{name: "wal beyond next file", contents: `{"CurrentWAL": 5, "NextFileNo": 5}`},
		{name: "table beyond next file", contents: `{"CurrentWAL": 1, "NextFileNo": 3, "Tables": [{"FileNo": 7}]}`},
		{name: "duplicate table", contents: `{"CurrentWAL": 1, "NextFileNo": 3, "Tables": [{"FileNo": 2}, {"FileNo": 2}]}`},
		{name: "table reuses wal", contents: `{"CurrentWAL": 1, "NextFileNo": 3, "Tables": [{"FileNo": 1}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			memfs := vfs.NewMemFS()
			memfs.WriteFile("/db/MANIFEST", []byte(tt.contents))
			_, err := Load(memfs, common.NewPathManager("/db"), nil)
			require.ErrorIs(t, err, common.ErrCorruption)
		})
	}
}

func TestFileMetadataOverlaps(t *testing.T) {
	fm := FileMetadata{SmallestKey: []byte("c"), LargestKey: []byte("f")}
	tests := []struct {
		start, end string
		want       bool
	}{
		{"", "", true},
		{"a", "c", false},
		{"a", "d", true},
		{"d", "e", true},
		{"f", "", true},
		{"g", "", false},
		{"", "c", false},
		{"", "ca", true},
	}
	for _, tt := range tests {
		var start, end []byte
		if tt.start != "" {
			start = []byte(tt.start)
		}
		if tt.end != "" {
			end = []byte(tt.end)
		}
		require.Equal(t, tt.want, fm.Overlaps(start, end), "[%q, %q)", tt.start, tt.end)
	}
}

func TestGetTableCachesHandles(t *testing.T) {
	memfs := vfs.NewMemFS()
	paths := common.NewPathManager("/db")
	cache := block_cache.NewDefault()
	m := NewManifest(memfs, paths, cache)

	entries := []*common.Entry{{
		Key:   common.MakeInternalKey([]byte("k"), 1),
		Type:  common.EntryTypePut,
		Value: []byte("v"),
	}}
	_, err := sstable.WriteTable(memfs, paths.SSTablePath(5), common.NewSliceIterator(entries), sstable.WriterOptions{})
	require.NoError(t, err)

	first, err := m.GetTable(5)
	require.NoError(t, err)
	second, err := m.GetTable(5)
	require.NoError(t, err)
	require.Same(t, first, second)

	value, found, err := first.Get([]byte("k"))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "v", string(value))

	require.NoError(t, m.ReleaseTable(5))
	_, _, err = first.Get([]byte("k"))
	require.ErrorIs(t, err, common.ErrClosed)

	reopened, err := m.GetTable(5)
	require.NoError(t, err)
	require.NotSame(t, first, reopened)
	require.NoError(t, m.Close())

	_, err = m.GetTable(6)
	require.Error(t, err)
}

func TestLoadVersionRestoresSnapshot(t *testing.T) {
	m, _ := newTestManifest(t)
	m.Apply(&Edit{NewWAL: 1})
	before := m.Current()

	m.Apply(&Edit{AddTables: []FileMetadata{table(2)}, NewWAL: 3})
	m.LoadVersion(before)
	require.Empty(t, m.Current().Tables)
	require.Equal(t, before.CurrentWAL, m.Current().CurrentWAL)
	require.Equal(t, before.LastSequence, m.Current().LastSequence)

	// Numbers handed out before the rollback are not reused.
	require.Equal(t, common.FileNo(4), m.Current().NextFileNo)
	require.Equal(t, common.FileNo(4), m.AllocateFileNo())
}

func TestFileMetadataMayContain(t *testing.T) {
	fm := FileMetadata{SmallestKey: []byte("c"), LargestKey: []byte("f")}
	require.True(t, fm.MayContain([]byte("c")))
	require.True(t, fm.MayContain([]byte("e")))
	require.True(t, fm.MayContain([]byte("f")))
	require.False(t, fm.MayContain([]byte("b")))
	require.False(t, fm.MayContain([]byte("fa")))
}
