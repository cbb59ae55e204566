package memtable_test

import (
	"encoding/binary"
	"fmt"
	"testing"

	"strata/internal/common"
	"strata/internal/memtable"

	"github.com/stretchr/testify/require"
)

func TestPutAndGet(t *testing.T) {
	mt := memtable.NewMemtable()

	key := []byte("alpha")
	value := []byte("value")
	require.NoError(t, mt.Put(key, value, 1))

	// Mutate original slices to ensure the memtable stored clones.
	key[0] = 'A'
	value[0] = 'V'

	stored, ok := mt.Get([]byte("alpha"))
	require.True(t, ok)
	require.Equal(t, []byte("value"), stored)

	// The returned slice is a copy too.
	stored[0] = 'X'
	stored, ok = mt.Get([]byte("alpha"))
	require.True(t, ok)
	require.Equal(t, []byte("value"), stored)

	_, ok = mt.Get([]byte("Alpha"))
	require.False(t, ok)
}

func TestGetMissing(t *testing.T) {
	mt := memtable.NewMemtable()

	_, ok := mt.Get([]byte("missing"))
	require.False(t, ok)
	_, ok = mt.Lookup([]byte("missing"))
	require.False(t, ok)
}

func TestEmptyValueIsNotATombstone(t *testing.T) {
	mt := memtable.NewMemtable()
	require.NoError(t, mt.Put([]byte("k"), nil, 1))

	stored, ok := mt.Get([]byte("k"))
	require.True(t, ok)
	require.NotNil(t, stored)
	require.Empty(t, stored)
}

func TestNewestVersionWins(t *testing.T) {
	mt := memtable.NewMemtable()
	key := []byte("user:1")

	// Insert out of timestamp order; ordering is by timestamp, not arrival.
	require.NoError(t, mt.Put(key, []byte("v2"), 20))
	require.NoError(t, mt.Put(key, []byte("v1"), 10))

	stored, ok := mt.Get(key)
	require.True(t, ok)
	require.Equal(t, []byte("v2"), stored)

	require.NoError(t, mt.Delete(key, 30))
	_, ok = mt.Get(key)
	require.False(t, ok)

	entry, ok := mt.Lookup(key)
	require.True(t, ok)
	require.True(t, entry.IsTombstone())
	require.Equal(t, uint64(30), entry.Key.Timestamp)

	require.NoError(t, mt.Put(key, []byte("v4"), 40))
	stored, ok = mt.Get(key)
	require.True(t, ok)
	require.Equal(t, []byte("v4"), stored)

	require.Equal(t, int64(4), mt.Len())
}

func TestDuplicateInternalKey(t *testing.T) {
	mt := memtable.NewMemtable()
	require.NoError(t, mt.Put([]byte("k"), []byte("v1"), 7))
	size := mt.ApproximateSize()

	require.ErrorIs(t, mt.Put([]byte("k"), []byte("v2"), 7), common.ErrDuplicateKey)
	require.ErrorIs(t, mt.Delete([]byte("k"), 7), common.ErrDuplicateKey)

	stored, ok := mt.Get([]byte("k"))
	require.True(t, ok)
	require.Equal(t, []byte("v1"), stored)
	require.Equal(t, int64(1), mt.Len())
	require.Equal(t, size, mt.ApproximateSize())
}

func TestBulkPutGetDelete(t *testing.T) {
	mt := memtable.NewMemtable()

	const total = 512
	var ts uint64
	for i := 0; i < total; i++ {
		ts++
		require.NoError(t, mt.Put(makeIndexedKey(i), []byte(fmt.Sprintf("v%04d", i)), ts))
	}

	for i := 0; i < total; i++ {
		stored, ok := mt.Get(makeIndexedKey(i))
		require.True(t, ok)
		require.Equal(t, []byte(fmt.Sprintf("v%04d", i)), stored)
	}

	for i := 0; i < total; i += 2 {
		ts++
		require.NoError(t, mt.Delete(makeIndexedKey(i), ts))
	}

	for i := 0; i < total; i++ {
		stored, ok := mt.Get(makeIndexedKey(i))
		if i%2 == 0 {
			require.False(t, ok)
			require.Nil(t, stored)
		} else {
			require.True(t, ok)
			require.Equal(t, []byte(fmt.Sprintf("v%04d", i)), stored)
		}
	}

	// Every key has its put; even keys also carry a newer tombstone that
	// sorts first.
	it := mt.Iterator()
	count := 0
	var prev *common.Entry
	for {
		entry, err := it.Next()
		require.NoError(t, err)
		if entry == nil {
			break
		}
		count++
		idx := decodeIndexedKey(entry.Key.UserKey)
		require.GreaterOrEqual(t, idx, 0)
		if prev != nil {
			require.Negative(t, prev.Key.Compare(entry.Key))
		}
		if entry.IsTombstone() {
			require.Zero(t, idx%2)
			require.Nil(t, entry.Value)
		} else {
			require.Equal(t, []byte(fmt.Sprintf("v%04d", idx)), entry.Value)
		}
		prev = entry
	}
	require.Equal(t, total+total/2, count)
}

func TestScanHalfOpenRange(t *testing.T) {
	mt := memtable.NewMemtable()
	for i, k := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, mt.Put([]byte(k), []byte(k), uint64(i+1)))
	}
	require.NoError(t, mt.Delete([]byte("c"), 10))

	tests := []struct {
		name       string
		start, end []byte
		want       []string
	}{
		{name: "bounded", start: []byte("b"), end: []byte("d"), want: []string{"b", "c@10", "c"}},
		{name: "open start", end: []byte("b"), want: []string{"a"}},
		{name: "open end", start: []byte("d"), want: []string{"d", "e"}},
		{name: "unbounded", want: []string{"a", "b", "c@10", "c", "d", "e"}},
		{name: "start between keys", start: []byte("bb"), end: []byte("cc"), want: []string{"c@10", "c"}},
		{name: "empty", start: []byte("x"), end: []byte("z"), want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			it := mt.Scan(tt.start, tt.end)
			for {
				entry, err := it.Next()
				require.NoError(t, err)
				if entry == nil {
					break
				}
				if entry.IsTombstone() {
					got = append(got, fmt.Sprintf("%s@%d", entry.Key.UserKey, entry.Key.Timestamp))
				} else {
					got = append(got, string(entry.Key.UserKey))
				}
			}
			require.Equal(t, tt.want, got)
		})
	}
}

func TestApproximateSizeGrows(t *testing.T) {
	mt := memtable.NewMemtable()
	require.Zero(t, mt.ApproximateSize())

	require.NoError(t, mt.Put([]byte("k"), make([]byte, 1024), 1))
	first := mt.ApproximateSize()
	require.Greater(t, first, int64(1024))

	require.NoError(t, mt.Delete([]byte("k"), 2))
	require.Greater(t, mt.ApproximateSize(), first)
}

func makeIndexedKey(index int) []byte {
	const suffix = "key"
	key := make([]byte, 2+len(suffix))
	binary.BigEndian.PutUint16(key[:2], uint16(index))
	copy(key[2:], suffix)
	return key
}

func decodeIndexedKey(key []byte) int {
	if len(key) < 2 {
		return -1
	}
	return int(binary.BigEndian.Uint16(key[:2]))
}
