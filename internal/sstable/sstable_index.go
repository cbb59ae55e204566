package sstable

import (
	"fmt"
	"sort"

	"strata/internal/common"
)

// Index Block Layout:
//
// ┌──────────────────┐
// │   IndexEntry 0   │
// ├──────────────────┤
// │   IndexEntry 1   │
// ├──────────────────┤
// │       ...        │
// ├──────────────────┤
// │  IndexEntry N-1  │
// └──────────────────┘
//
// IndexEntry Layout:
//
// ┌──────────────────┐
// │  firstKeyLen     │  uint32
// ├──────────────────┤
// │  firstKey        │  user key + big-endian u64 timestamp
// ├──────────────────┤
// │   blockOffset    │  uint64
// ├──────────────────┤
// │   blockSize      │  uint32 (including the block trailer)
// └──────────────────┘
//
// The index carries no checksum of its own; DecodeIndex checks that blocks
// tile the data region from offset 0 and that first keys strictly increase,
// and the reader checks every block's first key against its index entry.

// IndexEntry represents a single entry in the index block.
type IndexEntry struct {
	FirstKey    common.InternalKey // First key in the data block
	BlockOffset uint64             // File offset where data block starts
	BlockSize   uint32
}

// End is the offset just past the block.
func (e *IndexEntry) End() uint64 {
	return e.BlockOffset + uint64(e.BlockSize)
}

// Index lists the data blocks of a table in key order.
type Index struct {
	Entries []IndexEntry
}

// AppendIndexEntry encodes e onto dst.
func AppendIndexEntry(dst []byte, e *IndexEntry) []byte {
	dst = common.AppendUint32(dst, uint32(e.FirstKey.EncodedLen()))
	dst = append(dst, e.FirstKey.Encode()...)
	dst = common.AppendUint64(dst, e.BlockOffset)
	return common.AppendUint32(dst, e.BlockSize)
}

// Encode returns the on-disk form of the index.
func (idx *Index) Encode() []byte {
	var buf []byte
	for i := range idx.Entries {
		buf = AppendIndexEntry(buf, &idx.Entries[i])
	}
	return buf
}

// DecodeIndex parses an index block and validates it against the region of
// the file it describes. limit is the first byte after the data blocks may
// end (the start of the filter block at the latest). Keys are copied out of
// data.
func DecodeIndex(data []byte, limit uint64) (*Index, error) {
	idx := &Index{}
	d := common.NewDecoder(data)
	var next uint64
	for d.Remaining() > 0 {
		rawKey := d.LengthPrefixed()
		offset := d.Uint64()
		size := d.Uint32()
		if err := d.Err(); err != nil {
			return nil, fmt.Errorf("index entry %d is truncated", len(idx.Entries))
		}

		key, err := common.DecodeInternalKey(rawKey)
		if err != nil {
			return nil, fmt.Errorf("index entry %d: %v", len(idx.Entries), err)
		}
		e := IndexEntry{FirstKey: key.Clone(), BlockOffset: offset, BlockSize: size}

		switch {
		case offset != next:
			return nil, fmt.Errorf("index entry %d starts at %d, previous block ends at %d", len(idx.Entries), offset, next)
		case size == 0:
			return nil, fmt.Errorf("index entry %d has an empty block", len(idx.Entries))
		case e.End() > limit:
			return nil, fmt.Errorf("index entry %d ends at %d, past the data region end %d", len(idx.Entries), e.End(), limit)
		}
		if n := len(idx.Entries); n > 0 && idx.Entries[n-1].FirstKey.Compare(e.FirstKey) >= 0 {
			return nil, fmt.Errorf("index entry %d first key %s does not sort after %s", n, e.FirstKey, idx.Entries[n-1].FirstKey)
		}

		idx.Entries = append(idx.Entries, e)
		next = e.End()
	}
	return idx, nil
}

// DataEnd is the offset just past the last data block.
func (idx *Index) DataEnd() uint64 {
	if len(idx.Entries) == 0 {
		return 0
	}
	return idx.Entries[len(idx.Entries)-1].End()
}

// Find returns the position of the block that may hold key: the last block
// whose first key is <= key. Keys before the first block map to block 0.
// Returns -1 for an empty index.
func (idx *Index) Find(key common.InternalKey) int {
	if len(idx.Entries) == 0 {
		return -1
	}
	i := sort.Search(len(idx.Entries), func(i int) bool {
		return idx.Entries[i].FirstKey.Compare(key) > 0
	})
	return max(i-1, 0)
}
