package block

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"

	"strata/internal/common"
)

// blockImpl parses and stores all entries from a data block for fast lookups.
type blockImpl struct {
	data    []byte
	entries []*common.Entry // sorted by InternalKey
}

var _ Block = (*blockImpl)(nil)

// NewBlock verifies the trailer of a raw data block and parses it into
// memory. The block keeps references into data.
func NewBlock(data []byte) (Block, error) {
	if len(data) < TRAILER_SIZE {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the trailer", ErrMalformed, len(data))
	}
	body := data[:len(data)-TRAILER_SIZE]
	want := binary.LittleEndian.Uint32(data[len(body):])
	if got := common.Checksum(body); got != want {
		return nil, fmt.Errorf("%w: stored %08x, computed %08x", ErrChecksum, want, got)
	}

	var entries []*common.Entry
	d := common.NewDecoder(body)
	for d.Remaining() > 0 {
		entry, err := decodeEntry(d)
		if err != nil {
			return nil, err
		}
		if n := len(entries); n > 0 && entries[n-1].Key.Compare(entry.Key) >= 0 {
			return nil, fmt.Errorf("%w: %s does not sort after %s", ErrMalformed, entry.Key, entries[n-1].Key)
		}
		entries = append(entries, entry)
	}

	return &blockImpl{data: data, entries: entries}, nil
}

// SeekGE performs binary search over the parsed entries.
func (b *blockImpl) SeekGE(key common.InternalKey) int {
	return sort.Search(len(b.entries), func(i int) bool {
		return b.entries[i].Key.Compare(key) >= 0
	})
}

// Get returns the newest version of userKey. Versions of a key are adjacent
// and newest first, so the lower bound of SeekKey(userKey) is the answer if
// its user key matches.
func (b *blockImpl) Get(userKey []byte) (*common.Entry, bool) {
	i := b.SeekGE(common.SeekKey(userKey))
	if i == len(b.entries) || !bytes.Equal(b.entries[i].Key.UserKey, userKey) {
		return nil, false
	}
	return b.entries[i], true
}

func (b *blockImpl) Entry(i int) *common.Entry {
	return b.entries[i]
}

// Len returns the number of entries in this block.
func (b *blockImpl) Len() int {
	return len(b.entries)
}

func (b *blockImpl) Size() int {
	return len(b.data)
}
