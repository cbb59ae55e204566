package sstable

import (
	"strata/internal/block"
	"strata/internal/common"
)

// cursor is a position within a table: an entry of a loaded block.
type cursor struct {
	r        *Reader
	blockIdx int
	blk      block.Block
	pos      int
}

// entry returns the entry under the cursor, or nil past the end.
func (c *cursor) entry() *common.Entry {
	if c.blk == nil || c.pos >= c.blk.Len() {
		return nil
	}
	return c.blk.Entry(c.pos)
}

// settle moves past exhausted blocks.
func (c *cursor) settle() error {
	for c.blk != nil && c.pos >= c.blk.Len() {
		c.blockIdx++
		if c.blockIdx >= len(c.r.index.Entries) {
			c.blk = nil
			return nil
		}
		blk, err := c.r.readBlock(c.blockIdx)
		if err != nil {
			return err
		}
		c.blk = blk
		c.pos = 0
	}
	return nil
}

func (c *cursor) advance() error {
	c.pos++
	return c.settle()
}

// tableIterator provides sequential access to a key range of an SSTable.
// Blocks are loaded lazily, one at a time.
type tableIterator struct {
	r          *Reader
	start, end []byte
	c          *cursor
	err        error
	done       bool
}

var _ common.EntryIterator = (*tableIterator)(nil)

// Next returns the next entry in the SSTable.
func (it *tableIterator) Next() (*common.Entry, error) {
	if it.err != nil {
		return nil, it.err
	}
	if it.done {
		return nil, nil
	}

	if it.c == nil {
		seekKey := common.SeekKey(it.start)
		if it.start == nil {
			// The empty user key at MaxTimestamp sorts before every entry.
			seekKey = common.SeekKey([]byte{})
		}
		c, err := it.r.seek(seekKey)
		if err != nil {
			it.err = err
			return nil, err
		}
		it.c = c
	} else if err := it.c.advance(); err != nil {
		it.err = err
		return nil, err
	}

	e := it.c.entry()
	if e == nil || (it.end != nil && !common.InRange(e.Key.UserKey, nil, it.end)) {
		it.done = true
		return nil, nil
	}
	return e, nil
}
