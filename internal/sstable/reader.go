package sstable

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"strata/internal/block"
	"strata/internal/block_cache"
	"strata/internal/common"
	"strata/internal/filter"
	"strata/internal/vfs"
)

// Reader provides random access to entries in an SSTable file. It is
// immutable after Open and safe for concurrent use.
type Reader struct {
	file       vfs.File
	path       string
	fileNo     common.FileNo
	size       int64
	footer     *Footer
	filter     filter.Filter
	index      *Index
	blockCache block_cache.BlockCache
	closed     atomic.Bool

	countOnce sync.Once
	count     int
	countErr  error
}

var _ Table = (*Reader)(nil)

// Open opens an SSTable file and loads its footer, filter and index into
// memory. Damaged metadata is reported as a *common.CorruptionError. cache
// may be nil.
func Open(fs vfs.FS, path string, fileNo common.FileNo, cache block_cache.BlockCache) (*Reader, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	r := &Reader{file: f, path: path, fileNo: fileNo, blockCache: cache}
	if err := r.loadMetadata(); err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

// loadMetadata reads and validates the footer, index and filter.
func (r *Reader) loadMetadata() error {
	stat, err := r.file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", r.path, err)
	}
	r.size = stat.Size()
	if r.size < FOOTER_SIZE {
		return common.Corruptf(r.path, 0, "file of %d bytes is smaller than the footer", r.size)
	}

	footerOffset := r.size - FOOTER_SIZE
	footerData, err := r.readAt(footerOffset, FOOTER_SIZE)
	if err != nil {
		return err
	}
	footer, err := DecodeFooter(footerData)
	if err != nil {
		return common.Corruptf(r.path, footerOffset, "%v", err)
	}
	if footer.IndexOffset > uint64(footerOffset) || footer.IndexSize != uint64(footerOffset)-footer.IndexOffset {
		return common.Corruptf(r.path, footerOffset, "index [%d, +%d) does not end at the footer",
			footer.IndexOffset, footer.IndexSize)
	}

	indexData, err := r.readAt(int64(footer.IndexOffset), int(footer.IndexSize))
	if err != nil {
		return err
	}
	index, err := DecodeIndex(indexData, footer.IndexOffset)
	if err != nil {
		return common.Corruptf(r.path, int64(footer.IndexOffset), "%v", err)
	}

	filterOffset := index.DataEnd()
	filterData, err := r.readAt(int64(filterOffset), int(footer.IndexOffset-filterOffset))
	if err != nil {
		return err
	}
	bloom, err := filter.DecodeBloomFilter(filterData)
	if err != nil {
		return common.Corruptf(r.path, int64(filterOffset), "filter block: %v", err)
	}

	r.footer = footer
	r.index = index
	r.filter = bloom
	return nil
}

func (r *Reader) readAt(offset int64, n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := r.file.ReadAt(buf, offset); err != nil {
		return nil, fmt.Errorf("failed to read %d bytes at offset %d from %s: %w", n, offset, r.path, err)
	}
	return buf, nil
}

// readBlock returns block i, through the shared cache when there is one.
func (r *Reader) readBlock(i int) (block.Block, error) {
	if r.closed.Load() {
		return nil, common.ErrClosed
	}
	entry := &r.index.Entries[i]
	load := func() (block.Block, error) {
		data, err := r.readAt(int64(entry.BlockOffset), int(entry.BlockSize))
		if err != nil {
			return nil, err
		}
		blk, err := block.NewBlock(data)
		if err != nil {
			return nil, common.Corruptf(r.path, int64(entry.BlockOffset), "block %d: %v", i, err)
		}
		if blk.Len() == 0 || blk.Entry(0).Key.Compare(entry.FirstKey) != 0 {
			return nil, common.Corruptf(r.path, int64(entry.BlockOffset), "block %d does not start with its index key %s", i, entry.FirstKey)
		}
		return blk, nil
	}
	if r.blockCache == nil {
		return load()
	}
	return r.blockCache.GetOrLoad(r.fileNo, entry.BlockOffset, load)
}

// seek positions a cursor at the first entry >= key.
func (r *Reader) seek(key common.InternalKey) (*cursor, error) {
	c := &cursor{r: r, blockIdx: r.index.Find(key)}
	if c.blockIdx < 0 {
		return c, nil
	}
	blk, err := r.readBlock(c.blockIdx)
	if err != nil {
		return nil, err
	}
	c.blk = blk
	c.pos = blk.SeekGE(key)
	// The lower bound may be the first entry of the next block.
	if err := c.settle(); err != nil {
		return nil, err
	}
	return c, nil
}

// Lookup returns the newest version of key, tombstones included.
func (r *Reader) Lookup(key []byte) (*common.Entry, error) {
	if !r.filter.MayContain(key) {
		return nil, common.ErrNotFound
	}
	c, err := r.seek(common.SeekKey(key))
	if err != nil {
		return nil, err
	}
	e := c.entry()
	if e == nil || !bytes.Equal(e.Key.UserKey, key) {
		return nil, common.ErrNotFound
	}
	return e.Clone(), nil
}

// Get returns the newest live value for key.
func (r *Reader) Get(key []byte) ([]byte, bool, error) {
	e, err := r.Lookup(key)
	if errors.Is(err, common.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if e.IsTombstone() {
		return nil, false, nil
	}
	return e.Value, true, nil
}

// Scan walks every version with a user key in [start, end). Nil bounds are
// open. Entries returned by the iterator must not be modified.
func (r *Reader) Scan(start, end []byte) common.EntryIterator {
	return &tableIterator{r: r, start: start, end: end}
}

func (r *Reader) Iterator() common.EntryIterator {
	return r.Scan(nil, nil)
}

// Footer returns the decoded table footer.
func (r *Reader) Footer() *Footer {
	return r.footer
}

// Index returns the index entries (first key of each block).
func (r *Reader) Index() *Index {
	return r.index
}

// Len counts the entries by walking every block once; the result is cached.
func (r *Reader) Len() (int, error) {
	r.countOnce.Do(func() {
		for i := range r.index.Entries {
			blk, err := r.readBlock(i)
			if err != nil {
				r.countErr = err
				return
			}
			r.count += blk.Len()
		}
	})
	return r.count, r.countErr
}

func (r *Reader) FileNo() common.FileNo {
	return r.fileNo
}

func (r *Reader) Path() string {
	return r.path
}

func (r *Reader) Size() int64 {
	return r.size
}

// Filter exposes the table's key filter.
func (r *Reader) Filter() filter.Filter {
	return r.filter
}

// Close releases the underlying file handle and drops the table's cached
// blocks.
func (r *Reader) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	if r.blockCache != nil {
		r.blockCache.Evict(r.fileNo)
	}
	return r.file.Close()
}
