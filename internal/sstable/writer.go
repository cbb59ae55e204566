package sstable

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"time"

	"strata/internal/block"
	"strata/internal/common"
	"strata/internal/filter"
	"strata/internal/vfs"
)

// WriterOptions configures a Writer. Zero fields take their defaults.
type WriterOptions struct {
	// BlockSize is the target uncompressed data block size.
	BlockSize int
	// FilterFalsePositiveRate sizes the bloom filter. Negative disables it.
	FilterFalsePositiveRate float64
}

func (o WriterOptions) withDefaults() WriterOptions {
	if o.BlockSize <= 0 {
		o.BlockSize = block.BLOCK_SIZE
	}
	if o.FilterFalsePositiveRate == 0 {
		o.FilterFalsePositiveRate = filter.DEFAULT_FALSE_POSITIVE_RATE
	}
	return o
}

// WriteResult contains metadata from writing an SSTable.
type WriteResult struct {
	Path         string
	FileSize     uint64
	EntryCount   uint64
	BlockCount   int
	SmallestKey  common.InternalKey
	LargestKey   common.InternalKey
	MaxTimestamp uint64
}

// Writer streams sorted entries into a new table. Output goes to a
// temporary file that Finish renames into place, so a table path only ever
// holds a complete table. A Writer is not safe for concurrent use.
type Writer struct {
	fs      vfs.FS
	path    string
	tmpPath string
	file    vfs.File
	bw      *bufio.Writer
	opts    WriterOptions

	block   *block.Builder
	filter  *filter.Builder
	index   Index
	offset  uint64
	scratch common.Entry

	count    uint64
	smallest common.InternalKey
	lastKey  common.InternalKey
	maxTs    uint64

	err  error
	done bool
}

// NewWriter creates path+".tmp" and returns a writer targeting path.
func NewWriter(fs vfs.FS, path string, opts WriterOptions) (*Writer, error) {
	opts = opts.withDefaults()
	tmpPath := path + ".tmp"
	f, err := fs.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", tmpPath, err)
	}
	return &Writer{
		fs:      fs,
		path:    path,
		tmpPath: tmpPath,
		file:    f,
		bw:      bufio.NewWriterSize(f, 64<<10),
		opts:    opts,
		block:   block.NewBuilder(),
		filter:  filter.NewBuilder(opts.FilterFalsePositiveRate),
	}, nil
}

// Add appends one entry. Keys must be strictly ascending in InternalKey
// order; a violation returns common.ErrOutOfOrder and aborts the writer,
// as does any I/O error. The writer copies what it needs from key and value.
func (w *Writer) Add(key common.InternalKey, value []byte, typ common.EntryType) error {
	if w.err != nil {
		return w.err
	}
	if w.done {
		return common.ErrClosed
	}
	if !typ.Valid() {
		return fmt.Errorf("invalid entry type %d", typ)
	}
	if w.count > 0 && key.Compare(w.lastKey) <= 0 {
		return w.fail(fmt.Errorf("%w: %s after %s", common.ErrOutOfOrder, key, w.lastKey))
	}

	w.scratch = common.Entry{Key: key, Type: typ}
	if typ == common.EntryTypePut {
		w.scratch.Value = value
	}
	if w.block.WouldOverflow(&w.scratch, w.opts.BlockSize) {
		if err := w.flushBlock(); err != nil {
			return w.fail(err)
		}
	}
	w.block.Add(&w.scratch)

	if w.count == 0 {
		w.smallest = key.Clone()
	}
	// The filter indexes user keys; versions of one key are adjacent.
	if w.count == 0 || !bytes.Equal(key.UserKey, w.lastKey.UserKey) {
		w.filter.AddKey(key.UserKey)
	}
	w.lastKey = common.InternalKey{
		UserKey:   append(w.lastKey.UserKey[:0], key.UserKey...),
		Timestamp: key.Timestamp,
	}
	w.maxTs = max(w.maxTs, key.Timestamp)
	w.count++
	return nil
}

// AddEntry is Add for an entry value.
func (w *Writer) AddEntry(e *common.Entry) error {
	return w.Add(e.Key, e.Value, e.Type)
}

func (w *Writer) flushBlock() error {
	if w.block.Empty() {
		return nil
	}
	data := w.block.Finish()
	if _, err := w.bw.Write(data); err != nil {
		return fmt.Errorf("failed to write block at offset %d to %s: %w", w.offset, w.tmpPath, err)
	}
	w.index.Entries = append(w.index.Entries, IndexEntry{
		FirstKey:    w.block.FirstKey(),
		BlockOffset: w.offset,
		BlockSize:   uint32(len(data)),
	})
	w.offset += uint64(len(data))
	w.block.Reset()
	return nil
}

// Finish writes the filter, index and footer, syncs the file and renames it
// to its final path.
func (w *Writer) Finish() (*WriteResult, error) {
	if w.err != nil {
		return nil, w.err
	}
	if w.done {
		return nil, common.ErrClosed
	}
	start := time.Now()

	if err := w.flushBlock(); err != nil {
		return nil, w.fail(err)
	}

	if err := w.write(w.filter.Finish()); err != nil {
		return nil, w.fail(err)
	}

	indexOffset := w.offset
	indexData := w.index.Encode()
	if err := w.write(indexData); err != nil {
		return nil, w.fail(err)
	}

	footer := &Footer{Version: VERSION, IndexOffset: indexOffset, IndexSize: uint64(len(indexData))}
	if err := w.write(footer.Encode()); err != nil {
		return nil, w.fail(err)
	}

	if err := w.bw.Flush(); err != nil {
		return nil, w.fail(fmt.Errorf("failed to flush %s: %w", w.tmpPath, err))
	}
	if err := w.file.Sync(); err != nil {
		return nil, w.fail(fmt.Errorf("failed to sync %s: %w", w.tmpPath, err))
	}
	if err := w.file.Close(); err != nil {
		w.file = nil
		return nil, w.fail(fmt.Errorf("failed to close %s: %w", w.tmpPath, err))
	}
	w.file = nil
	if err := w.fs.Rename(w.tmpPath, w.path); err != nil {
		return nil, w.fail(fmt.Errorf("failed to rename %s: %w", w.tmpPath, err))
	}
	w.done = true

	common.LogDuration(start, "sstable %s: wrote %d entries in %d blocks (%d bytes)",
		w.path, w.count, len(w.index.Entries), w.offset)
	return &WriteResult{
		Path:         w.path,
		FileSize:     w.offset,
		EntryCount:   w.count,
		BlockCount:   len(w.index.Entries),
		SmallestKey:  w.smallest,
		LargestKey:   w.lastKey.Clone(),
		MaxTimestamp: w.maxTs,
	}, nil
}

func (w *Writer) write(data []byte) error {
	if _, err := w.bw.Write(data); err != nil {
		return fmt.Errorf("failed to write %s at offset %d: %w", w.tmpPath, w.offset, err)
	}
	w.offset += uint64(len(data))
	return nil
}

// fail records err, aborts the writer and returns err.
func (w *Writer) fail(err error) error {
	w.err = err
	w.Abort()
	return err
}

// Abort discards the partially written table. It is safe to call more than
// once and after a failed Finish; it is a no-op after a successful Finish.
func (w *Writer) Abort() {
	if w.done {
		return
	}
	w.done = true
	if w.err == nil {
		w.err = errAborted
	}
	if w.file != nil {
		w.file.Close()
		w.file = nil
	}
	if err := w.fs.Remove(w.tmpPath); err != nil && vfs.Exists(w.fs, w.tmpPath) {
		common.Warnf("sstable %s: failed to remove temp file: %v", w.tmpPath, err)
	}
}

var errAborted = errors.New("sstable writer aborted")

// WriteTable drains iter into a new table at path.
func WriteTable(fs vfs.FS, path string, iter common.EntryIterator, opts WriterOptions) (*WriteResult, error) {
	w, err := NewWriter(fs, path, opts)
	if err != nil {
		return nil, err
	}
	for {
		e, err := iter.Next()
		if err != nil {
			w.Abort()
			return nil, err
		}
		if e == nil {
			break
		}
		if err := w.AddEntry(e); err != nil {
			w.Abort()
			return nil, err
		}
	}
	return w.Finish()
}
