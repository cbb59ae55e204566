package wal

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"strata/internal/common"
	"strata/internal/vfs"
)

// Writer appends records to a single log file. All methods are safe for
// concurrent use; calls are serialized so the on-disk order matches the
// sequence order.
type Writer struct {
	mu     sync.Mutex
	file   vfs.File
	path   string
	opts   Options
	seq    uint64
	size   int64
	buf    []byte
	dirty  bool
	closed bool
	// err is set when a failed write could not be rolled back; the log may
	// end in records that the counter does not account for.
	err error

	stopSync chan struct{}
	syncDone chan struct{}
}

// Open creates the log at path or reopens an existing one. On reopen the
// file is scanned, a torn tail is cut off, and the sequence counter resumes
// after the last valid record.
func Open(fs vfs.FS, path string, opts Options) (*Writer, error) {
	opts = opts.withDefaults()

	f, err := fs.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	lastSeq, validOffset, err := scanTail(f, path)
	if err != nil {
		f.Close()
		return nil, err
	}
	if _, err := f.Seek(validOffset, io.SeekStart); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to seek %s to offset %d: %w", path, validOffset, err)
	}

	w := &Writer{
		file: f,
		path: path,
		opts: opts,
		seq:  max(lastSeq, opts.StartSequence),
		size: validOffset,
	}

	if opts.SyncMode == SyncNormal {
		w.stopSync = make(chan struct{})
		w.syncDone = make(chan struct{})
		go w.syncLoop()
	}
	return w, nil
}

// scanTail finds the end of the valid log and truncates anything after it.
func scanTail(f vfs.File, path string) (lastSeq uint64, validOffset int64, err error) {
	info, err := f.Stat()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.Size() == 0 {
		return 0, 0, nil
	}

	r := NewReader(io.NewSectionReader(f, 0, info.Size()))
	for {
		rec, err := r.Next()
		if err != nil {
			return 0, 0, fmt.Errorf("failed to scan %s: %w", path, err)
		}
		if rec == nil {
			break
		}
		lastSeq = rec.Seq
	}

	validOffset = r.ValidOffset()
	if validOffset < info.Size() {
		common.Warnf("wal %s: truncating %d bytes after offset %d (%s)",
			path, info.Size()-validOffset, validOffset, r.Reason())
		if err := f.Truncate(validOffset); err != nil {
			return 0, 0, fmt.Errorf("failed to truncate %s at offset %d: %w", path, validOffset, err)
		}
		if err := f.Sync(); err != nil {
			return 0, 0, fmt.Errorf("failed to sync %s: %w", path, err)
		}
	}
	return lastSeq, validOffset, nil
}

// Append logs a single record and returns its sequence number. rec.Seq is
// set on success.
func (w *Writer) Append(rec *Record) (uint64, error) {
	seq, _, err := w.AppendBatch([]*Record{rec})
	return seq, err
}

// AppendBatch logs recs with consecutive sequence numbers using one write and
// at most one sync. Validation happens before any byte is written, so a
// rejected batch leaves the log and the counter untouched.
func (w *Writer) AppendBatch(recs []*Record) (first, last uint64, err error) {
	if len(recs) == 0 {
		return 0, 0, nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, 0, common.ErrClosed
	}
	if w.err != nil {
		return 0, 0, w.err
	}
	for _, rec := range recs {
		if len(rec.Key) > w.opts.MaxKeySize {
			return 0, 0, fmt.Errorf("key of %d bytes exceeds %d: %w", len(rec.Key), w.opts.MaxKeySize, common.ErrEntryTooLarge)
		}
		if rec.HasValue && len(rec.Value) > w.opts.MaxValueSize {
			return 0, 0, fmt.Errorf("value of %d bytes exceeds %d: %w", len(rec.Value), w.opts.MaxValueSize, common.ErrEntryTooLarge)
		}
	}

	w.buf = w.buf[:0]
	for i, rec := range recs {
		w.buf = appendRecord(w.buf, rec, w.seq+1+uint64(i))
	}

	// An empty log always takes one batch so oversized batches cannot wedge
	// the caller in a rotate loop.
	if w.opts.MaxFileSize > 0 && w.size > 0 && w.size+int64(len(w.buf)) > w.opts.MaxFileSize {
		return 0, 0, common.ErrLogFull
	}

	if n, err := w.file.Write(w.buf); err != nil {
		w.rollback(n)
		return 0, 0, fmt.Errorf("failed to write %s at offset %d: %w", w.path, w.size, err)
	}

	if w.opts.SyncMode == SyncFull {
		if err := w.syncLocked(); err != nil {
			w.rollback(len(w.buf))
			return 0, 0, err
		}
	} else {
		w.dirty = true
	}

	first = w.seq + 1
	w.seq += uint64(len(recs))
	w.size += int64(len(w.buf))
	for i, rec := range recs {
		rec.Seq = first + uint64(i)
	}
	w.opts.Observer.OnAppend(len(recs), len(w.buf))
	return first, w.seq, nil
}

// rollback cuts off a failed write so later appends start on a record
// boundary. If that fails the writer is poisoned.
func (w *Writer) rollback(written int) {
	if written == 0 {
		return
	}
	if err := w.file.Truncate(w.size); err != nil {
		w.err = fmt.Errorf("failed to roll back %s to offset %d: %w", w.path, w.size, err)
		common.Warnf("wal: %v", w.err)
		return
	}
	if _, err := w.file.Seek(w.size, io.SeekStart); err != nil {
		w.err = fmt.Errorf("failed to seek %s to offset %d after rollback: %w", w.path, w.size, err)
		common.Warnf("wal: %v", w.err)
	}
}

// Sync forces all appended records to stable storage.
func (w *Writer) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return common.ErrClosed
	}
	return w.syncLocked()
}

func (w *Writer) syncLocked() error {
	start := time.Now()
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync %s: %w", w.path, err)
	}
	w.dirty = false
	w.opts.Observer.OnSync(time.Since(start))
	return nil
}

func (w *Writer) syncLoop() {
	defer close(w.syncDone)

	ticker := time.NewTicker(w.opts.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopSync:
			return
		case <-ticker.C:
			w.mu.Lock()
			if w.dirty && !w.closed {
				if err := w.syncLocked(); err != nil {
					common.Warnf("wal %s: background sync failed: %v", w.path, err)
				}
			}
			w.mu.Unlock()
		}
	}
}

// Close syncs and closes the log. Further calls return common.ErrClosed.
func (w *Writer) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	if w.stopSync != nil {
		close(w.stopSync)
		<-w.syncDone
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	err := w.file.Sync()
	if cerr := w.file.Close(); err == nil {
		err = cerr
	}
	return err
}

// LastSequence returns the sequence number of the last appended record.
func (w *Writer) LastSequence() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.seq
}

// Size returns the number of bytes of valid log.
func (w *Writer) Size() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.size
}

func (w *Writer) Path() string {
	return w.path
}
