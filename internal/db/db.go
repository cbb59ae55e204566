package db

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"strata/internal/block_cache"
	"strata/internal/common"
	"strata/internal/manifest"
	"strata/internal/memtable"
	"strata/internal/sstable"
	"strata/internal/vfs"
	"strata/internal/wal"

	"golang.org/x/sync/errgroup"
)

var (
	ErrNotFound = common.ErrNotFound
	ErrEmptyKey = errors.New("db: key must be non-empty")
)

// KV is one live key-value pair returned by Scan.
type KV struct {
	Key   []byte
	Value []byte
}

type DB struct {
	// mu guards the memtable and wal pointers together with manifest
	// updates, so readers see a consistent memtable + tables pair.
	mu       sync.RWMutex
	memtable memtable.Memtable
	wal      *wal.Writer
	manifest *manifest.Manifest

	// clock is the last assigned write timestamp.
	clock    atomic.Uint64
	counters counters

	Opts  Options
	fs    vfs.FS
	paths *common.PathManager

	writeChan chan *writeRequest
	closing   chan struct{}
	loopDone  chan struct{}
	closed    atomic.Bool
}

// Open opens the database in dir, creating it if needed. Recovery loads the
// manifest, opens every table and replays the current WAL into a fresh
// memtable.
func Open(dir string, optFns ...Option) (*DB, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger != nil {
		common.SetLogger(opts.Logger)
	}
	start := time.Now()

	fsys := opts.FS
	paths := common.NewPathManager(dir)

	// Create directories
	for _, d := range []string{paths.Root(), paths.WALDir(), paths.SSTableDir()} {
		if err := fsys.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", d, err)
		}
	}

	var cache block_cache.BlockCache
	if opts.BlockCacheSize > 0 {
		var err error
		if cache, err = block_cache.New(opts.BlockCacheSize); err != nil {
			return nil, err
		}
	}

	m, err := loadOrCreateManifest(fsys, paths, cache)
	if err != nil {
		return nil, err
	}
	v := m.Current()

	if err := openTables(m, v); err != nil {
		m.Close()
		return nil, err
	}

	// Replay WAL into memtable
	mt := memtable.NewMemtable()
	walPath := paths.WALPath(v.CurrentWAL)
	info, err := replayWAL(fsys, walPath, v.LastSequence, mt)
	if err != nil {
		m.Close()
		return nil, fmt.Errorf("failed to replay WAL: %w", err)
	}

	d := &DB{
		memtable:  mt,
		manifest:  m,
		Opts:      opts,
		fs:        fsys,
		paths:     paths,
		writeChan: make(chan *writeRequest),
		closing:   make(chan struct{}),
		loopDone:  make(chan struct{}),
	}

	// New timestamps must sort above everything already stored.
	lastTs := max(v.LastTimestamp, info.MaxTimestamp)
	for _, fm := range v.Tables {
		lastTs = max(lastTs, fm.MaxTimestamp)
	}
	d.clock.Store(lastTs)

	d.wal, err = wal.Open(fsys, walPath, opts.walOptions(max(v.LastSequence, info.LastSequence), &d.counters))
	if err != nil {
		m.Close()
		return nil, fmt.Errorf("failed to open WAL: %w", err)
	}

	d.removeObsoleteFiles(v)

	// Start background group commit loop
	go d.groupCommitLoop()

	common.LogDuration(start, "opened %s: wal=%d seq=%d ts=%d tables=%d replayed=%d",
		dir, v.CurrentWAL, d.wal.LastSequence(), lastTs, len(v.Tables), info.Records)
	return d, nil
}

// loadOrCreateManifest loads the MANIFEST, or writes one for a new database.
func loadOrCreateManifest(fsys vfs.FS, paths *common.PathManager, cache block_cache.BlockCache) (*manifest.Manifest, error) {
	if vfs.Exists(fsys, paths.ManifestPath()) {
		m, err := manifest.Load(fsys, paths, cache)
		if err != nil {
			return nil, fmt.Errorf("failed to read manifest: %w", err)
		}
		return m, nil
	}

	// Fresh DB path: no manifest
	m := manifest.NewManifest(fsys, paths, cache)
	m.Apply(&manifest.Edit{NewWAL: m.AllocateFileNo()})
	if err := m.Flush(); err != nil {
		return nil, fmt.Errorf("failed to write initial manifest: %w", err)
	}
	return m, nil
}

// openTables opens every table of v in parallel.
func openTables(m *manifest.Manifest, v *manifest.Version) error {
	var g errgroup.Group
	g.SetLimit(8)
	for _, fm := range v.Tables {
		g.Go(func() error {
			_, err := m.GetTable(fm.FileNo)
			return err
		})
	}
	return g.Wait()
}

// replayWAL replays the records of the log at path that are newer than
// floor into mt. A missing log replays nothing.
func replayWAL(fsys vfs.FS, path string, floor uint64, mt memtable.Memtable) (wal.RecoveryInfo, error) {
	if !vfs.Exists(fsys, path) {
		return wal.RecoveryInfo{}, nil
	}
	return wal.Recover(fsys, path, func(rec *wal.Record) error {
		if rec.Seq <= floor {
			return nil
		}
		return applyRecord(mt, rec)
	})
}

// removeObsoleteFiles deletes WALs and tables that v does not reference,
// along with temporary files left behind by an interrupted flush.
func (d *DB) removeObsoleteFiles(v *manifest.Version) {
	live := v.LiveFiles()
	removed := 0
	for _, dir := range []string{d.paths.WALDir(), d.paths.SSTableDir()} {
		names, err := d.fs.List(dir)
		if err != nil {
			common.Warnf("failed to list %s: %v", dir, err)
			continue
		}
		for _, name := range names {
			if !strings.HasSuffix(name, ".tmp") {
				fileNo, err := common.ParseFileNo(name)
				if err != nil {
					continue
				}
				if _, ok := live[fileNo]; ok {
					continue
				}
			}
			path := filepath.Join(dir, name)
			if err := d.fs.Remove(path); err != nil {
				common.Warnf("failed to remove obsolete %s: %v", path, err)
				continue
			}
			removed++
		}
	}
	if removed > 0 {
		common.Logf("removed %d obsolete files", removed)
	}
}

func (d *DB) Put(key, value []byte) error {
	var b Batch
	b.Put(key, value)
	return d.Write(&b)
}

func (d *DB) Delete(key []byte) error {
	var b Batch
	b.Delete(key)
	return d.Write(&b)
}

// Write commits every mutation of b with one WAL append. Timestamps are
// assigned in batch order, so a later mutation of a key wins.
func (d *DB) Write(b *Batch) error {
	if b.Len() == 0 {
		return nil
	}
	for _, rec := range b.records {
		if len(rec.Key) == 0 {
			return ErrEmptyKey
		}
		if len(rec.Key) > d.Opts.MaxKeySize {
			return fmt.Errorf("key of %d bytes exceeds %d: %w", len(rec.Key), d.Opts.MaxKeySize, common.ErrEntryTooLarge)
		}
		if rec.HasValue && len(rec.Value) > d.Opts.MaxValueSize {
			return fmt.Errorf("value of %d bytes exceeds %d: %w", len(rec.Value), d.Opts.MaxValueSize, common.ErrEntryTooLarge)
		}
	}

	return d.submit(&writeRequest{
		records:  b.records,
		resultCh: make(chan error, 1),
	})
}

// Get returns the newest live value of key, or ErrNotFound.
func (d *DB) Get(key []byte) ([]byte, error) {
	if d.closed.Load() {
		return nil, common.ErrClosed
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	log := common.Logger()
	log.Debugf("get key=%q", key)

	entry, ok := d.memtable.Lookup(key)
	if ok {
		if entry.IsTombstone() {
			log.Debugf("  found tombstone in memtable")
			return nil, ErrNotFound
		}
		log.Debugf("  found in memtable")
		return entry.Value, nil
	}

	// Tables are newest first; the first version found shadows the rest.
	for _, fm := range d.manifest.Current().Tables {
		if !fm.MayContain(key) {
			continue
		}
		table, err := d.manifest.GetTable(fm.FileNo)
		if err != nil {
			return nil, err
		}

		entry, err := table.Lookup(key)
		if errors.Is(err, common.ErrNotFound) {
			log.Debugf("  not in %06d.sst", fm.FileNo)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read from %06d.sst: %w", fm.FileNo, err)
		}

		if entry.IsTombstone() {
			log.Debugf("  found tombstone in %06d.sst", fm.FileNo)
			return nil, ErrNotFound
		}
		log.Debugf("  found in %06d.sst", fm.FileNo)
		return entry.Value, nil
	}

	return nil, ErrNotFound
}

// Scan returns the live pairs with keys in [start, end), in key order. Nil
// bounds are open.
func (d *DB) Scan(start, end []byte) ([]KV, error) {
	if d.closed.Load() {
		return nil, common.ErrClosed
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	iters := []common.EntryIterator{d.memtable.Scan(start, end)}
	for _, fm := range d.manifest.Current().Tables {
		if !fm.Overlaps(start, end) {
			continue
		}
		table, err := d.manifest.GetTable(fm.FileNo)
		if err != nil {
			return nil, err
		}
		iters = append(iters, table.Scan(start, end))
	}

	var out []KV
	iter := newMergeIterator(iters)
	for {
		e, err := iter.Next()
		if err != nil {
			return nil, err
		}
		if e == nil {
			return out, nil
		}
		if e.IsTombstone() {
			continue
		}
		out = append(out, KV{Key: bytes.Clone(e.Key.UserKey), Value: bytes.Clone(e.Value)})
	}
}

// Flush writes the memtable to a new SSTable and rotates the WAL.
func (d *DB) Flush() error {
	return d.submit(&writeRequest{flush: true, resultCh: make(chan error, 1)})
}

// flushMemtable writes the current memtable to an SSTable and rotates the
// WAL. It runs on the commit loop.
func (d *DB) flushMemtable() error {
	mt, oldWAL := d.memtable, d.wal
	if mt.Len() == 0 && oldWAL.Size() == 0 {
		return nil
	}
	start := time.Now()

	prev := d.manifest.Current()
	edit := &manifest.Edit{
		LastSequence:  oldWAL.LastSequence(),
		LastTimestamp: d.clock.Load(),
	}

	// 1. Write memtable to SSTable
	var tablePath string
	if mt.Len() > 0 {
		fileNo := d.manifest.AllocateFileNo()
		meta, err := d.writeSSTable(mt, fileNo)
		if err != nil {
			return err
		}
		edit.AddTables = []manifest.FileMetadata{*meta}
		tablePath = d.paths.SSTablePath(fileNo)
	}

	// 2. Create new WAL file, continuing the sequence
	walNo := d.manifest.AllocateFileNo()
	newWAL, err := wal.Open(d.fs, d.paths.WALPath(walNo), d.Opts.walOptions(oldWAL.LastSequence(), &d.counters))
	if err != nil {
		d.discard(tablePath, edit)
		return err
	}
	edit.NewWAL = walNo

	// 3. Update and persist manifest (atomic commit point), then swap to
	// the new WAL and memtable.
	d.mu.Lock()
	d.manifest.Apply(edit)
	if err := d.manifest.Flush(); err != nil {
		d.manifest.LoadVersion(prev)
		d.mu.Unlock()
		newWAL.Close()
		d.fs.Remove(newWAL.Path())
		d.discard(tablePath, edit)
		return fmt.Errorf("failed to persist manifest: %w", err)
	}
	d.wal = newWAL
	d.memtable = memtable.NewMemtable()
	d.mu.Unlock()

	// 4. Retire the old WAL
	if err := oldWAL.Close(); err != nil {
		common.Warnf("failed to close %s: %v", oldWAL.Path(), err)
	}
	if err := d.fs.Remove(oldWAL.Path()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		common.Warnf("failed to remove %s: %v", oldWAL.Path(), err)
	}

	d.counters.flushes.Add(1)
	for _, fm := range edit.AddTables {
		d.counters.flushedBytes.Add(fm.Size)
	}
	common.LogDuration(start, "flushed %d entries, wal %s -> %06d", mt.Len(), oldWAL.Path(), walNo)
	return nil
}

// discard removes a table written by a flush that did not commit.
func (d *DB) discard(tablePath string, edit *manifest.Edit) {
	if tablePath == "" {
		return
	}
	for _, fm := range edit.AddTables {
		d.manifest.ReleaseTable(fm.FileNo)
	}
	if err := d.fs.Remove(tablePath); err != nil {
		common.Warnf("failed to remove %s: %v", tablePath, err)
	}
}

// writeSSTable writes mt to the table fileNo and opens it.
func (d *DB) writeSSTable(mt memtable.Memtable, fileNo common.FileNo) (*manifest.FileMetadata, error) {
	path := d.paths.SSTablePath(fileNo)
	result, err := sstable.WriteTable(d.fs, path, mt.Iterator(), d.Opts.writerOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", path, err)
	}

	// Warm the table cache so the first read after the swap does not pay
	// for the open.
	if _, err := d.manifest.GetTable(fileNo); err != nil {
		d.fs.Remove(path)
		return nil, err
	}

	return &manifest.FileMetadata{
		FileNo:       fileNo,
		Size:         result.FileSize,
		EntryCount:   result.EntryCount,
		SmallestKey:  result.SmallestKey.UserKey,
		LargestKey:   result.LargestKey.UserKey,
		MaxTimestamp: result.MaxTimestamp,
	}, nil
}

func (d *DB) Memtable() memtable.Memtable {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.memtable
}

func (d *DB) WAL() *wal.Writer {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.wal
}

func (d *DB) Manifest() *manifest.Manifest {
	return d.manifest
}

func (d *DB) Paths() *common.PathManager {
	return d.paths
}

// LastTimestamp returns the timestamp of the most recent write.
func (d *DB) LastTimestamp() uint64 {
	return d.clock.Load()
}

// Close stops the commit loop, syncs and closes the WAL and releases every
// table. Writes still queued fail with common.ErrClosed. The memtable is not
// flushed; the WAL recovers it on the next Open.
func (d *DB) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(d.closing)
	<-d.loopDone

	d.mu.Lock()
	defer d.mu.Unlock()
	return errors.Join(d.wal.Close(), d.manifest.Close())
}
