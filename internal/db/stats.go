package db

import (
	"sync/atomic"
	"time"

	"strata/internal/block_cache"
	"strata/internal/wal"
)

// Stats is a snapshot of the database's operation counters.
type Stats struct {
	Puts    uint64
	Deletes uint64
	Batches uint64

	WALRecords  uint64
	WALBytes    uint64
	WALSyncs    uint64
	WALSyncTime time.Duration

	Flushes      uint64
	FlushedBytes uint64

	MemtableSize    int64
	MemtableEntries int64
	Tables          int

	BlockCache block_cache.Stats
}

// counters accumulates Stats. It doubles as the WAL observer.
type counters struct {
	puts, deletes, batches atomic.Uint64
	walRecords, walBytes   atomic.Uint64
	walSyncs, walSyncNanos atomic.Uint64
	flushes, flushedBytes  atomic.Uint64
}

var _ wal.Observer = (*counters)(nil)

func (c *counters) OnAppend(records, bytes int) {
	c.walRecords.Add(uint64(records))
	c.walBytes.Add(uint64(bytes))
}

func (c *counters) OnSync(d time.Duration) {
	c.walSyncs.Add(1)
	c.walSyncNanos.Add(uint64(d))
}

// Stats returns the current counters.
func (d *DB) Stats() Stats {
	d.mu.RLock()
	mt := d.memtable
	d.mu.RUnlock()

	s := Stats{
		Puts:            d.counters.puts.Load(),
		Deletes:         d.counters.deletes.Load(),
		Batches:         d.counters.batches.Load(),
		WALRecords:      d.counters.walRecords.Load(),
		WALBytes:        d.counters.walBytes.Load(),
		WALSyncs:        d.counters.walSyncs.Load(),
		WALSyncTime:     time.Duration(d.counters.walSyncNanos.Load()),
		Flushes:         d.counters.flushes.Load(),
		FlushedBytes:    d.counters.flushedBytes.Load(),
		MemtableSize:    mt.ApproximateSize(),
		MemtableEntries: mt.Len(),
		Tables:          len(d.manifest.Current().Tables),
	}
	if cache := d.manifest.BlockCache(); cache != nil {
		s.BlockCache = cache.Stats()
	}
	return s
}
