package main

import (
	"strata/internal/inspect"
)

func (sh *shell) inspect(name string) {
	if err := inspect.Inspect(sh.out, sh.fs, sh.resolve(name)); err != nil {
		sh.printf("inspect error: %v\n", err)
	}
}

func (sh *shell) stats() {
	s := sh.engine.Stats()
	sh.printf("puts=%d deletes=%d batches=%d\n", s.Puts, s.Deletes, s.Batches)
	sh.printf("wal: records=%d bytes=%d syncs=%d sync_time=%v\n", s.WALRecords, s.WALBytes, s.WALSyncs, s.WALSyncTime)
	sh.printf("memtable: entries=%d size=%d\n", s.MemtableEntries, s.MemtableSize)
	sh.printf("flushes=%d flushed_bytes=%d tables=%d\n", s.Flushes, s.FlushedBytes, s.Tables)
	sh.printf("block cache: len=%d hits=%d misses=%d loads=%d\n",
		s.BlockCache.Len, s.BlockCache.Hits, s.BlockCache.Misses, s.BlockCache.Loads)
}

func (sh *shell) tables() {
	v := sh.engine.Manifest().Current()
	sh.printf("wal %06d.log, next file %d\n", v.CurrentWAL, v.NextFileNo)
	for _, t := range v.Tables {
		sh.printf("%06d.sst entries=%d size=%d keys=[%s, %s]\n", t.FileNo, t.EntryCount, t.Size, t.SmallestKey, t.LargestKey)
	}
	sh.printf("(%d tables)\n", len(v.Tables))
}
