package block_cache

import (
	"strata/internal/block"
	"strata/internal/common"
)

// BlockCache provides shared LRU block caching across multiple SSTables.
// Blocks are addressed by the table's file number and the block's byte
// offset within the file.
type BlockCache interface {
	// Get retrieves a block from the cache. Returns (block, true) if found, (nil, false) if not.
	Get(fileNo common.FileNo, offset uint64) (block.Block, bool)

	// Put stores a block in the cache.
	Put(fileNo common.FileNo, offset uint64, b block.Block)

	// GetOrLoad returns the cached block or calls load to produce it.
	// Concurrent misses on the same block share a single load.
	GetOrLoad(fileNo common.FileNo, offset uint64, load func() (block.Block, error)) (block.Block, error)

	// Evict drops every block of fileNo.
	Evict(fileNo common.FileNo)

	Stats() Stats
}

// Stats counts cache activity since creation.
type Stats struct {
	Hits   uint64
	Misses uint64
	Loads  uint64
	Len    int
}
