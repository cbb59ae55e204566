package block_cache

import (
	"strconv"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"strata/internal/block"
	"strata/internal/common"
)

// DEFAULT_CAPACITY is the number of blocks kept by NewDefault.
const DEFAULT_CAPACITY = 1024

type blockKey struct {
	fileNo common.FileNo
	offset uint64
}

// lruCache is a fixed-capacity LRU of parsed blocks.
type lruCache struct {
	lru    *lru.Cache[blockKey, block.Block]
	loads  singleflight.Group
	hits   atomic.Uint64
	misses atomic.Uint64
	loaded atomic.Uint64
}

var _ BlockCache = (*lruCache)(nil)

// New returns a cache holding at most capacity blocks.
func New(capacity int) (BlockCache, error) {
	if capacity <= 0 {
		capacity = DEFAULT_CAPACITY
	}
	c, err := lru.New[blockKey, block.Block](capacity)
	if err != nil {
		return nil, err
	}
	return &lruCache{lru: c}, nil
}

func NewDefault() BlockCache {
	c, _ := New(DEFAULT_CAPACITY)
	return c
}

func (c *lruCache) Get(fileNo common.FileNo, offset uint64) (block.Block, bool) {
	b, ok := c.lru.Get(blockKey{fileNo, offset})
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return b, ok
}

func (c *lruCache) Put(fileNo common.FileNo, offset uint64, b block.Block) {
	c.lru.Add(blockKey{fileNo, offset}, b)
}

func (c *lruCache) GetOrLoad(fileNo common.FileNo, offset uint64, load func() (block.Block, error)) (block.Block, error) {
	if b, ok := c.Get(fileNo, offset); ok {
		return b, nil
	}

	flightKey := strconv.FormatUint(uint64(fileNo), 10) + "/" + strconv.FormatUint(offset, 10)
	v, err, _ := c.loads.Do(flightKey, func() (any, error) {
		// Another flight may have filled the entry between our miss and Do.
		if b, ok := c.lru.Get(blockKey{fileNo, offset}); ok {
			return b, nil
		}
		b, err := load()
		if err != nil {
			return nil, err
		}
		c.loaded.Add(1)
		c.Put(fileNo, offset, b)
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(block.Block), nil
}

func (c *lruCache) Evict(fileNo common.FileNo) {
	for _, k := range c.lru.Keys() {
		if k.fileNo == fileNo {
			c.lru.Remove(k)
		}
	}
}

func (c *lruCache) Stats() Stats {
	return Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Loads:  c.loaded.Load(),
		Len:    c.lru.Len(),
	}
}
