package block

import "strata/internal/common"

const (
	// BLOCK_SIZE is the default target size of an uncompressed data block.
	// A block is cut once adding another entry would push it past the
	// target, so blocks holding a single large entry may exceed it.
	BLOCK_SIZE = 4096

	// TRAILER_SIZE is the u32 CRC32 appended to every block.
	TRAILER_SIZE = 4
)

// Block provides lookups within a parsed data block.
type Block interface {
	// Get returns the newest version of userKey stored in this block.
	Get(userKey []byte) (*common.Entry, bool)

	// SeekGE returns the position of the first entry whose InternalKey is
	// >= key, or Len() when every entry sorts before key.
	SeekGE(key common.InternalKey) int

	// Entry returns the entry at position i.
	Entry(i int) *common.Entry

	// Len returns the number of entries in this block.
	Len() int

	// Size returns the encoded size including the trailer.
	Size() int
}
