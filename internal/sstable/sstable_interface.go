package sstable

import "strata/internal/common"

// SSTable File Layout:
//
//	                ┌────────────────┐
//	                │  Data Block 0  │  ~BlockSize bytes of entries + crc32
//	                ├────────────────┤
//	                │  Data Block 1  │
//	                ├────────────────┤
//	                │       ...      │
//	                ├────────────────┤
//	                │  Data Block N  │
//	   dataEnd ->   ├────────────────┤
//	                │  Filter Block  │  bloom filter over user keys + crc32
//	indexOffset ->  ├────────────────┤
//	                │  Index Block   │  {firstKey, blockOffset, blockSize} per block
//	footerOffset -> ├────────────────┤
//	                │     Footer     │  magic, version, indexOffset, indexSize, crc32
//	                └────────────────┘
//
// dataEnd is not stored: it is the end of the last block listed in the index.

// Table exposes read access to an immutable SSTable.
type Table interface {
	// Get returns the newest live value for key. A tombstone reads as absent.
	Get(key []byte) (value []byte, found bool, err error)

	// Lookup returns the newest version of key, tombstones included, or
	// common.ErrNotFound.
	Lookup(key []byte) (*common.Entry, error)

	// Scan walks every version with a user key in [start, end).
	Scan(start, end []byte) common.EntryIterator

	// Iterator walks the whole table in InternalKey order.
	Iterator() common.EntryIterator

	// Index returns the block index (first key of each block).
	Index() *Index

	// Len counts the entries in the table.
	Len() (int, error)

	FileNo() common.FileNo
	Path() string
	Size() int64
	Close() error
}
