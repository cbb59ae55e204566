package memtable

import "strata/internal/common"

// Memtable is the in-memory write buffer. Every mutation adds a new version
// keyed by (key, timestamp); nothing is overwritten in place.
type Memtable interface {
	Put(key, value []byte, ts uint64) error
	// Delete records a tombstone. It does not error if the key is missing.
	Delete(key []byte, ts uint64) error
	// Get returns the newest live value for key.
	Get(key []byte) ([]byte, bool)
	// Lookup returns the newest version for key, including tombstones.
	Lookup(key []byte) (*common.Entry, bool)
	// Scan walks every version with a user key in [start, end).
	Scan(start, end []byte) common.EntryIterator
	Iterator() common.EntryIterator
	ApproximateSize() int64
	Len() int64
}
