package memtable

import (
	"bytes"
	"math/rand/v2"
	"sync/atomic"
	"unsafe"

	"strata/internal/common"
)

const (
	MAX_HEIGHT = 12
	// Each additional level is taken with probability 1/BRANCHING.
	BRANCHING = 4
)

// nodeOverhead approximates the fixed cost of a node besides its tower.
const nodeOverhead = int64(unsafe.Sizeof(node{}))

// node is immutable after publication except for its forward pointers,
// which only ever move from a node to a newly inserted successor.
type node struct {
	entry common.Entry
	next  []atomic.Pointer[node]
}

// SkipList is an ordered set of entries keyed by InternalKey that supports
// concurrent inserts and lock-free reads. Nodes are never removed.
//
// Publication: a node's entry and forward pointers are written before the
// level-0 CompareAndSwap that links it, and readers reach it only through
// atomic loads, so a reader never observes a partially built node. Upper
// levels are linked afterwards and only speed up searches.
type SkipList struct {
	head  *node
	size  atomic.Int64
	count atomic.Int64
}

func NewSkipList() *SkipList {
	return &SkipList{
		head: &node{next: make([]atomic.Pointer[node], MAX_HEIGHT)},
	}
}

func randomHeight() int {
	h := 1
	for h < MAX_HEIGHT && rand.IntN(BRANCHING) == 0 {
		h++
	}
	return h
}

// Insert links entry into the list. The entry is stored as given; callers
// must not modify its slices afterwards. Inserting a key that is already
// present returns common.ErrDuplicateKey and leaves the list unchanged.
func (s *SkipList) Insert(entry common.Entry) error {
	var prev, next [MAX_HEIGHT]*node
	if s.findSplice(entry.Key, &prev, &next) {
		return common.ErrDuplicateKey
	}

	height := randomHeight()
	n := &node{entry: entry, next: make([]atomic.Pointer[node], height)}

	for {
		n.next[0].Store(next[0])
		if prev[0].next[0].CompareAndSwap(next[0], n) {
			break
		}
		// Lost a race at level 0; a concurrent insert may have added the
		// same key.
		if s.findSplice(entry.Key, &prev, &next) {
			return common.ErrDuplicateKey
		}
	}

	for lvl := 1; lvl < height; lvl++ {
		for {
			n.next[lvl].Store(next[lvl])
			if prev[lvl].next[lvl].CompareAndSwap(next[lvl], n) {
				break
			}
			prev[lvl], next[lvl] = s.findSpliceForLevel(entry.Key, lvl)
		}
	}

	s.size.Add(int64(entry.Size()) + nodeOverhead + int64(height)*8)
	s.count.Add(1)
	return nil
}

// findSplice fills prev/next with the nodes surrounding key at every level
// and reports whether key is already present.
func (s *SkipList) findSplice(key common.InternalKey, prev, next *[MAX_HEIGHT]*node) bool {
	x := s.head
	for lvl := MAX_HEIGHT - 1; lvl >= 0; lvl-- {
		for {
			nx := x.next[lvl].Load()
			if nx == nil || nx.entry.Key.Compare(key) >= 0 {
				prev[lvl], next[lvl] = x, nx
				break
			}
			x = nx
		}
	}
	return next[0] != nil && next[0].entry.Key.Compare(key) == 0
}

func (s *SkipList) findSpliceForLevel(key common.InternalKey, level int) (*node, *node) {
	x := s.head
	for lvl := MAX_HEIGHT - 1; ; lvl-- {
		for {
			nx := x.next[lvl].Load()
			if nx == nil || nx.entry.Key.Compare(key) >= 0 {
				if lvl == level {
					return x, nx
				}
				break
			}
			x = nx
		}
	}
}

// seek returns the first node whose key is >= key.
func (s *SkipList) seek(key common.InternalKey) *node {
	x := s.head
	for lvl := MAX_HEIGHT - 1; lvl >= 0; lvl-- {
		for {
			nx := x.next[lvl].Load()
			if nx == nil || nx.entry.Key.Compare(key) >= 0 {
				break
			}
			x = nx
		}
	}
	return x.next[0].Load()
}

// Newest returns the most recent version of userKey, tombstones included.
// The entry is shared with the list and must not be modified.
func (s *SkipList) Newest(userKey []byte) (*common.Entry, bool) {
	n := s.seek(common.SeekKey(userKey))
	if n == nil || !bytes.Equal(n.entry.Key.UserKey, userKey) {
		return nil, false
	}
	return &n.entry, true
}

// Size is the approximate memory held by the list. It never decreases.
func (s *SkipList) Size() int64 {
	return s.size.Load()
}

func (s *SkipList) Len() int64 {
	return s.count.Load()
}

// Iterator walks every entry in InternalKey order.
func (s *SkipList) Iterator() *Iterator {
	return &Iterator{next: s.head.next[0].Load()}
}

// Range walks every version whose user key lies in [start, end). Nil bounds
// are open.
func (s *SkipList) Range(start, end []byte) *Iterator {
	var first *node
	if start == nil {
		first = s.head.next[0].Load()
	} else {
		first = s.seek(common.SeekKey(start))
	}
	return &Iterator{next: first, end: end}
}

// Iterator is a forward cursor over a SkipList. Entries inserted during the
// walk may or may not be observed. Returned entries are shared with the list
// and must not be modified.
type Iterator struct {
	next *node
	end  []byte
}

var _ common.EntryIterator = (*Iterator)(nil)

func (it *Iterator) Next() (*common.Entry, error) {
	n := it.next
	if n == nil {
		return nil, nil
	}
	if it.end != nil && !common.InRange(n.entry.Key.UserKey, nil, it.end) {
		it.next = nil
		return nil, nil
	}
	it.next = n.next[0].Load()
	return &n.entry, nil
}
