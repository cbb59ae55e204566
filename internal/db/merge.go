package db

import (
	"bytes"
	"container/heap"

	"strata/internal/common"
)

// mergeSource is one input of a mergeIterator with its current entry.
type mergeSource struct {
	iter     common.EntryIterator
	entry    *common.Entry
	priority int // lower = newer
}

type sourceHeap []*mergeSource

func (h sourceHeap) Len() int { return len(h) }

func (h sourceHeap) Less(i, j int) bool {
	if c := h[i].entry.Key.Compare(h[j].entry.Key); c != 0 {
		return c < 0
	}
	// Identical versions: the newer source wins.
	return h[i].priority < h[j].priority
}

func (h sourceHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
}

func (h *sourceHeap) Push(x any) {
	*h = append(*h, x.(*mergeSource))
}

func (h *sourceHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// mergeIterator yields the newest version of every user key across its
// sources, in user key order. Tombstones are returned; callers decide
// whether to hide them.
type mergeIterator struct {
	h       sourceHeap
	lastKey []byte
	started bool
	err     error
}

var _ common.EntryIterator = (*mergeIterator)(nil)

// newMergeIterator merges iters, which are ordered newest first.
func newMergeIterator(iters []common.EntryIterator) *mergeIterator {
	it := &mergeIterator{}
	for i, iter := range iters {
		src := &mergeSource{iter: iter, priority: i}
		if !it.fill(src) {
			return it
		}
	}
	heap.Init(&it.h)
	return it
}

// fill advances src and adds it to the heap unless it is exhausted. It
// returns false on error.
func (it *mergeIterator) fill(src *mergeSource) bool {
	e, err := src.iter.Next()
	if err != nil {
		it.err = err
		return false
	}
	if e != nil {
		src.entry = e
		it.h = append(it.h, src)
	}
	return true
}

func (it *mergeIterator) Next() (*common.Entry, error) {
	for it.err == nil && it.h.Len() > 0 {
		src := it.h[0]
		e := src.entry

		next, err := src.iter.Next()
		if err != nil {
			it.err = err
			break
		}
		if next == nil {
			heap.Pop(&it.h)
		} else {
			src.entry = next
			heap.Fix(&it.h, 0)
		}

		// Older versions of the key just returned.
		if it.started && bytes.Equal(e.Key.UserKey, it.lastKey) {
			continue
		}
		it.started = true
		it.lastKey = append(it.lastKey[:0], e.Key.UserKey...)
		return e, nil
	}
	return nil, it.err
}
