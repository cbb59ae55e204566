package memtable

import (
	"bytes"

	"strata/internal/common"
)

// skipListMemtable copies keys and values on insert and on point reads so
// callers never share buffers with the list.
type skipListMemtable struct {
	list *SkipList
}

var _ Memtable = (*skipListMemtable)(nil)

// NewMemtable returns an empty skip-list backed memtable.
func NewMemtable() Memtable {
	return &skipListMemtable{list: NewSkipList()}
}

func (m *skipListMemtable) Put(key, value []byte, ts uint64) error {
	v := bytes.Clone(value)
	if v == nil {
		v = []byte{}
	}
	return m.list.Insert(common.Entry{
		Key:   common.MakeInternalKey(bytes.Clone(key), ts),
		Type:  common.EntryTypePut,
		Value: v,
	})
}

func (m *skipListMemtable) Delete(key []byte, ts uint64) error {
	return m.list.Insert(common.Entry{
		Key:  common.MakeInternalKey(bytes.Clone(key), ts),
		Type: common.EntryTypeDelete,
	})
}

func (m *skipListMemtable) Get(key []byte) ([]byte, bool) {
	entry, ok := m.list.Newest(key)
	if !ok || entry.IsTombstone() {
		return nil, false
	}
	return bytes.Clone(entry.Value), true
}

func (m *skipListMemtable) Lookup(key []byte) (*common.Entry, bool) {
	entry, ok := m.list.Newest(key)
	if !ok {
		return nil, false
	}
	return entry.Clone(), true
}

func (m *skipListMemtable) Scan(start, end []byte) common.EntryIterator {
	return m.list.Range(start, end)
}

func (m *skipListMemtable) Iterator() common.EntryIterator {
	return m.list.Iterator()
}

// ApproximateSize is the memory held by the memtable. It only grows, which
// makes it a stable flush trigger.
func (m *skipListMemtable) ApproximateSize() int64 {
	return m.list.Size()
}

func (m *skipListMemtable) Len() int64 {
	return m.list.Len()
}
