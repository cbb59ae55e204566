package common

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// FileNo identifies a file (SSTable or WAL).
type FileNo uint64

// MaxTimestamp sorts before every real version of a user key, so seeking to
// InternalKey{UserKey: k, Timestamp: MaxTimestamp} lands on k's newest version.
const MaxTimestamp = math.MaxUint64

// InternalKey is the (user key, timestamp) identity used for MVCC ordering.
// Whether the record is a put or a delete is not part of the identity.
type InternalKey struct {
	UserKey   []byte
	Timestamp uint64
}

// MakeInternalKey builds an InternalKey without copying userKey.
func MakeInternalKey(userKey []byte, ts uint64) InternalKey {
	return InternalKey{UserKey: userKey, Timestamp: ts}
}

// SeekKey returns the smallest InternalKey for userKey.
func SeekKey(userKey []byte) InternalKey {
	return InternalKey{UserKey: userKey, Timestamp: MaxTimestamp}
}

// Compare orders by user key ascending, then timestamp descending.
func (k InternalKey) Compare(other InternalKey) int {
	if c := bytes.Compare(k.UserKey, other.UserKey); c != 0 {
		return c
	}
	switch {
	case k.Timestamp > other.Timestamp:
		return -1
	case k.Timestamp < other.Timestamp:
		return 1
	}
	return 0
}

func (k InternalKey) Clone() InternalKey {
	return InternalKey{UserKey: bytes.Clone(k.UserKey), Timestamp: k.Timestamp}
}

// EncodedLen is the size of Encode's output.
func (k InternalKey) EncodedLen() int {
	return len(k.UserKey) + 8
}

// Encode returns user_key followed by the big-endian timestamp. This is the
// first_key form stored in SSTable index blocks.
func (k InternalKey) Encode() []byte {
	buf := make([]byte, 0, k.EncodedLen())
	buf = append(buf, k.UserKey...)
	return binary.BigEndian.AppendUint64(buf, k.Timestamp)
}

// DecodeInternalKey parses the output of Encode. The returned key aliases buf.
func DecodeInternalKey(buf []byte) (InternalKey, error) {
	if len(buf) < 8 {
		return InternalKey{}, fmt.Errorf("internal key too short: %d bytes", len(buf))
	}
	n := len(buf) - 8
	return InternalKey{
		UserKey:   buf[:n:n],
		Timestamp: binary.BigEndian.Uint64(buf[n:]),
	}, nil
}

func (k InternalKey) String() string {
	return fmt.Sprintf("%q@%d", k.UserKey, k.Timestamp)
}

// EntryType enumerates logical operations flowing through WAL, memtable,
// and SSTable components.
type EntryType uint8

const (
	EntryTypePut EntryType = iota
	EntryTypeDelete
)

func (t EntryType) String() string {
	switch t {
	case EntryTypePut:
		return "PUT"
	case EntryTypeDelete:
		return "DEL"
	}
	return fmt.Sprintf("EntryType(%d)", uint8(t))
}

// Valid reports whether t is a known operation.
func (t EntryType) Valid() bool {
	return t == EntryTypePut || t == EntryTypeDelete
}

// Entry is one version of a key. Value is nil for tombstones.
type Entry struct {
	Key   InternalKey
	Type  EntryType
	Value []byte
}

// IsTombstone reports whether the entry is a delete marker.
func (e *Entry) IsTombstone() bool {
	return e.Type == EntryTypeDelete
}

// Clone deep-copies the entry so callers may keep it past the lifetime of
// any buffer it was decoded from.
func (e *Entry) Clone() *Entry {
	out := &Entry{Key: e.Key.Clone(), Type: e.Type}
	if e.Type == EntryTypePut {
		out.Value = bytes.Clone(e.Value)
		if out.Value == nil {
			out.Value = []byte{}
		}
	}
	return out
}

// Size approximates the in-memory footprint of the entry.
func (e *Entry) Size() int {
	return len(e.Key.UserKey) + len(e.Value) + 8 + 1
}

// EntryIterator produces a stream of entries. Next returns nil when the stream
// is exhausted. Implementations should close underlying resources separately.
type EntryIterator interface {
	Next() (*Entry, error)
}

// SliceIterator walks a pre-built slice of entries.
type SliceIterator struct {
	entries []*Entry
	pos     int
}

func NewSliceIterator(entries []*Entry) *SliceIterator {
	return &SliceIterator{entries: entries}
}

func (it *SliceIterator) Next() (*Entry, error) {
	if it.pos >= len(it.entries) {
		return nil, nil
	}
	e := it.entries[it.pos]
	it.pos++
	return e, nil
}

// InRange reports whether userKey falls in [start, end). A nil bound is open.
func InRange(userKey, start, end []byte) bool {
	if start != nil && bytes.Compare(userKey, start) < 0 {
		return false
	}
	if end != nil && bytes.Compare(userKey, end) >= 0 {
		return false
	}
	return true
}
