package block

import (
	"errors"
	"fmt"

	"strata/internal/common"
)

// Data block layout:
//
//	┌─────────┬─────────┬─────┬─────────┬───────────┐
//	│ entry 0 │ entry 1 │ ... │ entry N │ crc32 u32 │
//	└─────────┴─────────┴─────┴─────────┴───────────┘
//
//	entry: user_key_len u32 | user_key | ts u64 | type u8 | value_len u32 | value
//
// The CRC covers every byte before the trailer.

var (
	ErrChecksum  = errors.New("block checksum mismatch")
	ErrMalformed = errors.New("malformed block")
)

// entryOverhead is the fixed part of an encoded entry.
const entryOverhead = 4 + 8 + 1 + 4

// EncodedSize returns the number of bytes AppendEntry adds for e.
func EncodedSize(e *common.Entry) int {
	return entryOverhead + len(e.Key.UserKey) + len(e.Value)
}

// AppendEntry encodes e onto dst. Tombstones are written with an empty value.
func AppendEntry(dst []byte, e *common.Entry) []byte {
	dst = common.AppendLengthPrefixed(dst, e.Key.UserKey)
	dst = common.AppendUint64(dst, e.Key.Timestamp)
	dst = common.AppendUint8(dst, uint8(e.Type))
	if e.Type == common.EntryTypeDelete {
		return common.AppendUint32(dst, 0)
	}
	return common.AppendLengthPrefixed(dst, e.Value)
}

// decodeEntry reads one entry. The returned slices alias the decoder's buffer.
func decodeEntry(d *common.Decoder) (*common.Entry, error) {
	userKey := d.LengthPrefixed()
	ts := d.Uint64()
	typ := common.EntryType(d.Uint8())
	value := d.LengthPrefixed()
	if err := d.Err(); err != nil {
		return nil, fmt.Errorf("%w: truncated entry at offset %d", ErrMalformed, d.Offset())
	}
	if !typ.Valid() {
		return nil, fmt.Errorf("%w: unknown entry type %d", ErrMalformed, typ)
	}

	e := &common.Entry{
		Key:  common.MakeInternalKey(userKey, ts),
		Type: typ,
	}
	if typ == common.EntryTypePut {
		e.Value = value
	} else if len(value) != 0 {
		return nil, fmt.Errorf("%w: tombstone with %d value bytes", ErrMalformed, len(value))
	}
	return e, nil
}

// Builder accumulates sorted entries into one encoded block.
type Builder struct {
	buf      []byte
	count    int
	firstKey common.InternalKey
}

func NewBuilder() *Builder {
	return &Builder{buf: make([]byte, 0, BLOCK_SIZE+BLOCK_SIZE/4)}
}

// Add appends e. The caller guarantees ascending InternalKey order.
func (b *Builder) Add(e *common.Entry) {
	if b.count == 0 {
		b.firstKey = e.Key.Clone()
	}
	b.buf = AppendEntry(b.buf, e)
	b.count++
}

// EstimatedSize is the size Finish would produce right now.
func (b *Builder) EstimatedSize() int {
	return len(b.buf) + TRAILER_SIZE
}

// WouldOverflow reports whether adding e would push a non-empty block past
// target bytes.
func (b *Builder) WouldOverflow(e *common.Entry, target int) bool {
	return b.count > 0 && b.EstimatedSize()+EncodedSize(e) > target
}

func (b *Builder) Len() int {
	return b.count
}

func (b *Builder) Empty() bool {
	return b.count == 0
}

// FirstKey returns a copy of the first key added since the last Reset.
func (b *Builder) FirstKey() common.InternalKey {
	return b.firstKey
}

// Finish appends the checksum trailer and returns the encoded block. The
// slice is valid until the next Reset.
func (b *Builder) Finish() []byte {
	b.buf = common.AppendUint32(b.buf, common.Checksum(b.buf))
	return b.buf
}

// Reset clears the builder for the next block, keeping its buffer.
func (b *Builder) Reset() {
	b.buf = b.buf[:0]
	b.count = 0
	b.firstKey = common.InternalKey{}
}
