package wal

import (
	"encoding/binary"
	"fmt"

	"strata/internal/common"
)

// Log record framing (little-endian):
//
//	┌─────────┬─────────┬──────────────────────────────────────────────┐
//	│ len u32 │ crc u32 │ payload (len bytes)                          │
//	└─────────┴─────────┴──────────────────────────────────────────────┘
//
//	payload: seq u64 | has_value u8 | key_len u32 | key
//	         | value_len u32 | value   (only when has_value = 1)
//	         | ts u64
//
// crc is the CRC32 (IEEE) of the payload.

const (
	HEADER_SIZE      = 8
	LengthPrefixSize = common.LengthPrefixSize

	// seq + has_value + key_len + ts
	recordOverhead = 8 + 1 + LengthPrefixSize + 8

	// PAYLOAD_CHUNK_SIZE bounds each read of a payload larger than the
	// reader's current buffer.
	PAYLOAD_CHUNK_SIZE = 1 << 20
)

// Record is one logged mutation. HasValue=false marks a tombstone.
type Record struct {
	Seq       uint64
	Key       []byte
	Value     []byte
	HasValue  bool
	Timestamp uint64
}

func (r *Record) String() string {
	if !r.HasValue {
		return fmt.Sprintf("#%d DEL %q @%d", r.Seq, r.Key, r.Timestamp)
	}
	return fmt.Sprintf("#%d PUT %q=%q @%d", r.Seq, r.Key, r.Value, r.Timestamp)
}

// Entry converts the record into the common entry form. The result aliases
// the record's buffers.
func (r *Record) Entry() *common.Entry {
	e := &common.Entry{Key: common.MakeInternalKey(r.Key, r.Timestamp)}
	if r.HasValue {
		e.Type = common.EntryTypePut
		e.Value = r.Value
	} else {
		e.Type = common.EntryTypeDelete
	}
	return e
}

func payloadSize(r *Record) int {
	n := recordOverhead + len(r.Key)
	if r.HasValue {
		n += LengthPrefixSize + len(r.Value)
	}
	return n
}

// appendRecord frames r with sequence number seq onto dst.
func appendRecord(dst []byte, r *Record, seq uint64) []byte {
	start := len(dst)
	dst = common.AppendUint32(dst, uint32(payloadSize(r)))
	dst = common.AppendUint32(dst, 0) // crc placeholder

	body := len(dst)
	dst = common.AppendUint64(dst, seq)
	if r.HasValue {
		dst = common.AppendUint8(dst, 1)
	} else {
		dst = common.AppendUint8(dst, 0)
	}
	dst = common.AppendLengthPrefixed(dst, r.Key)
	if r.HasValue {
		dst = common.AppendLengthPrefixed(dst, r.Value)
	}
	dst = common.AppendUint64(dst, r.Timestamp)

	crc := common.Checksum(dst[body:])
	binary.LittleEndian.PutUint32(dst[start+4:], crc)
	return dst
}

// decodePayload fills r from a checksummed payload. Key and Value alias buf.
func decodePayload(buf []byte, r *Record) error {
	d := common.NewDecoder(buf)
	r.Seq = d.Uint64()
	hasValue := d.Uint8()
	r.Key = d.LengthPrefixed()
	r.Value = nil
	switch hasValue {
	case 0:
		r.HasValue = false
	case 1:
		r.HasValue = true
		r.Value = d.LengthPrefixed()
	default:
		return fmt.Errorf("invalid has_value flag %d", hasValue)
	}
	r.Timestamp = d.Uint64()
	if err := d.Err(); err != nil {
		return err
	}
	if d.Remaining() != 0 {
		return fmt.Errorf("%d trailing payload bytes", d.Remaining())
	}
	return nil
}
