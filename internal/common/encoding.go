package common

import (
	"encoding/binary"
	"hash/crc32"
	"io"
)

// LengthPrefixSize is the width of the u32 length that precedes every
// variable-length byte sequence on disk.
const LengthPrefixSize = 4

var crcTable = crc32.MakeTable(crc32.IEEE)

// Checksum returns the CRC32 (IEEE) of data.
func Checksum(data []byte) uint32 {
	return crc32.Checksum(data, crcTable)
}

// The Append helpers encode little-endian into a caller-owned buffer that
// is reused between records.

func AppendUint8(dst []byte, v uint8) []byte {
	return append(dst, v)
}

func AppendUint32(dst []byte, v uint32) []byte {
	return binary.LittleEndian.AppendUint32(dst, v)
}

func AppendUint64(dst []byte, v uint64) []byte {
	return binary.LittleEndian.AppendUint64(dst, v)
}

func AppendLengthPrefixed(dst, data []byte) []byte {
	dst = AppendUint32(dst, uint32(len(data)))
	return append(dst, data...)
}

// Decoder walks a byte slice produced by the Append helpers. The first
// short read latches an error; later calls return zero values.
type Decoder struct {
	buf []byte
	off int
	err error
}

func NewDecoder(buf []byte) *Decoder {
	return &Decoder{buf: buf}
}

func (d *Decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || len(d.buf)-d.off < n {
		d.err = io.ErrUnexpectedEOF
		return nil
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b
}

func (d *Decoder) Uint8() uint8 {
	b := d.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (d *Decoder) Uint32() uint32 {
	b := d.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (d *Decoder) Uint64() uint64 {
	b := d.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

// Bytes returns the next n bytes without copying.
func (d *Decoder) Bytes(n int) []byte {
	return d.take(n)
}

// LengthPrefixed returns the next [u32 len][data] payload without copying.
func (d *Decoder) LengthPrefixed() []byte {
	n := d.Uint32()
	if d.err != nil {
		return nil
	}
	if uint64(n) > uint64(len(d.buf)-d.off) {
		d.err = io.ErrUnexpectedEOF
		return nil
	}
	return d.take(int(n))
}

// Remaining reports how many bytes have not been consumed.
func (d *Decoder) Remaining() int {
	return len(d.buf) - d.off
}

// Offset reports how many bytes have been consumed.
func (d *Decoder) Offset() int {
	return d.off
}

func (d *Decoder) Err() error {
	return d.err
}
