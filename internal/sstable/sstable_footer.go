package sstable

import (
	"encoding/binary"
	"fmt"

	"strata/internal/common"
)

const (
	// FOOTER_SIZE is the size of the footer in bytes.
	// footerOffset = len(sstable) - FOOTER_SIZE
	FOOTER_SIZE = 32

	// MAGIC identifies an SSTable file ("SSTBLSM1").
	MAGIC uint64 = 0x5353_5442_4c53_4d31

	// VERSION is the only format version this package reads and writes.
	VERSION uint32 = 1
)

// Footer is the last 32 bytes of the SSTable file:
//
//	magic u64 | version u32 | index_offset u64 | index_size u64 | crc u32
//
// crc is the CRC32 of the 28 bytes before it.
type Footer struct {
	Version     uint32
	IndexOffset uint64
	IndexSize   uint64
}

// Encode returns the on-disk form of f.
func (f *Footer) Encode() []byte {
	buf := make([]byte, 0, FOOTER_SIZE)
	buf = common.AppendUint64(buf, MAGIC)
	buf = common.AppendUint32(buf, f.Version)
	buf = common.AppendUint64(buf, f.IndexOffset)
	buf = common.AppendUint64(buf, f.IndexSize)
	return common.AppendUint32(buf, common.Checksum(buf))
}

// DecodeFooter parses and validates a footer. Errors are reasons suitable
// for a corruption report.
func DecodeFooter(buf []byte) (*Footer, error) {
	if len(buf) != FOOTER_SIZE {
		return nil, fmt.Errorf("footer is %d bytes, want %d", len(buf), FOOTER_SIZE)
	}
	body := buf[:FOOTER_SIZE-4]
	if got, want := common.Checksum(body), binary.LittleEndian.Uint32(buf[FOOTER_SIZE-4:]); got != want {
		return nil, fmt.Errorf("footer checksum mismatch: stored %08x, computed %08x", want, got)
	}

	d := common.NewDecoder(body)
	magic := d.Uint64()
	f := &Footer{
		Version:     d.Uint32(),
		IndexOffset: d.Uint64(),
		IndexSize:   d.Uint64(),
	}
	if magic != MAGIC {
		return nil, fmt.Errorf("bad magic %016x", magic)
	}
	if f.Version != VERSION {
		return nil, fmt.Errorf("unsupported version %d", f.Version)
	}
	return f, nil
}
