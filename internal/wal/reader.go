package wal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"slices"

	"strata/internal/common"
	"strata/internal/vfs"
)

// Reader decodes records sequentially. A checksum mismatch, an impossible
// length, or EOF inside a record ends the log: everything after the last good
// record is treated as a torn write, not as an error.
type Reader struct {
	r      *bufio.Reader
	closer io.Closer

	// buf is reused for every payload; rec aliases it.
	buf []byte
	rec Record

	validOffset int64
	truncated   bool
	done        bool
	reason      string
}

// NewReader reads records from r. Any payload length the u32 field can hold
// is accepted, so logs written with raised key or value limits replay in
// full.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReaderSize(r, 64<<10)}
}

// OpenReader opens the log at path for reading. Close releases the file.
func OpenReader(fs vfs.FS, path string) (*Reader, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	r := NewReader(f)
	r.closer = f
	return r, nil
}

// Next returns the next record, or nil at the end of the valid log. The
// returned record and its byte slices are only valid until the next call.
func (r *Reader) Next() (*Record, error) {
	if r.done {
		return nil, nil
	}

	var hdr [HEADER_SIZE]byte
	if _, err := io.ReadFull(r.r, hdr[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return r.stop(false, "")
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return r.stop(true, "partial header")
		}
		return nil, fmt.Errorf("read header at offset %d: %w", r.validOffset, err)
	}

	length := binary.LittleEndian.Uint32(hdr[0:4])
	crc := binary.LittleEndian.Uint32(hdr[4:8])
	if length < recordOverhead {
		return r.stop(true, fmt.Sprintf("impossible record length %d", length))
	}

	if err := r.readPayload(int(length)); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return r.stop(true, "partial payload")
		}
		return nil, fmt.Errorf("read payload at offset %d: %w", r.validOffset, err)
	}

	if common.Checksum(r.buf) != crc {
		return r.stop(true, "checksum mismatch")
	}
	if err := decodePayload(r.buf, &r.rec); err != nil {
		return r.stop(true, err.Error())
	}

	r.validOffset += HEADER_SIZE + int64(length)
	return &r.rec, nil
}

func (r *Reader) stop(truncated bool, reason string) (*Record, error) {
	r.done = true
	r.truncated = truncated
	r.reason = reason
	return nil, nil
}

// ValidOffset is the byte offset just past the last good record.
func (r *Reader) ValidOffset() int64 {
	return r.validOffset
}

// Truncated reports whether reading stopped on damaged or partial data.
func (r *Reader) Truncated() bool {
	return r.truncated
}

// Reason describes why a truncated log ended.
func (r *Reader) Reason() string {
	return r.reason
}

// Close releases the file opened by OpenReader. It is a no-op for readers
// created with NewReader.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	err := r.closer.Close()
	r.closer = nil
	return err
}

// readPayload fills r.buf with n bytes. Lengths beyond the buffer's
// capacity are read in chunks, so a damaged length allocates at most one
// chunk past the bytes actually present.
func (r *Reader) readPayload(n int) error {
	if n <= cap(r.buf) {
		r.buf = r.buf[:n]
		_, err := io.ReadFull(r.r, r.buf)
		return err
	}
	r.buf = r.buf[:0]
	for len(r.buf) < n {
		chunk := min(n-len(r.buf), PAYLOAD_CHUNK_SIZE)
		r.buf = slices.Grow(r.buf, chunk)
		end := len(r.buf) + chunk
		if _, err := io.ReadFull(r.r, r.buf[len(r.buf):end]); err != nil {
			return err
		}
		r.buf = r.buf[:end]
	}
	return nil
}
