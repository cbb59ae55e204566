package bitmap

import (
	"encoding/binary"
	"fmt"
	"math/bits"
)

// bitmapImpl stores bits in 64-bit words; the byte encoding is the
// little-endian form of the words, truncated to ByteLen.
type bitmapImpl struct {
	words   []uint64
	numBits uint64
}

// ByteLen is the encoded size of a bitmap with numBits bits.
func ByteLen(numBits uint64) int {
	return int((numBits + 7) / 8)
}

// NewBitmap creates a new bitmap with the specified number of bits.
// All bits are initialized to 0.
func NewBitmap(numBits uint64) Bitmap {
	return &bitmapImpl{
		words:   make([]uint64, (numBits+63)/64),
		numBits: numBits,
	}
}

// FromBytes decodes the output of AppendBytes.
func FromBytes(numBits uint64, data []byte) (Bitmap, error) {
	if len(data) != ByteLen(numBits) {
		return nil, fmt.Errorf("bitmap: %d bits need %d bytes, got %d", numBits, ByteLen(numBits), len(data))
	}
	b := NewBitmap(numBits).(*bitmapImpl)
	for i := range b.words {
		var word [8]byte
		copy(word[:], data[i*8:])
		b.words[i] = binary.LittleEndian.Uint64(word[:])
	}
	return b, nil
}

func (b *bitmapImpl) check(i uint64) {
	if i >= b.numBits {
		panic(fmt.Sprintf("bitmap: index %d out of range [0, %d)", i, b.numBits))
	}
}

func (b *bitmapImpl) Add(i uint64) {
	b.check(i)
	b.words[i/64] |= 1 << (i % 64)
}

func (b *bitmapImpl) Remove(i uint64) {
	b.check(i)
	b.words[i/64] &^= 1 << (i % 64)
}

func (b *bitmapImpl) Contains(i uint64) bool {
	b.check(i)
	return b.words[i/64]&(1<<(i%64)) != 0
}

func (b *bitmapImpl) Len() uint64 {
	return b.numBits
}

func (b *bitmapImpl) Count() uint64 {
	var n int
	for _, w := range b.words {
		n += bits.OnesCount64(w)
	}
	return uint64(n)
}

func (b *bitmapImpl) AppendBytes(dst []byte) []byte {
	remaining := ByteLen(b.numBits)
	for _, w := range b.words {
		var word [8]byte
		binary.LittleEndian.PutUint64(word[:], w)
		n := min(remaining, 8)
		dst = append(dst, word[:n]...)
		remaining -= n
	}
	return dst
}
