package bitmap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewBitmap(t *testing.T) {
	tests := []struct {
		numBits      uint64
		expectedSize int
	}{
		{0, 0},
		{1, 1},
		{8, 1},
		{9, 2},
		{16, 2},
		{17, 3},
		{64, 8},
		{65, 9},
	}

	for _, tt := range tests {
		b := NewBitmap(tt.numBits)
		require.Equal(t, tt.expectedSize, len(b.AppendBytes(nil)), "NewBitmap(%d) encoded size", tt.numBits)
		require.Equal(t, tt.expectedSize, ByteLen(tt.numBits))
		require.Equal(t, tt.numBits, b.Len(), "NewBitmap(%d) numBits", tt.numBits)
		require.Zero(t, b.Count())

		for i := uint64(0); i < tt.numBits; i++ {
			require.False(t, b.Contains(i), "NewBitmap(%d): bit %d should be 0", tt.numBits, i)
		}
	}
}

func TestAddAndContains(t *testing.T) {
	b := NewBitmap(130)

	positions := map[uint64]struct{}{
		0: {}, 1: {}, 7: {}, 8: {}, 63: {}, 64: {}, 65: {}, 127: {}, 128: {}, 129: {},
	}
	for pos := range positions {
		b.Add(pos)
	}

	for i := uint64(0); i < 130; i++ {
		_, shouldBeSet := positions[i]
		require.Equal(t, shouldBeSet, b.Contains(i), "bit %d set status", i)
	}
	require.Equal(t, uint64(len(positions)), b.Count())
}

func TestRemove(t *testing.T) {
	b := NewBitmap(64)
	for i := uint64(0); i < 64; i++ {
		b.Add(i)
	}
	require.Equal(t, uint64(64), b.Count())

	positions := map[uint64]struct{}{
		0: {}, 7: {}, 8: {}, 15: {}, 31: {}, 63: {},
	}
	for pos := range positions {
		b.Remove(pos)
	}

	for i := uint64(0); i < 64; i++ {
		_, shouldBeCleared := positions[i]
		require.Equal(t, !shouldBeCleared, b.Contains(i), "bit %d set status", i)
	}
}

func TestIdempotent(t *testing.T) {
	b := NewBitmap(64)

	b.Add(42)
	b.Add(42)
	require.True(t, b.Contains(42))
	require.Equal(t, uint64(1), b.Count())

	b.Remove(42)
	b.Remove(42)
	require.False(t, b.Contains(42))
	require.Zero(t, b.Count())
}

func TestBoundsChecking(t *testing.T) {
	b := NewBitmap(64)

	require.Panics(t, func() { b.Add(64) })
	require.Panics(t, func() { b.Contains(64) })
	require.Panics(t, func() { b.Remove(64) })
}

func TestBytesLayout(t *testing.T) {
	b := NewBitmap(20)
	b.Add(0)
	b.Add(9)
	b.Add(19)
	require.Equal(t, []byte{0x01, 0x02, 0x08}, b.AppendBytes(nil))
}

func TestAppendBytesAndFromBytes(t *testing.T) {
	original := NewBitmap(100)
	positions := []uint64{0, 1, 7, 8, 15, 16, 31, 32, 63, 64, 99}
	for _, pos := range positions {
		original.Add(pos)
	}

	data := original.AppendBytes([]byte("prefix"))
	require.Equal(t, "prefix", string(data[:6]))
	data = data[6:]
	require.Len(t, data, 13)

	restored, err := FromBytes(100, data)
	require.NoError(t, err)
	for i := uint64(0); i < 100; i++ {
		require.Equal(t, original.Contains(i), restored.Contains(i), "bit %d mismatch", i)
	}

	_, err = FromBytes(100, data[:12])
	require.Error(t, err)
}
