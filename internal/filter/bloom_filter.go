package filter

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/bits"

	"github.com/cespare/xxhash/v2"

	"strata/internal/bitmap"
	"strata/internal/common"
)

// Filter block layout:
//
//	┌───────┬───────┬──────────────────────┬───────────┐
//	│ k u32 │ m u32 │ bitmap (ceil(m/8) B) │ crc32 u32 │
//	└───────┴───────┴──────────────────────┴───────────┘
//
// k = 0 and m = 0 encode "no filter".

var ErrChecksum = errors.New("filter checksum mismatch")

const (
	// DEFAULT_FALSE_POSITIVE_RATE is the target used when building table filters.
	DEFAULT_FALSE_POSITIVE_RATE = 0.01

	headerSize  = 8
	trailerSize = 4
	maxProbes   = 30
)

// bloomFilter implements a space-efficient probabilistic data structure
// for set membership testing with no false negatives.
type bloomFilter struct {
	bitmap bitmap.Bitmap
	k      uint32 // number of hash functions
	m      uint32 // number of bits in bitmap
}

var _ Filter = (*bloomFilter)(nil)

// OptimalBloomFilterParams computes optimal bloom filter parameters.
// n: expected number of elements to insert
// p: desired false positive rate (e.g., 0.01 for 1%)
// Returns: k (number of hash functions), m (number of bits)
func OptimalBloomFilterParams(n uint64, p float64) (k uint32, m uint32) {
	if n == 0 {
		n = 1
	}
	// m = -n * ln(p) / (ln(2)^2)
	bitsNeeded := math.Ceil(-float64(n) * math.Log(p) / (math.Ln2 * math.Ln2))
	m = uint32(min(bitsNeeded, math.MaxUint32))

	// k = (m/n) * ln(2)
	k = uint32(math.Ceil(float64(m) / float64(n) * math.Ln2))
	k = max(1, min(k, maxProbes))
	return k, m
}

// NewBloomFilter creates a new bloom filter.
// k: number of hash functions
// m: number of bits in the bitmap
func NewBloomFilter(k uint32, m uint32) Filter {
	return &bloomFilter{
		bitmap: bitmap.NewBitmap(uint64(m)),
		k:      k,
		m:      m,
	}
}

// Add inserts a key into the bloom filter.
func (bf *bloomFilter) Add(key []byte) {
	bf.addHash(xxhash.Sum64(key))
}

func (bf *bloomFilter) addHash(h uint64) {
	h1, h2 := split(h)
	for i := uint32(0); i < bf.k; i++ {
		bf.bitmap.Add((h1 + uint64(i)*h2) % uint64(bf.m))
	}
}

// MayContain returns true if the key might be in the set.
// Returns false if the key is definitely NOT in the set.
func (bf *bloomFilter) MayContain(key []byte) bool {
	h1, h2 := split(xxhash.Sum64(key))
	for i := uint32(0); i < bf.k; i++ {
		if !bf.bitmap.Contains((h1 + uint64(i)*h2) % uint64(bf.m)) {
			return false
		}
	}
	return true
}

// split derives the two double-hashing inputs from one xxhash sum. The
// second is forced odd so the probe sequence never collapses.
func split(h uint64) (uint64, uint64) {
	return h, bits.RotateLeft64(h, 21) | 1
}

// Builder collects key hashes while a table is written and sizes the filter
// once the final key count is known.
type Builder struct {
	hashes []uint64
	fpRate float64
}

// NewBuilder returns a builder targeting the false positive rate p. A p
// outside (0, 1) disables the filter.
func NewBuilder(p float64) *Builder {
	return &Builder{fpRate: p}
}

func (b *Builder) AddKey(key []byte) {
	if b.enabled() {
		b.hashes = append(b.hashes, xxhash.Sum64(key))
	}
}

func (b *Builder) enabled() bool {
	return b.fpRate > 0 && b.fpRate < 1
}

// Finish encodes the filter block for every key added so far.
func (b *Builder) Finish() []byte {
	if !b.enabled() || len(b.hashes) == 0 {
		return AppendBloomFilter(nil, nil)
	}
	k, m := OptimalBloomFilterParams(uint64(len(b.hashes)), b.fpRate)
	bf := NewBloomFilter(k, m).(*bloomFilter)
	for _, h := range b.hashes {
		bf.addHash(h)
	}
	return AppendBloomFilter(nil, bf)
}

// AppendBloomFilter serializes f onto dst. A nil f or AlwaysMatch encodes
// an empty filter.
func AppendBloomFilter(dst []byte, f Filter) []byte {
	start := len(dst)
	bf, ok := f.(*bloomFilter)
	if !ok {
		dst = common.AppendUint32(dst, 0)
		dst = common.AppendUint32(dst, 0)
	} else {
		dst = common.AppendUint32(dst, bf.k)
		dst = common.AppendUint32(dst, bf.m)
		dst = bf.bitmap.AppendBytes(dst)
	}
	return common.AppendUint32(dst, common.Checksum(dst[start:]))
}

// DecodeBloomFilter parses a filter block. An empty filter decodes to
// AlwaysMatch.
func DecodeBloomFilter(data []byte) (Filter, error) {
	if len(data) < headerSize+trailerSize {
		return nil, fmt.Errorf("filter block of %d bytes is too short", len(data))
	}
	body := data[:len(data)-trailerSize]
	if got, want := common.Checksum(body), binary.LittleEndian.Uint32(data[len(body):]); got != want {
		return nil, fmt.Errorf("%w: stored %08x, computed %08x", ErrChecksum, want, got)
	}

	k := binary.LittleEndian.Uint32(body[0:4])
	m := binary.LittleEndian.Uint32(body[4:8])
	if k == 0 || m == 0 {
		if k != 0 || m != 0 || len(body) != headerSize {
			return nil, fmt.Errorf("inconsistent empty filter: k=%d m=%d", k, m)
		}
		return AlwaysMatch, nil
	}
	if k > maxProbes {
		return nil, fmt.Errorf("filter uses %d probes, limit is %d", k, maxProbes)
	}

	bm, err := bitmap.FromBytes(uint64(m), body[headerSize:])
	if err != nil {
		return nil, err
	}
	return &bloomFilter{bitmap: bm, k: k, m: m}, nil
}
