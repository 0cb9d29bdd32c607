package lsh

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/bits"
	"strings"

	"github.com/mr-tron/base58"
	"lukechampine.com/uint128"
)

var (
	// ErrLengthMismatch is returned when two hashes of different lengths are compared.
	ErrLengthMismatch = errors.New("lsh: hash lengths do not match")

	// ErrTooWide is returned when a hash does not fit the requested integer width.
	ErrTooWide = errors.New("lsh: hash too wide for integer form")

	// ErrInvalidHash is returned when a textual hash cannot be parsed.
	ErrInvalidHash = errors.New("lsh: invalid hash encoding")
)

// Hash is a fixed-length bit sequence. Bit i is the sign bit of projection i.
// Bits are packed into 64-bit words, bit i at position i%64 of word i/64.
// The zero value is an empty hash.
type Hash struct {
	words []uint64
	size  int
}

// NewHash creates an all-zero hash of numBits bits.
func NewHash(numBits int) Hash {
	if numBits < 0 {
		numBits = 0
	}
	return Hash{
		words: make([]uint64, (numBits+63)/64),
		size:  numBits,
	}
}

// Len returns the number of bits.
func (h Hash) Len() int {
	return h.size
}

// SetBit sets or clears the bit at index. Out of range indexes are ignored.
func (h *Hash) SetBit(index int, value bool) {
	if index < 0 || index >= h.size {
		return
	}
	if value {
		h.words[index/64] |= 1 << uint(index%64)
	} else {
		h.words[index/64] &^= 1 << uint(index%64)
	}
}

// Bit returns the bit at index, or false when index is out of range.
func (h Hash) Bit(index int) bool {
	if index < 0 || index >= h.size {
		return false
	}
	return h.words[index/64]&(1<<uint(index%64)) != 0
}

// Words returns a copy of the packed words.
func (h Hash) Words() []uint64 {
	return append([]uint64(nil), h.words...)
}

// Equal reports whether both hashes have the same length and bits.
func (h Hash) Equal(other Hash) bool {
	if h.size != other.size {
		return false
	}
	for i := range h.words {
		if h.words[i] != other.words[i] {
			return false
		}
	}
	return true
}

// String renders the hash as '0'/'1' characters, bit 0 first.
func (h Hash) String() string {
	var sb strings.Builder
	sb.Grow(h.size)
	for i := 0; i < h.size; i++ {
		if h.Bit(i) {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}

// Uint64 packs the hash MSB-first: bit 0 becomes the most significant of
// the Len() low bits, so the result reads the same as String() in base 2.
func (h Hash) Uint64() (uint64, error) {
	if h.size > 64 {
		return 0, fmt.Errorf("%w: %d bits into 64", ErrTooWide, h.size)
	}
	var v uint64
	for i := 0; i < h.size; i++ {
		if h.Bit(i) {
			v |= 1 << uint(h.size-1-i)
		}
	}
	return v, nil
}

// Uint128 packs the hash MSB-first like Uint64.
func (h Hash) Uint128() (uint128.Uint128, error) {
	if h.size > 128 {
		return uint128.Zero, fmt.Errorf("%w: %d bits into 128", ErrTooWide, h.size)
	}
	v := uint128.Zero
	for i := 0; i < h.size; i++ {
		if h.Bit(i) {
			v = v.Or(uint128.From64(1).Lsh(uint(h.size - 1 - i)))
		}
	}
	return v, nil
}

// ParseHash parses the '0'/'1' form produced by String.
func ParseHash(s string) (Hash, error) {
	h := NewHash(len(s))
	for i, c := range s {
		switch c {
		case '0':
		case '1':
			h.SetBit(i, true)
		default:
			return Hash{}, fmt.Errorf("%w: character %q at %d", ErrInvalidHash, c, i)
		}
	}
	return h, nil
}

// Base58 returns a compact text form: the bit length as a uvarint followed
// by the packed words in little-endian order.
func (h Hash) Base58() string {
	buf := binary.AppendUvarint(nil, uint64(h.size))
	for _, w := range h.words {
		buf = binary.LittleEndian.AppendUint64(buf, w)
	}
	return base58.Encode(buf)
}

// ParseBase58 decodes the form produced by Base58.
func ParseBase58(s string) (Hash, error) {
	buf, err := base58.Decode(s)
	if err != nil {
		return Hash{}, fmt.Errorf("%w: %v", ErrInvalidHash, err)
	}

	size, n := binary.Uvarint(buf)
	if n <= 0 || size > 1<<24 {
		return Hash{}, fmt.Errorf("%w: bad length prefix", ErrInvalidHash)
	}
	buf = buf[n:]

	h := NewHash(int(size))
	if len(buf) != 8*len(h.words) {
		return Hash{}, fmt.Errorf("%w: %d payload bytes for %d bits", ErrInvalidHash, len(buf), size)
	}
	for i := range h.words {
		h.words[i] = binary.LittleEndian.Uint64(buf[8*i:])
	}
	if tail := h.size % 64; tail != 0 && h.words[len(h.words)-1]>>uint(tail) != 0 {
		return Hash{}, fmt.Errorf("%w: bits set beyond length", ErrInvalidHash)
	}
	return h, nil
}

// HammingDistance counts the differing bit positions between two hashes.
// Returns ErrLengthMismatch if the hashes have different lengths.
func HammingDistance(a, b Hash) (int, error) {
	if a.size != b.size {
		return 0, fmt.Errorf("%w: %d and %d bits", ErrLengthMismatch, a.size, b.size)
	}

	distance := 0
	for i := range a.words {
		distance += bits.OnesCount64(a.words[i] ^ b.words[i])
	}
	return distance, nil
}

// SimilarityEstimate estimates the angular similarity of the two input
// vectors from their hashes: cos(θ) ≈ 1 - 2h/n.
func SimilarityEstimate(a, b Hash) (float64, error) {
	d, err := HammingDistance(a, b)
	if err != nil {
		return 0, err
	}
	if a.size == 0 {
		return 1, nil
	}
	return 1 - 2*float64(d)/float64(a.size), nil
}
