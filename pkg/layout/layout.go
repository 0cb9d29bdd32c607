// Package layout expands raw scenario values into hash input vectors.
//
// A single 64-bit balance hashed as one dimension lets its high bits dominate
// every projection. Splitting it into weighted sub-components (nibbles or
// bits) changes how sensitive the hash is to small perturbations. Kinds:
//
//	identity     values unchanged, one dimension each
//	nibbles      LSB-first nibbles, nibble i weighted by i+1-cutoff, nibbles below cutoff zeroed
//	nibbles-exp  MSB-first nibbles weighted by 2^(chunks-i), then reversed
//	bits         single bits, MSB first
package layout

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownKind is returned for an unrecognised layout kind.
	ErrUnknownKind = errors.New("layout: unknown kind")

	// ErrInvalidWidth is returned when MaxBits or Cutoff is out of range.
	ErrInvalidWidth = errors.New("layout: invalid width")
)

// Kind names a layout.
type Kind string

// Supported layout kinds.
const (
	KindIdentity   Kind = "identity"
	KindNibbles    Kind = "nibbles"
	KindNibblesExp Kind = "nibbles-exp"
	KindBits       Kind = "bits"
)

// Layout configures how each value is expanded.
type Layout struct {
	Kind    Kind
	MaxBits uint // significant bits considered per value, at most 64
	Cutoff  uint // nibbles kind only: leading low nibbles dropped
}

// ParseKind parses a kind name. The empty string selects identity.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case "":
		return KindIdentity, nil
	case KindIdentity, KindNibbles, KindNibblesExp, KindBits:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// Identity returns the layout that passes values through.
func Identity() Layout {
	return Layout{Kind: KindIdentity, MaxBits: 64}
}

// Validate checks the layout parameters.
func (l Layout) Validate() error {
	switch l.Kind {
	case KindIdentity:
		return nil
	case KindNibbles, KindNibblesExp, KindBits:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, l.Kind)
	}
	if l.MaxBits == 0 || l.MaxBits > 64 {
		return fmt.Errorf("%w: max_bits must be in [1, 64], got %d", ErrInvalidWidth, l.MaxBits)
	}
	if l.Kind == KindNibbles && l.Cutoff >= chunks(l.MaxBits) {
		return fmt.Errorf("%w: cutoff %d leaves no nibbles of %d", ErrInvalidWidth, l.Cutoff, chunks(l.MaxBits))
	}
	return nil
}

// Width returns the number of dimensions one value expands into.
func (l Layout) Width() int {
	switch l.Kind {
	case KindNibbles, KindNibblesExp:
		return int(chunks(l.MaxBits))
	case KindBits:
		return int(l.MaxBits)
	default:
		return 1
	}
}

// Expand concatenates the expansion of every value in order.
func (l Layout) Expand(values []uint64) ([]uint64, error) {
	if err := l.Validate(); err != nil {
		return nil, err
	}

	out := make([]uint64, 0, len(values)*l.Width())
	for _, v := range values {
		switch l.Kind {
		case KindIdentity:
			out = append(out, v)
		case KindNibbles:
			out = appendWeightedNibbles(out, v, l.MaxBits, l.Cutoff)
		case KindNibblesExp:
			out = appendExpNibbles(out, v, l.MaxBits)
		case KindBits:
			out = appendBits(out, v, l.MaxBits)
		}
	}
	return out, nil
}

func chunks(maxBits uint) uint {
	return (maxBits + 3) / 4
}

func appendWeightedNibbles(out []uint64, v uint64, maxBits, cutoff uint) []uint64 {
	for i := uint(0); i < chunks(maxBits); i++ {
		if i < cutoff {
			out = append(out, 0)
			continue
		}
		nibble := (v >> (4 * i)) & 0xF
		out = append(out, nibble*uint64(i+1-cutoff))
	}
	return out
}

func appendExpNibbles(out []uint64, v uint64, maxBits uint) []uint64 {
	n := chunks(maxBits)
	start := len(out)
	for i := uint(0); i < n; i++ {
		shift := 4*n - 4*(i+1)
		nibble := (v >> shift) & 0xF
		out = append(out, nibble<<(n-i))
	}
	reverse(out[start:])
	return out
}

func appendBits(out []uint64, v uint64, maxBits uint) []uint64 {
	for i := uint(0); i < maxBits; i++ {
		out = append(out, (v>>(maxBits-1-i))&1)
	}
	return out
}

func reverse(s []uint64) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
