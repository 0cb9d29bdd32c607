// Package prf derives deterministic pseudorandom projection coefficients from
// a SNARK-friendly hash over the BN254 scalar field.
//
// A coefficient is addressed by the triple (salt, projection, dimension). Each
// index is encoded as its own field element from its 8 little-endian bytes and
// the three elements are hashed in that fixed order. The hash output is kept
// as the 32-byte little-endian encoding of the resulting field element, and
// the first 8 bytes form the coefficient's raw 64-bit representation.
package prf

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
)

// ErrHashComputation is returned when the underlying hash primitive fails.
// It indicates a broken primitive or invalid field input and is never retried.
var ErrHashComputation = errors.New("prf: hash computation failed")

// ErrUnknownHash is returned when a hash backend name is not recognised.
var ErrUnknownHash = errors.New("prf: unknown hash function")

// OutputSize is the size in bytes of a raw hash output (one BN254 field element).
const OutputSize = 32

// RawOutput is a hash output encoded as a little-endian field element.
type RawOutput [OutputSize]byte

// Coefficient returns the first 8 bytes of the output as a little-endian uint64.
func (r RawOutput) Coefficient() uint64 {
	return binary.LittleEndian.Uint64(r[:8])
}

// Hasher derives raw outputs from index triples.
// Implementations must be safe for concurrent use.
type Hasher interface {
	// Derive hashes (salt, projection, dimension) into a raw output.
	Derive(salt, projection, dimension uint64) (RawOutput, error)

	// Name returns the backend identifier used in configuration.
	Name() string
}

// Backend names accepted by New.
const (
	NamePoseidon = "poseidon"
	NameMiMC     = "mimc"
)

// New returns the hasher registered under name.
func New(name string) (Hasher, error) {
	switch name {
	case NamePoseidon, "":
		return Poseidon{}, nil
	case NameMiMC:
		return MiMC{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownHash, name)
	}
}

// fromBigLE encodes a field element as 32 little-endian bytes.
func fromBigLE(v *big.Int) RawOutput {
	var be [OutputSize]byte
	v.FillBytes(be[:])
	return reverse(be)
}

// fromBE converts a 32-byte big-endian encoding to little-endian.
func fromBE(be []byte) (RawOutput, error) {
	if len(be) != OutputSize {
		return RawOutput{}, fmt.Errorf("%w: output has %d bytes, expected %d",
			ErrHashComputation, len(be), OutputSize)
	}
	var b [OutputSize]byte
	copy(b[:], be)
	return reverse(b), nil
}

func reverse(b [OutputSize]byte) RawOutput {
	var out RawOutput
	for i := range b {
		out[i] = b[OutputSize-1-i]
	}
	return out
}
