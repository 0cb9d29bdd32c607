// Package commit computes MiMC commitments to hashes, the off-circuit half of
// a circuit-verifiable commitment to a trade outcome.
//
// The hash length is absorbed first, then each 64-bit word of the packed hash
// as its own BN254 field element.
package commit

import (
	"errors"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
	"github.com/mr-tron/base58"

	"github.com/ammlsh/ammlsh/pkg/lsh"
)

var (
	// ErrEmptyHash is returned when committing to a zero-length hash.
	ErrEmptyHash = errors.New("commit: empty hash")

	// ErrInvalidCommitment is returned when a commitment cannot be decoded.
	ErrInvalidCommitment = errors.New("commit: invalid commitment")
)

// Size is the byte length of a commitment.
const Size = fr.Bytes

// Commitment is a big-endian BN254 field element.
type Commitment [Size]byte

// Compute returns the commitment to h.
func Compute(h lsh.Hash) (Commitment, error) {
	if h.Len() == 0 {
		return Commitment{}, ErrEmptyHash
	}

	elems := make([]fr.Element, 0, len(h.Words())+1)
	var length fr.Element
	length.SetUint64(uint64(h.Len()))
	elems = append(elems, length)
	for _, w := range h.Words() {
		var elem fr.Element
		elem.SetUint64(w)
		elems = append(elems, elem)
	}

	hasher := mimc.NewMiMC()
	for _, elem := range elems {
		b := elem.Bytes()
		if _, err := hasher.Write(b[:]); err != nil {
			return Commitment{}, fmt.Errorf("mimc write: %w", err)
		}
	}

	var result fr.Element
	result.SetBytes(hasher.Sum(nil))

	return Commitment(result.Bytes()), nil
}

// Verify reports whether c commits to h.
func Verify(h lsh.Hash, c Commitment) (bool, error) {
	got, err := Compute(h)
	if err != nil {
		return false, err
	}
	return got == c, nil
}

// String returns the base58 encoding.
func (c Commitment) String() string {
	return base58.Encode(c[:])
}

// Parse decodes a base58 commitment.
func Parse(s string) (Commitment, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return Commitment{}, fmt.Errorf("%w: %v", ErrInvalidCommitment, err)
	}
	if len(b) != Size {
		return Commitment{}, fmt.Errorf("%w: %d bytes", ErrInvalidCommitment, len(b))
	}

	var c Commitment
	copy(c[:], b)
	return c, nil
}
