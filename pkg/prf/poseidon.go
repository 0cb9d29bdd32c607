package prf

import (
	"fmt"
	"math/big"

	"github.com/iden3/go-iden3-crypto/poseidon"
)

// Poseidon is the circom-compatible Poseidon hash over BN254 with the x^5
// S-box. It is stateless and safe for concurrent use.
type Poseidon struct{}

// Name implements Hasher.
func (Poseidon) Name() string { return NamePoseidon }

// Derive implements Hasher.
func (Poseidon) Derive(salt, projection, dimension uint64) (RawOutput, error) {
	inputs := []*big.Int{
		new(big.Int).SetUint64(salt),
		new(big.Int).SetUint64(projection),
		new(big.Int).SetUint64(dimension),
	}

	h, err := poseidon.Hash(inputs)
	if err != nil {
		return RawOutput{}, fmt.Errorf("%w: poseidon: %v", ErrHashComputation, err)
	}

	return fromBigLE(h), nil
}
