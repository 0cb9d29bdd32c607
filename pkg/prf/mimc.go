package prf

import (
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
)

// MiMC is the MiMC hash over the BN254 scalar field. Each call allocates its
// own sponge state, so a MiMC value may be shared between goroutines.
type MiMC struct{}

// Name implements Hasher.
func (MiMC) Name() string { return NameMiMC }

// Derive implements Hasher.
func (MiMC) Derive(salt, projection, dimension uint64) (RawOutput, error) {
	h := mimc.NewMiMC()

	for _, v := range [3]uint64{salt, projection, dimension} {
		var elem fr.Element
		elem.SetUint64(v)
		b := elem.Bytes()
		if _, err := h.Write(b[:]); err != nil {
			return RawOutput{}, fmt.Errorf("%w: mimc: %v", ErrHashComputation, err)
		}
	}

	return fromBE(h.Sum(nil))
}
