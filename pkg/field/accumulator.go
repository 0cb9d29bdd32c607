package field

import (
	"fmt"

	"lukechampine.com/uint128"
)

// Accumulator folds (input, projection) products for a single hash bit.
// The zero value is not usable; create one with NewAccumulator.
//
// In ModeNative the running sum is a signed 128-bit two's-complement value.
// In ModeCircuitFaithful it is an unsigned 128-bit magnitude with a separate
// sign flag, folded left to right with sign-aware addition: equal signs add,
// opposite signs subtract the smaller magnitude from the larger and take the
// sign of the larger, and a tie gives zero with a clear sign.
type Accumulator struct {
	mode     Mode
	sum      uint128.Uint128
	negative bool // circuit-faithful only
	terms    int
}

// NewAccumulator returns an empty accumulator for mode.
func NewAccumulator(mode Mode) (*Accumulator, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: unknown mode %d", ErrModeMismatch, int(mode))
	}
	return &Accumulator{mode: mode}, nil
}

// Mode returns the accumulator's arithmetic mode.
func (a *Accumulator) Mode() Mode {
	return a.mode
}

// Terms returns the number of products folded so far.
func (a *Accumulator) Terms() int {
	return a.terms
}

// Reset clears the running sum, keeping the mode.
func (a *Accumulator) Reset() {
	a.sum = uint128.Zero
	a.negative = false
	a.terms = 0
}

// Add folds input * p into the running sum.
func (a *Accumulator) Add(input uint64, p Projection) error {
	if p.Mode != a.mode {
		return fmt.Errorf("%w: accumulator is %s, projection is %s", ErrModeMismatch, a.mode, p.Mode)
	}

	// input < 2^64 and magnitude <= 2^63, so the product is below 2^127.
	product := uint128.From64(input).Mul64(p.Magnitude)

	var err error
	switch a.mode {
	case ModeNative:
		err = a.addNative(product, p.Negative)
	default:
		err = a.addCircuit(product, p.Negative)
	}
	if err != nil {
		return err
	}

	a.terms++
	return nil
}

func (a *Accumulator) addNative(product uint128.Uint128, negative bool) error {
	term := product
	if negative {
		term = uint128.Zero.SubWrap(product)
	}

	next := a.sum.AddWrap(term)
	if signBit(a.sum) == signBit(term) && signBit(next) != signBit(a.sum) {
		return fmt.Errorf("%w: signed 128-bit sum after %d terms", ErrOverflow, a.terms+1)
	}

	a.sum = next
	return nil
}

func (a *Accumulator) addCircuit(product uint128.Uint128, negative bool) error {
	if a.negative == negative {
		next := a.sum.AddWrap(product)
		if next.Cmp(a.sum) < 0 {
			return fmt.Errorf("%w: 128-bit magnitude after %d terms", ErrOverflow, a.terms+1)
		}
		a.sum = next
		return nil
	}

	switch a.sum.Cmp(product) {
	case -1:
		a.sum = product.Sub(a.sum)
		a.negative = negative
	case 0:
		a.sum = uint128.Zero
		a.negative = false
	default:
		a.sum = a.sum.Sub(product)
	}
	return nil
}

// Negative reports whether the running sum is strictly negative.
// Zero is non-negative in both modes.
func (a *Accumulator) Negative() bool {
	if a.mode == ModeNative {
		return signBit(a.sum)
	}
	return a.negative && !a.sum.IsZero()
}

// Value returns the magnitude and sign of the running sum.
func (a *Accumulator) Value() (uint128.Uint128, bool) {
	if a.mode == ModeNative {
		if signBit(a.sum) {
			return uint128.Zero.SubWrap(a.sum), true
		}
		return a.sum, false
	}
	return a.sum, a.Negative()
}

func signBit(v uint128.Uint128) bool {
	return v.Hi>>63 == 1
}

// Sign folds inputs against projections in order and reports whether the
// sum is negative. Every projection must carry mode; a mismatch is reported
// before any term is folded.
func Sign(mode Mode, inputs []uint64, projections []Projection) (bool, error) {
	if len(inputs) != len(projections) {
		return false, fmt.Errorf("%w: %d inputs, %d projections",
			ErrDimensionMismatch, len(inputs), len(projections))
	}

	acc, err := NewAccumulator(mode)
	if err != nil {
		return false, err
	}
	for i, p := range projections {
		if p.Mode != mode {
			return false, fmt.Errorf("%w: projection %d is %s, accumulating %s",
				ErrModeMismatch, i, p.Mode, mode)
		}
	}
	for i, in := range inputs {
		if err := acc.Add(in, projections[i]); err != nil {
			return false, err
		}
	}
	return acc.Negative(), nil
}
