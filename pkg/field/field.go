// Package field emulates the finite-field arithmetic a zero-knowledge circuit
// performs when it projects an input vector onto a pseudorandom hyperplane.
//
// Projection coefficients arrive as raw 64-bit field representations. They are
// decoded into a magnitude and a sign flag and folded into an Accumulator,
// whose final sign becomes one bit of a locality-sensitive hash. Two arithmetic
// modes exist: ModeNative uses signed 128-bit machine arithmetic, while
// ModeCircuitFaithful reproduces the circuit's unsigned magnitude bookkeeping,
// where negative intermediates cannot be represented natively.
package field

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrModeMismatch is returned when decode modes are mixed within one
	// computation or when a mode is not recognised.
	ErrModeMismatch = errors.New("field: decode mode mismatch")

	// ErrOverflow is returned when a 128-bit width bound is exceeded.
	ErrOverflow = errors.New("field: accumulator overflow")

	// ErrDimensionMismatch is returned when inputs and projections differ in length.
	ErrDimensionMismatch = errors.New("field: inputs and projections differ in length")
)

// Mode selects how raw projection values are decoded and accumulated.
type Mode int

const (
	// ModeNative reinterprets raw values as two's-complement int64 and sums
	// products in a signed 128-bit accumulator.
	ModeNative Mode = iota + 1

	// ModeCircuitFaithful treats raw values as field elements split at
	// HalfPoint and sums products as unsigned magnitudes with sign flags.
	ModeCircuitFaithful
)

// Mode names used in configuration.
const (
	NameNative          = "native"
	NameCircuitFaithful = "circuit"
)

// String returns the configuration name of the mode.
func (m Mode) String() string {
	switch m {
	case ModeNative:
		return NameNative
	case ModeCircuitFaithful:
		return NameCircuitFaithful
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeNative || m == ModeCircuitFaithful
}

// ParseMode parses a configuration name into a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case NameNative:
		return ModeNative, nil
	case NameCircuitFaithful, "circuit-faithful", "circuit_faithful":
		return ModeCircuitFaithful, nil
	default:
		return 0, fmt.Errorf("%w: unknown mode %q", ErrModeMismatch, s)
	}
}

// HalfPoint is the boundary above which a raw value encodes a negative
// field element in circuit-faithful mode.
const HalfPoint uint64 = 1 << 63

// Projection is a decoded projection coefficient.
type Projection struct {
	Mode      Mode
	Magnitude uint64
	Negative  bool
}

// Decode converts a raw 64-bit coefficient into a Projection under mode.
func Decode(raw uint64, mode Mode) (Projection, error) {
	switch mode {
	case ModeNative:
		v := int64(raw)
		mag := uint64(v)
		if v < 0 {
			// unsigned negation keeps MinInt64 exact
			mag = -mag
		}
		return Projection{Mode: mode, Magnitude: mag, Negative: v < 0}, nil

	case ModeCircuitFaithful:
		if raw >= HalfPoint {
			// The circuit subtracts the half-field constant and then
			// subtracts the remainder from it; both steps stay unsigned.
			excess := raw - HalfPoint
			return Projection{Mode: mode, Magnitude: HalfPoint - excess, Negative: true}, nil
		}
		return Projection{Mode: mode, Magnitude: raw}, nil

	default:
		return Projection{}, fmt.Errorf("%w: unknown mode %d", ErrModeMismatch, int(mode))
	}
}

// Int64 returns the projection as a signed value.
func (p Projection) Int64() int64 {
	if p.Negative {
		return -int64(p.Magnitude)
	}
	return int64(p.Magnitude)
}
