// Package amm simulates a constant-product automated market maker.
//
// A pool holds balances X and Y with the invariant X*Y = k. A swap adds the
// input to one side and recomputes the other as k divided by the new balance,
// rounding down. All products are computed in 128 bits.
package amm

import (
	"errors"
	"fmt"
	"math"

	"lukechampine.com/uint128"
)

var (
	// ErrEmptyPool is returned when a pool has a zero balance.
	ErrEmptyPool = errors.New("amm: pool balance is zero")

	// ErrBalanceOverflow is returned when a trade would push a balance past 64 bits.
	ErrBalanceOverflow = errors.New("amm: balance overflows 64 bits")

	// ErrUnknownDirection is returned for an unrecognised swap direction.
	ErrUnknownDirection = errors.New("amm: unknown swap direction")
)

// Direction is the side of the pool a trader pays into.
type Direction int

const (
	// XToY pays X into the pool and receives Y.
	XToY Direction = iota
	// YToX pays Y into the pool and receives X.
	YToX
)

// String returns "x_to_y" or "y_to_x".
func (d Direction) String() string {
	switch d {
	case XToY:
		return "x_to_y"
	case YToX:
		return "y_to_x"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// Opposite returns the reverse trade direction.
func (d Direction) Opposite() Direction {
	if d == XToY {
		return YToX
	}
	return XToY
}

// Pool is a constant-product pool state.
type Pool struct {
	X uint64
	Y uint64
}

// SwapResult is the pool state after a swap and the amount paid out.
type SwapResult struct {
	Before Pool
	After  Pool
	Input  uint64
	Output uint64
}

// K returns the invariant X*Y.
func (p Pool) K() uint128.Uint128 {
	return uint128.From64(p.X).Mul64(p.Y)
}

// Swap trades amount into the pool in direction dir.
func (p Pool) Swap(dir Direction, amount uint64) (SwapResult, error) {
	if p.X == 0 || p.Y == 0 {
		return SwapResult{}, ErrEmptyPool
	}

	var after Pool
	var output uint64
	switch dir {
	case XToY:
		next, err := p.FakeTradeToY(amount)
		if err != nil {
			return SwapResult{}, err
		}
		after, output = next, p.Y-next.Y
	case YToX:
		next, err := p.FakeTradeToX(amount)
		if err != nil {
			return SwapResult{}, err
		}
		after, output = next, p.X-next.X
	default:
		return SwapResult{}, fmt.Errorf("%w: %d", ErrUnknownDirection, int(dir))
	}

	return SwapResult{Before: p, After: after, Input: amount, Output: output}, nil
}

// FakeTradeToY adds amount to X and rebalances Y, moving the price the way
// an X to Y trade does.
func (p Pool) FakeTradeToY(amount uint64) (Pool, error) {
	if p.X == 0 || p.Y == 0 {
		return Pool{}, ErrEmptyPool
	}
	if amount > math.MaxUint64-p.X {
		return Pool{}, fmt.Errorf("%w: x=%d + %d", ErrBalanceOverflow, p.X, amount)
	}
	x := p.X + amount
	return Pool{X: x, Y: p.K().Div64(x).Lo}, nil
}

// FakeTradeToX adds amount to Y and rebalances X, moving the price the way
// a Y to X trade does.
func (p Pool) FakeTradeToX(amount uint64) (Pool, error) {
	if p.X == 0 || p.Y == 0 {
		return Pool{}, ErrEmptyPool
	}
	if amount > math.MaxUint64-p.Y {
		return Pool{}, fmt.Errorf("%w: y=%d + %d", ErrBalanceOverflow, p.Y, amount)
	}
	y := p.Y + amount
	return Pool{X: p.K().Div64(y).Lo, Y: y}, nil
}

// Trade applies a fake trade paying into the side that dir pays into.
func (p Pool) Trade(dir Direction, amount uint64) (Pool, error) {
	switch dir {
	case XToY:
		return p.FakeTradeToY(amount)
	case YToX:
		return p.FakeTradeToX(amount)
	default:
		return Pool{}, fmt.Errorf("%w: %d", ErrUnknownDirection, int(dir))
	}
}
