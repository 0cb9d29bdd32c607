package search

import (
	"context"
	"errors"
	"math/bits"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammlsh/ammlsh/pkg/lsh"
)

// thresholdHasher sets bit 0 once the first component reaches threshold.
type thresholdHasher struct {
	threshold uint64
	calls     atomic.Int64
}

func (h *thresholdHasher) Hash(v lsh.Vector) (lsh.Hash, error) {
	h.calls.Add(1)
	out := lsh.NewHash(8)
	out.SetBit(0, v[0] >= h.threshold)
	return out, nil
}

func identitySim(_ Direction, amount uint64) (lsh.Vector, error) {
	return lsh.Vector{amount}, nil
}

func baseHash() lsh.Hash {
	return lsh.NewHash(8)
}

func probeBound(n uint64) int {
	return bits.Len64(n) + 3
}

func TestFindMinimalDivergence_ExactThreshold(t *testing.T) {
	const high = uint64(1 << 20)

	for _, threshold := range []uint64{1, 2, 3, 7, 1000, 123_457, high - 1, high} {
		h := &thresholdHasher{threshold: threshold}
		s := NewSearcher(h, nil)

		res, err := s.FindMinimalDivergence(context.Background(), baseHash(), identitySim, Favorable, 0, high)
		require.NoError(t, err, "threshold %d", threshold)

		assert.Equal(t, threshold, res.Amount, "threshold %d", threshold)
		assert.Equal(t, lsh.Vector{threshold}, res.Input)
		assert.Equal(t, 1, res.Distance)
		assert.True(t, res.Hash.Bit(0))
		assert.Equal(t, threshold-1, res.Stable)
		assert.LessOrEqual(t, res.Probes, probeBound(high), "threshold %d", threshold)
		assert.Equal(t, int64(res.Probes), h.calls.Load())
	}
}

func TestFindMinimalDivergence_FirstProbeDiverges(t *testing.T) {
	s := NewSearcher(&thresholdHasher{threshold: 0}, nil)

	res, err := s.FindMinimalDivergence(context.Background(), baseHash(), identitySim, Adverse, 0, 1000)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), res.Amount)
	assert.Equal(t, uint64(0), res.Stable)
	assert.Nil(t, res.StableInput)
	assert.Equal(t, 1, res.Probes)
	assert.Equal(t, Adverse, res.Direction)
}

func TestFindMinimalDivergence_NonZeroLow(t *testing.T) {
	s := NewSearcher(&thresholdHasher{threshold: 5000}, nil)

	res, err := s.FindMinimalDivergence(context.Background(), baseHash(), identitySim, Favorable, 4000, 9000)
	require.NoError(t, err)
	assert.Equal(t, uint64(5000), res.Amount)
	assert.Equal(t, uint64(4999), res.Stable)
}

func TestFindMinimalDivergence_LargeBracketNoOverflow(t *testing.T) {
	const threshold = uint64(1) << 62
	s := NewSearcher(&thresholdHasher{threshold: threshold}, nil)

	res, err := s.FindMinimalDivergence(context.Background(), baseHash(), identitySim, Favorable, 0, ^uint64(0))
	require.NoError(t, err)
	assert.Equal(t, threshold, res.Amount)
	assert.LessOrEqual(t, res.Probes, probeBound(^uint64(0)))
}

func TestFindMinimalDivergence_DivergentBracket(t *testing.T) {
	s := NewSearcher(&thresholdHasher{threshold: 10_001}, nil)

	res, err := s.FindMinimalDivergence(context.Background(), baseHash(), identitySim, Favorable, 0, 10_000)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDivergentBracket))
	assert.Equal(t, uint64(9_999), res.Stable)
	assert.Zero(t, res.Distance)
}

func TestFindMinimalDivergence_UnitBracket(t *testing.T) {
	s := NewSearcher(&thresholdHasher{threshold: 8}, nil)

	res, err := s.FindMinimalDivergence(context.Background(), baseHash(), identitySim, Favorable, 7, 8)
	require.NoError(t, err)
	assert.Equal(t, uint64(8), res.Amount)
	assert.Equal(t, 1, res.Probes)

	_, err = s.FindMinimalDivergence(context.Background(), baseHash(), identitySim, Favorable, 6, 7)
	assert.True(t, errors.Is(err, ErrDivergentBracket))
}

func TestFindMinimalDivergence_EmptyBracket(t *testing.T) {
	s := NewSearcher(&thresholdHasher{threshold: 1}, nil)

	_, err := s.FindMinimalDivergence(context.Background(), baseHash(), identitySim, Favorable, 10, 10)
	assert.True(t, errors.Is(err, ErrEmptyBracket))
}

func TestFindMinimalDivergence_SimulatorError(t *testing.T) {
	errSim := errors.New("pool drained")
	s := NewSearcher(&thresholdHasher{threshold: 1}, nil)

	_, err := s.FindMinimalDivergence(context.Background(), baseHash(),
		func(Direction, uint64) (lsh.Vector, error) { return nil, errSim },
		Favorable, 0, 100)
	assert.True(t, errors.Is(err, errSim))
}

func TestFindMinimalDivergence_LengthMismatch(t *testing.T) {
	s := NewSearcher(&thresholdHasher{threshold: 1}, nil)

	_, err := s.FindMinimalDivergence(context.Background(), lsh.NewHash(16), identitySim, Favorable, 0, 100)
	assert.True(t, errors.Is(err, lsh.ErrLengthMismatch))
}

func TestFindMinimalDivergence_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewSearcher(&thresholdHasher{threshold: 1}, nil)

	_, err := s.FindMinimalDivergence(ctx, baseHash(), identitySim, Favorable, 0, 100)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestBoth(t *testing.T) {
	s := NewSearcher(&thresholdHasher{threshold: 300}, nil)

	// Adverse perturbations count double in this scenario.
	sim := func(dir Direction, amount uint64) (lsh.Vector, error) {
		if dir == Adverse {
			return lsh.Vector{2 * amount}, nil
		}
		return lsh.Vector{amount}, nil
	}

	fav, adv, err := s.Both(context.Background(), baseHash(), sim,
		Bracket{Low: 0, High: 1000}, Bracket{Low: 0, High: 1000})
	require.NoError(t, err)
	assert.Equal(t, Favorable, fav.Direction)
	assert.Equal(t, uint64(300), fav.Amount)
	assert.Equal(t, Adverse, adv.Direction)
	assert.Equal(t, uint64(150), adv.Amount)
}

func TestBoth_PropagatesError(t *testing.T) {
	s := NewSearcher(&thresholdHasher{threshold: 300}, nil)

	_, _, err := s.Both(context.Background(), baseHash(), identitySim,
		Bracket{Low: 0, High: 1000}, Bracket{Low: 0, High: 100})
	assert.True(t, errors.Is(err, ErrDivergentBracket))
}

func TestDirection(t *testing.T) {
	assert.Equal(t, "favorable", Favorable.String())
	assert.Equal(t, "adverse", Adverse.String())

	d, err := ParseDirection("against")
	require.NoError(t, err)
	assert.Equal(t, Adverse, d)

	_, err = ParseDirection("sideways")
	assert.True(t, errors.Is(err, ErrUnknownDirection))
}
