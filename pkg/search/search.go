// Package search finds the smallest perturbation that changes a hash.
//
// A search bisects the perturbation amount between a bracket whose low end is
// known not to change the hash and whose high end is known to. Callers must
// choose the bracket so that it straddles a divergence: the search never
// probes low, and a high end that does not change the hash is only noticed
// once the bracket has collapsed, in which case it returns
// ErrDivergentBracket. The hash is not monotone in the amount, so the result
// is the first divergence found by bracket collapse, which is minimal at
// integer resolution only under a monotone assumption.
package search

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/ammlsh/ammlsh/pkg/lsh"
)

var (
	// ErrDivergentBracket is returned when the bracket collapsed without any probe changing the hash.
	ErrDivergentBracket = errors.New("search: bracket does not straddle a divergence")

	// ErrEmptyBracket is returned when high is not above low.
	ErrEmptyBracket = errors.New("search: empty bracket")

	// ErrUnknownDirection is returned for an unrecognised search direction.
	ErrUnknownDirection = errors.New("search: unknown direction")
)

// Direction tells the simulator which way to perturb the scenario.
type Direction int

const (
	// Favorable perturbations improve the trader's own outcome.
	Favorable Direction = iota
	// Adverse perturbations worsen the trader's outcome.
	Adverse
)

// String returns "favorable" or "adverse".
func (d Direction) String() string {
	switch d {
	case Favorable:
		return "favorable"
	case Adverse:
		return "adverse"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// ParseDirection parses "favorable" or "adverse".
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "favorable", "in_favor":
		return Favorable, nil
	case "adverse", "against":
		return Adverse, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownDirection, s)
	}
}

// Hasher hashes input vectors. *lsh.Engine implements it.
type Hasher interface {
	Hash(v lsh.Vector) (lsh.Hash, error)
}

// Simulator builds the input vector of the scenario perturbed by amount in dir.
// It must be a pure function of its arguments.
type Simulator func(dir Direction, amount uint64) (lsh.Vector, error)

// Result is the outcome of one search.
type Result struct {
	Direction Direction

	// Amount is the smallest probed amount that changed the hash.
	Amount   uint64
	Input    lsh.Vector
	Hash     lsh.Hash
	Distance int

	// Stable is the largest probed amount that kept the hash, or the
	// bracket's low end if no probe did.
	Stable      uint64
	StableInput lsh.Vector

	// Probes counts simulator calls.
	Probes int
}

// Searcher runs perturbation searches with one hasher.
// Thread-safe if the hasher is.
type Searcher struct {
	hasher Hasher
	logger *slog.Logger
}

// NewSearcher creates a Searcher. A nil logger discards output.
func NewSearcher(hasher Hasher, logger *slog.Logger) *Searcher {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Searcher{hasher: hasher, logger: logger}
}

// FindMinimalDivergence bisects (low, high] for the smallest amount whose
// simulated input hashes differently from base.
//
// The first probe is low+1. After a diverging probe the next candidate is the
// midpoint toward low, after a stable probe the midpoint toward high. The
// search stops when the next candidate equals a bracket endpoint. If no probe
// diverged by then, high is probed once and ErrDivergentBracket is returned
// when it does not diverge either.
func (s *Searcher) FindMinimalDivergence(
	ctx context.Context,
	base lsh.Hash,
	simulate Simulator,
	dir Direction,
	low, high uint64,
) (Result, error) {
	if high <= low {
		return Result{}, fmt.Errorf("%w: low=%d high=%d", ErrEmptyBracket, low, high)
	}

	res := Result{Direction: dir, Stable: low}
	diverged := false
	probe := low + 1

	for {
		input, h, d, err := s.probe(ctx, base, simulate, dir, probe)
		if err != nil {
			return res, err
		}
		res.Probes++

		var next uint64
		if d > 0 {
			high = probe
			diverged = true
			res.Amount, res.Input, res.Hash, res.Distance = probe, input, h, d
			next = midpoint(low, probe)
		} else {
			low = probe
			res.Stable, res.StableInput = probe, input
			next = midpoint(probe, high)
		}

		if next == low || next == high {
			break
		}
		probe = next
	}

	// Bisection never probes high itself. Check it once before giving up.
	if !diverged && low != high {
		input, h, d, err := s.probe(ctx, base, simulate, dir, high)
		if err != nil {
			return res, err
		}
		res.Probes++
		if d > 0 {
			diverged = true
			res.Amount, res.Input, res.Hash, res.Distance = high, input, h, d
		}
	}

	if !diverged {
		return res, fmt.Errorf("%w: %s search reached %d after %d probes",
			ErrDivergentBracket, dir, high, res.Probes)
	}

	s.logger.Info("divergence found",
		"direction", dir.String(),
		"amount", res.Amount,
		"stable", res.Stable,
		"distance", res.Distance,
		"probes", res.Probes,
	)
	return res, nil
}

func (s *Searcher) probe(
	ctx context.Context,
	base lsh.Hash,
	simulate Simulator,
	dir Direction,
	amount uint64,
) (lsh.Vector, lsh.Hash, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, lsh.Hash{}, 0, err
	}

	input, err := simulate(dir, amount)
	if err != nil {
		return nil, lsh.Hash{}, 0, fmt.Errorf("simulate %s amount %d: %w", dir, amount, err)
	}
	h, err := s.hasher.Hash(input)
	if err != nil {
		return nil, lsh.Hash{}, 0, fmt.Errorf("hash %s amount %d: %w", dir, amount, err)
	}
	d, err := lsh.HammingDistance(base, h)
	if err != nil {
		return nil, lsh.Hash{}, 0, err
	}

	s.logger.Debug("probe",
		"direction", dir.String(),
		"amount", amount,
		"distance", d,
	)
	return input, h, d, nil
}

// Bracket is a search range for one direction.
type Bracket struct {
	Low  uint64
	High uint64
}

// Both runs the favorable and adverse searches concurrently and returns
// their results in that order.
func (s *Searcher) Both(
	ctx context.Context,
	base lsh.Hash,
	simulate Simulator,
	favorable, adverse Bracket,
) (Result, Result, error) {
	var fav, adv Result
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		fav, err = s.FindMinimalDivergence(ctx, base, simulate, Favorable, favorable.Low, favorable.High)
		return err
	})
	g.Go(func() error {
		var err error
		adv, err = s.FindMinimalDivergence(ctx, base, simulate, Adverse, adverse.Low, adverse.High)
		return err
	})
	if err := g.Wait(); err != nil {
		return fav, adv, err
	}
	return fav, adv, nil
}

// midpoint returns floor((a+b)/2) for a <= b without overflow.
func midpoint(a, b uint64) uint64 {
	return a + (b-a)/2
}
