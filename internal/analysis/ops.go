package analysis

import (
	"context"
	"errors"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/ammlsh/ammlsh/internal/dataset"
	"github.com/ammlsh/ammlsh/internal/report"
	"github.com/ammlsh/ammlsh/pkg/amm"
	"github.com/ammlsh/ammlsh/pkg/lsh"
	"github.com/ammlsh/ammlsh/pkg/search"
)

// Simulator returns the search simulator for swapping amount into pool:
// the pool is perturbed first and the same swap is replayed on it.
func (a *Analyzer) Simulator(pool amm.Pool, amount uint64) search.Simulator {
	swapDir := a.opts.SwapDirection
	return func(dir search.Direction, perturbation uint64) (lsh.Vector, error) {
		perturbed, err := Perturb(pool, swapDir, dir, perturbation)
		if err != nil {
			return nil, err
		}
		res, err := perturbed.Swap(swapDir, amount)
		if err != nil {
			return nil, err
		}
		return a.Vector(res)
	}
}

// SearchOutcome is the base scenario and the minimal divergence in each direction.
type SearchOutcome struct {
	Base      Scenario
	Favorable search.Result
	Adverse   search.Result
}

// Records returns the outcome as report rows, with the balances of the
// perturbed pool each divergence was found at.
func (o SearchOutcome) Records(pool amm.Pool, swapDir amm.Direction) ([]report.SearchRecord, error) {
	records := make([]report.SearchRecord, 0, 2)
	for _, r := range []search.Result{o.Favorable, o.Adverse} {
		perturbed, err := Perturb(pool, swapDir, r.Direction, r.Amount)
		if err != nil {
			return nil, err
		}
		records = append(records, report.SearchRecord{
			Direction: r.Direction.String(),
			Amount:    r.Amount,
			BalanceX:  perturbed.X,
			BalanceY:  perturbed.Y,
			Hash:      r.Hash,
			Distance:  r.Distance,
			Stable:    r.Stable,
			Probes:    r.Probes,
		})
	}
	return records, nil
}

// Search finds the smallest favorable and adverse perturbations of pool that
// change the hash of swapping amount into it. Both searches start at zero.
func (a *Analyzer) Search(ctx context.Context, pool amm.Pool, amount uint64) (SearchOutcome, error) {
	base, err := a.Hash(pool, amount)
	if err != nil {
		return SearchOutcome{}, err
	}

	if a.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.opts.Timeout)
		defer cancel()
	}

	swapDir := a.opts.SwapDirection
	favHigh := a.opts.FavorableHigh
	if favHigh == 0 {
		favHigh = DefaultSearchHigh(pool, swapDir, search.Favorable)
	}
	advHigh := a.opts.AdverseHigh
	if advHigh == 0 {
		advHigh = DefaultSearchHigh(pool, swapDir, search.Adverse)
	}

	fav, adv, err := a.searcher.Both(ctx, base.Hash, a.Simulator(pool, amount),
		search.Bracket{Low: 0, High: favHigh},
		search.Bracket{Low: 0, High: advHigh},
	)
	if err != nil {
		return SearchOutcome{}, err
	}
	return SearchOutcome{Base: base, Favorable: fav, Adverse: adv}, nil
}

// Drift perturbs pool by step units, steps times in each direction, and
// compares the hash after each cumulative perturbation to the base hash.
// Records alternate favorable and adverse for each step.
func (a *Analyzer) Drift(ctx context.Context, pool amm.Pool, amount uint64, steps int, step uint64) ([]report.DriftRecord, error) {
	base, err := a.Hash(pool, amount)
	if err != nil {
		return nil, err
	}

	swapDir := a.opts.SwapDirection
	current := map[search.Direction]amm.Pool{
		search.Favorable: pool,
		search.Adverse:   pool,
	}
	records := make([]report.DriftRecord, 0, 2*steps)

	for i := 1; i <= steps; i++ {
		if err := ctx.Err(); err != nil {
			return records, err
		}
		for _, dir := range []search.Direction{search.Favorable, search.Adverse} {
			next, err := Perturb(current[dir], swapDir, dir, step)
			if err != nil {
				return records, fmt.Errorf("step %d %s: %w", i, dir, err)
			}
			current[dir] = next

			sc, err := a.Hash(next, amount)
			if err != nil {
				return records, fmt.Errorf("step %d %s: %w", i, dir, err)
			}
			d, err := lsh.HammingDistance(base.Hash, sc.Hash)
			if err != nil {
				return records, err
			}
			records = append(records, report.DriftRecord{
				Direction:    dir.String(),
				Step:         i,
				Amount:       uint64(i) * step,
				BaseHash:     base.Hash,
				ComparedHash: sc.Hash,
				Distance:     d,
			})
		}
	}
	return records, nil
}

// Boundaries hashes the scenario with the output moved down and up by each
// slippage tolerance, given in basis points, and compares each to the base hash.
func (a *Analyzer) Boundaries(pool amm.Pool, amount uint64, bps []uint64) ([]report.BoundaryRecord, error) {
	base, err := a.Hash(pool, amount)
	if err != nil {
		return nil, err
	}

	records := make([]report.BoundaryRecord, 0, 2*len(bps))
	for _, b := range bps {
		if b > 10_000 {
			return nil, fmt.Errorf("%w: slippage %d bps exceeds 100%%", ErrInvalidOptions, b)
		}
		delta := slippage(base.Swap.Output, b)
		if delta > math.MaxUint64-base.Swap.Output {
			return nil, fmt.Errorf("%w: output %d plus %d bps", amm.ErrBalanceOverflow, base.Swap.Output, b)
		}

		for _, side := range []struct {
			name   string
			output uint64
		}{
			{"lower", base.Swap.Output - delta},
			{"upper", base.Swap.Output + delta},
		} {
			res := base.Swap
			res.Output = side.output
			sc, err := a.hashSwap(res)
			if err != nil {
				return nil, err
			}
			d, err := lsh.HammingDistance(base.Hash, sc.Hash)
			if err != nil {
				return nil, err
			}
			records = append(records, report.BoundaryRecord{
				Bps:      b,
				Side:     side.name,
				Output:   side.output,
				Hash:     sc.Hash,
				Distance: d,
			})
		}
	}
	return records, nil
}

// slippage returns output*bps/10000 without overflowing.
func slippage(output, bps uint64) uint64 {
	return output/10_000*bps + output%10_000*bps/10_000
}

// Batch runs both searches for every swap, using up to workers goroutines.
// A swap that cannot be analysed is recorded with its error and the batch
// continues. Only context errors abort the batch.
func (a *Analyzer) Batch(ctx context.Context, swaps []dataset.Swap, workers int) ([]report.BatchRecord, error) {
	if workers < 1 {
		workers = 1
	}

	records := make([]report.BatchRecord, len(swaps))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, s := range swaps {
		i, s := i, s
		g.Go(func() error {
			rec, err := a.batchRow(ctx, s)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				a.logger.Warn("swap skipped", "line", s.Line, "error", err)
				rec.Err = err.Error()
			}
			records[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	a.logger.Info("batch complete", "swaps", len(swaps))
	return records, nil
}

func (a *Analyzer) batchRow(ctx context.Context, s dataset.Swap) (report.BatchRecord, error) {
	rec := report.BatchRecord{
		Line:       s.Line,
		AmountIn:   s.Input(),
		ReserveIn:  s.ReserveIn,
		ReserveOut: s.ReserveOut,
	}

	pool := s.Pool()
	out, err := a.Search(ctx, pool, rec.AmountIn)
	if err != nil {
		return rec, err
	}
	searches, err := out.Records(pool, a.opts.SwapDirection)
	if err != nil {
		return rec, err
	}
	rec.Favorable, rec.Adverse = searches[0], searches[1]
	return rec, nil
}

// IsBracketError reports whether err came from a search bracket that does not
// straddle a divergence.
func IsBracketError(err error) bool {
	return errors.Is(err, search.ErrDivergentBracket) || errors.Is(err, search.ErrEmptyBracket)
}
