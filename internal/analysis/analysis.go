// Package analysis runs the hash sensitivity analyses over swap scenarios:
// single hashes, drift sweeps, slippage boundaries, perturbation searches and
// dataset batches.
package analysis

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/ammlsh/ammlsh/internal/config"
	"github.com/ammlsh/ammlsh/pkg/amm"
	"github.com/ammlsh/ammlsh/pkg/layout"
	"github.com/ammlsh/ammlsh/pkg/lsh"
	"github.com/ammlsh/ammlsh/pkg/search"
)

// ErrInvalidOptions is returned by New for unusable options.
var ErrInvalidOptions = errors.New("analysis: invalid options")

// Options configures an Analyzer.
type Options struct {
	Engine        lsh.Config
	Layout        layout.Layout
	Fields        []layout.Field
	SwapDirection amm.Direction

	// FavorableHigh and AdverseHigh bound the searches. Zero selects DefaultSearchHigh.
	FavorableHigh uint64
	AdverseHigh   uint64

	// Timeout bounds each Search call. Zero means no limit.
	Timeout time.Duration

	Logger *slog.Logger
}

// Analyzer hashes swap scenarios under one configuration.
// Thread-safe for concurrent use.
type Analyzer struct {
	engine   *lsh.Engine
	searcher *search.Searcher
	opts     Options
	logger   *slog.Logger
}

// Scenario is a swap, its input vector and the vector's hash.
type Scenario struct {
	Swap  amm.SwapResult
	Input lsh.Vector
	Hash  lsh.Hash
}

// New creates an Analyzer.
func New(opts Options) (*Analyzer, error) {
	if len(opts.Fields) == 0 {
		opts.Fields = layout.DefaultFields
	}
	if opts.Layout.Kind == "" {
		opts.Layout = layout.Identity()
	}
	if err := opts.Layout.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}
	if opts.SwapDirection != amm.XToY && opts.SwapDirection != amm.YToX {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOptions, amm.ErrUnknownDirection)
	}

	dims := len(opts.Fields) * opts.Layout.Width()
	if opts.Engine.Dimensions == 0 {
		opts.Engine.Dimensions = dims
	} else if opts.Engine.Dimensions != dims {
		return nil, fmt.Errorf("%w: engine expects %d dimensions, layout produces %d",
			ErrInvalidOptions, opts.Engine.Dimensions, dims)
	}

	engine, err := lsh.NewEngine(opts.Engine)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Analyzer{
		engine:   engine,
		searcher: search.NewSearcher(engine, logger),
		opts:     opts,
		logger:   logger,
	}, nil
}

// FromConfig creates an Analyzer from a loaded configuration.
func FromConfig(cfg *config.Config, logger *slog.Logger) (*Analyzer, error) {
	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		return nil, err
	}
	l, fields, err := cfg.LayoutSpec()
	if err != nil {
		return nil, err
	}
	dir, err := cfg.SwapDirection()
	if err != nil {
		return nil, err
	}

	return New(Options{
		Engine:        engineCfg,
		Layout:        l,
		Fields:        fields,
		SwapDirection: dir,
		FavorableHigh: cfg.Search.FavorableHigh,
		AdverseHigh:   cfg.Search.AdverseHigh,
		Timeout:       time.Duration(cfg.Search.TimeoutSeconds) * time.Second,
		Logger:        logger,
	})
}

// Engine returns the underlying hash engine.
func (a *Analyzer) Engine() *lsh.Engine {
	return a.engine
}

// SwapDirection returns the direction of the analysed trades.
func (a *Analyzer) SwapDirection() amm.Direction {
	return a.opts.SwapDirection
}

// Vector builds the input vector of a swap from the configured fields and layout.
func (a *Analyzer) Vector(res amm.SwapResult) (lsh.Vector, error) {
	values, err := layout.Select(a.opts.Fields, res)
	if err != nil {
		return nil, err
	}
	expanded, err := a.opts.Layout.Expand(values)
	if err != nil {
		return nil, err
	}
	return lsh.Vector(expanded), nil
}

// Hash swaps amount into pool and hashes the resulting scenario.
func (a *Analyzer) Hash(pool amm.Pool, amount uint64) (Scenario, error) {
	res, err := pool.Swap(a.opts.SwapDirection, amount)
	if err != nil {
		return Scenario{}, err
	}
	return a.hashSwap(res)
}

func (a *Analyzer) hashSwap(res amm.SwapResult) (Scenario, error) {
	v, err := a.Vector(res)
	if err != nil {
		return Scenario{}, err
	}
	h, err := a.engine.Hash(v)
	if err != nil {
		return Scenario{}, err
	}
	return Scenario{Swap: res, Input: v, Hash: h}, nil
}

// Perturb applies a fake trade of amount to pool ahead of a swap in swapDir.
// Favorable trades pay into the side the swap receives from, making its rate
// better. Adverse trades pay into the same side as the swap.
func Perturb(pool amm.Pool, swapDir amm.Direction, dir search.Direction, amount uint64) (amm.Pool, error) {
	switch dir {
	case search.Favorable:
		return pool.Trade(swapDir.Opposite(), amount)
	case search.Adverse:
		return pool.Trade(swapDir, amount)
	default:
		return amm.Pool{}, fmt.Errorf("%w: %d", search.ErrUnknownDirection, int(dir))
	}
}

// DefaultSearchHigh returns twice the balance a perturbation in dir pays into,
// capped so the perturbed balance still fits in 64 bits.
func DefaultSearchHigh(pool amm.Pool, swapDir amm.Direction, dir search.Direction) uint64 {
	side := swapDir
	if dir == search.Favorable {
		side = swapDir.Opposite()
	}
	balance := pool.X
	if side == amm.YToX {
		balance = pool.Y
	}

	headroom := math.MaxUint64 - balance
	if balance > headroom/2 {
		return headroom
	}
	return 2 * balance
}
