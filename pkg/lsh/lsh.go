// Package lsh implements a sign-of-random-projection locality sensitive hash
// whose projections come from a SNARK-friendly PRF, so the same hash can be
// recomputed inside a zero-knowledge circuit.
//
// Bit i of a hash is the sign of the dot product between the input vector and
// projection i. Coefficient (i, j) is derived from (salt, i, offset+j) and
// decoded under the engine's field mode; the products are folded left to right
// by a field.Accumulator. Similar vectors produce hashes with a low Hamming
// distance.
package lsh

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ammlsh/ammlsh/pkg/field"
	"github.com/ammlsh/ammlsh/pkg/prf"
)

var (
	// ErrDimensionMismatch is returned when the vector dimensions don't match the engine configuration.
	ErrDimensionMismatch = errors.New("lsh: vector dimensions do not match")

	// ErrEmptyVector is returned when hashing a vector with no components.
	ErrEmptyVector = errors.New("lsh: empty input vector")

	// ErrInvalidConfig is returned when an engine configuration is unusable.
	ErrInvalidConfig = errors.New("lsh: invalid configuration")
)

// Vector is an input vector of non-negative integers.
type Vector []uint64

// Config holds the parameters of a hash family.
type Config struct {
	// Bits is the number of projections, and so the hash length.
	Bits int

	// Dimensions fixes the expected vector length. Zero accepts any length.
	Dimensions int

	// Salt is mixed into every PRF call.
	Salt uint64

	// DimensionOffset is added to every dimension index before hashing.
	DimensionOffset uint64

	// Mode selects native or circuit-faithful arithmetic.
	Mode field.Mode

	// Hasher is the PRF backend. Nil selects Poseidon.
	Hasher prf.Hasher

	// Workers computes bits in parallel when greater than one.
	Workers int

	// Memoize caches decoded projections for the engine's lifetime.
	Memoize bool
}

// Engine computes hashes for one fixed configuration.
// Thread-safe for concurrent use.
type Engine struct {
	cfg   Config
	cache *projectionCache
}

// NewEngine validates cfg and creates an Engine.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Bits <= 0 {
		return nil, fmt.Errorf("%w: bits must be positive, got %d", ErrInvalidConfig, cfg.Bits)
	}
	if cfg.Dimensions < 0 {
		return nil, fmt.Errorf("%w: dimensions must not be negative, got %d", ErrInvalidConfig, cfg.Dimensions)
	}
	if !cfg.Mode.Valid() {
		return nil, fmt.Errorf("%w: unknown mode %d", field.ErrModeMismatch, int(cfg.Mode))
	}
	if cfg.Hasher == nil {
		cfg.Hasher = prf.Poseidon{}
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}

	e := &Engine{cfg: cfg}
	if cfg.Memoize {
		e.cache = newProjectionCache()
	}
	return e, nil
}

// Config returns the engine configuration with defaults applied.
func (e *Engine) Config() Config {
	return e.cfg
}

// Bits returns the hash length.
func (e *Engine) Bits() int {
	return e.cfg.Bits
}

// Projection returns the decoded coefficient for projection i and dimension j.
func (e *Engine) Projection(i, j int) (field.Projection, error) {
	key := projectionKey{i: i, j: j}
	if e.cache != nil {
		if p, ok := e.cache.get(key); ok {
			return p, nil
		}
	}

	raw, err := e.cfg.Hasher.Derive(e.cfg.Salt, uint64(i), e.cfg.DimensionOffset+uint64(j))
	if err != nil {
		return field.Projection{}, fmt.Errorf("projection (%d, %d): %w", i, j, err)
	}

	p, err := field.Decode(raw.Coefficient(), e.cfg.Mode)
	if err != nil {
		return field.Projection{}, err
	}

	if e.cache != nil {
		e.cache.put(key, p)
	}
	return p, nil
}

// Bit computes the sign bit of projection i for v.
func (e *Engine) Bit(v Vector, i int) (bool, error) {
	acc, err := field.NewAccumulator(e.cfg.Mode)
	if err != nil {
		return false, err
	}

	for j, input := range v {
		p, err := e.Projection(i, j)
		if err != nil {
			return false, err
		}
		if err := acc.Add(input, p); err != nil {
			return false, fmt.Errorf("bit %d, dimension %d: %w", i, j, err)
		}
	}

	return acc.Negative(), nil
}

// Hash computes the hash of v. The result always has Bits() bits.
func (e *Engine) Hash(v Vector) (Hash, error) {
	if len(v) == 0 {
		return Hash{}, ErrEmptyVector
	}
	if e.cfg.Dimensions > 0 && len(v) != e.cfg.Dimensions {
		return Hash{}, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(v), e.cfg.Dimensions)
	}

	h := NewHash(e.cfg.Bits)

	if e.cfg.Workers == 1 {
		for i := 0; i < e.cfg.Bits; i++ {
			neg, err := e.Bit(v, i)
			if err != nil {
				return Hash{}, err
			}
			h.SetBit(i, neg)
		}
		return h, nil
	}

	signs := make([]bool, e.cfg.Bits)
	var g errgroup.Group
	g.SetLimit(e.cfg.Workers)
	for i := 0; i < e.cfg.Bits; i++ {
		i := i
		g.Go(func() error {
			neg, err := e.Bit(v, i)
			if err != nil {
				return err
			}
			signs[i] = neg
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Hash{}, err
	}

	for i, neg := range signs {
		h.SetBit(i, neg)
	}
	return h, nil
}

type projectionKey struct {
	i, j int
}

// projectionCache memoizes decoded projections. Entries never change once
// written because a projection is a pure function of its indices.
type projectionCache struct {
	mu      sync.RWMutex
	entries map[projectionKey]field.Projection
}

func newProjectionCache() *projectionCache {
	return &projectionCache{entries: make(map[projectionKey]field.Projection)}
}

func (c *projectionCache) get(k projectionKey) (field.Projection, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.entries[k]
	return p, ok
}

func (c *projectionCache) put(k projectionKey, p field.Projection) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[k] = p
}
