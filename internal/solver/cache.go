package solver

import (
	"fmt"

	"github.com/san-kum/nmpc/internal/dynamo"
)

const (
	DefaultMaxIterations = 20
	DefaultLBFGSMemory   = 5
)

// Cache is the mutable solver state reused across solves: the warm-start
// iterate plus preallocated work vectors. It is keyed by dimension,
// tolerance and iteration cap, all fixed at construction.
type Cache struct {
	dim       int
	tolerance float64
	maxIter   int

	iterate []float64
	warm    bool

	lbfgs *lbfgs

	u, g, uBar, fpr      []float64
	uPrev, fprPrev, d    []float64
	cand, gCand, candBar []float64
	fprCand, best, gPert []float64
}

func NewCache(dim int, tolerance float64, maxIter int) *Cache {
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}
	vec := func() []float64 { return make([]float64, dim) }
	return &Cache{
		dim:       dim,
		tolerance: tolerance,
		maxIter:   maxIter,
		iterate:   vec(),
		lbfgs:     newLBFGS(dim, DefaultLBFGSMemory),
		u:         vec(),
		g:         vec(),
		uBar:      vec(),
		fpr:       vec(),
		uPrev:     vec(),
		fprPrev:   vec(),
		d:         vec(),
		cand:      vec(),
		gCand:     vec(),
		candBar:   vec(),
		fprCand:   vec(),
		best:      vec(),
		gPert:     vec(),
	}
}

func (c *Cache) Dim() int           { return c.dim }
func (c *Cache) Tolerance() float64 { return c.tolerance }
func (c *Cache) MaxIterations() int { return c.maxIter }
func (c *Cache) Warm() bool         { return c.warm }

// Iterate returns a copy of the warm-start iterate.
func (c *Cache) Iterate() []float64 {
	out := make([]float64, c.dim)
	copy(out, c.iterate)
	return out
}

// Reset discards all warm-start history.
func (c *Cache) Reset() {
	for i := range c.iterate {
		c.iterate[i] = 0
	}
	c.warm = false
	c.lbfgs.reset()
}

// Shift moves the warm-start iterate left by k entries, repeating the
// trailing k entries. Used to advance a move-blocked control sequence by one
// block between ticks; k >= Dim() leaves the iterate untouched.
func (c *Cache) Shift(k int) {
	if !c.warm || k <= 0 || k >= c.dim {
		return
	}
	copy(c.iterate, c.iterate[k:])
}

func (c *Cache) store(u []float64) {
	copy(c.iterate, u)
	c.warm = true
}

// CacheState is the persisted part of a Cache.
type CacheState struct {
	Iterate []float64
	Warm    bool
}

func (c *Cache) State() CacheState {
	return CacheState{Iterate: c.Iterate(), Warm: c.warm}
}

func (c *Cache) Restore(s CacheState) error {
	if err := dynamo.CheckDim("solver iterate", s.Iterate, c.dim); err != nil {
		return fmt.Errorf("restore cache: %w", err)
	}
	copy(c.iterate, s.Iterate)
	c.warm = s.Warm
	c.lbfgs.reset()
	return nil
}
