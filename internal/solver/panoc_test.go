package solver

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/nmpc/internal/constraints"
	"github.com/san-kum/nmpc/internal/dynamo"
)

// quadratic is f(u) = ½ Σ a_i (u_i - c_i)² over a constraint set.
type quadratic struct {
	a, c  []float64
	set   constraints.Set
	evals int
}

func (q *quadratic) Dim() int { return len(q.a) }

func (q *quadratic) Cost(u []float64) float64 {
	q.evals++
	sum := 0.0
	for i := range u {
		d := u[i] - q.c[i]
		sum += 0.5 * q.a[i] * d * d
	}
	return sum
}

func (q *quadratic) Gradient(grad, u []float64) {
	for i := range u {
		grad[i] = q.a[i] * (u[i] - q.c[i])
	}
}

func (q *quadratic) Project(u []float64) { q.set.Project(u) }

type rosenbrock struct {
	set constraints.Set
}

func (r *rosenbrock) Dim() int { return 2 }

func (r *rosenbrock) Cost(u []float64) float64 {
	a, b := 1-u[0], u[1]-u[0]*u[0]
	return a*a + 100*b*b
}

func (r *rosenbrock) Gradient(grad, u []float64) {
	b := u[1] - u[0]*u[0]
	grad[0] = -2*(1-u[0]) - 400*u[0]*b
	grad[1] = 200 * b
}

func (r *rosenbrock) Project(u []float64) { r.set.Project(u) }

func box(lo, hi float64, n int) *constraints.Rectangle {
	min, max := make([]float64, n), make([]float64, n)
	for i := range min {
		min[i], max[i] = lo, hi
	}
	r, _ := constraints.NewRectangle(min, max)
	return r
}

func TestSolveUnconstrainedQuadratic(t *testing.T) {
	p := &quadratic{a: []float64{1, 10}, c: []float64{0.3, -0.7}, set: constraints.None{}}
	c := NewCache(2, 1e-6, 50)

	st, err := Solve(p, c)
	require.NoError(t, err)
	assert.True(t, st.Converged, "status: %s", st)

	u := c.Iterate()
	assert.InDelta(t, 0.3, u[0], 1e-5)
	assert.InDelta(t, -0.7, u[1], 1e-5)
}

func TestSolveActiveBox(t *testing.T) {
	p := &quadratic{a: []float64{1, 1}, c: []float64{3, -0.2}, set: box(-0.5, 0.5, 2)}
	c := NewCache(2, 1e-8, DefaultMaxIterations)

	st, err := Solve(p, c)
	require.NoError(t, err)
	assert.True(t, st.Converged)

	u := c.Iterate()
	assert.Equal(t, 0.5, u[0])
	assert.InDelta(t, -0.2, u[1], 1e-7)
}

func TestSolveWarmStartConvergesImmediately(t *testing.T) {
	p := &quadratic{a: []float64{2, 5, 1}, c: []float64{0.1, 0.2, 9}, set: box(-1, 1, 3)}
	c := NewCache(3, 1e-8, DefaultMaxIterations)

	first, err := Solve(p, c)
	require.NoError(t, err)
	require.True(t, first.Converged)
	require.True(t, c.Warm())

	second, err := Solve(p, c)
	require.NoError(t, err)
	assert.True(t, second.Converged)
	assert.Equal(t, 1, second.Iterations)
	assert.LessOrEqual(t, second.Iterations, first.Iterations)
}

func TestSolveAnytimeOnIterationCap(t *testing.T) {
	p := &rosenbrock{set: box(-2, 2, 2)}
	c := NewCache(2, 1e-14, 2)

	start := p.Cost([]float64{0, 0})
	st, err := Solve(p, c)
	require.NoError(t, err)

	assert.False(t, st.Converged)
	assert.Equal(t, 2, st.Iterations)
	assert.LessOrEqual(t, st.Cost, start)

	u := c.Iterate()
	assert.True(t, box(-2, 2, 2).Contains(u), "iterate %v outside box", u)
	assert.False(t, math.IsNaN(st.Residual))
}

func TestSolveRosenbrockProgress(t *testing.T) {
	p := &rosenbrock{set: box(-2, 2, 2)}
	c := NewCache(2, 1e-6, 200)

	st, err := Solve(p, c)
	require.NoError(t, err)
	assert.Less(t, st.Cost, 1.0)
}

func TestSolveNonFiniteObjectiveHoldsStart(t *testing.T) {
	p := &quadratic{a: []float64{math.Inf(1)}, c: []float64{1}, set: constraints.None{}}
	c := NewCache(1, 1e-6, 5)

	st, err := Solve(p, c)
	require.NoError(t, err)
	assert.False(t, st.Converged)
	assert.Equal(t, 0, st.Iterations)
	assert.Equal(t, []float64{0}, c.Iterate())
}

func TestSolveDimensionMismatch(t *testing.T) {
	p := &quadratic{a: []float64{1, 1}, c: []float64{0, 0}, set: constraints.None{}}
	_, err := Solve(p, NewCache(3, 1e-6, 5))
	assert.ErrorIs(t, err, dynamo.ErrDimensionMismatch)
}

func TestSolveIsDeterministic(t *testing.T) {
	run := func() ([]float64, Status) {
		p := &rosenbrock{set: box(-2, 2, 2)}
		c := NewCache(2, 1e-9, 7)
		_, err := Solve(p, c)
		require.NoError(t, err)
		st, err := Solve(p, c)
		require.NoError(t, err)
		return c.Iterate(), st
	}
	u1, s1 := run()
	u2, s2 := run()
	assert.Equal(t, u1, u2)
	assert.Equal(t, s1, s2)
}

func TestCacheResetAndShift(t *testing.T) {
	c := NewCache(4, 1e-6, 0)
	assert.Equal(t, DefaultMaxIterations, c.MaxIterations())

	require.NoError(t, c.Restore(CacheState{Iterate: []float64{1, 2, 3, 4}, Warm: true}))
	c.Shift(2)
	assert.Equal(t, []float64{3, 4, 3, 4}, c.Iterate())

	c.Shift(4)
	assert.Equal(t, []float64{3, 4, 3, 4}, c.Iterate())

	c.Reset()
	assert.False(t, c.Warm())
	assert.Equal(t, []float64{0, 0, 0, 0}, c.Iterate())
}

func TestCacheRestoreDimension(t *testing.T) {
	c := NewCache(2, 1e-6, 5)
	err := c.Restore(CacheState{Iterate: []float64{1}})
	assert.ErrorIs(t, err, dynamo.ErrDimensionMismatch)
}

func TestLBFGSRecoversDiagonalInverse(t *testing.T) {
	l := newLBFGS(2, 3)
	// Pairs from the Hessian diag(2, 4): y = H s.
	require.True(t, l.update([]float64{1, 0}, []float64{0, 0}, []float64{2, 0}, []float64{0, 0}))
	require.True(t, l.update([]float64{1, 1}, []float64{1, 0}, []float64{2, 4}, []float64{2, 0}))

	dst := make([]float64, 2)
	l.apply(dst, []float64{2, 4})
	assert.InDelta(t, 1, dst[0], 1e-12)
	assert.InDelta(t, 1, dst[1], 1e-12)

	assert.False(t, l.update([]float64{1, 0}, []float64{0, 0}, []float64{-1, 0}, []float64{0, 0}))
}

func BenchmarkSolveWarm(b *testing.B) {
	p := &rosenbrock{set: box(-2, 2, 2)}
	c := NewCache(2, 1e-3, DefaultMaxIterations)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = Solve(p, c)
	}
}
