package solver

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/nmpc/internal/dynamo"
)

const (
	// gammaFactor sets the step to gammaFactor/L, strictly below 1/L.
	gammaFactor   = 0.95
	maxLineSearch = 8
	minLipschitz  = 1e-8
	maxLipschitz  = 1e12

	// Perturbation used for the initial Lipschitz estimate.
	lipschitzRel = 1e-3
	lipschitzAbs = 1e-4
)

// Problem is the smooth objective plus the projection onto the feasible set.
// Gradient writes into grad; Project works in place. Implementations must be
// deterministic for a given input.
type Problem interface {
	Dim() int
	Cost(u []float64) float64
	Gradient(grad, u []float64)
	Project(u []float64)
}

// Status describes the outcome of one Solve.
type Status struct {
	Iterations int
	// Residual is ||u - Π(u - γ∇f(u))||∞ / γ at the returned iterate.
	Residual  float64
	Cost      float64
	Lipschitz float64
	Converged bool
}

func (s Status) String() string {
	state := "converged"
	if !s.Converged {
		state = "iteration cap"
	}
	return fmt.Sprintf("%s after %d iterations (residual %.3e, cost %.6g)", state, s.Iterations, s.Residual, s.Cost)
}

// Solve minimises p starting from the cache's warm-start iterate (zero when
// cold) and stores the result back into the cache. The returned iterate is
// always feasible. Hitting the iteration cap is reported through
// Status.Converged, not as an error.
func Solve(p Problem, c *Cache) (Status, error) {
	if p.Dim() != c.dim {
		return Status{}, fmt.Errorf("solver: problem has %d variables, cache %d: %w", p.Dim(), c.dim, dynamo.ErrDimensionMismatch)
	}

	u, g := c.u, c.g
	if c.warm {
		copy(u, c.iterate)
	} else {
		zero(u)
	}
	p.Project(u)
	f := p.Cost(u)
	p.Gradient(g, u)

	st := Status{Cost: f, Residual: math.Inf(1)}
	if !finite(f) || !allFinite(g) {
		c.store(u)
		return st, nil
	}

	L := c.estimateLipschitz(p, u, g)
	gamma := gammaFactor / L
	c.lbfgs.reset()

	best := c.best
	copy(best, u)
	bestCost := f

	uBar, fpr := c.uBar, c.fpr
	cand, gCand := c.cand, c.gCand

	for it := 0; it < c.maxIter; it++ {
		st.Iterations = it + 1

		var fBar, fprSq float64
		for {
			forwardBackward(p, u, g, gamma, uBar, fpr)
			fBar = p.Cost(uBar)
			fprSq = floats.Dot(fpr, fpr)
			bound := f - floats.Dot(g, fpr) + 0.5*L*fprSq + 1e-12*(1+math.Abs(f))
			if fBar <= bound || L >= maxLipschitz {
				break
			}
			L = math.Min(2*L, maxLipschitz)
			gamma = gammaFactor / L
		}

		if finite(fBar) && fBar < bestCost {
			copy(best, uBar)
			bestCost = fBar
		}

		st.Residual = floats.Norm(fpr, math.Inf(1)) / gamma
		if st.Residual <= c.tolerance {
			copy(best, uBar)
			bestCost = fBar
			st.Converged = true
			break
		}

		if it > 0 {
			c.lbfgs.update(u, c.uPrev, fpr, c.fprPrev)
		}
		copy(c.uPrev, u)
		copy(c.fprPrev, fpr)

		d := c.d
		c.lbfgs.apply(d, fpr)
		floats.Scale(-1, d)

		phi := f - floats.Dot(g, fpr) + fprSq/(2*gamma)
		sigma := (1 - gamma*L) / (8 * gamma)

		var fCand float64
		accepted := false
		tau := 1.0
		for ls := 0; ls < maxLineSearch; ls++ {
			for i := range cand {
				cand[i] = u[i] - (1-tau)*fpr[i] + tau*d[i]
			}
			fCand = p.Cost(cand)
			p.Gradient(gCand, cand)
			if finite(fCand) && allFinite(gCand) {
				forwardBackward(p, cand, gCand, gamma, c.candBar, c.fprCand)
				r2 := floats.Dot(c.fprCand, c.fprCand)
				phiCand := fCand - floats.Dot(gCand, c.fprCand) + r2/(2*gamma)
				if phiCand <= phi-sigma*fprSq {
					accepted = true
					break
				}
			}
			tau *= 0.5
		}
		if !accepted {
			copy(cand, uBar)
			fCand = fBar
			p.Gradient(gCand, cand)
		}

		u, cand = cand, u
		g, gCand = gCand, g
		f = fCand
	}

	// u/cand and g/gCand may have swapped; keep the cache's buffers distinct.
	c.u, c.cand = u, cand
	c.g, c.gCand = g, gCand

	c.store(best)
	st.Cost = bestCost
	st.Lipschitz = L
	return st, nil
}

// forwardBackward writes uBar = Π(u - γg) and fpr = u - uBar.
func forwardBackward(p Problem, u, g []float64, gamma float64, uBar, fpr []float64) {
	floats.AddScaledTo(uBar, u, -gamma, g)
	p.Project(uBar)
	floats.SubTo(fpr, u, uBar)
}

// estimateLipschitz returns ||∇f(u+δ) - ∇f(u)|| / ||δ|| clamped to
// [minLipschitz, maxLipschitz].
func (c *Cache) estimateLipschitz(p Problem, u, g []float64) float64 {
	pert, delta := c.candBar, c.fprCand
	for i := range u {
		delta[i] = math.Max(lipschitzRel*math.Abs(u[i]), lipschitzAbs)
		pert[i] = u[i] + delta[i]
	}
	p.Gradient(c.gPert, pert)
	floats.Sub(c.gPert, g)
	L := floats.Norm(c.gPert, 2) / floats.Norm(delta, 2)
	if !finite(L) || L < minLipschitz {
		L = minLipschitz
	}
	return math.Min(L, maxLipschitz)
}

func zero(v []float64) {
	for i := range v {
		v[i] = 0
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func allFinite(v []float64) bool {
	for _, x := range v {
		if !finite(x) {
			return false
		}
	}
	return true
}
