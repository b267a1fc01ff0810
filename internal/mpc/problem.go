package mpc

import (
	"math"

	"gonum.org/v1/gonum/diff/fd"

	"github.com/san-kum/nmpc/internal/constraints"
	"github.com/san-kum/nmpc/internal/dynamo"
	"github.com/san-kum/nmpc/internal/integrators"
)

// Problem is the finite-horizon optimal-control problem solved on each due
// tick. The decision variable is a move-blocked control sequence of blocks
// consecutive N-vectors; prediction step k uses block k*blocks/horizon.
type Problem struct {
	dyn          dynamo.System
	integ        dynamo.Integrator
	stateCost    StateCost
	terminalCost TerminalCost
	constraint   constraints.Set
	limits       dynamo.Limits
	setpoint     dynamo.State

	n        int
	horizon  int
	substeps int
	blocks   int
	step     float64

	x0  dynamo.State
	err dynamo.State
	fd  *fd.Settings
}

// Dim is the number of decision variables, blocks*N.
func (p *Problem) Dim() int { return p.n * p.blocks }

func (p *Problem) Horizon() int { return p.horizon }
func (p *Problem) Blocks() int  { return p.blocks }

// SetInitialState copies x0 as the prediction start.
func (p *Problem) SetInitialState(x0 dynamo.State) {
	copy(p.x0, x0)
}

func (p *Problem) block(u []float64, k int) dynamo.Control {
	b := k * p.blocks / p.horizon
	return dynamo.Control(u[b*p.n : (b+1)*p.n])
}

func (p *Problem) trackingError(x dynamo.State) dynamo.State {
	for i := range p.err {
		p.err[i] = p.setpoint[i] - x[i]
	}
	return p.err
}

// Cost rolls the plant forward from the initial state under u and sums the
// stage and terminal costs. A non-finite prediction costs +Inf.
func (p *Problem) Cost(u []float64) float64 {
	x := p.x0
	total := 0.0
	for k := 0; k < p.horizon; k++ {
		uk := p.block(u, k)
		if p.stateCost != nil {
			total += p.stateCost.StateCost(p.trackingError(x), uk)
		}
		x = integrators.Advance(p.integ, p.dyn, x, uk, float64(k)*p.step, p.step, p.substeps)
		if !x.IsValid() {
			return math.Inf(1)
		}
	}
	if p.terminalCost != nil {
		total += p.terminalCost.TerminalCost(p.trackingError(x))
	}
	if math.IsNaN(total) {
		return math.Inf(1)
	}
	return total
}

func (p *Problem) Gradient(grad, u []float64) {
	fd.Gradient(grad, p.Cost, u, p.fd)
}

// Project maps u onto the constraint set block by block, then clamps every
// block to the output limits.
func (p *Problem) Project(u []float64) {
	for b := 0; b < p.blocks; b++ {
		blk := u[b*p.n : (b+1)*p.n]
		p.constraint.Project(blk)
		p.limits.ClampInPlace(blk)
	}
}

// Feasible reports whether every block lies in both the constraint set and
// the output limits.
func (p *Problem) Feasible(u []float64) bool {
	for b := 0; b < p.blocks; b++ {
		blk := u[b*p.n : (b+1)*p.n]
		if !p.constraint.Contains(blk) || !p.limits.Contains(blk) {
			return false
		}
	}
	return true
}
