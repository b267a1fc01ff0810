package mpc

import (
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/nmpc/internal/dynamo"
)

// StateCost is the stage cost J(e, u) evaluated at every prediction step on
// the predicted tracking error e = setpoint - x. Implementations must not
// retain e or u.
type StateCost interface {
	StateCost(e dynamo.State, u dynamo.Control) float64
}

// TerminalCost is evaluated once on the tracking error at the end of the
// prediction horizon.
type TerminalCost interface {
	TerminalCost(e dynamo.State) float64
}

type StateCostFunc func(e dynamo.State, u dynamo.Control) float64

func (f StateCostFunc) StateCost(e dynamo.State, u dynamo.Control) float64 { return f(e, u) }

type TerminalCostFunc func(e dynamo.State) float64

func (f TerminalCostFunc) TerminalCost(e dynamo.State) float64 { return f(e) }

// Quadratic is eᵀQe + uᵀRu per stage and eᵀPe at the horizon end. Nil
// matrices contribute zero.
type Quadratic struct {
	Q, R, P *mat.SymDense
}

// NewQuadratic builds a Quadratic with diagonal weights. A nil slice leaves
// the corresponding matrix unset.
func NewQuadratic(q, r, p []float64) *Quadratic {
	return &Quadratic{Q: diag(q), R: diag(r), P: diag(p)}
}

func diag(w []float64) *mat.SymDense {
	if len(w) == 0 {
		return nil
	}
	m := mat.NewSymDense(len(w), nil)
	for i, v := range w {
		m.SetSym(i, i, v)
	}
	return m
}

func quadForm(m *mat.SymDense, v []float64) float64 {
	if m == nil || len(v) == 0 {
		return 0
	}
	x := mat.NewVecDense(len(v), v)
	return mat.Inner(x, m, x)
}

func (q *Quadratic) StateCost(e dynamo.State, u dynamo.Control) float64 {
	return quadForm(q.Q, e) + quadForm(q.R, u)
}

func (q *Quadratic) TerminalCost(e dynamo.State) float64 {
	return quadForm(q.P, e)
}

type funcSystem struct {
	n int
	f func(x dynamo.State, u dynamo.Control) dynamo.State
}

func (s *funcSystem) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	return s.f(x, u)
}

func (s *funcSystem) StateDim() int   { return s.n }
func (s *funcSystem) ControlDim() int { return s.n }

// DynamicsFunc adapts a time-invariant f(x, u) -> dx/dt over n states and n
// controls to a dynamo.System.
func DynamicsFunc(n int, f func(x dynamo.State, u dynamo.Control) dynamo.State) dynamo.System {
	return &funcSystem{n: n, f: f}
}
