package models

import "github.com/san-kum/nmpc/internal/dynamo"

// Integrator is ẋ = Gain·u on every axis.
type Integrator struct {
	N    int
	Gain float64
}

func NewIntegrator(n int) *Integrator {
	return &Integrator{N: n, Gain: 1.0}
}

func (m *Integrator) StateDim() int   { return m.N }
func (m *Integrator) ControlDim() int { return m.N }

func (m *Integrator) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	dx := make(dynamo.State, m.N)
	for i := range dx {
		if i < len(u) {
			dx[i] = m.Gain * u[i]
		}
	}
	return dx
}
