package models

import "github.com/san-kum/nmpc/internal/dynamo"

const DefaultTimeConstant = 0.5

// Lag is a first-order lag per axis: τᵢẋᵢ = Kᵢuᵢ - xᵢ.
type Lag struct {
	Tau  []float64
	Gain []float64
}

// NewLag returns n identical lags with the default time constant and unit
// gain.
func NewLag(n int) *Lag {
	l := &Lag{Tau: make([]float64, n), Gain: make([]float64, n)}
	for i := 0; i < n; i++ {
		l.Tau[i] = DefaultTimeConstant
		l.Gain[i] = 1.0
	}
	return l
}

func (l *Lag) StateDim() int   { return len(l.Tau) }
func (l *Lag) ControlDim() int { return len(l.Tau) }

func (l *Lag) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	dx := make(dynamo.State, len(l.Tau))
	for i, tau := range l.Tau {
		in := 0.0
		if i < len(u) {
			in = l.Gain[i] * u[i]
		}
		dx[i] = (in - x[i]) / tau
	}
	return dx
}

// Steady returns the state the lag settles at under constant u.
func (l *Lag) Steady(u dynamo.Control) dynamo.State {
	x := make(dynamo.State, len(l.Tau))
	for i := range x {
		x[i] = l.Gain[i] * u[i]
	}
	return x
}
