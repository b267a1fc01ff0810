package dynamo

import (
	"fmt"
	"math"
)

type State []float64

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (s State) Norm() float64 {
	sum := 0.0
	for _, v := range s {
		sum += v * v
	}
	return math.Sqrt(sum)
}

func (s State) Sub(other State) State {
	result := make(State, len(s))
	for i := range s {
		if i < len(other) {
			result[i] = s[i] - other[i]
		} else {
			result[i] = s[i]
		}
	}
	return result
}

type Control []float64

func (u Control) Clone() Control {
	if u == nil {
		return nil
	}
	c := make(Control, len(u))
	copy(c, u)
	return c
}

// Bound is a closed interval [Low, High] for one control axis.
type Bound struct {
	Low  float64
	High float64
}

func (b Bound) Clamp(v float64) float64 {
	if v < b.Low {
		return b.Low
	}
	if v > b.High {
		return b.High
	}
	return v
}

// Limits holds one Bound per control axis.
type Limits []Bound

func (l Limits) Validate() error {
	for i, b := range l {
		if math.IsNaN(b.Low) || math.IsNaN(b.High) || b.Low > b.High {
			return fmt.Errorf("%w: output limit %d has low %g > high %g", ErrConfiguration, i, b.Low, b.High)
		}
	}
	return nil
}

// ClampInPlace clamps u component-wise; u and l must have equal length.
func (l Limits) ClampInPlace(u []float64) {
	for i := range u {
		u[i] = l[i].Clamp(u[i])
	}
}

func (l Limits) Contains(u []float64) bool {
	if len(u) != len(l) {
		return false
	}
	for i, v := range u {
		if v < l[i].Low || v > l[i].High {
			return false
		}
	}
	return true
}

// System is a continuous-time dynamics function dX/dt = f(X, u, t).
type System interface {
	Derive(x State, u Control, t float64) State
	StateDim() int
	ControlDim() int
}

type Integrator interface {
	Step(dyn System, x State, u Control, t float64, dt float64) State
}

type AdaptiveIntegrator interface {
	Integrator
	StepAdaptive(dyn System, x State, u Control, t, dt, tol float64) (State, float64, error)
}

type Metric interface {
	Name() string
	Observe(x State, u Control, t float64)
	Value() float64
	Reset()
}

type Observer interface {
	OnStep(x State, u Control, t float64)
}

type SimError struct {
	Time    float64
	Step    int
	Message string
}

func (e SimError) Error() string {
	return fmt.Sprintf("step %d (t=%.4f): %s", e.Step, e.Time, e.Message)
}
