package models

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/nmpc/internal/dynamo"
)

// Attitude is rigid-body rotational dynamics in body axes:
// ω̇ = I⁻¹(τ - ω × Iω) with state ω (rad/s) and control τ (N·m).
type Attitude struct {
	inertia *mat.Dense
	inv     *mat.Dense
}

// NewAttitude returns a body with the principal moments of a small
// quadrotor frame.
func NewAttitude() *Attitude {
	a, err := NewAttitudeInertia(mat.NewDense(3, 3, []float64{
		0.0082, 0, 0,
		0, 0.0082, 0,
		0, 0, 0.0149,
	}))
	if err != nil {
		panic(err)
	}
	return a
}

// NewAttitudeInertia builds an Attitude from a full 3x3 inertia tensor.
func NewAttitudeInertia(inertia mat.Matrix) (*Attitude, error) {
	if r, c := inertia.Dims(); r != 3 || c != 3 {
		return nil, fmt.Errorf("%w: inertia is %dx%d, want 3x3", dynamo.ErrConfiguration, r, c)
	}
	in := mat.DenseCopyOf(inertia)
	var inv mat.Dense
	if err := inv.Inverse(in); err != nil {
		return nil, fmt.Errorf("%w: inertia not invertible: %v", dynamo.ErrConfiguration, err)
	}
	return &Attitude{inertia: in, inv: &inv}, nil
}

func (a *Attitude) StateDim() int   { return 3 }
func (a *Attitude) ControlDim() int { return 3 }

func (a *Attitude) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	w := mat.NewVecDense(3, []float64{x[0], x[1], x[2]})

	var iw mat.VecDense
	iw.MulVec(a.inertia, w)
	gyro := cross(w.RawVector().Data, iw.RawVector().Data)

	rhs := mat.NewVecDense(3, nil)
	for i := 0; i < 3; i++ {
		tau := 0.0
		if i < len(u) {
			tau = u[i]
		}
		rhs.SetVec(i, tau-gyro[i])
	}

	var dw mat.VecDense
	dw.MulVec(a.inv, rhs)
	return dynamo.State{dw.AtVec(0), dw.AtVec(1), dw.AtVec(2)}
}

// Energy is the rotational kinetic energy ½ωᵀIω.
func (a *Attitude) Energy(x dynamo.State) float64 {
	w := mat.NewVecDense(3, []float64{x[0], x[1], x[2]})
	return 0.5 * mat.Inner(w, a.inertia, w)
}

func cross(a, b []float64) [3]float64 {
	return [3]float64{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}
