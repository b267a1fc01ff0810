package integrators

import (
	"math"

	"github.com/san-kum/nmpc/internal/dynamo"
)

// Dormand-Prince tableau. dpB holds the fifth-order weights, dpE the
// difference to the embedded fourth-order solution (seven stages, FSAL).
var (
	dpC = [7]float64{0, 1.0 / 5.0, 3.0 / 10.0, 4.0 / 5.0, 8.0 / 9.0, 1, 1}
	dpA = [7][6]float64{
		{},
		{1.0 / 5.0},
		{3.0 / 40.0, 9.0 / 40.0},
		{44.0 / 45.0, -56.0 / 15.0, 32.0 / 9.0},
		{19372.0 / 6561.0, -25360.0 / 2187.0, 64448.0 / 6561.0, -212.0 / 729.0},
		{9017.0 / 3168.0, -355.0 / 33.0, 46732.0 / 5247.0, 49.0 / 176.0, -5103.0 / 18656.0},
		{35.0 / 384.0, 0, 500.0 / 1113.0, 125.0 / 192.0, -2187.0 / 6784.0, 11.0 / 84.0},
	}
	dpB = [7]float64{35.0 / 384.0, 0, 500.0 / 1113.0, 125.0 / 192.0, -2187.0 / 6784.0, 11.0 / 84.0, 0}
	dpE = [7]float64{
		35.0/384.0 - 5179.0/57600.0,
		0,
		500.0/1113.0 - 7571.0/16695.0,
		125.0/192.0 - 393.0/640.0,
		-2187.0/6784.0 + 92097.0/339200.0,
		11.0/84.0 - 187.0/2100.0,
		-1.0 / 40.0,
	}
)

// RK45 is the Dormand-Prince embedded pair. Step uses the fifth-order
// solution with a fixed dt; StepAdaptive also proposes the next dt.
type RK45 struct {
	safety   float64
	minScale float64
	maxScale float64
	tol      float64

	k       [7]dynamo.State
	scratch dynamo.State
}

func NewRK45() *RK45 {
	return &RK45{
		safety:   0.9,
		minScale: 0.2,
		maxScale: 10.0,
		tol:      1e-6,
	}
}

func (r *RK45) ensureScratch(n int) {
	if len(r.scratch) != n {
		for i := range r.k {
			r.k[i] = make(dynamo.State, n)
		}
		r.scratch = make(dynamo.State, n)
	}
}

func (r *RK45) Step(dyn dynamo.System, x dynamo.State, u dynamo.Control, t, dt float64) dynamo.State {
	newX, _, _ := r.StepAdaptive(dyn, x, u, t, dt, r.tol)
	return newX
}

func (r *RK45) StepAdaptive(dyn dynamo.System, x dynamo.State, u dynamo.Control, t, dt, tol float64) (dynamo.State, float64, error) {
	n := len(x)
	r.ensureScratch(n)

	copy(r.k[0], dyn.Derive(x, u, t))
	for s := 1; s < 6; s++ {
		for i := 0; i < n; i++ {
			acc := 0.0
			for j := 0; j < s; j++ {
				acc += dpA[s][j] * r.k[j][i]
			}
			r.scratch[i] = x[i] + dt*acc
		}
		copy(r.k[s], dyn.Derive(r.scratch, u, t+dpC[s]*dt))
	}

	xNew := make(dynamo.State, n)
	for i := 0; i < n; i++ {
		acc := 0.0
		for s := 0; s < 6; s++ {
			acc += dpB[s] * r.k[s][i]
		}
		xNew[i] = x[i] + dt*acc
	}
	if !xNew.IsValid() {
		return xNew, dt * r.minScale, dynamo.ErrInvalidState
	}
	copy(r.k[6], dyn.Derive(xNew, u, t+dt))

	errMax := 0.0
	for i := 0; i < n; i++ {
		errEst := 0.0
		for s := 0; s < 7; s++ {
			errEst += dpE[s] * r.k[s][i]
		}
		errEst *= dt
		scale := math.Abs(x[i]) + math.Abs(dt*r.k[0][i]) + 1e-10
		errMax = math.Max(errMax, math.Abs(errEst)/scale)
	}

	errRatio := errMax / tol
	var factor float64
	switch {
	case errRatio > 1:
		factor = math.Max(r.minScale, r.safety*math.Pow(errRatio, -0.25))
	case errRatio > 0:
		factor = math.Min(r.maxScale, r.safety*math.Pow(errRatio, -0.2))
	default:
		factor = r.maxScale
	}
	return xNew, dt * factor, nil
}
