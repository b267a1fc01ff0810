package integrators

import "github.com/san-kum/nmpc/internal/dynamo"

// Advance integrates dyn over [t, t+dt] with u held constant, split into
// substeps equal steps. substeps below 1 is treated as 1.
func Advance(integ dynamo.Integrator, dyn dynamo.System, x dynamo.State, u dynamo.Control, t, dt float64, substeps int) dynamo.State {
	if substeps < 1 {
		substeps = 1
	}
	h := dt / float64(substeps)
	for i := 0; i < substeps; i++ {
		x = integ.Step(dyn, x, u, t+float64(i)*h, h)
	}
	return x
}
