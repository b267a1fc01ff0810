// Package mpc implements a rate-gated nonlinear model predictive controller.
//
// A [Controller] owns a prediction model ([dynamo.System]), one or both of a
// [StateCost] and a [TerminalCost], a [constraints.Set] and a warm-started
// [solver.Cache]. Each call to [Controller.Next] adds the elapsed time to an
// accumulator; only once a full sample period has passed does it recompute
// the tracking error and re-solve, otherwise it returns the previous output
// unchanged (zero-order hold).
//
// # Usage
//
//	ctrl, err := mpc.New(mpc.Params{
//	    Setpoint:     dynamo.State{1, 1},
//	    OutputLimits: dynamo.Limits{{-1, 1}, {-1, 1}},
//	    SamplePeriod: 100 * time.Millisecond,
//	    Dynamics:     models.NewIntegrator(2),
//	    StateCost:    mpc.NewQuadratic([]float64{1, 1}, []float64{0.1, 0.1}, nil),
//	    Tolerance:    1e-3,
//	})
//	ctrl.SeedMeasurement(x0)
//	u, err := ctrl.Next(x, 10*time.Millisecond)
//
// A Controller is not safe for concurrent use.
package mpc
