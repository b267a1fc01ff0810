package task_test

import (
	"time"

	"github.com/san-kum/nmpc/internal/config"
	"github.com/san-kum/nmpc/internal/dynamo"
	"github.com/san-kum/nmpc/internal/mpc"
	"github.com/san-kum/nmpc/internal/task"
)

// sample is a test payload carrying raw readings.
type sample struct {
	readings []float64
}

var passThrough = task.ConverterFunc[sample](func(s sample) dynamo.State {
	return dynamo.State(s.readings).Clone()
})

var resolver = task.ResolverFunc(func(cfg *config.Controller) (mpc.Params, error) {
	n := cfg.Dim()
	return mpc.Params{
		Setpoint:     cfg.Setpoint,
		OutputLimits: cfg.Limits(),
		SamplePeriod: cfg.SamplePeriod,
		Dynamics: mpc.DynamicsFunc(n, func(x dynamo.State, u dynamo.Control) dynamo.State {
			dx := make(dynamo.State, n)
			copy(dx, u)
			return dx
		}),
		StateCost:     mpc.NewQuadratic(config.Weights(cfg.Cost.StateWeights, n), config.Weights(cfg.Cost.ControlWeights, n), nil),
		Tolerance:     cfg.Tolerance,
		MaxIterations: cfg.MaxIterations,
		Horizon:       cfg.Horizon,
		Substeps:      cfg.Substeps,
		Blocks:        cfg.Blocks,
	}, nil
})

func controllerConfig() *config.Controller {
	c := config.DefaultController([]float64{1, 1}, 1)
	c.SamplePeriod = 100 * time.Millisecond
	c.Cost.ControlWeights = []float64{0.1, 0.1}
	return &c
}

func at(v ...float64) *sample {
	return &sample{readings: v}
}
