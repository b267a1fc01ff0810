package experiment

import (
	"context"
	"fmt"

	"github.com/san-kum/nmpc/internal/config"
	"github.com/san-kum/nmpc/internal/controllers"
	"github.com/san-kum/nmpc/internal/dynamo"
	"github.com/san-kum/nmpc/internal/sim"
)

// Gains are the PID baseline gains, shared by every axis.
type Gains struct {
	Kp, Ki, Kd float64
}

// DefaultGains is a moderate proportional-integral tuning.
var DefaultGains = Gains{Kp: 4, Ki: 4}

// Baselines lists the controllers RunBaseline accepts besides the
// predictive one.
var Baselines = []string{"none", "pid"}

// RunBaseline simulates cfg with a baseline controller in place of the
// predictive controller: same plant, limits, setpoint and metrics.
func RunBaseline(ctx context.Context, cfg *config.Config, reg *Registry, kind string, g Gains) (*sim.Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	n := cfg.Controller.Dim()
	plant, err := reg.GetModel(cfg.Model, n)
	if err != nil {
		return nil, err
	}
	integ, err := reg.GetIntegrator(cfg.Integrator)
	if err != nil {
		return nil, err
	}

	var ctrl sim.Controller
	switch kind {
	case "none":
		ctrl = controllers.NewNone(n)
	case "pid":
		pid, err := controllers.NewPID(g.Kp, g.Ki, g.Kd, cfg.Controller.Setpoint, cfg.Controller.Limits())
		if err != nil {
			return nil, err
		}
		ctrl = pid
	default:
		return nil, fmt.Errorf("%w: unknown baseline %q (available: %v)", dynamo.ErrConfiguration, kind, Baselines)
	}

	s := sim.New(plant, integ, ctrl)
	for _, m := range reg.DefaultMetrics(cfg, plant) {
		s.AddMetric(m)
	}
	return s.Run(ctx, cfg.GetInitState(), sim.Config{
		Dt:            cfg.Dt,
		Duration:      cfg.Duration,
		Noise:         cfg.Noise,
		Seed:          cfg.Seed,
		ValidateState: true,
	})
}
