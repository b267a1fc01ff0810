package experiment

import (
	"fmt"
	"sort"

	"github.com/san-kum/nmpc/internal/config"
	"github.com/san-kum/nmpc/internal/constraints"
	"github.com/san-kum/nmpc/internal/dynamo"
	"github.com/san-kum/nmpc/internal/integrators"
	"github.com/san-kum/nmpc/internal/metrics"
	"github.com/san-kum/nmpc/internal/models"
	"github.com/san-kum/nmpc/internal/mpc"
	"github.com/san-kum/nmpc/internal/task"
)

// Registry resolves model, integrator and constraint names from the
// configuration into objects.
type Registry struct {
	models      map[string]func(n int) dynamo.System
	integrators map[string]func() dynamo.Integrator
}

func NewRegistry() *Registry {
	r := &Registry{
		models:      make(map[string]func(int) dynamo.System),
		integrators: make(map[string]func() dynamo.Integrator),
	}

	r.models["integrator"] = func(n int) dynamo.System { return models.NewIntegrator(n) }
	r.models["lag"] = func(n int) dynamo.System { return models.NewLag(n) }
	r.models["pendulum"] = func(int) dynamo.System { return models.NewPendulum() }
	r.models["attitude"] = func(int) dynamo.System { return models.NewAttitude() }

	r.integrators["euler"] = func() dynamo.Integrator { return integrators.NewEuler() }
	r.integrators["rk4"] = func() dynamo.Integrator { return integrators.NewRK4() }
	r.integrators["rk45"] = func() dynamo.Integrator { return integrators.NewRK45() }

	return r
}

// GetModel builds the named model with n axes. Fixed-size models reject
// any other n.
func (r *Registry) GetModel(name string, n int) (dynamo.System, error) {
	fn, ok := r.models[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown model: %s", dynamo.ErrConfiguration, name)
	}
	sys := fn(n)
	if sys.StateDim() != n {
		return nil, fmt.Errorf("%w: model %s has %d axes, config has %d", dynamo.ErrConfiguration, name, sys.StateDim(), n)
	}
	return sys, nil
}

func (r *Registry) GetIntegrator(name string) (dynamo.Integrator, error) {
	fn, ok := r.integrators[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown integrator: %s", dynamo.ErrConfiguration, name)
	}
	return fn(), nil
}

func (r *Registry) ListModels() []string {
	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Constraint builds the per-block constraint set for n controls.
func (r *Registry) Constraint(c config.Constraint, n int) (constraints.Set, error) {
	wrap := func(err error) error { return fmt.Errorf("%w: %v", dynamo.ErrConfiguration, err) }
	sized := func(name string, v []float64) error {
		if v != nil && len(v) != n {
			return fmt.Errorf("%w: constraint %s has %d entries for %d controls", dynamo.ErrConfiguration, name, len(v), n)
		}
		return nil
	}

	switch c.Kind {
	case "", "none":
		return constraints.None{}, nil
	case "rectangle":
		if err := sized("min", c.Min); err != nil {
			return nil, err
		}
		if err := sized("max", c.Max); err != nil {
			return nil, err
		}
		set, err := constraints.NewRectangle(c.Min, c.Max)
		if err != nil {
			return nil, wrap(err)
		}
		return set, nil
	case "ball2":
		if err := sized("centre", c.Centre); err != nil {
			return nil, err
		}
		set, err := constraints.NewBall2(c.Centre, c.Radius)
		if err != nil {
			return nil, wrap(err)
		}
		return set, nil
	case "ballinf":
		if err := sized("centre", c.Centre); err != nil {
			return nil, err
		}
		set, err := constraints.NewBallInf(c.Centre, c.Radius)
		if err != nil {
			return nil, wrap(err)
		}
		return set, nil
	case "halfspace":
		if err := sized("normal", c.Normal); err != nil {
			return nil, err
		}
		set, err := constraints.NewHalfspace(c.Normal, c.Offset)
		if err != nil {
			return nil, wrap(err)
		}
		return set, nil
	case "cartesian":
		if len(c.Segments) == 0 {
			return nil, fmt.Errorf("%w: cartesian constraint needs segments", dynamo.ErrConfiguration)
		}
		ends := make([]int, len(c.Segments))
		sets := make([]constraints.Set, len(c.Segments))
		end := 0
		for i, seg := range c.Segments {
			if seg.Size <= 0 {
				return nil, fmt.Errorf("%w: cartesian segment %d needs a positive size", dynamo.ErrConfiguration, i)
			}
			sub, err := r.Constraint(seg, seg.Size)
			if err != nil {
				return nil, fmt.Errorf("cartesian segment %d: %w", i, err)
			}
			end += seg.Size
			ends[i] = end
			sets[i] = sub
		}
		if end != n {
			return nil, fmt.Errorf("%w: cartesian segments cover %d of %d controls", dynamo.ErrConfiguration, end, n)
		}
		set, err := constraints.NewCartesian(ends, sets)
		if err != nil {
			return nil, wrap(err)
		}
		return set, nil
	default:
		return nil, fmt.Errorf("%w: unknown constraint kind: %s", dynamo.ErrConfiguration, c.Kind)
	}
}

// Costs builds the quadratic stage and terminal costs enabled in c.
func Costs(c config.Cost, n int) (mpc.StateCost, mpc.TerminalCost) {
	q := mpc.NewQuadratic(
		config.Weights(c.StateWeights, n),
		config.Weights(c.ControlWeights, n),
		config.Weights(c.TerminalWeights, n),
	)
	var sc mpc.StateCost
	var tc mpc.TerminalCost
	if c.State {
		sc = q
	}
	if c.Terminal {
		tc = q
	}
	return sc, tc
}

// Resolver returns a task.Resolver that predicts with the named model.
func (r *Registry) Resolver(model string) task.Resolver {
	return task.ResolverFunc(func(cfg *config.Controller) (mpc.Params, error) {
		if err := cfg.Validate(); err != nil {
			return mpc.Params{}, err
		}
		n := cfg.Dim()
		dyn, err := r.GetModel(model, n)
		if err != nil {
			return mpc.Params{}, err
		}
		integ, err := r.GetIntegrator(cfg.Integrator)
		if err != nil {
			return mpc.Params{}, err
		}
		set, err := r.Constraint(cfg.Constraint, n)
		if err != nil {
			return mpc.Params{}, err
		}
		sc, tc := Costs(cfg.Cost, n)
		return mpc.Params{
			Setpoint:      cfg.Setpoint,
			OutputLimits:  cfg.Limits(),
			SamplePeriod:  cfg.SamplePeriod,
			Dynamics:      dyn,
			StateCost:     sc,
			TerminalCost:  tc,
			Constraint:    set,
			Tolerance:     cfg.Tolerance,
			MaxIterations: cfg.MaxIterations,
			Horizon:       cfg.Horizon,
			Substeps:      cfg.Substeps,
			Blocks:        cfg.Blocks,
			Integrator:    integ,
		}, nil
	})
}

// DefaultMetrics are the harness metrics recorded for every run.
func (r *Registry) DefaultMetrics(cfg *config.Config, plant dynamo.System) []dynamo.Metric {
	setpoint := dynamo.State(cfg.Controller.Setpoint)
	ms := []dynamo.Metric{
		metrics.NewControlEffort(),
		metrics.NewTrackingError(setpoint),
		metrics.NewSaturation(cfg.Controller.Limits()),
		metrics.NewSettling(setpoint, 0.05),
	}
	if e, ok := plant.(metrics.Energetic); ok {
		ms = append(ms, metrics.NewEnergy(e))
	}
	return ms
}
