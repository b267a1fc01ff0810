package sim

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/san-kum/nmpc/internal/dynamo"
)

// Simulator closes the loop between a plant model and a Controller. The
// plant is integrated with a fixed step; the controller sees the plant
// state plus optional measurement noise.
type Simulator struct {
	dyn        dynamo.System
	integrator dynamo.Integrator
	controller Controller
	metrics    []dynamo.Metric
	observers  []dynamo.Observer
}

func New(dyn dynamo.System, integrator dynamo.Integrator, controller Controller) *Simulator {
	return &Simulator{
		dyn:        dyn,
		integrator: integrator,
		controller: controller,
		metrics:    make([]dynamo.Metric, 0),
		observers:  make([]dynamo.Observer, 0),
	}
}

func (s *Simulator) AddMetric(m dynamo.Metric)     { s.metrics = append(s.metrics, m) }
func (s *Simulator) AddObserver(o dynamo.Observer) { s.observers = append(s.observers, o) }

func (s *Simulator) Run(ctx context.Context, x0 dynamo.State, cfg Config) (*Result, error) {
	if err := s.validateConfig(x0, cfg); err != nil {
		return nil, err
	}

	steps := int(cfg.Duration/cfg.Dt + 1e-9)
	result := &Result{
		States:   make([]dynamo.State, 0, steps+1),
		Controls: make([]dynamo.Control, 0, steps),
		Times:    make([]float64, 0, steps+1),
		Metrics:  make(map[string]float64),
		Errors:   make([]error, 0),
	}

	for _, m := range s.metrics {
		m.Reset()
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	for k := 0; k < cfg.NoiseOffset; k++ {
		rng.NormFloat64()
	}
	result.NoiseDraws = cfg.NoiseOffset
	pool := NewStatePool(len(x0))
	tick := time.Duration(cfg.Dt * float64(time.Second))

	x := x0.Clone()
	t := cfg.StartTime

	result.States = append(result.States, x.Clone())
	result.Times = append(result.Times, t)

	for i := 0; i < steps; i++ {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		meas := pool.GetAndCopy(x)
		if cfg.Noise > 0 {
			for j := range meas {
				meas[j] += cfg.Noise * rng.NormFloat64()
			}
			result.NoiseDraws += len(meas)
		}

		start := time.Now()
		u, err := s.controller.Compute(meas, tick)
		result.SolveTime += time.Since(start)
		pool.Put(meas)
		if err != nil {
			result.Errors = append(result.Errors, dynamo.SimError{Time: t, Step: i, Message: err.Error()})
		}
		if len(u) == 0 {
			u = make(dynamo.Control, s.dyn.ControlDim())
		}

		for _, m := range s.metrics {
			m.Observe(x, u, t)
		}
		for _, obs := range s.observers {
			obs.OnStep(x, u, t)
		}

		newX := s.integrator.Step(s.dyn, x, u, t, cfg.Dt)
		if cfg.ValidateState && !newX.IsValid() {
			result.Errors = append(result.Errors, dynamo.SimError{Time: t, Step: i, Message: "invalid state (NaN/Inf)"})
			break
		}

		x = newX
		t += cfg.Dt
		result.StepsTaken++

		result.States = append(result.States, x.Clone())
		result.Controls = append(result.Controls, u.Clone())
		result.Times = append(result.Times, t)
	}

	for _, m := range s.metrics {
		result.Metrics[m.Name()] = m.Value()
	}

	return result, nil
}

func (s *Simulator) validateConfig(x0 dynamo.State, cfg Config) error {
	if cfg.Dt <= 0 {
		return fmt.Errorf("%w: dt must be positive, got %f", dynamo.ErrConfiguration, cfg.Dt)
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("%w: duration must be positive, got %f", dynamo.ErrConfiguration, cfg.Duration)
	}
	if cfg.Noise < 0 || cfg.NoiseOffset < 0 {
		return fmt.Errorf("%w: noise and noise offset must not be negative", dynamo.ErrConfiguration)
	}
	if err := dynamo.CheckDim("initial state", x0, s.dyn.StateDim()); err != nil {
		return err
	}
	return nil
}
