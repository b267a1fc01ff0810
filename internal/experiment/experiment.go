package experiment

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/san-kum/nmpc/internal/config"
	"github.com/san-kum/nmpc/internal/dynamo"
	"github.com/san-kum/nmpc/internal/metrics"
	"github.com/san-kum/nmpc/internal/payload"
	"github.com/san-kum/nmpc/internal/sim"
	"github.com/san-kum/nmpc/internal/solver"
	"github.com/san-kum/nmpc/internal/task"
)

// controlTask is a task viewed through the simulator, independent of its
// payload type.
type controlTask interface {
	sim.Controller
	Freeze() ([]byte, error)
	Thaw(data []byte) error
	Start()
	Stop()
	Status() solver.Status
}

// taskController feeds simulated plant states to a task as payloads of
// type I.
type taskController[I any] struct {
	*task.Task[I]
	sense    func(dynamo.State) I
	observer *metrics.SolveObserver
}

func (c *taskController[I]) Compute(meas dynamo.State, dt time.Duration) (dynamo.Control, error) {
	in := c.sense(meas)
	start := time.Now()
	out, err := c.Process(&in, dt)
	if c.observer != nil {
		c.observer.ObserveTick(time.Since(start))
	}
	return dynamo.Control(out.Values), err
}

// Checkpoint is a paused run: the plant state, clock and noise stream
// position plus the frozen controller.
type Checkpoint struct {
	Time       float64
	State      []float64
	NoiseDraws int
	Controller []byte
}

type Option func(*Experiment)

func WithLogger(l *zap.SugaredLogger) Option {
	return func(e *Experiment) { e.log = l }
}

func WithTelemetry(t *metrics.Telemetry) Option {
	return func(e *Experiment) { e.telemetry = t }
}

type Experiment struct {
	cfg       *config.Config
	reg       *Registry
	task      controlTask
	simulator *sim.Simulator
	log       *zap.SugaredLogger
	telemetry *metrics.Telemetry
}

// New wires the plant, the controller task and the harness metrics for cfg.
func New(cfg *config.Config, reg *Registry, opts ...Option) (*Experiment, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: experiment needs a config", dynamo.ErrConfiguration)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Experiment{cfg: cfg, reg: reg, log: zap.NewNop().Sugar()}
	for _, opt := range opts {
		opt(e)
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

	var obs *metrics.SolveObserver
	taskOpts := []task.Option{task.WithLogger(e.log.With("model", cfg.Model))}
	if e.telemetry != nil {
		obs = e.telemetry.Observer(cfg.Model)
		taskOpts = append(taskOpts, task.WithObserver(obs))
	}

	resolver := reg.Resolver(cfg.Model)
	if cfg.Model == "attitude" {
		t, err := task.New[payload.IMU](&cfg.Controller, resolver, task.ConverterFunc[payload.IMU](payload.BodyRates), taskOpts...)
		if err != nil {
			return nil, err
		}
		e.task = &taskController[payload.IMU]{Task: t, sense: gyro, observer: obs}
	} else {
		t, err := task.New[payload.Vector](&cfg.Controller, resolver, task.ConverterFunc[payload.Vector](payload.Identity), taskOpts...)
		if err != nil {
			return nil, err
		}
		e.task = &taskController[payload.Vector]{Task: t, sense: vector, observer: obs}
	}

	e.simulator = sim.New(plant, integ, e.task)
	if obs != nil {
		e.simulator.AddObserver(obs)
	}
	for _, m := range reg.DefaultMetrics(cfg, plant) {
		e.simulator.AddMetric(m)
	}
	return e, nil
}

func gyro(x dynamo.State) payload.IMU {
	return payload.IMU{Gyro: [3]float64{x[0], x[1], x[2]}}
}

func vector(x dynamo.State) payload.Vector {
	return payload.Vector(x)
}

func (e *Experiment) simConfig(start, duration float64, noiseOffset int) sim.Config {
	return sim.Config{
		Dt:            e.cfg.Dt,
		Duration:      duration,
		StartTime:     start,
		Noise:         e.cfg.Noise,
		Seed:          e.cfg.Seed,
		ValidateState: true,
		NoiseOffset:   noiseOffset,
	}
}

// Run simulates the configured duration from the configured initial state.
func (e *Experiment) Run(ctx context.Context) (*sim.Result, error) {
	e.task.Start()
	defer e.task.Stop()
	return e.run(ctx, e.cfg.GetInitState(), e.simConfig(0, e.cfg.Duration, 0))
}

// RunFor simulates duration seconds from the initial state and returns the
// result with a checkpoint of the end of the run. The controller is not
// stopped, so the checkpoint carries its warm start.
func (e *Experiment) RunFor(ctx context.Context, duration float64) (*sim.Result, *Checkpoint, error) {
	e.task.Start()
	res, err := e.run(ctx, e.cfg.GetInitState(), e.simConfig(0, duration, 0))
	if err != nil {
		return res, nil, err
	}
	cp, err := e.checkpoint(res)
	return res, cp, err
}

// Resume restores the controller from cp and simulates the rest of the
// configured duration.
func (e *Experiment) Resume(ctx context.Context, cp *Checkpoint) (*sim.Result, error) {
	if err := e.task.Thaw(cp.Controller); err != nil {
		return nil, err
	}
	remaining := e.cfg.Duration - cp.Time
	if remaining <= 0 {
		return nil, fmt.Errorf("%w: checkpoint at t=%.3f is past the run duration %.3f", dynamo.ErrConfiguration, cp.Time, e.cfg.Duration)
	}
	e.task.Start()
	defer e.task.Stop()
	return e.run(ctx, dynamo.State(cp.State), e.simConfig(cp.Time, remaining, cp.NoiseDraws))
}

func (e *Experiment) run(ctx context.Context, x0 dynamo.State, cfg sim.Config) (*sim.Result, error) {
	res, err := e.simulator.Run(ctx, x0, cfg)
	if err != nil {
		return res, err
	}
	e.log.Infow("run finished",
		"model", e.cfg.Model,
		"steps", res.StepsTaken,
		"tickErrors", len(res.Errors),
		"solveTime", res.SolveTime,
		"lastStatus", e.task.Status().String(),
	)
	return res, nil
}

func (e *Experiment) checkpoint(res *sim.Result) (*Checkpoint, error) {
	blob, err := e.task.Freeze()
	if err != nil {
		return nil, err
	}
	return &Checkpoint{
		Time:       res.Times[len(res.Times)-1],
		State:      res.Final().Clone(),
		NoiseDraws: res.NoiseDraws,
		Controller: blob,
	}, nil
}

// Ensemble runs cfg under numRuns noise seeds in parallel, each with its
// own experiment.
func Ensemble(ctx context.Context, cfg *config.Config, reg *Registry, numRuns int) ([]*sim.Result, error) {
	build := func() (*sim.Simulator, error) {
		e, err := New(cfg, reg)
		if err != nil {
			return nil, err
		}
		e.task.Start()
		return e.simulator, nil
	}
	return sim.NewEnsemble(build, numRuns, cfg.Seed).Run(ctx, cfg.GetInitState(), sim.Config{
		Dt:            cfg.Dt,
		Duration:      cfg.Duration,
		Noise:         cfg.Noise,
		ValidateState: true,
	})
}
