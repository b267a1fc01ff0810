package mpc

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/diff/fd"

	"github.com/san-kum/nmpc/internal/constraints"
	"github.com/san-kum/nmpc/internal/dynamo"
	"github.com/san-kum/nmpc/internal/integrators"
	"github.com/san-kum/nmpc/internal/solver"
)

const (
	DefaultHorizon  = 10
	DefaultSubsteps = 4
	DefaultBlocks   = 1

	maxElapsed = time.Duration(math.MaxInt64)
)

// Observer receives one callback per tick: ObserveSolve after a solve,
// ObserveHold when the gate returned the held output.
type Observer interface {
	ObserveSolve(st solver.Status)
	ObserveHold()
}

// Params is the static controller configuration. Everything in it is
// supplied again on reconstruction and is never persisted.
type Params struct {
	Setpoint     dynamo.State
	OutputLimits dynamo.Limits
	SamplePeriod time.Duration

	Dynamics     dynamo.System
	StateCost    StateCost
	TerminalCost TerminalCost
	// Constraint defaults to constraints.None.
	Constraint constraints.Set

	Tolerance     float64
	MaxIterations int

	Horizon  int
	Substeps int
	Blocks   int
	// Integrator defaults to RK4.
	Integrator dynamo.Integrator

	Logger   *zap.SugaredLogger
	Observer Observer
}

func (p *Params) validate() error {
	if p.StateCost == nil && p.TerminalCost == nil {
		return fmt.Errorf("%w: controller needs a state or terminal cost", dynamo.ErrConfiguration)
	}
	n := len(p.Setpoint)
	if n == 0 {
		return fmt.Errorf("%w: empty setpoint", dynamo.ErrConfiguration)
	}
	if !p.Setpoint.IsValid() {
		return fmt.Errorf("%w: setpoint is not finite", dynamo.ErrConfiguration)
	}
	if len(p.OutputLimits) != n {
		return fmt.Errorf("%w: %d output limits for %d axes", dynamo.ErrConfiguration, len(p.OutputLimits), n)
	}
	if err := p.OutputLimits.Validate(); err != nil {
		return err
	}
	if p.SamplePeriod <= 0 {
		return fmt.Errorf("%w: sample period must be positive, got %v", dynamo.ErrConfiguration, p.SamplePeriod)
	}
	if p.Dynamics == nil {
		return fmt.Errorf("%w: controller needs dynamics", dynamo.ErrConfiguration)
	}
	if p.Dynamics.StateDim() != n || p.Dynamics.ControlDim() != n {
		return fmt.Errorf("%w: dynamics is %dx%d, setpoint has %d axes",
			dynamo.ErrConfiguration, p.Dynamics.StateDim(), p.Dynamics.ControlDim(), n)
	}
	if d := p.Dynamics.Derive(p.Setpoint.Clone(), make(dynamo.Control, n), 0); len(d) != n {
		return fmt.Errorf("%w: dynamics returned %d derivatives for %d states", dynamo.ErrConfiguration, len(d), n)
	}
	if !(p.Tolerance > 0) || math.IsInf(p.Tolerance, 0) {
		return fmt.Errorf("%w: tolerance must be positive, got %g", dynamo.ErrConfiguration, p.Tolerance)
	}
	if p.MaxIterations < 0 || p.Horizon < 0 || p.Substeps < 0 || p.Blocks < 0 {
		return fmt.Errorf("%w: negative iteration, horizon, substep or block count", dynamo.ErrConfiguration)
	}
	return nil
}

func (p *Params) defaults() {
	if p.Horizon == 0 {
		p.Horizon = DefaultHorizon
	}
	if p.Substeps == 0 {
		p.Substeps = DefaultSubsteps
	}
	if p.Blocks == 0 {
		p.Blocks = DefaultBlocks
	}
	if p.Blocks > p.Horizon {
		p.Blocks = p.Horizon
	}
	if p.MaxIterations == 0 {
		p.MaxIterations = solver.DefaultMaxIterations
	}
	if p.Integrator == nil {
		p.Integrator = integrators.NewRK4()
	}
	if p.Constraint == nil {
		p.Constraint = constraints.None{}
	}
	if p.Logger == nil {
		p.Logger = zap.NewNop().Sugar()
	}
}

// Controller is the rate-gated NMPC loop. Next only re-solves once the
// accumulated dt reaches the sample period and holds the last output
// otherwise.
type Controller struct {
	n            int
	setpoint     dynamo.State
	limits       dynamo.Limits
	samplePeriod time.Duration

	problem *Problem
	cache   *solver.Cache

	errVec     dynamo.State
	elapsed    time.Duration
	lastOutput dynamo.Control
	status     solver.Status

	observer Observer
	log      *zap.SugaredLogger
}

// New validates p and builds a controller with a cold solver cache and an
// empty last output.
func New(p Params) (*Controller, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	p.defaults()

	n := len(p.Setpoint)
	setpoint := p.Setpoint.Clone()
	limits := append(dynamo.Limits(nil), p.OutputLimits...)

	prob := &Problem{
		dyn:          p.Dynamics,
		integ:        p.Integrator,
		stateCost:    p.StateCost,
		terminalCost: p.TerminalCost,
		constraint:   p.Constraint,
		limits:       limits,
		setpoint:     setpoint,
		n:            n,
		horizon:      p.Horizon,
		substeps:     p.Substeps,
		blocks:       p.Blocks,
		step:         p.SamplePeriod.Seconds(),
		x0:           make(dynamo.State, n),
		err:          make(dynamo.State, n),
		fd:           &fd.Settings{Formula: fd.Central},
	}

	c := &Controller{
		n:            n,
		setpoint:     setpoint,
		limits:       limits,
		samplePeriod: p.SamplePeriod,
		problem:      prob,
		cache:        solver.NewCache(prob.Dim(), p.Tolerance, p.MaxIterations),
		errVec:       make(dynamo.State, n),
		observer:     p.Observer,
		log:          p.Logger,
	}
	c.log.Infow("controller configured",
		"axes", n,
		"samplePeriod", p.SamplePeriod,
		"horizon", p.Horizon,
		"substeps", p.Substeps,
		"blocks", p.Blocks,
		"tolerance", p.Tolerance,
		"maxIterations", p.MaxIterations,
	)
	return c, nil
}

func (c *Controller) Dim() int                    { return c.n }
func (c *Controller) SamplePeriod() time.Duration { return c.samplePeriod }
func (c *Controller) Elapsed() time.Duration      { return c.elapsed }
func (c *Controller) Status() solver.Status       { return c.status }
func (c *Controller) Setpoint() dynamo.State      { return c.setpoint.Clone() }
func (c *Controller) Limits() dynamo.Limits       { return append(dynamo.Limits(nil), c.limits...) }
func (c *Controller) Problem() *Problem           { return c.problem }

// Error returns a copy of the tracking error from the most recent update.
func (c *Controller) Error() dynamo.State { return c.errVec.Clone() }

// LastOutput returns a copy of the held output, nil before the first solve.
func (c *Controller) LastOutput() dynamo.Control { return c.lastOutput.Clone() }

// Reset discards the warm start and the tracking error. The accumulator and
// the held output are left as they are; SeedMeasurement forces the next
// solve.
func (c *Controller) Reset() {
	c.cache.Reset()
	for i := range c.errVec {
		c.errVec[i] = 0
	}
	c.status = solver.Status{}
}

// SeedMeasurement records the tracking error for m and pre-loads the
// accumulator so the next call to Next solves regardless of its dt.
func (c *Controller) SeedMeasurement(m dynamo.State) error {
	if err := c.checkMeasurement(m); err != nil {
		return err
	}
	c.updateError(m)
	c.elapsed = c.samplePeriod
	return nil
}

// Next advances the accumulator by dt (negative values count as zero). Below
// one sample period it returns the held output; otherwise it re-solves from
// m, clamps the result to the output limits and resets the accumulator. A
// measurement of the wrong length or with non-finite entries aborts the tick
// with the accumulator, error and held output untouched. The accumulator
// saturates instead of overflowing.
func (c *Controller) Next(m dynamo.State, dt time.Duration) (dynamo.Control, error) {
	if err := c.checkMeasurement(m); err != nil {
		return c.lastOutput.Clone(), err
	}
	if dt > 0 {
		if dt > maxElapsed-c.elapsed {
			c.elapsed = maxElapsed
		} else {
			c.elapsed += dt
		}
	}
	if c.elapsed < c.samplePeriod {
		if c.observer != nil {
			c.observer.ObserveHold()
		}
		return c.lastOutput.Clone(), nil
	}

	c.updateError(m)
	out, err := c.solve(m)
	if err != nil {
		return c.lastOutput.Clone(), err
	}
	c.lastOutput = out
	c.elapsed = 0
	return out.Clone(), nil
}

func (c *Controller) checkMeasurement(m dynamo.State) error {
	if err := dynamo.CheckDim("measurement", m, c.n); err != nil {
		return err
	}
	if !m.IsValid() {
		return fmt.Errorf("%w: measurement %v", dynamo.ErrInvalidState, []float64(m))
	}
	return nil
}

func (c *Controller) updateError(m dynamo.State) {
	for i := range c.errVec {
		c.errVec[i] = c.setpoint[i] - m[i]
	}
}

func (c *Controller) solve(m dynamo.State) (dynamo.Control, error) {
	c.problem.SetInitialState(m)
	c.cache.Shift(c.n)

	st, err := solver.Solve(c.problem, c.cache)
	if err != nil {
		return nil, err
	}
	c.status = st
	if c.observer != nil {
		c.observer.ObserveSolve(st)
	}
	if !st.Converged {
		c.log.Debugw("solve hit iteration cap", "status", st.String())
	}

	iterate := c.cache.Iterate()
	out := make(dynamo.Control, c.n)
	copy(out, iterate[:c.n])
	c.limits.ClampInPlace(out)
	return out, nil
}
