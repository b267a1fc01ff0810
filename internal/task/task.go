// Package task adapts a measurement payload type to an mpc.Controller and
// gives the host its lifecycle and checkpoint hooks.
package task

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/san-kum/nmpc/internal/config"
	"github.com/san-kum/nmpc/internal/dynamo"
	"github.com/san-kum/nmpc/internal/mpc"
	"github.com/san-kum/nmpc/internal/solver"
)

// Converter turns a payload into a state vector. It must be deterministic
// and total; a result of the wrong length is reported as a dimension
// mismatch, not a panic.
type Converter[I any] interface {
	Convert(in I) dynamo.State
}

type ConverterFunc[I any] func(in I) dynamo.State

func (f ConverterFunc[I]) Convert(in I) dynamo.State { return f(in) }

// Resolver turns the static controller configuration into controller
// parameters, supplying the dynamics and cost objects by name.
type Resolver interface {
	Params(cfg *config.Controller) (mpc.Params, error)
}

type ResolverFunc func(cfg *config.Controller) (mpc.Params, error)

func (f ResolverFunc) Params(cfg *config.Controller) (mpc.Params, error) { return f(cfg) }

// Output is the control payload. Values is empty when the tick carried no
// measurement.
type Output struct {
	Values []float64
}

func (o Output) Empty() bool { return len(o.Values) == 0 }

type options struct {
	logger   *zap.SugaredLogger
	observer mpc.Observer
}

type Option func(*options)

func WithLogger(l *zap.SugaredLogger) Option {
	return func(o *options) { o.logger = l }
}

func WithObserver(obs mpc.Observer) Option {
	return func(o *options) { o.observer = obs }
}

// Task owns one controller. Not safe for concurrent use.
type Task[I any] struct {
	ctrl     *mpc.Controller
	conv     Converter[I]
	firstRun bool
	log      *zap.SugaredLogger
}

// New builds the controller described by cfg. A nil cfg, a nil converter
// or a configuration the resolver or controller rejects fails with
// dynamo.ErrConfiguration.
func New[I any](cfg *config.Controller, res Resolver, conv Converter[I], opts ...Option) (*Task[I], error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: task needs a config", dynamo.ErrConfiguration)
	}
	if res == nil || conv == nil {
		return nil, fmt.Errorf("%w: task needs a resolver and a converter", dynamo.ErrConfiguration)
	}
	o := options{logger: zap.NewNop().Sugar()}
	for _, opt := range opts {
		opt(&o)
	}

	params, err := res.Params(cfg)
	if err != nil {
		return nil, err
	}
	params.Logger = o.logger
	params.Observer = o.observer

	ctrl, err := mpc.New(params)
	if err != nil {
		return nil, err
	}
	return &Task[I]{ctrl: ctrl, conv: conv, firstRun: true, log: o.logger}, nil
}

func (t *Task[I]) Controller() *mpc.Controller { return t.ctrl }
func (t *Task[I]) Status() solver.Status       { return t.ctrl.Status() }

// FirstRun reports whether the next measurement will seed the controller.
func (t *Task[I]) FirstRun() bool { return t.firstRun }

func (t *Task[I]) Start() {
	t.log.Infow("task started", "axes", t.ctrl.Dim(), "samplePeriod", t.ctrl.SamplePeriod())
}

// Stop resets the controller; the next measurement seeds it again.
func (t *Task[I]) Stop() {
	t.ctrl.Reset()
	t.firstRun = true
	t.log.Infow("task stopped")
}

// Process runs one tick. A nil measurement yields an empty output without
// touching the controller. On error the returned output holds the last
// control.
func (t *Task[I]) Process(in *I, dt time.Duration) (Output, error) {
	if in == nil {
		return Output{}, nil
	}
	x := t.conv.Convert(*in)

	if t.firstRun {
		if err := t.ctrl.SeedMeasurement(x); err != nil {
			t.log.Warnw("measurement rejected", "error", err)
			return Output{Values: t.ctrl.LastOutput()}, err
		}
		t.firstRun = false
	}

	u, err := t.ctrl.Next(x, dt)
	if err != nil {
		t.log.Warnw("measurement rejected", "error", err)
		return Output{Values: u}, err
	}
	return Output{Values: u}, nil
}
