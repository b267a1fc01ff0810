package metrics

import (
	"io"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/san-kum/nmpc/internal/dynamo"
	"github.com/san-kum/nmpc/internal/solver"
)

// Telemetry holds the controller's prometheus collectors, labelled by model.
type Telemetry struct {
	solves       *prometheus.CounterVec
	nonConverged *prometheus.CounterVec
	held         *prometheus.CounterVec
	iterations   *prometheus.HistogramVec
	residual     *prometheus.HistogramVec
	solveSeconds *prometheus.HistogramVec
	plantState   *prometheus.GaugeVec
	output       *prometheus.GaugeVec
	simTime      *prometheus.GaugeVec
}

func NewTelemetry(registry prometheus.Registerer) *Telemetry {
	t := &Telemetry{
		solves: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nmpc_solves_total",
				Help: "Total number of controller solves",
			},
			[]string{"model"},
		),
		nonConverged: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nmpc_nonconverged_total",
				Help: "Solves that stopped at the iteration cap",
			},
			[]string{"model"},
		),
		held: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nmpc_held_ticks_total",
				Help: "Ticks answered with the held output",
			},
			[]string{"model"},
		),
		iterations: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nmpc_solver_iterations",
				Help:    "Solver iterations per solve",
				Buckets: prometheus.LinearBuckets(1, 2, 12),
			},
			[]string{"model"},
		),
		residual: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nmpc_solver_residual",
				Help:    "Fixed-point residual at the returned iterate",
				Buckets: prometheus.ExponentialBuckets(1e-8, 10, 10),
			},
			[]string{"model"},
		),
		solveSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nmpc_tick_seconds",
				Help:    "Wall time per controller tick",
				Buckets: prometheus.ExponentialBuckets(1e-6, 4, 10),
			},
			[]string{"model"},
		),
		plantState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "nmpc_plant_state",
				Help: "Latest simulated plant state per axis",
			},
			[]string{"model", "axis"},
		),
		output: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "nmpc_control_output",
				Help: "Latest applied control per axis",
			},
			[]string{"model", "axis"},
		),
		simTime: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "nmpc_sim_time_seconds",
				Help: "Simulated time of the latest step",
			},
			[]string{"model"},
		),
	}

	registry.MustRegister(t.solves)
	registry.MustRegister(t.nonConverged)
	registry.MustRegister(t.held)
	registry.MustRegister(t.iterations)
	registry.MustRegister(t.residual)
	registry.MustRegister(t.solveSeconds)
	registry.MustRegister(t.plantState)
	registry.MustRegister(t.output)
	registry.MustRegister(t.simTime)
	return t
}

// Observer returns an mpc.Observer recording under the given model label. It
// also implements dynamo.Observer for the plant side of the loop.
func (t *Telemetry) Observer(model string) *SolveObserver {
	labels := prometheus.Labels{"model": model}
	return &SolveObserver{
		solves:       t.solves.With(labels),
		nonConverged: t.nonConverged.With(labels),
		held:         t.held.With(labels),
		iterations:   t.iterations.With(labels),
		residual:     t.residual.With(labels),
		tickSeconds:  t.solveSeconds.With(labels),
		plantState:   t.plantState.MustCurryWith(labels),
		output:       t.output.MustCurryWith(labels),
		simTime:      t.simTime.With(labels),
	}
}

// SolveObserver is the per-model view of Telemetry.
type SolveObserver struct {
	solves       prometheus.Counter
	nonConverged prometheus.Counter
	held         prometheus.Counter
	iterations   prometheus.Observer
	residual     prometheus.Observer
	tickSeconds  prometheus.Observer
	plantState   *prometheus.GaugeVec
	output       *prometheus.GaugeVec
	simTime      prometheus.Gauge
}

func (o *SolveObserver) ObserveSolve(st solver.Status) {
	o.solves.Inc()
	if !st.Converged {
		o.nonConverged.Inc()
	}
	o.iterations.Observe(float64(st.Iterations))
	o.residual.Observe(st.Residual)
}

func (o *SolveObserver) ObserveHold() { o.held.Inc() }

// ObserveTick records the host-measured wall time of one tick.
func (o *SolveObserver) ObserveTick(d time.Duration) {
	o.tickSeconds.Observe(d.Seconds())
}

// OnStep publishes the plant state and the control applied at time t.
func (o *SolveObserver) OnStep(x dynamo.State, u dynamo.Control, t float64) {
	for i, v := range x {
		o.plantState.WithLabelValues(strconv.Itoa(i)).Set(v)
	}
	for i, v := range u {
		o.output.WithLabelValues(strconv.Itoa(i)).Set(v)
	}
	o.simTime.Set(t)
}

// WriteText writes every metric family gathered from g in the prometheus
// text exposition format.
func WriteText(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
