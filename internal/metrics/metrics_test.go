package metrics

import (
	"bytes"
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/san-kum/nmpc/internal/dynamo"
	"github.com/san-kum/nmpc/internal/solver"
)

func TestControlEffort(t *testing.T) {
	m := NewControlEffort()
	m.Observe(nil, dynamo.Control{3, 4}, 0)
	m.Observe(nil, dynamo.Control{0, 1}, 0.1)

	if math.Abs(m.Value()-3) > 1e-12 {
		t.Errorf("expected mean norm 3, got %f", m.Value())
	}
	if m.Peak() != 5 {
		t.Errorf("expected peak 5, got %f", m.Peak())
	}

	m.Reset()
	if m.Value() != 0 || m.Peak() != 0 {
		t.Error("expected zero after reset")
	}
}

func TestTrackingError(t *testing.T) {
	m := NewTrackingError(dynamo.State{1, 0})
	m.Observe(dynamo.State{0, 0}, nil, 0)   // error 1
	m.Observe(dynamo.State{0.5, 1}, nil, 2) // error 1.5
	m.Observe(dynamo.State{1, 0}, nil, 3)

	if math.Abs(m.Value()-(1*2+1.5*1)) > 1e-12 {
		t.Errorf("expected IAE 3.5, got %f", m.Value())
	}
	m.Reset()
	if m.Value() != 0 {
		t.Error("expected zero after reset")
	}
}

func TestSettling(t *testing.T) {
	m := NewSettling(dynamo.State{1}, 0.1)
	for i, x := range []float64{0, 0.95, 0.5, 0.92, 1.0, 1.05} {
		m.Observe(dynamo.State{x}, nil, float64(i))
	}
	if math.Abs(m.Value()-4.0/6) > 1e-12 {
		t.Errorf("expected ratio 4/6, got %f", m.Value())
	}
	if m.SettleTime() != 3 {
		t.Errorf("expected settle time 3, got %f", m.SettleTime())
	}

	m.Observe(dynamo.State{2}, nil, 6)
	if m.SettleTime() != -1 {
		t.Errorf("expected -1 after leaving the band, got %f", m.SettleTime())
	}
}

func TestSaturation(t *testing.T) {
	m := NewSaturation(dynamo.Limits{{Low: -1, High: 1}, {Low: 0, High: 2}})
	m.Observe(nil, dynamo.Control{1, 1}, 0)
	m.Observe(nil, dynamo.Control{0.2, 0}, 0)

	if m.Value() != 0.5 {
		t.Errorf("expected 0.5, got %f", m.Value())
	}
}

type spinner struct{}

func (spinner) Energy(x dynamo.State) float64 { return 0.5 * x[0] * x[0] }

func TestEnergy(t *testing.T) {
	m := NewEnergy(spinner{})
	m.Observe(dynamo.State{2}, nil, 0)
	m.Observe(dynamo.State{1}, nil, 1)

	if m.Value() != 0.5 {
		t.Errorf("expected last energy 0.5, got %f", m.Value())
	}
	if m.Peak() != 2 {
		t.Errorf("expected peak 2, got %f", m.Peak())
	}
	m.Reset()
	if m.Value() != 0 {
		t.Error("expected zero energy after reset")
	}
}

func TestTelemetry(t *testing.T) {
	reg := prometheus.NewRegistry()
	tel := NewTelemetry(reg)
	obs := tel.Observer("lag")

	obs.ObserveSolve(solver.Status{Iterations: 3, Residual: 1e-4, Converged: true})
	obs.ObserveSolve(solver.Status{Iterations: 20, Residual: 0.5})
	obs.ObserveHold()
	obs.ObserveTick(2 * time.Millisecond)

	if got := testutil.ToFloat64(tel.solves.WithLabelValues("lag")); got != 2 {
		t.Errorf("expected 2 solves, got %f", got)
	}
	if got := testutil.ToFloat64(tel.nonConverged.WithLabelValues("lag")); got != 1 {
		t.Errorf("expected 1 capped solve, got %f", got)
	}
	if got := testutil.ToFloat64(tel.held.WithLabelValues("lag")); got != 1 {
		t.Errorf("expected 1 held tick, got %f", got)
	}

	var buf bytes.Buffer
	if err := WriteText(&buf, reg); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"nmpc_solves_total", "nmpc_solver_iterations", "nmpc_tick_seconds"} {
		if !bytes.Contains(buf.Bytes(), []byte(name)) {
			t.Errorf("expected %s in exposition", name)
		}
	}
}

func TestTelemetryOnStep(t *testing.T) {
	reg := prometheus.NewRegistry()
	tel := NewTelemetry(reg)
	obs := tel.Observer("pendulum")

	obs.OnStep(dynamo.State{0.1, -0.2}, dynamo.Control{0.5, 1}, 0.25)
	obs.OnStep(dynamo.State{0.3, 0.4}, dynamo.Control{-0.5, 2}, 0.5)

	if got := testutil.ToFloat64(tel.plantState.WithLabelValues("pendulum", "1")); got != 0.4 {
		t.Errorf("expected latest state 0.4, got %f", got)
	}
	if got := testutil.ToFloat64(tel.output.WithLabelValues("pendulum", "0")); got != -0.5 {
		t.Errorf("expected latest control -0.5, got %f", got)
	}
	if got := testutil.ToFloat64(tel.simTime.WithLabelValues("pendulum")); got != 0.5 {
		t.Errorf("expected sim time 0.5, got %f", got)
	}
}
