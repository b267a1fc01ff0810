package sim

import (
	"time"

	"github.com/san-kum/nmpc/internal/dynamo"
)

// Controller computes the plant input from a measurement and the time since
// the previous call. An empty control means "no output" and is applied as
// zero. Errors are recorded per tick and do not stop the run.
type Controller interface {
	Compute(meas dynamo.State, dt time.Duration) (dynamo.Control, error)
}

type ControllerFunc func(meas dynamo.State, dt time.Duration) (dynamo.Control, error)

func (f ControllerFunc) Compute(meas dynamo.State, dt time.Duration) (dynamo.Control, error) {
	return f(meas, dt)
}

type Config struct {
	Dt       float64
	Duration float64
	// StartTime offsets the clock of a resumed run.
	StartTime float64
	// Noise is the standard deviation of Gaussian measurement noise.
	Noise         float64
	Seed          int64
	ValidateState bool
	// NoiseOffset skips that many noise draws so a resumed run continues
	// the stream of the run it was checkpointed from.
	NoiseOffset int
}

type Result struct {
	States     []dynamo.State
	Controls   []dynamo.Control
	Times      []float64
	Metrics    map[string]float64
	Errors     []error
	StepsTaken int
	// SolveTime is the wall time spent inside the controller.
	SolveTime time.Duration
	// NoiseDraws is the noise stream position at the end of the run,
	// NoiseOffset included.
	NoiseDraws int
}

// Final returns the last recorded plant state.
func (r *Result) Final() dynamo.State {
	if len(r.States) == 0 {
		return nil
	}
	return r.States[len(r.States)-1]
}
