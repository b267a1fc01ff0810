package optim

import (
	"fmt"
	"time"

	"github.com/san-kum/nmpc/internal/config"
)

// Tunable parameters accepted by Apply.
const (
	StateWeight    = "state_weight"
	ControlWeight  = "control_weight"
	TerminalWeight = "terminal_weight"
	Horizon        = "horizon"
	SamplePeriodMs = "sample_period_ms"
)

// Apply returns a copy of base with params applied. Weight parameters set
// every axis of the corresponding weight vector; a positive terminal weight
// also switches the terminal cost on.
func Apply(base *config.Config, params map[string]float64) (*config.Config, error) {
	cfg := base.Clone()
	ctrl := &cfg.Controller
	n := ctrl.Dim()
	fill := func(v float64) []float64 {
		w := make([]float64, n)
		for i := range w {
			w[i] = v
		}
		return w
	}

	for name, v := range params {
		switch name {
		case StateWeight:
			ctrl.Cost.StateWeights = fill(v)
		case ControlWeight:
			ctrl.Cost.ControlWeights = fill(v)
		case TerminalWeight:
			ctrl.Cost.TerminalWeights = fill(v)
			ctrl.Cost.Terminal = v > 0
		case Horizon:
			ctrl.Horizon = int(v)
		case SamplePeriodMs:
			ctrl.SamplePeriod = time.Duration(v * float64(time.Millisecond))
		default:
			return nil, fmt.Errorf("optim: unknown parameter %q", name)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
