package config

import (
	"sort"
	"time"
)

func preset(model string, duration float64, init, setpoint []float64, limit float64, tweak func(*Controller)) *Config {
	ctrl := DefaultController(setpoint, limit)
	if tweak != nil {
		tweak(&ctrl)
	}
	return &Config{
		Model:      model,
		Integrator: "rk4",
		Dt:         DefaultDt,
		Duration:   duration,
		InitState:  init,
		Controller: ctrl,
	}
}

var Presets = map[string]map[string]*Config{
	"integrator": {
		"step": preset("integrator", 5, []float64{0, 0}, []float64{1, 1}, 1, nil),
		"tight": preset("integrator", 5, []float64{0, 0}, []float64{1, -1}, 0.3, func(c *Controller) {
			c.Blocks = 2
		}),
		"ball": preset("integrator", 5, []float64{0, 0}, []float64{2, 2}, 1, func(c *Controller) {
			c.Constraint = Constraint{Kind: "ball2", Radius: 1}
		}),
	},
	"lag": {
		"step": preset("lag", 5, []float64{0, 0}, []float64{0.5, -0.5}, 1, nil),
		"slow": preset("lag", 10, []float64{0, 0, 0}, []float64{0.8, 0.2, -0.4}, 1, func(c *Controller) {
			c.SamplePeriod = 200 * time.Millisecond
			c.Cost.Terminal = true
			c.Cost.TerminalWeights = []float64{10, 10, 10}
		}),
	},
	"pendulum": {
		"hold": preset("pendulum", 10, []float64{0, 0}, []float64{0.5, 0}, 8, func(c *Controller) {
			c.OutputLimits[0] = [2]float64{-0.5, 0.5}
			c.Cost.StateWeights = []float64{10, 1}
			c.Cost.ControlWeights = []float64{0.1, 0.001}
		}),
		"limited": preset("pendulum", 10, []float64{0, 0}, []float64{0.5, 0}, 8, func(c *Controller) {
			c.OutputLimits[0] = [2]float64{-0.5, 0.5}
			c.Cost.StateWeights = []float64{10, 1}
			c.Cost.ControlWeights = []float64{0.1, 0.001}
			c.Constraint = Constraint{Kind: "cartesian", Segments: []Constraint{
				{Kind: "rectangle", Size: 1, Min: []float64{-0.3}, Max: []float64{0.3}},
				{Kind: "halfspace", Size: 1, Normal: []float64{1}, Offset: 6},
			}}
		}),
		"recover": preset("pendulum", 10, []float64{1.2, 0}, []float64{0, 0}, 8, func(c *Controller) {
			c.OutputLimits[0] = [2]float64{-0.5, 0.5}
			c.Cost.StateWeights = []float64{10, 1}
			c.Cost.ControlWeights = []float64{0.1, 0.001}
			c.Cost.Terminal = true
		}),
	},
	"attitude": {
		"detumble": preset("attitude", 5, []float64{0.2, -0.1, 0.05}, []float64{0, 0, 0}, 0.05, func(c *Controller) {
			c.Cost.ControlWeights = []float64{1, 1, 1}
			c.Cost.Terminal = true
		}),
		"slew": preset("attitude", 5, []float64{0, 0, 0}, []float64{0.5, 0, -0.3}, 0.05, func(c *Controller) {
			c.Constraint = Constraint{Kind: "ballinf", Radius: 0.04}
		}),
	},
}

func GetPreset(model, preset string) *Config {
	modelPresets, ok := Presets[model]
	if !ok {
		return nil
	}
	cfg, ok := modelPresets[preset]
	if !ok {
		return nil
	}
	return cfg.Clone()
}

func ListPresets(model string) []string {
	modelPresets, ok := Presets[model]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(modelPresets))
	for name := range modelPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	out := *c
	out.InitState = append([]float64(nil), c.InitState...)
	ctrl := &out.Controller
	ctrl.Setpoint = append([]float64(nil), c.Controller.Setpoint...)
	ctrl.OutputLimits = append([][2]float64(nil), c.Controller.OutputLimits...)
	ctrl.Cost.StateWeights = append([]float64(nil), c.Controller.Cost.StateWeights...)
	ctrl.Cost.ControlWeights = append([]float64(nil), c.Controller.Cost.ControlWeights...)
	ctrl.Cost.TerminalWeights = append([]float64(nil), c.Controller.Cost.TerminalWeights...)
	ctrl.Constraint = c.Controller.Constraint.Clone()
	return &out
}

func (c Constraint) Clone() Constraint {
	out := c
	out.Min = append([]float64(nil), c.Min...)
	out.Max = append([]float64(nil), c.Max...)
	out.Centre = append([]float64(nil), c.Centre...)
	out.Normal = append([]float64(nil), c.Normal...)
	if c.Segments != nil {
		out.Segments = make([]Constraint, len(c.Segments))
		for i, seg := range c.Segments {
			out.Segments[i] = seg.Clone()
		}
	}
	return out
}
