package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/nmpc/internal/dynamo"
)

const (
	DefaultDt            = 0.01
	DefaultDuration      = 10.0
	DefaultSamplePeriod  = 50 * time.Millisecond
	DefaultTolerance     = 1e-3
	DefaultMaxIterations = 20
	DefaultHorizon       = 10
	DefaultSubsteps      = 4
	DefaultBlocks        = 1
	DefaultControlWeight = 0.01
)

// Config describes one closed-loop run: the simulated plant, the harness
// timing and the controller.
type Config struct {
	Model      string     `yaml:"model"`
	Integrator string     `yaml:"integrator"`
	Dt         float64    `yaml:"dt"`
	Duration   float64    `yaml:"duration"`
	Seed       int64      `yaml:"seed"`
	Noise      float64    `yaml:"noise,omitempty"`
	InitState  []float64  `yaml:"init_state"`
	Controller Controller `yaml:"controller"`
}

// Controller is the static controller configuration. It is never
// checkpointed; a resumed run rebuilds the controller from it.
type Controller struct {
	Setpoint      []float64     `yaml:"setpoint"`
	OutputLimits  [][2]float64  `yaml:"output_limits"`
	SamplePeriod  time.Duration `yaml:"sample_period"`
	Tolerance     float64       `yaml:"tolerance"`
	MaxIterations int           `yaml:"max_iterations"`
	Horizon       int           `yaml:"horizon"`
	Substeps      int           `yaml:"substeps"`
	Blocks        int           `yaml:"blocks"`
	Integrator    string        `yaml:"integrator"`
	Cost          Cost          `yaml:"cost"`
	Constraint    Constraint    `yaml:"constraint"`
}

// Cost selects quadratic weights. State and Terminal switch the stage and
// terminal terms on; empty weight lists default to ones.
type Cost struct {
	StateWeights    []float64 `yaml:"state_weights,omitempty"`
	ControlWeights  []float64 `yaml:"control_weights,omitempty"`
	TerminalWeights []float64 `yaml:"terminal_weights,omitempty"`
	State           bool      `yaml:"state"`
	Terminal        bool      `yaml:"terminal"`
}

// Constraint picks a convex set for each control block. Kind is one of
// none, rectangle, ball2, ballinf or halfspace.
type Constraint struct {
	Kind   string    `yaml:"kind"`
	Min    []float64 `yaml:"min,omitempty"`
	Max    []float64 `yaml:"max,omitempty"`
	Centre []float64 `yaml:"centre,omitempty"`
	Radius float64   `yaml:"radius,omitempty"`
	Normal []float64 `yaml:"normal,omitempty"`
	Offset float64   `yaml:"offset,omitempty"`
	// Size and Segments describe a cartesian product: each segment
	// constrains the next Size controls.
	Size     int          `yaml:"size,omitempty"`
	Segments []Constraint `yaml:"segments,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Model:      "integrator",
		Integrator: "rk4",
		Dt:         DefaultDt,
		Duration:   DefaultDuration,
		InitState:  []float64{0, 0},
		Controller: DefaultController([]float64{1, 1}, 1),
	}
}

// DefaultController returns a controller tracking setpoint with symmetric
// limits of ±limit on every axis and a quadratic stage cost with unit error
// weights and DefaultControlWeight on the controls.
func DefaultController(setpoint []float64, limit float64) Controller {
	limits := make([][2]float64, len(setpoint))
	control := make([]float64, len(setpoint))
	for i := range limits {
		limits[i] = [2]float64{-limit, limit}
		control[i] = DefaultControlWeight
	}
	return Controller{
		Setpoint:      append([]float64(nil), setpoint...),
		OutputLimits:  limits,
		SamplePeriod:  DefaultSamplePeriod,
		Tolerance:     DefaultTolerance,
		MaxIterations: DefaultMaxIterations,
		Horizon:       DefaultHorizon,
		Substeps:      DefaultSubsteps,
		Blocks:        DefaultBlocks,
		Integrator:    "rk4",
		Cost:          Cost{State: true, ControlWeights: control},
		Constraint:    Constraint{Kind: "none"},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", dynamo.ErrConfiguration, path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) applyDefaults() {
	if c.Integrator == "" {
		c.Integrator = "rk4"
	}
	if c.Dt == 0 {
		c.Dt = DefaultDt
	}
	if c.Duration == 0 {
		c.Duration = DefaultDuration
	}
	c.Controller.applyDefaults()
}

func (c *Controller) applyDefaults() {
	if c.SamplePeriod == 0 {
		c.SamplePeriod = DefaultSamplePeriod
	}
	if c.Tolerance == 0 {
		c.Tolerance = DefaultTolerance
	}
	if c.Integrator == "" {
		c.Integrator = "rk4"
	}
	if c.Constraint.Kind == "" {
		c.Constraint.Kind = "none"
	}
}

func (c *Config) Validate() error {
	if c.Model == "" {
		return fmt.Errorf("%w: model is required", dynamo.ErrConfiguration)
	}
	if c.Dt <= 0 || c.Duration <= 0 {
		return fmt.Errorf("%w: dt and duration must be positive", dynamo.ErrConfiguration)
	}
	if c.Noise < 0 {
		return fmt.Errorf("%w: noise must not be negative", dynamo.ErrConfiguration)
	}
	if err := c.Controller.Validate(); err != nil {
		return err
	}
	if len(c.InitState) != 0 && len(c.InitState) != c.Controller.Dim() {
		return fmt.Errorf("%w: init_state has %d entries for %d axes", dynamo.ErrConfiguration, len(c.InitState), c.Controller.Dim())
	}
	return nil
}

// Dim is the number of controlled axes.
func (c *Controller) Dim() int { return len(c.Setpoint) }

func (c *Controller) Validate() error {
	n := c.Dim()
	if n == 0 {
		return fmt.Errorf("%w: controller setpoint is required", dynamo.ErrConfiguration)
	}
	if len(c.OutputLimits) != n {
		return fmt.Errorf("%w: %d output limits for %d axes", dynamo.ErrConfiguration, len(c.OutputLimits), n)
	}
	if err := c.Limits().Validate(); err != nil {
		return err
	}
	if c.SamplePeriod <= 0 {
		return fmt.Errorf("%w: sample_period must be positive", dynamo.ErrConfiguration)
	}
	if c.Tolerance <= 0 {
		return fmt.Errorf("%w: tolerance must be positive", dynamo.ErrConfiguration)
	}
	if c.MaxIterations < 0 || c.Horizon < 0 || c.Substeps < 0 || c.Blocks < 0 {
		return fmt.Errorf("%w: max_iterations, horizon, substeps and blocks must not be negative", dynamo.ErrConfiguration)
	}
	if !c.Cost.State && !c.Cost.Terminal {
		return fmt.Errorf("%w: enable a state or terminal cost", dynamo.ErrConfiguration)
	}
	for name, w := range map[string][]float64{
		"state_weights":    c.Cost.StateWeights,
		"control_weights":  c.Cost.ControlWeights,
		"terminal_weights": c.Cost.TerminalWeights,
	} {
		if len(w) != 0 && len(w) != n {
			return fmt.Errorf("%w: %s has %d entries for %d axes", dynamo.ErrConfiguration, name, len(w), n)
		}
	}
	return nil
}

// Limits converts OutputLimits to per-axis bounds.
func (c *Controller) Limits() dynamo.Limits {
	l := make(dynamo.Limits, len(c.OutputLimits))
	for i, b := range c.OutputLimits {
		l[i] = dynamo.Bound{Low: b[0], High: b[1]}
	}
	return l
}

// Weights returns w, or n ones when w is empty.
func Weights(w []float64, n int) []float64 {
	if len(w) != 0 {
		return append([]float64(nil), w...)
	}
	ones := make([]float64, n)
	for i := range ones {
		ones[i] = 1
	}
	return ones
}

// GetInitState returns the initial plant state, zero when unset.
func (c *Config) GetInitState() []float64 {
	if len(c.InitState) == 0 {
		return make([]float64, c.Controller.Dim())
	}
	return append([]float64(nil), c.InitState...)
}
