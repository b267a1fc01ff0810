package mpc

import (
	"fmt"
	"time"

	"github.com/san-kum/nmpc/internal/dynamo"
	"github.com/san-kum/nmpc/internal/solver"
)

// Snapshot is the mutable controller state that survives a restart. Static
// configuration is deliberately absent; it is supplied to New again.
type Snapshot struct {
	Cache      solver.CacheState
	Error      []float64
	Elapsed    time.Duration
	LastOutput []float64
}

// MarshalState copies the persisted state out of the controller.
func (c *Controller) MarshalState() Snapshot {
	return Snapshot{
		Cache:      c.cache.State(),
		Error:      c.errVec.Clone(),
		Elapsed:    c.elapsed,
		LastOutput: c.lastOutput.Clone(),
	}
}

// UnmarshalState replaces the controller's persisted state with s. It fails
// with dynamo.ErrSerialization, leaving the controller unchanged, when s does
// not fit this controller's dimensions.
func (c *Controller) UnmarshalState(s Snapshot) error {
	if err := c.checkSnapshot(s); err != nil {
		return fmt.Errorf("%w: %w", dynamo.ErrSerialization, err)
	}
	if err := c.cache.Restore(s.Cache); err != nil {
		return fmt.Errorf("%w: %w", dynamo.ErrSerialization, err)
	}
	copy(c.errVec, s.Error)
	c.elapsed = s.Elapsed
	if len(s.LastOutput) == 0 {
		c.lastOutput = nil
	} else {
		c.lastOutput = dynamo.Control(s.LastOutput).Clone()
	}
	c.status = solver.Status{}
	return nil
}

func (c *Controller) checkSnapshot(s Snapshot) error {
	if err := dynamo.CheckDim("solver iterate", s.Cache.Iterate, c.cache.Dim()); err != nil {
		return err
	}
	if err := dynamo.CheckDim("tracking error", s.Error, c.n); err != nil {
		return err
	}
	if len(s.LastOutput) != 0 {
		if err := dynamo.CheckDim("last output", s.LastOutput, c.n); err != nil {
			return err
		}
	}
	if s.Elapsed < 0 {
		return fmt.Errorf("negative elapsed time %v", s.Elapsed)
	}
	if !dynamo.State(s.Error).IsValid() || !dynamo.State(s.LastOutput).IsValid() || !dynamo.State(s.Cache.Iterate).IsValid() {
		return fmt.Errorf("non-finite values in snapshot")
	}
	return nil
}
