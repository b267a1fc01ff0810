package dynamo

import (
	"errors"
	"fmt"
)

// Domain errors for controller operations.
var (
	// ErrConfiguration indicates missing or invalid controller configuration.
	// Fatal to construction.
	ErrConfiguration = errors.New("dynamo: invalid configuration")

	// ErrDimensionMismatch indicates a vector whose length differs from the
	// controller dimension. The tick is aborted and the last output is kept.
	ErrDimensionMismatch = errors.New("dynamo: dimension mismatch between vector and controller")

	// ErrSerialization indicates persisted controller state that cannot be
	// decoded or does not fit the receiving controller.
	ErrSerialization = errors.New("dynamo: cannot decode persisted state")

	// ErrInvalidState indicates a state vector containing NaN or Inf.
	ErrInvalidState = errors.New("dynamo: invalid state (NaN or Inf detected)")
)

// DimensionError reports which vector had the wrong length.
type DimensionError struct {
	What string
	Got  int
	Want int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("%s: %v (got %d, want %d)", e.What, ErrDimensionMismatch, e.Got, e.Want)
}

func (e *DimensionError) Unwrap() error {
	return ErrDimensionMismatch
}

// CheckDim returns a *DimensionError when len(v) != n.
func CheckDim(what string, v []float64, n int) error {
	if len(v) != n {
		return &DimensionError{What: what, Got: len(v), Want: n}
	}
	return nil
}
