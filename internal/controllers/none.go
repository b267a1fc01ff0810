package controllers

import (
	"time"

	"github.com/san-kum/nmpc/internal/dynamo"
)

// None is the open-loop baseline: zero control on every axis.
type None struct {
	dim int
}

func NewNone(dim int) *None {
	return &None{dim: dim}
}

func (n *None) Compute(meas dynamo.State, dt time.Duration) (dynamo.Control, error) {
	return make(dynamo.Control, n.dim), nil
}
