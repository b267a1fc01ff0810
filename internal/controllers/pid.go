package controllers

import (
	"fmt"
	"time"

	"github.com/san-kum/nmpc/internal/dynamo"
)

// PID drives each axis of the measurement to its setpoint with the same
// gains on every axis. The output is clamped to the limits and the integral
// only accumulates while the axis is not saturated.
type PID struct {
	Kp float64
	Ki float64
	Kd float64

	setpoint []float64
	limits   dynamo.Limits
	integral []float64
	prevErr  []float64
	first    bool
}

func NewPID(kp, ki, kd float64, setpoint []float64, limits dynamo.Limits) (*PID, error) {
	n := len(setpoint)
	if n == 0 || len(limits) != n {
		return nil, fmt.Errorf("%w: pid needs one limit per setpoint axis (%d, %d)", dynamo.ErrConfiguration, n, len(limits))
	}
	if err := limits.Validate(); err != nil {
		return nil, err
	}
	return &PID{
		Kp:       kp,
		Ki:       ki,
		Kd:       kd,
		setpoint: append([]float64(nil), setpoint...),
		limits:   append(dynamo.Limits(nil), limits...),
		integral: make([]float64, n),
		prevErr:  make([]float64, n),
		first:    true,
	}, nil
}

func (p *PID) Compute(meas dynamo.State, dt time.Duration) (dynamo.Control, error) {
	if len(meas) != len(p.setpoint) {
		return nil, fmt.Errorf("%w: measurement has %d entries, pid %d", dynamo.ErrDimensionMismatch, len(meas), len(p.setpoint))
	}

	h := dt.Seconds()
	u := make(dynamo.Control, len(meas))
	for i, x := range meas {
		e := p.setpoint[i] - x
		v := p.Kp * e
		if !p.first && h > 0 {
			v += p.Ki*(p.integral[i]+e*h) + p.Kd*(e-p.prevErr[i])/h
		}
		clamped := p.limits[i].Clamp(v)
		if !p.first && h > 0 && clamped == v {
			p.integral[i] += e * h
		}
		p.prevErr[i] = e
		u[i] = clamped
	}
	p.first = false
	return u, nil
}

// Reset clears the integral and derivative memory.
func (p *PID) Reset() {
	for i := range p.integral {
		p.integral[i] = 0
		p.prevErr[i] = 0
	}
	p.first = true
}
