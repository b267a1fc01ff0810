package models

import (
	"math"

	"github.com/san-kum/nmpc/internal/dynamo"
)

const (
	DefaultMass    = 1.0
	DefaultLength  = 1.0
	DefaultGravity = 9.81
)

// Pendulum is a damped pendulum with state [θ, ω]. u[0] is a direct angle
// rate correction and u[1] the joint torque.
type Pendulum struct {
	Mass    float64
	Length  float64
	Damping float64
	Gravity float64
}

func NewPendulum() *Pendulum {
	return &Pendulum{
		Mass:    DefaultMass,
		Length:  DefaultLength,
		Damping: 0.1,
		Gravity: DefaultGravity,
	}
}

func (p *Pendulum) StateDim() int   { return 2 }
func (p *Pendulum) ControlDim() int { return 2 }

func (p *Pendulum) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	theta, omega := x[0], x[1]

	rate, torque := 0.0, 0.0
	if len(u) >= 2 {
		rate, torque = u[0], u[1]
	}
	inertia := p.Mass * p.Length * p.Length
	alpha := (-p.Damping*omega - p.Mass*p.Gravity*p.Length*math.Sin(theta) + torque) / inertia

	return dynamo.State{omega + rate, alpha}
}

// HoldTorque is the torque that keeps the pendulum at rest at angle theta.
func (p *Pendulum) HoldTorque(theta float64) float64 {
	return p.Mass * p.Gravity * p.Length * math.Sin(theta)
}

func (p *Pendulum) Energy(x dynamo.State) float64 {
	theta, omega := x[0], x[1]
	ke := 0.5 * p.Mass * p.Length * p.Length * omega * omega
	pe := p.Mass * p.Gravity * p.Length * (1 - math.Cos(theta))
	return ke + pe
}
