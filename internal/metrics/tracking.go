package metrics

import (
	"math"

	"github.com/san-kum/nmpc/internal/dynamo"
)

// TrackingError integrates Σᵢ|rᵢ - xᵢ| over time (IAE), using the spacing
// between observations as the time step.
type TrackingError struct {
	name     string
	setpoint dynamo.State
	total    float64
	lastT    float64
	lastErr  float64
	samples  int
}

func NewTrackingError(setpoint dynamo.State) *TrackingError {
	return &TrackingError{name: "tracking_iae", setpoint: setpoint.Clone()}
}

func (m *TrackingError) Name() string { return m.name }

func (m *TrackingError) Observe(x dynamo.State, u dynamo.Control, t float64) {
	e := 0.0
	for i := range m.setpoint {
		if i < len(x) {
			e += math.Abs(m.setpoint[i] - x[i])
		}
	}
	if m.samples > 0 {
		m.total += m.lastErr * (t - m.lastT)
	}
	m.lastT, m.lastErr = t, e
	m.samples++
}

func (m *TrackingError) Value() float64 { return m.total }

func (m *TrackingError) Reset() {
	m.total, m.lastT, m.lastErr = 0, 0, 0
	m.samples = 0
}

// Settling is the fraction of observations where every axis lies within
// Band of the setpoint. SettleTime is the start of the final in-band run,
// or -1 if the run ended outside the band.
type Settling struct {
	name      string
	setpoint  dynamo.State
	band      float64
	inside    int
	samples   int
	enteredAt float64
	settled   bool
}

func NewSettling(setpoint dynamo.State, band float64) *Settling {
	return &Settling{name: "settled_ratio", setpoint: setpoint.Clone(), band: band}
}

func (s *Settling) Name() string { return s.name }

func (s *Settling) Observe(x dynamo.State, u dynamo.Control, t float64) {
	s.samples++
	in := true
	for i := range s.setpoint {
		if i >= len(x) || math.Abs(s.setpoint[i]-x[i]) > s.band {
			in = false
			break
		}
	}
	if in {
		s.inside++
		if !s.settled {
			s.enteredAt = t
			s.settled = true
		}
	} else {
		s.settled = false
	}
}

func (s *Settling) Value() float64 {
	if s.samples == 0 {
		return 0
	}
	return float64(s.inside) / float64(s.samples)
}

func (s *Settling) SettleTime() float64 {
	if !s.settled {
		return -1
	}
	return s.enteredAt
}

func (s *Settling) Reset() {
	s.inside, s.samples = 0, 0
	s.enteredAt = 0
	s.settled = false
}
