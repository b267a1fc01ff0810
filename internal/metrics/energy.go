package metrics

import "github.com/san-kum/nmpc/internal/dynamo"

// Energetic is a plant that can report its mechanical energy.
type Energetic interface {
	Energy(x dynamo.State) float64
}

// Energy records the plant energy at the last observation; Peak is the
// largest seen.
type Energy struct {
	name    string
	src     Energetic
	last    float64
	peak    float64
	samples int
}

func NewEnergy(src Energetic) *Energy {
	return &Energy{name: "energy", src: src}
}

func (e *Energy) Name() string { return e.name }

func (e *Energy) Observe(x dynamo.State, u dynamo.Control, t float64) {
	e.last = e.src.Energy(x)
	if e.samples == 0 || e.last > e.peak {
		e.peak = e.last
	}
	e.samples++
}

func (e *Energy) Value() float64 { return e.last }
func (e *Energy) Peak() float64  { return e.peak }

func (e *Energy) Reset() {
	e.last, e.peak = 0, 0
	e.samples = 0
}
