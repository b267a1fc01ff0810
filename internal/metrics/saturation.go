package metrics

import "github.com/san-kum/nmpc/internal/dynamo"

// Saturation is the fraction of control components sitting on an output
// limit.
type Saturation struct {
	name   string
	limits dynamo.Limits
	tol    float64
	hits   int
	total  int
}

func NewSaturation(limits dynamo.Limits) *Saturation {
	return &Saturation{name: "saturation", limits: append(dynamo.Limits(nil), limits...), tol: 1e-9}
}

func (s *Saturation) Name() string { return s.name }

func (s *Saturation) Observe(x dynamo.State, u dynamo.Control, t float64) {
	for i, v := range u {
		if i >= len(s.limits) {
			break
		}
		b := s.limits[i]
		if v <= b.Low+s.tol || v >= b.High-s.tol {
			s.hits++
		}
		s.total++
	}
}

func (s *Saturation) Value() float64 {
	if s.total == 0 {
		return 0
	}
	return float64(s.hits) / float64(s.total)
}

func (s *Saturation) Reset() {
	s.hits, s.total = 0, 0
}
