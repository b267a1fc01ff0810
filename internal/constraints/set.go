package constraints

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// containsTol absorbs rounding after a projection.
const containsTol = 1e-12

// Set is a closed convex set over the control space. Project overwrites u
// with its projection; Contains reports membership.
type Set interface {
	Project(u []float64)
	Contains(u []float64) bool
}

type None struct{}

func (None) Project(u []float64)       {}
func (None) Contains(u []float64) bool { return true }

// Rectangle is the box Min <= u <= Max. A nil Min or Max leaves that side
// unbounded; use ±Inf for individual open sides.
type Rectangle struct {
	Min []float64
	Max []float64
}

func NewRectangle(min, max []float64) (*Rectangle, error) {
	if min != nil && max != nil {
		if len(min) != len(max) {
			return nil, fmt.Errorf("rectangle: min has %d entries, max has %d", len(min), len(max))
		}
		for i := range min {
			if min[i] > max[i] {
				return nil, fmt.Errorf("rectangle: min[%d]=%g > max[%d]=%g", i, min[i], i, max[i])
			}
		}
	}
	return &Rectangle{Min: min, Max: max}, nil
}

func (r *Rectangle) Project(u []float64) {
	for i := range u {
		if r.Min != nil && i < len(r.Min) && u[i] < r.Min[i] {
			u[i] = r.Min[i]
		}
		if r.Max != nil && i < len(r.Max) && u[i] > r.Max[i] {
			u[i] = r.Max[i]
		}
	}
}

func (r *Rectangle) Contains(u []float64) bool {
	for i, v := range u {
		if r.Min != nil && i < len(r.Min) && v < r.Min[i]-containsTol {
			return false
		}
		if r.Max != nil && i < len(r.Max) && v > r.Max[i]+containsTol {
			return false
		}
	}
	return true
}

// Ball2 is { u : ||u - Centre||_2 <= Radius }. A nil Centre is the origin.
type Ball2 struct {
	Centre []float64
	Radius float64
}

func NewBall2(centre []float64, radius float64) (*Ball2, error) {
	if !(radius > 0) {
		return nil, fmt.Errorf("ball2: radius must be positive, got %g", radius)
	}
	return &Ball2{Centre: centre, Radius: radius}, nil
}

func (b *Ball2) offset(u []float64, i int) float64 {
	if b.Centre == nil {
		return u[i]
	}
	return u[i] - b.Centre[i]
}

func (b *Ball2) dist(u []float64) float64 {
	sum := 0.0
	for i := range u {
		d := b.offset(u, i)
		sum += d * d
	}
	return math.Sqrt(sum)
}

func (b *Ball2) Project(u []float64) {
	d := b.dist(u)
	if d <= b.Radius {
		return
	}
	scale := b.Radius / d
	for i := range u {
		c := 0.0
		if b.Centre != nil {
			c = b.Centre[i]
		}
		u[i] = c + scale*(u[i]-c)
	}
}

func (b *Ball2) Contains(u []float64) bool {
	return b.dist(u) <= b.Radius*(1+containsTol)
}

// BallInf is { u : max_i |u_i - Centre_i| <= Radius }.
type BallInf struct {
	Centre []float64
	Radius float64
}

func NewBallInf(centre []float64, radius float64) (*BallInf, error) {
	if !(radius > 0) {
		return nil, fmt.Errorf("ballinf: radius must be positive, got %g", radius)
	}
	return &BallInf{Centre: centre, Radius: radius}, nil
}

func (b *BallInf) Project(u []float64) {
	for i := range u {
		c := 0.0
		if b.Centre != nil {
			c = b.Centre[i]
		}
		u[i] = math.Max(c-b.Radius, math.Min(c+b.Radius, u[i]))
	}
}

func (b *BallInf) Contains(u []float64) bool {
	for i := range u {
		c := 0.0
		if b.Centre != nil {
			c = b.Centre[i]
		}
		if math.Abs(u[i]-c) > b.Radius+containsTol {
			return false
		}
	}
	return true
}

// Halfspace is { u : Normal·u <= Offset }.
type Halfspace struct {
	Normal []float64
	Offset float64

	normSq float64
}

func NewHalfspace(normal []float64, offset float64) (*Halfspace, error) {
	normSq := floats.Dot(normal, normal)
	if normSq == 0 {
		return nil, fmt.Errorf("halfspace: normal vector must be non-zero")
	}
	return &Halfspace{Normal: normal, Offset: offset, normSq: normSq}, nil
}

func (h *Halfspace) Project(u []float64) {
	viol := floats.Dot(h.Normal, u) - h.Offset
	if viol <= 0 {
		return
	}
	floats.AddScaled(u, -viol/h.normSq, h.Normal)
}

func (h *Halfspace) Contains(u []float64) bool {
	return floats.Dot(h.Normal, u) <= h.Offset+containsTol*(1+math.Abs(h.Offset))
}

// Cartesian applies Sets[i] to u[Ends[i-1]:Ends[i]] (Ends[-1] = 0). Ends
// must be strictly increasing.
type Cartesian struct {
	Ends []int
	Sets []Set
}

func NewCartesian(ends []int, sets []Set) (*Cartesian, error) {
	if len(ends) != len(sets) {
		return nil, fmt.Errorf("cartesian: %d segment ends for %d sets", len(ends), len(sets))
	}
	prev := 0
	for i, e := range ends {
		if e <= prev {
			return nil, fmt.Errorf("cartesian: segment end %d (%d) is not increasing", i, e)
		}
		prev = e
	}
	return &Cartesian{Ends: ends, Sets: sets}, nil
}

func (c *Cartesian) Project(u []float64) {
	start := 0
	for i, end := range c.Ends {
		if start >= len(u) {
			break
		}
		if end > len(u) {
			end = len(u)
		}
		c.Sets[i].Project(u[start:end])
		start = end
	}
}

func (c *Cartesian) Contains(u []float64) bool {
	start := 0
	for i, end := range c.Ends {
		if start >= len(u) {
			break
		}
		if end > len(u) {
			end = len(u)
		}
		if !c.Sets[i].Contains(u[start:end]) {
			return false
		}
		start = end
	}
	return true
}
