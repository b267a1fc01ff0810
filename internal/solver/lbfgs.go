package solver

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// curvatureEps rejects pairs with s·y too small relative to |s||y|.
const curvatureEps = 1e-10

// lbfgs keeps the last mem curvature pairs in a ring buffer and applies the
// inverse-Hessian estimate with the two-loop recursion.
type lbfgs struct {
	mem   int
	s, y  [][]float64
	rho   []float64
	alpha []float64
	count int
	head  int

	sTmp, yTmp []float64
}

func newLBFGS(n, mem int) *lbfgs {
	l := &lbfgs{
		mem:   mem,
		s:     make([][]float64, mem),
		y:     make([][]float64, mem),
		rho:   make([]float64, mem),
		alpha: make([]float64, mem),
		sTmp:  make([]float64, n),
		yTmp:  make([]float64, n),
	}
	for i := 0; i < mem; i++ {
		l.s[i] = make([]float64, n)
		l.y[i] = make([]float64, n)
	}
	return l
}

func (l *lbfgs) reset() {
	l.count = 0
	l.head = 0
}

// update stores s = u - uPrev, y = r - rPrev when the pair has positive
// curvature. It reports whether the pair was kept.
func (l *lbfgs) update(u, uPrev, r, rPrev []float64) bool {
	s, y := l.sTmp, l.yTmp
	floats.SubTo(s, u, uPrev)
	floats.SubTo(y, r, rPrev)

	sy := floats.Dot(s, y)
	if sy <= curvatureEps*floats.Norm(s, 2)*floats.Norm(y, 2) || sy <= 0 || math.IsNaN(sy) {
		return false
	}
	copy(l.s[l.head], s)
	copy(l.y[l.head], y)
	l.rho[l.head] = 1 / sy
	l.head = (l.head + 1) % l.mem
	if l.count < l.mem {
		l.count++
	}
	return true
}

func (l *lbfgs) slot(i int) int {
	return (l.head - 1 - i + l.mem) % l.mem
}

// apply writes H*q into dst. With no stored pairs H is the identity.
func (l *lbfgs) apply(dst, q []float64) {
	copy(dst, q)
	if l.count == 0 {
		return
	}
	for i := 0; i < l.count; i++ {
		k := l.slot(i)
		l.alpha[k] = l.rho[k] * floats.Dot(l.s[k], dst)
		floats.AddScaled(dst, -l.alpha[k], l.y[k])
	}

	newest := l.slot(0)
	yy := floats.Dot(l.y[newest], l.y[newest])
	floats.Scale(1/(l.rho[newest]*yy), dst)

	for i := l.count - 1; i >= 0; i-- {
		k := l.slot(i)
		beta := l.rho[k] * floats.Dot(l.y[k], dst)
		floats.AddScaled(dst, l.alpha[k]-beta, l.s[k])
	}
}
