package constraints

import (
	"math"
	"testing"
)

func TestRectangleProject(t *testing.T) {
	r, err := NewRectangle([]float64{-1, math.Inf(-1)}, []float64{1, 0.5})
	if err != nil {
		t.Fatalf("NewRectangle: %v", err)
	}

	tests := []struct {
		in, want []float64
	}{
		{[]float64{0, 0}, []float64{0, 0}},
		{[]float64{-5, -100}, []float64{-1, -100}},
		{[]float64{3, 3}, []float64{1, 0.5}},
	}

	for _, tt := range tests {
		u := append([]float64(nil), tt.in...)
		r.Project(u)
		for i := range u {
			if u[i] != tt.want[i] {
				t.Errorf("Project(%v) = %v, want %v", tt.in, u, tt.want)
				break
			}
		}
		if !r.Contains(u) {
			t.Errorf("projection %v not contained", u)
		}
	}
}

func TestRectangleInvalid(t *testing.T) {
	if _, err := NewRectangle([]float64{1}, []float64{0}); err == nil {
		t.Error("expected error for min > max")
	}
	if _, err := NewRectangle([]float64{1, 2}, []float64{3}); err == nil {
		t.Error("expected error for length mismatch")
	}
}

func TestBall2Project(t *testing.T) {
	b, err := NewBall2([]float64{1, 1}, 1)
	if err != nil {
		t.Fatalf("NewBall2: %v", err)
	}

	inside := []float64{1.5, 1.2}
	b.Project(inside)
	if inside[0] != 1.5 || inside[1] != 1.2 {
		t.Errorf("inside point moved: %v", inside)
	}

	u := []float64{4, 5}
	b.Project(u)
	if math.Abs(u[0]-1.6) > 1e-12 || math.Abs(u[1]-1.8) > 1e-12 {
		t.Errorf("Project = %v, want [1.6 1.8]", u)
	}
	if !b.Contains(u) {
		t.Error("projected point should be contained")
	}

	if _, err := NewBall2(nil, 0); err == nil {
		t.Error("expected error for zero radius")
	}
}

func TestBallInfProject(t *testing.T) {
	b, err := NewBallInf(nil, 0.5)
	if err != nil {
		t.Fatalf("NewBallInf: %v", err)
	}
	u := []float64{2, -0.25, -3}
	b.Project(u)
	want := []float64{0.5, -0.25, -0.5}
	for i := range u {
		if u[i] != want[i] {
			t.Fatalf("Project = %v, want %v", u, want)
		}
	}
	if b.Contains([]float64{0.6}) {
		t.Error("0.6 should be outside radius 0.5")
	}
}

func TestHalfspaceProject(t *testing.T) {
	h, err := NewHalfspace([]float64{1, 1}, 1)
	if err != nil {
		t.Fatalf("NewHalfspace: %v", err)
	}

	u := []float64{2, 2}
	h.Project(u)
	if math.Abs(u[0]-0.5) > 1e-12 || math.Abs(u[1]-0.5) > 1e-12 {
		t.Errorf("Project = %v, want [0.5 0.5]", u)
	}
	if !h.Contains(u) {
		t.Error("projected point should be contained")
	}

	if _, err := NewHalfspace([]float64{0, 0}, 1); err == nil {
		t.Error("expected error for zero normal")
	}
}

func TestCartesianProject(t *testing.T) {
	box, _ := NewRectangle([]float64{0}, []float64{1})
	ball, _ := NewBall2(nil, 1)
	c, err := NewCartesian([]int{1, 3}, []Set{box, ball})
	if err != nil {
		t.Fatalf("NewCartesian: %v", err)
	}

	u := []float64{-2, 3, 4}
	c.Project(u)
	if u[0] != 0 || math.Abs(u[1]-0.6) > 1e-12 || math.Abs(u[2]-0.8) > 1e-12 {
		t.Errorf("Project = %v", u)
	}
	if !c.Contains(u) {
		t.Error("projected point should be contained")
	}

	if _, err := NewCartesian([]int{2, 2}, []Set{box, ball}); err == nil {
		t.Error("expected error for non-increasing ends")
	}
}

func TestNone(t *testing.T) {
	u := []float64{1e9, -1e9}
	None{}.Project(u)
	if u[0] != 1e9 || !(None{}).Contains(u) {
		t.Error("None must leave controls untouched")
	}
}
