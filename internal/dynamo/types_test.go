package dynamo

import (
	"errors"
	"math"
	"testing"
)

func TestState_IsValid(t *testing.T) {
	tests := []struct {
		name  string
		state State
		valid bool
	}{
		{"empty", State{}, true},
		{"normal", State{1.0, 2.0, 3.0}, true},
		{"with NaN", State{1.0, math.NaN()}, false},
		{"with +Inf", State{1.0, math.Inf(1)}, false},
		{"with -Inf", State{1.0, math.Inf(-1)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.IsValid(); got != tt.valid {
				t.Errorf("IsValid() = %v, want %v", got, tt.valid)
			}
		})
	}
}

func TestState_Norm(t *testing.T) {
	if got := (State{3, 4}).Norm(); math.Abs(got-5) > 1e-12 {
		t.Errorf("Norm() = %v, want 5", got)
	}
}

func TestState_Sub(t *testing.T) {
	diff := State{4, 5, 6}.Sub(State{1, 2, 3})
	if diff[0] != 3 || diff[1] != 3 || diff[2] != 3 {
		t.Errorf("Sub failed: got %v", diff)
	}
}

func TestLimits_Clamp(t *testing.T) {
	l := Limits{{-1, 1}, {0, 2}}
	u := []float64{-3, 5}
	l.ClampInPlace(u)
	if u[0] != -1 || u[1] != 2 {
		t.Errorf("ClampInPlace: got %v", u)
	}
	if !l.Contains(u) {
		t.Error("clamped vector should be inside limits")
	}
	if l.Contains([]float64{0}) {
		t.Error("short vector should not be contained")
	}
}

func TestLimits_Validate(t *testing.T) {
	if err := (Limits{{-1, 1}, {2, 2}}).Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	err := (Limits{{1, -1}}).Validate()
	if !errors.Is(err, ErrConfiguration) {
		t.Errorf("expected ErrConfiguration, got %v", err)
	}
}

func TestCheckDim(t *testing.T) {
	if err := CheckDim("measurement", []float64{1, 2}, 2); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	err := CheckDim("measurement", []float64{1, 2, 3}, 2)
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
	var de *DimensionError
	if !errors.As(err, &de) || de.Got != 3 || de.Want != 2 {
		t.Errorf("unexpected DimensionError: %+v", de)
	}
}

func TestSimError(t *testing.T) {
	err := SimError{Time: 1.5, Step: 150, Message: "test error"}
	expected := "step 150 (t=1.5000): test error"
	if err.Error() != expected {
		t.Errorf("SimError.Error() = %q, want %q", err.Error(), expected)
	}
}
