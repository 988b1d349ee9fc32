package lbfgs

import (
	"math"
	"testing"
)

// quadratic is f(x) = 1/2 sum(x_i^2), the simplest strictly convex objective.
func quadratic(x, g []float64) float64 {
	f := 0.0
	for i, v := range x {
		g[i] = v
		f += 0.5 * v * v
	}
	return f
}

func TestStepperConvergesOnQuadratic(t *testing.T) {
	x0 := []float64{3, -2, 1}
	s, err := New(x0, quadratic, DefaultOptions())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var last Result
	for i := 0; i < 200; i++ {
		last = s.Step()
		if last.Code != StepOK && last.Code != StepResetLineSearch {
			break
		}
	}
	if last.Code != StepConverged {
		t.Fatalf("final code = %v, want StepConverged", last.Code)
	}
	for i, v := range last.X {
		if math.Abs(v) > 1e-3 {
			t.Fatalf("X[%d] = %v, want near 0 at the minimum", i, v)
		}
	}
}

func TestStepperRespectsMaxIter(t *testing.T) {
	x0 := []float64{5, 5}
	s, err := New(x0, quadratic, Options{Memory: 5, MaxIter: 2, InitAlpha: 0.001, GradTol: 0, RelGradTol: 1, ObjTol: 0, RelObjTol: 1, ParamTol: 1e-12})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	var last Result
	for i := 0; i < 10; i++ {
		last = s.Step()
		if last.Code != StepOK && last.Code != StepResetLineSearch {
			break
		}
	}
	if last.Code != StepMaxIterations {
		t.Fatalf("code = %v, want StepMaxIterations", last.Code)
	}
}

func TestNewRejectsEmptyX0(t *testing.T) {
	if _, err := New(nil, quadratic, DefaultOptions()); err == nil {
		t.Fatal("expected an error for an empty initial vector")
	}
}

func TestNewRejectsFailingInitialEval(t *testing.T) {
	bad := func(x, g []float64) float64 { return math.NaN() }
	if _, err := New([]float64{1}, bad, DefaultOptions()); err == nil {
		t.Fatal("expected an error when the initial evaluation is non-finite")
	}
}

func TestStepperAccumulatesHistory(t *testing.T) {
	x0 := []float64{2, 2, 2, 2}
	s, err := New(x0, quadratic, DefaultOptions())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.Step()
	if len(s.history) == 0 {
		t.Fatal("expected at least one curvature pair after one accepted step")
	}
}
