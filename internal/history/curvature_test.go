package history

import (
	"math"
	"testing"
)

func TestCheckCurvatureAccepts(t *testing.T) {
	y := []float64{1, 0.5}
	s := []float64{1, 1}
	dk, ok := CheckCurvature(y, s)
	if !ok {
		t.Fatalf("expected curvature pair to be accepted, dk=%v", dk)
	}
}

func TestCheckCurvatureRejectsNonPositive(t *testing.T) {
	y := []float64{-1, 0}
	s := []float64{1, 0}
	if _, ok := CheckCurvature(y, s); ok {
		t.Fatal("expected yᵀs <= 0 to be rejected")
	}
}

func TestCheckCurvatureRejectsIllConditioned(t *testing.T) {
	y := []float64{1e8, 0}
	s := []float64{1e-8, 1}
	if _, ok := CheckCurvature(y, s); ok {
		t.Fatal("expected |y|^2/(yᵀs) beyond the cutoff to be rejected")
	}
}

func TestUpdateAlphaPositive(t *testing.T) {
	alpha := []float64{1, 1}
	y := []float64{1, 0.3}
	s := []float64{1, 1}
	if _, ok := CheckCurvature(y, s); !ok {
		t.Fatal("test fixture pair should pass the curvature check")
	}
	out := UpdateAlpha(alpha, y, s)
	for i, v := range out {
		if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("alpha[%d] = %v, want finite positive", i, v)
		}
	}
}

func TestIsFinite(t *testing.T) {
	if !IsFinite([]float64{1, 2, 3}) {
		t.Fatal("finite vector reported non-finite")
	}
	if IsFinite([]float64{1, math.NaN()}) {
		t.Fatal("NaN vector reported finite")
	}
	if IsFinite([]float64{1, math.Inf(1)}) {
		t.Fatal("Inf vector reported finite")
	}
}
