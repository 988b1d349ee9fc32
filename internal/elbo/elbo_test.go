package elbo

import (
	"math"
	"testing"

	"github.com/gaussrun/pathfinder/internal/rng"
	"github.com/gaussrun/pathfinder/internal/taylor"
)

func isotropicApprox(d int) taylor.Approx {
	alpha := make([]float64, d)
	x := make([]float64, d)
	g := make([]float64, d)
	for i := range alpha {
		alpha[i] = 1
	}
	approx, err := taylor.Build(taylor.Input{Alpha: alpha, X: x, G: g})
	if err != nil {
		panic(err)
	}
	return approx
}

func TestComputeBasic(t *testing.T) {
	approx := isotropicApprox(3)
	stream := rng.New(1, 0)
	target := func(x []float64) float64 {
		s := 0.0
		for _, v := range x {
			s += v * v
		}
		return -0.5 * s
	}
	est := Compute(approx, 200, target, stream)
	if est.FnCalls != 200 {
		t.Fatalf("FnCalls = %d, want 200", est.FnCalls)
	}
	if len(est.RepeatDraws) != 200 {
		t.Fatalf("len(RepeatDraws) = %d, want 200", len(est.RepeatDraws))
	}
	if math.IsNaN(est.ELBO) || math.IsInf(est.ELBO, 0) {
		t.Fatalf("ELBO = %v, want finite for a matching target", est.ELBO)
	}
	// The approximation matches the target exactly here, so the ELBO
	// should be close to 0 (lp_target == lp_approx for every draw).
	if math.Abs(est.ELBO) > 0.05 {
		t.Fatalf("ELBO = %v, want near 0 for an exact approximation", est.ELBO)
	}
}

func TestComputePanicBecomesNegativeInf(t *testing.T) {
	approx := isotropicApprox(2)
	stream := rng.New(2, 0)
	calls := 0
	target := func(x []float64) float64 {
		calls++
		if calls%2 == 0 {
			panic("simulated target failure")
		}
		return 0
	}
	est := Compute(approx, 10, target, stream)
	sawNegInf := false
	for _, v := range est.LPTarget {
		if math.IsInf(v, -1) {
			sawNegInf = true
		}
	}
	if !sawNegInf {
		t.Fatal("expected at least one -Inf lp_target entry from the panicking draws")
	}
	// Half the draws are -Inf, so the mean must also be -Inf.
	if !math.IsInf(est.ELBO, -1) {
		t.Fatalf("ELBO = %v, want -Inf when any draw is -Inf", est.ELBO)
	}
}

func TestComputeNaNBecomesNegativeInf(t *testing.T) {
	approx := isotropicApprox(2)
	stream := rng.New(3, 0)
	target := func(x []float64) float64 { return math.NaN() }
	est := Compute(approx, 5, target, stream)
	for i, v := range est.LPTarget {
		if !math.IsInf(v, -1) {
			t.Fatalf("LPTarget[%d] = %v, want -Inf for a NaN-returning target", i, v)
		}
	}
}
