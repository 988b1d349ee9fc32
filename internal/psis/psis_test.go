package psis

import (
	"math"
	"math/rand"
	"sort"
	"testing"
)

func paretoTailSample(n int, seed int64) []float64 {
	r := rand.New(rand.NewSource(seed))
	lw := make([]float64, n)
	for i := range lw {
		// A heavy right tail: most mass near 0, a handful of extreme
		// log-weights, exercising the GPD correction (spec.md §8 scenario 4).
		u := r.Float64()
		lw[i] = -math.Log(1 - u + 1e-12)
	}
	return lw
}

func TestSmoothWeightsNormalize(t *testing.T) {
	lw := paretoTailSample(500, 1)
	res := Smooth(lw, Config{TailLen: 50})
	sum := 0.0
	for _, w := range res.Weights {
		sum += w
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Fatalf("weights sum to %v, want 1", sum)
	}
}

func TestSmoothShiftInvariance(t *testing.T) {
	lw := paretoTailSample(500, 2)
	shifted := make([]float64, len(lw))
	for i, v := range lw {
		shifted[i] = v + 37.5
	}
	a := Smooth(lw, Config{TailLen: 50})
	b := Smooth(shifted, Config{TailLen: 50})
	for i := range a.Weights {
		if math.Abs(a.Weights[i]-b.Weights[i]) > 1e-9 {
			t.Fatalf("weights[%d] differ under a constant shift: %v vs %v", i, a.Weights[i], b.Weights[i])
		}
	}
	if math.Abs(a.K-b.K) > 1e-9 {
		t.Fatalf("fitted k differs under a constant shift: %v vs %v", a.K, b.K)
	}
}

func TestSmoothDisabledBelowMinTailLen(t *testing.T) {
	lw := paretoTailSample(100, 3)
	res := Smooth(lw, Config{TailLen: 4})
	if !math.IsNaN(res.K) {
		t.Fatalf("K = %v, want NaN when tail_len < 5 disables smoothing", res.K)
	}
}

// TestSmoothTailMonotone checks spec.md §8 invariant 5: after smoothing, the
// replaced tail log-weights are non-decreasing when read off in the same
// order as the original (pre-smoothing) tail values.
func TestSmoothTailMonotone(t *testing.T) {
	lw := paretoTailSample(500, 4)
	tailLen := 50

	_, tailIdx := topK(lw, tailLen+1)
	order := append([]int(nil), tailIdx[1:]...) // ascending by original value

	smoothed := append([]float64(nil), lw...)
	smoothTail(smoothed, tailLen, minGridPtsDefault)

	prev := math.Inf(-1)
	for _, idx := range order {
		v := smoothed[idx]
		if v < prev-1e-9 {
			t.Fatalf("smoothed tail not monotone at idx %d: %v < %v", idx, v, prev)
		}
		prev = v
	}
}

func TestTopKReturnsLargest(t *testing.T) {
	lw := []float64{3, 1, 4, 1, 5, 9, 2, 6}
	values, indices := topK(lw, 3)
	want := []float64{4, 6, 9}
	if len(values) != 3 {
		t.Fatalf("len(values) = %d, want 3", len(values))
	}
	for i, v := range values {
		if v != want[i] {
			t.Fatalf("values = %v, want ascending %v", values, want)
		}
	}
	for i, idx := range indices {
		if lw[idx] != values[i] {
			t.Fatalf("indices[%d]=%d does not map back to values[%d]=%v", i, idx, i, values[i])
		}
	}
}

// TestTopKParallelMatchesInline checks the fork-join path (len(lw) above
// parallelThreshold) agrees with a plain sort.
func TestTopKParallelMatchesInline(t *testing.T) {
	lw := paretoTailSample(2000, 5)
	k := 50

	values, _ := topK(lw, k)

	reference := append([]float64(nil), lw...)
	sort.Float64s(reference)
	want := reference[len(reference)-k:]

	for i := range values {
		if math.Abs(values[i]-want[i]) > 1e-9 {
			t.Fatalf("parallel topK[%d] = %v, want %v", i, values[i], want[i])
		}
	}
}

func TestGpdFitAndQgpdRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(9))
	x := make([]float64, 200)
	for i := range x {
		x[i] = -math.Log(1 - r.Float64())
	}
	sort.Float64s(x)

	sigma, k := gpdFit(x, 30)
	if math.IsNaN(sigma) || math.IsNaN(k) {
		t.Fatalf("gpdFit produced NaN: sigma=%v k=%v", sigma, k)
	}

	q := qgpd(0.5, k, sigma)
	if math.IsNaN(q) || math.IsInf(q, 0) {
		t.Fatalf("qgpd(0.5, %v, %v) = %v, want finite", k, sigma, q)
	}
}

func TestConcatAndSmoothPoolsPaths(t *testing.T) {
	a := paretoTailSample(200, 10)
	b := paretoTailSample(200, 11)
	res := ConcatAndSmooth([][]float64{a, b}, Config{TailLen: 30})
	if len(res.Weights) != len(a)+len(b) {
		t.Fatalf("len(Weights) = %d, want %d", len(res.Weights), len(a)+len(b))
	}
	sum := 0.0
	for _, w := range res.Weights {
		sum += w
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Fatalf("pooled weights sum to %v, want 1", sum)
	}
}
