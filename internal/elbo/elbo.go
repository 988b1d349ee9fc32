// Package elbo implements the Monte-Carlo evidence-lower-bound estimator
// driving Pathfinder's iterate selection (spec.md §3 "ELBO record", §4.C).
package elbo

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/gaussrun/pathfinder/internal/rng"
	"github.com/gaussrun/pathfinder/internal/taylor"
)

// LogDensityFunc evaluates the (unnormalized) target log-density at x. Per
// spec.md §7, a panic from this function is a non-fatal, point-local
// failure: the offending draw's target log-density is recorded as -Inf and
// the estimate continues.
type LogDensityFunc func(x []float64) float64

// Estimate is the ELBO record E (spec.md §3).
type Estimate struct {
	ELBO        float64
	FnCalls     int
	RepeatDraws [][]float64 // K draws, each length d
	LPApprox    []float64   // lp_mat[:,0], log-density under the approximation
	LPTarget    []float64   // lp_mat[:,1], target log-density
	LPRatio     []float64   // lp_mat[:,1] - lp_mat[:,0]
}

// Compute draws K columns of IID standard normals, transforms them through
// approx, evaluates lpFun at each draw, and returns the resulting ELBO
// record (spec.md §4.C).
func Compute(approx taylor.Approx, k int, lpFun LogDensityFunc, stream *rng.Stream) Estimate {
	d := len(approx.XCenter)
	draws := make([][]float64, k)
	lpApprox := make([]float64, k)
	lpTarget := make([]float64, k)
	lpRatio := make([]float64, k)
	fnCalls := 0

	for i := 0; i < k; i++ {
		u := make([]float64, d)
		stream.NormalVector(u)
		x := approx.Sample(u)
		draws[i] = x
		lpApprox[i] = approx.LogDensity(u)
		lpTarget[i] = evalTarget(lpFun, x)
		fnCalls++
		lpRatio[i] = lpTarget[i] - lpApprox[i]
	}

	return Estimate{
		ELBO:        mean(lpRatio),
		FnCalls:     fnCalls,
		RepeatDraws: draws,
		LPApprox:    lpApprox,
		LPTarget:    lpTarget,
		LPRatio:     lpRatio,
	}
}

// evalTarget isolates a panic from lpFun the way lbfgsb's driver isolates a
// panic from its objective: recover and record -Inf rather than aborting
// the run (spec.md §7).
func evalTarget(lpFun LogDensityFunc, x []float64) (lp float64) {
	lp = math.Inf(-1)
	defer func() {
		if r := recover(); r != nil {
			lp = math.Inf(-1)
		}
	}()
	lp = lpFun(x)
	if math.IsNaN(lp) {
		lp = math.Inf(-1)
	}
	return
}

// mean computes the ELBO as mean(lp_ratio) via floats.Sum. lp_ratio entries
// are either finite or -Inf (never +Inf, since lp_approx is always finite),
// so a -Inf-contaminated sum correctly yields elbo = -Inf per spec.md §3.
func mean(v []float64) float64 {
	if len(v) == 0 {
		return math.Inf(-1)
	}
	return floats.Sum(v) / float64(len(v))
}
