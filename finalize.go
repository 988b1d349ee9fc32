package pathfinder

import (
	"errors"
	"math"
)

var (
	errNoUsableIterate   = errors.New("pathfinder: optimizer produced no usable iterate")
	errInterruptPanicked = errors.New("pathfinder: init or interrupt callback panicked")
	errConstrainPanicked = errors.New("pathfinder: constrain_fun panicked")
)

// finalize runs spec.md §4.E against the winning approximation found by
// loop: draw the remaining M-K samples without recomputing ELBO, constrain
// every draw, and assemble the parameter-writer matrix. A panic anywhere in
// this stage falls back to the K ELBO draws already on hand.
func (d *runState) finalize() *Result {
	k := d.cfg.NumElboDraws
	m := d.cfg.NumDraws

	draws, lpApprox, lpTarget, ok := d.sampleFinal(k, m)
	if !ok {
		draws, lpApprox, lpTarget = d.best.est.RepeatDraws, d.best.est.LPApprox, d.best.est.LPTarget
		m = k
	}

	out, lpRatio, err := d.assembleDraws(draws, lpApprox, lpTarget, m)
	if err != nil {
		if m != k {
			// A constrain failure among the M-K extra draws falls back to
			// the K ELBO draws (spec.md §4.E), the same fallback
			// sampleFinal takes on a panic.
			draws, lpApprox, lpTarget = d.best.est.RepeatDraws, d.best.est.LPApprox, d.best.est.LPTarget
			m = k
			out, lpRatio, err = d.assembleDraws(draws, lpApprox, lpTarget, m)
		}
		if err != nil {
			return &Result{Status: StatusSoftware, Err: err}
		}
	}

	return &Result{
		Status:         StatusOK,
		BestIter:       d.best.iter,
		ELBO:           d.best.elbo,
		Draws:          out,
		LPRatio:        lpRatio,
		FnCalls:        d.fnCalls,
		PairsRejected:  d.pairsRejected,
		TaylorFailures: d.taylorFailures,
	}
}

// assembleDraws constrains every column of draws and lays out the
// parameter-writer matrix. It stops at the first constrain error so
// finalize can retry against the K ELBO draws instead of emitting a
// partially-constrained result.
func (d *runState) assembleDraws(draws [][]float64, lpApprox, lpTarget []float64, m int) (out [][]float64, lpRatio []float64, err error) {
	numConstrained := d.problem.NumConstrained
	out = make([][]float64, numConstrained+2)
	for i := range out {
		out[i] = make([]float64, m)
	}
	lpRatio = make([]float64, m)

	for col := 0; col < m; col++ {
		constrained, cErr := d.constrainOne(draws[col])
		if cErr != nil {
			return nil, nil, cErr
		}
		for row := 0; row < numConstrained; row++ {
			out[row][col] = valueAt(constrained, row)
		}
		out[numConstrained][col] = lpApprox[col]
		out[numConstrained+1][col] = lpTarget[col]
		lpRatio[col] = lpTarget[col] - lpApprox[col]
	}
	return out, lpRatio, nil
}

// sampleFinal draws M total samples from the winning approximation, reusing
// the K draws already collected during ELBO estimation and generating the
// remaining M-K without recomputing the ELBO (spec.md §4.E); lp_fun is
// evaluated once on each new draw for its lp_target entry. A panic
// anywhere here (e.g. a pathological Approx) reports ok=false so finalize
// can fall back to the K ELBO draws.
func (d *runState) sampleFinal(k, m int) (draws [][]float64, lpApprox, lpTarget []float64, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			ok = false
		}
	}()

	if m <= k {
		return d.best.est.RepeatDraws, d.best.est.LPApprox, d.best.est.LPTarget, true
	}

	approx := d.best.approx
	draws = append([][]float64(nil), d.best.est.RepeatDraws...)
	lpApprox = append([]float64(nil), d.best.est.LPApprox...)
	lpTarget = append([]float64(nil), d.best.est.LPTarget...)

	u := make([]float64, len(approx.XCenter))
	for i := k; i < m; i++ {
		d.stream.NormalVector(u)
		x := approx.Sample(u)
		draws = append(draws, x)
		lpApprox = append(lpApprox, approx.LogDensity(u))
		lpTarget = append(lpTarget, evalLP(d.problem.LP, x))
	}
	return draws, lpApprox, lpTarget, true
}

// constrainOne applies ConstrainFunc to one unconstrained draw, recovering
// from a panic the way evalLP recovers from an lp_fun panic (spec.md §7). A
// missing Constrain leaves the row at its zero value; a panicking or
// erroring Constrain is reported to the caller via err.
func (d *runState) constrainOne(x []float64) (out []float64, err error) {
	out = make([]float64, d.problem.NumConstrained)
	if d.problem.Constrain == nil {
		return out, nil
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = errConstrainPanicked
		}
	}()
	err = d.problem.Constrain(d.stream, x, out)
	return out, err
}

func valueAt(v []float64, i int) float64 {
	if i < 0 || i >= len(v) {
		return 0
	}
	return v[i]
}

// evalLP isolates a panic from LPFunc during final sampling the same way
// internal/elbo.Compute isolates one during ELBO estimation (spec.md §7).
func evalLP(lp LPFunc, x []float64) (v float64) {
	v = math.Inf(-1)
	defer func() {
		if rec := recover(); rec != nil {
			v = math.Inf(-1)
		}
	}()
	v = lp(x)
	if math.IsNaN(v) {
		v = math.Inf(-1)
	}
	return
}
