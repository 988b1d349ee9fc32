// Package psis implements Pareto-smoothed importance sampling tail
// correction (spec.md §4.G), the companion component the outer multi-path
// coordinator (out of scope per spec.md §1) calls on the pooled
// log-importance-ratio vector produced by one or more Pathfinder runs.
package psis

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// minTailLen is the smallest tail length PSIS will smooth; below it,
// smoothing is disabled entirely (spec.md §6 "tail_len").
const minTailLen = 5

// minNormalFloat64 is IEEE-754 double's smallest normalized positive value
// (C++'s std::numeric_limits<double>::min(), not Go's denormalized
// math.SmallestNonzeroFloat64), matching the flat-tail skip threshold in
// original_source/.../psis.hpp for bit-for-bit agreement (spec.md §1).
const minNormalFloat64 = 2.2250738585072014e-308

// Config holds the tunables spec.md §6 lists for PSIS.
type Config struct {
	MinGridPts int // floor on GPD grid density; 0 means use the default (30)
	TailLen    int // tail size; smoothing disabled if < 5
}

func (c Config) minGridPts() int {
	if c.MinGridPts <= 0 {
		return minGridPtsDefault
	}
	return c.MinGridPts
}

// Result is the outcome of smoothing one log-importance-ratio vector.
type Result struct {
	Weights []float64 // normalized importance weights, sums to 1
	K       float64   // fitted GPD shape (Pareto k-hat); NaN if smoothing was skipped
}

// Smooth implements spec.md §4.G end to end: shift, extract the tail,
// fit and apply the GPD correction (unless the tail is too flat or
// tail_len < 5), truncate every value above 0 to 0, and renormalize.
func Smooth(lw []float64, cfg Config) Result {
	s := len(lw)
	out := append([]float64(nil), lw...)

	maxLw := floats.Max(out)
	for i := range out {
		out[i] -= maxLw
	}

	k := math.NaN()
	if cfg.TailLen >= minTailLen && cfg.TailLen < s {
		k = smoothTail(out, cfg.TailLen, cfg.minGridPts())
	}

	for i, v := range out {
		if v > 0 {
			out[i] = 0
		}
	}

	lse := floats.LogSumExp(out)
	weights := make([]float64, s)
	for i, v := range out {
		weights[i] = math.Exp(v - lse)
	}
	return Result{Weights: weights, K: k}
}

// smoothTail mutates lw in place, replacing its upper tail with GPD-smoothed
// quantiles, and returns the fitted shape k (NaN if smoothing was skipped).
func smoothTail(lw []float64, tailLen, minGridPts int) float64 {
	topVals, topIdx := topK(lw, tailLen+1)
	cutoff := topVals[0]
	tailVals := topVals[1:]
	tailIdx := topIdx[1:]

	lo, hi := tailVals[0], tailVals[len(tailVals)-1]
	if hi-lo <= 10*minNormalFloat64 {
		return math.NaN()
	}

	x := make([]float64, tailLen)
	expCutoff := math.Exp(cutoff)
	for i, v := range tailVals {
		x[i] = math.Exp(v) - expCutoff
	}

	sigma, k := gpdFit(x, minGridPts)
	if math.IsInf(k, 0) {
		return math.NaN()
	}

	for i := 0; i < tailLen; i++ {
		p := (float64(i+1) - 0.5) / float64(tailLen)
		lw[tailIdx[i]] = math.Log(qgpd(p, k, sigma) + expCutoff)
	}
	return k
}

// ConcatAndSmooth concatenates log-importance-ratio vectors from multiple
// Pathfinder paths and runs Smooth once on the pooled vector, mirroring how
// the (out-of-scope) outer multi-path coordinator is expected to invoke
// this package per spec.md §1/§5.
func ConcatAndSmooth(perPath [][]float64, cfg Config) Result {
	total := 0
	for _, p := range perPath {
		total += len(p)
	}
	pooled := make([]float64, 0, total)
	for _, p := range perPath {
		pooled = append(pooled, p...)
	}
	return Smooth(pooled, cfg)
}
