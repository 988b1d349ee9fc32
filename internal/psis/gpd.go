package psis

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// minGridPtsDefault is the PSIS config's min_grid_pts default (spec.md §6).
const minGridPtsDefault = 30

// priorScale is the Zhang-Stephens "prior = 3" constant (spec.md §4.G).
const priorScale = 3.0

// pseudoCount is the weakly-informative-prior pseudo-count a = 10 applied
// to the fitted shape k (spec.md §4.G).
const pseudoCount = 10.0

// gpdFit estimates generalized Pareto parameters (sigma, k) from sample x
// via the Zhang & Stephens (2009) profile-likelihood grid estimator,
// applying the weakly-informative prior on k centered at 0.5. x must be
// sorted ascending and strictly positive. minGridPts floors the grid
// density (spec.md §6 "min_grid_pts").
//
// Note k's sign convention here is negated relative to Zhang & Stephens
// (2009), matching spec.md's GLOSSARY entry for GPD.
func gpdFit(x []float64, minGridPts int) (sigma, k float64) {
	n := len(x)
	m := minGridPts + int(math.Sqrt(float64(n)))

	xStar := x[int(float64(n)/4+0.5)-1] // first-quartile sample
	xLast := x[n-1]

	thetaHat := 0.0
	logLiks := make([]float64, m)
	thetas := make([]float64, m)
	for j := 1; j <= m; j++ {
		theta := 1/xLast + (1-math.Sqrt(float64(m)/(float64(j)-0.5)))/(priorScale*xStar)
		thetas[j-1] = theta
		logLiks[j-1] = float64(n) * profileLogLik(theta, x)
	}

	lse := floats.LogSumExp(logLiks)
	weights := make([]float64, m)
	for j, l := range logLiks {
		weights[j] = math.Exp(l - lse)
	}
	for j := range thetas {
		thetaHat += weights[j] * thetas[j]
	}

	kRaw := meanLog1mTheta(thetaHat, x)
	sigma = -kRaw / thetaHat

	nPlusA := float64(n) + pseudoCount
	k = kRaw*float64(n)/nPlusA + pseudoCount*0.5/nPlusA
	return sigma, k
}

// profileLogLik computes log(-theta/kBar) - kBar - 1 where
// kBar = mean_i log(1 - theta*x_i) -- the Zhang-Stephens profile
// log-likelihood for one grid point theta.
func profileLogLik(theta float64, x []float64) float64 {
	kBar := meanLog1mTheta(theta, x)
	return math.Log(-theta/kBar) - kBar - 1
}

func meanLog1mTheta(theta float64, x []float64) float64 {
	sum := 0.0
	for _, xi := range x {
		sum += math.Log1p(-theta * xi)
	}
	return sum / float64(len(x))
}

// qgpd is the generalized Pareto inverse CDF with location 0 (spec.md §4.G).
func qgpd(p, k, sigma float64) float64 {
	return sigma * math.Expm1(-k*math.Log1p(-p)) / k
}
