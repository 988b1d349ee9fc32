// Package history holds the L-BFGS curvature pairs Pathfinder's Taylor
// approximation is built from (spec.md §3 "Pair", §3 "History", §4.A), and
// the diagonal inverse-Hessian preconditioner alpha those pairs update.
//
// The curvature-gated update here is a different concern from the descent
// direction the optimizer itself uses to pick its next step
// (internal/lbfgs): that's an out-of-scope collaborator per spec.md §1.
// This package only ever consumes the (x, g) trajectory the optimizer
// produces.
package history

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// curvatureCutoff bounds the curvature ratio |y|²/(yᵀs); pairs beyond it are
// numerically unreliable and rejected (spec.md §4.A).
const curvatureCutoff = 1e12

// Pair is one accepted curvature pair (spec.md §3).
type Pair struct {
	Y []float64 // y = g_k - g_{k-1}
	S []float64 // s = x_k - x_{k-1}
}

// CheckCurvature reports whether (y, s) passes the curvature test:
// yᵀs > 0 and |y|²/(yᵀs) ≤ 1e12. Rejected pairs must not be inserted into
// history and must not update alpha (spec.md §4.A).
func CheckCurvature(y, s []float64) (dk float64, ok bool) {
	dk = floats.Dot(y, s)
	if dk <= 0 {
		return dk, false
	}
	y2 := floats.Dot(y, y)
	return dk, y2/dk <= curvatureCutoff
}

// UpdateAlpha applies the Gilbert-Lemaréchal diagonal update (eq. 4.9) to a
// prior diagonal preconditioner alpha, given an accepted pair. The caller
// must have already verified the pair passes CheckCurvature; UpdateAlpha
// does not re-check it.
//
//	alpha' = (yᵀs) / ( (yᵀ diag(alpha) y)/alpha + y∘y
//	                   - (yᵀ diag(alpha) y / sᵀ diag(alpha)⁻¹ s) · (s/alpha)² )
func UpdateAlpha(alpha, y, s []float64) []float64 {
	n := len(alpha)
	yAlphaY := 0.0
	sInvAlphaS := 0.0
	for i := 0; i < n; i++ {
		yAlphaY += y[i] * alpha[i] * y[i]
		sInvAlphaS += s[i] * s[i] / alpha[i]
	}
	ys := floats.Dot(y, s)
	ratio := yAlphaY / sInvAlphaS

	out := make([]float64, n)
	for i := 0; i < n; i++ {
		sa := s[i] / alpha[i]
		denom := yAlphaY/alpha[i] + y[i]*y[i] - ratio*sa*sa
		out[i] = ys / denom
	}
	return out
}

// IsFinite is a small guard used by callers building a Pair from a step:
// a pair with any non-finite component must never reach CheckCurvature.
func IsFinite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
