// Package taylor builds the Gaussian "Taylor approximation" to the target
// density implied by the L-BFGS curvature history at one iterate (spec.md
// §3 "Taylor approximation", §4.B), and samples from / evaluates the
// log-density of that Gaussian (§4.B "Sampling under T").
//
// The dense form is used whenever 2n >= d (history size comparable to or
// larger than half the dimension); otherwise the sparse, QR-based
// low-rank-plus-diagonal form is used, which never materializes a d x d
// covariance. This mirrors original_source/.../single.hpp's
// taylor_approximation_full / taylor_approximation_sparse exactly, per the
// spec's bit-for-bit reproducibility requirement.
package taylor

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Approx is a Taylor approximation T (spec.md §3).
type Approx struct {
	XCenter        []float64 // mean of the Gaussian
	LogDetCholHk   float64   // log|L| of the Cholesky factor of Sigma
	LApprox        *mat.Dense
	Qk             *mat.Dense // empty if UseFull
	Alpha          []float64  // diagonal preconditioner used to build T
	UseFull        bool
}

// UseFull reports which form Build should pick for history length n and
// dimension d: dense iff 2n >= d (spec.md §3 invariant).
func UseFull(n, d int) bool {
	return 2*n >= d
}

// Input bundles everything Build needs, matching spec.md §4.B's inputs
// "Y, S, D, N := -R⁻¹Sᵀ, alpha, x, g".
type Input struct {
	Y     *mat.Dense // d x n
	S     *mat.Dense // d x n, unused by the formulas but kept for symmetry with spec.md §3
	Diag  []float64  // D = diag(SᵀY), length n
	NMat  *mat.Dense // n x d, N = -R⁻¹Sᵀ
	Alpha []float64  // length d
	X     []float64  // current iterate
	G     []float64  // current gradient
}

// Build constructs the Taylor approximation at one iterate, choosing dense
// or sparse form per UseFull. n is the history length (Input.NMat rows), d
// is the problem dimension (len(Input.X)).
func Build(in Input) (Approx, error) {
	n, d := 0, len(in.X)
	if in.NMat != nil {
		n, _ = in.NMat.Dims()
	}
	if n == 0 {
		// No history yet: Sigma = diag(alpha), x_center = x - alpha .* g.
		return buildNoHistory(in), nil
	}
	if UseFull(n, d) {
		return buildDense(in)
	}
	return buildSparse(in)
}

func buildNoHistory(in Input) Approx {
	d := len(in.X)
	xc := make([]float64, d)
	logdet := 0.0
	l := mat.NewDense(d, d, nil)
	for i := 0; i < d; i++ {
		a := in.Alpha[i]
		sqrtA := math.Sqrt(a)
		l.Set(i, i, sqrtA)
		xc[i] = in.X[i] - a*in.G[i]
		logdet += math.Log(sqrtA)
	}
	return Approx{XCenter: xc, LogDetCholHk: logdet, LApprox: l, Alpha: append([]float64(nil), in.Alpha...), UseFull: true}
}

func logDetUpperTri(l *mat.Dense) float64 {
	r, _ := l.Dims()
	sum := 0.0
	for i := 0; i < r; i++ {
		sum += math.Log(math.Abs(l.At(i, i)))
	}
	return sum
}
