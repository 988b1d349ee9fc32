package taylor

import "math"

// Sample transforms one column of IID standard normals u into a draw from
// the Taylor approximation, per spec.md §4.B "Sampling under T":
//
//	dense:  x_center + L_approxᵀ u
//	sparse: x_center + diag(sqrt(alpha)) · ( Qk (L_approx - I_k) (Qkᵀ u) + u )
func (a Approx) Sample(u []float64) []float64 {
	d := len(a.XCenter)
	out := make([]float64, d)
	if a.UseFull {
		for i := 0; i < d; i++ {
			var s float64
			for j := 0; j < d; j++ {
				// L_approxᵀ u at row i == column i of L_approx dotted with u
				s += a.LApprox.At(j, i) * u[j]
			}
			out[i] = a.XCenter[i] + s
		}
		return out
	}

	_, kk := a.Qk.Dims()

	qtu := make([]float64, kk) // Qkᵀ u
	for j := 0; j < kk; j++ {
		var s float64
		for i := 0; i < d; i++ {
			s += a.Qk.At(i, j) * u[i]
		}
		qtu[j] = s
	}

	lMinusIqtu := make([]float64, kk) // (L_approx - I_k) (Qkᵀ u)
	for i := 0; i < kk; i++ {
		var s float64
		for j := 0; j < kk; j++ {
			v := a.LApprox.At(i, j)
			if i == j {
				v -= 1
			}
			s += v * qtu[j]
		}
		lMinusIqtu[i] = s
	}

	qkTerm := make([]float64, d) // Qk (L_approx - I_k)(Qkᵀ u)
	for i := 0; i < d; i++ {
		var s float64
		for j := 0; j < kk; j++ {
			s += a.Qk.At(i, j) * lMinusIqtu[j]
		}
		qkTerm[i] = s
	}

	for i := 0; i < d; i++ {
		out[i] = a.XCenter[i] + math.Sqrt(a.Alpha[i])*(qkTerm[i]+u[i])
	}
	return out
}

// LogDensity evaluates log q(x) for the draw generated from u (the same u
// passed to Sample), using the identity that's exact under both the dense
// and sparse forms because T is Gaussian:
//
//	log q(x) = -logdetcholHk - 1/2 (|u|^2 + d log(2*pi))
func (a Approx) LogDensity(u []float64) float64 {
	d := len(u)
	u2 := 0.0
	for _, v := range u {
		u2 += v * v
	}
	return -a.LogDetCholHk - 0.5*(u2+float64(d)*math.Log(2*math.Pi))
}
