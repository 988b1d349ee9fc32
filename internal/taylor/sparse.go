package taylor

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// buildSparse implements spec.md §4.B's sparse form (2n < d): the
// low-rank-plus-diagonal representation that never materializes a d x d
// covariance. Qk spans the rank-2n subspace the history determines; outside
// it, the Gaussian is just diag(alpha).
func buildSparse(in Input) (Approx, error) {
	d := len(in.X)
	n, _ := in.NMat.Dims()
	k := 2 * n // UseFull guarantees 2n < d, so min(d, 2n) == 2n here

	sqrtAlpha := make([]float64, d)
	invSqrtAlpha := make([]float64, d)
	for i, a := range in.Alpha {
		sa := math.Sqrt(a)
		sqrtAlpha[i] = sa
		invSqrtAlpha[i] = 1 / sa
	}

	yAlphaHalf := mulDiagRight(in.Y.T(), sqrtAlpha)    // n x d
	nAlphaInvHalf := mulDiagRight(in.NMat, invSqrtAlpha) // n x d

	wt := mat.NewDense(k, d, nil) // [Yalpha^1/2; Nalpha^-1/2]
	row := make([]float64, d)
	for i := 0; i < n; i++ {
		mat.Row(row, i, &yAlphaHalf)
		wt.SetRow(i, row)
		mat.Row(row, i, &nAlphaInvHalf)
		wt.SetRow(n+i, row)
	}

	var w mat.Dense // d x k
	w.CloneFrom(wt.T())

	var qr mat.QR
	qr.Factorize(&w)

	var fullQ mat.Dense
	qr.QTo(&fullQ) // d x d
	qk := mat.DenseCopyOf(fullQ.Slice(0, d, 0, k))

	var fullR mat.Dense
	qr.RTo(&fullR) // d x k, upper-triangular in the top k rows
	rk := mat.DenseCopyOf(fullR.Slice(0, k, 0, k))

	// middle = Yᵀ diag(alpha) Y + diag(D), n x n
	yAlpha := mulDiagRight(in.Y.T(), in.Alpha) // n x d
	var middle mat.Dense
	middle.Mul(&yAlpha, in.Y)
	for i := 0; i < n; i++ {
		middle.Set(i, i, middle.At(i, i)+in.Diag[i])
	}

	m := mat.NewDense(k, k, nil)
	for i := 0; i < n; i++ {
		m.Set(i, n+i, 1)
		m.Set(n+i, i, 1)
		for j := 0; j < n; j++ {
			m.Set(n+i, n+j, middle.At(i, j))
		}
	}

	var rkm, rkmrkt mat.Dense
	rkm.Mul(rk, m)
	rkmrkt.Mul(&rkm, rk.T())
	inner := mat.NewSymDense(k, nil)
	for i := 0; i < k; i++ {
		for j := i; j < k; j++ {
			v := rkmrkt.At(i, j)
			if i == j {
				v += 1
			}
			inner.SetSym(i, j, v)
		}
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(inner); !ok {
		return Approx{}, ErrNotPositiveDefinite
	}
	var u mat.TriDense
	chol.UTo(&u)
	lApprox := mat.DenseCopyOf(&u)

	halfSumLogAlpha := 0.0
	for _, a := range in.Alpha {
		halfSumLogAlpha += math.Log(a)
	}
	halfSumLogAlpha *= 0.5

	xc := xCenterSparse(in, middle)

	return Approx{
		XCenter:      xc,
		LogDetCholHk: logDetUpperTri(lApprox) + halfSumLogAlpha,
		LApprox:      lApprox,
		Qk:           qk,
		Alpha:        append([]float64(nil), in.Alpha...),
		UseFull:      false,
	}, nil
}

// xCenterSparse computes spec.md §4.B's sparse x_center:
//
//	x - [ alpha.*g + alpha.*(Y (N g)) + Nᵀ(Yᵀ(alpha.*g) + (YᵀalphaY + diag(D))(N g)) ]
func xCenterSparse(in Input, middle mat.Dense) []float64 {
	d := len(in.X)
	n, _ := in.NMat.Dims()

	ng := make([]float64, n) // N g
	for i := 0; i < n; i++ {
		var s float64
		for j := 0; j < d; j++ {
			s += in.NMat.At(i, j) * in.G[j]
		}
		ng[i] = s
	}

	yNg := make([]float64, d) // Y (N g)
	for i := 0; i < d; i++ {
		var s float64
		for j := 0; j < n; j++ {
			s += in.Y.At(i, j) * ng[j]
		}
		yNg[i] = s
	}

	alphaG := make([]float64, d)
	for i := 0; i < d; i++ {
		alphaG[i] = in.Alpha[i] * in.G[i]
	}

	ytAlphaG := make([]float64, n) // Yᵀ(alpha.*g)
	for i := 0; i < n; i++ {
		var s float64
		for j := 0; j < d; j++ {
			s += in.Y.At(j, i) * alphaG[j]
		}
		ytAlphaG[i] = s
	}

	middleNg := make([]float64, n) // (YᵀalphaY + diag(D)) (N g)
	for i := 0; i < n; i++ {
		var s float64
		for j := 0; j < n; j++ {
			s += middle.At(i, j) * ng[j]
		}
		middleNg[i] = s
	}

	inner := make([]float64, n)
	for i := 0; i < n; i++ {
		inner[i] = ytAlphaG[i] + middleNg[i]
	}

	nTInner := make([]float64, d) // Nᵀ(...)
	for i := 0; i < d; i++ {
		var s float64
		for j := 0; j < n; j++ {
			s += in.NMat.At(j, i) * inner[j]
		}
		nTInner[i] = s
	}

	xc := make([]float64, d)
	for i := 0; i < d; i++ {
		xc[i] = in.X[i] - (alphaG[i] + in.Alpha[i]*yNg[i] + nTInner[i])
	}
	return xc
}

// mulDiagRight computes a * diag(v) for an r x c matrix a (v has length c),
// returned as a fresh dense matrix.
func mulDiagRight(a mat.Matrix, v []float64) mat.Dense {
	r, c := a.Dims()
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.Set(i, j, a.At(i, j)*v[j])
		}
	}
	return *out
}
