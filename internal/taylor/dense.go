package taylor

import (
	"errors"

	"gonum.org/v1/gonum/mat"
)

// ErrNotPositiveDefinite is returned when the implicit inverse-Hessian
// fails its Cholesky factorization — a Taylor-construction failure per
// spec.md §7: the caller must skip this iterate, leaving the running best
// unchanged.
var ErrNotPositiveDefinite = errors.New("taylor: inverse-Hessian surrogate is not positive definite")

// buildDense implements spec.md §4.B's dense form (2n >= d):
//
//	H = diag(alpha) + Nᵀ(Yᵀdiag(alpha)) + (Yᵀdiag(alpha))ᵀN
//	    + Nᵀ(Yᵀdiag(alpha)Y + diag(D))N
//
// Cholesky H = LᵀL gives L_approx := Lᵀ (upper); x_center := x - H·g.
func buildDense(in Input) (Approx, error) {
	d := len(in.X)
	n, _ := in.NMat.Dims()

	alphaDiag := mat.NewDiagDense(d, in.Alpha)

	var yAlpha mat.Dense // n x d
	yAlpha.Mul(in.Y.T(), alphaDiag)

	var term2 mat.Dense // d x d = Nᵀ (Yᵀalpha)
	term2.Mul(in.NMat.T(), &yAlpha)

	var middle mat.Dense // n x n = Yᵀ diag(alpha) Y + diag(D)
	middle.Mul(&yAlpha, in.Y)
	for i := 0; i < n; i++ {
		middle.Set(i, i, middle.At(i, i)+in.Diag[i])
	}

	var term4a mat.Dense // n x d = middle * N
	term4a.Mul(&middle, in.NMat)
	var term4 mat.Dense // d x d = Nᵀ middle N
	term4.Mul(in.NMat.T(), &term4a)

	h := mat.NewSymDense(d, nil)
	for i := 0; i < d; i++ {
		for j := i; j < d; j++ {
			v := term2.At(i, j) + term2.At(j, i) + term4.At(i, j)
			if i == j {
				v += in.Alpha[i]
			}
			h.SetSym(i, j, v)
		}
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(h); !ok {
		return Approx{}, ErrNotPositiveDefinite
	}

	var u mat.TriDense
	chol.UTo(&u)
	lApprox := mat.DenseCopyOf(&u)

	// x_center = x - H g
	hDense := mat.DenseCopyOf(h)
	hg := make([]float64, d)
	gVec := mat.NewVecDense(d, in.G)
	var hgVec mat.VecDense
	hgVec.MulVec(hDense, gVec)
	for i := 0; i < d; i++ {
		hg[i] = hgVec.AtVec(i)
	}

	xc := make([]float64, d)
	for i := range xc {
		xc[i] = in.X[i] - hg[i]
	}

	return Approx{
		XCenter:      xc,
		LogDetCholHk: logDetUpperTri(lApprox),
		LApprox:      lApprox,
		Alpha:        append([]float64(nil), in.Alpha...),
		UseFull:      true,
	}, nil
}
