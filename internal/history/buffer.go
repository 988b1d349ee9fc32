package history

import "gonum.org/v1/gonum/mat"

// Buffer is the FIFO L-BFGS history (spec.md §3 "History"): at most m
// accepted pairs, newest appended, oldest evicted once full. Ownership is
// exclusive to the driver that owns it; the Y/S/D/R/N matrices derived by
// Matrices are rebuilt fresh each call, never shared across callers.
type Buffer struct {
	m     int
	pairs []Pair // oldest first; Push shifts the slice once it is full
	head  int
}

// NewBuffer creates an empty history capped at m pairs.
func NewBuffer(m int) *Buffer {
	if m < 1 {
		panic("history: m must be >= 1")
	}
	return &Buffer{m: m, pairs: make([]Pair, 0, m)}
}

// Len reports the number of pairs currently held.
func (b *Buffer) Len() int { return len(b.pairs) }

// Cap reports the configured history depth m.
func (b *Buffer) Cap() int { return b.m }

// Push inserts an already-accepted pair, evicting the oldest pair once the
// buffer is at capacity. Pathfinder's driver is responsible for calling
// CheckCurvature first; Push never rejects a pair.
func (b *Buffer) Push(p Pair) {
	if len(b.pairs) < b.m {
		b.pairs = append(b.pairs, p)
		return
	}
	// Evict oldest (index 0), shift in place to keep chronological order
	// without growing; m is small (default history depth, typically <= a
	// few dozen) so this is cheap relative to the matrix work that follows.
	copy(b.pairs, b.pairs[1:])
	b.pairs[len(b.pairs)-1] = p
}

// Clear empties the history, used when the driver restarts L-BFGS memory
// after a failure.
func (b *Buffer) Clear() {
	b.pairs = b.pairs[:0]
	b.head = 0
}

// Matrices is the derived form of the history used to build a Taylor
// approximation (spec.md §3): Y, S with columns oldest-first, D = diag(SᵀY),
// and N = -R⁻¹Sᵀ where R = triu(SᵀY).
type Matrices struct {
	N int // number of pairs (history length)
	D int // problem dimension
	Y *mat.Dense
	S *mat.Dense
	// Diag holds diag(SᵀY), length N.
	Diag []float64
	// NMat is N = -R⁻¹Sᵀ, an N x D matrix.
	NMat *mat.Dense
}

// Build derives Y, S, D, R, N from the current pairs. Build is a no-op on
// history mutation: the returned Matrices is a fresh snapshot.
func (b *Buffer) Build() Matrices {
	n := len(b.pairs)
	if n == 0 {
		return Matrices{}
	}
	d := len(b.pairs[0].Y)

	y := mat.NewDense(d, n, nil)
	s := mat.NewDense(d, n, nil)
	for j, p := range b.pairs {
		y.SetCol(j, p.Y)
		s.SetCol(j, p.S)
	}

	// SᵀY, then split into diagonal D and upper-triangular R (diagonal included).
	var sty mat.Dense
	sty.Mul(s.T(), y)

	diag := make([]float64, n)
	r := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		diag[i] = sty.At(i, i)
		for j := i; j < n; j++ {
			r.Set(i, j, sty.At(i, j))
		}
	}

	// N = -R⁻¹Sᵀ, solved rather than inverted explicitly.
	var st mat.Dense
	st.CloneFrom(s.T())
	var nMat mat.Dense
	if err := nMat.Solve(r, &st); err != nil {
		// R is singular or ill-conditioned. Build does not report this to
		// its caller: it returns a zeroed NMat, which keeps Build
		// panic-free and makes a Taylor approximation built from these
		// Matrices carry no history term. The iterate is not skipped.
		nMat = *mat.NewDense(n, d, nil)
	}
	nMat.Scale(-1, &nMat)

	return Matrices{N: n, D: d, Y: y, S: s, Diag: diag, NMat: &nMat}
}
