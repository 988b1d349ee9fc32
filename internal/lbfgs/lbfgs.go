// Package lbfgs is Pathfinder's out-of-scope optimizer collaborator
// (spec.md §1: "the L-BFGS line-search driver (only its per-step outputs
// matter)"). It exists only to produce a plausible descent trajectory for
// the rest of the module to build Taylor approximations along; its own
// internal curvature bookkeeping is entirely separate from the
// internal/history package Pathfinder's driver builds from the same
// trajectory (spec.md §4.F distinguishes the two).
//
// Pathfinder only ever optimizes over unconstrained real vectors (spec.md
// §1), so this stepper carries no active-set/Cauchy-point machinery; it is
// a standard two-loop-recursion L-BFGS with a backtracking Armijo-Wolfe
// line search.
package lbfgs

import (
	"errors"
	"math"
)

// Backtracking line-search constants, reused verbatim from
// lbfgsb/linesearch.go's sufficient-decrease/curvature test.
const (
	searchAlpha = 1.0e-3 // sufficient decrease coefficient
	searchBeta  = 0.9    // curvature coefficient
	maxBackFits = 40
)

// Code is the per-step outcome the driver loop (spec.md §4.F) inspects.
type Code int

const (
	// StepOK means a new usable (x, g) was produced and a curvature pair
	// is available.
	StepOK Code = iota
	// StepResetLineSearch means the step moved to a new (x, g) but the
	// resulting curvature pair failed the stepper's own curvature check
	// and was not stored; spec.md §4.F: no new pair should be formed this
	// iteration.
	StepResetLineSearch
	// StepConverged, StepMaxIterations, StepLineSearchFailed,
	// StepEvalPanic are terminal: the driver stops (spec.md §4.F "return
	// code != 0").
	StepConverged
	StepMaxIterations
	StepLineSearchFailed
	StepEvalPanic
)

// Evaluation matches lbfgsb.Evaluation's shape: fills g with the gradient
// at x and returns f(x).
type Evaluation func(x, g []float64) (f float64)

// Options are the L-BFGS stopping/step-size tunables spec.md §6 lists.
type Options struct {
	Memory       int     // history_size m
	MaxIter      int     // num_iterations L
	InitAlpha    float64 // init_alpha
	GradTol      float64 // tol_grad
	RelGradTol   float64 // tol_rel_grad
	ObjTol       float64 // tol_obj
	RelObjTol    float64 // tol_rel_obj
	ParamTol     float64 // tol_param
}

// DefaultOptions mirrors Stan's pathfinder defaults.
func DefaultOptions() Options {
	return Options{
		Memory:     5,
		MaxIter:    1000,
		InitAlpha:  0.001,
		GradTol:    1e-8,
		RelGradTol: 1e7,
		ObjTol:     1e-12,
		RelObjTol:  1e4,
		ParamTol:   1e-8,
	}
}

// Result is one Step's output.
type Result struct {
	X, G []float64
	F    float64
	Code Code
}

type pair struct{ y, s []float64 }

// Stepper drives one unconstrained L-BFGS trajectory.
type Stepper struct {
	n    int
	opts Options
	eval Evaluation

	x, g []float64
	f    float64

	history []pair // two-loop recursion memory, oldest first

	iter int
}

// New creates a stepper at x0, evaluating f0, g0 immediately (spec.md §4.F
// "compute initial (x,g)").
func New(x0 []float64, eval Evaluation, opts Options) (*Stepper, error) {
	if len(x0) == 0 {
		return nil, errors.New("lbfgs: initial x must be non-empty")
	}
	if eval == nil {
		return nil, errors.New("lbfgs: evaluation function is required")
	}
	if opts.Memory <= 0 {
		opts.Memory = DefaultOptions().Memory
	}
	if opts.InitAlpha <= 0 {
		opts.InitAlpha = DefaultOptions().InitAlpha
	}
	s := &Stepper{
		n:    len(x0),
		opts: opts,
		eval: eval,
		x:    append([]float64(nil), x0...),
		g:    make([]float64, len(x0)),
	}
	if !s.safeEval() {
		return nil, errors.New("lbfgs: initial evaluation failed")
	}
	return s, nil
}

// X, G, F expose the current iterate without advancing the trajectory.
func (s *Stepper) X() []float64  { return s.x }
func (s *Stepper) G() []float64  { return s.g }
func (s *Stepper) F() float64    { return s.f }
func (s *Stepper) Iter() int     { return s.iter }

func (s *Stepper) safeEval() (ok bool) {
	f, ok, _ := s.safeEvalAt(s.x, s.g)
	s.f = f
	return ok
}

// safeEvalAt isolates a panic from eval the way evalTarget isolates one from
// lp_fun during ELBO estimation (spec.md §7): a panic is reported via
// panicked rather than propagated, so every call site — not just the
// initial evaluation in New — can turn it into a StepEvalPanic result
// instead of crashing the driver.
func (s *Stepper) safeEvalAt(x, g []float64) (f float64, ok, panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			ok = false
		}
	}()
	f = s.eval(x, g)
	ok = !math.IsNaN(f) && !math.IsInf(f, 0)
	return
}

// direction computes -H_k grad via the standard two-loop recursion, using
// gamma_k = (s_{k-1}.y_{k-1})/(y_{k-1}.y_{k-1}) as the initial diagonal
// scaling (Nocedal & Wright eq. 7.20), the same scale-then-recurse idiom
// lbfgsb/update.go uses for its own theta.
func (s *Stepper) direction() []float64 {
	q := append([]float64(nil), s.g...)
	m := len(s.history)
	alpha := make([]float64, m)
	rho := make([]float64, m)

	for i := m - 1; i >= 0; i-- {
		p := s.history[i]
		rho[i] = 1 / dot(p.y, p.s)
		alpha[i] = rho[i] * dot(p.s, q)
		axpy(-alpha[i], p.y, q)
	}

	gamma := s.opts.InitAlpha
	if m > 0 {
		last := s.history[m-1]
		yy := dot(last.y, last.y)
		if yy > 0 {
			gamma = dot(last.s, last.y) / yy
		}
	}
	for i := range q {
		q[i] *= gamma
	}

	for i := 0; i < m; i++ {
		p := s.history[i]
		beta := rho[i] * dot(p.y, q)
		axpy(alpha[i]-beta, p.s, q)
	}

	for i := range q {
		q[i] = -q[i]
	}
	return q
}

// Step performs one L-BFGS iteration: compute a direction, line-search
// along it, and push the resulting curvature pair into the
// two-loop-recursion memory if it passes the stepper's curvature check. It returns the new
// iterate together with the code the driver loop uses to decide whether to
// keep looping (spec.md §4.F).
func (s *Stepper) Step() Result {
	if s.iter >= s.opts.MaxIter {
		return Result{X: s.x, G: s.g, F: s.f, Code: StepMaxIterations}
	}

	gNorm := infNorm(s.g)
	if gNorm <= s.opts.GradTol {
		return Result{X: s.x, G: s.g, F: s.f, Code: StepConverged}
	}

	d := s.direction()
	gd := dot(s.g, d)
	if gd >= 0 {
		// Direction is not a descent direction (can happen after a bad
		// curvature pair): discard memory and fall back to steepest
		// descent for this step.
		s.history = nil
		d = make([]float64, s.n)
		for i := range d {
			d[i] = -s.g[i]
		}
		gd = dot(s.g, d)
	}

	x0 := append([]float64(nil), s.x...)
	g0 := append([]float64(nil), s.g...)
	f0 := s.f

	step, ok, panicked := s.backtrack(x0, f0, gd, d)
	if panicked {
		s.x, s.g, s.f = x0, g0, f0
		return Result{X: s.x, G: s.g, F: s.f, Code: StepEvalPanic}
	}
	if !ok {
		s.x, s.g, s.f = x0, g0, f0
		return Result{X: s.x, G: s.g, F: s.f, Code: StepLineSearchFailed}
	}
	_ = step

	s.iter++

	change := math.Max(math.Abs(f0), math.Max(math.Abs(s.f), 1))
	if f0-s.f <= s.opts.ObjTol*s.opts.RelObjTol*change {
		// Converged on function-value stagnation; the accepted step's
		// pair still goes into memory. The driver builds its final Taylor
		// approximation at this point from its own history.
		s.pushPair(x0, g0)
		return Result{X: s.x, G: s.g, F: s.f, Code: StepConverged}
	}

	if wasReset := s.pushPair(x0, g0); !wasReset {
		return Result{X: s.x, G: s.g, F: s.f, Code: StepResetLineSearch}
	}
	return Result{X: s.x, G: s.g, F: s.f, Code: StepOK}
}

// pushPair forms (y, s) from the last two iterates and appends it to the
// two-loop-recursion memory if it passes a basic curvature check; returns
// whether the pair was accepted.
func (s *Stepper) pushPair(x0, g0 []float64) bool {
	y := make([]float64, s.n)
	sk := make([]float64, s.n)
	for i := 0; i < s.n; i++ {
		y[i] = s.g[i] - g0[i]
		sk[i] = s.x[i] - x0[i]
	}
	sy := dot(sk, y)
	if sy <= 1e-10*math.Max(1, dot(sk, sk)) {
		return false
	}
	s.history = append(s.history, pair{y: y, s: sk})
	if len(s.history) > s.opts.Memory {
		s.history = s.history[1:]
	}
	return true
}

// backtrack performs a simple Armijo-Wolfe backtracking search starting at
// unit step length, in the style of lbfgsb/linesearch.go's sufficient
// decrease (alpha=1e-3) and curvature (beta=0.9) conditions.
func (s *Stepper) backtrack(x0 []float64, f0, gd float64, d []float64) (step float64, ok, panicked bool) {
	step = 1.0
	x := make([]float64, s.n)
	g := make([]float64, s.n)
	for iter := 0; iter < maxBackFits; iter++ {
		for i := range x {
			x[i] = x0[i] + step*d[i]
		}
		f, evalOK, evalPanicked := s.safeEvalAt(x, g)
		if evalPanicked {
			return step, false, true
		}
		if !evalOK {
			step *= 0.5
			continue
		}
		sufficientDecrease := f <= f0+searchAlpha*step*gd
		curvature := math.Abs(dot(g, d)) <= searchBeta*math.Abs(gd)
		if sufficientDecrease && curvature {
			s.x, s.g, s.f = append([]float64(nil), x...), append([]float64(nil), g...), f
			return step, true, false
		}
		if sufficientDecrease {
			// Decrease satisfied but curvature isn't: accept anyway, so
			// sufficient decrease alone decides acceptance and the
			// curvature test never causes a rejection.
			s.x, s.g, s.f = append([]float64(nil), x...), append([]float64(nil), g...), f
			return step, true, false
		}
		step *= 0.5
	}
	return step, false, false
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func axpy(a float64, x, y []float64) {
	for i := range y {
		y[i] += a * x[i]
	}
}

func infNorm(v []float64) float64 {
	m := 0.0
	for _, x := range v {
		if a := math.Abs(x); a > m {
			m = a
		}
	}
	return m
}
