// Package pathfinder implements the single-path Pathfinder variational
// inference core: an L-BFGS-driven sequence of Gaussian Taylor
// approximations to a target log-density, scored by a Monte-Carlo ELBO
// estimate, with the winning approximation's draws returned together with
// log-importance ratios suitable for Pareto-smoothed importance sampling
// (see the sibling internal/psis package).
//
// The autodiff engine providing the log-density and its gradient, the
// constraining transform, and the outer multi-path coordinator are all
// external collaborators specified only at the interfaces below (spec.md
// §1, §6).
package pathfinder

import "errors"

// LPFunc evaluates the unnormalized target log-density at an unconstrained
// point. A panic is treated as a non-fatal, point-local failure: the
// affected draw's target log-density is recorded as -Inf (spec.md §7). This
// is the ELBO estimator's (§4.C) view of the target.
type LPFunc func(x []float64) float64

// GradFunc evaluates the target log-density and fills grad with its
// gradient at x. This is the autodiff engine's contract with the internal
// L-BFGS stepper (spec.md §1: "the autodiff engine providing log-density
// and gradient (lp_fun, grad_fun)" — an out-of-scope collaborator; only the
// stepper's per-step outputs matter to the rest of this package).
type GradFunc func(x, grad []float64) (lp float64)

// ConstrainFunc maps an unconstrained draw to the constrained parameter
// space, filling out (which has length numConstrained) and optionally
// consuming randomness from stream (spec.md §6). An error here triggers
// the §4.E fallback to the K ELBO draws; if the K draws also fail to
// constrain, it is propagated to the caller of Run as Result.Err with
// Status StatusSoftware.
type ConstrainFunc func(stream RNGStream, xUnconstrained []float64, out []float64) error

// RNGStream is the minimal surface Pathfinder needs from a Gaussian
// source; internal/rng.Stream implements it.
type RNGStream interface {
	Normal() float64
	NormalVector(dst []float64)
	Uniform(lo, hi float64) float64
}

// InitContext supplies optional initial values for the unconstrained
// parameter vector (spec.md §6). Values with length < dimension, or
// individual NaN entries, are left to be drawn uniformly in
// (-InitRadius, +InitRadius).
type InitContext struct {
	Values []float64
}

// Config holds the tunables spec.md §6 recognizes.
type Config struct {
	RandomSeed uint64
	Path       int

	InitRadius float64 // width of uniform initial prior, >= 0

	HistorySize int     // history_size m >= 1
	InitAlpha   float64 // init_alpha > 0

	TolObj     float64
	TolRelObj  float64
	TolGrad    float64
	TolRelGrad float64
	TolParam   float64

	NumIterations int // num_iterations L >= 1
	NumElboDraws  int // num_elbo_draws K >= 1
	NumDraws      int // num_draws M >= K

	SaveIterations bool // write per-iteration diagnostics
	Refresh        int  // 0 = silent, else log every N iterations

	MinGridPts int // PSIS floor on GPD grid density
	TailLen    int // PSIS tail size; disabled if < 5
}

// DefaultConfig mirrors Stan's pathfinder service defaults.
func DefaultConfig() Config {
	return Config{
		InitRadius:    2,
		HistorySize:   5,
		InitAlpha:     0.001,
		TolObj:        1e-12,
		TolRelObj:     1e4,
		TolGrad:       1e-8,
		TolRelGrad:    1e7,
		TolParam:      1e-8,
		NumIterations: 1000,
		NumElboDraws:  100,
		NumDraws:      1000,
		Refresh:       100,
		MinGridPts:    30,
		TailLen:       0,
	}
}

// Validate checks the recognized options (spec.md §6) and fills in
// zero-valued fields from DefaultConfig, the way lbfgsb.Problem.New
// validates/defaults a Termination.
func (c *Config) Validate(dim int) error {
	def := DefaultConfig()
	if c.InitRadius < 0 {
		return errors.New("pathfinder: init_radius must be >= 0")
	}
	if c.HistorySize == 0 {
		c.HistorySize = def.HistorySize
	} else if c.HistorySize < 1 {
		return errors.New("pathfinder: history_size must be >= 1")
	}
	if c.InitAlpha == 0 {
		c.InitAlpha = def.InitAlpha
	} else if c.InitAlpha <= 0 {
		return errors.New("pathfinder: init_alpha must be > 0")
	}
	if c.NumIterations == 0 {
		c.NumIterations = def.NumIterations
	} else if c.NumIterations < 1 {
		return errors.New("pathfinder: num_iterations must be >= 1")
	}
	if c.NumElboDraws == 0 {
		c.NumElboDraws = def.NumElboDraws
	} else if c.NumElboDraws < 1 {
		return errors.New("pathfinder: num_elbo_draws must be >= 1")
	}
	if c.NumDraws == 0 {
		c.NumDraws = def.NumDraws
	}
	if c.NumDraws < c.NumElboDraws {
		return errors.New("pathfinder: num_draws must be >= num_elbo_draws")
	}
	if c.TolObj == 0 {
		c.TolObj = def.TolObj
	}
	if c.TolRelObj == 0 {
		c.TolRelObj = def.TolRelObj
	}
	if c.TolGrad == 0 {
		c.TolGrad = def.TolGrad
	}
	if c.TolRelGrad == 0 {
		c.TolRelGrad = def.TolRelGrad
	}
	if c.TolParam == 0 {
		c.TolParam = def.TolParam
	}
	if c.MinGridPts == 0 {
		c.MinGridPts = def.MinGridPts
	}
	if dim <= 0 {
		return errors.New("pathfinder: dimension must be > 0")
	}
	return nil
}

// Status is the §7 error taxonomy's closed set.
type Status int

const (
	// StatusOK means the run finished normally with a best iterate found.
	StatusOK Status = iota
	// StatusSoftware means the optimizer produced no usable iterate, or
	// final sampling and its fallback both failed, or init/interrupt
	// panicked.
	StatusSoftware
)

// IterationDiagnostic is the optional per-iteration record spec.md §6
// "save_iterations" asks for, supplementing the distilled spec with the
// diagnostic the original Stan implementation writes per accepted step
// (original_source/.../single.hpp::post_lbfgs).
type IterationDiagnostic struct {
	Iter    int
	X, G    []float64
	ELBO    float64
	UseFull bool
}

// DiagnosticWriter receives one IterationDiagnostic per accepted L-BFGS
// step when Config.SaveIterations is set.
type DiagnosticWriter func(IterationDiagnostic)

// Result is the driver's final output (spec.md §6 "Emitted").
type Result struct {
	Status Status

	// BestIter is the L-BFGS iteration number the winning approximation
	// came from.
	BestIter int
	ELBO     float64

	// Draws is (numConstrained+2) x M: each column is one constrained
	// draw followed by lp_approx and lp_target.
	Draws [][]float64
	// LPRatio has length M, suitable for psis.Smooth.
	LPRatio []float64

	FnCalls        int
	PairsRejected  int // curvature-check rejections across the whole run
	TaylorFailures int // Taylor-construction failures across the whole run

	Err error // non-nil iff Status == StatusSoftware
}
