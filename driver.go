package pathfinder

import (
	"math"

	"github.com/gaussrun/pathfinder/internal/elbo"
	"github.com/gaussrun/pathfinder/internal/history"
	"github.com/gaussrun/pathfinder/internal/lbfgs"
	"github.com/gaussrun/pathfinder/internal/rng"
	"github.com/gaussrun/pathfinder/internal/taylor"
)

// Problem bundles the external collaborators one Pathfinder run needs
// (spec.md §6 "Consumed").
type Problem struct {
	Dim            int
	NumConstrained int
	LP             LPFunc
	Grad           GradFunc
	Constrain      ConstrainFunc
	Init           InitContext
	// Interrupt is invoked once per outer L-BFGS step (spec.md §5); a
	// panic from it unwinds the driver and returns StatusSoftware with
	// empty outputs.
	Interrupt func()
	Diagnostic DiagnosticWriter
}

// Run drives the full single-path algorithm: optimizer loop, history and
// Taylor-approximation bookkeeping, ELBO-based iterate selection, and the
// final-draw stage (spec.md §4.F, component I).
func Run(p Problem, cfg Config, logger *Logger) *Result {
	logger.normalize()

	if err := cfg.Validate(p.Dim); err != nil {
		return &Result{Status: StatusSoftware, Err: err}
	}

	stream := rng.New(cfg.RandomSeed, cfg.Path)
	x0 := buildInit(p.Dim, p.Init, cfg.InitRadius, stream)

	d := &runState{
		problem: p,
		cfg:     cfg,
		logger:  logger,
		stream:  stream,
		hist:    history.NewBuffer(cfg.HistorySize),
		alpha:   onesVec(p.Dim),
		best:    bestRecord{elbo: math.Inf(-1)},
	}

	opt, err := lbfgs.New(x0, d.optimizerEval, lbfgs.Options{
		Memory:     cfg.HistorySize,
		MaxIter:    cfg.NumIterations,
		InitAlpha:  cfg.InitAlpha,
		GradTol:    cfg.TolGrad,
		RelGradTol: cfg.TolRelGrad,
		ObjTol:     cfg.TolObj,
		RelObjTol:  cfg.TolRelObj,
		ParamTol:   cfg.TolParam,
	})
	if err != nil {
		return &Result{Status: StatusSoftware, Err: err}
	}
	d.opt = opt

	if r := d.loop(); r != nil {
		return r
	}

	return d.finalize()
}

// runState holds the driver's mutable state across the loop, staged into
// separate step/record/select methods.
type runState struct {
	problem Problem
	cfg     Config
	logger  *Logger
	stream  *rng.Stream
	opt     *lbfgs.Stepper
	hist    *history.Buffer
	alpha   []float64

	prevX, prevG []float64
	havePrev     bool

	best bestRecord

	fnCalls        int
	pairsRejected  int
	taylorFailures int
}

type bestRecord struct {
	elbo    float64
	iter    int
	approx  taylor.Approx
	est     elbo.Estimate
	found   bool
}

// optimizerEval adapts GradFunc into lbfgs.Evaluation: L-BFGS here walks
// toward the mode by minimizing the negated log-density.
func (d *runState) optimizerEval(x, g []float64) float64 {
	lp := d.problem.Grad(x, g)
	for i := range g {
		g[i] = -g[i]
	}
	return -lp
}

// loop implements spec.md §4.F's repeat block; it returns a StatusSoftware
// Result if the interrupt callback panicked or no usable iterate was found,
// and nil otherwise.
func (d *runState) loop() *Result {
	if r := d.safeInterrupt(); r != nil {
		return r
	}
	d.recordStep(d.opt.X(), d.opt.G(), true)

	for {
		step := d.opt.Step()
		if step.Code != lbfgs.StepOK && step.Code != lbfgs.StepResetLineSearch {
			// Terminal: StepConverged, StepMaxIterations,
			// StepLineSearchFailed, or StepEvalPanic.
			d.recordStep(step.X, step.G, false)
			break
		}

		if r := d.safeInterrupt(); r != nil {
			return r
		}

		d.recordStep(step.X, step.G, step.Code != lbfgs.StepResetLineSearch)

		if d.cfg.Refresh > 0 && d.opt.Iter()%d.cfg.Refresh == 0 && d.logger.enable(LogEval) {
			d.logger.log("iter %5d  best=%12.5e\n", d.opt.Iter(), d.best.elbo)
		}
	}

	if !d.best.found {
		return &Result{Status: StatusSoftware, Err: errNoUsableIterate}
	}
	return nil
}

// recordStep is spec.md §4.F steps 2-5 for one accepted (x, g): update
// history/alpha if a pair is usable, build the Taylor approximation,
// estimate its ELBO, and update the running best.
func (d *runState) recordStep(x, g []float64, usablePair bool) {
	if usablePair && d.havePrev {
		y := subtract(g, d.prevG)
		s := subtract(x, d.prevX)
		if history.IsFinite(y) && history.IsFinite(s) {
			if _, ok := history.CheckCurvature(y, s); ok {
				d.alpha = history.UpdateAlpha(d.alpha, y, s)
				d.hist.Push(history.Pair{Y: y, S: s})
			} else {
				d.pairsRejected++
			}
		}
	}
	d.prevX, d.prevG, d.havePrev = append([]float64(nil), x...), append([]float64(nil), g...), true

	mats := d.hist.Build()
	approx, err := taylor.Build(taylor.Input{
		Y: mats.Y, S: mats.S, Diag: mats.Diag, NMat: mats.NMat,
		Alpha: d.alpha, X: x, G: g,
	})
	if err != nil {
		d.taylorFailures++
		return
	}

	est := elbo.Compute(approx, d.cfg.NumElboDraws, d.wrapLP, d.stream)
	d.fnCalls += est.FnCalls

	if d.problem.Diagnostic != nil && d.cfg.SaveIterations {
		d.problem.Diagnostic(IterationDiagnostic{
			Iter: d.opt.Iter(), X: x, G: g, ELBO: est.ELBO, UseFull: approx.UseFull,
		})
	}

	if d.logger.enable(LogEval) {
		d.logger.log("iter %5d  use_full=%v  n=%d  d=%d  elbo=%12.5e\n",
			d.opt.Iter(), approx.UseFull, mats.N, len(x), est.ELBO)
	}

	// Ties keep the earliest (spec.md §4.D): strict > only.
	if !d.best.found || est.ELBO > d.best.elbo {
		d.best = bestRecord{elbo: est.ELBO, iter: d.opt.Iter(), approx: approx, est: est, found: true}
	}
}

func (d *runState) wrapLP(x []float64) float64 {
	return d.problem.LP(x)
}

func (d *runState) safeInterrupt() (res *Result) {
	if d.problem.Interrupt == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			res = &Result{Status: StatusSoftware, Err: errInterruptPanicked}
		}
	}()
	d.problem.Interrupt()
	return nil
}

func buildInit(dim int, init InitContext, radius float64, stream *rng.Stream) []float64 {
	x := make([]float64, dim)
	for i := 0; i < dim; i++ {
		if i < len(init.Values) && !math.IsNaN(init.Values[i]) {
			x[i] = init.Values[i]
			continue
		}
		x[i] = stream.Uniform(-radius, radius)
	}
	return x
}

func onesVec(n int) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = 1
	}
	return v
}

func subtract(a, b []float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		out[i] = a[i] - b[i]
	}
	return out
}
