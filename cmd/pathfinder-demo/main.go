// Command pathfinder-demo runs a single Pathfinder path against an
// isotropic multivariate normal target (spec.md §8 scenario 1) and prints
// the winning ELBO and a handful of summary statistics, the way
// lbfgsb/optimize_test.go's TestBasic exercises its optimizer against a
// small inline objective.
package main

import (
	"fmt"
	"math"
	"os"

	"github.com/gaussrun/pathfinder"
)

const dim = 5

// logDensity is the unnormalized log-density of a standard isotropic
// normal: -1/2 sum(x_i^2), the simplest target that still exercises the
// dense/sparse Taylor switch as history accumulates.
func logDensity(x []float64) float64 {
	s := 0.0
	for _, v := range x {
		s += v * v
	}
	return -0.5 * s
}

// grad fills g with the gradient of logDensity at x and returns the
// log-density itself, matching pathfinder.GradFunc.
func grad(x, g []float64) float64 {
	for i, v := range x {
		g[i] = -v
	}
	return logDensity(x)
}

// identityConstrain leaves the unconstrained draw as-is: this target has no
// constrained reparameterization.
func identityConstrain(_ pathfinder.RNGStream, x []float64, out []float64) error {
	copy(out, x)
	return nil
}

func main() {
	cfg := pathfinder.DefaultConfig()
	cfg.RandomSeed = 20240521
	cfg.Path = 1
	cfg.HistorySize = 5
	cfg.InitRadius = 2
	cfg.NumIterations = 1000
	cfg.NumElboDraws = 1000
	cfg.NumDraws = 1000

	problem := pathfinder.Problem{
		Dim:            dim,
		NumConstrained: dim,
		LP:             logDensity,
		Grad:           grad,
		Constrain:      identityConstrain,
	}

	logger := &pathfinder.Logger{Level: pathfinder.LogEval, Msg: os.Stdout}

	result := pathfinder.Run(problem, cfg, logger)
	if result.Status != pathfinder.StatusOK {
		fmt.Fprintf(os.Stderr, "pathfinder-demo: run failed: %v\n", result.Err)
		os.Exit(1)
	}

	fmt.Printf("best iteration: %d\n", result.BestIter)
	fmt.Printf("elbo:           %.6f\n", result.ELBO)
	fmt.Printf("fn calls:       %d\n", result.FnCalls)
	fmt.Printf("pairs rejected: %d\n", result.PairsRejected)
	fmt.Printf("taylor fails:   %d\n", result.TaylorFailures)

	mean := make([]float64, dim)
	m := len(result.Draws[0])
	for row := 0; row < dim; row++ {
		for _, v := range result.Draws[row] {
			mean[row] += v
		}
		mean[row] /= float64(m)
	}
	fmt.Printf("draw means (expect ~0): %v\n", mean)

	maxRatio := math.Inf(-1)
	for _, v := range result.LPRatio {
		if v > maxRatio {
			maxRatio = v
		}
	}
	fmt.Printf("max log importance ratio: %.6f\n", maxRatio)
}
