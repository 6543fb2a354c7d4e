// Package sbikde provides conditional kernel density estimation for
// simulation-based inference in Go.
//
// A simulator is run many times to produce joint samples of parameters and
// observables. sbikde fits a Gaussian kernel density estimator on those
// samples once, and then answers any conditional query on the same fit:
// the posterior p(theta | x), the likelihood p(x | theta), or any other split
// of the features into free and conditioning sets.
//
// # Quick Start
//
//	package main
//
//	import (
//	    "fmt"
//	    "log"
//
//	    "github.com/YuminosukeSato/sbikde/kde"
//	    "gonum.org/v1/gonum/mat"
//	)
//
//	func main() {
//	    est, err := kde.New(
//	        kde.WithWhitening(kde.WhiteningZCA),
//	        kde.WithBandwidth(kde.Optimized(kde.DefaultSteps, kde.DefaultCVFolds, -1)),
//	    )
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    // sims is an n×2 matrix of (theta, x) draws
//	    if err := est.Fit(sims, []string{"theta", "x"}); err != nil {
//	        log.Fatal(err)
//	    }
//	    points := mat.NewDense(1, 2, []float64{0.3, 1.1})
//	    logp, err := est.ScoreSamples(points, []string{"x"})
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    fmt.Println("log p(theta | x):", logp[0])
//	}
//
// # Packages
//
//   - kde: the ConditionalKDE estimator, bandwidth selection and persistence
//   - posterior: unnormalised posteriors from a fitted estimator and a prior
//   - dataset: Gaussian mixtures and a conjugate model with exact densities
//   - preprocessing: rescale and ZCA whitening transforms
//   - crossval: K-fold splitting used by bandwidth search
//   - core/model: shared interfaces, fitted-state locking and gob helpers
//   - core/parallel: worker fan-out for batch queries
//   - pkg/errors, pkg/log: error types and structured logging
//
// The sbikde command under cmd/sbikde exposes fit, score, sample and demo
// subcommands over CSV files.
package sbikde
