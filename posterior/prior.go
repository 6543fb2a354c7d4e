// Package posterior turns a conditional density estimator fitted on joint
// (parameter, observable) simulations into the log-likelihood and
// log-posterior callbacks consumed by external samplers.
package posterior

import (
	"math"
	"math/rand/v2"

	"github.com/YuminosukeSato/sbikde/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Prior is a log density over the parameter vector.
type Prior interface {
	// LogProb returns log p(theta); -Inf outside the support.
	LogProb(theta []float64) float64
	// Dim returns the number of parameters.
	Dim() int
}

// UniformPrior is a product of independent uniform distributions on a box.
type UniformPrior struct {
	dists []distuv.Uniform
}

// NewUniformPrior returns the uniform prior on [lower_j, upper_j] per axis.
func NewUniformPrior(lower, upper []float64) (*UniformPrior, error) {
	if len(lower) == 0 || len(lower) != len(upper) {
		return nil, errors.NewValidationError("bounds", "lower and upper must be non-empty and of equal length", len(lower))
	}
	p := &UniformPrior{dists: make([]distuv.Uniform, len(lower))}
	for j := range lower {
		if !(lower[j] < upper[j]) || math.IsInf(lower[j], 0) || math.IsInf(upper[j], 0) {
			return nil, errors.NewValidationError("bounds", "each axis needs finite lower < upper", j)
		}
		p.dists[j] = distuv.Uniform{Min: lower[j], Max: upper[j]}
	}
	return p, nil
}

func (p *UniformPrior) Dim() int { return len(p.dists) }

func (p *UniformPrior) LogProb(theta []float64) float64 {
	if len(theta) != len(p.dists) {
		return math.NaN()
	}
	lp := 0.0
	for j, d := range p.dists {
		lp += d.LogProb(theta[j])
	}
	return lp
}

// Sample draws n parameter vectors.
func (p *UniformPrior) Sample(rng *rand.Rand, n int) *mat.Dense {
	out := mat.NewDense(n, len(p.dists), nil)
	for i := 0; i < n; i++ {
		for j, d := range p.dists {
			out.Set(i, j, d.Min+(d.Max-d.Min)*rng.Float64())
		}
	}
	return out
}

// GaussianPrior is a product of independent normal distributions.
type GaussianPrior struct {
	dists []distuv.Normal
}

// NewGaussianPrior returns the prior N(mean_j, std_j²) per axis.
func NewGaussianPrior(mean, std []float64) (*GaussianPrior, error) {
	if len(mean) == 0 || len(mean) != len(std) {
		return nil, errors.NewValidationError("moments", "mean and std must be non-empty and of equal length", len(mean))
	}
	p := &GaussianPrior{dists: make([]distuv.Normal, len(mean))}
	for j := range mean {
		if !(std[j] > 0) || math.IsInf(std[j], 0) {
			return nil, errors.NewValidationError("std", "must be positive and finite", std[j])
		}
		p.dists[j] = distuv.Normal{Mu: mean[j], Sigma: std[j]}
	}
	return p, nil
}

func (p *GaussianPrior) Dim() int { return len(p.dists) }

func (p *GaussianPrior) LogProb(theta []float64) float64 {
	if len(theta) != len(p.dists) {
		return math.NaN()
	}
	lp := 0.0
	for j, d := range p.dists {
		lp += d.LogProb(theta[j])
	}
	return lp
}

// Sample draws n parameter vectors.
func (p *GaussianPrior) Sample(rng *rand.Rand, n int) *mat.Dense {
	out := mat.NewDense(n, len(p.dists), nil)
	for i := 0; i < n; i++ {
		for j, d := range p.dists {
			out.Set(i, j, d.Mu+d.Sigma*rng.NormFloat64())
		}
	}
	return out
}
