package dataset

import (
	"math"
	"math/rand/v2"

	"github.com/YuminosukeSato/sbikde/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// ConjugateGaussian is the simulator theta ~ N(PriorMean, PriorStd²),
// x | theta ~ N(theta, NoiseStd²). Its posterior after any number of
// observations is Gaussian and known in closed form.
type ConjugateGaussian struct {
	PriorMean float64
	PriorStd  float64
	NoiseStd  float64
}

// ConjugateFeatures are the column names produced by Simulate.
var ConjugateFeatures = []string{"theta", "x"}

func (c ConjugateGaussian) validate() error {
	if !(c.PriorStd > 0) || math.IsInf(c.PriorStd, 0) {
		return errors.NewValidationError("prior_std", "must be positive and finite", c.PriorStd)
	}
	if !(c.NoiseStd > 0) || math.IsInf(c.NoiseStd, 0) {
		return errors.NewValidationError("noise_std", "must be positive and finite", c.NoiseStd)
	}
	return nil
}

// Prior returns the prior over theta.
func (c ConjugateGaussian) Prior() distuv.Normal {
	return distuv.Normal{Mu: c.PriorMean, Sigma: c.PriorStd}
}

// Simulate draws n joint (theta, x) rows.
func (c ConjugateGaussian) Simulate(rng *rand.Rand, n int) (*mat.Dense, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	if n < 1 {
		return nil, errors.NewValidationError("n", "must be at least 1", n)
	}
	X := mat.NewDense(n, 2, nil)
	for i := 0; i < n; i++ {
		theta := c.PriorMean + c.PriorStd*rng.NormFloat64()
		X.Set(i, 0, theta)
		X.Set(i, 1, theta+c.NoiseStd*rng.NormFloat64())
	}
	return X, nil
}

// Posterior returns the exact posterior of theta after the observations obs.
// With no observations it is the prior.
func (c ConjugateGaussian) Posterior(obs []float64) (distuv.Normal, error) {
	if err := c.validate(); err != nil {
		return distuv.Normal{}, err
	}
	precision := 1 / (c.PriorStd * c.PriorStd)
	weighted := c.PriorMean * precision
	noisePrec := 1 / (c.NoiseStd * c.NoiseStd)
	for _, x := range obs {
		precision += noisePrec
		weighted += x * noisePrec
	}
	return distuv.Normal{Mu: weighted / precision, Sigma: math.Sqrt(1 / precision)}, nil
}
