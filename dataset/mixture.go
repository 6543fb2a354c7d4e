// Package dataset provides simulators with a known analytic density, used to
// check conditional density estimators end to end.
package dataset

import (
	"math"
	"math/rand/v2"
	"sort"

	"github.com/YuminosukeSato/sbikde/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
)

// Component is one weighted Gaussian of a mixture.
type Component struct {
	Weight float64
	Mean   []float64
	Cov    *mat.SymDense
}

// GaussianMixture is a finite mixture of multivariate Gaussians over named
// features. Weights need not sum to one; they are normalised on use.
type GaussianMixture struct {
	Features   []string
	Components []Component
}

// Bimodal returns the two-component mixture over ("x", "y")
//
//	N([0, -5], diag(1, 5)) + N([10, 5], diag(5, 1))
//
// with equal weights. Conditioning on y moves the mass of x between the modes.
func Bimodal() *GaussianMixture {
	return &GaussianMixture{
		Features: []string{"x", "y"},
		Components: []Component{
			{Weight: 1, Mean: []float64{0, -5}, Cov: mat.NewSymDense(2, []float64{1, 0, 0, 5})},
			{Weight: 1, Mean: []float64{10, 5}, Cov: mat.NewSymDense(2, []float64{5, 0, 0, 1})},
		},
	}
}

// Dim returns the number of features.
func (g *GaussianMixture) Dim() int {
	return len(g.Features)
}

// Validate checks weights, means and covariances for consistency.
func (g *GaussianMixture) Validate() error {
	d := g.Dim()
	if d == 0 {
		return errors.NewValidationError("features", "mixture needs at least one feature", d)
	}
	if len(g.Components) == 0 {
		return errors.NewValidationError("components", "mixture needs at least one component", 0)
	}
	for i, c := range g.Components {
		if !(c.Weight > 0) || math.IsInf(c.Weight, 0) {
			return errors.NewValidationError("weight", "component weights must be positive and finite", i)
		}
		if len(c.Mean) != d {
			return errors.NewShapeMismatchError("GaussianMixture.Validate", d, len(c.Mean))
		}
		if c.Cov == nil || c.Cov.SymmetricDim() != d {
			return errors.NewValidationError("cov", "covariance must be D x D", i)
		}
		var chol mat.Cholesky
		if ok := chol.Factorize(c.Cov); !ok {
			return errors.NewModelError("GaussianMixture.Validate", "covariance is not positive definite", errors.ErrSingularMatrix)
		}
	}
	return nil
}

// Sample draws n rows, picking a component by weight for every row.
func (g *GaussianMixture) Sample(rng *rand.Rand, n int) (*mat.Dense, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	if n < 1 {
		return nil, errors.NewValidationError("n", "must be at least 1", n)
	}

	cdf := make([]float64, len(g.Components))
	acc := 0.0
	for i, c := range g.Components {
		acc += c.Weight
		cdf[i] = acc
	}
	chols := g.choleskyFactors()

	d := g.Dim()
	X := mat.NewDense(n, d, nil)
	z := make([]float64, d)
	for r := 0; r < n; r++ {
		u := rng.Float64() * acc
		k := sort.Search(len(cdf), func(i int) bool { return cdf[i] > u })
		if k == len(cdf) {
			k--
		}
		g.draw(X.RawRowView(r), k, chols[k], z, rng)
	}
	return X, nil
}

// SampleEach draws exactly perComponent rows from every component, stacked in
// component order.
func (g *GaussianMixture) SampleEach(rng *rand.Rand, perComponent int) (*mat.Dense, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	if perComponent < 1 {
		return nil, errors.NewValidationError("per_component", "must be at least 1", perComponent)
	}
	chols := g.choleskyFactors()
	d := g.Dim()
	X := mat.NewDense(perComponent*len(g.Components), d, nil)
	z := make([]float64, d)
	for k := range g.Components {
		for r := 0; r < perComponent; r++ {
			g.draw(X.RawRowView(k*perComponent+r), k, chols[k], z, rng)
		}
	}
	return X, nil
}

func (g *GaussianMixture) choleskyFactors() []*mat.TriDense {
	out := make([]*mat.TriDense, len(g.Components))
	for i, c := range g.Components {
		var chol mat.Cholesky
		chol.Factorize(c.Cov)
		out[i] = mat.NewTriDense(g.Dim(), mat.Lower, nil)
		chol.LTo(out[i])
	}
	return out
}

// draw writes mean_k + L z into dst.
func (g *GaussianMixture) draw(dst []float64, k int, l *mat.TriDense, z []float64, rng *rand.Rand) {
	for j := range z {
		z[j] = rng.NormFloat64()
	}
	mean := g.Components[k].Mean
	for i := range dst {
		s := mean[i]
		for j := 0; j <= i; j++ {
			s += l.At(i, j) * z[j]
		}
		dst[i] = s
	}
}

// LogProb returns the log density of the full feature vector x.
func (g *GaussianMixture) LogProb(x []float64) (float64, error) {
	if err := g.Validate(); err != nil {
		return 0, err
	}
	if len(x) != g.Dim() {
		return 0, errors.NewShapeMismatchError("GaussianMixture.LogProb", g.Dim(), len(x))
	}
	terms := make([]float64, len(g.Components))
	for i, c := range g.Components {
		nrm, ok := distmv.NewNormal(c.Mean, c.Cov, nil)
		if !ok {
			return 0, errors.NewModelError("GaussianMixture.LogProb", "covariance is not positive definite", errors.ErrSingularMatrix)
		}
		terms[i] = math.Log(c.Weight) + nrm.LogProb(x)
	}
	return floats.LogSumExp(terms) - math.Log(g.totalWeight()), nil
}

// ConditionalLogProb returns log p(x_F | x_C) where C is the set of features
// named in conditional and F the rest. x holds every feature in mixture order.
// The result is exact: each component is conditioned analytically and
// reweighted by its marginal density at x_C.
func (g *GaussianMixture) ConditionalLogProb(x []float64, conditional []string) (float64, error) {
	if err := g.Validate(); err != nil {
		return 0, err
	}
	if len(x) != g.Dim() {
		return 0, errors.NewShapeMismatchError("GaussianMixture.ConditionalLogProb", g.Dim(), len(x))
	}
	cond, free, err := g.split(conditional)
	if err != nil {
		return 0, err
	}
	if len(cond) == 0 {
		return g.LogProb(x)
	}

	y := gather(x, cond)
	xf := gather(x, free)
	logw := make([]float64, len(g.Components))
	terms := make([]float64, len(g.Components))
	for i, c := range g.Components {
		nrm, ok := distmv.NewNormal(c.Mean, c.Cov, nil)
		if !ok {
			return 0, errors.NewModelError("GaussianMixture.ConditionalLogProb", "covariance is not positive definite", errors.ErrSingularMatrix)
		}
		marg, ok := nrm.MarginalNormal(cond, nil)
		if !ok {
			return 0, errors.NewModelError("GaussianMixture.ConditionalLogProb", "marginal covariance is not positive definite", errors.ErrSingularMatrix)
		}
		given, ok := nrm.ConditionNormal(cond, y, nil)
		if !ok {
			return 0, errors.NewModelError("GaussianMixture.ConditionalLogProb", "conditional covariance is not positive definite", errors.ErrSingularMatrix)
		}
		logw[i] = math.Log(c.Weight) + marg.LogProb(y)
		terms[i] = logw[i] + given.LogProb(xf)
	}
	return floats.LogSumExp(terms) - floats.LogSumExp(logw), nil
}

// split resolves names into conditioning and free index sets, both ascending.
func (g *GaussianMixture) split(names []string) (cond, free []int, err error) {
	isCond := make([]bool, g.Dim())
	for _, name := range names {
		j := -1
		for i, f := range g.Features {
			if f == name {
				j = i
				break
			}
		}
		if j < 0 {
			return nil, nil, errors.NewInvalidConditioningError("GaussianMixture.ConditionalLogProb", names, "unknown feature '"+name+"'")
		}
		if isCond[j] {
			return nil, nil, errors.NewInvalidConditioningError("GaussianMixture.ConditionalLogProb", names, "duplicate feature '"+name+"'")
		}
		isCond[j] = true
	}
	for j, c := range isCond {
		if c {
			cond = append(cond, j)
		} else {
			free = append(free, j)
		}
	}
	if len(free) == 0 {
		return nil, nil, errors.NewInvalidConditioningError("GaussianMixture.ConditionalLogProb", names, "conditioning on every feature leaves no free features")
	}
	return cond, free, nil
}

func (g *GaussianMixture) totalWeight() float64 {
	s := 0.0
	for _, c := range g.Components {
		s += c.Weight
	}
	return s
}

func gather(x []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for a, j := range idx {
		out[a] = x[j]
	}
	return out
}
