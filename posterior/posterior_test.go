package posterior

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/YuminosukeSato/sbikde/dataset"
	"github.com/YuminosukeSato/sbikde/kde"
	"github.com/YuminosukeSato/sbikde/pkg/errors"
	"github.com/YuminosukeSato/sbikde/pkg/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func conjugateEstimator(t *testing.T, sim dataset.ConjugateGaussian, n int) *kde.ConditionalKDE {
	t.Helper()
	X, err := sim.Simulate(rand.New(rand.NewPCG(17, 17)), n)
	require.NoError(t, err)
	est, err := kde.New(kde.WithBandwidth(kde.Fixed(0.1)), kde.WithLogger(log.Nop()))
	require.NoError(t, err)
	require.NoError(t, est.Fit(X, dataset.ConjugateFeatures))
	return est
}

// moments returns the mean and standard deviation of the density exp(logp)
// on an evenly spaced grid.
func moments(grid, logp []float64) (mean, std float64) {
	maxLP := floats.Max(logp)
	w := make([]float64, len(logp))
	for i, lp := range logp {
		w[i] = math.Exp(lp - maxLP)
	}
	total := floats.Sum(w)
	for i, x := range grid {
		mean += w[i] * x
	}
	mean /= total
	for i, x := range grid {
		std += w[i] * (x - mean) * (x - mean)
	}
	return mean, math.Sqrt(std / total)
}

func thetaGrid(lo, hi float64, n int) (*mat.Dense, []float64) {
	grid := make([]float64, n)
	for i := range grid {
		grid[i] = lo + (hi-lo)*float64(i)/float64(n-1)
	}
	return mat.NewDense(n, 1, append([]float64(nil), grid...)), grid
}

func TestPosteriorMatchesConjugateAnalytic(t *testing.T) {
	sim := dataset.ConjugateGaussian{PriorMean: 0, PriorStd: 1, NoiseStd: 0.5}
	est := conjugateEstimator(t, sim, 20000)

	prior, err := NewGaussianPrior([]float64{0}, []float64{1})
	require.NoError(t, err)
	post, err := New(est, []string{"theta"}, []string{"x"}, prior)
	require.NoError(t, err)

	obs := []float64{0.8, 1.2, 0.5}
	theta, grid := thetaGrid(-2, 3, 1001)
	lp, err := post.LogProb(theta, mat.NewDense(len(obs), 1, obs))
	require.NoError(t, err)

	want, err := sim.Posterior(obs)
	require.NoError(t, err)
	mean, std := moments(grid, lp)
	assert.InDelta(t, want.Mu, mean, 0.05)
	assert.InEpsilon(t, want.Sigma, std, 0.15)

	t.Run("single observation", func(t *testing.T) {
		lp, err := post.LogProb(theta, mat.NewDense(1, 1, []float64{1}))
		require.NoError(t, err)
		want, err := sim.Posterior([]float64{1})
		require.NoError(t, err)
		mean, std := moments(grid, lp)
		assert.InDelta(t, want.Mu, mean, 0.05)
		assert.InEpsilon(t, want.Sigma, std, 0.15)
	})
}

func TestLogLikelihoodMatchesSimulator(t *testing.T) {
	sim := dataset.ConjugateGaussian{PriorMean: 0, PriorStd: 1, NoiseStd: 0.5}
	est := conjugateEstimator(t, sim, 20000)
	prior, err := NewGaussianPrior([]float64{0}, []float64{1})
	require.NoError(t, err)
	post, err := New(est, []string{"theta"}, []string{"x"}, prior)
	require.NoError(t, err)

	theta := mat.NewDense(3, 1, []float64{-0.2, 0, 0.3})
	lp, err := post.LogLikelihood(theta, []float64{0.1})
	require.NoError(t, err)
	require.Len(t, lp, 3)
	for i := 0; i < 3; i++ {
		d := 0.1 - theta.At(i, 0)
		want := -0.5*math.Log(2*math.Pi*0.25) - d*d/(2*0.25)
		assert.InDelta(t, want, lp[i], 0.2, "theta=%g", theta.At(i, 0))
	}
}

func TestCombine(t *testing.T) {
	per := [][]float64{
		{-1, -2, -3},
		{-1.5, -0.5, -4},
	}
	logPrior := []float64{-0.5, math.Inf(-1), -1}
	out, err := Combine(per, logPrior)
	require.NoError(t, err)
	assert.InDelta(t, -2.0, out[0], 1e-12)
	assert.True(t, math.IsInf(out[1], -1))
	assert.InDelta(t, -6.0, out[2], 1e-12)

	single, err := Combine(per[:1], logPrior)
	require.NoError(t, err)
	assert.Equal(t, -1.0, single[0])
	assert.True(t, math.IsInf(single[1], -1))

	_, err = Combine(nil, logPrior)
	assert.Error(t, err)
	_, err = Combine([][]float64{{1}}, logPrior)
	var sme *errors.ShapeMismatchError
	assert.True(t, errors.As(err, &sme))
}

func TestUniformPrior(t *testing.T) {
	p, err := NewUniformPrior([]float64{0, -1}, []float64{2, 1})
	require.NoError(t, err)
	assert.Equal(t, 2, p.Dim())
	assert.InDelta(t, -math.Log(4), p.LogProb([]float64{1, 0}), 1e-12)
	assert.True(t, math.IsInf(p.LogProb([]float64{3, 0}), -1))
	assert.True(t, math.IsNaN(p.LogProb([]float64{1})))

	draws := p.Sample(rand.New(rand.NewPCG(1, 1)), 500)
	for i := 0; i < 500; i++ {
		assert.False(t, math.IsInf(p.LogProb(mat.Row(nil, i, draws)), -1))
	}

	_, err = NewUniformPrior([]float64{1}, []float64{1})
	assert.Error(t, err)
	_, err = NewUniformPrior([]float64{0, 0}, []float64{1})
	assert.Error(t, err)
}

func TestGaussianPrior(t *testing.T) {
	p, err := NewGaussianPrior([]float64{1}, []float64{2})
	require.NoError(t, err)
	assert.InDelta(t, -0.5*math.Log(2*math.Pi*4), p.LogProb([]float64{1}), 1e-12)

	_, err = NewGaussianPrior([]float64{0}, []float64{0})
	assert.Error(t, err)
}

func TestNewValidation(t *testing.T) {
	sim := dataset.ConjugateGaussian{PriorMean: 0, PriorStd: 1, NoiseStd: 0.5}
	est := conjugateEstimator(t, sim, 200)
	prior, err := NewGaussianPrior([]float64{0}, []float64{1})
	require.NoError(t, err)

	_, err = New(est, []string{"theta"}, []string{"y"}, prior)
	var ice *errors.InvalidConditioningError
	assert.True(t, errors.As(err, &ice))

	_, err = New(est, []string{"theta"}, []string{"theta"}, prior)
	assert.True(t, errors.As(err, &ice))

	_, err = New(est, []string{"theta"}, []string{"x"}, nil)
	assert.Error(t, err)

	unfitted, err := kde.New()
	require.NoError(t, err)
	_, err = New(unfitted, []string{"theta"}, []string{"x"}, prior)
	var nf *errors.NotFittedError
	assert.True(t, errors.As(err, &nf))

	post, err := New(est, []string{"theta"}, []string{"x"}, prior)
	require.NoError(t, err)
	_, err = post.LogProb(mat.NewDense(2, 2, nil), mat.NewDense(1, 1, nil))
	var sme *errors.ShapeMismatchError
	assert.True(t, errors.As(err, &sme))
	_, err = post.LogLikelihood(mat.NewDense(2, 1, nil), []float64{1, 2})
	assert.True(t, errors.As(err, &sme))
}
