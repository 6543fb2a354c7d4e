package kde

import (
	"math"
	"math/rand/v2"
	"sort"
	"testing"

	"github.com/YuminosukeSato/sbikde/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Draws from Sample must follow the density reported by ScoreSamples. The
// reference distribution is the density on a fine grid used as weights.
func TestSampleAgreesWithScoreSamples(t *testing.T) {
	X, features := bimodalData(t, 500, 21)
	est := fitted(t, X, features, WithRandomState(7))

	for _, y0 := range []float64{-3, 1.5} {
		draws, err := est.Sample(map[string]float64{"y": y0}, 4000, false)
		require.NoError(t, err)
		r, c := draws.Dims()
		require.Equal(t, 4000, r)
		require.Equal(t, 1, c)

		xs := mat.Col(nil, 0, draws)
		sort.Float64s(xs)

		grid := linspace(-25, 35, 12001)
		logp, err := est.ScoreSamples(pointsAt(grid, y0), []string{"y"})
		require.NoError(t, err)
		weights := make([]float64, len(grid))
		for i, lp := range logp {
			weights[i] = math.Exp(lp)
		}

		d := stat.KolmogorovSmirnov(xs, nil, grid, weights)
		assert.Less(t, d, 0.04, "y=%g", y0)
	}
}

func TestSampleKeepDims(t *testing.T) {
	X, features := correlated3D(100, 22)
	est := fitted(t, X, features, WithRandomState(1))

	draws, err := est.Sample(map[string]float64{"b": -1.2, "c": 4}, 50, true)
	require.NoError(t, err)
	r, c := draws.Dims()
	require.Equal(t, 50, r)
	require.Equal(t, 3, c)
	for i := 0; i < r; i++ {
		assert.Equal(t, -1.2, draws.At(i, 1))
		assert.Equal(t, 4.0, draws.At(i, 2))
	}

	free, err := est.Sample(map[string]float64{"b": -1.2}, 10, false)
	require.NoError(t, err)
	_, c = free.Dims()
	assert.Equal(t, 2, c)
}

func TestSampleUnconditionalMoments(t *testing.T) {
	X, features := correlated3D(400, 23)
	est := fitted(t, X, features, WithRandomState(2))

	draws, err := est.Sample(nil, 20000, false)
	require.NoError(t, err)
	_, c := draws.Dims()
	require.Equal(t, 3, c)

	for j := 0; j < 3; j++ {
		wantMean, wantStd := stat.MeanStdDev(mat.Col(nil, j, X), nil)
		gotMean, gotStd := stat.MeanStdDev(mat.Col(nil, j, draws), nil)
		assert.InDelta(t, wantMean, gotMean, 0.05*wantStd, "feature %d", j)
		// kernel smoothing inflates the spread by sqrt(1 + h²)
		h := est.Bandwidth()
		assert.InDelta(t, wantStd*math.Sqrt(1+h*h), gotStd, 0.05*wantStd, "feature %d", j)
	}
}

func TestSampleReproducible(t *testing.T) {
	X, features := correlated3D(80, 24)
	cond := map[string]float64{"a": 3}

	a := fitted(t, X, features, WithRandomState(42))
	b := fitted(t, X, features, WithRandomState(42))
	da, err := a.Sample(cond, 25, false)
	require.NoError(t, err)
	db, err := b.Sample(cond, 25, false)
	require.NoError(t, err)
	assert.True(t, mat.Equal(da, db))

	// re-fitting reseeds the default source
	require.NoError(t, a.Fit(X, features))
	again, err := a.Sample(cond, 25, false)
	require.NoError(t, err)
	assert.True(t, mat.Equal(da, again))

	r1, err := a.SampleWithRand(rand.New(rand.NewPCG(5, 5)), cond, 25, false)
	require.NoError(t, err)
	r2, err := b.SampleWithRand(rand.New(rand.NewPCG(5, 5)), cond, 25, false)
	require.NoError(t, err)
	assert.True(t, mat.Equal(r1, r2))
	assert.False(t, mat.Equal(r1, da))
}

func TestSampleErrors(t *testing.T) {
	X, features := correlated3D(30, 25)
	est := fitted(t, X, features)

	var ve *errors.ValidationError
	_, err := est.Sample(nil, 0, false)
	assert.True(t, errors.As(err, &ve))
	_, err = est.SampleWithRand(nil, nil, 10, false)
	assert.True(t, errors.As(err, &ve))

	var ice *errors.InvalidConditioningError
	_, err = est.Sample(map[string]float64{"a": 0, "b": 0, "c": 0}, 5, false)
	assert.True(t, errors.As(err, &ice))
	_, err = est.Sample(map[string]float64{"nope": 0}, 5, false)
	assert.True(t, errors.As(err, &ice))

	var nie *errors.NumericalInstabilityError
	_, err = est.Sample(map[string]float64{"a": math.NaN()}, 5, false)
	assert.True(t, errors.As(err, &nie))
}

// Far from the data the kernel weights underflow in linear space; draws must
// still be finite.
func TestSampleFarConditioningValue(t *testing.T) {
	X, features := bimodalData(t, 300, 26)
	est := fitted(t, X, features, WithBandwidth(Fixed(0.05)), WithRandomState(3))

	draws, err := est.Sample(map[string]float64{"y": 200}, 100, false)
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		v := draws.At(i, 0)
		assert.False(t, math.IsNaN(v) || math.IsInf(v, 0))
	}
}
