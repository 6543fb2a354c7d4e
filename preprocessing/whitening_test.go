package preprocessing

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/YuminosukeSato/sbikde/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// correlatedData draws n rows of a 3-d Gaussian with strongly correlated axes
// and very different scales.
func correlatedData(n int, seed uint64) *mat.Dense {
	rng := rand.New(rand.NewPCG(seed, seed))
	X := mat.NewDense(n, 3, nil)
	for i := 0; i < n; i++ {
		a, b, c := rng.NormFloat64(), rng.NormFloat64(), rng.NormFloat64()
		X.Set(i, 0, 100+50*a)
		X.Set(i, 1, 0.01*(a+0.3*b))
		X.Set(i, 2, -3+a-2*b+0.5*c)
	}
	return X
}

func TestWhitenersRoundTrip(t *testing.T) {
	X := correlatedData(500, 1)
	whiteners := []Whitener{NewIdentityWhitener(), NewRescaler(), NewZCAWhitener()}

	for _, w := range whiteners {
		t.Run(w.Name(), func(t *testing.T) {
			require.NoError(t, w.Fit(X))

			Z, err := w.Transform(X)
			require.NoError(t, err)
			back, err := w.InverseTransform(Z)
			require.NoError(t, err)

			r, c := X.Dims()
			for i := 0; i < r; i++ {
				for j := 0; j < c; j++ {
					want := X.At(i, j)
					got := back.At(i, j)
					assert.InDelta(t, want, got, 1e-8*math.Max(1, math.Abs(want)), "row %d col %d", i, j)
				}
			}

			var prod mat.Dense
			prod.Mul(w.Matrix(), w.InverseMatrix())
			assert.True(t, mat.EqualApprox(&prod, identity(c), 1e-10))
		})
	}
}

func TestRescalerUnitVariance(t *testing.T) {
	X := correlatedData(400, 2)
	w := NewRescaler()
	require.NoError(t, w.Fit(X))
	Z, err := w.Transform(X)
	require.NoError(t, err)

	r, c := Z.Dims()
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, Z)
		assert.InDelta(t, 1.0, stat.StdDev(col, nil), 1e-10)
		assert.InDelta(t, 1/w.Scale[j], w.Matrix().At(j, j), 1e-15)
	}
}

func TestZCAWhitenedCovarianceIsIdentity(t *testing.T) {
	X := correlatedData(600, 3)
	w := NewZCAWhitener()
	require.NoError(t, w.Fit(X))
	Z, err := w.Transform(X)
	require.NoError(t, err)

	cov := mat.NewSymDense(3, nil)
	stat.CovarianceMatrix(cov, Z, nil)
	assert.True(t, mat.EqualApprox(cov, identity(3), 1e-6), "covariance:\n%v", mat.Formatted(cov))

	// ZCA keeps the transform symmetric.
	T := w.Matrix()
	assert.True(t, mat.EqualApprox(T, T.T(), 1e-10))
	assert.Len(t, w.Eigenvalues, 3)
}

func TestWhitenersRejectDegenerateInput(t *testing.T) {
	X := correlatedData(100, 4)
	for i := 0; i < 100; i++ {
		X.Set(i, 1, 7)
	}

	var degErr *errors.DegenerateInputError

	err := NewRescaler("x", "y", "z").Fit(X)
	require.True(t, errors.As(err, &degErr), "got %v", err)
	assert.Equal(t, "y", degErr.Feature)

	err = NewZCAWhitener().Fit(X)
	require.True(t, errors.As(err, &degErr), "got %v", err)
	assert.Equal(t, "zca", degErr.Whitening)

	// Collinear columns are singular for ZCA but fine for rescale.
	Y := correlatedData(100, 5)
	for i := 0; i < 100; i++ {
		Y.Set(i, 2, 2*Y.At(i, 0))
	}
	assert.NoError(t, NewRescaler().Fit(Y))
	assert.True(t, errors.As(NewZCAWhitener().Fit(Y), &degErr))

	assert.NoError(t, NewIdentityWhitener().Fit(X))
}

func TestWhitenerErrors(t *testing.T) {
	w := NewZCAWhitener()
	_, err := w.Transform(mat.NewDense(2, 3, nil))
	var nfErr *errors.NotFittedError
	assert.True(t, errors.As(err, &nfErr))

	require.NoError(t, w.Fit(correlatedData(50, 6)))
	_, err = w.Transform(mat.NewDense(2, 2, nil))
	var shapeErr *errors.ShapeMismatchError
	assert.True(t, errors.As(err, &shapeErr))

	var valErr *errors.ValidationError
	assert.True(t, errors.As(NewRescaler().Fit(mat.NewDense(1, 2, []float64{1, 2})), &valErr))
}
