package kde

import (
	"math/rand/v2"
	"testing"

	"github.com/YuminosukeSato/sbikde/dataset"
	"github.com/YuminosukeSato/sbikde/pkg/log"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// correlated3D draws n rows over ("a", "b", "c") with correlated axes on
// different scales.
func correlated3D(n int, seed uint64) (*mat.Dense, []string) {
	rng := rand.New(rand.NewPCG(seed, seed))
	X := mat.NewDense(n, 3, nil)
	for i := 0; i < n; i++ {
		u, v, w := rng.NormFloat64(), rng.NormFloat64(), rng.NormFloat64()
		X.Set(i, 0, 2+3*u)
		X.Set(i, 1, -1+0.5*u+0.2*v)
		X.Set(i, 2, 10*(v-0.5*w))
	}
	return X, []string{"a", "b", "c"}
}

func bimodalData(t testing.TB, perComponent int, seed uint64) (*mat.Dense, []string) {
	t.Helper()
	g := dataset.Bimodal()
	X, err := g.SampleEach(rand.New(rand.NewPCG(seed, seed)), perComponent)
	require.NoError(t, err)
	return X, g.Features
}

func fitted(t testing.TB, X mat.Matrix, features []string, opts ...Option) *ConditionalKDE {
	t.Helper()
	opts = append([]Option{WithLogger(log.Nop())}, opts...)
	est, err := New(opts...)
	require.NoError(t, err)
	require.NoError(t, est.Fit(X, features))
	return est
}

// pointsAt builds M x 2 query rows (x_i, y).
func pointsAt(xs []float64, y float64) *mat.Dense {
	P := mat.NewDense(len(xs), 2, nil)
	for i, x := range xs {
		P.Set(i, 0, x)
		P.Set(i, 1, y)
	}
	return P
}

func linspace(lo, hi float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = lo + (hi-lo)*float64(i)/float64(n-1)
	}
	return out
}
