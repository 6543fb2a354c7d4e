package kde

import (
	"bytes"
	"path/filepath"
	"sync"
	"testing"

	"github.com/YuminosukeSato/sbikde/core/model"
	"github.com/YuminosukeSato/sbikde/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestPersistenceRoundTrip(t *testing.T) {
	X, features := correlated3D(60, 41)
	est := fitted(t, X, features,
		WithWhitening(WhiteningZCA),
		WithBandwidth(Optimized(4, 3, 1)),
		WithRandomState(8),
	)

	path := filepath.Join(t.TempDir(), "model.gob")
	require.NoError(t, model.SaveModel(est, path))

	loaded := &ConditionalKDE{}
	require.NoError(t, model.LoadModel(loaded, path))

	assert.True(t, loaded.IsFitted())
	assert.Equal(t, est.ID(), loaded.ID())
	assert.Equal(t, est.Features(), loaded.Features())
	assert.Equal(t, est.Bandwidth(), loaded.Bandwidth())
	assert.Equal(t, est.CVScore(), loaded.CVScore())
	assert.Equal(t, est.GetParams(), loaded.GetParams())

	queries, _ := correlated3D(10, 42)
	want, err := est.ScoreSamples(queries, []string{"b"})
	require.NoError(t, err)
	got, err := loaded.ScoreSamples(queries, []string{"b"})
	require.NoError(t, err)
	assert.InDeltaSlice(t, want, got, 1e-12)

	// both sources restart from the seed, so draws agree too
	fresh := fitted(t, X, features, WithWhitening(WhiteningZCA), WithBandwidth(Optimized(4, 3, 1)), WithRandomState(8))
	a, err := fresh.Sample(map[string]float64{"a": 1}, 5, true)
	require.NoError(t, err)
	b, err := loaded.Sample(map[string]float64{"a": 1}, 5, true)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(a, b, 1e-12))
}

func TestPersistenceUnfitted(t *testing.T) {
	est, err := New(WithWhitening(WhiteningNone), WithBandwidth(Fixed(0.3)))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, model.SaveModelToWriter(est, &buf))

	loaded := &ConditionalKDE{}
	require.NoError(t, model.LoadModelFromReader(loaded, &buf))
	assert.False(t, loaded.IsFitted())
	assert.Equal(t, "none", loaded.GetParams()["whitening"])
	assert.Equal(t, "0.3", loaded.GetParams()["bandwidth"])

	_, err = loaded.ScoreSamples(mat.NewDense(1, 1, nil), nil)
	var nf *errors.NotFittedError
	assert.True(t, errors.As(err, &nf))
}

func TestUnmarshalBinaryRejectsGarbage(t *testing.T) {
	loaded := &ConditionalKDE{}
	assert.Error(t, loaded.UnmarshalBinary([]byte("not a model")))
	assert.False(t, loaded.IsFitted())
}

func TestUnmarshalBinaryWhileQueried(t *testing.T) {
	X, features := correlated3D(50, 5)
	est := fitted(t, X, features, WithRandomState(3))
	data, err := est.MarshalBinary()
	require.NoError(t, err)

	// a second estimator with a different id forces the logger to be re-tagged
	target := fitted(t, X, features, WithRandomState(3))
	queries, _ := correlated3D(8, 6)

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				if _, err := target.ScoreSamples(queries, []string{"a"}); err != nil {
					t.Error(err)
					return
				}
				if _, err := target.Sample(map[string]float64{"a": 0}, 2, false); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	for i := 0; i < 10; i++ {
		require.NoError(t, target.UnmarshalBinary(data))
	}
	wg.Wait()
	assert.Equal(t, est.ID(), target.ID())
}
