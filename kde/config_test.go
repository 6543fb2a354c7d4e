package kde

import (
	"math"
	"testing"

	"github.com/YuminosukeSato/sbikde/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWhitening(t *testing.T) {
	for s, want := range map[string]Whitening{
		"none":    WhiteningNone,
		"rescale": WhiteningRescale,
		" ZCA ":   WhiteningZCA,
	} {
		got, err := ParseWhitening(s)
		require.NoError(t, err, s)
		assert.Equal(t, want, got)
	}

	_, err := ParseWhitening("pca")
	var ve *errors.ValidationError
	assert.True(t, errors.As(err, &ve))
}

func TestParseBandwidth(t *testing.T) {
	b, err := ParseBandwidth("scott")
	require.NoError(t, err)
	assert.Equal(t, BandwidthScott, b.Mode())

	b, err = ParseBandwidth("optimized")
	require.NoError(t, err)
	assert.Equal(t, BandwidthOptimized, b.Mode())
	assert.Equal(t, DefaultSteps, b.Steps())
	assert.Equal(t, DefaultCVFolds, b.CVFolds())

	b, err = ParseBandwidth("0.25")
	require.NoError(t, err)
	assert.Equal(t, BandwidthFixed, b.Mode())
	assert.Equal(t, 0.25, b.Value())

	for _, bad := range []string{"-1", "0", "wide", "NaN", "Inf"} {
		_, err := ParseBandwidth(bad)
		assert.Error(t, err, bad)
	}
}

func TestBandwidthWithSearch(t *testing.T) {
	b := Optimized(DefaultSteps, DefaultCVFolds, -1).WithSearch(20, 0, 3)
	assert.Equal(t, 20, b.Steps())
	assert.Equal(t, DefaultCVFolds, b.CVFolds())
	assert.Equal(t, 3, b.NJobs())

	assert.Equal(t, Fixed(1), Fixed(1).WithSearch(20, 3, 1))
	assert.Equal(t, "optimized(steps=20, cv_fold=5, n_jobs=3)", b.String())
}

func TestNewValidatesOptions(t *testing.T) {
	testCases := []struct {
		name string
		opt  Option
	}{
		{"unknown whitening", WithWhitening(Whitening(9))},
		{"zero bandwidth", WithBandwidth(Fixed(0))},
		{"infinite bandwidth", WithBandwidth(Fixed(math.Inf(1)))},
		{"zero steps", WithBandwidth(Optimized(0, 5, 1))},
		{"one fold", WithBandwidth(Optimized(5, 1, 1))},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.opt)
			var ve *errors.ValidationError
			assert.True(t, errors.As(err, &ve), "got %v", err)
		})
	}
}

func TestDefaults(t *testing.T) {
	est, err := New()
	require.NoError(t, err)
	params := est.GetParams()
	assert.Equal(t, "rescale", params["whitening"])
	assert.Equal(t, "scott", params["bandwidth"])
	assert.Equal(t, -1, params["n_jobs"])
	assert.Equal(t, uint64(0), params["random_state"])
	assert.NotEmpty(t, est.ID())

	other, err := New()
	require.NoError(t, err)
	assert.NotEqual(t, est.ID(), other.ID())
}
