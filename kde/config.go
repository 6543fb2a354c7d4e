package kde

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/YuminosukeSato/sbikde/pkg/errors"
	"github.com/YuminosukeSato/sbikde/preprocessing"
)

// Whitening selects the linear transform applied to the samples before the
// kernel is placed. The kernel is isotropic in whitened space.
type Whitening int

const (
	// WhiteningNone uses the samples as given.
	WhiteningNone Whitening = iota
	// WhiteningRescale divides every feature by its standard deviation.
	WhiteningRescale
	// WhiteningZCA whitens along the principal axes of the sample covariance.
	WhiteningZCA
)

func (w Whitening) String() string {
	switch w {
	case WhiteningNone:
		return "none"
	case WhiteningRescale:
		return "rescale"
	case WhiteningZCA:
		return "zca"
	default:
		return fmt.Sprintf("Whitening(%d)", int(w))
	}
}

// ParseWhitening converts "none", "rescale" or "zca" into a Whitening.
func ParseWhitening(s string) (Whitening, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none":
		return WhiteningNone, nil
	case "rescale":
		return WhiteningRescale, nil
	case "zca":
		return WhiteningZCA, nil
	default:
		return 0, errors.NewValidationError("whitening", "must be one of none, rescale, zca", s)
	}
}

func (w Whitening) validate() error {
	switch w {
	case WhiteningNone, WhiteningRescale, WhiteningZCA:
		return nil
	default:
		return errors.NewValidationError("whitening", "unknown whitening algorithm", int(w))
	}
}

func (w Whitening) newWhitener(features []string) preprocessing.Whitener {
	switch w {
	case WhiteningRescale:
		return preprocessing.NewRescaler(features...)
	case WhiteningZCA:
		return preprocessing.NewZCAWhitener()
	default:
		return preprocessing.NewIdentityWhitener()
	}
}

// BandwidthMode tags the variant held by a Bandwidth.
type BandwidthMode int

const (
	// BandwidthScott uses h = N^(-1/(D+4)).
	BandwidthScott BandwidthMode = iota
	// BandwidthFixed uses a caller supplied value.
	BandwidthFixed
	// BandwidthOptimized selects h by K-fold cross-validated log-likelihood.
	BandwidthOptimized
)

func (m BandwidthMode) String() string {
	switch m {
	case BandwidthScott:
		return "scott"
	case BandwidthFixed:
		return "fixed"
	case BandwidthOptimized:
		return "optimized"
	default:
		return fmt.Sprintf("BandwidthMode(%d)", int(m))
	}
}

// Default search settings used by ParseBandwidth("optimized").
const (
	DefaultSteps   = 10
	DefaultCVFolds = 5
)

// Bandwidth is the kernel width setting, expressed in whitened units. The
// zero value is Scott's rule.
type Bandwidth struct {
	mode    BandwidthMode
	value   float64
	steps   int
	cvFolds int
	nJobs   int
}

// Scott returns the Scott's rule bandwidth setting.
func Scott() Bandwidth {
	return Bandwidth{mode: BandwidthScott}
}

// Fixed returns a fixed bandwidth. h must be positive and finite; this is
// checked by New.
func Fixed(h float64) Bandwidth {
	return Bandwidth{mode: BandwidthFixed, value: h}
}

// Optimized returns a cross-validated bandwidth search over steps log-spaced
// candidates, scored with cvFolds folds on nJobs workers (<= 0 for all cores).
func Optimized(steps, cvFolds, nJobs int) Bandwidth {
	return Bandwidth{mode: BandwidthOptimized, steps: steps, cvFolds: cvFolds, nJobs: nJobs}
}

// ParseBandwidth accepts "scott", "optimized" or a positive number.
func ParseBandwidth(s string) (Bandwidth, error) {
	switch v := strings.ToLower(strings.TrimSpace(s)); v {
	case "scott":
		return Scott(), nil
	case "optimized":
		return Optimized(DefaultSteps, DefaultCVFolds, -1), nil
	default:
		h, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return Bandwidth{}, errors.NewValidationError("bandwidth", `must be "scott", "optimized" or a positive number`, s)
		}
		b := Fixed(h)
		if err := b.validate(); err != nil {
			return Bandwidth{}, err
		}
		return b, nil
	}
}

// Mode returns the variant tag.
func (b Bandwidth) Mode() BandwidthMode { return b.mode }

// Value returns the fixed bandwidth; zero for other modes.
func (b Bandwidth) Value() float64 { return b.value }

// Steps returns the number of search candidates of an optimized bandwidth.
func (b Bandwidth) Steps() int { return b.steps }

// CVFolds returns the number of cross-validation folds of an optimized bandwidth.
func (b Bandwidth) CVFolds() int { return b.cvFolds }

// NJobs returns the search parallelism of an optimized bandwidth.
func (b Bandwidth) NJobs() int { return b.nJobs }

// WithSearch returns a copy of an optimized bandwidth with the given search
// settings; non-positive steps or folds keep the current value.
func (b Bandwidth) WithSearch(steps, cvFolds, nJobs int) Bandwidth {
	if b.mode != BandwidthOptimized {
		return b
	}
	if steps > 0 {
		b.steps = steps
	}
	if cvFolds > 0 {
		b.cvFolds = cvFolds
	}
	b.nJobs = nJobs
	return b
}

func (b Bandwidth) String() string {
	switch b.mode {
	case BandwidthFixed:
		return strconv.FormatFloat(b.value, 'g', -1, 64)
	case BandwidthOptimized:
		return fmt.Sprintf("optimized(steps=%d, cv_fold=%d, n_jobs=%d)", b.steps, b.cvFolds, b.nJobs)
	default:
		return b.mode.String()
	}
}

func (b Bandwidth) validate() error {
	switch b.mode {
	case BandwidthScott:
		return nil
	case BandwidthFixed:
		if !(b.value > 0) || math.IsInf(b.value, 0) {
			return errors.NewValidationError("bandwidth", "must be a positive finite number", b.value)
		}
		return nil
	case BandwidthOptimized:
		if b.steps < 1 {
			return errors.NewValidationError("steps", "must be at least 1", b.steps)
		}
		if b.cvFolds < 2 {
			return errors.NewValidationError("cv_fold", "must be at least 2", b.cvFolds)
		}
		return nil
	default:
		return errors.NewValidationError("bandwidth", "unknown bandwidth mode", int(b.mode))
	}
}
