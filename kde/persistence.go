package kde

import (
	"bytes"
	"encoding/gob"

	"github.com/YuminosukeSato/sbikde/core/model"
	"github.com/YuminosukeSato/sbikde/pkg/errors"
	"github.com/YuminosukeSato/sbikde/pkg/log"
	"gonum.org/v1/gonum/mat"
)

// snapshot is the gob wire form of a ConditionalKDE. Matrices use gonum's
// binary encoding.
type snapshot struct {
	Version int

	Whitening     int
	BandwidthMode int
	BandwidthH    float64
	Steps         int
	CVFolds       int
	SearchNJobs   int
	Seed          uint64
	NJobs         int
	ID            string

	Fitted    bool
	Features  []string
	Samples   []byte
	Transform []byte
	Inverse   []byte
	H         float64
	CVScore   float64
}

const snapshotVersion = 1

// MarshalBinary encodes the configuration and, if fitted, the fitted state.
// It lets model.SaveModel persist an estimator.
func (k *ConditionalKDE) MarshalBinary() ([]byte, error) {
	s := snapshot{
		Version:       snapshotVersion,
		Whitening:     int(k.whitening),
		BandwidthMode: int(k.bandwidth.mode),
		BandwidthH:    k.bandwidth.value,
		Steps:         k.bandwidth.steps,
		CVFolds:       k.bandwidth.cvFolds,
		SearchNJobs:   k.bandwidth.nJobs,
		Seed:          k.seed,
		NJobs:         k.nJobs,
		ID:            k.id,
	}

	err := k.state.WithState(modelName, "MarshalBinary", func() error {
		fs := k.fit
		var err error
		s.Fitted = true
		s.Features = fs.features
		s.H = fs.h
		s.CVScore = fs.cvScore
		if s.Samples, err = fs.samples.MarshalBinary(); err != nil {
			return err
		}
		if s.Transform, err = fs.transform.MarshalBinary(); err != nil {
			return err
		}
		s.Inverse, err = fs.inverse.MarshalBinary()
		return err
	})
	var nf *errors.NotFittedError
	if err != nil && !errors.As(err, &nf) {
		return nil, errors.Wrap(err, "failed to encode fitted state")
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&s); err != nil {
		return nil, errors.Wrap(err, "failed to encode ConditionalKDE")
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary restores an estimator written by MarshalBinary, replacing
// any existing state. The receiver may be a zero value.
func (k *ConditionalKDE) UnmarshalBinary(data []byte) error {
	if k.state == nil {
		k.state = model.NewStateManager()
	}

	var s snapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return errors.Wrap(err, "failed to decode ConditionalKDE")
	}
	if s.Version != snapshotVersion {
		return errors.NewValidationError("version", "unsupported snapshot version", s.Version)
	}

	w := Whitening(s.Whitening)
	if err := w.validate(); err != nil {
		return err
	}
	b := Bandwidth{
		mode:    BandwidthMode(s.BandwidthMode),
		value:   s.BandwidthH,
		steps:   s.Steps,
		cvFolds: s.CVFolds,
		nJobs:   s.SearchNJobs,
	}
	if err := b.validate(); err != nil {
		return err
	}

	var fs *fittedState
	if s.Fitted {
		var err error
		if fs, err = restoreState(&s); err != nil {
			return err
		}
	}

	k.rngMu.Lock()
	defer k.rngMu.Unlock()
	return k.state.WithStateMut(func() error {
		if k.logger == nil {
			k.logger = log.GetLogger()
		}
		switch {
		case k.id == "":
			k.logger = k.logger.With(log.ModelNameKey, modelName, log.EstimatorIDKey, s.ID)
		case k.id != s.ID:
			k.logger = k.logger.With(log.EstimatorIDKey, s.ID)
		}
		k.whitening, k.bandwidth = w, b
		k.seed, k.nJobs, k.id = s.Seed, s.NJobs, s.ID
		k.fit = fs
		if fs == nil {
			k.state.ResetLocked()
		} else {
			n, d := fs.samples.Dims()
			k.state.MarkFitted(d, n)
		}
		k.rng = newRand(k.seed)
		return nil
	})
}

func restoreState(s *snapshot) (*fittedState, error) {
	fs := &fittedState{
		features:  append([]string(nil), s.Features...),
		index:     make(map[string]int, len(s.Features)),
		samples:   new(mat.Dense),
		transform: new(mat.Dense),
		inverse:   new(mat.Dense),
		h:         s.H,
		cvScore:   s.CVScore,
	}
	if err := fs.samples.UnmarshalBinary(s.Samples); err != nil {
		return nil, errors.Wrap(err, "failed to decode samples")
	}
	if err := fs.transform.UnmarshalBinary(s.Transform); err != nil {
		return nil, errors.Wrap(err, "failed to decode whitening matrix")
	}
	if err := fs.inverse.UnmarshalBinary(s.Inverse); err != nil {
		return nil, errors.Wrap(err, "failed to decode inverse whitening matrix")
	}

	_, d := fs.samples.Dims()
	if len(fs.features) != d {
		return nil, errors.NewShapeMismatchError("ConditionalKDE.UnmarshalBinary", len(fs.features), d)
	}
	if r, c := fs.transform.Dims(); r != d || c != d {
		return nil, errors.NewShapeMismatchError("ConditionalKDE.UnmarshalBinary", d, c)
	}
	if !(fs.h > 0) {
		return nil, errors.NewValidationError("bandwidth", "must be positive", fs.h)
	}
	for i, name := range fs.features {
		fs.index[name] = i
	}

	fs.whitened = new(mat.Dense)
	fs.whitened.Mul(fs.samples, fs.transform.T())
	fs.shape = kernelShape(fs.inverse)
	return fs, nil
}
