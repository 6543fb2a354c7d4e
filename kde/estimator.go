package kde

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/YuminosukeSato/sbikde/core/model"
	"github.com/YuminosukeSato/sbikde/pkg/errors"
	"github.com/YuminosukeSato/sbikde/pkg/log"
	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"
)

const modelName = "ConditionalKDE"

var (
	_ model.ConditionalScorer  = (*ConditionalKDE)(nil)
	_ model.ConditionalSampler = (*ConditionalKDE)(nil)
	_ model.ParameterGetter    = (*ConditionalKDE)(nil)
)

// ConditionalKDE はガウスカーネル密度推定による同時分布モデル
//
// Fit で名前付き特徴量の同時サンプルを学習し、任意の特徴量の部分集合で条件付けた
// 分布の対数密度評価 (ScoreSamples) とサンプリング (Sample) を提供する。
// カーネルは白色化空間で等方的 (共分散 h²I)、元の座標では共分散 h²Σ となる。
// Σ は白色化の逆変換から決まる (none: I, rescale: diag(var), zca: 共分散行列)。
//
// 学習後のクエリは読み取り専用で、複数のゴルーチンから同時に呼び出せる。
//
// 使用例:
//
//	est, err := kde.New(
//	    kde.WithWhitening(kde.WhiteningZCA),
//	    kde.WithBandwidth(kde.Optimized(10, 5, -1)),
//	    kde.WithRandomState(42),
//	)
//	err = est.Fit(X, []string{"x", "y"})
//	logp, err := est.ScoreSamples(points, []string{"y"})
//	draws, err := est.Sample(map[string]float64{"y": 1.5}, 1000, false)
type ConditionalKDE struct {
	state *model.StateManager

	whitening Whitening
	bandwidth Bandwidth
	seed      uint64
	nJobs     int
	logger    log.Logger
	id        string

	rngMu sync.Mutex
	rng   *rand.Rand

	fit *fittedState
}

// fittedState is immutable once built; a re-fit swaps the whole value.
type fittedState struct {
	features []string
	index    map[string]int

	// samples are the kernel centres in original units (N x D)
	samples *mat.Dense
	// whitened = samples T^T
	whitened  *mat.Dense
	transform *mat.Dense
	inverse   *mat.Dense
	// shape = T^-1 T^-T, the kernel covariance in original units divided by h²
	shape *mat.SymDense

	h       float64
	cvScore float64
}

// New は新しいConditionalKDEを作成する。設定が不正な場合は ValidationError を返す。
func New(opts ...Option) (*ConditionalKDE, error) {
	k := &ConditionalKDE{
		state:     model.NewStateManager(),
		whitening: WhiteningRescale,
		bandwidth: Scott(),
		nJobs:     -1,
		id:        uuid.NewString(),
	}
	for _, opt := range opts {
		opt(k)
	}
	if err := k.whitening.validate(); err != nil {
		return nil, err
	}
	if err := k.bandwidth.validate(); err != nil {
		return nil, err
	}
	if k.logger == nil {
		k.logger = log.GetLogger()
	}
	k.logger = k.logger.With(log.ModelNameKey, modelName, log.EstimatorIDKey, k.id)
	k.rng = newRand(k.seed)
	return k, nil
}

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed))
}

// Fit は X (n_samples × n_features) の各行を同時分布からのサンプルとして学習する。
//
// features は列の名前で、len(features) は列数と一致しなければならない。
// 再学習は以前の状態を完全に置き換える。失敗した場合、推定器は未学習状態に戻る。
func (k *ConditionalKDE) Fit(X mat.Matrix, features []string) (err error) {
	defer errors.Recover(&err, "ConditionalKDE.Fit")
	start := time.Now()

	fs, err := k.buildState(X, features)

	// rngMu is always taken before the state lock, matching Sample.
	k.rngMu.Lock()
	_ = k.state.WithStateMut(func() error {
		if err != nil {
			k.fit = nil
			k.state.ResetLocked()
			return nil
		}
		k.fit = fs
		n, d := fs.samples.Dims()
		k.state.MarkFitted(d, n)
		return nil
	})
	if err == nil {
		k.rng = newRand(k.seed)
	}
	k.rngMu.Unlock()
	if err != nil {
		k.logger.Error("Fit failed", err,
			log.OperationKey, log.OperationFit,
			log.PhaseKey, log.PhaseTraining,
			log.ErrorCodeKey, log.ErrorCode(err),
		)
		return err
	}

	n, d := fs.samples.Dims()
	k.logger.Info("Fit completed",
		log.OperationKey, log.OperationFit,
		log.PhaseKey, log.PhaseTraining,
		log.SamplesKey, n,
		log.FeaturesKey, d,
		log.FeatureNamesKey, fs.features,
		log.WhiteningKey, k.whitening.String(),
		log.BandwidthModeKey, k.bandwidth.mode.String(),
		log.BandwidthKey, fs.h,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}

// buildState validates X and computes the fitted state. A panic here becomes
// the returned error so that Fit still resets the estimator.
func (k *ConditionalKDE) buildState(X mat.Matrix, features []string) (fs *fittedState, err error) {
	defer errors.Recover(&err, "ConditionalKDE.Fit")
	n, d := X.Dims()
	if n == 0 || d == 0 {
		return nil, errors.NewModelError("ConditionalKDE.Fit", "empty data", errors.ErrEmptyData)
	}
	if n < 2 {
		return nil, errors.NewValidationError("n_samples", "at least 2 samples are required", n)
	}
	if len(features) != d {
		return nil, errors.NewShapeMismatchError("ConditionalKDE.Fit", len(features), d)
	}
	index := make(map[string]int, d)
	for i, name := range features {
		if name == "" {
			return nil, errors.NewValidationError("features", "feature names must be non-empty", i)
		}
		if _, dup := index[name]; dup {
			return nil, errors.NewValidationError("features", "duplicate feature name", name)
		}
		index[name] = i
	}
	if err := errors.CheckMatrix("ConditionalKDE.Fit", X); err != nil {
		return nil, err
	}

	samples := mat.DenseCopyOf(X)
	w := k.whitening.newWhitener(features)
	if err := w.Fit(samples); err != nil {
		return nil, err
	}
	zm, err := w.Transform(samples)
	if err != nil {
		return nil, err
	}
	whitened := mat.DenseCopyOf(zm)

	fs = &fittedState{
		features:  append([]string(nil), features...),
		index:     index,
		samples:   samples,
		whitened:  whitened,
		transform: w.Matrix(),
		inverse:   w.InverseMatrix(),
		cvScore:   math.NaN(),
	}
	fs.shape = kernelShape(fs.inverse)

	switch k.bandwidth.mode {
	case BandwidthFixed:
		fs.h = k.bandwidth.value
	case BandwidthOptimized:
		res, err := searchBandwidth(whitened, k.bandwidth, k.seed)
		if err != nil {
			return nil, err
		}
		fs.h, fs.cvScore = res.best, res.bestScore
		k.logger.Debug("Bandwidth search finished",
			log.OperationKey, log.OperationBandwidthSearch,
			log.StepsKey, len(res.candidates),
			log.CVFoldsKey, k.bandwidth.cvFolds,
			log.NJobsKey, k.bandwidth.nJobs,
			log.BandwidthKey, res.best,
			log.CVScoreKey, res.bestScore,
		)
		if res.onBoundary() {
			errors.Warn(errors.NewBandwidthBoundaryWarning(res.best, res.candidates[0], res.candidates[len(res.candidates)-1]))
		}
	default:
		fs.h = scottBandwidth(n, d)
	}
	return fs, nil
}

// kernelShape returns T^-1 T^-T, symmetrised.
func kernelShape(inverse *mat.Dense) *mat.SymDense {
	d, _ := inverse.Dims()
	var m mat.Dense
	m.Mul(inverse, inverse.T())
	shape := mat.NewSymDense(d, nil)
	for i := 0; i < d; i++ {
		for j := i; j < d; j++ {
			shape.SetSym(i, j, 0.5*(m.At(i, j)+m.At(j, i)))
		}
	}
	return shape
}

// IsFitted はモデルが学習済みかどうかを返す
func (k *ConditionalKDE) IsFitted() bool {
	return k.state.IsFitted()
}

// ID はログ相関用の推定器インスタンスIDを返す
func (k *ConditionalKDE) ID() string {
	return k.id
}

// Features は学習時の特徴量名を返す。未学習の場合は nil。
func (k *ConditionalKDE) Features() []string {
	var out []string
	_ = k.state.WithState(modelName, "Features", func() error {
		out = append([]string(nil), k.fit.features...)
		return nil
	})
	return out
}

// Bandwidth は学習時に決定されたバンド幅 (白色化空間での値) を返す。未学習の場合は 0。
func (k *ConditionalKDE) Bandwidth() float64 {
	var h float64
	_ = k.state.WithState(modelName, "Bandwidth", func() error {
		h = k.fit.h
		return nil
	})
	return h
}

// CVScore は最適化されたバンド幅の交差検証平均対数尤度を返す。
// バンド幅探索を行っていない場合は NaN。
func (k *ConditionalKDE) CVScore() float64 {
	score := math.NaN()
	_ = k.state.WithState(modelName, "CVScore", func() error {
		score = k.fit.cvScore
		return nil
	})
	return score
}

// NSamples は学習サンプル数を返す
func (k *ConditionalKDE) NSamples() int {
	_, n := k.state.GetDimensions()
	return n
}

// WhitenedSamples は白色化後の学習サンプルのコピーを返す
func (k *ConditionalKDE) WhitenedSamples() (*mat.Dense, error) {
	var out *mat.Dense
	err := k.state.WithState(modelName, "WhitenedSamples", func() error {
		out = mat.DenseCopyOf(k.fit.whitened)
		return nil
	})
	return out, err
}

// WhiteningMatrix は白色化変換 T (z = T x) のコピーを返す
func (k *ConditionalKDE) WhiteningMatrix() (*mat.Dense, error) {
	var out *mat.Dense
	err := k.state.WithState(modelName, "WhiteningMatrix", func() error {
		out = mat.DenseCopyOf(k.fit.transform)
		return nil
	})
	return out, err
}

// GetParams はハイパーパラメータを返す
func (k *ConditionalKDE) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"whitening":    k.whitening.String(),
		"bandwidth":    k.bandwidth.String(),
		"steps":        k.bandwidth.steps,
		"cv_fold":      k.bandwidth.cvFolds,
		"n_jobs":       k.nJobs,
		"random_state": k.seed,
	}
}

// String はモデルの文字列表現を返す
func (k *ConditionalKDE) String() string {
	if !k.IsFitted() {
		return fmt.Sprintf("ConditionalKDE(whitening=%s, bandwidth=%s)", k.whitening, k.bandwidth)
	}
	nFeatures, nSamples := k.state.GetDimensions()
	return fmt.Sprintf("ConditionalKDE(whitening=%s, bandwidth=%s, h=%.4g, n_samples=%d, n_features=%d)",
		k.whitening, k.bandwidth, k.Bandwidth(), nSamples, nFeatures)
}
