package kde

import (
	"math"
	"math/rand/v2"
	"sort"

	"github.com/YuminosukeSato/sbikde/core/parallel"
	"github.com/YuminosukeSato/sbikde/pkg/errors"
	"github.com/YuminosukeSato/sbikde/pkg/log"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// scoreSequentialThreshold is the number of query points below which
// ScoreSamples does not spawn goroutines.
const scoreSequentialThreshold = 16

// conditionPlan is the Gaussian conditioning of every kernel on the axes in
// cond, precomputed once per query. With Σ = h² shape partitioned into free (F)
// and conditioning (C) blocks:
//
//	w_i  ∝ N(y; s_iC, Σ_CC)
//	μ_i  = s_iF + A (y - s_iC),  A = Σ_FC Σ_CC^-1
//	S    = Σ_FF - A Σ_CF
//
// Mahalanobis terms are evaluated as squared distances after mapping both the
// query and the kernel centres through the inverse Cholesky factors.
type conditionPlan struct {
	free, cond []int

	condLogNorm float64
	freeLogNorm float64

	condInv  *mat.TriDense // L_C^-1, L_C L_C^T = Σ_CC
	gain     *mat.Dense    // A, |F| x |C|
	freeChol *mat.TriDense // L_F, L_F L_F^T = S
	freeInv  *mat.TriDense // L_F^-1

	kernelCond *mat.Dense // row i: L_C^-1 s_iC
	offsets    *mat.Dense // row i: s_iF - A s_iC
	kernelFree *mat.Dense // row i: L_F^-1 (s_iF - A s_iC)
}

// resolveConditioning maps names to column indices and returns the free and
// conditioning index sets, both in fitted feature order.
func (fs *fittedState) resolveConditioning(op string, names []string) (free, cond []int, err error) {
	d := len(fs.features)
	isCond := make([]bool, d)
	for _, name := range names {
		j, ok := fs.index[name]
		if !ok {
			return nil, nil, errors.NewInvalidConditioningError(op, names, "unknown feature '"+name+"'")
		}
		if isCond[j] {
			return nil, nil, errors.NewInvalidConditioningError(op, names, "duplicate feature '"+name+"'")
		}
		isCond[j] = true
	}
	if len(names) == d {
		return nil, nil, errors.NewInvalidConditioningError(op, names, "conditioning on every feature leaves no free features")
	}
	for j := 0; j < d; j++ {
		if isCond[j] {
			cond = append(cond, j)
		} else {
			free = append(free, j)
		}
	}
	return free, cond, nil
}

func (fs *fittedState) plan(free, cond []int) (*conditionPlan, error) {
	h2 := fs.h * fs.h
	p := &conditionPlan{free: free, cond: cond}

	sigmaFF := scaledBlock(fs.shape, free, free, h2)
	var schur *mat.SymDense
	if len(cond) == 0 {
		schur = symmetrize(sigmaFF)
	} else {
		sigmaCC := symmetrize(scaledBlock(fs.shape, cond, cond, h2))
		var chol mat.Cholesky
		if ok := chol.Factorize(sigmaCC); !ok {
			return nil, errors.NewModelError("ConditionalKDE.plan", "conditioning covariance is not positive definite", errors.ErrSingularMatrix)
		}
		p.condLogNorm = -0.5 * (float64(len(cond))*math.Log(2*math.Pi) + chol.LogDet())

		var lc mat.TriDense
		chol.LTo(&lc)
		p.condInv = mat.NewTriDense(len(cond), mat.Lower, nil)
		if err := p.condInv.InverseTri(&lc); err != nil {
			return nil, errors.Wrap(err, "inverting conditioning Cholesky factor")
		}

		// A^T = Σ_CC^-1 Σ_CF
		sigmaCF := scaledBlock(fs.shape, cond, free, h2)
		var gainT mat.Dense
		if err := chol.SolveTo(&gainT, sigmaCF); err != nil {
			return nil, errors.Wrap(err, "solving for conditional gain")
		}
		p.gain = mat.DenseCopyOf(gainT.T())

		var reduction mat.Dense
		reduction.Mul(p.gain, sigmaCF)
		sigmaFF.Sub(sigmaFF, &reduction)
		schur = symmetrize(sigmaFF)
	}

	var freeChol mat.Cholesky
	if ok := freeChol.Factorize(schur); !ok {
		return nil, errors.NewModelError("ConditionalKDE.plan", "conditional covariance is not positive definite", errors.ErrSingularMatrix)
	}
	p.freeLogNorm = -0.5 * (float64(len(free))*math.Log(2*math.Pi) + freeChol.LogDet())
	p.freeChol = mat.NewTriDense(len(free), mat.Lower, nil)
	freeChol.LTo(p.freeChol)
	p.freeInv = mat.NewTriDense(len(free), mat.Lower, nil)
	if err := p.freeInv.InverseTri(p.freeChol); err != nil {
		return nil, errors.Wrap(err, "inverting conditional Cholesky factor")
	}

	centresF := columns(fs.samples, free)
	p.offsets = centresF
	if len(cond) > 0 {
		centresC := columns(fs.samples, cond)
		p.kernelCond = new(mat.Dense)
		p.kernelCond.Mul(centresC, p.condInv.T())

		var shift mat.Dense
		shift.Mul(centresC, p.gain.T())
		p.offsets = new(mat.Dense)
		p.offsets.Sub(centresF, &shift)
	}
	p.kernelFree = new(mat.Dense)
	p.kernelFree.Mul(p.offsets, p.freeInv.T())
	return p, nil
}

// condLogWeights fills logw with the unnormalised log mixing weight of every
// kernel at the conditioning values y and returns their log-sum-exp. yWhite
// is scratch space of length |C|.
func (p *conditionPlan) condLogWeights(logw, y, yWhite []float64) float64 {
	if len(p.cond) == 0 {
		for i := range logw {
			logw[i] = 0
		}
		return math.Log(float64(len(logw)))
	}
	triMulVec(yWhite, p.condInv, y)
	for i := range logw {
		logw[i] = p.condLogNorm - 0.5*sqDist(yWhite, p.kernelCond.RawRowView(i))
	}
	return floats.LogSumExp(logw)
}

// residual returns r = x - A y in dst.
func (p *conditionPlan) residual(dst, x, y []float64) {
	copy(dst, x)
	if len(p.cond) == 0 {
		return
	}
	for f := range dst {
		dst[f] -= floats.Dot(p.gain.RawRowView(f), y)
	}
}

// scratch holds per-goroutine buffers.
type scratch struct {
	logw, terms []float64
	x, y        []float64
	yWhite      []float64
	r, rWhite   []float64
}

func (p *conditionPlan) newScratch(n int) *scratch {
	nf, nc := len(p.free), len(p.cond)
	return &scratch{
		logw:   make([]float64, n),
		terms:  make([]float64, n),
		x:      make([]float64, nf),
		y:      make([]float64, nc),
		yWhite: make([]float64, nc),
		r:      make([]float64, nf),
		rWhite: make([]float64, nf),
	}
}

// logDensity evaluates log p(x | y) for one query row.
func (p *conditionPlan) logDensity(row []float64, s *scratch) float64 {
	gather(s.x, row, p.free)
	gather(s.y, row, p.cond)

	norm := p.condLogWeights(s.logw, s.y, s.yWhite)
	p.residual(s.r, s.x, s.y)
	triMulVec(s.rWhite, p.freeInv, s.r)
	for i := range s.terms {
		s.terms[i] = s.logw[i] + p.freeLogNorm - 0.5*sqDist(s.rWhite, p.kernelFree.RawRowView(i))
	}
	return floats.LogSumExp(s.terms) - norm
}

// ScoreSamples は各クエリ点における条件付き対数密度 log p(free | conditional) を返す
//
// points は全特徴量の値を学習時の列順で持つ (M × D) 行列。conditional に含まれる
// 列が条件として読まれ、残りの列で密度が評価される。conditional が空の場合は
// 同時密度を返す。学習範囲外の点でもエラーにはならず、対数空間で滑らかに小さな値となる。
func (k *ConditionalKDE) ScoreSamples(points mat.Matrix, conditional []string) (out []float64, err error) {
	defer errors.Recover(&err, "ConditionalKDE.ScoreSamples")
	const op = "ConditionalKDE.ScoreSamples"

	err = k.state.WithState(modelName, "ScoreSamples", func() error {
		fs := k.fit
		m, d := points.Dims()
		if d != len(fs.features) {
			return errors.NewShapeMismatchError(op, len(fs.features), d)
		}
		free, cond, err := fs.resolveConditioning(op, conditional)
		if err != nil {
			return err
		}
		if err := errors.CheckMatrix(op, points); err != nil {
			return err
		}
		p, err := fs.plan(free, cond)
		if err != nil {
			return err
		}

		n, _ := fs.samples.Dims()
		result := make([]float64, m)
		rows := mat.DenseCopyOf(points)
		parallel.ParallelizeWithThreshold(parallel.Workers(k.nJobs), m, scoreSequentialThreshold, func(start, end int) {
			s := p.newScratch(n)
			for i := start; i < end; i++ {
				result[i] = p.logDensity(rows.RawRowView(i), s)
			}
		})
		out = result

		k.logger.Debug("Scored samples",
			log.OperationKey, log.OperationScoreSamples,
			log.PhaseKey, log.PhaseInference,
			log.PointsKey, m,
			log.ConditioningKey, conditional,
		)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Sample は conditionals で特徴量を固定した条件付き分布から n 個のサンプルを生成する
//
// 各カーネルの重みを条件付け値での周辺密度から計算し、その重みで復元抽出した
// カーネルの条件付きガウス分布から自由特徴量を生成する。keepDims が true の場合は
// 条件付け列 (固定値) も含めた全 D 列を、false の場合は自由特徴量の列のみを
// 学習時の順序で返す。乱数は推定器が保持するソース (WithRandomState) を使う。
func (k *ConditionalKDE) Sample(conditionals map[string]float64, n int, keepDims bool) (*mat.Dense, error) {
	k.rngMu.Lock()
	defer k.rngMu.Unlock()
	return k.SampleWithRand(k.rng, conditionals, n, keepDims)
}

// SampleWithRand は Sample と同じだが、呼び出し側が乱数ソースを渡す。
// rng はこの呼び出しの間だけ使われ、同時に他から使ってはならない。
func (k *ConditionalKDE) SampleWithRand(rng *rand.Rand, conditionals map[string]float64, n int, keepDims bool) (out *mat.Dense, err error) {
	defer errors.Recover(&err, "ConditionalKDE.Sample")
	const op = "ConditionalKDE.Sample"

	if rng == nil {
		return nil, errors.NewValidationError("rng", "random source must not be nil", nil)
	}
	if n < 1 {
		return nil, errors.NewValidationError("n_samples", "must be at least 1", n)
	}

	names := make([]string, 0, len(conditionals))
	for name := range conditionals {
		names = append(names, name)
	}
	sort.Strings(names)

	err = k.state.WithState(modelName, "Sample", func() error {
		fs := k.fit
		free, cond, err := fs.resolveConditioning(op, names)
		if err != nil {
			return err
		}
		y := make([]float64, len(cond))
		for c, j := range cond {
			y[c] = conditionals[fs.features[j]]
		}
		if err := errors.CheckNumericalStability(op, y, 0); err != nil {
			return err
		}
		p, err := fs.plan(free, cond)
		if err != nil {
			return err
		}

		nKernels, d := fs.samples.Dims()
		logw := make([]float64, nKernels)
		norm := p.condLogWeights(logw, y, make([]float64, len(cond)))
		cdf := make([]float64, nKernels)
		acc := 0.0
		for i, lw := range logw {
			acc += math.Exp(lw - norm)
			cdf[i] = acc
		}

		mean := make([]float64, len(free))
		p.residual(mean, make([]float64, len(free)), y)
		// residual of x = 0 gives -A y
		floats.Scale(-1, mean)

		cols := len(free)
		if keepDims {
			cols = d
		}
		draws := mat.NewDense(n, cols, nil)
		z := make([]float64, len(free))
		lz := make([]float64, len(free))
		for r := 0; r < n; r++ {
			u := rng.Float64() * acc
			i := sort.SearchFloat64s(cdf, u)
			for i < nKernels-1 && cdf[i] <= u {
				i++
			}
			if i >= nKernels {
				i = nKernels - 1
			}

			for f := range z {
				z[f] = rng.NormFloat64()
			}
			triMulVec(lz, p.freeChol, z)
			offset := p.offsets.RawRowView(i)
			row := draws.RawRowView(r)
			for f, j := range free {
				v := mean[f] + offset[f] + lz[f]
				if keepDims {
					row[j] = v
				} else {
					row[f] = v
				}
			}
			if keepDims {
				for c, j := range cond {
					row[j] = y[c]
				}
			}
		}
		out = draws

		k.logger.Debug("Drew samples",
			log.OperationKey, log.OperationSample,
			log.PhaseKey, log.PhaseInference,
			log.PointsKey, n,
			log.ConditioningKey, names,
		)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// scaledBlock returns scale * m[rows, cols].
func scaledBlock(m mat.Symmetric, rows, cols []int, scale float64) *mat.Dense {
	out := mat.NewDense(len(rows), len(cols), nil)
	for a, i := range rows {
		for b, j := range cols {
			out.Set(a, b, scale*m.At(i, j))
		}
	}
	return out
}

func symmetrize(m *mat.Dense) *mat.SymDense {
	n, _ := m.Dims()
	s := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			s.SetSym(i, j, 0.5*(m.At(i, j)+m.At(j, i)))
		}
	}
	return s
}

func columns(m *mat.Dense, idx []int) *mat.Dense {
	r, _ := m.Dims()
	out := mat.NewDense(r, len(idx), nil)
	for i := 0; i < r; i++ {
		src := m.RawRowView(i)
		dst := out.RawRowView(i)
		for a, j := range idx {
			dst[a] = src[j]
		}
	}
	return out
}

func gather(dst, row []float64, idx []int) {
	for a, j := range idx {
		dst[a] = row[j]
	}
}

// triMulVec computes dst = L v for a lower triangular L.
func triMulVec(dst []float64, l *mat.TriDense, v []float64) {
	for i := range dst {
		s := 0.0
		for j := 0; j <= i; j++ {
			s += l.At(i, j) * v[j]
		}
		dst[i] = s
	}
}

func sqDist(a, b []float64) float64 {
	s := 0.0
	for i, v := range a {
		d := v - b[i]
		s += d * d
	}
	return s
}
