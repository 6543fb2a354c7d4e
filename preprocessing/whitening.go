package preprocessing

import (
	"fmt"
	"math"

	"github.com/YuminosukeSato/sbikde/core/model"
	"github.com/YuminosukeSato/sbikde/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// DegenerateTol は分散・固有値がゼロとみなされる相対閾値
const DegenerateTol = 1e-12

// Whitener は線形な白色化変換 z = T x
//
// Transform は各行 x を T x に、InverseTransform は T^-1 z に写す。
type Whitener interface {
	model.Transformer

	// Matrix は D × D の変換行列 T のコピーを返す
	Matrix() *mat.Dense

	// InverseMatrix は T^-1 のコピーを返す
	InverseMatrix() *mat.Dense

	// Name はアルゴリズム名 ("none", "rescale", "zca") を返す
	Name() string
}

// linearWhitener holds T and T^-1 and implements the row-wise maps shared by
// every whitening algorithm.
type linearWhitener struct {
	name      string
	t         *mat.Dense
	tInv      *mat.Dense
	nFeatures int
}

func (l *linearWhitener) Name() string { return l.name }

func (l *linearWhitener) Matrix() *mat.Dense {
	if l.t == nil {
		return nil
	}
	return mat.DenseCopyOf(l.t)
}

func (l *linearWhitener) InverseMatrix() *mat.Dense {
	if l.tInv == nil {
		return nil
	}
	return mat.DenseCopyOf(l.tInv)
}

// Transform は学習済みの変換を X の各行に適用する
func (l *linearWhitener) Transform(X mat.Matrix) (mat.Matrix, error) {
	return l.apply(X, l.t, "Transform")
}

// InverseTransform は白色化されたデータを元の座標に戻す
func (l *linearWhitener) InverseTransform(X mat.Matrix) (mat.Matrix, error) {
	return l.apply(X, l.tInv, "InverseTransform")
}

func (l *linearWhitener) apply(X mat.Matrix, m *mat.Dense, method string) (mat.Matrix, error) {
	if m == nil {
		return nil, errors.NewNotFittedError(l.String(), method)
	}
	if _, c := X.Dims(); c != l.nFeatures {
		return nil, errors.NewShapeMismatchError(l.String()+"."+method, l.nFeatures, c)
	}
	// rows are samples: Z = X T^T
	var out mat.Dense
	out.Mul(X, m.T())
	return &out, nil
}

func (l *linearWhitener) set(t, tInv *mat.Dense) {
	l.t = t
	l.tInv = tInv
	l.nFeatures, _ = t.Dims()
}

func (l *linearWhitener) String() string {
	return fmt.Sprintf("Whitener(%s)", l.name)
}

func checkFitInput(op string, X mat.Matrix) (int, int, error) {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return 0, 0, errors.NewModelError(op, "empty data", errors.ErrEmptyData)
	}
	if r < 2 {
		return 0, 0, errors.NewValidationError("n_samples", "at least 2 samples are required", r)
	}
	return r, c, nil
}

// IdentityWhitener は何もしない白色化 (T = I)
type IdentityWhitener struct {
	linearWhitener
}

// NewIdentityWhitener は新しいIdentityWhitenerを作成する
func NewIdentityWhitener() *IdentityWhitener {
	return &IdentityWhitener{linearWhitener{name: "none"}}
}

// Fit は特徴量数だけを記録する
func (w *IdentityWhitener) Fit(X mat.Matrix) error {
	_, c, err := checkFitInput("IdentityWhitener.Fit", X)
	if err != nil {
		return err
	}
	w.set(identity(c), identity(c))
	return nil
}

// Rescaler は各特徴量を標準偏差で割る対角白色化
//
// 平均は引かない。
type Rescaler struct {
	linearWhitener

	// FeatureNames はエラーメッセージ用の特徴量名（省略可）
	FeatureNames []string

	// Scale は各特徴量の標準偏差 (n-1 で正規化)
	Scale []float64
}

// NewRescaler は新しいRescalerを作成する
//
// 使用例:
//
//	w := preprocessing.NewRescaler("x", "y")
//	err := w.Fit(X)
//	Z, err := w.Transform(X)
func NewRescaler(featureNames ...string) *Rescaler {
	return &Rescaler{
		linearWhitener: linearWhitener{name: "rescale"},
		FeatureNames:   featureNames,
	}
}

// Fit は各特徴量の標準偏差を計算する。分散がゼロの特徴量があると
// DegenerateInputError を返す。
func (w *Rescaler) Fit(X mat.Matrix) error {
	r, c, err := checkFitInput("Rescaler.Fit", X)
	if err != nil {
		return err
	}

	scale := make([]float64, c)
	t := mat.NewDense(c, c, nil)
	tInv := mat.NewDense(c, c, nil)
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, X)
		mean, std := stat.MeanStdDev(col, nil)
		if !(std > DegenerateTol*math.Max(1, math.Abs(mean))) {
			return errors.NewDegenerateInputError("Rescaler.Fit", w.name, w.featureName(j), std)
		}
		scale[j] = std
		t.Set(j, j, 1/std)
		tInv.Set(j, j, std)
	}

	w.Scale = scale
	w.set(t, tInv)
	return nil
}

func (w *Rescaler) featureName(j int) string {
	if j < len(w.FeatureNames) {
		return w.FeatureNames[j]
	}
	return fmt.Sprintf("x%d", j)
}

// ZCAWhitener は主軸方向の白色化 T = V diag(1/sqrt(λ)) V^T
//
// V, λ は標本共分散行列の固有ベクトルと固有値。変換後の共分散は単位行列になり、
// 元の座標系の向きを最もよく保つ白色化となる。
type ZCAWhitener struct {
	linearWhitener

	// Eigenvalues は共分散行列の固有値（昇順）
	Eigenvalues []float64
}

// NewZCAWhitener は新しいZCAWhitenerを作成する
func NewZCAWhitener() *ZCAWhitener {
	return &ZCAWhitener{linearWhitener: linearWhitener{name: "zca"}}
}

// Fit は共分散行列を固有値分解する。最小固有値が最大固有値に比べて
// ゼロとみなせる場合（特異行列）は DegenerateInputError を返す。
func (w *ZCAWhitener) Fit(X mat.Matrix) error {
	_, c, err := checkFitInput("ZCAWhitener.Fit", X)
	if err != nil {
		return err
	}

	cov := mat.NewSymDense(c, nil)
	stat.CovarianceMatrix(cov, X, nil)

	var eig mat.EigenSym
	if ok := eig.Factorize(cov, true); !ok {
		return errors.NewModelError("ZCAWhitener.Fit", "eigendecomposition failed", errors.ErrSingularMatrix)
	}
	values := eig.Values(nil)
	minVal, maxVal := values[0], values[len(values)-1]
	if !(maxVal > 0) || !(minVal > DegenerateTol*maxVal) {
		return errors.NewDegenerateInputError("ZCAWhitener.Fit", w.name, "", minVal)
	}

	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	invSqrt := make([]float64, c)
	sqrt := make([]float64, c)
	for i, v := range values {
		invSqrt[i] = 1 / math.Sqrt(v)
		sqrt[i] = math.Sqrt(v)
	}

	w.Eigenvalues = values
	w.set(sandwich(&vecs, invSqrt), sandwich(&vecs, sqrt))
	return nil
}

// sandwich returns V diag(d) V^T.
func sandwich(v *mat.Dense, d []float64) *mat.Dense {
	var vd, out mat.Dense
	vd.Mul(v, mat.NewDiagDense(len(d), d))
	out.Mul(&vd, v.T())
	return &out
}

func identity(n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}
