// Package model provides the interfaces, fitted-state bookkeeping and
// persistence helpers shared by sbikde estimators.
package model

import (
	"gonum.org/v1/gonum/mat"
)

// Transformer はデータ変換のインターフェース
type Transformer interface {
	// Fit は変換に必要なパラメータを学習する
	Fit(X mat.Matrix) error

	// Transform はデータを変換する
	Transform(X mat.Matrix) (mat.Matrix, error)

	// InverseTransform は変換を元に戻す
	InverseTransform(X mat.Matrix) (mat.Matrix, error)
}

// DensityEstimator は名前付き特徴量の同時分布を学習する推定器のインターフェース
type DensityEstimator interface {
	// Fit はサンプル行列 (n_samples × n_features) と特徴量名で学習する
	Fit(X mat.Matrix, features []string) error

	// Features は学習時の特徴量名を順序通りに返す
	Features() []string

	// IsFitted はモデルが学習済みかどうかを返す
	IsFitted() bool
}

// ConditionalScorer は条件付き対数密度を評価できる推定器
type ConditionalScorer interface {
	DensityEstimator

	// ScoreSamples は points の各行について、conditional に含まれる列を条件とした
	// 残りの列の対数密度を返す
	ScoreSamples(points mat.Matrix, conditional []string) ([]float64, error)
}

// ConditionalSampler は条件付き分布からサンプリングできる推定器
type ConditionalSampler interface {
	DensityEstimator

	// Sample は conditionals で固定した条件付き分布から n 個のサンプルを生成する
	Sample(conditionals map[string]float64, n int, keepDims bool) (*mat.Dense, error)
}

// ParameterGetter is the interface for models that expose their parameters.
type ParameterGetter interface {
	// GetParams returns the model's hyperparameters.
	GetParams() map[string]interface{}
}
