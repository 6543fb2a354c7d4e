// Package metrics scores density estimates against reference log densities.
package metrics

import (
	"math"

	"github.com/YuminosukeSato/sbikde/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

func checkPair(op string, logTrue, logEst []float64) error {
	if len(logTrue) == 0 {
		return errors.NewValidationError(op, "empty input", nil)
	}
	if len(logEst) != len(logTrue) {
		return errors.NewShapeMismatchError(op, len(logTrue), len(logEst))
	}
	return nil
}

// MeanLogLikelihood は対数密度の平均を計算する。-Inf を含む場合は -Inf を返す
func MeanLogLikelihood(logp []float64) (float64, error) {
	if len(logp) == 0 {
		return 0, errors.NewValidationError("MeanLogLikelihood", "empty input", nil)
	}
	if i := firstNaN(logp); i >= 0 {
		return 0, errors.NewNumericalInstabilityError("MeanLogLikelihood", logp[i:], i)
	}
	return stat.Mean(logp, nil), nil
}

// MAE は対数密度の平均絶対誤差を計算する
func MAE(logTrue, logEst []float64) (float64, error) {
	if err := checkPair("MAE", logTrue, logEst); err != nil {
		return 0, err
	}
	// MAE = (1/n) * Σ|logTrue - logEst|
	var sum float64
	for i := range logTrue {
		sum += math.Abs(logTrue[i] - logEst[i])
	}
	return sum / float64(len(logTrue)), nil
}

// RMSE は対数密度の平方根平均二乗誤差を計算する
func RMSE(logTrue, logEst []float64) (float64, error) {
	if err := checkPair("RMSE", logTrue, logEst); err != nil {
		return 0, err
	}
	return floats.Distance(logTrue, logEst, 2) / math.Sqrt(float64(len(logTrue))), nil
}

// KLDivergence は真の分布から引いた点での対数密度から KL(p_true || p_est) を
// モンテカルロ推定する
//
// logTrue[i] と logEst[i] は同じ点 x_i ~ p_true での値であること。推定量は
// 有限サンプルでは負になりうる。
func KLDivergence(logTrue, logEst []float64) (float64, error) {
	if err := checkPair("KLDivergence", logTrue, logEst); err != nil {
		return 0, err
	}
	// KL = E_p[log p_true - log p_est]
	diff := make([]float64, len(logTrue))
	floats.SubTo(diff, logTrue, logEst)
	if i := firstNaN(diff); i >= 0 {
		return 0, errors.NewNumericalInstabilityError("KLDivergence", []float64{logTrue[i], logEst[i]}, i)
	}
	return stat.Mean(diff, nil), nil
}

func firstNaN(x []float64) int {
	for i, v := range x {
		if math.IsNaN(v) {
			return i
		}
	}
	return -1
}
