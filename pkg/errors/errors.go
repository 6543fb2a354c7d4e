// Package errors は sbikde のエラー型と警告の配送を提供します。
//
// 入力検証・条件付け・白色化の失敗はそれぞれ専用の型で返され、errors.As で
// 判別できます。すべての型は zerolog.LogObjectMarshaler を実装し、構造化ログに
// そのままフィールドとして出力されます。実行を止めない問題 (バンド幅探索の境界など)
// は Warn で通知されます。
package errors

import (
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// ===========================================================================
//
//	警告の配送
//
// ===========================================================================

// warnings は警告の送り先。zerolog 関数が設定されていればそれを優先する
// (pkg/log が SetupZerolog で設定する。import の循環を避けるため関数で受け取る)。
var warnings = struct {
	sync.Mutex
	handler func(w error)
	zerolog func(w error)
}{
	handler: func(w error) { log.Printf("sbikde-Warning: %v\n", w) },
}

// SetWarningHandler は zerolog 関数が未設定のときに使われる警告ハンドラを設定します。
// nil を渡すと警告は捨てられます。
//
// 例:
//
//	var got []error
//	errors.SetWarningHandler(func(w error) { got = append(got, w) })
func SetWarningHandler(handler func(w error)) {
	warnings.Lock()
	defer warnings.Unlock()
	warnings.handler = handler
}

// SetZerologWarnFunc は警告を構造化ログとして出力する関数を設定します。
// nil を渡すと SetWarningHandler のハンドラに戻ります。
func SetZerologWarnFunc(warnFunc func(warning error)) {
	warnings.Lock()
	defer warnings.Unlock()
	warnings.zerolog = warnFunc
}

// Warn は警告を配送します。呼び出し側の処理は継続します。
func Warn(w error) {
	warnings.Lock()
	defer warnings.Unlock()
	switch {
	case warnings.zerolog != nil:
		warnings.zerolog(w)
	case warnings.handler != nil:
		warnings.handler(w)
	}
}

// ===========================================================================
//
//	警告型
//
// ===========================================================================

// BandwidthBoundaryWarning は交差検証によるバンド幅探索で、最適値が候補グリッドの
// 端に張り付いた場合に発生する警告です。真の最適値がグリッド外にある可能性を示します。
type BandwidthBoundaryWarning struct {
	Bandwidth float64
	Lower     float64
	Upper     float64
}

func (w *BandwidthBoundaryWarning) Error() string {
	return fmt.Sprintf("selected bandwidth %.6g lies on the edge of the search grid [%.6g, %.6g]. Consider more steps or a fixed bandwidth.",
		w.Bandwidth, w.Lower, w.Upper)
}

// MarshalZerologObject はzerologのイベントに構造化された警告情報を追加します。
func (w *BandwidthBoundaryWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Float64("bandwidth", w.Bandwidth).
		Float64("lower", w.Lower).
		Float64("upper", w.Upper).
		Str("type", "BandwidthBoundaryWarning")
}

// NewBandwidthBoundaryWarning は新しいBandwidthBoundaryWarningを作成します。
func NewBandwidthBoundaryWarning(bandwidth, lower, upper float64) *BandwidthBoundaryWarning {
	return &BandwidthBoundaryWarning{Bandwidth: bandwidth, Lower: lower, Upper: upper}
}

// ===========================================================================
//
//	構造化されたエラー型
//
// ===========================================================================

// NotFittedError はモデルが未学習の状態で `ScoreSamples` や `Sample` を呼び出した場合のエラーです。
type NotFittedError struct {
	ModelName string
	Method    string
}

func (e *NotFittedError) Error() string {
	return fmt.Sprintf("sbikde: %s: this model is not fitted yet. Call Fit() before using %s()", e.ModelName, e.Method)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *NotFittedError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("model_name", e.ModelName).
		Str("method", e.Method).
		Str("type", "NotFittedError")
}

// NewNotFittedError は新しいNotFittedErrorを作成し、スタックトレースを付与します。
func NewNotFittedError(modelName, method string) error {
	err := &NotFittedError{ModelName: modelName, Method: method}
	return errors.WithStack(err)
}

// ShapeMismatchError はクエリ点の列数が学習時の特徴量数と一致しない場合のエラーです。
type ShapeMismatchError struct {
	Op       string
	Expected int
	Got      int
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("sbikde: %s: shape mismatch on features axis. Expected %d columns, got %d", e.Op, e.Expected, e.Got)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *ShapeMismatchError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Int("expected", e.Expected).
		Int("got", e.Got).
		Str("type", "ShapeMismatchError")
}

// NewShapeMismatchError は新しいShapeMismatchErrorを作成し、スタックトレースを付与します。
func NewShapeMismatchError(op string, expected, got int) error {
	err := &ShapeMismatchError{Op: op, Expected: expected, Got: got}
	return errors.WithStack(err)
}

// DegenerateInputError は白色化に必要な分散・共分散行列の逆が存在しない場合のエラーです。
// 呼び出し側はデータを見直すか、白色化アルゴリズムを変更する必要があります。
type DegenerateInputError struct {
	Op        string
	Whitening string
	Feature   string  // 分散ゼロの特徴量名（rescaleの場合）
	Value     float64 // 問題となった標準偏差または固有値
}

func (e *DegenerateInputError) Error() string {
	if e.Feature != "" {
		return fmt.Sprintf("sbikde: %s: %s whitening is ill-posed: feature '%s' has zero variance (std=%.3g)",
			e.Op, e.Whitening, e.Feature, e.Value)
	}
	return fmt.Sprintf("sbikde: %s: %s whitening is ill-posed: covariance matrix is singular (min eigenvalue=%.3g)",
		e.Op, e.Whitening, e.Value)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *DegenerateInputError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Str("whitening", e.Whitening).
		Str("feature", e.Feature).
		Float64("value", e.Value).
		Str("type", "DegenerateInputError")
}

// NewDegenerateInputError は新しいDegenerateInputErrorを作成し、スタックトレースを付与します。
func NewDegenerateInputError(op, whitening, feature string, value float64) error {
	err := &DegenerateInputError{Op: op, Whitening: whitening, Feature: feature, Value: value}
	return errors.WithStack(err)
}

// InvalidConditioningError は条件付け特徴量が学習済み特徴量の真部分集合でない場合のエラーです。
type InvalidConditioningError struct {
	Op     string
	Names  []string
	Reason string
}

func (e *InvalidConditioningError) Error() string {
	return fmt.Sprintf("sbikde: %s: invalid conditioning [%s]: %s", e.Op, strings.Join(e.Names, ", "), e.Reason)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *InvalidConditioningError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Strs("names", e.Names).
		Str("reason", e.Reason).
		Str("type", "InvalidConditioningError")
}

// NewInvalidConditioningError は新しいInvalidConditioningErrorを作成し、スタックトレースを付与します。
func NewInvalidConditioningError(op string, names []string, reason string) error {
	err := &InvalidConditioningError{Op: op, Names: append([]string(nil), names...), Reason: reason}
	return errors.WithStack(err)
}

// ValidationError は入力パラメータの検証に失敗した場合のエラーです。
type ValidationError struct {
	ParamName string
	Reason    string
	Value     interface{}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("sbikde: validation failed for parameter '%s': %s (got: %v)", e.ParamName, e.Reason, e.Value)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *ValidationError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("param_name", e.ParamName).
		Str("reason", e.Reason).
		Interface("value", e.Value).
		Str("type", "ValidationError")
}

// NewValidationError は新しいValidationErrorを作成し、スタックトレースを付与します。
func NewValidationError(param, reason string, value interface{}) error {
	err := &ValidationError{ParamName: param, Reason: reason, Value: value}
	return errors.WithStack(err)
}

// ModelError は推定器に関する一般的なエラーです。
type ModelError struct {
	Op   string
	Kind string
	Err  error
}

func (e *ModelError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("sbikde: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("sbikde: %s: %s", e.Op, e.Kind)
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

// NewModelError は新しいModelErrorを作成し、スタックトレースを付与します。
func NewModelError(op, kind string, err error) error {
	modelErr := &ModelError{Op: op, Kind: kind, Err: err}
	return errors.WithStack(modelErr)
}

// NumericalInstabilityError は数値計算が不安定になった場合のエラーです。
// 入力中のNaNやInfを検出します。
type NumericalInstabilityError struct {
	Operation string
	Values    []float64
	Row       int
}

func (e *NumericalInstabilityError) Error() string {
	valStr := ""
	for i, v := range e.Values {
		if i > 0 {
			valStr += ", "
		}
		if i >= 5 {
			valStr += "..."
			break
		}
		valStr += fmt.Sprintf("%.6g", v)
	}
	return fmt.Sprintf("sbikde: numerical instability detected in %s at row %d. Values: [%s]",
		e.Operation, e.Row, valStr)
}

// NewNumericalInstabilityError は新しいNumericalInstabilityErrorを作成します。
func NewNumericalInstabilityError(operation string, values []float64, row int) error {
	err := &NumericalInstabilityError{
		Operation: operation,
		Values:    values,
		Row:       row,
	}
	return errors.WithStack(err)
}

// ===========================================================================
//
//	cockroachdb/errors ラッパー関数
//
// ===========================================================================

// Is はエラーが特定のターゲットエラーかどうかを判定します。
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As はエラーが特定の型にキャスト可能かどうかを判定します。
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap は既存のエラーをメッセージ付きでラップします。
func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

// Wrapf は既存のエラーをフォーマット文字列でラップします。
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// New は新しいエラーを作成します。
func New(message string) error {
	return errors.New(message)
}

// Newf は新しいフォーマット済みエラーを作成します。
func Newf(format string, args ...interface{}) error {
	return errors.Newf(format, args...)
}

// WithStack はエラーにスタックトレースを付与します。
func WithStack(err error) error {
	return errors.WithStack(err)
}

// ===========================================================================
//
//	共通エラー変数
//
// ===========================================================================

var (
	// ErrEmptyData は空のデータが渡された場合のエラーです。
	ErrEmptyData = New("empty data")

	// ErrSingularMatrix は特異行列の場合のエラーです。
	ErrSingularMatrix = New("singular matrix")
)
