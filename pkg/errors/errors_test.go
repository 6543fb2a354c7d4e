package errors

import (
	"bytes"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewModelError(t *testing.T) {
	tests := []struct {
		name     string
		op       string
		kind     string
		err      error
		wantMsg  string
		hasStack bool
	}{
		{
			name:     "with original error",
			op:       "Fit",
			kind:     "invalid input",
			err:      fmt.Errorf("test error"),
			wantMsg:  "sbikde: Fit: invalid input: test error",
			hasStack: true,
		},
		{
			name:     "without original error",
			op:       "Sample",
			kind:     "not fitted",
			err:      nil,
			wantMsg:  "sbikde: Sample: not fitted",
			hasStack: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewModelError(tt.op, tt.kind, tt.err)

			if err.Error() != tt.wantMsg {
				t.Errorf("Error() = %v, want %v", err.Error(), tt.wantMsg)
			}

			// スタックトレースの存在確認
			if tt.hasStack {
				formatted := fmt.Sprintf("%+v", err)
				if !strings.Contains(formatted, "errors_test.go") {
					t.Error("Expected stack trace to contain test file name")
				}
			}

			var modelErr *ModelError
			if !As(err, &modelErr) {
				t.Error("Error should be castable to *ModelError")
			}
		})
	}
}

func TestNewShapeMismatchError(t *testing.T) {
	err := NewShapeMismatchError("ConditionalKDE.ScoreSamples", 3, 2)

	want := "sbikde: ConditionalKDE.ScoreSamples: shape mismatch on features axis. Expected 3 columns, got 2"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}

	var shapeErr *ShapeMismatchError
	if !As(err, &shapeErr) {
		t.Fatal("Error should be castable to *ShapeMismatchError")
	}
	if shapeErr.Expected != 3 || shapeErr.Got != 2 {
		t.Errorf("unexpected fields: %+v", shapeErr)
	}
}

func TestNewDegenerateInputError(t *testing.T) {
	tests := []struct {
		name    string
		feature string
		want    string
	}{
		{
			name:    "zero variance feature",
			feature: "y",
			want:    "sbikde: Fit: rescale whitening is ill-posed: feature 'y' has zero variance (std=0)",
		},
		{
			name:    "singular covariance",
			feature: "",
			want:    "sbikde: Fit: rescale whitening is ill-posed: covariance matrix is singular (min eigenvalue=0)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewDegenerateInputError("Fit", "rescale", tt.feature, 0)
			if err.Error() != tt.want {
				t.Errorf("Error() = %v, want %v", err.Error(), tt.want)
			}
			var degErr *DegenerateInputError
			if !As(err, &degErr) {
				t.Error("Error should be castable to *DegenerateInputError")
			}
		})
	}
}

func TestNewInvalidConditioningError(t *testing.T) {
	names := []string{"x", "y"}
	err := NewInvalidConditioningError("ScoreSamples", names, "no free features remain")

	want := "sbikde: ScoreSamples: invalid conditioning [x, y]: no free features remain"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}

	// 呼び出し側のスライスを変更してもエラーは影響を受けない
	names[0] = "changed"
	var condErr *InvalidConditioningError
	if !As(err, &condErr) {
		t.Fatal("Error should be castable to *InvalidConditioningError")
	}
	if condErr.Names[0] != "x" {
		t.Errorf("Names should be copied, got %v", condErr.Names)
	}
}

func TestNewNotFittedError(t *testing.T) {
	err := NewNotFittedError("ConditionalKDE", "Sample")

	want := "sbikde: ConditionalKDE: this model is not fitted yet. Call Fit() before using Sample()"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}

	var notFittedErr *NotFittedError
	if !As(err, &notFittedErr) {
		t.Error("Error should be castable to *NotFittedError")
	}
}

func TestNewValidationError(t *testing.T) {
	err := NewValidationError("bandwidth", "must be positive", -0.5)
	want := "sbikde: validation failed for parameter 'bandwidth': must be positive (got: -0.5)"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}
}

func TestBandwidthBoundaryWarning(t *testing.T) {
	warn := NewBandwidthBoundaryWarning(0.01, 0.01, 0.4)
	if !strings.Contains(warn.Error(), "edge of the search grid") {
		t.Errorf("unexpected message: %s", warn.Error())
	}

	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	logger.Warn().EmbedObject(warn).Msg("boundary")
	if !strings.Contains(buf.String(), `"type":"BandwidthBoundaryWarning"`) {
		t.Errorf("expected structured warning, got %s", buf.String())
	}
}

func TestWarnRouting(t *testing.T) {
	var handled []error
	SetWarningHandler(func(w error) { handled = append(handled, w) })
	defer SetWarningHandler(func(error) {})

	Warn(NewBandwidthBoundaryWarning(1, 1, 2))
	if len(handled) != 1 {
		t.Fatalf("expected fallback handler to be called once, got %d", len(handled))
	}

	var routed []error
	SetZerologWarnFunc(func(w error) { routed = append(routed, w) })
	defer SetZerologWarnFunc(nil)

	Warn(NewBandwidthBoundaryWarning(1, 1, 2))
	if len(routed) != 1 || len(handled) != 1 {
		t.Errorf("zerolog func should take precedence: routed=%d handled=%d", len(routed), len(handled))
	}
}

func TestWrapf(t *testing.T) {
	wrapped := Wrapf(ErrEmptyData, "in %s: expected %d, got %d", "Fit", 2, 0)

	if !Is(wrapped, ErrEmptyData) {
		t.Error("Expected Is(wrapped, ErrEmptyData) to be true")
	}

	expectedMsg := "in Fit: expected 2, got 0"
	if !strings.Contains(wrapped.Error(), expectedMsg) {
		t.Errorf("Expected wrapped error to contain %q", expectedMsg)
	}
}

func TestCheckMatrix(t *testing.T) {
	data := [][]float64{{1, 2}, {3, 4}}
	if err := CheckMatrix("Fit", denseOf(data)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data[1][0] = math.NaN()
	err := CheckMatrix("Fit", denseOf(data))
	var numErr *NumericalInstabilityError
	if !As(err, &numErr) {
		t.Fatalf("expected NumericalInstabilityError, got %v", err)
	}
	if numErr.Row != 1 {
		t.Errorf("expected row 1, got %d", numErr.Row)
	}
}
