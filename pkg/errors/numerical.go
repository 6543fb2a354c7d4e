package errors

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// maxReportedValues caps the values copied into a NumericalInstabilityError.
const maxReportedValues = 10

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// CheckNumericalStability returns a NumericalInstabilityError for row when
// values holds a NaN or an infinity.
func CheckNumericalStability(operation string, values []float64, row int) error {
	for _, v := range values {
		if !finite(v) {
			return NewNumericalInstabilityError(operation, values, row)
		}
	}
	return nil
}

// CheckMatrix scans m row by row and reports the non-finite values of the
// first offending row.
func CheckMatrix(operation string, m mat.Matrix) error {
	rows, cols := m.Dims()
	dense, isDense := m.(*mat.Dense)
	row := make([]float64, cols)
	for i := 0; i < rows; i++ {
		if isDense {
			row = dense.RawRowView(i)
		} else {
			mat.Row(row, i, m)
		}
		var bad []float64
		for _, v := range row {
			if !finite(v) {
				bad = append(bad, v)
				if len(bad) == maxReportedValues {
					break
				}
			}
		}
		if bad != nil {
			return NewNumericalInstabilityError(operation, bad, i)
		}
	}
	return nil
}
