package cli

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/YuminosukeSato/sbikde/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// ReadCSV reads a numeric table whose first record is the header. Blank
// records are skipped.
func ReadCSV(r io.Reader) (*mat.Dense, []string, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil, errors.NewModelError("ReadCSV", "missing header", errors.ErrEmptyData)
	}
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to read CSV header")
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var data []float64
	rows := 0
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, errors.Wrap(err, "failed to read CSV record")
		}
		for j, field := range rec {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, nil, errors.Wrapf(err, "row %d column %q", rows+1, header[j])
			}
			data = append(data, v)
		}
		rows++
	}
	if rows == 0 {
		return nil, nil, errors.NewModelError("ReadCSV", "no data rows", errors.ErrEmptyData)
	}
	return mat.NewDense(rows, len(header), data), header, nil
}

// WriteCSV writes header and the rows of m.
func WriteCSV(w io.Writer, header []string, m mat.Matrix) error {
	r, c := m.Dims()
	if len(header) != c {
		return errors.NewShapeMismatchError("WriteCSV", c, len(header))
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return errors.Wrap(err, "failed to write CSV header")
	}
	rec := make([]string, c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			rec[j] = strconv.FormatFloat(m.At(i, j), 'g', -1, 64)
		}
		if err := cw.Write(rec); err != nil {
			return errors.Wrap(err, "failed to write CSV record")
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "failed to flush CSV")
}

// reorder returns the columns of m named by want, in that order.
func reorder(m *mat.Dense, header, want []string) (*mat.Dense, error) {
	index := make(map[string]int, len(header))
	for j, h := range header {
		index[h] = j
	}
	r, _ := m.Dims()
	out := mat.NewDense(r, len(want), nil)
	for k, name := range want {
		j, ok := index[name]
		if !ok {
			return nil, errors.NewValidationError("input", "missing column '"+name+"'", header)
		}
		out.SetCol(k, mat.Col(nil, j, m))
	}
	return out, nil
}

// parseGiven parses "a=1.5,b=-2" into a map. Names without a value are
// rejected.
func parseGiven(pairs []string) (map[string]float64, error) {
	out := make(map[string]float64, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, errors.NewValidationError("given", "expected name=value", pair)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return nil, errors.NewValidationError("given", "value is not a number", pair)
		}
		if _, dup := out[name]; dup {
			return nil, errors.NewValidationError("given", "duplicate feature", name)
		}
		out[name] = v
	}
	return out, nil
}
