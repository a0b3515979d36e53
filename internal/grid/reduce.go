package grid

import (
	"errors"
	"fmt"
	"math"

	"github.com/intecmar/cop-loc-etl/internal/domain"
	"gonum.org/v1/gonum/mat"
)

// MaxField returns the element-wise maximum of fields, the worst case seen at
// each cell across the series. NaN cells are skipped; a cell that is NaN in
// every field stays NaN. The inputs are not modified.
func MaxField(fields []*mat.Dense) (*mat.Dense, error) {
	if len(fields) == 0 {
		return nil, errors.New("max field: no fields")
	}
	rows, cols := fields[0].Dims()
	for i, f := range fields[1:] {
		if r, c := f.Dims(); r != rows || c != cols {
			return nil, &domain.ShapeMismatchError{Index: i + 1, Rows: r, Cols: c, WantRows: rows, WantCols: cols}
		}
	}

	out := mat.DenseCopyOf(fields[0])
	for _, f := range fields[1:] {
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				v, w := out.At(i, j), f.At(i, j)
				if math.IsNaN(w) {
					continue
				}
				if math.IsNaN(v) || w > v {
					out.Set(i, j, w)
				}
			}
		}
	}
	return out, nil
}

// FieldReader reads one time step of a gridded variable.
type FieldReader interface {
	Variable(name string, timeIndex int) (*mat.Dense, error)
}

// MaxOverTime reduces time steps 1..steps of variable in src with MaxField.
func MaxOverTime(src FieldReader, variable string, steps int) (*mat.Dense, error) {
	if steps <= 0 {
		return nil, errors.New("max over time: source has no time steps")
	}
	fields := make([]*mat.Dense, 0, steps)
	for t := 1; t <= steps; t++ {
		f, err := src.Variable(variable, t)
		if err != nil {
			return nil, fmt.Errorf("read %s step %d: %w", variable, t, err)
		}
		fields = append(fields, f)
	}
	return MaxField(fields)
}
