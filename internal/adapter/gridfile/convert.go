package gridfile

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// toFloat64s flattens numeric slices of up to three dimensions.
func toFloat64s(v any) ([]float64, []int, error) {
	switch x := v.(type) {
	case []float64:
		return append([]float64(nil), x...), []int{len(x)}, nil
	case []float32:
		out := make([]float64, len(x))
		for i, f := range x {
			out[i] = float64(f)
		}
		return out, []int{len(x)}, nil
	case []int32:
		out := make([]float64, len(x))
		for i, f := range x {
			out[i] = float64(f)
		}
		return out, []int{len(x)}, nil
	case []int16:
		out := make([]float64, len(x))
		for i, f := range x {
			out[i] = float64(f)
		}
		return out, []int{len(x)}, nil
	case []int64:
		out := make([]float64, len(x))
		for i, f := range x {
			out[i] = float64(f)
		}
		return out, []int{len(x)}, nil
	case [][]float64:
		return flatten2(len(x), func(i int) (any, int) { return x[i], len(x[i]) })
	case [][]float32:
		return flatten2(len(x), func(i int) (any, int) { return x[i], len(x[i]) })
	case [][][]float64:
		return flatten3(len(x), func(i int) any { return x[i] })
	case [][][]float32:
		return flatten3(len(x), func(i int) any { return x[i] })
	default:
		return nil, nil, fmt.Errorf("unsupported value type %T", v)
	}
}

func flatten2(n int, row func(i int) (any, int)) ([]float64, []int, error) {
	if n == 0 {
		return nil, []int{0, 0}, nil
	}
	_, cols := row(0)
	out := make([]float64, 0, n*cols)
	for i := 0; i < n; i++ {
		r, c := row(i)
		if c != cols {
			return nil, nil, fmt.Errorf("ragged row %d: %d values, want %d", i, c, cols)
		}
		vals, _, err := toFloat64s(r)
		if err != nil {
			return nil, nil, err
		}
		out = append(out, vals...)
	}
	return out, []int{n, cols}, nil
}

func flatten3(n int, plane func(i int) any) ([]float64, []int, error) {
	var (
		out   []float64
		shape []int
	)
	for i := 0; i < n; i++ {
		vals, s, err := toFloat64s(plane(i))
		if err != nil {
			return nil, nil, err
		}
		if shape == nil {
			shape = s
		} else if s[0] != shape[0] || s[1] != shape[1] {
			return nil, nil, fmt.Errorf("ragged plane %d", i)
		}
		out = append(out, vals...)
	}
	if shape == nil {
		return nil, []int{0, 0, 0}, nil
	}
	return out, []int{n, shape[0], shape[1]}, nil
}

// maskFill replaces every occurrence of fill with NaN.
func maskFill(data []float64, fill float64) {
	for i, v := range data {
		if v == fill {
			data[i] = math.NaN()
		}
	}
}

// transpose returns the cols x rows transpose of a row-major rows x cols
// slice as a dense matrix.
func transpose(data []float64, rows, cols int) *mat.Dense {
	return mat.DenseCopyOf(mat.NewDense(rows, cols, data).T())
}
