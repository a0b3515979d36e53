package grid

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/interp"
)

// AxisMapper maps fractional indices along one axis to coordinates by linear
// interpolation over the axis values. Indices outside [0, len(axis)-1] map to
// NaN instead of being extrapolated.
type AxisMapper struct {
	axis []float64
	pl   interp.PiecewiseLinear
}

// NewAxisMapper fits a mapper to a strictly monotonic axis.
func NewAxisMapper(axis []float64) (*AxisMapper, error) {
	if len(axis) == 0 {
		return nil, errors.New("axis is empty")
	}
	if err := checkMonotonic(axis); err != nil {
		return nil, err
	}
	m := &AxisMapper{axis: append([]float64(nil), axis...)}
	if len(axis) == 1 {
		return m, nil
	}
	idx := make([]float64, len(axis))
	for i := range idx {
		idx[i] = float64(i)
	}
	if err := m.pl.Fit(idx, m.axis); err != nil {
		return nil, fmt.Errorf("fit axis: %w", err)
	}
	return m, nil
}

// At maps a single fractional index.
func (m *AxisMapper) At(idx float64) float64 {
	last := float64(len(m.axis) - 1)
	if math.IsNaN(idx) || idx < 0 || idx > last {
		return math.NaN()
	}
	if len(m.axis) == 1 {
		return m.axis[0]
	}
	return m.pl.Predict(idx)
}

// Map maps every index in idx.
func (m *AxisMapper) Map(idx []float64) []float64 {
	out := make([]float64, len(idx))
	for i, v := range idx {
		out[i] = m.At(v)
	}
	return out
}

func checkMonotonic(axis []float64) error {
	if len(axis) < 2 {
		if math.IsNaN(axis[0]) || math.IsInf(axis[0], 0) {
			return errors.New("axis value 0 is not finite")
		}
		return nil
	}
	ascending := axis[1] > axis[0]
	for i, v := range axis {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("axis value %d is not finite", i)
		}
		if i == 0 {
			continue
		}
		if (ascending && v <= axis[i-1]) || (!ascending && v >= axis[i-1]) {
			return fmt.Errorf("axis is not strictly monotonic at index %d", i)
		}
	}
	return nil
}
