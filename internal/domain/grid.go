package domain

import (
	"time"

	"gonum.org/v1/gonum/mat"
)

// GridSource exposes a gridded model output. Fields returned by Variable are
// laid out with rows along Latitudes and columns along Longitudes, with
// missing cells set to NaN.
type GridSource interface {
	Latitudes() ([]float64, error)
	Longitudes() ([]float64, error)
	Dates() ([]time.Time, error)
	// Variable returns the field of name at the 1-based time step timeIndex.
	Variable(name string, timeIndex int) (*mat.Dense, error)
	Close() error
}
