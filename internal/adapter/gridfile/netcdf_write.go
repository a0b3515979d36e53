package gridfile

import (
	"fmt"
	"math"
	"os"
	"time"

	"github.com/ctessum/cdf"
	"gonum.org/v1/gonum/mat"
)

// Dataset is an in-memory (time, lat, lon) grid that can be written as a
// classic NetCDF file readable by OpenNetCDF.
type Dataset struct {
	Latitudes  []float64
	Longitudes []float64
	Reference  time.Time
	// Hours are the step offsets from Reference.
	Hours  []float64
	Fields map[string][]*mat.Dense
	// FillValue, when non-zero, is written in place of NaN cells.
	FillValue float32
}

// WriteNetCDF writes ds to path.
func WriteNetCDF(path string, ds Dataset) error {
	nlat, nlon, nt := len(ds.Latitudes), len(ds.Longitudes), len(ds.Hours)
	if nlat == 0 || nlon == 0 || nt == 0 {
		return fmt.Errorf("write netcdf: empty axis (lat=%d lon=%d time=%d)", nlat, nlon, nt)
	}
	for name, steps := range ds.Fields {
		if len(steps) != nt {
			return fmt.Errorf("write netcdf: field %s has %d steps, want %d", name, len(steps), nt)
		}
		for i, m := range steps {
			if r, c := m.Dims(); r != nlat || c != nlon {
				return fmt.Errorf("write netcdf: field %s step %d is %dx%d, want %dx%d", name, i+1, r, c, nlat, nlon)
			}
		}
	}

	h := cdf.NewHeader([]string{"time", "lat", "lon"}, []int{nt, nlat, nlon})
	h.AddAttribute("", "Conventions", "CF-1.6")
	h.AddVariable("lat", []string{"lat"}, []float64{0})
	h.AddAttribute("lat", "units", "degrees_north")
	h.AddVariable("lon", []string{"lon"}, []float64{0})
	h.AddAttribute("lon", "units", "degrees_east")
	h.AddVariable("time", []string{"time"}, []float64{0})
	h.AddAttribute("time", "units", "hours since "+ds.Reference.UTC().Format("2006-01-02 15:04:05"))
	for name := range ds.Fields {
		h.AddVariable(name, []string{"time", "lat", "lon"}, []float32{0})
		if ds.FillValue != 0 {
			h.AddAttribute(name, "_FillValue", []float32{ds.FillValue})
		}
	}
	h.Define()
	for _, err := range h.Check() {
		return fmt.Errorf("write netcdf: %w", err)
	}

	ff, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("write netcdf: %w", err)
	}
	defer ff.Close()
	f, err := cdf.Create(ff, h)
	if err != nil {
		return fmt.Errorf("write netcdf %s: %w", path, err)
	}

	for name, values := range map[string][]float64{"lat": ds.Latitudes, "lon": ds.Longitudes, "time": ds.Hours} {
		if _, err := f.Writer(name, []int{0}, []int{len(values)}).Write(values); err != nil {
			return fmt.Errorf("write netcdf %s: %w", name, err)
		}
	}
	for name, steps := range ds.Fields {
		data := make([]float32, 0, nt*nlat*nlon)
		for _, m := range steps {
			for r := 0; r < nlat; r++ {
				for c := 0; c < nlon; c++ {
					v := m.At(r, c)
					if math.IsNaN(v) {
						data = append(data, ds.FillValue)
						continue
					}
					data = append(data, float32(v))
				}
			}
		}
		w := f.Writer(name, []int{0, 0, 0}, []int{nt, nlat, nlon})
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("write netcdf %s: %w", name, err)
		}
	}
	return ff.Close()
}
