package gridfile

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ctessum/cdf"
	"gonum.org/v1/gonum/mat"
)

var (
	latitudeNames  = []string{"lat", "latitude", "y"}
	longitudeNames = []string{"lon", "longitude", "x"}
	timeNames      = []string{"time", "t"}
)

// NetCDF reads a CF/COARDS classic-format NetCDF grid. Fields are expected
// with dimensions (time, lat, lon) or (lat, lon); (time, lon, lat) layouts
// are transposed on read.
type NetCDF struct {
	path string
	file *os.File
	nc   *cdf.File

	lat, lon, time string
}

// OpenNetCDF opens path and locates its coordinate variables.
func OpenNetCDF(path string) (*NetCDF, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open netcdf: %w", err)
	}
	nc, err := cdf.Open(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("open netcdf %s: %w", path, err)
	}
	g := &NetCDF{path: path, file: f, nc: nc}
	vars := nc.Header.Variables()
	if g.lat = findVariable(vars, latitudeNames); g.lat == "" {
		_ = f.Close()
		return nil, fmt.Errorf("netcdf %s: no latitude variable", path)
	}
	if g.lon = findVariable(vars, longitudeNames); g.lon == "" {
		_ = f.Close()
		return nil, fmt.Errorf("netcdf %s: no longitude variable", path)
	}
	g.time = findVariable(vars, timeNames)
	return g, nil
}

func findVariable(vars, candidates []string) string {
	for _, c := range candidates {
		for _, v := range vars {
			if strings.EqualFold(v, c) {
				return v
			}
		}
	}
	return ""
}

// Latitudes returns the latitude axis. A 2-D curvilinear latitude takes its
// first column.
func (g *NetCDF) Latitudes() ([]float64, error) {
	return g.axis(g.lat, false)
}

// Longitudes returns the longitude axis. A 2-D curvilinear longitude takes
// its first row.
func (g *NetCDF) Longitudes() ([]float64, error) {
	return g.axis(g.lon, true)
}

func (g *NetCDF) axis(name string, alongRow bool) ([]float64, error) {
	data, err := g.read(name, nil, nil)
	if err != nil {
		return nil, err
	}
	lengths := g.nc.Header.Lengths(name)
	switch len(lengths) {
	case 1:
		return data, nil
	case 2:
		rows, cols := lengths[0], lengths[1]
		out := make([]float64, 0, max(rows, cols))
		if alongRow {
			return append(out, data[:cols]...), nil
		}
		for r := 0; r < rows; r++ {
			out = append(out, data[r*cols])
		}
		return out, nil
	default:
		return nil, fmt.Errorf("coordinate %s has %d dimensions", name, len(lengths))
	}
}

// Dates decodes the CF time variable ("<unit> since <reference>").
func (g *NetCDF) Dates() ([]time.Time, error) {
	if g.time == "" {
		return nil, fmt.Errorf("netcdf %s: no time variable", g.path)
	}
	offsets, err := g.read(g.time, nil, nil)
	if err != nil {
		return nil, err
	}
	units, _ := g.nc.Header.GetAttribute(g.time, "units").(string)
	step, ref, err := parseTimeUnits(units)
	if err != nil {
		return nil, fmt.Errorf("netcdf %s: %w", g.path, err)
	}
	dates := make([]time.Time, len(offsets))
	for i, off := range offsets {
		dates[i] = ref.Add(time.Duration(off * float64(step)))
	}
	return dates, nil
}

// Variable reads one time step of a field.
func (g *NetCDF) Variable(name string, timeIndex int) (*mat.Dense, error) {
	dims := g.nc.Header.Dimensions(name)
	lengths := g.nc.Header.Lengths(name)
	if len(dims) == 0 {
		return nil, fmt.Errorf("netcdf %s: no variable %q", g.path, name)
	}

	var begin, end []int
	switch len(dims) {
	case 2:
		if timeIndex != 1 {
			return nil, fmt.Errorf("variable %s has no time dimension, step %d requested", name, timeIndex)
		}
	case 3:
		if timeIndex < 1 || timeIndex > lengths[0] {
			return nil, fmt.Errorf("variable %s: time step %d out of range 1..%d", name, timeIndex, lengths[0])
		}
		begin = []int{timeIndex - 1, 0, 0}
		end = []int{timeIndex, lengths[1], lengths[2]}
		dims, lengths = dims[1:], lengths[1:]
	default:
		return nil, fmt.Errorf("variable %s has %d dimensions, want 2 or 3", name, len(dims))
	}

	data, err := g.read(name, begin, end)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("variable %s is empty", name)
	}
	rows, cols := lengths[0], lengths[1]
	if isLongitudeDim(dims[0]) {
		return transpose(data, rows, cols), nil
	}
	return mat.NewDense(rows, cols, data), nil
}

func isLongitudeDim(dim string) bool {
	return findVariable([]string{dim}, longitudeNames) != ""
}

// read loads a numeric variable as float64, masking _FillValue and
// missing_value cells to NaN.
func (g *NetCDF) read(name string, begin, end []int) ([]float64, error) {
	r := g.nc.Reader(name, begin, end)
	buf := r.Zero(-1)
	if _, err := r.Read(buf); err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	data, _, err := toFloat64s(buf)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	for _, attr := range []string{"_FillValue", "missing_value"} {
		fill, _, err := toFloat64s(g.nc.Header.GetAttribute(name, attr))
		if err == nil && len(fill) > 0 {
			maskFill(data, fill[0])
		}
	}
	return data, nil
}

// Close releases the file.
func (g *NetCDF) Close() error {
	return g.file.Close()
}

var timeUnits = map[string]time.Duration{
	"second": time.Second, "seconds": time.Second, "s": time.Second,
	"minute": time.Minute, "minutes": time.Minute, "min": time.Minute,
	"hour": time.Hour, "hours": time.Hour, "h": time.Hour,
	"day": 24 * time.Hour, "days": 24 * time.Hour, "d": 24 * time.Hour,
}

var referenceLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04",
	"2006-01-02",
}

// parseTimeUnits parses CF time units such as "hours since 2024-03-01 00:00:00".
func parseTimeUnits(units string) (time.Duration, time.Time, error) {
	unit, ref, ok := strings.Cut(strings.TrimSpace(units), " since ")
	if !ok {
		return 0, time.Time{}, fmt.Errorf("time units %q: want \"<unit> since <date>\"", units)
	}
	step, ok := timeUnits[strings.ToLower(strings.TrimSpace(unit))]
	if !ok {
		return 0, time.Time{}, fmt.Errorf("time units %q: unknown unit %q", units, unit)
	}
	ref = strings.TrimSuffix(strings.TrimSpace(ref), " UTC")
	for _, layout := range referenceLayouts {
		if t, err := time.ParseInLocation(layout, ref, time.UTC); err == nil {
			return step, t.UTC(), nil
		}
	}
	return 0, time.Time{}, errors.New("time units " + units + ": unparseable reference date")
}
