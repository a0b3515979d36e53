package gridfile

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// mohidPaths maps field names to the HDF5 dataset prefix MOHID writes them
// under. The five-digit step index is appended to the prefix.
var mohidPaths = map[string]string{
	"northward_velocity":                     "/Results/velocity V/velocity V_",
	"eastward_velocity":                      "/Results/velocity U/velocity U_",
	"spill_latitude":                         "/Results/spill/Latitude/Latitude_",
	"spill_longitude":                        "/Results/spill/Longitude/Longitude_",
	"spill_latitude_average":                 "/Results/spill/Latitude_average/Latitude_average_",
	"spill_longitude_average":                "/Results/spill/Longitude_average/Longitude_average_",
	"spill_latitude_envelope":                "/Results/spill/Latitude_envelope/Latitude_envelope_",
	"spill_longitude_envelope":               "/Results/spill/Longitude_envelope/Longitude_envelope_",
	"air_concentration_2D":                   "/Results/Spill Location/Data_2D/AirConcentration_2D/AirConcentration_2D_",
	"dissolved_concentration_2D":             "/Results/Spill Location/Data_2D/DissolvedConcentration_2D/DissolvedConcentration_2D_",
	"dissolved_int_maximum_concentration_2D": "/Results/Spill Location/Data_2D/DissolvedIntMaximumConcentration_2D/DissolvedIntMaximumConcentration_2D_",
	"air_int_maximum_concentration_2D":       "/Results/Spill Location/Data_2D/AirIntMaximumConcentration_2D/AirIntMaximumConcentration_2D_",
}

const (
	mohidLatitude  = "/Grid/Latitude"
	mohidLongitude = "/Grid/Longitude"
	mohidTimeGroup = "/Time"
	mohidTimeName  = "Time_"
)

// MOHID reads a MOHID HDF5 result file. MOHID stores fields with the first
// axis along longitude, so every field is transposed on read.
type MOHID struct {
	path string
	root api.Group
}

// OpenMOHID opens a MOHID HDF5 file.
func OpenMOHID(path string) (*MOHID, error) {
	root, err := netcdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open mohid %s: %w", path, err)
	}
	return &MOHID{path: path, root: root}, nil
}

// Latitudes returns the grid latitudes. MOHID writes cell corners on a 2-D
// grid; the first row carries the latitude axis.
func (m *MOHID) Latitudes() ([]float64, error) {
	data, shape, err := m.dataset(mohidLatitude)
	if err != nil {
		return nil, err
	}
	if len(shape) == 2 {
		return data[:shape[1]], nil
	}
	return data, nil
}

// Longitudes returns the grid longitudes, taken from the second column of the
// 2-D corner grid.
func (m *MOHID) Longitudes() ([]float64, error) {
	data, shape, err := m.dataset(mohidLongitude)
	if err != nil {
		return nil, err
	}
	if len(shape) != 2 {
		return data, nil
	}
	rows, cols := shape[0], shape[1]
	col := min(1, cols-1)
	out := make([]float64, rows)
	for r := range rows {
		out[r] = data[r*cols+col]
	}
	return out, nil
}

// Dates reads every /Time/Time_NNNNN dataset, each a [Y M D h m s] vector.
func (m *MOHID) Dates() ([]time.Time, error) {
	group, err := m.group(mohidTimeGroup)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, name := range group.ListVariables() {
		if strings.HasPrefix(name, mohidTimeName) {
			names = append(names, name)
		}
	}
	slices.Sort(names)

	dates := make([]time.Time, 0, len(names))
	for _, name := range names {
		v, err := group.GetVariable(name)
		if err != nil {
			return nil, fmt.Errorf("mohid %s: %s: %w", m.path, name, err)
		}
		parts, _, err := toFloat64s(v.Values)
		if err != nil || len(parts) < 6 {
			return nil, fmt.Errorf("mohid %s: %s: malformed time vector", m.path, name)
		}
		sec, frac := math.Modf(parts[5])
		dates = append(dates, time.Date(int(parts[0]), time.Month(int(parts[1])), int(parts[2]),
			int(parts[3]), int(parts[4]), int(sec), int(frac*1e9), time.UTC))
	}
	return dates, nil
}

// Variable reads a field at a 1-based step. Names outside the known MOHID
// fields are used as raw dataset prefixes when they start with "/".
// Three-dimensional fields are collapsed to their maximum over layers.
func (m *MOHID) Variable(name string, timeIndex int) (*mat.Dense, error) {
	prefix, ok := mohidPaths[name]
	if !ok {
		if !strings.HasPrefix(name, "/") {
			return nil, fmt.Errorf("mohid: unknown variable %q", name)
		}
		prefix = name
	}
	data, shape, err := m.dataset(fmt.Sprintf("%s%05d", prefix, timeIndex))
	if err != nil {
		return nil, err
	}
	switch len(shape) {
	case 2:
	case 3:
		data, shape = layerMax(data, shape), shape[1:]
	default:
		return nil, fmt.Errorf("mohid %s: %s has %d dimensions", m.path, name, len(shape))
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("mohid %s: %s is empty", m.path, name)
	}
	return transpose(data, shape[0], shape[1]), nil
}

// layerMax reduces a (layer, i, j) block to its NaN-aware maximum over layers.
func layerMax(data []float64, shape []int) []float64 {
	plane := shape[1] * shape[2]
	out := make([]float64, plane)
	column := make([]float64, 0, shape[0])
	for i := range out {
		column = column[:0]
		for l := range shape[0] {
			if v := data[l*plane+i]; !math.IsNaN(v) {
				column = append(column, v)
			}
		}
		if len(column) == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = floats.Max(column)
	}
	return out
}

// dataset reads the dataset at an absolute HDF5 path.
func (m *MOHID) dataset(path string) ([]float64, []int, error) {
	dir, name := splitPath(path)
	group, err := m.group(dir)
	if err != nil {
		return nil, nil, err
	}
	v, err := group.GetVariable(name)
	if err != nil {
		return nil, nil, fmt.Errorf("mohid %s: %s: %w", m.path, path, err)
	}
	data, shape, err := toFloat64s(v.Values)
	if err != nil {
		return nil, nil, fmt.Errorf("mohid %s: %s: %w", m.path, path, err)
	}
	if fill, ok := v.Attributes.Get("_FillValue"); ok {
		if f, _, err := toFloat64s(fill); err == nil && len(f) > 0 {
			maskFill(data, f[0])
		}
	}
	return data, shape, nil
}

func (m *MOHID) group(path string) (api.Group, error) {
	g := m.root
	for _, part := range strings.Split(strings.Trim(path, "/"), "/") {
		if part == "" {
			continue
		}
		next, err := g.GetGroup(part)
		if err != nil {
			return nil, fmt.Errorf("mohid %s: group %s: %w", m.path, path, err)
		}
		g = next
	}
	return g, nil
}

func splitPath(path string) (string, string) {
	i := strings.LastIndex(path, "/")
	if i < 0 {
		return "", path
	}
	return path[:i], path[i+1:]
}

// Close releases the file.
func (m *MOHID) Close() error {
	m.root.Close()
	return nil
}
