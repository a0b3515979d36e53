// Package gridfile reads gridded model output from disk.
//
// Two layouts are supported: CF/COARDS classic NetCDF files, read with
// ctessum/cdf, and MOHID HDF5 result files, read with the pure-Go HDF5
// reader of go-native-netcdf. Both present fields with rows along latitude
// and columns along longitude, missing cells as NaN.
package gridfile

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/intecmar/cop-loc-etl/internal/domain"
)

// Open opens path with the reader matching source. An empty source picks the
// reader from the file extension.
func Open(path string, source domain.Source) (domain.GridSource, error) {
	if source == "" {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".hdf5", ".hdf", ".h5":
			source = domain.SourceMOHID
		default:
			source = domain.SourceNetCDF
		}
	}
	switch source {
	case domain.SourceMOHID:
		return OpenMOHID(path)
	case domain.SourceNetCDF:
		return OpenNetCDF(path)
	default:
		return nil, fmt.Errorf("no grid reader for source %q", source)
	}
}
