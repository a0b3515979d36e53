// Package grid reduces time series of 2-D fields and maps fractional grid
// indices back to axis coordinates.
package grid
