// Package geometry assembles contour rings into polygons and serializes them.
//
// Rings are collected per level by a [Builder]: the first accepted ring is
// the outer boundary and later rings follow it in the same polygon. Points
// are (X, Y) = (longitude, latitude) in degrees once reprojected, and every
// ring is explicitly closed.
package geometry
