package geometry

import (
	"fmt"
	"strings"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/proj"
)

// WGS84 is the spatial reference persisted envelopes are expressed in.
const WGS84 = "+proj=longlat +datum=WGS84 +no_defs"

// SRID of WGS84.
const SRID = 4326

// Reprojector converts polygons from a grid's spatial reference to WGS84
// longitude/latitude and checks the result lies on the globe.
type Reprojector struct {
	transform proj.Transformer
}

// NewReprojector parses srs, a proj4 string or OGC WKT. An empty srs means
// the axes already are WGS84 longitude/latitude.
func NewReprojector(srs string) (*Reprojector, error) {
	if strings.TrimSpace(srs) == "" {
		return &Reprojector{}, nil
	}
	src, err := proj.Parse(srs)
	if err != nil {
		return nil, fmt.Errorf("parse spatial reference: %w", err)
	}
	dst, err := proj.Parse(WGS84)
	if err != nil {
		return nil, fmt.Errorf("parse spatial reference: %w", err)
	}
	t, err := src.NewTransform(dst)
	if err != nil {
		return nil, fmt.Errorf("build transform: %w", err)
	}
	return &Reprojector{transform: t}, nil
}

// Polygon returns p in WGS84.
func (r *Reprojector) Polygon(p geom.Polygon) (geom.Polygon, error) {
	out := p
	if r.transform != nil {
		g, err := p.Transform(r.transform)
		if err != nil {
			return nil, fmt.Errorf("reproject polygon: %w", err)
		}
		var ok bool
		if out, ok = g.(geom.Polygon); !ok {
			return nil, fmt.Errorf("reproject polygon: unexpected %T", g)
		}
	}
	for _, ring := range out {
		for _, pt := range ring {
			if pt.X < -180 || pt.X > 180 || pt.Y < -90 || pt.Y > 90 {
				return nil, fmt.Errorf("point (%g, %g) is outside longitude/latitude bounds", pt.X, pt.Y)
			}
		}
	}
	return out, nil
}
