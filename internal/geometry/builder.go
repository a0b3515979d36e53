package geometry

import (
	"math"

	"github.com/ctessum/geom"
	"github.com/intecmar/cop-loc-etl/internal/domain"
)

// MinRingPoints is the fewest distinct points a ring needs to enclose area.
const MinRingPoints = 3

// Builder accumulates the rings of one level.
type Builder struct {
	level string
	added int
	rings []geom.Path
}

// NewBuilder returns a builder for the named level.
func NewBuilder(level string) *Builder {
	return &Builder{level: level}
}

// AddRing validates ring and appends a closed copy of it. A rejected ring
// yields an *domain.InvalidRingError and leaves the builder unchanged.
func (b *Builder) AddRing(ring []geom.Point) error {
	idx := b.added
	b.added++

	for _, p := range ring {
		if !finite(p.X) || !finite(p.Y) {
			return &domain.InvalidRingError{Level: b.level, Ring: idx, Reason: "coordinate not available"}
		}
	}
	if n := distinctPoints(ring); n < MinRingPoints {
		return &domain.InvalidRingError{Level: b.level, Ring: idx, Reason: "fewer than 3 distinct points"}
	}

	b.rings = append(b.rings, closeRing(ring))
	return nil
}

// Len is the number of accepted rings.
func (b *Builder) Len() int {
	return len(b.rings)
}

// Polygon returns the assembled polygon, or false when no ring was accepted.
func (b *Builder) Polygon() (geom.Polygon, bool) {
	if len(b.rings) == 0 {
		return nil, false
	}
	p := make(geom.Polygon, len(b.rings))
	copy(p, b.rings)
	return p, true
}

func closeRing(ring []geom.Point) geom.Path {
	out := make(geom.Path, len(ring), len(ring)+1)
	copy(out, ring)
	if out[0] != out[len(out)-1] {
		out = append(out, out[0])
	}
	return out
}

func distinctPoints(ring []geom.Point) int {
	seen := make(map[geom.Point]struct{}, len(ring))
	for _, p := range ring {
		seen[p] = struct{}{}
	}
	return len(seen)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
