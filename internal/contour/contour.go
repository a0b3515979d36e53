// Package contour traces iso-lines of a 2-D scalar field with marching
// squares.
//
// Grid nodes sit at integer (row, col) positions. Each cell formed by four
// neighboring nodes is classified by which corners are at or above the level,
// and crossing points are interpolated linearly along the cell edges. Segments
// are oriented so the region at or above the level is always on the same
// side, which lets segments from adjacent cells chain without a search.
package contour

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Pixel is a fractional grid position.
type Pixel struct {
	Row, Col float64
}

// Ring is one traced contour. Points never repeat the first point at the end.
// Closed is false when the contour ran into the grid border or a NaN cell;
// such rings are closed implicitly by joining the last point to the first.
type Ring struct {
	Points []Pixel
	Closed bool
}

// edge identifies a cell edge between two adjacent grid nodes. A horizontal
// edge joins (r, c) and (r, c+1); a vertical edge joins (r, c) and (r+1, c).
type edge struct {
	r, c     int
	vertical bool
}

// side of a cell, used to build the segment table.
type side uint8

const (
	top side = iota
	right
	bottom
	left
)

func (s side) edge(r, c int) edge {
	switch s {
	case top:
		return edge{r: r, c: c}
	case bottom:
		return edge{r: r + 1, c: c}
	case left:
		return edge{r: r, c: c, vertical: true}
	default:
		return edge{r: r, c: c + 1, vertical: true}
	}
}

// Corner bits: upper-left 1, upper-right 2, lower-right 4, lower-left 8.
// Each entry lists directed segments as (from, to) side pairs. Saddles (5 and
// 10) are resolved separately.
var segmentTable = [16][][2]side{
	1:  {{top, left}},
	2:  {{right, top}},
	3:  {{right, left}},
	4:  {{bottom, right}},
	6:  {{bottom, top}},
	7:  {{bottom, left}},
	8:  {{left, bottom}},
	9:  {{top, bottom}},
	11: {{right, bottom}},
	12: {{left, right}},
	13: {{top, right}},
	14: {{left, top}},
}

type segment struct {
	from, to edge
}

// Extract returns the contours of field at level in scan order. Corners with
// values >= level count as inside. Cells with any NaN corner are skipped.
func Extract(field mat.Matrix, level float64) []Ring {
	rows, cols := field.Dims()
	if rows < 2 || cols < 2 || math.IsNaN(level) {
		return nil
	}

	t := tracer{field: field, level: level}
	segs := t.segments(rows, cols)
	if len(segs) == 0 {
		return nil
	}
	return t.chain(segs)
}

type tracer struct {
	field mat.Matrix
	level float64
}

func (t *tracer) segments(rows, cols int) []segment {
	var segs []segment
	for r := 0; r < rows-1; r++ {
		for c := 0; c < cols-1; c++ {
			ul, ur := t.field.At(r, c), t.field.At(r, c+1)
			lr, ll := t.field.At(r+1, c+1), t.field.At(r+1, c)
			if math.IsNaN(ul) || math.IsNaN(ur) || math.IsNaN(lr) || math.IsNaN(ll) {
				continue
			}

			idx := 0
			if ul >= t.level {
				idx |= 1
			}
			if ur >= t.level {
				idx |= 2
			}
			if lr >= t.level {
				idx |= 4
			}
			if ll >= t.level {
				idx |= 8
			}

			pairs := segmentTable[idx]
			switch idx {
			case 5:
				if (ul+ur+lr+ll)/4 >= t.level {
					pairs = [][2]side{{top, right}, {bottom, left}}
				} else {
					pairs = [][2]side{{top, left}, {bottom, right}}
				}
			case 10:
				if (ul+ur+lr+ll)/4 >= t.level {
					pairs = [][2]side{{left, top}, {right, bottom}}
				} else {
					pairs = [][2]side{{right, top}, {left, bottom}}
				}
			}
			for _, p := range pairs {
				segs = append(segs, segment{from: p[0].edge(r, c), to: p[1].edge(r, c)})
			}
		}
	}
	return segs
}

// chain links segments sharing an edge into rings. Every edge is the start of
// at most one segment and the end of at most one, so the segments form
// disjoint paths and cycles.
func (t *tracer) chain(segs []segment) []Ring {
	next := make(map[edge]edge, len(segs))
	prev := make(map[edge]edge, len(segs))
	for _, s := range segs {
		next[s.from] = s.to
		prev[s.to] = s.from
	}

	visited := make(map[edge]bool, len(segs))
	var rings []Ring
	for _, s := range segs {
		if visited[s.from] {
			continue
		}

		start, closed := s.from, false
		for {
			p, ok := prev[start]
			if !ok {
				break
			}
			if p == s.from {
				start, closed = s.from, true
				break
			}
			start = p
		}

		ring := Ring{Points: []Pixel{t.point(start)}, Closed: closed}
		visited[start] = true
		for cur := start; ; {
			n, ok := next[cur]
			if !ok || n == start {
				break
			}
			ring.Points = append(ring.Points, t.point(n))
			visited[n] = true
			cur = n
		}
		rings = append(rings, ring)
	}
	return rings
}

// point interpolates where the field crosses the level along e.
func (t *tracer) point(e edge) Pixel {
	v0 := t.field.At(e.r, e.c)
	if e.vertical {
		v1 := t.field.At(e.r+1, e.c)
		return Pixel{Row: float64(e.r) + fraction(v0, v1, t.level), Col: float64(e.c)}
	}
	v1 := t.field.At(e.r, e.c+1)
	return Pixel{Row: float64(e.r), Col: float64(e.c) + fraction(v0, v1, t.level)}
}

func fraction(v0, v1, level float64) float64 {
	if v1 == v0 {
		return 0.5
	}
	return (level - v0) / (v1 - v0)
}
