package geometry

import (
	"strconv"
	"strings"

	"github.com/ctessum/geom"
)

// WKT serializes p as a well-known-text POLYGON. Rings are closed on output
// even if the input omits the closing point.
func WKT(p geom.Polygon) string {
	if len(p) == 0 {
		return "POLYGON EMPTY"
	}
	var sb strings.Builder
	sb.WriteString("POLYGON (")
	for i, ring := range p {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		for j, pt := range ring {
			if j > 0 {
				sb.WriteString(", ")
			}
			writePoint(&sb, pt)
		}
		if len(ring) > 0 && ring[0] != ring[len(ring)-1] {
			sb.WriteString(", ")
			writePoint(&sb, ring[0])
		}
		sb.WriteByte(')')
	}
	sb.WriteByte(')')
	return sb.String()
}

func writePoint(sb *strings.Builder, pt geom.Point) {
	sb.WriteString(strconv.FormatFloat(pt.X, 'f', -1, 64))
	sb.WriteByte(' ')
	sb.WriteString(strconv.FormatFloat(pt.Y, 'f', -1, 64))
}
