package geometry

import (
	"testing"

	"github.com/ctessum/geom"
	"github.com/stretchr/testify/assert"
)

func TestWKT(t *testing.T) {
	tests := []struct {
		name string
		in   geom.Polygon
		want string
	}{
		{
			name: "closed ring",
			in:   geom.Polygon{{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 0}}},
			want: "POLYGON ((0 0, 1 0, 1 1, 0 0))",
		},
		{
			name: "closes open ring",
			in:   geom.Polygon{{{X: -8.75, Y: 42.5}, {X: -8.5, Y: 42.5}, {X: -8.5, Y: 42.75}}},
			want: "POLYGON ((-8.75 42.5, -8.5 42.5, -8.5 42.75, -8.75 42.5))",
		},
		{
			name: "two rings",
			in: geom.Polygon{
				{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}},
				{{X: 5, Y: 5}, {X: 6, Y: 5}, {X: 6, Y: 6}},
			},
			want: "POLYGON ((0 0, 1 0, 1 1, 0 0), (5 5, 6 5, 6 6, 5 5))",
		},
		{
			name: "empty",
			in:   nil,
			want: "POLYGON EMPTY",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, WKT(tt.in))
		})
	}
}
