package geometry

import (
	"testing"

	"github.com/ctessum/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReprojector_Identity(t *testing.T) {
	r, err := NewReprojector("")
	require.NoError(t, err)

	in := geom.Polygon{{{X: -8.7, Y: 42.6}, {X: -8.6, Y: 42.6}, {X: -8.6, Y: 42.7}, {X: -8.7, Y: 42.6}}}
	out, err := r.Polygon(in)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestReprojector_RejectsOutOfBounds(t *testing.T) {
	r, err := NewReprojector("")
	require.NoError(t, err)

	// projected metres passed off as degrees
	in := geom.Polygon{{{X: 512000, Y: 4716000}, {X: 513000, Y: 4716000}, {X: 513000, Y: 4717000}}}
	_, err = r.Polygon(in)
	assert.Error(t, err)
}

func TestReprojector_UTM(t *testing.T) {
	r, err := NewReprojector("+proj=utm +zone=29 +datum=WGS84 +units=m +no_defs")
	require.NoError(t, err)

	in := geom.Polygon{{{X: 500000, Y: 4700000}, {X: 501000, Y: 4700000}, {X: 501000, Y: 4701000}, {X: 500000, Y: 4700000}}}
	out, err := r.Polygon(in)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Len(t, out[0], 4)

	// the zone 29 central meridian is 9W
	assert.InDelta(t, -9.0, out[0][0].X, 1e-6)
	assert.InDelta(t, 42.45, out[0][0].Y, 0.2)
	assert.Greater(t, out[0][1].X, out[0][0].X)
}

func TestNewReprojector_Invalid(t *testing.T) {
	_, err := NewReprojector("+proj=nonsense")
	assert.Error(t, err)
}
