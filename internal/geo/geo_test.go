package geo

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonical(t *testing.T) {
	tests := map[string]string{
		"EPSG:4326":                  WGS84,
		"epsg:4326":                  WGS84,
		"urn:ogc:def:crs:EPSG::4326": WGS84,
		"CRS84":                      WGS84,
		"EPSG:3857":                  Mercator,
		"EPSG:900913":                Mercator,
		"urn:ogc:def:crs:EPSG::3857": Mercator,
		" EPSG:102100 ":              Mercator,
		"planar":                     Planar,
	}
	for in, want := range tests {
		got, err := Canonical(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := Canonical("EPSG:27700")
	assert.ErrorContains(t, err, "unsupported CRS")
	_, err = Canonical("")
	assert.Error(t, err)
}

func TestTransformRoundTrip(t *testing.T) {
	in := orb.LineString{{-0.1276, 51.5072}, {-0.1, 51.52}}
	m, err := Transform(in, WGS84, Mercator)
	require.NoError(t, err)
	assert.InDelta(t, -14204.4, m.(orb.LineString)[0][0], 1)

	back, err := Transform(m, Mercator, WGS84)
	require.NoError(t, err)
	for i, p := range back.(orb.LineString) {
		assert.InDelta(t, in[i][0], p[0], 1e-9)
		assert.InDelta(t, in[i][1], p[1], 1e-9)
	}
	assert.Equal(t, -0.1276, in[0][0], "input is not modified")

	_, err = Transform(in, WGS84, "EPSG:27700")
	assert.Error(t, err)
}

func TestMercatorDistanceIsGround(t *testing.T) {
	p, err := New(Mercator)
	require.NoError(t, err)

	// one hundredth of a degree of longitude at 60N is about 556m
	a := p.FromLonLat(orb.Point{0, 60})
	b := p.FromLonLat(orb.Point{0.01, 60})
	d := p.Distance(a, b)
	assert.InDelta(t, 556, d, 2)

	flat, err := New(Planar)
	require.NoError(t, err)
	assert.Equal(t, 5.0, flat.Distance(orb.Point{3, 4}, orb.Point{0, 0}))
	assert.Equal(t, -1.0, flat.Distance(nil, orb.Point{}))
}

func TestCentroid(t *testing.T) {
	sq := orb.Polygon{{{0, 0}, {4, 0}, {4, 4}, {0, 4}, {0, 0}}}
	c := Centroid(sq)
	assert.InDelta(t, 2, c[0], 1e-9)
	assert.InDelta(t, 2, c[1], 1e-9)
	assert.Equal(t, orb.Point{1, 1}, Centroid(orb.Point{1, 1}))

	c = Centroid(orb.LineString{{0, 0}, {10, 0}})
	assert.InDelta(t, 5, c[0], 1e-9)
	assert.InDelta(t, 0, c[1], 1e-9)
}

func TestContains(t *testing.T) {
	sq := orb.Polygon{{{0, 0}, {4, 0}, {4, 4}, {0, 4}, {0, 0}}}
	assert.True(t, Contains(sq, orb.Point{1, 1}))
	assert.False(t, Contains(sq, orb.Point{5, 1}))
	assert.True(t, Contains(orb.MultiPolygon{sq}, orb.Point{1, 1}))
	assert.True(t, Contains(orb.Collection{orb.Point{9, 9}, sq}, orb.Point{1, 1}))
	assert.False(t, Contains(orb.LineString{{0, 0}, {4, 4}}, orb.Point{2, 2}))
}

func TestCoversAndGrow(t *testing.T) {
	b := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{100, 50}}
	g := Grow(b, 2)
	assert.Equal(t, orb.Bound{Min: orb.Point{-50, -25}, Max: orb.Point{150, 75}}, g)
	assert.Equal(t, b, Grow(b, 0.5))

	assert.True(t, Covers(g, b))
	assert.False(t, Covers(b, g))
	assert.False(t, Covers(orb.Bound{}, orb.Bound{}))
}

func TestTransformBound(t *testing.T) {
	b := orb.Bound{Min: orb.Point{-1, 50}, Max: orb.Point{1, 52}}
	m, err := TransformBound(b, WGS84, Mercator)
	require.NoError(t, err)
	assert.Less(t, m.Min[0], 0.0)
	assert.Greater(t, m.Max[1], m.Min[1])

	back, err := TransformBound(m, Mercator, WGS84)
	require.NoError(t, err)
	assert.InDelta(t, 50, back.Min[1], 1e-9)
	assert.False(t, math.IsNaN(back.Max[0]))
}
