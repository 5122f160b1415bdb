// Package geo is the geometry/projection provider used by the asset engine.
//
// It wraps paulmach/orb so the rest of the code never does projection maths
// itself: transforms between the supported CRSs, centroids, containment and
// ground distance between a geometry and a point.
package geo

import (
	"fmt"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/project"
)

// Supported coordinate reference systems.
const (
	WGS84    = "EPSG:4326"
	Mercator = "EPSG:3857"
	Planar   = "planar"
)

// Canonical normalises CRS aliases ("EPSG:900913", "urn:ogc:def:crs:EPSG::3857")
// to one of the supported names, or returns an error.
func Canonical(crs string) (string, error) {
	c := strings.ToUpper(strings.TrimSpace(crs))
	c = strings.TrimPrefix(c, "URN:OGC:DEF:CRS:")
	c = strings.ReplaceAll(c, "EPSG::", "EPSG:")
	switch c {
	case "":
		return "", fmt.Errorf("empty CRS")
	case "EPSG:4326", "CRS84", "OGC:1.3:CRS84":
		return WGS84, nil
	case "EPSG:3857", "EPSG:900913", "EPSG:102100":
		return Mercator, nil
	case "PLANAR":
		return Planar, nil
	}
	return "", fmt.Errorf("unsupported CRS %q", crs)
}

// Provider transforms geometries and measures distances in one display CRS.
type Provider struct {
	display string
}

// New creates a provider whose display (map) CRS is crs.
func New(crs string) (*Provider, error) {
	c, err := Canonical(crs)
	if err != nil {
		return nil, err
	}
	return &Provider{display: c}, nil
}

// Display returns the canonical display CRS.
func (p *Provider) Display() string {
	return p.display
}

// ToDisplay reprojects g from the from CRS into the display CRS.
func (p *Provider) ToDisplay(g orb.Geometry, from string) (orb.Geometry, error) {
	return Transform(g, from, p.display)
}

// FromDisplay reprojects g from the display CRS into the to CRS.
func (p *Provider) FromDisplay(g orb.Geometry, to string) (orb.Geometry, error) {
	return Transform(g, p.display, to)
}

// LonLat converts a display CRS point to WGS84 lon/lat.
func (p *Provider) LonLat(pt orb.Point) orb.Point {
	g, err := Transform(pt, p.display, WGS84)
	if err != nil {
		return pt
	}
	return g.(orb.Point)
}

// FromLonLat converts a WGS84 lon/lat point to the display CRS.
func (p *Provider) FromLonLat(pt orb.Point) orb.Point {
	g, err := Transform(pt, WGS84, p.display)
	if err != nil {
		return pt
	}
	return g.(orb.Point)
}

// Distance returns the ground distance in metres between g and pt, both in
// the display CRS. Planar displays return raw planar units.
func (p *Provider) Distance(g orb.Geometry, pt orb.Point) float64 {
	if g == nil {
		return -1
	}
	d := planar.DistanceFrom(g, pt)
	if p.display == Mercator {
		// mercator units stretch by 1/cos(lat)
		d /= project.MercatorScaleFactor(p.LonLat(pt))
	}
	return d
}

// Centroid returns a representative point for g: the point itself, the
// centroid of areas, or the length-weighted centre of lines.
func Centroid(g orb.Geometry) orb.Point {
	switch v := g.(type) {
	case orb.Point:
		return v
	case nil:
		return orb.Point{}
	}
	c, area := planar.CentroidArea(g)
	if area == 0 && c == (orb.Point{}) {
		return g.Bound().Center()
	}
	return c
}

// Contains reports whether pt lies inside an areal geometry. Points and lines
// never contain anything.
func Contains(g orb.Geometry, pt orb.Point) bool {
	switch v := g.(type) {
	case orb.Polygon:
		return planar.PolygonContains(v, pt)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(v, pt)
	case orb.Ring:
		return planar.RingContains(v, pt)
	case orb.Bound:
		return v.Contains(pt)
	case orb.Collection:
		for _, c := range v {
			if Contains(c, pt) {
				return true
			}
		}
	}
	return false
}

// Transform reprojects g between two supported CRSs. The input is cloned, so
// the caller's geometry is never modified.
func Transform(g orb.Geometry, from, to string) (orb.Geometry, error) {
	f, err := Canonical(from)
	if err != nil {
		return nil, err
	}
	t, err := Canonical(to)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, nil
	}
	if f == t || f == Planar || t == Planar {
		return orb.Clone(g), nil
	}
	switch {
	case f == WGS84 && t == Mercator:
		return project.Geometry(orb.Clone(g), project.WGS84.ToMercator), nil
	case f == Mercator && t == WGS84:
		return project.Geometry(orb.Clone(g), project.Mercator.ToWGS84), nil
	}
	return nil, fmt.Errorf("no transform from %s to %s", f, t)
}

// TransformBound reprojects a bounding box by its corners.
func TransformBound(b orb.Bound, from, to string) (orb.Bound, error) {
	g, err := Transform(b.ToPolygon(), from, to)
	if err != nil {
		return orb.Bound{}, err
	}
	return g.Bound(), nil
}

// Covers reports whether outer fully contains inner.
func Covers(outer, inner orb.Bound) bool {
	if outer.IsZero() {
		return false
	}
	return outer.Contains(inner.Min) && outer.Contains(inner.Max)
}

// Grow pads b so each side is ratio times its original length, keeping the
// centre fixed. A ratio ≤ 1 returns b unchanged.
func Grow(b orb.Bound, ratio float64) orb.Bound {
	if ratio <= 1 {
		return b
	}
	c := b.Center()
	hw := (b.Max[0] - b.Min[0]) * ratio / 2
	hh := (b.Max[1] - b.Min[1]) * ratio / 2
	return orb.Bound{
		Min: orb.Point{c[0] - hw, c[1] - hh},
		Max: orb.Point{c[0] + hw, c[1] + hh},
	}
}
