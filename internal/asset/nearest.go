package asset

import (
	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-assets/internal/geo"
)

// Nearest returns the feature closest to pt within radius (inclusive).
// Equidistant features resolve to the lowest identifier.
func Nearest(p *geo.Provider, features []*Feature, pt orb.Point, radius float64) *Feature {
	var (
		best     *Feature
		bestDist float64
	)
	for _, f := range features {
		if f.Geometry == nil {
			continue
		}
		d := p.Distance(f.Geometry, pt)
		if d < 0 || d > radius {
			continue
		}
		if best == nil || d < bestDist || (d == bestDist && lessID(f.ID, best.ID)) {
			best, bestDist = f, d
		}
	}
	return best
}

// FeatureAt returns the feature containing pt, or failing that the nearest
// within radius.
func FeatureAt(p *geo.Provider, features []*Feature, pt orb.Point, radius float64) *Feature {
	var inside *Feature
	for _, f := range features {
		if geo.Contains(f.Geometry, pt) && (inside == nil || lessID(f.ID, inside.ID)) {
			inside = f
		}
	}
	if inside != nil {
		return inside
	}
	return Nearest(p, features, pt, radius)
}

// matchRoad runs containment/nearest matching for one road layer at the
// pin and fires its actions. Caller holds e.mu.
func (e *Engine) matchRoad(ls *layerState) {
	l := ls.layer
	var f *Feature
	if e.pinSet {
		f = FeatureAt(e.geo, ls.features, e.pin, l.cfg.NearestRadius)
	}
	ls.matched = f
	for _, m := range l.cfg.USRN {
		v := ""
		if f != nil {
			v, _ = f.Attr(m.Attribute)
		}
		e.form.Set(m.Field, v)
	}
	e.run(func(b Bridge) {
		if f != nil {
			l.actions.Found(b, l, f)
		} else {
			l.actions.NotFound(b, l)
		}
	})
}

// dropRoad forgets a hidden road layer's match, blanks its USRN fields and
// fires NotFound so its actions can lift any routing override.
func (e *Engine) dropRoad(ls *layerState) {
	l := ls.layer
	ls.matched = nil
	for _, m := range l.cfg.USRN {
		e.form.Set(m.Field, "")
	}
	e.run(func(b Bridge) { l.actions.NotFound(b, l) })
}

// rematch re-runs road matching and then re-applies the selection's own
// attributes, which take precedence over road lookups.
func (e *Engine) rematch() {
	e.matchRoads()
	if e.sel != nil {
		e.applyAttributes(e.sel.ls, e.sel.feature)
	}
}

// matchRoads re-runs matching on every visible road layer.
func (e *Engine) matchRoads() {
	for _, ls := range e.layers {
		if ls.layer.variant == NearestRoad && ls.visible {
			e.matchRoad(ls)
		}
	}
}
