package asset

import (
	"fmt"
	"maps"

	"github.com/joeblew999/plat-assets/internal/geo"
)

// Click selects a feature of an interactive, visible layer, replacing any
// existing selection.
func (e *Engine) Click(layerID, featureID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	ls, ok := e.byID[layerID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownLayer, layerID)
	}
	if !ls.layer.Interactive() {
		return fmt.Errorf("%w: %s", ErrNotInteractive, layerID)
	}
	if !ls.visible || !ls.inRange {
		return fmt.Errorf("%w: %s is not shown", ErrNotInteractive, layerID)
	}
	var f *Feature
	for _, c := range ls.features {
		if c.ID == featureID {
			f = c
			break
		}
	}
	if f == nil {
		return fmt.Errorf("%w: %s/%s", ErrUnknownFeature, layerID, featureID)
	}

	if fl := ls.layer.cfg.FaultLayer; fl != "" {
		if fls, ok := e.byID[fl]; ok && matching(e.geo, f, fls.features, ls.layer.cfg.AssetIDField) != nil {
			e.setOverlap(e.renderOr("fault-reported", map[string]any{"ID": f.ID},
				"This fault has been reported."), false)
			e.refreshMessages()
			return fmt.Errorf("%w: %s", ErrFaultReported, f.ID)
		}
	}

	e.selectFeature(ls, f, true)
	e.refreshMessages()
	return nil
}

// Deselect clears the selection if layerID still holds it. A deselect for a
// layer that has already lost the selection is ignored.
func (e *Engine) Deselect(layerID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sel == nil || e.sel.ls.layer.ID() != layerID {
		return
	}
	e.unselect()
	e.refreshMessages()
}

// selectFeature makes f the selection. With snap the pin moves to the
// feature's centroid.
func (e *Engine) selectFeature(ls *layerState, f *Feature, snap bool) {
	if e.sel != nil && e.sel.ls != ls {
		e.unselect()
	}
	e.sel = &selection{ls: ls, feature: f}
	e.setOverlap("", false)
	if snap {
		e.setPin(geo.Centroid(f.Geometry))
	}
	// road lookups first so the feature's own attributes win
	e.matchRoads()
	e.applyAttributes(ls, f)
	e.bus.Publish(AssetSelected{
		LayerID:   ls.layer.ID(),
		FeatureID: f.ID,
		LonLat:    e.geo.LonLat(e.pin),
		Fields:    maps.Clone(f.Attributes),
	})
	l := ls.layer
	e.run(func(b Bridge) { l.actions.AssetFound(b, l, f) })
}

// unselect clears the selection, its mapped fields and shows the pin.
func (e *Engine) unselect() {
	s := e.sel
	if s == nil {
		return
	}
	e.sel = nil
	l := s.ls.layer
	for field := range l.cfg.Attributes {
		e.form.Set(field, "")
	}
	e.bus.Publish(AssetUnselected{LayerID: l.ID()})
	e.run(func(b Bridge) { l.actions.AssetNotFound(b, l) })
}

func (e *Engine) applyAttributes(ls *layerState, f *Feature) {
	l := ls.layer
	for field, attr := range l.cfg.Attributes {
		v, _ := f.Attr(attr)
		e.form.Set(field, v)
	}
	e.run(func(b Bridge) { l.actions.AttributeSet(b, l, f) })
}

// dataReloaded reconciles the selection and matches with a new feature set.
func (e *Engine) dataReloaded(ls *layerState) {
	road := ls.layer.variant == NearestRoad && ls.visible
	if road {
		e.matchRoad(ls)
	}
	switch {
	case e.sel != nil && e.sel.ls == ls:
		if m := matching(e.geo, e.sel.feature, ls.features, ls.layer.cfg.AssetIDField); m != nil {
			e.selectFeature(ls, m, false)
		} else {
			e.unselect()
		}
	case e.sel != nil && road:
		e.applyAttributes(e.sel.ls, e.sel.feature)
	}
	e.trackPin()
	e.autoSnap()
	e.refreshMessages()
}

// snappable reports whether a layer may take part in auto-snap.
func (ls *layerState) snappable() bool {
	return ls.visible && ls.inRange && ls.layer.Interactive()
}

// autoSnap selects the nearest feature to the pin when the pin is shown and
// exactly one layer has a candidate. Candidates on several layers raise the
// overlap warning instead.
func (e *Engine) autoSnap() {
	if e.sel != nil || !e.pinSet {
		return
	}
	type candidate struct {
		ls *layerState
		f  *Feature
	}
	var found []candidate
	for _, ls := range e.layers {
		if !ls.snappable() || ls.layer.variant == MovingAsset {
			continue
		}
		if f := Nearest(e.geo, ls.features, e.pin, ls.layer.cfg.SnapRadius); f != nil {
			found = append(found, candidate{ls, f})
		}
	}
	switch len(found) {
	case 0:
		if e.overlapSnap {
			e.setOverlap("", false)
		}
	case 1:
		e.selectFeature(found[0].ls, found[0].f, true)
	default:
		e.setOverlap(e.renderOr("overlap", nil, "There is more than one asset at this location."), true)
	}
}

// trackPin re-checks MovingAsset layers against the pin: the nearest
// feature within the snap radius becomes the selection without moving the
// pin, and the layer drops the selection when nothing is near.
func (e *Engine) trackPin() {
	if !e.pinSet {
		return
	}
	for _, ls := range e.layers {
		if ls.layer.variant != MovingAsset || !ls.snappable() {
			continue
		}
		l := ls.layer
		f := Nearest(e.geo, ls.features, e.pin, l.cfg.SnapRadius)
		held := e.sel != nil && e.sel.ls == ls
		switch {
		case f != nil && held && f.ID == e.sel.feature.ID:
			e.sel.feature = f
			e.run(func(b Bridge) { l.actions.AssetFound(b, l, f) })
		case f != nil:
			e.selectFeature(ls, f, false)
		case held:
			e.unselect()
		default:
			e.run(func(b Bridge) { l.actions.AssetNotFound(b, l) })
		}
	}
}

// recheck fires AssetFound/AssetNotFound for layers whose policy asks for
// it after every pin move and category change.
func (e *Engine) recheck() {
	for _, ls := range e.layers {
		rc, ok := ls.layer.actions.(Rechecker)
		if !ok || !rc.RecheckSelection() || !ls.visible {
			continue
		}
		l := ls.layer
		if e.sel != nil && e.sel.ls == ls {
			f := e.sel.feature
			e.run(func(b Bridge) { l.actions.AssetFound(b, l, f) })
		} else {
			e.run(func(b Bridge) { l.actions.AssetNotFound(b, l) })
		}
	}
}
