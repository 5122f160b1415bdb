package asset

import (
	"fmt"
	"slices"
)

// Variant is the behaviour class of a layer.
type Variant int

const (
	// PointAsset layers hold clickable assets; selecting one snaps the pin.
	PointAsset Variant = iota
	// MovingAsset layers re-check the asset under the pin whenever it moves.
	MovingAsset
	// NearestRoad layers are matched against the pin, never selected.
	NearestRoad
)

func (v Variant) String() string {
	switch v {
	case PointAsset:
		return "asset"
	case MovingAsset:
		return "move"
	case NearestRoad:
		return "road"
	}
	return fmt.Sprintf("Variant(%d)", int(v))
}

func variantOf(cfg LayerConfig) (Variant, error) {
	switch cfg.Class {
	case "asset":
		return PointAsset, nil
	case "move":
		return MovingAsset, nil
	case "road":
		return NearestRoad, nil
	case "":
	default:
		return PointAsset, fmt.Errorf("unknown class %q", cfg.Class)
	}
	switch {
	case cfg.Road && cfg.TracksPin:
		return NearestRoad, fmt.Errorf("road and tracks_pin are exclusive")
	case cfg.Road:
		return NearestRoad, nil
	case cfg.TracksPin:
		return MovingAsset, nil
	}
	return PointAsset, nil
}

// Layer is a compiled, immutable layer definition. Runtime state such as
// visibility and features lives in each Engine.
type Layer struct {
	cfg     LayerConfig
	variant Variant
	actions Actions
	zIndex  int
	order   int
}

func (l *Layer) ID() string          { return l.cfg.ID }
func (l *Layer) Name() string        { return l.cfg.Name }
func (l *Layer) Variant() Variant    { return l.variant }
func (l *Layer) ZIndex() int         { return l.zIndex }
func (l *Layer) Actions() Actions    { return l.actions }
func (l *Layer) Config() LayerConfig { return l.cfg }

// Interactive reports whether features of the layer can be selected.
func (l *Layer) Interactive() bool {
	return l.variant != NearestRoad && !l.cfg.NonInteractive
}

// InRange reports whether the map resolution is inside the layer's range.
// A non-positive resolution means the map has not reported one yet.
func (l *Layer) InRange(resolution float64) bool {
	if resolution <= 0 {
		return true
	}
	if l.cfg.MaxResolution > 0 && resolution > l.cfg.MaxResolution {
		return false
	}
	if l.cfg.MinResolution > 0 && resolution < l.cfg.MinResolution {
		return false
	}
	return true
}

// accepts applies the filter_key/filter_value attribute filter.
func (l *Layer) accepts(f *Feature) bool {
	if l.cfg.FilterKey == "" || len(l.cfg.FilterValue) == 0 {
		return true
	}
	v, ok := f.Attr(l.cfg.FilterKey)
	return ok && slices.Contains(l.cfg.FilterValue, v)
}
