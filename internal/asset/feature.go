package asset

import (
	"fmt"
	"maps"
	"strconv"

	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-assets/internal/geo"
)

// matchThreshold is how far a reloaded feature may be from the original
// and still count as the same asset.
const matchThreshold = 1.0

// Feature is one spatial entity from a layer's data source.
type Feature struct {
	ID         string         `json:"id"`
	Geometry   orb.Geometry   `json:"-"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// NewFeature builds a feature whose ID is taken from idField, if present.
func NewFeature(g orb.Geometry, attrs map[string]any, idField string) *Feature {
	f := &Feature{Geometry: g, Attributes: attrs}
	if f.Attributes == nil {
		f.Attributes = map[string]any{}
	}
	if idField != "" {
		f.ID, _ = f.Attr(idField)
	}
	return f
}

// Attr returns an attribute rendered as a string.
func (f *Feature) Attr(name string) (string, bool) {
	v, ok := f.Attributes[name]
	if !ok || v == nil {
		return "", false
	}
	return Stringify(v), true
}

// Clone copies the feature so engines never share mutable attribute maps.
func (f *Feature) Clone() *Feature {
	return &Feature{
		ID:         f.ID,
		Geometry:   orb.Clone(f.Geometry),
		Attributes: maps.Clone(f.Attributes),
	}
}

// Stringify formats an attribute value the way it should appear in a form.
func Stringify(v any) string {
	switch n := v.(type) {
	case string:
		return n
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(n), 'f', -1, 32)
	case int:
		return strconv.Itoa(n)
	case int64:
		return strconv.FormatInt(n, 10)
	case uint64:
		return strconv.FormatUint(n, 10)
	}
	return fmt.Sprint(v)
}

// matching returns the candidate carrying f's identifier in idField and
// lying within matchThreshold of f, or nil. Candidates may come from
// another layer, such as reported faults, whose own IDs differ; a
// candidate without idField falls back to its ID.
func matching(p *geo.Provider, f *Feature, candidates []*Feature, idField string) *Feature {
	at := geo.Centroid(f.Geometry)
	for _, c := range candidates {
		id := c.ID
		if idField != "" {
			if v, ok := c.Attr(idField); ok {
				id = v
			}
		}
		if id == f.ID && p.Distance(c.Geometry, at) <= matchThreshold {
			return c
		}
	}
	return nil
}

// lessID orders identifiers numerically when both are numbers, otherwise
// lexically.
func lessID(a, b string) bool {
	fa, ea := strconv.ParseFloat(a, 64)
	fb, eb := strconv.ParseFloat(b, 64)
	if ea == nil && eb == nil && fa != fb {
		return fa < fb
	}
	return a < b
}
