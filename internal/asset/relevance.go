package asset

import "slices"

// Category is the user's current category selection.
type Category struct {
	Name        string `json:"name" doc:"Category name" example:"Streetlight fault"`
	Group       string `json:"group,omitempty" doc:"Category group" example:"Street lighting"`
	Subcategory string `json:"subcategory,omitempty" doc:"Subcategory value, if the category has one"`
}

// Relevant decides whether a layer belongs to the category, before any
// jurisdiction check. A Relevancer policy replaces the built-in rule.
func Relevant(l *Layer, c Category) bool {
	if r, ok := l.actions.(Relevancer); ok {
		return r.Relevant(l, c)
	}
	cfg := l.cfg
	rel := cfg.AllCategories ||
		(c.Group != "" && slices.Contains(cfg.AssetGroup, c.Group)) ||
		(c.Name != "" && slices.Contains(cfg.AssetCategory, c.Name))
	if rel && len(cfg.Subcategories) > 0 {
		rel = slices.Contains(cfg.Subcategories, c.Subcategory)
	}
	return rel
}

// InJurisdiction reports whether the layer's body services the location.
// A nil body list means the bodies are not known yet.
func InJurisdiction(l *Layer, bodies []string) bool {
	if bodies == nil || l.cfg.Body == "" {
		return true
	}
	return slices.Contains(bodies, l.cfg.Body)
}

// Visible is the visibility a layer must have for a category and body list.
func Visible(l *Layer, c Category, bodies []string) bool {
	if !InJurisdiction(l, bodies) {
		return false
	}
	return l.cfg.AlwaysVisible || Relevant(l, c)
}
