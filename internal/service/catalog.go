// Package service wires layer catalogs, report sessions and local datasets
// for the HTTP API.
package service

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-assets/internal/asset"
)

// catalogFile is the on-disk layer catalog:
//
//	defaults:
//	  wfs: {retrieval: {url: ..., srs_name: EPSG:3857}}
//	layers:
//	  - defaults: wfs
//	    id: streetlights
//	    ...
type catalogFile struct {
	Defaults map[string]map[string]any `yaml:"defaults"`
	Layers   []map[string]any          `yaml:"layers"`
}

// Catalog is the compiled set of asset layers shared by every session.
type Catalog struct {
	reg *asset.Registry
}

// NewCatalog wraps a registry that was filled elsewhere.
func NewCatalog(reg *asset.Registry) *Catalog {
	return &Catalog{reg: reg}
}

// LoadCatalog reads a YAML catalog into reg.
func LoadCatalog(path string, reg *asset.Registry) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	c, err := ParseCatalog(data, reg)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return c, nil
}

// ParseCatalog compiles catalog YAML into reg. Each layer may name one or
// more defaults blocks, merged in order beneath the layer's own keys.
func ParseCatalog(data []byte, reg *asset.Registry) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	var errs []error
	for i, overrides := range f.Layers {
		defaults, err := f.defaultsFor(overrides)
		if err != nil {
			errs = append(errs, fmt.Errorf("layers[%d]: %w", i, err))
			continue
		}
		if _, err := reg.Add(defaults, overrides); err != nil {
			errs = append(errs, fmt.Errorf("layers[%d]: %w", i, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &Catalog{reg: reg}, nil
}

// defaultsFor removes the "defaults" key from a layer and returns the
// merged blocks it names.
func (f *catalogFile) defaultsFor(layer map[string]any) (map[string]any, error) {
	ref, ok := layer["defaults"]
	if !ok {
		return nil, nil
	}
	delete(layer, "defaults")

	var names []string
	switch v := ref.(type) {
	case string:
		names = []string{v}
	case []any:
		for _, n := range v {
			s, ok := n.(string)
			if !ok {
				return nil, fmt.Errorf("defaults entries must be names, got %T", n)
			}
			names = append(names, s)
		}
	default:
		return nil, fmt.Errorf("defaults must be a name or list of names, got %T", ref)
	}

	var out map[string]any
	for _, n := range names {
		block, ok := f.Defaults[n]
		if !ok {
			return nil, fmt.Errorf("unknown defaults %q", n)
		}
		out = asset.Merge(out, block)
	}
	return out, nil
}

// Registry returns the compiled registry.
func (c *Catalog) Registry() *asset.Registry {
	return c.reg
}

// List returns every layer's configuration in catalog order.
func (c *Catalog) List() []LayerInfo {
	layers := c.reg.Layers()
	out := make([]LayerInfo, len(layers))
	for i, l := range layers {
		out[i] = infoOf(l)
	}
	return out
}

// Get returns one layer's configuration.
func (c *Catalog) Get(id string) (LayerInfo, bool) {
	l, ok := c.reg.Get(id)
	if !ok {
		return LayerInfo{}, false
	}
	return infoOf(l), true
}

// LayerInfo is the API view of a compiled layer.
type LayerInfo struct {
	asset.LayerConfig
	Variant     string `json:"variant" enum:"asset,move,road" doc:"Behaviour class"`
	Interactive bool   `json:"interactive" doc:"Whether features can be selected"`
	ZIndex      int    `json:"z_index" doc:"Stacking order, below the pin"`
}

func infoOf(l *asset.Layer) LayerInfo {
	return LayerInfo{
		LayerConfig: l.Config(),
		Variant:     l.Variant().String(),
		Interactive: l.Interactive(),
		ZIndex:      l.ZIndex(),
	}
}
