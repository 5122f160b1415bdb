package asset

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"
)

// LayerConfig is the merged, decoded configuration of one asset layer.
// Keys follow the yaml catalog; a single string is accepted wherever a list
// is expected.
type LayerConfig struct {
	ID    string `yaml:"id" json:"id" doc:"Stable layer identifier" example:"streetlights"`
	Name  string `yaml:"name" json:"name" doc:"Display name" example:"Street lights"`
	Kind  string `yaml:"kind" json:"kind,omitempty" enum:"point,line,polygon,area" doc:"Geometry kind"`
	Class string `yaml:"class" json:"class,omitempty" doc:"Explicit variant: asset, move or road"`

	NonInteractive bool `yaml:"non_interactive" json:"non_interactive,omitempty"`
	AlwaysVisible  bool `yaml:"always_visible" json:"always_visible,omitempty"`
	TracksPin      bool `yaml:"tracks_pin" json:"tracks_pin,omitempty"`
	Road           bool `yaml:"road" json:"road,omitempty"`

	AllCategories bool     `yaml:"all_categories" json:"all_categories,omitempty"`
	AssetCategory []string `yaml:"asset_category" json:"asset_category,omitempty"`
	AssetGroup    []string `yaml:"asset_group" json:"asset_group,omitempty"`
	Subcategories []string `yaml:"subcategories" json:"subcategories,omitempty"`
	Body          string   `yaml:"body" json:"body,omitempty" doc:"Responsible body the layer belongs to"`

	Policy        string         `yaml:"policy" json:"policy,omitempty" doc:"Named policy providing actions"`
	PolicyOptions map[string]any `yaml:"policy_options" json:"policy_options,omitempty"`

	Retrieval   Retrieval `yaml:"retrieval" json:"retrieval"`
	FilterKey   string    `yaml:"filter_key" json:"filter_key,omitempty"`
	FilterValue []string  `yaml:"filter_value" json:"filter_value,omitempty"`
	FaultLayer  string    `yaml:"fault_layer" json:"fault_layer,omitempty" doc:"Layer of already-reported faults"`

	Style Style `yaml:"style" json:"style"`

	MaxResolution float64 `yaml:"max_resolution" json:"max_resolution,omitempty"`
	MinResolution float64 `yaml:"min_resolution" json:"min_resolution,omitempty"`
	SnapRadius    float64 `yaml:"snap_radius" json:"snap_radius"`
	NearestRadius float64 `yaml:"nearest_radius" json:"nearest_radius"`

	AssetIDField string            `yaml:"asset_id_field" json:"asset_id_field,omitempty"`
	Attributes   map[string]string `yaml:"attributes" json:"attributes,omitempty" doc:"Form field to feature attribute"`
	USRN         []FieldMapping    `yaml:"usrn" json:"usrn,omitempty"`

	AssetItem        string `yaml:"asset_item" json:"asset_item,omitempty" example:"street light"`
	AssetType        string `yaml:"asset_type" json:"asset_type,omitempty" example:"spot"`
	AssetItemMessage string `yaml:"asset_item_message" json:"asset_item_message,omitempty"`
}

// Retrieval describes how features for a layer are fetched and decoded.
type Retrieval struct {
	Format        string            `yaml:"format" json:"format" enum:"geojson,pins,mvt,pmtiles,duckdb"`
	URL           string            `yaml:"url" json:"url,omitempty"`
	Method        string            `yaml:"method" json:"method,omitempty" enum:"GET,POST"`
	Params        map[string]string `yaml:"params" json:"params,omitempty"`
	BBoxParam     string            `yaml:"bbox_param" json:"bbox_param,omitempty"`
	SRSName       string            `yaml:"srs_name" json:"srs_name"`
	PropertyNames []string          `yaml:"property_names" json:"property_names,omitempty"`
	TileZoom      int               `yaml:"tile_zoom" json:"tile_zoom,omitempty"`
	TileLayer     string            `yaml:"tile_layer" json:"tile_layer,omitempty"`
	Table         string            `yaml:"table" json:"table,omitempty"`
	GeometryName  string            `yaml:"geometry_name" json:"geometry_name,omitempty"`
	Ratio         float64           `yaml:"ratio" json:"ratio"`
}

// Style holds the opaque default/hover/select style names for a layer.
type Style struct {
	Default string `yaml:"default" json:"default,omitempty"`
	Hover   string `yaml:"hover" json:"hover,omitempty"`
	Select  string `yaml:"select" json:"select,omitempty"`
}

// FieldMapping copies one feature attribute into one form field.
type FieldMapping struct {
	Field     string `yaml:"field" json:"field"`
	Attribute string `yaml:"attribute" json:"attribute"`
}

// Defaults every layer starts from before shared defaults and overrides.
func builtinDefaults() map[string]any {
	return map[string]any{
		"snap_radius":    50.0,
		"nearest_radius": 10.0,
		"retrieval": map[string]any{
			"format":     "geojson",
			"method":     "GET",
			"bbox_param": "bbox",
			"srs_name":   "EPSG:4326",
			"ratio":      1.5,
		},
		"style": map[string]any{
			"default": "asset",
			"hover":   "asset-hover",
			"select":  "asset-selected",
		},
	}
}

// Merge deep-merges src over dst and returns a new map. Nested maps are
// merged recursively; every other value, slices included, is replaced.
func Merge(dst, src map[string]any) map[string]any {
	out := make(map[string]any, len(dst)+len(src))
	for k, v := range dst {
		out[k] = v
	}
	for k, v := range src {
		sm, sok := asMap(v)
		dm, dok := asMap(out[k])
		if sok && dok {
			out[k] = Merge(dm, sm)
			continue
		}
		out[k] = v
	}
	return out
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, v := range m {
			out[fmt.Sprint(k)] = v
		}
		return out, true
	}
	return nil, false
}

// DecodeConfig decodes a merged configuration map into a LayerConfig.
// Unknown keys are reported as errors.
func DecodeConfig(m map[string]any) (LayerConfig, error) {
	var cfg LayerConfig
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "yaml",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           &cfg,
	})
	if err != nil {
		return cfg, err
	}
	if err := dec.Decode(m); err != nil {
		return cfg, fmt.Errorf("decode layer config: %w", err)
	}
	return cfg, nil
}
