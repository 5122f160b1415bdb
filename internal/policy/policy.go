// Package policy holds the built-in per-layer behaviours a catalog can name
// with `policy:`. Each policy acts on the report only through asset.Bridge.
package policy

import (
	"fmt"
	"slices"
	"strings"

	"github.com/go-viper/mapstructure/v2"

	"github.com/joeblew999/plat-assets/internal/asset"
)

// Names of the built-in policies.
const (
	NationalHighways = "national-highways"
	OwnedRoads       = "owned-roads"
	GroupExcept      = "group-except"
	CheckedSelection = "checked-selection"
)

// Register adds every built-in policy to reg.
func Register(reg *asset.Registry) {
	reg.RegisterPolicy(NationalHighways, newNationalHighways)
	reg.RegisterPolicy(OwnedRoads, newOwnedRoads)
	reg.RegisterPolicy(GroupExcept, newGroupExcept)
	reg.RegisterPolicy(CheckedSelection, newCheckedSelection)
}

func decode(opts map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "yaml",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(opts)
}

// TrunkRoads routes the report only to Body while the pin is on a road
// whose Attribute matches one of Values (case-insensitive prefix).
type TrunkRoads struct {
	asset.NopActions
	Body      string   `yaml:"body"`
	Attribute string   `yaml:"attribute"`
	Values    []string `yaml:"values"`
}

func newNationalHighways(opts map[string]any) (asset.Actions, error) {
	p := TrunkRoads{Body: "National Highways", Attribute: "road_class", Values: []string{"M", "A"}}
	if err := decode(opts, &p); err != nil {
		return nil, fmt.Errorf("%s: %w", NationalHighways, err)
	}
	if p.Body == "" || p.Attribute == "" {
		return nil, fmt.Errorf("%s: body and attribute are required", NationalHighways)
	}
	return p, nil
}

func (p TrunkRoads) trunk(f *asset.Feature) bool {
	v, ok := f.Attr(p.Attribute)
	if !ok {
		return false
	}
	v = strings.ToUpper(strings.TrimSpace(v))
	for _, want := range p.Values {
		if strings.HasPrefix(v, strings.ToUpper(want)) {
			return true
		}
	}
	return false
}

func (p TrunkRoads) Found(b asset.Bridge, _ *asset.Layer, f *asset.Feature) {
	r := b.Routing()
	if p.trunk(f) {
		r.OnlySend(p.Body)
		return
	}
	if r.OnlySendTo() == p.Body {
		r.RemoveOnlySend()
	}
}

func (p TrunkRoads) NotFound(b asset.Bridge, _ *asset.Layer) {
	if r := b.Routing(); r.OnlySendTo() == p.Body {
		r.RemoveOnlySend()
	}
}

// Ownership excludes Body (the layer's body by default) unless the matched
// road's Attribute is one of Owned, and shows Notice while it is excluded.
// With Strict a pin that is on no road at all also excludes Body, for as
// long as the layer is shown.
type Ownership struct {
	asset.NopActions
	Body      string   `yaml:"body"`
	Attribute string   `yaml:"attribute"`
	Owned     []string `yaml:"owned"`
	Notice    string   `yaml:"notice"`
	Strict    bool     `yaml:"strict"`
}

func newOwnedRoads(opts map[string]any) (asset.Actions, error) {
	p := Ownership{Attribute: "owner"}
	if err := decode(opts, &p); err != nil {
		return nil, fmt.Errorf("%s: %w", OwnedRoads, err)
	}
	if len(p.Owned) == 0 {
		return nil, fmt.Errorf("%s: owned is required", OwnedRoads)
	}
	return p, nil
}

func (p Ownership) body(l *asset.Layer) string {
	if p.Body != "" {
		return p.Body
	}
	return l.Config().Body
}

func (p Ownership) Found(b asset.Bridge, l *asset.Layer, f *asset.Feature) {
	v, _ := f.Attr(p.Attribute)
	if slices.Contains(p.Owned, v) {
		p.allow(b, l)
		return
	}
	p.exclude(b, l)
}

func (p Ownership) NotFound(b asset.Bridge, l *asset.Layer) {
	if p.Strict && b.Visible(l.ID()) {
		p.exclude(b, l)
		return
	}
	p.allow(b, l)
}

func (p Ownership) allow(b asset.Bridge, l *asset.Layer) {
	r := b.Routing()
	if slices.Contains(r.Excluded(), p.body(l)) {
		r.AllowSend(p.body(l))
		b.SetOverlapWarning("")
	}
}

func (p Ownership) exclude(b asset.Bridge, l *asset.Layer) {
	b.Routing().DoNotSend(p.body(l))
	if p.Notice != "" {
		b.SetOverlapWarning(p.Notice)
	}
}

// GroupMembers makes a layer relevant to every category of Group except
// those listed in Except.
type GroupMembers struct {
	asset.NopActions
	Group  string   `yaml:"group"`
	Except []string `yaml:"except"`
}

func newGroupExcept(opts map[string]any) (asset.Actions, error) {
	var p GroupMembers
	if err := decode(opts, &p); err != nil {
		return nil, fmt.Errorf("%s: %w", GroupExcept, err)
	}
	if p.Group == "" {
		return nil, fmt.Errorf("%s: group is required", GroupExcept)
	}
	return p, nil
}

func (p GroupMembers) Relevant(_ *asset.Layer, c asset.Category) bool {
	return c.Group == p.Group && !slices.Contains(p.Except, c.Name)
}

// Checked records the selected asset in Field on every pin move and
// category change, and shows Notice while nothing is selected.
type Checked struct {
	asset.NopActions
	Field  string `yaml:"field"`
	Notice string `yaml:"notice"`
}

func newCheckedSelection(opts map[string]any) (asset.Actions, error) {
	p := Checked{Field: "asset_checked"}
	if err := decode(opts, &p); err != nil {
		return nil, fmt.Errorf("%s: %w", CheckedSelection, err)
	}
	return p, nil
}

func (Checked) RecheckSelection() bool { return true }

func (p Checked) AssetFound(b asset.Bridge, _ *asset.Layer, f *asset.Feature) {
	if b.Field(p.Field) == f.ID {
		return
	}
	b.SetField(p.Field, f.ID)
	if p.Notice != "" {
		b.SetOverlapWarning("")
	}
}

func (p Checked) AssetNotFound(b asset.Bridge, _ *asset.Layer) {
	b.SetField(p.Field, "")
	if p.Notice != "" && b.Category().Name != "" {
		b.SetOverlapWarning(p.Notice)
	}
}

var (
	_ asset.Actions    = TrunkRoads{}
	_ asset.Actions    = Ownership{}
	_ asset.Relevancer = GroupMembers{}
	_ asset.Rechecker  = Checked{}
)
