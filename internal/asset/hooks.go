package asset

// Bridge is the narrow view of engine state handed to layer actions.
// Actions run while the engine is mid-update, so they must act only
// through the bridge.
type Bridge interface {
	Category() Category
	Bodies() []string
	Field(name string) string
	SetField(name, value string)
	// Selected returns the current selection, if any.
	Selected() (layerID string, f *Feature, ok bool)
	Routing() *Routing
	SetOverlapWarning(html string)
	// Visible reports whether a layer is currently shown.
	Visible(layerID string) bool
}

// Actions are the callbacks a layer runs on match and selection changes.
type Actions interface {
	// Found and NotFound report road matching results.
	Found(b Bridge, l *Layer, f *Feature)
	NotFound(b Bridge, l *Layer)
	// AssetFound and AssetNotFound report selection changes.
	AssetFound(b Bridge, l *Layer, f *Feature)
	AssetNotFound(b Bridge, l *Layer)
	// AttributeSet runs after a feature's attributes were copied to the form.
	AttributeSet(b Bridge, l *Layer, f *Feature)
}

// Relevancer replaces the built-in category relevance rule.
type Relevancer interface {
	Relevant(l *Layer, c Category) bool
}

// MessageFormatter supplies the "selected" advisory for a feature.
type MessageFormatter interface {
	SelectedMessage(l *Layer, f *Feature) (html string, ok bool)
}

// Rechecker asks the engine to re-run AssetFound/AssetNotFound for the
// layer after every pin move and category change.
type Rechecker interface {
	RecheckSelection() bool
}

// NopActions implements Actions with no-ops. Embed it to override a subset.
type NopActions struct{}

func (NopActions) Found(Bridge, *Layer, *Feature)        {}
func (NopActions) NotFound(Bridge, *Layer)               {}
func (NopActions) AssetFound(Bridge, *Layer, *Feature)   {}
func (NopActions) AssetNotFound(Bridge, *Layer)          {}
func (NopActions) AttributeSet(Bridge, *Layer, *Feature) {}

// SingleBodyField holds the body a road match pins the report to.
const SingleBodyField = "single_body_only"

// DefaultRoadActions route a report to the road layer's body while the pin
// is on one of its roads.
type DefaultRoadActions struct{ NopActions }

func (DefaultRoadActions) Found(b Bridge, l *Layer, _ *Feature) {
	b.SetField(SingleBodyField, l.cfg.Body)
}

func (DefaultRoadActions) NotFound(b Bridge, _ *Layer) {
	b.SetField(SingleBodyField, "")
}

var (
	_ Actions = NopActions{}
	_ Actions = DefaultRoadActions{}
)
