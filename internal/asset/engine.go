// Package asset is the asset-layer relevance and selection engine.
//
// An Engine owns the runtime state of every registered layer for one report:
// which layers are visible for the current category and bodies, the features
// each layer holds for the current viewport, the single selected feature,
// road matches, routing overrides and the advisory messages shown next to the
// category control. The surrounding page drives it with two notifications,
// CategoryChanged and PinMoved, plus viewport changes and clicks.
//
// Every exported method takes the engine lock and runs to completion, so a
// category change is fully applied before any later click is looked at.
// Fetches run in their own goroutines and re-enter through the same lock;
// a completion that is not the layer's latest request is dropped.
package asset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-assets/internal/geo"
	"github.com/joeblew999/plat-assets/internal/templates"
)

var (
	ErrUnknownLayer   = errors.New("unknown layer")
	ErrNotInteractive = errors.New("layer is not interactive")
	ErrUnknownFeature = errors.New("unknown feature")
	ErrFaultReported  = errors.New("fault already reported")
)

// Options configures a new Engine. Zero fields get defaults.
type Options struct {
	Geo      *geo.Provider
	Form     Form
	Fetcher  Fetcher
	Bus      *Bus
	Renderer Renderer
	Logger   *slog.Logger
}

type layerState struct {
	layer    *Layer
	relevant bool // category relevance and jurisdiction
	visible  bool
	inRange  bool
	features []*Feature
	matched  *Feature // road match at the pin
	fetched  orb.Bound
	pending  orb.Bound
	gen      uint64
	message  Message
}

type selection struct {
	ls      *layerState
	feature *Feature
}

// Engine is the per-report state machine.
type Engine struct {
	mu      sync.Mutex
	geo     *geo.Provider
	form    Form
	fetcher Fetcher
	bus     *Bus
	render  Renderer
	log     *slog.Logger

	layers []*layerState
	byID   map[string]*layerState

	category Category
	bodies   []string
	pin      orb.Point // display CRS
	pinSet   bool
	sel      *selection
	routing  Routing

	overlap     string
	overlapSnap bool

	viewport   orb.Bound // display CRS
	resolution float64
	zoomTo     float64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEngine creates an engine over every layer in reg, evaluated for an
// empty category and unknown bodies.
func NewEngine(reg *Registry, opts Options) (*Engine, error) {
	if opts.Geo == nil {
		p, err := geo.New(geo.Mercator)
		if err != nil {
			return nil, err
		}
		opts.Geo = p
	}
	if opts.Form == nil {
		opts.Form = NewMemoryForm()
	}
	if opts.Bus == nil {
		opts.Bus = NewBus()
	}
	if opts.Renderer == nil {
		opts.Renderer = templates.Default()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		geo:     opts.Geo,
		form:    opts.Form,
		fetcher: opts.Fetcher,
		bus:     opts.Bus,
		render:  opts.Renderer,
		log:     opts.Logger,
		byID:    make(map[string]*layerState),
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, l := range reg.Layers() {
		ls := &layerState{layer: l, inRange: true, message: Message{Slot: SlotFor(l.ID())}}
		e.layers = append(e.layers, ls)
		e.byID[l.ID()] = ls
	}
	e.mu.Lock()
	e.reevaluate()
	e.refreshMessages()
	e.mu.Unlock()
	return e, nil
}

// Bus returns the engine's event bus.
func (e *Engine) Bus() *Bus { return e.bus }

// Form returns the form the engine writes to.
func (e *Engine) Form() Form { return e.form }

// Close cancels in-flight fetches and waits for them to finish. No fetch
// starts once Close has returned from cancelling under the lock.
func (e *Engine) Close() {
	e.mu.Lock()
	e.cancel()
	e.mu.Unlock()
	e.wg.Wait()
}

// Done is closed once the engine has been closed.
func (e *Engine) Done() <-chan struct{} {
	return e.ctx.Done()
}

// Wait blocks until no fetch is in flight.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// CategoryChanged re-evaluates relevance for every layer, re-applies the
// selection's attribute mapping and re-runs road matching.
func (e *Engine) CategoryChanged(c Category) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.category = c
	e.form.Set(CategoryField, c.Name)
	e.bus.Publish(CategoryChanged{Category: c})
	e.update()
}

// SetBodies sets the bodies servicing the pin location. nil means unknown.
func (e *Engine) SetBodies(bodies []string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if bodies != nil {
		bodies = slices.Clone(bodies)
	}
	e.bodies = bodies
	e.publishRouting()
	e.update()
}

// update is the shared tail of category and body changes.
func (e *Engine) update() {
	e.reevaluate()
	e.rematch()
	e.trackPin()
	e.recheck()
	e.autoSnap()
	e.refreshMessages()
}

// reevaluate recomputes relevance and visibility, hiding layers that lost
// relevance and starting fetches for layers that gained it.
func (e *Engine) reevaluate() {
	for _, ls := range e.layers {
		l := ls.layer
		was := ls.visible
		ls.relevant = Relevant(l, e.category) && InJurisdiction(l, e.bodies)
		ls.visible = Visible(l, e.category, e.bodies)
		switch {
		case was && !ls.visible:
			e.hidden(ls)
		case !was && ls.visible:
			e.becameVisible(ls)
		}
	}
	e.updateZoomHint()
}

// hidden drops what a layer contributed while it was shown: its selection
// and, for road layers, the match and whatever routing it implied.
func (e *Engine) hidden(ls *layerState) {
	if e.sel != nil && e.sel.ls == ls {
		e.unselect()
	}
	if ls.layer.variant == NearestRoad {
		e.dropRoad(ls)
	}
}

func (e *Engine) becameVisible(ls *layerState) {
	if ls.inRange {
		e.maybeFetch(ls)
	}
}

// updateZoomHint records the resolution the map should zoom to so that a
// visible, out-of-range layer comes into range.
func (e *Engine) updateZoomHint() {
	e.zoomTo = 0
	for _, ls := range e.layers {
		if ls.visible && ls.relevant && !ls.inRange && ls.layer.cfg.MaxResolution > 0 {
			if e.zoomTo == 0 || ls.layer.cfg.MaxResolution < e.zoomTo {
				e.zoomTo = ls.layer.cfg.MaxResolution
			}
		}
	}
}

// PinMoved moves the report pin to lonlat.
func (e *Engine) PinMoved(lonlat orb.Point) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pt := e.geo.FromLonLat(lonlat)
	e.setPin(pt)

	// moving the pin off a point asset drops it
	if e.sel != nil && e.sel.ls.layer.variant == PointAsset {
		if e.geo.Distance(geo.Centroid(e.sel.feature.Geometry), pt) > matchThreshold {
			e.unselect()
		}
	}
	e.rematch()
	e.trackPin()
	e.recheck()
	e.autoSnap()
	e.refreshMessages()
}

func (e *Engine) setPin(pt orb.Point) {
	e.pin = pt
	e.pinSet = true
	ll := e.geo.LonLat(pt)
	e.form.Set(LatitudeField, Stringify(ll.Lat()))
	e.form.Set(LongitudeField, Stringify(ll.Lon()))
	e.bus.Publish(PinMoved{LonLat: ll})
}

// ViewportChanged records the visible extent (lon/lat) and resolution,
// updates range state and fetches for layers that need new data.
func (e *Engine) ViewportChanged(bound orb.Bound, resolution float64) error {
	vb, err := geo.TransformBound(bound, geo.WGS84, e.geo.Display())
	if err != nil {
		return fmt.Errorf("viewport: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.viewport = vb
	e.resolution = resolution
	for _, ls := range e.layers {
		ls.inRange = ls.layer.InRange(resolution)
		if ls.visible && ls.inRange {
			e.maybeFetch(ls)
		}
	}
	e.updateZoomHint()
	e.autoSnap()
	e.refreshMessages()
	return nil
}

// Reset is the back-navigation hook: it clears the category, hides every
// layer that is not always visible and shows the pin again.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.category = Category{}
	e.form.Set(CategoryField, "")
	for _, ls := range e.layers {
		if ls.layer.cfg.AlwaysVisible {
			continue
		}
		was := ls.visible
		ls.visible = false
		ls.relevant = false
		if was {
			e.hidden(ls)
		}
	}
	e.rematch()
	e.setOverlap("", false)
	e.updateZoomHint()
	e.refreshMessages()
}

// refreshMessages recomputes every advisory and publishes those that
// changed.
func (e *Engine) refreshMessages() {
	for _, ls := range e.layers {
		var sel *Feature
		if e.sel != nil && e.sel.ls == ls {
			sel = e.sel.feature
		}
		m := messageFor(e.render, ls.layer, ls.relevant, ls.inRange, sel)
		if m == ls.message {
			continue
		}
		ls.message = m
		e.bus.Publish(MessageChanged{Slot: m.Slot, LayerID: ls.layer.ID(), State: m.State, HTML: m.HTML})
	}
}

func (e *Engine) setOverlap(html string, fromSnap bool) {
	if html == e.overlap {
		e.overlapSnap = fromSnap && html != ""
		return
	}
	e.overlap = html
	e.overlapSnap = fromSnap && html != ""
	state := Hidden
	if html != "" {
		state = PickPrompt
	}
	e.bus.Publish(MessageChanged{Slot: OverlapSlot, State: state, HTML: html})
}

func (e *Engine) renderOr(name string, data any, fallback string) string {
	html, err := e.render.Render(name, data)
	if err != nil {
		e.log.Warn("render message", slog.String("template", name), slog.String("error", err.Error()))
		return fallback
	}
	return html
}

// run calls fn with a bridge and publishes a RoutingChanged event if fn
// changed the routing overrides.
func (e *Engine) run(fn func(b Bridge)) {
	before := e.routing.clone()
	fn(bridge{e})
	if !e.routing.equal(before) {
		e.publishRouting()
	}
}

func (e *Engine) publishRouting() {
	e.bus.Publish(RoutingChanged{
		OnlySend:  e.routing.OnlySendTo(),
		DoNotSend: e.routing.Excluded(),
		Effective: e.routing.Effective(e.bodies),
	})
}

// bridge is the Bridge handed to actions. It is only used while the engine
// lock is held.
type bridge struct{ e *Engine }

func (b bridge) Category() Category          { return b.e.category }
func (b bridge) Bodies() []string            { return slices.Clone(b.e.bodies) }
func (b bridge) Field(name string) string    { return b.e.form.Get(name) }
func (b bridge) SetField(name, value string) { b.e.form.Set(name, value) }
func (b bridge) Routing() *Routing           { return &b.e.routing }
func (b bridge) SetOverlapWarning(html string) {
	b.e.setOverlap(html, false)
}

func (b bridge) Visible(layerID string) bool {
	ls, ok := b.e.byID[layerID]
	return ok && ls.visible
}

func (b bridge) Selected() (string, *Feature, bool) {
	if b.e.sel == nil {
		return "", nil, false
	}
	return b.e.sel.ls.layer.ID(), b.e.sel.feature.Clone(), true
}

// State is a point-in-time view of an engine.
type State struct {
	Category   Category        `json:"category"`
	Bodies     []string        `json:"bodies"`
	Pin        *orb.Point      `json:"pin,omitempty" doc:"Pin position as [lon, lat]"`
	PinVisible bool            `json:"pin_visible"`
	Selection  *SelectionState `json:"selection,omitempty"`
	Layers     []LayerState    `json:"layers"`
	Routing    RoutingChanged  `json:"routing"`
	Overlap    string          `json:"overlap,omitempty"`
	ZoomTo     float64         `json:"zoom_to,omitempty" doc:"Resolution to zoom to so a relevant layer comes into range"`
}

// SelectionState describes the selected feature.
type SelectionState struct {
	LayerID    string         `json:"layer_id"`
	FeatureID  string         `json:"feature_id"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// LayerState describes one layer's runtime state.
type LayerState struct {
	ID       string  `json:"id"`
	Variant  string  `json:"variant"`
	ZIndex   int     `json:"z_index"`
	Relevant bool    `json:"relevant"`
	Visible  bool    `json:"visible"`
	InRange  bool    `json:"in_range"`
	Features int     `json:"features"`
	Matched  string  `json:"matched,omitempty" doc:"Road feature matched at the pin"`
	Message  Message `json:"message"`
}

// Snapshot returns the current state.
func (e *Engine) Snapshot() State {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := State{
		Category:   e.category,
		Bodies:     slices.Clone(e.bodies),
		PinVisible: e.pinVisible(),
		Routing: RoutingChanged{
			OnlySend:  e.routing.OnlySendTo(),
			DoNotSend: e.routing.Excluded(),
			Effective: e.routing.Effective(e.bodies),
		},
		Overlap: e.overlap,
		ZoomTo:  e.zoomTo,
	}
	if e.pinSet {
		ll := e.geo.LonLat(e.pin)
		s.Pin = &ll
	}
	if e.sel != nil {
		s.Selection = &SelectionState{
			LayerID:    e.sel.ls.layer.ID(),
			FeatureID:  e.sel.feature.ID,
			Attributes: maps.Clone(e.sel.feature.Attributes),
		}
	}
	for _, ls := range e.layers {
		st := LayerState{
			ID:       ls.layer.ID(),
			Variant:  ls.layer.variant.String(),
			ZIndex:   ls.layer.zIndex,
			Relevant: ls.relevant,
			Visible:  ls.visible,
			InRange:  ls.inRange,
			Features: len(ls.features),
			Message:  ls.message,
		}
		if ls.matched != nil {
			st.Matched = ls.matched.ID
		}
		s.Layers = append(s.Layers, st)
	}
	return s
}

// Selected returns the selected layer and feature ids.
func (e *Engine) Selected() (layerID, featureID string, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sel == nil {
		return "", "", false
	}
	return e.sel.ls.layer.ID(), e.sel.feature.ID, true
}

// Visible reports whether a layer is currently visible.
func (e *Engine) Visible(layerID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	ls, ok := e.byID[layerID]
	return ok && ls.visible
}

// Message returns a layer's current advisory.
func (e *Engine) Message(layerID string) (Message, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ls, ok := e.byID[layerID]
	if !ok {
		return Message{}, false
	}
	return ls.message, true
}

// Routing returns a copy of the routing overrides.
func (e *Engine) Routing() Routing {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.routing.clone()
}

func (e *Engine) pinVisible() bool {
	return e.sel == nil || e.sel.ls.layer.variant == MovingAsset
}
