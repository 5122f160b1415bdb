package asset

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreetlightSelectedBySnap(t *testing.T) {
	reg := newRegistry(t, streetlights())
	e, form := newEngine(t, reg, nil)

	require.NoError(t, e.LoadFeatures("streetlights", []*Feature{
		point("unitid", "7", 100, 100),
		point("unitid", "8", 400, 400),
	}))
	e.CategoryChanged(Category{Name: "Streetlight fault"})
	e.PinMoved(orb.Point{130, 140})

	layer, id, ok := e.Selected()
	require.True(t, ok)
	assert.Equal(t, "streetlights", layer)
	assert.Equal(t, "7", id)
	assert.Equal(t, "7", form.Get("column_id"))
	assert.Equal(t, "100", form.Get(LatitudeField), "pin snaps to the asset")

	msg, ok := e.Message("streetlights")
	require.True(t, ok)
	assert.Equal(t, SelectedMessage, msg.State)
	assert.Contains(t, msg.HTML, "You have selected street light")
	assert.False(t, e.Snapshot().PinVisible)
}

func TestPotholesNeverShowStreetlights(t *testing.T) {
	reg := newRegistry(t, streetlights())
	e, form := newEngine(t, reg, nil)

	require.NoError(t, e.LoadFeatures("streetlights", []*Feature{point("unitid", "7", 100, 100)}))
	e.CategoryChanged(Category{Name: "Potholes"})

	for _, pin := range []orb.Point{{100, 100}, {110, 100}, {500, 500}} {
		e.PinMoved(pin)
		assert.False(t, e.Visible("streetlights"))
		_, _, ok := e.Selected()
		assert.False(t, ok)
	}
	assert.ErrorIs(t, e.Click("streetlights", "7"), ErrNotInteractive)
	assert.Empty(t, form.Get("column_id"))

	msg, _ := e.Message("streetlights")
	assert.Equal(t, Hidden, msg.State)
}

func TestVisibilityFollowsRelevance(t *testing.T) {
	reg := newRegistry(t, streetlights(), drains(), roads())
	e, _ := newEngine(t, reg, nil)

	categories := []Category{
		{Name: "Streetlight fault"},
		{Name: "Blocked drain"},
		{Name: "Potholes"},
		{},
		{Name: "Graffiti", Group: "Street cleaning"},
	}
	bodies := [][]string{nil, {"Council"}, {"Highways"}}
	for _, b := range bodies {
		e.SetBodies(b)
		for _, c := range categories {
			e.CategoryChanged(c)
			for _, l := range reg.Layers() {
				want := Relevant(l, c) && InJurisdiction(l, b)
				assert.Equal(t, want, e.Visible(l.ID()), "layer %s, category %q, bodies %v", l.ID(), c.Name, b)
			}
		}
	}
}

func TestClickAcrossLayers(t *testing.T) {
	reg := newRegistry(t, streetlights(), drains())
	e, form := newEngine(t, reg, nil)
	sub := e.Bus().Subscribe()
	defer e.Bus().Unsubscribe(sub)

	require.NoError(t, e.LoadFeatures("streetlights", []*Feature{point("unitid", "7", 100, 100)}))
	require.NoError(t, e.LoadFeatures("drains", []*Feature{point("drain_id", "D1", 1000, 1000)}))
	e.CategoryChanged(Category{Name: "Streetlight fault"})
	drain(sub)

	require.NoError(t, e.Click("streetlights", "7"))
	assert.Equal(t, "7", form.Get("column_id"))
	require.NoError(t, e.Click("drains", "D1"))

	layer, id, ok := e.Selected()
	require.True(t, ok)
	assert.Equal(t, "drains", layer)
	assert.Equal(t, "D1", id)
	assert.Empty(t, form.Get("column_id"), "previous layer's fields are cleared")
	assert.Equal(t, "D1", form.Get("drain_ref"))

	var unselected []string
	for _, ev := range drain(sub) {
		if u, ok := ev.(AssetUnselected); ok {
			unselected = append(unselected, u.LayerID)
		}
	}
	assert.Equal(t, []string{"streetlights"}, unselected)

	msg, _ := e.Message("streetlights")
	assert.Equal(t, PickPrompt, msg.State)
}

func TestDeselectIgnoresStaleLayer(t *testing.T) {
	reg := newRegistry(t, streetlights(), drains())
	e, _ := newEngine(t, reg, nil)
	require.NoError(t, e.LoadFeatures("streetlights", []*Feature{point("unitid", "7", 100, 100)}))
	require.NoError(t, e.LoadFeatures("drains", []*Feature{point("drain_id", "D1", 1000, 1000)}))
	e.CategoryChanged(Category{Name: "Streetlight fault"})

	require.NoError(t, e.Click("streetlights", "7"))
	require.NoError(t, e.Click("drains", "D1"))
	e.Deselect("streetlights")

	layer, _, ok := e.Selected()
	require.True(t, ok)
	assert.Equal(t, "drains", layer)

	e.Deselect("drains")
	_, _, ok = e.Selected()
	assert.False(t, ok)
	assert.True(t, e.Snapshot().PinVisible)
}

func TestCategoryChangedIsIdempotent(t *testing.T) {
	reg := newRegistry(t, streetlights(), drains(), roads())
	e, _ := newEngine(t, reg, nil)
	require.NoError(t, e.LoadFeatures("streetlights", []*Feature{point("unitid", "7", 100, 100)}))
	e.PinMoved(orb.Point{120, 100})

	c := Category{Name: "Streetlight fault"}
	e.CategoryChanged(c)
	once := e.Snapshot()
	e.CategoryChanged(c)
	twice := e.Snapshot()

	assert.Equal(t, once, twice)
	require.NotNil(t, twice.Selection)
	assert.Equal(t, "7", twice.Selection.FeatureID)
}

func TestIrrelevantCategoryClearsSelection(t *testing.T) {
	reg := newRegistry(t, streetlights())
	e, form := newEngine(t, reg, nil)
	require.NoError(t, e.LoadFeatures("streetlights", []*Feature{point("unitid", "7", 100, 100)}))
	e.CategoryChanged(Category{Name: "Streetlight fault"})
	require.NoError(t, e.Click("streetlights", "7"))

	e.CategoryChanged(Category{Name: "Potholes"})

	_, _, ok := e.Selected()
	assert.False(t, ok)
	assert.Empty(t, form.Get("column_id"))
	assert.True(t, e.Snapshot().PinVisible)
}

func TestSelectionBeforeCategoryFillsFields(t *testing.T) {
	cfg := streetlights()
	cfg["always_visible"] = true
	reg := newRegistry(t, cfg)
	e, form := newEngine(t, reg, nil)
	require.NoError(t, e.LoadFeatures("streetlights", []*Feature{point("unitid", "7", 100, 100)}))

	require.NoError(t, e.Click("streetlights", "7"))
	form.Set("column_id", "")
	e.CategoryChanged(Category{Name: "Streetlight fault"})

	assert.Equal(t, "7", form.Get("column_id"))
}

func TestReloadPreservesMatchingSelection(t *testing.T) {
	reg := newRegistry(t, streetlights())
	e, _ := newEngine(t, reg, nil)
	require.NoError(t, e.LoadFeatures("streetlights", []*Feature{point("unitid", "42", 10, 10)}))
	e.CategoryChanged(Category{Name: "Streetlight fault"})
	require.NoError(t, e.Click("streetlights", "42"))

	require.NoError(t, e.LoadFeatures("streetlights", []*Feature{
		point("unitid", "41", 12, 10),
		point("unitid", "42", 10.5, 10),
	}))
	_, id, ok := e.Selected()
	require.True(t, ok)
	assert.Equal(t, "42", id)

	// same id, but moved well away
	require.NoError(t, e.LoadFeatures("streetlights", []*Feature{point("unitid", "42", 500, 500)}))
	_, _, ok = e.Selected()
	assert.False(t, ok)
}

func TestSnapRadiusIsInclusive(t *testing.T) {
	tests := []struct {
		name string
		pin  orb.Point
		snap bool
	}{
		{"on the boundary", orb.Point{150, 100}, true},
		{"one unit beyond", orb.Point{151, 100}, false},
		{"diagonal boundary", orb.Point{130, 140}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := newRegistry(t, streetlights())
			e, _ := newEngine(t, reg, nil)
			require.NoError(t, e.LoadFeatures("streetlights", []*Feature{point("unitid", "7", 100, 100)}))
			e.CategoryChanged(Category{Name: "Streetlight fault"})
			e.PinMoved(tt.pin)

			_, _, ok := e.Selected()
			assert.Equal(t, tt.snap, ok)
		})
	}
}

func TestSnapTieBreakIsLowestID(t *testing.T) {
	reg := newRegistry(t, streetlights())
	e, _ := newEngine(t, reg, nil)
	require.NoError(t, e.LoadFeatures("streetlights", []*Feature{
		point("unitid", "10", 120, 100),
		point("unitid", "9", 80, 100),
		point("unitid", "11", 100, 120),
	}))
	e.CategoryChanged(Category{Name: "Streetlight fault"})
	e.PinMoved(orb.Point{100, 100})

	_, id, ok := e.Selected()
	require.True(t, ok)
	assert.Equal(t, "9", id, "numeric comparison, not lexical")
}

func TestOverlapAcrossLayersIsNotResolved(t *testing.T) {
	reg := newRegistry(t, streetlights(), drains())
	e, _ := newEngine(t, reg, nil)
	require.NoError(t, e.LoadFeatures("streetlights", []*Feature{point("unitid", "7", 100, 100)}))
	require.NoError(t, e.LoadFeatures("drains", []*Feature{point("drain_id", "D1", 110, 100)}))
	e.CategoryChanged(Category{Name: "Streetlight fault"})

	e.PinMoved(orb.Point{105, 100})
	_, _, ok := e.Selected()
	assert.False(t, ok)
	assert.Contains(t, e.Snapshot().Overlap, "more than one asset")

	e.PinMoved(orb.Point{1000, 1000})
	assert.Empty(t, e.Snapshot().Overlap)
}

func TestPinMovedOffAssetDeselects(t *testing.T) {
	reg := newRegistry(t, streetlights())
	e, form := newEngine(t, reg, nil)
	require.NoError(t, e.LoadFeatures("streetlights", []*Feature{point("unitid", "7", 100, 100)}))
	e.CategoryChanged(Category{Name: "Streetlight fault"})
	require.NoError(t, e.Click("streetlights", "7"))

	e.PinMoved(orb.Point{100, 100})
	_, _, ok := e.Selected()
	assert.True(t, ok, "pin on the asset keeps it")

	e.PinMoved(orb.Point{900, 900})
	_, _, ok = e.Selected()
	assert.False(t, ok)
	assert.Empty(t, form.Get("column_id"))
}

func TestMovingAssetTracksPin(t *testing.T) {
	cfg := streetlights()
	cfg["tracks_pin"] = true
	reg := newRegistry(t, cfg)
	e, form := newEngine(t, reg, nil)
	require.NoError(t, e.LoadFeatures("streetlights", []*Feature{
		point("unitid", "1", 100, 100),
		point("unitid", "2", 300, 100),
	}))
	e.CategoryChanged(Category{Name: "Streetlight fault"})

	e.PinMoved(orb.Point{110, 100})
	_, id, _ := e.Selected()
	assert.Equal(t, "1", id)
	assert.Equal(t, "110", form.Get(LongitudeField), "pin is not snapped")
	assert.True(t, e.Snapshot().PinVisible)

	e.PinMoved(orb.Point{290, 100})
	_, id, _ = e.Selected()
	assert.Equal(t, "2", id)

	e.PinMoved(orb.Point{200, 500})
	_, _, ok := e.Selected()
	assert.False(t, ok)
}

func TestFaultLayerBlocksSelection(t *testing.T) {
	faults := map[string]any{
		"id":              "faults",
		"name":            "Reported faults",
		"non_interactive": true,
		"asset_category":  "Streetlight fault",
		"asset_id_field":  "unitid",
		"retrieval":       map[string]any{"srs_name": "planar"},
	}
	cfg := streetlights()
	cfg["fault_layer"] = "faults"
	reg := newRegistry(t, faults, cfg)
	e, _ := newEngine(t, reg, nil)
	require.NoError(t, e.LoadFeatures("faults", []*Feature{point("unitid", "7", 100, 100)}))
	require.NoError(t, e.LoadFeatures("streetlights", []*Feature{
		point("unitid", "7", 100, 100),
		point("unitid", "8", 300, 300),
	}))
	e.CategoryChanged(Category{Name: "Streetlight fault"})

	assert.ErrorIs(t, e.Click("streetlights", "7"), ErrFaultReported)
	assert.Contains(t, e.Snapshot().Overlap, "This fault (7)")
	assert.ErrorIs(t, e.Click("faults", "7"), ErrNotInteractive)
	assert.NoError(t, e.Click("streetlights", "8"))
	assert.Empty(t, e.Snapshot().Overlap)
}

func TestFaultLayerMatchesByAssetID(t *testing.T) {
	faults := map[string]any{
		"id":              "faults",
		"name":            "Reported faults",
		"non_interactive": true,
		"asset_category":  "Streetlight fault",
		"asset_id_field":  "report_id",
		"retrieval":       map[string]any{"srs_name": "planar"},
	}
	cfg := streetlights()
	cfg["fault_layer"] = "faults"
	reg := newRegistry(t, faults, cfg)
	e, _ := newEngine(t, reg, nil)
	require.NoError(t, e.LoadFeatures("faults", []*Feature{
		{Geometry: orb.Point{100, 100}, Attributes: map[string]any{"report_id": "R1", "unitid": "7"}},
		{Geometry: orb.Point{300, 300}, Attributes: map[string]any{"report_id": "R2", "unitid": "9"}},
	}))
	require.NoError(t, e.LoadFeatures("streetlights", []*Feature{
		point("unitid", "7", 100, 100),
		point("unitid", "8", 300, 300),
	}))
	e.CategoryChanged(Category{Name: "Streetlight fault"})

	assert.ErrorIs(t, e.Click("streetlights", "7"), ErrFaultReported)
	assert.NoError(t, e.Click("streetlights", "8"), "a fault on another asset at the same spot")
}

func TestClickErrors(t *testing.T) {
	reg := newRegistry(t, streetlights(), roads())
	e, _ := newEngine(t, reg, nil)
	e.CategoryChanged(Category{Name: "Streetlight fault"})

	assert.ErrorIs(t, e.Click("nope", "1"), ErrUnknownLayer)
	assert.ErrorIs(t, e.Click("roads", "1"), ErrNotInteractive)
	assert.ErrorIs(t, e.Click("streetlights", "1"), ErrUnknownFeature)
}

func TestResetHidesLayers(t *testing.T) {
	always := drains()
	always["always_visible"] = true
	reg := newRegistry(t, streetlights(), always)
	e, form := newEngine(t, reg, nil)
	require.NoError(t, e.LoadFeatures("streetlights", []*Feature{point("unitid", "7", 100, 100)}))
	e.CategoryChanged(Category{Name: "Streetlight fault"})
	require.NoError(t, e.Click("streetlights", "7"))

	e.Reset()

	assert.False(t, e.Visible("streetlights"))
	assert.True(t, e.Visible("drains"))
	_, _, ok := e.Selected()
	assert.False(t, ok)
	assert.Empty(t, form.Get(CategoryField))
	assert.True(t, e.Snapshot().PinVisible)
}

func TestEventsArePublished(t *testing.T) {
	reg := newRegistry(t, streetlights())
	e, _ := newEngine(t, reg, nil)
	sub := e.Bus().Subscribe()
	defer e.Bus().Unsubscribe(sub)

	require.NoError(t, e.LoadFeatures("streetlights", []*Feature{point("unitid", "7", 100, 100)}))
	e.CategoryChanged(Category{Name: "Streetlight fault"})
	e.PinMoved(orb.Point{100, 110})

	got := kinds(drain(sub))
	assert.Contains(t, got, "category_changed")
	assert.Contains(t, got, "pin_moved")
	assert.Contains(t, got, "asset_selected")
	assert.Contains(t, got, "message_changed")
}
