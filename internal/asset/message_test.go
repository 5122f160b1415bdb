package asset

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageStates(t *testing.T) {
	cfg := streetlights()
	cfg["max_resolution"] = 2.0
	reg := newRegistry(t, cfg)
	e, _ := newEngine(t, reg, nil)
	require.NoError(t, e.LoadFeatures("streetlights", []*Feature{point("unitid", "7", 100, 100)}))
	view := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{200, 200}}

	msg, _ := e.Message("streetlights")
	assert.Equal(t, Hidden, msg.State)
	assert.Equal(t, "category_meta_message_streetlights", msg.Slot)

	require.NoError(t, e.ViewportChanged(view, 4))
	e.CategoryChanged(Category{Name: "Streetlight fault"})
	msg, _ = e.Message("streetlights")
	assert.Equal(t, ZoomPrompt, msg.State)
	assert.Equal(t, "Zoom in to pick a street light from the map", msg.HTML)

	require.NoError(t, e.ViewportChanged(view, 1))
	msg, _ = e.Message("streetlights")
	assert.Equal(t, PickPrompt, msg.State)
	assert.Equal(t, `You can pick a <b class="asset-spot">street light</b> from the map &raquo;`, msg.HTML)

	require.NoError(t, e.Click("streetlights", "7"))
	msg, _ = e.Message("streetlights")
	assert.Equal(t, SelectedMessage, msg.State)
	assert.Equal(t, "You have selected street light <b>7</b>", msg.HTML)
}

func TestMessageChangesArePublishedOnce(t *testing.T) {
	reg := newRegistry(t, streetlights())
	e, _ := newEngine(t, reg, nil)
	sub := e.Bus().Subscribe()
	defer e.Bus().Unsubscribe(sub)

	c := Category{Name: "Streetlight fault"}
	e.CategoryChanged(c)
	e.CategoryChanged(c)
	e.CategoryChanged(c)

	var n int
	for _, ev := range drain(sub) {
		if m, ok := ev.(MessageChanged); ok && m.LayerID == "streetlights" {
			n++
		}
	}
	assert.Equal(t, 1, n)
}

func TestAssetItemMessageOverride(t *testing.T) {
	cfg := streetlights()
	cfg["asset_item_message"] = "Select the <b>lamp post</b> on the map"
	reg := newRegistry(t, cfg)
	e, _ := newEngine(t, reg, nil)
	e.CategoryChanged(Category{Name: "Streetlight fault"})

	msg, _ := e.Message("streetlights")
	assert.Equal(t, "Select the <b>lamp post</b> on the map", msg.HTML)
}

type customSelected struct{ NopActions }

func (customSelected) SelectedMessage(l *Layer, f *Feature) (string, bool) {
	return "Lamp " + f.ID + " picked", true
}

func TestMessageFormatterPolicy(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterPolicy("custom", func(map[string]any) (Actions, error) { return customSelected{}, nil })
	cfg := streetlights()
	cfg["policy"] = "custom"
	_, err := reg.Add(nil, cfg)
	require.NoError(t, err)

	e, _ := newEngine(t, reg, nil)
	require.NoError(t, e.LoadFeatures("streetlights", []*Feature{point("unitid", "7", 100, 100)}))
	e.CategoryChanged(Category{Name: "Streetlight fault"})
	require.NoError(t, e.Click("streetlights", "7"))

	msg, _ := e.Message("streetlights")
	assert.Equal(t, "Lamp 7 picked", msg.HTML)
}

func TestSlotFor(t *testing.T) {
	assert.Equal(t, "category_meta_message_streetlights2", SlotFor("street-lights_2"))
}
