package asset

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingFetcher struct {
	calls    atomic.Int32
	mu       sync.Mutex
	features []*Feature
	err      error
	bounds   []orb.Bound
}

func (f *countingFetcher) Fetch(ctx context.Context, req FetchRequest) ([]*Feature, error) {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bounds = append(f.bounds, req.Bound)
	return f.features, f.err
}

// gatedFetcher holds each request until the test releases it, keyed by the
// request's minimum x.
type gatedFetcher struct {
	gates map[float64]chan []*Feature
}

func (g *gatedFetcher) Fetch(ctx context.Context, req FetchRequest) ([]*Feature, error) {
	select {
	case fs := <-g.gates[req.Bound.Min[0]]:
		return fs, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func featureCount(e *Engine, id string) int {
	return stateOf(e.Snapshot(), id).Features
}

func TestFetchSkipsCoveredExtent(t *testing.T) {
	f := &countingFetcher{features: []*Feature{point("unitid", "1", 50, 50)}}
	reg := newRegistry(t, streetlights())
	e, _ := newEngine(t, reg, f)
	e.CategoryChanged(Category{Name: "Streetlight fault"})

	require.NoError(t, e.ViewportChanged(orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{100, 100}}, 0))
	e.Wait()
	assert.EqualValues(t, 1, f.calls.Load())
	assert.Equal(t, 1, featureCount(e, "streetlights"))

	require.NoError(t, e.ViewportChanged(orb.Bound{Min: orb.Point{10, 10}, Max: orb.Point{90, 90}}, 0))
	e.Wait()
	assert.EqualValues(t, 1, f.calls.Load(), "zoomed-in viewport is already covered")

	require.NoError(t, e.ViewportChanged(orb.Bound{Min: orb.Point{50, 50}, Max: orb.Point{150, 150}}, 0))
	e.Wait()
	assert.EqualValues(t, 2, f.calls.Load())
}

func TestFetchOnlyForVisibleInRangeLayers(t *testing.T) {
	f := &countingFetcher{}
	cfg := streetlights()
	cfg["max_resolution"] = 2.0
	reg := newRegistry(t, cfg)
	e, _ := newEngine(t, reg, f)

	view := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{100, 100}}
	require.NoError(t, e.ViewportChanged(view, 1))
	e.Wait()
	assert.EqualValues(t, 0, f.calls.Load(), "hidden layer")

	require.NoError(t, e.ViewportChanged(view, 4))
	e.CategoryChanged(Category{Name: "Streetlight fault"})
	e.Wait()
	assert.EqualValues(t, 0, f.calls.Load(), "out of range")
	assert.Equal(t, 2.0, e.Snapshot().ZoomTo)

	require.NoError(t, e.ViewportChanged(view, 1))
	e.Wait()
	assert.EqualValues(t, 1, f.calls.Load())
	assert.Zero(t, e.Snapshot().ZoomTo)
}

func TestFetchPadsViewportByRatio(t *testing.T) {
	f := &countingFetcher{}
	cfg := streetlights()
	cfg["retrieval"] = map[string]any{"srs_name": "planar", "ratio": 2}
	reg := newRegistry(t, cfg)
	e, _ := newEngine(t, reg, f)
	e.CategoryChanged(Category{Name: "Streetlight fault"})

	require.NoError(t, e.ViewportChanged(orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{100, 100}}, 0))
	e.Wait()
	require.Len(t, f.bounds, 1)
	assert.Equal(t, orb.Bound{Min: orb.Point{-50, -50}, Max: orb.Point{150, 150}}, f.bounds[0])
}

func TestFetchFailureKeepsFeaturesAndRetries(t *testing.T) {
	f := &countingFetcher{err: errors.New("boom")}
	reg := newRegistry(t, streetlights())
	e, _ := newEngine(t, reg, f)
	require.NoError(t, e.LoadFeatures("streetlights", []*Feature{point("unitid", "1", 50, 50)}))
	e.CategoryChanged(Category{Name: "Streetlight fault"})

	view := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{100, 100}}
	require.NoError(t, e.ViewportChanged(view, 0))
	e.Wait()
	assert.Equal(t, 1, featureCount(e, "streetlights"))

	require.NoError(t, e.ViewportChanged(view, 0))
	e.Wait()
	assert.EqualValues(t, 2, f.calls.Load(), "failed extent is not remembered")
}

func TestStaleFetchIsDiscarded(t *testing.T) {
	g := &gatedFetcher{gates: map[float64]chan []*Feature{
		0:    make(chan []*Feature, 1),
		1000: make(chan []*Feature, 1),
	}}
	reg := newRegistry(t, streetlights())
	e, _ := newEngine(t, reg, g)
	e.CategoryChanged(Category{Name: "Streetlight fault"})

	require.NoError(t, e.ViewportChanged(orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{100, 100}}, 0))
	require.NoError(t, e.ViewportChanged(orb.Bound{Min: orb.Point{1000, 1000}, Max: orb.Point{1100, 1100}}, 0))

	g.gates[1000] <- []*Feature{
		point("unitid", "a", 1010, 1010),
		point("unitid", "b", 1020, 1020),
	}
	assert.Eventually(t, func() bool { return featureCount(e, "streetlights") == 2 }, time.Second, 5*time.Millisecond)

	g.gates[0] <- []*Feature{
		point("unitid", "c", 10, 10),
		point("unitid", "d", 20, 20),
		point("unitid", "e", 30, 30),
	}
	e.Wait()
	assert.Equal(t, 2, featureCount(e, "streetlights"), "older response arrived last and was dropped")
}

func TestFetchAppliesAttributeFilter(t *testing.T) {
	f := &countingFetcher{features: []*Feature{
		{Geometry: orb.Point{1, 1}, Attributes: map[string]any{"unitid": "1", "type": "lamp"}},
		{Geometry: orb.Point{2, 2}, Attributes: map[string]any{"unitid": "2", "type": "sign"}},
		{Geometry: orb.Point{3, 3}, Attributes: map[string]any{"unitid": "3", "type": "bollard"}},
	}}
	cfg := streetlights()
	cfg["filter_key"] = "type"
	cfg["filter_value"] = []any{"lamp", "bollard"}
	reg := newRegistry(t, cfg)
	e, _ := newEngine(t, reg, f)
	e.CategoryChanged(Category{Name: "Streetlight fault"})

	require.NoError(t, e.ViewportChanged(orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{10, 10}}, 0))
	e.Wait()
	assert.Equal(t, 2, featureCount(e, "streetlights"))
}

func TestFetchedDataTriggersSnap(t *testing.T) {
	f := &countingFetcher{features: []*Feature{point("unitid", "5", 52, 50)}}
	reg := newRegistry(t, streetlights())
	e, form := newEngine(t, reg, f)
	e.PinMoved(orb.Point{50, 50})
	e.CategoryChanged(Category{Name: "Streetlight fault"})

	require.NoError(t, e.ViewportChanged(orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{100, 100}}, 0))
	e.Wait()
	_, id, ok := e.Selected()
	require.True(t, ok)
	assert.Equal(t, "5", id)
	assert.Equal(t, "5", form.Get("column_id"))
}

func TestNoFetchAfterClose(t *testing.T) {
	f := &countingFetcher{features: []*Feature{point("unitid", "1", 50, 50)}}
	reg := newRegistry(t, streetlights())
	e, _ := newEngine(t, reg, f)
	e.CategoryChanged(Category{Name: "Streetlight fault"})
	e.Close()

	require.NoError(t, e.ViewportChanged(orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{100, 100}}, 0))
	e.Wait()
	assert.Zero(t, f.calls.Load())
}
