package asset

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-assets/internal/geo"
)

// FetchRequest asks a data source for a layer's features in a bounding box.
type FetchRequest struct {
	Layer *Layer
	// Bound is in the layer's native CRS (retrieval.srs_name).
	Bound      orb.Bound
	Resolution float64
}

// Fetcher retrieves features for a layer. Features come back in the
// layer's native CRS.
type Fetcher interface {
	Fetch(ctx context.Context, req FetchRequest) ([]*Feature, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, req FetchRequest) ([]*Feature, error)

func (f FetcherFunc) Fetch(ctx context.Context, req FetchRequest) ([]*Feature, error) {
	return f(ctx, req)
}

// maybeFetch starts a fetch unless the padded viewport is already covered
// by the last fetched extent or by the request in flight. Caller holds e.mu.
func (e *Engine) maybeFetch(ls *layerState) {
	if e.fetcher == nil || e.ctx.Err() != nil || e.viewport.IsZero() || !ls.visible || !ls.inRange {
		return
	}
	rt := ls.layer.cfg.Retrieval
	need := geo.Grow(e.viewport, rt.Ratio)
	if geo.Covers(ls.fetched, need) || geo.Covers(ls.pending, need) {
		return
	}
	native, err := geo.TransformBound(need, e.geo.Display(), rt.SRSName)
	if err != nil {
		e.log.Warn("fetch extent", slog.String("layer", ls.layer.ID()), slog.String("error", err.Error()))
		return
	}

	ls.gen++
	gen := ls.gen
	ls.pending = need
	req := FetchRequest{Layer: ls.layer, Bound: native, Resolution: e.resolution}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		features, err := e.fetcher.Fetch(e.ctx, req)

		e.mu.Lock()
		defer e.mu.Unlock()
		e.completeFetch(ls, gen, need, features, err)
	}()
}

// completeFetch applies a fetch result unless a newer request superseded it.
func (e *Engine) completeFetch(ls *layerState, gen uint64, extent orb.Bound, features []*Feature, err error) {
	id := ls.layer.ID()
	if gen != ls.gen {
		e.log.Debug("discarding stale fetch", slog.String("layer", id), slog.Uint64("gen", gen), slog.Uint64("latest", ls.gen))
		return
	}
	ls.pending = orb.Bound{}
	if err != nil {
		// features stay as they were; the next viewport change retries
		e.log.Warn("fetch failed", slog.String("layer", id), slog.String("error", err.Error()))
		return
	}
	ls.fetched = extent
	e.replaceFeatures(ls, features)
}

// LoadFeatures replaces a layer's features directly, superseding any fetch
// in flight. Geometries are in the layer's native CRS.
func (e *Engine) LoadFeatures(layerID string, features []*Feature) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	ls, ok := e.byID[layerID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownLayer, layerID)
	}
	ls.gen++
	ls.pending = orb.Bound{}
	e.replaceFeatures(ls, features)
	return nil
}

// replaceFeatures reprojects, filters and swaps in a new feature set.
func (e *Engine) replaceFeatures(ls *layerState, features []*Feature) {
	l := ls.layer
	srs := l.cfg.Retrieval.SRSName
	out := make([]*Feature, 0, len(features))
	for _, f := range features {
		g, err := e.geo.ToDisplay(f.Geometry, srs)
		if err != nil || g == nil {
			continue
		}
		nf := &Feature{ID: f.ID, Geometry: g, Attributes: f.Attributes}
		if nf.Attributes == nil {
			nf.Attributes = map[string]any{}
		}
		if nf.ID == "" && l.cfg.AssetIDField != "" {
			nf.ID, _ = nf.Attr(l.cfg.AssetIDField)
		}
		if !l.accepts(nf) {
			continue
		}
		out = append(out, nf)
	}
	ls.features = out
	e.log.Debug("features loaded", slog.String("layer", l.ID()), slog.Int("count", len(out)))
	e.dataReloaded(ls)
}
