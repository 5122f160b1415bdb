package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/maptile"

	"github.com/joeblew999/plat-assets/internal/asset"
	"github.com/joeblew999/plat-assets/internal/geo"
	"github.com/joeblew999/plat-assets/internal/pmtiles"
)

const (
	// defaultTileZoom is used when retrieval.tile_zoom is unset.
	defaultTileZoom = 16
	// maxTiles caps one fetch; a wider extent is an over-zoomed map.
	maxTiles = 64
)

type tileFunc func(ctx context.Context, l *asset.Layer, z, x, y uint32) ([]byte, error)

// fetchTiles decodes every tile covering b (native CRS) and merges the
// features, dropping copies of a feature cut by tile edges.
func (s *Source) fetchTiles(ctx context.Context, l *asset.Layer, b orb.Bound, fetch tileFunc) ([]*asset.Feature, error) {
	cfg := l.Config()
	rt := cfg.Retrieval
	ll, err := geo.TransformBound(b, rt.SRSName, geo.WGS84)
	if err != nil {
		return nil, err
	}
	zoom := maptile.Zoom(rt.TileZoom)
	if zoom == 0 {
		zoom = defaultTileZoom
	}
	tiles := pmtiles.TilesInBound(ll, zoom)
	if len(tiles) > maxTiles {
		return nil, fmt.Errorf("%d tiles at zoom %d exceeds %d", len(tiles), zoom, maxTiles)
	}

	seen := make(map[string]bool)
	var out []*asset.Feature
	for _, t := range tiles {
		data, err := fetch(ctx, l, uint32(t.Z), t.X, t.Y)
		if errors.Is(err, errNoData) || errors.Is(err, pmtiles.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		layers, err := decodeTile(data)
		if err != nil {
			return nil, fmt.Errorf("tile %d/%d/%d: %w", t.Z, t.X, t.Y, err)
		}
		layers.ProjectToWGS84(t)
		for _, ml := range layers {
			if rt.TileLayer != "" && ml.Name != rt.TileLayer {
				continue
			}
			for _, f := range fromGeoJSON(ml.Features, cfg.AssetIDField) {
				if f.ID != "" {
					if seen[f.ID] {
						continue
					}
					seen[f.ID] = true
				}
				g, err := geo.Transform(f.Geometry, geo.WGS84, rt.SRSName)
				if err != nil {
					return nil, err
				}
				f.Geometry = g
				out = append(out, f)
			}
		}
	}
	return out, nil
}

func decodeTile(data []byte) (mvt.Layers, error) {
	if len(data) == 0 {
		return nil, nil
	}
	if bytes.HasPrefix(data, []byte{0x1f, 0x8b}) {
		return mvt.UnmarshalGzipped(data)
	}
	return mvt.Unmarshal(data)
}

func (s *Source) archiveTile(_ context.Context, l *asset.Layer, z, x, y uint32) ([]byte, error) {
	rd, err := s.archive(l.Config().Retrieval.URL)
	if err != nil {
		return nil, err
	}
	return rd.Tile(uint8(z), x, y)
}
