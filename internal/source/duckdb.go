package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-assets/internal/asset"
	"github.com/joeblew999/plat-assets/internal/db"
)

// errNoDB is returned for duckdb layers when no database is configured.
var errNoDB = errors.New("duckdb layers need a database")

// fetchTable reads features from a DuckDB table. retrieval.table names the
// table and retrieval.geometry_name its geometry column.
func (s *Source) fetchTable(ctx context.Context, l *asset.Layer, b orb.Bound) ([]*asset.Feature, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	cfg := l.Config()
	col := cfg.Retrieval.GeometryName
	if col == "" {
		col = "geom"
	}
	rows, spatial, err := db.Within(ctx, s.db, cfg.Retrieval.Table, col, b)
	if err != nil {
		return nil, err
	}
	out := make([]*asset.Feature, 0, len(rows))
	for _, r := range rows {
		if r.GeoJSON == "" {
			continue
		}
		g, err := geojson.UnmarshalGeometry([]byte(r.GeoJSON))
		if err != nil {
			return nil, fmt.Errorf("%s: geometry: %w", cfg.Retrieval.Table, err)
		}
		geom := g.Geometry()
		if !spatial && !geom.Bound().Intersects(b) {
			continue
		}
		out = append(out, asset.NewFeature(geom, r.Attributes, cfg.AssetIDField))
	}
	return out, nil
}
