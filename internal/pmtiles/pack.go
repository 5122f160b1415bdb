package pmtiles

import (
	"bytes"
	"fmt"
	"io"
	"maps"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/simplify"
)

// maxPackZoom is the deepest zoom Pack generates.
const maxPackZoom = 18

// PackOptions controls archive generation.
type PackOptions struct {
	Layer   string
	MinZoom int
	MaxZoom int
}

// Pack cuts a WGS84 feature collection into gzipped MVT tiles and writes
// them as a single-directory archive to w. Used to build offline asset
// sources.
func Pack(w io.Writer, fc *geojson.FeatureCollection, opts PackOptions) error {
	if opts.Layer == "" {
		return fmt.Errorf("pack: layer name is required")
	}
	minZoom, maxZoom := max(opts.MinZoom, 0), opts.MaxZoom
	if maxZoom < minZoom || maxZoom > maxPackZoom {
		return fmt.Errorf("pack: zoom range %d-%d out of bounds", minZoom, maxZoom)
	}

	tiles := make(map[maptile.Tile][]byte)
	for z := minZoom; z <= maxZoom; z++ {
		byTile := make(map[maptile.Tile][]*geojson.Feature)
		for _, f := range fc.Features {
			if f.Geometry == nil {
				continue
			}
			for _, t := range TilesInBound(f.Geometry.Bound(), maptile.Zoom(z)) {
				byTile[t] = append(byTile[t], f)
			}
		}
		for t, features := range byTile {
			data, err := encodeTile(t, features, opts.Layer)
			if err != nil {
				return fmt.Errorf("pack: tile %d/%d/%d: %w", t.Z, t.X, t.Y, err)
			}
			if data != nil {
				tiles[t] = data
			}
		}
	}
	if len(tiles) == 0 {
		return fmt.Errorf("pack: no tiles to write")
	}
	return write(w, tiles, opts.Layer, uint8(minZoom), uint8(maxZoom), fc.BBox)
}

// TilesInBound returns every tile at zoom intersecting a WGS84 bound.
func TilesInBound(b orb.Bound, zoom maptile.Zoom) []maptile.Tile {
	lo := maptile.At(b.Min, zoom)
	hi := maptile.At(b.Max, zoom)
	minX, maxX := min(lo.X, hi.X), max(lo.X, hi.X)
	minY, maxY := min(lo.Y, hi.Y), max(lo.Y, hi.Y)

	var tiles []maptile.Tile
	for x := minX; x <= maxX; x++ {
		for y := minY; y <= maxY; y++ {
			tiles = append(tiles, maptile.New(x, y, zoom))
		}
	}
	return tiles
}

func encodeTile(t maptile.Tile, features []*geojson.Feature, layerName string) ([]byte, error) {
	tb := t.Bound()
	fc := geojson.NewFeatureCollection()
	for _, f := range features {
		if !intersects(f.Geometry, tb) {
			continue
		}
		// Clip and ProjectToTile work in place
		c := geojson.NewFeature(orb.Clone(f.Geometry))
		c.ID = f.ID
		c.Properties = maps.Clone(f.Properties)
		if c.Properties == nil {
			c.Properties = geojson.Properties{}
		}
		fc.Append(c)
	}
	if len(fc.Features) == 0 {
		return nil, nil
	}

	layer := mvt.NewLayer(layerName, fc)
	if eps := simplifyEpsilon(t.Z); eps > 0 {
		layer.Simplify(simplify.DouglasPeucker(eps))
	}
	layer.Clip(tb)
	layer.ProjectToTile(t)
	layer.RemoveEmpty(0.5, 0.5)
	if len(layer.Features) == 0 {
		return nil, nil
	}
	return mvt.MarshalGzipped(mvt.Layers{layer})
}

// intersects is a cheaper-than-exact test: bounds first, then vertices
// and tile corners for areas.
func intersects(g orb.Geometry, tb orb.Bound) bool {
	if !g.Bound().Intersects(tb) {
		return false
	}
	switch g := g.(type) {
	case orb.Point:
		return tb.Contains(g)
	case orb.MultiPoint:
		for _, p := range g {
			if tb.Contains(p) {
				return true
			}
		}
		return false
	case orb.Polygon:
		for _, r := range g {
			for _, p := range r {
				if tb.Contains(p) {
					return true
				}
			}
		}
		corners := []orb.Point{tb.Min, {tb.Max[0], tb.Min[1]}, tb.Max, {tb.Min[0], tb.Max[1]}, tb.Center()}
		for _, p := range corners {
			if planar.PolygonContains(g, p) {
				return true
			}
		}
		return false
	case orb.MultiPolygon:
		for _, p := range g {
			if intersects(p, tb) {
				return true
			}
		}
		return false
	}
	// lines and collections: trust the bound check
	return true
}

// simplifyEpsilon is the Douglas-Peucker tolerance in degrees per zoom.
// Street furniture is tiny, so the tolerances stay well below asset size.
func simplifyEpsilon(zoom maptile.Zoom) float64 {
	switch {
	case zoom >= 14:
		return 0
	case zoom >= 10:
		return 0.00001
	case zoom >= 6:
		return 0.0001
	default:
		return 0.0005
	}
}

func write(w io.Writer, tiles map[maptile.Tile][]byte, name string, minZoom, maxZoom uint8, bbox geojson.BBox) error {
	type tileEntry struct {
		id   uint64
		data []byte
	}
	sorted := make([]tileEntry, 0, len(tiles))
	var bound orb.Bound
	first := true
	for t, data := range tiles {
		sorted = append(sorted, tileEntry{ZxyToID(uint8(t.Z), t.X, t.Y), data})
		if first {
			bound, first = t.Bound(), false
		} else {
			bound = bound.Union(t.Bound())
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].id < sorted[j].id })
	if bbox.Valid() {
		bound = bbox.Bound()
	}

	var (
		entries []EntryV3
		data    bytes.Buffer
	)
	for _, te := range sorted {
		entries = append(entries, EntryV3{
			TileID:    te.id,
			Offset:    uint64(data.Len()),
			Length:    uint32(len(te.data)),
			RunLength: 1,
		})
		data.Write(te.data)
	}

	metadata, err := SerializeMetadata(map[string]any{
		"name":        name,
		"format":      "pbf",
		"compression": "gzip",
		"minzoom":     minZoom,
		"maxzoom":     maxZoom,
	}, Gzip)
	if err != nil {
		return fmt.Errorf("serializing metadata: %w", err)
	}
	root, err := SerializeEntries(entries, Gzip)
	if err != nil {
		return fmt.Errorf("serializing directory: %w", err)
	}

	rootOffset := uint64(HeaderV3LenBytes)
	metadataOffset := rootOffset + uint64(len(root))
	dataOffset := metadataOffset + uint64(len(metadata))
	center := bound.Center()
	header := HeaderV3{
		SpecVersion:         3,
		RootOffset:          rootOffset,
		RootLength:          uint64(len(root)),
		MetadataOffset:      metadataOffset,
		MetadataLength:      uint64(len(metadata)),
		TileDataOffset:      dataOffset,
		TileDataLength:      uint64(data.Len()),
		AddressedTilesCount: uint64(len(entries)),
		TileEntriesCount:    uint64(len(entries)),
		TileContentsCount:   uint64(len(entries)),
		Clustered:           true,
		InternalCompression: Gzip,
		TileCompression:     Gzip,
		TileType:            Mvt,
		MinZoom:             minZoom,
		MaxZoom:             maxZoom,
		MinLonE7:            e7(bound.Min[0]),
		MinLatE7:            e7(bound.Min[1]),
		MaxLonE7:            e7(bound.Max[0]),
		MaxLatE7:            e7(bound.Max[1]),
		CenterZoom:          maxZoom,
		CenterLonE7:         e7(center[0]),
		CenterLatE7:         e7(center[1]),
	}

	for _, b := range [][]byte{SerializeHeader(header), root, metadata, data.Bytes()} {
		if _, err := w.Write(b); err != nil {
			return err
		}
	}
	return nil
}

func e7(v float64) int32 {
	return int32(v * 1e7)
}
