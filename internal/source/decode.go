package source

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-assets/internal/asset"
)

// errNoData marks an empty response (204, or a tile that does not exist).
var errNoData = errors.New("no data")

func decodeGeoJSON(data []byte, idField string) ([]*asset.Feature, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("geojson: %w", err)
	}
	return fromGeoJSON(fc.Features, idField), nil
}

func fromGeoJSON(features []*geojson.Feature, idField string) []*asset.Feature {
	out := make([]*asset.Feature, 0, len(features))
	for _, f := range features {
		if f.Geometry == nil {
			continue
		}
		af := asset.NewFeature(f.Geometry, f.Properties, idField)
		if af.ID == "" && f.ID != nil {
			af.ID = asset.Stringify(f.ID)
		}
		out = append(out, af)
	}
	return out
}

// pinList is the bespoke pin format: [lat, lon, colour, id, title].
type pinList struct {
	Pins [][]json.RawMessage `json:"pins"`
}

func decodePins(data []byte) ([]*asset.Feature, error) {
	var pl pinList
	if err := json.Unmarshal(data, &pl); err != nil {
		return nil, fmt.Errorf("pins: %w", err)
	}
	out := make([]*asset.Feature, 0, len(pl.Pins))
	for i, p := range pl.Pins {
		if len(p) < 4 {
			return nil, fmt.Errorf("pins: entry %d has %d fields", i, len(p))
		}
		lat, err := number(p[0])
		if err != nil {
			return nil, fmt.Errorf("pins: entry %d lat: %w", i, err)
		}
		lon, err := number(p[1])
		if err != nil {
			return nil, fmt.Errorf("pins: entry %d lon: %w", i, err)
		}
		attrs := map[string]any{
			"colour": text(p[2]),
			"id":     text(p[3]),
		}
		if len(p) > 4 {
			attrs["title"] = text(p[4])
		}
		out = append(out, &asset.Feature{
			ID:         text(p[3]),
			Geometry:   orb.Point{lon, lat},
			Attributes: attrs,
		})
	}
	return out, nil
}

func number(raw json.RawMessage) (float64, error) {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, err
	}
	return strconv.ParseFloat(s, 64)
}

func text(raw json.RawMessage) string {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil || v == nil {
		return ""
	}
	return asset.Stringify(v)
}
