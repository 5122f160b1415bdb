package asset

import (
	"io"
	"log/slog"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-assets/internal/geo"
)

func streetlights() map[string]any {
	return map[string]any{
		"id":             "streetlights",
		"name":           "Street lights",
		"asset_category": "Streetlight fault",
		"asset_id_field": "unitid",
		"attributes":     map[string]any{"column_id": "unitid"},
		"asset_item":     "street light",
		"asset_type":     "spot",
		"snap_radius":    50,
		"retrieval":      map[string]any{"srs_name": "planar", "ratio": 1},
	}
}

func drains() map[string]any {
	return map[string]any{
		"id":             "drains",
		"name":           "Drains",
		"asset_category": []any{"Blocked drain", "Streetlight fault"},
		"asset_id_field": "drain_id",
		"attributes":     map[string]any{"drain_ref": "drain_id"},
		"asset_item":     "drain",
		"retrieval":      map[string]any{"srs_name": "planar", "ratio": 1},
	}
}

func roads() map[string]any {
	return map[string]any{
		"id":             "roads",
		"name":           "Adopted roads",
		"road":           true,
		"all_categories": true,
		"body":           "Council",
		"nearest_radius": 10,
		"usrn":           []any{map[string]any{"field": "usrn", "attribute": "USRN"}},
		"retrieval":      map[string]any{"srs_name": "planar", "ratio": 1},
	}
}

func newRegistry(t *testing.T, configs ...map[string]any) *Registry {
	t.Helper()
	reg := NewRegistry()
	for _, c := range configs {
		_, err := reg.Add(nil, c)
		require.NoError(t, err)
	}
	return reg
}

func newEngine(t *testing.T, reg *Registry, fetcher Fetcher) (*Engine, *MemoryForm) {
	t.Helper()
	p, err := geo.New(geo.Planar)
	require.NoError(t, err)
	form := NewMemoryForm()
	e, err := NewEngine(reg, Options{
		Geo:     p,
		Form:    form,
		Fetcher: fetcher,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e, form
}

func point(idField, id string, x, y float64) *Feature {
	return &Feature{Geometry: orb.Point{x, y}, Attributes: map[string]any{idField: id}}
}

func drain(ch chan Event) []Event {
	var out []Event
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func kinds(events []Event) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.Kind()
	}
	return out
}

func stateOf(s State, id string) LayerState {
	for _, l := range s.Layers {
		if l.ID == id {
			return l
		}
	}
	return LayerState{}
}
