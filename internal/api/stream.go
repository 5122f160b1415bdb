package api

import (
	"context"
	"log/slog"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-assets/internal/asset"
	"github.com/joeblew999/plat-assets/internal/humastar"
	"github.com/joeblew999/plat-assets/internal/service"
)

// StreamHandler pushes a session's advisory slots and signals to a
// Datastar page over SSE.
type StreamHandler struct {
	humastar.Handler
	sessions *service.Sessions
}

func NewStreamHandler(svc *Services) *StreamHandler {
	logger := svc.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamHandler{
		Handler:  humastar.Handler{Renderer: svc.Renderer, Logger: logger},
		sessions: svc.Sessions,
	}
}

type SignalsInput struct {
	ID      string `path:"id" doc:"Session ID"`
	RawBody []byte
}

// RegisterStream registers the SSE routes.
func (h *StreamHandler) RegisterStream(api huma.API) {
	huma.Get(api, "/api/v1/sessions/{id}/stream", h.Events,
		huma.OperationTags("stream"),
	)
	huma.Post(api, "/api/v1/sessions/{id}/signals", h.Signals,
		huma.OperationTags("stream"),
	)
}

// Events sends the full state once, then every change until the client
// goes away or the session ends.
func (h *StreamHandler) Events(ctx context.Context, input *SessionIDInput) (*huma.StreamResponse, error) {
	s, err := h.sessions.Get(input.ID)
	if err != nil {
		return nil, problem(err)
	}
	return h.Stream(func(sse humastar.SSE) {
		ch := s.Engine.Bus().Subscribe()
		defer s.Engine.Bus().Unsubscribe(ch)

		h.sendState(sse, s.Engine.Snapshot())
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.Engine.Done():
				sse.Error("session ended")
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				h.send(sse, ev)
			}
		}
	}), nil
}

// Signals applies the category and pin signals a Datastar page posts and
// answers with the resulting slots and signals.
func (h *StreamHandler) Signals(ctx context.Context, input *SignalsInput) (*huma.StreamResponse, error) {
	in := humastar.SignalsInput{RawBody: input.RawBody}
	signals, err := in.MustParse()
	if err != nil {
		return nil, err
	}
	s, err := h.sessions.Get(input.ID)
	if err != nil {
		return nil, problem(err)
	}

	e := s.Engine
	if signals.Has("category") {
		c := asset.Category{
			Name:        signals.String("category"),
			Group:       signals.String("group"),
			Subcategory: signals.String("subcategory"),
		}
		if c != e.Snapshot().Category {
			e.CategoryChanged(c)
		}
	}
	lat, okLat := signals.Float("lat")
	lon, okLon := signals.Float("lon")
	if okLat && okLon {
		e.PinMoved(LatLon{Lat: lat, Lon: lon}.point())
	}

	state := e.Snapshot()
	return h.Stream(func(sse humastar.SSE) {
		h.sendState(sse, state)
	}), nil
}

func (h *StreamHandler) sendState(sse humastar.SSE, st asset.State) {
	for _, l := range st.Layers {
		h.sendMessage(sse, asset.MessageChanged{Slot: l.Message.Slot, LayerID: l.ID, State: l.Message.State, HTML: l.Message.HTML})
	}
	h.sendMessage(sse, asset.MessageChanged{Slot: asset.OverlapSlot, HTML: st.Overlap})

	signals := map[string]any{
		"category": st.Category.Name,
		"routing":  st.Routing,
		"selected": selectedSignal(st.Selection),
	}
	if st.Pin != nil {
		signals["lat"], signals["lon"] = st.Pin.Lat(), st.Pin.Lon()
	}
	sse.Signals(signals)
}

func (h *StreamHandler) sendMessage(sse humastar.SSE, m asset.MessageChanged) {
	if m.Slot == asset.OverlapSlot {
		sse.Replace(h.Fragment("overlap-slot", m), "#"+m.Slot)
		return
	}
	sse.Replace(h.Fragment("message-slot", m), "#"+m.Slot)
}

func (h *StreamHandler) send(sse humastar.SSE, ev asset.Event) {
	switch ev := ev.(type) {
	case asset.MessageChanged:
		h.sendMessage(sse, ev)
	case asset.RoutingChanged:
		sse.Signals(map[string]any{"routing": ev})
	case asset.PinMoved:
		sse.Signals(map[string]any{"lat": ev.LonLat.Lat(), "lon": ev.LonLat.Lon()})
	case asset.CategoryChanged:
		sse.Signals(map[string]any{"category": ev.Category.Name})
	case asset.AssetSelected:
		sse.Signals(map[string]any{"selected": map[string]any{"layer": ev.LayerID, "feature": ev.FeatureID}})
	case asset.AssetUnselected:
		sse.Signals(map[string]any{"selected": selectedSignal(nil)})
	}
}

func selectedSignal(sel *asset.SelectionState) map[string]any {
	if sel == nil {
		return map[string]any{"layer": "", "feature": ""}
	}
	return map[string]any{"layer": sel.LayerID, "feature": sel.FeatureID}
}
