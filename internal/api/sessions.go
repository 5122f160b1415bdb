package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-assets/internal/asset"
	"github.com/joeblew999/plat-assets/internal/humastar"
	"github.com/joeblew999/plat-assets/internal/service"
)

// Session actions advertised as Link headers.
var (
	actStream   = humastar.ActionDef{Rel: "stream", Pattern: "/api/v1/sessions/%s/stream", Method: "GET", Title: "Advisory messages and signals (SSE)"}
	actCategory = humastar.ActionDef{Rel: "category", Pattern: "/api/v1/sessions/%s/category", Method: "POST", Title: "Change the category"}
	actPin      = humastar.ActionDef{Rel: "pin", Pattern: "/api/v1/sessions/%s/pin", Method: "POST", Title: "Move the pin"}
	actViewport = humastar.ActionDef{Rel: "viewport", Pattern: "/api/v1/sessions/%s/viewport", Method: "POST", Title: "Report the map viewport"}
	actBodies   = humastar.ActionDef{Rel: "bodies", Pattern: "/api/v1/sessions/%s/bodies", Method: "PUT", Title: "Set the bodies covering the location"}
	actSelect   = humastar.ActionDef{Rel: "select", Pattern: "/api/v1/sessions/%s/selection", Method: "POST", Title: "Select an asset"}
	actDeselect = humastar.ActionDef{Rel: "deselect", Pattern: "/api/v1/sessions/%s/selection", Method: "DELETE", Title: "Clear the selected asset"}
	actReset    = humastar.ActionDef{Rel: "reset", Pattern: "/api/v1/sessions/%s/reset", Method: "POST", Title: "Go back to category choice"}
	actEnd      = humastar.ActionDef{Rel: "end", Pattern: "/api/v1/sessions/%s", Method: "DELETE", Title: "End the session"}
)

// Types

type SessionIDInput struct {
	ID string `path:"id" doc:"Session ID" example:"0b8f3c1e-6a1d-4c55-9d59-1f0e5b3c2a71"`
}

type LatLon struct {
	Lat float64 `json:"lat" minimum:"-90" maximum:"90" doc:"Latitude" example:"51.8167"`
	Lon float64 `json:"lon" minimum:"-180" maximum:"180" doc:"Longitude" example:"-0.8124"`
}

func (p LatLon) point() orb.Point { return orb.Point{p.Lon, p.Lat} }

type CreateSessionInput struct {
	Body struct {
		Bodies []string `json:"bodies,omitempty" doc:"Bodies covering the report location; omit while unknown" example:"[\"Bucks Council\"]"`
		Pin    *LatLon  `json:"pin,omitempty" doc:"Initial pin position"`
	} `required:"false"`
}

type CategoryInput struct {
	SessionIDInput
	Body asset.Category
}

type PinInput struct {
	SessionIDInput
	Body LatLon
}

type ViewportInput struct {
	SessionIDInput
	Body struct {
		BBox       []float64 `json:"bbox" minItems:"4" maxItems:"4" doc:"min lon, min lat, max lon, max lat" example:"[-0.82,51.81,-0.80,51.82]"`
		Resolution float64   `json:"resolution" minimum:"0" doc:"Map units per pixel" example:"1.2"`
	}
}

type BodiesInput struct {
	SessionIDInput
	Body struct {
		Bodies []string `json:"bodies" doc:"Bodies covering the report location" example:"[\"Bucks Council\",\"National Highways\"]"`
	}
}

type SelectInput struct {
	SessionIDInput
	Body struct {
		Layer   string `json:"layer" minLength:"1" doc:"Layer ID" example:"streetlights"`
		Feature string `json:"feature" minLength:"1" doc:"Feature ID within the layer" example:"SL1042"`
	}
}

type DeselectInput struct {
	SessionIDInput
	Layer string `query:"layer" doc:"Only deselect if this layer holds the selection"`
}

// SessionBody is a session's state and the form fields written so far.
type SessionBody struct {
	ID      string            `json:"id" doc:"Session ID"`
	Created time.Time         `json:"created" doc:"Creation time"`
	State   asset.State       `json:"state" doc:"Engine state"`
	Form    map[string]string `json:"form" doc:"Form fields written by the engine"`
}

// Actions implements humastar.Actor.
func (b SessionBody) Actions() []humastar.Action {
	actions := humastar.ActionsFor(b.ID, actStream, actCategory, actPin, actViewport, actBodies, actReset, actEnd)
	for _, l := range b.State.Layers {
		if l.Visible && l.InRange && l.Features > 0 {
			actions = append(actions, actSelect.For(b.ID))
			break
		}
	}
	if b.State.Selection != nil {
		actions = append(actions, actDeselect.For(b.ID))
	}
	return actions
}

type SessionOutput struct {
	Body SessionBody
}

// SessionHandler exposes report sessions. Every mutation answers with the
// resulting state.
type SessionHandler struct {
	sessions *service.Sessions
}

func NewSessionHandler(svc *Services) *SessionHandler {
	return &SessionHandler{sessions: svc.Sessions}
}

// RegisterSessions registers the session routes.
func (h *SessionHandler) RegisterSessions(api huma.API) {
	tags := huma.OperationTags("sessions")
	huma.Register(api, huma.Operation{
		OperationID:   "create-session",
		Method:        http.MethodPost,
		Path:          "/api/v1/sessions",
		Summary:       "Create a report session",
		Tags:          []string{"sessions"},
		DefaultStatus: http.StatusCreated,
	}, h.Create)
	huma.Get(api, "/api/v1/sessions/{id}", h.Get, tags)
	huma.Delete(api, "/api/v1/sessions/{id}", h.Delete, tags)
	huma.Post(api, "/api/v1/sessions/{id}/category", h.Category, tags)
	huma.Post(api, "/api/v1/sessions/{id}/pin", h.Pin, tags)
	huma.Post(api, "/api/v1/sessions/{id}/viewport", h.Viewport, tags)
	huma.Put(api, "/api/v1/sessions/{id}/bodies", h.Bodies, tags)
	huma.Post(api, "/api/v1/sessions/{id}/selection", h.Select, tags)
	huma.Delete(api, "/api/v1/sessions/{id}/selection", h.Deselect, tags)
	huma.Post(api, "/api/v1/sessions/{id}/reset", h.Reset, tags)
}

func output(s *service.Session) *SessionOutput {
	return &SessionOutput{Body: SessionBody{
		ID:      s.ID,
		Created: s.Created,
		State:   s.Engine.Snapshot(),
		Form:    s.Form.Values(),
	}}
}

// with runs fn on the session and answers with its state.
func (h *SessionHandler) with(id string, fn func(e *asset.Engine) error) (*SessionOutput, error) {
	s, err := h.sessions.Get(id)
	if err != nil {
		return nil, problem(err)
	}
	if err := fn(s.Engine); err != nil {
		return nil, problem(err)
	}
	return output(s), nil
}

// Handlers

func (h *SessionHandler) Create(ctx context.Context, input *CreateSessionInput) (*SessionOutput, error) {
	in := service.CreateInput{Bodies: input.Body.Bodies}
	if input.Body.Pin != nil {
		pt := input.Body.Pin.point()
		in.Pin = &pt
	}
	s, err := h.sessions.Create(in)
	if err != nil {
		return nil, problem(err)
	}
	return output(s), nil
}

func (h *SessionHandler) Get(ctx context.Context, input *SessionIDInput) (*SessionOutput, error) {
	return h.with(input.ID, func(*asset.Engine) error { return nil })
}

func (h *SessionHandler) Delete(ctx context.Context, input *SessionIDInput) (*struct{}, error) {
	if err := h.sessions.Delete(input.ID); err != nil {
		return nil, problem(err)
	}
	return nil, nil
}

func (h *SessionHandler) Category(ctx context.Context, input *CategoryInput) (*SessionOutput, error) {
	return h.with(input.ID, func(e *asset.Engine) error {
		e.CategoryChanged(input.Body)
		return nil
	})
}

func (h *SessionHandler) Pin(ctx context.Context, input *PinInput) (*SessionOutput, error) {
	return h.with(input.ID, func(e *asset.Engine) error {
		e.PinMoved(input.Body.point())
		return nil
	})
}

func (h *SessionHandler) Viewport(ctx context.Context, input *ViewportInput) (*SessionOutput, error) {
	bb := input.Body.BBox
	if bb[0] > bb[2] || bb[1] > bb[3] {
		return nil, huma.Error422UnprocessableEntity("bbox min must not exceed max")
	}
	return h.with(input.ID, func(e *asset.Engine) error {
		bound := orb.Bound{Min: orb.Point{bb[0], bb[1]}, Max: orb.Point{bb[2], bb[3]}}
		if err := e.ViewportChanged(bound, input.Body.Resolution); err != nil {
			return huma.Error422UnprocessableEntity(err.Error())
		}
		return nil
	})
}

func (h *SessionHandler) Bodies(ctx context.Context, input *BodiesInput) (*SessionOutput, error) {
	return h.with(input.ID, func(e *asset.Engine) error {
		bodies := input.Body.Bodies
		if bodies == nil {
			bodies = []string{}
		}
		e.SetBodies(bodies)
		return nil
	})
}

func (h *SessionHandler) Select(ctx context.Context, input *SelectInput) (*SessionOutput, error) {
	return h.with(input.ID, func(e *asset.Engine) error {
		return e.Click(input.Body.Layer, input.Body.Feature)
	})
}

func (h *SessionHandler) Deselect(ctx context.Context, input *DeselectInput) (*SessionOutput, error) {
	return h.with(input.ID, func(e *asset.Engine) error {
		layer := input.Layer
		if layer == "" {
			layer, _, _ = e.Selected()
		}
		if layer != "" {
			e.Deselect(layer)
		}
		return nil
	})
}

func (h *SessionHandler) Reset(ctx context.Context, input *SessionIDInput) (*SessionOutput, error) {
	return h.with(input.ID, func(e *asset.Engine) error {
		e.Reset()
		return nil
	})
}
