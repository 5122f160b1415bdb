// Package api defines the Huma API routes and handlers.
package api

import (
	"context"
	"errors"
	"log/slog"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-assets/internal/asset"
	"github.com/joeblew999/plat-assets/internal/db"
	"github.com/joeblew999/plat-assets/internal/service"
	"github.com/joeblew999/plat-assets/internal/templates"
)

// Version is reported by /health and /api/v1/info.
const Version = "0.3.0"

// Services holds the service dependencies for API handlers.
type Services struct {
	Catalog  *service.Catalog
	Sessions *service.Sessions
	Datasets *service.DatasetService
	Renderer *templates.Renderer
	Logger   *slog.Logger
	// DataDir and Formats are reported by /api/v1/info.
	DataDir string
	Formats []string
}

// RegisterRoutes registers every handler on api.
func RegisterRoutes(api huma.API, svc *Services) {
	huma.AutoRegister(api, NewAPIHandler(svc))
	huma.AutoRegister(api, NewInfoHandler(svc))
	huma.AutoRegister(api, NewSessionHandler(svc))
	huma.AutoRegister(api, NewStreamHandler(svc))
}

// Types

type IDInput struct {
	ID string `path:"id" doc:"Layer ID" example:"streetlights"`
}

type LayerOutput struct {
	Body service.LayerInfo
}

type LayersOutput struct {
	Body []service.LayerInfo
}

type HealthBody struct {
	Status   string `json:"status" doc:"Health status" example:"ok"`
	Version  string `json:"version" doc:"API version" example:"0.3.0"`
	Sessions int    `json:"sessions" doc:"Live report sessions"`
}

type DatasetsBody struct {
	Files  []service.Dataset `json:"files" doc:"Local archives and data files"`
	Tables []db.Table        `json:"tables" doc:"DuckDB tables a duckdb layer can read"`
	DB     bool              `json:"db" doc:"Whether DuckDB is available"`
}

// APIHandler holds the read-only REST handlers. Methods named Register*
// are auto-discovered by huma.AutoRegister.
type APIHandler struct {
	svc *Services
}

func NewAPIHandler(svc *Services) *APIHandler {
	return &APIHandler{svc: svc}
}

// RegisterHealth registers health check routes.
func (h *APIHandler) RegisterHealth(api huma.API) {
	huma.Get(api, "/health", h.GetHealth, huma.OperationTags("health"))
}

// RegisterLayers registers the layer catalog routes.
func (h *APIHandler) RegisterLayers(api huma.API) {
	huma.Get(api, "/api/v1/layers", h.GetLayers, huma.OperationTags("layers"))
	huma.Get(api, "/api/v1/layers/{id}", h.GetLayer, huma.OperationTags("layers"))
}

// RegisterDatasets registers dataset listing routes.
func (h *APIHandler) RegisterDatasets(api huma.API) {
	huma.Get(api, "/api/v1/datasets", h.GetDatasets, huma.OperationTags("datasets"))
}

// Handlers

func (h *APIHandler) GetHealth(ctx context.Context, input *struct{}) (*struct{ Body HealthBody }, error) {
	body := HealthBody{Status: "ok", Version: Version}
	if h.svc.Sessions != nil {
		body.Sessions = h.svc.Sessions.Len()
	}
	return &struct{ Body HealthBody }{Body: body}, nil
}

func (h *APIHandler) GetLayers(ctx context.Context, input *struct{}) (*LayersOutput, error) {
	if h.svc.Catalog == nil {
		return &LayersOutput{Body: []service.LayerInfo{}}, nil
	}
	return &LayersOutput{Body: h.svc.Catalog.List()}, nil
}

func (h *APIHandler) GetLayer(ctx context.Context, input *IDInput) (*LayerOutput, error) {
	if h.svc.Catalog == nil {
		return nil, huma.Error404NotFound("layer not found")
	}
	layer, ok := h.svc.Catalog.Get(input.ID)
	if !ok {
		return nil, huma.Error404NotFound("layer not found")
	}
	return &LayerOutput{Body: layer}, nil
}

func (h *APIHandler) GetDatasets(ctx context.Context, input *struct{}) (*struct{ Body DatasetsBody }, error) {
	body := DatasetsBody{Files: []service.Dataset{}, Tables: []db.Table{}}
	if h.svc.Datasets == nil {
		return &struct{ Body DatasetsBody }{Body: body}, nil
	}
	files, err := h.svc.Datasets.Files()
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to list data files", err)
	}
	if files != nil {
		body.Files = files
	}
	body.DB = h.svc.Datasets.Available()
	if body.DB {
		tables, err := h.svc.Datasets.Tables(ctx)
		if err != nil {
			return nil, huma.Error500InternalServerError("Failed to list tables", err)
		}
		if tables != nil {
			body.Tables = tables
		}
	}
	return &struct{ Body DatasetsBody }{Body: body}, nil
}

// problem maps service and engine errors to HTTP errors.
func problem(err error) error {
	var se huma.StatusError
	if errors.As(err, &se) {
		return err
	}
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		return huma.Error404NotFound("session not found")
	case errors.Is(err, asset.ErrUnknownLayer), errors.Is(err, asset.ErrUnknownFeature):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, asset.ErrNotInteractive), errors.Is(err, asset.ErrFaultReported):
		return huma.Error409Conflict(err.Error())
	}
	return huma.Error500InternalServerError("internal error", err)
}
