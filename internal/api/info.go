package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
)

type InfoHandler struct {
	svc *Services
}

func NewInfoHandler(svc *Services) *InfoHandler {
	return &InfoHandler{svc: svc}
}

func (h *InfoHandler) RegisterInfo(api huma.API) {
	huma.Get(api, "/api/v1/info", h.GetInfo, huma.OperationTags("health"))
}

type InfoBody struct {
	Name    string   `json:"name" doc:"Service name"`
	Version string   `json:"version" doc:"Service version"`
	DataDir string   `json:"data_dir" doc:"Data directory path"`
	DB      bool     `json:"db" doc:"Whether DuckDB is available"`
	Layers  int      `json:"layers" doc:"Number of catalog layers"`
	Formats []string `json:"formats" doc:"Retrieval formats this server can fetch"`
}

func (h *InfoHandler) GetInfo(ctx context.Context, input *struct{}) (*struct{ Body InfoBody }, error) {
	body := InfoBody{
		Name:    "plat-assets",
		Version: Version,
		DataDir: h.svc.DataDir,
		Formats: h.svc.Formats,
	}
	if body.Formats == nil {
		body.Formats = []string{}
	}
	if h.svc.Datasets != nil {
		body.DB = h.svc.Datasets.Available()
	}
	if h.svc.Catalog != nil {
		body.Layers = len(h.svc.Catalog.List())
	}
	return &struct{ Body InfoBody }{Body: body}, nil
}
