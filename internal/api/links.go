package api

import (
	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-assets/internal/humastar"
)

// links maps operation paths to their RFC 8288 Link header values.
// Enables restish hypermedia navigation via `restish links <url>`.
var links = map[string][]string{
	"/health": {
		`</api/v1/info>; rel="info"`,
		`</api/v1/layers>; rel="layers"`,
		`</api/v1/datasets>; rel="datasets"`,
		`</api/v1/sessions>; rel="sessions"`,
		`</openapi.json>; rel="service-desc"`,
	},
	"/api/v1/info": {
		`</health>; rel="health"`,
		`</api/v1/layers>; rel="layers"`,
	},
	"/api/v1/layers": {
		`</api/v1/layers/{id}>; rel="item"`,
		`</api/v1/datasets>; rel="datasets"`,
	},
	"/api/v1/layers/{id}": {
		`</api/v1/layers>; rel="collection"`,
	},
	"/api/v1/datasets": {
		`</api/v1/layers>; rel="layers"`,
	},
	"/api/v1/sessions": {
		`</api/v1/layers>; rel="layers"`,
	},
}

// LinkTransformer returns a Huma Transformer that injects the links above,
// self links and session actions.
func LinkTransformer() huma.Transformer {
	return humastar.LinkTransformer(links)
}
