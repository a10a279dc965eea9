// Package apidoc serves the OpenAPI document of the Domains API and a
// Swagger UI for it.
package apidoc

import (
	_ "embed"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/swaggest/swgui/v5emb"
)

const (
	SpecPath = "/v3/specs/openapi.yaml"
	DocsPath = "/v3/docs/"
)

//go:embed openapi.yaml
var spec []byte

// Spec returns the embedded OpenAPI document.
func Spec() []byte {
	return spec
}

// Register mounts the document and the UI on r. Neither requires a token.
func Register(r chi.Router) {
	r.Get(SpecPath, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write(spec)
	})
	r.Handle(DocsPath+"*", v5emb.New("Identity API v3 Domains", SpecPath, DocsPath))
}
