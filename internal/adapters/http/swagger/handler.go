// Package swagger serves the embedded OpenAPI document for the HTTP API.
package swagger

import (
	"context"
	_ "embed"
	"errors"
	"html/template"
	"net/http"
)

// OpenAPI is the API description served at /openapi.yaml.
//
//go:embed openapi.yaml
var OpenAPI []byte

// ErrServe reports a failure rendering the docs page.
var ErrServe = errors.New("swagger serve failed")

// Register attaches the document routes to mux:
//
//	GET /api-docs      -> HTML view of the document
//	GET /openapi.yaml  -> the raw document
func Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}

	mux.HandleFunc("/api-docs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := indexTemplate.Execute(w, string(OpenAPI)); err != nil {
			http.Error(w, ErrServe.Error(), http.StatusInternalServerError)
		}
	})

	mux.HandleFunc("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
		_, _ = w.Write(OpenAPI)
	})
}

var indexTemplate = template.Must(template.New("index").Parse(`<!doctype html>
<html>
  <head>
    <meta charset="utf-8">
    <title>skincheck API</title>
    <style>body{margin:2em;font-family:sans-serif}pre{background:#f6f8fa;padding:1em}</style>
  </head>
  <body>
    <h1>skincheck API</h1>
    <p><a href="/openapi.yaml">openapi.yaml</a></p>
    <pre id="openapi">{{.}}</pre>
  </body>
</html>`))
