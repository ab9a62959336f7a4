// Package openapi embeds the HTTP contract and validates incoming requests
// against it before any handler runs.
package openapi

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	legacyrouter "github.com/getkin/kin-openapi/routers/legacy"
)

//go:embed openapi.yaml
var specYAML []byte

func Load() (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(specYAML)
	if err != nil {
		return nil, fmt.Errorf("load openapi document: %w", err)
	}
	if err := doc.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("validate openapi document: %w", err)
	}
	return doc, nil
}

// ValidationMiddleware rejects malformed requests with 400 before they reach
// a handler. Paths outside the documented contract (healthz, metrics) pass
// through untouched.
func ValidationMiddleware() (func(http.Handler) http.Handler, error) {
	doc, err := Load()
	if err != nil {
		return nil, err
	}
	router, err := legacyrouter.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("build openapi router: %w", err)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route, pathParams, err := router.FindRoute(r)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			// The validator consumes the body; hand the handler a replay.
			var bodyCopy []byte
			if r.Body != nil {
				bodyCopy, err = io.ReadAll(r.Body)
				if err != nil {
					writeValidationError(w, "failed to read request body")
					return
				}
				r.Body = io.NopCloser(bytes.NewReader(bodyCopy))
			}

			input := &openapi3filter.RequestValidationInput{
				Request:    r,
				PathParams: pathParams,
				Route:      route,
			}
			if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
				writeValidationError(w, err.Error())
				return
			}

			r.Body = io.NopCloser(bytes.NewReader(bodyCopy))
			next.ServeHTTP(w, r)
		})
	}, nil
}

func writeValidationError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
