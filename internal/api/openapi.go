package api

import (
	"fmt"
	"net/http"

	"github.com/mattjoyce/ipfsbridge/pkg/op"
)

// handleOpenAPI handles GET /openapi.json.
func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, buildOpenAPIDoc(op.All(), s.client.APIVersion()))
}

// buildOpenAPIDoc returns an OpenAPI 3.1 document with one run and one
// encode path per operation.
func buildOpenAPIDoc(ops []op.Descriptor, version string) map[string]any {
	paths := map[string]any{}
	for _, d := range ops {
		schema := paramSchema(d)
		paths[fmt.Sprintf("/ops/%s", d.ID)] = map[string]any{
			"post": operation(d, string(d.ID), d.Summary, schema, map[string]any{
				"200": map[string]any{"description": "Runtime result (exit_code may be non-zero)"},
				"400": map[string]any{"description": "Invalid arguments"},
				"501": map[string]any{"description": "Unsupported by the configured runtime"},
				"502": map[string]any{"description": "Runtime transport failure"},
			}),
		}
		paths[fmt.Sprintf("/ops/%s/encode", d.ID)] = map[string]any{
			"post": operation(d, string(d.ID)+"__encode", "Encode "+d.Name()+" without running it", schema, map[string]any{
				"200": map[string]any{"description": "Encoded command line"},
				"400": map[string]any{"description": "Invalid arguments"},
			}),
		}
	}

	return map[string]any{
		"openapi": "3.1.0",
		"info": map[string]any{
			"title":   "ipfsbridge",
			"version": version,
		},
		"paths": paths,
		"components": map[string]any{
			"securitySchemes": map[string]any{
				"BearerAuth": map[string]any{
					"type":   "http",
					"scheme": "bearer",
				},
			},
		},
	}
}

func operation(d op.Descriptor, id, summary string, schema map[string]any, responses map[string]any) map[string]any {
	return map[string]any{
		"operationId": id,
		"summary":     summary,
		"tags":        []string{d.Group},
		"responses":   responses,
		"security":    []any{map[string]any{"BearerAuth": []string{}}},
		"requestBody": map[string]any{
			"required": len(requiredParams(d)) > 0,
			"content": map[string]any{
				"application/json": map[string]any{"schema": schema},
			},
		},
	}
}

func paramSchema(d op.Descriptor) map[string]any {
	props := map[string]any{}
	for _, p := range d.Params {
		prop := map[string]any{}
		switch p.Kind {
		case op.Bool:
			prop["type"] = "boolean"
		case op.Uint:
			prop["type"] = "integer"
			prop["minimum"] = 0
		default:
			prop["type"] = "string"
		}
		if p.Help != "" {
			prop["description"] = p.Help
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		props[p.Name] = prop
	}
	schema := map[string]any{
		"type":                 "object",
		"properties":           props,
		"additionalProperties": false,
	}
	if req := requiredParams(d); len(req) > 0 {
		schema["required"] = req
	}
	return schema
}

func requiredParams(d op.Descriptor) []string {
	var out []string
	for _, p := range d.Params {
		if p.Required {
			out = append(out, p.Name)
		}
	}
	return out
}
