package api

import (
	"github.com/mattjoyce/windsurf-mcp/internal/dispatch"
)

// buildOpenAPIDoc returns an OpenAPI 3.1 document for the HTTP surface, with
// the registered operations as the enum of ExecuteRequest.operation.
func buildOpenAPIDoc(ops []dispatch.Operation) map[string]any {
	names := make([]string, 0, len(ops))
	for _, op := range ops {
		names = append(names, string(op))
	}

	secured := []any{map[string]any{"BearerAuth": []string{}}}

	return map[string]any{
		"openapi": "3.1.0",
		"info": map[string]any{
			"title":   ServerName,
			"version": ServerVersion,
		},
		"paths": map[string]any{
			"/execute": map[string]any{
				"post": map[string]any{
					"operationId": "execute",
					"summary":     "Run one named operation",
					"requestBody": map[string]any{
						"required": true,
						"content": map[string]any{
							"application/json": map[string]any{
								"schema": map[string]any{"$ref": "#/components/schemas/ExecuteRequest"},
							},
						},
					},
					"responses": map[string]any{
						"200": jsonResponse("Operation result; check the envelope status", "#/components/schemas/Envelope"),
						"400": jsonResponse("Body is not a valid request object", "#/components/schemas/Error"),
						"401": jsonResponse("Missing or invalid bearer token", "#/components/schemas/Error"),
						"403": jsonResponse("Insufficient scope", "#/components/schemas/Error"),
					},
					"security": secured,
				},
			},
			"/status": map[string]any{
				"get": map[string]any{
					"operationId": "status",
					"summary":     "Liveness",
					"responses": map[string]any{
						"200": jsonResponse("Server is running", "#/components/schemas/Status"),
					},
				},
			},
			"/operations": map[string]any{
				"get": map[string]any{
					"operationId": "listOperations",
					"summary":     "Registered operation names",
					"responses": map[string]any{
						"200": map[string]any{"description": "Operation list"},
					},
					"security": secured,
				},
			},
			"/events": map[string]any{
				"get": map[string]any{
					"operationId": "streamEvents",
					"summary":     "Server-Sent Events of operation and maintenance outcomes",
					"parameters": []any{
						map[string]any{
							"name":     "Last-Event-ID",
							"in":       "header",
							"required": false,
							"schema":   map[string]any{"type": "integer"},
						},
					},
					"responses": map[string]any{
						"200": map[string]any{
							"description": "Event stream",
							"content": map[string]any{
								"text/event-stream": map[string]any{"schema": map[string]any{"type": "string"}},
							},
						},
					},
					"security": secured,
				},
			},
		},
		"components": map[string]any{
			"schemas": map[string]any{
				"ExecuteRequest": map[string]any{
					"type":     "object",
					"required": []string{"operation"},
					"properties": map[string]any{
						"operation": map[string]any{"type": "string", "enum": names},
						"params":    map[string]any{"type": "object"},
					},
				},
				"Envelope": map[string]any{
					"type":                 "object",
					"required":             []string{"status"},
					"additionalProperties": true,
					"properties": map[string]any{
						"status":  map[string]any{"type": "string", "enum": []string{"success", "error"}},
						"message": map[string]any{"type": "string"},
					},
				},
				"Status": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"status":  map[string]any{"type": "string"},
						"server":  map[string]any{"type": "string"},
						"version": map[string]any{"type": "string"},
					},
				},
				"Error": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"error": map[string]any{"type": "string"},
					},
				},
			},
			"securitySchemes": map[string]any{
				"BearerAuth": map[string]any{
					"type":   "http",
					"scheme": "bearer",
				},
			},
		},
	}
}

func jsonResponse(description, ref string) map[string]any {
	return map[string]any{
		"description": description,
		"content": map[string]any{
			"application/json": map[string]any{
				"schema": map[string]any{"$ref": ref},
			},
		},
	}
}
