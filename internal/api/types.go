package api

import "encoding/json"

// ExecuteRequest is the JSON body for POST /execute.
type ExecuteRequest struct {
	Operation string          `json:"operation"`
	Params    json.RawMessage `json:"params,omitempty"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	Status  string `json:"status"`
	Server  string `json:"server"`
	Version string `json:"version"`
}

// OperationsResponse is returned by GET /operations.
type OperationsResponse struct {
	Operations    []string `json:"operations"`
	UptimeSeconds int64    `json:"uptime_seconds"`
}

// ErrorResponse is returned on transport errors. Operation failures are
// Envelopes, never ErrorResponses.
type ErrorResponse struct {
	Error string `json:"error"`
}
