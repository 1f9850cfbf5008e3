package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mattjoyce/windsurf-mcp/internal/dispatch"
)

// handleStatus handles GET /status (no auth).
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, StatusResponse{
		Status:  "running",
		Server:  ServerName,
		Version: ServerVersion,
	})
}

// handleExecute handles POST /execute.
//
// Every decodable request is answered with HTTP 200 and an Envelope body,
// whatever the Envelope status. Only bodies that are not a JSON object of the
// right shape get a 4xx.
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)

	var req ExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
			return
		}
		s.writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	params, err := decodeParams(req.Params)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	env := s.dispatcher.Execute(r.Context(), req.Operation, params)

	body, err := json.Marshal(env)
	if err != nil {
		s.logger.Error("failed to encode envelope", "operation", req.Operation, "error", err)
		body, _ = json.Marshal(dispatch.Failure(fmt.Errorf("failed to encode result: %w", err)))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(append(body, '\n'))
}

// decodeParams accepts an object, null or nothing.
func decodeParams(raw json.RawMessage) (dispatch.Params, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return dispatch.Params{}, nil
	}
	if trimmed[0] != '{' {
		return nil, errors.New("params must be a JSON object")
	}
	var params dispatch.Params
	if err := json.Unmarshal(trimmed, &params); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	return params, nil
}

// handleOperations handles GET /operations.
func (s *Server) handleOperations(w http.ResponseWriter, r *http.Request) {
	ops := s.dispatcher.Operations()
	names := make([]string, 0, len(ops))
	for _, op := range ops {
		names = append(names, string(op))
	}
	respondJSON(w, http.StatusOK, OperationsResponse{
		Operations:    names,
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
	})
}

// handleOpenAPI handles GET /openapi.json.
func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, buildOpenAPIDoc(s.dispatcher.Operations()))
}

// respondJSON is a helper to write JSON responses
func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
