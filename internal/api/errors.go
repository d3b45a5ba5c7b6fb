package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/graymere/hublink/internal/hub"
	"github.com/graymere/hublink/internal/hubclient"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeNotFound     = "not_found"
	ErrCodeUnauthorized = "unauthorised"
	ErrCodeForbidden    = "forbidden"
	ErrCodeConflict     = "conflict"
	ErrCodeUnavailable  = "hub_unavailable"
	ErrCodeUpstream     = "hub_error"
	ErrCodeInternal     = "internal_error"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeEngineError maps engine and wire-client errors onto HTTP status
// codes: unknown ids become 404, duplicates 409, disconnected hubs 503,
// missing permissions 403 and upstream hub failures 502.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, hub.ErrHubNotFound), errors.Is(err, hub.ErrDeviceNotFound):
		writeError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, hub.ErrHubExists):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, hub.ErrNotConnected), errors.Is(err, hub.ErrInvalidState):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error())
	case errors.Is(err, hub.ErrPermissionDenied):
		writeError(w, http.StatusForbidden, ErrCodeForbidden, err.Error())
	default:
		var apiErr *hubclient.APIError
		var connErr *hubclient.ConnectionError
		var timeoutErr *hubclient.TimeoutError
		switch {
		case errors.As(err, &apiErr), errors.As(err, &connErr):
			writeError(w, http.StatusBadGateway, ErrCodeUpstream, err.Error())
		case errors.As(err, &timeoutErr):
			writeError(w, http.StatusGatewayTimeout, ErrCodeUpstream, err.Error())
		default:
			writeError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		}
	}
}
