package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	bridge "github.com/nerrad567/gray-logic-teslemetry/internal/bridges/teslemetry"
	"github.com/nerrad567/gray-logic-teslemetry/internal/device"
	tslm "github.com/nerrad567/gray-logic-teslemetry/internal/teslemetry"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest     = "bad_request"
	ErrCodeNotFound       = "not_found"
	ErrCodeConflict       = "conflict"
	ErrCodeInternal       = "internal_error"
	ErrCodeValidation     = "validation_error"
	ErrCodeMethodNotAllow = "method_not_allowed"
	ErrCodeBadGateway     = "bad_gateway"
	ErrCodeRateLimited    = "rate_limited"
	ErrCodeTimeout        = "timeout"
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

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeDomainError maps registry, bridge and Teslemetry errors to a response.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, device.ErrDeviceNotFound),
		errors.Is(err, device.ErrCapabilityNotFound):
		writeNotFound(w, err.Error())
	case errors.Is(err, device.ErrNotSetable),
		errors.Is(err, device.ErrInvalidValue),
		errors.Is(err, device.ErrInvalidCapability),
		errors.Is(err, device.ErrInvalidDevice),
		errors.Is(err, device.ErrInvalidName),
		errors.Is(err, bridge.ErrVehicleNotPairable):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, device.ErrNoListener):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, tslm.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, ErrCodeRateLimited, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, ErrCodeTimeout, "Teslemetry did not respond in time")
	case errors.Is(err, bridge.ErrVehicleListFailed),
		errors.Is(err, tslm.ErrUnauthorized),
		errors.Is(err, tslm.ErrNotFound),
		errors.Is(err, tslm.ErrRequestFailed):
		writeError(w, http.StatusBadGateway, ErrCodeBadGateway, err.Error())
	default:
		writeInternalError(w, "internal server error")
	}
}
