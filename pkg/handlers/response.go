package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/Andrii-Skr/crossnext-sub000/pkg/apperrors"
)

// ApiResponse is the envelope for successful JSON responses.
type ApiResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// WriteServiceError maps a service error onto an HTTP status. Errors without
// a known sentinel are logged and reported as 500 without their message.
func WriteServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	status, code, message := http.StatusInternalServerError, "internal_error", "Internal server error"

	switch {
	case errors.Is(err, apperrors.ErrUnauthorized):
		status, code, message = http.StatusUnauthorized, "unauthorized", "Authentication required"
	case errors.Is(err, apperrors.ErrForbidden):
		status, code, message = http.StatusForbidden, "forbidden", "Insufficient permissions"
	case errors.Is(err, apperrors.ErrInvalidID):
		status, code, message = http.StatusBadRequest, "invalid_id", err.Error()
	case errors.Is(err, apperrors.ErrInvalidInput):
		status, code, message = http.StatusBadRequest, "invalid_input", err.Error()
	case errors.Is(err, apperrors.ErrStaleReference):
		status, code, message = http.StatusConflict, "stale_reference", err.Error()
	case errors.Is(err, apperrors.ErrConflict):
		status, code, message = http.StatusConflict, "conflict", err.Error()
	default:
		logger.Error("Request failed", zap.Error(err))
	}

	if err := ErrorResponse(w, status, code, message); err != nil {
		logger.Error("Failed to write error response", zap.Error(err))
	}
}
