package handlers

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"
)

// ParseEnvelopeID extracts and validates the pending envelope ID from the request path.
// Returns the parsed ID and true on success, or 0 and false on error
// (after writing an error response).
// Expects path parameter: id
func ParseEnvelopeID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (int64, bool) {
	return parseInt64(w, r, "id", "invalid_id", "Invalid pending word ID", logger)
}

// parseInt64 is the internal helper that does the actual parsing work.
func parseInt64(w http.ResponseWriter, r *http.Request, pathParam, errorCode, errorMessage string, logger *zap.Logger) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(pathParam), 10, 64)
	if err != nil || id <= 0 {
		if err := ErrorResponse(w, http.StatusBadRequest, errorCode, errorMessage); err != nil {
			logger.Error("Failed to write error response", zap.Error(err))
		}
		return 0, false
	}
	return id, true
}

// parseLimit reads an optional positive "limit" query parameter. Invalid or
// missing values yield 0, which means the service default.
func parseLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
