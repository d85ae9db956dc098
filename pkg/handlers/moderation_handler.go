package handlers

import (
	"encoding/json"
	"mime"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/Andrii-Skr/crossnext-sub000/pkg/auth"
	"github.com/Andrii-Skr/crossnext-sub000/pkg/models"
	"github.com/Andrii-Skr/crossnext-sub000/pkg/services"
)

// ConnectionMiddleware attaches a database connection to the request context.
type ConnectionMiddleware func(http.HandlerFunc) http.HandlerFunc

// ============================================================================
// Request/Response Types
// ============================================================================

// PendingListResponse for GET /api/pending
type PendingListResponse struct {
	Items []*models.PendingWord `json:"items"`
	Total int                   `json:"total"`
}

// PendingCountsResponse for GET /api/pending/counts
type PendingCountsResponse struct {
	Counts map[string]int `json:"counts"`
}

// ============================================================================
// Handler
// ============================================================================

// ModerationHandler exposes the moderation queue over HTTP.
type ModerationHandler struct {
	moderationService services.ModerationService
	logger            *zap.Logger
}

// NewModerationHandler creates a new moderation handler.
func NewModerationHandler(moderationService services.ModerationService, logger *zap.Logger) *ModerationHandler {
	return &ModerationHandler{
		moderationService: moderationService,
		logger:            logger,
	}
}

// RegisterRoutes registers the moderation handler's routes on the given mux.
func (h *ModerationHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, connMiddleware ConnectionMiddleware) {
	base := "/api/pending"

	mux.HandleFunc("GET "+base, authMiddleware.RequireAuth(connMiddleware(h.List)))
	mux.HandleFunc("GET "+base+"/counts", authMiddleware.RequireAuth(connMiddleware(h.Counts)))
	mux.HandleFunc("POST "+base, authMiddleware.RequireAuth(connMiddleware(h.Submit)))
	mux.HandleFunc("PATCH "+base+"/{id}", authMiddleware.RequireAuth(connMiddleware(h.Edit)))
	mux.HandleFunc("POST "+base+"/{id}/approve", authMiddleware.RequireAuth(connMiddleware(h.Approve)))
	mux.HandleFunc("POST "+base+"/{id}/reject", authMiddleware.RequireAuth(connMiddleware(h.Reject)))
}

// List handles GET /api/pending?limit=
func (h *ModerationHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.moderationService.ListPending(r.Context(), parseLimit(r))
	if err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}
	if items == nil {
		items = []*models.PendingWord{}
	}

	response := PendingListResponse{Items: items, Total: len(items)}
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: response}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Counts handles GET /api/pending/counts
func (h *ModerationHandler) Counts(w http.ResponseWriter, r *http.Request) {
	counts, err := h.moderationService.CountPending(r.Context())
	if err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: PendingCountsResponse{Counts: counts}}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Submit handles POST /api/pending
func (h *ModerationHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req services.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	pw, err := h.moderationService.Submit(r.Context(), &req)
	if err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusCreated, ApiResponse{Success: true, Data: pw}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Edit handles PATCH /api/pending/{id}. The body is a flat JSON object or a
// form; both are reduced to field name -> string value.
func (h *ModerationHandler) Edit(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseEnvelopeID(w, r, h.logger)
	if !ok {
		return
	}

	fields, err := readEditFields(r)
	if err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := h.moderationService.Edit(r.Context(), id, fields); err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}
	h.writeOK(w)
}

// Approve handles POST /api/pending/{id}/approve
func (h *ModerationHandler) Approve(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseEnvelopeID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.moderationService.Approve(r.Context(), id); err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}
	h.writeOK(w)
}

// Reject handles POST /api/pending/{id}/reject
func (h *ModerationHandler) Reject(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseEnvelopeID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.moderationService.Reject(r.Context(), id); err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}
	h.writeOK(w)
}

// writeOK is the response for mutations, including silent no-ops.
func (h *ModerationHandler) writeOK(w http.ResponseWriter) {
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func readEditFields(r *http.Request) (map[string]string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/x-www-form-urlencoded" || mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(1 << 20); err != nil && err != http.ErrNotMultipart {
			return nil, err
		}
		fields := make(map[string]string, len(r.PostForm))
		for key, values := range r.PostForm {
			if len(values) > 0 {
				fields[key] = values[0]
			}
		}
		return fields, nil
	}

	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		return nil, err
	}
	fields := make(map[string]string, len(raw))
	for key, value := range raw {
		var s string
		if err := json.Unmarshal(value, &s); err == nil {
			fields[key] = s
			continue
		}
		if v := strings.TrimSpace(string(value)); v != "null" {
			fields[key] = v
		}
	}
	return fields, nil
}
