package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"campus-auth/internal/service"
	"campus-auth/internal/token"

	"github.com/go-chi/chi/v5"
)

// AnalyticsHandler serves aggregate stats and audit search over the recorded
// event trail. Both endpoints require a valid token.
type AnalyticsHandler struct {
	analytics *service.AnalyticsService
	signer    *token.Signer
	logger    *zap.Logger
}

func NewAnalyticsHandler(analytics *service.AnalyticsService, signer *token.Signer, logger *zap.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: analytics, signer: signer, logger: logger}
}

func (h *AnalyticsHandler) RegisterRoutes(router chi.Router) {
	router.Group(func(r chi.Router) {
		r.Use(JWTMiddleware(h.signer, h.logger))
		r.Get("/analytics/auth", h.Stats)
		r.Get("/audit/events", h.AuditEvents)
	})
}

func (h *AnalyticsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	hours, _ := strconv.Atoi(r.URL.Query().Get("hours"))

	stats, err := h.analytics.Stats(r.Context(), hours)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, successResponse(stats, "OK"))
}

func (h *AnalyticsHandler) AuditEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))

	var since time.Time
	if raw := q.Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			h.respondJSONStatus(w, http.StatusBadRequest,
				errorResponse(err, "since must be RFC3339"))
			return
		}
		since = parsed
	}

	found, err := h.analytics.AuditEvents(r.Context(), q.Get("type"), q.Get("email"), since, limit)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, successResponse(found, "OK"))
}

func (h *AnalyticsHandler) respondJSON(w http.ResponseWriter, resp Response) {
	h.respondJSONStatus(w, http.StatusOK, resp)
}

func (h *AnalyticsHandler) respondJSONStatus(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("failed to encode JSON response", zap.Error(err))
	}
}

func (h *AnalyticsHandler) respondError(w http.ResponseWriter, err error) {
	h.logger.Warn("analytics request failed", zap.Error(err))
	h.respondJSONStatus(w, http.StatusInternalServerError,
		errorResponse(err, "Failed to query event trail"))
}
