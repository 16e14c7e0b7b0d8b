package handler

import (
	"net/http"
	"strconv"

	"github.com/ayo6706/creator-payouts/internal/models"
	"github.com/ayo6706/creator-payouts/internal/repository"
	"github.com/go-chi/chi/v5"
)

// AnomalyHandler exposes the reconciliation anomaly queue to operators.
type AnomalyHandler struct {
	queries repository.Querier
}

func NewAnomalyHandler(queries repository.Querier) *AnomalyHandler {
	return &AnomalyHandler{queries: queries}
}

// HandleListAnomalies handles GET /v1/anomalies.
func (h *AnomalyHandler) HandleListAnomalies(w http.ResponseWriter, r *http.Request) {
	onlyUnresolved := r.URL.Query().Get("unresolved") == "true"

	limit := int32(50)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.ParseInt(raw, 10, 32); err == nil && v > 0 && v <= 500 {
			limit = int32(v)
		}
	}
	offset := int32(0)
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if v, err := strconv.ParseInt(raw, 10, 32); err == nil && v >= 0 {
			offset = int32(v)
		}
	}

	anomalies, err := h.queries.ListAnomalies(r.Context(), onlyUnresolved, limit, offset)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if anomalies == nil {
		anomalies = []models.Anomaly{}
	}

	RespondJSON(w, http.StatusOK, anomalies)
}

// HandleResolveAnomaly handles POST /v1/anomalies/{id}/resolve.
func (h *AnomalyHandler) HandleResolveAnomaly(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-id", "invalid anomaly id")
		return
	}

	rows, err := h.queries.ResolveAnomaly(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if rows == 0 {
		RespondError(w, r, http.StatusNotFound, "anomalies/not-found", "anomaly not found or already resolved")
		return
	}

	RespondJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
}
