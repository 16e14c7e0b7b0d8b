package handler

import (
	"encoding/json"
	"net/http"

	"github.com/ayo6706/creator-payouts/internal/service"
	"github.com/google/uuid"
)

// EarningsHandler ingests revenue events from upstream billing systems.
type EarningsHandler struct {
	ledgerSvc *service.LedgerService
}

func NewEarningsHandler(ledgerSvc *service.LedgerService) *EarningsHandler {
	return &EarningsHandler{ledgerSvc: ledgerSvc}
}

type recordEarningRequest struct {
	CreatorID    uuid.UUID `json:"creator_id"`
	AmountMicros int64     `json:"amount_micros"`
	Currency     string    `json:"currency"`
	SourceType   string    `json:"source_type"`
	SourceRef    string    `json:"source_ref"`
}

// HandleRecordEarning handles POST /v1/earnings. Replaying a source_ref is
// acknowledged with the current ledger and no double credit.
func (h *EarningsHandler) HandleRecordEarning(w http.ResponseWriter, r *http.Request) {
	var req recordEarningRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "invalid JSON body")
		return
	}

	ledger, err := h.ledgerSvc.RecordEarning(r.Context(), service.RecordEarningRequest{
		CreatorID:    req.CreatorID,
		AmountMicros: req.AmountMicros,
		Currency:     req.Currency,
		SourceType:   req.SourceType,
		SourceRef:    req.SourceRef,
	})
	if err != nil {
		if isValidation(err) {
			RespondError(w, r, http.StatusBadRequest, "earnings/invalid-request", err.Error())
			return
		}
		respondServiceError(w, r, err)
		return
	}

	RespondJSON(w, http.StatusOK, ledger)
}
