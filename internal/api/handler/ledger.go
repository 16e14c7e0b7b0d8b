package handler

import (
	"net/http"
	"strconv"

	"github.com/ayo6706/creator-payouts/internal/service"
)

// LedgerHandler exposes creator balances and the eligibility preview.
type LedgerHandler struct {
	ledgerSvc      *service.LedgerService
	eligibilitySvc *service.EligibilityService
}

func NewLedgerHandler(ledgerSvc *service.LedgerService, eligibilitySvc *service.EligibilityService) *LedgerHandler {
	return &LedgerHandler{ledgerSvc: ledgerSvc, eligibilitySvc: eligibilitySvc}
}

// HandleGetLedger handles GET /v1/creators/{id}/ledger.
func (h *LedgerHandler) HandleGetLedger(w http.ResponseWriter, r *http.Request) {
	creatorID, err := pathUUID(r, "id")
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-id", "invalid creator id")
		return
	}

	actorID, isAdmin, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-token-claims", err.Error())
		return
	}
	if !isAdmin && actorID != creatorID {
		RespondError(w, r, http.StatusForbidden, "auth/insufficient-permissions", "cannot read another creator's ledger")
		return
	}

	ledger, err := h.ledgerSvc.GetLedger(r.Context(), creatorID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	RespondJSON(w, http.StatusOK, ledger)
}

// HandleCheckEligibility handles GET /v1/creators/{id}/eligibility. It is a
// read-only preview of the gate the orchestrator applies on submission.
func (h *LedgerHandler) HandleCheckEligibility(w http.ResponseWriter, r *http.Request) {
	creatorID, err := pathUUID(r, "id")
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-id", "invalid creator id")
		return
	}

	actorID, isAdmin, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-token-claims", err.Error())
		return
	}
	if !isAdmin && actorID != creatorID {
		RespondError(w, r, http.StatusForbidden, "auth/insufficient-permissions", "cannot check another creator's eligibility")
		return
	}

	amount, err := strconv.ParseInt(r.URL.Query().Get("amount_micros"), 10, 64)
	if err != nil || amount <= 0 {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-amount", "amount_micros must be a positive integer")
		return
	}

	result, err := h.eligibilitySvc.Check(r.Context(), creatorID, amount, r.URL.Query().Get("currency"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	RespondJSON(w, http.StatusOK, result)
}
