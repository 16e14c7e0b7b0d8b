package handler

import (
	"encoding/json"
	"net/http"

	"github.com/ayo6706/creator-payouts/internal/service"
)

// BankAccountHandler manages the creator's payout destination record.
type BankAccountHandler struct {
	bankSvc *service.BankAccountService
}

func NewBankAccountHandler(bankSvc *service.BankAccountService) *BankAccountHandler {
	return &BankAccountHandler{bankSvc: bankSvc}
}

type upsertBankAccountRequest struct {
	Country     string `json:"country"`
	Currency    string `json:"currency"`
	AccountName string `json:"account_name"`
	AccountRef  string `json:"account_ref"`
	Status      string `json:"status"`
}

// HandleUpsertBankAccount handles PUT /v1/creators/{id}/bank-account. Only
// the onboarding service role may write, since verification is decided there.
func (h *BankAccountHandler) HandleUpsertBankAccount(w http.ResponseWriter, r *http.Request) {
	creatorID, err := pathUUID(r, "id")
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-id", "invalid creator id")
		return
	}

	var req upsertBankAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "invalid JSON body")
		return
	}

	record, err := h.bankSvc.Upsert(r.Context(), service.UpsertBankAccountRequest{
		CreatorID:   creatorID,
		Country:     req.Country,
		Currency:    req.Currency,
		AccountName: req.AccountName,
		AccountRef:  req.AccountRef,
		Status:      req.Status,
	})
	if err != nil {
		if isValidation(err) {
			RespondError(w, r, http.StatusBadRequest, "bank-accounts/invalid-request", err.Error())
			return
		}
		respondServiceError(w, r, err)
		return
	}

	RespondJSON(w, http.StatusOK, record)
}

// HandleGetBankAccount handles GET /v1/creators/{id}/bank-account.
func (h *BankAccountHandler) HandleGetBankAccount(w http.ResponseWriter, r *http.Request) {
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
		RespondError(w, r, http.StatusForbidden, "auth/insufficient-permissions", "cannot read another creator's bank account")
		return
	}

	record, err := h.bankSvc.Get(r.Context(), creatorID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	RespondJSON(w, http.StatusOK, record)
}
