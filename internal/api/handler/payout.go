package handler

import (
	"encoding/json"
	"net/http"

	"github.com/ayo6706/creator-payouts/internal/observability"
	"github.com/ayo6706/creator-payouts/internal/service"
)

// PayoutHandler exposes the payout request lifecycle.
type PayoutHandler struct {
	payoutSvc *service.PayoutService
}

func NewPayoutHandler(payoutSvc *service.PayoutService) *PayoutHandler {
	return &PayoutHandler{payoutSvc: payoutSvc}
}

type requestPayoutRequest struct {
	AmountMicros   int64  `json:"amount_micros"`
	Currency       string `json:"currency,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// HandleRequestPayout handles POST /v1/payouts. The idempotency key may come
// from the body or the Idempotency-Key header; the body wins when both are set.
func (h *PayoutHandler) HandleRequestPayout(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-token-claims", err.Error())
		return
	}

	var req requestPayoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "invalid JSON body")
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = r.Header.Get("Idempotency-Key")
	}

	payout, err := h.payoutSvc.RequestPayout(r.Context(), service.RequestPayoutInput{
		CreatorID:      actorID,
		AmountMicros:   req.AmountMicros,
		Currency:       req.Currency,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		if isValidation(err) {
			observability.IncrementPayoutRequest("invalid")
			RespondError(w, r, http.StatusBadRequest, "payouts/invalid-request", err.Error())
			return
		}
		observability.IncrementPayoutRequest("rejected")
		respondServiceError(w, r, err)
		return
	}

	observability.IncrementPayoutRequest("accepted")
	RespondJSON(w, http.StatusCreated, payout)
}

// HandleGetPayout handles GET /v1/payouts/{id}, returning the request plus
// its status history.
func (h *PayoutHandler) HandleGetPayout(w http.ResponseWriter, r *http.Request) {
	payoutID, err := pathUUID(r, "id")
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-id", "invalid payout id")
		return
	}

	actorID, isAdmin, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-token-claims", err.Error())
		return
	}

	view, err := h.payoutSvc.GetPayout(r.Context(), payoutID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if !isAdmin && view.Payout.CreatorID != actorID {
		RespondError(w, r, http.StatusNotFound, "payouts/not-found", "payout request not found")
		return
	}

	RespondJSON(w, http.StatusOK, view)
}

// HandleCancelPayout handles POST /v1/payouts/{id}/cancel.
func (h *PayoutHandler) HandleCancelPayout(w http.ResponseWriter, r *http.Request) {
	payoutID, err := pathUUID(r, "id")
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-id", "invalid payout id")
		return
	}

	actorID, isAdmin, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-token-claims", err.Error())
		return
	}

	view, err := h.payoutSvc.GetPayout(r.Context(), payoutID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if !isAdmin && view.Payout.CreatorID != actorID {
		RespondError(w, r, http.StatusNotFound, "payouts/not-found", "payout request not found")
		return
	}

	payout, err := h.payoutSvc.Cancel(r.Context(), payoutID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	RespondJSON(w, http.StatusOK, payout)
}
