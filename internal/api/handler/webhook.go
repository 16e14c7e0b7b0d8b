package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/ayo6706/creator-payouts/internal/observability"
	"github.com/ayo6706/creator-payouts/internal/provider"
	"github.com/ayo6706/creator-payouts/internal/queue"
	"github.com/ayo6706/creator-payouts/internal/service"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// WebhookHandler ingests provider transfer notifications. Events are verified
// and acknowledged immediately, then applied asynchronously with per-transfer
// ordering; events for different transfers never wait on each other.
type WebhookHandler struct {
	providers     *provider.Registry
	reconciler    *service.ReconcilerService
	dispatcher    *queue.Dispatcher
	baseCtx       context.Context
	skipSignature bool
}

func NewWebhookHandler(baseCtx context.Context, providers *provider.Registry, reconciler *service.ReconcilerService, dispatcher *queue.Dispatcher, skipSignature bool) *WebhookHandler {
	return &WebhookHandler{
		providers:     providers,
		reconciler:    reconciler,
		dispatcher:    dispatcher,
		baseCtx:       baseCtx,
		skipSignature: skipSignature,
	}
}

type webhookPayload struct {
	TransferID string `json:"transfer_id"`
	Status     string `json:"status"`
	Reason     string `json:"reason,omitempty"`
}

// HandleProviderWebhook handles POST /v1/webhooks/{provider}.
func (h *WebhookHandler) HandleProviderWebhook(w http.ResponseWriter, r *http.Request) {
	providerID := chi.URLParam(r, "provider")
	adapter, err := h.providers.Get(providerID)
	if err != nil {
		RespondError(w, r, http.StatusNotFound, "webhooks/unknown-provider", "unknown provider")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "failed to read request body")
		return
	}

	if !h.skipSignature {
		signature := r.Header.Get("X-Webhook-Signature")
		if !adapter.VerifyWebhookSignature(body, signature) {
			observability.IncrementWebhookEvent(providerID, "invalid_signature")
			RespondError(w, r, http.StatusUnauthorized, "webhooks/invalid-signature", "invalid signature")
			return
		}
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil || payload.TransferID == "" || payload.Status == "" {
		RespondError(w, r, http.StatusBadRequest, "webhooks/invalid-payload", "transfer_id and status are required")
		return
	}

	event := service.WebhookEvent{
		ProviderID: providerID,
		TransferID: payload.TransferID,
		Status:     payload.Status,
		Reason:     payload.Reason,
	}

	// Keying on transfer id serializes events per transfer in arrival order.
	err = h.dispatcher.Dispatch(payload.TransferID, func() {
		h.apply(event)
	})
	switch {
	case errors.Is(err, queue.ErrQueueFull):
		observability.IncrementWebhookEvent(providerID, "queue_full")
		RespondError(w, r, http.StatusServiceUnavailable, "webhooks/overloaded", "event queue is full, retry later")
		return
	case err != nil:
		RespondError(w, r, http.StatusServiceUnavailable, "webhooks/unavailable", "webhook processing is shutting down")
		return
	}

	RespondJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (h *WebhookHandler) apply(event service.WebhookEvent) {
	outcome, err := h.reconciler.ApplyEvent(h.baseCtx, event)
	if err != nil {
		observability.IncrementWebhookEvent(event.ProviderID, "error")
		zap.L().Error("webhook event failed",
			zap.String("provider", event.ProviderID),
			zap.String("transfer_id", event.TransferID),
			zap.String("status", event.Status),
			zap.Error(err),
		)
		return
	}
	observability.IncrementWebhookEvent(event.ProviderID, outcome)
}
