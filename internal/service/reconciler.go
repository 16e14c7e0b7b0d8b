package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ayo6706/creator-payouts/internal/domain"
	"github.com/ayo6706/creator-payouts/internal/models"
	"github.com/ayo6706/creator-payouts/internal/provider"
	"github.com/ayo6706/creator-payouts/internal/repository"
	"go.uber.org/zap"
)

// Reconciliation outcomes, exported for webhook handler metrics.
const (
	OutcomeApplied         = "applied"
	OutcomeDuplicate       = "duplicate"
	OutcomeOutOfOrder      = "out_of_order"
	OutcomeUnknownTransfer = "unknown_transfer"
)

// WebhookEvent is a normalized provider notification about one transfer.
type WebhookEvent struct {
	ProviderID string
	TransferID string
	Status     string // provider transfer status, see provider.Transfer*
	Reason     string // optional provider-supplied detail
}

// ReconcilerService applies provider outcomes to payout requests. It is the
// only writer of post-dispatch status changes; every event is applied inside
// a single transaction with the payout row locked.
type ReconcilerService struct {
	store QueryStore
}

func NewReconcilerService(store QueryStore) *ReconcilerService {
	return &ReconcilerService{store: store}
}

func mapTransferStatus(transferStatus string) (string, error) {
	switch transferStatus {
	case provider.TransferProcessing:
		return domain.PayoutStatusProcessing, nil
	case provider.TransferCompleted:
		return domain.PayoutStatusCompleted, nil
	case provider.TransferFailed:
		return domain.PayoutStatusFailed, nil
	case provider.TransferCancelled:
		return domain.PayoutStatusCancelled, nil
	case provider.TransferRefunded:
		return domain.PayoutStatusRefunded, nil
	default:
		return "", fmt.Errorf("unknown transfer status %q", transferStatus)
	}
}

// ApplyEvent processes one webhook event. A replayed event is a logged no-op,
// an event for an impossible transition or an unknown transfer is quarantined
// as an anomaly; neither ever mutates the ledger.
func (s *ReconcilerService) ApplyEvent(ctx context.Context, event WebhookEvent) (string, error) {
	target, err := mapTransferStatus(event.Status)
	if err != nil {
		return "", err
	}
	if event.TransferID == "" {
		return "", errors.New("transfer id is required")
	}

	outcome := OutcomeApplied
	err = s.store.RunInTx(ctx, func(q repository.Querier) error {
		payout, err := q.GetPayoutByTransferIDForUpdate(ctx, event.TransferID)
		if errors.Is(err, models.ErrPayoutNotFound) {
			outcome = OutcomeUnknownTransfer
			return insertAnomaly(ctx, q, models.Anomaly{
				TransferID: event.TransferID,
				Kind:       domain.AnomalyUnknownTransfer,
				Detail:     fmt.Sprintf("no payout for transfer %s (provider %s, status %s)", event.TransferID, event.ProviderID, event.Status),
			})
		}
		if err != nil {
			return err
		}

		if payout.Status == target {
			outcome = OutcomeDuplicate
			zap.L().Info("duplicate webhook ignored",
				zap.String("payout_id", payout.ID.String()),
				zap.String("transfer_id", event.TransferID),
				zap.String("status", target),
			)
			return nil
		}

		if !canTransition(payout.Status, target) {
			outcome = OutcomeOutOfOrder
			return insertAnomaly(ctx, q, models.Anomaly{
				PayoutID:   &payout.ID,
				TransferID: event.TransferID,
				Kind:       domain.AnomalyOutOfOrder,
				Detail:     fmt.Sprintf("event %s arrived while payout is %s", target, payout.Status),
			})
		}

		return s.applyTransition(ctx, q, payout, target, event)
	})
	if err != nil {
		return "", err
	}

	if outcome == OutcomeApplied {
		zap.L().Info("webhook applied",
			zap.String("transfer_id", event.TransferID),
			zap.String("status", target),
		)
	}
	return outcome, nil
}

// applyTransition performs the ledger move and status change for one
// validated transition. Callers hold the payout row lock.
func (s *ReconcilerService) applyTransition(ctx context.Context, q repository.Querier, payout models.PayoutRequest, target string, event WebhookEvent) error {
	now := time.Now().UTC()
	params := repository.SetPayoutStatusParams{ID: payout.ID, Status: target}
	note := event.Reason

	switch target {
	case domain.PayoutStatusCompleted:
		if err := finalizeFunds(ctx, q, payout.CreatorID, payout.AmountMicros); err != nil {
			return err
		}
		params.CompletedAt = &now
		if note == "" {
			note = "transfer settled"
		}

	case domain.PayoutStatusFailed:
		if err := releaseFunds(ctx, q, payout.CreatorID, payout.AmountMicros); err != nil {
			return err
		}
		params.ErrorCode = strPtr("provider_failed")
		if event.Reason != "" {
			params.ErrorMessage = strPtr(event.Reason)
		}
		params.FailedAt = &now
		if note == "" {
			note = "transfer failed at provider"
		}

	case domain.PayoutStatusCancelled:
		if err := releaseFunds(ctx, q, payout.CreatorID, payout.AmountMicros); err != nil {
			return err
		}
		if note == "" {
			note = "transfer cancelled at provider"
		}

	case domain.PayoutStatusRefunded:
		applied, err := clawbackFunds(ctx, q, payout.CreatorID, payout.AmountMicros)
		if err != nil {
			return err
		}
		if applied < payout.AmountMicros {
			if err := insertAnomaly(ctx, q, models.Anomaly{
				PayoutID:   &payout.ID,
				TransferID: event.TransferID,
				Kind:       domain.AnomalyRefundExceedsAvailable,
				Detail:     fmt.Sprintf("refund of %d micros exceeded available balance, debited %d", payout.AmountMicros, applied),
			}); err != nil {
				return err
			}
		}
		if note == "" {
			note = "transfer refunded"
		}

	case domain.PayoutStatusProcessing:
		// No ledger effect; funds stay reserved.
		if note == "" {
			note = "transfer processing at provider"
		}
	}

	rows, err := q.SetPayoutStatus(ctx, params)
	if err != nil {
		return err
	}
	if err := requireExactlyOne(rows, "apply reconciled status"); err != nil {
		return err
	}
	return appendStatusEvent(ctx, q, payout.ID, payout.Status, target, note)
}
