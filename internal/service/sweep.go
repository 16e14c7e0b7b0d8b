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

const (
	defaultStuckAfter     = 15 * time.Minute
	defaultSweepBatchSize = 100
)

// SweepService is the safety net for lost webhooks and timed-out provider
// calls. It polls the provider by reference (the payout id) for payouts that
// have sat in PROCESSING too long and feeds what it learns to the reconciler.
type SweepService struct {
	store      QueryStore
	providers  *provider.Registry
	reconciler *ReconcilerService
	stuckAfter time.Duration
	batchSize  int32
}

func NewSweepService(store QueryStore, providers *provider.Registry, reconciler *ReconcilerService, stuckAfter time.Duration) *SweepService {
	if stuckAfter <= 0 {
		stuckAfter = defaultStuckAfter
	}
	return &SweepService{
		store:      store,
		providers:  providers,
		reconciler: reconciler,
		stuckAfter: stuckAfter,
		batchSize:  defaultSweepBatchSize,
	}
}

// SweepOnce resolves one batch of stuck payouts. Per-payout failures are
// logged and skipped so one bad row cannot stall the batch.
func (s *SweepService) SweepOnce(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-s.stuckAfter)
	stuck, err := s.store.Queries().ListStuckProcessingPayouts(ctx, cutoff, s.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list stuck payouts: %w", err)
	}

	resolved := 0
	for _, payout := range stuck {
		if err := s.resolve(ctx, payout); err != nil {
			zap.L().Error("sweep failed to resolve payout",
				zap.String("payout_id", payout.ID.String()),
				zap.Error(err),
			)
			continue
		}
		resolved++
	}
	return resolved, nil
}

func (s *SweepService) resolve(ctx context.Context, payout models.PayoutRequest) error {
	adapter, err := s.providers.Get(payout.ProviderID)
	if err != nil {
		return err
	}

	transfer, err := adapter.TransferStatus(ctx, payout.ID.String())
	if errors.Is(err, provider.ErrTransferNotFound) {
		return s.handleMissingTransfer(ctx, payout)
	}
	if err != nil {
		return err
	}

	// A create call that timed out before returning an id is backfilled here
	// so later webhooks for the transfer match the payout.
	if payout.ExternalTransferID == nil {
		if _, err := s.store.Queries().SetPayoutTransferID(ctx, payout.ID, transfer.ID); err != nil {
			return err
		}
	}

	outcome, err := s.reconciler.ApplyEvent(ctx, WebhookEvent{
		ProviderID: payout.ProviderID,
		TransferID: transfer.ID,
		Status:     transfer.Status,
		Reason:     "resolved by reconciliation sweep",
	})
	if err != nil {
		return err
	}
	zap.L().Info("sweep resolved payout",
		zap.String("payout_id", payout.ID.String()),
		zap.String("transfer_status", transfer.Status),
		zap.String("outcome", outcome),
	)
	return nil
}

// handleMissingTransfer deals with a provider that has no record of the
// reference. When the create call timed out before returning an id the
// transfer was never created, so the payout fails and the reservation is
// released. A provider losing a transfer it previously acknowledged is an
// anomaly and the payout is left untouched for an operator.
func (s *SweepService) handleMissingTransfer(ctx context.Context, payout models.PayoutRequest) error {
	if payout.ExternalTransferID != nil {
		zap.L().Error("provider has no record of acknowledged transfer",
			zap.String("payout_id", payout.ID.String()),
			zap.String("transfer_id", *payout.ExternalTransferID),
		)
		return insertAnomaly(ctx, s.store.Queries(), models.Anomaly{
			PayoutID:   &payout.ID,
			TransferID: *payout.ExternalTransferID,
			Kind:       domain.AnomalyProviderMissing,
			Detail:     fmt.Sprintf("provider %s has no transfer for acknowledged id %s", payout.ProviderID, *payout.ExternalTransferID),
		})
	}

	now := time.Now().UTC()
	return s.store.RunInTx(ctx, func(q repository.Querier) error {
		current, err := q.GetPayoutForUpdate(ctx, payout.ID)
		if err != nil {
			return err
		}
		if current.Status != domain.PayoutStatusProcessing {
			return nil
		}
		if err := releaseFunds(ctx, q, payout.CreatorID, payout.AmountMicros); err != nil {
			return err
		}
		rows, err := q.SetPayoutStatus(ctx, repository.SetPayoutStatusParams{
			ID:           payout.ID,
			Status:       domain.PayoutStatusFailed,
			ErrorCode:    strPtr(domain.ErrCodeProviderTimeout),
			ErrorMessage: strPtr("transfer was never created at provider"),
			FailedAt:     &now,
		})
		if err != nil {
			return err
		}
		if err := requireExactlyOne(rows, "fail unswept payout"); err != nil {
			return err
		}
		return appendStatusEvent(ctx, q, payout.ID, domain.PayoutStatusProcessing, domain.PayoutStatusFailed,
			"timed-out create never reached provider, reservation released")
	})
}
