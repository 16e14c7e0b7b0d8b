package service

import (
	"context"
	"fmt"

	"github.com/ayo6706/creator-payouts/internal/domain"
	"github.com/ayo6706/creator-payouts/internal/models"
	"github.com/ayo6706/creator-payouts/internal/observability"
	"go.uber.org/zap"
)

// IntegrityService verifies the per-creator balance equation
//
//	available + pending + sum(COMPLETED) - sum(REFUNDED) == total_earned
//
// across all ledgers. A violation means money was created or destroyed
// outside the reserve/release/finalize/clawback paths (or a zero-floored
// refund was applied, which the anomaly log explains).
type IntegrityService struct {
	store QueryStore
}

func NewIntegrityService(store QueryStore) *IntegrityService {
	return &IntegrityService{store: store}
}

// CheckOnce audits every ledger and returns how many are imbalanced.
func (s *IntegrityService) CheckOnce(ctx context.Context) (int, error) {
	queries := s.store.Queries()
	ledgers, err := queries.ListLedgers(ctx)
	if err != nil {
		return 0, fmt.Errorf("list ledgers: %w", err)
	}

	imbalanced := 0
	for _, ledger := range ledgers {
		ok, err := s.checkLedger(ctx, ledger)
		if err != nil {
			return imbalanced, err
		}
		if !ok {
			imbalanced++
		}
	}
	return imbalanced, nil
}

func (s *IntegrityService) checkLedger(ctx context.Context, ledger models.CreatorLedger) (bool, error) {
	queries := s.store.Queries()

	completed, err := queries.SumPayoutsByStatus(ctx, ledger.CreatorID, domain.PayoutStatusCompleted)
	if err != nil {
		return false, err
	}
	refunded, err := queries.SumPayoutsByStatus(ctx, ledger.CreatorID, domain.PayoutStatusRefunded)
	if err != nil {
		return false, err
	}

	got := ledger.AvailableMicros + ledger.PendingMicros + completed - refunded
	if got == ledger.TotalEarnedMicros {
		return true, nil
	}

	observability.IncrementLedgerImbalance(ledger.Currency)
	zap.L().Error("ledger balance equation violated",
		zap.String("creator_id", ledger.CreatorID.String()),
		zap.Int64("total_earned_micros", ledger.TotalEarnedMicros),
		zap.Int64("available_micros", ledger.AvailableMicros),
		zap.Int64("pending_micros", ledger.PendingMicros),
		zap.Int64("completed_micros", completed),
		zap.Int64("refunded_micros", refunded),
		zap.Int64("accounted_micros", got),
	)
	return false, nil
}
