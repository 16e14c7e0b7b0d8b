package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ayo6706/creator-payouts/internal/models"
	"github.com/ayo6706/creator-payouts/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LedgerService owns per-creator balances. Every mutation for a creator is
// serialized by the store (conditional single-row updates in Postgres, a
// store-wide mutex in memory), so concurrent reserves can never jointly
// over-reserve.
type LedgerService struct {
	store QueryStore
}

func NewLedgerService(store QueryStore) *LedgerService {
	return &LedgerService{store: store}
}

// RecordEarningRequest is an upstream revenue event crediting a creator.
type RecordEarningRequest struct {
	CreatorID    uuid.UUID
	AmountMicros int64
	Currency     string
	SourceType   string
	SourceRef    string
}

func (r *RecordEarningRequest) normalize() error {
	r.Currency = strings.ToUpper(strings.TrimSpace(r.Currency))
	r.SourceRef = strings.TrimSpace(r.SourceRef)
	r.SourceType = strings.TrimSpace(r.SourceType)
	if r.CreatorID == uuid.Nil {
		return validationf("creator_id is required")
	}
	if r.AmountMicros <= 0 {
		return validationf("invalid amount: %d", r.AmountMicros)
	}
	if r.Currency == "" {
		return validationf("currency is required")
	}
	if r.SourceRef == "" {
		return validationf("source_ref is required")
	}
	return nil
}

// RecordEarning credits total_earned and available_balance, creating the
// ledger on first credit. A replayed source_ref is acknowledged without
// crediting twice.
func (s *LedgerService) RecordEarning(ctx context.Context, req RecordEarningRequest) (*models.CreatorLedger, error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}

	err := s.store.RunInTx(ctx, func(q repository.Querier) error {
		ledger, err := q.GetLedger(ctx, req.CreatorID)
		if err != nil && !errors.Is(err, models.ErrLedgerNotFound) {
			return err
		}
		if err == nil && ledger.Currency != req.Currency {
			return validationf("currency mismatch: ledger is %s, earning is %s", ledger.Currency, req.Currency)
		}

		if err := q.InsertEarning(ctx, models.Earning{
			ID:           uuid.New(),
			CreatorID:    req.CreatorID,
			AmountMicros: req.AmountMicros,
			Currency:     req.Currency,
			SourceType:   req.SourceType,
			SourceRef:    req.SourceRef,
		}); err != nil {
			return err
		}

		return q.CreditLedger(ctx, repository.CreditLedgerParams{
			CreatorID:    req.CreatorID,
			Currency:     req.Currency,
			AmountMicros: req.AmountMicros,
		})
	})
	if errors.Is(err, models.ErrDuplicateSourceRef) {
		zap.L().Info("earning replay ignored",
			zap.String("creator_id", req.CreatorID.String()),
			zap.String("source_ref", req.SourceRef),
		)
	} else if err != nil {
		return nil, err
	}

	ledger, err := s.store.Queries().GetLedger(ctx, req.CreatorID)
	if err != nil {
		return nil, err
	}
	return &ledger, nil
}

// GetLedger returns the creator's current balances.
func (s *LedgerService) GetLedger(ctx context.Context, creatorID uuid.UUID) (*models.CreatorLedger, error) {
	ledger, err := s.store.Queries().GetLedger(ctx, creatorID)
	if err != nil {
		return nil, err
	}
	return &ledger, nil
}

// Reserve moves amount from available to pending, failing with
// ErrInsufficientBalance when available does not cover it.
func (s *LedgerService) Reserve(ctx context.Context, creatorID uuid.UUID, amountMicros int64) error {
	return s.store.RunInTx(ctx, func(q repository.Querier) error {
		return reserveFunds(ctx, q, creatorID, amountMicros)
	})
}

// Release moves amount from pending back to available (failure or
// cancellation path).
func (s *LedgerService) Release(ctx context.Context, creatorID uuid.UUID, amountMicros int64) error {
	return s.store.RunInTx(ctx, func(q repository.Querier) error {
		return releaseFunds(ctx, q, creatorID, amountMicros)
	})
}

// Finalize removes amount from pending permanently (success path).
func (s *LedgerService) Finalize(ctx context.Context, creatorID uuid.UUID, amountMicros int64) error {
	return s.store.RunInTx(ctx, func(q repository.Querier) error {
		return finalizeFunds(ctx, q, creatorID, amountMicros)
	})
}

// Tx-scoped helpers so the orchestrator and reconciler can compose ledger
// moves with payout updates in a single transaction.

func reserveFunds(ctx context.Context, q repository.Querier, creatorID uuid.UUID, amountMicros int64) error {
	if amountMicros <= 0 {
		return fmt.Errorf("invalid reserve amount: %d", amountMicros)
	}
	rows, err := q.ReserveLedgerFunds(ctx, creatorID, amountMicros)
	if err != nil {
		return err
	}
	if rows == 0 {
		return models.ErrInsufficientBalance
	}
	return nil
}

func releaseFunds(ctx context.Context, q repository.Querier, creatorID uuid.UUID, amountMicros int64) error {
	rows, err := q.ReleaseLedgerFunds(ctx, creatorID, amountMicros)
	if err != nil {
		return err
	}
	return requireExactlyOne(rows, "release reserved funds")
}

func finalizeFunds(ctx context.Context, q repository.Querier, creatorID uuid.UUID, amountMicros int64) error {
	rows, err := q.FinalizeLedgerFunds(ctx, creatorID, amountMicros)
	if err != nil {
		return err
	}
	return requireExactlyOne(rows, "finalize reserved funds")
}

// clawbackFunds debits available for a refund. When available does not cover
// the refund the debit is floored at zero and the shortfall is returned for
// anomaly reporting; the ledger is never driven negative.
func clawbackFunds(ctx context.Context, q repository.Querier, creatorID uuid.UUID, amountMicros int64) (applied int64, err error) {
	rows, err := q.DebitLedgerAvailable(ctx, creatorID, amountMicros)
	if err != nil {
		return 0, err
	}
	if rows == 1 {
		return amountMicros, nil
	}

	ledger, err := q.GetLedger(ctx, creatorID)
	if err != nil {
		return 0, err
	}
	if ledger.AvailableMicros <= 0 {
		return 0, nil
	}
	rows, err = q.DebitLedgerAvailable(ctx, creatorID, ledger.AvailableMicros)
	if err != nil {
		return 0, err
	}
	if err := requireExactlyOne(rows, "zero-floor refund debit"); err != nil {
		return 0, err
	}
	return ledger.AvailableMicros, nil
}
