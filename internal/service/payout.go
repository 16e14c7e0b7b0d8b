package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ayo6706/creator-payouts/internal/domain"
	"github.com/ayo6706/creator-payouts/internal/models"
	"github.com/ayo6706/creator-payouts/internal/provider"
	"github.com/ayo6706/creator-payouts/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultProviderTimeout = 10 * time.Second

// EligibilityError is returned by RequestPayout when the gate rejects the
// request. Handlers map it to a 422 with the full reason list.
type EligibilityError struct {
	Result EligibilityResult
}

func (e *EligibilityError) Error() string {
	return "payout not eligible: " + strings.Join(e.Result.Reasons, ", ")
}

// ErrCancelNotAllowed is returned when cancellation is requested after the
// payout left PENDING.
var ErrCancelNotAllowed = errors.New("payout can only be cancelled while pending")

// PayoutService orchestrates withdrawal requests: idempotency, eligibility,
// reservation, provider dispatch, and cancellation. Status changes after
// dispatch belong to the reconciler.
type PayoutService struct {
	store           QueryStore
	eligibility     *EligibilityService
	router          *Router
	providers       *provider.Registry
	providerTimeout time.Duration
}

func NewPayoutService(store QueryStore, eligibility *EligibilityService, router *Router, providers *provider.Registry, providerTimeout time.Duration) *PayoutService {
	if providerTimeout <= 0 {
		providerTimeout = defaultProviderTimeout
	}
	return &PayoutService{
		store:           store,
		eligibility:     eligibility,
		router:          router,
		providers:       providers,
		providerTimeout: providerTimeout,
	}
}

// RequestPayoutInput is one withdrawal attempt. IdempotencyKey is required;
// replaying the same key returns the original payout without re-executing.
type RequestPayoutInput struct {
	CreatorID      uuid.UUID
	AmountMicros   int64
	Currency       string
	IdempotencyKey string
}

func (in *RequestPayoutInput) normalize() error {
	in.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	in.IdempotencyKey = strings.TrimSpace(in.IdempotencyKey)
	if in.CreatorID == uuid.Nil {
		return validationf("creator_id is required")
	}
	if in.AmountMicros <= 0 {
		return validationf("invalid amount: %d", in.AmountMicros)
	}
	if in.IdempotencyKey == "" {
		return validationf("idempotency_key is required")
	}
	return nil
}

// PayoutView is a payout request together with its status history.
type PayoutView struct {
	Payout  models.PayoutRequest `json:"payout"`
	History []models.StatusEvent `json:"history"`
}

// RequestPayout runs the full request path. Exactly one payout row exists per
// idempotency key no matter how many times the key is replayed or how the
// replays interleave.
func (s *PayoutService) RequestPayout(ctx context.Context, in RequestPayoutInput) (*models.PayoutRequest, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}

	if existing, err := s.store.Queries().GetPayoutByIdempotencyKey(ctx, in.IdempotencyKey); err == nil {
		zap.L().Info("payout request replayed",
			zap.String("idempotency_key", in.IdempotencyKey),
			zap.String("payout_id", existing.ID.String()),
		)
		return &existing, nil
	} else if !errors.Is(err, models.ErrPayoutNotFound) {
		return nil, err
	}

	result, err := s.eligibility.Check(ctx, in.CreatorID, in.AmountMicros, in.Currency)
	if err != nil {
		return nil, err
	}
	if !result.Eligible {
		return nil, &EligibilityError{Result: result}
	}

	ledger, err := s.store.Queries().GetLedger(ctx, in.CreatorID)
	if err != nil {
		return nil, err
	}

	payout := models.PayoutRequest{
		ID:             uuid.New(),
		CreatorID:      in.CreatorID,
		AmountMicros:   in.AmountMicros,
		Currency:       ledger.Currency,
		Status:         domain.PayoutStatusPending,
		IdempotencyKey: in.IdempotencyKey,
	}

	// Reserving and inserting in one transaction means a lost idempotency
	// race rolls the reservation back with the insert.
	err = s.store.RunInTx(ctx, func(q repository.Querier) error {
		if err := reserveFunds(ctx, q, in.CreatorID, in.AmountMicros); err != nil {
			return err
		}
		if err := q.InsertPayout(ctx, payout); err != nil {
			return err
		}
		return appendStatusEvent(ctx, q, payout.ID, "", domain.PayoutStatusPending, "payout requested")
	})
	switch {
	case errors.Is(err, models.ErrDuplicateKey):
		existing, err := s.store.Queries().GetPayoutByIdempotencyKey(ctx, in.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		return &existing, nil
	case errors.Is(err, models.ErrInsufficientBalance):
		// A concurrent reserve won between the eligibility check and here.
		result.Eligible = false
		result.Reasons = append(result.Reasons, domain.ReasonInsufficientBalance)
		return nil, &EligibilityError{Result: result}
	case err != nil:
		return nil, err
	}

	return s.dispatch(ctx, payout)
}

// dispatch routes the reserved payout and hands it to the provider. Every
// exit leaves the payout in a defined state: PROCESSING on acceptance or
// timeout, FAILED (with the reservation released) on any rejection.
func (s *PayoutService) dispatch(ctx context.Context, payout models.PayoutRequest) (*models.PayoutRequest, error) {
	bank, err := s.store.Queries().GetBankAccount(ctx, payout.CreatorID)
	if err != nil {
		return nil, err
	}

	route, err := s.router.Resolve(bank.Country, bank.Currency)
	if err != nil {
		return s.failPayout(ctx, payout, "no_route", err.Error())
	}
	adapter, err := s.providers.Get(route.ProviderID)
	if err != nil {
		return s.failPayout(ctx, payout, "no_route", err.Error())
	}

	pctx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	defer cancel()

	quote, err := adapter.GetQuote(pctx, payout.Currency, route.TargetCurrency, payout.AmountMicros)
	if err != nil {
		// No transfer exists yet, so failing here is always safe.
		return s.failProviderError(ctx, payout, err)
	}

	recipientID, err := s.resolveRecipient(pctx, adapter, bank)
	if err != nil {
		return s.failProviderError(ctx, payout, err)
	}

	transfer, err := adapter.CreateTransfer(pctx, recipientID, quote.ID, payout.ID.String())
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			// The transfer may exist at the provider. Hold PROCESSING with
			// no transfer id; the reconciliation sweep resolves it by
			// reference.
			return s.markProcessing(ctx, payout, repository.MarkPayoutProcessingParams{
				ID:                  payout.ID,
				ProviderID:          route.ProviderID,
				ExternalRecipientID: strPtr(recipientID),
				ExchangeRate:        &quote.Rate,
				TargetAmountMicros:  &quote.TargetAmountMicros,
				TargetCurrency:      strPtr(route.TargetCurrency),
				ProviderFeeMicros:   &quote.FeeMicros,
			}, "provider call timed out, awaiting reconciliation")
		}
		return s.failProviderError(ctx, payout, err)
	}

	return s.markProcessing(ctx, payout, repository.MarkPayoutProcessingParams{
		ID:                  payout.ID,
		ProviderID:          route.ProviderID,
		ExternalTransferID:  strPtr(transfer.ID),
		ExternalRecipientID: strPtr(recipientID),
		ExchangeRate:        &quote.Rate,
		TargetAmountMicros:  &quote.TargetAmountMicros,
		TargetCurrency:      strPtr(route.TargetCurrency),
		ProviderFeeMicros:   &quote.FeeMicros,
	}, "transfer accepted by provider")
}

// resolveRecipient reuses the cached provider recipient id or registers the
// bank account and caches the result.
func (s *PayoutService) resolveRecipient(ctx context.Context, adapter provider.Adapter, bank models.BankAccountRecord) (string, error) {
	if bank.ExternalRecipientID != nil && *bank.ExternalRecipientID != "" {
		return *bank.ExternalRecipientID, nil
	}

	recipientID, err := adapter.CreateRecipient(ctx, provider.BankDetails{
		Country:     bank.Country,
		Currency:    bank.Currency,
		AccountName: bank.AccountName,
		AccountRef:  bank.AccountRef,
	})
	if err != nil {
		return "", err
	}

	if err := s.store.Queries().SetBankAccountRecipient(ctx, bank.CreatorID, recipientID); err != nil {
		// Cache miss only; the next payout re-registers. Providers
		// deduplicate recipients on account details.
		zap.L().Warn("failed to cache provider recipient id",
			zap.String("creator_id", bank.CreatorID.String()),
			zap.Error(err),
		)
	}
	return recipientID, nil
}

func (s *PayoutService) markProcessing(ctx context.Context, payout models.PayoutRequest, params repository.MarkPayoutProcessingParams, note string) (*models.PayoutRequest, error) {
	err := s.store.RunInTx(ctx, func(q repository.Querier) error {
		rows, err := q.MarkPayoutProcessing(ctx, params)
		if err != nil {
			return err
		}
		if err := requireExactlyOne(rows, "mark payout processing"); err != nil {
			return err
		}
		return appendStatusEvent(ctx, q, payout.ID, domain.PayoutStatusPending, domain.PayoutStatusProcessing, note)
	})
	if err != nil {
		return nil, err
	}

	updated, err := s.store.Queries().GetPayout(ctx, payout.ID)
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// failProviderError classifies a provider error and fails the payout.
// Transport failures are recorded as retryable (the caller may retry with a
// new idempotency key); rejections are terminal.
func (s *PayoutService) failProviderError(ctx context.Context, payout models.PayoutRequest, err error) (*models.PayoutRequest, error) {
	var rejection *provider.RejectionError
	if errors.As(err, &rejection) {
		return s.failPayout(ctx, payout, rejection.Code, rejection.Message)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return s.failPayout(ctx, payout, domain.ErrCodeProviderTimeout, err.Error())
	}
	return s.failPayout(ctx, payout, domain.ErrCodeProviderUnavailable, err.Error())
}

// failPayout releases the reservation and records the failure atomically.
func (s *PayoutService) failPayout(ctx context.Context, payout models.PayoutRequest, code, message string) (*models.PayoutRequest, error) {
	now := time.Now().UTC()
	err := s.store.RunInTx(ctx, func(q repository.Querier) error {
		if err := releaseFunds(ctx, q, payout.CreatorID, payout.AmountMicros); err != nil {
			return err
		}
		rows, err := q.SetPayoutStatus(ctx, repository.SetPayoutStatusParams{
			ID:           payout.ID,
			Status:       domain.PayoutStatusFailed,
			ErrorCode:    strPtr(code),
			ErrorMessage: strPtr(message),
			FailedAt:     &now,
		})
		if err != nil {
			return err
		}
		if err := requireExactlyOne(rows, "fail payout"); err != nil {
			return err
		}
		return appendStatusEvent(ctx, q, payout.ID, payout.Status, domain.PayoutStatusFailed, message)
	})
	if err != nil {
		return nil, err
	}

	zap.L().Warn("payout failed",
		zap.String("payout_id", payout.ID.String()),
		zap.String("error_code", code),
		zap.String("error_message", message),
	)

	updated, err := s.store.Queries().GetPayout(ctx, payout.ID)
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// GetPayout returns the payout with its full status history.
func (s *PayoutService) GetPayout(ctx context.Context, id uuid.UUID) (*PayoutView, error) {
	queries := s.store.Queries()
	payout, err := queries.GetPayout(ctx, id)
	if err != nil {
		return nil, err
	}
	history, err := queries.ListStatusEvents(ctx, id)
	if err != nil {
		return nil, err
	}
	return &PayoutView{Payout: payout, History: history}, nil
}

// Cancel aborts a payout that has not been dispatched. Once the provider has
// been contacted the outcome belongs to the reconciler.
func (s *PayoutService) Cancel(ctx context.Context, id uuid.UUID) (*models.PayoutRequest, error) {
	err := s.store.RunInTx(ctx, func(q repository.Querier) error {
		payout, err := q.GetPayoutForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if payout.Status != domain.PayoutStatusPending {
			return ErrCancelNotAllowed
		}
		if err := releaseFunds(ctx, q, payout.CreatorID, payout.AmountMicros); err != nil {
			return err
		}
		rows, err := q.SetPayoutStatus(ctx, repository.SetPayoutStatusParams{
			ID:     id,
			Status: domain.PayoutStatusCancelled,
		})
		if err != nil {
			return err
		}
		if err := requireExactlyOne(rows, "cancel payout"); err != nil {
			return err
		}
		return appendStatusEvent(ctx, q, id, domain.PayoutStatusPending, domain.PayoutStatusCancelled, "cancelled by creator")
	})
	if err != nil {
		return nil, err
	}

	payout, err := s.store.Queries().GetPayout(ctx, id)
	if err != nil {
		return nil, err
	}
	return &payout, nil
}
