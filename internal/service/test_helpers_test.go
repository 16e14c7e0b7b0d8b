package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ayo6706/creator-payouts/internal/domain"
	"github.com/ayo6706/creator-payouts/internal/models"
	"github.com/ayo6706/creator-payouts/internal/provider"
	"github.com/ayo6706/creator-payouts/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// stubProvider is a deterministic Adapter for service tests. Errors are
// injected per call site; transfers are tracked by reference like a real
// provider so the sweep path can be driven.
type stubProvider struct {
	mu           sync.Mutex
	id           string
	quoteErr     error
	recipientErr error
	transferErr  error
	statusErr    error
	transfers    map[string]provider.Transfer // by caller reference
}

func newStubProvider(id string) *stubProvider {
	return &stubProvider{id: id, transfers: make(map[string]provider.Transfer)}
}

func (s *stubProvider) ID() string { return s.id }

func (s *stubProvider) GetQuote(_ context.Context, _, _ string, amountMicros int64) (provider.Quote, error) {
	if s.quoteErr != nil {
		return provider.Quote{}, s.quoteErr
	}
	return provider.Quote{
		ID:                 "QUOTE-STUB",
		Rate:               decimal.NewFromInt(1),
		TargetAmountMicros: amountMicros,
		FeeMicros:          0,
	}, nil
}

func (s *stubProvider) CreateRecipient(_ context.Context, _ provider.BankDetails) (string, error) {
	if s.recipientErr != nil {
		return "", s.recipientErr
	}
	return "RCP-STUB", nil
}

func (s *stubProvider) CreateTransfer(_ context.Context, _, _, reference string) (provider.Transfer, error) {
	if s.transferErr != nil {
		return provider.Transfer{}, s.transferErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.transfers[reference]; ok {
		return t, nil
	}
	t := provider.Transfer{
		ID:     "TRF-" + uuid.NewString(),
		Status: provider.TransferProcessing,
	}
	s.transfers[reference] = t
	return t, nil
}

func (s *stubProvider) TransferStatus(_ context.Context, reference string) (provider.Transfer, error) {
	if s.statusErr != nil {
		return provider.Transfer{}, s.statusErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transfers[reference]
	if !ok {
		return provider.Transfer{}, provider.ErrTransferNotFound
	}
	return t, nil
}

func (s *stubProvider) VerifyWebhookSignature(_ []byte, _ string) bool { return true }

func (s *stubProvider) setTransfer(reference string, t provider.Transfer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transfers[reference] = t
}

func (s *stubProvider) dropTransfer(reference string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.transfers, reference)
}

// testEnv wires the full service stack over the in-memory store.
type testEnv struct {
	store      *repository.MemoryStore
	adapter    *stubProvider
	ledger     *LedgerService
	bank       *BankAccountService
	elig       *EligibilityService
	payouts    *PayoutService
	reconciler *ReconcilerService
	sweep      *SweepService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := repository.NewMemoryStore()
	adapter := newStubProvider("stubpay")
	registry := provider.NewRegistry(adapter)
	router := NewRouter([]RouteRule{
		{Country: "US", Currency: "USD", Route: Route{ProviderID: "stubpay", TargetCurrency: "USD"}},
	})

	ledger := NewLedgerService(store)
	bank := NewBankAccountService(store)
	elig := NewEligibilityService(store, EligibilityConfig{
		MinimumsMicros: map[string]int64{"USD": 25_000_000},
		MaxConcurrent:  3,
	})
	reconciler := NewReconcilerService(store)
	payouts := NewPayoutService(store, elig, router, registry, time.Second)
	sweep := NewSweepService(store, registry, reconciler, time.Minute)

	return &testEnv{
		store:      store,
		adapter:    adapter,
		ledger:     ledger,
		bank:       bank,
		elig:       elig,
		payouts:    payouts,
		reconciler: reconciler,
		sweep:      sweep,
	}
}

func (e *testEnv) credit(t *testing.T, creatorID uuid.UUID, amountMicros int64) {
	t.Helper()
	_, err := e.ledger.RecordEarning(context.Background(), RecordEarningRequest{
		CreatorID:    creatorID,
		AmountMicros: amountMicros,
		Currency:     "USD",
		SourceType:   "tip",
		SourceRef:    uuid.NewString(),
	})
	require.NoError(t, err)
}

func (e *testEnv) verifiedBank(t *testing.T, creatorID uuid.UUID) {
	t.Helper()
	_, err := e.bank.Upsert(context.Background(), UpsertBankAccountRequest{
		CreatorID:   creatorID,
		Country:     "US",
		Currency:    "USD",
		AccountName: "Test Creator",
		AccountRef:  "ba-token-1234",
		Status:      domain.BankAccountVerified,
	})
	require.NoError(t, err)
}

// processingPayout runs the happy request path and returns the dispatched
// payout, funded and with a transfer id at the stub provider.
func (e *testEnv) processingPayout(t *testing.T, creatorID uuid.UUID, amountMicros int64) models.PayoutRequest {
	t.Helper()
	e.credit(t, creatorID, amountMicros+70_000_000)
	e.verifiedBank(t, creatorID)

	payout, err := e.payouts.RequestPayout(context.Background(), RequestPayoutInput{
		CreatorID:      creatorID,
		AmountMicros:   amountMicros,
		Currency:       "USD",
		IdempotencyKey: uuid.NewString(),
	})
	require.NoError(t, err)
	require.Equal(t, domain.PayoutStatusProcessing, payout.Status)
	require.NotNil(t, payout.ExternalTransferID)
	return *payout
}

func (e *testEnv) getLedger(t *testing.T, creatorID uuid.UUID) models.CreatorLedger {
	t.Helper()
	ledger, err := e.store.Queries().GetLedger(context.Background(), creatorID)
	require.NoError(t, err)
	return ledger
}

func (e *testEnv) getPayout(t *testing.T, id uuid.UUID) models.PayoutRequest {
	t.Helper()
	payout, err := e.store.Queries().GetPayout(context.Background(), id)
	require.NoError(t, err)
	return payout
}

func (e *testEnv) listAnomalies(t *testing.T) []models.Anomaly {
	t.Helper()
	anomalies, err := e.store.Queries().ListAnomalies(context.Background(), false, 100, 0)
	require.NoError(t, err)
	return anomalies
}
