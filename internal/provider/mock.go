package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// MockAdapter simulates an external transfer provider for development and
// tests. Transfers are acknowledged as processing; resolution arrives via
// webhooks (or the sweep, through TransferStatus).
type MockAdapter struct {
	ProviderID string
	// FailureRate is the probability (0.0-1.0) that a call fails with a
	// RequestError, simulating provider downtime.
	FailureRate float64

	hmacKey []byte

	mu        sync.Mutex
	transfers map[string]Transfer // by reference
}

func NewMockAdapter(providerID, hmacKey string) *MockAdapter {
	return &MockAdapter{
		ProviderID: providerID,
		hmacKey:    []byte(hmacKey),
		transfers:  make(map[string]Transfer),
	}
}

func (m *MockAdapter) ID() string { return m.ProviderID }

// mock mid-market rates relative to USD
var mockRates = map[string]float64{
	"USD": 1.0,
	"EUR": 0.92,
	"GBP": 0.79,
	"NGN": 1590.0,
	"INR": 83.2,
}

func (m *MockAdapter) GetQuote(ctx context.Context, sourceCurrency, targetCurrency string, amountMicros int64) (Quote, error) {
	if err := m.simulate(ctx, "get_quote"); err != nil {
		return Quote{}, err
	}

	source, ok1 := mockRates[sourceCurrency]
	target, ok2 := mockRates[targetCurrency]
	if !ok1 || !ok2 {
		return Quote{}, &RejectionError{Code: "unsupported_currency_pair", Message: fmt.Sprintf("%s -> %s", sourceCurrency, targetCurrency)}
	}

	rate := decimal.NewFromFloat(target).Div(decimal.NewFromFloat(source))
	targetAmount := decimal.NewFromInt(amountMicros).Mul(rate).IntPart()
	// flat 0.45% fee in source currency, mirroring typical remittance pricing
	fee := decimal.NewFromInt(amountMicros).Mul(decimal.NewFromFloat(0.0045)).IntPart()

	return Quote{
		ID:                 fmt.Sprintf("QUOTE-%05d", rand.Intn(100000)),
		Rate:               rate,
		TargetAmountMicros: targetAmount,
		FeeMicros:          fee,
	}, nil
}

func (m *MockAdapter) CreateRecipient(ctx context.Context, details BankDetails) (string, error) {
	if err := m.simulate(ctx, "create_recipient"); err != nil {
		return "", err
	}
	if details.AccountRef == "" || details.AccountName == "" {
		return "", &RejectionError{Code: "invalid_recipient", Message: "account name and reference are required"}
	}
	return fmt.Sprintf("RCP-%05d", rand.Intn(100000)), nil
}

func (m *MockAdapter) CreateTransfer(ctx context.Context, recipientID, quoteID, reference string) (Transfer, error) {
	if err := m.simulate(ctx, "create_transfer"); err != nil {
		return Transfer{}, err
	}
	if recipientID == "" {
		return Transfer{}, &RejectionError{Code: "invalid_recipient", Message: "recipient id is required"}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// providers deduplicate on the caller reference
	if t, ok := m.transfers[reference]; ok {
		return t, nil
	}
	t := Transfer{
		ID:     fmt.Sprintf("TRF-%s-%05d", time.Now().Format("20060102"), rand.Intn(100000)),
		Status: TransferProcessing,
	}
	m.transfers[reference] = t
	return t, nil
}

func (m *MockAdapter) TransferStatus(ctx context.Context, reference string) (Transfer, error) {
	if err := m.simulate(ctx, "transfer_status"); err != nil {
		return Transfer{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transfers[reference]
	if !ok {
		return Transfer{}, ErrTransferNotFound
	}
	return t, nil
}

// SetTransferStatus lets tests and the dev sandbox drive a transfer to a
// terminal state before the sweep polls it.
func (m *MockAdapter) SetTransferStatus(reference, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.transfers[reference]; ok {
		t.Status = status
		m.transfers[reference] = t
	}
}

func (m *MockAdapter) VerifyWebhookSignature(payload []byte, signature string) bool {
	if len(m.hmacKey) == 0 {
		return false
	}
	h := hmac.New(sha256.New, m.hmacKey)
	h.Write(payload)
	expected := "sha256=" + hex.EncodeToString(h.Sum(nil))
	return hmac.Equal([]byte(signature), []byte(expected))
}

// SignWebhookPayload produces the signature VerifyWebhookSignature expects.
// Exposed for tests and the dev sandbox.
func (m *MockAdapter) SignWebhookPayload(payload []byte) string {
	h := hmac.New(sha256.New, m.hmacKey)
	h.Write(payload)
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}

func (m *MockAdapter) simulate(ctx context.Context, op string) error {
	select {
	case <-time.After(time.Duration(rand.Intn(20)) * time.Millisecond):
	case <-ctx.Done():
		return &RequestError{Op: op, Err: ctx.Err()}
	}
	if m.FailureRate > 0 && rand.Float64() < m.FailureRate {
		return &RequestError{Op: op, Err: fmt.Errorf("provider temporarily unavailable")}
	}
	return nil
}
