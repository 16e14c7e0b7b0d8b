package service

import (
	"context"
	"testing"

	"github.com/ayo6706/creator-payouts/internal/domain"
	"github.com/ayo6706/creator-payouts/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateEligibilityCollectsAllReasons(t *testing.T) {
	result := EvaluateEligibility(EligibilityInput{
		Ledger:        nil,
		BankAccount:   nil,
		InflightCount: 3,
		AmountMicros:  1_000_000,
		MinimumMicros: 25_000_000,
		MaxConcurrent: 3,
	})

	assert.False(t, result.Eligible)
	assert.ElementsMatch(t, []string{
		domain.ReasonBankAccountMissing,
		domain.ReasonInsufficientBalance,
		domain.ReasonBelowMinimum,
		domain.ReasonTooManyInflight,
	}, result.Reasons)
	assert.Equal(t, int64(0), result.AvailableMicros)
	assert.Equal(t, int64(25_000_000), result.MinimumMicros)
}

func TestEvaluateEligibilityUnverifiedBank(t *testing.T) {
	result := EvaluateEligibility(EligibilityInput{
		Ledger:        &models.CreatorLedger{Currency: "USD", AvailableMicros: 100_000_000},
		BankAccount:   &models.BankAccountRecord{Status: domain.BankAccountUnverified},
		AmountMicros:  30_000_000,
		MinimumMicros: 25_000_000,
		MaxConcurrent: 3,
	})

	assert.False(t, result.Eligible)
	assert.Equal(t, []string{domain.ReasonBankAccountUnverified}, result.Reasons)
}

func TestEvaluateEligibilityCurrencyMismatch(t *testing.T) {
	result := EvaluateEligibility(EligibilityInput{
		Ledger:            &models.CreatorLedger{Currency: "USD", AvailableMicros: 100_000_000},
		BankAccount:       &models.BankAccountRecord{Status: domain.BankAccountVerified},
		AmountMicros:      30_000_000,
		RequestedCurrency: "EUR",
		MinimumMicros:     25_000_000,
		MaxConcurrent:     3,
	})

	assert.False(t, result.Eligible)
	assert.Equal(t, []string{domain.ReasonCurrencyMismatch}, result.Reasons)
}

func TestEvaluateEligibilityPasses(t *testing.T) {
	result := EvaluateEligibility(EligibilityInput{
		Ledger:            &models.CreatorLedger{Currency: "USD", AvailableMicros: 100_000_000},
		BankAccount:       &models.BankAccountRecord{Status: domain.BankAccountVerified},
		InflightCount:     2,
		AmountMicros:      30_000_000,
		RequestedCurrency: "USD",
		MinimumMicros:     25_000_000,
		MaxConcurrent:     3,
	})

	assert.True(t, result.Eligible)
	assert.Empty(t, result.Reasons)
	assert.Equal(t, int64(100_000_000), result.AvailableMicros)
}

func TestEligibilityCheckAssemblesState(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	creatorID := uuid.New()

	// No ledger, no bank account yet.
	result, err := env.elig.Check(ctx, creatorID, 30_000_000, "")
	require.NoError(t, err)
	assert.False(t, result.Eligible)
	assert.Contains(t, result.Reasons, domain.ReasonBankAccountMissing)
	assert.Contains(t, result.Reasons, domain.ReasonInsufficientBalance)

	env.credit(t, creatorID, 100_000_000)
	env.verifiedBank(t, creatorID)

	result, err = env.elig.Check(ctx, creatorID, 30_000_000, "usd")
	require.NoError(t, err)
	assert.True(t, result.Eligible)
	assert.Equal(t, int64(25_000_000), result.MinimumMicros)

	result, err = env.elig.Check(ctx, creatorID, 30_000_000, "EUR")
	require.NoError(t, err)
	assert.False(t, result.Eligible)
	assert.Equal(t, []string{domain.ReasonCurrencyMismatch}, result.Reasons)
}

func TestEligibilityCheckCountsInflight(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	creatorID := uuid.New()
	env.credit(t, creatorID, 500_000_000)
	env.verifiedBank(t, creatorID)

	for i := 0; i < 3; i++ {
		_, err := env.payouts.RequestPayout(ctx, RequestPayoutInput{
			CreatorID:      creatorID,
			AmountMicros:   30_000_000,
			IdempotencyKey: uuid.NewString(),
		})
		require.NoError(t, err)
	}

	result, err := env.elig.Check(ctx, creatorID, 30_000_000, "")
	require.NoError(t, err)
	assert.False(t, result.Eligible)
	assert.Equal(t, []string{domain.ReasonTooManyInflight}, result.Reasons)
}

func TestParseCurrencyMinimums(t *testing.T) {
	minimums, err := ParseCurrencyMinimums("USD=25000000, eur=20000000,GBP=20000000")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{
		"USD": 25_000_000,
		"EUR": 20_000_000,
		"GBP": 20_000_000,
	}, minimums)

	_, err = ParseCurrencyMinimums("USD")
	require.Error(t, err)

	_, err = ParseCurrencyMinimums("USD=-1")
	require.Error(t, err)

	minimums, err = ParseCurrencyMinimums("")
	require.NoError(t, err)
	assert.Empty(t, minimums)
}
