package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ayo6706/creator-payouts/internal/domain"
	"github.com/ayo6706/creator-payouts/internal/models"
	"github.com/google/uuid"
)

// EligibilityConfig carries the externally configured gating thresholds.
type EligibilityConfig struct {
	// MinimumsMicros maps currency -> minimum payout amount in micros.
	MinimumsMicros map[string]int64
	// MaxConcurrent bounds a creator's in-flight (PENDING/PROCESSING)
	// payout requests.
	MaxConcurrent int
}

func (c EligibilityConfig) maxConcurrent() int {
	if c.MaxConcurrent > 0 {
		return c.MaxConcurrent
	}
	return domain.DefaultMaxConcurrentPayouts
}

// EligibilityInput is a snapshot of everything the evaluator needs. Ledger
// and BankAccount are nil when the corresponding record does not exist.
type EligibilityInput struct {
	Ledger            *models.CreatorLedger
	BankAccount       *models.BankAccountRecord
	InflightCount     int64
	AmountMicros      int64
	RequestedCurrency string // optional; checked against the ledger when set
	MinimumMicros     int64
	MaxConcurrent     int
}

// EligibilityResult reports the decision with every failing reason.
type EligibilityResult struct {
	Eligible        bool     `json:"eligible"`
	Reasons         []string `json:"reasons,omitempty"`
	AvailableMicros int64    `json:"available_micros"`
	MinimumMicros   int64    `json:"minimum_micros"`
}

// EvaluateEligibility is a pure function of its input. All checks run; the
// result carries every failing reason, never just the first.
func EvaluateEligibility(in EligibilityInput) EligibilityResult {
	var reasons []string

	switch {
	case in.BankAccount == nil:
		reasons = append(reasons, domain.ReasonBankAccountMissing)
	case !in.BankAccount.Verified():
		reasons = append(reasons, domain.ReasonBankAccountUnverified)
	}

	var available int64
	if in.Ledger != nil {
		available = in.Ledger.AvailableMicros
	}
	if available < in.AmountMicros {
		reasons = append(reasons, domain.ReasonInsufficientBalance)
	}

	if in.AmountMicros < in.MinimumMicros {
		reasons = append(reasons, domain.ReasonBelowMinimum)
	}

	if in.InflightCount >= int64(in.MaxConcurrent) {
		reasons = append(reasons, domain.ReasonTooManyInflight)
	}

	if in.RequestedCurrency != "" && in.Ledger != nil && in.Ledger.Currency != in.RequestedCurrency {
		reasons = append(reasons, domain.ReasonCurrencyMismatch)
	}

	return EligibilityResult{
		Eligible:        len(reasons) == 0,
		Reasons:         reasons,
		AvailableMicros: available,
		MinimumMicros:   in.MinimumMicros,
	}
}

// EligibilityService assembles the evaluator input from current state. It has
// no side effects and is safe to call repeatedly.
type EligibilityService struct {
	store QueryStore
	cfg   EligibilityConfig
}

func NewEligibilityService(store QueryStore, cfg EligibilityConfig) *EligibilityService {
	return &EligibilityService{store: store, cfg: cfg}
}

// Check evaluates whether a payout of amountMicros is currently permitted.
func (s *EligibilityService) Check(ctx context.Context, creatorID uuid.UUID, amountMicros int64, requestedCurrency string) (EligibilityResult, error) {
	queries := s.store.Queries()

	input := EligibilityInput{
		AmountMicros:      amountMicros,
		RequestedCurrency: strings.ToUpper(strings.TrimSpace(requestedCurrency)),
		MaxConcurrent:     s.cfg.maxConcurrent(),
	}

	ledger, err := queries.GetLedger(ctx, creatorID)
	switch {
	case err == nil:
		input.Ledger = &ledger
	case !errors.Is(err, models.ErrLedgerNotFound):
		return EligibilityResult{}, err
	}

	bank, err := queries.GetBankAccount(ctx, creatorID)
	switch {
	case err == nil:
		input.BankAccount = &bank
	case !errors.Is(err, models.ErrBankAccountNotFound):
		return EligibilityResult{}, err
	}

	inflight, err := queries.CountInflightPayouts(ctx, creatorID)
	if err != nil {
		return EligibilityResult{}, err
	}
	input.InflightCount = inflight

	input.MinimumMicros = s.minimumFor(input.Ledger, input.BankAccount)

	return EvaluateEligibility(input), nil
}

func (s *EligibilityService) minimumFor(ledger *models.CreatorLedger, bank *models.BankAccountRecord) int64 {
	currency := ""
	if ledger != nil {
		currency = ledger.Currency
	} else if bank != nil {
		currency = bank.Currency
	}
	return s.cfg.MinimumsMicros[currency]
}

// ParseCurrencyMinimums parses "USD=25000000,EUR=20000000" into a
// currency -> micros map.
func ParseCurrencyMinimums(raw string) (map[string]int64, error) {
	minimums := make(map[string]int64)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid minimum entry %q", pair)
		}
		micros, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
		if err != nil || micros < 0 {
			return nil, fmt.Errorf("invalid minimum amount in %q", pair)
		}
		minimums[strings.ToUpper(strings.TrimSpace(parts[0]))] = micros
	}
	return minimums, nil
}
