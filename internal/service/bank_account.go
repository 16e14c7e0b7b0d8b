package service

import (
	"context"
	"strings"
	"time"

	"github.com/ayo6706/creator-payouts/internal/domain"
	"github.com/ayo6706/creator-payouts/internal/models"
	"github.com/google/uuid"
)

// BankAccountService mirrors the payout destination owned by the external
// onboarding system. Verification status is written here, never decided here.
type BankAccountService struct {
	store QueryStore
}

func NewBankAccountService(store QueryStore) *BankAccountService {
	return &BankAccountService{store: store}
}

// UpsertBankAccountRequest replaces the creator's destination account. Any
// change clears the cached provider recipient id.
type UpsertBankAccountRequest struct {
	CreatorID   uuid.UUID
	Country     string
	Currency    string
	AccountName string
	AccountRef  string
	Status      string
}

func (r *UpsertBankAccountRequest) normalize() error {
	r.Country = strings.ToUpper(strings.TrimSpace(r.Country))
	r.Currency = strings.ToUpper(strings.TrimSpace(r.Currency))
	r.AccountName = strings.TrimSpace(r.AccountName)
	r.AccountRef = strings.TrimSpace(r.AccountRef)
	r.Status = strings.ToUpper(strings.TrimSpace(r.Status))
	if r.CreatorID == uuid.Nil {
		return validationf("creator_id is required")
	}
	if len(r.Country) != 2 {
		return validationf("country must be a two-letter ISO code")
	}
	if r.Currency == "" {
		return validationf("currency is required")
	}
	if r.AccountName == "" || r.AccountRef == "" {
		return validationf("account_name and account_ref are required")
	}
	if r.Status != domain.BankAccountVerified && r.Status != domain.BankAccountUnverified {
		return validationf("status must be VERIFIED or UNVERIFIED")
	}
	return nil
}

func (s *BankAccountService) Upsert(ctx context.Context, req UpsertBankAccountRequest) (*models.BankAccountRecord, error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}

	record := models.BankAccountRecord{
		CreatorID:   req.CreatorID,
		Country:     req.Country,
		Currency:    req.Currency,
		AccountName: req.AccountName,
		AccountRef:  req.AccountRef,
		Status:      req.Status,
		UpdatedAt:   time.Now().UTC(),
	}
	if err := s.store.Queries().UpsertBankAccount(ctx, record); err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *BankAccountService) Get(ctx context.Context, creatorID uuid.UUID) (*models.BankAccountRecord, error) {
	record, err := s.store.Queries().GetBankAccount(ctx, creatorID)
	if err != nil {
		return nil, err
	}
	return &record, nil
}
