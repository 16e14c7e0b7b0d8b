package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreatorLedger is the authoritative per-creator balance row. Created on
// first credit, never deleted. All amounts are micros in the ledger currency.
type CreatorLedger struct {
	CreatorID         uuid.UUID `json:"creator_id"`
	Currency          string    `json:"currency"`
	TotalEarnedMicros int64     `json:"total_earned_micros"`
	AvailableMicros   int64     `json:"available_micros"`
	PendingMicros     int64     `json:"pending_micros"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Earning is an append-only credit record. SourceRef is unique so that a
// replayed revenue event never double-credits the ledger.
type Earning struct {
	ID           uuid.UUID `json:"id"`
	CreatorID    uuid.UUID `json:"creator_id"`
	AmountMicros int64     `json:"amount_micros"`
	Currency     string    `json:"currency"`
	SourceType   string    `json:"source_type"` // e.g. "tip", "ticket_sale", "booking"
	SourceRef    string    `json:"source_ref"`
	CreatedAt    time.Time `json:"created_at"`
}

// PayoutRequest tracks a single withdrawal from reservation through
// provider resolution. Status mutates only through the reconciler state
// machine (and explicit cancellation while still PENDING).
type PayoutRequest struct {
	ID                   uuid.UUID        `json:"id"`
	CreatorID            uuid.UUID        `json:"creator_id"`
	AmountMicros         int64            `json:"amount_micros"`
	Currency             string           `json:"currency"`
	Status               string           `json:"status"`
	IdempotencyKey       string           `json:"idempotency_key"`
	ProviderID           string           `json:"provider_id,omitempty"`
	ExternalTransferID   *string          `json:"external_transfer_id,omitempty"`
	ExternalRecipientID  *string          `json:"external_recipient_id,omitempty"`
	ExchangeRate         *decimal.Decimal `json:"exchange_rate,omitempty"`
	TargetAmountMicros   *int64           `json:"target_amount_micros,omitempty"`
	TargetCurrency       *string          `json:"target_currency,omitempty"`
	ProviderFeeMicros    *int64           `json:"provider_fee_micros,omitempty"`
	ErrorCode            *string          `json:"error_code,omitempty"`
	ErrorMessage         *string          `json:"error_message,omitempty"`
	CreatedAt            time.Time        `json:"created_at"`
	UpdatedAt            time.Time        `json:"updated_at"`
	CompletedAt          *time.Time       `json:"completed_at,omitempty"`
	FailedAt             *time.Time       `json:"failed_at,omitempty"`
}

// StatusEvent is an immutable entry in a payout's status history. Exactly one
// row exists per real transition; replayed webhooks are logged no-ops.
type StatusEvent struct {
	ID         int64     `json:"id"`
	PayoutID   uuid.UUID `json:"payout_id"`
	FromStatus string    `json:"from_status"`
	Status     string    `json:"status"`
	Note       string    `json:"note,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// BankAccountRecord is the creator's verified payout destination. It is owned
// by the external onboarding collaborator; this service reads it and caches
// the provider recipient id on it.
type BankAccountRecord struct {
	CreatorID           uuid.UUID `json:"creator_id"`
	Country             string    `json:"country"`
	Currency            string    `json:"currency"`
	AccountName         string    `json:"account_name"`
	AccountRef          string    `json:"account_ref"` // provider-facing bank details token
	Status              string    `json:"status"`
	ExternalRecipientID *string   `json:"external_recipient_id,omitempty"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Verified reports whether payouts may target this account.
func (b BankAccountRecord) Verified() bool {
	return b.Status == "VERIFIED"
}

// Anomaly is a detected reconciliation inconsistency (duplicate conflict,
// out-of-order event, refund overflow). It is recorded for operator review,
// never auto-resolved, and never mutates the ledger.
type Anomaly struct {
	ID         int64      `json:"id"`
	PayoutID   *uuid.UUID `json:"payout_id,omitempty"`
	TransferID string     `json:"transfer_id"`
	Kind       string     `json:"kind"`
	Detail     string     `json:"detail"`
	Resolved   bool       `json:"resolved"`
	CreatedAt  time.Time  `json:"created_at"`
}
