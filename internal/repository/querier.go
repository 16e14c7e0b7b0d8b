package repository

import (
	"context"
	"time"

	"github.com/ayo6706/creator-payouts/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Querier is the data access contract shared by the Postgres and in-memory
// implementations. Lookups return the models sentinel errors
// (models.ErrPayoutNotFound etc.) when no row matches; balance moves return
// the number of rows affected so callers can detect lost races.
type Querier interface {
	// Ledger
	GetLedger(ctx context.Context, creatorID uuid.UUID) (models.CreatorLedger, error)
	CreditLedger(ctx context.Context, arg CreditLedgerParams) error
	ReserveLedgerFunds(ctx context.Context, creatorID uuid.UUID, amountMicros int64) (int64, error)
	ReleaseLedgerFunds(ctx context.Context, creatorID uuid.UUID, amountMicros int64) (int64, error)
	FinalizeLedgerFunds(ctx context.Context, creatorID uuid.UUID, amountMicros int64) (int64, error)
	DebitLedgerAvailable(ctx context.Context, creatorID uuid.UUID, amountMicros int64) (int64, error)
	ListLedgers(ctx context.Context) ([]models.CreatorLedger, error)

	// Earnings
	InsertEarning(ctx context.Context, earning models.Earning) error

	// Payout requests
	InsertPayout(ctx context.Context, payout models.PayoutRequest) error
	GetPayout(ctx context.Context, id uuid.UUID) (models.PayoutRequest, error)
	GetPayoutForUpdate(ctx context.Context, id uuid.UUID) (models.PayoutRequest, error)
	GetPayoutByIdempotencyKey(ctx context.Context, key string) (models.PayoutRequest, error)
	GetPayoutByTransferIDForUpdate(ctx context.Context, transferID string) (models.PayoutRequest, error)
	MarkPayoutProcessing(ctx context.Context, arg MarkPayoutProcessingParams) (int64, error)
	SetPayoutTransferID(ctx context.Context, id uuid.UUID, transferID string) (int64, error)
	SetPayoutStatus(ctx context.Context, arg SetPayoutStatusParams) (int64, error)
	CountInflightPayouts(ctx context.Context, creatorID uuid.UUID) (int64, error)
	SumPayoutsByStatus(ctx context.Context, creatorID uuid.UUID, status string) (int64, error)
	ListStuckProcessingPayouts(ctx context.Context, updatedBefore time.Time, limit int32) ([]models.PayoutRequest, error)

	// Status history
	InsertStatusEvent(ctx context.Context, payoutID uuid.UUID, fromStatus, status, note string) error
	ListStatusEvents(ctx context.Context, payoutID uuid.UUID) ([]models.StatusEvent, error)

	// Bank accounts
	GetBankAccount(ctx context.Context, creatorID uuid.UUID) (models.BankAccountRecord, error)
	UpsertBankAccount(ctx context.Context, record models.BankAccountRecord) error
	SetBankAccountRecipient(ctx context.Context, creatorID uuid.UUID, recipientID string) error

	// Anomalies
	InsertAnomaly(ctx context.Context, anomaly models.Anomaly) error
	ListAnomalies(ctx context.Context, onlyUnresolved bool, limit, offset int32) ([]models.Anomaly, error)
	ResolveAnomaly(ctx context.Context, id int64) (int64, error)
}

// CreditLedgerParams credits earned funds. The ledger row is created on
// first credit.
type CreditLedgerParams struct {
	CreatorID    uuid.UUID
	Currency     string
	AmountMicros int64
}

// MarkPayoutProcessingParams records provider acceptance (or a timed-out
// provider call awaiting the reconciliation sweep, in which case the external
// ids are nil).
type MarkPayoutProcessingParams struct {
	ID                  uuid.UUID
	ProviderID          string
	ExternalTransferID  *string
	ExternalRecipientID *string
	ExchangeRate        *decimal.Decimal
	TargetAmountMicros  *int64
	TargetCurrency      *string
	ProviderFeeMicros   *int64
}

// SetPayoutStatusParams moves a payout to a new status, optionally recording
// error details and terminal timestamps.
type SetPayoutStatusParams struct {
	ID           uuid.UUID
	Status       string
	ErrorCode    *string
	ErrorMessage *string
	CompletedAt  *time.Time
	FailedAt     *time.Time
}
