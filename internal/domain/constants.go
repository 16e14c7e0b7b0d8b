package domain

// Payout request lifecycle states. Transitions are enforced in
// internal/service/history.go; COMPLETED -> REFUNDED is the only exit
// from a terminal state.
const (
	PayoutStatusPending    = "PENDING"
	PayoutStatusProcessing = "PROCESSING"
	PayoutStatusCompleted  = "COMPLETED"
	PayoutStatusFailed     = "FAILED"
	PayoutStatusCancelled  = "CANCELLED"
	PayoutStatusRefunded   = "REFUNDED"
)

// Bank account verification states (owned by the external onboarding
// collaborator; this service only reads them).
const (
	BankAccountVerified   = "VERIFIED"
	BankAccountUnverified = "UNVERIFIED"
)

// Eligibility reason codes. Every failing check is reported, never just the
// first one.
const (
	ReasonBankAccountMissing    = "bank_account_missing"
	ReasonBankAccountUnverified = "bank_account_unverified"
	ReasonInsufficientBalance   = "insufficient_balance"
	ReasonBelowMinimum          = "below_minimum"
	ReasonTooManyInflight       = "too_many_inflight"
	ReasonCurrencyMismatch      = "currency_mismatch"
)

// Provider-originated error codes recorded on failed payout requests.
const (
	ErrCodeProviderUnavailable = "provider_unavailable"
	ErrCodeProviderTimeout     = "provider_timeout"
)

// Anomaly kinds. Anomalies are quarantined for operator review and never
// mutate the ledger.
const (
	AnomalyOutOfOrder             = "out_of_order"
	AnomalyUnknownTransfer        = "unknown_transfer"
	AnomalyRefundExceedsAvailable = "refund_exceeds_available"
	AnomalyProviderMissing        = "provider_missing_transfer"
)

// DefaultMaxConcurrentPayouts bounds a creator's in-flight payout requests.
const DefaultMaxConcurrentPayouts = 3
