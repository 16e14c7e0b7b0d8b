// Package provider defines the narrow contract external money-transfer
// providers implement. Transport, auth, and provider-specific retry policy
// live behind this interface; the core never sees them.
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Transfer statuses as normalized from provider payloads.
const (
	TransferProcessing = "processing"
	TransferCompleted  = "completed"
	TransferFailed     = "failed"
	TransferCancelled  = "cancelled"
	TransferRefunded   = "refunded"
)

// ErrTransferNotFound is returned by TransferStatus when the provider has no
// record of the reference.
var ErrTransferNotFound = errors.New("provider has no transfer for reference")

// Quote is a priced conversion offer for a single transfer.
type Quote struct {
	ID                 string
	Rate               decimal.Decimal // target per source
	TargetAmountMicros int64
	FeeMicros          int64 // charged in source currency
}

// BankDetails identifies the destination account when creating a recipient.
type BankDetails struct {
	Country     string
	Currency    string
	AccountName string
	AccountRef  string
}

// Transfer is the provider's acknowledgment of a created transfer.
type Transfer struct {
	ID     string
	Status string
}

// Adapter is the contract a concrete provider integration implements.
// Implementations must be safe for concurrent use.
type Adapter interface {
	// ID returns the unique provider identifier the router selects by.
	ID() string

	// GetQuote prices a conversion of amountMicros from source to target
	// currency.
	GetQuote(ctx context.Context, sourceCurrency, targetCurrency string, amountMicros int64) (Quote, error)

	// CreateRecipient registers a payout destination and returns the
	// provider's recipient id. Callers cache the id per bank account.
	CreateRecipient(ctx context.Context, details BankDetails) (string, error)

	// CreateTransfer initiates the transfer. reference is caller-chosen and
	// unique per payout request; providers deduplicate on it.
	CreateTransfer(ctx context.Context, recipientID, quoteID, reference string) (Transfer, error)

	// TransferStatus looks the transfer up by the caller's reference. Used by
	// the reconciliation sweep when webhooks are lost or a create call timed
	// out before returning an id.
	TransferStatus(ctx context.Context, reference string) (Transfer, error)

	// VerifyWebhookSignature authenticates an inbound webhook payload.
	VerifyWebhookSignature(payload []byte, signature string) bool
}

// RequestError marks a transport-level failure (network, 5xx). The operation
// may or may not have reached the provider; callers surface it as retryable
// and never retry the transfer creation themselves.
type RequestError struct {
	Op  string
	Err error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("provider request %s: %v", e.Op, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// RejectionError marks a business-rule rejection (4xx). Terminal; retrying
// the same request cannot succeed.
type RejectionError struct {
	Code    string
	Message string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("provider rejected request: %s: %s", e.Code, e.Message)
}

// Registry resolves adapters by provider id for the currency/country router.
type Registry struct {
	adapters map[string]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.ID()] = a
	}
	return r
}

// Get returns the adapter registered under id.
func (r *Registry) Get(id string) (Adapter, error) {
	a, ok := r.adapters[id]
	if !ok {
		return nil, fmt.Errorf("no provider registered for id %q", id)
	}
	return a, nil
}
