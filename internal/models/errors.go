package models

import "errors"

var (
	ErrInsufficientBalance = errors.New("insufficient available balance")
	ErrLedgerNotFound      = errors.New("creator ledger not found")
	ErrPayoutNotFound      = errors.New("payout request not found")
	ErrBankAccountNotFound = errors.New("bank account not found")
	ErrAnomalyNotFound     = errors.New("anomaly not found")
	ErrDuplicateSourceRef  = errors.New("earning source_ref already recorded")
	ErrDuplicateKey        = errors.New("idempotency key already exists")
	ErrNotFound            = errors.New("not found")
)
