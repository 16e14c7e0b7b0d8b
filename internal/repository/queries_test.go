package repository

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/ayo6706/creator-payouts/internal/db"
	"github.com/ayo6706/creator-payouts/internal/domain"
	"github.com/ayo6706/creator-payouts/internal/models"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

func init() {
	_ = godotenv.Load("../../.env") // Load from root
}

func TestLedgerAndPayoutQueries(t *testing.T) {
	if os.Getenv("DATABASE_URL") == "" {
		t.Skip("Skipping integration test: DATABASE_URL not set")
	}

	pool, err := db.Connect(context.Background(), os.Getenv("DATABASE_URL"))
	if err != nil {
		t.Fatalf("Failed to connect to DB: %v", err)
	}
	defer pool.Close()

	q := New(pool)
	ctx := context.Background()
	creatorID := uuid.New()

	// 1. Credit creates the ledger row on first use.
	err = q.CreditLedger(ctx, CreditLedgerParams{
		CreatorID:    creatorID,
		Currency:     "USD",
		AmountMicros: 100_000_000,
	})
	if err != nil {
		t.Fatalf("CreditLedger failed: %v", err)
	}

	ledger, err := q.GetLedger(ctx, creatorID)
	if err != nil {
		t.Fatalf("GetLedger failed: %v", err)
	}
	if ledger.AvailableMicros != 100_000_000 || ledger.PendingMicros != 0 {
		t.Errorf("unexpected balances after credit: available=%d pending=%d", ledger.AvailableMicros, ledger.PendingMicros)
	}

	// 2. Reserve moves available to pending; an over-reserve touches no rows.
	rows, err := q.ReserveLedgerFunds(ctx, creatorID, 30_000_000)
	if err != nil {
		t.Fatalf("ReserveLedgerFunds failed: %v", err)
	}
	if rows != 1 {
		t.Errorf("expected 1 row reserved, got %d", rows)
	}
	rows, err = q.ReserveLedgerFunds(ctx, creatorID, 80_000_000)
	if err != nil {
		t.Fatalf("over-reserve errored: %v", err)
	}
	if rows != 0 {
		t.Errorf("over-reserve touched %d rows", rows)
	}

	// 3. Payout insert, idempotency-key lookup, transfer-id backfill.
	payoutID := uuid.New()
	key := "itest-" + payoutID.String()[:8]
	payout := models.PayoutRequest{
		ID:             payoutID,
		CreatorID:      creatorID,
		AmountMicros:   30_000_000,
		Currency:       "USD",
		Status:         domain.PayoutStatusPending,
		IdempotencyKey: key,
	}
	if err := q.InsertPayout(ctx, payout); err != nil {
		t.Fatalf("InsertPayout failed: %v", err)
	}
	if err := q.InsertPayout(ctx, payout); !errors.Is(err, models.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey on replay, got %v", err)
	}

	got, err := q.GetPayoutByIdempotencyKey(ctx, key)
	if err != nil {
		t.Fatalf("GetPayoutByIdempotencyKey failed: %v", err)
	}
	if got.ID != payoutID {
		t.Errorf("expected payout %s, got %s", payoutID, got.ID)
	}

	transferID := "TRF-itest-" + payoutID.String()[:8]
	rows, err = q.SetPayoutTransferID(ctx, payoutID, transferID)
	if err != nil {
		t.Fatalf("SetPayoutTransferID failed: %v", err)
	}
	if rows != 1 {
		t.Errorf("expected 1 row backfilled, got %d", rows)
	}
	// The guard keeps a second backfill from overwriting.
	rows, err = q.SetPayoutTransferID(ctx, payoutID, "TRF-other")
	if err != nil {
		t.Fatalf("second SetPayoutTransferID errored: %v", err)
	}
	if rows != 0 {
		t.Errorf("transfer id was overwritten, %d rows", rows)
	}

	got, err = q.GetPayoutByTransferIDForUpdate(ctx, transferID)
	if err != nil {
		t.Fatalf("GetPayoutByTransferIDForUpdate failed: %v", err)
	}
	if got.ID != payoutID {
		t.Errorf("expected payout %s by transfer id, got %s", payoutID, got.ID)
	}

	// 4. Release restores the reservation.
	rows, err = q.ReleaseLedgerFunds(ctx, creatorID, 30_000_000)
	if err != nil {
		t.Fatalf("ReleaseLedgerFunds failed: %v", err)
	}
	if rows != 1 {
		t.Errorf("expected 1 row released, got %d", rows)
	}
	ledger, err = q.GetLedger(ctx, creatorID)
	if err != nil {
		t.Fatalf("GetLedger failed: %v", err)
	}
	if ledger.AvailableMicros != 100_000_000 || ledger.PendingMicros != 0 {
		t.Errorf("unexpected balances after release: available=%d pending=%d", ledger.AvailableMicros, ledger.PendingMicros)
	}
}
