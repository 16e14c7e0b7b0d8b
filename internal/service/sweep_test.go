package service

import (
	"context"
	"testing"
	"time"

	"github.com/ayo6706/creator-payouts/internal/domain"
	"github.com/ayo6706/creator-payouts/internal/provider"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sweepNow makes every PROCESSING payout immediately eligible for the sweep.
func sweepNow(env *testEnv) *SweepService {
	env.sweep.stuckAfter = -time.Hour
	return env.sweep
}

func TestSweepBackfillsTimedOutTransfer(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	creatorID := uuid.New()
	env.credit(t, creatorID, 100_000_000)
	env.verifiedBank(t, creatorID)
	env.adapter.transferErr = &provider.RequestError{Op: "create_transfer", Err: context.DeadlineExceeded}

	payout, err := env.payouts.RequestPayout(ctx, RequestPayoutInput{
		CreatorID:      creatorID,
		AmountMicros:   30_000_000,
		IdempotencyKey: "payout-key-sweep-1",
	})
	require.NoError(t, err)
	require.Nil(t, payout.ExternalTransferID)

	// The provider did receive the create call and later settled the transfer.
	env.adapter.setTransfer(payout.ID.String(), provider.Transfer{
		ID:     "TRF-recovered",
		Status: provider.TransferCompleted,
	})

	resolved, err := sweepNow(env).SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, resolved)

	updated := env.getPayout(t, payout.ID)
	assert.Equal(t, domain.PayoutStatusCompleted, updated.Status)
	require.NotNil(t, updated.ExternalTransferID)
	assert.Equal(t, "TRF-recovered", *updated.ExternalTransferID)

	ledger := env.getLedger(t, creatorID)
	assert.Equal(t, int64(0), ledger.PendingMicros)
	assert.Equal(t, int64(70_000_000), ledger.AvailableMicros)
}

func TestSweepFailsTransferThatNeverExisted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	creatorID := uuid.New()
	env.credit(t, creatorID, 100_000_000)
	env.verifiedBank(t, creatorID)
	env.adapter.transferErr = &provider.RequestError{Op: "create_transfer", Err: context.DeadlineExceeded}

	payout, err := env.payouts.RequestPayout(ctx, RequestPayoutInput{
		CreatorID:      creatorID,
		AmountMicros:   30_000_000,
		IdempotencyKey: "payout-key-sweep-2",
	})
	require.NoError(t, err)

	// Provider has no record under the payout reference, so the create never
	// landed: safe to fail and release.
	resolved, err := sweepNow(env).SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, resolved)

	updated := env.getPayout(t, payout.ID)
	assert.Equal(t, domain.PayoutStatusFailed, updated.Status)
	require.NotNil(t, updated.ErrorCode)
	assert.Equal(t, domain.ErrCodeProviderTimeout, *updated.ErrorCode)

	ledger := env.getLedger(t, creatorID)
	assert.Equal(t, int64(100_000_000), ledger.AvailableMicros)
	assert.Equal(t, int64(0), ledger.PendingMicros)
}

func TestSweepQuarantinesMissingAcknowledgedTransfer(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	creatorID := uuid.New()
	payout := env.processingPayout(t, creatorID, 30_000_000)

	// The provider acknowledged the transfer but now claims no record of it.
	env.adapter.dropTransfer(payout.ID.String())

	resolved, err := sweepNow(env).SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, resolved)

	// The payout is left for an operator; the reservation must not move.
	assert.Equal(t, domain.PayoutStatusProcessing, env.getPayout(t, payout.ID).Status)
	assert.Equal(t, int64(30_000_000), env.getLedger(t, creatorID).PendingMicros)

	anomalies := env.listAnomalies(t)
	require.Len(t, anomalies, 1)
	assert.Equal(t, domain.AnomalyProviderMissing, anomalies[0].Kind)
	assert.Equal(t, *payout.ExternalTransferID, anomalies[0].TransferID)
}

func TestSweepResolvesLostWebhook(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	creatorID := uuid.New()
	payout := env.processingPayout(t, creatorID, 30_000_000)

	// The provider settled but the webhook never arrived.
	env.adapter.setTransfer(payout.ID.String(), provider.Transfer{
		ID:     *payout.ExternalTransferID,
		Status: provider.TransferCompleted,
	})

	resolved, err := sweepNow(env).SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, resolved)

	assert.Equal(t, domain.PayoutStatusCompleted, env.getPayout(t, payout.ID).Status)
	assert.Equal(t, int64(0), env.getLedger(t, creatorID).PendingMicros)
}

func TestSweepSkipsFreshPayouts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	creatorID := uuid.New()
	payout := env.processingPayout(t, creatorID, 30_000_000)

	// Default stuck-after window: a just-dispatched payout is not stuck.
	resolved, err := env.sweep.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, resolved)
	assert.Equal(t, domain.PayoutStatusProcessing, env.getPayout(t, payout.ID).Status)
}
