package service

import (
	"context"
	"fmt"

	"github.com/ayo6706/creator-payouts/internal/domain"
	"github.com/ayo6706/creator-payouts/internal/repository"
	"github.com/google/uuid"
)

// payoutTransitions encodes the payout state machine. Transitions are
// monotonic; terminal states have no exits except COMPLETED -> REFUNDED.
var payoutTransitions = map[string]map[string]struct{}{
	domain.PayoutStatusPending: {
		domain.PayoutStatusProcessing: {},
		domain.PayoutStatusFailed:     {},
		domain.PayoutStatusCancelled:  {},
	},
	domain.PayoutStatusProcessing: {
		domain.PayoutStatusCompleted: {},
		domain.PayoutStatusFailed:    {},
		domain.PayoutStatusCancelled: {},
	},
	domain.PayoutStatusCompleted: {
		domain.PayoutStatusRefunded: {},
	},
	domain.PayoutStatusFailed:    {},
	domain.PayoutStatusCancelled: {},
	domain.PayoutStatusRefunded:  {},
}

func canTransition(current, next string) bool {
	nextStates, ok := payoutTransitions[current]
	if !ok {
		return false
	}
	_, ok = nextStates[next]
	return ok
}

func isTerminal(status string) bool {
	return len(payoutTransitions[status]) == 0 || status == domain.PayoutStatusCompleted
}

// appendStatusEvent records one immutable history row for a real transition.
// Replayed events must not reach this function.
func appendStatusEvent(ctx context.Context, q repository.Querier, payoutID uuid.UUID, fromStatus, status, note string) error {
	if err := q.InsertStatusEvent(ctx, payoutID, fromStatus, status, note); err != nil {
		return fmt.Errorf("append status event %s -> %s: %w", fromStatus, status, err)
	}
	return nil
}
