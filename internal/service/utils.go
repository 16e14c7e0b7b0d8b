package service

import (
	"context"
	"fmt"

	"github.com/ayo6706/creator-payouts/internal/models"
	"github.com/ayo6706/creator-payouts/internal/observability"
	"github.com/ayo6706/creator-payouts/internal/repository"
)

// ValidationError marks caller mistakes (bad amounts, missing fields) so the
// API layer can answer 400 instead of 500.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

func validationf(format string, args ...any) error {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

func requireExactlyOne(rows int64, operation string) error {
	if rows != 1 {
		return fmt.Errorf("%s affected %d rows", operation, rows)
	}
	return nil
}

func strPtr(v string) *string {
	return &v
}

func insertAnomaly(ctx context.Context, q repository.Querier, anomaly models.Anomaly) error {
	if err := q.InsertAnomaly(ctx, anomaly); err != nil {
		return err
	}
	observability.IncrementAnomaly(anomaly.Kind)
	return nil
}
