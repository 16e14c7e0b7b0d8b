package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ayo6706/creator-payouts/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx so the same queries run
// pooled or inside a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Queries is the Postgres implementation of Querier.
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx rebinds the query set to a transaction.
func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// --- Ledger ---

const ledgerColumns = `creator_id, currency, total_earned_micros, available_micros, pending_micros, created_at, updated_at`

func scanLedger(row pgx.Row) (models.CreatorLedger, error) {
	var l models.CreatorLedger
	err := row.Scan(&l.CreatorID, &l.Currency, &l.TotalEarnedMicros, &l.AvailableMicros, &l.PendingMicros, &l.CreatedAt, &l.UpdatedAt)
	return l, err
}

func (q *Queries) GetLedger(ctx context.Context, creatorID uuid.UUID) (models.CreatorLedger, error) {
	row := q.db.QueryRow(ctx, `SELECT `+ledgerColumns+` FROM creator_ledgers WHERE creator_id = $1`, creatorID)
	l, err := scanLedger(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return l, models.ErrLedgerNotFound
	}
	if err != nil {
		return l, fmt.Errorf("get ledger: %w", err)
	}
	return l, nil
}

func (q *Queries) CreditLedger(ctx context.Context, arg CreditLedgerParams) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO creator_ledgers (creator_id, currency, total_earned_micros, available_micros, pending_micros, created_at, updated_at)
		VALUES ($1, $2, $3, $3, 0, NOW(), NOW())
		ON CONFLICT (creator_id) DO UPDATE SET
			total_earned_micros = creator_ledgers.total_earned_micros + EXCLUDED.total_earned_micros,
			available_micros = creator_ledgers.available_micros + EXCLUDED.available_micros,
			updated_at = NOW()
	`, arg.CreatorID, arg.Currency, arg.AmountMicros)
	if err != nil {
		return fmt.Errorf("credit ledger: %w", err)
	}
	return nil
}

// ReserveLedgerFunds moves amount from available to pending iff available
// covers it. The conditional single-row UPDATE is what makes concurrent
// reserves race-free.
func (q *Queries) ReserveLedgerFunds(ctx context.Context, creatorID uuid.UUID, amountMicros int64) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE creator_ledgers
		SET available_micros = available_micros - $2,
		    pending_micros = pending_micros + $2,
		    updated_at = NOW()
		WHERE creator_id = $1 AND available_micros >= $2
	`, creatorID, amountMicros)
	if err != nil {
		return 0, fmt.Errorf("reserve ledger funds: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (q *Queries) ReleaseLedgerFunds(ctx context.Context, creatorID uuid.UUID, amountMicros int64) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE creator_ledgers
		SET pending_micros = pending_micros - $2,
		    available_micros = available_micros + $2,
		    updated_at = NOW()
		WHERE creator_id = $1 AND pending_micros >= $2
	`, creatorID, amountMicros)
	if err != nil {
		return 0, fmt.Errorf("release ledger funds: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (q *Queries) FinalizeLedgerFunds(ctx context.Context, creatorID uuid.UUID, amountMicros int64) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE creator_ledgers
		SET pending_micros = pending_micros - $2,
		    updated_at = NOW()
		WHERE creator_id = $1 AND pending_micros >= $2
	`, creatorID, amountMicros)
	if err != nil {
		return 0, fmt.Errorf("finalize ledger funds: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (q *Queries) DebitLedgerAvailable(ctx context.Context, creatorID uuid.UUID, amountMicros int64) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE creator_ledgers
		SET available_micros = available_micros - $2,
		    updated_at = NOW()
		WHERE creator_id = $1 AND available_micros >= $2
	`, creatorID, amountMicros)
	if err != nil {
		return 0, fmt.Errorf("debit ledger available: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (q *Queries) ListLedgers(ctx context.Context) ([]models.CreatorLedger, error) {
	rows, err := q.db.Query(ctx, `SELECT `+ledgerColumns+` FROM creator_ledgers ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list ledgers: %w", err)
	}
	defer rows.Close()

	var ledgers []models.CreatorLedger
	for rows.Next() {
		l, err := scanLedger(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ledger: %w", err)
		}
		ledgers = append(ledgers, l)
	}
	return ledgers, rows.Err()
}

// --- Earnings ---

func (q *Queries) InsertEarning(ctx context.Context, e models.Earning) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO earnings (id, creator_id, amount_micros, currency, source_type, source_ref, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`, e.ID, e.CreatorID, e.AmountMicros, e.Currency, e.SourceType, e.SourceRef)
	if isUniqueViolation(err) {
		return models.ErrDuplicateSourceRef
	}
	if err != nil {
		return fmt.Errorf("insert earning: %w", err)
	}
	return nil
}

// --- Payout requests ---

const payoutColumns = `id, creator_id, amount_micros, currency, status, idempotency_key, provider_id,
	external_transfer_id, external_recipient_id, exchange_rate, target_amount_micros, target_currency,
	provider_fee_micros, error_code, error_message, created_at, updated_at, completed_at, failed_at`

func scanPayout(row pgx.Row) (models.PayoutRequest, error) {
	var p models.PayoutRequest
	var rate decimal.NullDecimal
	err := row.Scan(
		&p.ID, &p.CreatorID, &p.AmountMicros, &p.Currency, &p.Status, &p.IdempotencyKey, &p.ProviderID,
		&p.ExternalTransferID, &p.ExternalRecipientID, &rate, &p.TargetAmountMicros, &p.TargetCurrency,
		&p.ProviderFeeMicros, &p.ErrorCode, &p.ErrorMessage, &p.CreatedAt, &p.UpdatedAt, &p.CompletedAt, &p.FailedAt,
	)
	if rate.Valid {
		p.ExchangeRate = &rate.Decimal
	}
	return p, err
}

func (q *Queries) InsertPayout(ctx context.Context, p models.PayoutRequest) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO payout_requests (id, creator_id, amount_micros, currency, status, idempotency_key, provider_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
	`, p.ID, p.CreatorID, p.AmountMicros, p.Currency, p.Status, p.IdempotencyKey, p.ProviderID)
	if isUniqueViolation(err) {
		return models.ErrDuplicateKey
	}
	if err != nil {
		return fmt.Errorf("insert payout: %w", err)
	}
	return nil
}

func (q *Queries) getPayout(ctx context.Context, query string, arg any) (models.PayoutRequest, error) {
	p, err := scanPayout(q.db.QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return p, models.ErrPayoutNotFound
	}
	if err != nil {
		return p, fmt.Errorf("get payout: %w", err)
	}
	return p, nil
}

func (q *Queries) GetPayout(ctx context.Context, id uuid.UUID) (models.PayoutRequest, error) {
	return q.getPayout(ctx, `SELECT `+payoutColumns+` FROM payout_requests WHERE id = $1`, id)
}

func (q *Queries) GetPayoutForUpdate(ctx context.Context, id uuid.UUID) (models.PayoutRequest, error) {
	return q.getPayout(ctx, `SELECT `+payoutColumns+` FROM payout_requests WHERE id = $1 FOR UPDATE`, id)
}

func (q *Queries) GetPayoutByIdempotencyKey(ctx context.Context, key string) (models.PayoutRequest, error) {
	return q.getPayout(ctx, `SELECT `+payoutColumns+` FROM payout_requests WHERE idempotency_key = $1`, key)
}

func (q *Queries) GetPayoutByTransferIDForUpdate(ctx context.Context, transferID string) (models.PayoutRequest, error) {
	return q.getPayout(ctx, `SELECT `+payoutColumns+` FROM payout_requests WHERE external_transfer_id = $1 FOR UPDATE`, transferID)
}

func (q *Queries) MarkPayoutProcessing(ctx context.Context, arg MarkPayoutProcessingParams) (int64, error) {
	var rate decimal.NullDecimal
	if arg.ExchangeRate != nil {
		rate = decimal.NewNullDecimal(*arg.ExchangeRate)
	}
	tag, err := q.db.Exec(ctx, `
		UPDATE payout_requests
		SET status = 'PROCESSING',
		    provider_id = $2,
		    external_transfer_id = $3,
		    external_recipient_id = $4,
		    exchange_rate = $5,
		    target_amount_micros = $6,
		    target_currency = $7,
		    provider_fee_micros = $8,
		    updated_at = NOW()
		WHERE id = $1 AND status = 'PENDING'
	`, arg.ID, arg.ProviderID, arg.ExternalTransferID, arg.ExternalRecipientID, rate,
		arg.TargetAmountMicros, arg.TargetCurrency, arg.ProviderFeeMicros)
	if err != nil {
		return 0, fmt.Errorf("mark payout processing: %w", err)
	}
	return tag.RowsAffected(), nil
}

// SetPayoutTransferID backfills the transfer id learned by the reconciliation
// sweep after a create call timed out before returning one.
func (q *Queries) SetPayoutTransferID(ctx context.Context, id uuid.UUID, transferID string) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE payout_requests
		SET external_transfer_id = $2, updated_at = NOW()
		WHERE id = $1 AND external_transfer_id IS NULL
	`, id, transferID)
	if err != nil {
		return 0, fmt.Errorf("set payout transfer id: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (q *Queries) SetPayoutStatus(ctx context.Context, arg SetPayoutStatusParams) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE payout_requests
		SET status = $2,
		    error_code = COALESCE($3, error_code),
		    error_message = COALESCE($4, error_message),
		    completed_at = COALESCE($5, completed_at),
		    failed_at = COALESCE($6, failed_at),
		    updated_at = NOW()
		WHERE id = $1
	`, arg.ID, arg.Status, arg.ErrorCode, arg.ErrorMessage, arg.CompletedAt, arg.FailedAt)
	if err != nil {
		return 0, fmt.Errorf("set payout status: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (q *Queries) CountInflightPayouts(ctx context.Context, creatorID uuid.UUID) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM payout_requests
		WHERE creator_id = $1 AND status IN ('PENDING', 'PROCESSING')
	`, creatorID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count inflight payouts: %w", err)
	}
	return count, nil
}

func (q *Queries) SumPayoutsByStatus(ctx context.Context, creatorID uuid.UUID, status string) (int64, error) {
	var sum int64
	err := q.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount_micros), 0) FROM payout_requests
		WHERE creator_id = $1 AND status = $2
	`, creatorID, status).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum payouts by status: %w", err)
	}
	return sum, nil
}

func (q *Queries) ListStuckProcessingPayouts(ctx context.Context, updatedBefore time.Time, limit int32) ([]models.PayoutRequest, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+payoutColumns+` FROM payout_requests
		WHERE status = 'PROCESSING' AND updated_at < $1
		ORDER BY updated_at
		LIMIT $2
	`, updatedBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("list stuck processing payouts: %w", err)
	}
	defer rows.Close()

	var payouts []models.PayoutRequest
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payout: %w", err)
		}
		payouts = append(payouts, p)
	}
	return payouts, rows.Err()
}

// --- Status history ---

func (q *Queries) InsertStatusEvent(ctx context.Context, payoutID uuid.UUID, fromStatus, status, note string) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO payout_status_events (payout_id, from_status, status, note, created_at)
		VALUES ($1, $2, $3, $4, NOW())
	`, payoutID, fromStatus, status, note)
	if err != nil {
		return fmt.Errorf("insert status event: %w", err)
	}
	return nil
}

func (q *Queries) ListStatusEvents(ctx context.Context, payoutID uuid.UUID) ([]models.StatusEvent, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, payout_id, from_status, status, note, created_at
		FROM payout_status_events
		WHERE payout_id = $1
		ORDER BY id
	`, payoutID)
	if err != nil {
		return nil, fmt.Errorf("list status events: %w", err)
	}
	defer rows.Close()

	var events []models.StatusEvent
	for rows.Next() {
		var e models.StatusEvent
		if err := rows.Scan(&e.ID, &e.PayoutID, &e.FromStatus, &e.Status, &e.Note, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan status event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// --- Bank accounts ---

func (q *Queries) GetBankAccount(ctx context.Context, creatorID uuid.UUID) (models.BankAccountRecord, error) {
	var b models.BankAccountRecord
	err := q.db.QueryRow(ctx, `
		SELECT creator_id, country, currency, account_name, account_ref, status, external_recipient_id, updated_at
		FROM bank_accounts WHERE creator_id = $1
	`, creatorID).Scan(&b.CreatorID, &b.Country, &b.Currency, &b.AccountName, &b.AccountRef, &b.Status, &b.ExternalRecipientID, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return b, models.ErrBankAccountNotFound
	}
	if err != nil {
		return b, fmt.Errorf("get bank account: %w", err)
	}
	return b, nil
}

func (q *Queries) UpsertBankAccount(ctx context.Context, b models.BankAccountRecord) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO bank_accounts (creator_id, country, currency, account_name, account_ref, status, external_recipient_id, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (creator_id) DO UPDATE SET
			country = EXCLUDED.country,
			currency = EXCLUDED.currency,
			account_name = EXCLUDED.account_name,
			account_ref = EXCLUDED.account_ref,
			status = EXCLUDED.status,
			external_recipient_id = EXCLUDED.external_recipient_id,
			updated_at = NOW()
	`, b.CreatorID, b.Country, b.Currency, b.AccountName, b.AccountRef, b.Status, b.ExternalRecipientID)
	if err != nil {
		return fmt.Errorf("upsert bank account: %w", err)
	}
	return nil
}

func (q *Queries) SetBankAccountRecipient(ctx context.Context, creatorID uuid.UUID, recipientID string) error {
	_, err := q.db.Exec(ctx, `
		UPDATE bank_accounts SET external_recipient_id = $2, updated_at = NOW() WHERE creator_id = $1
	`, creatorID, recipientID)
	if err != nil {
		return fmt.Errorf("set bank account recipient: %w", err)
	}
	return nil
}

// --- Anomalies ---

func (q *Queries) InsertAnomaly(ctx context.Context, a models.Anomaly) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO anomalies (payout_id, transfer_id, kind, detail, resolved, created_at)
		VALUES ($1, $2, $3, $4, FALSE, NOW())
	`, a.PayoutID, a.TransferID, a.Kind, a.Detail)
	if err != nil {
		return fmt.Errorf("insert anomaly: %w", err)
	}
	return nil
}

func (q *Queries) ListAnomalies(ctx context.Context, onlyUnresolved bool, limit, offset int32) ([]models.Anomaly, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, payout_id, transfer_id, kind, detail, resolved, created_at
		FROM anomalies
		WHERE (NOT $1::bool) OR resolved = FALSE
		ORDER BY id DESC
		LIMIT $2 OFFSET $3
	`, onlyUnresolved, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list anomalies: %w", err)
	}
	defer rows.Close()

	var anomalies []models.Anomaly
	for rows.Next() {
		var a models.Anomaly
		if err := rows.Scan(&a.ID, &a.PayoutID, &a.TransferID, &a.Kind, &a.Detail, &a.Resolved, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan anomaly: %w", err)
		}
		anomalies = append(anomalies, a)
	}
	return anomalies, rows.Err()
}

func (q *Queries) ResolveAnomaly(ctx context.Context, id int64) (int64, error) {
	tag, err := q.db.Exec(ctx, `UPDATE anomalies SET resolved = TRUE WHERE id = $1 AND resolved = FALSE`, id)
	if err != nil {
		return 0, fmt.Errorf("resolve anomaly: %w", err)
	}
	return tag.RowsAffected(), nil
}
