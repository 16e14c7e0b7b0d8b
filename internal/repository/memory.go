package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ayo6706/creator-payouts/internal/models"
	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store used by tests and local development. A
// single mutex serializes all access, which trivially satisfies the
// per-creator serialization the Postgres store gets from conditional
// single-row updates. RunInTx snapshots state and restores it when fn fails,
// mirroring transaction rollback.
type MemoryStore struct {
	mu    sync.Mutex
	state *memState
}

type memState struct {
	ledgers           map[uuid.UUID]models.CreatorLedger
	earnings          map[string]models.Earning
	payouts           map[uuid.UUID]models.PayoutRequest
	payoutsByKey      map[string]uuid.UUID
	payoutsByTransfer map[string]uuid.UUID
	events            []models.StatusEvent
	eventSeq          int64
	bankAccounts      map[uuid.UUID]models.BankAccountRecord
	anomalies         []models.Anomaly
	anomalySeq        int64
}

func newMemState() *memState {
	return &memState{
		ledgers:           make(map[uuid.UUID]models.CreatorLedger),
		earnings:          make(map[string]models.Earning),
		payouts:           make(map[uuid.UUID]models.PayoutRequest),
		payoutsByKey:      make(map[string]uuid.UUID),
		payoutsByTransfer: make(map[string]uuid.UUID),
		bankAccounts:      make(map[uuid.UUID]models.BankAccountRecord),
	}
}

func (s *memState) clone() *memState {
	c := &memState{
		ledgers:           make(map[uuid.UUID]models.CreatorLedger, len(s.ledgers)),
		earnings:          make(map[string]models.Earning, len(s.earnings)),
		payouts:           make(map[uuid.UUID]models.PayoutRequest, len(s.payouts)),
		payoutsByKey:      make(map[string]uuid.UUID, len(s.payoutsByKey)),
		payoutsByTransfer: make(map[string]uuid.UUID, len(s.payoutsByTransfer)),
		events:            append([]models.StatusEvent(nil), s.events...),
		eventSeq:          s.eventSeq,
		bankAccounts:      make(map[uuid.UUID]models.BankAccountRecord, len(s.bankAccounts)),
		anomalies:         append([]models.Anomaly(nil), s.anomalies...),
		anomalySeq:        s.anomalySeq,
	}
	for k, v := range s.ledgers {
		c.ledgers[k] = v
	}
	for k, v := range s.earnings {
		c.earnings[k] = v
	}
	for k, v := range s.payouts {
		c.payouts[k] = v
	}
	for k, v := range s.payoutsByKey {
		c.payoutsByKey[k] = v
	}
	for k, v := range s.payoutsByTransfer {
		c.payoutsByTransfer[k] = v
	}
	for k, v := range s.bankAccounts {
		c.bankAccounts[k] = v
	}
	return c
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemState()}
}

// Queries returns a query set that locks per call.
func (s *MemoryStore) Queries() Querier {
	return &memQuerier{store: s}
}

// RunInTx serializes fn against all other access and rolls the state back if
// fn returns an error.
func (s *MemoryStore) RunInTx(_ context.Context, fn func(q Querier) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.state.clone()
	if err := fn(&memQuerier{store: s, inTx: true}); err != nil {
		s.state = snapshot
		return err
	}
	return nil
}

type memQuerier struct {
	store *MemoryStore
	inTx  bool
}

func (q *memQuerier) lock() func() {
	if q.inTx {
		return func() {}
	}
	q.store.mu.Lock()
	return q.store.mu.Unlock
}

func (q *memQuerier) GetLedger(_ context.Context, creatorID uuid.UUID) (models.CreatorLedger, error) {
	defer q.lock()()
	l, ok := q.store.state.ledgers[creatorID]
	if !ok {
		return models.CreatorLedger{}, models.ErrLedgerNotFound
	}
	return l, nil
}

func (q *memQuerier) CreditLedger(_ context.Context, arg CreditLedgerParams) error {
	defer q.lock()()
	st := q.store.state
	now := time.Now()
	l, ok := st.ledgers[arg.CreatorID]
	if !ok {
		l = models.CreatorLedger{CreatorID: arg.CreatorID, Currency: arg.Currency, CreatedAt: now}
	}
	l.TotalEarnedMicros += arg.AmountMicros
	l.AvailableMicros += arg.AmountMicros
	l.UpdatedAt = now
	st.ledgers[arg.CreatorID] = l
	return nil
}

func (q *memQuerier) ReserveLedgerFunds(_ context.Context, creatorID uuid.UUID, amountMicros int64) (int64, error) {
	defer q.lock()()
	st := q.store.state
	l, ok := st.ledgers[creatorID]
	if !ok || l.AvailableMicros < amountMicros {
		return 0, nil
	}
	l.AvailableMicros -= amountMicros
	l.PendingMicros += amountMicros
	l.UpdatedAt = time.Now()
	st.ledgers[creatorID] = l
	return 1, nil
}

func (q *memQuerier) ReleaseLedgerFunds(_ context.Context, creatorID uuid.UUID, amountMicros int64) (int64, error) {
	defer q.lock()()
	st := q.store.state
	l, ok := st.ledgers[creatorID]
	if !ok || l.PendingMicros < amountMicros {
		return 0, nil
	}
	l.PendingMicros -= amountMicros
	l.AvailableMicros += amountMicros
	l.UpdatedAt = time.Now()
	st.ledgers[creatorID] = l
	return 1, nil
}

func (q *memQuerier) FinalizeLedgerFunds(_ context.Context, creatorID uuid.UUID, amountMicros int64) (int64, error) {
	defer q.lock()()
	st := q.store.state
	l, ok := st.ledgers[creatorID]
	if !ok || l.PendingMicros < amountMicros {
		return 0, nil
	}
	l.PendingMicros -= amountMicros
	l.UpdatedAt = time.Now()
	st.ledgers[creatorID] = l
	return 1, nil
}

func (q *memQuerier) DebitLedgerAvailable(_ context.Context, creatorID uuid.UUID, amountMicros int64) (int64, error) {
	defer q.lock()()
	st := q.store.state
	l, ok := st.ledgers[creatorID]
	if !ok || l.AvailableMicros < amountMicros {
		return 0, nil
	}
	l.AvailableMicros -= amountMicros
	l.UpdatedAt = time.Now()
	st.ledgers[creatorID] = l
	return 1, nil
}

func (q *memQuerier) ListLedgers(_ context.Context) ([]models.CreatorLedger, error) {
	defer q.lock()()
	out := make([]models.CreatorLedger, 0, len(q.store.state.ledgers))
	for _, l := range q.store.state.ledgers {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (q *memQuerier) InsertEarning(_ context.Context, e models.Earning) error {
	defer q.lock()()
	st := q.store.state
	if _, exists := st.earnings[e.SourceRef]; exists {
		return models.ErrDuplicateSourceRef
	}
	e.CreatedAt = time.Now()
	st.earnings[e.SourceRef] = e
	return nil
}

func (q *memQuerier) InsertPayout(_ context.Context, p models.PayoutRequest) error {
	defer q.lock()()
	st := q.store.state
	if _, exists := st.payoutsByKey[p.IdempotencyKey]; exists {
		return models.ErrDuplicateKey
	}
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now
	st.payouts[p.ID] = p
	st.payoutsByKey[p.IdempotencyKey] = p.ID
	return nil
}

func (q *memQuerier) GetPayout(_ context.Context, id uuid.UUID) (models.PayoutRequest, error) {
	defer q.lock()()
	return q.store.state.payout(id)
}

func (q *memQuerier) GetPayoutForUpdate(ctx context.Context, id uuid.UUID) (models.PayoutRequest, error) {
	return q.GetPayout(ctx, id)
}

func (q *memQuerier) GetPayoutByIdempotencyKey(_ context.Context, key string) (models.PayoutRequest, error) {
	defer q.lock()()
	id, ok := q.store.state.payoutsByKey[key]
	if !ok {
		return models.PayoutRequest{}, models.ErrPayoutNotFound
	}
	return q.store.state.payout(id)
}

func (q *memQuerier) GetPayoutByTransferIDForUpdate(_ context.Context, transferID string) (models.PayoutRequest, error) {
	defer q.lock()()
	id, ok := q.store.state.payoutsByTransfer[transferID]
	if !ok {
		return models.PayoutRequest{}, models.ErrPayoutNotFound
	}
	return q.store.state.payout(id)
}

func (st *memState) payout(id uuid.UUID) (models.PayoutRequest, error) {
	p, ok := st.payouts[id]
	if !ok {
		return models.PayoutRequest{}, models.ErrPayoutNotFound
	}
	return p, nil
}

func (q *memQuerier) MarkPayoutProcessing(_ context.Context, arg MarkPayoutProcessingParams) (int64, error) {
	defer q.lock()()
	st := q.store.state
	p, ok := st.payouts[arg.ID]
	if !ok || p.Status != "PENDING" {
		return 0, nil
	}
	p.Status = "PROCESSING"
	p.ProviderID = arg.ProviderID
	p.ExternalTransferID = arg.ExternalTransferID
	p.ExternalRecipientID = arg.ExternalRecipientID
	p.ExchangeRate = arg.ExchangeRate
	p.TargetAmountMicros = arg.TargetAmountMicros
	p.TargetCurrency = arg.TargetCurrency
	p.ProviderFeeMicros = arg.ProviderFeeMicros
	p.UpdatedAt = time.Now()
	st.payouts[arg.ID] = p
	if arg.ExternalTransferID != nil {
		st.payoutsByTransfer[*arg.ExternalTransferID] = arg.ID
	}
	return 1, nil
}

func (q *memQuerier) SetPayoutTransferID(_ context.Context, id uuid.UUID, transferID string) (int64, error) {
	defer q.lock()()
	st := q.store.state
	p, ok := st.payouts[id]
	if !ok || p.ExternalTransferID != nil {
		return 0, nil
	}
	tid := transferID
	p.ExternalTransferID = &tid
	p.UpdatedAt = time.Now()
	st.payouts[id] = p
	st.payoutsByTransfer[transferID] = id
	return 1, nil
}

func (q *memQuerier) SetPayoutStatus(_ context.Context, arg SetPayoutStatusParams) (int64, error) {
	defer q.lock()()
	st := q.store.state
	p, ok := st.payouts[arg.ID]
	if !ok {
		return 0, nil
	}
	p.Status = arg.Status
	if arg.ErrorCode != nil {
		p.ErrorCode = arg.ErrorCode
	}
	if arg.ErrorMessage != nil {
		p.ErrorMessage = arg.ErrorMessage
	}
	if arg.CompletedAt != nil {
		p.CompletedAt = arg.CompletedAt
	}
	if arg.FailedAt != nil {
		p.FailedAt = arg.FailedAt
	}
	p.UpdatedAt = time.Now()
	st.payouts[arg.ID] = p
	return 1, nil
}

func (q *memQuerier) CountInflightPayouts(_ context.Context, creatorID uuid.UUID) (int64, error) {
	defer q.lock()()
	var count int64
	for _, p := range q.store.state.payouts {
		if p.CreatorID == creatorID && (p.Status == "PENDING" || p.Status == "PROCESSING") {
			count++
		}
	}
	return count, nil
}

func (q *memQuerier) SumPayoutsByStatus(_ context.Context, creatorID uuid.UUID, status string) (int64, error) {
	defer q.lock()()
	var sum int64
	for _, p := range q.store.state.payouts {
		if p.CreatorID == creatorID && p.Status == status {
			sum += p.AmountMicros
		}
	}
	return sum, nil
}

func (q *memQuerier) ListStuckProcessingPayouts(_ context.Context, updatedBefore time.Time, limit int32) ([]models.PayoutRequest, error) {
	defer q.lock()()
	var out []models.PayoutRequest
	for _, p := range q.store.state.payouts {
		if p.Status == "PROCESSING" && p.UpdatedAt.Before(updatedBefore) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if int32(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (q *memQuerier) InsertStatusEvent(_ context.Context, payoutID uuid.UUID, fromStatus, status, note string) error {
	defer q.lock()()
	st := q.store.state
	st.eventSeq++
	st.events = append(st.events, models.StatusEvent{
		ID:         st.eventSeq,
		PayoutID:   payoutID,
		FromStatus: fromStatus,
		Status:     status,
		Note:       note,
		CreatedAt:  time.Now(),
	})
	return nil
}

func (q *memQuerier) ListStatusEvents(_ context.Context, payoutID uuid.UUID) ([]models.StatusEvent, error) {
	defer q.lock()()
	var out []models.StatusEvent
	for _, e := range q.store.state.events {
		if e.PayoutID == payoutID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (q *memQuerier) GetBankAccount(_ context.Context, creatorID uuid.UUID) (models.BankAccountRecord, error) {
	defer q.lock()()
	b, ok := q.store.state.bankAccounts[creatorID]
	if !ok {
		return models.BankAccountRecord{}, models.ErrBankAccountNotFound
	}
	return b, nil
}

func (q *memQuerier) UpsertBankAccount(_ context.Context, b models.BankAccountRecord) error {
	defer q.lock()()
	b.UpdatedAt = time.Now()
	q.store.state.bankAccounts[b.CreatorID] = b
	return nil
}

func (q *memQuerier) SetBankAccountRecipient(_ context.Context, creatorID uuid.UUID, recipientID string) error {
	defer q.lock()()
	st := q.store.state
	b, ok := st.bankAccounts[creatorID]
	if !ok {
		return nil
	}
	rid := recipientID
	b.ExternalRecipientID = &rid
	b.UpdatedAt = time.Now()
	st.bankAccounts[creatorID] = b
	return nil
}

func (q *memQuerier) InsertAnomaly(_ context.Context, a models.Anomaly) error {
	defer q.lock()()
	st := q.store.state
	st.anomalySeq++
	a.ID = st.anomalySeq
	a.CreatedAt = time.Now()
	st.anomalies = append(st.anomalies, a)
	return nil
}

func (q *memQuerier) ListAnomalies(_ context.Context, onlyUnresolved bool, limit, offset int32) ([]models.Anomaly, error) {
	defer q.lock()()
	var out []models.Anomaly
	for i := len(q.store.state.anomalies) - 1; i >= 0; i-- {
		a := q.store.state.anomalies[i]
		if onlyUnresolved && a.Resolved {
			continue
		}
		out = append(out, a)
	}
	if int(offset) < len(out) {
		out = out[offset:]
	} else {
		out = nil
	}
	if int32(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (q *memQuerier) ResolveAnomaly(_ context.Context, id int64) (int64, error) {
	defer q.lock()()
	st := q.store.state
	for i, a := range st.anomalies {
		if a.ID == id && !a.Resolved {
			st.anomalies[i].Resolved = true
			return 1, nil
		}
	}
	return 0, nil
}
