/*
engine.go - The ledger engine

PURPOSE:
  Owns the globally ordered append sequence of balance-affecting
  records and computes the running balance at each append. Submission
  creates pending entities with no ledger effect; approval (approval.go)
  is the only path that appends.

KEY ALGORITHM:
  Sequential-append balance computation. Each append reads the newest
  entry's running balance (0 for an empty ledger), adds the amount, and
  persists the new entry with that balance and the next sequence number.
  The ordering key is append order, not the user-supplied transaction
  date, so backdated transactions never rewrite historical balances.

CONCURRENCY:
  The read-then-write append is a read-modify-write hazard: two
  unserialized appends could read the same "latest" balance. Appends are
  serialized twice over - an engine-level mutex plus a store transaction
  around the read-latest-then-write pair. Reads (balance, stats, lists)
  take no lock and are only weakly consistent with in-flight appends.
*/
package ledger

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Engine is the single owner of the ledger append sequence.
type Engine struct {
	store TxStore

	// mu serializes ledger-affecting decisions.
	mu sync.Mutex

	now   func() time.Time
	newID func() string
}

// NewEngine creates an engine on top of a transactional store.
func NewEngine(store TxStore) *Engine {
	return &Engine{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
}

// =============================================================================
// SUBMISSION - any authenticated user, always pending, no ledger effect
// =============================================================================

// TransactionDraft carries the caller-supplied fields of a submission.
type TransactionDraft struct {
	Date            time.Time
	Description     string
	Amount          decimal.Decimal
	ReceivedBy      string
	PaymentMethod   PaymentMethod
	ReceiptURL      string
	ReceiptFileName string
}

// SubmitTransaction validates the draft and persists it as pending.
// The amount sign is taken as submitted: expenses negative,
// credits positive, by caller convention.
func (e *Engine) SubmitTransaction(ctx context.Context, draft TransactionDraft, submitterID string) (*Transaction, error) {
	if err := validateDraft(draft); err != nil {
		return nil, err
	}
	if submitterID == "" {
		return nil, &ValidationError{Field: "submittedBy", Reason: "submitter is required"}
	}

	now := e.now()
	tx := &Transaction{
		ID:              e.newID(),
		Date:            draft.Date,
		Description:     strings.TrimSpace(draft.Description),
		Amount:          draft.Amount,
		ReceivedBy:      strings.TrimSpace(draft.ReceivedBy),
		PaymentMethod:   draft.PaymentMethod,
		ReceiptURL:      draft.ReceiptURL,
		ReceiptFileName: draft.ReceiptFileName,
		Status:          StatusPending,
		SubmittedBy:     submitterID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := e.store.InsertTransaction(ctx, tx); err != nil {
		return nil, err
	}
	return tx, nil
}

func validateDraft(draft TransactionDraft) error {
	if draft.Date.IsZero() {
		return &ValidationError{Field: "date", Reason: "date is required"}
	}
	if strings.TrimSpace(draft.Description) == "" {
		return &ValidationError{Field: "description", Reason: "description is required"}
	}
	if strings.TrimSpace(draft.ReceivedBy) == "" {
		return &ValidationError{Field: "receivedBy", Reason: "received-by name is required"}
	}
	if !ValidPaymentMethod(string(draft.PaymentMethod)) {
		return &ValidationError{Field: "paymentMethod", Reason: "must be cash, check or card"}
	}
	if draft.Amount.IsZero() {
		return &ValidationError{Field: "amount", Reason: "amount must be non-zero"}
	}
	if !draft.Amount.Equal(draft.Amount.Round(2)) {
		return &ValidationError{Field: "amount", Reason: "more than 2 decimal places"}
	}
	return nil
}

// ReplenishmentDraft carries the caller-supplied fields of a request.
type ReplenishmentDraft struct {
	RequestedAmount decimal.Decimal
	Reason          string
}

// SubmitReplenishment validates the draft and persists it as pending.
// The requested amount is always positive.
func (e *Engine) SubmitReplenishment(ctx context.Context, draft ReplenishmentDraft, requesterID string) (*ReplenishmentRequest, error) {
	if !draft.RequestedAmount.IsPositive() {
		return nil, &ValidationError{Field: "requestedAmount", Reason: "requested amount must be positive"}
	}
	if !draft.RequestedAmount.Equal(draft.RequestedAmount.Round(2)) {
		return nil, &ValidationError{Field: "requestedAmount", Reason: "more than 2 decimal places"}
	}
	if strings.TrimSpace(draft.Reason) == "" {
		return nil, &ValidationError{Field: "reason", Reason: "reason is required"}
	}
	if requesterID == "" {
		return nil, &ValidationError{Field: "requestedBy", Reason: "requester is required"}
	}

	now := e.now()
	r := &ReplenishmentRequest{
		ID:              e.newID(),
		RequestedAmount: draft.RequestedAmount,
		Reason:          strings.TrimSpace(draft.Reason),
		Status:          StatusPending,
		RequestedBy:     requesterID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := e.store.InsertReplenishment(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// =============================================================================
// APPEND - the one place a running balance is computed
// =============================================================================

// appendEntry computes the running balance and sequence for a new
// ledger entry. Must run inside WithTx, under e.mu.
func appendEntry(ctx context.Context, s Store, amount decimal.Decimal) (balance decimal.Decimal, seq int64, err error) {
	last, lastSeq, ok, err := s.LatestEntry(ctx)
	if err != nil {
		return decimal.Zero, 0, err
	}
	if !ok {
		// Base case: empty ledger starts from zero.
		return amount, 1, nil
	}
	return last.Add(amount), lastSeq + 1, nil
}

// =============================================================================
// READS
// =============================================================================

// CurrentBalance returns the running balance of the newest ledger
// entry, or zero for an empty ledger.
func (e *Engine) CurrentBalance(ctx context.Context) (decimal.Decimal, error) {
	balance, _, ok, err := e.store.LatestEntry(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	if !ok {
		return decimal.Zero, nil
	}
	return balance, nil
}

// Stats returns the aggregate projections over the approved ledger.
// The monthly total covers the calendar month containing now.
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	now := e.now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return e.store.TransactionStats(ctx, monthStart)
}

// GetTransaction returns a transaction by id.
func (e *Engine) GetTransaction(ctx context.Context, id string) (*Transaction, error) {
	tx, err := e.store.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, &NotFoundError{Kind: "transaction", ID: id}
	}
	return tx, nil
}

// ListTransactions returns transactions newest-first, filtered.
func (e *Engine) ListTransactions(ctx context.Context, f TransactionFilter) ([]Transaction, error) {
	return e.store.ListTransactions(ctx, f)
}

// GetReplenishment returns a replenishment request by id.
func (e *Engine) GetReplenishment(ctx context.Context, id string) (*ReplenishmentRequest, error) {
	r, err := e.store.GetReplenishment(ctx, id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, &NotFoundError{Kind: "replenishment request", ID: id}
	}
	return r, nil
}

// ListReplenishments returns requests newest-first; empty status means all.
func (e *Engine) ListReplenishments(ctx context.Context, status Status) ([]ReplenishmentRequest, error) {
	return e.store.ListReplenishments(ctx, status)
}
