/*
store.go - Persistence interfaces for the petty-cash core

PURPOSE:
  Defines the boundary between the core and the database. The engine
  only ever talks to these interfaces; store/sqlite and ledger/store
  (memory) implement them.

LEDGER CONTRACT:
  The running-balance chain is maintained through exactly two store
  primitives used together inside one transaction:
    - LatestEntry: read the balance and sequence of the newest entry
    - a write (InsertTransaction or UpdateTransactionDecision) that
      stamps the computed balance and the next sequence number
  TxStore.WithTx makes the read-then-write atomic: either the entry is
  fully recorded (identity, balance, sequence) or nothing is.

  Prior entries are never mutated. UpdateTransactionDecision writes
  status, approver, timestamps, comments, running balance, and entry
  sequence on a pending row exactly once; it is not a general update.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: production SQLite
  - ledger/store/memory.go: in-memory for tests
*/
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Store handles persistence of ledger entities.
type Store interface {
	// InsertTransaction persists a new transaction, pending or (for
	// replenishment credits) already approved with a balance.
	InsertTransaction(ctx context.Context, tx *Transaction) error

	// GetTransaction returns the transaction or (nil, nil) if absent.
	GetTransaction(ctx context.Context, id string) (*Transaction, error)

	// ListTransactions returns transactions newest-first, filtered.
	ListTransactions(ctx context.Context, f TransactionFilter) ([]Transaction, error)

	// UpdateTransactionDecision records the outcome of a transition on
	// a pending transaction: status, approver, decision time, comments
	// and, for approvals, running balance and entry sequence.
	UpdateTransactionDecision(ctx context.Context, tx *Transaction) error

	// InsertReplenishment persists a new pending request.
	InsertReplenishment(ctx context.Context, r *ReplenishmentRequest) error

	// GetReplenishment returns the request or (nil, nil) if absent.
	GetReplenishment(ctx context.Context, id string) (*ReplenishmentRequest, error)

	// ListReplenishments returns requests newest-first; empty status
	// means all.
	ListReplenishments(ctx context.Context, status Status) ([]ReplenishmentRequest, error)

	// UpdateReplenishmentDecision records the outcome of a transition.
	UpdateReplenishmentDecision(ctx context.Context, r *ReplenishmentRequest) error

	// LatestEntry returns the running balance and sequence of the
	// newest ledger entry. ok is false for an empty ledger.
	LatestEntry(ctx context.Context) (balance decimal.Decimal, seq int64, ok bool, err error)

	// TransactionStats computes the aggregate projections over the
	// approved subset. monthStart bounds the monthly expense total.
	TransactionStats(ctx context.Context, monthStart time.Time) (Stats, error)
}

// TxStore wraps Store with transaction support. The engine runs every
// ledger-affecting decision inside WithTx so that the read-latest-then-
// write pair cannot interleave with a concurrent append or fail halfway.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction. If fn returns an error
	// the transaction is rolled back, otherwise committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// UserStore handles user persistence. Kept separate from Store: users
// are referenced by ledger records but live independently of them.
type UserStore interface {
	CreateUser(ctx context.Context, u *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	ListUsers(ctx context.Context) ([]User, error)
	UpdateUserRole(ctx context.Context, id string, role Role) (*User, error)
}

// SettingStore handles configuration records.
type SettingStore interface {
	GetSetting(ctx context.Context, key string) (*Setting, error)
	SetSetting(ctx context.Context, key, value, updatedBy string) (*Setting, error)
}
