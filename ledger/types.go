/*
Package ledger provides the petty-cash core: the running-balance ledger
and the approval state machine.

PURPOSE:
  This package owns the authoritative sequence of balance-affecting
  records (approved transactions and replenishment credits) and the
  rules that move a transaction or replenishment request between
  pending, approved, and rejected.

KEY CONCEPTS IN THIS FILE (types.go):
  - Transaction: a single cash movement with a running-balance snapshot
  - ReplenishmentRequest: a request to inject cash into the float
  - User/Role: identity and the role gate for approvals
  - Stats: read-only projections over the approved ledger

DESIGN PRINCIPLES:
  1. Approval-time appends: a pending transaction has no running balance
     and does not affect the chain until it is approved
  2. Precision: decimal.Decimal everywhere, exact to 2 decimal places
  3. Immutability: a decided entity is terminal; prior entries are never
     rewritten by later appends
  4. One capability table: every role check goes through Can()

SEE ALSO:
  - engine.go: submission, balance computation, stats
  - approval.go: the pending -> approved/rejected state machine
  - store.go: persistence interfaces
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ROLES
// =============================================================================

type Role string

const (
	RoleCustodian  Role = "custodian"
	RoleAccountant Role = "accountant"
	RoleAdmin      Role = "admin"
)

// ValidRole reports whether s names a known role.
func ValidRole(s string) bool {
	switch Role(s) {
	case RoleCustodian, RoleAccountant, RoleAdmin:
		return true
	}
	return false
}

// =============================================================================
// USER - referenced, never owned, by ledger records
// =============================================================================

type User struct {
	ID           string
	Username     string
	Email        string
	FirstName    string
	LastName     string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// =============================================================================
// LIFECYCLE STATUS
// =============================================================================

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Terminal reports whether the status permits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

type PaymentMethod string

const (
	PayCash  PaymentMethod = "cash"
	PayCheck PaymentMethod = "check"
	PayCard  PaymentMethod = "card"
)

// ValidPaymentMethod reports whether s names a known payment method.
func ValidPaymentMethod(s string) bool {
	switch PaymentMethod(s) {
	case PayCash, PayCheck, PayCard:
		return true
	}
	return false
}

// =============================================================================
// TRANSACTION - a single cash movement
// =============================================================================

// Transaction is one cash movement. Amount sign follows the float
// convention: expenses negative, replenishment credits positive. The
// engine records the sign as submitted; it does not enforce it.
//
// RunningBalance and EntrySeq are set exactly once, when the
// transaction joins the ledger on approval. They are nil while pending
// and stay nil forever on rejection.
type Transaction struct {
	ID            string
	Date          time.Time
	Description   string
	Amount        decimal.Decimal
	ReceivedBy    string
	PaymentMethod PaymentMethod

	// Opaque receipt reference, attached at submission time.
	ReceiptURL      string
	ReceiptFileName string

	Status      Status
	SubmittedBy string
	ApprovedBy  string
	ApprovedAt  *time.Time
	Comments    string

	RunningBalance *decimal.Decimal
	EntrySeq       *int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TransactionFilter selects transactions for list reads.
// Zero values mean "no filter"; Limit 0 means no cap.
type TransactionFilter struct {
	Status      Status
	SubmittedBy string
	Limit       int
	Offset      int
}

// =============================================================================
// REPLENISHMENT REQUEST
// =============================================================================

// ReplenishmentRequest asks for cash to be injected into the float.
// Approval synthesizes exactly one approved Transaction with
// amount = RequestedAmount, receivedBy "Cash Float", paymentMethod cash.
type ReplenishmentRequest struct {
	ID              string
	RequestedAmount decimal.Decimal
	Reason          string
	Status          Status
	RequestedBy     string
	ApprovedBy      string
	ApprovedAt      *time.Time
	Comments        string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ReplenishmentReceivedBy and ReplenishmentMethod are the fixed
// attributes of the transaction synthesized by an approved request.
const (
	ReplenishmentReceivedBy = "Cash Float"
	ReplenishmentMethod     = PayCash
)

// =============================================================================
// SETTING - key/value configuration with last-editor audit
// =============================================================================

type Setting struct {
	Key       string
	Value     string
	UpdatedBy string
	UpdatedAt time.Time
}

// SettingLowBalanceThreshold is the float level below which the
// dashboard warns that a replenishment is due.
const SettingLowBalanceThreshold = "low_balance_threshold"

// =============================================================================
// STATS - read-only projections over the approved ledger
// =============================================================================

type Stats struct {
	CurrentBalance     decimal.Decimal
	MonthlyTotal       decimal.Decimal
	PendingCount       int
	AverageTransaction decimal.Decimal
	TotalTransactions  int
}

// =============================================================================
// AMOUNT VALIDATION
// =============================================================================

// ParseAmount parses s as an exact decimal amount with at most two
// decimal places. Rejects empty, malformed, and over-precise input
// before anything touches the store.
func ParseAmount(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, &ValidationError{Field: "amount", Reason: "amount is required"}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, &ValidationError{Field: "amount", Reason: "not a valid decimal: " + s}
	}
	if !d.Equal(d.Round(2)) {
		return decimal.Zero, &ValidationError{Field: "amount", Reason: "more than 2 decimal places: " + s}
	}
	return d, nil
}

// MustParseDecimal parses s, returning zero on failure. For constants
// and store scans where the value was written by ParseAmount.
func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
