/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  Amounts and balances travel as strings ("-45.50"), never floats.
  Clients that parse them as floats do so at their own risk; the server
  round-trips them through decimal exactly.

SEE ALSO:
  - handlers.go: Uses these types
  - ledger/types.go: Domain model
*/
package api

import (
	"time"

	"github.com/floatworks/pettycash/ledger"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// UserDTO represents a user in API responses. The password hash never
// leaves the server.
type UserDTO struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email,omitempty"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Role      string `json:"role"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// RegisterRequest is the request to create an account.
type RegisterRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// LoginRequest is the request to start a session.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthResponse carries a session token and the authenticated user.
type AuthResponse struct {
	Token string  `json:"token"`
	User  UserDTO `json:"user"`
}

// UpdateRoleRequest changes a user's role.
type UpdateRoleRequest struct {
	Role string `json:"role"`
}

// TransactionDTO represents a transaction in API responses.
type TransactionDTO struct {
	ID              string  `json:"id"`
	Date            string  `json:"date"`
	Description     string  `json:"description"`
	Amount          string  `json:"amount"`
	ReceivedBy      string  `json:"receivedBy"`
	PaymentMethod   string  `json:"paymentMethod"`
	ReceiptURL      string  `json:"receiptUrl,omitempty"`
	ReceiptFileName string  `json:"receiptFileName,omitempty"`
	Status          string  `json:"status"`
	SubmittedBy     string  `json:"submittedBy"`
	ApprovedBy      string  `json:"approvedBy,omitempty"`
	ApprovedAt      string  `json:"approvedAt,omitempty"`
	Comments        string  `json:"comments,omitempty"`
	RunningBalance  *string `json:"runningBalance,omitempty"`
	EntrySeq        *int64  `json:"entrySeq,omitempty"`
	CreatedAt       string  `json:"createdAt"`
}

// CreateTransactionRequest is the JSON form of a submission. Multipart
// submissions carry the same fields plus an optional receipt file.
type CreateTransactionRequest struct {
	Date          string `json:"date"`
	Description   string `json:"description"`
	Amount        string `json:"amount"`
	ReceivedBy    string `json:"receivedBy"`
	PaymentMethod string `json:"paymentMethod"`
}

// DecisionRequest moves a pending entity to approved or rejected.
type DecisionRequest struct {
	Status   string `json:"status"`
	Comments string `json:"comments"`
}

// ReplenishmentDTO represents a replenishment request in responses.
type ReplenishmentDTO struct {
	ID              string `json:"id"`
	RequestedAmount string `json:"requestedAmount"`
	Reason          string `json:"reason"`
	Status          string `json:"status"`
	RequestedBy     string `json:"requestedBy"`
	ApprovedBy      string `json:"approvedBy,omitempty"`
	ApprovedAt      string `json:"approvedAt,omitempty"`
	Comments        string `json:"comments,omitempty"`
	CreatedAt       string `json:"createdAt"`
}

// CreateReplenishmentRequest asks for cash to be added to the float.
type CreateReplenishmentRequest struct {
	Amount string `json:"amount"`
	Reason string `json:"reason"`
}

// StatsDTO is the dashboard summary.
type StatsDTO struct {
	CurrentBalance     string `json:"currentBalance"`
	MonthlyTotal       string `json:"monthlyTotal"`
	PendingCount       int    `json:"pendingCount"`
	AverageTransaction string `json:"averageTransaction"`
	TotalTransactions  int    `json:"totalTransactions"`
}

// SettingDTO represents a configuration record.
type SettingDTO struct {
	Key       string `json:"key"`
	Value     string `json:"value"`
	UpdatedBy string `json:"updatedBy"`
	UpdatedAt string `json:"updatedAt"`
}

// UpdateSettingRequest writes a configuration value.
type UpdateSettingRequest struct {
	Value string `json:"value"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toUserDTO(u *ledger.User) UserDTO {
	return UserDTO{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Role:      string(u.Role),
		CreatedAt: u.CreatedAt.Format(time.RFC3339),
	}
}

func toTransactionDTO(tx *ledger.Transaction) TransactionDTO {
	dto := TransactionDTO{
		ID:              tx.ID,
		Date:            tx.Date.UTC().Format("2006-01-02"),
		Description:     tx.Description,
		Amount:          tx.Amount.StringFixed(2),
		ReceivedBy:      tx.ReceivedBy,
		PaymentMethod:   string(tx.PaymentMethod),
		ReceiptURL:      tx.ReceiptURL,
		ReceiptFileName: tx.ReceiptFileName,
		Status:          string(tx.Status),
		SubmittedBy:     tx.SubmittedBy,
		ApprovedBy:      tx.ApprovedBy,
		Comments:        tx.Comments,
		EntrySeq:        tx.EntrySeq,
		CreatedAt:       tx.CreatedAt.Format(time.RFC3339),
	}
	if tx.ApprovedAt != nil {
		dto.ApprovedAt = tx.ApprovedAt.Format(time.RFC3339)
	}
	if tx.RunningBalance != nil {
		s := tx.RunningBalance.StringFixed(2)
		dto.RunningBalance = &s
	}
	return dto
}

func toTransactionDTOs(txs []ledger.Transaction) []TransactionDTO {
	dtos := make([]TransactionDTO, len(txs))
	for i := range txs {
		dtos[i] = toTransactionDTO(&txs[i])
	}
	return dtos
}

func toReplenishmentDTO(r *ledger.ReplenishmentRequest) ReplenishmentDTO {
	dto := ReplenishmentDTO{
		ID:              r.ID,
		RequestedAmount: r.RequestedAmount.StringFixed(2),
		Reason:          r.Reason,
		Status:          string(r.Status),
		RequestedBy:     r.RequestedBy,
		ApprovedBy:      r.ApprovedBy,
		Comments:        r.Comments,
		CreatedAt:       r.CreatedAt.Format(time.RFC3339),
	}
	if r.ApprovedAt != nil {
		dto.ApprovedAt = r.ApprovedAt.Format(time.RFC3339)
	}
	return dto
}

func toReplenishmentDTOs(rs []ledger.ReplenishmentRequest) []ReplenishmentDTO {
	dtos := make([]ReplenishmentDTO, len(rs))
	for i := range rs {
		dtos[i] = toReplenishmentDTO(&rs[i])
	}
	return dtos
}

func toStatsDTO(s ledger.Stats) StatsDTO {
	return StatsDTO{
		CurrentBalance:     s.CurrentBalance.StringFixed(2),
		MonthlyTotal:       s.MonthlyTotal.StringFixed(2),
		PendingCount:       s.PendingCount,
		AverageTransaction: s.AverageTransaction.StringFixed(2),
		TotalTransactions:  s.TotalTransactions,
	}
}

func toSettingDTO(s *ledger.Setting) SettingDTO {
	return SettingDTO{
		Key:       s.Key,
		Value:     s.Value,
		UpdatedBy: s.UpdatedBy,
		UpdatedAt: s.UpdatedAt.Format(time.RFC3339),
	}
}
