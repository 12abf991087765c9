/*
handlers.go - HTTP API handlers for the petty-cash system

PURPOSE:
  Exposes the ledger engine via REST API. Handles HTTP request/response,
  JSON serialization, receipt uploads, and delegates to domain logic.

ENDPOINTS:
  Auth:
    POST   /api/register                 Create account + session token
    POST   /api/login                    Start a session
    GET    /api/user                     Current user

  Users (admin):
    GET    /api/users                    List users
    PATCH  /api/users/{id}/role          Change a user's role

  Transactions:
    POST   /api/transactions             Submit (multipart or JSON)
    GET    /api/transactions             List (custodians see own only)
    GET    /api/transactions/stats       Dashboard summary
    GET    /api/transactions/{id}        Point lookup
    PATCH  /api/transactions/{id}/status Approve/reject

  Replenishments:
    POST   /api/replenishments           Request cash injection
    GET    /api/replenishments           List (optional ?status=)
    PATCH  /api/replenishments/{id}/status Approve/reject

  Settings:
    GET    /api/settings/{key}
    PUT    /api/settings/{key}           accountant/admin

  Export:
    GET    /api/export/transactions      CSV download

ERROR HANDLING:
  Domain errors map to HTTP status by sentinel:
  - ErrValidation       -> 400
  - ErrPermissionDenied -> 403
  - ErrNotFound         -> 404
  - ErrAlreadyDecided   -> 409
  - anything else       -> 500

SEE ALSO:
  - dto.go: Request/response data structures
  - middleware.go: Authentication
  - server.go: Router setup
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/floatworks/pettycash/auth"
	"github.com/floatworks/pettycash/ledger"
	"github.com/floatworks/pettycash/report"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// maxReceiptSize caps receipt uploads at 5 MB.
const maxReceiptSize = 5 << 20

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine   *ledger.Engine
	Users    ledger.UserStore
	Settings ledger.SettingStore
	Auth     *auth.PasswordAuthenticator
	Tokens   *auth.JWTManager

	// UploadDir is where receipt files land. Served under /uploads.
	UploadDir string
}

// NewHandler creates a new handler with the given dependencies.
func NewHandler(engine *ledger.Engine, users ledger.UserStore, settings ledger.SettingStore,
	authn *auth.PasswordAuthenticator, tokens *auth.JWTManager, uploadDir string) *Handler {
	return &Handler{
		Engine:    engine,
		Users:     users,
		Settings:  settings,
		Auth:      authn,
		Tokens:    tokens,
		UploadDir: uploadDir,
	}
}

// =============================================================================
// AUTH HANDLERS
// =============================================================================

// Register creates a new account and returns a session token.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	user, err := h.Auth.Register(r.Context(), auth.Registration{
		Username:  req.Username,
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrUsernameExists):
			writeError(w, http.StatusConflict, "Username already exists", nil)
		case errors.Is(err, auth.ErrWeakPassword), errors.Is(err, auth.ErrUsernameRequired):
			writeError(w, http.StatusBadRequest, err.Error(), nil)
		default:
			writeError(w, http.StatusInternalServerError, "Registration failed", err)
		}
		return
	}

	token, err := h.Tokens.Generate(user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create session", err)
		return
	}

	slog.Info("user registered", "user", user.Username)
	writeJSON(w, http.StatusCreated, AuthResponse{Token: token, User: toUserDTO(user)})
}

// Login authenticates a user and returns a session token.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	user, err := h.Auth.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid username or password", nil)
		return
	}

	token, err := h.Tokens.Generate(user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create session", err)
		return
	}

	writeJSON(w, http.StatusOK, AuthResponse{Token: token, User: toUserDTO(user)})
}

// GetCurrentUser returns the authenticated user.
func (h *Handler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toUserDTO(currentUser(r.Context())))
}

// =============================================================================
// USER MANAGEMENT HANDLERS (admin)
// =============================================================================

// ListUsers returns all users.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Users.ListUsers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list users", err)
		return
	}

	dtos := make([]UserDTO, len(users))
	for i := range users {
		dtos[i] = toUserDTO(&users[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// UpdateUserRole changes a user's role.
func (h *Handler) UpdateUserRole(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req UpdateRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if !ledger.ValidRole(req.Role) {
		writeError(w, http.StatusBadRequest, "Invalid role (use custodian, accountant or admin)", nil)
		return
	}

	user, err := h.Users.UpdateUserRole(r.Context(), id, ledger.Role(req.Role))
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	slog.Info("role updated", "user", user.Username, "role", user.Role)
	writeJSON(w, http.StatusOK, toUserDTO(user))
}

// =============================================================================
// TRANSACTION HANDLERS
// =============================================================================

// CreateTransaction submits a new pending transaction. Accepts JSON or
// multipart/form-data with an optional receipt file.
func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r.Context())

	var (
		req             CreateTransactionRequest
		receiptURL      string
		receiptFileName string
	)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		r.Body = http.MaxBytesReader(w, r.Body, maxReceiptSize+1<<20)
		if err := r.ParseMultipartForm(maxReceiptSize); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid multipart form (receipts are capped at 5 MB)", err)
			return
		}
		req = CreateTransactionRequest{
			Date:          r.FormValue("date"),
			Description:   r.FormValue("description"),
			Amount:        r.FormValue("amount"),
			ReceivedBy:    r.FormValue("receivedBy"),
			PaymentMethod: r.FormValue("paymentMethod"),
		}

		file, header, err := r.FormFile("receipt")
		if err == nil {
			defer file.Close()
			receiptURL, receiptFileName, err = h.saveReceipt(file, header.Filename, header.Size)
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error(), nil)
				return
			}
		} else if err != http.ErrMissingFile {
			writeError(w, http.StatusBadRequest, "Invalid receipt upload", err)
			return
		}
	} else {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	date, err := parseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}
	amount, err := ledger.ParseAmount(req.Amount)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	tx, err := h.Engine.SubmitTransaction(r.Context(), ledger.TransactionDraft{
		Date:            date,
		Description:     req.Description,
		Amount:          amount,
		ReceivedBy:      req.ReceivedBy,
		PaymentMethod:   ledger.PaymentMethod(req.PaymentMethod),
		ReceiptURL:      receiptURL,
		ReceiptFileName: receiptFileName,
	}, user.ID)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	submissionsTotal.WithLabelValues("transaction").Inc()
	writeJSON(w, http.StatusCreated, toTransactionDTO(tx))
}

// ListTransactions returns transactions newest-first. Custodians only
// ever see their own submissions.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r.Context())

	filter := ledger.TransactionFilter{
		Status: ledger.Status(r.URL.Query().Get("status")),
		Limit:  queryInt(r, "limit"),
		Offset: queryInt(r, "offset"),
	}
	if user.Role == ledger.RoleCustodian {
		filter.SubmittedBy = user.ID
	}

	txs, err := h.Engine.ListTransactions(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list transactions", err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTOs(txs))
}

// GetTransaction returns a single transaction.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := h.Engine.GetTransaction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(tx))
}

// GetStats returns the dashboard summary.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Engine.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to compute stats", err)
		return
	}

	balance, _ := stats.CurrentBalance.Float64()
	currentBalance.Set(balance)

	writeJSON(w, http.StatusOK, toStatsDTO(stats))
}

// DecideTransaction approves or rejects a pending transaction.
func (h *Handler) DecideTransaction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	actor := currentUser(r.Context())

	var req DecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	tx, err := h.Engine.DecideTransaction(r.Context(), id, ledger.Status(req.Status), *actor, req.Comments)
	if err != nil {
		recordDecisionFailure(err)
		writeLedgerError(w, err)
		return
	}

	decisionsTotal.WithLabelValues("transaction", string(tx.Status)).Inc()
	slog.Info("transaction decided", "id", tx.ID, "status", tx.Status, "by", actor.Username)
	writeJSON(w, http.StatusOK, toTransactionDTO(tx))
}

// =============================================================================
// REPLENISHMENT HANDLERS
// =============================================================================

// CreateReplenishment submits a new pending replenishment request.
func (h *Handler) CreateReplenishment(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r.Context())

	var req CreateReplenishmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	amount, err := ledger.ParseAmount(req.Amount)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	rep, err := h.Engine.SubmitReplenishment(r.Context(), ledger.ReplenishmentDraft{
		RequestedAmount: amount,
		Reason:          req.Reason,
	}, user.ID)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	submissionsTotal.WithLabelValues("replenishment").Inc()
	writeJSON(w, http.StatusCreated, toReplenishmentDTO(rep))
}

// ListReplenishments returns replenishment requests, optionally
// filtered by ?status=.
func (h *Handler) ListReplenishments(w http.ResponseWriter, r *http.Request) {
	reps, err := h.Engine.ListReplenishments(r.Context(), ledger.Status(r.URL.Query().Get("status")))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list replenishments", err)
		return
	}
	writeJSON(w, http.StatusOK, toReplenishmentDTOs(reps))
}

// DecideReplenishment approves or rejects a pending request. Approval
// credits the float through a synthesized transaction.
func (h *Handler) DecideReplenishment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	actor := currentUser(r.Context())

	var req DecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	rep, err := h.Engine.DecideReplenishment(r.Context(), id, ledger.Status(req.Status), *actor, req.Comments)
	if err != nil {
		recordDecisionFailure(err)
		writeLedgerError(w, err)
		return
	}

	decisionsTotal.WithLabelValues("replenishment", string(rep.Status)).Inc()
	slog.Info("replenishment decided", "id", rep.ID, "status", rep.Status, "by", actor.Username)
	writeJSON(w, http.StatusOK, toReplenishmentDTO(rep))
}

// =============================================================================
// SETTINGS HANDLERS
// =============================================================================

// GetSetting returns a configuration record.
func (h *Handler) GetSetting(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	setting, err := h.Settings.GetSetting(r.Context(), key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get setting", err)
		return
	}
	if setting == nil {
		writeError(w, http.StatusNotFound, "Setting not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toSettingDTO(setting))
}

// UpdateSetting writes a configuration value.
func (h *Handler) UpdateSetting(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	user := currentUser(r.Context())

	var req UpdateSettingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if strings.TrimSpace(req.Value) == "" {
		writeError(w, http.StatusBadRequest, "Value is required", nil)
		return
	}

	setting, err := h.Settings.SetSetting(r.Context(), key, req.Value, user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to update setting", err)
		return
	}
	writeJSON(w, http.StatusOK, toSettingDTO(setting))
}

// =============================================================================
// EXPORT HANDLERS
// =============================================================================

// ExportTransactions streams the transaction log as CSV. Optional
// startDate, endDate (YYYY-MM-DD) and status query parameters.
func (h *Handler) ExportTransactions(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r.Context())

	filter := ledger.TransactionFilter{}
	if user.Role == ledger.RoleCustodian {
		filter.SubmittedBy = user.ID
	}

	txs, err := h.Engine.ListTransactions(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to export transactions", err)
		return
	}

	export := report.ExportFilter{Status: ledger.Status(r.URL.Query().Get("status"))}
	if v := r.URL.Query().Get("startDate"); v != "" {
		export.StartDate, err = parseDate(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid startDate (use YYYY-MM-DD)", err)
			return
		}
	}
	if v := r.URL.Query().Get("endDate"); v != "" {
		export.EndDate, err = parseDate(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid endDate (use YYYY-MM-DD)", err)
			return
		}
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="petty-cash-transactions-%s.csv"`, time.Now().UTC().Format("2006-01-02")))

	if err := report.WriteTransactionsCSV(w, txs, export); err != nil {
		slog.Error("csv export failed", "error", err)
	}
}

// =============================================================================
// RECEIPT UPLOADS
// =============================================================================

var allowedReceiptExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".pdf":  true,
}

// saveReceipt stores an uploaded receipt under UploadDir and returns
// its serving URL plus the original filename.
func (h *Handler) saveReceipt(file io.Reader, originalName string, size int64) (url, name string, err error) {
	if size > maxReceiptSize {
		return "", "", fmt.Errorf("receipt exceeds the 5 MB limit")
	}
	ext := strings.ToLower(filepath.Ext(originalName))
	if !allowedReceiptExts[ext] {
		return "", "", fmt.Errorf("unsupported receipt type %s (use .jpg, .jpeg, .png or .pdf)", ext)
	}

	if err := os.MkdirAll(h.UploadDir, 0o755); err != nil {
		return "", "", fmt.Errorf("failed to prepare upload dir: %w", err)
	}

	stored := uuid.NewString() + ext
	dst, err := os.Create(filepath.Join(h.UploadDir, stored))
	if err != nil {
		return "", "", fmt.Errorf("failed to store receipt: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, io.LimitReader(file, maxReceiptSize)); err != nil {
		return "", "", fmt.Errorf("failed to store receipt: %w", err)
	}
	return "/uploads/" + stored, originalName, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// parseDate accepts YYYY-MM-DD or RFC3339.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

func queryInt(r *http.Request, key string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(key))
	return n
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeLedgerError maps a domain error to the HTTP status its sentinel
// dictates. Store failures never leak their message to the client.
func writeLedgerError(w http.ResponseWriter, err error) {
	if !ledger.IsClientError(err) {
		writeError(w, http.StatusInternalServerError, "Internal error", err)
		return
	}
	switch {
	case errors.Is(err, ledger.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error(), nil)
	case errors.Is(err, ledger.ErrPermissionDenied):
		writeError(w, http.StatusForbidden, err.Error(), nil)
	case errors.Is(err, ledger.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error(), nil)
	default:
		writeError(w, http.StatusConflict, err.Error(), nil)
	}
}

func recordDecisionFailure(err error) {
	switch {
	case errors.Is(err, ledger.ErrPermissionDenied):
		decisionFailures.WithLabelValues("permission").Inc()
	case errors.Is(err, ledger.ErrAlreadyDecided):
		decisionFailures.WithLabelValues("already_decided").Inc()
	case errors.Is(err, ledger.ErrValidation):
		decisionFailures.WithLabelValues("validation").Inc()
	case errors.Is(err, ledger.ErrNotFound):
		decisionFailures.WithLabelValues("not_found").Inc()
	default:
		decisionFailures.WithLabelValues("internal").Inc()
	}
}
