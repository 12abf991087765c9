package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/floatworks/pettycash/api"
	"github.com/floatworks/pettycash/auth"
	"github.com/floatworks/pettycash/ledger"
	"github.com/floatworks/pettycash/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type testServer struct {
	router http.Handler
	store  *sqlite.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	engine := ledger.NewEngine(store)
	authn := auth.NewPasswordAuthenticator(store)
	tokens := auth.NewJWTManager("test-secret", time.Hour)
	handler := api.NewHandler(engine, store, store, authn, tokens, t.TempDir())

	return &testServer{router: api.NewRouter(handler), store: store}
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v), "body: %s", rec.Body.String())
	return v
}

// register creates an account and returns its token and user.
func (ts *testServer) register(t *testing.T, username string) (string, api.UserDTO) {
	t.Helper()

	rec := ts.do(t, http.MethodPost, "/api/register", "", api.RegisterRequest{
		Username: username,
		Email:    username + "@example.com",
		Password: "correct-horse",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	resp := decodeJSON[api.AuthResponse](t, rec)
	return resp.Token, resp.User
}

// registerAs creates an account and raises its role directly in the store.
func (ts *testServer) registerAs(t *testing.T, username string, role ledger.Role) (string, api.UserDTO) {
	t.Helper()

	token, user := ts.register(t, username)
	_, err := ts.store.UpdateUserRole(context.Background(), user.ID, role)
	require.NoError(t, err)
	user.Role = string(role)
	return token, user
}

func txBody(amount string) api.CreateTransactionRequest {
	return api.CreateTransactionRequest{
		Date:          "2025-06-10",
		Description:   "Office supplies",
		Amount:        amount,
		ReceivedBy:    "Office Depot",
		PaymentMethod: "cash",
	}
}

// =============================================================================
// AUTH FLOW
// =============================================================================

func TestAPI_RegisterAndLogin(t *testing.T) {
	ts := newTestServer(t)

	token, user := ts.register(t, "alice")
	assert.NotEmpty(t, token)
	assert.Equal(t, "custodian", user.Role, "new accounts start as custodian")

	// Duplicate username.
	rec := ts.do(t, http.MethodPost, "/api/register", "", api.RegisterRequest{
		Username: "alice", Password: "correct-horse",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Weak password.
	rec = ts.do(t, http.MethodPost, "/api/register", "", api.RegisterRequest{
		Username: "bob", Password: "short",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Login, right and wrong.
	rec = ts.do(t, http.MethodPost, "/api/login", "", api.LoginRequest{
		Username: "alice", Password: "correct-horse",
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/login", "", api.LoginRequest{
		Username: "alice", Password: "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Current user.
	rec = ts.do(t, http.MethodGet, "/api/user", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decodeJSON[api.UserDTO](t, rec)
	assert.Equal(t, "alice", me.Username)
}

func TestAPI_ProtectedRoutesRequireToken(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{"/api/user", "/api/transactions", "/api/replenishments"} {
		rec := ts.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}

	rec := ts.do(t, http.MethodGet, "/api/user", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// =============================================================================
// USER MANAGEMENT
// =============================================================================

func TestAPI_UserManagementIsAdminOnly(t *testing.T) {
	ts := newTestServer(t)

	custToken, custUser := ts.register(t, "cust")
	adminToken, _ := ts.registerAs(t, "boss", ledger.RoleAdmin)

	rec := ts.do(t, http.MethodGet, "/api/users", custToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/users", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	users := decodeJSON[[]api.UserDTO](t, rec)
	assert.Len(t, users, 2)

	// Promote the custodian.
	rec = ts.do(t, http.MethodPatch, "/api/users/"+custUser.ID+"/role", adminToken,
		api.UpdateRoleRequest{Role: "accountant"})
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decodeJSON[api.UserDTO](t, rec)
	assert.Equal(t, "accountant", updated.Role)

	// Role change takes effect without re-login.
	rec = ts.do(t, http.MethodGet, "/api/user", custToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "accountant", decodeJSON[api.UserDTO](t, rec).Role)

	// Invalid role.
	rec = ts.do(t, http.MethodPatch, "/api/users/"+custUser.ID+"/role", adminToken,
		api.UpdateRoleRequest{Role: "superuser"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// TRANSACTION FLOW
// =============================================================================

func TestAPI_TransactionLifecycle(t *testing.T) {
	ts := newTestServer(t)

	custToken, _ := ts.register(t, "cust")
	acctToken, _ := ts.registerAs(t, "acct", ledger.RoleAccountant)

	// Submit.
	rec := ts.do(t, http.MethodPost, "/api/transactions", custToken, txBody("-45.50"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	tx := decodeJSON[api.TransactionDTO](t, rec)
	assert.Equal(t, "pending", tx.Status)
	assert.Nil(t, tx.RunningBalance)

	// Custodian cannot decide.
	rec = ts.do(t, http.MethodPatch, "/api/transactions/"+tx.ID+"/status", custToken,
		api.DecisionRequest{Status: "approved"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Accountant approves.
	rec = ts.do(t, http.MethodPatch, "/api/transactions/"+tx.ID+"/status", acctToken,
		api.DecisionRequest{Status: "approved"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	approved := decodeJSON[api.TransactionDTO](t, rec)
	assert.Equal(t, "approved", approved.Status)
	require.NotNil(t, approved.RunningBalance)
	assert.Equal(t, "-45.50", *approved.RunningBalance)

	// Second decision conflicts.
	rec = ts.do(t, http.MethodPatch, "/api/transactions/"+tx.ID+"/status", acctToken,
		api.DecisionRequest{Status: "rejected", Comments: "oops"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Rejection without comment.
	rec = ts.do(t, http.MethodPost, "/api/transactions", custToken, txBody("-10.00"))
	require.Equal(t, http.StatusCreated, rec.Code)
	tx2 := decodeJSON[api.TransactionDTO](t, rec)

	rec = ts.do(t, http.MethodPatch, "/api/transactions/"+tx2.ID+"/status", acctToken,
		api.DecisionRequest{Status: "rejected"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Unknown id.
	rec = ts.do(t, http.MethodPatch, "/api/transactions/ghost/status", acctToken,
		api.DecisionRequest{Status: "approved"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Validation at the edge.
	rec = ts.do(t, http.MethodPost, "/api/transactions", custToken, txBody("-45.505"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = ts.do(t, http.MethodPost, "/api/transactions", custToken, txBody("abc"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_CustodiansSeeOnlyTheirOwnTransactions(t *testing.T) {
	ts := newTestServer(t)

	aliceToken, _ := ts.register(t, "alice")
	bobToken, _ := ts.register(t, "bob")
	acctToken, _ := ts.registerAs(t, "acct", ledger.RoleAccountant)

	rec := ts.do(t, http.MethodPost, "/api/transactions", aliceToken, txBody("-1.00"))
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = ts.do(t, http.MethodPost, "/api/transactions", bobToken, txBody("-2.00"))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/transactions", aliceToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeJSON[[]api.TransactionDTO](t, rec), 1)

	rec = ts.do(t, http.MethodGet, "/api/transactions", acctToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeJSON[[]api.TransactionDTO](t, rec), 2)
}

func TestAPI_Stats(t *testing.T) {
	ts := newTestServer(t)

	custToken, _ := ts.register(t, "cust")
	acctToken, _ := ts.registerAs(t, "acct", ledger.RoleAccountant)

	rec := ts.do(t, http.MethodGet, "/api/transactions/stats", custToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	empty := decodeJSON[api.StatsDTO](t, rec)
	assert.Equal(t, "0.00", empty.CurrentBalance)
	assert.Zero(t, empty.PendingCount)

	body := txBody("-45.50")
	body.Date = time.Now().UTC().Format("2006-01-02")
	rec = ts.do(t, http.MethodPost, "/api/transactions", custToken, body)
	require.Equal(t, http.StatusCreated, rec.Code)
	tx := decodeJSON[api.TransactionDTO](t, rec)

	rec = ts.do(t, http.MethodPatch, "/api/transactions/"+tx.ID+"/status", acctToken,
		api.DecisionRequest{Status: "approved"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/transactions/stats", custToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decodeJSON[api.StatsDTO](t, rec)
	assert.Equal(t, "-45.50", stats.CurrentBalance)
	assert.Equal(t, "45.50", stats.MonthlyTotal)
	assert.Equal(t, 1, stats.TotalTransactions)
}

// =============================================================================
// REPLENISHMENT FLOW
// =============================================================================

func TestAPI_ReplenishmentLifecycle(t *testing.T) {
	ts := newTestServer(t)

	custToken, _ := ts.register(t, "cust")
	acctToken, acctUser := ts.registerAs(t, "acct", ledger.RoleAccountant)

	rec := ts.do(t, http.MethodPost, "/api/replenishments", custToken,
		api.CreateReplenishmentRequest{Amount: "250.00", Reason: "Float running low"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rep := decodeJSON[api.ReplenishmentDTO](t, rec)
	assert.Equal(t, "pending", rep.Status)

	// Negative amount rejected.
	rec = ts.do(t, http.MethodPost, "/api/replenishments", custToken,
		api.CreateReplenishmentRequest{Amount: "-250.00", Reason: "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Approve: balance rises and a credit transaction appears.
	rec = ts.do(t, http.MethodPatch, "/api/replenishments/"+rep.ID+"/status", acctToken,
		api.DecisionRequest{Status: "approved"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/api/transactions", acctToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	txs := decodeJSON[[]api.TransactionDTO](t, rec)
	require.Len(t, txs, 1)
	assert.Equal(t, "250.00", txs[0].Amount)
	assert.Equal(t, "Cash Float", txs[0].ReceivedBy)
	assert.Equal(t, acctUser.ID, txs[0].SubmittedBy)

	// Status filter.
	rec = ts.do(t, http.MethodGet, "/api/replenishments?status=pending", custToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeJSON[[]api.ReplenishmentDTO](t, rec))
}

// =============================================================================
// SETTINGS
// =============================================================================

func TestAPI_Settings(t *testing.T) {
	ts := newTestServer(t)

	custToken, _ := ts.register(t, "cust")
	acctToken, _ := ts.registerAs(t, "acct", ledger.RoleAccountant)

	key := "low_balance_threshold"

	rec := ts.do(t, http.MethodGet, "/api/settings/"+key, custToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Custodians may read but not write.
	rec = ts.do(t, http.MethodPut, "/api/settings/"+key, custToken,
		api.UpdateSettingRequest{Value: "100.00"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, http.MethodPut, "/api/settings/"+key, acctToken,
		api.UpdateSettingRequest{Value: "100.00"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/settings/"+key, custToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	setting := decodeJSON[api.SettingDTO](t, rec)
	assert.Equal(t, "100.00", setting.Value)
}

// =============================================================================
// EXPORT
// =============================================================================

func TestAPI_ExportTransactionsCSV(t *testing.T) {
	ts := newTestServer(t)

	custToken, _ := ts.register(t, "cust")
	acctToken, _ := ts.registerAs(t, "acct", ledger.RoleAccountant)

	rec := ts.do(t, http.MethodPost, "/api/transactions", custToken, txBody("-45.50"))
	require.Equal(t, http.StatusCreated, rec.Code)
	tx := decodeJSON[api.TransactionDTO](t, rec)
	rec = ts.do(t, http.MethodPatch, "/api/transactions/"+tx.ID+"/status", acctToken,
		api.DecisionRequest{Status: "approved"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/export/transactions", acctToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Date,Description,Amount,Received By,Payment Method,Status,Balance,Submitted By", lines[0])
	assert.Contains(t, lines[1], "-45.50")
	assert.Contains(t, lines[1], "approved")

	// Status filter excludes everything.
	rec = ts.do(t, http.MethodGet, "/api/export/transactions?status=rejected", acctToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	lines = strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	assert.Len(t, lines, 1, "header only")
}

// =============================================================================
// METRICS
// =============================================================================

func TestAPI_MetricsEndpointIsPublic(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestAPI_MultipartSubmission(t *testing.T) {
	ts := newTestServer(t)
	custToken, _ := ts.register(t, "cust")

	var buf bytes.Buffer
	boundary := "testboundary"
	for k, v := range map[string]string{
		"date":          "2025-06-10",
		"description":   "Taxi to the bank",
		"amount":        "-12.00",
		"receivedBy":    "City Cabs",
		"paymentMethod": "cash",
	} {
		fmt.Fprintf(&buf, "--%s\r\nContent-Disposition: form-data; name=%q\r\n\r\n%s\r\n", boundary, k, v)
	}
	fmt.Fprintf(&buf, "--%s--\r\n", boundary)

	req := httptest.NewRequest(http.MethodPost, "/api/transactions", &buf)
	req.Header.Set("Content-Type", "multipart/form-data; boundary="+boundary)
	req.Header.Set("Authorization", "Bearer "+custToken)

	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	tx := decodeJSON[api.TransactionDTO](t, rec)
	assert.Equal(t, "Taxi to the bank", tx.Description)
	assert.Equal(t, "-12.00", tx.Amount)
}
