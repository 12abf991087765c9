package ledger_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/floatworks/pettycash/ledger"
	"github.com/floatworks/pettycash/ledger/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestEngine(t *testing.T) *ledger.Engine {
	t.Helper()
	return ledger.NewEngine(store.NewMemory())
}

var (
	custodian  = ledger.User{ID: "user-custodian", Username: "cust", Role: ledger.RoleCustodian}
	accountant = ledger.User{ID: "user-accountant", Username: "acct", Role: ledger.RoleAccountant}
	admin      = ledger.User{ID: "user-admin", Username: "admin", Role: ledger.RoleAdmin}
)

func expenseDraft(amount string) ledger.TransactionDraft {
	return ledger.TransactionDraft{
		Date:          time.Date(2025, time.June, 10, 0, 0, 0, 0, time.UTC),
		Description:   "Office supplies",
		Amount:        mustDec(amount),
		ReceivedBy:    "Office Depot",
		PaymentMethod: ledger.PayCash,
	}
}

func mustDec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// submitApproved submits a draft and approves it as the accountant.
func submitApproved(t *testing.T, e *ledger.Engine, draft ledger.TransactionDraft) *ledger.Transaction {
	t.Helper()
	ctx := context.Background()

	tx, err := e.SubmitTransaction(ctx, draft, custodian.ID)
	require.NoError(t, err)

	decided, err := e.DecideTransaction(ctx, tx.ID, ledger.StatusApproved, accountant, "")
	require.NoError(t, err)
	return decided
}

// =============================================================================
// SUBMISSION TESTS
// =============================================================================

func TestSubmitTransaction_StartsPendingWithNoLedgerEffect(t *testing.T) {
	// GIVEN: A fresh float
	// WHEN: A custodian submits an expense
	// THEN: It is pending, carries no balance, and the float is untouched

	e := newTestEngine(t)
	ctx := context.Background()

	tx, err := e.SubmitTransaction(ctx, expenseDraft("-45.50"), custodian.ID)
	require.NoError(t, err)

	assert.Equal(t, ledger.StatusPending, tx.Status)
	assert.Nil(t, tx.RunningBalance)
	assert.Nil(t, tx.EntrySeq)
	assert.Empty(t, tx.ApprovedBy)

	balance, err := e.CurrentBalance(ctx)
	require.NoError(t, err)
	assert.True(t, balance.IsZero(), "pending submission must not move the balance")
}

func TestSubmitTransaction_Validation(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*ledger.TransactionDraft)
	}{
		{"zero amount", func(d *ledger.TransactionDraft) { d.Amount = decimal.Zero }},
		{"over-precise amount", func(d *ledger.TransactionDraft) { d.Amount = mustDec("-45.505") }},
		{"missing date", func(d *ledger.TransactionDraft) { d.Date = time.Time{} }},
		{"missing description", func(d *ledger.TransactionDraft) { d.Description = "   " }},
		{"missing received-by", func(d *ledger.TransactionDraft) { d.ReceivedBy = "" }},
		{"unknown payment method", func(d *ledger.TransactionDraft) { d.PaymentMethod = "bitcoin" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			draft := expenseDraft("-45.50")
			tc.mutate(&draft)

			_, err := e.SubmitTransaction(ctx, draft, custodian.ID)
			assert.ErrorIs(t, err, ledger.ErrValidation)
		})
	}

	_, err := e.SubmitTransaction(ctx, expenseDraft("-45.50"), "")
	assert.ErrorIs(t, err, ledger.ErrValidation, "submitter is required")
}

func TestSubmitReplenishment_Validation(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.SubmitReplenishment(ctx, ledger.ReplenishmentDraft{
		RequestedAmount: mustDec("-100.00"),
		Reason:          "Float is low",
	}, custodian.ID)
	assert.ErrorIs(t, err, ledger.ErrValidation, "negative amount")

	_, err = e.SubmitReplenishment(ctx, ledger.ReplenishmentDraft{
		RequestedAmount: decimal.Zero,
		Reason:          "Float is low",
	}, custodian.ID)
	assert.ErrorIs(t, err, ledger.ErrValidation, "zero amount")

	_, err = e.SubmitReplenishment(ctx, ledger.ReplenishmentDraft{
		RequestedAmount: mustDec("100.00"),
		Reason:          "  ",
	}, custodian.ID)
	assert.ErrorIs(t, err, ledger.ErrValidation, "reason required")
}

func TestParseAmount(t *testing.T) {
	for _, bad := range []string{"", "abc", "45.505", "1e2.5"} {
		_, err := ledger.ParseAmount(bad)
		assert.ErrorIs(t, err, ledger.ErrValidation, "input %q", bad)
	}

	d, err := ledger.ParseAmount("-45.50")
	require.NoError(t, err)
	assert.True(t, d.Equal(mustDec("-45.5")))
}

// =============================================================================
// RUNNING-BALANCE CHAIN TESTS
// =============================================================================

func TestLedger_RunningBalanceChain(t *testing.T) {
	// GIVEN: An empty float
	// WHEN: -45.50 and -10.00 expenses are approved, then a 500.00
	//       replenishment
	// THEN: Balances read -45.50, -55.50, 444.50 with sequences 1, 2, 3

	e := newTestEngine(t)
	ctx := context.Background()

	tx1 := submitApproved(t, e, expenseDraft("-45.50"))
	require.NotNil(t, tx1.RunningBalance)
	assert.Equal(t, "-45.50", tx1.RunningBalance.StringFixed(2))
	assert.Equal(t, int64(1), *tx1.EntrySeq)

	tx2 := submitApproved(t, e, expenseDraft("-10.00"))
	assert.Equal(t, "-55.50", tx2.RunningBalance.StringFixed(2))
	assert.Equal(t, int64(2), *tx2.EntrySeq)

	rep, err := e.SubmitReplenishment(ctx, ledger.ReplenishmentDraft{
		RequestedAmount: mustDec("500.00"),
		Reason:          "Quarterly top-up",
	}, custodian.ID)
	require.NoError(t, err)
	_, err = e.DecideReplenishment(ctx, rep.ID, ledger.StatusApproved, accountant, "")
	require.NoError(t, err)

	balance, err := e.CurrentBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, "444.50", balance.StringFixed(2))
}

func TestLedger_BackdatedApprovalDoesNotRewriteHistory(t *testing.T) {
	// GIVEN: An approved expense
	// WHEN: A transaction dated BEFORE it is approved afterwards
	// THEN: The earlier entry keeps its balance; the late approval
	//       appends at the end of the chain

	e := newTestEngine(t)
	ctx := context.Background()

	first := submitApproved(t, e, expenseDraft("-45.50"))

	backdated := expenseDraft("-10.00")
	backdated.Date = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	second := submitApproved(t, e, backdated)

	assert.Equal(t, int64(2), *second.EntrySeq, "ordering follows approval, not the user date")
	assert.Equal(t, "-55.50", second.RunningBalance.StringFixed(2))

	// Re-read the first entry: untouched.
	got, err := e.GetTransaction(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "-45.50", got.RunningBalance.StringFixed(2))
	assert.Equal(t, int64(1), *got.EntrySeq)
}

func TestLedger_RejectionNeverTouchesTheChain(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	submitApproved(t, e, expenseDraft("-45.50"))

	tx, err := e.SubmitTransaction(ctx, expenseDraft("-200.00"), custodian.ID)
	require.NoError(t, err)
	rejected, err := e.DecideTransaction(ctx, tx.ID, ledger.StatusRejected, accountant, "no receipt")
	require.NoError(t, err)

	assert.Nil(t, rejected.RunningBalance)
	assert.Nil(t, rejected.EntrySeq)

	balance, err := e.CurrentBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, "-45.50", balance.StringFixed(2))
}

func TestLedger_ConcurrentApprovalsStayConsistent(t *testing.T) {
	// GIVEN: 20 pending one-dollar expenses
	// WHEN: All are approved concurrently
	// THEN: The chain is dense (sequences 1..20) and the final balance
	//       is exactly -20.00

	e := newTestEngine(t)
	ctx := context.Background()

	const n = 20
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		tx, err := e.SubmitTransaction(ctx, expenseDraft("-1.00"), custodian.ID)
		require.NoError(t, err)
		ids[i] = tx.ID
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := e.DecideTransaction(ctx, id, ledger.StatusApproved, accountant, "")
			assert.NoError(t, err)
		}(id)
	}
	wg.Wait()

	balance, err := e.CurrentBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, "-20.00", balance.StringFixed(2))

	txs, err := e.ListTransactions(ctx, ledger.TransactionFilter{Status: ledger.StatusApproved})
	require.NoError(t, err)
	require.Len(t, txs, n)

	seen := make(map[int64]bool)
	for _, tx := range txs {
		require.NotNil(t, tx.EntrySeq)
		seen[*tx.EntrySeq] = true
	}
	for seq := int64(1); seq <= n; seq++ {
		assert.True(t, seen[seq], "sequence %d missing from the chain", seq)
	}
}

// =============================================================================
// STATS TESTS
// =============================================================================

func TestStats_EmptyLedgerIsAllZero(t *testing.T) {
	e := newTestEngine(t)

	stats, err := e.Stats(context.Background())
	require.NoError(t, err)

	assert.True(t, stats.CurrentBalance.IsZero())
	assert.True(t, stats.MonthlyTotal.IsZero())
	assert.True(t, stats.AverageTransaction.IsZero())
	assert.Zero(t, stats.PendingCount)
	assert.Zero(t, stats.TotalTransactions)
}

func TestStats_AggregatesOverApprovedOnly(t *testing.T) {
	// GIVEN: Two approved expenses this month, one approved credit, one
	//        pending and one rejected expense
	// THEN:  monthlyTotal counts only the expenses, average spans all
	//        approved amounts, pendingCount is 1

	e := newTestEngine(t)
	ctx := context.Background()

	thisMonth := time.Now().UTC()

	d1 := expenseDraft("-30.00")
	d1.Date = thisMonth
	submitApproved(t, e, d1)

	d2 := expenseDraft("-20.00")
	d2.Date = thisMonth
	submitApproved(t, e, d2)

	credit := expenseDraft("100.00")
	credit.Date = thisMonth
	submitApproved(t, e, credit)

	_, err := e.SubmitTransaction(ctx, expenseDraft("-5.00"), custodian.ID)
	require.NoError(t, err)

	rej, err := e.SubmitTransaction(ctx, expenseDraft("-7.00"), custodian.ID)
	require.NoError(t, err)
	_, err = e.DecideTransaction(ctx, rej.ID, ledger.StatusRejected, accountant, "duplicate")
	require.NoError(t, err)

	stats, err := e.Stats(ctx)
	require.NoError(t, err)

	assert.Equal(t, "50.00", stats.CurrentBalance.StringFixed(2))
	assert.Equal(t, "50.00", stats.MonthlyTotal.StringFixed(2), "credits and non-approved entries excluded")
	assert.Equal(t, 1, stats.PendingCount)
	assert.Equal(t, 3, stats.TotalTransactions)
	assert.Equal(t, "50.00", stats.AverageTransaction.StringFixed(2), "(30+20+100)/3")
}

// =============================================================================
// POINT LOOKUPS
// =============================================================================

func TestGetTransaction_Unknown(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.GetTransaction(context.Background(), "no-such-id")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestListTransactions_FiltersAndOrder(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := e.SubmitTransaction(ctx, expenseDraft(fmt.Sprintf("-%d.00", i+1)), custodian.ID)
		require.NoError(t, err)
	}
	_, err := e.SubmitTransaction(ctx, expenseDraft("-9.00"), accountant.ID)
	require.NoError(t, err)

	mine, err := e.ListTransactions(ctx, ledger.TransactionFilter{SubmittedBy: custodian.ID})
	require.NoError(t, err)
	assert.Len(t, mine, 3)

	page, err := e.ListTransactions(ctx, ledger.TransactionFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "-9.00", page[0].Amount.StringFixed(2), "newest first")
}
