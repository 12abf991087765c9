// Package store provides an in-memory ledger.TxStore for tests and dev.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/floatworks/pettycash/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu sync.RWMutex

	transactions map[string]*ledger.Transaction
	txOrder      []string // insertion order, oldest first

	replenishments map[string]*ledger.ReplenishmentRequest
	repOrder       []string
}

func NewMemory() *Memory {
	return &Memory{
		transactions:   make(map[string]*ledger.Transaction),
		replenishments: make(map[string]*ledger.ReplenishmentRequest),
	}
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func (m *Memory) InsertTransaction(_ context.Context, tx *ledger.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertTransactionLocked(tx)
}

func (m *Memory) insertTransactionLocked(tx *ledger.Transaction) error {
	cp := *tx
	m.transactions[tx.ID] = &cp
	m.txOrder = append(m.txOrder, tx.ID)
	return nil
}

func (m *Memory) GetTransaction(_ context.Context, id string) (*ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getTransactionLocked(id), nil
}

func (m *Memory) getTransactionLocked(id string) *ledger.Transaction {
	tx, ok := m.transactions[id]
	if !ok {
		return nil
	}
	cp := *tx
	return &cp
}

func (m *Memory) ListTransactions(_ context.Context, f ledger.TransactionFilter) ([]ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listTransactionsLocked(f), nil
}

func (m *Memory) listTransactionsLocked(f ledger.TransactionFilter) []ledger.Transaction {
	var result []ledger.Transaction
	skipped := 0
	// Newest first: walk insertion order backwards.
	for i := len(m.txOrder) - 1; i >= 0; i-- {
		tx := m.transactions[m.txOrder[i]]
		if f.Status != "" && tx.Status != f.Status {
			continue
		}
		if f.SubmittedBy != "" && tx.SubmittedBy != f.SubmittedBy {
			continue
		}
		if skipped < f.Offset {
			skipped++
			continue
		}
		result = append(result, *tx)
		if f.Limit > 0 && len(result) >= f.Limit {
			break
		}
	}
	return result
}

func (m *Memory) UpdateTransactionDecision(_ context.Context, tx *ledger.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateTransactionDecisionLocked(tx)
}

func (m *Memory) updateTransactionDecisionLocked(tx *ledger.Transaction) error {
	if _, ok := m.transactions[tx.ID]; !ok {
		return &ledger.NotFoundError{Kind: "transaction", ID: tx.ID}
	}
	cp := *tx
	m.transactions[tx.ID] = &cp
	return nil
}

// =============================================================================
// REPLENISHMENT REQUESTS
// =============================================================================

func (m *Memory) InsertReplenishment(_ context.Context, r *ledger.ReplenishmentRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertReplenishmentLocked(r)
}

func (m *Memory) insertReplenishmentLocked(r *ledger.ReplenishmentRequest) error {
	cp := *r
	m.replenishments[r.ID] = &cp
	m.repOrder = append(m.repOrder, r.ID)
	return nil
}

func (m *Memory) GetReplenishment(_ context.Context, id string) (*ledger.ReplenishmentRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getReplenishmentLocked(id), nil
}

func (m *Memory) getReplenishmentLocked(id string) *ledger.ReplenishmentRequest {
	r, ok := m.replenishments[id]
	if !ok {
		return nil
	}
	cp := *r
	return &cp
}

func (m *Memory) ListReplenishments(_ context.Context, status ledger.Status) ([]ledger.ReplenishmentRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listReplenishmentsLocked(status), nil
}

func (m *Memory) listReplenishmentsLocked(status ledger.Status) []ledger.ReplenishmentRequest {
	var result []ledger.ReplenishmentRequest
	for i := len(m.repOrder) - 1; i >= 0; i-- {
		r := m.replenishments[m.repOrder[i]]
		if status != "" && r.Status != status {
			continue
		}
		result = append(result, *r)
	}
	return result
}

func (m *Memory) UpdateReplenishmentDecision(_ context.Context, r *ledger.ReplenishmentRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateReplenishmentDecisionLocked(r)
}

func (m *Memory) updateReplenishmentDecisionLocked(r *ledger.ReplenishmentRequest) error {
	if _, ok := m.replenishments[r.ID]; !ok {
		return &ledger.NotFoundError{Kind: "replenishment request", ID: r.ID}
	}
	cp := *r
	m.replenishments[r.ID] = &cp
	return nil
}

// =============================================================================
// LEDGER READS
// =============================================================================

func (m *Memory) LatestEntry(_ context.Context) (decimal.Decimal, int64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latestEntryLocked()
}

func (m *Memory) latestEntryLocked() (decimal.Decimal, int64, bool, error) {
	var (
		best    *ledger.Transaction
		bestSeq int64
	)
	for _, tx := range m.transactions {
		if tx.EntrySeq == nil {
			continue
		}
		if best == nil || *tx.EntrySeq > bestSeq {
			best = tx
			bestSeq = *tx.EntrySeq
		}
	}
	if best == nil {
		return decimal.Zero, 0, false, nil
	}
	return *best.RunningBalance, bestSeq, true, nil
}

func (m *Memory) TransactionStats(_ context.Context, monthStart time.Time) (ledger.Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.transactionStatsLocked(monthStart)
}

func (m *Memory) transactionStatsLocked(monthStart time.Time) (ledger.Stats, error) {
	stats := ledger.Stats{
		CurrentBalance:     decimal.Zero,
		MonthlyTotal:       decimal.Zero,
		AverageTransaction: decimal.Zero,
	}

	balance, _, ok, err := m.latestEntryLocked()
	if err != nil {
		return stats, err
	}
	if ok {
		stats.CurrentBalance = balance
	}

	sumAbs := decimal.Zero
	for _, tx := range m.transactions {
		switch tx.Status {
		case ledger.StatusPending:
			stats.PendingCount++
		case ledger.StatusApproved:
			stats.TotalTransactions++
			sumAbs = sumAbs.Add(tx.Amount.Abs())
			if tx.Amount.IsNegative() && !tx.Date.Before(monthStart) {
				stats.MonthlyTotal = stats.MonthlyTotal.Add(tx.Amount.Abs())
			}
		}
	}
	if stats.TotalTransactions > 0 {
		stats.AverageTransaction = sumAbs.Div(decimal.NewFromInt(int64(stats.TotalTransactions))).Round(2)
	}
	return stats, nil
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// WithTx executes fn within a simulated transaction: a snapshot is
// taken up front and restored if fn fails.
func (m *Memory) WithTx(_ context.Context, fn func(ledger.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	if err := fn(&txView{parent: m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type memorySnapshot struct {
	transactions   map[string]*ledger.Transaction
	txOrder        []string
	replenishments map[string]*ledger.ReplenishmentRequest
	repOrder       []string
}

func (m *Memory) snapshot() memorySnapshot {
	txs := make(map[string]*ledger.Transaction, len(m.transactions))
	for k, v := range m.transactions {
		cp := *v
		txs[k] = &cp
	}
	reps := make(map[string]*ledger.ReplenishmentRequest, len(m.replenishments))
	for k, v := range m.replenishments {
		cp := *v
		reps[k] = &cp
	}
	return memorySnapshot{
		transactions:   txs,
		txOrder:        append([]string{}, m.txOrder...),
		replenishments: reps,
		repOrder:       append([]string{}, m.repOrder...),
	}
}

func (m *Memory) restore(s memorySnapshot) {
	m.transactions = s.transactions
	m.txOrder = s.txOrder
	m.replenishments = s.replenishments
	m.repOrder = s.repOrder
}

// txView exposes the locked helpers of its parent as a ledger.Store.
// Only valid inside WithTx, which holds the parent's lock.
type txView struct {
	parent *Memory
}

func (tv *txView) InsertTransaction(_ context.Context, tx *ledger.Transaction) error {
	return tv.parent.insertTransactionLocked(tx)
}

func (tv *txView) GetTransaction(_ context.Context, id string) (*ledger.Transaction, error) {
	return tv.parent.getTransactionLocked(id), nil
}

func (tv *txView) ListTransactions(_ context.Context, f ledger.TransactionFilter) ([]ledger.Transaction, error) {
	return tv.parent.listTransactionsLocked(f), nil
}

func (tv *txView) UpdateTransactionDecision(_ context.Context, tx *ledger.Transaction) error {
	return tv.parent.updateTransactionDecisionLocked(tx)
}

func (tv *txView) InsertReplenishment(_ context.Context, r *ledger.ReplenishmentRequest) error {
	return tv.parent.insertReplenishmentLocked(r)
}

func (tv *txView) GetReplenishment(_ context.Context, id string) (*ledger.ReplenishmentRequest, error) {
	return tv.parent.getReplenishmentLocked(id), nil
}

func (tv *txView) ListReplenishments(_ context.Context, status ledger.Status) ([]ledger.ReplenishmentRequest, error) {
	return tv.parent.listReplenishmentsLocked(status), nil
}

func (tv *txView) UpdateReplenishmentDecision(_ context.Context, r *ledger.ReplenishmentRequest) error {
	return tv.parent.updateReplenishmentDecisionLocked(r)
}

func (tv *txView) LatestEntry(_ context.Context) (decimal.Decimal, int64, bool, error) {
	return tv.parent.latestEntryLocked()
}

func (tv *txView) TransactionStats(_ context.Context, monthStart time.Time) (ledger.Stats, error) {
	return tv.parent.transactionStatsLocked(monthStart)
}
