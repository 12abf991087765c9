// Package report renders ledger data for export.
package report

import (
	"encoding/csv"
	"io"
	"time"

	"github.com/floatworks/pettycash/ledger"
)

// csvHeader matches the columns accountants import into their
// spreadsheets. Order is part of the contract.
var csvHeader = []string{
	"Date", "Description", "Amount", "Received By",
	"Payment Method", "Status", "Balance", "Submitted By",
}

// ExportFilter bounds a transaction export. Zero times mean unbounded;
// empty status means all.
type ExportFilter struct {
	StartDate time.Time
	EndDate   time.Time
	Status    ledger.Status
}

// Match reports whether tx falls inside the filter.
func (f ExportFilter) Match(tx ledger.Transaction) bool {
	if f.Status != "" && tx.Status != f.Status {
		return false
	}
	if !f.StartDate.IsZero() && tx.Date.Before(f.StartDate) {
		return false
	}
	if !f.EndDate.IsZero() && tx.Date.After(f.EndDate) {
		return false
	}
	return true
}

// WriteTransactionsCSV writes the filtered transactions to w as CSV,
// header first, preserving the order of txs.
func WriteTransactionsCSV(w io.Writer, txs []ledger.Transaction, f ExportFilter) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}

	for _, tx := range txs {
		if !f.Match(tx) {
			continue
		}

		balance := ""
		if tx.RunningBalance != nil {
			balance = tx.RunningBalance.StringFixed(2)
		}
		record := []string{
			tx.Date.UTC().Format("2006-01-02"),
			tx.Description,
			tx.Amount.StringFixed(2),
			tx.ReceivedBy,
			string(tx.PaymentMethod),
			string(tx.Status),
			balance,
			tx.SubmittedBy,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
