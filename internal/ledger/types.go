// Package ledger holds the reconciliation domain: transactions decoded from
// the input file, the account summaries they are applied to, and the
// readers, processors and writers that move them through the batch steps.
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// TimestampLayout is the layout of the timestamp field of a data row.
// Timestamps carry no zone and are read as UTC.
const TimestampLayout = "2006-01-02 15:04:05"

// Transaction is one decoded data row. It is never mutated after decoding.
type Transaction struct {
	AccountNumber string
	Timestamp     time.Time
	Amount        decimal.Decimal

	// Sequence is the 1-based position of the row among the data rows of
	// its file. Together with the account, timestamp and amount it
	// identifies the row on re-import.
	Sequence int64
}

// AccountSummary is the running balance of one account.
type AccountSummary struct {
	ID             int64
	AccountNumber  string
	CurrentBalance decimal.Decimal
}

// SummaryLine renders a summary as an output line: the account number and
// the balance with two decimals.
func SummaryLine(s AccountSummary) []string {
	return []string{s.AccountNumber, s.CurrentBalance.StringFixed(2)}
}
