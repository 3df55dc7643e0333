package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// BalanceAccumulator adds the sum of an account's stored transactions to its
// summary balance.
type BalanceAccumulator struct {
	Transactions TransactionStore
}

// Process implements batch.Processor. The input summary is not modified.
func (a *BalanceAccumulator) Process(ctx context.Context, summary AccountSummary) (AccountSummary, bool, error) {
	txns, err := a.Transactions.TransactionsByAccountNumber(ctx, summary.AccountNumber)
	if err != nil {
		return AccountSummary{}, false, fmt.Errorf("transactions of %s: %w", summary.AccountNumber, err)
	}

	sum := decimal.Zero
	for _, tx := range txns {
		sum = sum.Add(tx.Amount)
	}

	out := summary
	out.CurrentBalance = summary.CurrentBalance.Add(sum)
	return out, true, nil
}
