package ledger

import "context"

// TransactionStore persists imported transactions.
type TransactionStore interface {
	// TransactionsByAccountNumber returns every transaction of the account
	// in no particular order, or an empty slice.
	TransactionsByAccountNumber(ctx context.Context, accountNumber string) ([]Transaction, error)

	// InsertTransactions inserts txns in one store transaction. Rows already
	// present are left untouched. A transaction for an unknown account fails
	// the whole call with a *ConstraintError.
	InsertTransactions(ctx context.Context, txns []Transaction) error

	// DeleteTransactions removes every stored transaction.
	DeleteTransactions(ctx context.Context) error
}

// AccountSummaryStore persists account summaries.
type AccountSummaryStore interface {
	// SummariesWithTransactions returns up to limit summaries referenced by
	// at least one transaction whose account number sorts after
	// afterAccount, ordered by account number.
	SummariesWithTransactions(ctx context.Context, afterAccount string, limit int) ([]AccountSummary, error)

	// UpdateSummaries stores the balances of summaries in one store
	// transaction, matching rows by account number.
	UpdateSummaries(ctx context.Context, summaries []AccountSummary) error

	// UpsertSummaries creates summaries or resets the balance of existing
	// ones.
	UpsertSummaries(ctx context.Context, summaries []AccountSummary) error
}

// Store is a complete ledger backend.
type Store interface {
	TransactionStore
	AccountSummaryStore

	// Migrate creates the schema if it does not exist.
	Migrate(ctx context.Context) error
	Close() error
}
