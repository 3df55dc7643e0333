package sqlite

const schema = `
CREATE TABLE IF NOT EXISTS account_summary (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    account_number  TEXT NOT NULL UNIQUE,
    current_balance TEXT NOT NULL DEFAULT '0'
);

CREATE TABLE IF NOT EXISTS "transaction" (
    id                 INTEGER PRIMARY KEY AUTOINCREMENT,
    account_summary_id INTEGER NOT NULL REFERENCES account_summary (id),
    sequence           INTEGER NOT NULL,
    timestamp          TEXT NOT NULL,
    amount             TEXT NOT NULL,
    UNIQUE (account_summary_id, sequence, timestamp, amount)
);

CREATE INDEX IF NOT EXISTS idx_transaction_account ON "transaction" (account_summary_id);
`

const (
	// The account is resolved in the statement; an unknown account yields a
	// NULL id and fails the NOT NULL constraint.
	insertTransaction = `
INSERT INTO "transaction" (account_summary_id, sequence, timestamp, amount)
VALUES ((SELECT id FROM account_summary WHERE account_number = ?), ?, ?, ?)
ON CONFLICT (account_summary_id, sequence, timestamp, amount) DO NOTHING`

	selectTransactionsByAccount = `
SELECT a.account_number, t.sequence, t.timestamp, t.amount
FROM "transaction" t
JOIN account_summary a ON a.id = t.account_summary_id
WHERE a.account_number = ?`

	deleteTransactions = `DELETE FROM "transaction"`

	selectSummariesWithTransactions = `
SELECT a.id, a.account_number, a.current_balance
FROM account_summary a
WHERE a.account_number > ?
  AND EXISTS (SELECT 1 FROM "transaction" t WHERE t.account_summary_id = a.id)
ORDER BY a.account_number
LIMIT ?`

	updateSummaryBalance = `UPDATE account_summary SET current_balance = ? WHERE account_number = ?`

	upsertSummary = `
INSERT INTO account_summary (account_number, current_balance)
VALUES (?, ?)
ON CONFLICT (account_number) DO UPDATE SET current_balance = excluded.current_balance`
)
