package postgres

const schema = `
CREATE TABLE IF NOT EXISTS account_summary (
    id              BIGSERIAL PRIMARY KEY,
    account_number  TEXT NOT NULL UNIQUE,
    current_balance NUMERIC NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS "transaction" (
    id                 BIGSERIAL PRIMARY KEY,
    account_summary_id BIGINT NOT NULL REFERENCES account_summary (id),
    sequence           BIGINT NOT NULL,
    timestamp          TIMESTAMPTZ NOT NULL,
    amount             NUMERIC NOT NULL,
    CONSTRAINT transaction_natural_key UNIQUE (account_summary_id, sequence, timestamp, amount)
);
`

const (
	// The account is resolved in the statement; an unknown account yields a
	// NULL id and fails the NOT NULL constraint.
	insertTransaction = `
INSERT INTO "transaction" (account_summary_id, sequence, timestamp, amount)
VALUES ((SELECT id FROM account_summary WHERE account_number = $1), $2, $3, $4)
ON CONFLICT ON CONSTRAINT transaction_natural_key DO NOTHING`

	selectTransactionsByAccount = `
SELECT a.account_number, t.sequence, t.timestamp, t.amount
FROM "transaction" t
JOIN account_summary a ON a.id = t.account_summary_id
WHERE a.account_number = $1`

	deleteTransactions = `DELETE FROM "transaction"`

	selectSummariesWithTransactions = `
SELECT a.id, a.account_number, a.current_balance
FROM account_summary a
WHERE a.account_number > $1
  AND EXISTS (SELECT 1 FROM "transaction" t WHERE t.account_summary_id = a.id)
ORDER BY a.account_number
LIMIT $2`

	updateSummaryBalance = `UPDATE account_summary SET current_balance = $1 WHERE account_number = $2`

	upsertSummary = `
INSERT INTO account_summary (account_number, current_balance)
VALUES ($1, $2)
ON CONFLICT (account_number) DO UPDATE SET current_balance = EXCLUDED.current_balance`
)
