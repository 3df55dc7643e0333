package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JonMunkholm/reconcile/internal/ledger"
)

// integrityViolationClass is the SQLSTATE class of constraint failures
// (23502 not_null_violation, 23503 foreign_key_violation, 23505
// unique_violation, ...).
const integrityViolationClass = "23"

// classify wraps err with op, turning integrity violations into a
// *ledger.ConstraintError.
func classify(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && len(pgErr.Code) == 5 && pgErr.Code[:2] == integrityViolationClass {
		constraint := pgErr.ConstraintName
		if constraint == "" {
			constraint = pgErr.ColumnName
		}
		return &ledger.ConstraintError{Op: op, Constraint: constraint, Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}
