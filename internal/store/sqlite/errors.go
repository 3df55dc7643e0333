package sqlite

import (
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3" // also registers the driver

	"github.com/JonMunkholm/reconcile/internal/ledger"
)

// classify wraps err with op, turning constraint failures into a
// *ledger.ConstraintError.
func classify(op string, err error) error {
	var sqlErr sqlite3.Error
	if errors.As(err, &sqlErr) && sqlErr.Code == sqlite3.ErrConstraint {
		return &ledger.ConstraintError{Op: op, Constraint: constraintKind(sqlErr.ExtendedCode), Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func constraintKind(code sqlite3.ErrNoExtended) string {
	switch code {
	case sqlite3.ErrConstraintNotNull:
		return "not null"
	case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
		return "unique"
	case sqlite3.ErrConstraintForeignKey:
		return "foreign key"
	case sqlite3.ErrConstraintCheck:
		return "check"
	default:
		return ""
	}
}
