package ledger

import (
	"errors"
	"fmt"
)

// ParseErrorKind classifies a FieldParseError.
type ParseErrorKind string

const (
	KindTimestamp   ParseErrorKind = "bad-timestamp"
	KindAmount      ParseErrorKind = "bad-amount"
	KindAccount     ParseErrorKind = "bad-account"
	KindFooterCount ParseErrorKind = "bad-footer-count"
	KindFieldCount  ParseErrorKind = "bad-field-count"
)

// FieldParseError reports a field of a data row or footer that could not be
// decoded. It is fatal for the step.
type FieldParseError struct {
	Line  int64
	Field int // 0-based field index, -1 when the record shape is wrong
	Kind  ParseErrorKind
	Value string
	Err   error
}

func (e *FieldParseError) Error() string {
	if e.Field < 0 {
		return fmt.Sprintf("line %d: %s: %v", e.Line, e.Kind, e.Err)
	}
	return fmt.Sprintf("line %d field %d: %s %q: %v", e.Line, e.Field, e.Kind, e.Value, e.Err)
}

func (e *FieldParseError) Unwrap() error {
	return e.Err
}

// ConstraintError reports a write rejected by a store constraint: a
// duplicate key, a transaction for an unknown account, or a similar
// integrity violation. Nothing of the rejected call was committed.
type ConstraintError struct {
	Op         string // store operation, e.g. "insert transactions"
	Constraint string // constraint name when the store reports one
	Err        error
}

func (e *ConstraintError) Error() string {
	if e.Constraint != "" {
		return fmt.Sprintf("%s: constraint %s violated: %v", e.Op, e.Constraint, e.Err)
	}
	return fmt.Sprintf("%s: constraint violated: %v", e.Op, e.Err)
}

func (e *ConstraintError) Unwrap() error {
	return e.Err
}

// IsConstraint reports whether err is or wraps a ConstraintError.
func IsConstraint(err error) bool {
	var ce *ConstraintError
	return errors.As(err, &ce)
}

var (
	errEmptyAccount      = errors.New("account number is empty")
	errTooFewFields      = errors.New("data row needs account, timestamp and amount")
	errRecordAfterFooter = errors.New("record after count footer")
	errNegativeCount     = errors.New("count is negative")
)
