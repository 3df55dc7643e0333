package reconcile

// error_messages.go maps job and store errors to operator-facing messages.
//
// # Error Codes Reference
//
// Operators quote the code when reporting a failed run; the technical error
// remains in the job execution record and the logs.
//
// # Input Errors (IN001-IN099)
//
//	IN001 - Malformed line: The transaction file contains a line that cannot be tokenized
//	        Action: Check the file near the reported line for stray quotes or binary data
//	        Matches: *flatfile.MalformedRecordError
//
//	IN002 - Bad timestamp: A transaction timestamp is not in YYYY-MM-DD HH:MM:SS form
//	        Matches: *ledger.FieldParseError of kind bad-timestamp
//
//	IN003 - Bad amount: A transaction amount is not a decimal number
//	        Matches: *ledger.FieldParseError of kind bad-amount
//
//	IN004 - Bad account: A transaction has an empty account number
//	        Matches: *ledger.FieldParseError of kind bad-account
//
//	IN005 - Bad footer: The count footer is not a non-negative integer
//	        Matches: *ledger.FieldParseError of kind bad-footer-count
//
//	IN006 - Bad row shape: A data row has fewer than three fields, or a record follows the footer
//	        Matches: *ledger.FieldParseError of kind bad-field-count
//
//	IN007 - File not found: An input file does not exist
//	        Matches: os.ErrNotExist
//
// # Store Errors (DB001-DB099)
//
//	DB001 - Constraint: A transaction references an unknown account or breaks a store rule
//	        Action: Seed the account summaries before importing (reconcile migrate --seed)
//	        Matches: *ledger.ConstraintError
//
//	DB002 - Connection refused: Unable to connect to the database
//	        Patterns: "connection refused"
//
//	DB003 - Connection reset: The database connection was interrupted
//	        Patterns: "connection reset"
//
//	DB004 - Locked: The database or execution history is in use by another process
//	        Patterns: "database is locked", "timeout" (bbolt lock wait)
//
//	DB005 - Deadlock: The database was busy with conflicting operations
//	        Patterns: "deadlock"
//
// # Run Errors (RUN001-RUN099)
//
//	RUN001 - Busy: Every run slot is occupied
//	         Matches: ErrTooManyRuns
//
//	RUN002 - Unknown execution: No running or recorded execution has this id
//	         Matches: ErrUnknownExecution
//
//	RUN003 - Invalid parameters: transactionFile or summaryFile is missing
//	         Matches: ErrInvalidParameters
//
//	RUN004 - Cancelled: The run was cancelled before it finished
//	         Matches: context.Canceled
//
//	RUN005 - Timed out: The run exceeded BATCH_RUN_TIMEOUT
//	         Matches: context.DeadlineExceeded
//
//	RUN006 - Already finished: A stop was requested for an execution that has ended
//	         Matches: ErrExecutionFinished
//
//	RUN007 - Instance running: A run with the same parameters is in progress
//	         Matches: ErrInstanceRunning
//
// # Default Error (ERR000)
//
//	ERR000 - Unknown error: An unexpected error occurred
//	         Action: Check the execution record and logs for the technical error

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/JonMunkholm/reconcile/internal/flatfile"
	"github.com/JonMunkholm/reconcile/internal/ledger"
)

// UserMessage is an error explained for operators.
type UserMessage struct {
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

type errorMatcher struct {
	match func(error) bool
	msg   UserMessage
}

func isKind(kind ledger.ParseErrorKind) func(error) bool {
	return func(err error) bool {
		var pe *ledger.FieldParseError
		return errors.As(err, &pe) && pe.Kind == kind
	}
}

func is(target error) func(error) bool {
	return func(err error) bool { return errors.Is(err, target) }
}

// typedMatchers are checked in order before the text patterns.
var typedMatchers = []errorMatcher{
	{
		match: func(err error) bool {
			var me *flatfile.MalformedRecordError
			return errors.As(err, &me)
		},
		msg: UserMessage{
			Message: "The transaction file contains a line that cannot be read",
			Action:  "Check the file near the reported line for stray quotes or binary data",
			Code:    "IN001",
		},
	},
	{
		match: isKind(ledger.KindTimestamp),
		msg: UserMessage{
			Message: "A transaction timestamp is invalid",
			Action:  "Use the form YYYY-MM-DD HH:MM:SS",
			Code:    "IN002",
		},
	},
	{
		match: isKind(ledger.KindAmount),
		msg: UserMessage{
			Message: "A transaction amount is invalid",
			Action:  "Use a plain decimal number without currency symbols",
			Code:    "IN003",
		},
	},
	{
		match: isKind(ledger.KindAccount),
		msg: UserMessage{
			Message: "A transaction has no account number",
			Action:  "Fill in the first field of every data row",
			Code:    "IN004",
		},
	},
	{
		match: isKind(ledger.KindFooterCount),
		msg: UserMessage{
			Message: "The count footer is invalid",
			Action:  "End the file with a single non-negative count of data rows",
			Code:    "IN005",
		},
	},
	{
		match: isKind(ledger.KindFieldCount),
		msg: UserMessage{
			Message: "A line of the transaction file has the wrong shape",
			Action:  "Data rows need account, timestamp and amount; nothing may follow the footer",
			Code:    "IN006",
		},
	},
	{
		match: is(os.ErrNotExist),
		msg: UserMessage{
			Message: "An input file does not exist",
			Action:  "Check the transactionFile parameter",
			Code:    "IN007",
		},
	},
	{
		match: ledger.IsConstraint,
		msg: UserMessage{
			Message: "A transaction references an unknown account or breaks a store rule",
			Action:  "Seed the account summaries before importing",
			Code:    "DB001",
		},
	},
	{
		match: is(ErrTooManyRuns),
		msg: UserMessage{
			Message: "Another run is in progress",
			Action:  "Wait for it to finish and try again",
			Code:    "RUN001",
		},
	},
	{
		match: is(ErrUnknownExecution),
		msg: UserMessage{
			Message: "Job execution not found",
			Action:  "List executions to find a valid id",
			Code:    "RUN002",
		},
	},
	{
		match: is(ErrInvalidParameters),
		msg: UserMessage{
			Message: "Job parameters are incomplete",
			Action:  "Provide both transactionFile and summaryFile",
			Code:    "RUN003",
		},
	},
	{
		match: is(context.Canceled),
		msg: UserMessage{
			Message: "The run was cancelled",
			Action:  "Start the run again",
			Code:    "RUN004",
		},
	},
	{
		match: is(context.DeadlineExceeded),
		msg: UserMessage{
			Message: "The run timed out",
			Action:  "Raise BATCH_RUN_TIMEOUT or split the input file",
			Code:    "RUN005",
		},
	},
	{
		match: is(ErrExecutionFinished),
		msg: UserMessage{
			Message: "The job execution has already finished",
			Code:    "RUN006",
		},
	},
	{
		match: is(ErrInstanceRunning),
		msg: UserMessage{
			Message: "A run with these files is already in progress",
			Action:  "Wait for it to finish or stop it first",
			Code:    "RUN007",
		},
	},
}

// errorPatterns match driver errors that carry no type of their own.
// Patterns are lower case and checked in order.
var errorPatterns = []struct {
	pattern string
	msg     UserMessage
}{
	{"connection refused", UserMessage{
		Message: "Unable to connect to the database",
		Action:  "Check DATABASE_URL and that the server is running",
		Code:    "DB002",
	}},
	{"connection reset", UserMessage{
		Message: "The database connection was interrupted",
		Action:  "Start the run again",
		Code:    "DB003",
	}},
	{"database is locked", UserMessage{
		Message: "The database is in use by another process",
		Action:  "Wait for the other process to finish",
		Code:    "DB004",
	}},
	{"timeout", UserMessage{
		Message: "The database or execution history is in use by another process",
		Action:  "Wait for the other process to finish",
		Code:    "DB004",
	}},
	{"deadlock", UserMessage{
		Message: "The database was busy with conflicting operations",
		Action:  "Start the run again",
		Code:    "DB005",
	}},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Check the execution record and logs for the technical error",
	Code:    "ERR000",
}

// MapError converts err into an operator-facing message. Typed errors are
// matched first, then known driver messages (case-insensitive). Anything
// else maps to ERR000. A nil error maps to the zero UserMessage.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}
	for _, m := range typedMatchers {
		if m.match(err) {
			return m.msg
		}
	}

	text := strings.ToLower(err.Error())
	for _, p := range errorPatterns {
		if strings.Contains(text, p.pattern) {
			return p.msg
		}
	}
	return defaultMessage
}

// FormatUserError renders err as "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Code == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}
