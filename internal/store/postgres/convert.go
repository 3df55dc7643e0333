package postgres

// convert.go converts between shopspring decimals and pgtype.Numeric.

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// ToNumeric converts d to a valid pgtype.Numeric.
func ToNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric
	if err := n.Scan(d.String()); err != nil {
		// decimal.String always yields a plain numeric literal.
		panic(fmt.Sprintf("numeric from %q: %v", d.String(), err))
	}
	return n
}

// FromNumeric converts n to a decimal. NULL, NaN and infinities are errors;
// ledger amounts are always finite.
func FromNumeric(n pgtype.Numeric) (decimal.Decimal, error) {
	switch {
	case !n.Valid:
		return decimal.Decimal{}, errors.New("numeric is NULL")
	case n.NaN:
		return decimal.Decimal{}, errors.New("numeric is NaN")
	case n.InfinityModifier != pgtype.Finite:
		return decimal.Decimal{}, errors.New("numeric is infinite")
	case n.Int == nil:
		return decimal.Zero, nil
	}
	return decimal.NewFromBigInt(n.Int, n.Exp), nil
}
