package postgres

import (
	"math/big"
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

func TestToNumericFromNumeric(t *testing.T) {
	tests := []string{"0", "150", "700.00", "-0.25", "12345678901234567890.123456789", "0.001"}

	for _, in := range tests {
		t.Run(in, func(t *testing.T) {
			d := decimal.RequireFromString(in)
			n := ToNumeric(d)
			if !n.Valid {
				t.Fatalf("ToNumeric(%s) not valid", in)
			}
			got, err := FromNumeric(n)
			if err != nil {
				t.Fatalf("FromNumeric() error = %v", err)
			}
			if !got.Equal(d) {
				t.Errorf("round trip %s = %s", in, got)
			}
		})
	}
}

func TestFromNumeric_Invalid(t *testing.T) {
	tests := []struct {
		name string
		n    pgtype.Numeric
	}{
		{name: "null", n: pgtype.Numeric{}},
		{name: "nan", n: pgtype.Numeric{NaN: true, Valid: true}},
		{name: "infinity", n: pgtype.Numeric{InfinityModifier: pgtype.Infinity, Valid: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := FromNumeric(tt.n); err == nil {
				t.Error("FromNumeric() error = nil")
			}
		})
	}
}

func TestFromNumeric_Scale(t *testing.T) {
	n := pgtype.Numeric{Int: big.NewInt(15000), Exp: -2, Valid: true}
	got, err := FromNumeric(n)
	if err != nil {
		t.Fatal(err)
	}
	if got.StringFixed(2) != "150.00" {
		t.Errorf("FromNumeric() = %s, want 150.00", got.StringFixed(2))
	}
}
