package fixedpoint

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestSqrt_ExactSquares(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0", "0"},
		{"1", "1"},
		{"4", "2"},
		{"900000000", "30000"},
		{"0.25", "0.5"},
	}
	for _, tt := range tests {
		in, _ := decimal.NewFromString(tt.in)
		want, _ := decimal.NewFromString(tt.want)

		got, err := Sqrt(in)
		if err != nil {
			t.Fatalf("Sqrt(%s): unexpected error: %v", tt.in, err)
		}
		if !Truncate(got).Equal(want) {
			t.Errorf("Sqrt(%s) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestSqrt_SquaresBackWithinTolerance(t *testing.T) {
	tolerance := decimal.New(1, -(Scale - 2))

	for _, s := range []string{"2", "30000", "0.0001", "12345678901234.5678", "3"} {
		in, _ := decimal.NewFromString(s)
		got, err := Sqrt(in)
		if err != nil {
			t.Fatalf("Sqrt(%s): unexpected error: %v", s, err)
		}
		back := got.Mul(got)
		if back.Sub(in).Abs().GreaterThan(in.Mul(tolerance)) {
			t.Errorf("Sqrt(%s)^2 = %s, drifted beyond tolerance", s, back)
		}
	}
}

func TestSqrt_Negative(t *testing.T) {
	if _, err := Sqrt(decimal.NewFromInt(-1)); !errors.Is(err, ErrNegativeSqrt) {
		t.Errorf("expected ErrNegativeSqrt, got %v", err)
	}
}

func TestRoundAndTruncate(t *testing.T) {
	v, _ := decimal.NewFromString("1.9999999999999")

	if got := Truncate(v); got.String() != "1.999999999999" {
		t.Errorf("Truncate: got %s", got)
	}
	if got := Round(v); got.String() != "2" {
		t.Errorf("Round: got %s", got)
	}

	// Truncation moves toward zero for negatives too.
	neg := v.Neg()
	if got := Truncate(neg); got.String() != "-1.999999999999" {
		t.Errorf("Truncate negative: got %s", got)
	}
}
