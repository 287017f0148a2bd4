// Package fixedpoint centralizes the decimal arithmetic conventions used
// across the pool engine.
//
// All reserve, debt, and fee values use shopspring/decimal — never float64
// for money. Quantities are carried at full precision through intermediate
// computation and rounded only at well-defined points:
//
//   - Scale is the canonical number of decimal places (12).
//   - Round applies banker's rounding (round-half-even) at Scale, used for
//     presentation values such as prices.
//   - Truncate rounds toward zero at Scale, used for amounts leaving the
//     pool (swap outputs, withdrawals, minted shares). Truncation can only
//     under-pay, so the constant-product invariant can never regress from
//     rounding alone.
package fixedpoint

import (
	"errors"
	"math"

	"github.com/shopspring/decimal"
)

// Scale is the canonical number of decimal places for pool quantities.
const Scale int32 = 12

// ErrNegativeSqrt is returned when Sqrt is called with a negative input.
var ErrNegativeSqrt = errors.New("fixedpoint: square root of negative value")

// Round rounds to Scale using banker's rounding.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(Scale)
}

// Truncate rounds toward zero at Scale.
func Truncate(d decimal.Decimal) decimal.Decimal {
	return d.Truncate(Scale)
}

// Sqrt computes the square root of d using Newton's method in decimal
// arithmetic. A float64 seed is used only as the starting guess; every
// refinement step runs in decimal, so money paths never depend on binary
// floating point for their result.
func Sqrt(d decimal.Decimal) (decimal.Decimal, error) {
	if d.IsNegative() {
		return decimal.Decimal{}, ErrNegativeSqrt
	}
	if d.IsZero() {
		return decimal.Zero, nil
	}

	two := decimal.NewFromInt(2)

	guess := d.Div(two)
	if f := d.InexactFloat64(); f > 0 && !math.IsInf(f, 1) {
		guess = decimal.NewFromFloat(math.Sqrt(f))
	}
	if guess.IsZero() {
		guess = d
	}

	// Newton iteration: x' = (x + d/x) / 2. Converges quadratically from
	// the float seed; the iteration cap only guards pathological inputs.
	prev := decimal.Zero
	for i := 0; i < 64; i++ {
		next := guess.Add(d.Div(guess)).Div(two)
		if next.Sub(guess).Abs().LessThanOrEqual(convergence) || next.Equal(prev) {
			return next, nil
		}
		prev = guess
		guess = next
	}
	return guess, nil
}

// convergence is the Newton iteration stopping threshold, two decimal
// places tighter than Scale.
var convergence = decimal.New(1, -(Scale + 2))
