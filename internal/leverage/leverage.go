// Package leverage computes derived leverage figures from a pool snapshot.
//
// Everything here is a pure function of model.Snapshot — nothing is stored,
// so the figures can never go stale relative to the ledger. The mechanism
// follows the YieldBasis construction: the pool carries debt denominated in
// asset B equal to half its value, which doubles exposure to asset A:
//
//	pool_value = reserve_a * oracle_price + reserve_b
//	debt_ratio = debt / pool_value
//	leverage   = 1 / (1 - debt_ratio)        (2x at a 50% ratio)
//
// All monetary values use shopspring/decimal — never float64 for money.
package leverage

import (
	"github.com/shopspring/decimal"

	"github.com/lqx/pool-engine/internal/model"
)

var (
	one = decimal.NewFromInt(1)

	// saturationRatio is the debt ratio above which the multiplier is
	// reported as maxMultiplier instead of dividing by a vanishing
	// denominator.
	saturationRatio = decimal.NewFromFloat(0.99)

	// maxMultiplier is the sentinel leverage reported at saturation.
	maxMultiplier = decimal.NewFromInt(999)
)

// Direction says which way the debt must move to reach the target ratio.
type Direction uint8

const (
	// NeedMoreDebt means the ratio is below target; borrow more.
	NeedMoreDebt Direction = iota
	// NeedLessDebt means the ratio is above target; repay.
	NeedLessDebt
)

func (d Direction) String() string {
	if d == NeedMoreDebt {
		return "need_more_debt"
	}
	return "need_less_debt"
}

// Signal is a non-nil deviation from the target debt ratio: the direction
// and the exact debt adjustment (in asset B units) that would hit it.
type Signal struct {
	Direction Direction
	Magnitude decimal.Decimal
}

// PoolValue returns the total pool value in asset B units at the oracle
// price.
func PoolValue(s model.Snapshot) decimal.Decimal {
	return s.ReserveA.Mul(s.OraclePrice).Add(s.ReserveB)
}

// DebtRatio returns debt / pool value, or zero for an empty pool.
func DebtRatio(s model.Snapshot) decimal.Decimal {
	value := PoolValue(s)
	if value.IsZero() {
		return decimal.Zero
	}
	return s.Debt.Div(value)
}

// Multiplier returns the effective leverage 1/(1-ratio), saturated to a
// sentinel as the ratio approaches 1 so it never divides by zero.
func Multiplier(s model.Snapshot) decimal.Decimal {
	ratio := DebtRatio(s)
	if ratio.GreaterThanOrEqual(saturationRatio) {
		return maxMultiplier
	}
	return one.Div(one.Sub(ratio))
}

// Healthy reports whether the debt ratio lies within the closed safety
// band [minRatio, maxRatio].
func Healthy(s model.Snapshot, minRatio, maxRatio decimal.Decimal) bool {
	ratio := DebtRatio(s)
	return ratio.GreaterThanOrEqual(minRatio) && ratio.LessThanOrEqual(maxRatio)
}

// State bundles the derived figures for a snapshot.
func State(s model.Snapshot, minRatio, maxRatio decimal.Decimal) model.LeverageState {
	return model.LeverageState{
		PoolValue:  PoolValue(s),
		DebtRatio:  DebtRatio(s),
		Multiplier: Multiplier(s),
		Healthy:    Healthy(s, minRatio, maxRatio),
	}
}

// DeviationSignal returns nil when the debt ratio is within tolerance of
// the target, otherwise the direction and the absolute adjustment
// |target*pool_value - debt| required to hit the target exactly.
func DeviationSignal(s model.Snapshot, target, tolerance decimal.Decimal) *Signal {
	ratio := DebtRatio(s)
	if ratio.Sub(target).Abs().LessThanOrEqual(tolerance) {
		return nil
	}

	sig := &Signal{
		Magnitude: target.Mul(PoolValue(s)).Sub(s.Debt).Abs(),
	}
	if ratio.LessThan(target) {
		sig.Direction = NeedMoreDebt
	} else {
		sig.Direction = NeedLessDebt
	}
	return sig
}
