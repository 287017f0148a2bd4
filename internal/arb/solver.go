// Package arb computes the exact actions that realign the pool: a trade
// size that moves the pool price to an external target, and a debt
// adjustment that restores the target leverage ratio.
//
// Everything here is pure: the solver consumes a ledger snapshot and the
// leverage package's figures, proposes an action, and never mutates state.
//
// All monetary values use shopspring/decimal — never float64 for money.
package arb

import (
	"github.com/shopspring/decimal"

	"github.com/lqx/pool-engine/internal/fixedpoint"
	"github.com/lqx/pool-engine/internal/leverage"
	"github.com/lqx/pool-engine/internal/model"
)

var (
	one  = decimal.NewFromInt(1)
	two  = decimal.NewFromInt(2)
	four = decimal.NewFromInt(4)

	// profitFraction is the flat advisory estimate of arbitrage profit as
	// a fraction of the debt adjustment. It is not derived from a solved
	// trade and carries no correctness weight.
	profitFraction = decimal.NewFromFloat(0.001)
)

// Trade is a proposed swap that moves the pool's marginal price to
// TargetPrice: sell AmountIn of Sell into the pool.
type Trade struct {
	Sell        model.Asset     `json:"-"`
	SellSymbol  string          `json:"sell_asset"`
	AmountIn    decimal.Decimal `json:"amount_in"`
	TargetPrice decimal.Decimal `json:"target_price"`
}

// SolveTradeForPrice finds the input amount that moves the post-trade pool
// price to targetPrice, given the pool's fee rate. Returns nil when the
// price is already within the relative tolerance, or when no positive real
// root exists — "no actionable trade", not an error.
//
// With γ = 1 - fee and reserves x (asset A) and y (asset B), the
// post-trade price (y + t)(y + γt)/(xy) for a sell of t asset B — and its
// mirror for asset A — reduce to a quadratic a·t² + b·t + c = 0:
//
//	sell A: a = p·γ     b = p·x·(1+γ)   c = p·x² − x·y
//	sell B: a = γ       b = y·(1+γ)     c = y² − p·x·y
//
// Both real roots positive means the smaller one is a spurious artifact of
// the fee term, so the larger root is returned.
func SolveTradeForPrice(s model.Snapshot, targetPrice, tolerance, feeRate decimal.Decimal) *Trade {
	if !targetPrice.IsPositive() || !s.ReserveA.IsPositive() || !s.ReserveB.IsPositive() {
		return nil
	}

	price := s.PoolPrice()
	if price.Sub(targetPrice).Abs().LessThanOrEqual(targetPrice.Mul(tolerance)) {
		return nil
	}

	gamma := one.Sub(feeRate)
	x, y := s.ReserveA, s.ReserveB

	var sell model.Asset
	var a, b, c decimal.Decimal
	if targetPrice.LessThan(price) {
		// Price must fall: sell asset A into the pool.
		sell = model.AssetA
		a = targetPrice.Mul(gamma)
		b = targetPrice.Mul(x).Mul(one.Add(gamma))
		c = targetPrice.Mul(x).Mul(x).Sub(x.Mul(y))
	} else {
		// Price must rise: sell asset B into the pool.
		sell = model.AssetB
		a = gamma
		b = y.Mul(one.Add(gamma))
		c = y.Mul(y).Sub(targetPrice.Mul(x).Mul(y))
	}

	amount := solveQuadratic(a, b, c)
	if amount == nil {
		return nil
	}

	var symbol string
	if sell == model.AssetA {
		symbol = s.SymbolA
	} else {
		symbol = s.SymbolB
	}
	return &Trade{
		Sell:        sell,
		SellSymbol:  symbol,
		AmountIn:    *amount,
		TargetPrice: targetPrice,
	}
}

// solveQuadratic returns the largest positive real root of a·t² + b·t + c,
// or nil when none exists. The degenerate a = 0 case reduces to a linear
// solve.
func solveQuadratic(a, b, c decimal.Decimal) *decimal.Decimal {
	if a.IsZero() {
		if b.IsZero() {
			return nil
		}
		t := c.Neg().Div(b)
		if t.IsPositive() {
			return &t
		}
		return nil
	}

	disc := b.Mul(b).Sub(four.Mul(a).Mul(c))
	if disc.IsNegative() {
		return nil
	}
	root, err := fixedpoint.Sqrt(disc)
	if err != nil {
		return nil
	}

	denom := two.Mul(a)
	t1 := b.Neg().Add(root).Div(denom)
	t2 := b.Neg().Sub(root).Div(denom)

	best := decimal.Max(t1, t2)
	if best.IsPositive() {
		return &best
	}
	return nil
}

// DetectOpportunity wraps the leverage deviation signal into an actionable
// debt adjustment. Debt-ratio rebalancing is a direct ledger mutation, not
// a price-curve trade, so this is decoupled from SolveTradeForPrice.
// Returns nil when the ratio is within tolerance of the target.
func DetectOpportunity(s model.Snapshot, targetRatio, tolerance decimal.Decimal) *model.Opportunity {
	sig := leverage.DeviationSignal(s, targetRatio, tolerance)
	if sig == nil {
		return nil
	}

	dir := model.DebtIncrease
	if sig.Direction == leverage.NeedLessDebt {
		dir = model.DebtDecrease
	}

	return &model.Opportunity{
		Direction:      dir,
		Action:         dir.String(),
		Adjustment:     sig.Magnitude,
		CurrentRatio:   leverage.DebtRatio(s),
		TargetRatio:    targetRatio,
		ExpectedProfit: sig.Magnitude.Mul(profitFraction),
	}
}
