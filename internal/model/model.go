// Package model defines the core domain types shared across the pool engine.
// All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Asset identifies one of the pool's two assets. The pool is constructed
// with exactly two symbols (e.g. "LBTC" / "LUSDt"); symbols are resolved
// to this tag once at the boundary so hot arithmetic paths never branch
// on strings.
type Asset uint8

const (
	// AssetA is the volatile asset the pool holds leveraged exposure to.
	AssetA Asset = iota
	// AssetB is the unit-of-account asset; debt is denominated in it.
	AssetB
)

// Other returns the opposite side of the pair.
func (a Asset) Other() Asset {
	if a == AssetA {
		return AssetB
	}
	return AssetA
}

// DebtDirection selects the sense of a debt adjustment.
type DebtDirection uint8

const (
	// DebtIncrease borrows more of asset B and adds it to the pool.
	DebtIncrease DebtDirection = iota
	// DebtDecrease repays debt by removing asset B from the pool.
	DebtDecrease
)

func (d DebtDirection) String() string {
	if d == DebtIncrease {
		return "increase"
	}
	return "decrease"
}

// Snapshot is a single atomic copy of the pool ledger. Derived values
// (pool value, debt ratio, leverage) are never stored; they are recomputed
// from a snapshot by the leverage package to avoid staleness bugs.
type Snapshot struct {
	SymbolA     string          `json:"symbol_a"`
	SymbolB     string          `json:"symbol_b"`
	ReserveA    decimal.Decimal `json:"reserve_a"`
	ReserveB    decimal.Decimal `json:"reserve_b"`
	Debt        decimal.Decimal `json:"debt"`
	OraclePrice decimal.Decimal `json:"oracle_price"`
	LPSupply    decimal.Decimal `json:"lp_supply"`
	FeeAccruedA decimal.Decimal `json:"fee_accrued_a"`
	FeeAccruedB decimal.Decimal `json:"fee_accrued_b"`
}

// PoolPrice returns the pool's own marginal price of asset A in units of
// asset B (reserveB / reserveA), or zero for an empty pool. This is
// distinct from OraclePrice, which is supplied externally.
func (s Snapshot) PoolPrice() decimal.Decimal {
	if s.ReserveA.IsZero() {
		return decimal.Zero
	}
	return s.ReserveB.Div(s.ReserveA)
}

// SwapQuote describes the outcome of a swap, either proposed (quote) or
// applied (execute).
type SwapQuote struct {
	InputAsset  string          `json:"input_asset"`
	OutputAsset string          `json:"output_asset"`
	AmountIn    decimal.Decimal `json:"amount_in"`
	AmountOut   decimal.Decimal `json:"amount_out"`
	FeePaid     decimal.Decimal `json:"fee_paid"` // charged in the input asset
	PriceAfter  decimal.Decimal `json:"price_after"`
}

// FlashLoan is an outstanding loan record, owned by the escrow from
// issuance until settlement or cancellation. A flash loan reserves
// borrowing capacity; it does not move reserves by itself.
type FlashLoan struct {
	ID          string          `json:"loan_id"`
	Asset       string          `json:"asset"`
	Principal   decimal.Decimal `json:"principal"`
	Fee         decimal.Decimal `json:"fee"`
	RepayAmount decimal.Decimal `json:"repay_amount"` // principal + fee
	CreatedAt   time.Time       `json:"created_at"`
}

// LeverageState summarizes the derived leverage figures at a point in time.
// Returned in (old, new) pairs by oracle updates so callers can detect
// drift without recomputation races.
type LeverageState struct {
	PoolValue  decimal.Decimal `json:"pool_value"`
	DebtRatio  decimal.Decimal `json:"debt_ratio"`
	Multiplier decimal.Decimal `json:"leverage"`
	Healthy    bool            `json:"healthy"`
}

// Opportunity is an actionable rebalance recommendation: adjust debt in
// Direction by Adjustment to return the debt ratio to target.
//
// ExpectedProfit is advisory only — a flat fraction of the adjustment, not
// derived from a solved trade — and must not be treated as authoritative.
type Opportunity struct {
	Direction      DebtDirection   `json:"-"`
	Action         string          `json:"action"` // Direction.String() for transport
	Adjustment     decimal.Decimal `json:"adjustment"`
	CurrentRatio   decimal.Decimal `json:"current_ratio"`
	TargetRatio    decimal.Decimal `json:"target_ratio"`
	ExpectedProfit decimal.Decimal `json:"expected_profit"`
}

// Event kinds recorded in the append-only journal.
const (
	EventSwap            = "swap"
	EventAddLiquidity    = "add_liquidity"
	EventRemoveLiquidity = "remove_liquidity"
	EventDebtAdjust      = "debt_adjust"
	EventOracleUpdate    = "oracle_update"
	EventFlashOpen       = "flash_open"
	EventFlashSettle     = "flash_settle"
	EventFlashCancel     = "flash_cancel"
	EventRebalance       = "rebalance"
)

// Event is an immutable journal record of an executed pool operation.
// Once appended, events are never modified or deleted. The journal is an
// audit trail; the in-memory pool remains the authoritative ledger.
type Event struct {
	ID        string          `json:"id" db:"id"`
	Kind      string          `json:"kind" db:"kind"`
	Asset     string          `json:"asset,omitempty" db:"asset"`
	AmountA   decimal.Decimal `json:"amount_a" db:"amount_a"`
	AmountB   decimal.Decimal `json:"amount_b" db:"amount_b"`
	Fee       decimal.Decimal `json:"fee" db:"fee"`
	DebtRatio decimal.Decimal `json:"debt_ratio" db:"debt_ratio"`
	Timestamp time.Time       `json:"timestamp" db:"timestamp"`
}
