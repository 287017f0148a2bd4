// Package amm implements the leveraged constant-product pool ledger.
//
// The pool holds reserves of two assets plus an internally tracked debt
// position, denominated in asset B, that gives LPs synthetic 2x exposure to
// asset A (the YieldBasis construction). Covenant-style invariants gate
// every state transition:
//
//   - the constant product k = reserve_a * reserve_b never decreases across
//     a swap, and strictly increases whenever a fee is collected;
//   - the debt ratio stays inside the closed safety band after any
//     operation that moves debt through the leverage mechanism;
//   - every mutation is all-or-nothing: validate first, commit last.
//
// All monetary values use shopspring/decimal — never float64 for money.
package amm

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/lqx/pool-engine/internal/escrow"
	"github.com/lqx/pool-engine/internal/fixedpoint"
	"github.com/lqx/pool-engine/internal/leverage"
	"github.com/lqx/pool-engine/internal/model"
)

var one = decimal.NewFromInt(1)

// Config carries the pool's construction parameters. Rates are fractional
// (0.003 = 30 bps) and must lie in [0, 1); the flash fee must be positive
// so that every loan satisfies repay > principal.
type Config struct {
	SymbolA string
	SymbolB string

	SwapFeeRate  decimal.Decimal
	FlashFeeRate decimal.Decimal
	MaxLoanRatio decimal.Decimal

	TargetRatio  decimal.Decimal
	MinDebtRatio decimal.Decimal
	MaxDebtRatio decimal.Decimal

	SeedReserveA decimal.Decimal
	SeedReserveB decimal.Decimal
	OraclePrice  decimal.Decimal
}

// Pool is the ledger: a single mutable aggregate exclusively owned by the
// process. All mutating operations execute under the write lock; readers
// take Snapshot for one atomic copy and derive everything else from it.
type Pool struct {
	mu sync.RWMutex

	symbolA string
	symbolB string

	swapFee      decimal.Decimal
	flashFee     decimal.Decimal
	maxLoanRatio decimal.Decimal
	minRatio     decimal.Decimal
	maxRatio     decimal.Decimal

	reserveA    decimal.Decimal
	reserveB    decimal.Decimal
	debt        decimal.Decimal
	oraclePrice decimal.Decimal
	lpSupply    decimal.Decimal
	feeAccruedA decimal.Decimal
	feeAccruedB decimal.Decimal

	loans *escrow.Escrow
}

// New creates a pool seeded with initial liquidity. The initial debt is
// set to TargetRatio times the seeded pool value (50% for 2x leverage),
// and the first LP shares are minted as sqrt(reserveA * reserveB).
func New(cfg Config) (*Pool, error) {
	if cfg.SymbolA == "" || cfg.SymbolB == "" || cfg.SymbolA == cfg.SymbolB {
		return nil, fmt.Errorf("%w: pool needs two distinct symbols, got %q/%q",
			ErrUnknownAsset, cfg.SymbolA, cfg.SymbolB)
	}
	for _, rate := range []struct {
		name string
		v    decimal.Decimal
	}{
		{"swap fee", cfg.SwapFeeRate},
		{"flash fee", cfg.FlashFeeRate},
		{"max loan ratio", cfg.MaxLoanRatio},
		{"target ratio", cfg.TargetRatio},
		{"min debt ratio", cfg.MinDebtRatio},
		{"max debt ratio", cfg.MaxDebtRatio},
	} {
		if rate.v.IsNegative() || rate.v.GreaterThanOrEqual(one) {
			return nil, fmt.Errorf("%w: %s %s outside [0, 1)",
				ErrInvalidAmount, rate.name, rate.v)
		}
	}
	if !cfg.FlashFeeRate.IsPositive() {
		return nil, fmt.Errorf("%w: flash fee rate must be positive", ErrInvalidAmount)
	}
	if !cfg.SeedReserveA.IsPositive() || !cfg.SeedReserveB.IsPositive() {
		return nil, fmt.Errorf("%w: seed reserves %s/%s", ErrInvalidAmount,
			cfg.SeedReserveA, cfg.SeedReserveB)
	}
	if !cfg.OraclePrice.IsPositive() {
		return nil, fmt.Errorf("%w: oracle price %s", ErrInvalidAmount, cfg.OraclePrice)
	}

	seedValue := cfg.SeedReserveA.Mul(cfg.OraclePrice).Add(cfg.SeedReserveB)
	shares, err := fixedpoint.Sqrt(cfg.SeedReserveA.Mul(cfg.SeedReserveB))
	if err != nil {
		return nil, err
	}

	return &Pool{
		symbolA:      cfg.SymbolA,
		symbolB:      cfg.SymbolB,
		swapFee:      cfg.SwapFeeRate,
		flashFee:     cfg.FlashFeeRate,
		maxLoanRatio: cfg.MaxLoanRatio,
		minRatio:     cfg.MinDebtRatio,
		maxRatio:     cfg.MaxDebtRatio,
		reserveA:     cfg.SeedReserveA,
		reserveB:     cfg.SeedReserveB,
		debt:         cfg.TargetRatio.Mul(seedValue),
		oraclePrice:  cfg.OraclePrice,
		lpSupply:     fixedpoint.Truncate(shares),
		loans:        escrow.New(),
	}, nil
}

// ParseAsset resolves an asset symbol to its closed two-variant tag. This
// is the only place strings are compared; everything past the boundary
// carries model.Asset.
func (p *Pool) ParseAsset(symbol string) (model.Asset, error) {
	switch symbol {
	case p.symbolA:
		return model.AssetA, nil
	case p.symbolB:
		return model.AssetB, nil
	default:
		return 0, fmt.Errorf("%w: %q (pool trades %s/%s)",
			ErrUnknownAsset, symbol, p.symbolA, p.symbolB)
	}
}

// Symbol returns the configured symbol for an asset tag.
func (p *Pool) Symbol(a model.Asset) string {
	if a == model.AssetA {
		return p.symbolA
	}
	return p.symbolB
}

// SwapFeeRate returns the configured swap fee as a fraction.
func (p *Pool) SwapFeeRate() decimal.Decimal { return p.swapFee }

// SafetyBand returns the closed debt-ratio band [min, max].
func (p *Pool) SafetyBand() (minRatio, maxRatio decimal.Decimal) {
	return p.minRatio, p.maxRatio
}

// Snapshot returns one atomic copy of the ledger. Derived figures are
// computed from it by the leverage package, never read piecemeal.
func (p *Pool) Snapshot() model.Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snapshotLocked()
}

func (p *Pool) snapshotLocked() model.Snapshot {
	return model.Snapshot{
		SymbolA:     p.symbolA,
		SymbolB:     p.symbolB,
		ReserveA:    p.reserveA,
		ReserveB:    p.reserveB,
		Debt:        p.debt,
		OraclePrice: p.oraclePrice,
		LPSupply:    p.lpSupply,
		FeeAccruedA: p.feeAccruedA,
		FeeAccruedB: p.feeAccruedB,
	}
}

// State returns the derived leverage figures for the current snapshot.
func (p *Pool) State() model.LeverageState {
	return leverage.State(p.Snapshot(), p.minRatio, p.maxRatio)
}

// QuoteSwap prices a swap without mutating the pool.
//
// The standard constant-product formula with the fee applied to the input:
//
//	out = reserve_out * in' / (reserve_in + in'),  in' = in * (1 - fee)
//
// The output is truncated at fixedpoint.Scale, so rounding always favors
// the pool and the invariant check in ExecuteSwap holds by construction.
func (p *Pool) QuoteSwap(in model.Asset, amountIn decimal.Decimal) (model.SwapQuote, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.quoteLocked(in, amountIn)
}

func (p *Pool) quoteLocked(in model.Asset, amountIn decimal.Decimal) (model.SwapQuote, error) {
	if !amountIn.IsPositive() {
		return model.SwapQuote{}, fmt.Errorf("%w: amount_in %s", ErrInvalidAmount, amountIn)
	}
	if !p.reserveA.IsPositive() || !p.reserveB.IsPositive() {
		return model.SwapQuote{}, fmt.Errorf("%w: reserves %s/%s",
			ErrEmptyPool, p.reserveA, p.reserveB)
	}

	reserveIn, reserveOut := p.reserveA, p.reserveB
	if in == model.AssetB {
		reserveIn, reserveOut = p.reserveB, p.reserveA
	}

	inAfterFee := amountIn.Mul(one.Sub(p.swapFee))
	fee := amountIn.Sub(inAfterFee)

	amountOut := fixedpoint.Truncate(
		reserveOut.Mul(inAfterFee).Div(reserveIn.Add(inAfterFee)))
	if !amountOut.IsPositive() {
		return model.SwapQuote{}, fmt.Errorf("%w: amount_in %s", ErrZeroOutput, amountIn)
	}

	var newA, newB decimal.Decimal
	if in == model.AssetA {
		newA = p.reserveA.Add(amountIn)
		newB = p.reserveB.Sub(amountOut)
	} else {
		newA = p.reserveA.Sub(amountOut)
		newB = p.reserveB.Add(amountIn)
	}

	priceAfter := decimal.Zero
	if newA.IsPositive() {
		priceAfter = newB.Div(newA)
	}

	return model.SwapQuote{
		InputAsset:  p.Symbol(in),
		OutputAsset: p.Symbol(in.Other()),
		AmountIn:    amountIn,
		AmountOut:   amountOut,
		FeePaid:     fee,
		PriceAfter:  priceAfter,
	}, nil
}

// ExecuteSwap quotes and atomically applies a swap, accruing the fee in
// the input asset. Swaps do not touch debt, so they are exempt from the
// safety-band check; arbitrage restores the ratio separately.
func (p *Pool) ExecuteSwap(in model.Asset, amountIn decimal.Decimal) (model.SwapQuote, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	quote, err := p.quoteLocked(in, amountIn)
	if err != nil {
		return model.SwapQuote{}, err
	}

	oldK := p.reserveA.Mul(p.reserveB)

	if in == model.AssetA {
		p.reserveA = p.reserveA.Add(quote.AmountIn)
		p.reserveB = p.reserveB.Sub(quote.AmountOut)
		p.feeAccruedA = p.feeAccruedA.Add(quote.FeePaid)
	} else {
		p.reserveB = p.reserveB.Add(quote.AmountIn)
		p.reserveA = p.reserveA.Sub(quote.AmountOut)
		p.feeAccruedB = p.feeAccruedB.Add(quote.FeePaid)
	}

	// Defensive re-check: quoteLocked's formula guarantees this by
	// construction, so a regression is an arithmetic defect, not a
	// business error. Halt rather than compound corrupted state.
	newK := p.reserveA.Mul(p.reserveB)
	if newK.LessThan(oldK) {
		panic(fmt.Errorf("%w: old_k=%s new_k=%s", ErrInvariantBroken, oldK, newK))
	}

	return quote, nil
}

// AddLiquidity deposits both assets and mints LP shares. The first deposit
// mints sqrt(a*b); later deposits mint lp_supply * min(a/reserve_a,
// b/reserve_b) — the minimum of the two ratios, so an imbalanced deposit
// cannot mint excess shares.
func (p *Pool) AddLiquidity(amountA, amountB decimal.Decimal) (decimal.Decimal, error) {
	if !amountA.IsPositive() || !amountB.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("%w: amounts %s/%s",
			ErrInvalidAmount, amountA, amountB)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	var minted decimal.Decimal
	if p.lpSupply.IsZero() {
		shares, err := fixedpoint.Sqrt(amountA.Mul(amountB))
		if err != nil {
			return decimal.Decimal{}, err
		}
		minted = fixedpoint.Truncate(shares)
	} else {
		ratioA := amountA.Div(p.reserveA)
		ratioB := amountB.Div(p.reserveB)
		ratio := decimal.Min(ratioA, ratioB)
		minted = fixedpoint.Truncate(p.lpSupply.Mul(ratio))
	}
	if !minted.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("%w: deposit %s/%s mints no shares",
			ErrZeroOutput, amountA, amountB)
	}

	p.reserveA = p.reserveA.Add(amountA)
	p.reserveB = p.reserveB.Add(amountB)
	p.lpSupply = p.lpSupply.Add(minted)
	return minted, nil
}

// RemoveLiquidity burns LP shares for a pro-rata withdrawal of both
// reserves. Withdrawn amounts are truncated at fixedpoint.Scale so a
// partial withdrawal can never leave a reserve negative.
func (p *Pool) RemoveLiquidity(lpTokens decimal.Decimal) (amountA, amountB decimal.Decimal, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !lpTokens.IsPositive() || lpTokens.GreaterThan(p.lpSupply) {
		return decimal.Decimal{}, decimal.Decimal{}, fmt.Errorf(
			"%w: %s (supply %s)", ErrInvalidShare, lpTokens, p.lpSupply)
	}

	share := lpTokens.Div(p.lpSupply)
	outA := fixedpoint.Truncate(p.reserveA.Mul(share))
	outB := fixedpoint.Truncate(p.reserveB.Mul(share))

	p.reserveA = p.reserveA.Sub(outA)
	p.reserveB = p.reserveB.Sub(outB)
	p.lpSupply = p.lpSupply.Sub(lpTokens)
	return outA, outB, nil
}

// AdjustDebt is the leverage-maintenance primitive. Increase borrows more
// of asset B into the pool; decrease repays by removing it. The new debt
// ratio is validated against the safety band before anything is applied:
// on violation the ledger is left untouched and the error carries the
// offending ratio so the caller can size an exact remedial adjustment.
func (p *Pool) AdjustDebt(amount decimal.Decimal, dir model.DebtDirection) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: adjustment %s", ErrInvalidAmount, amount)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	var newDebt, newReserveB decimal.Decimal
	switch dir {
	case model.DebtIncrease:
		newDebt = p.debt.Add(amount)
		newReserveB = p.reserveB.Add(amount)
	case model.DebtDecrease:
		if p.reserveB.LessThan(amount) {
			return fmt.Errorf("%w: repay %s exceeds %s reserve %s",
				ErrInsufficientReserve, amount, p.symbolB, p.reserveB)
		}
		newDebt = p.debt.Sub(amount)
		newReserveB = p.reserveB.Sub(amount)
	default:
		return fmt.Errorf("%w: unknown debt direction %d", ErrInvalidAmount, dir)
	}

	next := p.snapshotLocked()
	next.Debt = newDebt
	next.ReserveB = newReserveB
	if !leverage.Healthy(next, p.minRatio, p.maxRatio) {
		return fmt.Errorf("%w: ratio %s outside [%s, %s] after %s of %s",
			ErrCovenantViolation, leverage.DebtRatio(next).StringFixed(6),
			p.minRatio, p.maxRatio, dir, amount)
	}

	p.debt = newDebt
	p.reserveB = newReserveB
	return nil
}

// UpdateOraclePrice records a new externally supplied price for asset A
// and returns the leverage state before and after, so callers can detect
// drift without a recomputation race.
func (p *Pool) UpdateOraclePrice(newPrice decimal.Decimal) (old, updated model.LeverageState, err error) {
	if !newPrice.IsPositive() {
		return model.LeverageState{}, model.LeverageState{},
			fmt.Errorf("%w: price %s", ErrInvalidAmount, newPrice)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	old = leverage.State(p.snapshotLocked(), p.minRatio, p.maxRatio)
	p.oraclePrice = newPrice
	updated = leverage.State(p.snapshotLocked(), p.minRatio, p.maxRatio)
	return old, updated, nil
}

// OpenFlashLoan reserves borrowing capacity against the pool: principal
// must not exceed maxLoanRatio of the asset's reserve. Reserves do not
// move here — the borrower trades against the pool with the loaned
// capacity and the escrow enforces single-use settlement.
func (p *Pool) OpenFlashLoan(asset model.Asset, amount decimal.Decimal) (model.FlashLoan, error) {
	if !amount.IsPositive() {
		return model.FlashLoan{}, fmt.Errorf("%w: loan %s", ErrInvalidAmount, amount)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	reserve := p.reserveA
	if asset == model.AssetB {
		reserve = p.reserveB
	}
	maxLoan := reserve.Mul(p.maxLoanRatio)
	if amount.GreaterThan(maxLoan) {
		return model.FlashLoan{}, fmt.Errorf("%w: loan %s exceeds max %s (%s of %s reserve %s)",
			ErrInsufficientReserve, amount, maxLoan, p.maxLoanRatio, p.Symbol(asset), reserve)
	}

	return p.loans.Open(p.Symbol(asset), amount, amount.Mul(p.flashFee))
}

// SettleFlashLoan terminates a loan and accrues its fee to the pool.
// Returns the fee collected. A repeated settle of the same id fails with
// escrow.ErrUnknownLoan.
func (p *Pool) SettleFlashLoan(id string, repaid decimal.Decimal) (decimal.Decimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	loan, err := p.loans.Settle(id, repaid)
	if err != nil {
		return decimal.Decimal{}, err
	}

	if loan.Asset == p.symbolA {
		p.feeAccruedA = p.feeAccruedA.Add(loan.Fee)
	} else {
		p.feeAccruedB = p.feeAccruedB.Add(loan.Fee)
	}
	return loan.Fee, nil
}

// CancelFlashLoan removes a loan with no other state change. Absent ids
// are a no-op: cancellation races with settlement and must not fail.
func (p *Pool) CancelFlashLoan(id string) bool {
	return p.loans.Cancel(id)
}

// OutstandingLoans returns the current outstanding flash loans.
func (p *Pool) OutstandingLoans() []model.FlashLoan {
	return p.loans.Outstanding()
}
